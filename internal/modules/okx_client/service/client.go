package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"alpha_bot/internal/modules/config"
)

const baseURL = "https://www.okx.com"

// Client — REST-клиент OKX v5 (фьючерсы SWAP).
type Client struct {
	cfg *config.Config

	http      *http.Client
	apiKey    string
	apiSecret string
	passph    string
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: 10 * time.Second},
		apiKey:    cfg.OKX.APIKey,
		apiSecret: cfg.OKX.APISecret,
		passph:    cfg.OKX.Passphrase,
	}
}

func (c *Client) sign(ts, method, requestPath, body string) string {
	msg := ts + strings.ToUpper(method) + requestPath + body
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// generateRequest — подписанный GET без тела.
func (c *Client) generateRequest(ctx context.Context, method string, requestPath string, body string) *http.Request {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req, _ := http.NewRequestWithContext(ctx, method, baseURL+requestPath, nil)
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	return req
}

func formatSize(sz float64) string {
	return strconv.FormatFloat(sz, 'f', -1, 64)
}

func formatPrice(px float64) string {
	return strconv.FormatFloat(px, 'f', -1, 64)
}

// getLastPrice — последняя цена тикера.
func (c *Client) getLastPrice(ctx context.Context, instID string) (float64, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		baseURL+"/api/v5/market/ticker?instId="+url.QueryEscape(instID),
		nil,
	)
	if err != nil {
		return 0, fmt.Errorf("getLastPrice new request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("getLastPrice do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("getLastPrice http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return 0, fmt.Errorf("getLastPrice decode: %w; body=%s", err, string(data))
	}
	if r.Code != "0" || len(r.Data) == 0 {
		return 0, fmt.Errorf("getLastPrice error: code=%s msg=%s", r.Code, r.Msg)
	}

	px, err := strconv.ParseFloat(r.Data[0].Last, 64)
	if err != nil || px <= 0 {
		return 0, fmt.Errorf("getLastPrice parse %q: %v", r.Data[0].Last, err)
	}
	return px, nil
}

// LastPrice — публичная обёртка для координатора.
func (c *Client) LastPrice(ctx context.Context, instID string) (float64, error) {
	return c.getLastPrice(ctx, instID)
}
