package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"alpha_bot/internal/models"

	"github.com/bytedance/sonic"
)

// PlaceMarket — маркет-ордер на открытие позиции.
func (c *Client) PlaceMarket(ctx context.Context, instID, posSide string, size float64) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("PlaceMarket: size <= 0")
	}

	side := "buy" // открываем long
	if posSide == "short" {
		side = "sell" // открываем short
	}

	body := map[string]string{
		"instId":  instID,
		"tdMode":  "cross",
		"side":    side,
		"posSide": posSide,
		"ordType": "market",
		"sz":      formatSize(size),
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("PlaceMarket marshal: %w", err)
	}

	const requestPath = "/api/v5/trade/order"
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	sign := c.sign(ts, http.MethodPost, requestPath, string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("PlaceMarket new request: %w", err)
	}

	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", sign)
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("PlaceMarket do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("PlaceMarket http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return "", fmt.Errorf("PlaceMarket decode: %w; body=%s", err, string(data))
	}

	if len(r.Data) > 0 && r.Data[0].SCode != "0" {
		return "", fmt.Errorf("PlaceMarket rejected: sCode=%s sMsg=%s RAW=%s",
			r.Data[0].SCode, r.Data[0].SMsg, string(data))
	}
	if r.Code != "0" {
		return "", fmt.Errorf("PlaceMarket error: code=%s msg=%s RAW=%s", r.Code, r.Msg, string(data))
	}
	if len(r.Data) == 0 || r.Data[0].OrdID == "" {
		return "", fmt.Errorf("PlaceMarket: empty ordId RAW=%s", string(data))
	}
	return r.Data[0].OrdID, nil
}

// FetchOrder — статус обычного ордера по ordId.
func (c *Client) FetchOrder(ctx context.Context, instID, ordID string) (models.OrderResult, error) {
	requestPath := "/api/v5/trade/order?instId=" + url.QueryEscape(instID) + "&ordId=" + url.QueryEscape(ordID)

	resp, err := c.http.Do(c.generateRequest(ctx, http.MethodGet, requestPath, ""))
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("FetchOrder do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return models.OrderResult{}, fmt.Errorf("FetchOrder http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OrdID   string `json:"ordId"`
			InstID  string `json:"instId"`
			Side    string `json:"side"`
			Sz      string `json:"sz"`
			AccFill string `json:"accFillSz"`
			AvgPx   string `json:"avgPx"`
			Fee     string `json:"fee"`
			State   string `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return models.OrderResult{}, fmt.Errorf("FetchOrder decode: %w; body=%s", err, string(data))
	}
	if r.Code != "0" || len(r.Data) == 0 {
		return models.OrderResult{}, fmt.Errorf("FetchOrder error: code=%s msg=%s RAW=%s", r.Code, r.Msg, string(data))
	}

	d := r.Data[0]
	sz, _ := strconv.ParseFloat(d.Sz, 64)
	filled, _ := strconv.ParseFloat(d.AccFill, 64)
	avgPx, _ := strconv.ParseFloat(d.AvgPx, 64)
	fee, _ := strconv.ParseFloat(d.Fee, 64)

	// OKX: "filled" — у нас терминальный closed
	status := models.OrderStatus(d.State)
	if d.State == "filled" {
		status = models.OrderStatusClosed
	}

	return models.OrderResult{
		OrderID:      d.OrdID,
		Symbol:       d.InstID,
		Side:         models.OrderSide(d.Side),
		Amount:       sz,
		FilledAmount: filled,
		AvgPrice:     avgPx,
		Fee:          fee,
		Status:       status,
		Timestamp:    time.Now(),
	}, nil
}
