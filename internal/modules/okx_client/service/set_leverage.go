package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// SetLeverage — выставить плечо на инструменте перед торговлей.
func (c *Client) SetLeverage(ctx context.Context, instID string, lever int) error {
	if lever <= 0 {
		return fmt.Errorf("SetLeverage: lever <= 0")
	}

	body := map[string]string{
		"instId":  instID,
		"lever":   strconv.Itoa(lever),
		"mgnMode": "cross",
	}
	payload, _ := sonic.Marshal(body)

	const requestPath = "/api/v5/account/set-leverage"
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	sign := c.sign(ts, http.MethodPost, requestPath, string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("SetLeverage new request: %w", err)
	}

	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", sign)
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("SetLeverage do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("SetLeverage http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(data, &r)
	if r.Code != "0" {
		return fmt.Errorf("SetLeverage error: code=%s msg=%s RAW=%s", r.Code, r.Msg, string(data))
	}
	return nil
}
