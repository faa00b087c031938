package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"alpha_bot/internal/models"
)

// FetchBalance — баланс USDT торгового аккаунта.
func (c *Client) FetchBalance(ctx context.Context) (models.Balance, error) {
	const requestPath = "/api/v5/account/balance?ccy=USDT"

	resp, err := c.http.Do(c.generateRequest(ctx, http.MethodGet, requestPath, ""))
	if err != nil {
		return models.Balance{}, fmt.Errorf("FetchBalance do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return models.Balance{}, fmt.Errorf("FetchBalance http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			Details []struct {
				Ccy       string `json:"ccy"`
				Eq        string `json:"eq"`
				AvailBal  string `json:"availBal"`
				FrozenBal string `json:"frozenBal"`
			} `json:"details"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Balance{}, fmt.Errorf("FetchBalance decode: %w; body=%s", err, string(data))
	}
	if r.Code != "0" {
		return models.Balance{}, fmt.Errorf("FetchBalance error: code=%s msg=%s RAW=%s", r.Code, r.Msg, string(data))
	}

	for _, d := range r.Data {
		for _, det := range d.Details {
			if det.Ccy != "USDT" {
				continue
			}
			total, _ := strconv.ParseFloat(det.Eq, 64)
			free, _ := strconv.ParseFloat(det.AvailBal, 64)
			used, _ := strconv.ParseFloat(det.FrozenBal, 64)
			return models.Balance{Total: total, Free: free, Used: used}, nil
		}
	}
	return models.Balance{}, fmt.Errorf("FetchBalance: USDT не найден в ответе RAW=%s", string(data))
}
