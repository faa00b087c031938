package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"alpha_bot/internal/models"
)

// FetchAlgoOrders — живые условные ордера по инструменту.
// Исполнение тейков детектится по исчезновению algoId из этого списка.
func (c *Client) FetchAlgoOrders(ctx context.Context, instID string) ([]models.AlgoOrder, error) {
	requestPath := "/api/v5/trade/orders-algo-pending?ordType=conditional&instId=" + url.QueryEscape(instID)

	resp, err := c.http.Do(c.generateRequest(ctx, http.MethodGet, requestPath, ""))
	if err != nil {
		return nil, fmt.Errorf("FetchAlgoOrders do: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("FetchAlgoOrders http %d: %s", resp.StatusCode, string(data))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			AlgoId      string `json:"algoId"`
			InstId      string `json:"instId"`
			Side        string `json:"side"`
			Sz          string `json:"sz"`
			SlTriggerPx string `json:"slTriggerPx"`
			TpTriggerPx string `json:"tpTriggerPx"`
			CTime       string `json:"cTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("FetchAlgoOrders decode: %w; body=%s", err, string(data))
	}
	if r.Code != "0" {
		return nil, fmt.Errorf("FetchAlgoOrders error: code=%s msg=%s RAW=%s", r.Code, r.Msg, string(data))
	}

	out := make([]models.AlgoOrder, 0, len(r.Data))
	for _, d := range r.Data {
		sz, _ := strconv.ParseFloat(d.Sz, 64)

		// у стопа заполнен slTriggerPx, у тейка tpTriggerPx
		trigger, _ := strconv.ParseFloat(d.SlTriggerPx, 64)
		if trigger == 0 {
			trigger, _ = strconv.ParseFloat(d.TpTriggerPx, 64)
		}

		var created time.Time
		if ms, err := strconv.ParseInt(d.CTime, 10, 64); err == nil {
			created = time.UnixMilli(ms)
		}

		out = append(out, models.AlgoOrder{
			AlgoID:       d.AlgoId,
			Symbol:       d.InstId,
			Side:         models.OrderSide(d.Side),
			Amount:       sz,
			TriggerPrice: trigger,
			CreatedAt:    created,
		})
	}
	return out, nil
}
