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

// OpenPositions вытаскивает открытые SWAP-позиции с OKX и мапит их в
// упрощённую структуру для сверки после рестарта.
func (c *Client) OpenPositions(ctx context.Context) ([]models.ExchangePosition, error) {
	resp, err := c.http.Do(c.generateRequest(ctx, http.MethodGet, "/api/v5/account/positions", ""))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("OpenPositions http %d: %s", resp.StatusCode, string(rb))
	}

	var respData struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			InstId  string `json:"instId"`
			PosSide string `json:"posSide"`
			Pos     string `json:"pos"`
			AvgPx   string `json:"avgPx"`
			Last    string `json:"last"`
			MarkPx  string `json:"markPx"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rb, &respData); err != nil {
		return nil, err
	}
	if respData.Code != "0" {
		return nil, fmt.Errorf("okx positions error: code=%s msg=%s", respData.Code, respData.Msg)
	}

	res := make([]models.ExchangePosition, 0, len(respData.Data))
	for _, d := range respData.Data {
		// размер позиции (контракты)
		pos, _ := strconv.ParseFloat(d.Pos, 64)
		if pos == 0 {
			continue
		}
		// средняя цена входа
		avgPx, _ := strconv.ParseFloat(d.AvgPx, 64)
		// последнее значение (last или mark)
		lastPx, _ := strconv.ParseFloat(d.Last, 64)
		if lastPx == 0 {
			lastPx, _ = strconv.ParseFloat(d.MarkPx, 64)
		}

		side := models.PosSideLong
		if d.PosSide == "short" {
			side = models.PosSideShort
		}

		res = append(res, models.ExchangePosition{
			Symbol:     d.InstId,
			Side:       side,
			Amount:     pos,
			EntryPrice: avgPx,
			LastPrice:  lastPx,
		})
	}
	return res, nil
}

// FindPosition — позиция по конкретному инструменту, nil если нет.
func (c *Client) FindPosition(ctx context.Context, instID string) (*models.ExchangePosition, error) {
	positions, err := c.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindPosition: %w", err)
	}
	for i := range positions {
		if positions[i].Symbol == instID {
			return &positions[i], nil
		}
	}
	return nil, nil
}
