package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/pkg/logger"
)

func timeframeToDuration(tf string) time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1H":
		return time.Hour
	default:
		return 0
	}
}

// StreamCandles — поток закрытых свечей OKX по одному инструменту.
// Реконнект с паузой в секунду, keepalive ping каждые 20s.
func (c *Client) StreamCandles(ctx context.Context, instID, timeframe string) <-chan models.CandleTick {
	ch := make(chan models.CandleTick)

	go func() {
		defer close(ch)

		channel := "candle" + timeframe // "1m" -> "candle1m"
		url := "wss://ws.okx.com:8443/ws/v5/business"
		tfDur := timeframeToDuration(timeframe)

		for {
			logger.Info("[WS] connect %s %s", channel, instID)
			conn, _, err := c.wsDialer.Dial(url, nil)
			if err != nil {
				logger.Warn("[WS] dial error %s: %v", channel, err)
				time.Sleep(time.Second)
				continue
			}

			sub := map[string]any{
				"op": "subscribe",
				"args": []map[string]string{
					{"channel": channel, "instId": instID},
				},
			}
			if err := conn.WriteJSON(sub); err != nil {
				logger.Warn("[WS] subscribe error %s: %v", channel, err)
				_ = conn.Close()
				continue
			}

			// keepalive ping каждые 20s — иначе OKX рвёт соединение с 4004
			stopPing := make(chan struct{})
			go func() {
				t := time.NewTicker(20 * time.Second)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-stopPing:
						return
					case <-t.C:
						_ = conn.WriteJSON(map[string]string{"op": "ping"})
					}
				}
			}()

			// основной read-loop
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					logger.Warn("[WS] read error %s: %v", channel, err)
					_ = conn.Close()
					close(stopPing)
					break
				}

				var frame struct {
					Arg struct {
						Channel string `json:"channel"`
						InstID  string `json:"instId"`
					} `json:"arg"`
					Data [][]string `json:"data"`
				}
				if err := json.Unmarshal(msg, &frame); err != nil {
					continue
				}
				if frame.Arg.Channel != channel || len(frame.Data) == 0 {
					continue
				}

				// у OKX может приходить несколько свечей в одном кадре
				for _, row := range frame.Data {
					// ожидаемый формат data:
					// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
					if len(row) < 5 {
						continue
					}

					// confirm всегда в последнем элементе, не хардкодим индекс 8
					if row[len(row)-1] != "1" {
						continue // ждём закрытую свечу
					}

					tsMs, err := strconv.ParseInt(row[0], 10, 64)
					if err != nil {
						continue
					}
					start := time.UnixMilli(tsMs)
					end := start
					if tfDur > 0 {
						end = start.Add(tfDur)
					}

					open, err1 := strconv.ParseFloat(row[1], 64)
					high, err2 := strconv.ParseFloat(row[2], 64)
					low, err3 := strconv.ParseFloat(row[3], 64)
					closep, err4 := strconv.ParseFloat(row[4], 64)
					if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
						continue
					}
					if closep <= 0 {
						continue
					}

					var vol float64
					if len(row) >= 6 {
						vol, _ = strconv.ParseFloat(row[5], 64)
					}
					var volQuote float64
					if len(row) >= 8 {
						volQuote, _ = strconv.ParseFloat(row[7], 64)
					}

					tick := models.CandleTick{
						InstID:       frame.Arg.InstID,
						Open:         open,
						High:         high,
						Low:          low,
						Close:        closep,
						Volume:       vol,
						QuoteVolume:  volQuote,
						Start:        start,
						End:          end,
						TimeframeRaw: timeframe,
					}

					select {
					case ch <- tick:
					case <-ctx.Done():
						_ = conn.Close()
						return
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			default:
				time.Sleep(time.Second)
			}
		}
	}()

	return ch
}

// Start — запуск стримера: свечи 5m кормят трекер рыночного контекста.
func (c *Client) Start(ctx context.Context) {
	ticks := c.StreamCandles(ctx, c.cfg.Symbol, "5m")
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				logger.Warn("[WS] поток свечей закрыт")
				return
			}
			c.tracker.Apply(tick)
		}
	}
}
