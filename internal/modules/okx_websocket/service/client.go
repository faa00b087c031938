package service

import (
	"net/http"
	"time"

	"alpha_bot/internal/modules/config"

	"github.com/gorilla/websocket"
)

// Client — WebSocket-стример свечей OKX. Поддерживает рыночный контекст
// (диапазоны, ATR, позиция цены), который читает координатор и риск-гейт.
type Client struct {
	cfg *config.Config

	http     *http.Client
	wsDialer *websocket.Dialer

	tracker *Tracker
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: 10 * time.Second},
		wsDialer: &websocket.Dialer{},
		tracker:  NewTracker(cfg.Symbol),
	}
}

// Tracker — доступ к рыночному контексту для других модулей.
func (c *Client) Tracker() *Tracker {
	return c.tracker
}
