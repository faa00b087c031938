package models

import "time"

// PersistedState — снапшот состояния на диске. Владеет им statestore,
// position.Manager держит копию и сверяет её с биржей на старте.
type PersistedState struct {
	Position      *Position `json:"position"`
	LastTradeTime string    `json:"last_trade_time"` // ISO-8601
	TotalTrades   int       `json:"total_trades"`
	Version       string    `json:"version"`
	SavedAt       string    `json:"saved_at,omitempty"`
}

type TradeType string

const (
	TradeOpen  TradeType = "open"
	TradeClose TradeType = "close"
)

// TradeRecord — строка append-only журнала сделок.
type TradeRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Type      TradeType `json:"type"`
	Symbol    string    `json:"symbol"`
	Side      PosSide   `json:"side"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	PnL       float64   `json:"pnl"`
	Reason    string    `json:"reason"`
}

// RiskState — накопленная статистика риска, сбрасывается раз в сутки.
// Мутирует только risk.Gate.
type RiskState struct {
	DailyLossAccumulated float64
	ConsecutiveLosses    int
	LastLossAt           time.Time
	Day                  string // "2006-01-02", для суточного сброса
}
