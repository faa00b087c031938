package models

import "time"

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus — статусы в терминах OKX (state у обычных ордеров).
type OrderStatus string

const (
	OrderStatusLive     OrderStatus = "live"
	OrderStatusPartial  OrderStatus = "partially_filled"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusExpired  OrderStatus = "expired"
)

// Terminal — ордер больше не изменится.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusClosed, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// OrderResult — что вернула биржа после создания/запроса ордера.
type OrderResult struct {
	OrderID      string
	Symbol       string
	Side         OrderSide
	Amount       float64
	Price        float64
	FilledAmount float64
	AvgPrice     float64
	Fee          float64
	Status       OrderStatus
	Timestamp    time.Time
}

// AlgoOrder — условный (стоп/тейк) ордер, отдыхающий на бирже.
type AlgoOrder struct {
	AlgoID       string
	Symbol       string
	Side         OrderSide
	Amount       float64
	TriggerPrice float64
	CreatedAt    time.Time
}

// Balance — баланс расчётной валюты.
type Balance struct {
	Total float64
	Free  float64
	Used  float64
}

// Instrument — метаданные контракта, нужные для математики размера.
type Instrument struct {
	InstID   string
	TickSz   float64
	LotSz    float64
	MinSz    float64
	MaxMktSz float64
	CtVal    float64 // номинал одного контракта в базовой валюте
	Lever    float64
}

// ExchangePosition — позиция глазами биржи (для сверки после рестарта).
type ExchangePosition struct {
	Symbol     string
	Side       PosSide
	Amount     float64
	EntryPrice float64
	LastPrice  float64
}
