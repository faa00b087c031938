package models

// Action — что решил внешний слой стратегии/ИИ.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
	ActionHold  Action = "hold"
)

// RiskTier — грубый уровень риска от внешнего слоя; для сайзера это
// жёсткий потолок доли депозита, не цель.
type RiskTier string

const (
	RiskTierVeryLow  RiskTier = "very_low"
	RiskTierLow      RiskTier = "low"
	RiskTierMedium   RiskTier = "medium"
	RiskTierHigh     RiskTier = "high"
	RiskTierVeryHigh RiskTier = "very_high"
)

// Decision — вход движка исполнения. Генерация сигналов вне скоупа:
// сюда приходит уже слитое решение.
type Decision struct {
	Symbol     string
	Action     Action
	Side       PosSide
	Confidence float64 // [0,1]
	Strength   float64 // [0,1] сила сигнала
	Consensus  float64 // [0,1] согласие источников сигнала
	RiskTier   RiskTier
	Reason     string
}

// VolatilityRegime — режим волатильности рынка (вход, не вычисляем сами).
type VolatilityRegime string

const (
	VolVeryLow  VolatilityRegime = "very_low"
	VolLow      VolatilityRegime = "low"
	VolNormal   VolatilityRegime = "normal"
	VolHigh     VolatilityRegime = "high"
	VolVeryHigh VolatilityRegime = "very_high"
)

// MarketContext — рыночный контекст на момент решения.
// CompositePricePosition: 0..1, где сидит цена внутри смеси
// 24h и 7d диапазонов (высоко = дорого покупать).
type MarketContext struct {
	Symbol                string
	LastPrice             float64
	High24h               float64
	Low24h                float64
	High7d                float64
	Low7d                 float64
	ATR14                 float64
	Volatility            VolatilityRegime
	CompositePricePosition float64
}

// RiskParameters — параметры риска от внешнего адаптивного слоя.
type RiskParameters struct {
	MaxDailyLoss         float64 // USDT
	MaxConsecutiveLosses int
	MaxRiskPerTrade      float64 // доля депозита
}
