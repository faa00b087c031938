package models

import "time"

type PosSide string

const (
	PosSideLong  PosSide = "long"
	PosSideShort PosSide = "short"
)

// Opposite — сторона закрывающего ордера.
func (s PosSide) Opposite() OrderSide {
	if s == PosSideShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

func (s PosSide) Valid() bool {
	return s == PosSideLong || s == PosSideShort
}

// TPLevelInfo — один уровень лесенки тейк-профитов.
// Ratio — доля исходного объёма позиции, сумма по всем уровням = 1.0.
// OrderAmount — объём именно этого ордера в контрактах: достроенный
// ордер закрывает только недостачу, а не всю долю уровня.
type TPLevelInfo struct {
	Level       int     `json:"level"`
	Ratio       float64 `json:"ratio"`
	PriceTarget float64 `json:"price_target"`
	OrderID     string  `json:"order_id"`
	OrderAmount float64 `json:"order_amount"`
}

// FilledAmount — сколько контрактов закрыл исполнившийся ордер уровня.
// Записи старого формата без объёма ордера считаем полной долей.
func (l TPLevelInfo) FilledAmount(original float64) float64 {
	if l.OrderAmount > 0 {
		return l.OrderAmount
	}
	return original * l.Ratio
}

// StopOrderRecord — живой стоп-ордер на бирже.
// Инвариант: TriggerPrice для long не убывает, для short не растёт,
// пока позиция открыта.
type StopOrderRecord struct {
	OrderID      string    `json:"order_id"`
	TriggerPrice float64   `json:"trigger_price"`
	Side         PosSide   `json:"side"`
	CreatedAt    time.Time `json:"created_at"`
}

// Position — текущая экспозиция по одному символу.
// Мутируется только через position.Manager; остальные читают снапшот.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       PosSide   `json:"side"`
	Amount     float64   `json:"amount"`
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`

	StopOrderID   string  `json:"stop_order_id,omitempty"`
	LastStopPrice float64 `json:"last_stop_price,omitempty"`

	// тейк-профиты: algoId -> уровень
	TakeProfitOrders map[string]TPLevelInfo `json:"take_profit_orders,omitempty"`

	// уровни, уже исполненные биржей: повторно не создаются
	FilledTPLevels map[int]bool `json:"filled_tp_levels,omitempty"`

	// исходный объём — для расчёта долей частичных закрытий
	OriginalAmount float64 `json:"original_amount"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Clone — глубокая копия для снапшотов на чтение.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	if p.TakeProfitOrders != nil {
		cp.TakeProfitOrders = make(map[string]TPLevelInfo, len(p.TakeProfitOrders))
		for id, lvl := range p.TakeProfitOrders {
			cp.TakeProfitOrders[id] = lvl
		}
	}
	if p.FilledTPLevels != nil {
		cp.FilledTPLevels = make(map[int]bool, len(p.FilledTPLevels))
		for lvl, v := range p.FilledTPLevels {
			cp.FilledTPLevels[lvl] = v
		}
	}
	return &cp
}

func (p *Position) Open() bool {
	return p != nil && p.Amount > 0 && p.EntryPrice > 0
}
