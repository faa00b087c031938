package service

import (
	"math"
	"sync"
	"time"

	"alpha_bot/internal/models"
)

const (
	window7d  = 7 * 24 * time.Hour
	window24h = 24 * time.Hour
	atrPeriod = 14
)

// Tracker — накапливает закрытые свечи и отдаёт рыночный контекст:
// диапазоны 24h/7d, ATR14, режим волатильности и позицию цены в
// смеси диапазонов (24h: 55%, 7d: 45%).
type Tracker struct {
	mu      sync.RWMutex
	symbol  string
	candles []models.CandleTick // отсортированы по времени, окно 7d
}

func NewTracker(symbol string) *Tracker {
	return &Tracker{symbol: symbol}
}

// Apply — принять закрытую свечу, выкинуть устаревшие за окном 7d.
func (t *Tracker) Apply(c models.CandleTick) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.candles = append(t.candles, c)

	cutoff := c.End.Add(-window7d)
	i := 0
	for i < len(t.candles) && t.candles[i].End.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.candles = t.candles[i:]
	}
}

// Warm — достаточно ли истории для осмысленного контекста.
func (t *Tracker) Warm() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.candles) >= atrPeriod+1
}

// Context — текущий рыночный контекст. До прогрева отдаёт нейтральные
// значения (позиция цены 0.5, волатильность normal).
func (t *Tracker) Context() models.MarketContext {
	t.mu.RLock()
	defer t.mu.RUnlock()

	mc := models.MarketContext{
		Symbol:                 t.symbol,
		Volatility:             models.VolNormal,
		CompositePricePosition: 0.5,
	}
	if len(t.candles) == 0 {
		return mc
	}

	last := t.candles[len(t.candles)-1]
	mc.LastPrice = last.Close

	cutoff24 := last.End.Add(-window24h)
	mc.High7d, mc.Low7d = t.candles[0].High, t.candles[0].Low
	first24 := true
	for _, c := range t.candles {
		if c.High > mc.High7d {
			mc.High7d = c.High
		}
		if c.Low < mc.Low7d {
			mc.Low7d = c.Low
		}
		if !c.End.Before(cutoff24) {
			if first24 {
				mc.High24h, mc.Low24h = c.High, c.Low
				first24 = false
			} else {
				if c.High > mc.High24h {
					mc.High24h = c.High
				}
				if c.Low < mc.Low24h {
					mc.Low24h = c.Low
				}
			}
		}
	}

	mc.ATR14 = t.atrLocked()
	if mc.LastPrice > 0 && mc.ATR14 > 0 {
		mc.Volatility = regimeFromATR(mc.ATR14 / mc.LastPrice)
	}

	// позиция цены в диапазоне: 0 — у лоёв, 1 — у хаёв
	pos24 := 0.5
	if mc.High24h > mc.Low24h {
		pos24 = (mc.LastPrice - mc.Low24h) / (mc.High24h - mc.Low24h)
	}
	pos7 := 0.5
	if mc.High7d > mc.Low7d {
		pos7 = (mc.LastPrice - mc.Low7d) / (mc.High7d - mc.Low7d)
	}
	mc.CompositePricePosition = clamp01(pos24*0.55 + pos7*0.45)

	return mc
}

// atrLocked — ATR за atrPeriod последних свечей (среднее true range).
func (t *Tracker) atrLocked() float64 {
	n := len(t.candles)
	if n < 2 {
		return 0
	}
	from := n - atrPeriod
	if from < 1 {
		from = 1
	}
	sum := 0.0
	count := 0
	for i := from; i < n; i++ {
		cur, prev := t.candles[i], t.candles[i-1]
		tr := math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		sum += tr
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func regimeFromATR(atrPct float64) models.VolatilityRegime {
	switch {
	case atrPct < 0.005:
		return models.VolVeryLow
	case atrPct < 0.01:
		return models.VolLow
	case atrPct < 0.02:
		return models.VolNormal
	case atrPct < 0.03:
		return models.VolHigh
	default:
		return models.VolVeryHigh
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
