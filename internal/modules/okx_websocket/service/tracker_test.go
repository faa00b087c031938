package service

import (
	"math"
	"testing"
	"time"

	"alpha_bot/internal/models"
)

func feedCandles(tr *Tracker, base time.Time, closes []float64) {
	for i, c := range closes {
		tr.Apply(models.CandleTick{
			InstID: "BTC-USDT-SWAP",
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Start:  base.Add(time.Duration(i) * 5 * time.Minute),
			End:    base.Add(time.Duration(i+1) * 5 * time.Minute),
		})
	}
}

func TestContextCold(t *testing.T) {
	tr := NewTracker("BTC-USDT-SWAP")
	mc := tr.Context()
	if mc.CompositePricePosition != 0.5 {
		t.Errorf("холодный трекер должен давать нейтральную позицию: %v", mc.CompositePricePosition)
	}
	if mc.Volatility != models.VolNormal {
		t.Errorf("холодный трекер должен давать normal: %v", mc.Volatility)
	}
	if tr.Warm() {
		t.Error("без свечей трекер не прогрет")
	}
}

func TestContextRanges(t *testing.T) {
	tr := NewTracker("BTC-USDT-SWAP")
	base := time.Now().Add(-2 * time.Hour)
	feedCandles(tr, base, []float64{100, 105, 110, 108, 103, 107, 104, 109, 102, 106,
		101, 105, 103, 107, 110})

	if !tr.Warm() {
		t.Fatal("15 свечей должно хватать для прогрева")
	}
	mc := tr.Context()
	if mc.LastPrice != 110 {
		t.Errorf("LastPrice = %v, ждали 110", mc.LastPrice)
	}
	// все свечи внутри 24h: диапазоны совпадают
	if mc.High24h != mc.High7d || mc.Low24h != mc.Low7d {
		t.Errorf("свежие свечи: диапазоны 24h и 7d должны совпадать: %+v", mc)
	}
	if want := 110 * 1.01; math.Abs(mc.High24h-want) > 1e-9 {
		t.Errorf("High24h = %v, ждали %v", mc.High24h, want)
	}
	if want := 100 * 0.99; math.Abs(mc.Low24h-want) > 1e-9 {
		t.Errorf("Low24h = %v, ждали %v", mc.Low24h, want)
	}
	// цена закрытия на самом хае диапазона — позиция близка к 1
	if mc.CompositePricePosition < 0.8 {
		t.Errorf("цена у хаёв, позиция %v", mc.CompositePricePosition)
	}
	if mc.ATR14 <= 0 {
		t.Error("ATR14 должен посчитаться")
	}
}

func TestOldCandlesEvicted(t *testing.T) {
	tr := NewTracker("BTC-USDT-SWAP")
	old := time.Now().Add(-10 * 24 * time.Hour)

	// древний выброс цены
	tr.Apply(models.CandleTick{High: 1000, Low: 900, Close: 950, Start: old, End: old.Add(5 * time.Minute)})

	base := time.Now().Add(-time.Hour)
	feedCandles(tr, base, []float64{100, 101, 102})

	mc := tr.Context()
	if mc.High7d >= 900 {
		t.Errorf("свеча старше 7d должна вылететь из окна: High7d=%v", mc.High7d)
	}
}

func TestRegimeFromATR(t *testing.T) {
	cases := []struct {
		atrPct float64
		want   models.VolatilityRegime
	}{
		{0.003, models.VolVeryLow},
		{0.007, models.VolLow},
		{0.015, models.VolNormal},
		{0.025, models.VolHigh},
		{0.05, models.VolVeryHigh},
	}
	for _, c := range cases {
		if got := regimeFromATR(c.atrPct); got != c.want {
			t.Errorf("regimeFromATR(%v) = %v, ждали %v", c.atrPct, got, c.want)
		}
	}
}
