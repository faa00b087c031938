package sizing

import (
	"sync"

	"alpha_bot/internal/helper"
	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	"alpha_bot/pkg/logger"
)

// потолки доли депозита по уровням риска; потолок, не цель
var tierCaps = map[models.RiskTier]float64{
	models.RiskTierVeryLow:  0.05,
	models.RiskTierLow:      0.10,
	models.RiskTierMedium:   0.20,
	models.RiskTierHigh:     0.30,
	models.RiskTierVeryHigh: 0.50,
}

// множители по режиму волатильности: тихий рынок — можно больше
var volMultipliers = map[models.VolatilityRegime]float64{
	models.VolVeryLow:  1.5,
	models.VolLow:      1.2,
	models.VolNormal:   1.0,
	models.VolHigh:     0.7,
	models.VolVeryHigh: 0.4,
}

const (
	kellyFraction    = 0.25 // четверть-Келли
	minKellyFraction = 0.10
)

// Performance — историческая статистика для Келли. Обновляется снаружи
// по закрытым сделкам.
type Performance struct {
	WinRate float64
	AvgWin  float64 // средняя прибыль, доля
	AvgLoss float64 // средний убыток, доля (положительное число)
}

// Breakdown — промежуточные значения расчёта, для логов и нотификаций.
type Breakdown struct {
	BaseValue    float64
	KellyValue   float64
	BlendedValue float64
	AfterVol     float64
	AfterSignal  float64
	FinalValue   float64
	Contracts    float64
	RiskPct      float64
}

// Sizer — превращает решение + баланс + волатильность в размер ордера.
type Sizer struct {
	mu   sync.Mutex
	cfg  config.SizingConfig
	perf Performance
}

func New(cfg config.SizingConfig) *Sizer {
	return &Sizer{
		cfg: cfg,
		// стартовые метрики до накопления собственной истории
		perf: Performance{WinRate: 0.5, AvgWin: 0.02, AvgLoss: 0.015},
	}
}

// UpdatePerformance — подкрутить метрики Келли по накопленной истории.
func (s *Sizer) UpdatePerformance(p Performance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.WinRate > 0 && p.AvgWin > 0 && p.AvgLoss > 0 {
		s.perf = p
		logger.Info("[sizing] метрики обновлены: winrate=%.1f%% avgWin=%.2f%% avgLoss=%.2f%%",
			p.WinRate*100, p.AvgWin*100, p.AvgLoss*100)
	}
}

// Size — полный конвейер расчёта размера в контрактах.
func (s *Sizer) Size(balance, price float64, d models.Decision, mc models.MarketContext, inst models.Instrument) (float64, Breakdown) {
	s.mu.Lock()
	perf := s.perf
	s.mu.Unlock()

	var b Breakdown
	if balance <= 0 || price <= 0 {
		return 0, b
	}

	tierCap, ok := tierCaps[d.RiskTier]
	if !ok {
		tierCap = tierCaps[models.RiskTierMedium]
	}

	// 1. базовый размер: половина максимального риска на сделку,
	//    но не выше потолка уровня
	baseRisk := s.cfg.MaxRiskPerTrade * 0.5
	if baseRisk > tierCap {
		baseRisk = tierCap
	}
	b.BaseValue = balance * baseRisk

	// 2. четверть-Келли по исторической статистике
	b.KellyValue = balance * kellyAllocation(perf)

	// 3. смесь базы и Келли
	b.BlendedValue = (b.BaseValue + b.KellyValue) / 2

	// 4. волатильность: режимный множитель + поправка по ATR%
	volMult, ok := volMultipliers[mc.Volatility]
	if !ok {
		volMult = 1.0
	}
	atrPct := 0.02
	if price > 0 && mc.ATR14 > 0 {
		atrPct = mc.ATR14 / price
	}
	b.AfterVol = b.BlendedValue * volMult * atrAdjustment(atrPct)

	// 5. качество сигнала
	b.AfterSignal = b.AfterVol * signalMultiplier(d.Strength, d.Confidence)

	// 6. усреднённые риск-факторы + жёсткий потолок уровня
	value := b.AfterSignal
	if ceiling := balance * tierCap; value > ceiling {
		value = ceiling
	}
	b.FinalValue = value * riskFactorAverage(price, mc.Volatility, atrPct)

	// 7. перевод в контракты и клампы биржи
	ctVal := inst.CtVal
	if ctVal <= 0 {
		ctVal = 0.01
	}
	contracts := b.FinalValue / (price * ctVal)
	if contracts < s.cfg.MinContracts {
		logger.Warn("[sizing] размер %.6f меньше минимума, поднимаем до %.2f", contracts, s.cfg.MinContracts)
		contracts = s.cfg.MinContracts
	}
	if contracts > s.cfg.MaxContracts {
		logger.Warn("[sizing] размер %.4f больше максимума, режем до %.2f", contracts, s.cfg.MaxContracts)
		contracts = s.cfg.MaxContracts
	}
	if inst.LotSz > 0 {
		if rounded := helper.RoundDownToLot(contracts, inst.LotSz); rounded >= s.cfg.MinContracts {
			contracts = rounded
		}
	}

	b.Contracts = contracts
	b.RiskPct = contracts * ctVal * price / balance

	logger.Info("[sizing] %s %s: base=$%.2f kelly=$%.2f vol=$%.2f signal=$%.2f final=$%.2f → %.4f контрактов (%.2f%% депозита)",
		d.Symbol, d.Side, b.BaseValue, b.KellyValue, b.AfterVol, b.AfterSignal, b.FinalValue,
		contracts, b.RiskPct*100)

	return contracts, b
}

// kellyAllocation — f = (p·b − q·a) / (b·a), четверть от него,
// в коридоре [minKellyFraction, kellyFraction].
func kellyAllocation(perf Performance) float64 {
	p := perf.WinRate
	q := 1 - p
	bWin := perf.AvgWin
	aLoss := perf.AvgLoss

	var f float64
	if bWin > 0 && aLoss > 0 {
		f = (p*bWin - q*aLoss) / (bWin * aLoss)
	}
	f = helper.Clamp(f, 0, 1)
	adjusted := f * kellyFraction
	if adjusted < minKellyFraction {
		adjusted = minKellyFraction
	}
	return adjusted
}

func atrAdjustment(atrPct float64) float64 {
	switch {
	case atrPct < 0.01:
		return 1.2
	case atrPct < 0.02:
		return 1.0
	case atrPct < 0.03:
		return 0.8
	default:
		return 0.6
	}
}

// signalMultiplier — 0.6·сила + 0.4·уверенность → ступенчатый множитель.
func signalMultiplier(strength, confidence float64) float64 {
	score := strength*0.6 + confidence*0.4
	switch {
	case score > 0.8:
		return 1.2
	case score > 0.6:
		return 1.0
	case score > 0.4:
		return 0.7
	default:
		return 0.4
	}
}

// riskFactorAverage — среднее независимых риск-факторов.
func riskFactorAverage(price float64, vol models.VolatilityRegime, atrPct float64) float64 {
	var factors []float64

	// дорогие активы двигаются большими долларами
	switch {
	case price > 50000:
		factors = append(factors, 0.9)
	case price > 30000:
		factors = append(factors, 1.0)
	default:
		factors = append(factors, 1.1)
	}

	switch vol {
	case models.VolVeryHigh:
		factors = append(factors, 0.7)
	case models.VolHigh:
		factors = append(factors, 0.85)
	case models.VolLow:
		factors = append(factors, 1.1)
	default:
		factors = append(factors, 1.0)
	}

	// аномальный ATR
	switch {
	case atrPct > 0.05:
		factors = append(factors, 0.7)
	case atrPct > 0.03:
		factors = append(factors, 0.85)
	}

	sum := 0.0
	for _, f := range factors {
		sum += f
	}
	return sum / float64(len(factors))
}
