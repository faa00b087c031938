package risk

import (
	"fmt"
	"sync"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	"alpha_bot/pkg/logger"
)

// Level — словесная градация риска для нотификаций и логов.
func Level(score float64) string {
	switch {
	case score <= 0.2:
		return "low"
	case score <= 0.4:
		return "moderate"
	case score <= 0.7:
		return "high"
	default:
		return "critical"
	}
}

// Gate — преторговый контроль допуска. Единственный мутатор RiskState.
// Два предохранителя жёсткие: суточный лимит убытка и серия подряд
// убыточных сделок. Сработавший предохранитель держит score=1.0 до
// сброса (новый торговый день или ручной reset).
type Gate struct {
	mu    sync.Mutex
	cfg   config.RiskConfig
	state models.RiskState
}

func NewGate(cfg config.RiskConfig) *Gate {
	return &Gate{
		cfg:   cfg,
		state: models.RiskState{Day: today()},
	}
}

func today() string {
	return time.Now().Format("2006-01-02")
}

// Admit — допуск сделки. allow=true только при score ≤ порога.
func (g *Gate) Admit(d models.Decision, mc models.MarketContext) (bool, string, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()

	// --- ЖЁСТКИЕ ОТКАЗЫ ---
	if g.state.DailyLossAccumulated >= g.cfg.MaxDailyLoss {
		reason := fmt.Sprintf("суточный убыток достиг лимита: %.2f USDT", g.state.DailyLossAccumulated)
		logger.Warn("[risk] отказ: %s", reason)
		return false, reason, 1.0
	}
	if g.state.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
		reason := fmt.Sprintf("слишком много убытков подряд: %d", g.state.ConsecutiveLosses)
		logger.Warn("[risk] отказ: %s", reason)
		return false, reason, 1.0
	}

	// --- ВЗВЕШЕННЫЙ СКОРИНГ ---
	score := 0.0
	var reasons []string

	// согласованность сигналов: разнобой источников — повод притормозить
	if d.Consensus > 0 && d.Consensus < 0.6 {
		score += 0.2
		reasons = append(reasons, fmt.Sprintf("низкая согласованность сигналов: %.2f", d.Consensus))
	}

	// позиция цены в диапазоне: покупка у хаёв / шорт у лоёв наказуемы
	if pp := mc.CompositePricePosition; pp > 0 {
		levelRisk := pp
		if d.Side == models.PosSideShort {
			levelRisk = 1 - pp
		}
		if levelRisk > 0.8 {
			score += 0.3
			reasons = append(reasons, fmt.Sprintf("вход у края диапазона: позиция цены %.0f%%", pp*100))
		} else if levelRisk > 0.6 {
			score += 0.15
			reasons = append(reasons, fmt.Sprintf("цена высоко в диапазоне: %.0f%%", pp*100))
		}
	}

	// накопленный суточный убыток подталкивает к осторожности ещё до лимита
	if g.cfg.MaxDailyLoss > 0 {
		lossRatio := g.state.DailyLossAccumulated / g.cfg.MaxDailyLoss
		if lossRatio > 0.5 {
			score += 0.2 * lossRatio
			reasons = append(reasons, fmt.Sprintf("суточный убыток %.0f%% от лимита", lossRatio*100))
		}
	}

	// недобранная серия убытков тоже весит
	if g.state.ConsecutiveLosses > 0 {
		score += 0.1 * float64(g.state.ConsecutiveLosses)
		reasons = append(reasons, fmt.Sprintf("%d убытка подряд", g.state.ConsecutiveLosses))
	}

	allow := score <= g.cfg.AdmitThreshold
	reason := "риск-оценка пройдена"
	if len(reasons) > 0 {
		reason = joinReasons(reasons)
	}
	if !allow {
		logger.Warn("[risk] отказ (score=%.2f, уровень=%s): %s", score, Level(score), reason)
	} else {
		logger.Debug("[risk] допуск (score=%.2f, уровень=%s)", score, Level(score))
	}
	return allow, reason, score
}

// Update — учёт результата закрытой сделки. Отрицательный pnl наращивает
// суточный убыток и серию; положительный обрывает серию; нулевой ничего
// не меняет.
func (g *Gate) Update(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()

	switch {
	case pnl < 0:
		g.state.DailyLossAccumulated += -pnl
		g.state.ConsecutiveLosses++
		g.state.LastLossAt = time.Now()
		logger.Info("[risk] убыток %.2f USDT, за день %.2f, серия %d",
			-pnl, g.state.DailyLossAccumulated, g.state.ConsecutiveLosses)
	case pnl > 0:
		g.state.ConsecutiveLosses = 0
	}
}

// ResetDaily — ручной или плановый сброс суточной статистики.
func (g *Gate) ResetDaily() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = models.RiskState{Day: today()}
	logger.Info("[risk] суточная статистика сброшена")
}

// rolloverLocked — автоматический сброс при переходе торгового дня.
func (g *Gate) rolloverLocked() {
	if d := today(); g.state.Day != d {
		g.state = models.RiskState{Day: d}
		logger.Info("[risk] новый торговый день %s, статистика обнулена", d)
	}
}

// State — копия текущей статистики для statectl и нотификаций.
func (g *Gate) State() models.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked()
	return g.state
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
