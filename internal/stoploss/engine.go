package stoploss

import (
	"math"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	"alpha_bot/pkg/logger"
)

// State — состояние стоп-ордера на бирже глазами движка.
type State string

const (
	StateAbsent    State = "absent"
	StateCreating  State = "creating"
	StateActive    State = "active"
	StateReplacing State = "replacing"
)

// Engine — расчёт цены стопа и контроль инварианта «только туже».
// Сам с биржей не разговаривает: даёт координатору цену и вердикт,
// двигать или нет.
type Engine struct {
	cfg config.StopConfig

	state      State
	lastUpdate time.Time
}

func New(cfg config.StopConfig) *Engine {
	return &Engine{cfg: cfg, state: StateAbsent}
}

// ComputeStop — двухветочный расчёт цены стопа.
//
// Лонг в плюсе: трейлинг за текущей ценой, 0.2% ниже.
// Лонг в нуле/минусе: фиксированный стоп от входа, 0.5% ниже, за ценой
// не ходит. Шорт зеркально.
//
// На пересечении ценой уровня входа снизу вверх стоп скачет с
// entry-ветки на current-ветку — разрыв осознанно сохранён как есть,
// поведение задокументировано тестом.
func (e *Engine) ComputeStop(entryPrice, currentPrice float64, side models.PosSide) float64 {
	trail := e.cfg.TrailPct / 100
	fixed := e.cfg.FixedPct / 100

	if side == models.PosSideShort {
		if currentPrice < entryPrice {
			return currentPrice * (1 + trail)
		}
		return entryPrice * (1 + fixed)
	}

	if currentPrice > entryPrice {
		return currentPrice * (1 - trail)
	}
	return entryPrice * (1 - fixed)
}

// ShouldUpdate — применять ли новый стоп поверх существующего.
//
// Ослабляющие обновления отбрасываются молча: для трейлинга это штатный
// и частый исход, не ошибка. Плюс два антидребезга: относительный порог
// сдвига и минимальный интервал между заменами.
func (e *Engine) ShouldUpdate(existingStop, newStop float64, side models.PosSide) bool {
	if existingStop <= 0 {
		return newStop > 0
	}

	// --- МОНОТОННОСТЬ ---
	if side == models.PosSideLong && newStop <= existingStop {
		return false
	}
	if side == models.PosSideShort && newStop >= existingStop {
		return false
	}

	// --- ПОРОГ СДВИГА ---
	delta := math.Abs(newStop-existingStop) / existingStop * 100
	if delta < e.cfg.MinUpdatePct {
		logger.Debug("[stoploss] сдвиг %.4f%% меньше порога %.2f%%, пропуск", delta, e.cfg.MinUpdatePct)
		return false
	}

	// --- ИНТЕРВАЛ ---
	if e.cfg.MinUpdateInterval > 0 && !e.lastUpdate.IsZero() {
		if since := time.Since(e.lastUpdate); since < e.cfg.MinUpdateInterval {
			logger.Debug("[stoploss] с прошлой замены %s < %s, пропуск", since, e.cfg.MinUpdateInterval)
			return false
		}
	}
	return true
}

// --- машина состояний стоп-ордера ---
// Absent → Creating → Active → (Replacing → Active | Absent)
// Replacing всегда cancel-then-create; если cancel прошёл, а create
// упал, возвращаемся в Absent и чиним на следующем цикле.

func (e *Engine) State() State { return e.state }

func (e *Engine) MarkCreating() { e.state = StateCreating }

func (e *Engine) MarkActive() {
	e.state = StateActive
	e.lastUpdate = time.Now()
}

func (e *Engine) MarkReplacing() { e.state = StateReplacing }

// MarkAbsent — стоп-ордера на бирже нет. Если мы в середине замены, это
// значит cancel прошёл, а create упал: позиция осталась без защиты,
// кричим громко, чинит следующий цикл.
func (e *Engine) MarkAbsent() {
	if e.state == StateReplacing || e.state == StateCreating {
		logger.Error("[stoploss] стоп снят, новый не встал — ПОЗИЦИЯ БЕЗ ЗАЩИТЫ, пересоздание на следующем цикле")
	}
	e.state = StateAbsent
}
