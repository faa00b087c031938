package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"alpha_bot/internal/coordinator"
	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	healthsvc "alpha_bot/internal/modules/health/service"
	"alpha_bot/internal/position"
	"alpha_bot/internal/statestore"
	"alpha_bot/pkg/logger"
)

// Runner — главный цикл движка: принимает решения стратегии из канала,
// гоняет периодическое обслуживание позиции и держит health-флаги
// актуальными. Решения исполняются строго по одному: наехавший на
// незавершённый цикл сигнал отбрасывается, а не ставится в очередь —
// к моменту освобождения он уже протухнет.
type Runner struct {
	cfg    *config.Config
	coord  *coordinator.Coordinator
	market coordinator.MarketSource
	pos    *position.Manager
	store  *statestore.Store
	health *healthsvc.State

	decisions <-chan models.Decision
	busy      sync.Mutex
}

func New(
	cfg *config.Config,
	coord *coordinator.Coordinator,
	market coordinator.MarketSource,
	pos *position.Manager,
	store *statestore.Store,
	health *healthsvc.State,
	decisions chan models.Decision,
) *Runner {
	return &Runner{
		cfg:       cfg,
		coord:     coord,
		market:    market,
		pos:       pos,
		store:     store,
		health:    health,
		decisions: decisions,
	}
}

// Start блокируется до отмены контекста.
func (r *Runner) Start(ctx context.Context) {
	interval := r.cfg.MaintainInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("[runner] запущен: symbol=%s maintain=%s", r.cfg.Symbol, interval)

	for {
		select {
		case <-ctx.Done():
			logger.Info("[runner] остановка: %v", ctx.Err())
			return

		case d, ok := <-r.decisions:
			if !ok {
				logger.Warn("[runner] канал решений закрыт")
				return
			}
			r.onDecision(ctx, d)

		case <-ticker.C:
			r.maintain(ctx)
		}
	}
}

func (r *Runner) onDecision(ctx context.Context, d models.Decision) {
	if !r.busy.TryLock() {
		// предыдущий цикл ещё не закончился: сигнал уже неактуален
		logger.Warn("[runner] решение %s %s отброшено: предыдущий цикл ещё идёт", d.Action, d.Side)
		return
	}
	defer r.busy.Unlock()

	if d.Action == models.ActionOpen && !r.market.Warm() {
		logger.Warn("[runner] рыночный контекст не прогрет, вход %s пропущен", d.Side)
		return
	}

	switch err := r.coord.HandleDecision(ctx, d); {
	case err == nil:
	case errors.Is(err, coordinator.ErrDuplicateSuppressed):
		// штатное подавление дубля, не ошибка
		logger.Debug("[runner] решение %s %s: %v", d.Action, d.Side, err)
	default:
		logger.Error("[runner] решение %s %s: %v", d.Action, d.Side, err)
	}
	r.syncHealth(ctx)
}

func (r *Runner) maintain(ctx context.Context) {
	if !r.busy.TryLock() {
		return
	}
	defer r.busy.Unlock()

	if err := r.coord.Maintain(ctx); err != nil {
		logger.Error("[runner] maintain: %v", err)
	}
	r.health.TouchCycle(time.Now())
	r.syncHealth(ctx)
}

func (r *Runner) syncHealth(ctx context.Context) {
	r.health.SetDegradedPersist(r.store.Degraded())

	// дыра в защите не ждёт следующего тика: чиним немедленно
	if r.pos.StopGap() {
		logger.Error("[runner] СРОЧНО: позиция без стопа, внеплановая попытка восстановления")
		if err := r.coord.EnsureStopOrder(ctx); err != nil {
			logger.Error("[runner] внеплановое восстановление стопа: %v", err)
		}
	}
	r.health.SetStopGap(r.pos.StopGap())
}
