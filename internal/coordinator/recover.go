package coordinator

import (
	"context"
	"fmt"

	"alpha_bot/pkg/logger"
)

// Recover — стартовая сверка с биржей. Биржа авторитетна: локальное
// состояние подгоняется под неё, затем восстанавливается защита.
func (c *Coordinator) Recover(ctx context.Context) error {
	exch, err := c.gw.FindPosition(ctx, c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("Recover: позиция на бирже: %w", err)
	}

	hadLocal := c.pos.Has()
	if err := c.pos.Reconcile(exch); err != nil {
		return fmt.Errorf("Recover: сверка: %w", err)
	}

	if !c.pos.Has() {
		if hadLocal {
			logger.Info("[coordinator] восстановление: позиция закрылась пока бот лежал")
			if c.notify != nil {
				c.notify.NotifyAlert(ctx, "%s: позиция закрыта вне бота за время простоя", c.cfg.Symbol)
			}
		} else {
			logger.Info("[coordinator] восстановление: позиций нет, чистый старт")
		}
		return nil
	}

	snap := c.pos.Snapshot()
	logger.Info("[coordinator] восстановление: живая позиция %s %s %.6f@%.4f",
		snap.Symbol, snap.Side, snap.Amount, snap.EntryPrice)

	// пока бот лежал, уровни лесенки могли исполниться
	live, err := c.gw.FetchAlgoOrders(ctx, snap.Symbol)
	if err != nil {
		return fmt.Errorf("Recover: fetch algos: %w", err)
	}
	for _, algoID := range c.ladder.DetectFills(snap, live) {
		lvl, err := c.pos.ApplyTPFill(algoID)
		if err != nil {
			logger.Warn("[coordinator] восстановление: фиксация TP %s: %v", algoID, err)
			continue
		}
		logger.Info("[coordinator] восстановление: уровень %d исполнился за время простоя", lvl.Level)
	}

	if err := c.EnsureStopOrder(ctx); err != nil {
		return fmt.Errorf("Recover: %w", err)
	}
	if err := c.ReconcileTakeProfits(ctx); err != nil {
		return fmt.Errorf("Recover: %w", err)
	}
	return nil
}
