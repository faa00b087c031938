package coordinator

import (
	"context"
	"fmt"

	"alpha_bot/internal/models"
	"alpha_bot/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// Maintain — периодический цикл обслуживания открытой позиции:
// фиксация TP-филлов, обнаружение сработавшего стопа, подтяжка
// трейлинга, достройка лесенки. Безопасен без позиции.
func (c *Coordinator) Maintain(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "coordinator.Maintain")
	defer span.Finish()

	if !c.pos.Has() {
		// маркет-ордер мог исполниться уже после таймаута ожидания:
		// сверяемся с биржей, неучтённую позицию принимаем как свою
		exch, err := c.gw.FindPosition(ctx, c.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("Maintain: сверка без локальной позиции: %w", err)
		}
		if exch == nil {
			return nil
		}
		if err := c.pos.Reconcile(exch); err != nil {
			return fmt.Errorf("Maintain: принятие позиции с биржи: %w", err)
		}
		if c.notify != nil {
			c.notify.NotifyAlert(ctx, "%s: на бирже найдена неучтённая позиция %.6f@%.4f — принята, ставим защиту",
				exch.Symbol, exch.Amount, exch.EntryPrice)
		}
	}
	snap := c.pos.Snapshot()

	live, err := c.gw.FetchAlgoOrders(ctx, snap.Symbol)
	if err != nil {
		return fmt.Errorf("Maintain: fetch algos: %w", err)
	}

	// --- TP-ФИЛЛЫ ---
	// исчезнувший из живых algoId считаем исполненным уровнем
	for _, algoID := range c.ladder.DetectFills(snap, live) {
		lvl, err := c.pos.ApplyTPFill(algoID)
		if err != nil {
			logger.Warn("[coordinator] фиксация TP %s: %v", algoID, err)
			continue
		}
		filled := lvl.FilledAmount(snap.OriginalAmount)
		pnl := tpPnL(snap, lvl, filled, c.ctVal(ctx))
		c.riskG.Update(pnl)
		_ = c.store.RecordTrade(models.TradeRecord{
			Type:   models.TradeClose,
			Symbol: snap.Symbol,
			Side:   snap.Side,
			Amount: filled,
			Price:  lvl.PriceTarget,
			PnL:    pnl,
			Reason: fmt.Sprintf("take-profit уровень %d", lvl.Level),
		})
		if c.notify != nil {
			c.notify.NotifyTPFill(ctx, snap.Symbol, lvl.Level, filled, lvl.PriceTarget)
		}
	}
	snap = c.pos.Snapshot() // объём мог уменьшиться

	// --- СТОП-АУТ / ВНЕШНЕЕ ЗАКРЫТИЕ ---
	// стоп исчез из живых и позиции на бирже нет — нас закрыло
	if snap != nil && snap.StopOrderID != "" && !algoAlive(live, snap.StopOrderID) {
		exch, err := c.gw.FindPosition(ctx, snap.Symbol)
		if err != nil {
			return fmt.Errorf("Maintain: сверка после пропажи стопа: %w", err)
		}
		if exch == nil {
			return c.settleStopOut(ctx, snap)
		}
		// позиция жива, а стоп пропал: дыра в защите, чиним ниже
		logger.Warn("[coordinator] стоп %s пропал при живой позиции", snap.StopOrderID)
		_ = c.pos.ClearStop()
		c.stop.MarkAbsent()
	}

	if !c.pos.Has() {
		return nil
	}

	// --- ЗАЩИТА ---
	if err := c.EnsureStopOrder(ctx); err != nil {
		logger.Error("[coordinator] maintain: стоп: %v", err)
	}
	if err := c.ReconcileTakeProfits(ctx); err != nil {
		logger.Error("[coordinator] maintain: тейки: %v", err)
	}
	return nil
}

// settleStopOut — позиция закрыта стопом вне нашей инициативы:
// проводим закрытие по последней известной цене стопа.
func (c *Coordinator) settleStopOut(ctx context.Context, snap *models.Position) error {
	exitPx := snap.LastStopPrice
	if exitPx <= 0 {
		exitPx, _ = c.gw.LastPrice(ctx, snap.Symbol)
	}
	pnl := pnlUSDT(snap, exitPx, c.ctVal(ctx))
	c.riskG.Update(pnl)

	_ = c.store.RecordTrade(models.TradeRecord{
		Type:   models.TradeClose,
		Symbol: snap.Symbol,
		Side:   snap.Side,
		Amount: snap.Amount,
		Price:  exitPx,
		PnL:    pnl,
		Reason: "stop-loss",
	})

	// уцелевшие TP-ордера больше не нужны
	live, err := c.gw.FetchAlgoOrders(ctx, snap.Symbol)
	if err == nil {
		for _, o := range live {
			if err := c.gw.CancelAlgo(ctx, snap.Symbol, o.AlgoID); err != nil {
				logger.Warn("[coordinator] снятие осиротевшего TP %s: %v", o.AlgoID, err)
			}
		}
	}

	if err := c.pos.Close(); err != nil {
		return fmt.Errorf("settleStopOut: очистка состояния: %w", err)
	}
	c.stop.MarkAbsent()

	if c.notify != nil {
		c.notify.NotifyClose(ctx, snap.Symbol, snap.Amount, exitPx, pnl, "сработал стоп-лосс")
	}
	logger.Info("[coordinator] стоп-аут %s %.4f@%.4f pnl=%+.2f", snap.Symbol, snap.Amount, exitPx, pnl)
	return nil
}

// tpPnL — реализованный PnL частичного закрытия уровнем лесенки.
func tpPnL(p *models.Position, lvl models.TPLevelInfo, filled, ctVal float64) float64 {
	if ctVal <= 0 {
		ctVal = 1
	}
	diff := lvl.PriceTarget - p.EntryPrice
	if p.Side == models.PosSideShort {
		diff = -diff
	}
	return diff * filled * ctVal
}

func algoAlive(live []models.AlgoOrder, algoID string) bool {
	for _, o := range live {
		if o.AlgoID == algoID {
			return true
		}
	}
	return false
}
