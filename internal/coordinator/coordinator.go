package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	"alpha_bot/internal/position"
	"alpha_bot/internal/risk"
	"alpha_bot/internal/sizing"
	"alpha_bot/internal/statestore"
	"alpha_bot/internal/stoploss"
	"alpha_bot/internal/tpladder"
	"alpha_bot/pkg/logger"

	"github.com/opentracing/opentracing-go"
)

// Coordinator — ядро исполнения: превращает решение в безопасные
// идемпотентные ордера и ведёт жизненный цикл позиции.
type Coordinator struct {
	cfg    *config.Config
	gw     ExchangeGateway
	market MarketSource

	pos    *position.Manager
	riskG  *risk.Gate
	sizer  *sizing.Sizer
	stop   *stoploss.Engine
	ladder *tpladder.Ladder
	store  *statestore.Store

	notify Notifier

	locks *keyedLocks

	// кеш метаданных инструмента, наполняется лениво;
	// читатели ходят под разными ролевыми замками, поэтому свой мьютекс
	instMu  sync.Mutex
	inst    models.Instrument
	instSet bool
}

func New(
	cfg *config.Config,
	gw ExchangeGateway,
	market MarketSource,
	pos *position.Manager,
	riskG *risk.Gate,
	sizer *sizing.Sizer,
	stop *stoploss.Engine,
	ladder *tpladder.Ladder,
	store *statestore.Store,
	notify Notifier,
) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		gw:     gw,
		market: market,
		pos:    pos,
		riskG:  riskG,
		sizer:  sizer,
		stop:   stop,
		ladder: ladder,
		store:  store,
		notify: notify,
		locks:  newKeyedLocks(),
	}
}

func (c *Coordinator) instrument(ctx context.Context) (models.Instrument, error) {
	c.instMu.Lock()
	defer c.instMu.Unlock()
	if c.instSet {
		return c.inst, nil
	}
	inst, err := c.gw.GetInstrumentMeta(ctx, c.cfg.Symbol)
	if err != nil {
		return models.Instrument{}, fmt.Errorf("instrument meta: %w", err)
	}
	c.inst = inst
	c.instSet = true
	return inst, nil
}

// ctVal — номинал контракта из кеша метаданных, best-effort: при
// недоступной бирже PnL считается как для номинала 1.
func (c *Coordinator) ctVal(ctx context.Context) float64 {
	inst, err := c.instrument(ctx)
	if err != nil {
		logger.Warn("[coordinator] метаданные инструмента недоступны: %v", err)
		return 1
	}
	return inst.CtVal
}

// HandleDecision — одна точка входа решения стратегии.
func (c *Coordinator) HandleDecision(ctx context.Context, d models.Decision) error {
	switch d.Action {
	case models.ActionHold:
		return nil
	case models.ActionClose:
		return c.ClosePosition(ctx, "сигнал на закрытие")
	case models.ActionOpen:
		return c.OpenPosition(ctx, d)
	default:
		return fmt.Errorf("HandleDecision: неизвестное действие %q", d.Action)
	}
}

// OpenPosition — открыть позицию по решению: допуск → размер → маркет →
// ожидание филла → защитные ордера → персист.
func (c *Coordinator) OpenPosition(ctx context.Context, d models.Decision) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "coordinator.OpenPosition")
	defer span.Finish()
	span.SetTag("symbol", d.Symbol)
	span.SetTag("side", string(d.Side))

	if !d.Side.Valid() {
		return fmt.Errorf("OpenPosition: невалидная сторона %q", d.Side)
	}

	unlock := c.locks.lock(OrderKey{Symbol: c.cfg.Symbol, Role: RoleEntry})
	defer unlock()

	// --- ДВОЙНАЯ ПРОВЕРКА ПОД ЗАМКОМ ---
	if c.pos.Has() {
		snap := c.pos.Snapshot()
		if snap.Side == d.Side {
			logger.Debug("[coordinator] позиция %s %s уже открыта, дубль подавлен", snap.Symbol, snap.Side)
			return ErrDuplicateSuppressed
		}
		// противоположный сигнал: сначала закрываем текущую
		logger.Info("[coordinator] противоположный сигнал %s при открытой %s — закрываем", d.Side, snap.Side)
		if err := c.closeLocked(ctx, "противоположный сигнал"); err != nil {
			return fmt.Errorf("OpenPosition: закрытие перед разворотом: %w", err)
		}
	}

	mc := c.market.Context()

	// --- РИСК-ГЕЙТ ---
	allow, reason, score := c.riskG.Admit(d, mc)
	if !allow {
		logger.Warn("[coordinator] вход %s %s отклонён (score=%.2f): %s", d.Symbol, d.Side, score, reason)
		return fmt.Errorf("%w: %s", ErrRiskDenied, reason)
	}

	inst, err := c.instrument(ctx)
	if err != nil {
		return fmt.Errorf("OpenPosition: %w", err)
	}

	price, err := c.gw.LastPrice(ctx, c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("OpenPosition: last price: %w", err)
	}

	balance, err := c.gw.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("OpenPosition: balance: %w", err)
	}

	contracts, _ := c.sizer.Size(balance.Total, price, d, mc, inst)
	if contracts <= 0 {
		return fmt.Errorf("OpenPosition: нулевой размер")
	}

	// --- ПРОВЕРКА МАРЖИ ---
	// требуемая маржа = номинал / плечо; биржа — финальный арбитр
	required := contracts * inst.CtVal * price / float64(c.cfg.Coordinator.Leverage)
	switch {
	case balance.Total < required:
		logger.Error("[coordinator] маржи нет совсем: нужно %.2f, всего %.2f", required, balance.Total)
		return fmt.Errorf("%w: нужно %.2f USDT, всего %.2f", ErrInsufficientBalance, required, balance.Total)
	case balance.Free < required:
		logger.Warn("[coordinator] свободной маржи мало (нужно %.2f, свободно %.2f) — пробуем, решит биржа",
			required, balance.Free)
	}

	if err := c.gw.SetLeverage(ctx, c.cfg.Symbol, c.cfg.Coordinator.Leverage); err != nil {
		// не смертельно: плечо могло быть выставлено раньше
		logger.Warn("[coordinator] set leverage: %v", err)
	}

	// --- МАРКЕТ-ОРДЕР ---
	ordID, err := c.gw.PlaceMarket(ctx, c.cfg.Symbol, string(d.Side), contracts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}

	fill, err := c.waitFill(ctx, ordID)
	if err != nil {
		return fmt.Errorf("OpenPosition: %w", err)
	}

	entry := fill.AvgPrice
	if entry <= 0 {
		entry = price
	}
	amount := fill.FilledAmount
	if amount <= 0 {
		amount = contracts
	}

	p := &models.Position{
		Symbol:         c.cfg.Symbol,
		Side:           d.Side,
		Amount:         amount,
		EntryPrice:     entry,
		OriginalAmount: amount,
		OpenedAt:       time.Now(),
	}
	if err := c.pos.Open(p); err != nil {
		return fmt.Errorf("OpenPosition: персист: %w", err)
	}

	_ = c.store.RecordTrade(models.TradeRecord{
		Type:   models.TradeOpen,
		Symbol: p.Symbol,
		Side:   p.Side,
		Amount: amount,
		Price:  entry,
		Reason: d.Reason,
	})

	if c.notify != nil {
		c.notify.NotifyOpen(ctx, p, amount)
	}
	logger.Info("[coordinator] открыта %s %s %.4f@%.4f (ордер %s)", p.Symbol, p.Side, amount, entry, ordID)

	// --- ЗАЩИТНЫЕ ОРДЕРА ---
	// ошибки защиты не откатывают вход: позиция уже есть, чиним циклом
	if err := c.EnsureStopOrder(ctx); err != nil {
		logger.Error("[coordinator] стоп после входа не встал: %v", err)
		if c.notify != nil {
			c.notify.NotifyAlert(ctx, "%s: позиция открыта, стоп НЕ поставлен: %v", p.Symbol, err)
		}
	}
	if err := c.ReconcileTakeProfits(ctx); err != nil {
		logger.Error("[coordinator] лесенка тейков после входа: %v", err)
	}
	return nil
}

// ClosePosition — полное закрытие маркетом с уборкой защитных ордеров.
func (c *Coordinator) ClosePosition(ctx context.Context, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "coordinator.ClosePosition")
	defer span.Finish()

	unlock := c.locks.lock(OrderKey{Symbol: c.cfg.Symbol, Role: RoleEntry})
	defer unlock()
	return c.closeLocked(ctx, reason)
}

func (c *Coordinator) closeLocked(ctx context.Context, reason string) error {
	if !c.pos.Has() {
		logger.Debug("[coordinator] закрывать нечего, дубль подавлен")
		return ErrDuplicateSuppressed
	}
	snap := c.pos.Snapshot()

	// снимаем защитные ордера; провал снятия не блокирует закрытие
	live, err := c.gw.FetchAlgoOrders(ctx, snap.Symbol)
	if err != nil {
		logger.Warn("[coordinator] fetch algos перед закрытием: %v", err)
	}
	for _, o := range live {
		if err := c.gw.CancelAlgo(ctx, snap.Symbol, o.AlgoID); err != nil {
			logger.Warn("[coordinator] снятие %s: %v", o.AlgoID, err)
		}
	}

	ordID, err := c.gw.CloseMarket(ctx, snap.Symbol, string(snap.Side), snap.Amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}

	fill, err := c.waitFill(ctx, ordID)
	if err != nil {
		return fmt.Errorf("closeLocked: %w", err)
	}

	exitPx := fill.AvgPrice
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
		Reason: reason,
	})

	if err := c.pos.Close(); err != nil {
		return fmt.Errorf("closeLocked: очистка состояния: %w", err)
	}
	c.stop.MarkAbsent()

	if c.notify != nil {
		c.notify.NotifyClose(ctx, snap.Symbol, snap.Amount, exitPx, pnl, reason)
	}
	logger.Info("[coordinator] закрыта %s %s %.4f@%.4f pnl=%+.2f (%s)",
		snap.Symbol, snap.Side, snap.Amount, exitPx, pnl, reason)
	return nil
}

// pnlUSDT — реализованный PnL закрытия в USDT.
func pnlUSDT(p *models.Position, exitPx, ctVal float64) float64 {
	if ctVal <= 0 {
		ctVal = 1
	}
	diff := exitPx - p.EntryPrice
	if p.Side == models.PosSideShort {
		diff = -diff
	}
	return diff * p.Amount * ctVal
}

// EnsureStopOrder — гарантировать ровно один актуальный стоп на бирже.
// Идемпотентен: сколько ни зови параллельно, стоп один.
func (c *Coordinator) EnsureStopOrder(ctx context.Context) error {
	unlock := c.locks.lock(OrderKey{Symbol: c.cfg.Symbol, Role: RoleStop})
	defer unlock()

	if !c.pos.Has() {
		return nil
	}
	snap := c.pos.Snapshot()

	price, err := c.gw.LastPrice(ctx, snap.Symbol)
	if err != nil {
		return fmt.Errorf("EnsureStopOrder: last price: %w", err)
	}
	want := c.stop.ComputeStop(snap.EntryPrice, price, snap.Side)

	// --- ПЕРЕПРОВЕРКА ПО ЖИВЫМ ОРДЕРАМ ---
	live, err := c.gw.FetchAlgoOrders(ctx, snap.Symbol)
	if err != nil {
		return fmt.Errorf("EnsureStopOrder: fetch algos: %w", err)
	}
	existing := findStopOrder(snap, live, price)

	if existing == nil {
		// стопа нет — ставим с нуля
		if snap.StopOrderID != "" {
			// наш стоп исчез без нашего ведома: либо сработал, либо снят руками
			logger.Warn("[coordinator] стоп %s исчез с биржи", snap.StopOrderID)
			_ = c.pos.ClearStop()
		}
		c.stop.MarkCreating()
		algoID, err := c.gw.PlaceSingleAlgo(ctx, snap.Symbol, string(snap.Side), snap.Amount, want, false)
		if err != nil {
			c.stop.MarkAbsent()
			return fmt.Errorf("%w: %v", ErrStopOrderGap, err)
		}
		c.stop.MarkActive()
		if err := c.pos.SetStop(algoID, want); err != nil {
			return fmt.Errorf("EnsureStopOrder: персист: %w", err)
		}
		logger.Info("[coordinator] стоп поставлен: %s @ %.4f", algoID, want)
		return nil
	}

	// стоп есть: двигаем только если движок разрешает (ужесточение,
	// порог, интервал); ослабление — молча пропускаем
	if !c.stop.ShouldUpdate(existing.TriggerPrice, want, snap.Side) {
		if snap.StopOrderID != existing.AlgoID {
			// чужой для нашего состояния, но валидный стоп — принимаем
			_ = c.pos.SetStop(existing.AlgoID, existing.TriggerPrice)
		}
		return nil
	}

	// --- ЗАМЕНА: cancel-then-create ---
	c.stop.MarkReplacing()
	if err := c.gw.CancelAlgo(ctx, snap.Symbol, existing.AlgoID); err != nil {
		c.stop.MarkActive() // старый стоп жив, позиция защищена
		return fmt.Errorf("EnsureStopOrder: снятие %s: %w", existing.AlgoID, err)
	}
	algoID, err := c.gw.PlaceSingleAlgo(ctx, snap.Symbol, string(snap.Side), snap.Amount, want, false)
	if err != nil {
		// cancel прошёл, create упал: позиция без защиты
		c.stop.MarkAbsent()
		_ = c.pos.ClearStop()
		if c.notify != nil {
			c.notify.NotifyAlert(ctx, "%s: стоп снят, новый не встал — позиция без защиты", snap.Symbol)
		}
		return fmt.Errorf("%w: %v", ErrStopOrderGap, err)
	}
	c.stop.MarkActive()
	if err := c.pos.SetStop(algoID, want); err != nil {
		return fmt.Errorf("EnsureStopOrder: персист: %w", err)
	}
	if c.notify != nil {
		c.notify.NotifyStopMoved(ctx, snap.Symbol, existing.TriggerPrice, want)
	}
	logger.Info("[coordinator] стоп подтянут %.4f → %.4f (%s)", existing.TriggerPrice, want, algoID)
	return nil
}

// findStopOrder — наш стоп среди живых algo-ордеров: по известному
// algoId, либо по семантике (закрывающая сторона, триггер с убыточной
// стороны цены).
func findStopOrder(p *models.Position, live []models.AlgoOrder, lastPx float64) *models.AlgoOrder {
	closeSide := p.Side.Opposite()
	for i := range live {
		o := &live[i]
		if o.AlgoID == p.StopOrderID {
			return o
		}
	}
	for i := range live {
		o := &live[i]
		if o.Side != closeSide || o.TriggerPrice <= 0 {
			continue
		}
		if p.Side == models.PosSideLong && o.TriggerPrice < lastPx {
			return o
		}
		if p.Side == models.PosSideShort && o.TriggerPrice > lastPx {
			return o
		}
	}
	return nil
}

// ReconcileTakeProfits — привести живые TP-ордера к конфигу лесенки.
// Каждый уровень независим: провал одного не рушит остальные.
func (c *Coordinator) ReconcileTakeProfits(ctx context.Context) error {
	unlock := c.locks.lock(OrderKey{Symbol: c.cfg.Symbol, Role: RoleTP})
	defer unlock()

	if !c.pos.Has() {
		return nil
	}
	snap := c.pos.Snapshot()

	inst, err := c.instrument(ctx)
	if err != nil {
		return fmt.Errorf("ReconcileTakeProfits: %w", err)
	}

	all, err := c.gw.FetchAlgoOrders(ctx, snap.Symbol)
	if err != nil {
		return fmt.Errorf("ReconcileTakeProfits: fetch algos: %w", err)
	}
	// стоп-ордер лесенке не предъявляем: подтянутый вплотную к уровню
	// стоп иначе сойдёт за тейк
	live := all[:0:0]
	for _, o := range all {
		if o.AlgoID == snap.StopOrderID {
			continue
		}
		live = append(live, o)
	}

	tps := snap.TakeProfitOrders
	if tps == nil {
		tps = make(map[string]models.TPLevelInfo)
	}

	// объём живого ордера авторитетен: ужатый биржей ордер спишет при
	// филле только свой остаток, недостачу доберёт сверка ниже
	for _, o := range live {
		if lvl, ok := tps[o.AlgoID]; ok && lvl.OrderAmount != o.Amount {
			lvl.OrderAmount = o.Amount
			tps[o.AlgoID] = lvl
		}
	}

	// дубли убираем до сверки; снятый ордер исчезает и из карты,
	// иначе следующий цикл примет его пропажу за филл
	cancelled := make(map[string]bool)
	for _, algoID := range c.ladder.Duplicates(snap, live) {
		if err := c.gw.CancelAlgo(ctx, snap.Symbol, algoID); err != nil {
			logger.Warn("[coordinator] снятие дубля %s: %v", algoID, err)
			continue
		}
		cancelled[algoID] = true
		delete(tps, algoID)
	}
	if len(cancelled) > 0 {
		alive := live[:0]
		for _, o := range live {
			if !cancelled[o.AlgoID] {
				alive = append(alive, o)
			}
		}
		live = alive
	}

	var failed int
	for _, a := range c.ladder.Reconcile(snap, live, inst) {
		switch a.Kind {
		case tpladder.ActionSkip:
			continue
		case tpladder.ActionCreate, tpladder.ActionTopUp:
			algoID, err := c.gw.PlaceSingleAlgo(ctx, snap.Symbol, string(snap.Side), a.Amount, a.TriggerPrice, true)
			if err != nil {
				// уровень независим: лог и дальше
				failed++
				logger.Error("[coordinator] TP уровень %d не встал: %v", a.Level, err)
				continue
			}
			tps[algoID] = models.TPLevelInfo{
				Level:       a.Level,
				Ratio:       a.Ratio,
				PriceTarget: a.TriggerPrice,
				OrderID:     algoID,
				OrderAmount: a.Amount,
			}
			logger.Info("[coordinator] TP уровень %d: %s %.4f @ %.4f", a.Level, algoID, a.Amount, a.TriggerPrice)
		}
	}

	if err := c.pos.SetTakeProfits(tps); err != nil {
		return fmt.Errorf("ReconcileTakeProfits: персист: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("ReconcileTakeProfits: %d уровней не встало", failed)
	}
	return nil
}
