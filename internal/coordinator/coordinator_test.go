package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
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
)

func init() {
	logger.Init()
}

// fakeGateway — биржа в памяти для тестов координатора.
type fakeGateway struct {
	mu sync.Mutex

	price   float64
	balance models.Balance
	inst    models.Instrument

	seq        int
	orders     map[string]models.OrderResult
	algos      map[string]models.AlgoOrder
	exchPos    *models.ExchangePosition
	neverFill  bool
	failAlgo   bool
	failMarket bool

	marketCalls int
	algoCalls   int
	cancelCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		price:   100,
		balance: models.Balance{Total: 10000, Free: 10000},
		inst: models.Instrument{
			InstID: "BTC-USDT-SWAP",
			TickSz: 0.01,
			LotSz:  0.01,
			MinSz:  0.01,
			CtVal:  1,
			Lever:  50,
		},
		orders: make(map[string]models.OrderResult),
		algos:  make(map[string]models.AlgoOrder),
	}
}

func (g *fakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s-%d", prefix, g.seq)
}

func (g *fakeGateway) PlaceMarket(_ context.Context, instID, posSide string, size float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failMarket {
		return "", errors.New("sCode=51008")
	}
	g.marketCalls++
	id := g.nextID("ord")
	status := models.OrderStatusClosed
	if g.neverFill {
		status = models.OrderStatusLive
	}
	g.orders[id] = models.OrderResult{
		OrderID:      id,
		Symbol:       instID,
		Amount:       size,
		FilledAmount: size,
		AvgPrice:     g.price,
		Status:       status,
	}
	return id, nil
}

func (g *fakeGateway) CloseMarket(ctx context.Context, instID, posSide string, size float64) (string, error) {
	id, err := g.PlaceMarket(ctx, instID, posSide, size)
	if err == nil {
		g.mu.Lock()
		g.exchPos = nil
		g.mu.Unlock()
	}
	return id, err
}

func (g *fakeGateway) PlaceSingleAlgo(_ context.Context, instID, posSide string, size, triggerPx float64, isTP bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAlgo {
		return "", errors.New("sCode=51279")
	}
	g.algoCalls++
	side := models.OrderSideSell
	if posSide == string(models.PosSideShort) {
		side = models.OrderSideBuy
	}
	id := g.nextID("algo")
	g.algos[id] = models.AlgoOrder{
		AlgoID:       id,
		Symbol:       instID,
		Side:         side,
		Amount:       size,
		TriggerPrice: triggerPx,
		CreatedAt:    time.Now(),
	}
	return id, nil
}

func (g *fakeGateway) CancelAlgo(_ context.Context, instID, algoID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.algos[algoID]; !ok {
		return fmt.Errorf("cancel %s: не найден", algoID)
	}
	g.cancelCalls++
	delete(g.algos, algoID)
	return nil
}

func (g *fakeGateway) FetchOrder(_ context.Context, instID, ordID string) (models.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.orders[ordID]
	if !ok {
		return models.OrderResult{}, fmt.Errorf("ордер %s не найден", ordID)
	}
	return res, nil
}

func (g *fakeGateway) FetchAlgoOrders(_ context.Context, instID string) ([]models.AlgoOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.AlgoOrder, 0, len(g.algos))
	for _, o := range g.algos {
		out = append(out, o)
	}
	return out, nil
}

func (g *fakeGateway) FetchBalance(context.Context) (models.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *fakeGateway) FindPosition(_ context.Context, instID string) (*models.ExchangePosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exchPos == nil {
		return nil, nil
	}
	cp := *g.exchPos
	return &cp, nil
}

func (g *fakeGateway) GetInstrumentMeta(context.Context, string) (models.Instrument, error) {
	return g.inst, nil
}

func (g *fakeGateway) SetLeverage(context.Context, string, int) error { return nil }

func (g *fakeGateway) LastPrice(context.Context, string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.price, nil
}

func (g *fakeGateway) setPrice(p float64) {
	g.mu.Lock()
	g.price = p
	g.mu.Unlock()
}

// dropAlgo — биржа исполнила/сняла условный ордер без нашего участия.
func (g *fakeGateway) dropAlgo(algoID string) {
	g.mu.Lock()
	delete(g.algos, algoID)
	g.mu.Unlock()
}

// setAlgoAmount — биржа изменила объём условного ордера.
func (g *fakeGateway) setAlgoAmount(algoID string, amount float64) {
	g.mu.Lock()
	if o, ok := g.algos[algoID]; ok {
		o.Amount = amount
		g.algos[algoID] = o
	}
	g.mu.Unlock()
}

type fakeMarket struct{ mc models.MarketContext }

func (m *fakeMarket) Context() models.MarketContext { return m.mc }
func (m *fakeMarket) Warm() bool                    { return true }

type fakeNotifier struct {
	mu     sync.Mutex
	opens  int
	closes int
	moves  int
	tps    int
	alerts []string
}

func (n *fakeNotifier) NotifyOpen(context.Context, *models.Position, float64) {
	n.mu.Lock()
	n.opens++
	n.mu.Unlock()
}
func (n *fakeNotifier) NotifyClose(_ context.Context, _ string, _, _, _ float64, _ string) {
	n.mu.Lock()
	n.closes++
	n.mu.Unlock()
}
func (n *fakeNotifier) NotifyStopMoved(context.Context, string, float64, float64) {
	n.mu.Lock()
	n.moves++
	n.mu.Unlock()
}
func (n *fakeNotifier) NotifyTPFill(context.Context, string, int, float64, float64) {
	n.mu.Lock()
	n.tps++
	n.mu.Unlock()
}
func (n *fakeNotifier) NotifyAlert(_ context.Context, format string, args ...any) {
	n.mu.Lock()
	n.alerts = append(n.alerts, fmt.Sprintf(format, args...))
	n.mu.Unlock()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Symbol: "BTC-USDT-SWAP",
		Stop: config.StopConfig{
			TrailPct:          0.2,
			FixedPct:          0.5,
			MinUpdatePct:      0.1,
			MinUpdateInterval: 0,
		},
		Risk: config.RiskConfig{
			MaxDailyLoss:         100,
			MaxConsecutiveLosses: 3,
			AdmitThreshold:       0.5,
		},
		Sizing: config.SizingConfig{
			MinContracts:    0.01,
			MaxContracts:    10,
			MaxRiskPerTrade: 0.02,
		},
		Coordinator: config.CoordinatorConfig{
			FillPollInterval: time.Millisecond,
			FillTimeout:      50 * time.Millisecond,
			Leverage:         10,
		},
		Store: config.StoreConfig{
			DataDir:     t.TempDir(),
			KeepBackups: 3,
			SaveRetries: 2,
			SaveBackoff: time.Millisecond,
		},
		TPLevels: []config.TPLevel{
			{GainPct: 3.0, Ratio: 0.3},
			{GainPct: 6.0, Ratio: 0.3},
			{GainPct: 10.0, Ratio: 0.4},
		},
		TPToleranceBand: 0.002,
	}
	return cfg
}

type testRig struct {
	coord  *Coordinator
	gw     *fakeGateway
	pos    *position.Manager
	gate   *risk.Gate
	store  *statestore.Store
	notify *fakeNotifier
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	cfg := testConfig(t)

	st, err := statestore.New(cfg.Store)
	if err != nil {
		t.Fatalf("statestore.New: %v", err)
	}
	ladder, err := tpladder.New(cfg.TPLevels, cfg.TPToleranceBand)
	if err != nil {
		t.Fatalf("tpladder.New: %v", err)
	}

	gw := newFakeGateway()
	notify := &fakeNotifier{}
	pos := position.New(st)
	gate := risk.NewGate(cfg.Risk)

	coord := New(
		cfg, gw,
		&fakeMarket{mc: models.MarketContext{
			Symbol:    cfg.Symbol,
			LastPrice: 100,
			High24h:   105, Low24h: 95,
			High7d: 110, Low7d: 90,
			ATR14:                  1.0,
			Volatility:             models.VolNormal,
			CompositePricePosition: 0.4,
		}},
		pos, gate,
		sizing.New(cfg.Sizing),
		stoploss.New(cfg.Stop),
		ladder, st, notify,
	)
	return &testRig{coord: coord, gw: gw, pos: pos, gate: gate, store: st, notify: notify}
}

func goodDecision() models.Decision {
	return models.Decision{
		Symbol:     "BTC-USDT-SWAP",
		Action:     models.ActionOpen,
		Side:       models.PosSideLong,
		Confidence: 0.8,
		Strength:   0.7,
		Consensus:  0.9,
		RiskTier:   models.RiskTierMedium,
		Reason:     "тест",
	}
}

func TestOpenPositionHappyPath(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	if !r.pos.Has() {
		t.Fatal("позиция не зафиксирована")
	}
	snap := r.pos.Snapshot()
	if snap.StopOrderID == "" {
		t.Error("стоп не поставлен")
	}
	if len(snap.TakeProfitOrders) != 3 {
		t.Errorf("TP-ордеров %d, ожидалось 3", len(snap.TakeProfitOrders))
	}
	// маркет-вход + стоп + 3 тейка
	if r.gw.marketCalls != 1 {
		t.Errorf("маркет-ордеров %d, ожидался 1", r.gw.marketCalls)
	}
	if r.gw.algoCalls != 4 {
		t.Errorf("algo-ордеров %d, ожидалось 4 (стоп + 3 TP)", r.gw.algoCalls)
	}
	if r.notify.opens != 1 {
		t.Errorf("нотификаций открытия %d", r.notify.opens)
	}
	if got := len(r.store.RecentTrades(0)); got != 1 {
		t.Errorf("записей в журнале %d, ожидалась 1", got)
	}
}

func TestOpenDuplicateSuppressed(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("первое открытие: %v", err)
	}
	calls := r.gw.marketCalls

	err := r.coord.OpenPosition(ctx, goodDecision())
	if !errors.Is(err, ErrDuplicateSuppressed) {
		t.Fatalf("ожидался ErrDuplicateSuppressed, получили %v", err)
	}
	if r.gw.marketCalls != calls {
		t.Error("дубль дошёл до биржи")
	}
}

func TestOpenRiskDenied(t *testing.T) {
	r := newTestRig(t)

	// три подряд убытка — жёсткий отказ
	r.gate.Update(-10)
	r.gate.Update(-10)
	r.gate.Update(-10)

	err := r.coord.OpenPosition(context.Background(), goodDecision())
	if !errors.Is(err, ErrRiskDenied) {
		t.Fatalf("ожидался ErrRiskDenied, получили %v", err)
	}
	if r.gw.marketCalls != 0 {
		t.Error("отклонённый вход дошёл до биржи")
	}
}

func TestOpenInsufficientBalance(t *testing.T) {
	r := newTestRig(t)
	r.gw.balance = models.Balance{Total: 0.01, Free: 0.01}

	err := r.coord.OpenPosition(context.Background(), goodDecision())
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("ожидался ErrInsufficientBalance, получили %v", err)
	}
	if r.gw.marketCalls != 0 {
		t.Error("ордер отправлен без маржи")
	}
}

func TestOpenFreeLowButTotalCovers(t *testing.T) {
	r := newTestRig(t)
	// свободной маржи нет, общей хватает: пробуем с предупреждением
	r.gw.balance = models.Balance{Total: 10000, Free: 0.01, Used: 9999.99}

	if err := r.coord.OpenPosition(context.Background(), goodDecision()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if r.gw.marketCalls != 1 {
		t.Error("ордер не отправлен при достаточном общем балансе")
	}
}

func TestFillTimeoutUnknownOutcome(t *testing.T) {
	r := newTestRig(t)
	r.gw.neverFill = true

	err := r.coord.OpenPosition(context.Background(), goodDecision())
	if !errors.Is(err, ErrFillTimeout) {
		t.Fatalf("ожидался ErrFillTimeout, получили %v", err)
	}
	// исход неизвестен: повторной отправки быть не должно
	if r.gw.marketCalls != 1 {
		t.Errorf("маркет-ордеров %d, ожидался ровно 1", r.gw.marketCalls)
	}
	if r.pos.Has() {
		t.Error("неподтверждённый филл зафиксирован как позиция")
	}
}

func TestOppositeSignalClosesFirst(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("открытие long: %v", err)
	}

	d := goodDecision()
	d.Side = models.PosSideShort
	if err := r.coord.OpenPosition(ctx, d); err != nil {
		t.Fatalf("разворот: %v", err)
	}

	snap := r.pos.Snapshot()
	if snap.Side != models.PosSideShort {
		t.Fatalf("сторона после разворота %s, ожидался short", snap.Side)
	}
	if r.notify.closes != 1 || r.notify.opens != 2 {
		t.Errorf("нотификации: opens=%d closes=%d", r.notify.opens, r.notify.closes)
	}
}

func TestEnsureStopOrderIdempotentConcurrent(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.coord.EnsureStopOrder(ctx); err != nil {
				t.Errorf("EnsureStopOrder: %v", err)
			}
		}()
	}
	wg.Wait()

	// среди живых algo-ордеров стоп должен быть ровно один
	live, _ := r.gw.FetchAlgoOrders(ctx, "BTC-USDT-SWAP")
	var stops int
	for _, o := range live {
		if o.TriggerPrice < 100 { // тейки выше входа, стоп ниже
			stops++
		}
	}
	if stops != 1 {
		t.Fatalf("живых стопов %d, ожидался ровно 1", stops)
	}
}

func TestEnsureStopNeverLoosens(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	snap := r.pos.Snapshot()
	firstStop := snap.LastStopPrice

	// цена ушла вниз: пересчитанный стоп слабее, трогать нельзя
	r.gw.setPrice(95)
	if err := r.coord.EnsureStopOrder(ctx); err != nil {
		t.Fatalf("EnsureStopOrder: %v", err)
	}
	if got := r.pos.Snapshot().LastStopPrice; got != firstStop {
		t.Fatalf("стоп ослаблен: %.4f -> %.4f", firstStop, got)
	}
}

func TestTPFillThenStopTighten(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	snap := r.pos.Snapshot()
	amount0 := snap.Amount

	// цена дошла до первого уровня (+3%): биржа исполнила его
	var tp1 string
	for id, lvl := range snap.TakeProfitOrders {
		if lvl.Level == 1 {
			tp1 = id
		}
	}
	if tp1 == "" {
		t.Fatal("первый уровень не найден")
	}
	r.gw.dropAlgo(tp1)
	r.gw.setPrice(103)
	r.gw.exchPos = &models.ExchangePosition{
		Symbol: "BTC-USDT-SWAP", Side: models.PosSideLong,
		Amount: amount0 * 0.7, EntryPrice: 100, LastPrice: 103,
	}

	if err := r.coord.Maintain(ctx); err != nil {
		t.Fatalf("Maintain: %v", err)
	}

	snap = r.pos.Snapshot()
	wantAmount := amount0 * 0.7
	if diff := snap.Amount - wantAmount; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("объём после TP1 %.6f, ожидалось %.6f", snap.Amount, wantAmount)
	}
	// трейлинг от 103: 103 * 0.998 = 102.794
	if got, want := snap.LastStopPrice, 103*0.998; !approx(got, want) {
		t.Errorf("стоп %.4f, ожидалось %.4f", got, want)
	}
	if r.notify.tps != 1 {
		t.Errorf("нотификаций TP %d", r.notify.tps)
	}
	// журнал: открытие + частичное закрытие
	trades := r.store.RecentTrades(0)
	if len(trades) != 2 {
		t.Fatalf("записей в журнале %d, ожидалось 2", len(trades))
	}
	last := trades[len(trades)-1]
	if last.Type != models.TradeClose || last.PnL <= 0 {
		t.Errorf("запись TP-филла: type=%s pnl=%.4f", last.Type, last.PnL)
	}
}

func TestMaintainAdoptsLateFill(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	r.gw.neverFill = true
	err := r.coord.OpenPosition(ctx, goodDecision())
	if !errors.Is(err, ErrFillTimeout) {
		t.Fatalf("ожидался ErrFillTimeout, получили %v", err)
	}

	// маркет-ордер всё же исполнился после таймаута: позиция живёт
	// только на бирже, локального учёта нет
	r.gw.mu.Lock()
	r.gw.exchPos = &models.ExchangePosition{
		Symbol: "BTC-USDT-SWAP", Side: models.PosSideLong,
		Amount: 10, EntryPrice: 100, LastPrice: 100,
	}
	r.gw.mu.Unlock()

	if err := r.coord.Maintain(ctx); err != nil {
		t.Fatalf("Maintain: %v", err)
	}

	if !r.pos.Has() {
		t.Fatal("поздний филл не принят в учёт")
	}
	snap := r.pos.Snapshot()
	if snap.Amount != 10 || snap.EntryPrice != 100 {
		t.Errorf("принято %.4f@%.4f, ожидалось 10@100", snap.Amount, snap.EntryPrice)
	}
	if snap.StopOrderID == "" {
		t.Error("принятая позиция осталась без стопа")
	}
	if len(snap.TakeProfitOrders) != 3 {
		t.Errorf("лесенка не поставлена: %d уровней", len(snap.TakeProfitOrders))
	}
	if len(r.notify.alerts) == 0 {
		t.Error("нет алерта о неучтённой позиции")
	}
}

func TestTopUpFillDeductsOnlyOrderAmounts(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	snap := r.pos.Snapshot()
	amount0 := snap.Amount

	var tp1 string
	for id, lvl := range snap.TakeProfitOrders {
		if lvl.Level == 1 {
			tp1 = id
		}
	}
	if tp1 == "" {
		t.Fatal("первый уровень не найден")
	}

	// ордер первого уровня ужался на бирже вдвое: сверка добирает недостачу
	half := amount0 * 0.3 / 2
	r.gw.setAlgoAmount(tp1, half)
	if err := r.coord.ReconcileTakeProfits(ctx); err != nil {
		t.Fatalf("ReconcileTakeProfits: %v", err)
	}

	snap = r.pos.Snapshot()
	var lvl1IDs []string
	var lvl1Sum float64
	for id, lvl := range snap.TakeProfitOrders {
		if lvl.Level == 1 {
			lvl1IDs = append(lvl1IDs, id)
			lvl1Sum += lvl.OrderAmount
		}
	}
	if len(lvl1IDs) != 2 {
		t.Fatalf("ордеров уровня 1 %d, ожидалось 2 (частичный + добор)", len(lvl1IDs))
	}
	if want := amount0 * 0.3; !approx(lvl1Sum, want) {
		t.Fatalf("суммарный объём уровня 1 = %.6f, ожидалось %.6f", lvl1Sum, want)
	}

	// биржа исполнила оба ордера уровня: списывается доля уровня один раз
	for _, id := range lvl1IDs {
		r.gw.dropAlgo(id)
	}
	r.gw.setPrice(103)
	r.gw.mu.Lock()
	r.gw.exchPos = &models.ExchangePosition{
		Symbol: "BTC-USDT-SWAP", Side: models.PosSideLong,
		Amount: amount0 * 0.7, EntryPrice: 100, LastPrice: 103,
	}
	r.gw.mu.Unlock()

	if err := r.coord.Maintain(ctx); err != nil {
		t.Fatalf("Maintain: %v", err)
	}

	snap = r.pos.Snapshot()
	if want := amount0 * 0.7; !approx(snap.Amount, want) {
		t.Fatalf("объём после обоих филлов уровня = %.6f, ожидалось %.6f", snap.Amount, want)
	}
	// стоп пересоздан на реальный остаток, а не на недосчитанный
	live, _ := r.gw.FetchAlgoOrders(ctx, "BTC-USDT-SWAP")
	for _, o := range live {
		if o.AlgoID == snap.StopOrderID && !approx(o.Amount, amount0*0.7) {
			t.Errorf("стоп на %.6f при позиции %.6f", o.Amount, amount0*0.7)
		}
	}
}

func TestStopOutSettlement(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	snap := r.pos.Snapshot()

	// стоп сработал: ордер исчез, позиции на бирже нет
	r.gw.dropAlgo(snap.StopOrderID)
	r.gw.exchPos = nil
	r.gw.setPrice(99)

	if err := r.coord.Maintain(ctx); err != nil {
		t.Fatalf("Maintain: %v", err)
	}

	if r.pos.Has() {
		t.Fatal("позиция осталась после стоп-аута")
	}
	trades := r.store.RecentTrades(0)
	last := trades[len(trades)-1]
	if last.Type != models.TradeClose || !strings.Contains(last.Reason, "stop") {
		t.Errorf("запись стоп-аута: type=%s reason=%q", last.Type, last.Reason)
	}
	if last.PnL >= 0 {
		t.Errorf("стоп-аут long c положительным PnL: %.4f", last.PnL)
	}
	if r.gate.State().ConsecutiveLosses != 1 {
		t.Errorf("серия убытков %d, ожидалась 1", r.gate.State().ConsecutiveLosses)
	}
	// осиротевшие тейки должны быть сняты
	live, _ := r.gw.FetchAlgoOrders(ctx, "BTC-USDT-SWAP")
	if len(live) != 0 {
		t.Errorf("осталось %d живых ордеров после стоп-аута", len(live))
	}
}

func TestRecoverAdoptsExchangePosition(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	r.gw.exchPos = &models.ExchangePosition{
		Symbol: "BTC-USDT-SWAP", Side: models.PosSideLong,
		Amount: 0.5, EntryPrice: 98, LastPrice: 100,
	}

	if err := r.coord.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if !r.pos.Has() {
		t.Fatal("биржевая позиция не принята")
	}
	snap := r.pos.Snapshot()
	if snap.EntryPrice != 98 || snap.Amount != 0.5 {
		t.Errorf("принято %.4f@%.4f", snap.Amount, snap.EntryPrice)
	}
	if snap.StopOrderID == "" {
		t.Error("защита не восстановлена")
	}
	if len(snap.TakeProfitOrders) != 3 {
		t.Errorf("лесенка не восстановлена: %d уровней", len(snap.TakeProfitOrders))
	}
}

func TestRecoverClearsStaleLocalState(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	// биржа позицию не видит (закрыта за время простоя)
	r.gw.exchPos = nil
	r.gw.mu.Lock()
	r.gw.algos = make(map[string]models.AlgoOrder)
	r.gw.mu.Unlock()

	if err := r.coord.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if r.pos.Has() {
		t.Fatal("протухшее локальное состояние не очищено")
	}
	if len(r.notify.alerts) == 0 {
		t.Error("нет алерта о закрытии вне бота")
	}
}

func TestStopGapAfterFailedCreate(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	if err := r.coord.OpenPosition(ctx, goodDecision()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	snap := r.pos.Snapshot()

	// стоп пропал, а новый поставить не получается
	r.gw.dropAlgo(snap.StopOrderID)
	r.gw.exchPos = &models.ExchangePosition{
		Symbol: "BTC-USDT-SWAP", Side: models.PosSideLong,
		Amount: snap.Amount, EntryPrice: 100, LastPrice: 100,
	}
	r.gw.mu.Lock()
	r.gw.failAlgo = true
	r.gw.mu.Unlock()

	err := r.coord.EnsureStopOrder(ctx)
	if !errors.Is(err, ErrStopOrderGap) {
		t.Fatalf("ожидался ErrStopOrderGap, получили %v", err)
	}
	if !r.pos.StopGap() {
		t.Error("дыра в защите не отражена в состоянии")
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}
