package position

import (
	"fmt"
	"sync"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/internal/statestore"
	"alpha_bot/pkg/logger"
)

// Manager — единственный мутатор позиции. Все изменения проходят через
// него под одним мьютексом и сразу уезжают в statestore; читатели
// получают глубокие копии.
type Manager struct {
	mu    sync.Mutex
	store *statestore.Store
	pos   *models.Position
}

func New(store *statestore.Store) *Manager {
	m := &Manager{store: store}
	st := store.Load()
	m.pos = st.Position
	return m
}

// Snapshot — копия текущей позиции, nil если позиции нет.
// Вызывающий может читать и мутировать копию без блокировок.
func (m *Manager) Snapshot() *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos.Clone()
}

func (m *Manager) Has() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos.Open()
}

// Open — зафиксировать новую позицию после подтверждённого филла.
func (m *Manager) Open(p *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(p)
}

func (m *Manager) openLocked(p *models.Position) error {
	if p == nil || !p.Open() {
		return fmt.Errorf("Manager.Open: невалидная позиция %+v", p)
	}
	if p.OriginalAmount == 0 {
		p.OriginalAmount = p.Amount
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	m.pos = p.Clone()
	return m.store.Save(m.pos)
}

// SetStop — записать актуальный стоп-ордер.
func (m *Manager) SetStop(orderID string, triggerPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return fmt.Errorf("Manager.SetStop: позиции нет")
	}
	m.pos.StopOrderID = orderID
	if triggerPrice > 0 {
		m.pos.LastStopPrice = triggerPrice
	}
	return m.store.UpdateStopOrder(orderID, triggerPrice)
}

// ClearStop — стоп исчез с биржи (исполнен или снят руками).
func (m *Manager) ClearStop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return nil
	}
	m.pos.StopOrderID = ""
	return m.store.UpdateStopOrder("", 0)
}

// SetTakeProfits — заменить карту живых TP-ордеров.
func (m *Manager) SetTakeProfits(tps map[string]models.TPLevelInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return fmt.Errorf("Manager.SetTakeProfits: позиции нет")
	}
	m.pos.TakeProfitOrders = tps
	return m.store.Save(m.pos)
}

// ApplyTPFill — уровень лесенки исполнился: уменьшить объём и убрать
// ордер из карты. Возвращает уровень для нотификации.
func (m *Manager) ApplyTPFill(algoID string) (models.TPLevelInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return models.TPLevelInfo{}, fmt.Errorf("Manager.ApplyTPFill: позиции нет")
	}
	lvl, ok := m.pos.TakeProfitOrders[algoID]
	if !ok {
		return models.TPLevelInfo{}, fmt.Errorf("Manager.ApplyTPFill: неизвестный algoId %s", algoID)
	}

	filled := lvl.FilledAmount(m.pos.OriginalAmount)
	m.pos.Amount -= filled
	if m.pos.Amount < 0 {
		logger.Warn("[position] объём после TP-филла ушёл в минус (%.8f), обнуляем", m.pos.Amount)
		m.pos.Amount = 0
	}
	delete(m.pos.TakeProfitOrders, algoID)
	if m.pos.FilledTPLevels == nil {
		m.pos.FilledTPLevels = make(map[int]bool)
	}
	m.pos.FilledTPLevels[lvl.Level] = true

	logger.Info("[position] TP уровень %d исполнен: -%.6f, остаток %.6f",
		lvl.Level, filled, m.pos.Amount)
	return lvl, m.store.Save(m.pos)
}

// ReduceAmount — частичное закрытие вне лесенки (ручное или стоп частью).
func (m *Manager) ReduceAmount(delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return fmt.Errorf("Manager.ReduceAmount: позиции нет")
	}
	m.pos.Amount -= delta
	if m.pos.Amount < 0 {
		m.pos.Amount = 0
	}
	return m.store.Save(m.pos)
}

// Close — позиция полностью закрыта, состояние очищается с бэкапом.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	m.pos = nil
	return m.store.Clear()
}

// StopGap — true, если позиция открыта, а стоп-ордера нет.
// Это окно незащищённой экспозиции, его обязан закрывать maintain-цикл.
func (m *Manager) StopGap() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos.Open() && m.pos.StopOrderID == ""
}

// Reconcile — сверка локального состояния с биржей на старте.
// Биржа авторитетна: позиция есть только там — принимаем её;
// есть только локально — считаем закрытой вне нашего контроля.
func (m *Manager) Reconcile(live *models.ExchangePosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case live == nil && m.pos == nil:
		return nil

	case live == nil && m.pos != nil:
		logger.Warn("[position] локальная позиция %s не найдена на бирже — закрыта вне бота, чистим состояние", m.pos.Symbol)
		return m.closeLocked()

	case live != nil && m.pos == nil:
		logger.Warn("[position] на бирже найдена неучтённая позиция %s %s %.6f@%.4f — принимаем",
			live.Symbol, live.Side, live.Amount, live.EntryPrice)
		return m.openLocked(&models.Position{
			Symbol:         live.Symbol,
			Side:           live.Side,
			Amount:         live.Amount,
			EntryPrice:     live.EntryPrice,
			OriginalAmount: live.Amount,
			OpenedAt:       time.Now(),
		})

	default:
		// обе стороны видят позицию: объём берём с биржи
		if m.pos.Amount != live.Amount {
			logger.Warn("[position] объём разошёлся: локально %.6f, на бирже %.6f — берём биржевой",
				m.pos.Amount, live.Amount)
			m.pos.Amount = live.Amount
			return m.store.Save(m.pos)
		}
		return nil
	}
}
