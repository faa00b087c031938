package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	"alpha_bot/pkg/logger"

	"github.com/bytedance/sonic"
)

const stateVersion = "1.0"

// Store — единственный владелец файла состояния. Все записи атомарные:
// tmp-файл + fsync + rename, чтобы краш не оставил полузаписанный стейт.
type Store struct {
	mu sync.Mutex

	dataDir    string
	stateFile  string
	backupDir  string
	keep       int
	retries    int
	backoff    time.Duration

	// кеш состояния в памяти
	state *models.PersistedState

	// журнал сделок
	historyFile string

	// после исчерпания ретраев продолжаем в памяти, но громко об этом кричим
	degraded bool

	ledgerMirror LedgerMirror
}

// LedgerMirror — необязательное зеркало журнала (pg). Ошибки зеркала не
// блокируют торговлю.
type LedgerMirror interface {
	Mirror(rec models.TradeRecord) error
}

func New(cfg config.StoreConfig) (*Store, error) {
	s := &Store{
		dataDir:     cfg.DataDir,
		stateFile:   filepath.Join(cfg.DataDir, "trading_state.json"),
		historyFile: filepath.Join(cfg.DataDir, "trade_history.json"),
		backupDir:   filepath.Join(cfg.DataDir, "backups"),
		keep:        cfg.KeepBackups,
		retries:     cfg.SaveRetries,
		backoff:     cfg.SaveBackoff,
	}
	if s.keep <= 0 {
		s.keep = 10
	}
	if s.retries <= 0 {
		s.retries = 3
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("statestore: mkdir %s: %w", s.backupDir, err)
	}
	return s, nil
}

func (s *Store) SetLedgerMirror(m LedgerMirror) {
	s.mu.Lock()
	s.ledgerMirror = m
	s.mu.Unlock()
}

// Degraded — true, если запись на диск отказала и мы живём в памяти.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Load — мягкая загрузка: битый или отсутствующий файл даёт пустое
// состояние (warning), никогда не фатал. Система обязана уметь стартовать
// с нуля и восстановиться из живого опроса биржи.
func (s *Store) Load() models.PersistedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() models.PersistedState {
	if s.state != nil {
		return *s.state
	}

	data, err := os.ReadFile(s.stateFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("[statestore] read %s: %v — стартуем с пустого состояния", s.stateFile, err)
		}
		s.state = &models.PersistedState{Version: stateVersion}
		return *s.state
	}

	var st models.PersistedState
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warn("[statestore] corrupt state file %s: %v — стартуем с пустого состояния", s.stateFile, err)
		s.state = &models.PersistedState{Version: stateVersion}
		return *s.state
	}
	if st.Version == "" {
		st.Version = stateVersion
	}

	if st.Position != nil {
		logger.Info("[statestore] восстановлена позиция: %s %s %.6f@%.4f stop=%s",
			st.Position.Symbol, st.Position.Side, st.Position.Amount,
			st.Position.EntryPrice, st.Position.StopOrderID)
	}

	s.state = &st
	return st
}

// Save — сохранить позицию (открытие или изменение объёма/стопа).
func (s *Store) Save(p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadLocked()
	cp := p.Clone()
	cp.UpdatedAt = time.Now()
	st.Position = cp
	st.LastTradeTime = time.Now().Format(time.RFC3339)
	st.TotalTrades++

	return s.writeLocked(&st)
}

// UpdateStopOrder — обновить только идентификатор и цену стопа.
func (s *Store) UpdateStopOrder(orderID string, stopPrice float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadLocked()
	if st.Position == nil {
		logger.Warn("[statestore] нет позиции, стоп-ордер %s не записан", orderID)
		return nil
	}
	st.Position.StopOrderID = orderID
	if stopPrice > 0 {
		st.Position.LastStopPrice = stopPrice
	}
	st.Position.UpdatedAt = time.Now()

	return s.writeLocked(&st)
}

// Backup — ручной бэкап текущего состояния (для statectl).
func (s *Store) Backup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadLocked()
	if st.Position == nil {
		return fmt.Errorf("statestore: нет позиции, бэкапить нечего")
	}
	s.backupLocked(&st)
	return nil
}

// Clear — деструктивная мутация: перед ней пишем бэкап.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadLocked()
	if st.Position != nil {
		s.backupLocked(&st)
	}
	st.Position = nil

	return s.writeLocked(&st)
}

// writeLocked — атомарная запись с ретраями. Исчерпали ретраи — переходим
// в memory-only режим и поднимаем операционную тревогу: crash-safety
// с этого момента не гарантируется.
func (s *Store) writeLocked(st *models.PersistedState) error {
	st.Version = stateVersion
	st.SavedAt = time.Now().Format(time.RFC3339)

	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.backoff * time.Duration(attempt))
		}
		if lastErr = s.atomicWrite(s.stateFile, st); lastErr == nil {
			s.state = st
			s.degraded = false
			return nil
		}
	}

	s.state = st
	s.degraded = true
	logger.Error("[statestore] ЗАПИСЬ СОСТОЯНИЯ ОТКАЗАЛА после %d попыток: %v — работаем в памяти, crash-safety потеряна", s.retries, lastErr)
	return fmt.Errorf("statestore: persist state: %w", lastErr)
}

func (s *Store) atomicWrite(path string, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("fsync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *Store) backupLocked(st *models.PersistedState) {
	ts := time.Now().Format("20060102_150405.000")
	backupFile := filepath.Join(s.backupDir, "state_"+ts+".json")

	if err := s.atomicWrite(backupFile, st); err != nil {
		logger.Warn("[statestore] backup failed: %v", err)
		return
	}

	// подчистим старые бэкапы, держим последние keep
	matches, err := filepath.Glob(filepath.Join(s.backupDir, "state_*.json"))
	if err != nil || len(matches) <= s.keep {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-s.keep] {
		if err := os.Remove(old); err == nil {
			logger.Debug("[statestore] удалён старый бэкап: %s", filepath.Base(old))
		}
	}
}

// Summary — краткая сводка для statectl и нотификаций.
func (s *Store) Summary() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadLocked()
	return map[string]any{
		"has_position": st.Position != nil,
		"position":     st.Position,
		"total_trades": st.TotalTrades,
		"degraded":     s.degraded,
		"data_dir":     s.dataDir,
	}
}
