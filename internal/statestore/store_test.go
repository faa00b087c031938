package statestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	"alpha_bot/pkg/logger"
)

func init() {
	logger.Init()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.StoreConfig{
		DataDir:     t.TempDir(),
		KeepBackups: 3,
		SaveRetries: 2,
		SaveBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func testPosition() *models.Position {
	return &models.Position{
		Symbol:         "BTC-USDT-SWAP",
		Side:           models.PosSideLong,
		Amount:         0.5,
		EntryPrice:     50000,
		OpenedAt:       time.Now(),
		OriginalAmount: 0.5,
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(testPosition()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// перечитываем с диска свежим Store
	s2, err := New(config.StoreConfig{DataDir: s.dataDir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st := s2.Load()
	if st.Position == nil {
		t.Fatal("позиция не восстановилась")
	}
	if st.Position.Symbol != "BTC-USDT-SWAP" || st.Position.EntryPrice != 50000 {
		t.Errorf("восстановлено не то: %+v", st.Position)
	}
	if st.TotalTrades != 1 {
		t.Errorf("TotalTrades = %d, ждали 1", st.TotalTrades)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	st := s.Load()
	if st.Position != nil {
		t.Errorf("пустой каталог должен давать пустое состояние, получили %+v", st.Position)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.stateFile, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := s.Load()
	if st.Position != nil {
		t.Error("битый файл должен давать пустое состояние, не панику")
	}
}

func TestUpdateStopOrder(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testPosition()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateStopOrder("algo-42", 49500); err != nil {
		t.Fatalf("UpdateStopOrder: %v", err)
	}
	st := s.Load()
	if st.Position.StopOrderID != "algo-42" || st.Position.LastStopPrice != 49500 {
		t.Errorf("стоп не записан: %+v", st.Position)
	}
}

func TestUpdateStopOrderWithoutPosition(t *testing.T) {
	s := newTestStore(t)
	// нет позиции — нет записи, но и не ошибка
	if err := s.UpdateStopOrder("algo-42", 49500); err != nil {
		t.Errorf("UpdateStopOrder без позиции: %v", err)
	}
}

func TestClearWritesBackup(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testPosition()); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	st := s.Load()
	if st.Position != nil {
		t.Error("после Clear позиция должна быть nil")
	}

	backups, _ := filepath.Glob(filepath.Join(s.backupDir, "state_*.json"))
	if len(backups) != 1 {
		t.Errorf("ждали 1 бэкап, нашли %d", len(backups))
	}
}

func TestBackupRotation(t *testing.T) {
	s := newTestStore(t) // keep=3
	for i := 0; i < 6; i++ {
		if err := s.Save(testPosition()); err != nil {
			t.Fatal(err)
		}
		if err := s.Clear(); err != nil {
			t.Fatal(err)
		}
	}
	backups, _ := filepath.Glob(filepath.Join(s.backupDir, "state_*.json"))
	if len(backups) > 3 {
		t.Errorf("ротация не работает: %d бэкапов при keep=3", len(backups))
	}
}

func TestNoTmpFileLeftBehind(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testPosition()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.stateFile + ".tmp"); !os.IsNotExist(err) {
		t.Error("tmp-файл остался после атомарной записи")
	}
}

func TestDegradedMode(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(testPosition()); err != nil {
		t.Fatal(err)
	}

	// ломаем каталог: файл вместо директории бэкапов не мешает, ломаем сам путь
	s.stateFile = filepath.Join(s.dataDir, "no_such_dir", "trading_state.json")

	err := s.Save(testPosition())
	if err == nil {
		t.Fatal("запись в несуществующий каталог должна вернуть ошибку")
	}
	if !s.Degraded() {
		t.Error("после отказа записи Store обязан перейти в degraded")
	}

	// состояние в памяти всё равно обновлено
	st := s.Load()
	if st.Position == nil {
		t.Error("memory-only режим должен сохранять состояние в памяти")
	}
}

func TestRecordAndRecentTrades(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		rec := models.TradeRecord{
			Type:   models.TradeOpen,
			Symbol: "BTC-USDT-SWAP",
			Side:   models.PosSideLong,
			Amount: float64(i + 1),
			Price:  50000,
		}
		if err := s.RecordTrade(rec); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
	}

	recent := s.RecentTrades(3)
	if len(recent) != 3 {
		t.Fatalf("RecentTrades(3) = %d записей", len(recent))
	}
	// свежие в конце
	if recent[2].Amount != 5 {
		t.Errorf("последняя запись должна быть amount=5, получили %v", recent[2].Amount)
	}

	all := s.RecentTrades(0)
	if len(all) != 5 {
		t.Errorf("RecentTrades(0) должен вернуть всё: %d", len(all))
	}
}

func TestCorruptHistoryPreserved(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.historyFile, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordTrade(models.TradeRecord{Type: models.TradeClose, Symbol: "X"}); err != nil {
		t.Fatalf("RecordTrade поверх битого журнала: %v", err)
	}
	corrupts, _ := filepath.Glob(s.historyFile + ".corrupt.*")
	if len(corrupts) != 1 {
		t.Errorf("битый журнал должен быть сохранён в .corrupt, нашли %d", len(corrupts))
	}
	if got := s.RecentTrades(10); len(got) != 1 {
		t.Errorf("после замены журнала ждали 1 запись, есть %d", len(got))
	}
}
