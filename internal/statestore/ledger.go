package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/pkg/logger"
)

// RecordTrade — append-only журнал сделок. Файловый журнал — источник
// истины, pg-зеркало best-effort.
func (s *Store) RecordTrade(rec models.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	history := s.readHistoryLocked()
	history = append(history, rec)

	if err := s.atomicWrite(s.historyFile, history); err != nil {
		logger.Error("[statestore] запись журнала сделок: %v", err)
		return fmt.Errorf("statestore: record trade: %w", err)
	}

	if s.ledgerMirror != nil {
		if err := s.ledgerMirror.Mirror(rec); err != nil {
			logger.Warn("[statestore] pg-зеркало журнала: %v", err)
		}
	}
	return nil
}

// RecentTrades — последние n записей журнала, свежие в конце.
func (s *Store) RecentTrades(n int) []models.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.readHistoryLocked()
	if n <= 0 || n >= len(history) {
		return history
	}
	return history[len(history)-n:]
}

func (s *Store) readHistoryLocked() []models.TradeRecord {
	data, err := os.ReadFile(s.historyFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("[statestore] read %s: %v", s.historyFile, err)
		}
		return nil
	}
	var history []models.TradeRecord
	if err := json.Unmarshal(data, &history); err != nil {
		// битый журнал не роняем, но и не перетираем молча: сохраняем копию
		corrupt := s.historyFile + ".corrupt." + time.Now().Format("20060102_150405")
		if werr := os.WriteFile(corrupt, data, 0o644); werr == nil {
			logger.Error("[statestore] журнал сделок повреждён, копия в %s: %v", corrupt, err)
		}
		return nil
	}
	return history
}
