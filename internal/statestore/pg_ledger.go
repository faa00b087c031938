package statestore

import (
	"context"
	"fmt"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/pkg/db"

	"github.com/jackc/pgx/v5"
)

// PgLedger — зеркало журнала сделок в postgres для аналитики.
// Файл trade_history.json остаётся источником истины.
type PgLedger struct {
	txManager db.TxManager
}

func NewPgLedger(txManager db.TxManager) *PgLedger {
	return &PgLedger{txManager: txManager}
}

const insertTradeSQL = `
INSERT INTO trade_ledger (ts, symbol, side, trade_type, amount, price, pnl, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (l *PgLedger) Mirror(rec models.TradeRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := l.txManager.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertTradeSQL,
			rec.Timestamp, rec.Symbol, rec.Side, rec.Type,
			rec.Amount, rec.Price, rec.PnL, rec.Reason)
		return err
	})
	if err != nil {
		return fmt.Errorf("PgLedger.Mirror: %w", err)
	}
	return nil
}
