package service

import (
	"context"

	"alpha_bot/internal/models"
	"alpha_bot/pkg/logger"
)

// LogNotifier — запасной нотифайер без телеграма: все события в лог.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyOpen(_ context.Context, p *models.Position, contracts float64) {
	logger.Info("[notify] открыта позиция %s %s %.4f @ %.4f", p.Symbol, p.Side, contracts, p.EntryPrice)
}

func (n *LogNotifier) NotifyClose(_ context.Context, symbol string, amount, price, pnl float64, reason string) {
	logger.Info("[notify] закрыта позиция %s %.4f @ %.4f pnl=%+.2f (%s)", symbol, amount, price, pnl, reason)
}

func (n *LogNotifier) NotifyStopMoved(_ context.Context, symbol string, from, to float64) {
	logger.Info("[notify] %s: стоп подтянут %.4f -> %.4f", symbol, from, to)
}

func (n *LogNotifier) NotifyTPFill(_ context.Context, symbol string, level int, amount, price float64) {
	logger.Info("[notify] %s: тейк уровня %d исполнен %.4f по %.4f", symbol, level, amount, price)
}

func (n *LogNotifier) NotifyAlert(_ context.Context, format string, args ...any) {
	logger.Warn("[notify] "+format, args...)
}
