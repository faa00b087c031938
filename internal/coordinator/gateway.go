package coordinator

import (
	"context"

	"alpha_bot/internal/models"
)

// ExchangeGateway — всё, что координатору нужно от биржи.
// Боевая реализация — okx_client/service.Client; в тестах фейк.
type ExchangeGateway interface {
	PlaceMarket(ctx context.Context, instID, posSide string, size float64) (string, error)
	CloseMarket(ctx context.Context, instID, posSide string, size float64) (string, error)
	PlaceSingleAlgo(ctx context.Context, instID, posSide string, size, triggerPx float64, isTP bool) (string, error)
	CancelAlgo(ctx context.Context, instID, algoID string) error
	FetchOrder(ctx context.Context, instID, ordID string) (models.OrderResult, error)
	FetchAlgoOrders(ctx context.Context, instID string) ([]models.AlgoOrder, error)
	FetchBalance(ctx context.Context) (models.Balance, error)
	FindPosition(ctx context.Context, instID string) (*models.ExchangePosition, error)
	GetInstrumentMeta(ctx context.Context, instID string) (models.Instrument, error)
	SetLeverage(ctx context.Context, instID string, lever int) error
	LastPrice(ctx context.Context, instID string) (float64, error)
}

// MarketSource — поставщик рыночного контекста (WebSocket-трекер).
type MarketSource interface {
	Context() models.MarketContext
	Warm() bool
}

// Notifier — то, что координатор умеет рассказывать наружу.
type Notifier interface {
	NotifyOpen(ctx context.Context, p *models.Position, contracts float64)
	NotifyClose(ctx context.Context, symbol string, amount, price, pnl float64, reason string)
	NotifyStopMoved(ctx context.Context, symbol string, from, to float64)
	NotifyTPFill(ctx context.Context, symbol string, level int, amount, price float64)
	NotifyAlert(ctx context.Context, format string, args ...any)
}
