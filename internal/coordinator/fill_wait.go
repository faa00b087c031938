package coordinator

import (
	"context"
	"fmt"
	"time"

	"alpha_bot/internal/models"
	"alpha_bot/pkg/logger"
)

// waitFill — дождаться терминального состояния ордера опросом.
// Таймаут НЕ означает, что ордер не исполнится: исход неизвестен,
// вызывающий обязан трактовать это как провал без повторной отправки.
func (c *Coordinator) waitFill(ctx context.Context, ordID string) (models.OrderResult, error) {
	deadline := time.Now().Add(c.cfg.Coordinator.FillTimeout)
	ticker := time.NewTicker(c.cfg.Coordinator.FillPollInterval)
	defer ticker.Stop()

	for {
		res, err := c.gw.FetchOrder(ctx, c.cfg.Symbol, ordID)
		if err != nil {
			logger.Warn("[coordinator] опрос ордера %s: %v", ordID, err)
		} else if res.Status.Terminal() {
			switch res.Status {
			case models.OrderStatusClosed:
				return res, nil
			default:
				return res, fmt.Errorf("%w: ордер %s завершился как %s", ErrOrderRejected, ordID, res.Status)
			}
		}

		if time.Now().After(deadline) {
			return models.OrderResult{}, fmt.Errorf("%w: ордер %s не исполнился за %s",
				ErrFillTimeout, ordID, c.cfg.Coordinator.FillTimeout)
		}
		select {
		case <-ctx.Done():
			return models.OrderResult{}, fmt.Errorf("waitFill: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
