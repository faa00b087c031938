package okx_websocket

import (
	"context"

	"alpha_bot/internal/modules/okx_websocket/service"

	"go.uber.org/fx"
)

// Module поднимает стример свечей OKX и трекер рыночного контекста.
func Module() fx.Option {
	return fx.Module("okx_websocket",
		fx.Provide(
			service.NewClient, // *service.Client
			func(c *service.Client) *service.Tracker {
				return c.Tracker()
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, s *service.Client) {
			var cancel context.CancelFunc
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					runCtx, c := context.WithCancel(context.Background())
					cancel = c
					go s.Start(runCtx)
					return nil
				},
				OnStop: func(ctx context.Context) error {
					if cancel != nil {
						cancel()
					}
					return nil
				},
			})
		}),
	)
}
