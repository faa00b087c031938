package okx_client

import (
	"alpha_bot/internal/modules/okx_client/service"

	"go.uber.org/fx"
)

// Module — REST-клиент OKX v5.
func Module() fx.Option {
	return fx.Module("okx_client",
		fx.Provide(
			service.NewClient, // *service.Client
		),
	)
}
