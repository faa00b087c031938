package runner

import (
	"context"

	"alpha_bot/internal/coordinator"
	"alpha_bot/internal/models"
	"alpha_bot/internal/modules/config"
	healthsvc "alpha_bot/internal/modules/health/service"
	okxsvc "alpha_bot/internal/modules/okx_client/service"
	wssvc "alpha_bot/internal/modules/okx_websocket/service"
	"alpha_bot/internal/position"
	"alpha_bot/internal/risk"
	"alpha_bot/internal/sizing"
	"alpha_bot/internal/statestore"
	"alpha_bot/internal/stoploss"
	"alpha_bot/internal/tpladder"
	"alpha_bot/pkg/db"
	"alpha_bot/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(cfg *config.Config) (*statestore.Store, error) {
				return statestore.New(cfg.Store)
			},
			position.New, // func(*statestore.Store) *position.Manager

			func(cfg *config.Config) *risk.Gate { return risk.NewGate(cfg.Risk) },
			func(cfg *config.Config) *sizing.Sizer { return sizing.New(cfg.Sizing) },
			func(cfg *config.Config) *stoploss.Engine { return stoploss.New(cfg.Stop) },
			func(cfg *config.Config) (*tpladder.Ladder, error) {
				return tpladder.New(cfg.TPLevels, cfg.TPToleranceBand)
			},

			// биржевой шлюз и источник рыночного контекста для координатора
			func(c *okxsvc.Client) coordinator.ExchangeGateway { return c },
			func(t *wssvc.Tracker) coordinator.MarketSource { return t },

			coordinator.New, // *coordinator.Coordinator

			// канал решений: сюда пишет внешний слой стратегии/ИИ
			func() chan models.Decision {
				return make(chan models.Decision, 8)
			},

			New, // *Runner
		),

		// журнал сделок зеркалится в postgres; файл остаётся источником правды
		fx.Invoke(func(st *statestore.Store, txm *db.PgTxManager) {
			st.SetLedgerMirror(statestore.NewPgLedger(txm))
		}),

		fx.Invoke(func(
			lc fx.Lifecycle,
			r *Runner,
			coord *coordinator.Coordinator,
			health *healthsvc.State,
		) {
			var cancel context.CancelFunc
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// стартовая сверка с биржей до приёма решений
					if err := coord.Recover(ctx); err != nil {
						return err
					}
					runCtx, c := context.WithCancel(context.Background())
					cancel = c
					go r.Start(runCtx)
					health.SetReady(true)
					logger.Info("[runner] движок готов")
					return nil
				},
				OnStop: func(ctx context.Context) error {
					health.SetReady(false)
					if cancel != nil {
						cancel()
					}
					return nil
				},
			})
		}),
	)
}
