package postgres

import (
	"context"
	"fmt"

	"alpha_bot/internal/modules/config"
	"alpha_bot/pkg/db"

	"go.uber.org/fx"
)

// Module — пул к мастеру + TxManager. Журнал сделок зеркалится в pg,
// но источником правды остаётся файл состояния.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
		),
	)
}
