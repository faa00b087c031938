package telegram

import (
	"alpha_bot/internal/modules/config"
	"alpha_bot/internal/modules/telegram_bot/service"
	"alpha_bot/internal/runner"
	"alpha_bot/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("telegram",
		// Notifier: если TELEGRAM_* не заданы — уведомления уходят в лог
		fx.Provide(
			func(cfg *config.Config) (runner.Notifier, error) {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					logger.Warn("[telegram] токен не задан, уведомления пишутся в лог")
					return service.NewLogNotifier(), nil
				}
				t, err := service.NewTelegram(cfg)
				if err != nil {
					return nil, err
				}
				return t, nil
			},
		),
	)
}
