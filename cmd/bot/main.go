package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"alpha_bot/internal/modules/config"
	"alpha_bot/internal/modules/health"
	"alpha_bot/internal/modules/okx_client"
	"alpha_bot/internal/modules/okx_websocket"
	"alpha_bot/internal/modules/postgres"
	telegram "alpha_bot/internal/modules/telegram_bot"
	"alpha_bot/internal/runner"
	"alpha_bot/pkg/logger"
	"alpha_bot/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}

	tracing.SetServiceName("alpha_bot")
	if host := os.Getenv("JAEGER_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("JAEGER_PORT"))
		if port == 0 {
			port = 6831
		}
		_, closer, err := tracing.InitTracer(tracing.Config{Host: host, Port: port})
		if err != nil {
			logger.Warn("трейсинг не поднялся: %v", err)
		} else {
			defer closer()
		}
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		okx_client.Module(),
		okx_websocket.Module(),
		telegram.Module(),
		health.Module(),
		runner.Module(),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	<-app.Done()
	if err := app.Stop(context.Background()); err != nil {
		log.Fatal(err)
	}
}
