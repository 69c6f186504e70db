package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Lekbanken/economy/pkg/config"
	"github.com/Lekbanken/economy/pkg/db"
	"github.com/Lekbanken/economy/pkg/logger"
	"github.com/Lekbanken/economy/pkg/redis"
	"github.com/Lekbanken/economy/pkg/task"
	"github.com/Lekbanken/economy/services/rollup"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Server,
		fx.Provide(
			provideSnowflakeNode,
		),
		rollup.Module,
		rollup.WorkerModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}
