package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Lekbanken/economy/internal/httpapi"
	"github.com/Lekbanken/economy/pkg/config"
	"github.com/Lekbanken/economy/pkg/db"
	"github.com/Lekbanken/economy/pkg/health"
	"github.com/Lekbanken/economy/pkg/logger"
	"github.com/Lekbanken/economy/pkg/redis"
	"github.com/Lekbanken/economy/pkg/server"
	"github.com/Lekbanken/economy/pkg/task"
	"github.com/Lekbanken/economy/services/campaign"
	"github.com/Lekbanken/economy/services/cooldown"
	"github.com/Lekbanken/economy/services/engine"
	"github.com/Lekbanken/economy/services/ledger"
	"github.com/Lekbanken/economy/services/rollup"
	"github.com/Lekbanken/economy/services/rule"
	"github.com/Lekbanken/economy/services/softcap"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		ledger.Module,
		cooldown.Module,
		softcap.Module,
		rule.Module,
		campaign.Module,
		rollup.Module,
		rollup.SchedulerModule,
		engine.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fx.Invoke(autoMigrate),
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
	return snowflake.NewNode(1)
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&ledger.Account{},
		&ledger.Transaction{},
		&ledger.BurnSink{},
		&ledger.BurnLog{},
		&ledger.UserProgress{},
		&cooldown.Record{},
		&softcap.Config{},
		&rule.AutomationRule{},
		&campaign.Campaign{},
		&campaign.Template{},
		&rollup.DailyEarning{},
		&rollup.TenantDailySummary{},
	)
}
