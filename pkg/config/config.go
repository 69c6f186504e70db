package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConn     int           `mapstructure:"MAX_OPEN_CONN"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Economy struct {
		SummaryRefreshHour int     `mapstructure:"SUMMARY_REFRESH_HOUR"`
		DailyCoinThreshold int64   `mapstructure:"DAILY_COIN_THRESHOLD"`
		DailyXPThreshold   int64   `mapstructure:"DAILY_XP_THRESHOLD"`
		DiminishFactor     float64 `mapstructure:"DIMINISH_FACTOR"`
		FloorPct           float64 `mapstructure:"FLOOR_PCT"`
		MaxMultiplierCap   float64 `mapstructure:"MAX_MULTIPLIER_CAP"`
		RefreshConcurrency int     `mapstructure:"REFRESH_CONCURRENCY"`
		WorkerConcurrency  int     `mapstructure:"WORKER_CONCURRENCY"`
	} `mapstructure:"ECONOMY"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			os.Exit(1)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = "economy"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Economy.SummaryRefreshHour == 0 {
		cfg.Economy.SummaryRefreshHour = 2
	}
	if cfg.Economy.DailyCoinThreshold == 0 {
		cfg.Economy.DailyCoinThreshold = 500
	}
	if cfg.Economy.DailyXPThreshold == 0 {
		cfg.Economy.DailyXPThreshold = 1000
	}
	if cfg.Economy.DiminishFactor == 0 {
		cfg.Economy.DiminishFactor = 0.5
	}
	if cfg.Economy.FloorPct == 0 {
		cfg.Economy.FloorPct = 0.1
	}
	if cfg.Economy.MaxMultiplierCap == 0 {
		cfg.Economy.MaxMultiplierCap = 2.0
	}
	if cfg.Economy.RefreshConcurrency == 0 {
		cfg.Economy.RefreshConcurrency = 4
	}
	if cfg.Economy.WorkerConcurrency == 0 {
		cfg.Economy.WorkerConcurrency = 10
	}
}
