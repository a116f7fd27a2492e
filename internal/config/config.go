package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`
	Risk   RiskConfig   `mapstructure:"risk"`
	Runner RunnerConfig `mapstructure:"runner"`
	Ingest IngestConfig `mapstructure:"ingest"`

	Positions PositionsConfig `mapstructure:"positions"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	StrategyScan string `mapstructure:"strategy_scan"`
}

type RiskConfig struct {
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

type RunnerConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	DryRun              bool     `mapstructure:"dry_run"`
	AccountID           string   `mapstructure:"account_id"`
	StrategyID          string   `mapstructure:"strategy_id"`
	Symbols             []string `mapstructure:"symbols"`
	BarLookback         int      `mapstructure:"bar_lookback"`
	SMAWindow           int      `mapstructure:"sma_window"`
	FlowLookbackMinutes int      `mapstructure:"flow_lookback_minutes"`
	UnitQty             string   `mapstructure:"unit_qty"`
}

type IngestConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	FeedURL string `mapstructure:"feed_url"`
}

type PositionsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxHold       time.Duration `mapstructure:"max_hold"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.strategy_scan", "@every 1m")
	v.SetDefault("risk.lock_timeout", "3s")
	v.SetDefault("runner.enabled", true)
	v.SetDefault("runner.dry_run", true)
	v.SetDefault("runner.account_id", "paper-1")
	v.SetDefault("runner.strategy_id", "naive-flow-trend-1")
	v.SetDefault("runner.symbols", []string{"SPY"})
	v.SetDefault("runner.bar_lookback", 50)
	v.SetDefault("runner.sma_window", 20)
	v.SetDefault("runner.flow_lookback_minutes", 60)
	v.SetDefault("runner.unit_qty", "1")
	v.SetDefault("ingest.enabled", false)
	v.SetDefault("ingest.feed_url", "")
	v.SetDefault("positions.enabled", true)
	v.SetDefault("positions.sweep_interval", "30s")
	v.SetDefault("positions.max_hold", "24h")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
