// Package config loads the orchestrator's runtime configuration from
// environment variables and an optional config file via viper.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

// AdvisorProviderConfig configures one LLM advisory provider.
type AdvisorProviderConfig struct {
	Name     string `mapstructure:"name"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	Priority int    `mapstructure:"priority"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// SchedulerConfig configures the outer tick loop.
type SchedulerConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	MaxTradesPerDay   int           `mapstructure:"max_trades_per_day"`
	GlobalBreakerFail int           `mapstructure:"global_breaker_fail"`
	GlobalBreakerCooldown time.Duration `mapstructure:"global_breaker_cooldown"`
	Symbols           []string      `mapstructure:"symbols"`
}

// StatusAPIConfig configures the read-only observability surface.
type StatusAPIConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
	MetricsPort    int           `mapstructure:"metrics_port"`
}

// AppConfig is the orchestrator's full runtime configuration.
type AppConfig struct {
	LogLevel       string                  `mapstructure:"log_level"`
	PaperTrading   bool                    `mapstructure:"paper_trading"`
	Advisors       []AdvisorProviderConfig `mapstructure:"advisors"`
	AdvisorCacheTTL time.Duration          `mapstructure:"advisor_cache_ttl"`
	Risk           types.RiskParameters    `mapstructure:"-"`
	Scheduler      SchedulerConfig         `mapstructure:"scheduler"`
	StatusAPI      StatusAPIConfig         `mapstructure:"status_api"`
}

// Load reads configuration from built-in defaults, the optional file at
// configPath, and environment variables prefixed ATLAS_, in ascending
// priority.
func Load(configPath string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("ATLAS")
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading config file %s: %v", types.ErrConfigError, configPath, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling config: %v", types.ErrConfigError, err)
	}

	cfg.Risk = riskParamsFromViper(v)

	if len(cfg.Advisors) == 0 {
		cfg.Advisors = []AdvisorProviderConfig{
			{Name: "openai", BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", Priority: 1, APIKeyEnv: "OPENAI_API_KEY"},
			{Name: "anthropic", BaseURL: "https://api.anthropic.com/v1", Model: "claude-3-haiku-20240307", Priority: 2, APIKeyEnv: "ANTHROPIC_API_KEY"},
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("paper_trading", true)
	v.SetDefault("advisor_cache_ttl", 5*time.Minute)
	v.SetDefault("scheduler.tick_interval", 15*time.Minute)
	v.SetDefault("scheduler.max_trades_per_day", 50)
	v.SetDefault("scheduler.global_breaker_fail", 3)
	v.SetDefault("scheduler.global_breaker_cooldown", 300*time.Second)
	v.SetDefault("scheduler.symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	v.SetDefault("status_api.host", "localhost")
	v.SetDefault("status_api.port", 8080)
	v.SetDefault("status_api.read_timeout", 30*time.Second)
	v.SetDefault("status_api.write_timeout", 30*time.Second)
	v.SetDefault("status_api.max_connections", 100)
	v.SetDefault("status_api.metrics_port", 9090)

	defaults := types.DefaultRiskParameters()
	v.SetDefault("risk.max_position_fraction", defaults.MaxPositionFraction.String())
	v.SetDefault("risk.max_portfolio_risk_daily", defaults.MaxPortfolioRiskDaily.String())
	v.SetDefault("risk.max_symbol_risk", defaults.MaxSymbolRisk.String())
	v.SetDefault("risk.max_sector_exposure", defaults.MaxSectorExposure.String())
	v.SetDefault("risk.max_daily_drawdown", defaults.MaxDailyDrawdown.String())
	v.SetDefault("risk.default_stop_pct", defaults.DefaultStopPct.String())
	v.SetDefault("risk.default_target_pct", defaults.DefaultTargetPct.String())
	v.SetDefault("risk.volatility_scaling", defaults.VolatilityScaling)
}

func riskParamsFromViper(v *viper.Viper) types.RiskParameters {
	dec := func(key string) decimal.Decimal {
		d, err := decimal.NewFromString(v.GetString(key))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return types.RiskParameters{
		MaxPositionFraction:   dec("risk.max_position_fraction"),
		MaxPortfolioRiskDaily: dec("risk.max_portfolio_risk_daily"),
		MaxSymbolRisk:         dec("risk.max_symbol_risk"),
		MaxSectorExposure:     dec("risk.max_sector_exposure"),
		MaxDailyDrawdown:      dec("risk.max_daily_drawdown"),
		DefaultStopPct:        dec("risk.default_stop_pct"),
		DefaultTargetPct:      dec("risk.default_target_pct"),
		VolatilityScaling:     v.GetBool("risk.volatility_scaling"),
	}
}
