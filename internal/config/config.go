package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"stockpilot/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stockpilot platform.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Profile  domain.Profile `yaml:"profile"`
	Strategy Strategy       `yaml:"strategy"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	// PortfolioPath points at the portfolio CSV file; empty disables the
	// portfolio endpoints.
	PortfolioPath string `yaml:"portfolio_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Strategy holds the signal thresholds and backtest defaults. The values
// are plain numbers here; callers convert them to the engine types.
type Strategy struct {
	RSIOversold    float64  `yaml:"rsi_oversold"`
	RSIOverbought  float64  `yaml:"rsi_overbought"`
	VolumeRatioMin float64  `yaml:"volume_ratio_min"`
	Backtest       Backtest `yaml:"backtest"`
}

// Backtest holds the default simulation parameters.
type Backtest struct {
	StartCapital  float64 `yaml:"start_capital"`
	Cost          float64 `yaml:"cost"`
	Delay         int     `yaml:"delay"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	// HistoryDays is the requested simulation window; WarmupDays of extra
	// history is fetched in front of it so the indicators are live from
	// the first simulated bar.
	HistoryDays int `yaml:"history_days"`
	WarmupDays  int `yaml:"warmup_days"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/stockpilot.db",
		},
		Server: Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Alpaca: Alpaca{
			BaseURL: "https://paper-api.alpaca.markets",
			DataURL: "https://data.alpaca.markets",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Profile: domain.DefaultProfile(),
		Strategy: Strategy{
			RSIOversold:    30,
			RSIOverbought:  70,
			VolumeRatioMin: 1.5,
			Backtest: Backtest{
				StartCapital:  10000,
				Cost:          5,
				Delay:         1,
				StopLossPct:   0.05,
				TakeProfitPct: 0.10,
				HistoryDays:   365,
				WarmupDays:    300,
			},
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and then applies environment variable overrides. An empty
// path yields the defaults (plus overrides).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("PORTFOLIO_PATH"); v != "" {
		cfg.Storage.PortfolioPath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
