package config

import (
	"os"
	"testing"
)

func TestLoadFile(t *testing.T) {
	yamlContent := []byte(`
storage:
  data_dir: "/tmp/stockpilot/data"
  sqlite_path: "/tmp/stockpilot/stockpilot.db"
server:
  host: "127.0.0.1"
  port: 9000
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
  data_url: "https://data.alpaca.markets"
logging:
  level: "debug"
  format: "text"
profile:
  general:
    max_position_weight: 0.20
  technical:
    trend_check: false
strategy:
  rsi_oversold: 25
  backtest:
    start_capital: 25000
    stop_loss_pct: 0.08
`)

	tmpFile, err := os.CreateTemp("", "stockpilot-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	// Clear any environment overrides that might interfere.
	os.Unsetenv("ALPACA_API_KEY")
	os.Unsetenv("ALPACA_API_SECRET")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/stockpilot/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/stockpilot/data")
	}
	if cfg.Storage.SQLitePath != "/tmp/stockpilot/stockpilot.db" {
		t.Errorf("Storage.SQLitePath = %q, want %q", cfg.Storage.SQLitePath, "/tmp/stockpilot/stockpilot.db")
	}

	// -- Server --
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.APISecret != "test-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q", cfg.Alpaca.APISecret, "test-secret")
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}

	// -- Profile: set fields override, unset fields keep defaults --
	if cfg.Profile.General.MaxPositionWeight != 0.20 {
		t.Errorf("Profile.General.MaxPositionWeight = %f, want %f", cfg.Profile.General.MaxPositionWeight, 0.20)
	}
	if cfg.Profile.Technical.TrendCheck {
		t.Error("Profile.Technical.TrendCheck = true, want false")
	}
	if cfg.Profile.Valuation.MaxPE != 25 {
		t.Errorf("Profile.Valuation.MaxPE = %f, want default %f", cfg.Profile.Valuation.MaxPE, 25.0)
	}

	// -- Strategy --
	if cfg.Strategy.RSIOversold != 25 {
		t.Errorf("Strategy.RSIOversold = %f, want %f", cfg.Strategy.RSIOversold, 25.0)
	}
	if cfg.Strategy.RSIOverbought != 70 {
		t.Errorf("Strategy.RSIOverbought = %f, want default %f", cfg.Strategy.RSIOverbought, 70.0)
	}
	if cfg.Strategy.Backtest.StartCapital != 25000 {
		t.Errorf("Strategy.Backtest.StartCapital = %f, want %f", cfg.Strategy.Backtest.StartCapital, 25000.0)
	}
	if cfg.Strategy.Backtest.StopLossPct != 0.08 {
		t.Errorf("Strategy.Backtest.StopLossPct = %f, want %f", cfg.Strategy.Backtest.StopLossPct, 0.08)
	}
	if cfg.Strategy.Backtest.TakeProfitPct != 0.10 {
		t.Errorf("Strategy.Backtest.TakeProfitPct = %f, want default %f", cfg.Strategy.Backtest.TakeProfitPct, 0.10)
	}
}

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("SQLITE_PATH")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("ALPACA_API_KEY")
	os.Unsetenv("APCA_API_KEY_ID")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "data")
	}
	if cfg.Strategy.VolumeRatioMin != 1.5 {
		t.Errorf("Strategy.VolumeRatioMin = %f, want %f", cfg.Strategy.VolumeRatioMin, 1.5)
	}
	if cfg.Strategy.Backtest.WarmupDays != 300 {
		t.Errorf("Strategy.Backtest.WarmupDays = %d, want %d", cfg.Strategy.Backtest.WarmupDays, 300)
	}
	if !cfg.Profile.Technical.TrendCheck {
		t.Error("Profile.Technical.TrendCheck = false, want default true")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/stockpilot.yaml"); err == nil {
		t.Fatal("Load() on a missing file returned nil error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	tmpFile, err := os.CreateTemp("", "stockpilot-config-env-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	// Set environment overrides.
	os.Setenv("ALPACA_API_KEY", "env-key")
	os.Setenv("DATA_DIR", "/env/data")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("APCA_API_SECRET_KEY")
	defer os.Unsetenv("ALPACA_API_KEY")
	defer os.Unsetenv("DATA_DIR")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}

	// Canonical Alpaca vars beat the project-specific ones.
	os.Setenv("APCA_API_KEY_ID", "canonical-key")
	defer os.Unsetenv("APCA_API_KEY_ID")

	cfg, err = Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "canonical-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (canonical env override)", cfg.Alpaca.APIKey, "canonical-key")
	}
}
