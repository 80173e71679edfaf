package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so values like "30s" can be used in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Liqmon    LiqmonConfig    `yaml:"liqmon"`
	Server    ServerConfig    `yaml:"server"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Processor ProcessorConfig `yaml:"processor"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	Signal    SignalConfig    `yaml:"signal"`
	Prices    PricesConfig    `yaml:"prices"`
	Paper     PaperConfig     `yaml:"paper"`
	Source    SourceConfig    `yaml:"source"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LiqmonConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Address  string `yaml:"address"`
	APIToken string `yaml:"api_token"`
}

type ChannelsConfig struct {
	RawBuffer  int `yaml:"raw_buffer"`
	NormBuffer int `yaml:"norm_buffer"`
}

type ProcessorConfig struct {
	MaxWorkers   int      `yaml:"max_workers"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout Duration `yaml:"batch_timeout"`
}

// WatchlistConfig scopes the monitor to a fixed symbol set. Thresholds are
// keyed by Binance symbol notation.
type WatchlistConfig struct {
	Symbols       []string           `yaml:"symbols"`
	ThresholdsUSD map[string]float64 `yaml:"thresholds_usd"`
	QtyThresholds map[string]float64 `yaml:"qty_thresholds"`
	MinTableUSD   float64            `yaml:"min_table_usd"`
}

type SignalConfig struct {
	WindowSec int `yaml:"window_sec"`
}

type PricesConfig struct {
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	BurstSize         int      `yaml:"burst_size"`
	CacheTTL          Duration `yaml:"cache_ttl"`
}

type PaperConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
	Bybit   BybitSourceConfig   `yaml:"bybit"`
}

type BinanceSourceConfig struct {
	Future BinanceFutureConfig `yaml:"future"`
}

type BinanceFutureConfig struct {
	Liquidation BinanceLiquidationConfig `yaml:"liquidation"`
}

type BinanceLiquidationConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Connection string   `yaml:"connection"` // "all" or "symbol"
	Symbols    []string `yaml:"symbols"`
}

type BybitSourceConfig struct {
	Future BybitFutureConfig `yaml:"future"`
}

type BybitFutureConfig struct {
	Liquidation BybitLiquidationConfig `yaml:"liquidation"`
}

type BybitLiquidationConfig struct {
	Enabled bool     `yaml:"enabled"`
	URL     string   `yaml:"url"`
	Symbols []string `yaml:"symbols"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool     `yaml:"enabled"`
	Bucket          string   `yaml:"bucket"`
	Region          string   `yaml:"region"`
	Endpoint        string   `yaml:"endpoint"`
	PathStyle       bool     `yaml:"path_style"`
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	FlushInterval   Duration `yaml:"flush_interval"`
	MaxBuffer       int      `yaml:"max_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	ChannelSize bool             `yaml:"channel_size"`
	CloudWatch  CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{Address: "0.0.0.0:8000"},
		Channels: ChannelsConfig{
			RawBuffer:  1000,
			NormBuffer: 100,
		},
		Processor: ProcessorConfig{
			MaxWorkers:   2,
			BatchSize:    100,
			BatchTimeout: Duration(5 * time.Second),
		},
		Watchlist: WatchlistConfig{
			Symbols: []string{"XRPUSDT", "DOGEUSDT", "PEPEUSDT"},
			ThresholdsUSD: map[string]float64{
				"XRPUSDT":  7500,
				"DOGEUSDT": 6000,
				"PEPEUSDT": 3000,
			},
			QtyThresholds: map[string]float64{
				"XRPUSDT":  3000,
				"DOGEUSDT": 50000,
				"PEPEUSDT": 100_000_000,
			},
		},
		Signal: SignalConfig{WindowSec: 180},
		Prices: PricesConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
			CacheTTL:          Duration(5 * time.Second),
		},
		Paper: PaperConfig{Testnet: true},
		Source: SourceConfig{
			Binance: BinanceSourceConfig{
				Future: BinanceFutureConfig{
					Liquidation: BinanceLiquidationConfig{Enabled: true, Connection: "all"},
				},
			},
		},
		Storage: StorageConfig{
			S3: S3Config{FlushInterval: Duration(time.Minute), MaxBuffer: 100},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics: MetricsConfig{ChannelSize: true},
	}
}

// LoadConfig reads the YAML configuration file, applies environment
// variable overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides layers the environment variable surface of the monitor
// over the file configuration. Malformed JSON overrides are ignored so a bad
// THRESHOLDS_USD value cannot take the service down.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WATCHLIST"); strings.TrimSpace(v) != "" {
		symbols := make([]string, 0, 4)
		for _, s := range strings.Split(v, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) > 0 {
			cfg.Watchlist.Symbols = symbols
		}
	}

	mergeJSONMap(os.Getenv("THRESHOLDS_USD"), &cfg.Watchlist.ThresholdsUSD)
	mergeJSONMap(os.Getenv("QTY_THRESHOLDS"), &cfg.Watchlist.QtyThresholds)

	if v := os.Getenv("MIN_TABLE_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Watchlist.MinTableUSD = f
		}
	}
	if v := os.Getenv("WINDOW_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Signal.WindowSec = n
		}
	}

	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Paper.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Paper.APISecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_TESTNET"); v != "" {
		cfg.Paper.Testnet = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.Server.APIToken = strings.TrimSpace(v)
	}

	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	cfg.Storage.S3.Bucket = strings.TrimSpace(cfg.Storage.S3.Bucket)
}

func mergeJSONMap(raw string, dst *map[string]float64) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	var overrides map[string]float64
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		return
	}
	if *dst == nil {
		*dst = make(map[string]float64, len(overrides))
	}
	for k, v := range overrides {
		(*dst)[strings.ToUpper(k)] = v
	}
}

// USDThreshold returns the event-level notional threshold for a symbol.
func (w WatchlistConfig) USDThreshold(symbol string) float64 {
	if v, ok := w.ThresholdsUSD[strings.ToUpper(symbol)]; ok {
		return v
	}
	return 5000
}

// QtyThreshold returns the minimum quantity for an event to appear in the
// liquidation table. Symbols without a configured threshold are not filtered.
func (w WatchlistConfig) QtyThreshold(symbol string) float64 {
	if v, ok := w.QtyThresholds[strings.ToUpper(symbol)]; ok {
		return v
	}
	return 0
}

// Contains reports whether the symbol belongs to the watchlist.
func (w WatchlistConfig) Contains(symbol string) bool {
	symbol = strings.ToUpper(symbol)
	for _, s := range w.Symbols {
		if strings.ToUpper(s) == symbol {
			return true
		}
	}
	return false
}

// Window returns the rolling signal window as a duration.
func (s SignalConfig) Window() time.Duration {
	if s.WindowSec <= 0 {
		return 180 * time.Second
	}
	return time.Duration(s.WindowSec) * time.Second
}

func validateConfig(cfg *Config) error {
	if cfg.Liqmon.Name == "" {
		return fmt.Errorf("liqmon.name is required")
	}
	if cfg.Liqmon.Version == "" {
		return fmt.Errorf("liqmon.version is required")
	}
	if len(cfg.Watchlist.Symbols) == 0 {
		return fmt.Errorf("watchlist.symbols must not be empty")
	}
	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.NormBuffer <= 0 {
		return fmt.Errorf("channels.norm_buffer must be greater than 0")
	}
	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	if cfg.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor.batch_size must be greater than 0")
	}
	if cfg.Processor.BatchTimeout.Std() <= 0 {
		return fmt.Errorf("processor.batch_timeout must be greater than 0")
	}
	if cfg.Signal.WindowSec <= 0 {
		return fmt.Errorf("signal.window_sec must be greater than 0")
	}
	if c := cfg.Source.Binance.Future.Liquidation.Connection; c != "" && c != "all" && c != "symbol" {
		return fmt.Errorf("source.binance.future.liquidation.connection must be 'all' or 'symbol'")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
