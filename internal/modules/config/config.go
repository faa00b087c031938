package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	okxAPIKeyENV      = "OKX_API_KEY"
	okxAPISecretENV   = "OKX_API_SECRET"
	okxPassphraseENV  = "OKX_PASSPHRASE"
)

// TPLevel — уровень лесенки тейков в конфиге: GainPct от входа, Ratio от объёма.
type TPLevel struct {
	GainPct float64 `yaml:"gain_pct"` // например 3.0 => +3% от входа
	Ratio   float64 `yaml:"ratio"`    // доля позиции (0,1]
}

// StopConfig — параметры стоп-движка.
type StopConfig struct {
	// Трейлинг в прибыли: стоп = цена * (1 - TrailPct/100)
	TrailPct float64 `yaml:"trail_pct"` // 0.2 => 0.2%
	// Фиксированный стоп у входа: стоп = вход * (1 - FixedPct/100)
	FixedPct float64 `yaml:"fixed_pct"` // 0.5 => 0.5%
	// Минимальное улучшение стопа, ниже которого ордер не трогаем
	MinUpdatePct float64 `yaml:"min_update_pct"` // 0.1..1.0
	// Не дёргать стоп чаще этого интервала
	MinUpdateInterval time.Duration `yaml:"min_update_interval"`
}

// RiskConfig — предохранители RiskGate.
type RiskConfig struct {
	MaxDailyLoss         float64 `yaml:"max_daily_loss"` // USDT
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	AdmitThreshold       float64 `yaml:"admit_threshold"` // скор выше — отказ
}

// SizingConfig — пределы сайзера.
type SizingConfig struct {
	MinContracts    float64 `yaml:"min_contracts"`
	MaxContracts    float64 `yaml:"max_contracts"`
	MaxRiskPerTrade float64 `yaml:"max_risk_per_trade"` // доля депозита
}

// CoordinatorConfig — тайминги исполнения.
type CoordinatorConfig struct {
	FillPollInterval time.Duration `yaml:"fill_poll_interval"`
	FillTimeout      time.Duration `yaml:"fill_timeout"`
	Leverage         int           `yaml:"leverage"`
}

// StoreConfig — каталог состояния и политика ретраев записи.
type StoreConfig struct {
	DataDir      string        `yaml:"data_dir"`
	KeepBackups  int           `yaml:"keep_backups"`
	SaveRetries  int           `yaml:"save_retries"`
	SaveBackoff  time.Duration `yaml:"save_backoff"`
}

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB string `yaml:"db_dsn"`

	OKX struct {
		APIKey     string `yaml:"api_key"`
		APISecret  string `yaml:"api_secret"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"okx"`

	Symbol string `yaml:"symbol"` // например "BTC-USDT-SWAP"

	Stop        StopConfig        `yaml:"stop"`
	Risk        RiskConfig        `yaml:"risk"`
	Sizing      SizingConfig      `yaml:"sizing"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Store       StoreConfig       `yaml:"store"`

	TPLevels []TPLevel `yaml:"tp_levels"`
	// допуск поиска существующего TP-ордера вокруг целевой цены
	TPToleranceBand float64 `yaml:"tp_tolerance_band"` // доли, напр. 0.002

	// Периодика цикла обслуживания стопов/тейков
	MaintainInterval time.Duration `yaml:"maintain_interval"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		Symbol: getenvDefault("SYMBOL", "BTC-USDT-SWAP"),

		Stop: StopConfig{
			TrailPct:          0.2,
			FixedPct:          0.5,
			MinUpdatePct:      0.1,
			MinUpdateInterval: durationFromEnv("STOP_MIN_UPDATE_INTERVAL", "5m"),
		},
		Risk: RiskConfig{
			MaxDailyLoss:         floatFromEnv("MAX_DAILY_LOSS", 100),
			MaxConsecutiveLosses: intFromEnv("MAX_CONSECUTIVE_LOSSES", 3),
			AdmitThreshold:       0.5,
		},
		Sizing: SizingConfig{
			MinContracts:    0.01,
			MaxContracts:    10.0,
			MaxRiskPerTrade: 0.02,
		},
		Coordinator: CoordinatorConfig{
			FillPollInterval: durationFromEnv("FILL_POLL_INTERVAL", "1s"),
			FillTimeout:      durationFromEnv("FILL_TIMEOUT", "30s"),
			Leverage:         intFromEnv("LEVERAGE", 10),
		},
		Store: StoreConfig{
			DataDir:     getenvDefault("DATA_DIR", "data/trading_state"),
			KeepBackups: 10,
			SaveRetries: 3,
			SaveBackoff: durationFromEnv("SAVE_BACKOFF", "200ms"),
		},
		TPLevels: []TPLevel{
			{GainPct: 3.0, Ratio: 0.3},
			{GainPct: 6.0, Ratio: 0.3},
			{GainPct: 10.0, Ratio: 0.4},
		},
		TPToleranceBand:  0.002,
		MaintainInterval: durationFromEnv("MAINTAIN_INTERVAL", "15m"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}
	if v := os.Getenv(okxAPIKeyENV); v != "" {
		config.OKX.APIKey = v
	}
	if v := os.Getenv(okxAPISecretENV); v != "" {
		config.OKX.APISecret = v
	}
	if v := os.Getenv(okxPassphraseENV); v != "" {
		config.OKX.Passphrase = v
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate — валидируем один раз при конструировании, дальше конфиг
// считается корректным (fail fast на кривых долях и порогах).
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("config: symbol is empty")
	}
	if c.Stop.TrailPct <= 0 || c.Stop.FixedPct <= 0 {
		return fmt.Errorf("config: stop percentages must be positive")
	}
	if c.Stop.MinUpdatePct < 0.1 || c.Stop.MinUpdatePct > 1.0 {
		return fmt.Errorf("config: stop.min_update_pct must be in [0.1, 1.0], got %.3f", c.Stop.MinUpdatePct)
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("config: risk.max_daily_loss must be positive")
	}
	if c.Risk.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("config: risk.max_consecutive_losses must be positive")
	}
	if c.Sizing.MinContracts <= 0 || c.Sizing.MaxContracts < c.Sizing.MinContracts {
		return fmt.Errorf("config: sizing contracts bounds invalid")
	}
	if c.Coordinator.FillTimeout <= 0 || c.Coordinator.FillPollInterval <= 0 {
		return fmt.Errorf("config: coordinator timings must be positive")
	}
	if c.Coordinator.Leverage <= 0 {
		return fmt.Errorf("config: coordinator.leverage must be positive")
	}
	if len(c.TPLevels) == 0 {
		return fmt.Errorf("config: tp_levels is empty")
	}
	var sum float64
	for i, lvl := range c.TPLevels {
		if lvl.Ratio <= 0 || lvl.Ratio > 1 {
			return fmt.Errorf("config: tp_levels[%d].ratio out of (0,1]: %.4f", i, lvl.Ratio)
		}
		if lvl.GainPct <= 0 {
			return fmt.Errorf("config: tp_levels[%d].gain_pct must be positive", i)
		}
		sum += lvl.Ratio
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("config: tp ratios must sum to 1.0, got %.6f", sum)
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
