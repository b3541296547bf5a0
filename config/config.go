package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	AlphaVantage AlphaVantageConfig `yaml:"alphavantage"`
	Data         DataConfig         `yaml:"data"`
	Tickers      TickersConfig      `yaml:"tickers"`
	Optimizer    OptimizerConfig    `yaml:"optimizer"`
	Fitness      FitnessConfig      `yaml:"fitness"`
	Backtest     BacktestConfig     `yaml:"backtest"`
	Paper        PaperConfig        `yaml:"paper"`
	Storage      StorageConfig      `yaml:"storage"`
	Log          LogConfig          `yaml:"log"`
}

// AlphaVantageConfig contiene las credenciales y límites del proveedor de
// datos. La API key normalmente llega por ALPHAVANTAGE_API_KEY (.env).
type AlphaVantageConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	RequestsPerMinute int    `yaml:"requests_per_minute"` // 5 en el tier gratuito
}

// DataConfig controla qué series se piden y cómo se cachean.
type DataConfig struct {
	Interval        string `yaml:"interval"` // "5m" | "1h" | "1d"
	LookbackDays    int    `yaml:"lookback_days"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
	CSVDir          string `yaml:"csv_dir"` // si está, las barras salen de CSVs locales
}

// TickersConfig separa la watchlist del watcher del pool de muestreo del
// optimizador.
type TickersConfig struct {
	Watchlist []string `yaml:"watchlist"` // vacío = el pool completo
	Pool      []string `yaml:"pool"`
}

// OptimizerConfig parametriza el algoritmo genético.
type OptimizerConfig struct {
	Population    int     `yaml:"population"`
	Generations   int     `yaml:"generations"`
	SampleTickers int     `yaml:"sample_tickers"`
	Tournament    int     `yaml:"tournament"`
	CrossoverProb float64 `yaml:"crossover_prob"`
	MutationProb  float64 `yaml:"mutation_prob"`
	Workers       int     `yaml:"workers"` // 0 = NumCPU*2
	Seed          int64   `yaml:"seed"`    // 0 = semilla temporal
}

// FitnessConfig pondera los términos del fitness. El peso de pérdida a
// cero es intencionado: se optimiza beneficio y actividad.
type FitnessConfig struct {
	ProfitWeight float64 `yaml:"profit_weight"`
	LossWeight   float64 `yaml:"loss_weight"`
	TradesWeight float64 `yaml:"trades_weight"`
}

// BacktestConfig controla el simulador all-in.
type BacktestConfig struct {
	InitialCash float64 `yaml:"initial_cash"`
}

// PaperConfig controla el paper trader de cantidad fija.
type PaperConfig struct {
	InitialCash float64 `yaml:"initial_cash"`
	TradeQty    int64   `yaml:"trade_qty"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si
// existe. Las variables de entorno sobreescriben el YAML. Si el archivo no
// existe se corre con defaults más entorno, así los modos locales (CSV)
// funcionan sin configurar nada.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CycleInterval devuelve el periodo del ciclo del watcher: el intervalo de
// barra configurado, como time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return intervalDuration(c.Data.Interval)
}

// CacheTTL devuelve el TTL de la caché de barras como time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Data.CacheTTLMinutes) * time.Minute
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("TICKERBOT_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.AlphaVantage.BaseURL == "" {
		cfg.AlphaVantage.BaseURL = "https://www.alphavantage.co"
	}
	if cfg.AlphaVantage.RequestsPerMinute <= 0 {
		cfg.AlphaVantage.RequestsPerMinute = 5
	}
	if cfg.Data.Interval == "" {
		cfg.Data.Interval = "5m"
	}
	if cfg.Data.LookbackDays <= 0 {
		cfg.Data.LookbackDays = 60
	}
	if cfg.Data.CacheTTLMinutes <= 0 {
		cfg.Data.CacheTTLMinutes = 5
	}
	if len(cfg.Tickers.Pool) == 0 {
		cfg.Tickers.Pool = defaultPool()
	}
	if len(cfg.Tickers.Watchlist) == 0 {
		cfg.Tickers.Watchlist = cfg.Tickers.Pool
	}
	if cfg.Optimizer.Population <= 0 {
		cfg.Optimizer.Population = 10
	}
	if cfg.Optimizer.Generations <= 0 {
		cfg.Optimizer.Generations = 20
	}
	if cfg.Optimizer.SampleTickers <= 0 {
		cfg.Optimizer.SampleTickers = 3
	}
	if cfg.Optimizer.Tournament <= 0 {
		cfg.Optimizer.Tournament = 3
	}
	if cfg.Optimizer.CrossoverProb <= 0 {
		cfg.Optimizer.CrossoverProb = 0.5
	}
	if cfg.Optimizer.MutationProb <= 0 {
		cfg.Optimizer.MutationProb = 0.2
	}
	// Se respeta un peso a cero explícito: solo se rellena si la sección
	// entera viene vacía.
	if cfg.Fitness == (FitnessConfig{}) {
		cfg.Fitness = FitnessConfig{ProfitWeight: 1.0, LossWeight: 0.0, TradesWeight: 0.1}
	}
	if cfg.Backtest.InitialCash <= 0 {
		cfg.Backtest.InitialCash = 100_000
	}
	if cfg.Paper.InitialCash <= 0 {
		cfg.Paper.InitialCash = 100_000
	}
	if cfg.Paper.TradeQty <= 0 {
		cfg.Paper.TradeQty = 10
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tickerbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func defaultPool() []string {
	return []string{
		"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "NVDA", "META", "BRK-B",
		"JPM", "JNJ", "ITX.MC", "SAN.MC", "IBE.MC", "TEF.MC", "BBVA.MC", "NKE",
	}
}

// intervalDuration traduce la notación corta de intervalo a duración.
// Valores desconocidos caen al intervalo por defecto de 5 minutos.
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}
