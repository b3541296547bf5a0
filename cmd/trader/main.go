package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/tickerbot/config"
	"github.com/alejandrodnm/tickerbot/internal/adapters/alphavantage"
	"github.com/alejandrodnm/tickerbot/internal/adapters/csvdir"
	"github.com/alejandrodnm/tickerbot/internal/adapters/notify"
	"github.com/alejandrodnm/tickerbot/internal/adapters/storage"
	"github.com/alejandrodnm/tickerbot/internal/application/watch"
	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "run one watch cycle and exit")
	trade := flag.Bool("trade", false, "apply watch signals to the paper portfolio")
	backtest := flag.Bool("backtest", false, "single-ticker backtest (requires -ticker)")
	optimize := flag.Bool("optimize", false, "run or resume the genetic optimizer")
	paperMode := flag.Bool("paper", false, "replay the paper trader over the CSV directory")
	applyBest := flag.Bool("apply-best", false, "make the optimizer's best genome the active one")
	resetOptimizer := flag.Bool("reset-optimizer", false, "discard persisted optimizer state")
	resetPortfolio := flag.Bool("reset-portfolio", false, "reset the paper portfolio to initial cash")
	ticker := flag.String("ticker", "", "ticker for -backtest")
	from := flag.String("from", "", "backtest start date (YYYY-MM-DD)")
	to := flag.String("to", "", "backtest end date (YYYY-MM-DD)")
	generations := flag.Int("generations", 0, "optimizer generations (overrides config)")
	population := flag.Int("population", 0, "optimizer population size (overrides config)")
	seed := flag.Int64("seed", 0, "optimizer random seed (0 = time-based)")
	seedActive := flag.Bool("seed-active", false, "seed the initial population with the active genome")
	dbPath := flag.String("db", "", "SQLite path (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug|info|warn|error (overrides config)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.Format = "json"
	}
	if *dbPath != "" {
		cfg.Storage.DSN = *dbPath
	}
	if *generations > 0 {
		cfg.Optimizer.Generations = *generations
	}
	if *population > 0 {
		cfg.Optimizer.Population = *population
	}
	if *seed != 0 {
		cfg.Optimizer.Seed = *seed
	}
	setupLogger(cfg.Log)

	slog.Info("tickerbot starting",
		"config", *configPath,
		"db", cfg.Storage.DSN,
		"interval", cfg.CycleInterval(),
		"dry_run", *dryRun,
		"trade", *trade,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// El genoma activo vive en las tablas del optimizador, así que el
	// esquema hace falta en todos los modos, no solo en -optimize.
	if err := store.ApplyOptimizerSchema(ctx); err != nil {
		slog.Error("failed to apply optimizer schema", "err", err)
		os.Exit(1)
	}

	notifier := notify.NewConsole(*dryRun)
	provider := buildProvider(cfg, store)

	switch {
	case *resetOptimizer:
		runResetOptimizer(ctx, store)
	case *resetPortfolio:
		runResetPortfolio(ctx, store)
	case *applyBest:
		runApplyBest(ctx, store, notifier)
	case *backtest:
		runBacktest(ctx, provider, store, notifier, cfg, *ticker, *from, *to)
	case *optimize:
		runOptimize(ctx, provider, store, notifier, cfg, *seedActive)
	case *paperMode:
		runPaperReplay(ctx, store, notifier, cfg)
	case *trade:
		runTrade(ctx, provider, store, notifier, cfg)
	default:
		w := watch.New(watch.Config{
			Tickers:      cfg.Tickers.Watchlist,
			Interval:     cfg.CycleInterval(),
			BarInterval:  cfg.Data.Interval,
			LookbackDays: cfg.Data.LookbackDays,
			DryRun:       *dryRun,
		}, provider, store, notifier)

		if err := w.Run(ctx); err != nil {
			slog.Error("watcher exited with error", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("tickerbot stopped cleanly")
}

// buildProvider elige la fuente de barras: CSVs locales si están
// configurados, si no Alpha Vantage con caché SQLite por delante.
func buildProvider(cfg *config.Config, store *storage.SQLiteStorage) ports.BarProvider {
	if cfg.Data.CSVDir != "" {
		slog.Info("using local CSV bars", "dir", cfg.Data.CSVDir)
		return csvdir.NewProvider(cfg.Data.CSVDir)
	}
	client := alphavantage.NewClient(cfg.AlphaVantage.BaseURL, cfg.AlphaVantage.APIKey, cfg.AlphaVantage.RequestsPerMinute)
	return alphavantage.NewCached(client, store, cfg.CacheTTL())
}

// activeGenome carga el genoma activo; sin genoma aplicado (o si la carga
// falla) se puntúa con el de serie.
func activeGenome(ctx context.Context, store *storage.SQLiteStorage) domain.Genome {
	g, source, ok, err := store.LoadActiveGenome(ctx)
	if err != nil {
		slog.Warn("could not load active genome, using defaults", "err", err)
		return domain.DefaultGenome()
	}
	if !ok {
		slog.Info("no active genome, using defaults")
		return domain.DefaultGenome()
	}
	slog.Info("using active genome", "source", source)
	return g
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
