package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/tickerbot/config"
	"github.com/alejandrodnm/tickerbot/internal/adapters/csvdir"
	"github.com/alejandrodnm/tickerbot/internal/adapters/notify"
	"github.com/alejandrodnm/tickerbot/internal/adapters/storage"
	"github.com/alejandrodnm/tickerbot/internal/application/paper"
	"github.com/alejandrodnm/tickerbot/internal/application/watch"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

// runPaperReplay simula el auto-trader sobre las series CSV locales, cada
// ticker con su propio portfolio desde cero. No persiste nada.
func runPaperReplay(ctx context.Context, store *storage.SQLiteStorage, notifier *notify.Console, cfg *config.Config) {
	if cfg.Data.CSVDir == "" {
		slog.Error("paper replay requires data.csv_dir in config")
		os.Exit(1)
	}

	g := activeGenome(ctx, store)

	slog.Info("=== PAPER REPLAY ===",
		"dir", cfg.Data.CSVDir,
		"initial_cash", cfg.Paper.InitialCash,
		"trade_qty", cfg.Paper.TradeQty,
	)

	results, err := paper.ReplayDir(ctx, csvdir.NewProvider(cfg.Data.CSVDir), g, paper.Config{
		InitialCash: cfg.Paper.InitialCash,
		TradeQty:    cfg.Paper.TradeQty,
	})
	if err != nil {
		slog.Error("paper replay failed", "err", err)
		os.Exit(1)
	}

	rows := make([]notify.ReplayRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, notify.ReplayRow{
			Ticker:        r.Ticker,
			Bars:          r.Bars,
			Executed:      r.Executed,
			FinalCash:     r.FinalCash,
			RealizedPnL:   r.RealizedPnL,
			UnrealizedPnL: r.UnrealizedPnL,
			NetPnL:        r.NetPnL,
		})
	}
	notifier.PrintReplaySummary(rows, cfg.Paper.InitialCash)
}

// runTrade es el modo watch con ejecución: cada ciclo puntúa la watchlist y
// aplica las señales al portfolio persistente.
func runTrade(ctx context.Context, provider ports.BarProvider, store *storage.SQLiteStorage, notifier *notify.Console, cfg *config.Config) {
	if err := store.ApplyPortfolioSchema(ctx); err != nil {
		slog.Error("failed to create portfolio tables", "err", err)
		os.Exit(1)
	}

	w := watch.New(watch.Config{
		Tickers:      cfg.Tickers.Watchlist,
		Interval:     cfg.CycleInterval(),
		BarInterval:  cfg.Data.Interval,
		LookbackDays: cfg.Data.LookbackDays,
	}, provider, store, notifier)

	trader := paper.New(store, paper.Config{
		InitialCash: cfg.Paper.InitialCash,
		TradeQty:    cfg.Paper.TradeQty,
	})

	slog.Info("=== PAPER TRADING MODE ===",
		"interval", cfg.CycleInterval(),
		"trade_qty", cfg.Paper.TradeQty,
		"tickers", len(cfg.Tickers.Watchlist),
	)

	ticker := time.NewTicker(cfg.CycleInterval())
	defer ticker.Stop()

	runTradeCycle(ctx, w, trader, notifier)

	for {
		select {
		case <-ctx.Done():
			slog.Info("paper trading stopped")
			printTradeExit(ctx, trader, notifier)
			return
		case <-ticker.C:
			runTradeCycle(ctx, w, trader, notifier)
		}
	}
}

func runTradeCycle(ctx context.Context, w *watch.Watcher, trader *paper.Engine, notifier *notify.Console) {
	signals, err := w.RunOnce(ctx)
	if err != nil {
		slog.Error("watch cycle failed", "err", err)
		return
	}
	if err := notifier.NotifySignals(ctx, signals); err != nil {
		slog.Warn("notifier error", "err", err)
	}

	result, err := trader.Apply(ctx, signals)
	if err != nil {
		slog.Error("paper cycle failed", "err", err)
		return
	}

	orders := make([]notify.ExecutedOrder, 0, len(result.Executed))
	for _, e := range result.Executed {
		orders = append(orders, notify.ExecutedOrder{
			Ticker: e.Ticker,
			Action: e.Action,
			Qty:    e.Qty,
			Price:  e.Price,
		})
	}
	notifier.PrintPaperCycle(notify.PaperCycleInput{
		Signals:   len(signals),
		Executed:  orders,
		Positions: result.Positions,
		Cash:      result.Cash,
	})
}

func printTradeExit(ctx context.Context, trader *paper.Engine, notifier *notify.Console) {
	p, err := trader.Portfolio(ctx)
	if err != nil {
		slog.Warn("could not load portfolio for exit summary", "err", err)
		return
	}
	notifier.PrintPortfolio(p, nil)
}
