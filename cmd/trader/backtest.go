package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/tickerbot/config"
	"github.com/alejandrodnm/tickerbot/internal/adapters/notify"
	"github.com/alejandrodnm/tickerbot/internal/adapters/storage"
	"github.com/alejandrodnm/tickerbot/internal/application/backtest"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

func runBacktest(ctx context.Context, provider ports.BarProvider, store *storage.SQLiteStorage, notifier *notify.Console, cfg *config.Config, ticker, from, to string) {
	if ticker == "" {
		slog.Error("backtest requires -ticker")
		os.Exit(1)
	}

	start, end, err := parseRange(from, to)
	if err != nil {
		slog.Error("invalid backtest range", "err", err)
		os.Exit(1)
	}
	if start.IsZero() && end.IsZero() {
		end = time.Now()
		start = end.AddDate(0, 0, -cfg.Data.LookbackDays)
	}

	g := activeGenome(ctx, store)

	slog.Info("=== BACKTEST ===",
		"ticker", ticker,
		"interval", cfg.Data.Interval,
		"initial_cash", cfg.Backtest.InitialCash,
	)

	res, err := backtest.RunTicker(ctx, provider, ticker, start, end, cfg.Data.Interval, g, cfg.Backtest.InitialCash)
	if err != nil {
		slog.Error("backtest failed", "err", err)
		os.Exit(1)
	}

	notifier.PrintBacktestReport(res)
	slog.Info("backtest complete", "trades", res.TradeCount, "profit_pct", res.ProfitPct)
}

// parseRange convierte las fechas -from/-to en límites para el proveedor.
// Una fecha vacía deja ese extremo sin acotar.
func parseRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return start, end, fmt.Errorf("invalid -from %q: %w", from, err)
		}
		start = t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return start, end, fmt.Errorf("invalid -to %q: %w", to, err)
		}
		// -to nombra el último día incluido
		end = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("-to %s is before -from %s", to, from)
	}
	return start, end, nil
}
