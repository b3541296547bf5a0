package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alejandrodnm/tickerbot/config"
	"github.com/alejandrodnm/tickerbot/internal/adapters/notify"
	"github.com/alejandrodnm/tickerbot/internal/adapters/storage"
	"github.com/alejandrodnm/tickerbot/internal/application/optimizer"
	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

func runOptimize(ctx context.Context, provider ports.BarProvider, store *storage.SQLiteStorage, notifier *notify.Console, cfg *config.Config, seedActive bool) {
	optCfg := optimizer.Config{
		Population:    cfg.Optimizer.Population,
		Generations:   cfg.Optimizer.Generations,
		Tournament:    cfg.Optimizer.Tournament,
		CrossoverProb: cfg.Optimizer.CrossoverProb,
		MutationProb:  cfg.Optimizer.MutationProb,
		Workers:       cfg.Optimizer.Workers,
		Seed:          cfg.Optimizer.Seed,
	}
	if seedActive {
		g := activeGenome(ctx, store)
		optCfg.Initial = &g
	}

	eval := optimizer.NewEvaluator(provider, optimizer.EvaluatorConfig{
		Pool:         cfg.Tickers.Pool,
		SampleSize:   cfg.Optimizer.SampleTickers,
		LookbackDays: cfg.Data.LookbackDays,
		Interval:     cfg.Data.Interval,
		InitialCash:  cfg.Backtest.InitialCash,
		Weights: optimizer.FitnessWeights{
			Profit: cfg.Fitness.ProfitWeight,
			Loss:   cfg.Fitness.LossWeight,
			Trades: cfg.Fitness.TradesWeight,
		},
	})

	o := optimizer.New(eval, store, optCfg)

	slog.Info("=== OPTIMIZER ===",
		"population", cfg.Optimizer.Population,
		"generations", cfg.Optimizer.Generations,
		"sample_tickers", cfg.Optimizer.SampleTickers,
		"pool", len(cfg.Tickers.Pool),
		"seed_active", seedActive,
	)

	stream, err := o.Run(ctx)
	if err != nil {
		slog.Error("optimizer failed to start", "err", err)
		os.Exit(1)
	}

	var last domain.GenerationRecord
	var got bool
	for rec := range stream {
		notifier.PrintGeneration(rec, cfg.Optimizer.Generations)
		last, got = rec, true
	}

	if !got {
		// Sin generaciones nuevas: o la sesión persistida ya estaba
		// completa, o se canceló antes de terminar la primera. Informa
		// con el último estado guardado si existe.
		rec, ok, err := store.LoadLastGeneration(ctx)
		if err != nil || !ok {
			slog.Warn("no completed generations this run")
			return
		}
		last = rec
	}

	notifier.PrintOptimizerResult(last)
	slog.Info("optimizer session finished", "generation", last.Gen+1, "best_fitness", last.Best.Fitness)
}

func runApplyBest(ctx context.Context, store *storage.SQLiteStorage, notifier *notify.Console) {
	best, err := optimizer.ApplyBest(ctx, store)
	if err != nil {
		slog.Error("apply-best failed", "err", err)
		os.Exit(1)
	}

	rec, _, err := store.LoadLastGeneration(ctx)
	if err == nil {
		notifier.PrintOptimizerResult(rec)
	}
	slog.Info("best genome is now active", "fitness", best.Fitness)
}

func runResetOptimizer(ctx context.Context, store *storage.SQLiteStorage) {
	if err := store.ResetOptimizer(ctx); err != nil {
		slog.Error("failed to reset optimizer state", "err", err)
		os.Exit(1)
	}
	slog.Info("optimizer state discarded")
}

func runResetPortfolio(ctx context.Context, store *storage.SQLiteStorage) {
	if err := store.ApplyPortfolioSchema(ctx); err != nil {
		slog.Error("failed to create portfolio tables", "err", err)
		os.Exit(1)
	}
	if err := store.ResetPortfolio(ctx); err != nil {
		slog.Error("failed to reset portfolio", "err", err)
		os.Exit(1)
	}
	slog.Info("paper portfolio reset")
}
