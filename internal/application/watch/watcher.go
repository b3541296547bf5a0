// Package watch vigila la watchlist: cada ciclo puntúa la última barra de
// cada ticker con el genoma activo y notifica las señales resultantes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

const (
	DefaultInterval     = 5 * time.Minute
	defaultBarInterval  = "5m"
	defaultLookbackDays = 5
)

// Config contiene la configuración del watcher.
type Config struct {
	Tickers      []string
	Interval     time.Duration // periodo del ciclo (0 = cada 5 minutos)
	BarInterval  string
	LookbackDays int // ventana pedida al proveedor en cada ciclo
	DryRun       bool
}

// Watcher es el orquestador del loop de vigilancia.
type Watcher struct {
	cfg      Config
	provider ports.BarProvider
	store    ports.OptimizerStorage
	notifier ports.Notifier
}

// New crea un Watcher con las dependencias inyectadas. store puede ser nil:
// sin almacenamiento se puntúa siempre con el genoma por defecto.
func New(cfg Config, provider ports.BarProvider, store ports.OptimizerStorage, notifier ports.Notifier) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BarInterval == "" {
		cfg.BarInterval = defaultBarInterval
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaultLookbackDays
	}
	return &Watcher{
		cfg:      cfg,
		provider: provider,
		store:    store,
		notifier: notifier,
	}
}

// Run ejecuta el loop de vigilancia hasta que el contexto se cancele.
// Con cfg.DryRun solo corre un ciclo.
func (w *Watcher) Run(ctx context.Context) error {
	slog.Info("watcher starting",
		"tickers", len(w.cfg.Tickers),
		"interval", w.cfg.Interval,
		"dry_run", w.cfg.DryRun,
	)

	if err := w.runCycle(ctx); err != nil {
		slog.Error("watch cycle failed", "err", err)
		if w.cfg.DryRun {
			return err
		}
	}

	if w.cfg.DryRun {
		return nil
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped")
			return nil
		case <-ticker.C:
			if err := w.runCycle(ctx); err != nil {
				slog.Error("watch cycle failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta exactamente un ciclo y devuelve las señales de la
// watchlist. Los tickers que fallan se saltan con un aviso; el ciclo sigue
// con el resto.
func (w *Watcher) RunOnce(ctx context.Context) ([]domain.TickerSignal, error) {
	g := w.activeGenome(ctx)
	end := time.Now()
	start := end.AddDate(0, 0, -w.cfg.LookbackDays)

	signals := make([]domain.TickerSignal, 0, len(w.cfg.Tickers))
	for _, ticker := range w.cfg.Tickers {
		if err := ctx.Err(); err != nil {
			return signals, err
		}
		sig, err := w.scoreTicker(ctx, ticker, start, end, g)
		if err != nil {
			slog.Warn("watch: ticker saltado", "ticker", ticker, "err", err)
			continue
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

// runCycle ejecuta un ciclo completo, notifica y deja el resumen en el log.
func (w *Watcher) runCycle(ctx context.Context) error {
	start := time.Now()

	signals, err := w.RunOnce(ctx)
	if err != nil {
		return err
	}

	if err := w.notifier.NotifySignals(ctx, signals); err != nil {
		slog.Warn("watch: notifier error", "err", err)
	}

	buys, sells := countActions(signals)
	slog.Info("watch cycle complete",
		"tickers", len(w.cfg.Tickers),
		"signals", len(signals),
		"buy", buys,
		"sell", sells,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// scoreTicker trae la serie del ticker y puntúa su última barra.
func (w *Watcher) scoreTicker(ctx context.Context, ticker string, start, end time.Time, g domain.Genome) (domain.TickerSignal, error) {
	bars, err := w.provider.Fetch(ctx, ticker, start, end, w.cfg.BarInterval)
	if err != nil {
		return domain.TickerSignal{}, err
	}
	if len(bars) == 0 {
		return domain.TickerSignal{}, fmt.Errorf("watch %s: %w", ticker, domain.ErrInsufficientData)
	}

	last := bars[len(bars)-1]
	score, action, err := domain.Score(last, g)
	if err != nil {
		return domain.TickerSignal{}, err
	}
	return domain.TickerSignal{
		Ticker: ticker,
		At:     last.Timestamp,
		Close:  last.Close,
		Score:  score,
		Action: action,
	}, nil
}

// activeGenome devuelve el genoma con el que se puntúa: el aplicado por el
// optimizador si existe, el de fábrica si no.
func (w *Watcher) activeGenome(ctx context.Context) domain.Genome {
	if w.store == nil {
		return domain.DefaultGenome()
	}
	g, source, ok, err := w.store.LoadActiveGenome(ctx)
	if err != nil {
		slog.Warn("watch: no se pudo cargar el genoma activo", "err", err)
		return domain.DefaultGenome()
	}
	if !ok {
		return domain.DefaultGenome()
	}
	slog.Debug("watch: genoma activo", "source", source)
	return g
}

func countActions(signals []domain.TickerSignal) (buys, sells int) {
	for _, s := range signals {
		switch s.Action {
		case domain.ActionBuy:
			buys++
		case domain.ActionSell:
			sells++
		}
	}
	return
}
