// Package paper simula operaciones con cantidad fija sobre un portfolio con
// efectivo y posiciones, en dos modos: replay de series CSV ya cerradas y
// aplicación en vivo de las señales del watcher.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

const (
	DefaultTradeQty    = 10
	defaultInitialCash = 100_000
)

// Config holds paper trading settings.
type Config struct {
	InitialCash float64
	TradeQty    int64
}

// Execution es una orden que el paper trader llegó a ejecutar. Trade solo
// viene relleno en las ventas.
type Execution struct {
	Ticker string
	Action domain.Action
	Qty    int64
	Price  float64
	Trade  *domain.ClosedTrade
}

// Step aplica una señal al portfolio con disparo por flanco: solo actúa
// cuando la acción difiere de la última registrada para ese ticker, así una
// racha de barras Comprar no piramida la posición. Cualquier acción que no
// sea Comprar ni Vender rearma el disparo. Devuelve la ejecución (nil si no
// hubo) y la acción que queda registrada.
//
// Las órdenes sin efectivo o sin acciones suficientes se saltan en
// silencio: son situación normal del portfolio, no un fallo.
func Step(p *domain.Portfolio, sig domain.TickerSignal, qty int64, last domain.Action) (*Execution, domain.Action) {
	if sig.Action == last {
		return nil, last
	}

	switch sig.Action {
	case domain.ActionBuy:
		if err := p.Buy(sig.Ticker, qty, sig.Close, sig.At); err != nil {
			slog.Debug("paper: compra saltada", "ticker", sig.Ticker, "err", err)
			return nil, sig.Action
		}
		return &Execution{Ticker: sig.Ticker, Action: sig.Action, Qty: qty, Price: sig.Close}, sig.Action

	case domain.ActionSell:
		trade, err := p.Sell(sig.Ticker, qty, sig.Close, sig.At)
		if err != nil {
			slog.Debug("paper: venta saltada", "ticker", sig.Ticker, "err", err)
			return nil, sig.Action
		}
		return &Execution{Ticker: sig.Ticker, Action: sig.Action, Qty: qty, Price: sig.Close, Trade: &trade}, sig.Action

	default:
		return nil, sig.Action
	}
}

// --- modo replay ---

// ReplayResult resume la simulación de una serie completa.
type ReplayResult struct {
	Ticker        string
	Bars          int
	Executed      int
	FinalCash     float64
	PositionValue float64 // posición abierta valorada al último cierre
	RealizedPnL   float64
	UnrealizedPnL float64
	NetPnL        float64 // contra el efectivo inicial
}

// Replay corre el paper trader sobre una serie ya cerrada con un portfolio
// nuevo. A diferencia del simulador all-in del backtest, opera con cantidad
// fija y disparo por flanco, exactamente igual que en modo watch.
func Replay(ticker string, bars []domain.Bar, g domain.Genome, cfg Config) (ReplayResult, error) {
	if len(bars) == 0 {
		return ReplayResult{}, fmt.Errorf("paper %s: %w", ticker, domain.ErrInsufficientData)
	}
	cfg = withDefaults(cfg)

	p := domain.NewPortfolio(cfg.InitialCash)
	var last domain.Action
	executed := 0

	for _, bar := range bars {
		score, action, err := domain.Score(bar, g)
		if err != nil {
			return ReplayResult{}, fmt.Errorf("paper %s: %w", ticker, err)
		}
		sig := domain.TickerSignal{
			Ticker: ticker,
			At:     bar.Timestamp,
			Close:  bar.Close,
			Score:  score,
			Action: action,
		}
		exec, next := Step(&p, sig, cfg.TradeQty, last)
		last = next
		if exec != nil {
			executed++
		}
	}

	lastClose := bars[len(bars)-1].Close
	prices := map[string]float64{ticker: lastClose}

	res := ReplayResult{
		Ticker:        ticker,
		Bars:          len(bars),
		Executed:      executed,
		FinalCash:     p.Cash,
		RealizedPnL:   p.RealizedPnL(),
		UnrealizedPnL: p.UnrealizedPnL(prices),
		NetPnL:        p.Value(prices) - cfg.InitialCash,
	}
	if pos, ok := p.Positions[ticker]; ok {
		res.PositionValue = pos.MarketValue(lastClose)
	}
	return res, nil
}

// TickerLister enumera los tickers de un proveedor local (directorio CSV).
type TickerLister interface {
	ports.BarProvider
	ListTickers() ([]string, error)
}

// ReplayDir corre una simulación por cada ticker del directorio, cada una
// con su propio portfolio. Los ficheros que no se pueden leer o simular se
// saltan con un aviso.
func ReplayDir(ctx context.Context, provider TickerLister, g domain.Genome, cfg Config) ([]ReplayResult, error) {
	tickers, err := provider.ListTickers()
	if err != nil {
		return nil, fmt.Errorf("paper.ReplayDir: %w", err)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("paper.ReplayDir: no hay series CSV que simular")
	}

	results := make([]ReplayResult, 0, len(tickers))
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		bars, err := provider.Fetch(ctx, ticker, time.Time{}, time.Time{}, "")
		if err != nil {
			slog.Warn("paper: serie descartada", "ticker", ticker, "err", err)
			continue
		}
		res, err := Replay(ticker, bars, g, cfg)
		if err != nil {
			slog.Warn("paper: serie descartada", "ticker", ticker, "err", err)
			continue
		}
		slog.Debug("paper: replay completado",
			"ticker", ticker, "bars", res.Bars, "orders", res.Executed, "net_pnl", res.NetPnL)
		results = append(results, res)
	}
	return results, nil
}

// --- modo watch ---

// Engine aplica señales en vivo contra el portfolio persistente. El estado
// de disparo por flanco vive en memoria: tras un reinicio la primera señal
// de cada ticker vuelve a estar armada.
type Engine struct {
	store ports.PortfolioStorage
	cfg   Config

	portfolio *domain.Portfolio
	last      map[string]domain.Action
}

// New creates a live paper trading engine.
func New(store ports.PortfolioStorage, cfg Config) *Engine {
	return &Engine{
		store: store,
		cfg:   withDefaults(cfg),
		last:  make(map[string]domain.Action),
	}
}

// CycleResult contains everything produced by one live cycle.
type CycleResult struct {
	Executed  []Execution
	Cash      float64
	Positions int
}

// Apply procesa las señales de un ciclo del watcher: carga el portfolio en
// el primer ciclo (o crea uno nuevo), ejecuta las órdenes disparadas y
// persiste el estado si hubo cambios.
func (e *Engine) Apply(ctx context.Context, signals []domain.TickerSignal) (CycleResult, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return CycleResult{}, err
	}

	var res CycleResult
	for _, sig := range signals {
		exec, next := Step(e.portfolio, sig, e.cfg.TradeQty, e.last[sig.Ticker])
		e.last[sig.Ticker] = next
		if exec == nil {
			continue
		}
		res.Executed = append(res.Executed, *exec)
		if exec.Trade != nil {
			if err := e.store.SaveClosedTrade(ctx, *exec.Trade); err != nil {
				slog.Warn("paper: no se pudo persistir la venta",
					"ticker", exec.Ticker, "err", err)
			}
		}
	}

	if len(res.Executed) > 0 {
		if err := e.store.SavePortfolio(ctx, *e.portfolio); err != nil {
			return res, fmt.Errorf("paper.Apply: save: %w", err)
		}
	}

	res.Cash = e.portfolio.Cash
	res.Positions = len(e.portfolio.Positions)
	return res, nil
}

// Portfolio devuelve una copia del portfolio actual, cargándolo si hace
// falta.
func (e *Engine) Portfolio(ctx context.Context) (domain.Portfolio, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return domain.Portfolio{}, err
	}
	return *e.portfolio, nil
}

// --- helpers internos ---

func (e *Engine) ensureLoaded(ctx context.Context) error {
	if e.portfolio != nil {
		return nil
	}
	p, ok, err := e.store.LoadPortfolio(ctx)
	if err != nil {
		return fmt.Errorf("paper.Apply: load: %w", err)
	}
	if !ok {
		p = domain.NewPortfolio(e.cfg.InitialCash)
		slog.Info("paper: portfolio nuevo", "cash", p.Cash)
	}
	e.portfolio = &p
	return nil
}

func withDefaults(cfg Config) Config {
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = defaultInitialCash
	}
	if cfg.TradeQty <= 0 {
		cfg.TradeQty = DefaultTradeQty
	}
	return cfg
}
