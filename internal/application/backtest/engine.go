// Package backtest reproduce las decisiones de un genoma barra a barra
// sobre histórico y devuelve el ledger liquidado.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

// Run simula la secuencia completa de barras con el genoma dado. Máquina de
// dos estados (Flat, Long): compra all-in al cierre de la barra, vende la
// posición entera al cierre, y liquida forzosamente al agotar las barras para
// que todos los runs sean comparables. Una evaluación de acción por barra,
// sin mirar hacia delante.
func Run(ticker string, bars []domain.Bar, g domain.Genome, initialCash float64) (domain.RunResult, error) {
	if len(bars) == 0 {
		return domain.RunResult{}, fmt.Errorf("backtest %s: %w", ticker, domain.ErrInsufficientData)
	}

	res := domain.RunResult{
		Ticker:      ticker,
		Start:       bars[0].Timestamp,
		End:         bars[len(bars)-1].Timestamp,
		InitialCash: initialCash,
	}

	cash := initialCash
	var (
		shares     int64
		entryPrice float64
		entryTime  time.Time
	)

	for i, bar := range bars {
		_, action, err := domain.Score(bar, g)
		if err != nil {
			return domain.RunResult{}, fmt.Errorf("backtest %s: %w", ticker, err)
		}

		switch {
		case shares == 0 && action == domain.ActionBuy:
			// Abrir en la última barra forzaría un cierre en la misma barra
			if i == len(bars)-1 || bar.Close <= 0 {
				continue
			}
			qty := int64(cash / bar.Close)
			if qty <= 0 {
				continue
			}
			cost := float64(qty) * bar.Close
			shares = qty
			entryPrice = bar.Close
			entryTime = bar.Timestamp
			cash -= cost
			res.MoneySpent += cost

		case shares > 0 && (action == domain.ActionSell || action == domain.ActionClose):
			proceeds := float64(shares) * bar.Close
			cash += proceeds
			res.MoneyRetrieved += proceeds
			res.Trades = append(res.Trades, domain.Trade{
				ID:         uuid.NewString(),
				Ticker:     ticker,
				EntryTime:  entryTime,
				ExitTime:   bar.Timestamp,
				EntryPrice: entryPrice,
				ExitPrice:  bar.Close,
				Shares:     shares,
				PnL:        (bar.Close - entryPrice) * float64(shares),
				ExitReason: domain.ExitReasonSignal,
			})
			shares = 0
		}
	}

	if shares > 0 {
		last := bars[len(bars)-1]
		proceeds := float64(shares) * last.Close
		cash += proceeds
		res.MoneyRetrieved += proceeds
		res.Trades = append(res.Trades, domain.Trade{
			ID:         uuid.NewString(),
			Ticker:     ticker,
			EntryTime:  entryTime,
			ExitTime:   last.Timestamp,
			EntryPrice: entryPrice,
			ExitPrice:  last.Close,
			Shares:     shares,
			PnL:        (last.Close - entryPrice) * float64(shares),
			ExitReason: domain.ExitReasonEndOfData,
		})
	}

	res.FinalCash = cash
	res.TradeCount = len(res.Trades)
	if initialCash > 0 {
		res.ProfitPct = (cash - initialCash) / initialCash * 100
	}
	return res, nil
}

// RunTicker descarga las barras del proveedor y ejecuta Run. Es la
// composición que usan el CLI y el evaluador de fitness; los fallos de
// descarga (domain.ErrDataUnavailable) suben al caller.
func RunTicker(ctx context.Context, provider ports.BarProvider, ticker string, start, end time.Time, interval string, g domain.Genome, initialCash float64) (domain.RunResult, error) {
	bars, err := provider.Fetch(ctx, ticker, start, end, interval)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("backtest %s: fetch: %w", ticker, err)
	}

	res, err := Run(ticker, bars, g, initialCash)
	if err != nil {
		return domain.RunResult{}, err
	}
	res.Interval = interval

	slog.Debug("backtest completado",
		"ticker", ticker,
		"bars", len(bars),
		"trades", res.TradeCount,
		"profit_pct", res.ProfitPct,
	)
	return res, nil
}
