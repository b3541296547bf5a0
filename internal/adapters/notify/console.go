package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifySignals imprime el watchlist del ciclo en el modo configurado.
func (c *Console) NotifySignals(_ context.Context, signals []domain.TickerSignal) error {
	if len(signals) == 0 {
		fmt.Fprintf(c.out, "[%s] no signals\n", time.Now().Format("15:04:05"))
		return nil
	}

	if c.table {
		c.printTable(signals)
	} else {
		c.printCompact(signals)
	}
	return nil
}

// printCompact imprime lo esencial en una línea: recuento por acción y las
// primeras señales accionables.
func (c *Console) printCompact(signals []domain.TickerSignal) {
	now := time.Now().Format("15:04:05")
	buys, sells, closes, holds := countActions(signals)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d tickers → B:%d S:%d C:%d H:%d",
		now, len(signals), buys, sells, closes, holds)

	shown := 0
	for _, s := range signals {
		if s.Action == domain.ActionHold {
			continue
		}
		if shown >= 4 {
			break
		}
		fmt.Fprintf(&sb, " | %s %s %+.2f @$%.2f",
			s.Ticker, s.Action.Label(), s.Score, s.Close)
		shown++
	}

	fmt.Fprintln(c.out, sb.String())
}

// printTable imprime el watchlist completo.
func (c *Console) printTable(signals []domain.TickerSignal) {
	now := time.Now().Format("15:04:05")
	buys, sells, closes, _ := countActions(signals)

	fmt.Fprintf(c.out, "\n[%s] watchlist — %d tickers, B:%d S:%d C:%d\n",
		now, len(signals), buys, sells, closes)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Ticker", "Close", "Score", "Acción", "Última barra")

	for i, s := range signals {
		table.Append(
			fmt.Sprintf("%d", i+1),
			s.Ticker,
			fmt.Sprintf("$%.2f", s.Close),
			fmt.Sprintf("%+.2f", s.Score),
			s.Action.Label(),
			s.At.Format("2006-01-02 15:04"),
		)
	}

	table.Render()
}

// --- helpers ---

func countActions(signals []domain.TickerSignal) (buys, sells, closes, holds int) {
	for _, s := range signals {
		switch s.Action {
		case domain.ActionBuy:
			buys++
		case domain.ActionSell:
			sells++
		case domain.ActionClose:
			closes++
		default:
			holds++
		}
	}
	return
}
