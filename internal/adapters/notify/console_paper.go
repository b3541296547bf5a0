package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// ExecutedOrder es una orden ejecutada por el paper trader en un ciclo.
type ExecutedOrder struct {
	Ticker string
	Action domain.Action
	Qty    int64
	Price  float64
}

// PaperCycleInput bundles everything PrintPaperCycle needs.
type PaperCycleInput struct {
	Signals   int
	Executed  []ExecutedOrder
	Positions int
	Cash      float64
}

// PrintPaperCycle prints a compact status for the current paper cycle.
func (c *Console) PrintPaperCycle(in PaperCycleInput) {
	now := time.Now().Format("15:04:05")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s][PAPER] %d señales | %d órdenes | %d posiciones | cash $%.2f",
		now, in.Signals, len(in.Executed), in.Positions, in.Cash)

	for _, o := range in.Executed {
		fmt.Fprintf(&sb, "\n  >> %s %s %d @ $%.2f", o.Action.Label(), o.Ticker, o.Qty, o.Price)
	}

	fmt.Fprintln(c.out, sb.String())
}

// ReplayRow resume el replay de un ticker para la tabla final.
type ReplayRow struct {
	Ticker        string
	Bars          int
	Executed      int
	FinalCash     float64
	RealizedPnL   float64
	UnrealizedPnL float64
	NetPnL        float64
}

// PrintReplaySummary imprime el resultado del modo paper sobre series CSV:
// una fila por ticker y el agregado al final. Cada ticker arranca con su
// propio efectivo inicial, así que los PnL se suman pero el cash no.
func (c *Console) PrintReplaySummary(rows []ReplayRow, initialCash float64) {
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  PAPER REPLAY  (%d tickers, $%.2f iniciales cada uno)\n", len(rows), initialCash)
	fmt.Fprintf(c.out, "========================================================\n\n")

	table := tablewriter.NewWriter(c.out)
	table.Header("Ticker", "Barras", "Órdenes", "Cash final", "PnL realizado", "PnL latente", "PnL neto")

	var orders int
	var realized, unrealized, net float64
	for _, r := range rows {
		orders += r.Executed
		realized += r.RealizedPnL
		unrealized += r.UnrealizedPnL
		net += r.NetPnL
		table.Append(
			r.Ticker,
			fmt.Sprintf("%d", r.Bars),
			fmt.Sprintf("%d", r.Executed),
			fmt.Sprintf("$%.2f", r.FinalCash),
			fmt.Sprintf("$%+.2f", r.RealizedPnL),
			fmt.Sprintf("$%+.2f", r.UnrealizedPnL),
			fmt.Sprintf("$%+.2f", r.NetPnL),
		)
	}
	table.Append(
		"TOTAL", "",
		fmt.Sprintf("%d", orders), "",
		fmt.Sprintf("$%+.2f", realized),
		fmt.Sprintf("$%+.2f", unrealized),
		fmt.Sprintf("$%+.2f", net),
	)
	table.Render()

	verdict := "RENTABLE"
	if net < 0 {
		verdict = "EN PÉRDIDAS"
	}
	fmt.Fprintf(c.out, "\n  Resultado agregado: %s ($%+.2f)\n\n", verdict, net)
}

// PrintPortfolio imprime el estado completo de la cartera simulada.
// lastPrices valora las posiciones; sin precio se usa el precio medio de
// compra, igual que hace Portfolio.Value.
func (c *Console) PrintPortfolio(p domain.Portfolio, lastPrices map[string]float64) {
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  PAPER PORTFOLIO\n")
	fmt.Fprintf(c.out, "========================================================\n\n")

	if len(p.Positions) == 0 {
		fmt.Fprintln(c.out, "  Sin posiciones abiertas.")
	} else {
		tickers := make([]string, 0, len(p.Positions))
		for t := range p.Positions {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)

		table := tablewriter.NewWriter(c.out)
		table.Header("Ticker", "Qty", "Precio medio", "Último", "Valor", "PnL latente")

		for _, t := range tickers {
			pos := p.Positions[t]
			last, ok := lastPrices[t]
			if !ok {
				last = pos.AvgPrice
			}
			table.Append(
				t,
				fmt.Sprintf("%d", pos.Qty),
				fmt.Sprintf("$%.2f", pos.AvgPrice),
				fmt.Sprintf("$%.2f", last),
				fmt.Sprintf("$%.2f", pos.MarketValue(last)),
				fmt.Sprintf("$%+.2f", pos.UnrealizedPnL(last)),
			)
		}
		table.Render()
	}

	if len(p.Closed) > 0 {
		fmt.Fprintf(c.out, "\n  Últimas ventas:\n")
		start := 0
		if len(p.Closed) > 10 {
			start = len(p.Closed) - 10
		}
		for _, tr := range p.Closed[start:] {
			fmt.Fprintf(c.out, "  %s  %-6s %4d acciones  compra $%.2f  venta $%.2f  PnL $%+.2f\n",
				tr.SoldAt.Format("2006-01-02 15:04"), tr.Ticker, tr.Qty,
				tr.AvgBuyPrice, tr.SellPrice, tr.PnL)
		}
	}

	value := p.Value(lastPrices)
	fmt.Fprintf(c.out, "\n  --- RESUMEN ---\n")
	fmt.Fprintf(c.out, "  Efectivo:        $%.2f\n", p.Cash)
	fmt.Fprintf(c.out, "  Valor total:     $%.2f\n", value)
	fmt.Fprintf(c.out, "  PnL realizado:   $%+.2f\n", p.RealizedPnL())
	fmt.Fprintf(c.out, "  PnL latente:     $%+.2f\n", p.UnrealizedPnL(lastPrices))
	if p.InitialCash > 0 {
		fmt.Fprintf(c.out, "  Rentabilidad:    %+.2f%%\n", (value/p.InitialCash-1)*100)
	}
	fmt.Fprintln(c.out)
}
