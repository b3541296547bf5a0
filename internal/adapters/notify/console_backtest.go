package notify

import (
	"fmt"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// PrintBacktestReport prints the full ledger and summary of a simulator run.
func (c *Console) PrintBacktestReport(res domain.RunResult) {
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  BACKTEST %s (%s)  %s → %s\n",
		res.Ticker, res.Interval,
		res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"))
	fmt.Fprintf(c.out, "========================================================\n\n")

	if len(res.Trades) == 0 {
		fmt.Fprintln(c.out, "  Sin operaciones en el periodo.")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Entrada", "Salida", "Acciones", "Compra", "Venta", "PnL", "Cierre")

		for i, tr := range res.Trades {
			table.Append(
				fmt.Sprintf("%d", i+1),
				tr.EntryTime.Format("2006-01-02 15:04"),
				tr.ExitTime.Format("2006-01-02 15:04"),
				fmt.Sprintf("%d", tr.Shares),
				fmt.Sprintf("$%.2f", tr.EntryPrice),
				fmt.Sprintf("$%.2f", tr.ExitPrice),
				fmt.Sprintf("$%+.2f", tr.PnL),
				tr.ExitReason,
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n  --- RESUMEN ---\n")
	fmt.Fprintf(c.out, "  Capital inicial:   $%.2f\n", res.InitialCash)
	fmt.Fprintf(c.out, "  Capital final:     $%.2f\n", res.FinalCash)
	fmt.Fprintf(c.out, "  Rentabilidad:      %+.2f%%\n", res.ProfitPct)
	fmt.Fprintf(c.out, "  Operaciones:       %d\n", res.TradeCount)
	fmt.Fprintf(c.out, "  Dinero invertido:  $%.2f\n", res.MoneySpent)
	fmt.Fprintf(c.out, "  Dinero recuperado: $%.2f\n", res.MoneyRetrieved)

	fmt.Fprintf(c.out, "\n  --- VEREDICTO ---\n")
	switch {
	case res.TradeCount == 0:
		fmt.Fprintf(c.out, "  SIN SEÑALES: el genoma no operó en este periodo.\n")
	case res.ProfitPct > 0:
		fmt.Fprintf(c.out, "  RENTABLE: %+.2f%% en el periodo ($%+.2f netos).\n",
			res.ProfitPct, res.NetPnL())
	default:
		fmt.Fprintf(c.out, "  NO RENTABLE: %+.2f%% en el periodo ($%+.2f netos).\n",
			res.ProfitPct, res.NetPnL())
	}
	fmt.Fprintln(c.out)
}
