package notify

import (
	"fmt"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// PrintGeneration imprime una línea de progreso por generación.
func (c *Console) PrintGeneration(rec domain.GenerationRecord, total int) {
	fmt.Fprintf(c.out, "[%s] gen %d/%d  max %.2f  avg %.2f  min %.2f\n",
		time.Now().Format("15:04:05"),
		rec.Gen+1, total, rec.MaxFitness, rec.AvgFitness, rec.MinFitness)
}

// PrintOptimizerResult prints the best genome after the last generation.
func (c *Console) PrintOptimizerResult(rec domain.GenerationRecord) {
	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  OPTIMIZACIÓN COMPLETADA — generación %d\n", rec.Gen+1)
	fmt.Fprintf(c.out, "========================================================\n\n")

	fmt.Fprintf(c.out, "  Fitness: max %.4f  avg %.4f  min %.4f\n", rec.MaxFitness, rec.AvgFitness, rec.MinFitness)
	fmt.Fprintf(c.out, "  Mejor individuo: fitness %.4f\n\n", rec.Best.Fitness)

	table := tablewriter.NewWriter(c.out)
	table.Header("Coeficiente", "Valor", "Rango")

	for i, name := range domain.CoefficientNames {
		r := domain.CoefficientRanges[i]
		table.Append(
			name,
			fmt.Sprintf("%.4f", rec.Best.Genome[i]),
			fmt.Sprintf("[%.1f, %.1f]", r.Min, r.Max),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "\n  Aplícalo con --apply-best para que watcher y paper lo usen.")
	fmt.Fprintln(c.out)
}
