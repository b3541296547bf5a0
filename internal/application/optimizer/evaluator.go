package optimizer

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/application/backtest"
	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

// WorstFitness es el centinela que recibe un candidato cuando todos sus
// tickers fallan: sigue participando en la selección, pero pierde contra
// cualquier evaluación real.
const WorstFitness = -1e9

// FitnessWeights pondera los tres términos del fitness. El peso de pérdida
// a cero viene de la configuración de referencia y es intencionado: se
// optimiza solo beneficio y actividad.
type FitnessWeights struct {
	Profit float64
	Loss   float64
	Trades float64
}

// EvaluatorConfig parametriza la evaluación de un genoma.
type EvaluatorConfig struct {
	Pool         []string // tickers candidatos al muestreo
	SampleSize   int      // tickers por evaluación
	LookbackDays int
	Interval     string
	InitialCash  float64
	Weights      FitnessWeights
}

// Evaluator reduce un genoma a un fitness escalar corriendo el simulador
// sobre una muestra de tickers.
type Evaluator struct {
	provider ports.BarProvider
	cfg      EvaluatorConfig
}

// NewEvaluator crea un evaluador con defaults para los campos sin valor.
func NewEvaluator(provider ports.BarProvider, cfg EvaluatorConfig) *Evaluator {
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 3
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 60
	}
	if cfg.Interval == "" {
		cfg.Interval = "5m"
	}
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = 100_000
	}
	if cfg.Weights == (FitnessWeights{}) {
		cfg.Weights = FitnessWeights{Profit: 1.0, Loss: 0.0, Trades: 0.1}
	}
	return &Evaluator{provider: provider, cfg: cfg}
}

// SampleTickers sortea SampleSize tickers del pool sin reemplazo. La fuente
// aleatoria la inyecta el caller: el optimizador sortea todas las muestras
// de una generación en secuencia para que el resultado no dependa del
// orden de ejecución de los workers.
func (e *Evaluator) SampleTickers(rng *rand.Rand) []string {
	n := e.cfg.SampleSize
	if n > len(e.cfg.Pool) {
		n = len(e.cfg.Pool)
	}
	tickers := make([]string, 0, n)
	for _, idx := range rng.Perm(len(e.cfg.Pool))[:n] {
		tickers = append(tickers, e.cfg.Pool[idx])
	}
	return tickers
}

// Evaluate corre el simulador sobre cada ticker de la muestra y reduce los
// resultados a un fitness. Los tickers que fallan (datos no disponibles,
// errores de red) se saltan y quedan fuera de las medias; si fallan todos,
// el candidato recibe el centinela WorstFitness.
func (e *Evaluator) Evaluate(ctx context.Context, g domain.Genome, tickers []string) (float64, []domain.RunResult) {
	end := time.Now()
	start := end.AddDate(0, 0, -e.cfg.LookbackDays)

	results := make([]domain.RunResult, 0, len(tickers))
	for _, ticker := range tickers {
		res, err := backtest.RunTicker(ctx, e.provider, ticker,
			start, end, e.cfg.Interval, g, e.cfg.InitialCash)
		if err != nil {
			slog.Warn("evaluator: ticker descartado", "ticker", ticker, "err", err)
			continue
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		slog.Warn("evaluator: sin datos para ningún ticker de la muestra", "tickers", tickers)
		return WorstFitness, nil
	}

	var sumProfit, sumLoss, sumTrades float64
	for _, r := range results {
		sumProfit += r.ProfitPct
		sumLoss += r.LossPct()
		sumTrades += float64(r.TradeCount)
	}

	n := float64(len(results))
	w := e.cfg.Weights
	fitness := w.Profit*(sumProfit/n) - w.Loss*(sumLoss/n) + w.Trades*(sumTrades/n)
	return fitness, results
}
