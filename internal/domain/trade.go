package domain

import "time"

// Motivos de cierre de un trade.
const (
	ExitReasonSignal    = "signal"      // señal de venta del scorer
	ExitReasonEndOfData = "end_of_data" // liquidación forzada al agotar las barras
)

// Trade es un round-trip completado del simulador. Inmutable una vez
// añadido al ledger.
type Trade struct {
	ID         string // uuid
	Ticker     string
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Shares     int64
	PnL        float64 // (exit − entry) × shares
	ExitReason string
}

// RunResult es el agregado de una pasada completa del simulador sobre un
// ticker: ledger ordenado + estadísticas de resumen. El simulador lo
// devuelve y no retiene referencia; siempre queda liquidado (sin posición
// abierta).
type RunResult struct {
	Ticker      string
	Interval    string
	Start       time.Time
	End         time.Time
	InitialCash float64
	FinalCash   float64

	// ProfitPct es el retorno neto en puntos porcentuales:
	// (final − inicial) / inicial × 100.
	ProfitPct float64

	TradeCount     int
	MoneySpent     float64 // Σ shares × precio de entrada
	MoneyRetrieved float64 // Σ shares × precio de salida
	Trades         []Trade
}

// NetPnL devuelve la ganancia neta absoluta del run.
func (r RunResult) NetPnL() float64 {
	return r.FinalCash - r.InitialCash
}

// LossPct devuelve la magnitud de la pérdida en puntos porcentuales:
// |min(0, ProfitPct)|. Es el término de pérdida del fitness.
func (r RunResult) LossPct() float64 {
	if r.ProfitPct < 0 {
		return -r.ProfitPct
	}
	return 0
}
