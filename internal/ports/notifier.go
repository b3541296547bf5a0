package ports

import (
	"context"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

// Notifier presenta las señales del ciclo de vigilancia al usuario.
type Notifier interface {
	// NotifySignals muestra el watchlist: score y acción por ticker.
	// En la implementación de consola, imprime una tabla formateada.
	NotifySignals(ctx context.Context, signals []domain.TickerSignal) error
}
