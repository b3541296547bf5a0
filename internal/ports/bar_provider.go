package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

// BarProvider entrega la serie de barras de un ticker con los indicadores
// ya calculados y las columnas prev adjuntas.
type BarProvider interface {
	// Fetch devuelve las barras de [start, end] ordenadas por timestamp
	// ascendente. Los zero values en start/end no acotan por su extremo.
	// interval usa notación corta ("5m", "1h", "1d").
	// Si el proveedor no puede entregar datos devuelve un error que
	// envuelve domain.ErrDataUnavailable.
	Fetch(ctx context.Context, ticker string, start, end time.Time, interval string) ([]domain.Bar, error)
}
