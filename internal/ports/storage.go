package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

// BarCacheStorage persiste series de barras por (ticker, intervalo) para no
// repetir peticiones al proveedor dentro del TTL.
type BarCacheStorage interface {
	// SaveBars reemplaza la serie cacheada del par (ticker, interval) y
	// registra el instante de descarga.
	SaveBars(ctx context.Context, ticker, interval string, bars []domain.Bar, fetchedAt time.Time) error

	// LoadBars devuelve la serie cacheada y su instante de descarga.
	// ok es false si no hay entrada para el par.
	LoadBars(ctx context.Context, ticker, interval string) (bars []domain.Bar, fetchedAt time.Time, ok bool, err error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
