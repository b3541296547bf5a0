package alphavantage

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

// Cached envuelve un BarProvider con una cache persistente por (ticker,
// intervalo). Guarda la serie completa que entrega el proveedor y sirve
// recortes de ella mientras la entrada siga fresca; con 16 tickers y 7
// requests por ticker, sin cache el free tier no da para un solo ciclo.
type Cached struct {
	provider ports.BarProvider
	store    ports.BarCacheStorage
	ttl      time.Duration
}

// NewCached crea el wrapper con el TTL dado.
func NewCached(provider ports.BarProvider, store ports.BarCacheStorage, ttl time.Duration) *Cached {
	return &Cached{provider: provider, store: store, ttl: ttl}
}

// Fetch devuelve la serie cacheada si sigue fresca; si no, descarga la
// serie completa y reemplaza la entrada. Si la descarga falla y existe una
// entrada (aunque esté caducada), la sirve como fallback antes que fallar.
func (c *Cached) Fetch(ctx context.Context, ticker string, start, end time.Time, interval string) ([]domain.Bar, error) {
	cached, fetchedAt, ok, err := c.store.LoadBars(ctx, ticker, interval)
	if err != nil {
		slog.Warn("bar cache read failed", "ticker", ticker, "err", err)
		ok = false
	}
	if ok && time.Since(fetchedAt) < c.ttl {
		return filterRange(cached, start, end), nil
	}

	// Rango completo: la cache guarda toda la serie disponible
	fresh, err := c.provider.Fetch(ctx, ticker, time.Time{}, time.Time{}, interval)
	if err != nil {
		if ok {
			slog.Warn("provider failed, serving stale cache",
				"ticker", ticker,
				"age", time.Since(fetchedAt).Round(time.Second),
				"err", err,
			)
			return filterRange(cached, start, end), nil
		}
		return nil, err
	}

	if err := c.store.SaveBars(ctx, ticker, interval, fresh, time.Now()); err != nil {
		slog.Warn("bar cache write failed", "ticker", ticker, "err", err)
	}
	return filterRange(fresh, start, end), nil
}
