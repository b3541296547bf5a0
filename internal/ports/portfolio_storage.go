package ports

import (
	"context"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

// PortfolioStorage persists paper trading state.
type PortfolioStorage interface {
	// LoadPortfolio devuelve el portfolio persistido con su histórico de
	// ventas. ok es false si nunca se ha guardado uno.
	LoadPortfolio(ctx context.Context) (p domain.Portfolio, ok bool, err error)

	// SavePortfolio persiste efectivo y posiciones. Las ventas cerradas se
	// guardan aparte con SaveClosedTrade según ocurren.
	SavePortfolio(ctx context.Context, p domain.Portfolio) error

	// SaveClosedTrade añade una venta al histórico.
	SaveClosedTrade(ctx context.Context, t domain.ClosedTrade) error

	// ResetPortfolio borra portfolio, posiciones e histórico de ventas.
	ResetPortfolio(ctx context.Context) error
}
