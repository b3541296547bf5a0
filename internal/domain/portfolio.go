package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Errores de negocio del portfolio de paper trading. El auto-trader los
// trata como "operación saltada", no como fallo.
var (
	ErrInsufficientCash   = errors.New("insufficient cash")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Position es la tenencia simulada de un ticker: cantidad y precio medio
// ponderado de compra.
type Position struct {
	Ticker   string
	Qty      int64
	AvgPrice float64
	BuyDate  time.Time // primera compra de la posición
}

// MarketValue devuelve el valor de la posición al precio dado.
func (p Position) MarketValue(price float64) float64 {
	return float64(p.Qty) * price
}

// UnrealizedPnL devuelve la ganancia/pérdida latente al precio dado.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.AvgPrice) * float64(p.Qty)
}

// ClosedTrade registra una venta del paper trader: cantidad vendida, precio
// medio de compra y P&L realizado.
type ClosedTrade struct {
	ID          string // uuid
	Ticker      string
	Qty         int64
	AvgBuyPrice float64
	SellPrice   float64
	PnL         float64
	SoldAt      time.Time
}

// Portfolio es el estado del paper trader: efectivo, posiciones por ticker
// y el histórico de ventas. Se persiste en SQLite y se puede resetear.
type Portfolio struct {
	Cash        float64
	InitialCash float64
	Positions   map[string]Position
	Closed      []ClosedTrade
}

// NewPortfolio crea un portfolio vacío con el efectivo inicial dado.
func NewPortfolio(initialCash float64) Portfolio {
	return Portfolio{
		Cash:        initialCash,
		InitialCash: initialCash,
		Positions:   make(map[string]Position),
	}
}

// Buy compra qty acciones al precio dado. El precio medio de la posición se
// actualiza ponderado por cantidad, como hace un broker con compras
// sucesivas del mismo ticker.
func (p *Portfolio) Buy(ticker string, qty int64, price float64, at time.Time) error {
	if qty <= 0 || price <= 0 {
		return fmt.Errorf("domain.Portfolio.Buy: invalid order qty=%d price=%.2f", qty, price)
	}
	cost := float64(qty) * price
	if p.Cash < cost {
		return fmt.Errorf("domain.Portfolio.Buy: %s x%d at %.2f: %w", ticker, qty, price, ErrInsufficientCash)
	}

	pos, ok := p.Positions[ticker]
	if !ok {
		pos = Position{Ticker: ticker, Qty: qty, AvgPrice: price, BuyDate: at}
	} else {
		totalCost := float64(pos.Qty)*pos.AvgPrice + cost
		pos.Qty += qty
		pos.AvgPrice = totalCost / float64(pos.Qty)
	}
	if p.Positions == nil {
		p.Positions = make(map[string]Position)
	}
	p.Positions[ticker] = pos
	p.Cash -= cost
	return nil
}

// Sell vende qty acciones al precio dado y realiza el P&L contra el precio
// medio de compra. La posición desaparece al llegar a cero.
func (p *Portfolio) Sell(ticker string, qty int64, price float64, at time.Time) (ClosedTrade, error) {
	if qty <= 0 || price <= 0 {
		return ClosedTrade{}, fmt.Errorf("domain.Portfolio.Sell: invalid order qty=%d price=%.2f", qty, price)
	}
	pos, ok := p.Positions[ticker]
	if !ok || pos.Qty < qty {
		return ClosedTrade{}, fmt.Errorf("domain.Portfolio.Sell: %s x%d: %w", ticker, qty, ErrInsufficientShares)
	}

	trade := ClosedTrade{
		ID:          uuid.NewString(),
		Ticker:      ticker,
		Qty:         qty,
		AvgBuyPrice: pos.AvgPrice,
		SellPrice:   price,
		PnL:         (price - pos.AvgPrice) * float64(qty),
		SoldAt:      at,
	}

	p.Cash += float64(qty) * price
	pos.Qty -= qty
	if pos.Qty == 0 {
		delete(p.Positions, ticker)
	} else {
		p.Positions[ticker] = pos
	}
	p.Closed = append(p.Closed, trade)
	return trade, nil
}

// Value devuelve el valor total del portfolio: efectivo más posiciones
// valoradas a los últimos precios conocidos. Las posiciones sin precio se
// valoran a su precio medio de compra.
func (p Portfolio) Value(lastPrices map[string]float64) float64 {
	total := p.Cash
	for ticker, pos := range p.Positions {
		price, ok := lastPrices[ticker]
		if !ok {
			price = pos.AvgPrice
		}
		total += pos.MarketValue(price)
	}
	return total
}

// RealizedPnL devuelve el P&L realizado acumulado de las ventas.
func (p Portfolio) RealizedPnL() float64 {
	var total float64
	for _, t := range p.Closed {
		total += t.PnL
	}
	return total
}

// UnrealizedPnL devuelve el P&L latente de las posiciones abiertas.
func (p Portfolio) UnrealizedPnL(lastPrices map[string]float64) float64 {
	var total float64
	for ticker, pos := range p.Positions {
		if price, ok := lastPrices[ticker]; ok {
			total += pos.UnrealizedPnL(price)
		}
	}
	return total
}
