package paper_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tickerbot/internal/application/paper"
	"github.com/alejandrodnm/tickerbot/internal/domain"
)

var day = time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)

// --- mocks ---

// memStore es un PortfolioStorage en memoria.
type memStore struct {
	p       *domain.Portfolio
	trades  []domain.ClosedTrade
	saves   int
	loadErr error
	saveErr error
}

func (s *memStore) LoadPortfolio(context.Context) (domain.Portfolio, bool, error) {
	if s.loadErr != nil {
		return domain.Portfolio{}, false, s.loadErr
	}
	if s.p == nil {
		return domain.Portfolio{}, false, nil
	}
	return *s.p, true, nil
}

func (s *memStore) SavePortfolio(_ context.Context, p domain.Portfolio) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.p = &p
	return nil
}

func (s *memStore) SaveClosedTrade(_ context.Context, t domain.ClosedTrade) error {
	s.trades = append(s.trades, t)
	return nil
}

func (s *memStore) ResetPortfolio(context.Context) error {
	s.p, s.trades = nil, nil
	return nil
}

// fakeLister sirve series por ticker para ReplayDir.
type fakeLister struct {
	series  map[string][]domain.Bar
	tickers []string
	failing map[string]bool
}

func (l *fakeLister) ListTickers() ([]string, error) { return l.tickers, nil }

func (l *fakeLister) Fetch(_ context.Context, ticker string, _, _ time.Time, _ string) ([]domain.Bar, error) {
	if l.failing[ticker] {
		return nil, fmt.Errorf("read %s: %w", ticker, domain.ErrDataUnavailable)
	}
	return l.series[ticker], nil
}

// --- helpers ---

func signal(ticker string, action domain.Action, close float64) domain.TickerSignal {
	return domain.TickerSignal{Ticker: ticker, At: day, Close: close, Score: 2, Action: action}
}

// makeBar construye una barra que solo dispara la regla de RSI: 25 compra,
// 75 vende, 50 mantiene con el genoma por defecto.
func makeBar(i int, close, rsi float64) domain.Bar {
	return domain.Bar{
		Timestamp: day.Add(time.Duration(i) * 5 * time.Minute),
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    2000,
		Indicators: map[string]float64{
			domain.IndRSI:       rsi,
			domain.IndMACD:      0.5,
			domain.IndSignal:    0.5,
			domain.IndBBUpper:   close + 2,
			domain.IndBBLower:   close - 2,
			domain.IndSMA20:     close,
			domain.IndADX:       20,
			domain.IndStochK:    50,
			domain.IndStochD:    50,
			domain.IndVolumeSMA: 1000,
		},
	}
}

func buyBar(i int, close float64) domain.Bar  { return makeBar(i, close, 25) }
func sellBar(i int, close float64) domain.Bar { return makeBar(i, close, 75) }
func holdBar(i int, close float64) domain.Bar { return makeBar(i, close, 50) }

// --- Step ---

func TestStep_BuyOnFirstSignal(t *testing.T) {
	p := domain.NewPortfolio(100_000)

	exec, last := paper.Step(&p, signal("AAPL", domain.ActionBuy, 150), 10, "")

	require.NotNil(t, exec)
	assert.Equal(t, domain.ActionBuy, last)
	assert.Equal(t, int64(10), exec.Qty)
	assert.InDelta(t, 98_500, p.Cash, 1e-9)
	assert.Equal(t, int64(10), p.Positions["AAPL"].Qty)
}

func TestStep_RepeatedBuyDoesNotPyramid(t *testing.T) {
	p := domain.NewPortfolio(100_000)

	_, last := paper.Step(&p, signal("AAPL", domain.ActionBuy, 150), 10, "")
	exec, last := paper.Step(&p, signal("AAPL", domain.ActionBuy, 151), 10, last)

	assert.Nil(t, exec)
	assert.Equal(t, domain.ActionBuy, last)
	assert.Equal(t, int64(10), p.Positions["AAPL"].Qty)
}

func TestStep_HoldRearmsTrigger(t *testing.T) {
	p := domain.NewPortfolio(100_000)

	_, last := paper.Step(&p, signal("AAPL", domain.ActionBuy, 100), 10, "")
	exec, last := paper.Step(&p, signal("AAPL", domain.ActionHold, 101), 10, last)
	assert.Nil(t, exec)

	exec, _ = paper.Step(&p, signal("AAPL", domain.ActionBuy, 102), 10, last)
	require.NotNil(t, exec)
	pos := p.Positions["AAPL"]
	assert.Equal(t, int64(20), pos.Qty)
	assert.InDelta(t, 101, pos.AvgPrice, 1e-9) // media ponderada de 100 y 102
}

func TestStep_SellRealizesPnL(t *testing.T) {
	p := domain.NewPortfolio(100_000)
	require.NoError(t, p.Buy("AAPL", 10, 100, day))

	exec, last := paper.Step(&p, signal("AAPL", domain.ActionSell, 110), 10, "")

	require.NotNil(t, exec)
	require.NotNil(t, exec.Trade)
	assert.Equal(t, domain.ActionSell, last)
	assert.InDelta(t, 100, exec.Trade.PnL, 1e-9)
	assert.NotContains(t, p.Positions, "AAPL")
	assert.InDelta(t, 100_100, p.Cash, 1e-9)
}

func TestStep_SellWithoutSharesSkipsSilently(t *testing.T) {
	p := domain.NewPortfolio(100_000)

	exec, last := paper.Step(&p, signal("AAPL", domain.ActionSell, 110), 10, "")

	assert.Nil(t, exec)
	// La acción queda registrada aunque la orden no se ejecute: una racha
	// de barras Vender no reintenta en cada barra.
	assert.Equal(t, domain.ActionSell, last)
	assert.InDelta(t, 100_000, p.Cash, 1e-9)
}

func TestStep_BuyWithoutCashSkips(t *testing.T) {
	p := domain.NewPortfolio(50)

	exec, last := paper.Step(&p, signal("AAPL", domain.ActionBuy, 150), 10, "")

	assert.Nil(t, exec)
	assert.Equal(t, domain.ActionBuy, last)
	assert.Empty(t, p.Positions)
}

// --- Replay ---

func TestReplay_RoundTrip(t *testing.T) {
	bars := []domain.Bar{buyBar(0, 100), holdBar(1, 105), sellBar(2, 110), holdBar(3, 110)}

	res, err := paper.Replay("AAPL", bars, domain.DefaultGenome(), paper.Config{InitialCash: 100_000, TradeQty: 10})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", res.Ticker)
	assert.Equal(t, 4, res.Bars)
	assert.Equal(t, 2, res.Executed)
	assert.InDelta(t, 100_100, res.FinalCash, 1e-9)
	assert.InDelta(t, 100, res.RealizedPnL, 1e-9)
	assert.InDelta(t, 0, res.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 0, res.PositionValue, 1e-9)
	assert.InDelta(t, 100, res.NetPnL, 1e-9)
}

func TestReplay_OpenPositionValuedAtLastClose(t *testing.T) {
	bars := []domain.Bar{buyBar(0, 100), holdBar(1, 104)}

	res, err := paper.Replay("AAPL", bars, domain.DefaultGenome(), paper.Config{InitialCash: 100_000, TradeQty: 10})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Executed)
	assert.InDelta(t, 99_000, res.FinalCash, 1e-9)
	assert.InDelta(t, 1_040, res.PositionValue, 1e-9)
	assert.InDelta(t, 40, res.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 40, res.NetPnL, 1e-9)
}

func TestReplay_RepeatedBuysDoNotPyramid(t *testing.T) {
	bars := []domain.Bar{buyBar(0, 100), buyBar(1, 101), buyBar(2, 102)}

	res, err := paper.Replay("AAPL", bars, domain.DefaultGenome(), paper.Config{InitialCash: 100_000, TradeQty: 10})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Executed)
	assert.InDelta(t, 99_000, res.FinalCash, 1e-9)
}

func TestReplay_EmptyBars(t *testing.T) {
	_, err := paper.Replay("AAPL", nil, domain.DefaultGenome(), paper.Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestReplay_MissingIndicatorFails(t *testing.T) {
	bad := holdBar(0, 100)
	delete(bad.Indicators, domain.IndADX)

	_, err := paper.Replay("AAPL", []domain.Bar{bad}, domain.DefaultGenome(), paper.Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingIndicator)
}

// --- ReplayDir ---

func TestReplayDir_OneResultPerTicker(t *testing.T) {
	lister := &fakeLister{
		tickers: []string{"AAPL", "BAD", "MSFT"},
		series: map[string][]domain.Bar{
			"AAPL": {buyBar(0, 100), sellBar(1, 110)},
			"MSFT": {buyBar(0, 50), holdBar(1, 55)},
		},
		failing: map[string]bool{"BAD": true},
	}

	results, err := paper.ReplayDir(context.Background(), lister, domain.DefaultGenome(), paper.Config{})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "AAPL", results[0].Ticker)
	assert.Equal(t, "MSFT", results[1].Ticker)
	// Cada serie corre con su propio portfolio.
	assert.InDelta(t, 100, results[0].NetPnL, 1e-9)
	assert.InDelta(t, 50, results[1].NetPnL, 1e-9)
}

func TestReplayDir_EmptyDirErrors(t *testing.T) {
	lister := &fakeLister{}

	_, err := paper.ReplayDir(context.Background(), lister, domain.DefaultGenome(), paper.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hay series")
}

// --- Engine ---

func TestApply_CreatesPortfolioOnFirstCycle(t *testing.T) {
	store := &memStore{}
	eng := paper.New(store, paper.Config{InitialCash: 100_000, TradeQty: 10})

	res, err := eng.Apply(context.Background(), []domain.TickerSignal{signal("AAPL", domain.ActionBuy, 150)})
	require.NoError(t, err)

	require.Len(t, res.Executed, 1)
	assert.InDelta(t, 98_500, res.Cash, 1e-9)
	assert.Equal(t, 1, res.Positions)
	assert.Equal(t, 1, store.saves)
	require.NotNil(t, store.p)
	assert.Equal(t, int64(10), store.p.Positions["AAPL"].Qty)
}

func TestApply_EdgeTriggerAcrossCycles(t *testing.T) {
	store := &memStore{}
	eng := paper.New(store, paper.Config{InitialCash: 100_000, TradeQty: 10})
	ctx := context.Background()

	res, err := eng.Apply(ctx, []domain.TickerSignal{signal("AAPL", domain.ActionBuy, 150)})
	require.NoError(t, err)
	require.Len(t, res.Executed, 1)

	res, err = eng.Apply(ctx, []domain.TickerSignal{signal("AAPL", domain.ActionBuy, 151)})
	require.NoError(t, err)
	assert.Empty(t, res.Executed)
	assert.Equal(t, 1, store.saves)
}

func TestApply_SellPersistsClosedTrade(t *testing.T) {
	store := &memStore{}
	eng := paper.New(store, paper.Config{InitialCash: 100_000, TradeQty: 10})
	ctx := context.Background()

	_, err := eng.Apply(ctx, []domain.TickerSignal{signal("AAPL", domain.ActionBuy, 100)})
	require.NoError(t, err)

	res, err := eng.Apply(ctx, []domain.TickerSignal{signal("AAPL", domain.ActionSell, 110)})
	require.NoError(t, err)

	require.Len(t, res.Executed, 1)
	require.Len(t, store.trades, 1)
	assert.InDelta(t, 100, store.trades[0].PnL, 1e-9)
	assert.Equal(t, 0, res.Positions)
}

func TestApply_NoExecutionsSkipsSave(t *testing.T) {
	store := &memStore{}
	eng := paper.New(store, paper.Config{InitialCash: 100_000, TradeQty: 10})

	res, err := eng.Apply(context.Background(), []domain.TickerSignal{
		signal("AAPL", domain.ActionHold, 150),
		signal("MSFT", domain.ActionHold, 300),
	})
	require.NoError(t, err)

	assert.Empty(t, res.Executed)
	assert.Equal(t, 0, store.saves)
}

func TestApply_ResumesFromStoredPortfolio(t *testing.T) {
	stored := domain.NewPortfolio(100_000)
	require.NoError(t, stored.Buy("AAPL", 10, 100, day))
	store := &memStore{p: &stored}
	eng := paper.New(store, paper.Config{InitialCash: 999, TradeQty: 10})

	res, err := eng.Apply(context.Background(), []domain.TickerSignal{signal("AAPL", domain.ActionHold, 105)})
	require.NoError(t, err)

	assert.InDelta(t, 99_000, res.Cash, 1e-9)
	assert.Equal(t, 1, res.Positions)
}

func TestApply_LoadErrorPropagates(t *testing.T) {
	store := &memStore{loadErr: fmt.Errorf("disco roto")}
	eng := paper.New(store, paper.Config{})

	_, err := eng.Apply(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disco roto")
}

func TestPortfolio_LoadsOnDemand(t *testing.T) {
	store := &memStore{}
	eng := paper.New(store, paper.Config{InitialCash: 42_000})

	p, err := eng.Portfolio(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 42_000, p.Cash, 1e-9)
	assert.Empty(t, p.Positions)
}
