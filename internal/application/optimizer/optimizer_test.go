package optimizer_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tickerbot/internal/adapters/storage"
	"github.com/alejandrodnm/tickerbot/internal/application/optimizer"
	"github.com/alejandrodnm/tickerbot/internal/domain"
)

var day = time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)

// --- mocks ---

// fakeProvider sirve la misma serie sintética para cualquier ticker y
// cuenta las llamadas. Los tickers en failing simulan datos no disponibles.
type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	bars    []domain.Bar
	failing map[string]bool
}

func (p *fakeProvider) Fetch(_ context.Context, ticker string, _, _ time.Time, _ string) ([]domain.Bar, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.failing[ticker] {
		return nil, fmt.Errorf("fetch %s: %w", ticker, domain.ErrDataUnavailable)
	}
	return p.bars, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// brokenStore falla al cargar estado.
type brokenStore struct {
	err error
}

func (s *brokenStore) SaveGeneration(context.Context, domain.GenerationRecord) error { return s.err }
func (s *brokenStore) LoadLastGeneration(context.Context) (domain.GenerationRecord, bool, error) {
	return domain.GenerationRecord{}, false, s.err
}
func (s *brokenStore) ResetOptimizer(context.Context) error                       { return s.err }
func (s *brokenStore) SaveActiveGenome(context.Context, domain.Genome, string) error { return s.err }
func (s *brokenStore) LoadActiveGenome(context.Context) (domain.Genome, string, bool, error) {
	return domain.Genome{}, "", false, s.err
}

// --- helpers ---

func newTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ApplyOptimizerSchema(context.Background()))
	return db
}

// makeBar construye una barra que solo dispara la regla de RSI, igual que
// los fixtures del simulador: RSI 25 compra, 75 vende, 50 mantiene.
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

// profitableSeries produce un ciclo compra→venta con +10% para cualquier
// genoma cuyo umbral de RSI lo deje operar; los demás se quedan planos.
func profitableSeries() []domain.Bar {
	return []domain.Bar{
		makeBar(0, 100, 25),
		makeBar(1, 105, 50),
		makeBar(2, 110, 75),
		makeBar(3, 110, 50),
	}
}

func newTestOptimizer(t *testing.T, db *storage.SQLiteStorage, provider *fakeProvider, cfg optimizer.Config) *optimizer.Optimizer {
	t.Helper()
	eval := optimizer.NewEvaluator(provider, optimizer.EvaluatorConfig{
		Pool: []string{"AAPL", "MSFT", "GOOGL", "NVDA"},
	})
	return optimizer.New(eval, db, cfg)
}

func drain(ch <-chan domain.GenerationRecord) []domain.GenerationRecord {
	var recs []domain.GenerationRecord
	for rec := range ch {
		recs = append(recs, rec)
	}
	return recs
}

// --- tests ---

func TestRun_EmitsConfiguredGenerations(t *testing.T) {
	db := newTestStorage(t)
	provider := &fakeProvider{bars: profitableSeries()}
	opt := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  6,
		Generations: 4,
		Workers:     2,
		Seed:        42,
	})

	ch, err := opt.Run(context.Background())
	require.NoError(t, err)
	recs := drain(ch)

	require.Len(t, recs, 4)
	for i, rec := range recs {
		assert.Equal(t, i, rec.Gen)
		require.Len(t, rec.Population, 6)
		for _, ind := range rec.Population {
			assert.True(t, ind.Evaluated)
			require.NoError(t, ind.Genome.Validate())
		}
		// Con elitismo el mejor histórico vive en la población, así que
		// coincide con el máximo de la generación.
		assert.Equal(t, rec.MaxFitness, rec.Best.Fitness)
		assert.GreaterOrEqual(t, rec.MaxFitness, rec.AvgFitness)
		assert.GreaterOrEqual(t, rec.AvgFitness, rec.MinFitness)
	}
}

func TestRun_BestFitnessIsMonotonic(t *testing.T) {
	db := newTestStorage(t)
	provider := &fakeProvider{bars: profitableSeries()}
	opt := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  6,
		Generations: 5,
		Seed:        43,
	})

	ch, err := opt.Run(context.Background())
	require.NoError(t, err)
	recs := drain(ch)

	require.Len(t, recs, 5)
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i].Best.Fitness, recs[i-1].Best.Fitness)
		// El slot 0 de cada generación es el mejor de la anterior, intacto.
		assert.Equal(t, recs[i-1].Best.Genome, recs[i].Population[0].Genome)
		assert.Equal(t, recs[i-1].Best.Fitness, recs[i].Population[0].Fitness)
	}
}

func TestRun_PersistsLastGeneration(t *testing.T) {
	db := newTestStorage(t)
	provider := &fakeProvider{bars: profitableSeries()}
	opt := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  5,
		Generations: 3,
		Seed:        44,
	})

	ch, err := opt.Run(context.Background())
	require.NoError(t, err)
	recs := drain(ch)
	require.Len(t, recs, 3)

	stored, ok, err := db.LoadLastGeneration(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, stored.Gen)
	assert.Equal(t, recs[2].Best.Genome, stored.Best.Genome)
	assert.InDelta(t, recs[2].Best.Fitness, stored.Best.Fitness, 1e-9)
}

func TestRun_ResumesFromStorage(t *testing.T) {
	db := newTestStorage(t)
	provider := &fakeProvider{bars: profitableSeries()}

	first := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  5,
		Generations: 2,
		Seed:        45,
	})
	ch, err := first.Run(context.Background())
	require.NoError(t, err)
	firstRecs := drain(ch)
	require.Len(t, firstRecs, 2)
	bestSoFar := firstRecs[1].Best

	// Misma base de datos: la sesión continúa donde se quedó.
	second := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  5,
		Generations: 5,
		Seed:        45,
	})
	ch, err = second.Run(context.Background())
	require.NoError(t, err)
	recs := drain(ch)

	require.Len(t, recs, 3)
	assert.Equal(t, 2, recs[0].Gen)
	assert.Equal(t, 4, recs[2].Gen)
	assert.Equal(t, bestSoFar.Genome, recs[0].Population[0].Genome)
	assert.GreaterOrEqual(t, recs[0].Best.Fitness, bestSoFar.Fitness)

	// Una tercera sesión con el mismo tope no tiene nada que correr.
	third := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  5,
		Generations: 5,
		Seed:        45,
	})
	ch, err = third.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drain(ch))
}

func TestRun_InitialGenomeSeedsSlotZero(t *testing.T) {
	db := newTestStorage(t)
	provider := &fakeProvider{bars: profitableSeries()}
	seedGenome := domain.DefaultGenome()
	opt := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  4,
		Generations: 1,
		Seed:        46,
		Initial:     &seedGenome,
	})

	ch, err := opt.Run(context.Background())
	require.NoError(t, err)
	recs := drain(ch)

	require.Len(t, recs, 1)
	assert.Equal(t, seedGenome, recs[0].Population[0].Genome)
}

func TestRun_AllTickersFailing(t *testing.T) {
	db := newTestStorage(t)
	provider := &fakeProvider{failing: map[string]bool{
		"AAPL": true, "MSFT": true, "GOOGL": true, "NVDA": true,
	}}
	opt := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  4,
		Generations: 2,
		Seed:        47,
	})

	ch, err := opt.Run(context.Background())
	require.NoError(t, err)
	recs := drain(ch)

	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, optimizer.WorstFitness, rec.Best.Fitness)
		for _, ind := range rec.Population {
			assert.True(t, ind.Evaluated)
			assert.Equal(t, optimizer.WorstFitness, ind.Fitness)
		}
	}
}

func TestRun_CancelClosesStream(t *testing.T) {
	db := newTestStorage(t)
	provider := &fakeProvider{bars: profitableSeries()}
	opt := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  4,
		Generations: 50,
		Seed:        48,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := opt.Run(ctx)
	require.NoError(t, err)

	n := 0
	for range ch {
		n++
		if n == 1 {
			cancel()
		}
	}
	assert.GreaterOrEqual(t, n, 1)
	assert.Less(t, n, 50)
}

func TestRun_DeterministicWithSeed(t *testing.T) {
	runOnce := func() []domain.GenerationRecord {
		db := newTestStorage(t)
		provider := &fakeProvider{bars: profitableSeries()}
		opt := newTestOptimizer(t, db, provider, optimizer.Config{
			Population:  6,
			Generations: 3,
			Workers:     4,
			Seed:        49,
		})
		ch, err := opt.Run(context.Background())
		require.NoError(t, err)
		return drain(ch)
	}

	a := runOnce()
	b := runOnce()

	// Las muestras de tickers se sortean antes de repartir trabajo: el
	// resultado no depende del orden en que terminen los workers.
	require.Len(t, a, 3)
	require.Len(t, b, 3)
	for i := range a {
		assert.Equal(t, a[i].Population, b[i].Population)
		assert.Equal(t, a[i].Best, b[i].Best)
	}
}

func TestRun_EliteSkipsReevaluation(t *testing.T) {
	db := newTestStorage(t)
	provider := &fakeProvider{bars: profitableSeries()}
	opt := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  8,
		Generations: 3,
		Seed:        50,
	})

	ch, err := opt.Run(context.Background())
	require.NoError(t, err)
	drain(ch)

	// 3 tickers por evaluación. Gen 0 evalúa los 8 individuos; en las dos
	// siguientes el slot de élite nunca se reevalúa.
	maxCalls := 3*8 + 2*(3*7)
	assert.LessOrEqual(t, provider.callCount(), maxCalls)
	assert.Greater(t, provider.callCount(), 0)
}

func TestRun_StorageErrorSurfaces(t *testing.T) {
	provider := &fakeProvider{bars: profitableSeries()}
	eval := optimizer.NewEvaluator(provider, optimizer.EvaluatorConfig{Pool: []string{"AAPL"}})
	opt := optimizer.New(eval, &brokenStore{err: fmt.Errorf("disco roto")}, optimizer.Config{Seed: 51})

	_, err := opt.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disco roto")
}

// --- ApplyBest ---

func TestApplyBest_CopiesToActiveGenome(t *testing.T) {
	db := newTestStorage(t)
	provider := &fakeProvider{bars: profitableSeries()}
	opt := newTestOptimizer(t, db, provider, optimizer.Config{
		Population:  5,
		Generations: 2,
		Seed:        52,
	})

	ch, err := opt.Run(context.Background())
	require.NoError(t, err)
	recs := drain(ch)
	require.Len(t, recs, 2)

	best, err := optimizer.ApplyBest(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, recs[1].Best.Genome, best.Genome)

	g, source, ok, err := db.LoadActiveGenome(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, best.Genome, g)
	assert.Equal(t, "optimizer", source)
}

func TestApplyBest_WithoutSession(t *testing.T) {
	db := newTestStorage(t)

	_, err := optimizer.ApplyBest(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hay sesión")
}
