// Package optimizer busca el genoma de scoring con mejor fitness mediante
// un algoritmo genético elitista, generacional y reanudable.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	"github.com/alejandrodnm/tickerbot/internal/ports"
)

// Config parametriza una sesión del optimizador.
type Config struct {
	Population    int
	Generations   int
	Tournament    int
	CrossoverProb float64
	MutationProb  float64
	Workers       int
	Seed          int64

	// Initial siembra el slot 0 de una población nueva (p.ej. el genoma
	// activo). Se ignora al reanudar una sesión persistida.
	Initial *domain.Genome
}

// Optimizer mantiene la población y orquesta el bucle generacional. La
// evaluación de candidatos es paralela; el bucle generación a generación es
// estrictamente secuencial.
type Optimizer struct {
	eval  *Evaluator
	store ports.OptimizerStorage
	cfg   Config
	rng   *rand.Rand
}

// New crea un optimizador con defaults para los campos sin valor. Con
// Seed = 0 la sesión usa una semilla temporal; los tests fijan una.
func New(eval *Evaluator, store ports.OptimizerStorage, cfg Config) *Optimizer {
	if cfg.Population <= 0 {
		cfg.Population = 10
	}
	if cfg.Generations <= 0 {
		cfg.Generations = 20
	}
	if cfg.Tournament <= 0 {
		cfg.Tournament = 3
	}
	if cfg.CrossoverProb <= 0 {
		cfg.CrossoverProb = 0.5
	}
	if cfg.MutationProb <= 0 {
		cfg.MutationProb = 0.2
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU() * 2
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Optimizer{
		eval:  eval,
		store: store,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Run lanza la sesión y devuelve el stream de generaciones completadas. El
// canal se cierra al agotar las generaciones configuradas o al cancelar el
// contexto (comprobado en las fronteras de generación, nunca a mitad de una
// evaluación). Si hay estado persistido, la sesión continúa desde él.
func (o *Optimizer) Run(ctx context.Context) (<-chan domain.GenerationRecord, error) {
	pop, startGen, best, err := o.initialPopulation(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.GenerationRecord)
	go o.loop(ctx, ch, pop, startGen, best)
	return ch, nil
}

// ApplyBest copia el mejor genoma de la sesión persistida a la
// configuración activa que usan watcher y paper trader.
func ApplyBest(ctx context.Context, store ports.OptimizerStorage) (domain.Individual, error) {
	last, ok, err := store.LoadLastGeneration(ctx)
	if err != nil {
		return domain.Individual{}, fmt.Errorf("optimizer: cargar estado: %w", err)
	}
	if !ok {
		return domain.Individual{}, fmt.Errorf("optimizer: no hay sesión persistida que aplicar")
	}
	if err := store.SaveActiveGenome(ctx, last.Best.Genome, "optimizer"); err != nil {
		return domain.Individual{}, fmt.Errorf("optimizer: aplicar mejor genoma: %w", err)
	}
	return last.Best, nil
}

// --- bucle generacional ---

func (o *Optimizer) initialPopulation(ctx context.Context) ([]domain.Individual, int, domain.Individual, error) {
	last, ok, err := o.store.LoadLastGeneration(ctx)
	if err != nil {
		return nil, 0, domain.Individual{}, fmt.Errorf("optimizer: cargar estado: %w", err)
	}
	if ok && len(last.Population) > 0 {
		slog.Info("optimizer: reanudando sesión",
			"last_gen", last.Gen, "best_fitness", last.Best.Fitness)
		return o.breed(last.Population, last.Best), last.Gen + 1, last.Best, nil
	}

	pop := make([]domain.Individual, o.cfg.Population)
	for i := range pop {
		pop[i] = domain.Individual{Genome: domain.RandomGenome(o.rng)}
	}
	if o.cfg.Initial != nil {
		pop[0] = domain.Individual{Genome: o.cfg.Initial.Clamped()}
	}
	slog.Info("optimizer: población inicial aleatoria", "size", len(pop))
	return pop, 0, domain.Individual{}, nil
}

func (o *Optimizer) loop(ctx context.Context, ch chan<- domain.GenerationRecord, pop []domain.Individual, startGen int, best domain.Individual) {
	defer close(ch)

	for gen := startGen; gen < o.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			slog.Info("optimizer: cancelado", "gen", gen)
			return
		}

		o.evaluatePopulation(ctx, pop)
		if ctx.Err() != nil {
			// Los fetches cancelados degradan la evaluación a centinelas:
			// esta generación no se persiste ni se emite
			slog.Info("optimizer: cancelado durante la evaluación", "gen", gen)
			return
		}

		for _, ind := range pop {
			if !best.Evaluated || ind.Fitness > best.Fitness {
				best = ind
			}
		}

		rec := domain.GenerationRecord{
			Gen:        gen,
			Population: append([]domain.Individual(nil), pop...),
			Best:       best,
		}
		rec.Stats()

		if err := o.store.SaveGeneration(ctx, rec); err != nil {
			slog.Warn("optimizer: no se pudo persistir la generación",
				"gen", gen, "err", err)
		}

		select {
		case ch <- rec:
		case <-ctx.Done():
			return
		}

		if gen < o.cfg.Generations-1 {
			pop = o.breed(pop, best)
		}
	}

	slog.Info("optimizer: sesión completada",
		"generations", o.cfg.Generations, "best_fitness", best.Fitness)
}

// breed construye la siguiente población: el mejor histórico ocupa el slot
// 0 intacto (elitismo, garantiza best-so-far monótono) y el resto son hijos
// de torneo + cruce + mutación. Un hijo que no sufre ni cruce ni mutación
// conserva el fitness del padre y se salta la reevaluación.
func (o *Optimizer) breed(pop []domain.Individual, best domain.Individual) []domain.Individual {
	next := make([]domain.Individual, 0, o.cfg.Population)
	next = append(next, best)

	for len(next) < o.cfg.Population {
		parent := tournament(o.rng, pop, o.cfg.Tournament)
		child := parent
		touched := false

		if o.rng.Float64() < o.cfg.CrossoverProb {
			mate := tournament(o.rng, pop, o.cfg.Tournament)
			child.Genome = blendCrossover(o.rng, parent.Genome, mate.Genome)
			touched = true
		}
		if o.rng.Float64() < o.cfg.MutationProb {
			child.Genome = mutate(o.rng, child.Genome)
			touched = true
		}

		if touched {
			child.Fitness = 0
			child.Evaluated = false
		}
		next = append(next, child)
	}
	return next
}

// evaluatePopulation evalúa en paralelo los individuos pendientes con un
// worker pool. Las muestras de tickers se sortean en secuencia de la fuente
// del optimizador antes de repartir trabajo, así el resultado no depende
// del orden en que los workers consuman los jobs.
func (o *Optimizer) evaluatePopulation(ctx context.Context, pop []domain.Individual) {
	type job struct {
		idx     int
		tickers []string
	}
	type result struct {
		idx     int
		fitness float64
	}

	jobs := make([]job, 0, len(pop))
	for i := range pop {
		if pop[i].Evaluated {
			continue
		}
		jobs = append(jobs, job{idx: i, tickers: o.eval.SampleTickers(o.rng)})
	}
	if len(jobs) == 0 {
		return
	}

	workers := o.cfg.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	workCh := make(chan job, len(jobs))
	resultCh := make(chan result, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range workCh {
				fitness, _ := o.eval.Evaluate(ctx, pop[j.idx].Genome, j.tickers)
				resultCh <- result{idx: j.idx, fitness: fitness}
			}
		}()
	}

	for _, j := range jobs {
		workCh <- j
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	evaluated := 0
	for r := range resultCh {
		pop[r.idx].Fitness = r.fitness
		pop[r.idx].Evaluated = true
		evaluated++
	}

	slog.Debug("generación evaluada", "candidates", evaluated, "workers", workers)
}
