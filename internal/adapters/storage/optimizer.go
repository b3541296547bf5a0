package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

const optimizerSchema = `
CREATE TABLE IF NOT EXISTS optimizer_generations (
    gen         INTEGER PRIMARY KEY,
    max_fitness REAL NOT NULL DEFAULT 0,
    avg_fitness REAL NOT NULL DEFAULT 0,
    min_fitness REAL NOT NULL DEFAULT 0,
    best_idx    INTEGER NOT NULL DEFAULT -1,
    saved_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS optimizer_population (
    gen       INTEGER NOT NULL,
    idx       INTEGER NOT NULL,
    coef_bollinger        REAL NOT NULL,
    coef_rsi              REAL NOT NULL,
    coef_macd             REAL NOT NULL,
    coef_stoch            REAL NOT NULL,
    coef_adx_sma          REAL NOT NULL,
    coef_volume           REAL NOT NULL,
    adx_trend_threshold   REAL NOT NULL,
    buy_sell_threshold    REAL NOT NULL,
    rsi_overbought        REAL NOT NULL,
    rsi_oversold          REAL NOT NULL,
    stoch_overbought      REAL NOT NULL,
    stoch_oversold        REAL NOT NULL,
    volume_sma_multiplier REAL NOT NULL,
    fitness   REAL NOT NULL DEFAULT 0,
    evaluated INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (gen, idx)
);

CREATE TABLE IF NOT EXISTS active_genome (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    coef_bollinger        REAL NOT NULL,
    coef_rsi              REAL NOT NULL,
    coef_macd             REAL NOT NULL,
    coef_stoch            REAL NOT NULL,
    coef_adx_sma          REAL NOT NULL,
    coef_volume           REAL NOT NULL,
    adx_trend_threshold   REAL NOT NULL,
    buy_sell_threshold    REAL NOT NULL,
    rsi_overbought        REAL NOT NULL,
    rsi_oversold          REAL NOT NULL,
    stoch_overbought      REAL NOT NULL,
    stoch_oversold        REAL NOT NULL,
    volume_sma_multiplier REAL NOT NULL,
    source     TEXT NOT NULL DEFAULT 'default',
    updated_at DATETIME NOT NULL
);
`

// genomeColumns lists the genome columns in coefficient order. Every query
// that reads or writes a genome uses this list so the column order can never
// drift from the domain.Genome indices.
var genomeColumns = []string{
	"coef_bollinger",
	"coef_rsi",
	"coef_macd",
	"coef_stoch",
	"coef_adx_sma",
	"coef_volume",
	"adx_trend_threshold",
	"buy_sell_threshold",
	"rsi_overbought",
	"rsi_oversold",
	"stoch_overbought",
	"stoch_oversold",
	"volume_sma_multiplier",
}

// ApplyOptimizerSchema creates optimizer tables if they don't exist.
func (s *SQLiteStorage) ApplyOptimizerSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, optimizerSchema); err != nil {
		return fmt.Errorf("storage.ApplyOptimizerSchema: %w", err)
	}
	// Run migrations silently — they fail if columns already exist, which is fine
	for _, stmt := range []string{
		"ALTER TABLE optimizer_population ADD COLUMN evaluated INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE optimizer_generations ADD COLUMN best_idx INTEGER NOT NULL DEFAULT -1",
		"ALTER TABLE active_genome ADD COLUMN source TEXT NOT NULL DEFAULT 'default'",
	} {
		s.db.ExecContext(ctx, stmt) // ignore errors (column already exists)
	}
	return nil
}

// SaveGeneration persists a full generation snapshot, replacing any previous
// snapshot with the same index. The summary row and the population rows go
// in one transaction so a crash can't leave them out of sync.
func (s *SQLiteStorage) SaveGeneration(ctx context.Context, rec domain.GenerationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveGeneration: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM optimizer_population WHERE gen = ?`, rec.Gen); err != nil {
		return fmt.Errorf("storage.SaveGeneration: clear population: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO optimizer_generations (gen, max_fitness, avg_fitness, min_fitness, best_idx, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(gen) DO UPDATE SET
			max_fitness = excluded.max_fitness,
			avg_fitness = excluded.avg_fitness,
			min_fitness = excluded.min_fitness,
			best_idx    = excluded.best_idx,
			saved_at    = excluded.saved_at`,
		rec.Gen, rec.MaxFitness, rec.AvgFitness, rec.MinFitness,
		bestIndex(rec), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("storage.SaveGeneration: upsert summary: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO optimizer_population (gen, idx, %s, fitness, evaluated)
		VALUES (?, ?%s, ?, ?)`,
		strings.Join(genomeColumns, ", "),
		strings.Repeat(", ?", len(genomeColumns))))
	if err != nil {
		return fmt.Errorf("storage.SaveGeneration: prepare: %w", err)
	}
	defer stmt.Close()

	for i, ind := range rec.Population {
		args := make([]any, 0, 4+len(genomeColumns))
		args = append(args, rec.Gen, i)
		args = append(args, genomeArgs(ind.Genome)...)
		args = append(args, ind.Fitness, boolToInt(ind.Evaluated))
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("storage.SaveGeneration: insert individual %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveGeneration: commit: %w", err)
	}
	return nil
}

// LoadLastGeneration returns the highest-numbered persisted generation.
// ok is false if the optimizer never ran.
func (s *SQLiteStorage) LoadLastGeneration(ctx context.Context) (domain.GenerationRecord, bool, error) {
	var (
		rec     domain.GenerationRecord
		bestIdx int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT gen, max_fitness, avg_fitness, min_fitness, best_idx
		FROM optimizer_generations ORDER BY gen DESC LIMIT 1`).
		Scan(&rec.Gen, &rec.MaxFitness, &rec.AvgFitness, &rec.MinFitness, &bestIdx)
	if err == sql.ErrNoRows {
		return domain.GenerationRecord{}, false, nil
	}
	if err != nil {
		return domain.GenerationRecord{}, false, fmt.Errorf("storage.LoadLastGeneration: query summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, fitness, evaluated
		FROM optimizer_population WHERE gen = ? ORDER BY idx ASC`,
		strings.Join(genomeColumns, ", ")), rec.Gen)
	if err != nil {
		return domain.GenerationRecord{}, false, fmt.Errorf("storage.LoadLastGeneration: query population: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ind       domain.Individual
			evaluated int
		)
		dest := append(genomePtrs(&ind.Genome), &ind.Fitness, &evaluated)
		if err := rows.Scan(dest...); err != nil {
			return domain.GenerationRecord{}, false, fmt.Errorf("storage.LoadLastGeneration: scan: %w", err)
		}
		ind.Evaluated = evaluated != 0
		rec.Population = append(rec.Population, ind)
	}
	if err := rows.Err(); err != nil {
		return domain.GenerationRecord{}, false, fmt.Errorf("storage.LoadLastGeneration: rows: %w", err)
	}

	if bestIdx >= 0 && bestIdx < len(rec.Population) {
		rec.Best = rec.Population[bestIdx]
	} else if len(rec.Population) > 0 {
		// Snapshot anterior a best_idx: reconstruir por argmax
		rec.Best = rec.Population[0]
		for _, ind := range rec.Population[1:] {
			if ind.Fitness > rec.Best.Fitness {
				rec.Best = ind
			}
		}
	}
	return rec, true, nil
}

// ResetOptimizer wipes all generation snapshots. The active genome survives:
// wiping history should never change what the watcher trades with.
func (s *SQLiteStorage) ResetOptimizer(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM optimizer_population`); err != nil {
		return fmt.Errorf("storage.ResetOptimizer: clear population: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM optimizer_generations`); err != nil {
		return fmt.Errorf("storage.ResetOptimizer: clear generations: %w", err)
	}
	return nil
}

// SaveActiveGenome sets the genome the watcher and paper trader score with.
func (s *SQLiteStorage) SaveActiveGenome(ctx context.Context, g domain.Genome, source string) error {
	sets := make([]string, 0, len(genomeColumns))
	for _, col := range genomeColumns {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	query := fmt.Sprintf(`
		INSERT INTO active_genome (id, %s, source, updated_at)
		VALUES (1%s, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			%s,
			source     = excluded.source,
			updated_at = excluded.updated_at`,
		strings.Join(genomeColumns, ", "),
		strings.Repeat(", ?", len(genomeColumns)),
		strings.Join(sets, ",\n\t\t\t"))

	args := append(genomeArgs(g), source, time.Now().UTC().Format(time.RFC3339))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("storage.SaveActiveGenome: %w", err)
	}
	return nil
}

// LoadActiveGenome returns the active genome and where it came from
// ("default", "optimizer", "manual"). ok is false if none was ever set.
func (s *SQLiteStorage) LoadActiveGenome(ctx context.Context) (domain.Genome, string, bool, error) {
	var (
		g      domain.Genome
		source string
	)
	dest := append(genomePtrs(&g), &source)
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s, source FROM active_genome WHERE id = 1`,
		strings.Join(genomeColumns, ", "))).Scan(dest...)
	if err == sql.ErrNoRows {
		return domain.Genome{}, "", false, nil
	}
	if err != nil {
		return domain.Genome{}, "", false, fmt.Errorf("storage.LoadActiveGenome: %w", err)
	}
	return g, source, true, nil
}

// --- helpers internos ---

func genomeArgs(g domain.Genome) []any {
	args := make([]any, len(g))
	for i, v := range g {
		args[i] = v
	}
	return args
}

func genomePtrs(g *domain.Genome) []any {
	ptrs := make([]any, len(g))
	for i := range g {
		ptrs[i] = &g[i]
	}
	return ptrs
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// bestIndex busca la posición del mejor individuo dentro de la población.
// -1 si el best no está en ella (no debería pasar con elitismo activo).
func bestIndex(rec domain.GenerationRecord) int {
	for i, ind := range rec.Population {
		if ind.Genome == rec.Best.Genome && ind.Fitness == rec.Best.Fitness {
			return i
		}
	}
	return -1
}
