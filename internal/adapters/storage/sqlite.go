package storage

// sqlite.go — base del almacenamiento y cache de barras.
//
// Estrategia:
//   - `bar_series`: UNA fila por (ticker, interval) con el instante del último
//     fetch. Es la fuente de verdad para decidir frescura del cache.
//   - `bars`: las barras de cada serie, con los indicadores serializados como
//     JSON. Guardar la serie completa y filtrar rangos en memoria es más simple
//     que cachear por rango, y las series diarias/intradía caben de sobra.
//   - Prune automático al arrancar: series no refrescadas en 7 días se borran
//     junto a sus barras.
//
// Los esquemas del optimizador y del paper trader viven en sus propios
// ficheros (optimizer.go, portfolio.go) y se aplican bajo demanda con
// ApplyOptimizerSchema / ApplyPortfolioSchema.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Una fila por serie cacheada (ticker + intervalo)
CREATE TABLE IF NOT EXISTS bar_series (
    ticker     TEXT NOT NULL,
    interval   TEXT NOT NULL,
    fetched_at DATETIME NOT NULL,
    PRIMARY KEY (ticker, interval)
);

-- Barras de cada serie, indicadores como JSON nombre→valor
CREATE TABLE IF NOT EXISTS bars (
    ticker     TEXT NOT NULL,
    interval   TEXT NOT NULL,
    ts         DATETIME NOT NULL,
    open       REAL NOT NULL,
    high       REAL NOT NULL,
    low        REAL NOT NULL,
    close      REAL NOT NULL,
    volume     REAL NOT NULL,
    indicators TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (ticker, interval, ts)
);

CREATE INDEX IF NOT EXISTS idx_bars_series ON bars(ticker, interval, ts);
`

// seriesRetention marca cuándo una serie cacheada se considera abandonada.
const seriesRetention = 7 * 24 * time.Hour

// SQLiteStorage persiste cache de barras, estado del optimizador y cartera
// del paper trader en un único fichero SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos y aplica el esquema base.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	// SQLite es single-writer: limitar el pool evita SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneStale()
	return s, nil
}

// Close cierra la conexión subyacente.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveBars reemplaza la serie cacheada de (ticker, interval) por la dada.
func (s *SQLiteStorage) SaveBars(ctx context.Context, ticker, interval string, bars []domain.Bar, fetchedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveBars: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bars WHERE ticker = ? AND interval = ?`, ticker, interval); err != nil {
		return fmt.Errorf("storage.SaveBars: clear bars: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bar_series (ticker, interval, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(ticker, interval) DO UPDATE SET fetched_at = excluded.fetched_at`,
		ticker, interval, fetchedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("storage.SaveBars: upsert series: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (ticker, interval, ts, open, high, low, close, volume, indicators)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveBars: prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		ind, err := json.Marshal(b.Indicators)
		if err != nil {
			return fmt.Errorf("storage.SaveBars: marshal indicators: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			ticker, interval, b.Timestamp.UTC().Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume, string(ind)); err != nil {
			return fmt.Errorf("storage.SaveBars: insert bar %s: %w", b.Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveBars: commit: %w", err)
	}
	return nil
}

// LoadBars devuelve la serie cacheada de (ticker, interval). ok es false si
// nunca se guardó nada para esa clave.
func (s *SQLiteStorage) LoadBars(ctx context.Context, ticker, interval string) ([]domain.Bar, time.Time, bool, error) {
	var fetchedStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT fetched_at FROM bar_series WHERE ticker = ? AND interval = ?`,
		ticker, interval).Scan(&fetchedStr)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("storage.LoadBars: query series: %w", err)
	}
	fetchedAt, err := time.Parse(time.RFC3339, fetchedStr)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("storage.LoadBars: parse fetched_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, indicators
		FROM bars WHERE ticker = ? AND interval = ? ORDER BY ts ASC`,
		ticker, interval)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("storage.LoadBars: query bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			tsStr, indStr string
			b             domain.Bar
		)
		if err := rows.Scan(&tsStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &indStr); err != nil {
			return nil, time.Time{}, false, fmt.Errorf("storage.LoadBars: scan: %w", err)
		}
		if b.Timestamp, err = time.Parse(time.RFC3339, tsStr); err != nil {
			return nil, time.Time{}, false, fmt.Errorf("storage.LoadBars: parse ts: %w", err)
		}
		if err := json.Unmarshal([]byte(indStr), &b.Indicators); err != nil {
			return nil, time.Time{}, false, fmt.Errorf("storage.LoadBars: unmarshal indicators: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("storage.LoadBars: rows: %w", err)
	}
	return bars, fetchedAt, true, nil
}

// --- helpers internos ---

// pruneStale borra series (y sus barras) que llevan demasiado sin refrescarse.
// Errores ignorados: el prune es mantenimiento, no puede bloquear el arranque.
func (s *SQLiteStorage) pruneStale() {
	cutoff := time.Now().UTC().Add(-seriesRetention).Format(time.RFC3339)
	s.db.Exec(`DELETE FROM bars WHERE (ticker, interval) IN
		(SELECT ticker, interval FROM bar_series WHERE fetched_at < ?)`, cutoff)
	s.db.Exec(`DELETE FROM bar_series WHERE fetched_at < ?`, cutoff)
}
