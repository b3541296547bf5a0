package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/tickerbot/internal/domain"
)

const portfolioSchema = `
-- Estado singleton del paper trader
CREATE TABLE IF NOT EXISTS portfolio (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    cash         REAL NOT NULL,
    initial_cash REAL NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    ticker    TEXT PRIMARY KEY,
    qty       INTEGER NOT NULL,
    avg_price REAL NOT NULL,
    buy_date  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS closed_trades (
    id            TEXT PRIMARY KEY,
    ticker        TEXT NOT NULL,
    qty           INTEGER NOT NULL,
    avg_buy_price REAL NOT NULL,
    sell_price    REAL NOT NULL,
    pnl           REAL NOT NULL,
    sold_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_trades_sold ON closed_trades(sold_at);
`

// ApplyPortfolioSchema crea las tablas del paper trader si no existen.
func (s *SQLiteStorage) ApplyPortfolioSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, portfolioSchema); err != nil {
		return fmt.Errorf("storage.ApplyPortfolioSchema: %w", err)
	}
	return nil
}

// LoadPortfolio devuelve el portfolio persistido con posiciones e histórico
// de ventas. ok es false si nunca se guardó uno.
func (s *SQLiteStorage) LoadPortfolio(ctx context.Context) (domain.Portfolio, bool, error) {
	var p domain.Portfolio
	err := s.db.QueryRowContext(ctx,
		`SELECT cash, initial_cash FROM portfolio WHERE id = 1`).
		Scan(&p.Cash, &p.InitialCash)
	if err == sql.ErrNoRows {
		return domain.Portfolio{}, false, nil
	}
	if err != nil {
		return domain.Portfolio{}, false, fmt.Errorf("storage.LoadPortfolio: query portfolio: %w", err)
	}

	p.Positions = make(map[string]domain.Position)
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, qty, avg_price, buy_date FROM positions ORDER BY ticker ASC`)
	if err != nil {
		return domain.Portfolio{}, false, fmt.Errorf("storage.LoadPortfolio: query positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			pos     domain.Position
			dateStr string
		)
		if err := rows.Scan(&pos.Ticker, &pos.Qty, &pos.AvgPrice, &dateStr); err != nil {
			return domain.Portfolio{}, false, fmt.Errorf("storage.LoadPortfolio: scan position: %w", err)
		}
		if pos.BuyDate, err = time.Parse(time.RFC3339, dateStr); err != nil {
			return domain.Portfolio{}, false, fmt.Errorf("storage.LoadPortfolio: parse buy_date: %w", err)
		}
		p.Positions[pos.Ticker] = pos
	}
	if err := rows.Err(); err != nil {
		return domain.Portfolio{}, false, fmt.Errorf("storage.LoadPortfolio: positions rows: %w", err)
	}

	trades, err := s.loadClosedTrades(ctx)
	if err != nil {
		return domain.Portfolio{}, false, err
	}
	p.Closed = trades
	return p, true, nil
}

// SavePortfolio persiste efectivo y posiciones. Reemplaza las posiciones
// enteras: son pocas y así el estado en disco siempre refleja el de memoria.
func (s *SQLiteStorage) SavePortfolio(ctx context.Context, p domain.Portfolio) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SavePortfolio: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO portfolio (id, cash, initial_cash, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cash         = excluded.cash,
			initial_cash = excluded.initial_cash,
			updated_at   = excluded.updated_at`,
		p.Cash, p.InitialCash, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("storage.SavePortfolio: upsert portfolio: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("storage.SavePortfolio: clear positions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO positions (ticker, qty, avg_price, buy_date) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SavePortfolio: prepare: %w", err)
	}
	defer stmt.Close()

	for _, pos := range p.Positions {
		if _, err := stmt.ExecContext(ctx,
			pos.Ticker, pos.Qty, pos.AvgPrice, pos.BuyDate.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("storage.SavePortfolio: insert position %s: %w", pos.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SavePortfolio: commit: %w", err)
	}
	return nil
}

// SaveClosedTrade añade una venta al histórico. Idempotente por id.
func (s *SQLiteStorage) SaveClosedTrade(ctx context.Context, t domain.ClosedTrade) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO closed_trades (id, ticker, qty, avg_buy_price, sell_price, pnl, sold_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		t.ID, t.Ticker, t.Qty, t.AvgBuyPrice, t.SellPrice, t.PnL, t.SoldAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("storage.SaveClosedTrade: %w", err)
	}
	return nil
}

// ResetPortfolio borra portfolio, posiciones e histórico de ventas.
func (s *SQLiteStorage) ResetPortfolio(ctx context.Context) error {
	for _, table := range []string{"positions", "closed_trades", "portfolio"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("storage.ResetPortfolio: clear %s: %w", table, err)
		}
	}
	return nil
}

// --- helpers internos ---

func (s *SQLiteStorage) loadClosedTrades(ctx context.Context) ([]domain.ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, qty, avg_buy_price, sell_price, pnl, sold_at
		FROM closed_trades ORDER BY sold_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadPortfolio: query closed trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.ClosedTrade
	for rows.Next() {
		var (
			t       domain.ClosedTrade
			soldStr string
		)
		if err := rows.Scan(&t.ID, &t.Ticker, &t.Qty, &t.AvgBuyPrice, &t.SellPrice, &t.PnL, &soldStr); err != nil {
			return nil, fmt.Errorf("storage.LoadPortfolio: scan closed trade: %w", err)
		}
		if t.SoldAt, err = time.Parse(time.RFC3339, soldStr); err != nil {
			return nil, fmt.Errorf("storage.LoadPortfolio: parse sold_at: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.LoadPortfolio: closed trades rows: %w", err)
	}
	return trades, nil
}
