// Package store persists strategy parameter rows in SQLite. The agent
// re-reads the whole table every refresh cycle; the API server writes rows
// on behalf of the operator.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"gridbot/logger"
	"gridbot/strategy"
)

// Store wraps the parameter database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and ensures the schema.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}
	logger.Infof("✅ Database initialized at %s", dbPath)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Columns stay TEXT across the board: rows arrive as untyped operator
// input and the parser in the strategy package owns typing and
// validation, exactly as if they came from a spreadsheet.
func (s *Store) initTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS strategies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		strategy_id TEXT NOT NULL UNIQUE,
		strategy_type TEXT NOT NULL DEFAULT '',
		active TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL DEFAULT '',
		exchange TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		future_last_date TEXT NOT NULL DEFAULT '',
		future_local_symbol TEXT NOT NULL DEFAULT '',
		future_multiplier TEXT NOT NULL DEFAULT '',
		initial_price TEXT NOT NULL DEFAULT '',
		step TEXT NOT NULL DEFAULT '',
		order_qty TEXT NOT NULL DEFAULT '',
		buy_orders TEXT NOT NULL DEFAULT '',
		sell_orders TEXT NOT NULL DEFAULT '',
		max_long_risk TEXT NOT NULL DEFAULT '',
		max_short_risk TEXT NOT NULL DEFAULT '',
		ref_price TEXT NOT NULL DEFAULT '',
		order_aux_price TEXT NOT NULL DEFAULT '',
		stop_step TEXT NOT NULL DEFAULT '',
		close_step TEXT NOT NULL DEFAULT '',
		display_size TEXT NOT NULL DEFAULT '',
		outside_rth TEXT NOT NULL DEFAULT '',
		time_in_force TEXT NOT NULL DEFAULT '',
		order_type TEXT NOT NULL DEFAULT '',
		confirmed TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

const paramColumns = `strategy_id, strategy_type, active, mode, symbol, exchange, currency,
	future_last_date, future_local_symbol, future_multiplier,
	initial_price, step, order_qty, buy_orders, sell_orders,
	max_long_risk, max_short_risk,
	ref_price, order_aux_price, stop_step, close_step, display_size,
	outside_rth, time_in_force, order_type, confirmed`

// Load returns every parameter row in insertion order.
func (s *Store) Load(ctx context.Context) ([]strategy.Params, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+paramColumns+` FROM strategies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load strategies: %w", err)
	}
	defer rows.Close()

	var out []strategy.Params
	for rows.Next() {
		var p strategy.Params
		if err := rows.Scan(
			&p.StrategyID, &p.StrategyType, &p.Active, &p.Mode, &p.Symbol, &p.Exchange, &p.Currency,
			&p.FutureLastDate, &p.FutureLocalSymbol, &p.FutureMultiplier,
			&p.InitialPrice, &p.Step, &p.OrderQty, &p.BuyOrders, &p.SellOrders,
			&p.MaxLongRisk, &p.MaxShortRisk,
			&p.RefPrice, &p.OrderAuxPrice, &p.StopStep, &p.CloseStep, &p.DisplaySize,
			&p.OutsideRTH, &p.TimeInForce, &p.OrderType, &p.Confirmed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan strategy row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces the row keyed by its strategy id.
func (s *Store) Upsert(ctx context.Context, p strategy.Params) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO strategies (`+paramColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(strategy_id) DO UPDATE SET
		strategy_type=excluded.strategy_type, active=excluded.active, mode=excluded.mode,
		symbol=excluded.symbol, exchange=excluded.exchange, currency=excluded.currency,
		future_last_date=excluded.future_last_date, future_local_symbol=excluded.future_local_symbol,
		future_multiplier=excluded.future_multiplier,
		initial_price=excluded.initial_price, step=excluded.step, order_qty=excluded.order_qty,
		buy_orders=excluded.buy_orders, sell_orders=excluded.sell_orders,
		max_long_risk=excluded.max_long_risk, max_short_risk=excluded.max_short_risk,
		ref_price=excluded.ref_price, order_aux_price=excluded.order_aux_price,
		stop_step=excluded.stop_step, close_step=excluded.close_step,
		display_size=excluded.display_size,
		outside_rth=excluded.outside_rth, time_in_force=excluded.time_in_force,
		order_type=excluded.order_type, confirmed=excluded.confirmed,
		updated_at=CURRENT_TIMESTAMP`,
		p.StrategyID, p.StrategyType, p.Active, p.Mode, p.Symbol, p.Exchange, p.Currency,
		p.FutureLastDate, p.FutureLocalSymbol, p.FutureMultiplier,
		p.InitialPrice, p.Step, p.OrderQty, p.BuyOrders, p.SellOrders,
		p.MaxLongRisk, p.MaxShortRisk,
		p.RefPrice, p.OrderAuxPrice, p.StopStep, p.CloseStep, p.DisplaySize,
		p.OutsideRTH, p.TimeInForce, p.OrderType, p.Confirmed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert strategy %s: %w", p.StrategyID, err)
	}
	return nil
}

// Delete removes the row keyed by strategy id. Deleting a missing row is
// not an error.
func (s *Store) Delete(ctx context.Context, strategyID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM strategies WHERE strategy_id = ?`, strategyID)
	if err != nil {
		return fmt.Errorf("failed to delete strategy %s: %w", strategyID, err)
	}
	return nil
}

// Confirm stamps the row's confirmation with the given unix-seconds value.
func (s *Store) Confirm(ctx context.Context, strategyID, unixSeconds string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET confirmed = ?, updated_at = CURRENT_TIMESTAMP WHERE strategy_id = ?`,
		unixSeconds, strategyID)
	if err != nil {
		return fmt.Errorf("failed to confirm strategy %s: %w", strategyID, err)
	}
	return nil
}
