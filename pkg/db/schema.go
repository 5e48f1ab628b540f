package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS strategy_settings (
    name TEXT PRIMARY KEY,
    class_name TEXT NOT NULL,
    vt_symbol TEXT NOT NULL,
    setting TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS strategy_data (
    name TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bars (
    symbol TEXT NOT NULL,
    exchange TEXT NOT NULL,
    interval TEXT NOT NULL,
    ts DATETIME NOT NULL,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL,
    volume REAL DEFAULT 0,
    PRIMARY KEY (symbol, exchange, interval, ts)
);

CREATE TABLE IF NOT EXISTS ticks (
    symbol TEXT NOT NULL,
    exchange TEXT NOT NULL,
    ts DATETIME NOT NULL,
    last_price REAL NOT NULL,
    volume REAL DEFAULT 0,
    bid_price_1 REAL DEFAULT 0,
    bid_volume_1 REAL DEFAULT 0,
    ask_price_1 REAL DEFAULT 0,
    ask_volume_1 REAL DEFAULT 0,
    PRIMARY KEY (symbol, exchange, ts)
);

CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id TEXT NOT NULL,
    balance REAL NOT NULL,
    available REAL DEFAULT 0,
    frozen REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bars_lookup ON bars(symbol, exchange, interval, ts);
CREATE INDEX IF NOT EXISTS idx_ticks_lookup ON ticks(symbol, exchange, ts);
CREATE INDEX IF NOT EXISTS idx_accounts_account ON accounts(account_id, created_at);
`

// Migrate applies the schema. Statements are idempotent so it is safe
// to run on every startup.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
