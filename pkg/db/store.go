package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cta-core/internal/cta"
	"cta-core/pkg/exchanges/common"
)

// Store persists strategy configuration, strategy variable snapshots,
// historical market data and account snapshots. It satisfies
// cta.Store.
type Store struct {
	db    *sql.DB
	batch *BatchWriter
}

// NewStore wires a Store over an opened database. Market data inserts
// go through a batch writer; everything else writes directly.
func NewStore(database *Database) *Store {
	return &Store{
		db:    database.DB,
		batch: NewBatchWriter(database.DB, 200, time.Second),
	}
}

// Close flushes pending batched writes.
func (s *Store) Close() error {
	return s.batch.Close()
}

// ----------------------------------------
// Strategy settings
// ----------------------------------------

func (s *Store) LoadStrategySettings() (map[string]cta.StrategySetting, error) {
	rows, err := s.db.Query(`
		SELECT name, class_name, vt_symbol, COALESCE(setting, '{}')
		FROM strategy_settings
	`)
	if err != nil {
		return nil, fmt.Errorf("query strategy settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]cta.StrategySetting)
	for rows.Next() {
		var (
			name    string
			st      cta.StrategySetting
			rawJSON string
		)
		if err := rows.Scan(&name, &st.ClassName, &st.VtSymbol, &rawJSON); err != nil {
			return nil, fmt.Errorf("scan strategy setting: %w", err)
		}
		if err := json.Unmarshal([]byte(rawJSON), &st.Setting); err != nil {
			return nil, fmt.Errorf("decode setting for %s: %w", name, err)
		}
		settings[name] = st
	}
	return settings, rows.Err()
}

func (s *Store) SaveStrategySetting(name string, setting cta.StrategySetting) error {
	raw, err := json.Marshal(setting.Setting)
	if err != nil {
		return fmt.Errorf("encode setting for %s: %w", name, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO strategy_settings (name, class_name, vt_symbol, setting, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			class_name = excluded.class_name,
			vt_symbol = excluded.vt_symbol,
			setting = excluded.setting,
			updated_at = CURRENT_TIMESTAMP
	`, name, setting.ClassName, setting.VtSymbol, string(raw))
	return err
}

func (s *Store) RemoveStrategySetting(name string) error {
	_, err := s.db.Exec(`DELETE FROM strategy_settings WHERE name = ?`, name)
	return err
}

// ----------------------------------------
// Strategy variable snapshots
// ----------------------------------------

func (s *Store) LoadStrategyData() (map[string]map[string]any, error) {
	rows, err := s.db.Query(`SELECT name, data FROM strategy_data`)
	if err != nil {
		return nil, fmt.Errorf("query strategy data: %w", err)
	}
	defer rows.Close()

	data := make(map[string]map[string]any)
	for rows.Next() {
		var (
			name    string
			rawJSON string
		)
		if err := rows.Scan(&name, &rawJSON); err != nil {
			return nil, fmt.Errorf("scan strategy data: %w", err)
		}
		vars := make(map[string]any)
		if err := json.Unmarshal([]byte(rawJSON), &vars); err != nil {
			return nil, fmt.Errorf("decode data for %s: %w", name, err)
		}
		data[name] = vars
	}
	return data, rows.Err()
}

func (s *Store) SaveStrategyData(name string, vars map[string]any) error {
	raw, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("encode data for %s: %w", name, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO strategy_data (name, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`, name, string(raw))
	return err
}

// ----------------------------------------
// Historical market data
// ----------------------------------------

func (s *Store) LoadBars(symbol, exchange string, interval common.Interval, start, end time.Time) ([]*common.Bar, error) {
	rows, err := s.db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND exchange = ? AND interval = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, symbol, exchange, string(interval), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []*common.Bar
	for rows.Next() {
		bar := &common.Bar{
			Symbol:   symbol,
			Exchange: exchange,
			Interval: interval,
		}
		if err := rows.Scan(&bar.Timestamp, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

func (s *Store) LoadTicks(symbol, exchange string, start, end time.Time) ([]*common.Tick, error) {
	rows, err := s.db.Query(`
		SELECT ts, last_price, volume,
		       bid_price_1, bid_volume_1, ask_price_1, ask_volume_1
		FROM ticks
		WHERE symbol = ? AND exchange = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, symbol, exchange, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []*common.Tick
	for rows.Next() {
		tick := &common.Tick{
			Symbol:   symbol,
			Exchange: exchange,
		}
		if err := rows.Scan(&tick.Timestamp, &tick.LastPrice, &tick.Volume,
			&tick.BidPrice1, &tick.BidVolume1, &tick.AskPrice1, &tick.AskVolume1); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, tick)
	}
	return ticks, rows.Err()
}

// SaveBar records a closed bar through the batch writer.
func (s *Store) SaveBar(bar *common.Bar) {
	s.batch.Write(`
		INSERT OR REPLACE INTO bars
			(symbol, exchange, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, bar.Symbol, bar.Exchange, string(bar.Interval), bar.Timestamp.UTC(),
		bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
}

// SaveTick records a tick through the batch writer.
func (s *Store) SaveTick(tick *common.Tick) {
	s.batch.Write(`
		INSERT OR REPLACE INTO ticks
			(symbol, exchange, ts, last_price, volume,
			 bid_price_1, bid_volume_1, ask_price_1, ask_volume_1)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tick.Symbol, tick.Exchange, tick.Timestamp.UTC(), tick.LastPrice, tick.Volume,
		tick.BidPrice1, tick.BidVolume1, tick.AskPrice1, tick.AskVolume1)
}

// ----------------------------------------
// Account snapshots
// ----------------------------------------

func (s *Store) SaveAccount(acc *common.Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (account_id, balance, available, frozen)
		VALUES (?, ?, ?, ?)
	`, acc.AccountID, acc.Balance, acc.Available, acc.Frozen)
	return err
}
