package cta

import (
	"time"

	"cta-core/pkg/exchanges/common"
)

// StrategySetting is the persisted configuration of one strategy
// instance.
type StrategySetting struct {
	ClassName string         `json:"class_name"`
	VtSymbol  string         `json:"vt_symbol"`
	Setting   map[string]any `json:"setting"`
}

// Store is the persistence collaborator the engine needs: strategy
// configuration, strategy variable snapshots, historical data and
// account snapshots. All methods may be called from the dispatch
// goroutine and must not block indefinitely.
type Store interface {
	LoadStrategySettings() (map[string]StrategySetting, error)
	SaveStrategySetting(name string, setting StrategySetting) error
	RemoveStrategySetting(name string) error

	LoadStrategyData() (map[string]map[string]any, error)
	SaveStrategyData(name string, vars map[string]any) error

	LoadBars(symbol, exchange string, interval common.Interval, start, end time.Time) ([]*common.Bar, error)
	LoadTicks(symbol, exchange string, start, end time.Time) ([]*common.Tick, error)

	SaveAccount(acc *common.Account) error
}
