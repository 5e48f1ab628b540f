// Package strategies holds the built-in strategy implementations and
// their registration hook.
package strategies

import (
	"cta-core/internal/cta"
	"cta-core/internal/indicators"
	"cta-core/pkg/exchanges/common"
)

// DoubleMa trades fast/slow moving average crossovers on one-minute
// bars.
type DoubleMa struct {
	ctx *cta.Context

	fastWindow int
	slowWindow int

	fastMa0 float64
	fastMa1 float64
	slowMa0 float64
	slowMa1 float64

	bg *indicators.BarGenerator
	am *indicators.ArrayManager
}

// NewDoubleMa builds a DoubleMa instance from a setting map.
func NewDoubleMa(ctx *cta.Context, setting map[string]any) cta.Strategy {
	s := &DoubleMa{
		ctx:        ctx,
		fastWindow: settingInt(setting, "fast_window", 10),
		slowWindow: settingInt(setting, "slow_window", 20),
	}
	s.bg = indicators.NewBarGenerator(s.OnBar, 0, nil)
	s.am = indicators.NewArrayManager(0)
	return s
}

func (s *DoubleMa) OnInit() {
	s.ctx.WriteLog("strategy initializing")
	s.ctx.LoadBars(10, common.IntervalMinute, s.OnBar)
}

func (s *DoubleMa) OnStart() {
	s.ctx.WriteLog("strategy started")
	s.ctx.PutEvent()
}

func (s *DoubleMa) OnStop() {
	s.ctx.WriteLog("strategy stopped")
	s.ctx.PutEvent()
}

func (s *DoubleMa) OnTick(tick *common.Tick) {
	s.bg.UpdateTick(tick)
}

func (s *DoubleMa) OnBar(bar *common.Bar) {
	am := s.am
	am.UpdateBar(bar)
	if !am.Inited() {
		return
	}

	s.fastMa0 = am.Sma(s.fastWindow)
	s.fastMa1 = am.SmaPrev(s.fastWindow)
	s.slowMa0 = am.Sma(s.slowWindow)
	s.slowMa1 = am.SmaPrev(s.slowWindow)

	crossOver := s.fastMa0 > s.slowMa0 && s.fastMa1 < s.slowMa1
	crossBelow := s.fastMa0 < s.slowMa0 && s.fastMa1 > s.slowMa1

	pos := s.ctx.Pos()
	switch {
	case crossOver:
		if pos == 0 {
			s.ctx.Buy(bar.Close, 1, false)
		} else if pos < 0 {
			s.ctx.Cover(bar.Close, 1, false)
			s.ctx.Buy(bar.Close, 1, false)
		}
	case crossBelow:
		if pos == 0 {
			s.ctx.Short(bar.Close, 1, false)
		} else if pos > 0 {
			s.ctx.Sell(bar.Close, 1, false)
			s.ctx.Short(bar.Close, 1, false)
		}
	}

	s.ctx.PutEvent()
}

func (s *DoubleMa) OnOrder(order *common.Order) {}

func (s *DoubleMa) OnTrade(trade *common.Trade) {
	s.ctx.PutEvent()
}

func (s *DoubleMa) OnStopOrder(so *cta.StopOrder) {}

func (s *DoubleMa) Parameters() map[string]any {
	return map[string]any{
		"fast_window": s.fastWindow,
		"slow_window": s.slowWindow,
	}
}

func (s *DoubleMa) Variables() map[string]any {
	return map[string]any{
		"fast_ma0": s.fastMa0,
		"fast_ma1": s.fastMa1,
		"slow_ma0": s.slowMa0,
		"slow_ma1": s.slowMa1,
	}
}

func (s *DoubleMa) UpdateSetting(setting map[string]any) {
	s.fastWindow = settingInt(setting, "fast_window", s.fastWindow)
	s.slowWindow = settingInt(setting, "slow_window", s.slowWindow)
}

func (s *DoubleMa) Restore(vars map[string]any) {
	s.fastMa0 = settingFloat(vars, "fast_ma0", s.fastMa0)
	s.fastMa1 = settingFloat(vars, "fast_ma1", s.fastMa1)
	s.slowMa0 = settingFloat(vars, "slow_ma0", s.slowMa0)
	s.slowMa1 = settingFloat(vars, "slow_ma1", s.slowMa1)
}
