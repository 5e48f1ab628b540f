package strategies

import (
	"math"

	"cta-core/internal/cta"
	"cta-core/internal/indicators"
	"cta-core/pkg/exchanges/common"
)

// AtrRsi enters on RSI extremes when volatility (ATR above its own
// moving average) confirms, and exits on a trailing stop expressed as a
// percentage off the intra-trade extreme.
type AtrRsi struct {
	ctx *cta.Context

	atrLength       int
	atrMaLength     int
	rsiLength       int
	rsiEntry        float64
	trailingPercent float64
	fixedSize       float64

	atrValue float64
	atrMa    float64
	rsiValue float64
	rsiBuy   float64
	rsiSell  float64

	intraTradeHigh float64
	intraTradeLow  float64

	atrHistory []float64

	bg *indicators.BarGenerator
	am *indicators.ArrayManager
}

// NewAtrRsi builds an AtrRsi instance from a setting map.
func NewAtrRsi(ctx *cta.Context, setting map[string]any) cta.Strategy {
	s := &AtrRsi{
		ctx:             ctx,
		atrLength:       settingInt(setting, "atr_length", 22),
		atrMaLength:     settingInt(setting, "atr_ma_length", 10),
		rsiLength:       settingInt(setting, "rsi_length", 5),
		rsiEntry:        settingFloat(setting, "rsi_entry", 16),
		trailingPercent: settingFloat(setting, "trailing_percent", 0.8),
		fixedSize:       settingFloat(setting, "fixed_size", 1),
	}
	s.bg = indicators.NewBarGenerator(s.OnBar, 0, nil)
	s.am = indicators.NewArrayManager(0)
	return s
}

func (s *AtrRsi) OnInit() {
	s.ctx.WriteLog("strategy initializing")
	s.rsiBuy = 50 + s.rsiEntry
	s.rsiSell = 50 - s.rsiEntry
	s.ctx.LoadBars(10, common.IntervalMinute, s.OnBar)
}

func (s *AtrRsi) OnStart() {
	s.ctx.WriteLog("strategy started")
}

func (s *AtrRsi) OnStop() {
	s.ctx.WriteLog("strategy stopped")
}

func (s *AtrRsi) OnTick(tick *common.Tick) {
	s.bg.UpdateTick(tick)
}

func (s *AtrRsi) OnBar(bar *common.Bar) {
	s.ctx.CancelAll()

	am := s.am
	am.UpdateBar(bar)
	if !am.Inited() {
		return
	}

	s.atrValue = am.Atr(s.atrLength)
	s.atrHistory = append(s.atrHistory, s.atrValue)
	if len(s.atrHistory) > s.atrMaLength {
		s.atrHistory = s.atrHistory[len(s.atrHistory)-s.atrMaLength:]
	}
	s.atrMa = mean(s.atrHistory)
	s.rsiValue = am.Rsi(s.rsiLength)

	pos := s.ctx.Pos()
	switch {
	case pos == 0:
		s.intraTradeHigh = bar.High
		s.intraTradeLow = bar.Low
		if s.atrValue > s.atrMa {
			if s.rsiValue > s.rsiBuy {
				s.ctx.Buy(bar.Close+5, s.fixedSize, false)
			} else if s.rsiValue < s.rsiSell {
				s.ctx.Short(bar.Close-5, s.fixedSize, false)
			}
		}
	case pos > 0:
		s.intraTradeHigh = math.Max(s.intraTradeHigh, bar.High)
		s.intraTradeLow = bar.Low
		longStop := s.intraTradeHigh * (1 - s.trailingPercent/100)
		s.ctx.Sell(longStop, math.Abs(pos), true)
	default:
		s.intraTradeLow = math.Min(s.intraTradeLow, bar.Low)
		s.intraTradeHigh = bar.High
		shortStop := s.intraTradeLow * (1 + s.trailingPercent/100)
		s.ctx.Cover(shortStop, math.Abs(pos), true)
	}

	s.ctx.PutEvent()
}

func (s *AtrRsi) OnOrder(order *common.Order) {}

func (s *AtrRsi) OnTrade(trade *common.Trade) {
	s.ctx.PutEvent()
}

func (s *AtrRsi) OnStopOrder(so *cta.StopOrder) {}

func (s *AtrRsi) Parameters() map[string]any {
	return map[string]any{
		"atr_length":       s.atrLength,
		"atr_ma_length":    s.atrMaLength,
		"rsi_length":       s.rsiLength,
		"rsi_entry":        s.rsiEntry,
		"trailing_percent": s.trailingPercent,
		"fixed_size":       s.fixedSize,
	}
}

func (s *AtrRsi) Variables() map[string]any {
	return map[string]any{
		"atr_value":        s.atrValue,
		"atr_ma":           s.atrMa,
		"rsi_value":        s.rsiValue,
		"rsi_buy":          s.rsiBuy,
		"rsi_sell":         s.rsiSell,
		"intra_trade_high": s.intraTradeHigh,
		"intra_trade_low":  s.intraTradeLow,
	}
}

func (s *AtrRsi) UpdateSetting(setting map[string]any) {
	s.atrLength = settingInt(setting, "atr_length", s.atrLength)
	s.atrMaLength = settingInt(setting, "atr_ma_length", s.atrMaLength)
	s.rsiLength = settingInt(setting, "rsi_length", s.rsiLength)
	s.rsiEntry = settingFloat(setting, "rsi_entry", s.rsiEntry)
	s.trailingPercent = settingFloat(setting, "trailing_percent", s.trailingPercent)
	s.fixedSize = settingFloat(setting, "fixed_size", s.fixedSize)
}

func (s *AtrRsi) Restore(vars map[string]any) {
	s.atrValue = settingFloat(vars, "atr_value", s.atrValue)
	s.atrMa = settingFloat(vars, "atr_ma", s.atrMa)
	s.rsiValue = settingFloat(vars, "rsi_value", s.rsiValue)
	s.rsiBuy = settingFloat(vars, "rsi_buy", s.rsiBuy)
	s.rsiSell = settingFloat(vars, "rsi_sell", s.rsiSell)
	s.intraTradeHigh = settingFloat(vars, "intra_trade_high", s.intraTradeHigh)
	s.intraTradeLow = settingFloat(vars, "intra_trade_low", s.intraTradeLow)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
