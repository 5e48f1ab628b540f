package indicators

import (
	"math"
	"testing"
	"time"

	"cta-core/pkg/exchanges/common"
)

func fillManager(size int, closes []float64) *ArrayManager {
	am := NewArrayManager(size)
	for _, c := range closes {
		am.UpdateBar(&common.Bar{Open: c, High: c + 1, Low: c - 1, Close: c})
	}
	return am
}

func approx(t *testing.T, got, want float64, name string) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func TestArrayManagerInited(t *testing.T) {
	am := NewArrayManager(5)
	for i := 0; i < 4; i++ {
		am.UpdateBar(&common.Bar{Close: float64(i)})
		if am.Inited() {
			t.Fatalf("inited after %d bars, window is 5", i+1)
		}
	}
	am.UpdateBar(&common.Bar{Close: 4})
	if !am.Inited() {
		t.Fatal("not inited after window filled")
	}
}

func TestSmaAndPrev(t *testing.T) {
	am := fillManager(5, []float64{1, 2, 3, 4, 5})
	approx(t, am.Sma(3), 4, "Sma(3)")         // (3+4+5)/3
	approx(t, am.SmaPrev(3), 3, "SmaPrev(3)") // (2+3+4)/3
}

func TestStd(t *testing.T) {
	am := fillManager(4, []float64{2, 4, 4, 4})
	// mean 3.5, variance (2.25+0.25*3)/4 = 0.75
	approx(t, am.Std(4), math.Sqrt(0.75), "Std(4)")
}

func TestRsi(t *testing.T) {
	// Monotonic rise has no losses.
	up := fillManager(5, []float64{1, 2, 3, 4, 5})
	approx(t, up.Rsi(3), 100, "Rsi rising")

	// closes 10, 12, 11: gain 2, loss 1, rs 2, rsi 100-100/3
	mixed := fillManager(3, []float64{10, 12, 11})
	approx(t, mixed.Rsi(2), 100-100.0/3, "Rsi mixed")
}

func TestDonchian(t *testing.T) {
	am := fillManager(4, []float64{10, 14, 12, 13})
	up, down := am.Donchian(3)
	approx(t, up, 15, "Donchian up")     // high of the 14 bar
	approx(t, down, 11, "Donchian down") // low of the 12 bar
}

func TestBoll(t *testing.T) {
	am := fillManager(4, []float64{2, 4, 4, 4})
	up, down := am.Boll(4, 2)
	std := math.Sqrt(0.75)
	approx(t, up, 3.5+2*std, "Boll up")
	approx(t, down, 3.5-2*std, "Boll down")
}

func TestAtr(t *testing.T) {
	am := NewArrayManager(3)
	am.UpdateBar(&common.Bar{High: 11, Low: 9, Close: 10})
	am.UpdateBar(&common.Bar{High: 12, Low: 10, Close: 11})
	am.UpdateBar(&common.Bar{High: 14, Low: 11, Close: 12})
	// TR of last two bars: max(2, |12-10|, |10-10|)=2, max(3, |14-11|, |11-11|)=3
	approx(t, am.Atr(2), 2.5, "Atr(2)")
}

func minuteTick(minute int, sec int, price, cumVolume float64) *common.Tick {
	return &common.Tick{
		Symbol:    "rb2010",
		Exchange:  "SHFE",
		LastPrice: price,
		Volume:    cumVolume,
		Timestamp: time.Date(2020, 6, 1, 10, minute, sec, 0, time.UTC),
	}
}

func TestBarGeneratorClosesOnMinuteChange(t *testing.T) {
	var bars []*common.Bar
	g := NewBarGenerator(func(b *common.Bar) { bars = append(bars, b) }, 0, nil)

	g.UpdateTick(minuteTick(0, 1, 100, 10))
	g.UpdateTick(minuteTick(0, 30, 103, 25))
	g.UpdateTick(minuteTick(0, 59, 101, 30))
	if len(bars) != 0 {
		t.Fatalf("bar closed early: %d bars", len(bars))
	}

	g.UpdateTick(minuteTick(1, 0, 102, 40))
	if len(bars) != 1 {
		t.Fatalf("got %d bars after minute change, want 1", len(bars))
	}

	bar := bars[0]
	if bar.Open != 100 || bar.High != 103 || bar.Low != 100 || bar.Close != 101 {
		t.Fatalf("bar OHLC = %v/%v/%v/%v, want 100/103/100/101", bar.Open, bar.High, bar.Low, bar.Close)
	}
	// Volume is the delta of the cumulative tick volume within the bar.
	approx(t, bar.Volume, 20, "bar volume")
	if !bar.Timestamp.Equal(time.Date(2020, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("bar timestamp = %v", bar.Timestamp)
	}
}

func TestBarGeneratorIgnoresZeroPriceTicks(t *testing.T) {
	var bars []*common.Bar
	g := NewBarGenerator(func(b *common.Bar) { bars = append(bars, b) }, 0, nil)

	g.UpdateTick(minuteTick(0, 1, 0, 0))
	g.UpdateTick(minuteTick(1, 1, 100, 5))
	if len(bars) != 0 {
		t.Fatalf("zero-price tick opened a bar")
	}
}

func TestBarGeneratorWindowBars(t *testing.T) {
	var window []*common.Bar
	g := NewBarGenerator(nil, 5, func(b *common.Bar) { window = append(window, b) })

	base := time.Date(2020, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		g.UpdateBar(&common.Bar{
			Symbol: "rb2010", Exchange: "SHFE",
			Open: 100, High: 101 + float64(i), Low: 99, Close: 100 + float64(i),
			Volume:    1,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	// Windows close at minutes 4 and 9.
	if len(window) != 2 {
		t.Fatalf("got %d window bars, want 2", len(window))
	}
	first := window[0]
	if first.High != 105 || first.Close != 104 || first.Volume != 5 {
		t.Fatalf("first window bar = %+v", first)
	}
}
