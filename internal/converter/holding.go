package converter

// Holding tracks one symbol+direction position: total volume, the part
// carried over from yesterday, and the volume frozen by in-flight close
// orders. Invariant after reconciliation: Frozen <= Volume; transient
// violations from optimistic updates are corrected by the next broker
// snapshot.
type Holding struct {
	Volume   float64
	YdVolume float64
	Frozen   float64
}

// TdVolume returns the today part of the holding.
func (h Holding) TdVolume() float64 {
	td := h.Volume - h.YdVolume
	if td < 0 {
		td = 0
	}
	return td
}

// available splits the unfrozen volume into yesterday and today lots.
// Frozen volume is attributed to yesterday lots first, because close
// orders prefer them.
func (h *Holding) available() (yd, td float64) {
	frozen := h.Frozen
	yd = h.YdVolume - frozen
	if yd < 0 {
		frozen = -yd
		yd = 0
	} else {
		frozen = 0
	}
	td = h.TdVolume() - frozen
	if td < 0 {
		td = 0
	}
	return yd, td
}

func (h *Holding) clamp() {
	if h.Volume < 0 {
		h.Volume = 0
	}
	if h.YdVolume > h.Volume {
		h.YdVolume = h.Volume
	}
	if h.Frozen < 0 {
		h.Frozen = 0
	}
	if h.Frozen > h.Volume {
		h.Frozen = h.Volume
	}
}
