package timing

// BarGrid snaps ticks to bar boundaries. Beats per bar is fixed for the
// session; a meter map would replace this field if time signature changes
// ever become a requirement.
type BarGrid struct {
	ppq         int
	beatsPerBar int
}

// NewBarGrid creates a grid. Non-positive arguments fall back to 4/4 at
// DefaultPPQ.
func NewBarGrid(ppq, beatsPerBar int) BarGrid {
	if ppq <= 0 {
		ppq = DefaultPPQ
	}
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	return BarGrid{ppq: ppq, beatsPerBar: beatsPerBar}
}

// TicksPerBar returns the bar length in ticks.
func (g BarGrid) TicksPerBar() int64 {
	return int64(g.ppq) * int64(g.beatsPerBar)
}

// FloorToBar snaps a tick down to the start of its bar.
func (g BarGrid) FloorToBar(tick int64) int64 {
	tpb := g.TicksPerBar()
	if tick <= 0 {
		return 0
	}
	return (tick / tpb) * tpb
}

// BarBeat splits a tick into one-based bar and beat numbers plus the tick
// remainder within the beat, for display.
func (g BarGrid) BarBeat(tick int64) (bar, beat, rem int64) {
	if tick < 0 {
		tick = 0
	}
	tpb := g.TicksPerBar()
	bar = tick/tpb + 1
	within := tick % tpb
	beat = within/int64(g.ppq) + 1
	rem = within % int64(g.ppq)
	return bar, beat, rem
}
