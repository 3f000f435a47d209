package timectl

// Channel is the time state of one Group.
//
// The four delta values are recomputed once per driver tick by the Registry
// and read by controllers during dispatch.
type Channel struct {
	timeScale float64
	paused    bool

	deltaTime              float64
	unscaledDeltaTime      float64
	fixedDeltaTime         float64
	unscaledFixedDeltaTime float64
}

func newChannel() *Channel {
	return &Channel{timeScale: 1}
}

func (c *Channel) TimeScale() float64 { return c.timeScale }
func (c *Channel) Paused() bool       { return c.paused }

func (c *Channel) DeltaTime() float64              { return c.deltaTime }
func (c *Channel) UnscaledDeltaTime() float64      { return c.unscaledDeltaTime }
func (c *Channel) FixedDeltaTime() float64         { return c.fixedDeltaTime }
func (c *Channel) UnscaledFixedDeltaTime() float64 { return c.unscaledFixedDeltaTime }

// SetTimeScale clamps negative values to zero.
func (c *Channel) SetTimeScale(scale float64) {
	c.timeScale = clampScale(scale)
}

func (c *Channel) SetPaused(paused bool) { c.paused = paused }

// Update recomputes the regular deltas. Both are zero while paused.
func (c *Channel) Update(unscaled float64) {
	if c.paused {
		c.unscaledDeltaTime = 0
		c.deltaTime = 0
		return
	}
	c.unscaledDeltaTime = unscaled
	c.deltaTime = unscaled * c.timeScale
}

// UpdateFixed recomputes the fixed-step deltas. Both are zero while paused.
func (c *Channel) UpdateFixed(unscaledFixed float64) {
	if c.paused {
		c.unscaledFixedDeltaTime = 0
		c.fixedDeltaTime = 0
		return
	}
	c.unscaledFixedDeltaTime = unscaledFixed
	c.fixedDeltaTime = unscaledFixed * c.timeScale
}
