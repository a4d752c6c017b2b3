package ephemeris

import (
	"sync"
	"time"
)

// Clock maps wall time onto the simulated master clock. The master value
// advances at Rate simulated seconds per real second; rebasing on every
// mutation keeps the mapping continuous across rate changes and jumps.
type Clock struct {
	mu         sync.Mutex
	baseMaster int64
	baseWall   time.Time
	rate       float64
	running    bool
}

// NewClock creates a running clock starting at the given master value.
func NewClock(master int64, rate float64) *Clock {
	if rate <= 0 {
		rate = 1
	}
	return &Clock{
		baseMaster: master,
		baseWall:   time.Now(),
		rate:       rate,
		running:    true,
	}
}

// Now returns the current master clock value in seconds.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() int64 {
	if !c.running {
		return c.baseMaster
	}
	elapsed := time.Since(c.baseWall).Seconds()
	return c.baseMaster + int64(elapsed*c.rate)
}

// Rate returns the current simulation rate.
func (c *Clock) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Running reports whether the clock is advancing.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetRate changes the simulation rate without disturbing the current value.
func (c *Clock) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebaseLocked()
	c.rate = rate
}

// SetMaster jumps the master clock to the given value.
func (c *Clock) SetMaster(master int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseMaster = master
	c.baseWall = time.Now()
}

// Pause freezes the clock at its current value.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebaseLocked()
	c.running = false
}

// Resume restarts a paused clock from where it stopped.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.baseWall = time.Now()
	c.running = true
}

// rebaseLocked folds elapsed time into baseMaster so a subsequent rate or
// running-state change does not shift the current value.
func (c *Clock) rebaseLocked() {
	c.baseMaster = c.nowLocked()
	c.baseWall = time.Now()
}
