package ephemeris

import (
	"testing"
	"time"
)

// TestClockAdvances verifies the clock moves forward at roughly the
// configured rate.
func TestClockAdvances(t *testing.T) {
	c := NewClock(1000, 100)

	before := c.Now()
	time.Sleep(50 * time.Millisecond)
	after := c.Now()

	if after <= before {
		t.Fatalf("clock did not advance: before=%d after=%d", before, after)
	}
	// 50ms at rate 100 is ~5 simulated seconds; allow generous slack.
	if after-before > 100 {
		t.Errorf("clock advanced too far: %d simulated seconds in 50ms", after-before)
	}
}

// TestClockPauseResume verifies a paused clock holds its value and resumes
// from where it stopped.
func TestClockPauseResume(t *testing.T) {
	c := NewClock(500, 1000)
	time.Sleep(10 * time.Millisecond)

	c.Pause()
	frozen := c.Now()
	time.Sleep(20 * time.Millisecond)

	if got := c.Now(); got != frozen {
		t.Errorf("paused clock moved: got %d, want %d", got, frozen)
	}
	if c.Running() {
		t.Error("Running() = true while paused")
	}

	c.Resume()
	time.Sleep(10 * time.Millisecond)
	if got := c.Now(); got < frozen {
		t.Errorf("resumed clock went backwards: got %d, frozen at %d", got, frozen)
	}
}

// TestClockSetMaster verifies jumps land exactly on the target value.
func TestClockSetMaster(t *testing.T) {
	c := NewClock(0, 1)
	c.Pause()

	c.SetMaster(-86400)
	if got := c.Now(); got != -86400 {
		t.Errorf("after SetMaster(-86400): got %d", got)
	}
}

// TestClockSetRateContinuity verifies a rate change does not jump the
// current value.
func TestClockSetRateContinuity(t *testing.T) {
	c := NewClock(10000, 1000)
	time.Sleep(10 * time.Millisecond)

	before := c.Now()
	c.SetRate(1)
	after := c.Now()

	// The rebased value may tick forward slightly at the new rate but
	// must not jump by anything near the old rate's scale.
	if diff := after - before; diff < 0 || diff > 5 {
		t.Errorf("rate change jumped clock by %d seconds", diff)
	}
	if c.Rate() != 1 {
		t.Errorf("Rate() = %v, want 1", c.Rate())
	}
}

// TestClockRejectsNonPositiveRate verifies invalid rates are ignored.
func TestClockRejectsNonPositiveRate(t *testing.T) {
	c := NewClock(0, 50)
	c.SetRate(0)
	if c.Rate() != 50 {
		t.Errorf("SetRate(0) changed rate to %v", c.Rate())
	}
	c.SetRate(-3)
	if c.Rate() != 50 {
		t.Errorf("SetRate(-3) changed rate to %v", c.Rate())
	}
}
