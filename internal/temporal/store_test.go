package temporal

import (
	"sync"
	"testing"
)

func testStore() *Store {
	return NewStore(&State{
		ActiveCalendarKey: "civil",
		Registry: map[string]Definition{
			"civil":    standardCalendar(0),
			"stardate": stardateCalendar(),
		},
	})
}

// TestLookupReturnsCopy verifies that mutating a looked-up definition does
// not reach back into the registry.
func TestLookupReturnsCopy(t *testing.T) {
	store := testStore()

	def, err := store.Lookup("civil")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	def.Bucket.EpochOffset = 999_999
	def.Bucket.Months[0].Days = 1

	again, err := store.Lookup("civil")
	if err != nil {
		t.Fatalf("second Lookup failed: %v", err)
	}
	if again.Bucket.EpochOffset != 0 {
		t.Errorf("registry epoch offset mutated through a lookup copy: %d", again.Bucket.EpochOffset)
	}
	if days := again.Bucket.Months[0].Days; days == 1 {
		t.Error("registry month table mutated through a lookup copy")
	}
}

// TestApplyDoesNotMutateHandedOutDefinitions verifies an override installs a
// fresh definition rather than writing through copies already handed out.
func TestApplyDoesNotMutateHandedOutDefinitions(t *testing.T) {
	store := testStore()
	const master = 86_400 * 10

	held, err := store.Lookup("civil")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	ov, err := SolveYearOverride(held, master, 50)
	if err != nil {
		t.Fatalf("SolveYearOverride failed: %v", err)
	}
	if err := store.Apply(master, "civil", ov); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if held.Bucket.EpochOffset != 0 {
		t.Errorf("held copy changed by Apply: epoch offset %d", held.Bucket.EpochOffset)
	}
	fresh, err := store.Lookup("civil")
	if err != nil {
		t.Fatalf("Lookup after Apply failed: %v", err)
	}
	if int64(fresh.Bucket.EpochOffset) != ov.NewEpochOffset {
		t.Errorf("registry epoch offset = %d, want %d", fresh.Bucket.EpochOffset, ov.NewEpochOffset)
	}
}

// TestStoreConcurrentOverride hammers lookups and resolutions against
// repeated overrides. Run with -race: readers must never observe a
// definition an override is writing to.
func TestStoreConcurrentOverride(t *testing.T) {
	store := testStore()
	const iterations = 1000

	var wg sync.WaitGroup
	for reader := 0; reader < 4; reader++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				def, err := store.Lookup("civil")
				if err != nil {
					t.Errorf("Lookup failed: %v", err)
					return
				}
				if _, err := Resolve(def, int64(i)*3600); err != nil {
					t.Errorf("Resolve failed: %v", err)
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			master := int64(i) * 60
			def, err := store.Lookup("civil")
			if err != nil {
				t.Errorf("Lookup failed: %v", err)
				return
			}
			ov, err := SolveYearOverride(def, master, int64(i%100)+1)
			if err != nil {
				t.Errorf("SolveYearOverride failed: %v", err)
				return
			}
			if err := store.Apply(master, "civil", ov); err != nil {
				t.Errorf("Apply failed: %v", err)
				return
			}
		}
	}()

	wg.Wait()
}
