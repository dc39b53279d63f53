package watch

import "testing"

func TestDebouncer_BurstThenSilence(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(5)

	for i := 0; i < 10; i++ {
		d.Record(uint64(i), true)
	}

	rebuilds := 0
	for i := 0; i < 10; i++ {
		if d.Tick() {
			rebuilds++
		}
	}
	if rebuilds != 1 {
		t.Errorf("rebuilds = %d, want 1", rebuilds)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", d.Pending())
	}
}

func TestDebouncer_PlateauRebuildsOnSecondTick(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(5)
	d.Record(1, true)

	if d.Tick() {
		t.Fatal("first tick rebuilt while changes were still arriving")
	}
	if !d.Tick() {
		t.Fatal("second tick did not rebuild on plateau")
	}
	if d.Tick() {
		t.Error("third tick rebuilt with nothing pending")
	}
}

func TestDebouncer_ThresholdUnderSustainedActivity(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(3)

	var fired []int
	for tick := 1; tick <= 8; tick++ {
		d.Record(uint64(tick), true)
		if d.Tick() {
			fired = append(fired, tick)
		}
	}
	// Activity never plateaus, so rebuilds come from the threshold: three
	// counted intervals, then the rebuild on the fourth tick.
	want := []int{4, 8}
	if len(fired) != len(want) || fired[0] != want[0] || fired[1] != want[1] {
		t.Errorf("rebuild ticks = %v, want %v", fired, want)
	}
}

func TestDebouncer_DuplicateHashIgnored(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(5)

	if !d.Record(42, true) {
		t.Fatal("first event not counted")
	}
	if d.Record(42, true) {
		t.Error("duplicate hash counted")
	}
	if !d.Record(0, false) || !d.Record(0, false) {
		t.Error("events without hash must always count")
	}
	if d.Pending() != 3 {
		t.Errorf("Pending = %d, want 3", d.Pending())
	}
}

func TestDebouncer_IdleNeverRebuilds(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(1)
	for i := 0; i < 5; i++ {
		if d.Tick() {
			t.Fatalf("tick %d rebuilt with no changes", i)
		}
	}
}

func TestDebouncer_ThresholdAndPlateauSameTick(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(1)
	d.Record(1, true)

	// Tick 1 counts the interval, reaching the threshold. Tick 2 satisfies
	// both the threshold and the plateau condition and must rebuild once.
	if d.Tick() {
		t.Fatal("tick 1 rebuilt")
	}
	if !d.Tick() {
		t.Fatal("tick 2 did not rebuild")
	}
	if d.Tick() {
		t.Error("tick 3 rebuilt again")
	}
}
