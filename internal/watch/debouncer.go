package watch

import "sync"

// Debouncer decides when a burst of change events has settled enough to
// rebuild a site. Record is called per qualifying event; Tick is called on a
// fixed interval and reports whether to rebuild now.
type Debouncer struct {
	threshold int

	mu                sync.Mutex
	lastProcessedHash uint64
	hasLast           bool
	changeCounter     int
	rebuildCounter    int
	previousChanges   int
}

// NewDebouncer returns a debouncer that forces a rebuild after threshold
// ticks of continued activity. threshold below 1 is treated as 1.
func NewDebouncer(threshold int) *Debouncer {
	if threshold < 1 {
		threshold = 1
	}
	return &Debouncer{threshold: threshold}
}

// Record counts one change event. Events carrying the same hash as the last
// processed one are duplicates and are ignored; events without a hash
// (deletions, renames) always count. It reports whether the event counted.
func (d *Debouncer) Record(hash uint64, hasHash bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if hasHash {
		if d.hasLast && hash == d.lastProcessedHash {
			return false
		}
		d.lastProcessedHash = hash
		d.hasLast = true
	}
	d.changeCounter++
	return true
}

// Tick runs one debounce decision:
//
//  1. rebuildCounter has reached the threshold: rebuild.
//  2. changes arrived since the previous tick: count one more interval.
//  3. changes are pending but nothing new arrived: rebuild.
//
// Both rebuild paths reset every counter inside the same critical section,
// so one tick yields at most one rebuild.
func (d *Debouncer) Tick() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.rebuildCounter >= d.threshold:
		d.reset()
		return true
	case d.changeCounter > d.previousChanges:
		d.rebuildCounter++
		d.previousChanges = d.changeCounter
		return false
	case d.changeCounter > 0:
		d.reset()
		return true
	default:
		return false
	}
}

func (d *Debouncer) reset() {
	d.changeCounter = 0
	d.rebuildCounter = 0
	d.previousChanges = 0
}

// Pending returns the number of changes not yet consumed by a rebuild.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changeCounter
}
