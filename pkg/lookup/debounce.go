// Package lookup implements the debounced address autocomplete used by
// address fields: keystrokes are coalesced, only the latest request may
// update suggestions, and selecting a suggestion writes the address, postcode
// and coordinates in a single state update.
package lookup

import (
	"context"
	"sync"
	"time"
)

// DefaultDelay is the quiet period after the last keystroke before a lookup
// is issued.
const DefaultDelay = 300 * time.Millisecond

// Debouncer runs at most one pending call per input. Each Trigger cancels the
// pending timer and the context of any call still in flight, and stamps the
// new call with a sequence number.
type Debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
	seq    uint64
	closed bool
}

// NewDebouncer returns a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay}
}

// Trigger schedules fn after the quiet period, replacing whatever was pending.
// fn receives the sequence it was issued with; pass it to Latest before
// publishing results.
func (d *Debouncer) Trigger(parent context.Context, fn func(ctx context.Context, seq uint64)) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	d.stopLocked()
	d.seq++
	seq := d.seq

	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.timer = time.AfterFunc(d.delay, func() {
		defer cancel()
		if !d.Latest(seq) {
			return
		}
		fn(ctx, seq)
	})
	return seq
}

// Cancel drops the pending call and invalidates any response in flight.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.seq++
}

// Latest reports whether seq is the most recently issued sequence.
func (d *Debouncer) Latest(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed && seq == d.seq
}

// Close cancels pending work; later Triggers are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.closed = true
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
