package dispatch

import (
	"sync"
	"time"
	"unicode/utf8"
)

// shortQueryRunes is the query length at or below which the shorter
// debounce delay applies. Short queries change fast while the user is
// still typing the interesting part, so they get quicker feedback.
const shortQueryRunes = 3

// Debouncer coalesces rapid successive inputs: only the last query of a
// burst fires. Any pending timer is cancelled when new input arrives.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer

	short time.Duration
	long  time.Duration
}

// NewDebouncer builds a debouncer with the given delays for short and
// long queries.
func NewDebouncer(short, long time.Duration) *Debouncer {
	return &Debouncer{short: short, long: long}
}

// Trigger schedules fn after the delay appropriate for query, cancelling
// any previously scheduled call.
func (d *Debouncer) Trigger(query string, fn func()) {
	delay := d.long
	if utf8.RuneCountInString(query) <= shortQueryRunes {
		delay = d.short
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, fn)
}

// Stop cancels any pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
