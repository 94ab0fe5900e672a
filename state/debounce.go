package state

import (
	"sync"
	"time"
)

// debouncer collapses carousel on/off bursts per key: the first observation
// arms a timer for the window, later observations within the window only
// overwrite the value, and the latest value is committed when the timer
// fires. The timer is deliberately not reset per observation so a sustained
// storm still commits once per window.
type debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[CarouselStateKey]*debounceEntry
	commit  func(CarouselStateKey, bool)
	stopped bool
}

type debounceEntry struct {
	latest bool
	timer  *time.Timer
}

func newDebouncer(window time.Duration, commit func(CarouselStateKey, bool)) *debouncer {
	return &debouncer{
		window:  window,
		entries: make(map[CarouselStateKey]*debounceEntry),
		commit:  commit,
	}
}

func (d *debouncer) observe(key CarouselStateKey, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if e, ok := d.entries[key]; ok {
		e.latest = on
		return
	}

	e := &debounceEntry{latest: on}
	e.timer = time.AfterFunc(d.window, func() { d.fire(key) })
	d.entries[key] = e
}

func (d *debouncer) fire(key CarouselStateKey) {
	d.mu.Lock()
	e, ok := d.entries[key]
	if ok {
		delete(d.entries, key)
	}
	stopped := d.stopped
	d.mu.Unlock()

	if ok && !stopped {
		d.commit(key, e.latest)
	}
}

// stop cancels all pending windows; values not yet committed are dropped.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, e := range d.entries {
		e.timer.Stop()
		delete(d.entries, key)
	}
}
