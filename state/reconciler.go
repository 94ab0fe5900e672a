package state

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/playout/event"
)

const (
	// DefaultFlushInterval is the delay between queuing the first pending
	// delta and committing the batch. It plays the role of "next frame":
	// once a flush is scheduled, no further scheduling happens until it
	// runs and clears the buffer.
	DefaultFlushInterval = 20 * time.Millisecond

	// DefaultDebounceWindow collapses carousel on/off bursts for the same
	// key to the latest value before commit.
	DefaultDebounceWindow = 50 * time.Millisecond
)

// mutation is one deferred change, applied to the draft snapshot at flush
// time while the reconciler lock is held.
type mutation func(*Reconciler, *Snapshot)

// Reconciler applies classified events to the playout model under a
// single-writer flush discipline.
type Reconciler struct {
	mu             sync.Mutex
	pending        []mutation
	flushScheduled bool
	flushTimer     *time.Timer
	flushInterval  time.Duration

	snap atomic.Pointer[Snapshot]

	// authoritative marks keys claimed by CarouselActive or SchedulerState;
	// status-chatter provisionals never override these.
	authoritative map[CarouselKey]bool

	// handlerFeeds maps (channel, feedHandler) to the feed name discovered
	// from the channel-list query, so SchedulerState events land on the
	// same key CarouselActive uses.
	handlerFeeds map[[2]string]string

	debounce *debouncer

	onFlush []func(*Snapshot)

	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithFlushInterval overrides the flush delay (tests use ~1ms).
func WithFlushInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.flushInterval = d }
}

// WithDebounceWindow overrides the carousel-state debounce window.
func WithDebounceWindow(d time.Duration) Option {
	return func(r *Reconciler) { r.debounce.window = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger.With("component", "reconciler") }
}

// New creates a Reconciler with an empty snapshot.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		flushInterval: DefaultFlushInterval,
		authoritative: make(map[CarouselKey]bool),
		handlerFeeds:  make(map[[2]string]string),
		logger:        slog.Default().With("component", "reconciler"),
	}
	r.debounce = newDebouncer(DefaultDebounceWindow, r.commitCarousel)
	r.snap.Store(emptySnapshot())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns the current published view. The returned value is shared
// and must not be mutated.
func (r *Reconciler) Snapshot() *Snapshot {
	return r.snap.Load()
}

// OnFlush registers a hook invoked with each newly published snapshot. Hooks
// run on the flush goroutine and must not block.
func (r *Reconciler) OnFlush(fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFlush = append(r.onFlush, fn)
}

// Apply queues the state changes implied by one classified event for channel.
func (r *Reconciler) Apply(channel string, ev event.Event) {
	switch e := ev.(type) {
	case event.CarouselActive:
		r.enqueue(applyCarouselActive(channel, e))
	case event.ElementPlaying:
		r.enqueue(applyElementPlaying(channel, e))
	case event.ElementStopped:
		// Removal only ever happens through a newer active element or
		// explicit channel teardown; transient status toggles are noise.
	case event.SchedulerState:
		r.enqueue(applySchedulerState(channel, e))
	case event.ScheduleNext:
		r.enqueue(applyScheduleNext(channel, e))
	case event.CarouselStateChanged:
		r.debounce.observe(CarouselStateKey{Channel: channel, Carousel: e.Carousel}, e.On)
	case event.ElementField:
		r.enqueue(applyElementField(channel, e))
	case event.ElementTemplate:
		r.enqueue(applyElementTemplate(channel, e))
	case event.FeedBindingsDiscovered:
		r.enqueue(applyFeedBindings(channel, e))
	case event.InitialCarouselStates:
		for _, cs := range e.States {
			r.debounce.observe(CarouselStateKey{Channel: channel, Carousel: cs.Carousel}, cs.On)
		}
	case event.InitialActiveElements:
		for _, ca := range e.Actives {
			r.enqueue(applyCarouselActive(channel, ca))
		}
	case event.ShowContentChanged:
		// Liveness signal only; the engine re-fetches show content.
	}
}

// RemoveChannel queues removal of all state belonging to channel, used on
// explicit channel teardown.
func (r *Reconciler) RemoveChannel(channel string) {
	r.enqueue(func(rec *Reconciler, s *Snapshot) {
		for k := range s.Playing {
			if k.Channel == channel {
				delete(s.Playing, k)
			}
		}
		for k := range s.Next {
			if k.Channel == channel {
				delete(s.Next, k)
			}
		}
		for k := range s.Carousels {
			if k.Channel == channel {
				delete(s.Carousels, k)
			}
		}
		for k := range rec.authoritative {
			if k.Channel == channel {
				delete(rec.authoritative, k)
			}
		}
		for k := range rec.handlerFeeds {
			if k[0] == channel {
				delete(rec.handlerFeeds, k)
			}
		}
	})
}

// Flush commits all pending deltas synchronously. The engine calls this on
// shutdown; tests use it to avoid timing dependence.
func (r *Reconciler) Flush() {
	r.mu.Lock()
	if r.flushTimer != nil {
		r.flushTimer.Stop()
		r.flushTimer = nil
	}
	r.flushScheduled = false
	r.mu.Unlock()
	r.flush()
}

// Close stops the debounce timers. Pending deltas are committed first.
func (r *Reconciler) Close() {
	r.debounce.stop()
	r.Flush()
}

// enqueue adds a mutation and arms the flush timer if none is armed. Once a
// flush is scheduled further deltas ride along until it fires.
func (r *Reconciler) enqueue(m mutation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, m)
	if !r.flushScheduled {
		r.flushScheduled = true
		r.flushTimer = time.AfterFunc(r.flushInterval, r.flush)
	}
}

// commitCarousel receives debounced carousel-state values.
func (r *Reconciler) commitCarousel(key CarouselStateKey, on bool) {
	r.enqueue(func(_ *Reconciler, s *Snapshot) {
		// Each inbound state fully replaces the prior boolean.
		s.Carousels[key] = CarouselState{On: on, UpdatedAt: time.Now()}
	})
}

func (r *Reconciler) flush() {
	r.mu.Lock()
	muts := r.pending
	r.pending = nil
	r.flushScheduled = false
	r.flushTimer = nil

	if len(muts) == 0 {
		r.mu.Unlock()
		return
	}

	next := r.snap.Load().clone()
	for _, m := range muts {
		m(r, next)
	}
	r.snap.Store(next)
	hooks := append(([]func(*Snapshot))(nil), r.onFlush...)
	r.mu.Unlock()

	r.logger.Debug("state flush committed", "deltas", len(muts))

	for _, h := range hooks {
		h(next)
	}
}

// applyCarouselActive is the authoritative now-playing rule: it evicts any
// other element on the key, installs the reported one, clears a matching
// scheduled-next entry, and claims the key so status chatter cannot
// override it.
func applyCarouselActive(channel string, e event.CarouselActive) mutation {
	return func(r *Reconciler, s *Snapshot) {
		key := CarouselKey{Channel: channel, Show: e.Show, Feed: e.Feed}
		r.authoritative[key] = true

		// an authoritative claim retires any provisional entry for the show
		delete(s.Playing, CarouselKey{Channel: channel, Show: e.Show})

		if e.ElementID == "" {
			delete(s.Playing, key)
			return
		}

		existing, ok := s.Playing[key]
		if ok && existing.ID == e.ElementID {
			existing.UpdatedAt = time.Now()
			s.Playing[key] = existing
		} else {
			s.Playing[key] = PlayingElement{
				ID:        e.ElementID,
				Feed:      e.Feed,
				UpdatedAt: time.Now(),
			}
		}

		if next, ok := s.Next[key]; ok && activeMatchesNext(e.ElementID, next.ID) {
			delete(s.Next, key)
		}
	}
}

// applyElementPlaying is supplementary: it may install a provisional entry
// for a show no authoritative source has claimed, and never overrides an
// element installed by applyCarouselActive or applySchedulerState.
func applyElementPlaying(channel string, e event.ElementPlaying) mutation {
	return func(r *Reconciler, s *Snapshot) {
		for k := range r.authoritative {
			if k.Channel == channel && k.Show == e.Show {
				return
			}
		}
		key := CarouselKey{Channel: channel, Show: e.Show}
		s.Playing[key] = PlayingElement{
			ID:        e.ElementID,
			UpdatedAt: time.Now(),
		}
	}
}

// applySchedulerState installs the scheduler's own report of what is on
// screen: a synthetic element carrying the reported fields. This source
// always wins over field-less placeholders.
func applySchedulerState(channel string, e event.SchedulerState) mutation {
	return func(r *Reconciler, s *Snapshot) {
		feed := e.FeedHandler
		if name, ok := r.handlerFeeds[[2]string{channel, e.FeedHandler}]; ok {
			feed = name
		}
		key := CarouselKey{Channel: channel, Show: e.Show, Feed: feed}
		r.authoritative[key] = true
		delete(s.Playing, CarouselKey{Channel: channel, Show: e.Show})

		s.Playing[key] = PlayingElement{
			ID:        "/scheduler/" + e.FeedHandler + "/" + e.Show,
			Template:  e.Template,
			Fields:    append([]event.Field(nil), e.Fields...),
			Feed:      feed,
			UpdatedAt: time.Now(),
		}
	}
}

func applyScheduleNext(channel string, e event.ScheduleNext) mutation {
	return func(_ *Reconciler, s *Snapshot) {
		key := CarouselKey{Channel: channel, Show: e.Show, Feed: e.Feed}
		if e.ElementID == "" {
			delete(s.Next, key)
			return
		}
		s.Next[key] = NextElement{ID: e.ElementID, UpdatedAt: time.Now()}
	}
}

// applyElementField patches a stored element in place; unmatched patches are
// dropped rather than speculatively creating state.
func applyElementField(channel string, e event.ElementField) mutation {
	return func(_ *Reconciler, s *Snapshot) {
		for k, pe := range s.Playing {
			if k.Channel == channel && idsEqual(pe.ID, e.ElementID) {
				pe.Fields = upsertField(pe.Fields, e.Name, e.Value)
				pe.UpdatedAt = time.Now()
				s.Playing[k] = pe
			}
		}
		for k, ne := range s.Next {
			if k.Channel == channel && idsEqual(ne.ID, e.ElementID) {
				ne.Fields = upsertField(ne.Fields, e.Name, e.Value)
				ne.UpdatedAt = time.Now()
				s.Next[k] = ne
			}
		}
	}
}

func applyElementTemplate(channel string, e event.ElementTemplate) mutation {
	return func(_ *Reconciler, s *Snapshot) {
		for k, pe := range s.Playing {
			if k.Channel == channel && idsEqual(pe.ID, e.ElementID) {
				pe.Template = e.Template
				pe.UpdatedAt = time.Now()
				s.Playing[k] = pe
			}
		}
		for k, ne := range s.Next {
			if k.Channel == channel && idsEqual(ne.ID, e.ElementID) {
				ne.Template = e.Template
				ne.UpdatedAt = time.Now()
				s.Next[k] = ne
			}
		}
	}
}

func applyFeedBindings(channel string, e event.FeedBindingsDiscovered) mutation {
	return func(r *Reconciler, _ *Snapshot) {
		for feed, handler := range e.Bindings {
			r.handlerFeeds[[2]string{channel, lastPathSegment(handler)}] = feed
		}
	}
}

// activeMatchesNext implements promotion matching: exact id equality,
// "/"-suffix equality either direction, or the active id containing the
// scheduled id.
func activeMatchesNext(activeID, nextID string) bool {
	if idsEqual(activeID, nextID) {
		return true
	}
	return nextID != "" && strings.Contains(activeID, nextID)
}

func upsertField(fields []event.Field, name, value string) []event.Field {
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Value = value
			return fields
		}
	}
	return append(fields, event.Field{Name: name, Value: value})
}

func lastPathSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
