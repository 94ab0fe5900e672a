// Package event turns decoded protocol frames into a closed set of typed
// playout events. Classification is an ordered table of (predicate,
// constructor) rules evaluated top to bottom; frames matching no rule are
// not errors, they are simply irrelevant to playout state.
package event

// Field is one named value of a graphic element.
type Field struct {
	Name  string
	Value string
}

// Event is the closed union of classified playout events. The concrete types
// below are the only implementations.
type Event interface {
	// Kind returns a stable label for logging and metrics.
	Kind() string
}

// ElementPlaying reports low-level "status" chatter suggesting an element
// went to air. It is supplementary: the reconciler only honors it for keys
// no authoritative source has claimed.
type ElementPlaying struct {
	ElementID string
	Show      string
}

// ElementStopped reports an element's status dropping back to idle. It never
// removes reconciled state on its own; transient status toggles would cause
// visual flicker otherwise.
type ElementStopped struct {
	ElementID string
	Show      string
}

// CarouselActive is the authoritative "now playing" signal for one feed of a
// show. An empty ElementID means the feed went dark.
type CarouselActive struct {
	Show      string
	Feed      string
	ElementID string
}

// ScheduleNext reports an element explicitly queued to become active next on
// a feed.
type ScheduleNext struct {
	Show      string
	Feed      string
	ElementID string
}

// CarouselStateChanged reports a carousel (or the synthetic "system" and
// "program" carousels) being switched on or off.
type CarouselStateChanged struct {
	Feed     string
	Carousel string
	On       bool
}

// ElementField patches one field of an already-known element.
type ElementField struct {
	ElementID string
	Name      string
	Value     string
}

// ElementTemplate patches the template name of an already-known element.
type ElementTemplate struct {
	ElementID string
	Template  string
}

// SchedulerState carries the scheduler's own report of what is literally on
// screen for a feed handler, including resolved field values. It outranks
// every other "now playing" source.
type SchedulerState struct {
	FeedHandler string
	Show        string
	Template    string
	Fields      []Field
}

// ShowContentChanged is a liveness signal: elements were added to or removed
// from a show tree. Content must be re-fetched, not diffed.
type ShowContentChanged struct {
	Path string
}

// FeedBindingsDiscovered carries the feed-name to feed-handler map returned
// by the initial channel-list query.
type FeedBindingsDiscovered struct {
	Bindings map[string]string
}

// InitialCarouselStates carries the carousel on/off states returned by the
// initial state query.
type InitialCarouselStates struct {
	States []CarouselStateChanged
}

// InitialActiveElements carries the active elements returned by the initial
// preloaded-elements query.
type InitialActiveElements struct {
	Actives []CarouselActive
}

func (ElementPlaying) Kind() string         { return "element_playing" }
func (ElementStopped) Kind() string         { return "element_stopped" }
func (CarouselActive) Kind() string         { return "carousel_active" }
func (ScheduleNext) Kind() string           { return "schedule_next" }
func (CarouselStateChanged) Kind() string   { return "carousel_state" }
func (ElementField) Kind() string           { return "element_field" }
func (ElementTemplate) Kind() string        { return "element_template" }
func (SchedulerState) Kind() string         { return "scheduler_state" }
func (ShowContentChanged) Kind() string     { return "show_content" }
func (FeedBindingsDiscovered) Kind() string { return "feed_bindings" }
func (InitialCarouselStates) Kind() string  { return "initial_carousels" }
func (InitialActiveElements) Kind() string  { return "initial_actives" }
