package event

import (
	"regexp"
	"strings"

	"github.com/c360/playout/wire"
)

// input is a normalized frame: two-token verbs ("set attribute", "set text")
// are folded and the attribute name split out of the argument list.
type input struct {
	Verb  string
	Path  string
	Attr  string
	Value string
}

var (
	elementPathRe     = regexp.MustCompile(`/elements/[^/]+$`)
	carouselCurrentRe = regexp.MustCompile(`/state/([^/]+)/carousels/([^/]+)/current/L$`)
	sysProgCurrentRe  = regexp.MustCompile(`/state/([^/]+)/(system|program)/current$`)
	fieldPathRe       = regexp.MustCompile(`/entry/payload/field\[@name='([^']+)'\]$`)
	schedulerStateRe  = regexp.MustCompile(`^/scheduler/([^/]+)/state/background/(.+)/current$`)
	showElementsRe    = regexp.MustCompile(`/storage/shows/.+/elements/`)
)

// rule pairs a name (for table audits and tests) with a classification
// attempt. Rules are evaluated in order; the first hit wins.
type rule struct {
	name     string
	classify func(in input) (Event, bool)
}

var rules = []rule{
	{"element-status", classifyElementStatus},
	{"carousel-active", classifyCarouselActive},
	{"schedule-next", classifyScheduleNext},
	{"carousel-current", classifyCarouselCurrent},
	{"system-program-current", classifySystemProgram},
	{"element-field", classifyElementField},
	{"element-template", classifyElementTemplate},
	{"scheduler-state", classifySchedulerState},
	{"show-content", classifyShowContent},
}

// Classify maps a decoded frame to a typed event. The second return is false
// for the many protocol frames that carry nothing relevant to playout state;
// that is the expected outcome, not an error.
func Classify(m wire.Message) (Event, bool) {
	in, ok := normalize(m)
	if !ok {
		return nil, false
	}

	for _, r := range rules {
		if ev, ok := r.classify(in); ok {
			return ev, true
		}
	}
	return nil, false
}

func normalize(m wire.Message) (input, bool) {
	switch m.Verb {
	case "set":
		switch m.Arg(0) {
		case "attribute":
			if len(m.Args) < 3 {
				return input{}, false
			}
			return input{Verb: "set attribute", Path: m.Arg(1), Attr: m.Arg(2), Value: m.Arg(3)}, true
		case "text":
			if len(m.Args) < 2 {
				return input{}, false
			}
			return input{Verb: "set text", Path: m.Arg(1), Value: m.Arg(2)}, true
		}
		return input{}, false
	case "added", "delete", "deleted":
		if len(m.Args) < 1 {
			return input{}, false
		}
		return input{Verb: m.Verb, Path: m.Arg(0), Value: m.Arg(1)}, true
	default:
		return input{}, false
	}
}

func classifyElementStatus(in input) (Event, bool) {
	if in.Verb != "set attribute" || in.Attr != "status" || !elementPathRe.MatchString(in.Path) {
		return nil, false
	}

	show := ShowFromPath(in.Path)
	switch in.Value {
	case "pre", "prequeue":
		return ElementPlaying{ElementID: in.Path, Show: show}, true
	case "", "cued":
		return ElementStopped{ElementID: in.Path, Show: show}, true
	}
	// other statuses (loading, busy, ...) carry no playout meaning
	return nil, false
}

func classifyCarouselActive(in input) (Event, bool) {
	if in.Verb != "set attribute" || !strings.HasPrefix(in.Attr, "active_") {
		return nil, false
	}
	return CarouselActive{
		Show:      ShowFromPath(in.Path),
		Feed:      strings.TrimPrefix(in.Attr, "active_"),
		ElementID: in.Value,
	}, true
}

func classifyScheduleNext(in input) (Event, bool) {
	if in.Verb != "set attribute" || !strings.HasPrefix(in.Attr, "schedule_next_") {
		return nil, false
	}
	return ScheduleNext{
		Show:      ShowFromPath(in.Path),
		Feed:      strings.TrimPrefix(in.Attr, "schedule_next_"),
		ElementID: in.Value,
	}, true
}

func classifyCarouselCurrent(in input) (Event, bool) {
	m := carouselCurrentRe.FindStringSubmatch(in.Path)
	if m == nil {
		return nil, false
	}
	return carouselOnOff(in, m[1], m[2])
}

func classifySystemProgram(in input) (Event, bool) {
	m := sysProgCurrentRe.FindStringSubmatch(in.Path)
	if m == nil {
		return nil, false
	}
	return carouselOnOff(in, m[1], m[2])
}

// carouselOnOff maps the verb to the boolean: "set text" switches a carousel
// on, "delete"/"deleted" switches it off.
func carouselOnOff(in input, feed, name string) (Event, bool) {
	switch in.Verb {
	case "set text":
		return CarouselStateChanged{Feed: feed, Carousel: name, On: true}, true
	case "delete", "deleted":
		return CarouselStateChanged{Feed: feed, Carousel: name, On: false}, true
	}
	return nil, false
}

func classifyElementField(in input) (Event, bool) {
	if in.Verb != "set text" && in.Verb != "set attribute" {
		return nil, false
	}
	m := fieldPathRe.FindStringSubmatch(in.Path)
	if m == nil {
		return nil, false
	}

	id, ok := strings.CutSuffix(in.Path, m[0])
	if !ok || id == "" {
		return nil, false
	}
	return ElementField{ElementID: id, Name: m[1], Value: in.Value}, true
}

func classifyElementTemplate(in input) (Event, bool) {
	if in.Verb != "set text" {
		return nil, false
	}
	id, ok := strings.CutSuffix(in.Path, "/entry/name")
	if !ok || id == "" {
		return nil, false
	}
	return ElementTemplate{ElementID: id, Template: in.Value}, true
}

func classifySchedulerState(in input) (Event, bool) {
	if in.Verb != "set text" {
		return nil, false
	}
	m := schedulerStateRe.FindStringSubmatch(in.Path)
	if m == nil {
		return nil, false
	}

	template, fields := ParseFieldList(in.Value)
	return SchedulerState{
		FeedHandler: m[1],
		Show:        lastSegment(m[2]),
		Template:    template,
		Fields:      fields,
	}, true
}

func classifyShowContent(in input) (Event, bool) {
	if in.Verb != "added" && in.Verb != "delete" && in.Verb != "deleted" {
		return nil, false
	}
	if !showElementsRe.MatchString(in.Path) {
		return nil, false
	}
	return ShowContentChanged{Path: in.Path}, true
}

// ShowFromPath extracts the show name from a storage path such as
// /storage/shows/<show>/elements/<id>. Empty when the path carries no show
// segment.
func ShowFromPath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "shows" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
