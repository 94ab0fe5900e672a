package state

import (
	"sort"
	"strings"

	"github.com/c360/playout/event"
)

// ConfiguredElement is the static description of a graphic as supplied by
// the show/element metadata collaborator. Its id space is not guaranteed to
// agree structurally with the live protocol's ids, hence the layered
// matching below.
type ConfiguredElement struct {
	ID       string
	Template string
	Fields   []event.Field
}

// MatchPlaying correlates a configured element against the live playing set
// using, in order: exact id equality, "/"-suffix id equality in either
// direction, template-name equality on the last path segment, then field
// intersection (one shared name/value pair, or any candidate value contained
// in the playing element's concatenated description). The first heuristic
// with a hit wins; within a heuristic, keys are scanned in deterministic
// order.
func (s *Snapshot) MatchPlaying(el ConfiguredElement) (CarouselKey, PlayingElement, bool) {
	keys := make([]CarouselKey, 0, len(s.Playing))
	for k := range s.Playing {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Show != b.Show {
			return a.Show < b.Show
		}
		return a.Feed < b.Feed
	})

	heuristics := []func(ConfiguredElement, PlayingElement) bool{
		matchExactID,
		matchSuffixID,
		matchTemplate,
		matchFields,
	}

	for _, h := range heuristics {
		for _, k := range keys {
			pe := s.Playing[k]
			if h(el, pe) {
				return k, pe, true
			}
		}
	}
	return CarouselKey{}, PlayingElement{}, false
}

func matchExactID(el ConfiguredElement, pe PlayingElement) bool {
	return el.ID != "" && el.ID == pe.ID
}

func matchSuffixID(el ConfiguredElement, pe PlayingElement) bool {
	if el.ID == "" || pe.ID == "" {
		return false
	}
	return strings.HasSuffix(pe.ID, "/"+el.ID) || strings.HasSuffix(el.ID, "/"+pe.ID)
}

func matchTemplate(el ConfiguredElement, pe PlayingElement) bool {
	if el.Template == "" || pe.Template == "" {
		return false
	}
	return lastPathSegment(el.Template) == lastPathSegment(pe.Template)
}

func matchFields(el ConfiguredElement, pe PlayingElement) bool {
	if len(el.Fields) == 0 {
		return false
	}

	for _, cf := range el.Fields {
		for _, pf := range pe.Fields {
			if cf.Name == pf.Name && cf.Value == pf.Value {
				return true
			}
		}
	}

	desc := describe(pe)
	for _, cf := range el.Fields {
		if cf.Value != "" && strings.Contains(desc, cf.Value) {
			return true
		}
	}
	return false
}

// describe concatenates everything known about a playing element into one
// searchable string.
func describe(pe PlayingElement) string {
	parts := make([]string, 0, len(pe.Fields)+2)
	parts = append(parts, pe.Template, pe.ID)
	for _, f := range pe.Fields {
		parts = append(parts, f.Value)
	}
	return strings.Join(parts, " ")
}
