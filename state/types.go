// Package state holds the reconciled playout model: which element is on air
// per channel/show/feed, which is scheduled next, and which carousels are
// switched on. Handlers never mutate readable state directly; they queue
// deltas that a flush step applies to a copy, then swaps in atomically, so
// readers never observe a partially applied batch.
package state

import (
	"strings"
	"time"

	"github.com/c360/playout/event"
)

// CarouselKey is the unit of mutual exclusion: at most one playing element
// exists per key at any time. Feed is empty for provisional entries derived
// from status chatter before any authoritative source has claimed the show.
type CarouselKey struct {
	Channel string
	Show    string
	Feed    string
}

// CarouselStateKey identifies one carousel's on/off flag within a channel.
type CarouselStateKey struct {
	Channel  string
	Carousel string
}

// PlayingElement is the element currently considered on air for a key.
type PlayingElement struct {
	ID        string
	Template  string
	Fields    []event.Field
	Feed      string
	UpdatedAt time.Time
}

// NextElement is the element explicitly scheduled to become active next.
type NextElement struct {
	ID        string
	Template  string
	Fields    []event.Field
	UpdatedAt time.Time
}

// CarouselState is one carousel's switched-on flag.
type CarouselState struct {
	On        bool
	UpdatedAt time.Time
}

// Snapshot is an immutable view of the reconciled model. Readers share
// snapshots; nothing may mutate one after it has been published.
type Snapshot struct {
	Playing   map[CarouselKey]PlayingElement
	Next      map[CarouselKey]NextElement
	Carousels map[CarouselStateKey]CarouselState
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Playing:   make(map[CarouselKey]PlayingElement),
		Next:      make(map[CarouselKey]NextElement),
		Carousels: make(map[CarouselStateKey]CarouselState),
	}
}

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		Playing:   make(map[CarouselKey]PlayingElement, len(s.Playing)),
		Next:      make(map[CarouselKey]NextElement, len(s.Next)),
		Carousels: make(map[CarouselStateKey]CarouselState, len(s.Carousels)),
	}
	for k, v := range s.Playing {
		v.Fields = append([]event.Field(nil), v.Fields...)
		next.Playing[k] = v
	}
	for k, v := range s.Next {
		v.Fields = append([]event.Field(nil), v.Fields...)
		next.Next[k] = v
	}
	for k, v := range s.Carousels {
		next.Carousels[k] = v
	}
	return next
}

// IsElementPlaying reports whether any playing element matches id exactly or
// by path-suffix in either direction.
func (s *Snapshot) IsElementPlaying(id string) bool {
	if id == "" {
		return false
	}
	for _, pe := range s.Playing {
		if idsEqual(pe.ID, id) {
			return true
		}
	}
	return false
}

// IsElementNext reports whether any scheduled-next element matches id.
func (s *Snapshot) IsElementNext(id string) bool {
	if id == "" {
		return false
	}
	for _, ne := range s.Next {
		if idsEqual(ne.ID, id) {
			return true
		}
	}
	return false
}

// CarouselState returns the on/off flag for a carousel, with ok=false when
// the carousel has never been reported.
func (s *Snapshot) CarouselState(channel, carousel string) (bool, bool) {
	cs, ok := s.Carousels[CarouselStateKey{Channel: channel, Carousel: carousel}]
	return cs.On, ok
}

// idsEqual tolerates the short vs fully qualified forms the two id spaces
// use: exact equality or "/"-suffix equality in either direction.
func idsEqual(a, b string) bool {
	if a == b {
		return a != ""
	}
	if a == "" || b == "" {
		return false
	}
	return strings.HasSuffix(a, "/"+b) || strings.HasSuffix(b, "/"+a)
}
