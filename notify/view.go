// Package notify fans reconciled state changes out to subscribers: in-process
// channels for the gateway's websocket hub and an optional NATS publisher for
// other platform services.
package notify

import (
	"sort"
	"time"

	"github.com/c360/playout/event"
	"github.com/c360/playout/state"
)

// ElementView is the JSON shape of one playing or scheduled element.
type ElementView struct {
	Channel   string        `json:"channel"`
	Show      string        `json:"show"`
	Feed      string        `json:"feed,omitempty"`
	ID        string        `json:"id"`
	Template  string        `json:"template,omitempty"`
	Fields    []event.Field `json:"fields,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// CarouselView is the JSON shape of one carousel on/off flag.
type CarouselView struct {
	Channel   string    `json:"channel"`
	Carousel  string    `json:"carousel"`
	On        bool      `json:"on"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StateView is the JSON shape of a full reconciled snapshot.
type StateView struct {
	Playing   []ElementView  `json:"playing"`
	Next      []ElementView  `json:"next"`
	Carousels []CarouselView `json:"carousels"`
}

// SnapshotView converts a snapshot into its serializable form with
// deterministic ordering.
func SnapshotView(s *state.Snapshot) StateView {
	view := StateView{
		Playing:   make([]ElementView, 0, len(s.Playing)),
		Next:      make([]ElementView, 0, len(s.Next)),
		Carousels: make([]CarouselView, 0, len(s.Carousels)),
	}

	for k, pe := range s.Playing {
		view.Playing = append(view.Playing, ElementView{
			Channel:   k.Channel,
			Show:      k.Show,
			Feed:      k.Feed,
			ID:        pe.ID,
			Template:  pe.Template,
			Fields:    pe.Fields,
			UpdatedAt: pe.UpdatedAt,
		})
	}
	for k, ne := range s.Next {
		view.Next = append(view.Next, ElementView{
			Channel:   k.Channel,
			Show:      k.Show,
			Feed:      k.Feed,
			ID:        ne.ID,
			Template:  ne.Template,
			Fields:    ne.Fields,
			UpdatedAt: ne.UpdatedAt,
		})
	}
	for k, cs := range s.Carousels {
		view.Carousels = append(view.Carousels, CarouselView{
			Channel:   k.Channel,
			Carousel:  k.Carousel,
			On:        cs.On,
			UpdatedAt: cs.UpdatedAt,
		})
	}

	sortElements(view.Playing)
	sortElements(view.Next)
	sort.Slice(view.Carousels, func(i, j int) bool {
		a, b := view.Carousels[i], view.Carousels[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Carousel < b.Carousel
	})
	return view
}

func sortElements(elems []ElementView) {
	sort.Slice(elems, func(i, j int) bool {
		a, b := elems[i], elems[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Show != b.Show {
			return a.Show < b.Show
		}
		return a.Feed < b.Feed
	})
}
