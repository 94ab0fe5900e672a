package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/playout/event"
)

func snapshotWith(playing map[CarouselKey]PlayingElement) *Snapshot {
	s := emptySnapshot()
	for k, v := range playing {
		s.Playing[k] = v
	}
	return s
}

func TestMatchPlaying_ExactID(t *testing.T) {
	key := CarouselKey{Channel: "ch1", Show: "news", Feed: "Main"}
	s := snapshotWith(map[CarouselKey]PlayingElement{
		key: {ID: "/storage/shows/news/elements/e1"},
	})

	got, pe, ok := s.MatchPlaying(ConfiguredElement{ID: "/storage/shows/news/elements/e1"})
	require.True(t, ok)
	assert.Equal(t, key, got)
	assert.Equal(t, "/storage/shows/news/elements/e1", pe.ID)
}

func TestMatchPlaying_SuffixEitherDirection(t *testing.T) {
	key := CarouselKey{Channel: "ch1", Show: "news", Feed: "Main"}
	s := snapshotWith(map[CarouselKey]PlayingElement{
		key: {ID: "/storage/shows/news/elements/e1"},
	})

	_, _, ok := s.MatchPlaying(ConfiguredElement{ID: "e1"})
	assert.True(t, ok, "short configured id should suffix-match live id")

	s2 := snapshotWith(map[CarouselKey]PlayingElement{key: {ID: "e1"}})
	_, _, ok = s2.MatchPlaying(ConfiguredElement{ID: "/storage/shows/news/elements/e1"})
	assert.True(t, ok, "short live id should suffix-match configured id")
}

func TestMatchPlaying_TemplateLastSegment(t *testing.T) {
	key := CarouselKey{Channel: "ch1", Show: "news", Feed: "Main"}
	s := snapshotWith(map[CarouselKey]PlayingElement{
		key: {ID: "live-77", Template: "/templates/pack1/lower_third"},
	})

	_, _, ok := s.MatchPlaying(ConfiguredElement{ID: "cfg-1", Template: "lower_third"})
	assert.True(t, ok)

	_, _, ok = s.MatchPlaying(ConfiguredElement{ID: "cfg-1", Template: "scoreboard"})
	assert.False(t, ok)
}

func TestMatchPlaying_FieldIntersection(t *testing.T) {
	key := CarouselKey{Channel: "ch1", Show: "news", Feed: "Main"}
	s := snapshotWith(map[CarouselKey]PlayingElement{
		key: {
			ID:     "live-77",
			Fields: []event.Field{{Name: "headline", Value: "Storm warning"}},
		},
	})

	_, _, ok := s.MatchPlaying(ConfiguredElement{
		ID:     "cfg-1",
		Fields: []event.Field{{Name: "headline", Value: "Storm warning"}},
	})
	assert.True(t, ok, "shared name/value pair should match")

	_, _, ok = s.MatchPlaying(ConfiguredElement{
		ID:     "cfg-2",
		Fields: []event.Field{{Name: "other", Value: "Storm"}},
	})
	assert.True(t, ok, "candidate value contained in description should match")

	_, _, ok = s.MatchPlaying(ConfiguredElement{
		ID:     "cfg-3",
		Fields: []event.Field{{Name: "headline", Value: "Sunshine"}},
	})
	assert.False(t, ok)
}

func TestMatchPlaying_PrecedenceOrder(t *testing.T) {
	exactKey := CarouselKey{Channel: "ch1", Show: "news", Feed: "Main"}
	templateKey := CarouselKey{Channel: "ch1", Show: "sports", Feed: "Main"}
	s := snapshotWith(map[CarouselKey]PlayingElement{
		// would match by template
		templateKey: {ID: "live-1", Template: "lower_third"},
		// matches by exact id
		exactKey: {ID: "cfg-9", Template: "other"},
	})

	got, _, ok := s.MatchPlaying(ConfiguredElement{ID: "cfg-9", Template: "lower_third"})
	require.True(t, ok)
	assert.Equal(t, exactKey, got, "exact id must beat template equality")
}

func TestMatchPlaying_NoCandidates(t *testing.T) {
	s := emptySnapshot()
	_, _, ok := s.MatchPlaying(ConfiguredElement{ID: "anything"})
	assert.False(t, ok)
}
