package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldList(t *testing.T) {
	doc := "entry/name scoreboard\n" +
		"field[@name='home'] {3}LIV\n" +
		"field[@name='away'] MCI\n" +
		"field[@name='score'] {5}2 - 1\n"

	template, fields := ParseFieldList(doc)
	assert.Equal(t, "scoreboard", template)
	assert.Equal(t, []Field{
		{Name: "home", Value: "LIV"},
		{Name: "away", Value: "MCI"},
		{Name: "score", Value: "2 - 1"},
	}, fields)
}

func TestParseFieldList_ValueWithNewlines(t *testing.T) {
	doc := "field[@name='body'] {11}first\nlast\nfield[@name='tag'] x\n"

	_, fields := ParseFieldList(doc)
	require.Len(t, fields, 2)
	assert.Equal(t, "first\nlast", fields[0].Value)
	assert.Equal(t, "x", fields[1].Value)
}

func TestParseFieldList_TruncatedPrefixStops(t *testing.T) {
	doc := "field[@name='a'] ok\nfield[@name='b'] {99}short"

	_, fields := ParseFieldList(doc)
	// The well-formed record before the bad prefix survives.
	assert.Equal(t, []Field{{Name: "a", Value: "ok"}}, fields)
}

func TestParseFieldList_IgnoresUnknownKeys(t *testing.T) {
	doc := "entry/guid 1234\nfield[@name='a'] v\n"
	template, fields := ParseFieldList(doc)
	assert.Empty(t, template)
	assert.Equal(t, []Field{{Name: "a", Value: "v"}}, fields)
}

func TestParseFeedBindings(t *testing.T) {
	payload := []byte("Main /scheduler/MainHandler\nPreview /scheduler/PreviewHandler\n")

	ev := ParseFeedBindings(payload)
	assert.Equal(t, map[string]string{
		"Main":    "/scheduler/MainHandler",
		"Preview": "/scheduler/PreviewHandler",
	}, ev.Bindings)
}

func TestParseCarouselStates(t *testing.T) {
	payload := []byte(
		"/storage/ticker/state/Main/carousels/headlines/current/L on\n" +
			"/storage/ticker/state/Main/carousels/weather/current/L off\n" +
			"/storage/ticker/state/Main/system/current on\n" +
			"/storage/unrelated/key on\n")

	ev := ParseCarouselStates(payload)
	assert.Equal(t, []CarouselStateChanged{
		{Feed: "Main", Carousel: "headlines", On: true},
		{Feed: "Main", Carousel: "weather", On: false},
		{Feed: "Main", Carousel: "system", On: true},
	}, ev.States)
}

func TestParseActiveElements(t *testing.T) {
	payload := []byte(
		"/storage/shows/news/active_Main /storage/shows/news/elements/e7\n" +
			"/storage/shows/sports/active_Preview e2\n" +
			"garbage-line\n")

	ev := ParseActiveElements(payload)
	assert.Equal(t, []CarouselActive{
		{Show: "news", Feed: "Main", ElementID: "/storage/shows/news/elements/e7"},
		{Show: "sports", Feed: "Preview", ElementID: "e2"},
	}, ev.Actives)
}

func TestParseActiveElements_EmptyPayload(t *testing.T) {
	ev := ParseActiveElements(nil)
	assert.Empty(t, ev.Actives)
}
