package event

import (
	"regexp"
	"strings"
)

var fieldNameRe = regexp.MustCompile(`^field\[@name='([^']+)'\]$`)

// ParseFieldList parses an embedded field-list document: one record per
// line, each a key token followed by a value. Values may be written in the
// protocol's "{N}raw" form and then contain any bytes, newlines included. A
// leading "entry/name" record names the template.
func ParseFieldList(doc string) (template string, fields []Field) {
	for _, rec := range scanRecords(doc) {
		if rec.key == "entry/name" {
			template = rec.value
			continue
		}
		if m := fieldNameRe.FindStringSubmatch(rec.key); m != nil {
			fields = append(fields, Field{Name: m[1], Value: rec.value})
		}
	}
	return template, fields
}

// ParseFeedBindings parses a channel-list reply payload into a feed-name to
// feed-handler map.
func ParseFeedBindings(payload []byte) FeedBindingsDiscovered {
	bindings := make(map[string]string)
	for _, rec := range scanRecords(string(payload)) {
		if rec.key != "" && rec.value != "" {
			bindings[rec.key] = rec.value
		}
	}
	return FeedBindingsDiscovered{Bindings: bindings}
}

// ParseCarouselStates parses a state-tree reply payload. Records use the
// same paths the live notifications use, with an "on"/"off" value.
func ParseCarouselStates(payload []byte) InitialCarouselStates {
	var states []CarouselStateChanged
	for _, rec := range scanRecords(string(payload)) {
		feed, name, ok := stateKeyParts(rec.key)
		if !ok {
			continue
		}
		states = append(states, CarouselStateChanged{
			Feed:     feed,
			Carousel: name,
			On:       rec.value == "on",
		})
	}
	return InitialCarouselStates{States: states}
}

// ParseActiveElements parses a preloaded-elements reply payload: records of
// "<showPath>/active_<feed> <elementID>".
func ParseActiveElements(payload []byte) InitialActiveElements {
	var actives []CarouselActive
	for _, rec := range scanRecords(string(payload)) {
		i := strings.LastIndex(rec.key, "/active_")
		if i < 0 {
			continue
		}
		actives = append(actives, CarouselActive{
			Show:      ShowFromPath(rec.key[:i]),
			Feed:      rec.key[i+len("/active_"):],
			ElementID: rec.value,
		})
	}
	return InitialActiveElements{Actives: actives}
}

func stateKeyParts(key string) (feed, name string, ok bool) {
	if m := carouselCurrentRe.FindStringSubmatch(key); m != nil {
		return m[1], m[2], true
	}
	if m := sysProgCurrentRe.FindStringSubmatch(key); m != nil {
		return m[1], m[2], true
	}
	return "", "", false
}

type record struct {
	key   string
	value string
}

// scanRecords walks a document of "key value" lines. The value part may be
// "{N}" length-prefixed, in which case exactly N bytes are consumed whatever
// they contain; otherwise the value runs to end of line. Unparseable length
// prefixes abandon the remainder of the document rather than guessing.
func scanRecords(doc string) []record {
	var records []record
	i := 0
	n := len(doc)

	skipSpace := func() {
		for i < n && (doc[i] == ' ' || doc[i] == '\t' || doc[i] == '\r' || doc[i] == '\n') {
			i++
		}
	}
	skipBlanks := func() {
		for i < n && (doc[i] == ' ' || doc[i] == '\t') {
			i++
		}
	}

	for {
		skipSpace()
		if i >= n {
			return records
		}

		// key: up to whitespace
		start := i
		for i < n && doc[i] != ' ' && doc[i] != '\t' && doc[i] != '\r' && doc[i] != '\n' {
			i++
		}
		key := doc[start:i]
		skipBlanks()

		// value
		var value string
		if i < n && doc[i] == '{' {
			i++
			digitStart := i
			for i < n && doc[i] >= '0' && doc[i] <= '9' {
				i++
			}
			if i >= n || doc[i] != '}' || i == digitStart {
				return records
			}
			size := 0
			for _, d := range doc[digitStart:i] {
				size = size*10 + int(d-'0')
			}
			i++
			if i+size > n {
				return records
			}
			value = doc[i : i+size]
			i += size
		} else {
			valStart := i
			for i < n && doc[i] != '\n' && doc[i] != '\r' {
				i++
			}
			value = strings.TrimRight(doc[valStart:i], " \t")
		}

		records = append(records, record{key: key, value: value})
	}
}
