package sequencer

import (
	"strconv"

	"github.com/c360/playout/wire"
)

// Well-known sequencer tree paths used by the handshake and the initial
// queries after every (re)connect.
const (
	PathShows       = "/storage/shows"
	PathScheduler   = "/scheduler"
	PathTickerState = "/storage/ticker/state"
	PathChannels    = "/config/channels"
)

// Depths for the initial queries. The channel list is shallow; the show tree
// needs element children; ticker state needs carousel leaves.
const (
	depthChannels = 2
	depthShowTree = 4
	depthTicker   = 3
)

// Handshake announces the protocol and version. Sent first on every
// connection before any subscription.
func Handshake() wire.Message {
	return wire.Message{Verb: "protocol", Args: []string{"playout", "1"}}
}

// Subscribe registers for change notifications under path.
func Subscribe(path string) wire.Message {
	return wire.Message{Verb: "subscribe", Args: []string{path}}
}

// Get queries the subtree at path down to depth levels.
func Get(path string, depth int) wire.Message {
	return wire.Message{Verb: "get", Args: []string{path, strconv.Itoa(depth)}}
}

// TriggerAction fires the action node at actionPath. The empty payload slots
// and the zero delay are required by the schedule verb's argument shape.
func TriggerAction(actionPath string) wire.Message {
	return wire.Message{
		Verb: "schedule",
		Args: []string{actionPath, "", "", "0", ""},
	}
}

// SetAsNext cues elementPath as the next item of carousel on the given
// output feed, through the set_as_next logic node at logicPath.
func SetAsNext(logicPath, elementPath, carousel, feed string) wire.Message {
	return wire.Message{
		Verb: "schedule",
		Args: []string{
			logicPath, "", "schedule", "0", "",
			"set_as_next_path", elementPath,
			"carouselname", carousel,
			"output_channel", feed,
		},
	}
}

// subscriptions is the fixed resubscription set sent after the handshake on
// every connect. Reconnects replay it in full so no notification stream is
// silently lost.
func subscriptions() []wire.Message {
	return []wire.Message{
		Subscribe(PathShows),
		Subscribe(PathScheduler),
		Subscribe(PathTickerState),
	}
}

// initialQueries pairs each startup query with the kind its reply is parsed
// as.
func initialQueries() []initialQuery {
	return []initialQuery{
		{QueryFeedBindings, Get(PathChannels, depthChannels)},
		{QueryShowTree, Get(PathShows, depthShowTree)},
		{QueryInitialState, Get(PathTickerState, depthTicker)},
	}
}

type initialQuery struct {
	kind QueryKind
	msg  wire.Message
}
