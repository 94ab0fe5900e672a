package testutil

import "github.com/c360/playout/wire"

// AckAll acknowledges every inbound frame with a bare ok reply.
func AckAll(msg wire.Message) []wire.Message {
	return []wire.Message{{RequestID: msg.RequestID, Verb: "ok"}}
}

// ChunkedOK splits payload into fixed-size protocol chunks and returns the
// sequence of ok frames a sequencer would send for requestID. A payload that
// is an exact multiple of the chunk size gains a trailing empty chunk so the
// reply still terminates.
func ChunkedOK(requestID string, payload []byte) []wire.Message {
	var frames []wire.Message
	for {
		n := len(payload)
		if n > wire.ChunkSize {
			n = wire.ChunkSize
		}
		frames = append(frames, wire.Message{
			RequestID: requestID,
			Verb:      "ok",
			Args:      []string{string(payload[:n])},
		})
		payload = payload[n:]
		if n < wire.ChunkSize {
			return frames
		}
		if len(payload) == 0 {
			frames = append(frames, wire.Message{
				RequestID: requestID,
				Verb:      "ok",
				Args:      []string{""},
			})
			return frames
		}
	}
}
