// Package wire implements the sequencer's line-oriented text protocol:
// whitespace-separated tokens, any of which may instead be written as
// "{N}" followed by exactly N raw bytes, and fixed-size chunking of large
// query replies.
package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/c360/playout/errors"
)

// ChunkSize is the fixed payload size the sequencer uses when splitting a
// large reply. A payload of exactly this size means more chunks follow; any
// other size marks the final chunk.
const ChunkSize = 4096

// NotificationID is the request ID carried by server-originated asynchronous
// notifications. Client-originated requests use positive decimal IDs.
const NotificationID = "*"

// Message is one decoded protocol frame.
type Message struct {
	RequestID string
	Verb      string
	Args      []string
}

// IsNotification reports whether the message is a server-originated
// asynchronous notification rather than a reply to a client request.
func (m Message) IsNotification() bool {
	return m.RequestID == NotificationID
}

// Arg returns the i-th argument or the empty string.
func (m Message) Arg(i int) string {
	if i < 0 || i >= len(m.Args) {
		return ""
	}
	return m.Args[i]
}

// ReadMessage reads and decodes the next frame from r. Length-prefixed
// fields are consumed byte-exactly, so payloads may contain spaces, newlines
// and control bytes without ending the frame. Blank lines are skipped.
//
// A malformed length prefix or a payload cut short yields an error wrapping
// errors.ErrProtocolFrame; callers drop the frame and keep the connection.
func ReadMessage(r *bufio.Reader) (Message, error) {
	tokens, err := readTokens(r)
	if err != nil {
		return Message{}, err
	}

	if len(tokens) < 2 {
		return Message{}, fmt.Errorf("%w: frame has %d tokens, need request ID and verb",
			errors.ErrProtocolFrame, len(tokens))
	}

	return Message{
		RequestID: tokens[0],
		Verb:      tokens[1],
		Args:      tokens[2:],
	}, nil
}

// Decode decodes a single frame held fully in raw.
func Decode(raw []byte) (Message, error) {
	return ReadMessage(bufio.NewReader(bytes.NewReader(raw)))
}

// readTokens consumes one frame's worth of tokens, ending at the first
// newline seen outside a length-prefixed payload.
func readTokens(r *bufio.Reader) ([]string, error) {
	var (
		tokens  []string
		current []byte
		started bool
	)

	flush := func() {
		if started {
			tokens = append(tokens, string(current))
			current = current[:0]
			started = false
		}
	}

	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && (started || len(tokens) > 0) {
				flush()
				return tokens, nil
			}
			return nil, err
		}

		switch {
		case b == '\n':
			flush()
			if len(tokens) > 0 {
				return tokens, nil
			}
			// blank line between frames

		case b == ' ' || b == '\t' || b == '\r':
			flush()

		case b == '{' && !started:
			tok, err := readPrefixed(r)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)

		default:
			current = append(current, b)
			started = true
		}
	}
}

// readPrefixed reads the remainder of a "{N}" field after the opening brace:
// decimal digits, a closing brace, then exactly N raw bytes.
func readPrefixed(r *bufio.Reader) (string, error) {
	var digits []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("%w: unterminated length prefix", errors.ErrProtocolFrame)
		}
		if b == '}' {
			break
		}
		if b < '0' || b > '9' {
			return "", fmt.Errorf("%w: non-numeric length prefix byte %q", errors.ErrProtocolFrame, b)
		}
		digits = append(digits, b)
		if len(digits) > 9 {
			return "", fmt.Errorf("%w: length prefix too long", errors.ErrProtocolFrame)
		}
	}
	if len(digits) == 0 {
		return "", fmt.Errorf("%w: empty length prefix", errors.ErrProtocolFrame)
	}

	n := 0
	for _, d := range digits {
		n = n*10 + int(d-'0')
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", fmt.Errorf("%w: payload trimmed to %d of %d bytes",
			errors.ErrTruncatedChunk, len(payload), n)
	}
	return string(payload), nil
}

// Encode serializes a message, length-prefixing any argument that could not
// survive whitespace tokenization.
func Encode(m Message) []byte {
	var sb strings.Builder
	sb.WriteString(m.RequestID)
	sb.WriteByte(' ')
	sb.WriteString(m.Verb)
	for _, arg := range m.Args {
		sb.WriteByte(' ')
		sb.WriteString(EncodeToken(arg))
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}

// EncodeToken returns arg as-is when it tokenizes cleanly, or in "{N}raw"
// form when it is empty, contains whitespace, or opens with a brace.
func EncodeToken(arg string) string {
	if needsPrefix(arg) {
		return fmt.Sprintf("{%d}%s", len(arg), arg)
	}
	return arg
}

func needsPrefix(arg string) bool {
	if arg == "" {
		return true
	}
	if arg[0] == '{' {
		return true
	}
	return strings.ContainsAny(arg, " \t\r\n")
}
