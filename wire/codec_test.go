package wire

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/playout/errors"
)

func TestDecode_PlainTokens(t *testing.T) {
	msg, err := Decode([]byte("12 subscribe /storage/shows\n"))
	require.NoError(t, err)

	assert.Equal(t, "12", msg.RequestID)
	assert.Equal(t, "subscribe", msg.Verb)
	assert.Equal(t, []string{"/storage/shows"}, msg.Args)
	assert.False(t, msg.IsNotification())
}

func TestDecode_Notification(t *testing.T) {
	msg, err := Decode([]byte("* set attribute /shows/news/elements/lower3 status pre\n"))
	require.NoError(t, err)

	assert.True(t, msg.IsNotification())
	assert.Equal(t, "set", msg.Verb)
	assert.Equal(t, []string{"attribute", "/shows/news/elements/lower3", "status", "pre"}, msg.Args)
}

func TestDecode_LengthPrefixedField(t *testing.T) {
	msg, err := Decode([]byte("* set text /x/current/L {11}hello world\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"text", "/x/current/L", "hello world"}, msg.Args)
}

func TestDecode_PrefixedFieldWithNewlines(t *testing.T) {
	raw := "7 ok {13}line1\nline2 x extra\n"
	r := bufio.NewReader(strings.NewReader(raw))

	msg, err := ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "7", msg.RequestID)
	assert.Equal(t, []string{"line1\nline2 x", "extra"}, msg.Args)
}

func TestDecode_EmptyPrefixedField(t *testing.T) {
	msg, err := Decode([]byte("3 schedule /logic/act {0} {0} 0 {0}\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"/logic/act", "", "", "0", ""}, msg.Args)
}

func TestDecode_MalformedPrefix(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"non-numeric", "1 ok {1x}a\n"},
		{"unterminated", "1 ok {12"},
		{"empty prefix", "1 ok {}\n"},
		{"short payload", "1 ok {10}abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "want invalid classification, got %v", err)
		})
	}
}

func TestDecode_MissingVerb(t *testing.T) {
	_, err := Decode([]byte("42\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProtocolFrame)
}

func TestReadMessage_SkipsBlankLines(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\n\r\n5 ok done\n"))
	msg, err := ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "5", msg.RequestID)
	assert.Equal(t, "ok", msg.Verb)
}

func TestReadMessage_MultipleFrames(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("1 ok a\n* added /storage/shows/n/elements/e1\n"))

	first, err := ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "1", first.RequestID)

	second, err := ReadMessage(r)
	require.NoError(t, err)
	assert.True(t, second.IsNotification())
	assert.Equal(t, "added", second.Verb)
}

func TestEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"plain args", Message{RequestID: "9", Verb: "get", Args: []string{"/storage/shows", "4"}}},
		{"arg with spaces", Message{RequestID: "2", Verb: "set", Args: []string{"text", "/p", "breaking news now"}}},
		{"arg with newline", Message{RequestID: "3", Verb: "set", Args: []string{"text", "/p", "two\nlines"}}},
		{"empty args", Message{RequestID: "4", Verb: "schedule", Args: []string{"/logic/a", "", "", "0", ""}}},
		{"brace-leading arg", Message{RequestID: "5", Verb: "set", Args: []string{"text", "/p", "{literal}"}}},
		{"notification", Message{RequestID: "*", Verb: "delete", Args: []string{"/x/current/L"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(Encode(tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestEncode_PrefixesWhitespaceArgs(t *testing.T) {
	raw := Encode(Message{RequestID: "1", Verb: "set", Args: []string{"text", "/p", "a b"}})
	assert.Equal(t, "1 set text /p {3}a b\n", string(raw))
}

func TestDecode_PayloadConsumedByteExact(t *testing.T) {
	// The 5-byte payload contains a brace and a space; the byte after it
	// must start the next token.
	payload := "{ } x"
	raw := "8 ok {5}" + payload + " tail\n"

	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{payload, "tail"}, msg.Args)
}

func TestDecode_LargeBinaryPayload(t *testing.T) {
	body := bytes.Repeat([]byte{0x00, 0x07, ' ', '\n'}, 1024) // 4096 bytes
	var raw bytes.Buffer
	raw.WriteString("6 ok {4096}")
	raw.Write(body)
	raw.WriteByte('\n')

	msg, err := ReadMessage(bufio.NewReader(&raw))
	require.NoError(t, err)
	require.Len(t, msg.Args, 1)
	assert.Equal(t, string(body), msg.Args[0])
}
