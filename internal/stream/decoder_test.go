// ABOUTME: Tests for the chat stream decoder
// ABOUTME: Covers chunk-boundary independence, tolerance to bad lines, and Read behavior

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "data: {\"type\":\"tool_start\",\"tool\":\"web_search\"}\n\n" +
	": keep-alive\n" +
	"data: {\"type\":\"content\",\"content\":\"He\"}\n\n" +
	"data: not-json\n\n" +
	"data: {\"type\":\"content\",\"content\":\"llo é世\"}\r\n\r\n" +
	"data: {\"type\":\"usage\",\"tokens\":12}\n\n" +
	"event: ignored\n" +
	"data:{\"type\":\"content\",\"content\":\"no space\"}\n" +
	"data: {\"type\":\"tool_end\",\"tool\":\"web_search\"}\n\n" +
	"data: {\"type\":\"error\",\"content\":\"rate limited\"}\n\n" +
	"data: {\"type\":\"content\",\"content\":\"!\"}"

var sampleEvents = []Event{
	{Kind: KindToolStart, Tool: "web_search"},
	{Kind: KindContent, Content: "He"},
	{Kind: KindContent, Content: "llo é世"},
	{Kind: KindToolEnd, Tool: "web_search"},
	{Kind: KindError, Content: "rate limited"},
	{Kind: KindContent, Content: "!"},
}

func decodeChunks(chunks [][]byte) []Event {
	dec := NewDecoder()
	var out []Event
	for _, c := range chunks {
		out = append(out, dec.Feed(c)...)
	}
	return append(out, dec.Flush()...)
}

func TestDecoder_WholeStream(t *testing.T) {
	assert.Equal(t, sampleEvents, decodeChunks([][]byte{[]byte(sampleStream)}))
}

func TestDecoder_EverySplitPointYieldsSameEvents(t *testing.T) {
	data := []byte(sampleStream)
	for i := 0; i <= len(data); i++ {
		got := decodeChunks([][]byte{data[:i], data[i:]})
		require.Equal(t, sampleEvents, got, "split at byte %d", i)
	}
}

func TestDecoder_SingleByteChunks(t *testing.T) {
	data := []byte(sampleStream)
	chunks := make([][]byte, len(data))
	for i := range data {
		chunks[i] = data[i : i+1]
	}
	assert.Equal(t, sampleEvents, decodeChunks(chunks))
}

func TestDecoder_RetainsPartialLine(t *testing.T) {
	dec := NewDecoder()

	events := dec.Feed([]byte("data: {\"type\":\"content\",\"con"))
	assert.Empty(t, events)

	events = dec.Feed([]byte("tent\":\"Hi\"}\n"))
	assert.Equal(t, []Event{{Kind: KindContent, Content: "Hi"}}, events)
	assert.Empty(t, dec.Flush())
}

func TestDecoder_MalformedLinesAreDropped(t *testing.T) {
	dec := NewDecoder()
	events := dec.Feed([]byte(
		"data: {\"type\":\"content\",\"content\":\"A\"}\n" +
			"data: not-json\n" +
			"data: {\"type\":\"content\"}\n" +
			"data: {\"type\":\"tool_start\"}\n" +
			"data: {\"type\":\"mystery\",\"content\":\"x\"}\n" +
			"data: {\"type\":\"content\",\"content\":\"B\"}\n",
	))

	assert.Equal(t, []Event{
		{Kind: KindContent, Content: "A"},
		{Kind: KindContent, Content: "B"},
	}, events)
	assert.Equal(t, 4, dec.Dropped())
}

func TestDecoder_EmptyContentDeltaIsKept(t *testing.T) {
	events := NewDecoder().Feed([]byte("data: {\"type\":\"content\",\"content\":\"\"}\n"))
	assert.Equal(t, []Event{{Kind: KindContent, Content: ""}}, events)
}

func TestDecoder_FlushWithoutTail(t *testing.T) {
	dec := NewDecoder()
	dec.Feed([]byte("data: {\"type\":\"content\",\"content\":\"A\"}\n"))
	assert.Nil(t, dec.Flush())
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Event
		ok   bool
	}{
		{"content", `{"type":"content","content":"x"}`, Event{Kind: KindContent, Content: "x"}, true},
		{"tool start", `{"type":"tool_start","tool":"calc"}`, Event{Kind: KindToolStart, Tool: "calc"}, true},
		{"tool end", `{"type":"tool_end","tool":"calc"}`, Event{Kind: KindToolEnd, Tool: "calc"}, true},
		{"error", `{"type":"error","content":"boom"}`, Event{Kind: KindError, Content: "boom"}, true},
		{"unknown type", `{"type":"done"}`, Event{}, false},
		{"missing type", `{"content":"x"}`, Event{}, false},
		{"wrong field type", `{"type":"content","content":42}`, Event{}, false},
		{"not json", `hello`, Event{}, false},
		{"truncated", `{"type":"content","content":"x`, Event{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePayload([]byte(tt.in))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func collect(t *testing.T, r io.Reader) ([]Event, error) {
	t.Helper()
	var out []Event
	err := Read(context.Background(), r, func(ev Event) bool {
		out = append(out, ev)
		return true
	})
	return out, err
}

func TestRead_OneByteReader(t *testing.T) {
	events, err := collect(t, iotest.OneByteReader(strings.NewReader(sampleStream)))
	require.NoError(t, err)
	assert.Equal(t, sampleEvents, events)
}

func TestRead_DataErrReader(t *testing.T) {
	// Final bytes arrive together with io.EOF
	events, err := collect(t, iotest.DataErrReader(strings.NewReader(sampleStream)))
	require.NoError(t, err)
	assert.Equal(t, sampleEvents, events)
}

func TestRead_StopsWhenConsumerDeclines(t *testing.T) {
	var seen int
	err := Read(context.Background(), strings.NewReader(sampleStream), func(Event) bool {
		seen++
		return seen < 2
	})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 2, seen)
}

func TestDecoderRead_CountsDroppedLines(t *testing.T) {
	input := "data: {\"type\":\"content\",\"content\":\"A\"}\n" +
		"data: not-json\n" +
		"data: {\"type\":\"mystery\"}\n" +
		"data: {\"type\":\"content\",\"content\":\"B\"}\n"

	dec := NewDecoder()
	var events []Event
	err := dec.Read(context.Background(), strings.NewReader(input), func(ev Event) bool {
		events = append(events, ev)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []Event{{Kind: KindContent, Content: "A"}, {Kind: KindContent, Content: "B"}}, events)
	assert.Equal(t, 2, dec.Dropped())
}

func TestRead_PropagatesReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(
		strings.NewReader("data: {\"type\":\"content\",\"content\":\"A\"}\n"),
		iotest.ErrReader(boom),
	)

	events, err := collect(t, r)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Event{{Kind: KindContent, Content: "A"}}, events)
}

func TestRead_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Read(ctx, strings.NewReader(sampleStream), func(Event) bool {
		t.Fatal("no events expected after cancellation")
		return false
	})
	assert.ErrorIs(t, err, context.Canceled)
}
