// ABOUTME: Tests for reply generation helpers
// ABOUTME: Chunking, title heuristic and the echo responder

package devserver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/store"
)

func TestChunks(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"one", []string{"one"}},
		{"Hello big world", []string{"Hello ", "big ", "world"}},
		{"a\n\nb  ", []string{"a\n\n", "b  "}},
		{" lead", []string{" ", "lead"}},
	}
	for _, tt := range tests {
		got := Chunks(tt.in)
		assert.Equal(t, tt.want, got, "Chunks(%q)", tt.in)
		assert.Equal(t, tt.in, strings.Join(got, ""))
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "short", Title("  short  "))

	exact := strings.Repeat("x", 40)
	assert.Equal(t, exact, Title(exact))

	long := strings.Repeat("y", 41)
	assert.Equal(t, strings.Repeat("y", 40)+"...", Title(long))

	// Multi-byte characters are not split
	assert.Equal(t, strings.Repeat("é", 40)+"...", Title(strings.Repeat("é", 45)))
}

func TestEchoResponder(t *testing.T) {
	r := EchoResponder{}

	reply, err := r.Respond(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Empty(t, reply.Tool)
	assert.Contains(t, reply.Text, "You said: hello")
	assert.Contains(t, reply.Text, "turn 1")

	history := []*store.Message{
		{Role: store.RoleUser, Content: "a"},
		{Role: store.RoleAssistant, Content: "b"},
	}
	reply, err = r.Respond(context.Background(), "again", history)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "turn 2")
}

func TestEchoResponder_Search(t *testing.T) {
	r := EchoResponder{}

	reply, err := r.Respond(context.Background(), "Search Go 1.25 release notes", nil)
	require.NoError(t, err)
	assert.Equal(t, SearchTool, reply.Tool)
	assert.Contains(t, reply.Text, "Go 1.25 release notes")

	reply, err = r.Respond(context.Background(), "research", nil)
	require.NoError(t, err)
	assert.Empty(t, reply.Tool)
}
