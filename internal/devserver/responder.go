// ABOUTME: Reply generation for the dev backend
// ABOUTME: Responder interface, the default echo responder, and word chunking

package devserver

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/2389/coven-chat/internal/store"
)

// Reply is what the backend streams back for one user message.
type Reply struct {
	// Tool, when set, is announced with tool_start/tool_end before the text.
	Tool string
	Text string
}

// Responder produces the reply to a message. history holds the thread's
// earlier messages, oldest first, excluding message itself.
type Responder interface {
	Respond(ctx context.Context, message string, history []*store.Message) (Reply, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, message string, history []*store.Message) (Reply, error)

func (f ResponderFunc) Respond(ctx context.Context, message string, history []*store.Message) (Reply, error) {
	return f(ctx, message, history)
}

// SearchTool is the tool name EchoResponder reports for search requests.
const SearchTool = "web_search"

// EchoResponder answers without any model: it echoes the message and counts
// the turns so far. Messages starting with "search" get a pretend tool call.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, message string, history []*store.Message) (Reply, error) {
	turn := 1
	for _, m := range history {
		if m.Role == store.RoleUser {
			turn++
		}
	}

	if query, ok := searchQuery(message); ok {
		return Reply{
			Tool: SearchTool,
			Text: fmt.Sprintf("I searched the web for **%s**. This development backend has no real search, so there are no results to show.", query),
		}, nil
	}

	return Reply{
		Text: fmt.Sprintf("You said: %s\n\n_(turn %d of this conversation)_", message, turn),
	}, nil
}

func searchQuery(message string) (string, bool) {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) < len("search") || !strings.EqualFold(trimmed[:len("search")], "search") {
		return "", false
	}
	query := strings.TrimSpace(trimmed[len("search"):])
	if query == "" {
		query = "nothing in particular"
	}
	return query, true
}

// Chunks splits text into word-sized deltas. Each chunk is a word with the
// whitespace that follows it, so concatenating the chunks restores text.
func Chunks(text string) []string {
	var chunks []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if inSpace && !space {
			chunks = append(chunks, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

// Title derives a thread title from its first message.
func Title(message string) string {
	const maxLen = 40
	message = strings.TrimSpace(message)
	runes := []rune(message)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return message
}
