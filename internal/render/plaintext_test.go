// ABOUTME: Tests for markdown to plain text rendering
// ABOUTME: Table of common reply shapes: emphasis, lists, code, links, quotes

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"emphasis stripped", "Hello **world** and _you_", "Hello world and you"},
		{"strikethrough", "~~old~~ new", "old new"},
		{"heading and body", "# Title\n\nBody text.", "Title\n\nBody text."},
		{"soft break kept", "first line\nsecond line", "first line\nsecond line"},
		{"bullet list", "* one\n* two", "- one\n- two"},
		{"ordered list", "1. a\n2. b", "1. a\n2. b"},
		{"ordered list start", "3. c\n4. d", "3. c\n4. d"},
		{"nested list", "- a\n  - b", "- a\n  - b"},
		{"paragraph then list", "Intro:\n\n- x", "Intro:\n\n- x"},
		{"fenced code", "```go\nfmt.Println(1)\n```", "    fmt.Println(1)"},
		{"inline code", "run `go test` now", "run `go test` now"},
		{"link", "[docs](https://example.com/docs)", "docs (https://example.com/docs)"},
		{"link same as text", "<https://example.com>", "https://example.com"},
		{"quote", "> quoted", "> quoted"},
		{"raw html dropped", "a <b>bold</b> claim", "a bold claim"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestPlainText_TaskList(t *testing.T) {
	out := PlainText("- [x] done\n- [ ] todo")
	assert.Contains(t, out, "[x]")
	assert.Contains(t, out, "[ ]")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "todo")
}

func TestPlainText_BareURL(t *testing.T) {
	out := PlainText("see https://example.com for more")
	assert.Equal(t, "see https://example.com for more", out)
}

func TestRenderer_Reusable(t *testing.T) {
	r := New()
	assert.Equal(t, "a", r.PlainText("*a*"))
	assert.Equal(t, "b", r.PlainText("**b**"))
}
