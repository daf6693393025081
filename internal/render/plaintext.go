// ABOUTME: Renders markdown assistant replies as plain terminal text
// ABOUTME: Walks the goldmark AST, keeping structure (lists, code, quotes) and dropping markup

package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const codeIndent = "    "

// Renderer converts markdown to plain text. It is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New creates a Renderer with strikethrough, task list and bare-URL support.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.Strikethrough,
				extension.Linkify,
				extension.TaskList,
			),
		),
	}
}

var defaultRenderer = New()

// PlainText renders markdown with the default Renderer.
func PlainText(markdown string) string {
	return defaultRenderer.PlainText(markdown)
}

// PlainText renders markdown as plain text. Emphasis markers disappear, code
// blocks are indented, list markers are normalized, and link targets follow
// their text in parentheses.
func (r *Renderer) PlainText(markdown string) string {
	source := []byte(markdown)
	doc := r.md.Parser().Parse(text.NewReader(source))

	w := &plainWriter{source: source}
	_ = ast.Walk(doc, w.visit)

	return strings.TrimRight(w.buf.String(), "\n")
}

type listState struct {
	ordered bool
	next    int
}

type plainWriter struct {
	source    []byte
	buf       bytes.Buffer
	lists     []listState
	quote     int
	linkStart []int
}

func (w *plainWriter) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := n.(type) {
	case *ast.Heading, *ast.Paragraph:
		if entering {
			if !firstInItem(n) {
				w.blockSep()
				w.writePrefix()
			}
		} else {
			w.newline()
		}

	case *ast.TextBlock:
		if entering {
			if !firstInItem(n) {
				w.writePrefix()
			}
		} else {
			w.newline()
		}

	case *ast.ThematicBreak:
		if entering {
			w.blockSep()
			w.writePrefix()
			w.buf.WriteString("---\n")
		}

	case *ast.CodeBlock, *ast.FencedCodeBlock:
		if entering {
			if !firstInItem(n) {
				w.blockSep()
			}
			w.writeCode(n.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.Blockquote:
		if entering {
			w.blockSep()
			w.quote++
		} else {
			w.quote--
		}

	case *ast.List:
		if entering {
			if _, nested := n.Parent().(*ast.ListItem); !nested {
				w.blockSep()
			}
			w.lists = append(w.lists, listState{ordered: n.IsOrdered(), next: n.Start})
		} else {
			w.lists = w.lists[:len(w.lists)-1]
		}

	case *ast.ListItem:
		if entering {
			top := &w.lists[len(w.lists)-1]
			w.buf.WriteString(strings.Repeat("> ", w.quote))
			w.buf.WriteString(strings.Repeat("  ", len(w.lists)-1))
			if top.ordered {
				fmt.Fprintf(&w.buf, "%d. ", top.next)
				top.next++
			} else {
				w.buf.WriteString("- ")
			}
		}

	case *ast.Text:
		if entering {
			w.buf.Write(n.Segment.Value(w.source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				w.buf.WriteByte('\n')
				w.writePrefix()
			}
		}

	case *ast.String:
		if entering {
			w.buf.Write(n.Value)
		}

	case *ast.CodeSpan:
		w.buf.WriteByte('`')

	case *ast.Link:
		if entering {
			w.linkStart = append(w.linkStart, w.buf.Len())
			break
		}
		start := w.linkStart[len(w.linkStart)-1]
		w.linkStart = w.linkStart[:len(w.linkStart)-1]
		label := string(w.buf.Bytes()[start:])
		if dest := string(n.Destination); dest != "" && dest != label {
			fmt.Fprintf(&w.buf, " (%s)", dest)
		}

	case *ast.AutoLink:
		if entering {
			w.buf.Write(n.Label(w.source))
		}
		return ast.WalkSkipChildren, nil

	case *ast.Image:
		if entering {
			w.buf.WriteString("[image: ")
		} else {
			w.buf.WriteByte(']')
		}

	case *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren, nil

	case *extast.TaskCheckBox:
		if entering {
			if n.IsChecked {
				w.buf.WriteString("[x] ")
			} else {
				w.buf.WriteString("[ ] ")
			}
		}
	}

	return ast.WalkContinue, nil
}

func (w *plainWriter) writeCode(lines *text.Segments) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		w.writePrefix()
		w.buf.WriteString(codeIndent)
		w.buf.Write(seg.Value(w.source))
		w.newline()
	}
}

// writePrefix starts a continuation line inside quotes and list items.
func (w *plainWriter) writePrefix() {
	w.buf.WriteString(strings.Repeat("> ", w.quote))
	w.buf.WriteString(strings.Repeat("  ", len(w.lists)))
}

func (w *plainWriter) newline() {
	if w.buf.Len() > 0 && !bytes.HasSuffix(w.buf.Bytes(), []byte("\n")) {
		w.buf.WriteByte('\n')
	}
}

// blockSep leaves exactly one blank line before the next block.
func (w *plainWriter) blockSep() {
	if w.buf.Len() == 0 {
		return
	}
	w.newline()
	if !bytes.HasSuffix(w.buf.Bytes(), []byte("\n\n")) {
		w.buf.WriteByte('\n')
	}
}

func firstInItem(n ast.Node) bool {
	_, ok := n.Parent().(*ast.ListItem)
	return ok && n.PreviousSibling() == nil
}
