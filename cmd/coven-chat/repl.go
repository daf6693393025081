// ABOUTME: Interactive read-eval loop for coven-chat
// ABOUTME: Slash commands manage threads; plain lines are sent and the reply streams to the terminal

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/render"
	"github.com/2389/coven-chat/internal/thread"
)

var (
	faint  = color.New(color.Faint)
	blue   = color.New(color.FgBlue)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// syncWriter serializes writes from the loop and from stream observers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// readLines delivers lines from r until EOF, then closes the channel.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

// lineConfirmer answers confirmations with the next input line.
type lineConfirmer struct {
	lines <-chan string
	out   io.Writer
}

func newLineConfirmer(lines <-chan string, out io.Writer) *lineConfirmer {
	return &lineConfirmer{lines: lines, out: out}
}

func (c *lineConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	yellow.Fprintf(c.out, "%s [y/N] ", prompt)
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return false, io.EOF
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

type repl struct {
	app        *chat.App
	lines      <-chan string
	interrupts <-chan os.Signal
	out        io.Writer
	renderer   *render.Renderer

	// What the observer has already printed for the current reply
	mu           sync.Mutex
	shownPartial string
	shownTool    string
	shownNotice  string
}

func newREPL(app *chat.App, lines <-chan string, interrupts <-chan os.Signal, out io.Writer) *repl {
	return &repl{
		app:        app,
		lines:      lines,
		interrupts: interrupts,
		out:        out,
		renderer:   render.New(),
	}
}

// start loads the thread list, opens threadID if given, and begins
// following the conversation. A backend that cannot list threads is reported
// but does not stop the client.
func (r *repl) start(ctx context.Context, threadID string) {
	if err := r.app.Start(ctx); err != nil {
		red.Fprintf(r.out, "Could not load threads: %v\n", err)
	}

	if threadID != "" {
		if err := r.app.Open(ctx, threadID); err != nil {
			red.Fprintf(r.out, "Could not open thread %s: %v\n", threadID, err)
		} else {
			r.printHistory()
		}
	}
	if r.app.View().Empty {
		r.printWelcome()
	}

	r.app.Subscribe(r.onView)
}

// loop reads input until EOF, /quit, or Ctrl+C while idle.
func (r *repl) loop(ctx context.Context) {
	for {
		fmt.Fprint(r.out, "> ")

		var line string
		select {
		case <-ctx.Done():
			return
		case <-r.interrupts:
			fmt.Fprintln(r.out)
			return
		case l, ok := <-r.lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return
			}
			fmt.Fprintln(r.out)
			continue
		}
		r.send(ctx, line)
		fmt.Fprintln(r.out)
	}
}

// send submits text and blocks until the reply ends. Ctrl+C aborts the reply.
func (r *repl) send(ctx context.Context, text string) {
	if err := r.app.Submit(ctx, text); err != nil {
		red.Fprintf(r.out, "[error] %v\n", err)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.app.Wait(context.Background())
	}()

	select {
	case <-done:
	case <-r.interrupts:
		r.app.Abort()
		<-done
		yellow.Fprintln(r.out, "[aborted]")
	case <-ctx.Done():
		r.app.Abort()
		<-done
	}
}

// command runs a slash command and reports whether the client should exit.
func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		printHelp(r.out)
	case "/new":
		r.app.NewThread(ctx)
		green.Fprintln(r.out, "Started a new conversation")
		r.printWelcome()
	case "/threads":
		r.listThreads(ctx, arg)
	case "/open":
		r.openThread(ctx, arg)
	case "/delete":
		r.deleteThread(ctx, arg)
	default:
		fmt.Fprintf(r.out, "Unknown command %s. /help for commands.\n", name)
	}
	return false
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  /new             Start a new conversation")
	fmt.Fprintln(w, "  /threads [text]  List conversations, optionally filtered")
	fmt.Fprintln(w, "  /open <n|id>     Open a conversation from the list")
	fmt.Fprintln(w, "  /delete <n|id>   Delete a conversation (asks first)")
	fmt.Fprintln(w, "  /help            Show this help")
	fmt.Fprintln(w, "  /quit            Exit")
	fmt.Fprintln(w, "Ctrl+C stops a reply in progress; when idle it exits.")
}

func (r *repl) listThreads(ctx context.Context, query string) {
	if err := r.app.Refresh(ctx); err != nil {
		yellow.Fprintf(r.out, "Could not refresh threads, showing last known list: %v\n", err)
	}

	all := r.app.Threads("")
	if len(all) == 0 {
		fmt.Fprintln(r.out, "No conversations yet")
		return
	}

	// Numbers always refer to the unfiltered list so /open n works after a search
	position := make(map[string]int, len(all))
	for i, t := range all {
		position[t.ID] = i + 1
	}

	matches := r.app.Threads(query)
	if len(matches) == 0 {
		fmt.Fprintf(r.out, "No conversations match %q\n", query)
		return
	}

	active := r.app.ThreadID()
	for _, t := range matches {
		marker := " "
		if t.ID == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s%3d. %s ", marker, position[t.ID], thread.Label(t))
		faint.Fprintf(r.out, "(%s)\n", t.ID)
	}
}

func (r *repl) openThread(ctx context.Context, ref string) {
	if ref == "" {
		fmt.Fprintln(r.out, "Usage: /open <n|id>")
		return
	}
	id, err := r.app.Resolve(ref)
	if err != nil {
		red.Fprintf(r.out, "[error] %v (try /threads)\n", err)
		return
	}
	if err := r.app.Open(ctx, id); err != nil {
		red.Fprintf(r.out, "[error] %v\n", err)
		return
	}

	r.printHistory()
	if r.app.View().Empty {
		fmt.Fprintln(r.out, "This conversation has no messages yet")
	}
}

func (r *repl) deleteThread(ctx context.Context, ref string) {
	if ref == "" {
		fmt.Fprintln(r.out, "Usage: /delete <n|id>")
		return
	}
	id, err := r.app.Resolve(ref)
	if err != nil {
		red.Fprintf(r.out, "[error] %v (try /threads)\n", err)
		return
	}

	wasActive := id == r.app.ThreadID()
	deleted, err := r.app.Delete(ctx, id)
	switch {
	case errors.Is(err, io.EOF):
		fmt.Fprintln(r.out)
		return
	case err != nil:
		red.Fprintf(r.out, "[error] %v\n", err)
		return
	case !deleted:
		fmt.Fprintln(r.out, "Kept it")
		return
	}

	green.Fprintln(r.out, "Deleted")
	if wasActive {
		fmt.Fprintln(r.out, "Started a new conversation")
	}
}

func (r *repl) printWelcome() {
	v := r.app.View()
	if len(v.Suggestions) == 0 {
		return
	}
	fmt.Fprintln(r.out, "Not sure where to start? Try:")
	for _, s := range v.Suggestions {
		faint.Fprintf(r.out, "  • %s\n", s)
	}
}

func (r *repl) printHistory() {
	for _, m := range r.app.View().Messages {
		r.printMessage(m)
	}
}

func (r *repl) printMessage(m backend.Message) {
	switch m.Role {
	case backend.RoleUser:
		blue.Fprint(r.out, "you› ")
		fmt.Fprintln(r.out, m.Content)
	default:
		green.Fprint(r.out, "assistant› ")
		fmt.Fprintln(r.out, r.renderer.PlainText(m.Content))
	}
}

// onView prints what changed in the conversation since the last view. It
// runs on the goroutine that changed the conversation.
func (r *repl) onView(v chat.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.Tool.Active && v.Tool.Label != r.shownTool {
		yellow.Fprintf(r.out, "[%s]\n", v.Tool.Label)
	}
	r.shownTool = ""
	if v.Tool.Active {
		r.shownTool = v.Tool.Label
	}

	switch {
	case v.Partial != "" && strings.HasPrefix(v.Partial, r.shownPartial):
		if r.shownPartial == "" {
			green.Fprint(r.out, "assistant› ")
		}
		fmt.Fprint(r.out, v.Partial[len(r.shownPartial):])
		r.shownPartial = v.Partial
	case v.Partial == "" && r.shownPartial != "":
		r.finishReply(v)
		r.shownPartial = ""
	}

	if v.Notice != "" && v.Notice != r.shownNotice {
		red.Fprintf(r.out, "[%s]\n", v.Notice)
	}
	r.shownNotice = v.Notice
}

// finishReply ends the streamed line. When the committed reply has markdown
// the rendered text follows so lists, links and code read cleanly.
func (r *repl) finishReply(v chat.View) {
	fmt.Fprintln(r.out)

	n := len(v.Messages)
	if n == 0 || v.Messages[n-1].Role != backend.RoleAssistant || v.Messages[n-1].Content != r.shownPartial {
		// Dropped rather than committed
		return
	}
	if rendered := r.renderer.PlainText(r.shownPartial); rendered != strings.TrimSpace(r.shownPartial) {
		faint.Fprintln(r.out, "───")
		fmt.Fprintln(r.out, rendered)
	}
}
