// ABOUTME: App is the chat session object: one store, one controller, one registry
// ABOUTME: Front ends drive it through Submit/Open/Delete and read it through View

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/session"
	"github.com/2389/coven-chat/internal/thread"
)

// Backend is everything the App needs from the chat backend.
// *backend.Client implements it.
type Backend interface {
	session.Backend
	thread.Backend
}

// View is what a front end draws. All fields are plain values.
type View struct {
	ThreadID  string                  `json:"thread_id"`
	Threads   []backend.Thread        `json:"threads"`
	Messages  []backend.Message       `json:"messages"`
	Partial   string                  `json:"partial"`
	Tool      conversation.ToolStatus `json:"tool"`
	Streaming bool                    `json:"streaming"`
	Notice    string                  `json:"notice,omitempty"`
	// Empty is true when there is nothing to show yet; Suggestions is set only then.
	Empty       bool     `json:"empty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Option configures an App.
type Option func(*App)

// WithSuggestions sets the prompts offered on an empty conversation.
func WithSuggestions(s []string) Option {
	return func(a *App) { a.suggestions = slices.Clone(s) }
}

// WithConfirmer sets who answers the delete confirmation. Without one every
// delete is declined.
func WithConfirmer(c thread.Confirmer) Option {
	return func(a *App) { a.confirm = c }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// App is one chat session.
type App struct {
	suggestions []string
	confirm     thread.Confirmer
	logger      *slog.Logger

	store    *conversation.Store
	session  *session.Controller
	registry *thread.Registry
}

// New builds an App on a fresh provisional thread. Nothing is fetched until Start.
func New(api Backend, opts ...Option) *App {
	a := &App{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	a.store = conversation.NewStore(a.logger)
	a.session = session.New(api, a.store, a.logger)
	a.registry = thread.New(api, a.session, a.confirm, a.logger)
	a.logger = a.logger.With("component", "chat")

	// New threads get their server-side title on the first reply
	a.session.SetOnComplete(func(ctx context.Context, threadID string) {
		if err := a.registry.Refresh(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("thread refresh after reply failed", "thread_id", threadID, "error", err)
		}
	})
	return a
}

// Start loads the thread list. A failure is returned but leaves the App usable.
func (a *App) Start(ctx context.Context) error {
	if err := a.registry.Refresh(ctx); err != nil {
		return fmt.Errorf("starting chat: %w", err)
	}
	a.logger.Info("chat started", "thread_id", a.session.ThreadID(), "threads", len(a.registry.List()))
	return nil
}

// Close aborts any stream and waits for its connection to be released.
func (a *App) Close() error {
	return a.session.Close()
}

// Submit sends text on the active thread. The reply arrives through observers.
func (a *App) Submit(ctx context.Context, text string) error {
	return a.session.Submit(ctx, text)
}

// Abort stops the current reply. It is a no-op when idle.
func (a *App) Abort() {
	a.session.Abort()
}

// Streaming reports whether a reply is in flight.
func (a *App) Streaming() bool {
	return a.session.State() == session.Streaming
}

// Wait blocks until the latest reply has finished and its follow-up refresh is done.
func (a *App) Wait(ctx context.Context) error {
	return a.session.Wait(ctx)
}

// NewThread starts a fresh conversation and returns its id.
func (a *App) NewThread(ctx context.Context) string {
	return a.registry.StartNew(ctx)
}

// Open switches to a known thread and loads its history.
func (a *App) Open(ctx context.Context, threadID string) error {
	return a.registry.SetActive(ctx, threadID)
}

// Delete removes a thread after confirmation. It reports whether the thread was deleted.
func (a *App) Delete(ctx context.Context, threadID string) (bool, error) {
	return a.registry.Remove(ctx, threadID)
}

// Refresh reloads the thread list.
func (a *App) Refresh(ctx context.Context) error {
	return a.registry.Refresh(ctx)
}

// Threads returns known threads newest first, filtered by query when it is not blank.
func (a *App) Threads(query string) []backend.Thread {
	list := a.registry.Filter(query)
	slices.Reverse(list)
	return list
}

// ThreadID returns the active thread id.
func (a *App) ThreadID() string {
	return a.session.ThreadID()
}

// Resolve turns user input into a thread id: an exact id, or a 1-based
// position in Threads("").
func (a *App) Resolve(ref string) (string, error) {
	if _, ok := a.registry.Get(ref); ok {
		return ref, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		list := a.Threads("")
		if n >= 1 && n <= len(list) {
			return list[n-1].ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", thread.ErrUnknownThread, ref)
}

// View returns the current state for drawing.
func (a *App) View() View {
	return a.view(a.store.Snapshot())
}

// Subscribe calls fn with a fresh View after every change to the
// conversation. fn runs synchronously on the goroutine that made the change
// and must not call App methods other than View, ThreadID and Streaming.
func (a *App) Subscribe(fn func(View)) string {
	return a.store.Subscribe(func(snap conversation.Snapshot) {
		fn(a.view(snap))
	})
}

// Unsubscribe removes an observer added with Subscribe.
func (a *App) Unsubscribe(id string) {
	a.store.Unsubscribe(id)
}

func (a *App) view(snap conversation.Snapshot) View {
	v := View{
		ThreadID:  a.session.ThreadID(),
		Threads:   a.registry.Recent(),
		Messages:  snap.Messages,
		Partial:   snap.Partial,
		Tool:      snap.Tool,
		Streaming: a.Streaming(),
		Notice:    snap.Notice,
		Empty:     snap.Empty(),
	}
	if v.Empty {
		v.Suggestions = slices.Clone(a.suggestions)
	}
	return v
}
