// ABOUTME: Drives one chat stream at a time for the active thread
// ABOUTME: Applies decoded stream events to the conversation store and handles abort/reset/switch

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/stream"
)

var (
	// ErrEmptyMessage is returned by Submit for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrStreamInProgress is returned by Submit while a response is streaming.
	ErrStreamInProgress = errors.New("a response is already streaming")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// NoticeConnection is shown when a stream could not be established or broke off.
const NoticeConnection = "Connection error. Please try again."

// State is the session's stream lifecycle state.
type State int32

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Backend is what the controller needs from the remote service.
type Backend interface {
	OpenStream(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error)
	History(ctx context.Context, threadID string) ([]backend.Message, error)
}

// CompleteFunc is called after a stream ends normally and its body is released.
type CompleteFunc func(ctx context.Context, threadID string)

// ToolLabel is the display label for a running tool.
func ToolLabel(tool string) string {
	return "Searching for " + tool + "..."
}

// FinishedLabel is the display label for a tool that has returned while the
// reply is still streaming.
func FinishedLabel(tool string) string {
	return "Finished " + tool
}

// Controller owns the stream lifecycle of the displayed thread and is the
// only writer of the conversation store.
//
// Store observers run while the controller's lock is held. They may call
// State and ThreadID but must not call any other Controller method.
type Controller struct {
	backend Backend
	store   *conversation.Store
	logger  *slog.Logger

	// Parent of every stream context; Close cancels it
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	gen        uint64
	cancel     context.CancelFunc
	released   chan struct{}   // closed once the latest stream's body is closed
	pending    []chan struct{} // done channels of stream goroutines not yet seen to exit
	onComplete CompleteFunc
	closed     bool

	// Readable without mu so observers can use them
	state    atomic.Int32
	threadID atomic.Value
}

// New creates an idle controller on a fresh provisional thread id.
func New(b Backend, store *conversation.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:    b,
		store:      store,
		logger:     logger.With("component", "session"),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	c.threadID.Store(uuid.New().String())
	return c
}

// SetOnComplete sets the hook run after every normally completed stream.
func (c *Controller) SetOnComplete(fn CompleteFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// ThreadID returns the id of the displayed thread.
func (c *Controller) ThreadID() string {
	return c.threadID.Load().(string)
}

// Store returns the conversation store the controller writes to.
func (c *Controller) Store() *conversation.Store {
	return c.store
}

// Submit records the user's message and starts streaming the reply in the
// background. It returns ErrStreamInProgress without side effects while a
// stream is active. Cancelling ctx aborts the stream.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.State() == Streaming {
		return ErrStreamInProgress
	}

	// State flips before the store changes so observers see it
	c.state.Store(int32(Streaming))
	c.store.AppendUser(text)
	c.store.BeginStream()

	c.gen++
	streamCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.baseCtx, cancel)
	prev := c.released
	released := make(chan struct{})
	done := make(chan struct{})
	c.cancel = cancel
	c.released = released
	c.pending = append(pruneDone(c.pending), done)

	req := backend.ChatRequest{Message: text, ThreadID: c.ThreadID()}
	c.logger.Debug("stream starting", "thread_id", req.ThreadID, "gen", c.gen)

	go c.run(streamCtx, func() { stop(); cancel() }, c.gen, req, prev, released, done, c.onComplete)
	return nil
}

// pruneDone drops the channels that are already closed.
func pruneDone(chans []chan struct{}) []chan struct{} {
	live := chans[:0]
	for _, ch := range chans {
		select {
		case <-ch:
		default:
			live = append(live, ch)
		}
	}
	return live
}

// Abort stops the in-flight stream and drops its partial reply. It is a no-op
// when idle. The connection is released asynchronously; Wait blocks until it is.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked()
}

// Reset aborts any stream, clears the history and starts a new provisional
// thread. It returns the new thread id.
func (c *Controller) Reset() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.abortLocked()
	id := uuid.New().String()
	c.threadID.Store(id)
	c.store.Clear()
	c.logger.Debug("new thread", "thread_id", id)
	return id
}

// Switch makes threadID the displayed thread. The history is fetched first;
// if that fails nothing changes. Otherwise any stream is aborted before the
// history replaces the store's contents. Switching to the current thread is a no-op.
func (c *Controller) Switch(ctx context.Context, threadID string) error {
	if threadID == c.ThreadID() {
		return nil
	}

	history, err := c.backend.History(ctx, threadID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.abortLocked()
	c.threadID.Store(threadID)
	c.store.LoadHistory(history)

	c.logger.Debug("switched thread", "thread_id", threadID, "messages", len(history))
	return nil
}

// Wait blocks until every stream goroutine started so far, including its
// completion hook, has exited or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	pending := slices.Clone(c.pending)
	c.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close aborts any stream, cancels completion hooks still running for
// earlier streams, and waits for every stream goroutine to exit.
// Later calls to Submit and Switch return ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.abortLocked()
	c.baseCancel()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, done := range pending {
		<-done
	}
	return nil
}

func (c *Controller) abortLocked() bool {
	if c.State() != Streaming {
		return false
	}

	c.gen++
	c.cancel()
	c.state.Store(int32(Idle))
	c.store.DiscardPartial()

	c.logger.Debug("stream aborted", "thread_id", c.ThreadID())
	return true
}

func (c *Controller) run(
	ctx context.Context,
	cancel context.CancelFunc,
	gen uint64,
	req backend.ChatRequest,
	prev <-chan struct{},
	released, done chan struct{},
	onComplete CompleteFunc,
) {
	defer close(done)
	defer cancel()

	// The previous stream must have let go of its connection first. It is
	// already finished or cancelled, so this does not block for long.
	if prev != nil {
		<-prev
	}

	completed := c.consume(ctx, gen, req, released)
	if completed && onComplete != nil {
		onComplete(ctx, req.ThreadID)
	}
}

// consume opens the stream and applies its events. It closes released once
// the body is closed and reports whether the stream completed normally.
func (c *Controller) consume(ctx context.Context, gen uint64, req backend.ChatRequest, released chan struct{}) bool {
	defer close(released)

	if ctx.Err() != nil {
		return false
	}

	body, err := c.backend.OpenStream(ctx, req)
	if err != nil {
		c.fail(ctx, gen, err)
		return false
	}
	defer body.Close()

	dec := stream.NewDecoder()
	err = dec.Read(ctx, body, func(ev stream.Event) bool {
		return c.apply(gen, ev)
	})
	if n := dec.Dropped(); n > 0 {
		c.logger.Debug("stream lines dropped", "thread_id", req.ThreadID, "count", n)
	}

	switch {
	case err == nil:
		return c.complete(gen)
	case errors.Is(err, stream.ErrStopped):
		// Superseded by abort
		return false
	default:
		c.fail(ctx, gen, err)
		return false
	}
}

// apply mutates the store for one event. It reports false once the stream
// has been superseded, which stops the read loop.
func (c *Controller) apply(gen uint64, ev stream.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}

	switch ev.Kind {
	case stream.KindContent:
		c.store.AppendDelta(ev.Content)
	case stream.KindToolStart:
		c.store.SetTool(conversation.ToolStatus{Active: true, Label: ToolLabel(ev.Tool)})
	case stream.KindToolEnd:
		// Stays visible until the stream ends
		c.store.SetTool(conversation.ToolStatus{Active: true, Label: FinishedLabel(ev.Tool)})
	case stream.KindError:
		// Non-fatal: the backend may keep sending content
		c.logger.Warn("backend reported error", "thread_id", c.ThreadID(), "error", ev.Content)
		c.store.SetNotice(ev.Content)
	}
	return true
}

func (c *Controller) complete(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.State() != Streaming {
		return false
	}

	c.state.Store(int32(Idle))
	committed := c.store.CommitPartial()

	c.logger.Debug("stream complete", "thread_id", c.ThreadID(), "committed", committed)
	return true
}

func (c *Controller) fail(ctx context.Context, gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.State() != Streaming {
		return
	}

	c.state.Store(int32(Idle))
	c.store.DiscardPartial()

	// Cancelled by the caller's context rather than by Abort: same outcome, no notice
	if ctx.Err() != nil {
		c.logger.Debug("stream cancelled", "thread_id", c.ThreadID())
		return
	}

	c.store.SetNotice(NoticeConnection)
	c.logger.Error("stream failed", "thread_id", c.ThreadID(), "error", err)
}
