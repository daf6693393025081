// ABOUTME: Known conversation threads and which one is active
// ABOUTME: Refreshes from the backend, switches threads, and deletes behind a confirmation gate

// Package thread tracks the conversation threads known to the backend.
package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/2389/coven-chat/internal/backend"
)

// ErrUnknownThread is returned for ids that are not in the last refreshed list.
var ErrUnknownThread = errors.New("unknown thread")

// DeletePrompt is the question put to the Confirmer before a delete.
const DeletePrompt = "Are you sure you want to delete this conversation?"

// Backend is the subset of the backend API the registry uses.
type Backend interface {
	ListThreads(ctx context.Context) ([]backend.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// Session owns the active thread identity and its displayed history.
type Session interface {
	ThreadID() string
	Switch(ctx context.Context, threadID string) error
	Reset() string
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// denyAll is used when no Confirmer is configured.
var denyAll = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })

// Label returns the display name of a thread.
func Label(t backend.Thread) string {
	if t.Title != "" {
		return t.Title
	}
	if t.ID == "" {
		return "Thread"
	}
	id := []rune(t.ID)
	return "Thread " + string(id[:min(6, len(id))]) + "…"
}

// Registry holds the thread list as of the last successful refresh. The
// active thread id lives in the Session; the registry reads it from there.
type Registry struct {
	api     Backend
	session Session
	confirm Confirmer
	logger  *slog.Logger

	mu      sync.RWMutex
	threads []backend.Thread
	seq     uint64 // last issued refresh or local edit
	applied uint64 // seq of the change the list reflects
}

// New creates a registry with an empty list. A nil Confirmer declines every delete.
func New(api Backend, session Session, confirm Confirmer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if confirm == nil {
		confirm = denyAll
	}
	return &Registry{
		api:     api,
		session: session,
		confirm: confirm,
		logger:  logger.With("component", "thread"),
	}
}

// Refresh replaces the list with the backend's. On failure the old list is
// kept. A result that arrives after a newer refresh or delete has been applied
// is discarded.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	threads, err := r.api.ListThreads(ctx)
	if err != nil {
		return fmt.Errorf("refreshing threads: %w", err)
	}

	r.mu.Lock()
	if seq < r.applied {
		r.mu.Unlock()
		r.logger.Debug("stale thread list discarded", "seq", seq)
		return nil
	}
	r.applied = seq
	r.threads = slices.Clone(threads)
	r.mu.Unlock()

	active := r.ActiveID()
	if !slices.ContainsFunc(threads, func(t backend.Thread) bool { return t.ID == active }) {
		// Normal for a new conversation until its first message is stored
		r.logger.Debug("active thread not listed by backend", "thread_id", active)
	}
	r.logger.Debug("threads refreshed", "count", len(threads))
	return nil
}

// List returns the threads in backend order.
func (r *Registry) List() []backend.Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.threads)
}

// Recent returns the threads newest first.
func (r *Registry) Recent() []backend.Thread {
	list := r.List()
	slices.Reverse(list)
	return list
}

// Filter returns the threads whose title or id contains query, ignoring case.
// A blank query matches everything.
func (r *Registry) Filter(query string) []backend.Thread {
	q := strings.ToLower(strings.TrimSpace(query))
	list := r.List()
	if q == "" {
		return list
	}
	return slices.DeleteFunc(list, func(t backend.Thread) bool {
		return !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.ID), q)
	})
}

// Get looks up a thread in the current list.
func (r *Registry) Get(id string) (backend.Thread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := slices.IndexFunc(r.threads, func(t backend.Thread) bool { return t.ID == id })
	if i < 0 {
		return backend.Thread{}, false
	}
	return r.threads[i], true
}

// ActiveID returns the active thread id, which may not be listed yet.
func (r *Registry) ActiveID() string {
	return r.session.ThreadID()
}

// Active returns the active thread if the backend knows it.
func (r *Registry) Active() (backend.Thread, bool) {
	return r.Get(r.ActiveID())
}

// SetActive switches to a listed thread. The session aborts any in-flight
// stream and loads the thread's history; if loading fails nothing changes.
func (r *Registry) SetActive(ctx context.Context, id string) error {
	if _, ok := r.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownThread, id)
	}
	if id == r.ActiveID() {
		return nil
	}

	if err := r.session.Switch(ctx, id); err != nil {
		return fmt.Errorf("switching to thread %s: %w", id, err)
	}

	r.logger.Info("switched thread", "thread_id", id)
	r.refreshQuietly(ctx)
	return nil
}

// StartNew switches to a fresh provisional thread with empty history.
func (r *Registry) StartNew(ctx context.Context) string {
	id := r.session.Reset()
	r.logger.Info("started new thread", "thread_id", id)
	r.refreshQuietly(ctx)
	return id
}

// Remove deletes a thread after the Confirmer agrees. It reports whether the
// thread was deleted. A declined confirmation makes no backend call. The list
// changes only after the backend confirms; removing the active thread starts
// a new one.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	if _, ok := r.Get(id); !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownThread, id)
	}

	ok, err := r.confirm.Confirm(ctx, DeletePrompt)
	if err != nil {
		return false, fmt.Errorf("confirming delete: %w", err)
	}
	if !ok {
		r.logger.Debug("delete declined", "thread_id", id)
		return false, nil
	}

	if err := r.api.DeleteThread(ctx, id); err != nil {
		return false, fmt.Errorf("deleting thread %s: %w", id, err)
	}

	r.mu.Lock()
	r.threads = slices.DeleteFunc(r.threads, func(t backend.Thread) bool { return t.ID == id })
	// Lists fetched before the delete would bring the thread back
	r.seq++
	r.applied = r.seq
	r.mu.Unlock()

	r.logger.Info("deleted thread", "thread_id", id)

	if id == r.ActiveID() {
		r.StartNew(ctx)
	}
	return true, nil
}

func (r *Registry) refreshQuietly(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("thread refresh failed", "error", err)
	}
}
