// ABOUTME: Observable in-memory history for the active thread
// ABOUTME: Holds committed messages, the in-progress assistant text, and tool activity

package conversation

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/backend"
)

// ToolStatus describes backend tool activity for display. It is never persisted.
type ToolStatus struct {
	Active bool   `json:"active"`
	Label  string `json:"label"`
}

// Snapshot is an immutable copy of the store's state.
type Snapshot struct {
	Messages []backend.Message `json:"messages"`
	Partial  string            `json:"partial"`
	Tool     ToolStatus        `json:"tool"`
	Notice   string            `json:"notice,omitempty"`
}

// Empty reports whether there is nothing to show: no messages and no partial text.
func (s Snapshot) Empty() bool {
	return len(s.Messages) == 0 && s.Partial == ""
}

// Observer receives a snapshot after every committed mutation.
type Observer func(Snapshot)

type subscription struct {
	id string
	fn Observer
}

// Store is the conversation state of the active thread. Mutating methods are
// meant for the session controller only; everyone else reads snapshots or
// subscribes.
//
// Observers run synchronously, in subscription order, on the goroutine that
// made the change. They may read the store but must not mutate it.
type Store struct {
	mu       sync.RWMutex
	messages []backend.Message
	partial  string
	tool     ToolStatus
	notice   string

	// notifyMu serializes mutate+notify so observers see changes in order
	notifyMu  sync.Mutex
	observers []subscription
	logger    *slog.Logger
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger: logger.With("component", "conversation"),
	}
}

// Subscribe registers an observer and returns its id for Unsubscribe.
func (s *Store) Subscribe(fn Observer) string {
	id := uuid.New().String()

	s.notifyMu.Lock()
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	s.notifyMu.Unlock()

	s.logger.Debug("observer added", "sub_id", id)
	return id
}

// Unsubscribe removes an observer. Unknown ids are ignored.
func (s *Store) Unsubscribe(id string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.observers = slices.DeleteFunc(s.observers, func(sub subscription) bool {
		return sub.id == id
	})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Messages returns a copy of the committed history.
func (s *Store) Messages() []backend.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Partial returns the in-progress assistant text.
func (s *Store) Partial() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partial
}

// Tool returns the current tool activity.
func (s *Store) Tool() ToolStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tool
}

// Notice returns the last user-facing notice, if any.
func (s *Store) Notice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notice
}

// IsEmpty reports whether there are no messages and no partial text.
func (s *Store) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages) == 0 && s.partial == ""
}

// AppendUser commits the user's own input.
func (s *Store) AppendUser(content string) {
	s.mutate(func() {
		s.messages = append(s.messages, backend.Message{Role: backend.RoleUser, Content: content})
	})
}

// BeginStream clears the transient fields and the notice for a new stream.
func (s *Store) BeginStream() {
	s.mutate(func() {
		s.partial = ""
		s.tool = ToolStatus{}
		s.notice = ""
	})
}

// AppendDelta extends the in-progress assistant text.
func (s *Store) AppendDelta(delta string) {
	if delta == "" {
		return
	}
	s.mutate(func() {
		s.partial += delta
	})
}

// SetTool replaces the tool activity indicator.
func (s *Store) SetTool(status ToolStatus) {
	s.mutate(func() {
		s.tool = status
	})
}

// SetNotice records a user-facing notice.
func (s *Store) SetNotice(notice string) {
	s.mutate(func() {
		s.notice = notice
	})
}

// CommitPartial turns non-empty partial text into an assistant message, then
// clears the transient fields. It reports whether a message was committed.
func (s *Store) CommitPartial() bool {
	var committed bool
	s.mutate(func() {
		if s.partial != "" {
			s.messages = append(s.messages, backend.Message{Role: backend.RoleAssistant, Content: s.partial})
			committed = true
		}
		s.partial = ""
		s.tool = ToolStatus{}
	})
	return committed
}

// DiscardPartial drops the partial text without committing it and resets tool activity.
func (s *Store) DiscardPartial() {
	s.mutate(func() {
		s.partial = ""
		s.tool = ToolStatus{}
	})
}

// LoadHistory replaces the committed history wholesale and clears transient state.
// It must not run while a stream for the displayed thread is in flight.
func (s *Store) LoadHistory(messages []backend.Message) {
	s.mutate(func() {
		s.messages = slices.Clone(messages)
		s.partial = ""
		s.tool = ToolStatus{}
		s.notice = ""
	})
}

// Clear empties the history and all transient state.
func (s *Store) Clear() {
	s.mutate(func() {
		s.messages = nil
		s.partial = ""
		s.tool = ToolStatus{}
		s.notice = ""
	})
}

func (s *Store) mutate(fn func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	for _, sub := range s.observers {
		sub.fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	msgs := slices.Clone(s.messages)
	if msgs == nil {
		msgs = []backend.Message{}
	}
	return Snapshot{
		Messages: msgs,
		Partial:  s.partial,
		Tool:     s.tool,
		Notice:   s.notice,
	}
}
