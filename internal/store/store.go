// ABOUTME: Store interface and data types for the dev backend
// ABOUTME: Threads with display titles and their ordered messages

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Role values for Message.Role
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Thread is a stored conversation.
type Thread struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one entry in a thread's transcript.
type Message struct {
	ID        string
	ThreadID  string
	Role      string
	Content   string
	CreatedAt time.Time
}

// Store is the persistence contract of the dev backend.
type Store interface {
	// CreateThread creates the thread unless it exists. It reports whether it was created.
	CreateThread(ctx context.Context, thread *Thread) (bool, error)
	GetThread(ctx context.Context, id string) (*Thread, error)
	// ListThreads returns all threads, oldest first.
	ListThreads(ctx context.Context) ([]*Thread, error)
	// DeleteThread removes a thread and its messages. Unknown ids return ErrNotFound.
	DeleteThread(ctx context.Context, id string) error

	// SaveMessage appends a message and bumps the thread's UpdatedAt.
	SaveMessage(ctx context.Context, msg *Message) error
	// GetThreadMessages returns a thread's messages in save order.
	GetThreadMessages(ctx context.Context, threadID string) ([]*Message, error)

	Close() error
}
