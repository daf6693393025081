// ABOUTME: Tests for the observable conversation store
// ABOUTME: Covers commit/discard of partials, history loading, and observer ordering

package conversation

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/backend"
)

func user(s string) backend.Message      { return backend.Message{Role: backend.RoleUser, Content: s} }
func assistant(s string) backend.Message { return backend.Message{Role: backend.RoleAssistant, Content: s} }

func TestStore_StartsEmpty(t *testing.T) {
	s := NewStore(nil)

	assert.True(t, s.IsEmpty())
	snap := s.Snapshot()
	assert.True(t, snap.Empty())
	assert.NotNil(t, snap.Messages)
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Tool.Active)
}

func TestStore_CommitPartial(t *testing.T) {
	s := NewStore(nil)

	s.AppendUser("hi")
	s.BeginStream()
	s.AppendDelta("Hel")
	s.AppendDelta("lo")
	s.SetTool(ToolStatus{Active: true, Label: "Searching for web..."})

	assert.Equal(t, "Hello", s.Partial())
	assert.False(t, s.IsEmpty())

	require.True(t, s.CommitPartial())

	assert.Equal(t, []backend.Message{user("hi"), assistant("Hello")}, s.Messages())
	assert.Empty(t, s.Partial())
	assert.Equal(t, ToolStatus{}, s.Tool())
}

func TestStore_CommitEmptyPartialAddsNothing(t *testing.T) {
	s := NewStore(nil)
	s.AppendUser("hi")
	s.BeginStream()
	s.SetTool(ToolStatus{Active: true, Label: "x"})

	assert.False(t, s.CommitPartial())
	assert.Len(t, s.Messages(), 1)
	assert.False(t, s.Tool().Active)
}

func TestStore_DiscardPartial(t *testing.T) {
	s := NewStore(nil)
	s.AppendUser("hi")
	s.BeginStream()
	s.AppendDelta("half an ans")
	s.SetTool(ToolStatus{Active: true, Label: "x"})

	s.DiscardPartial()

	assert.Equal(t, []backend.Message{user("hi")}, s.Messages())
	assert.Empty(t, s.Partial())
	assert.False(t, s.Tool().Active)
}

func TestStore_LoadHistoryReplacesEverything(t *testing.T) {
	s := NewStore(nil)
	s.AppendUser("old")
	s.AppendDelta("streaming")
	s.SetNotice("something broke")

	history := []backend.Message{user("q"), assistant("a")}
	s.LoadHistory(history)

	assert.Equal(t, history, s.Messages())
	assert.Empty(t, s.Partial())
	assert.Empty(t, s.Notice())

	// The store keeps its own copy
	history[0].Content = "mutated"
	assert.Equal(t, "q", s.Messages()[0].Content)
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(nil)
	s.AppendUser("hi")
	s.AppendDelta("x")
	s.SetNotice("n")

	s.Clear()

	assert.True(t, s.IsEmpty())
	assert.Empty(t, s.Notice())
}

func TestStore_BeginStreamClearsNotice(t *testing.T) {
	s := NewStore(nil)
	s.SetNotice("Connection error. Please try again.")
	assert.Equal(t, "Connection error. Please try again.", s.Notice())

	s.BeginStream()
	assert.Empty(t, s.Notice())
}

func TestStore_EmptyDeltaDoesNotNotify(t *testing.T) {
	s := NewStore(nil)
	calls := 0
	s.Subscribe(func(Snapshot) { calls++ })

	s.AppendDelta("")
	assert.Equal(t, 0, calls)
}

func TestStore_ObserversSeeEveryChangeInOrder(t *testing.T) {
	s := NewStore(nil)

	var partials []string
	var order []string
	s.Subscribe(func(snap Snapshot) {
		partials = append(partials, snap.Partial)
		order = append(order, "first")
	})
	s.Subscribe(func(Snapshot) {
		order = append(order, "second")
	})

	s.AppendDelta("a")
	s.AppendDelta("b")
	s.AppendDelta("c")

	assert.Equal(t, []string{"a", "ab", "abc"}, partials)
	assert.Equal(t, []string{"first", "second", "first", "second", "first", "second"}, order)
}

func TestStore_ObserverMayReadStore(t *testing.T) {
	s := NewStore(nil)

	var seen int
	s.Subscribe(func(Snapshot) {
		seen = len(s.Messages())
	})

	s.AppendUser("hi")
	assert.Equal(t, 1, seen)
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore(nil)
	calls := 0
	id := s.Subscribe(func(Snapshot) { calls++ })

	s.AppendUser("one")
	s.Unsubscribe(id)
	s.AppendUser("two")
	s.Unsubscribe("no-such-id")

	assert.Equal(t, 1, calls)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore(nil)
	s.AppendUser("hi")

	snap := s.Snapshot()
	snap.Messages[0].Content = "changed"

	assert.Equal(t, "hi", s.Messages()[0].Content)
}

func TestSnapshot_JSON(t *testing.T) {
	s := NewStore(nil)
	s.AppendUser("hi")
	s.AppendDelta("he")
	s.SetTool(ToolStatus{Active: true, Label: "Searching for web..."})

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s.Snapshot(), decoded)
}

func TestStore_ConcurrentReadsDuringWrites(t *testing.T) {
	s := NewStore(nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			s.AppendDelta("x")
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			_ = s.Snapshot()
			_ = s.IsEmpty()
		}
	}()
	wg.Wait()

	assert.Len(t, s.Partial(), 200)
}
