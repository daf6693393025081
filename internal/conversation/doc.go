// Package conversation holds the displayed history of the active thread.
//
// # Store
//
// The Store keeps three kinds of state:
//
//   - Messages: committed user and assistant messages, in order
//   - Partial: assistant text that is still streaming in
//   - Tool: whether the backend is running a tool, with a display label
//
// Only the session controller mutates the store. Views read it through
// Snapshot or register an Observer:
//
//	id := store.Subscribe(func(s conversation.Snapshot) { render(s) })
//	defer store.Unsubscribe(id)
//
// Observers are called synchronously after every mutation, in the order the
// mutations happened. An observer must not mutate the store.
//
// A partial becomes a message only through CommitPartial. DiscardPartial,
// LoadHistory and Clear drop it without a trace.
package conversation
