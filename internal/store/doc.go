// Package store persists the development backend's threads and messages.
//
// # Implementations
//
//   - SQLiteStore: modernc.org/sqlite (pure Go), WAL mode, schema created on open
//   - MemoryStore: maps behind a mutex, for tests and database-less runs
//
// Both satisfy Store and behave identically: threads list in creation order,
// messages return in the order they were saved, and deleting a thread removes
// its messages.
//
// # Roles
//
// Messages carry a Role of "user", "assistant" or "tool". Tool messages record
// tool activity for the transcript; history endpoints usually hide them.
package store
