// Package backend is the HTTP client for the conversational backend.
//
// # Endpoints
//
//   - GET /threads: list of threads ({"threads": [...]})
//   - GET /thread/{id}/history: committed messages ({"messages": [...]})
//   - DELETE /thread/{id}: delete a thread, body ignored
//   - POST /chat/stream: {"message", "thread_id"} answered with a
//     newline-delimited `data: <json>` stream (see package stream)
//
// Registry calls honor WithRequestTimeout. The stream request never gets a
// client-side timeout; it stays open until the backend closes it or the
// caller cancels its context.
package backend
