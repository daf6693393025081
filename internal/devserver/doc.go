// Package devserver is a development backend speaking the chat wire contract.
//
// It serves:
//
//	GET    /threads               {"threads":[{"id","title"}]}
//	GET    /thread/{id}/history   {"messages":[{"role","content"}]}
//	DELETE /thread/{id}           {"status":"success"}
//	POST   /chat/stream           newline-delimited "data: <json>" events
//	GET    /health                OK
//
// Replies come from a Responder. The default EchoResponder echoes the user
// and pretends to run a web search for messages starting with "search".
// Replies are streamed word by word with a configurable delay so clients can
// be exercised against realistic chunking.
//
// A thread is created on its first message and titled after it. Storage is
// any store.Store; when a token verifier is configured every route except
// /health requires a bearer JWT.
package devserver
