// ABOUTME: Wire types for the conversational backend HTTP contract
// ABOUTME: Threads, messages, and the chat stream request body

package backend

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Thread is a persisted conversation known to the backend.
type Thread struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Message is a single committed message in a thread's history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the JSON body sent to POST /chat/stream.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

// ThreadsResponse is the JSON response for GET /threads.
type ThreadsResponse struct {
	Threads []Thread `json:"threads"`
}

// HistoryResponse is the JSON response for GET /thread/{id}/history.
type HistoryResponse struct {
	Messages []Message `json:"messages"`
}
