// ABOUTME: HTTP handlers for threads, history, delete and the chat event stream
// ABOUTME: Streams replies as "data: <json>" lines, persisting only completed replies

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/store"
)

// maxRequestBody caps the chat request size.
const maxRequestBody = 1 << 20

type contentEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type toolEvent struct {
	Type string `json:"type"`
	Tool string `json:"tool"`
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.store.ListThreads(r.Context())
	if err != nil {
		s.logger.Error("failed to list threads", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := backend.ThreadsResponse{Threads: make([]backend.Thread, 0, len(threads))}
	for _, t := range threads {
		resp.Threads = append(resp.Threads, backend.Thread{ID: t.ID, Title: t.Title})
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleHistory returns the user/assistant transcript. Tool records are hidden
// and unknown threads yield an empty history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	msgs, err := s.store.GetThreadMessages(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load history", "thread_id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := backend.HistoryResponse{Messages: make([]backend.Message, 0, len(msgs))}
	for _, m := range msgs {
		if m.Role == store.RoleTool {
			continue
		}
		resp.Messages = append(resp.Messages, backend.Message{Role: backend.Role(m.Role), Content: m.Content})
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleDeleteThread is idempotent: deleting an unknown thread succeeds.
func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.store.DeleteThread(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Debug("delete of unknown thread", "thread_id", id)
	case err != nil:
		s.logger.Error("failed to delete thread", "thread_id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	default:
		s.logger.Info("deleted thread", "thread_id", id)
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleChatStream stores the user's message, then streams the reply.
//
// Responsibilities:
//  1. Parse and validate the request body
//  2. Create the thread on first use, titled after the message
//  3. Persist the user message and ask the Responder for a reply
//  4. Stream tool activity and word-sized content deltas, flushing each
//  5. Persist the reply only if the client stayed until the end
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	now := s.now()

	created, err := s.store.CreateThread(ctx, &store.Thread{
		ID:        req.ThreadID,
		Title:     Title(req.Message),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.logger.Error("failed to create thread", "thread_id", req.ThreadID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if created {
		s.logger.Info("created thread", "thread_id", req.ThreadID)
	}
	principal, _ := auth.PrincipalFrom(ctx)
	s.logger.Debug("chat message received", "thread_id", req.ThreadID, "principal", principal)

	history, err := s.store.GetThreadMessages(ctx, req.ThreadID)
	if err != nil {
		s.logger.Error("failed to load history", "thread_id", req.ThreadID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := s.saveMessage(ctx, req.ThreadID, store.RoleUser, req.Message); err != nil {
		s.logger.Error("failed to save user message", "thread_id", req.ThreadID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	reply, err := s.responder.Respond(ctx, req.Message, history)
	if err != nil {
		// Reported in-band like any other backend failure; the stream just ends
		s.logger.Warn("responder failed", "thread_id", req.ThreadID, "error", err)
		s.writeEvent(w, contentEvent{Type: "error", Content: err.Error()})
		flusher.Flush()
		return
	}

	if reply.Tool != "" {
		s.writeEvent(w, toolEvent{Type: "tool_start", Tool: reply.Tool})
		flusher.Flush()
		if err := s.saveMessage(ctx, req.ThreadID, store.RoleTool, reply.Tool); err != nil {
			s.logger.Warn("failed to record tool call", "thread_id", req.ThreadID, "error", err)
		}
		if !s.pause(ctx) {
			s.logger.Info("client went away during tool call", "thread_id", req.ThreadID)
			return
		}
		s.writeEvent(w, toolEvent{Type: "tool_end", Tool: reply.Tool})
		flusher.Flush()
	}

	for _, chunk := range Chunks(reply.Text) {
		if ctx.Err() != nil {
			s.logger.Info("client went away, reply not stored", "thread_id", req.ThreadID)
			return
		}
		s.writeEvent(w, contentEvent{Type: "content", Content: chunk})
		flusher.Flush()
		if !s.pause(ctx) {
			s.logger.Info("client went away, reply not stored", "thread_id", req.ThreadID)
			return
		}
	}

	if reply.Text == "" {
		return
	}
	if err := s.saveMessage(ctx, req.ThreadID, store.RoleAssistant, reply.Text); err != nil {
		s.logger.Error("failed to save reply", "thread_id", req.ThreadID, "error", err)
	}
}

// pause waits chunkDelay and reports false if ctx ended first.
func (s *Server) pause(ctx context.Context) bool {
	if s.chunkDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.chunkDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) saveMessage(ctx context.Context, threadID, role, content string) error {
	return s.store.SaveMessage(ctx, &store.Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	})
}

// writeEvent writes one "data: <json>" event followed by a blank line.
func (s *Server) writeEvent(w io.Writer, ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to marshal event", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

// parseChatRequest decodes and validates the chat request body.
func parseChatRequest(r io.Reader) (*backend.ChatRequest, error) {
	var req backend.ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}
	if strings.TrimSpace(req.ThreadID) == "" {
		return nil, errors.New("thread_id is required")
	}
	return &req, nil
}
