// ABOUTME: End-to-end tests for the chat App against the dev backend
// ABOUTME: Covers the session lifecycle, views, thread switching and deletion

package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/devserver"
	"github.com/2389/coven-chat/internal/session"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/thread"
)

func newApp(t *testing.T, serverOpts []devserver.Option, opts ...Option) *App {
	t.Helper()
	srv := httptest.NewServer(devserver.New(store.NewMemoryStore(), serverOpts...).Handler())
	t.Cleanup(srv.Close)

	app := New(backend.NewClient(srv.URL), opts...)
	t.Cleanup(func() { app.Close() })
	require.NoError(t, app.Start(t.Context()))
	return app
}

func send(t *testing.T, app *App, text string) {
	t.Helper()
	require.NoError(t, app.Submit(t.Context(), text))
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Wait(ctx))
}

func yes() thread.Confirmer {
	return thread.ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
}

type viewRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *viewRecorder) record(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) all() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views...)
}

func TestApp_EmptyViewOffersSuggestions(t *testing.T) {
	app := newApp(t, nil, WithSuggestions([]string{"Say hi", "Tell a joke"}))

	v := app.View()
	assert.True(t, v.Empty)
	assert.Equal(t, []string{"Say hi", "Tell a joke"}, v.Suggestions)
	assert.Equal(t, app.ThreadID(), v.ThreadID)
	assert.False(t, v.Streaming)
	assert.Empty(t, v.Threads)
	assert.NotNil(t, v.Messages)
}

func TestApp_SubmitCommitsReplyAndRefreshesThreads(t *testing.T) {
	app := newApp(t, nil, WithSuggestions([]string{"Say hi"}))

	send(t, app, "hello there")

	v := app.View()
	require.Len(t, v.Messages, 2)
	assert.Equal(t, backend.Message{Role: backend.RoleUser, Content: "hello there"}, v.Messages[0])
	assert.Equal(t, backend.RoleAssistant, v.Messages[1].Role)
	assert.Contains(t, v.Messages[1].Content, "You said: hello there")
	assert.Empty(t, v.Partial)
	assert.False(t, v.Streaming)
	assert.False(t, v.Empty)
	assert.Nil(t, v.Suggestions)

	// The completion hook picked up the new thread and its title
	assert.Equal(t, []backend.Thread{{ID: app.ThreadID(), Title: "hello there"}}, v.Threads)
}

func TestApp_ObserversSeeStreamingProgress(t *testing.T) {
	app := newApp(t, nil)
	rec := &viewRecorder{}
	id := app.Subscribe(rec.record)

	send(t, app, "stream please")

	views := rec.all()
	require.NotEmpty(t, views)

	sawPartial := false
	for _, v := range views {
		if v.Partial != "" {
			sawPartial = true
			assert.True(t, v.Streaming, "partial text only while streaming")
		}
	}
	assert.True(t, sawPartial)

	last := views[len(views)-1]
	assert.False(t, last.Streaming)
	assert.Empty(t, last.Partial)
	assert.Len(t, last.Messages, 2)

	app.Unsubscribe(id)
	send(t, app, "again")
	assert.Len(t, rec.all(), len(views))
}

func TestApp_ToolStatusDuringSearch(t *testing.T) {
	app := newApp(t, nil)
	rec := &viewRecorder{}
	app.Subscribe(rec.record)

	send(t, app, "search go releases")

	var labels []string
	for _, v := range rec.all() {
		if v.Tool.Active {
			labels = append(labels, v.Tool.Label)
		}
	}
	require.NotEmpty(t, labels)
	assert.Equal(t, session.ToolLabel(devserver.SearchTool), labels[0])
	assert.Equal(t, session.FinishedLabel(devserver.SearchTool), labels[len(labels)-1])
	assert.False(t, app.View().Tool.Active)
}

func TestApp_SwitchThreads(t *testing.T) {
	app := newApp(t, nil)

	send(t, app, "first thread")
	first := app.ThreadID()

	second := app.NewThread(t.Context())
	assert.NotEqual(t, first, second)
	assert.True(t, app.View().Empty)

	send(t, app, "second thread")

	threads := app.Threads("")
	require.Len(t, threads, 2)
	assert.Equal(t, second, threads[0].ID, "newest first")

	id, err := app.Resolve("2")
	require.NoError(t, err)
	assert.Equal(t, first, id)

	require.NoError(t, app.Open(t.Context(), id))
	v := app.View()
	assert.Equal(t, first, v.ThreadID)
	require.Len(t, v.Messages, 2)
	assert.Equal(t, "first thread", v.Messages[0].Content)

	assert.Len(t, app.Threads("SECOND"), 1)
}

func TestApp_Resolve(t *testing.T) {
	app := newApp(t, nil)
	send(t, app, "only one")

	id, err := app.Resolve(app.ThreadID())
	require.NoError(t, err)
	assert.Equal(t, app.ThreadID(), id)

	for _, ref := range []string{"0", "2", "1x", "nope"} {
		_, err := app.Resolve(ref)
		assert.ErrorIs(t, err, thread.ErrUnknownThread, "ref %q", ref)
	}
}

func TestApp_DeleteActiveThreadStartsFresh(t *testing.T) {
	app := newApp(t, nil, WithConfirmer(yes()))
	send(t, app, "doomed")
	doomed := app.ThreadID()

	deleted, err := app.Delete(t.Context(), doomed)
	require.NoError(t, err)
	assert.True(t, deleted)

	v := app.View()
	assert.NotEqual(t, doomed, v.ThreadID)
	assert.True(t, v.Empty)
	assert.Empty(t, v.Threads)
}

func TestApp_DeleteWithoutConfirmerIsDeclined(t *testing.T) {
	app := newApp(t, nil)
	send(t, app, "keep me")

	deleted, err := app.Delete(t.Context(), app.ThreadID())
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Len(t, app.View().Threads, 1)
}

func TestApp_StartFailureLeavesAppUsable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	app := New(backend.NewClient(srv.URL))
	defer app.Close()

	err := app.Start(t.Context())
	require.Error(t, err)
	assert.True(t, app.View().Empty)

	// Sending fails as a transport failure, never a stuck stream
	require.NoError(t, app.Submit(t.Context(), "anyone?"))
	require.NoError(t, app.Wait(t.Context()))
	v := app.View()
	assert.False(t, v.Streaming)
	assert.Equal(t, session.NoticeConnection, v.Notice)
	assert.Len(t, v.Messages, 1)
}

func TestApp_CloseAbortsStream(t *testing.T) {
	slow := devserver.ResponderFunc(func(context.Context, string, []*store.Message) (devserver.Reply, error) {
		return devserver.Reply{Text: strings.Repeat("slow ", 500)}, nil
	})
	app := newApp(t, []devserver.Option{
		devserver.WithResponder(slow),
		devserver.WithChunkDelay(10 * time.Millisecond),
	})

	require.NoError(t, app.Submit(t.Context(), "take your time"))
	assert.True(t, app.Streaming())

	require.NoError(t, app.Close())
	assert.False(t, app.Streaming())
	assert.Empty(t, app.View().Partial)

	err := app.Submit(t.Context(), "too late")
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestApp_AbortThenResubmit(t *testing.T) {
	slow := devserver.ResponderFunc(func(_ context.Context, msg string, _ []*store.Message) (devserver.Reply, error) {
		if msg == "quick" {
			return devserver.Reply{Text: "done"}, nil
		}
		return devserver.Reply{Text: strings.Repeat("slow ", 500)}, nil
	})
	app := newApp(t, []devserver.Option{
		devserver.WithResponder(slow),
		devserver.WithChunkDelay(10 * time.Millisecond),
	})

	require.NoError(t, app.Submit(t.Context(), "long one"))
	app.Abort()
	assert.False(t, app.Streaming())

	send(t, app, "quick")
	v := app.View()
	require.Len(t, v.Messages, 3)
	assert.Equal(t, "long one", v.Messages[0].Content)
	assert.Equal(t, "quick", v.Messages[1].Content)
	assert.Equal(t, backend.Message{Role: backend.RoleAssistant, Content: "done"}, v.Messages[2])
}
