package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestSendPostsPayload(t *testing.T) {
	var (
		mu  sync.Mutex
		got payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := New(srv.URL, nil)
	w.Send(context.Background(), "target down: web", "web", "agent-1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		msg := got.Message
		mu.Unlock()
		if msg != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Message != "target down: web" {
		t.Errorf("Message = %q, want %q", got.Message, "target down: web")
	}
	if got.Target != "web" {
		t.Errorf("Target = %q, want %q", got.Target, "web")
	}
	if got.AgentID != "agent-1" {
		t.Errorf("AgentID = %q, want %q", got.AgentID, "agent-1")
	}
}

func TestSendWithEmptyURLIsNoop(t *testing.T) {
	w := New("", nil)
	// Must not panic and must not attempt any network call.
	w.Send(context.Background(), "message", "target", "agent")
}

func TestNilWebhookSendIsSafe(t *testing.T) {
	var w *Webhook
	w.Send(context.Background(), "message", "target", "agent")
}
