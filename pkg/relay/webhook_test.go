package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type capturedRequest struct {
	token       string
	contentType string
	body        Message
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var msg Message
		_ = json.Unmarshal(data, &msg)
		reqs <- capturedRequest{
			token:       r.Header.Get(TokenHeader),
			contentType: r.Header.Get("Content-Type"),
			body:        msg,
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func TestPostSendsJSONWithToken(t *testing.T) {
	t.Parallel()

	srv, reqs := newCaptureServer(t, http.StatusOK)
	w := NewWebhook(Options{URL: srv.URL, Secret: "S1", Timeout: time.Second})

	msg := Message{Sender: "628111", Text: "hello", Timestamp: 1000}
	if err := w.Post(context.Background(), msg); err != nil {
		t.Fatalf("post: %v", err)
	}

	got := <-reqs
	if got.token != "S1" {
		t.Fatalf("expected token S1, got %q", got.token)
	}
	if !strings.HasPrefix(got.contentType, "application/json") {
		t.Fatalf("expected json content type, got %q", got.contentType)
	}
	if got.body != msg {
		t.Fatalf("unexpected body: %+v", got.body)
	}
}

func TestPostReportsNon2xx(t *testing.T) {
	t.Parallel()

	srv, _ := newCaptureServer(t, http.StatusBadGateway)
	w := NewWebhook(Options{URL: srv.URL, Secret: "S1", Timeout: time.Second})

	err := w.Post(context.Background(), Message{Sender: "1"})
	if err == nil {
		t.Fatalf("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestPostTimesOut(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	w := NewWebhook(Options{URL: srv.URL, Secret: "S1", Timeout: 50 * time.Millisecond})
	start := time.Now()
	if err := w.Post(context.Background(), Message{Sender: "1"}); err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not applied, took %v", elapsed)
	}
}

func TestDispatchSwallowsFailuresAndDoesNotRetry(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	w := NewWebhook(Options{URL: srv.URL, Secret: "S1", Timeout: time.Second})
	w.Dispatch(Message{Sender: "628111", Text: "x"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected exactly one attempt, got %d", got)
	}
}

func TestDispatchBoundsInFlightPosts(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	w := NewWebhook(Options{URL: srv.URL, Secret: "S1", Timeout: time.Second, MaxInFlight: 2})
	for i := 0; i < 8; i++ {
		w.Dispatch(Message{Sender: "1", Timestamp: int64(i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent posts, saw %d", peak)
	}
}
