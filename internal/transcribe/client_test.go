package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type notifierMock struct {
	mu         sync.Mutex
	submitting []int
	retrying   [][2]int
	completed  []int
	failed     []int
}

func (n *notifierMock) ChunkSubmitting(seq int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitting = append(n.submitting, seq)
}

func (n *notifierMock) ChunkRetrying(seq, attempt int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.retrying = append(n.retrying, [2]int{seq, attempt})
}

func (n *notifierMock) ChunkCompleted(seq int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, seq)
}

func (n *notifierMock) ChunkFailed(seq int, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, seq)
}

func newTestClient(baseURL string, maxRetries int, notifier Notifier) *Client {
	c := NewClient(baseURL, ClientOptions{Token: "test-token", MaxRetries: maxRetries, Notifier: notifier})
	c.sleep = func(time.Duration) {}
	return c
}

func chunkRequest(seq int) SubmitRequest {
	return SubmitRequest{
		Payload:        []byte("RIFF fake audio"),
		Filename:       "chunk.wav",
		Language:       "en",
		Model:          "whisper-1",
		ChunkNumber:    &seq,
		ElementID:      "speaker-1",
		HasOverlap:     true,
		OverlapSeconds: 6.5,
	}
}

func TestClientSubmitCompleted(t *testing.T) {
	var gotAuth string
	var gotFields map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		_, _ = w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2, nil)
	outcome, err := client.Submit(context.Background(), chunkRequest(3))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Status != StatusCompleted || outcome.Text != "hello world" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	if gotAuth != "Bearer test-token" {
		t.Fatalf("expected bearer token header, got %q", gotAuth)
	}
	for field, want := range map[string]string{
		"language":        "en",
		"model":           "whisper-1",
		"chunk_number":    "3",
		"element_id":      "speaker-1",
		"has_overlap":     "true",
		"overlap_seconds": "6.50",
	} {
		if gotFields[field] != want {
			t.Errorf("field %s: expected %q, got %q", field, want, gotFields[field])
		}
	}
}

func TestClientSubmitDeferred(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"processing","job_id":"job-42"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2, nil)
	outcome, err := client.Submit(context.Background(), chunkRequest(0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Status != StatusDeferred || outcome.JobID != "job-42" {
		t.Fatalf("expected deferred outcome with job id, got %+v", outcome)
	}
	if outcome.Terminal() {
		t.Fatal("deferred outcomes are not terminal")
	}
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"text":"third time lucky"}`))
	}))
	defer srv.Close()

	notifier := &notifierMock{}
	client := newTestClient(srv.URL, 2, notifier)
	outcome, err := client.Submit(context.Background(), chunkRequest(7))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Text != "third time lucky" {
		t.Fatalf("unexpected text %q", outcome.Text)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(notifier.retrying) != 2 {
		t.Fatalf("expected 2 retry notifications, got %d", len(notifier.retrying))
	}
}

func TestClientRetryBudgetIsExact(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier := &notifierMock{}
	client := newTestClient(srv.URL, 2, notifier)
	outcome, err := client.Submit(context.Background(), chunkRequest(1))
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if outcome.Status != StatusFailed {
		t.Fatalf("expected failed outcome, got %+v", outcome)
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 1+2 attempts, got %d", attempts)
	}
	if len(notifier.failed) != 1 {
		t.Fatalf("expected one terminal failure notification, got %d", len(notifier.failed))
	}
}

func TestClientDoesNotRetryTerminalFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"client error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"audio too short"}`))
		}},
		{"service rejection", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"unsupported model"}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var attempts int
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts++
				tc.handler(w, r)
			}))
			defer srv.Close()

			client := newTestClient(srv.URL, 2, nil)
			outcome, err := client.Submit(context.Background(), chunkRequest(0))
			if err == nil {
				t.Fatal("expected terminal failure")
			}
			if outcome.Status != StatusFailed {
				t.Fatalf("expected failed outcome, got %+v", outcome)
			}
			if attempts != 1 {
				t.Fatalf("terminal failures must not be retried, got %d attempts", attempts)
			}
		})
	}
}

func TestClientNetworkFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // every request now fails to connect

	client := newTestClient(srv.URL, 1, nil)
	_, err := client.Submit(context.Background(), chunkRequest(0))
	if err == nil {
		t.Fatal("expected a connection error")
	}
	if !strings.Contains(err.Error(), "2 attempts exhausted") {
		t.Fatalf("expected the retry budget in the error, got %v", err)
	}
}
