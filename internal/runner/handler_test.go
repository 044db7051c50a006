package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shaiso/distcompute/internal/telemetry"
	"github.com/shaiso/distcompute/internal/tracker"
)

// --- Registry Tests ---

func TestNewRegistry_DefaultHandlers(t *testing.T) {
	r := NewRegistry()

	handler, err := r.Get("echo")
	if err != nil {
		t.Fatalf("expected echo handler, got error: %v", err)
	}
	if handler == nil {
		t.Fatal("echo handler should not be nil")
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"echo"}) {
		t.Errorf("unexpected names: %v", got)
	}
}

func TestRegistry_UnknownHandler(t *testing.T) {
	_, err := NewRegistry().Get("unknown")
	if !errors.Is(err, ErrUnknownHandler) {
		t.Errorf("expected ErrUnknownHandler, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "available: echo") {
		t.Errorf("expected registered handler names in error, got %q", err)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("http", NewHTTPHandler("http://localhost", 0))

	if _, err := r.Get("http"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"echo", "http"}) {
		t.Errorf("unexpected names: %v", got)
	}
}

func TestEchoHandler(t *testing.T) {
	job := &tracker.Job{ID: 1, Data: []any{"a", 1.0}}

	got, err := EchoHandler{}.Handle(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, job.Data) {
		t.Errorf("expected data unchanged, got %v", got)
	}
}

// --- HTTPHandler Tests ---

func TestHTTPHandler_ForwardsJob(t *testing.T) {
	var received map[string]any
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]any{"pages": 3})
	}))
	defer server.Close()

	h := NewHTTPHandler(server.URL, time.Second)
	job := &tracker.Job{ID: 12, Data: map[string]any{"url": "https://example.com"}}

	result, err := h.Handle(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if received["job_id"] != 12.0 {
		t.Errorf("expected job_id=12, got %v", received["job_id"])
	}
	data, ok := received["data"].(map[string]any)
	if !ok || data["url"] != "https://example.com" {
		t.Errorf("unexpected forwarded data: %v", received["data"])
	}
	if contentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", contentType)
	}

	m, ok := result.(map[string]any)
	if !ok || m["pages"] != 3.0 {
		t.Errorf("expected decoded JSON result, got %#v", result)
	}
}

func TestHTTPHandler_InvalidInput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("cannot parse previous stage output"))
	}))
	defer server.Close()

	_, err := NewHTTPHandler(server.URL, time.Second).Handle(context.Background(), &tracker.Job{ID: 1, Data: "x"}, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestHTTPHandler_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal"}`))
	}))
	defer server.Close()

	_, err := NewHTTPHandler(server.URL, time.Second).Handle(context.Background(), &tracker.Job{ID: 1, Data: "x"}, nil)
	if !errors.Is(err, ErrHTTPRequest) {
		t.Errorf("expected ErrHTTPRequest, got %v", err)
	}
}

func TestHTTPHandler_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	_, err := NewHTTPHandler(server.URL, 100*time.Millisecond).Handle(context.Background(), &tracker.Job{ID: 1, Data: "x"}, nil)
	if !errors.Is(err, ErrHTTPRequest) {
		t.Errorf("expected ErrHTTPRequest on timeout, got %v", err)
	}
}

func TestHTTPHandler_LogsThroughContextLogger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := telemetry.WithLogger(context.Background(), telemetry.WithJobID(logger, 5))

	if _, err := NewHTTPHandler(server.URL, time.Second).Handle(ctx, &tracker.Job{ID: 5, Data: "x"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"forwarding job", "forward response received", "status=200", "job_id=5"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"short", "abc", 5, "abc"},
		{"ascii", "abcdef", 3, "abc..."},
		{"cut inside rune", "abécd", 3, "ab..."},
		{"cut after rune", "abécd", 4, "abé..."},
		{"cyrillic", "привет", 5, "пр..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestHTTPHandler_MissingURL(t *testing.T) {
	_, err := NewHTTPHandler("", 0).Handle(context.Background(), &tracker.Job{ID: 1, Data: "x"}, nil)
	if !errors.Is(err, ErrHTTPRequest) {
		t.Errorf("expected ErrHTTPRequest, got %v", err)
	}
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{"object", `{"a": 1}`, map[string]any{"a": 1.0}},
		{"array", `[1, "x"]`, []any{1.0, "x"}},
		{"json string", `"done"`, "done"},
		{"number", "42\n", "42"},
		{"plain text", "all good", "all good"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseResult([]byte(tt.body)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}
