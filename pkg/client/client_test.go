package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func newFakeDaemon(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","engine":"running"}`))
	})
	mux.HandleFunc("/api/engine/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"running","pid":4242,"restart_attempts":0,"package_version":"0.9.4"}`))
	})
	mux.HandleFunc("/api/engine/start", func(w http.ResponseWriter, r *http.Request) {
		var req LaunchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Port == 9999 {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"engine runtime is not installed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"running","pid":4242}`))
	})
	mux.HandleFunc("/api/engine/stop", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/api/engine/logs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("n") == "2" {
			_, _ = w.Write([]byte(`{"lines":["line 249","line 250"]}`))
			return
		}
		_, _ = w.Write([]byte(`{"lines":[]}`))
	})
	mux.HandleFunc("/api/voices", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"voices":["af_heart"]}`))
	})
	mux.HandleFunc("/api/speak", func(w http.ResponseWriter, r *http.Request) {
		var req SpeakRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Input == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid JSON: missing input"}`))
			return
		}
		_, _ = w.Write([]byte("audio-bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, New(Config{BaseURL: srv.URL + "/api"})
}

func TestClientDefaults(t *testing.T) {
	c := New(Config{})
	if c.baseURL != "http://127.0.0.1:8900/api" {
		t.Fatalf("unexpected default base URL %q", c.baseURL)
	}
}

func TestIsReachable(t *testing.T) {
	_, c := newFakeDaemon(t)
	if !c.IsReachable(context.Background()) {
		t.Fatal("expected daemon to be reachable")
	}
	down := New(Config{BaseURL: "http://127.0.0.1:1/api"})
	if down.IsReachable(context.Background()) {
		t.Fatal("expected unreachable daemon")
	}
}

func TestStatus(t *testing.T) {
	_, c := newFakeDaemon(t)
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != "running" || st.PID != 4242 || st.PackageVersion != "0.9.4" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStartEngineErrorSurfacesDaemonMessage(t *testing.T) {
	_, c := newFakeDaemon(t)
	_, err := c.StartEngine(context.Background(), LaunchRequest{Port: 9999})
	if err == nil || !strings.Contains(err.Error(), "not installed") {
		t.Fatalf("expected daemon error message, got %v", err)
	}
	if !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}

func TestStartAndStopEngine(t *testing.T) {
	_, c := newFakeDaemon(t)
	st, err := c.StartEngine(context.Background(), LaunchRequest{Voice: "af_heart", AutoRestart: true})
	if err != nil {
		t.Fatalf("StartEngine: %v", err)
	}
	if st.Status != "running" {
		t.Fatalf("unexpected status %+v", st)
	}
	if err := c.StopEngine(context.Background()); err != nil {
		t.Fatalf("StopEngine: %v", err)
	}
}

func TestLogsPassesLimit(t *testing.T) {
	_, c := newFakeDaemon(t)
	lines, err := c.Logs(context.Background(), 2)
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if !reflect.DeepEqual(lines, []string{"line 249", "line 250"}) {
		t.Fatalf("unexpected lines %v", lines)
	}
}

func TestVoices(t *testing.T) {
	_, c := newFakeDaemon(t)
	voices, err := c.Voices(context.Background())
	if err != nil || !reflect.DeepEqual(voices, []string{"af_heart"}) {
		t.Fatalf("unexpected voices %v err=%v", voices, err)
	}
}

func TestSpeakStreams(t *testing.T) {
	_, c := newFakeDaemon(t)
	stream, err := c.Speak(context.Background(), SpeakRequest{Input: "hello"})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	defer func() { _ = stream.Close() }()
	audio, _ := io.ReadAll(stream)
	if string(audio) != "audio-bytes" {
		t.Fatalf("unexpected audio %q", audio)
	}
}

func TestSpeakErrorMapped(t *testing.T) {
	_, c := newFakeDaemon(t)
	_, err := c.Speak(context.Background(), SpeakRequest{})
	if err == nil || !strings.Contains(err.Error(), "missing input") {
		t.Fatalf("expected mapped error, got %v", err)
	}
}
