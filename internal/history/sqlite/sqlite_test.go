package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxhub/voxd/internal/history"
)

func TestSQLiteSinkSendAndQuery(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create SQLite sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.Event{
		{
			Type:       history.EventStart,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Engine: "kokoro-serve", PID: 4242, Status: "running"},
		},
		{
			Type:       history.EventCrash,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Engine: "kokoro-serve", PID: 4242, Status: "crashed", Error: "exit status 3"},
		},
		{
			Type:       history.EventSpeak,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Engine: "kokoro-serve", Status: "spoken", Voice: "af_heart", Characters: 42, DurationMS: 180},
		},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Send(%s): %v", e.Type, err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM engine_history").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != len(events) {
		t.Fatalf("expected %d rows, got %d", len(events), count)
	}

	// Empty error strings are stored as NULL.
	var nullErrors int
	if err := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM engine_history WHERE error IS NULL").Scan(&nullErrors); err != nil {
		t.Fatalf("null query: %v", err)
	}
	if nullErrors != 2 {
		t.Fatalf("expected 2 rows with NULL error, got %d", nullErrors)
	}

	var voice string
	err = sink.db.QueryRowContext(ctx, "SELECT voice FROM engine_history WHERE type = 'speak'").Scan(&voice)
	if err != nil || voice != "af_heart" {
		t.Fatalf("expected speak row with voice, got %q err=%v", voice, err)
	}
}

func TestSQLiteSinkDSNPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + path)
	if err != nil {
		t.Fatalf("Failed to create sink with sqlite:// prefix: %v", err)
	}
	defer func() { _ = sink.Close() }()

	e := history.Event{
		Type:       history.EventStop,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Engine: "kokoro-serve", PID: 1, Status: "stopped"},
	}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSQLiteSinkEmptyDSN(t *testing.T) {
	if _, err := New("   "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
