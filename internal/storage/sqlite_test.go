package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dictaflow/dictaflow/internal/transcript"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	startedAt := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)

	if err := store.CreateSession("20250714093000-s1", 1, "en", "whisper-1", startedAt); err != nil {
		t.Fatalf("create session: %v", err)
	}

	sess, err := store.GetSession("20250714093000-s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != "active" || sess.EndedAt != nil {
		t.Fatalf("expected active session, got %+v", sess)
	}
	if sess.SpeakerSlot != 1 || sess.Language != "en" || sess.Model != "whisper-1" {
		t.Fatalf("session fields lost: %+v", sess)
	}
	if !sess.StartedAt.Equal(startedAt) {
		t.Fatalf("expected started_at %v, got %v", startedAt, sess.StartedAt)
	}

	endedAt := startedAt.Add(10 * time.Minute)
	if err := store.EndSession("20250714093000-s1", endedAt); err != nil {
		t.Fatalf("end session: %v", err)
	}

	sess, err = store.GetSession("20250714093000-s1")
	if err != nil {
		t.Fatalf("get ended session: %v", err)
	}
	if sess.Status != "ended" || sess.EndedAt == nil || !sess.EndedAt.Equal(endedAt) {
		t.Fatalf("expected ended session, got %+v", sess)
	}
}

func TestCreateSessionRequiresID(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateSession("  ", 1, "en", "whisper-1", time.Now()); err == nil {
		t.Fatal("expected an error for a blank session id")
	}
}

func TestEndUnknownSession(t *testing.T) {
	store := newTestStore(t)
	if err := store.EndSession("nope", time.Now()); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestGetUnknownSession(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetSession("nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestEntriesOrderedBySequence(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateSession("sess-1", 1, "en", "whisper-1", time.Now().UTC()); err != nil {
		t.Fatalf("create session: %v", err)
	}

	for _, e := range []transcript.Entry{
		{Sequence: 2, Text: "third", Elapsed: "02:10"},
		{Sequence: 0, Text: "first", Elapsed: "00:00"},
		{Sequence: 1, Text: "second", Elapsed: "01:05"},
	} {
		if err := store.AppendEntry("sess-1", e); err != nil {
			t.Fatalf("append entry: %v", err)
		}
	}

	entries, err := store.GetEntries("sess-1")
	if err != nil {
		t.Fatalf("get entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Sequence != i {
			t.Fatalf("entries out of order: %+v", entries)
		}
	}
	if entries[0].Text != "first" || entries[0].Elapsed != "00:00" {
		t.Fatalf("entry fields lost: %+v", entries[0])
	}
}

func TestSessionsByDateAndDates(t *testing.T) {
	store := newTestStore(t)

	day1 := time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)
	for id, at := range map[string]time.Time{
		"a": day1,
		"b": day1.Add(time.Hour),
		"c": day2,
	} {
		if err := store.CreateSession(id, 1, "en", "whisper-1", at); err != nil {
			t.Fatalf("create session %s: %v", id, err)
		}
	}

	sessions, err := store.GetSessionsByDate("2025-07-14")
	if err != nil {
		t.Fatalf("sessions by date: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions on day one, got %d", len(sessions))
	}
	// Most recent first.
	if sessions[0].ID != "b" || sessions[1].ID != "a" {
		t.Fatalf("unexpected order: %s, %s", sessions[0].ID, sessions[1].ID)
	}

	dates, err := store.GetDates()
	if err != nil {
		t.Fatalf("get dates: %v", err)
	}
	if len(dates) != 2 || dates[0] != "2025-07-15" || dates[1] != "2025-07-14" {
		t.Fatalf("unexpected dates %v", dates)
	}
}

func TestTranscriptText(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateSession("sess-t", 2, "de", "whisper-1", time.Now().UTC()); err != nil {
		t.Fatalf("create session: %v", err)
	}
	_ = store.AppendEntry("sess-t", transcript.Entry{Sequence: 0, Text: "guten morgen", Elapsed: "00:00"})
	_ = store.AppendEntry("sess-t", transcript.Entry{Sequence: 1, Text: "wie geht's", Elapsed: "01:05"})

	text, err := store.TranscriptText("sess-t")
	if err != nil {
		t.Fatalf("transcript text: %v", err)
	}
	want := "[00:00] guten morgen\n[01:05] wie geht's\n"
	if text != want {
		t.Fatalf("unexpected transcript %q", text)
	}
}
