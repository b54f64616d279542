package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/ledger"
	"caseline/internal/migrate"
	"caseline/internal/repo"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type feedSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *feedSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var e Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *feedSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func newFeedEnv(t *testing.T) (*sql.DB, ledger.Writer, *Dispatcher, *feedSink) {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	now := testNow.Format(time.RFC3339)
	err = (repo.Repo{DB: conn}).InsertCaseTx(ctx, tx, domain.Case{
		ID: "CASE-0001", State: domain.StateSubmitted,
		Classification: domain.ClassificationUnclassified,
		CreatedBy:      "alice", CreatedAt: now, TransitionedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	sink := &feedSink{}
	srv := httptest.NewServer(sink)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.Notifications.Webhooks = []config.WebhookConfig{{URL: srv.URL}}
	return conn, ledger.Writer{DB: conn}, NewDispatcher(cfg), sink
}

func appendRecord(t *testing.T, conn *sql.DB, w ledger.Writer, transition string) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	seq, err := w.Append(ctx, tx, domain.TransitionRecord{
		CaseID:     "CASE-0001",
		FromState:  domain.StateSubmitted,
		ToState:    domain.StateAllocated,
		Transition: transition,
		ActorID:    "bob",
		ActorRole:  domain.RoleReviewer,
		TS:         testNow.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return seq
}

func TestWatcherStartsAtLedgerHead(t *testing.T) {
	conn, writer, dispatcher, sink := newFeedEnv(t)
	ctx := context.Background()
	appendRecord(t, conn, writer, "allocate")
	appendRecord(t, conn, writer, "allocate")

	w := &Watcher{Ledger: writer, Dispatcher: dispatcher}
	w.sync(ctx)
	if got := sink.all(); len(got) != 0 {
		t.Fatalf("new feed replayed %d historical records", len(got))
	}

	seq := appendRecord(t, conn, writer, "beginInvestigation")
	w.sync(ctx)
	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("delivered %d events, want 1", len(got))
	}
	if got[0].Seq != seq || got[0].CaseID != "CASE-0001" || got[0].Transition != "beginInvestigation" {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestWatcherResumesFromPersistedCursor(t *testing.T) {
	conn, writer, dispatcher, sink := newFeedEnv(t)
	ctx := context.Background()

	w := &Watcher{Ledger: writer, Dispatcher: dispatcher}
	w.sync(ctx)
	appendRecord(t, conn, writer, "allocate")
	w.sync(ctx)
	if got := sink.all(); len(got) != 1 {
		t.Fatalf("delivered %d events before restart, want 1", len(got))
	}

	// A fresh watcher stands in for a process restart. It must pick up the
	// stored cursor, not re-deliver the record the first one already sent.
	restarted := &Watcher{Ledger: writer, Dispatcher: dispatcher}
	restarted.sync(ctx)
	if got := sink.all(); len(got) != 1 {
		t.Fatalf("restart re-delivered: %d events, want 1", len(got))
	}

	seq := appendRecord(t, conn, writer, "beginInvestigation")
	restarted.sync(ctx)
	got := sink.all()
	if len(got) != 2 {
		t.Fatalf("delivered %d events after restart, want 2", len(got))
	}
	if got[1].Seq != seq {
		t.Fatalf("event seq = %d, want %d", got[1].Seq, seq)
	}
}
