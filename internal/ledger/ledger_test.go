package ledger_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/ledger"
	"caseline/internal/migrate"
	"caseline/internal/repo"
)

func newWriter(t *testing.T) (ledger.Writer, *sql.DB) {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatal(err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return ledger.Writer{DB: conn}, conn
}

func seedCase(t *testing.T, conn *sql.DB, id string) {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)
	r := repo.Repo{DB: conn}
	err = r.InsertCaseTx(ctx, tx, domain.Case{
		ID: id, State: domain.StateDraft, Classification: domain.ClassificationUnclassified,
		CreatedBy: "alice", CreatedAt: now, TransitionedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func appendRecord(t *testing.T, w ledger.Writer, conn *sql.DB, rec domain.TransitionRecord) int64 {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	seq, err := w.Append(ctx, tx, rec)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return seq
}

func TestAppendAssignsPerCaseSequences(t *testing.T) {
	w, conn := newWriter(t)
	seedCase(t, conn, "CASE-0001")
	seedCase(t, conn, "CASE-0002")

	ts := "2026-03-01T09:00:00Z"
	rec := domain.TransitionRecord{CaseID: "CASE-0001", ToState: domain.StateDraft, Transition: "register", ActorID: "alice", ActorRole: domain.RoleInitiator, TS: ts}
	if seq := appendRecord(t, w, conn, rec); seq != 1 {
		t.Fatalf("first seq = %d", seq)
	}
	rec.FromState = domain.StateDraft
	rec.ToState = domain.StateSubmitted
	rec.Transition = "submit"
	if seq := appendRecord(t, w, conn, rec); seq != 2 {
		t.Fatalf("second seq = %d", seq)
	}
	// sequences are per case, not global
	other := domain.TransitionRecord{CaseID: "CASE-0002", ToState: domain.StateDraft, Transition: "register", ActorID: "bob", ActorRole: domain.RoleInitiator, TS: ts}
	if seq := appendRecord(t, w, conn, other); seq != 1 {
		t.Fatalf("other case seq = %d", seq)
	}

	history, err := w.History(context.Background(), "CASE-0001")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Transition != "register" || history[1].Transition != "submit" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestRecordsAfterCursor(t *testing.T) {
	w, conn := newWriter(t)
	seedCase(t, conn, "CASE-0001")
	ts := "2026-03-01T09:00:00Z"
	for _, name := range []string{"register", "submit", "allocate"} {
		appendRecord(t, w, conn, domain.TransitionRecord{
			CaseID: "CASE-0001", ToState: domain.StateSubmitted, Transition: name,
			ActorID: "alice", ActorRole: domain.RoleInitiator, TS: ts,
		})
	}
	ctx := context.Background()
	batch, cursor, err := w.RecordsAfter(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 || batch[0].Transition != "register" {
		t.Fatalf("first batch: %+v", batch)
	}
	batch, cursor, err = w.RecordsAfter(ctx, 10, cursor)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].Transition != "allocate" {
		t.Fatalf("second batch: %+v", batch)
	}
	batch, _, err = w.RecordsAfter(ctx, 10, cursor)
	if err != nil || len(batch) != 0 {
		t.Fatalf("drained feed returned %+v %v", batch, err)
	}
}
