// Package ledger is the append-only audit log of case transitions.
// Rows are never updated or deleted; ordering within a case is a
// monotonically increasing sequence number assigned at write time.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"caseline/internal/domain"
)

type Writer struct {
	DB *sql.DB
}

// Append writes one transition record inside the caller's transaction and
// returns the sequence number it was assigned. The (case_id, seq) primary key
// makes a replayed append conflict instead of duplicating history.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec domain.TransitionRecord) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0)+1 FROM transitions WHERE case_id=?`, rec.CaseID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", rec.CaseID, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO transitions(case_id,seq,from_state,to_state,transition,track,actor_id,actor_role,ts,payload_json)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.CaseID, seq, rec.FromState, rec.ToState, rec.Transition, nullable(rec.Track),
		rec.ActorID, rec.ActorRole, rec.TS, nullable(rec.PayloadJSON))
	if err != nil {
		return 0, fmt.Errorf("append transition record: %w", err)
	}
	return seq, nil
}

// History returns a case's transition records sorted by sequence ascending.
func (w Writer) History(ctx context.Context, caseID string) ([]domain.TransitionRecord, error) {
	rows, err := w.DB.QueryContext(ctx, `SELECT case_id,seq,from_state,to_state,transition,COALESCE(track,''),actor_id,actor_role,ts,COALESCE(payload_json,'')
FROM transitions WHERE case_id=? ORDER BY seq ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TransitionRecord
	for rows.Next() {
		var rec domain.TransitionRecord
		if err := rows.Scan(&rec.CaseID, &rec.Seq, &rec.FromState, &rec.ToState, &rec.Transition, &rec.Track,
			&rec.ActorID, &rec.ActorRole, &rec.TS, &rec.PayloadJSON); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// RecordsAfter returns up to limit records across all cases with a rowid
// greater than cursor, for the notification dispatcher.
func (w Writer) RecordsAfter(ctx context.Context, limit int, cursor int64) ([]domain.TransitionRecord, int64, error) {
	rows, err := w.DB.QueryContext(ctx, `SELECT rowid,case_id,seq,from_state,to_state,transition,COALESCE(track,''),actor_id,actor_role,ts,COALESCE(payload_json,'')
FROM transitions WHERE rowid > ? ORDER BY rowid ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, cursor, err
	}
	defer rows.Close()
	var res []domain.TransitionRecord
	last := cursor
	for rows.Next() {
		var rowid int64
		var rec domain.TransitionRecord
		if err := rows.Scan(&rowid, &rec.CaseID, &rec.Seq, &rec.FromState, &rec.ToState, &rec.Transition, &rec.Track,
			&rec.ActorID, &rec.ActorRole, &rec.TS, &rec.PayloadJSON); err != nil {
			return nil, cursor, err
		}
		res = append(res, rec)
		last = rowid
	}
	return res, last, rows.Err()
}

// OpenFeedCursor returns the persisted position of a named feed cursor.
// A cursor seen for the first time is created at the current ledger head,
// so a newly enabled feed starts with fresh records instead of replaying
// the whole history.
func (w Writer) OpenFeedCursor(ctx context.Context, name string) (int64, error) {
	var pos int64
	err := w.DB.QueryRowContext(ctx, `SELECT position FROM feed_cursors WHERE name=?`, name).Scan(&pos)
	if err == nil {
		return pos, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("load feed cursor %s: %w", name, err)
	}
	if err := w.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(rowid),0) FROM transitions`).Scan(&pos); err != nil {
		return 0, fmt.Errorf("ledger head: %w", err)
	}
	if err := w.StoreFeedCursor(ctx, name, pos); err != nil {
		return 0, err
	}
	return pos, nil
}

// StoreFeedCursor persists a feed cursor position so delivery resumes from
// it after a restart.
func (w Writer) StoreFeedCursor(ctx context.Context, name string, pos int64) error {
	_, err := w.DB.ExecContext(ctx, `INSERT INTO feed_cursors(name,position) VALUES (?,?)
ON CONFLICT(name) DO UPDATE SET position=excluded.position`, name, pos)
	if err != nil {
		return fmt.Errorf("store feed cursor %s: %w", name, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
