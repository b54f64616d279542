package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"caseline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// NextCaseID reserves the next human-readable case identifier, e.g. CASE-0001.
// Identifiers are never reused; the counter only moves forward.
func (r Repo) NextCaseID(ctx context.Context, tx *sql.Tx) (string, error) {
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO case_counters(name, value) VALUES ('case', 0)`); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE case_counters SET value = value + 1 WHERE name='case'`); err != nil {
		return "", err
	}
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM case_counters WHERE name='case'`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("CASE-%04d", n), nil
}

func (r Repo) InsertCaseTx(ctx context.Context, tx *sql.Tx, c domain.Case) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cases(id,state,classification,created_by,created_at,transitioned_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.State, c.Classification, c.CreatedBy, c.CreatedAt, c.TransitionedAt)
	return err
}

func scanCase(row *sql.Row) (domain.Case, error) {
	var c domain.Case
	err := row.Scan(&c.ID, &c.State, &c.Classification, &c.CreatedBy, &c.CreatedAt, &c.TransitionedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

const caseColumns = `id,state,classification,created_by,created_at,transitioned_at`

func (r Repo) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return scanCase(r.DB.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id=?`, id))
}

func (r Repo) GetCaseTx(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	return scanCase(tx.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id=?`, id))
}

func (r Repo) ListCases(ctx context.Context) ([]domain.Case, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+caseColumns+` FROM cases ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		var c domain.Case
		if err := rows.Scan(&c.ID, &c.State, &c.Classification, &c.CreatedBy, &c.CreatedAt, &c.TransitionedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateCaseStateTx moves the case pointer; the audit ledger carries the history.
func (r Repo) UpdateCaseStateTx(ctx context.Context, tx *sql.Tx, id, state, classification, transitionedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE cases SET state=?, classification=?, transitioned_at=? WHERE id=?`,
		state, classification, transitionedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertStageTx stores the submitted payload for a stage. Stages are additive:
// a later stage never touches an earlier stage's row.
func (r Repo) UpsertStageTx(ctx context.Context, tx *sql.Tx, caseID, stage, payloadJSON, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO case_stages(case_id,stage,payload_json,updated_at) VALUES (?,?,?,?)
ON CONFLICT(case_id,stage) DO UPDATE SET payload_json=excluded.payload_json, updated_at=excluded.updated_at`,
		caseID, stage, payloadJSON, now)
	return err
}

func (r Repo) ListStages(ctx context.Context, caseID string) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT stage, payload_json FROM case_stages WHERE case_id=?`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stages := map[string]string{}
	for rows.Next() {
		var stage, payload string
		if err := rows.Scan(&stage, &payload); err != nil {
			return nil, err
		}
		stages[stage] = payload
	}
	return stages, rows.Err()
}

func (r Repo) InsertSubTrackTx(ctx context.Context, tx *sql.Tx, st domain.SubTrack) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sub_tracks(case_id,track,state,created_at,updated_at) VALUES (?,?,?,?,?)`,
		st.CaseID, st.Track, st.State, st.CreatedAt, st.UpdatedAt)
	return err
}

func (r Repo) UpdateSubTrackStateTx(ctx context.Context, tx *sql.Tx, caseID, track, state, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE sub_tracks SET state=?, updated_at=? WHERE case_id=? AND track=?`,
		state, now, caseID, track)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSubTracks(rows *sql.Rows) ([]domain.SubTrack, error) {
	defer rows.Close()
	var res []domain.SubTrack
	for rows.Next() {
		var st domain.SubTrack
		if err := rows.Scan(&st.CaseID, &st.Track, &st.State, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func (r Repo) ListSubTracks(ctx context.Context, caseID string) ([]domain.SubTrack, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT case_id,track,state,created_at,updated_at FROM sub_tracks WHERE case_id=? ORDER BY track`, caseID)
	if err != nil {
		return nil, err
	}
	return scanSubTracks(rows)
}

// ListSubTracksTx re-reads the sibling set inside the transition transaction.
// Fan-out join decisions must use this, never a stale pre-transaction read.
func (r Repo) ListSubTracksTx(ctx context.Context, tx *sql.Tx, caseID string) ([]domain.SubTrack, error) {
	rows, err := tx.QueryContext(ctx, `SELECT case_id,track,state,created_at,updated_at FROM sub_tracks WHERE case_id=? ORDER BY track`, caseID)
	if err != nil {
		return nil, err
	}
	return scanSubTracks(rows)
}

func (r Repo) EnsureActorTx(ctx context.Context, tx *sql.Tx, actorID, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}
