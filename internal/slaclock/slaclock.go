// Package slaclock computes and tracks regulatory due-date obligations
// triggered by specific transitions.
package slaclock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"caseline/internal/config"
	"caseline/internal/domain"
	"caseline/internal/repo"
)

// DuplicateObligationError signals an obligation already open for the case,
// e.g. an administrator replaying an SLA-bearing transition. Non-fatal: the
// engine logs and ignores it, leaving the existing entry untouched.
type DuplicateObligationError struct {
	CaseID     string
	Obligation string
}

func (e DuplicateObligationError) Error() string {
	return fmt.Sprintf("obligation %s already open for case %s", e.Obligation, e.CaseID)
}

type Clock struct {
	DB     *sql.DB
	Config *config.Config
}

// OnTransition creates the SLA entry an SLA-bearing transition demands.
// Transitions without an obligation mapping produce no entry and no error.
// Idempotent per (case, obligation): a second trigger fails with
// DuplicateObligationError instead of creating a duplicate.
func (c Clock) OnTransition(ctx context.Context, tx *sql.Tx, caseID, transitionName string, ts time.Time) (*domain.SLAEntry, error) {
	spec, ok := c.Config.FindTransition(transitionName)
	if !ok || spec.SLA == "" {
		return nil, nil
	}
	ob, ok := c.Config.SLA.Obligations[spec.SLA]
	if !ok {
		return nil, fmt.Errorf("obligation %s not configured", spec.SLA)
	}
	var n int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM sla_entries WHERE case_id=? AND obligation=? LIMIT 1`, caseID, spec.SLA).Scan(&n)
	if err == nil {
		return nil, DuplicateObligationError{CaseID: caseID, Obligation: spec.SLA}
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	entry := domain.SLAEntry{
		CaseID:     caseID,
		Obligation: spec.SLA,
		DueAt:      ts.Add(ob.Offset()).UTC().Format(time.RFC3339),
		CreatedAt:  ts.UTC().Format(time.RFC3339),
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO sla_entries(case_id,obligation,due_at,created_at) VALUES (?,?,?,?)`,
		entry.CaseID, entry.Obligation, entry.DueAt, entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkFulfilled records that an obligation was met. Raised by an external
// collaborator event, independent of case state.
func (c Clock) MarkFulfilled(ctx context.Context, caseID, obligation string, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339)
	res, err := c.DB.ExecContext(ctx, `UPDATE sla_entries SET fulfilled=1, fulfilled_at=? WHERE case_id=? AND obligation=? AND fulfilled=0`,
		ts, caseID, obligation)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (c Clock) ListForCase(ctx context.Context, caseID string) ([]domain.SLAEntry, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT case_id,obligation,due_at,created_at,fulfilled,fulfilled_at,overdue FROM sla_entries WHERE case_id=? ORDER BY due_at`, caseID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListOpen returns unfulfilled entries across all cases.
func (c Clock) ListOpen(ctx context.Context) ([]domain.SLAEntry, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT case_id,obligation,due_at,created_at,fulfilled,fulfilled_at,overdue FROM sla_entries WHERE fulfilled=0 ORDER BY due_at`)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// MarkOverdue flags open entries whose due date has passed and returns the
// ones newly flagged this pass.
func (c Clock) MarkOverdue(ctx context.Context, now time.Time) ([]domain.SLAEntry, error) {
	cutoff := now.UTC().Format(time.RFC3339)
	rows, err := c.DB.QueryContext(ctx, `SELECT case_id,obligation,due_at,created_at,fulfilled,fulfilled_at,overdue FROM sla_entries
WHERE fulfilled=0 AND overdue=0 AND due_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	newly, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(newly) == 0 {
		return nil, nil
	}
	_, err = c.DB.ExecContext(ctx, `UPDATE sla_entries SET overdue=1 WHERE fulfilled=0 AND overdue=0 AND due_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	for i := range newly {
		newly[i].Overdue = true
	}
	return newly, nil
}

func scanEntries(rows *sql.Rows) ([]domain.SLAEntry, error) {
	defer rows.Close()
	var res []domain.SLAEntry
	for rows.Next() {
		var e domain.SLAEntry
		var fulfilledAt sql.NullString
		if err := rows.Scan(&e.CaseID, &e.Obligation, &e.DueAt, &e.CreatedAt, &e.Fulfilled, &fulfilledAt, &e.Overdue); err != nil {
			return nil, err
		}
		if fulfilledAt.Valid {
			e.FulfilledAt = &fulfilledAt.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
