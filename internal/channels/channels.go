// Package channels tracks interaction requests: request-for-information
// threads attached to a case that block forward progression of the stage
// they were raised against until answered.
package channels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"caseline/internal/domain"
	"caseline/internal/repo"
)

type Tracker struct {
	DB  *sql.DB
	Now func() time.Time
}

func (t Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Open creates a new channel in status open and returns its id.
func (t Tracker) Open(ctx context.Context, tx *sql.Tx, caseID, stage, targetRole, text, actorID string) (string, error) {
	if text == "" {
		return "", errors.New("request text required")
	}
	id := uuid.New().String()
	now := t.now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO interaction_channels(id,case_id,stage,target_role,request_text,status,raised_by,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		id, caseID, stage, targetRole, text, domain.ChannelOpen, actorID, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Resolve marks an open channel responded. A closed channel stays closed; a
// fresh request needs a new channel.
func (t Tracker) Resolve(ctx context.Context, tx *sql.Tx, channelID, response, actorID string) (domain.InteractionChannel, error) {
	ch, err := t.getTx(ctx, tx, channelID)
	if err != nil {
		return ch, err
	}
	if ch.Status != domain.ChannelOpen {
		return ch, fmt.Errorf("channel %s is %s, not open", channelID, ch.Status)
	}
	now := t.now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `UPDATE interaction_channels SET status=?, response=?, responded_by=?, responded_at=? WHERE id=?`,
		domain.ChannelResponded, response, actorID, now, channelID)
	if err != nil {
		return ch, err
	}
	ch.Status = domain.ChannelResponded
	ch.Response = &response
	ch.RespondedBy = &actorID
	ch.RespondedAt = &now
	return ch, nil
}

// Close retires a channel for good. Closed channels cannot be reopened.
func (t Tracker) Close(ctx context.Context, tx *sql.Tx, channelID string) (domain.InteractionChannel, error) {
	ch, err := t.getTx(ctx, tx, channelID)
	if err != nil {
		return ch, err
	}
	if ch.Status == domain.ChannelClosed {
		return ch, fmt.Errorf("channel %s already closed", channelID)
	}
	_, err = tx.ExecContext(ctx, `UPDATE interaction_channels SET status=? WHERE id=?`, domain.ChannelClosed, channelID)
	if err != nil {
		return ch, err
	}
	ch.Status = domain.ChannelClosed
	return ch, nil
}

// HasBlockingOpenChannel reports whether an open channel exists against the
// given stage. Only the stage the case currently sits in blocks its forward
// transition; channels against other stages do not.
func (t Tracker) HasBlockingOpenChannel(ctx context.Context, tx *sql.Tx, caseID, stage string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM interaction_channels WHERE case_id=? AND stage=? AND status=? LIMIT 1`,
		caseID, stage, domain.ChannelOpen)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (t Tracker) Get(ctx context.Context, channelID string) (domain.InteractionChannel, error) {
	return scanChannel(t.DB.QueryRowContext(ctx, selectChannel+` WHERE id=?`, channelID))
}

func (t Tracker) getTx(ctx context.Context, tx *sql.Tx, channelID string) (domain.InteractionChannel, error) {
	return scanChannel(tx.QueryRowContext(ctx, selectChannel+` WHERE id=?`, channelID))
}

// ListForCase returns all channels for a case, newest first.
func (t Tracker) ListForCase(ctx context.Context, caseID string) ([]domain.InteractionChannel, error) {
	rows, err := t.DB.QueryContext(ctx, selectChannel+` WHERE case_id=? ORDER BY created_at DESC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InteractionChannel
	for rows.Next() {
		ch, err := scanChannelRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ch)
	}
	return res, rows.Err()
}

// OpenChannelIDs returns the ids of a case's currently open channels.
func (t Tracker) OpenChannelIDs(ctx context.Context, caseID string) ([]string, error) {
	rows, err := t.DB.QueryContext(ctx, `SELECT id FROM interaction_channels WHERE case_id=? AND status=? ORDER BY created_at`, caseID, domain.ChannelOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const selectChannel = `SELECT id,case_id,stage,target_role,request_text,status,raised_by,response,responded_by,created_at,responded_at FROM interaction_channels`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFields(s rowScanner) (domain.InteractionChannel, error) {
	var ch domain.InteractionChannel
	var response, respondedBy, respondedAt sql.NullString
	err := s.Scan(&ch.ID, &ch.CaseID, &ch.Stage, &ch.TargetRole, &ch.RequestText, &ch.Status, &ch.RaisedBy,
		&response, &respondedBy, &ch.CreatedAt, &respondedAt)
	if err != nil {
		return ch, err
	}
	if response.Valid {
		ch.Response = &response.String
	}
	if respondedBy.Valid {
		ch.RespondedBy = &respondedBy.String
	}
	if respondedAt.Valid {
		ch.RespondedAt = &respondedAt.String
	}
	return ch, nil
}

func scanChannel(row *sql.Row) (domain.InteractionChannel, error) {
	ch, err := scanFields(row)
	if err == sql.ErrNoRows {
		return ch, repo.ErrNotFound
	}
	return ch, err
}

func scanChannelRows(rows *sql.Rows) (domain.InteractionChannel, error) {
	return scanFields(rows)
}
