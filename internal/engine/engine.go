package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"caseline/internal/channels"
	"caseline/internal/config"
	"caseline/internal/domain"
	"caseline/internal/engine/rolegate"
	"caseline/internal/ledger"
	"caseline/internal/repo"
	"caseline/internal/slaclock"
)

// Notification describes a successful notification-bearing transition. The
// hook is fire-and-forget: it runs on its own goroutine after commit and its
// outcome never affects the transition.
type Notification struct {
	CaseID     string
	Seq        int64
	Transition string
	FromState  string
	ToState    string
	ActorID    string
	TS         string
}

// Engine owns case state. It is the only writer of transition records and the
// only component that moves Case.State.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Ledger   ledger.Writer
	Channels channels.Tracker
	Clock    slaclock.Clock
	Gate     rolegate.Gate
	Config   *config.Config
	Now      func() time.Time
	Notify   func(Notification)

	locks *caseLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Ledger:   ledger.Writer{DB: db},
		Channels: channels.Tracker{DB: db},
		Clock:    slaclock.Clock{DB: db, Config: cfg},
		Gate:     rolegate.New(cfg),
		Config:   cfg,
		Now:      time.Now,
		locks:    newCaseLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// lockCase serializes all operations for one case id.
func (e Engine) lockCase(caseID string) func() {
	return e.locks.acquire(caseID)
}

// persistCtx applies the configured persistence deadline, if any.
func (e Engine) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := e.Config.PersistTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}

// CreateCaseOptions carries the registration form of a new case.
type CreateCaseOptions struct {
	ActorID string
	Payload map[string]any
}

// CreateCase registers a case in the initial state with a generated,
// never-reused identifier.
func (e Engine) CreateCase(ctx context.Context, opts CreateCaseOptions) (domain.Case, error) {
	if opts.ActorID == "" {
		return domain.Case{}, errors.New("actor required")
	}
	ctx, cancel := e.persistCtx(ctx)
	defer cancel()

	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, PersistenceError{Err: err}
	}
	defer tx.Rollback()

	id, err := e.Repo.NextCaseID(ctx, tx)
	if err != nil {
		return domain.Case{}, PersistenceError{Err: err}
	}
	c := domain.Case{
		ID:             id,
		State:          e.Config.Workflow.InitialState,
		Classification: domain.ClassificationUnclassified,
		CreatedBy:      opts.ActorID,
		CreatedAt:      now,
		TransitionedAt: now,
	}
	if err := e.Repo.InsertCaseTx(ctx, tx, c); err != nil {
		return domain.Case{}, PersistenceError{Err: err}
	}
	if err := e.Repo.EnsureActorTx(ctx, tx, opts.ActorID, now); err != nil {
		return domain.Case{}, PersistenceError{Err: err}
	}
	if len(opts.Payload) > 0 {
		payloadJSON, err := marshalPayload(opts.Payload)
		if err != nil {
			return domain.Case{}, err
		}
		if err := e.Repo.UpsertStageTx(ctx, tx, id, c.State, payloadJSON, now); err != nil {
			return domain.Case{}, PersistenceError{Err: err}
		}
	}
	if _, err := e.Ledger.Append(ctx, tx, domain.TransitionRecord{
		CaseID:     id,
		ToState:    c.State,
		Transition: "register",
		ActorID:    opts.ActorID,
		ActorRole:  domain.RoleInitiator,
		TS:         now,
	}); err != nil {
		return domain.Case{}, PersistenceError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, PersistenceError{Err: err}
	}
	return c, nil
}

// TransitionRequest names the edge to apply. Ambiguity is never auto-resolved:
// the caller always names the transition, and the Track hint picks a sub-track
// when two open sub-tracks sit in the same state.
type TransitionRequest struct {
	CaseID     string
	Transition string
	ActorID    string
	ActorRole  string
	Track      string
	Payload    map[string]any
}

type TransitionResult struct {
	CaseID       string `json:"case_id"`
	NewState     string `json:"new_state"`
	OverallState string `json:"overall_state"`
	Track        string `json:"track,omitempty"`
	Sequence     int64  `json:"sequence"`
}

// RequestTransition validates and applies one transition under the case lock.
// Validation order: legal edge, role gate, channel hold, payload contract.
// All checks run before any mutation; failures leave the case untouched.
func (e Engine) RequestTransition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	if req.CaseID == "" || req.ActorID == "" {
		return TransitionResult{}, errors.New("case and actor required")
	}
	unlock := e.lockCase(req.CaseID)
	defer unlock()
	ctx, cancel := e.persistCtx(ctx)
	defer cancel()

	c, err := e.Repo.GetCase(ctx, req.CaseID)
	if err != nil {
		return TransitionResult{}, err
	}
	spec, ok := e.Config.FindTransition(req.Transition)
	if !ok {
		return TransitionResult{}, InvalidTransitionError{CaseID: c.ID, State: c.State, Transition: req.Transition, Reason: "no such transition"}
	}

	tracks, err := e.Repo.ListSubTracks(ctx, c.ID)
	if err != nil {
		return TransitionResult{}, PersistenceError{Err: err}
	}
	track, err := e.resolveTarget(c, tracks, spec, req.Track)
	if err != nil {
		return TransitionResult{}, err
	}

	if !e.Gate.IsAuthorized(req.ActorRole, spec.From, spec.Name) {
		return TransitionResult{}, UnauthorizedError{Role: req.ActorRole, State: spec.From, Transition: spec.Name}
	}

	classification, err := e.resolveClassification(c, spec, req.Payload)
	if err != nil {
		return TransitionResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TransitionResult{}, PersistenceError{Err: err}
	}
	defer tx.Rollback()

	// Open channels hold only the forward exit from the stage they target.
	if !spec.Backward {
		blocked, err := e.Channels.HasBlockingOpenChannel(ctx, tx, c.ID, spec.From)
		if err != nil {
			return TransitionResult{}, PersistenceError{Err: err}
		}
		if blocked {
			return TransitionResult{}, BlockedByOpenChannelError{CaseID: c.ID, Stage: spec.From}
		}
	}
	if missing := missingFields(spec.Require, req.Payload); len(missing) > 0 {
		return TransitionResult{}, IncompletePayloadError{Transition: spec.Name, Missing: missing}
	}

	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339)
	payloadJSON, err := marshalPayload(req.Payload)
	if err != nil {
		return TransitionResult{}, err
	}
	if payloadJSON != "" {
		if err := e.Repo.UpsertStageTx(ctx, tx, c.ID, spec.From, payloadJSON, nowStr); err != nil {
			return TransitionResult{}, PersistenceError{Err: err}
		}
	}
	if err := e.Repo.EnsureActorTx(ctx, tx, req.ActorID, nowStr); err != nil {
		return TransitionResult{}, PersistenceError{Err: err}
	}

	overall := c.State
	newState := spec.To
	if track != "" {
		if err := e.Repo.UpdateSubTrackStateTx(ctx, tx, c.ID, track, spec.To, nowStr); err != nil {
			return TransitionResult{}, PersistenceError{Err: err}
		}
	} else {
		overall = spec.To
	}
	for _, name := range spec.Fanout {
		entry := e.Config.Workflow.Tracks[name].Entry
		if err := e.Repo.InsertSubTrackTx(ctx, tx, domain.SubTrack{
			CaseID:    c.ID,
			Track:     name,
			State:     entry,
			CreatedAt: nowStr,
			UpdatedAt: nowStr,
		}); err != nil {
			return TransitionResult{}, PersistenceError{Err: err}
		}
	}

	seq, err := e.Ledger.Append(ctx, tx, domain.TransitionRecord{
		CaseID:      c.ID,
		FromState:   spec.From,
		ToState:     spec.To,
		Transition:  spec.Name,
		Track:       track,
		ActorID:     req.ActorID,
		ActorRole:   req.ActorRole,
		TS:          nowStr,
		PayloadJSON: payloadJSON,
	})
	if err != nil {
		return TransitionResult{}, PersistenceError{Err: err}
	}

	if _, err := e.Clock.OnTransition(ctx, tx, c.ID, spec.Name, now); err != nil {
		var dup slaclock.DuplicateObligationError
		if errors.As(err, &dup) {
			log.Printf("sla: %v (ignored)", dup)
		} else {
			return TransitionResult{}, PersistenceError{Err: err}
		}
	}

	// Join check: after this sub-track's own write, re-read the full sibling
	// set inside the same transaction and lock so a concurrent completion
	// cannot race the close decision.
	if track != "" && domain.IsTerminalState(spec.To) {
		siblings, err := e.Repo.ListSubTracksTx(ctx, tx, c.ID)
		if err != nil {
			return TransitionResult{}, PersistenceError{Err: err}
		}
		if joined, final := joinState(siblings); joined {
			overall = final
		}
	}
	if err := e.Repo.UpdateCaseStateTx(ctx, tx, c.ID, overall, classification, nowStr); err != nil {
		return TransitionResult{}, PersistenceError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return TransitionResult{}, PersistenceError{Err: err}
	}

	if spec.Notify && e.Notify != nil {
		n := Notification{
			CaseID:     c.ID,
			Seq:        seq,
			Transition: spec.Name,
			FromState:  spec.From,
			ToState:    spec.To,
			ActorID:    req.ActorID,
			TS:         nowStr,
		}
		go e.Notify(n)
	}
	return TransitionResult{
		CaseID:       c.ID,
		NewState:     newState,
		OverallState: overall,
		Track:        track,
		Sequence:     seq,
	}, nil
}

// resolveTarget decides whether the edge applies to the case itself or to one
// open sub-track, and rejects ambiguity instead of guessing.
func (e Engine) resolveTarget(c domain.Case, tracks []domain.SubTrack, spec config.TransitionSpec, hint string) (string, error) {
	var open []domain.SubTrack
	for _, t := range tracks {
		if !domain.IsTerminalState(t.State) {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		if domain.IsTerminalState(c.State) {
			return "", InvalidTransitionError{CaseID: c.ID, State: c.State, Transition: spec.Name, Reason: "case is closed"}
		}
		if c.State != spec.From {
			return "", InvalidTransitionError{CaseID: c.ID, State: c.State, Transition: spec.Name}
		}
		return "", nil
	}
	if hint != "" {
		for _, t := range open {
			if t.Track == hint {
				if t.State != spec.From {
					return "", InvalidTransitionError{CaseID: c.ID, State: t.State, Transition: spec.Name}
				}
				return t.Track, nil
			}
		}
		return "", InvalidTransitionError{CaseID: c.ID, State: c.State, Transition: spec.Name, Reason: fmt.Sprintf("no open sub-track %s", hint)}
	}
	var matches []domain.SubTrack
	for _, t := range open {
		if t.State == spec.From {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return "", InvalidTransitionError{CaseID: c.ID, State: c.State, Transition: spec.Name, Reason: "no sub-track in source state"}
	case 1:
		return matches[0].Track, nil
	default:
		return "", InvalidTransitionError{CaseID: c.ID, State: c.State, Transition: spec.Name, Reason: "ambiguous sub-track; specify one"}
	}
}

// resolveClassification enforces the branch policy out of final adjudication.
// The payload classification is consumed verbatim; unclassified never leaves.
func (e Engine) resolveClassification(c domain.Case, spec config.TransitionSpec, payload map[string]any) (string, error) {
	if spec.Classification == "" {
		return c.Classification, nil
	}
	cls, _ := payload["classification"].(string)
	if cls == "" {
		cls = c.Classification
	}
	if cls == "" || cls == domain.ClassificationUnclassified {
		return "", InvalidTransitionError{CaseID: c.ID, State: spec.From, Transition: spec.Name, Reason: "classification not set"}
	}
	if cls != spec.Classification {
		return "", InvalidTransitionError{CaseID: c.ID, State: spec.From, Transition: spec.Name,
			Reason: fmt.Sprintf("classification %s does not permit %s", cls, spec.Name)}
	}
	if c.Classification != domain.ClassificationUnclassified && c.Classification != cls {
		return "", InvalidTransitionError{CaseID: c.ID, State: spec.From, Transition: spec.Name,
			Reason: fmt.Sprintf("case already classified %s", c.Classification)}
	}
	return cls, nil
}

// joinState reports whether every sub-track is terminal and, if so, the
// overall state the case collapses to.
func joinState(tracks []domain.SubTrack) (bool, string) {
	if len(tracks) == 0 {
		return false, ""
	}
	final := domain.StateClosed
	for _, t := range tracks {
		if !domain.IsTerminalState(t.State) {
			return false, ""
		}
		if t.State == domain.StateClosureLegal {
			final = domain.StateClosureLegal
		}
	}
	return true, final
}

// OpenInteractionChannel raises a request-for-information thread. Allowed from
// any non-terminal state; the case state itself does not change.
func (e Engine) OpenInteractionChannel(ctx context.Context, caseID, stage, targetRole, text, actorID string) (string, error) {
	unlock := e.lockCase(caseID)
	defer unlock()
	ctx, cancel := e.persistCtx(ctx)
	defer cancel()

	c, err := e.Repo.GetCase(ctx, caseID)
	if err != nil {
		return "", err
	}
	if domain.IsTerminalState(c.State) {
		return "", InvalidTransitionError{CaseID: caseID, State: c.State, Transition: "openChannel", Reason: "case is closed"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", PersistenceError{Err: err}
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.EnsureActorTx(ctx, tx, actorID, now); err != nil {
		return "", PersistenceError{Err: err}
	}
	id, err := e.Channels.Open(ctx, tx, caseID, stage, targetRole, text, actorID)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", PersistenceError{Err: err}
	}
	return id, nil
}

// ResolveInteractionChannel marks a channel responded, unblocking the forward
// transition on the next request for that case.
func (e Engine) ResolveInteractionChannel(ctx context.Context, channelID, response, actorID string) (domain.InteractionChannel, error) {
	ch, err := e.Channels.Get(ctx, channelID)
	if err != nil {
		return ch, err
	}
	unlock := e.lockCase(ch.CaseID)
	defer unlock()
	ctx, cancel := e.persistCtx(ctx)
	defer cancel()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ch, PersistenceError{Err: err}
	}
	defer tx.Rollback()
	ch, err = e.Channels.Resolve(ctx, tx, channelID, response, actorID)
	if err != nil {
		return ch, err
	}
	if err := tx.Commit(); err != nil {
		return ch, PersistenceError{Err: err}
	}
	return ch, nil
}

// CloseInteractionChannel retires a channel permanently.
func (e Engine) CloseInteractionChannel(ctx context.Context, channelID, actorID string) (domain.InteractionChannel, error) {
	ch, err := e.Channels.Get(ctx, channelID)
	if err != nil {
		return ch, err
	}
	unlock := e.lockCase(ch.CaseID)
	defer unlock()
	ctx, cancel := e.persistCtx(ctx)
	defer cancel()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ch, PersistenceError{Err: err}
	}
	defer tx.Rollback()
	ch, err = e.Channels.Close(ctx, tx, channelID)
	if err != nil {
		return ch, err
	}
	if err := tx.Commit(); err != nil {
		return ch, PersistenceError{Err: err}
	}
	return ch, nil
}

// GetCurrentState returns a read-only snapshot: overall state, classification,
// stage payloads, open channels and sub-track states. No side effects.
func (e Engine) GetCurrentState(ctx context.Context, caseID string) (domain.Case, error) {
	c, err := e.Repo.GetCase(ctx, caseID)
	if err != nil {
		return c, err
	}
	if c.Stages, err = e.Repo.ListStages(ctx, caseID); err != nil {
		return c, err
	}
	if c.SubTracks, err = e.Repo.ListSubTracks(ctx, caseID); err != nil {
		return c, err
	}
	if c.OpenChannels, err = e.Channels.OpenChannelIDs(ctx, caseID); err != nil {
		return c, err
	}
	return c, nil
}

// History returns the case's audit ledger in sequence order.
func (e Engine) History(ctx context.Context, caseID string) ([]domain.TransitionRecord, error) {
	if _, err := e.Repo.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return e.Ledger.History(ctx, caseID)
}

// Catalog exposes the static transition catalog for the UI layer.
func (e Engine) Catalog() []config.TransitionSpec {
	return e.Config.Catalog()
}

// MarkSLAFulfilled records an obligation as met, driven by an external event.
func (e Engine) MarkSLAFulfilled(ctx context.Context, caseID, obligation string) error {
	unlock := e.lockCase(caseID)
	defer unlock()
	return e.Clock.MarkFulfilled(ctx, caseID, obligation, e.now())
}

func missingFields(required []string, payload map[string]any) []string {
	var missing []string
	for _, f := range required {
		v, ok := payload[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func marshalPayload(payload map[string]any) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}
