package engine

import (
	"fmt"
	"strings"
)

// InvalidTransitionError: the requested edge does not exist from the case's
// current state or sub-state.
type InvalidTransitionError struct {
	CaseID     string
	State      string
	Transition string
	Reason     string
}

func (e InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition %s from %s on case %s: %s", e.Transition, e.State, e.CaseID, e.Reason)
	}
	return fmt.Sprintf("invalid transition %s from %s on case %s", e.Transition, e.State, e.CaseID)
}

// UnauthorizedError: the acting role is not permitted on this edge.
type UnauthorizedError struct {
	Role       string
	State      string
	Transition string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("role %s not authorized for %s from %s", e.Role, e.Transition, e.State)
}

// BlockedByOpenChannelError: an open interaction channel on the current stage
// holds the forward transition.
type BlockedByOpenChannelError struct {
	CaseID string
	Stage  string
}

func (e BlockedByOpenChannelError) Error() string {
	return fmt.Sprintf("case %s has an open interaction channel on stage %s", e.CaseID, e.Stage)
}

// IncompletePayloadError: structurally required payload fields are missing.
type IncompletePayloadError struct {
	Transition string
	Missing    []string
}

func (e IncompletePayloadError) Error() string {
	return fmt.Sprintf("transition %s payload missing required fields: %s", e.Transition, strings.Join(e.Missing, ", "))
}

// PersistenceError: storage failed mid-operation. The whole transition is
// rolled back; no partial state survives.
type PersistenceError struct {
	Err error
}

func (e PersistenceError) Error() string { return fmt.Sprintf("persistence failure: %v", e.Err) }
func (e PersistenceError) Unwrap() error { return e.Err }
