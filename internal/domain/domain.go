package domain

// Case lifecycle states.
const (
	StateDraft               = "draft"
	StateSubmitted           = "submitted"
	StateAllocated           = "allocated"
	StateUnderInvestigation  = "under_investigation"
	StatePrimaryReview       = "primary_review"
	StateApproved            = "approved"
	StateRejected            = "rejected"
	StateApprover1Review     = "approver1_review"
	StateApprover2Review     = "approver2_review"
	StateFinalAdjudication   = "final_adjudication"
	StateLegalReview         = "legal_review"
	StateRegulatoryReporting = "regulatory_reporting"
	StateActioner            = "actioner"
	StateClosureLegal        = "closure_legal"
	StateClosed              = "closed"
)

// IsTerminalState reports whether a case (or sub-track) in this state is done for good.
func IsTerminalState(state string) bool {
	return state == StateClosed || state == StateClosureLegal
}

// Roles recognized by the role gate.
const (
	RoleInitiator     = "initiator"
	RoleInvestigator  = "investigator"
	RoleReviewer      = "reviewer"
	RoleApprover      = "approver"
	RoleLegalReviewer = "legal_reviewer"
	RoleActioner      = "actioner"
	RoleAdministrator = "administrator"
)

// Classification outcomes set at final adjudication.
const (
	ClassificationUnclassified  = "unclassified"
	ClassificationFraud         = "fraud"
	ClassificationNonFraud      = "non_fraud"
	ClassificationOtherIncident = "other_incident"
)

type Case struct {
	ID             string            `json:"id"`
	State          string            `json:"state"`
	Classification string            `json:"classification" enum:"unclassified,fraud,non_fraud,other_incident"`
	CreatedBy      string            `json:"created_by"`
	CreatedAt      string            `json:"created_at" format:"date-time"`
	TransitionedAt string            `json:"transitioned_at" format:"date-time"`
	Stages         map[string]string `json:"stages,omitempty"`
	OpenChannels   []string          `json:"open_channels,omitempty"`
	SubTracks      []SubTrack        `json:"sub_tracks,omitempty"`
}

// SubTrack is one independently progressing branch of a fanned-out case.
type SubTrack struct {
	CaseID    string `json:"case_id"`
	Track     string `json:"track"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// TransitionRecord is one immutable audit ledger row. Ordering within a case is
// by Seq, assigned at write time.
type TransitionRecord struct {
	CaseID      string `json:"case_id"`
	Seq         int64  `json:"seq"`
	FromState   string `json:"from_state"`
	ToState     string `json:"to_state"`
	Transition  string `json:"transition"`
	Track       string `json:"track,omitempty"`
	ActorID     string `json:"actor_id"`
	ActorRole   string `json:"actor_role"`
	TS          string `json:"ts" format:"date-time"`
	PayloadJSON string `json:"payload_json,omitempty"`
}

// Interaction channel statuses.
const (
	ChannelOpen      = "open"
	ChannelResponded = "responded"
	ChannelClosed    = "closed"
)

type InteractionChannel struct {
	ID          string  `json:"id"`
	CaseID      string  `json:"case_id"`
	Stage       string  `json:"stage"`
	TargetRole  string  `json:"target_role"`
	RequestText string  `json:"request_text"`
	Status      string  `json:"status" enum:"open,responded,closed"`
	RaisedBy    string  `json:"raised_by"`
	Response    *string `json:"response,omitempty"`
	RespondedBy *string `json:"responded_by,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	RespondedAt *string `json:"responded_at,omitempty" format:"date-time"`
}

type SLAEntry struct {
	CaseID      string  `json:"case_id"`
	Obligation  string  `json:"obligation"`
	DueAt       string  `json:"due_at" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	Fulfilled   bool    `json:"fulfilled"`
	FulfilledAt *string `json:"fulfilled_at,omitempty" format:"date-time"`
	Overdue     bool    `json:"overdue"`
}

type Actor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
