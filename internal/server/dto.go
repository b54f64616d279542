package server

import (
	"caseline/internal/domain"
)

// Request payloads

type CreateCaseRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
}

type TransitionRequestBody struct {
	Transition string         `json:"transition"`
	Track      string         `json:"track,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type OpenChannelRequest struct {
	Stage      string `json:"stage,omitempty"`
	TargetRole string `json:"target_role"`
	Text       string `json:"text"`
}

type ResolveChannelRequest struct {
	Response string `json:"response"`
}

// Response payloads

type CaseResponse struct {
	ID             string            `json:"id"`
	State          string            `json:"state"`
	Classification string            `json:"classification"`
	CreatedBy      string            `json:"created_by"`
	CreatedAt      string            `json:"created_at" format:"date-time"`
	TransitionedAt string            `json:"transitioned_at" format:"date-time"`
	Stages         map[string]string `json:"stages,omitempty"`
	OpenChannels   []string          `json:"open_channels,omitempty"`
	SubTracks      []domain.SubTrack `json:"sub_tracks,omitempty"`
}

func caseResponse(c domain.Case) CaseResponse {
	return CaseResponse{
		ID:             c.ID,
		State:          c.State,
		Classification: c.Classification,
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
		TransitionedAt: c.TransitionedAt,
		Stages:         c.Stages,
		OpenChannels:   c.OpenChannels,
		SubTracks:      c.SubTracks,
	}
}

type ChannelResponse struct {
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

func channelResponse(ch domain.InteractionChannel) ChannelResponse {
	return ChannelResponse(ch)
}

// TransitionRecordResponse is one audit ledger entry.
type TransitionRecordResponse domain.TransitionRecord

// SLAEntryResponse is one SLA obligation on a case.
type SLAEntryResponse domain.SLAEntry
