package caselinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Caseline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Case represents the API case model (partial).
type Case struct {
	ID             string            `json:"id"`
	State          string            `json:"state"`
	Classification string            `json:"classification"`
	CreatedBy      string            `json:"created_by"`
	CreatedAt      string            `json:"created_at"`
	TransitionedAt string            `json:"transitioned_at"`
	Stages         map[string]string `json:"stages,omitempty"`
	OpenChannels   []string          `json:"open_channels,omitempty"`
	SubTracks      []SubTrack        `json:"sub_tracks,omitempty"`
}

// SubTrack is one parallel track spawned by a fan-out transition.
type SubTrack struct {
	Track string `json:"track"`
	State string `json:"state"`
}

// TransitionRecord is one audit ledger entry.
type TransitionRecord struct {
	CaseID     string `json:"case_id"`
	Seq        int64  `json:"seq"`
	FromState  string `json:"from_state"`
	ToState    string `json:"to_state"`
	Transition string `json:"transition"`
	Track      string `json:"track,omitempty"`
	ActorID    string `json:"actor_id"`
	ActorRole  string `json:"actor_role"`
	TS         string `json:"ts"`
}

// TransitionResult is what a successful transition request returns. NewState
// is the state the moved track landed in; OverallState is the case's overall
// state after any join.
type TransitionResult struct {
	CaseID       string `json:"case_id"`
	NewState     string `json:"new_state"`
	OverallState string `json:"overall_state"`
	Track        string `json:"track,omitempty"`
	Sequence     int64  `json:"sequence"`
}

// Channel represents an interaction channel.
type Channel struct {
	ID          string  `json:"id"`
	CaseID      string  `json:"case_id"`
	Stage       string  `json:"stage"`
	TargetRole  string  `json:"target_role"`
	RequestText string  `json:"request_text"`
	Status      string  `json:"status"`
	RaisedBy    string  `json:"raised_by"`
	Response    *string `json:"response,omitempty"`
	RespondedBy *string `json:"responded_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
	RespondedAt *string `json:"responded_at,omitempty"`
}

// SLAEntry is one SLA obligation on a case.
type SLAEntry struct {
	CaseID      string  `json:"case_id"`
	Obligation  string  `json:"obligation"`
	DueAt       string  `json:"due_at"`
	CreatedAt   string  `json:"created_at"`
	Fulfilled   bool    `json:"fulfilled"`
	FulfilledAt *string `json:"fulfilled_at,omitempty"`
	Overdue     bool    `json:"overdue"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCase registers a new case in draft.
func (c *Client) CreateCase(ctx context.Context, payload map[string]any) (Case, error) {
	body := map[string]any{"payload": payload}
	var resp Case
	err := c.do(ctx, http.MethodPost, "v0/cases", body, &resp)
	return resp, err
}

// GetCase returns the current state snapshot of a case.
func (c *Client) GetCase(ctx context.Context, caseID string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, c.casePath(caseID, ""), nil, &resp)
	return resp, err
}

// ListCases returns all cases.
func (c *Client) ListCases(ctx context.Context) ([]Case, error) {
	var resp struct {
		Cases []Case `json:"cases"`
	}
	err := c.do(ctx, http.MethodGet, "v0/cases", nil, &resp)
	return resp.Cases, err
}

// RequestTransition applies a named transition to a case. Track selects a
// sub-track when the case has fanned out; leave it empty otherwise.
func (c *Client) RequestTransition(ctx context.Context, caseID, transition, track string, payload map[string]any) (TransitionResult, error) {
	body := map[string]any{
		"transition": transition,
	}
	if track != "" {
		body["track"] = track
	}
	if payload != nil {
		body["payload"] = payload
	}
	var resp TransitionResult
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "transitions"), body, &resp)
	return resp, err
}

// History returns the full audit ledger for a case, oldest first.
func (c *Client) History(ctx context.Context, caseID string) ([]TransitionRecord, error) {
	var resp struct {
		Records []TransitionRecord `json:"records"`
	}
	err := c.do(ctx, http.MethodGet, c.casePath(caseID, "history"), nil, &resp)
	return resp.Records, err
}

// OpenChannel opens an interaction channel on a case. An empty stage targets
// the case's current state.
func (c *Client) OpenChannel(ctx context.Context, caseID, stage, targetRole, text string) (string, error) {
	body := map[string]any{
		"stage":       stage,
		"target_role": targetRole,
		"text":        text,
	}
	var resp struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "channels"), body, &resp)
	return resp.ID, err
}

// ListChannels returns a case's interaction channels.
func (c *Client) ListChannels(ctx context.Context, caseID string) ([]Channel, error) {
	var resp struct {
		Channels []Channel `json:"channels"`
	}
	err := c.do(ctx, http.MethodGet, c.casePath(caseID, "channels"), nil, &resp)
	return resp.Channels, err
}

// ResolveChannel responds to a channel, unblocking its stage.
func (c *Client) ResolveChannel(ctx context.Context, channelID, response string) (Channel, error) {
	body := map[string]any{"response": response}
	var resp Channel
	endpoint := fmt.Sprintf("v0/channels/%s/resolve", url.PathEscape(channelID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CloseChannel closes a channel permanently.
func (c *Client) CloseChannel(ctx context.Context, channelID string) (Channel, error) {
	var resp Channel
	endpoint := fmt.Sprintf("v0/channels/%s/close", url.PathEscape(channelID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ListSLA returns the SLA obligations on a case.
func (c *Client) ListSLA(ctx context.Context, caseID string) ([]SLAEntry, error) {
	var resp struct {
		Entries []SLAEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, c.casePath(caseID, "sla"), nil, &resp)
	return resp.Entries, err
}

// FulfilSLA marks an SLA obligation fulfilled.
func (c *Client) FulfilSLA(ctx context.Context, caseID, obligation string) error {
	endpoint := c.casePath(caseID, fmt.Sprintf("sla/%s/fulfil", url.PathEscape(obligation)))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) casePath(caseID, p string) string {
	base := fmt.Sprintf("v0/cases/%s", url.PathEscape(caseID))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
