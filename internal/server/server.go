package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"caseline/internal/config"
	"caseline/internal/engine"
	"caseline/internal/repo"
	"caseline/internal/slaclock"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"blocked_by_open_channel"`
	Message string         `json:"message" example:"case CASE-0001 has an open interaction channel on stage primary_review"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Caseline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Caseline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerCatalog(group, cfg.Engine)
	registerCases(group, cfg.Engine)
	registerChannels(group, cfg.Engine)
	registerSLA(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine error kinds onto the HTTP envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var it engine.InvalidTransitionError
	if errors.As(err, &it) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"state": it.State, "transition": it.Transition,
		})
	}
	var ua engine.UnauthorizedError
	if errors.As(err, &ua) {
		return newAPIError(http.StatusForbidden, "unauthorized", err.Error(), map[string]any{
			"role": ua.Role, "transition": ua.Transition,
		})
	}
	var bc engine.BlockedByOpenChannelError
	if errors.As(err, &bc) {
		return newAPIError(http.StatusConflict, "blocked_by_open_channel", err.Error(), map[string]any{
			"stage": bc.Stage,
		})
	}
	var ip engine.IncompletePayloadError
	if errors.As(err, &ip) {
		return newAPIError(http.StatusBadRequest, "incomplete_payload", err.Error(), map[string]any{
			"missing": ip.Missing,
		})
	}
	var dup slaclock.DuplicateObligationError
	if errors.As(err, &dup) {
		return newAPIError(http.StatusConflict, "duplicate_obligation", err.Error(), nil)
	}
	var pe engine.PersistenceError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusServiceUnavailable, "persistence_error", "storage unavailable", nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}

func requirePrincipal(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func registerHealth(group huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

func registerCatalog(group huma.API, e engine.Engine) {
	type catalogOutput struct {
		Body struct {
			Transitions []config.TransitionSpec `json:"transitions"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "catalog-list",
		Method:      http.MethodGet,
		Path:        "/catalog",
		Summary:     "List the transition catalog",
	}, func(ctx context.Context, _ *struct{}) (*catalogOutput, error) {
		out := &catalogOutput{}
		out.Body.Transitions = e.Catalog()
		return out, nil
	})
}

func registerCases(group huma.API, e engine.Engine) {
	type createCaseInput struct {
		Body CreateCaseRequest
	}
	type caseOutput struct {
		Body CaseResponse
	}
	huma.Register(group, huma.Operation{
		OperationID:   "case-create",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "Register a new case",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *createCaseInput) (*caseOutput, error) {
		p, herr := requirePrincipal(ctx)
		if herr != nil {
			return nil, herr
		}
		c, err := e.CreateCase(ctx, engine.CreateCaseOptions{ActorID: p.ActorID, Payload: in.Body.Payload})
		if err != nil {
			return nil, handleError(err)
		}
		out := &caseOutput{Body: caseResponse(c)}
		return out, nil
	})

	type listCasesOutput struct {
		Body struct {
			Cases []CaseResponse `json:"cases"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "case-list",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases",
	}, func(ctx context.Context, _ *struct{}) (*listCasesOutput, error) {
		if _, herr := requirePrincipal(ctx); herr != nil {
			return nil, herr
		}
		items, err := e.Repo.ListCases(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &listCasesOutput{}
		for _, c := range items {
			out.Body.Cases = append(out.Body.Cases, caseResponse(c))
		}
		return out, nil
	})

	type getCaseInput struct {
		CaseID string `path:"caseID" example:"CASE-0001"`
	}
	huma.Register(group, huma.Operation{
		OperationID: "case-get",
		Method:      http.MethodGet,
		Path:        "/cases/{caseID}",
		Summary:     "Get the current state snapshot of a case",
	}, func(ctx context.Context, in *getCaseInput) (*caseOutput, error) {
		if _, herr := requirePrincipal(ctx); herr != nil {
			return nil, herr
		}
		c, err := e.GetCurrentState(ctx, in.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &caseOutput{Body: caseResponse(c)}, nil
	})

	type transitionInput struct {
		CaseID string `path:"caseID"`
		Body   TransitionRequestBody
	}
	type transitionOutput struct {
		Body engine.TransitionResult
	}
	huma.Register(group, huma.Operation{
		OperationID: "case-transition",
		Method:      http.MethodPost,
		Path:        "/cases/{caseID}/transitions",
		Summary:     "Request a named transition on a case",
	}, func(ctx context.Context, in *transitionInput) (*transitionOutput, error) {
		p, herr := requirePrincipal(ctx)
		if herr != nil {
			return nil, herr
		}
		res, err := e.RequestTransition(ctx, engine.TransitionRequest{
			CaseID:     in.CaseID,
			Transition: in.Body.Transition,
			ActorID:    p.ActorID,
			ActorRole:  p.Role,
			Track:      in.Body.Track,
			Payload:    in.Body.Payload,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &transitionOutput{Body: res}, nil
	})

	type historyInput struct {
		CaseID string `path:"caseID"`
	}
	type historyOutput struct {
		Body struct {
			Records []TransitionRecordResponse `json:"records"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "case-history",
		Method:      http.MethodGet,
		Path:        "/cases/{caseID}/history",
		Summary:     "Read the audit ledger for a case",
	}, func(ctx context.Context, in *historyInput) (*historyOutput, error) {
		if _, herr := requirePrincipal(ctx); herr != nil {
			return nil, herr
		}
		records, err := e.History(ctx, in.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &historyOutput{}
		for _, rec := range records {
			out.Body.Records = append(out.Body.Records, TransitionRecordResponse(rec))
		}
		return out, nil
	})
}

func registerChannels(group huma.API, e engine.Engine) {
	type openChannelInput struct {
		CaseID string `path:"caseID"`
		Body   OpenChannelRequest
	}
	type openChannelOutput struct {
		Body struct {
			ID string `json:"id"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID:   "channel-open",
		Method:        http.MethodPost,
		Path:          "/cases/{caseID}/channels",
		Summary:       "Open an interaction channel on a case",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *openChannelInput) (*openChannelOutput, error) {
		p, herr := requirePrincipal(ctx)
		if herr != nil {
			return nil, herr
		}
		stage := in.Body.Stage
		if stage == "" {
			c, err := e.Repo.GetCase(ctx, in.CaseID)
			if err != nil {
				return nil, handleError(err)
			}
			stage = c.State
		}
		id, err := e.OpenInteractionChannel(ctx, in.CaseID, stage, in.Body.TargetRole, in.Body.Text, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &openChannelOutput{}
		out.Body.ID = id
		return out, nil
	})

	type listChannelsInput struct {
		CaseID string `path:"caseID"`
	}
	type listChannelsOutput struct {
		Body struct {
			Channels []ChannelResponse `json:"channels"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "channel-list",
		Method:      http.MethodGet,
		Path:        "/cases/{caseID}/channels",
		Summary:     "List a case's interaction channels",
	}, func(ctx context.Context, in *listChannelsInput) (*listChannelsOutput, error) {
		if _, herr := requirePrincipal(ctx); herr != nil {
			return nil, herr
		}
		items, err := e.Channels.ListForCase(ctx, in.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &listChannelsOutput{}
		for _, ch := range items {
			out.Body.Channels = append(out.Body.Channels, channelResponse(ch))
		}
		return out, nil
	})

	type resolveChannelInput struct {
		ChannelID string `path:"channelID"`
		Body      ResolveChannelRequest
	}
	type channelOutput struct {
		Body ChannelResponse
	}
	huma.Register(group, huma.Operation{
		OperationID: "channel-resolve",
		Method:      http.MethodPost,
		Path:        "/channels/{channelID}/resolve",
		Summary:     "Respond to an interaction channel",
	}, func(ctx context.Context, in *resolveChannelInput) (*channelOutput, error) {
		p, herr := requirePrincipal(ctx)
		if herr != nil {
			return nil, herr
		}
		ch, err := e.ResolveInteractionChannel(ctx, in.ChannelID, in.Body.Response, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &channelOutput{Body: channelResponse(ch)}, nil
	})

	type closeChannelInput struct {
		ChannelID string `path:"channelID"`
	}
	huma.Register(group, huma.Operation{
		OperationID: "channel-close",
		Method:      http.MethodPost,
		Path:        "/channels/{channelID}/close",
		Summary:     "Close an interaction channel permanently",
	}, func(ctx context.Context, in *closeChannelInput) (*channelOutput, error) {
		p, herr := requirePrincipal(ctx)
		if herr != nil {
			return nil, herr
		}
		ch, err := e.CloseInteractionChannel(ctx, in.ChannelID, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &channelOutput{Body: channelResponse(ch)}, nil
	})
}

func registerSLA(group huma.API, e engine.Engine) {
	type listSLAInput struct {
		CaseID string `path:"caseID"`
	}
	type listSLAOutput struct {
		Body struct {
			Entries []SLAEntryResponse `json:"entries"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "sla-list",
		Method:      http.MethodGet,
		Path:        "/cases/{caseID}/sla",
		Summary:     "List SLA obligations for a case",
	}, func(ctx context.Context, in *listSLAInput) (*listSLAOutput, error) {
		if _, herr := requirePrincipal(ctx); herr != nil {
			return nil, herr
		}
		items, err := e.Clock.ListForCase(ctx, in.CaseID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &listSLAOutput{}
		for _, entry := range items {
			out.Body.Entries = append(out.Body.Entries, SLAEntryResponse(entry))
		}
		return out, nil
	})

	type fulfilInput struct {
		CaseID     string `path:"caseID"`
		Obligation string `path:"obligation" example:"FMR1"`
	}
	type fulfilOutput struct {
		Body struct {
			Fulfilled bool `json:"fulfilled"`
		}
	}
	huma.Register(group, huma.Operation{
		OperationID: "sla-fulfil",
		Method:      http.MethodPost,
		Path:        "/cases/{caseID}/sla/{obligation}/fulfil",
		Summary:     "Mark an SLA obligation fulfilled",
	}, func(ctx context.Context, in *fulfilInput) (*fulfilOutput, error) {
		if _, herr := requirePrincipal(ctx); herr != nil {
			return nil, herr
		}
		if err := e.MarkSLAFulfilled(ctx, in.CaseID, in.Obligation); err != nil {
			return nil, handleError(err)
		}
		out := &fulfilOutput{}
		out.Body.Fulfilled = true
		return out, nil
	})
}
