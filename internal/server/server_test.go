package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func actorHeaders(actor, role string) map[string]string {
	return map[string]string{"X-Actor-ID": actor, "X-Actor-Role": role}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/cases", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %s", envelope.Error.Code)
	}
}

func TestCaseWorkflowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/cases",
		map[string]any{"payload": map[string]any{"summary": "odd wire transfer"}},
		actorHeaders("alice", domain.RoleInitiator))
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create case status %d: %s", createRes.StatusCode, string(data))
	}
	var created CaseResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal case: %v", err)
	}
	if created.ID != "CASE-0001" || created.State != domain.StateDraft {
		t.Fatalf("unexpected case: %+v", created)
	}

	// wrong role is refused with the typed envelope
	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/cases/"+created.ID+"/transitions",
		map[string]any{"transition": "submit", "payload": map[string]any{"case_description": "x"}},
		actorHeaders("bob", domain.RoleReviewer))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("role gate status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/cases/"+created.ID+"/transitions",
		map[string]any{"transition": "submit", "payload": map[string]any{"case_description": "x"}},
		actorHeaders("alice", domain.RoleInitiator))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(body))
	}
	var moved engine.TransitionResult
	if err := json.Unmarshal(body, &moved); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if moved.NewState != domain.StateSubmitted {
		t.Fatalf("submit landed in %s", moved.NewState)
	}

	// unknown transition maps to 409 invalid_transition
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/cases/"+created.ID+"/transitions",
		map[string]any{"transition": "teleport"},
		actorHeaders("alice", domain.RoleAdministrator))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("unknown transition status %d: %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("code = %s", envelope.Error.Code)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cases/"+created.ID+"/history", nil,
		actorHeaders("alice", domain.RoleInitiator))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(body))
	}
	var history struct {
		Records []TransitionRecordResponse `json:"records"`
	}
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history.Records) != 2 || history.Records[1].Transition != "submit" {
		t.Fatalf("unexpected history: %+v", history.Records)
	}
}

func TestChannelEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/cases", map[string]any{},
		actorHeaders("alice", domain.RoleInitiator))
	var created CaseResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal case: %v", err)
	}

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/cases/"+created.ID+"/channels",
		map[string]any{"target_role": domain.RoleInitiator, "text": "missing attachment"},
		actorHeaders("bob", domain.RoleReviewer))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("open channel status %d: %s", res.StatusCode, string(body))
	}
	var opened struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &opened); err != nil {
		t.Fatalf("unmarshal channel id: %v", err)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/channels/"+opened.ID+"/resolve",
		map[string]any{"response": "attached now"},
		actorHeaders("alice", domain.RoleInitiator))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve status %d: %s", res.StatusCode, string(body))
	}
	var resolved ChannelResponse
	if err := json.Unmarshal(body, &resolved); err != nil {
		t.Fatalf("unmarshal channel: %v", err)
	}
	if resolved.Status != domain.ChannelResponded {
		t.Fatalf("channel status = %s", resolved.Status)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cases/"+created.ID+"/channels", nil,
		actorHeaders("alice", domain.RoleInitiator))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list channels status %d: %s", res.StatusCode, string(body))
	}
}

func TestJWTBearerAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleInitiator,
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/cases", map[string]any{},
		map[string]string{"Authorization": "Bearer " + signed})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("jwt create status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cases", nil,
		map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	raw, _, err := srv.Engine.Repo.GenerateAPIKey(context.Background(), "svc-bot", domain.RoleReviewer, "ci")
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/cases", nil,
		map[string]string{"X-API-Key": raw})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cases", nil,
		map[string]string{"X-API-Key": "clk_bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus key status %d", res.StatusCode)
	}
}

func TestGetMissingCase(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/cases/CASE-9999", nil,
		actorHeaders("alice", domain.RoleInitiator))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}
