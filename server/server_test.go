package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/intelhive/intelhive/admission"
	"github.com/intelhive/intelhive/agent"
	"github.com/intelhive/intelhive/manager"
	"github.com/intelhive/intelhive/persona"
	"github.com/intelhive/intelhive/responder"
	"github.com/intelhive/intelhive/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiKey = "test-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	stub := responder.NewStub()
	stub.SetDefault("Oh dear, I am not sure I understand. Which app is that?")
	m := manager.New(manager.Deps{
		Store:        store.NewInMemoryStore(),
		Orchestrator: agent.New(stub, persona.NewRegistry(), func(o *agent.Options) { o.RetryBackoff = time.Millisecond }),
	})
	t.Cleanup(m.Close)

	srv := New(m, []string{apiKey}, func(o *Options) {
		o.AllowInsecureCallback = true
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, key string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createSession(t *testing.T, ts *httptest.Server, body any) string {
	t.Helper()
	resp, out := doJSON(t, ts, http.MethodPost, "/session/create", apiKey, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := out["session_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)
	resp, out := doJSON(t, ts, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}

func TestMissingAPIKeyRejected(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, ts, http.MethodPost, "/session/create", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWrongAPIKeyRejected(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, ts, http.MethodPost, "/session/create", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerTokenAccepted(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/session/create", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestSessionRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, map[string]string{"callback_url": "http://localhost:9/cb"})

	resp, out := doJSON(t, ts, http.MethodPost, fmt.Sprintf("/session/%s/message", id), apiKey,
		map[string]string{"message": "I need your bank OTP urgently"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "engaged", out["status"])
	assert.NotEmpty(t, out["reply"])

	resp, out = doJSON(t, ts, http.MethodPost, fmt.Sprintf("/session/%s/message", id), apiKey,
		map[string]string{"message": "My UPI ID is scammer@paytm"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out = doJSON(t, ts, http.MethodGet, fmt.Sprintf("/session/%s/intelligence", id), apiKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "engaged", out["status"])
	report, ok := out["report"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "upi_fraud", report["classification"])

	resp, out = doJSON(t, ts, http.MethodPost, fmt.Sprintf("/session/%s/terminate", id), apiKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upi_fraud", out["classification"])
	extracted, ok := out["extracted"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"scammer@paytm"}, extracted["upi_ids"])
	conversation, ok := out["conversation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), conversation["total_turns"])
}

func TestSnapshotExcludesMessageBodies(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, map[string]string{"initial_message": "you have won a lottery prize, claim now"})

	resp, out := doJSON(t, ts, http.MethodGet, "/session/"+id, apiKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, out["session_id"])
	assert.Equal(t, "engaged", out["status"])
	assert.Equal(t, float64(1), out["turns"])
	assert.NotContains(t, out, "messages")
}

func TestUnknownSessionIs404(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, ts, http.MethodGet, "/session/ses_missing/intelligence", apiKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClosedSessionIs409(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, nil)
	resp, _ := doJSON(t, ts, http.MethodPost, fmt.Sprintf("/session/%s/terminate", id), apiKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodPost, fmt.Sprintf("/session/%s/message", id), apiKey,
		map[string]string{"message": "hello?"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEmptyMessageIs400(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, nil)
	resp, _ := doJSON(t, ts, http.MethodPost, fmt.Sprintf("/session/%s/message", id), apiKey,
		map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInsecureCallbackRejectedByDefault(t *testing.T) {
	stub := responder.NewStub()
	m := manager.New(manager.Deps{
		Store:        store.NewInMemoryStore(),
		Orchestrator: agent.New(stub, persona.NewRegistry()),
	})
	t.Cleanup(m.Close)
	ts := httptest.NewServer(New(m, []string{apiKey}).Router())
	t.Cleanup(ts.Close)

	resp, out := doJSON(t, ts, http.MethodPost, "/session/create", apiKey,
		map[string]string{"callback_url": "http://intel.example.com/cb"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "callback_url")
}

func TestAdmissionCapIs429(t *testing.T) {
	stub := responder.NewStub()
	capped := manager.New(manager.Deps{
		Store:        store.NewInMemoryStore(),
		Orchestrator: agent.New(stub, persona.NewRegistry()),
		Admission:    admission.New(admission.Options{MaxConcurrentSessions: 1}),
	})
	t.Cleanup(capped.Close)
	ts := httptest.NewServer(New(capped, []string{apiKey}).Router())
	t.Cleanup(ts.Close)

	resp, _ := doJSON(t, ts, http.MethodPost, "/session/create", apiKey, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, ts, http.MethodPost, "/session/create", apiKey, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestForeignCredentialIs404(t *testing.T) {
	stub := responder.NewStub()
	m := manager.New(manager.Deps{
		Store:        store.NewInMemoryStore(),
		Orchestrator: agent.New(stub, persona.NewRegistry()),
	})
	t.Cleanup(m.Close)
	ts := httptest.NewServer(New(m, []string{apiKey, "other-key"}).Router())
	t.Cleanup(ts.Close)

	id := createSession(t, ts, nil)
	resp, _ := doJSON(t, ts, http.MethodGet, fmt.Sprintf("/session/%s/intelligence", id), "other-key", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode,
		"a session owned by another credential must be indistinguishable from a missing one")
}
