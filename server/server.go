// Package server exposes the engine over HTTP: session creation, message
// submission, intelligence retrieval and termination, guarded by API-key
// authentication.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/logging"
	"github.com/intelhive/intelhive/manager"
)

// Options configure the HTTP layer.
type Options struct {
	// DefaultCallbackURL is used when a session is created without one.
	DefaultCallbackURL string
	// AllowInsecureCallback accepts plain-http callback URLs.
	AllowInsecureCallback bool
	// Logger receives request-level errors.
	Logger logging.Logger
}

// Server routes HTTP requests into the session manager.
type Server struct {
	manager       *manager.Manager
	apiKeys       []string
	defaultURL    string
	allowInsecure bool
	logger        logging.Logger
}

// New constructs a Server authenticating against the given API keys.
func New(m *manager.Manager, apiKeys []string, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{
		manager:       m,
		apiKeys:       apiKeys,
		defaultURL:    opts.DefaultCallbackURL,
		allowInsecure: opts.AllowInsecureCallback,
		logger:        opts.Logger,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/session/create", s.handleCreate)
		r.Post("/session/{id}/message", s.handleMessage)
		r.Get("/session/{id}/intelligence", s.handleIntelligence)
		r.Post("/session/{id}/terminate", s.handleTerminate)
		r.Get("/session/{id}", s.handleSnapshot)
	})
	return r
}

type contextKey string

const credentialKey contextKey = "credential"

func contextWithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialKey, credential)
}

func credentialFrom(ctx context.Context) string {
	credential, _ := ctx.Value(credentialKey).(string)
	return credential
}

// authenticate checks the API key before anything else touches the request.
// Both X-API-Key and a bearer token are accepted.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				key = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if !s.validKey(key) {
			respondJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or missing API key"})
			return
		}
		ctx := contextWithCredential(r.Context(), key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) validKey(key string) bool {
	if key == "" {
		return false
	}
	ok := false
	for _, candidate := range s.apiKeys {
		if len(candidate) == len(key) &&
			subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

type createRequest struct {
	InitialMessage string `json:"initial_message,omitempty"`
	CallbackURL    string `json:"callback_url,omitempty"`
}

type createResponse struct {
	SessionID      string        `json:"session_id"`
	Status         core.Status   `json:"status"`
	Classification core.Category `json:"classification"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = s.defaultURL
	}
	if err := s.checkCallbackURL(callback); err != nil {
		respondError(w, err)
		return
	}

	sess, err := s.manager.CreateSession(r.Context(), manager.CreateSessionInput{
		Credential:     credentialFrom(r.Context()),
		CallbackURL:    callback,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, createResponse{
		SessionID:      sess.ID,
		Status:         sess.Status,
		Classification: sess.Classification.Category,
	})
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	res, err := s.manager.SubmitMessage(r.Context(), credentialFrom(r.Context()), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleIntelligence(w http.ResponseWriter, r *http.Request) {
	intel, err := s.manager.GetIntelligence(r.Context(), credentialFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intel)
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.Terminate(r.Context(), credentialFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type snapshotResponse struct {
	SessionID      string      `json:"session_id"`
	Status         core.Status `json:"status"`
	Turns          int         `json:"turns"`
	CreatedAt      string      `json:"created_at"`
	LastActivityAt string      `json:"last_activity_at"`
}

// handleSnapshot returns session metadata without conversation content, for
// operator monitoring dashboards.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.GetSession(r.Context(), credentialFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshotResponse{
		SessionID:      sess.ID,
		Status:         sess.Status,
		Turns:          sess.CounterpartyTurns(),
		CreatedAt:      sess.CreatedAt.Format(time.RFC3339),
		LastActivityAt: sess.LastActivityAt.Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) checkCallbackURL(callback string) error {
	if callback == "" {
		return nil
	}
	u, err := url.Parse(callback)
	if err != nil {
		return core.NewValidationError("callback_url", "not a valid URL")
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if !s.allowInsecure {
			return core.NewValidationError("callback_url", "must use https")
		}
		return nil
	default:
		return core.NewValidationError("callback_url", "must use https")
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// respondError maps domain errors onto HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error()})
	case errors.Is(err, core.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: "session not found"})
	case errors.Is(err, core.ErrSessionClosed):
		respondJSON(w, http.StatusConflict, errorBody{Error: "session closed"})
	case errors.Is(err, core.ErrAdmissionRejected), errors.Is(err, core.ErrRateLimited):
		respondJSON(w, http.StatusTooManyRequests, errorBody{Error: err.Error()})
	default:
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON parses the request body. An empty body decodes to the zero
// value so endpoints with all-optional fields work without one.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return core.NewValidationError("body", "malformed JSON")
	}
	return nil
}
