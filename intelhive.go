// Package intelhive provides a high-level façade over the session engine:
// classification, persona engagement, entity extraction and report delivery.
// Most applications interact with this package by:
//  1. Creating a Hive via New() (optionally overriding the store, generator
//     or lifecycle tuning)
//  2. Creating sessions and feeding them inbound messages
//  3. Terminating sessions (or letting the lifecycle caps do it) and
//     receiving the final report on the callback endpoint
//
// The façade delegates lifecycle orchestration to manager.Manager while
// keeping setup ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply the
// SQLite store, a real generation provider and a structured logger.
package intelhive

import (
	"context"

	"github.com/intelhive/intelhive/admission"
	"github.com/intelhive/intelhive/agent"
	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/dispatch"
	"github.com/intelhive/intelhive/logging"
	"github.com/intelhive/intelhive/manager"
	"github.com/intelhive/intelhive/persona"
	"github.com/intelhive/intelhive/responder"
	"github.com/intelhive/intelhive/store"
)

// Options configures the Hive instance.
type Options struct {
	// Lifecycle tuning (thresholds, turn caps, idle timeout).
	ManagerConfig []func(c *manager.Config)

	// Generator produces agent replies. Defaults to the deterministic stub.
	Generator responder.Generator

	// Personas available for engagement. Defaults to the built-in registry.
	Personas *persona.Registry

	// AgentOptions tune reply generation (retry backoff, per-call timeout).
	AgentOptions []func(o *agent.Options)

	// SessionStore persists session aggregates. Defaults to in-memory.
	SessionStore core.SessionStore

	// Admission caps concurrent sessions and per-credential message rates.
	Admission admission.Options

	// DispatchOptions tune report delivery (backoff, attempts, TLS policy).
	DispatchOptions []func(o *dispatch.Options)

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Hive is the high-level façade aggregating the session manager and the
// report dispatcher.
type Hive struct {
	manager    *manager.Manager
	dispatcher *dispatch.Dispatcher
	store      core.SessionStore
}

// New creates a Hive with optional overrides. Any unset collaborator is
// initialized with its in-memory or stub implementation.
func New(optFns ...func(o *Options)) *Hive {
	opts := Options{
		Generator:    responder.NewStub(),
		Personas:     persona.NewRegistry(),
		SessionStore: store.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	agentOpts := append([]func(o *agent.Options){func(o *agent.Options) {
		o.Logger = opts.Logger
	}}, opts.AgentOptions...)
	orchestrator := agent.New(opts.Generator, opts.Personas, agentOpts...)

	dispatchOpts := append([]func(o *dispatch.Options){func(o *dispatch.Options) {
		o.Logger = opts.Logger
	}}, opts.DispatchOptions...)
	dispatcher := dispatch.New(opts.SessionStore, dispatchOpts...)

	managerOpts := append([]func(c *manager.Config){func(c *manager.Config) {
		c.Logger = opts.Logger
	}}, opts.ManagerConfig...)
	m := manager.New(manager.Deps{
		Store:        opts.SessionStore,
		Orchestrator: orchestrator,
		Admission:    admission.New(opts.Admission),
		Sink:         dispatcher,
	}, managerOpts...)

	return &Hive{manager: m, dispatcher: dispatcher, store: opts.SessionStore}
}

// Manager exposes the session manager, e.g. to mount the HTTP server.
func (h *Hive) Manager() *manager.Manager { return h.manager }

// Store exposes the session store backing this instance.
func (h *Hive) Store() core.SessionStore { return h.store }

// CreateSession admits and registers a new honeypot session.
func (h *Hive) CreateSession(ctx context.Context, in manager.CreateSessionInput) (*core.Session, error) {
	return h.manager.CreateSession(ctx, in)
}

// SubmitMessage processes one inbound counterparty turn and returns the
// agent's reply.
func (h *Hive) SubmitMessage(ctx context.Context, credential, sessionID, content string) (*manager.SubmitResult, error) {
	return h.manager.SubmitMessage(ctx, credential, sessionID, content)
}

// GetIntelligence returns a consistent snapshot of what the session has
// gathered so far.
func (h *Hive) GetIntelligence(ctx context.Context, credential, sessionID string) (*manager.Intelligence, error) {
	return h.manager.GetIntelligence(ctx, credential, sessionID)
}

// Terminate ends a session and enqueues its report for delivery.
func (h *Hive) Terminate(ctx context.Context, credential, sessionID string) (*core.Report, error) {
	return h.manager.Terminate(ctx, credential, sessionID)
}

// Resume re-enqueues undelivered reports from the store. Call once at
// startup after a restart.
func (h *Hive) Resume(ctx context.Context) error {
	return h.dispatcher.Resume(ctx)
}

// Close stops the lifecycle sweeper and waits for in-flight report
// deliveries to park their state.
func (h *Hive) Close() {
	h.manager.Close()
	h.dispatcher.Close()
}
