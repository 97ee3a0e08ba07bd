// Package manager owns the session lifecycle. It serializes all mutation of
// a session behind a per-session lock, runs classification and extraction on
// every inbound turn, activates persona engagement when confidence crosses
// the threshold, and hands the final report to the delivery dispatcher on
// termination. Reply generation runs outside the lock so a slow provider
// never blocks other activity on the session's peers.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/intelhive/intelhive/admission"
	"github.com/intelhive/intelhive/agent"
	"github.com/intelhive/intelhive/classify"
	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/extract"
	"github.com/intelhive/intelhive/logging"
)

// ReportSink receives the frozen report of a terminated session, exactly
// once per session. The dispatcher implements it.
type ReportSink interface {
	Enqueue(report *core.Report)
}

type noopSink struct{}

func (noopSink) Enqueue(*core.Report) {}

// Config tunes lifecycle behavior.
type Config struct {
	// ActivationThreshold is the classification confidence at which a
	// monitoring session engages.
	ActivationThreshold float64
	// MaxMonitoringTurns terminates sessions that never show scam intent
	// after this many counterparty turns.
	MaxMonitoringTurns int
	// MaxSessionTurns caps total counterparty turns per session.
	MaxSessionTurns int
	// IdleTimeout terminates sessions with no activity for this long.
	IdleTimeout time.Duration
	// SweepInterval is how often the idle sweeper runs.
	SweepInterval time.Duration
	// MonitoringReplies are non-committal acknowledgments sent while a
	// session is still monitoring, rotated by turn. Empty means no reply
	// before activation, which is the default policy.
	MonitoringReplies []string
	// Logger receives lifecycle events.
	Logger logging.Logger
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Store        core.SessionStore
	Classifier   *classify.Classifier
	Extractor    *extract.Extractor
	Orchestrator *agent.Orchestrator
	Admission    *admission.Controller
	Sink         ReportSink
}

// entry is the in-memory home of one active session. The mutex serializes
// every mutation; genCancel, when set, aborts an in-flight reply generation.
type entry struct {
	mu        sync.Mutex
	sess      *core.Session
	report    *core.Report
	genCancel context.CancelFunc
}

// Manager coordinates sessions from creation to termination.
type Manager struct {
	cfg          Config
	store        core.SessionStore
	classifier   *classify.Classifier
	extractor    *extract.Extractor
	orchestrator *agent.Orchestrator
	admission    *admission.Controller
	sink         ReportSink
	logger       logging.Logger

	mu      sync.RWMutex
	entries map[string]*entry

	stopCh    chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// New constructs a Manager and starts its idle sweeper.
func New(deps Deps, optFns ...func(c *Config)) *Manager {
	cfg := Config{
		ActivationThreshold: 0.7,
		MaxMonitoringTurns:  5,
		MaxSessionTurns:     60,
		IdleTimeout:         10 * time.Minute,
		SweepInterval:       time.Minute,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&cfg)
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New()
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New()
	}
	if deps.Admission == nil {
		deps.Admission = admission.New(admission.Options{})
	}
	if deps.Sink == nil {
		deps.Sink = noopSink{}
	}

	m := &Manager{
		cfg:          cfg,
		store:        deps.Store,
		classifier:   deps.Classifier,
		extractor:    deps.Extractor,
		orchestrator: deps.Orchestrator,
		admission:    deps.Admission,
		sink:         deps.Sink,
		logger:       cfg.Logger,
		entries:      make(map[string]*entry),
		stopCh:       make(chan struct{}),
		sweepDone:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// CreateSessionInput carries the parameters of a session creation.
type CreateSessionInput struct {
	Credential     string
	CallbackURL    string
	InitialMessage string
}

// CreateSession admits and registers a new session. An initial message, when
// present, is classified like any inbound turn and may activate the session
// immediately, but no agent reply is produced for it.
func (m *Manager) CreateSession(ctx context.Context, in CreateSessionInput) (*core.Session, error) {
	if strings.TrimSpace(in.Credential) == "" {
		return nil, core.NewValidationError("credential", "must not be empty")
	}
	if err := m.admission.AdmitSession(); err != nil {
		return nil, err
	}
	if in.InitialMessage != "" {
		if err := m.admission.AllowMessage(in.Credential); err != nil {
			m.admission.ReleaseSession()
			return nil, err
		}
	}

	sess := core.NewSession(in.Credential)
	sess.CallbackURL = in.CallbackURL

	if in.InitialMessage != "" {
		msg := sess.Append(core.SenderCounterparty, in.InitialMessage)
		sess.Classification = m.classifier.Classify(sess.Classification, in.InitialMessage, msg.TurnIndex)
		m.maybeActivate(sess)
		if sess.Status == core.StatusEngaged {
			sess.AddEntities(m.extractor.Extract(in.InitialMessage, msg.TurnIndex))
		}
	}

	if err := m.store.Save(ctx, sess); err != nil {
		m.admission.ReleaseSession()
		return nil, fmt.Errorf("persist new session: %w", err)
	}

	m.mu.Lock()
	m.entries[sess.ID] = &entry{sess: sess}
	m.mu.Unlock()

	m.logger.Info("session created",
		"session_id", sess.ID, "status", string(sess.Status),
		"category", string(sess.Classification.Category))
	return sess.Clone(), nil
}

// SubmitResult is the outcome of processing one inbound message.
type SubmitResult struct {
	SessionID string      `json:"session_id"`
	Status    core.Status `json:"status"`
	Reply     string      `json:"reply,omitempty"`
}

// SubmitMessage processes one counterparty turn: classification, possible
// activation, entity extraction, and the agent's reply. Turns on the same
// session are handled strictly in receipt order.
func (m *Manager) SubmitMessage(ctx context.Context, credential, sessionID, content string) (*SubmitResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, core.NewValidationError("message", "must not be empty")
	}
	e, err := m.entry(credential, sessionID)
	if err != nil {
		return nil, err
	}
	if err := m.admission.AllowMessage(credential); err != nil {
		return nil, err
	}

	e.mu.Lock()
	sess := e.sess
	if !sess.Status.Active() {
		e.mu.Unlock()
		return nil, core.ErrSessionClosed
	}

	msg := sess.Append(core.SenderCounterparty, content)
	sess.Classification = m.classifier.Classify(sess.Classification, content, msg.TurnIndex)
	m.maybeActivate(sess)
	if sess.Status == core.StatusEngaged {
		sess.AddEntities(m.extractor.Extract(content, msg.TurnIndex))
	}

	turns := sess.CounterpartyTurns()
	if turns >= m.cfg.MaxSessionTurns {
		m.terminateLocked(e, "session turn cap reached")
		e.mu.Unlock()
		return &SubmitResult{SessionID: sess.ID, Status: core.StatusTerminated}, nil
	}
	if sess.Status == core.StatusMonitoring && turns >= m.cfg.MaxMonitoringTurns {
		m.terminateLocked(e, "no scam intent after monitoring window")
		e.mu.Unlock()
		return &SubmitResult{SessionID: sess.ID, Status: core.StatusTerminated}, nil
	}

	if sess.Status == core.StatusMonitoring {
		result := &SubmitResult{SessionID: sess.ID, Status: sess.Status}
		if len(m.cfg.MonitoringReplies) > 0 {
			result.Reply = m.cfg.MonitoringReplies[msg.TurnIndex%len(m.cfg.MonitoringReplies)]
			sess.Append(core.SenderAgent, result.Reply)
		}
		m.persist(sess)
		e.mu.Unlock()
		return result, nil
	}

	// Engaged: generate the reply off the lock with a session-scoped
	// context so Terminate can abort it.
	p, ok := m.orchestrator.Persona(sess.Persona)
	if !ok {
		p = m.orchestrator.SelectPersona(sess.Classification.Category)
		sess.Persona = p.ID
	}
	history := sess.Clone().Messages
	m.persist(sess)
	genCtx, cancel := context.WithCancel(context.Background())
	e.genCancel = cancel
	e.mu.Unlock()

	reply, replied := m.orchestrator.Reply(genCtx, p, history)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.genCancel = nil
	if !replied || !sess.Status.Active() {
		// Terminated while generating; the stale reply is discarded.
		return nil, core.ErrSessionClosed
	}
	sess.Append(core.SenderAgent, reply)
	m.persist(sess)
	return &SubmitResult{SessionID: sess.ID, Status: sess.Status, Reply: reply}, nil
}

// Intelligence is a consistent snapshot of what a session has gathered.
type Intelligence struct {
	Status core.Status  `json:"status"`
	Report *core.Report `json:"report"`
}

// GetIntelligence returns the session's current classification, extracted
// entities and conversation summary. Works for every lifecycle state.
func (m *Manager) GetIntelligence(ctx context.Context, credential, sessionID string) (*Intelligence, error) {
	sess, report, err := m.snapshot(ctx, credential, sessionID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		report = core.BuildReport(sess)
	}
	return &Intelligence{Status: sess.Status, Report: report}, nil
}

// GetSession returns a clone of the full session aggregate.
func (m *Manager) GetSession(ctx context.Context, credential, sessionID string) (*core.Session, error) {
	sess, _, err := m.snapshot(ctx, credential, sessionID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Terminate ends the session and hands its report to the sink. Idempotent:
// terminating an already-terminated session returns the same report content
// without enqueueing a second delivery.
func (m *Manager) Terminate(ctx context.Context, credential, sessionID string) (*core.Report, error) {
	m.mu.RLock()
	e, ok := m.entries[sessionID]
	m.mu.RUnlock()

	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.sess.Credential != credential {
			return nil, core.ErrNotFound
		}
		if e.sess.Status.Terminal() {
			return e.report, nil
		}
		m.terminateLocked(e, "terminated by operator")
		return e.report, nil
	}

	// Not in memory: either already terminated or lost to a restart.
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Credential != credential {
		return nil, core.ErrNotFound
	}
	if sess.Status.Terminal() {
		return core.BuildReport(sess), nil
	}
	// Active in the store without an in-memory entry: finalize directly.
	now := time.Now().UTC()
	sess.Status = core.StatusTerminated
	sess.EndedAt = &now
	sess.Callback = &core.CallbackRecord{LastOutcome: core.DeliveryPending}
	report := core.BuildReport(sess)
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist terminated session: %w", err)
	}
	m.sink.Enqueue(report)
	return report, nil
}

// Close stops the idle sweeper. Active sessions stay persisted; they are not
// auto-terminated on shutdown.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCh)
		<-m.sweepDone
	})
}

// maybeActivate flips a monitoring session to engaged once the leading
// confidence crosses the threshold, fixing the persona for the session's
// lifetime.
func (m *Manager) maybeActivate(sess *core.Session) {
	if sess.Status != core.StatusMonitoring {
		return
	}
	if sess.Classification.Confidence < m.cfg.ActivationThreshold {
		return
	}
	p := m.orchestrator.SelectPersona(sess.Classification.Category)
	sess.Status = core.StatusEngaged
	sess.Persona = p.ID
	m.logger.Info("session engaged",
		"session_id", sess.ID,
		"category", string(sess.Classification.Category),
		"confidence", sess.Classification.Confidence,
		"persona", p.ID)
}

// terminateLocked finalizes the session. Caller holds e.mu.
func (m *Manager) terminateLocked(e *entry, reason string) {
	sess := e.sess
	now := time.Now().UTC()
	sess.Status = core.StatusTerminated
	sess.EndedAt = &now
	sess.Callback = &core.CallbackRecord{LastOutcome: core.DeliveryPending}
	e.report = core.BuildReport(sess)

	if e.genCancel != nil {
		e.genCancel()
		e.genCancel = nil
	}
	m.persist(sess)

	m.mu.Lock()
	delete(m.entries, sess.ID)
	m.mu.Unlock()
	m.admission.ReleaseSession()

	m.logger.Info("session terminated",
		"session_id", sess.ID, "reason", reason,
		"category", string(sess.Classification.Category),
		"turns", sess.CounterpartyTurns())
	m.sink.Enqueue(e.report)
}

// entry resolves an active session owned by the credential. A foreign
// credential gets ErrNotFound so session existence does not leak.
func (m *Manager) entry(credential, sessionID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[sessionID]
	m.mu.RUnlock()
	if !ok {
		// Terminated sessions are no longer in memory but still stored.
		sess, err := m.store.Get(context.Background(), sessionID)
		if err != nil {
			return nil, core.ErrNotFound
		}
		if sess.Credential != credential {
			return nil, core.ErrNotFound
		}
		if sess.Status.Terminal() {
			return nil, core.ErrSessionClosed
		}
		// Active in the store but not in memory: a restart dropped the
		// entry. Re-adopt under a fresh admission slot.
		if err := m.admission.AdmitSession(); err != nil {
			return nil, err
		}
		m.mu.Lock()
		if existing, stillOk := m.entries[sessionID]; stillOk {
			m.mu.Unlock()
			m.admission.ReleaseSession()
			return existing, nil
		}
		e = &entry{sess: sess}
		m.entries[sessionID] = e
		m.mu.Unlock()
		return e, nil
	}
	if e.sess.Credential != credential {
		return nil, core.ErrNotFound
	}
	return e, nil
}

// snapshot returns an isolated copy of the session, preferring the live
// in-memory aggregate, plus the frozen report when one exists.
func (m *Manager) snapshot(ctx context.Context, credential, sessionID string) (*core.Session, *core.Report, error) {
	m.mu.RLock()
	e, ok := m.entries[sessionID]
	m.mu.RUnlock()
	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.sess.Credential != credential {
			return nil, nil, core.ErrNotFound
		}
		return e.sess.Clone(), e.report, nil
	}
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Credential != credential {
		return nil, nil, core.ErrNotFound
	}
	var report *core.Report
	if sess.Status.Terminal() {
		report = core.BuildReport(sess)
	}
	return sess, report, nil
}

// sweep terminates sessions that have been idle past the timeout.
func (m *Manager) sweep() {
	defer close(m.sweepDone)
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepOnce(time.Now().UTC())
		}
	}
}

func (m *Manager) sweepOnce(now time.Time) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.sess.Status.Active() && now.Sub(e.sess.LastActivityAt) >= m.cfg.IdleTimeout {
			m.terminateLocked(e, "idle timeout")
		}
		e.mu.Unlock()
	}
}

// persist writes the aggregate through to the store. While a session is
// active the in-memory copy stays authoritative, so a write failure is
// logged but does not fail the conversation.
func (m *Manager) persist(sess *core.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.store.Save(ctx, sess.Clone()); err != nil {
		m.logger.Error("session persistence failed", "session_id", sess.ID, "error", err)
	}
}
