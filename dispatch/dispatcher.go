// Package dispatch delivers final session reports to the configured callback
// endpoint. Delivery is at-least-once: attempts and outcomes are persisted on
// the session's callback record, and undelivered reports are re-enqueued from
// the store after a restart.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/logging"
)

// Options configure a Dispatcher.
type Options struct {
	// BaseDelay is the wait after the first failed attempt. Each further
	// failure doubles it, capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps the backoff interval.
	MaxDelay time.Duration
	// MaxAttempts bounds delivery attempts before the report is marked
	// permanently failed.
	MaxAttempts int
	// RequireHTTPS rejects plain-http callback URLs as a permanent
	// failure. Disable only for local development.
	RequireHTTPS bool
	// HTTPClient overrides the delivery client.
	HTTPClient *http.Client
	// Logger receives delivery attempt outcomes.
	Logger logging.Logger
}

// deliveryLogger is satisfied by *logging.HiveLogger; when available the
// dispatcher uses its structured per-attempt record.
type deliveryLogger interface {
	LogDeliveryAttempt(sessionID string, attempt int, status int, err error)
}

// Dispatcher runs one delivery sequence per terminated session. The
// dispatcher is the only writer of a session after termination, so it may
// hold its own copy of the aggregate across attempts.
type Dispatcher struct {
	store       core.SessionStore
	client      *http.Client
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	requireTLS  bool
	logger      logging.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	stopped  bool

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New constructs a Dispatcher persisting delivery state in store.
func New(store core.SessionStore, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		BaseDelay:    time.Second,
		MaxDelay:     2 * time.Minute,
		MaxAttempts:  6,
		RequireHTTPS: true,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Dispatcher{
		store:       store,
		client:      client,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		maxAttempts: opts.MaxAttempts,
		requireTLS:  opts.RequireHTTPS,
		logger:      opts.Logger,
		inflight:    make(map[string]struct{}),
		stopCh:      make(chan struct{}),
	}
}

// Enqueue starts the delivery sequence for a report. A session with a
// sequence already in flight is skipped, so Terminate and Resume can both
// call Enqueue without risking duplicate sequences.
func (d *Dispatcher) Enqueue(report *core.Report) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if _, ok := d.inflight[report.SessionID]; ok {
		d.mu.Unlock()
		return
	}
	d.inflight[report.SessionID] = struct{}{}
	d.mu.Unlock()

	d.wg.Add(1)
	go d.deliver(report)
}

// Resume re-enqueues every terminated session whose report has not reached a
// terminal delivery outcome. Call once at startup, after the store is open.
func (d *Dispatcher) Resume(ctx context.Context) error {
	sessions, err := d.store.ListByStatus(ctx, core.StatusTerminated)
	if err != nil {
		return fmt.Errorf("list terminated sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.Callback != nil && sess.Callback.LastOutcome == core.DeliveryDelivered {
			continue
		}
		d.logger.Info("resuming report delivery", "session_id", sess.ID)
		d.Enqueue(core.BuildReport(sess))
	}
	return nil
}

// Close stops accepting new reports and waits for in-flight sequences to
// park their state. Interrupted sequences are picked up by Resume.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stopCh)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(report *core.Report) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, report.SessionID)
		d.mu.Unlock()
	}()

	sess, err := d.load(report.SessionID)
	if err != nil {
		d.logger.Error("cannot load session for delivery", "session_id", report.SessionID, "error", err)
		return
	}
	if sess.Callback == nil {
		sess.Callback = &core.CallbackRecord{LastOutcome: core.DeliveryPending}
	}

	if sess.CallbackURL == "" {
		// Nothing to deliver; the report stays queryable via the API.
		d.finish(sess, core.DeliveryDelivered)
		return
	}
	if err := d.checkTarget(sess.CallbackURL); err != nil {
		d.logger.Warn("callback target rejected", "session_id", sess.ID, "error", err)
		d.finish(sess, core.DeliveryFailed)
		return
	}

	payload, err := json.Marshal(report)
	if err != nil {
		d.logger.Error("cannot marshal report", "session_id", sess.ID, "error", err)
		d.finish(sess, core.DeliveryFailed)
		return
	}

	for sess.Callback.Attempts < d.maxAttempts {
		sess.Callback.Attempts++
		now := time.Now().UTC()
		sess.Callback.LastAttemptAt = &now

		status, err := d.post(sess.CallbackURL, payload)
		d.logAttempt(sess.ID, sess.Callback.Attempts, status, err)

		if err == nil {
			d.finish(sess, core.DeliveryDelivered)
			return
		}
		if sess.Callback.Attempts >= d.maxAttempts {
			break
		}

		delay := d.backoff(sess.Callback.Attempts)
		next := now.Add(delay)
		sess.Callback.NextRetryAt = &next
		d.persist(sess)

		select {
		case <-d.stopCh:
			// State is persisted; Resume continues the sequence.
			return
		case <-time.After(delay):
		}
	}

	d.logger.Warn("report delivery permanently failed",
		"session_id", sess.ID, "attempts", sess.Callback.Attempts)
	d.finish(sess, core.DeliveryFailed)
}

// finish records the terminal delivery outcome and archives the session.
func (d *Dispatcher) finish(sess *core.Session, outcome core.DeliveryOutcome) {
	sess.Callback.LastOutcome = outcome
	sess.Callback.NextRetryAt = nil
	sess.Status = core.StatusArchived
	d.persist(sess)
}

func (d *Dispatcher) post(target string, payload []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("callback endpoint returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) checkTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid callback url: %w", err)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if d.requireTLS {
			return fmt.Errorf("plain-http callback url rejected: %s", target)
		}
		return nil
	default:
		return fmt.Errorf("unsupported callback scheme %q", u.Scheme)
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.maxDelay {
			return d.maxDelay
		}
	}
	if delay > d.maxDelay {
		return d.maxDelay
	}
	return delay
}

func (d *Dispatcher) persist(sess *core.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.store.Save(ctx, sess); err != nil {
		d.logger.Error("cannot persist delivery state", "session_id", sess.ID, "error", err)
	}
}

func (d *Dispatcher) load(id string) (*core.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.store.Get(ctx, id)
}

func (d *Dispatcher) logAttempt(sessionID string, attempt, status int, err error) {
	if dl, ok := d.logger.(deliveryLogger); ok {
		dl.LogDeliveryAttempt(sessionID, attempt, status, err)
		return
	}
	if err != nil {
		d.logger.Warn("report delivery attempt failed",
			"session_id", sessionID, "attempt", attempt, "status", status, "error", err)
		return
	}
	d.logger.Info("report delivered", "session_id", sessionID, "attempt", attempt)
}
