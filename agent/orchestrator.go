// Package agent drives persona-based engagement. The orchestrator selects a
// victim persona when a session activates, builds generation requests from
// the ordered turn history, and invokes the external reply-generation
// capability. Generation failure is recovered locally: one retry with
// backoff, then an in-persona holding reply. The counterparty must never see
// a system failure.
package agent

import (
	"context"
	"time"

	"github.com/intelhive/intelhive/core"
	"github.com/intelhive/intelhive/logging"
	"github.com/intelhive/intelhive/persona"
	"github.com/intelhive/intelhive/responder"
)

// Options configure orchestrator construction.
type Options struct {
	// RetryBackoff is the pause before the single generation retry.
	RetryBackoff time.Duration
	// Timeout bounds each individual generation call.
	Timeout time.Duration
	// Logger receives recovered generation failures.
	Logger logging.Logger
}

// Orchestrator composes persona selection and reply generation.
type Orchestrator struct {
	generator    responder.Generator
	personas     *persona.Registry
	retryBackoff time.Duration
	timeout      time.Duration
	logger       logging.Logger
}

// New constructs an Orchestrator.
func New(generator responder.Generator, personas *persona.Registry, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		RetryBackoff: 2 * time.Second,
		Timeout:      30 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		generator:    generator,
		personas:     personas,
		retryBackoff: opts.RetryBackoff,
		timeout:      opts.Timeout,
		logger:       opts.Logger,
	}
}

// SelectPersona picks the victim profile for a freshly activated session.
func (o *Orchestrator) SelectPersona(category core.Category) persona.Persona {
	return o.personas.SelectFor(category)
}

// Persona returns a registered persona by id, used when resuming sessions
// that already activated.
func (o *Orchestrator) Persona(id string) (persona.Persona, bool) {
	return o.personas.Get(id)
}

// Reply produces the agent's next turn for an engaged session. It never
// returns an error: after one retry the persona's holding reply is used.
// A cancelled context (session terminated mid-flight) returns ok=false and
// the caller discards the result.
func (o *Orchestrator) Reply(ctx context.Context, p persona.Persona, history []core.Message) (string, bool) {
	prompt, err := p.SystemPrompt()
	if err != nil {
		o.logger.Error("persona prompt rendering failed", "persona", p.ID, "error", err)
		return p.HoldingReply(len(history)), true
	}
	req := responder.Request{SystemPrompt: prompt, History: history}

	reply, err := o.generateOnce(ctx, req)
	if err == nil {
		return reply, true
	}
	if ctx.Err() != nil {
		return "", false
	}
	o.logger.Warn("reply generation failed, retrying once",
		"persona", p.ID, "provider", o.generator.Info().Provider, "error", err)

	select {
	case <-ctx.Done():
		return "", false
	case <-time.After(o.retryBackoff):
	}

	reply, err = o.generateOnce(ctx, req)
	if err == nil {
		return reply, true
	}
	if ctx.Err() != nil {
		return "", false
	}
	o.logger.Warn("reply generation failed twice, using holding reply",
		"persona", p.ID, "error", err)
	return p.HoldingReply(len(history)), true
}

func (o *Orchestrator) generateOnce(ctx context.Context, req responder.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	start := time.Now()
	reply, err := o.generator.Generate(callCtx, req)
	if err != nil {
		o.logger.Debug("generation call failed",
			"provider", o.generator.Info().Provider,
			"duration", time.Since(start), "error", err)
		return "", err
	}
	return reply, nil
}
