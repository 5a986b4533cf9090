// Package engine drives one chat turn through the reasoning upstream and then
// the synthesis upstream, either as two blocking calls or as a single stream
// of unified events.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/normalize"
	"github.com/tjfontaine/reasoning-relay/internal/pricing"
	"github.com/tjfontaine/reasoning-relay/internal/tokens"
)

// DefaultHeartbeatInterval is the idle time after which a heartbeat is emitted.
const DefaultHeartbeatInterval = 15 * time.Second

const tracerName = "github.com/tjfontaine/reasoning-relay/internal/engine"

// Option configures the engine.
type Option func(*Engine)

// WithMode sets the forward mode.
func WithMode(m ForwardMode) Option {
	return func(e *Engine) {
		e.mode = m
	}
}

// WithHeartbeatInterval sets the streaming heartbeat interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.heartbeat = d
	}
}

// WithPricing sets the pricing table.
func WithPricing(t *pricing.Table) Option {
	return func(e *Engine) {
		e.pricing = t
	}
}

// WithEstimator sets the token estimator used when an upstream omits usage.
func WithEstimator(est domain.TokenEstimator) Option {
	return func(e *Engine) {
		e.estimator = est
	}
}

// WithNormalizer sets the message normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(e *Engine) {
		e.normalizer = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithObserver registers a state transition observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// Engine is immutable after New and safe for concurrent turns.
type Engine struct {
	reasoning  domain.ReasoningProvider
	synthesis  domain.SynthesisProvider
	mode       ForwardMode
	heartbeat  time.Duration
	pricing    *pricing.Table
	estimator  domain.TokenEstimator
	normalizer *normalize.Normalizer
	logger     *slog.Logger
	tracer     trace.Tracer
	observer   Observer
}

// New creates an engine over the two upstream providers.
func New(reasoning domain.ReasoningProvider, synthesis domain.SynthesisProvider, opts ...Option) *Engine {
	e := &Engine{
		reasoning: reasoning,
		synthesis: synthesis,
		mode:      ModeNormal,
		heartbeat: DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pricing == nil {
		e.pricing = pricing.DefaultTable()
	}
	if e.estimator == nil {
		e.estimator = tokens.NewCounter()
	}
	if e.normalizer == nil {
		e.normalizer = normalize.New("")
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.heartbeat <= 0 {
		e.heartbeat = DefaultHeartbeatInterval
	}
	return e
}

// Mode returns the configured forward mode.
func (e *Engine) Mode() ForwardMode {
	return e.mode
}

// Models returns the default model ids of both upstreams, when known.
func (e *Engine) Models() (reasoning, synthesis string) {
	return modelOf(e.reasoning), modelOf(e.synthesis)
}

type modeler interface {
	Model() string
}

func modelOf(p any) string {
	if m, ok := p.(modeler); ok {
		return m.Model()
	}
	return ""
}

// Turn is one client request.
type Turn struct {
	// ID identifies the turn in logs; generated when empty.
	ID              string
	Messages        []domain.Message
	System          *string
	ReasoningKey    string
	SynthesisKey    string
	ReasoningConfig domain.UpstreamConfig
	SynthesisConfig domain.UpstreamConfig
}

// Result is a completed turn.
type Result struct {
	ID        string
	Reasoning domain.ReasoningResult
	Synthesis domain.SynthesisResult
	// ReasoningContent is the reasoning shown to the client. In full mode it
	// ends with the draft answer.
	ReasoningContent string
	// Handoff is the wrapped message given to the synthesis upstream.
	Handoff        string
	Usage          domain.TurnUsage
	UsageEstimated bool
	Cost           pricing.Cost
	Duration       time.Duration
}

// Validate checks the turn's messages without contacting any upstream.
func (e *Engine) Validate(t *Turn) error {
	_, err := e.normalizer.Normalize(t.Messages, t.System)
	return err
}

func (e *Engine) newRun(t *Turn) *run {
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &run{
		id:       id,
		state:    StateIdle,
		started:  time.Now(),
		logger:   e.logger,
		observer: e.observer,
	}
}

// Complete runs the turn as two blocking upstream calls.
func (e *Engine) Complete(ctx context.Context, t *Turn) (*Result, error) {
	r := e.newRun(t)

	norm, err := e.normalizer.Normalize(t.Messages, t.System)
	if err != nil {
		return nil, e.fail(r, err)
	}

	r.to(StateDrainingReasoning)
	rctx, span := e.tracer.Start(ctx, "engine.reasoning")
	rr, err := e.reasoning.Reason(rctx, &domain.ReasoningRequest{
		APIKey:   t.ReasoningKey,
		Messages: norm.Messages,
		Config:   t.ReasoningConfig,
	})
	if rr != nil {
		spanModel(span, rr.Model)
	}
	endSpan(span, err)
	if err != nil {
		return nil, e.fail(r, err)
	}
	if strings.TrimSpace(rr.ReasoningText) == "" {
		return nil, e.fail(r, domain.ErrMissingReasoning())
	}
	if rr.Model == "" {
		rr.Model = modelOf(e.reasoning)
	}

	r.to(StateComposingHandoff)
	handoff := ComposeHandoff(rr.ReasoningText, rr.DraftText, e.mode)
	augmented := withHandoff(norm.Messages, handoff)

	r.to(StateDrainingSynthesis)
	sctx, span := e.tracer.Start(ctx, "engine.synthesis")
	sr, err := e.synthesis.Synthesize(sctx, &domain.SynthesisRequest{
		APIKey:   t.SynthesisKey,
		System:   norm.System,
		Messages: augmented,
		Config:   t.SynthesisConfig,
	})
	if sr != nil {
		spanModel(span, sr.Model)
	}
	endSpan(span, err)
	if err != nil {
		return nil, e.fail(r, err)
	}
	if sr.Model == "" {
		sr.Model = modelOf(e.synthesis)
	}

	res := e.complete(r, norm.Messages, augmented, rr, sr, handoff)
	return res, nil
}

// complete fills usage and cost and moves the run to Completed.
func (e *Engine) complete(r *run, reasoningIn, synthesisIn []domain.Message, rr *domain.ReasoningResult, sr *domain.SynthesisResult, handoff string) *Result {
	estimated := e.estimateReasoning(reasoningIn, rr)
	if e.estimateSynthesis(synthesisIn, sr) {
		estimated = true
	}

	usage := domain.TurnUsage{
		ReasoningModel: rr.Model,
		SynthesisModel: sr.Model,
		Reasoning:      rr.Usage,
		Synthesis:      sr.Usage,
	}
	res := &Result{
		ID:               r.id,
		Reasoning:        *rr,
		Synthesis:        *sr,
		ReasoningContent: rr.ReasoningText + draftSuffix(rr.DraftText, e.mode),
		Handoff:          handoff,
		Usage:            usage,
		UsageEstimated:   estimated,
		Cost:             e.pricing.TurnCost(usage),
		Duration:         time.Since(r.started),
	}

	r.to(StateCompleted)
	e.logger.Info("turn completed",
		slog.String("turn_id", r.id),
		slog.String("mode", string(e.mode)),
		slog.String("reasoning_model", usage.ReasoningModel),
		slog.String("synthesis_model", usage.SynthesisModel),
		slog.Int("prompt_tokens", usage.PromptTokens()),
		slog.Int("completion_tokens", usage.CompletionTokens()),
		slog.Bool("usage_estimated", estimated),
		slog.Float64("cost_usd", res.Cost.Total),
		slog.Duration("duration", res.Duration),
	)
	return res
}

// fail moves the run to Failed and returns the canonical error.
func (e *Engine) fail(r *run, err error) *domain.APIError {
	apiErr := domain.AsAPIError(err)
	r.to(StateFailed)
	e.logger.Warn("turn failed",
		slog.String("turn_id", r.id),
		slog.String("error_type", string(apiErr.Type)),
		slog.String("upstream", string(apiErr.Upstream)),
		slog.String("error", apiErr.Message),
	)
	return apiErr
}

func withHandoff(messages []domain.Message, handoff string) []domain.Message {
	out := make([]domain.Message, 0, len(messages)+1)
	out = append(out, messages...)
	return append(out, domain.Message{Role: domain.RoleAssistant, Content: handoff})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) countMessages(model string, messages []domain.Message) int {
	n := 0
	for _, m := range messages {
		n += e.estimator.CountText(model, m.Content)
	}
	return n
}

// estimateReasoning fills reasoning usage the upstream did not report.
func (e *Engine) estimateReasoning(messages []domain.Message, rr *domain.ReasoningResult) bool {
	if rr.Usage != (domain.ReasoningUsage{}) {
		return false
	}
	rr.Usage.InputTokens = e.countMessages(rr.Model, messages)
	rr.Usage.ReasoningTokens = e.estimator.CountText(rr.Model, rr.ReasoningText)
	rr.Usage.OutputTokens = rr.Usage.ReasoningTokens + e.estimator.CountText(rr.Model, rr.DraftText)
	return true
}

// estimateSynthesis fills synthesis usage the upstream did not report.
func (e *Engine) estimateSynthesis(messages []domain.Message, sr *domain.SynthesisResult) bool {
	if sr.Usage != (domain.SynthesisUsage{}) {
		return false
	}
	sr.Usage.InputTokens = e.countMessages(sr.Model, messages)
	sr.Usage.OutputTokens = e.estimator.CountText(sr.Model, sr.Text)
	return true
}

func spanModel(span trace.Span, model string) {
	if model != "" {
		span.SetAttributes(attribute.String("llm.model", model))
	}
}
