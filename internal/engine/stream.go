package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

// emitter sends unified events and owns the heartbeat timer, which restarts
// on every successful send.
type emitter struct {
	ctx      context.Context
	out      chan<- domain.UnifiedEvent
	interval time.Duration
	timer    *time.Timer
}

func newEmitter(ctx context.Context, out chan<- domain.UnifiedEvent, interval time.Duration) *emitter {
	return &emitter{
		ctx:      ctx,
		out:      out,
		interval: interval,
		timer:    time.NewTimer(interval),
	}
}

func (em *emitter) emit(ev domain.UnifiedEvent) error {
	select {
	case em.out <- ev:
		em.timer.Reset(em.interval)
		return nil
	case <-em.ctx.Done():
		return em.ctx.Err()
	}
}

func (em *emitter) heartbeat() <-chan time.Time {
	return em.timer.C
}

func (em *emitter) stop() {
	em.timer.Stop()
}

// Stream runs the turn and sends its unified events to out, closing out on
// return. Events are role announce, reasoning deltas, content deltas, then
// Done carrying usage. A failure after the first event is sent as exactly one
// Error event. A validation failure is returned without emitting anything.
//
// Cancelling ctx abandons the turn and the upstream requests bound to it.
func (e *Engine) Stream(ctx context.Context, t *Turn, out chan<- domain.UnifiedEvent) (*Result, error) {
	defer close(out)

	r := e.newRun(t)

	norm, err := e.normalizer.Normalize(t.Messages, t.System)
	if err != nil {
		return nil, e.fail(r, err)
	}

	em := newEmitter(ctx, out, e.heartbeat)
	defer em.stop()

	r.to(StateDrainingReasoning)
	if err := em.emit(domain.UnifiedEvent{Kind: domain.EventRoleAnnounce}); err != nil {
		return nil, e.abandon(r, err)
	}

	rctx, span := e.tracer.Start(ctx, "engine.reasoning")
	rr, err := e.drainReasoning(rctx, em, t, norm.Messages)
	if rr != nil {
		spanModel(span, rr.Model)
	}
	endSpan(span, err)
	if err != nil {
		return nil, e.failStream(r, em, err)
	}
	if strings.TrimSpace(rr.ReasoningText) == "" {
		return nil, e.failStream(r, em, domain.ErrMissingReasoning())
	}
	if rr.Model == "" {
		rr.Model = modelOf(e.reasoning)
	}
	if suffix := draftSuffix(rr.DraftText, e.mode); suffix != "" {
		if err := em.emit(domain.UnifiedEvent{Kind: domain.EventReasoningDelta, Text: suffix}); err != nil {
			return nil, e.abandon(r, err)
		}
	}

	r.to(StateComposingHandoff)
	handoff := ComposeHandoff(rr.ReasoningText, rr.DraftText, e.mode)
	augmented := withHandoff(norm.Messages, handoff)

	r.to(StateDrainingSynthesis)
	sctx, span := e.tracer.Start(ctx, "engine.synthesis")
	sr, err := e.drainSynthesis(sctx, em, t, norm.System, augmented)
	if sr != nil {
		spanModel(span, sr.Model)
	}
	endSpan(span, err)
	if err != nil {
		return nil, e.failStream(r, em, err)
	}
	if sr.Model == "" {
		sr.Model = modelOf(e.synthesis)
	}

	res := e.complete(r, norm.Messages, augmented, rr, sr, handoff)
	usage := res.Usage
	if err := em.emit(domain.UnifiedEvent{Kind: domain.EventDone, Usage: &usage}); err != nil {
		e.logger.Debug("client gone before completion marker", slog.String("turn_id", r.id))
	}
	return res, nil
}

type opened[T any] struct {
	chunks <-chan T
	err    error
}

// openStream waits for an upstream to answer with response headers while
// keeping heartbeats flowing. The open call is bound to ctx, so returning on
// ctx.Done leaves it to unwind on its own.
func openStream[T any](ctx context.Context, em *emitter, open func() (<-chan T, error)) (<-chan T, error) {
	result := make(chan opened[T], 1)
	go func() {
		chunks, err := open()
		result <- opened[T]{chunks: chunks, err: err}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-em.heartbeat():
			if err := em.emit(domain.UnifiedEvent{Kind: domain.EventHeartbeat}); err != nil {
				return nil, err
			}

		case r := <-result:
			return r.chunks, r.err
		}
	}
}

// drainReasoning consumes the reasoning stream to exhaustion, forwarding
// reasoning deltas and accumulating the draft.
func (e *Engine) drainReasoning(ctx context.Context, em *emitter, t *Turn, messages []domain.Message) (*domain.ReasoningResult, error) {
	chunks, err := openStream(ctx, em, func() (<-chan domain.ReasoningChunk, error) {
		return e.reasoning.ReasonStream(ctx, &domain.ReasoningRequest{
			APIKey:   t.ReasoningKey,
			Messages: messages,
			Config:   t.ReasoningConfig,
		})
	})
	if err != nil {
		return nil, err
	}

	var reasoning, draft strings.Builder
	res := &domain.ReasoningResult{}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-em.heartbeat():
			if err := em.emit(domain.UnifiedEvent{Kind: domain.EventHeartbeat}); err != nil {
				return nil, err
			}

		case c, ok := <-chunks:
			if !ok {
				res.ReasoningText = reasoning.String()
				res.DraftText = draft.String()
				res.HasDraft = draft.Len() > 0
				return res, nil
			}
			if c.Err != nil {
				return nil, c.Err
			}
			if c.Model != "" {
				res.Model = c.Model
			}
			if c.FinishReason != "" {
				res.FinishReason = c.FinishReason
			}
			if c.Usage != nil {
				res.Usage = *c.Usage
			}
			draft.WriteString(c.ContentDelta)
			if c.ReasoningDelta != "" {
				reasoning.WriteString(c.ReasoningDelta)
				if err := em.emit(domain.UnifiedEvent{Kind: domain.EventReasoningDelta, Text: c.ReasoningDelta}); err != nil {
					return nil, err
				}
			}
		}
	}
}

// drainSynthesis consumes the synthesis stream until its stop event,
// forwarding content deltas in the order received.
func (e *Engine) drainSynthesis(ctx context.Context, em *emitter, t *Turn, system string, messages []domain.Message) (*domain.SynthesisResult, error) {
	chunks, err := openStream(ctx, em, func() (<-chan domain.SynthesisChunk, error) {
		return e.synthesis.SynthesizeStream(ctx, &domain.SynthesisRequest{
			APIKey:   t.SynthesisKey,
			System:   system,
			Messages: messages,
			Config:   t.SynthesisConfig,
		})
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	res := &domain.SynthesisResult{}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-em.heartbeat():
			if err := em.emit(domain.UnifiedEvent{Kind: domain.EventHeartbeat}); err != nil {
				return nil, err
			}

		case c, ok := <-chunks:
			if !ok {
				return nil, domain.ErrUpstreamProtocol(domain.UpstreamSynthesis, "stream ended before completion")
			}
			if c.Err != nil {
				return nil, c.Err
			}
			if c.ID != "" {
				res.ID = c.ID
			}
			if c.Model != "" {
				res.Model = c.Model
			}
			if c.StopReason != "" {
				res.StopReason = c.StopReason
			}
			mergeSynthesisUsage(&res.Usage, c.Usage)

			switch c.Kind {
			case domain.SynthesisDelta:
				if c.Text == "" {
					continue
				}
				text.WriteString(c.Text)
				if err := em.emit(domain.UnifiedEvent{Kind: domain.EventContentDelta, Text: c.Text}); err != nil {
					return nil, err
				}
			case domain.SynthesisStop:
				res.Text = text.String()
				if res.StopReason == "" {
					res.StopReason = "end_turn"
				}
				return res, nil
			case domain.SynthesisOther:
				e.logger.Debug("ignoring synthesis event", slog.String("event", c.EventType))
			}
		}
	}
}

// mergeSynthesisUsage folds a partial usage report into dst. Input counts
// arrive at message start and output counts at message delta.
func mergeSynthesisUsage(dst *domain.SynthesisUsage, src *domain.SynthesisUsage) {
	if src == nil {
		return
	}
	if src.InputTokens > 0 {
		dst.InputTokens = src.InputTokens
	}
	if src.OutputTokens > 0 {
		dst.OutputTokens = src.OutputTokens
	}
	if src.CacheWriteTokens > 0 {
		dst.CacheWriteTokens = src.CacheWriteTokens
	}
	if src.CacheReadTokens > 0 {
		dst.CacheReadTokens = src.CacheReadTokens
	}
}

// failStream fails the run and, unless the client is gone, emits the one
// error event for the turn.
func (e *Engine) failStream(r *run, em *emitter, err error) error {
	if em.ctx.Err() != nil {
		return e.abandon(r, err)
	}
	apiErr := e.fail(r, err)
	if emitErr := em.emit(domain.UnifiedEvent{Kind: domain.EventError, Err: apiErr}); emitErr != nil {
		e.logger.Debug("client gone before error event", slog.String("turn_id", r.id))
	}
	return apiErr
}

// abandon fails the run because the consumer went away.
func (e *Engine) abandon(r *run, err error) error {
	prev := r.state
	r.to(StateFailed)
	e.logger.Info("turn abandoned",
		slog.String("turn_id", r.id),
		slog.String("state", prev.String()),
		slog.String("reason", err.Error()),
	)
	return err
}
