// Package openai serves the relay behind an OpenAI-compatible chat
// completions endpoint.
package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/reasoning-relay/internal/codec"
	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/engine"
	"github.com/tjfontaine/reasoning-relay/internal/server"
	"github.com/tjfontaine/reasoning-relay/internal/usage"
)

// DefaultStreamBuffer is the capacity of the engine-to-transport channel.
const DefaultStreamBuffer = 16

// Relay runs turns. *engine.Engine implements it.
type Relay interface {
	Validate(t *engine.Turn) error
	Complete(ctx context.Context, t *engine.Turn) (*engine.Result, error)
	Stream(ctx context.Context, t *engine.Turn, out chan<- domain.UnifiedEvent) (*engine.Result, error)
	Models() (reasoning, synthesis string)
	Mode() engine.ForwardMode
}

var _ Relay = (*engine.Engine)(nil)

// Options configures a Handler.
type Options struct {
	// Fallback supplies keys for requests that omit the credential headers.
	Fallback       Credentials
	PrefixThinking bool
	StreamBuffer   int
	MaxBodyBytes   int64
	Ledger         usage.Ledger
	Logger         *slog.Logger
}

type Handler struct {
	relay          Relay
	fallback       Credentials
	prefixThinking bool
	streamBuffer   int
	maxBodyBytes   int64
	ledger         usage.Ledger
	logger         *slog.Logger
	now            func() time.Time
}

func NewHandler(relay Relay, opts Options) *Handler {
	h := &Handler{
		relay:          relay,
		fallback:       opts.Fallback,
		prefixThinking: opts.PrefixThinking,
		streamBuffer:   opts.StreamBuffer,
		maxBodyBytes:   opts.MaxBodyBytes,
		ledger:         opts.Ledger,
		logger:         opts.Logger,
		now:            time.Now,
	}
	if h.streamBuffer <= 0 {
		h.streamBuffer = DefaultStreamBuffer
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}
	if h.ledger == nil {
		h.ledger = usage.Discard{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Register mounts the handler's routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/chat/completions", h.HandleChatCompletion)
	r.Get("/v1/models", h.HandleListModels)
}

func (h *Handler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(w, r, h.maxBodyBytes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	creds, err := resolveCredentials(r, h.fallback)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	turn := &engine.Turn{
		ID:              uuid.NewString(),
		Messages:        req.Messages,
		System:          req.System,
		ReasoningKey:    creds.Reasoning,
		SynthesisKey:    creds.Synthesis,
		ReasoningConfig: req.DeepSeekConfig,
		SynthesisConfig: req.AnthropicConfig,
	}
	server.AddLogField(r.Context(), "turn_id", turn.ID)
	server.AddLogField(r.Context(), "mode", string(h.relay.Mode()))

	if req.Stream {
		h.handleStream(w, r, req, turn)
		return
	}

	res, err := h.relay.Complete(r.Context(), turn)
	if err != nil {
		h.record(r.Context(), turn.ID, false, nil, err)
		h.writeError(w, r, err)
		return
	}
	h.record(r.Context(), turn.ID, false, res, nil)

	resp := buildCompletion("chatcmpl-"+turn.ID, h.now(), res, h.relay.Mode(), h.prefixThinking, req.Verbose)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Debug("failed to write response",
			slog.String("turn_id", turn.ID),
			slog.String("error", err.Error()))
	}
}

type streamOutcome struct {
	res *engine.Result
	err error
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request, req *ChatRequest, turn *engine.Turn) {
	// Validation failures are still plain HTTP errors; once the stream has
	// started they can only be reported in-band.
	if err := h.relay.Validate(turn); err != nil {
		h.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, domain.ErrInternal("streaming not supported"))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan domain.UnifiedEvent, h.streamBuffer)
	done := make(chan streamOutcome, 1)
	go func() {
		res, err := h.relay.Stream(ctx, turn, events)
		done <- streamOutcome{res: res, err: err}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	meta := &codec.StreamMetadata{
		ID:      "chatcmpl-" + turn.ID,
		Model:   h.streamModel(req),
		Created: h.now().Unix(),
	}

	var writeErr error
	for ev := range events {
		if writeErr != nil {
			continue
		}
		if err := codec.WriteSSE(w, codec.EncodeEvent(ev, meta)); err != nil {
			writeErr = err
			cancel()
			continue
		}
		flusher.Flush()
	}

	out := <-done
	if writeErr != nil {
		h.logger.Debug("client disconnected mid-stream",
			slog.String("turn_id", turn.ID),
			slog.String("error", writeErr.Error()))
		if out.err == nil {
			out.err = writeErr
		}
	} else if err := codec.WriteDone(w); err == nil {
		flusher.Flush()
	}

	if out.err != nil {
		server.AddError(r.Context(), out.err)
	}
	h.record(r.Context(), turn.ID, true, out.res, out.err)
}

// streamModel is the model label announced before either upstream has
// answered, so it comes from configuration and any body overrides.
func (h *Handler) streamModel(req *ChatRequest) string {
	reasoning, synthesis := h.relay.Models()
	if m := bodyModel(req.DeepSeekConfig.Body); m != "" {
		reasoning = m
	}
	if m := bodyModel(req.AnthropicConfig.Body); m != "" {
		synthesis = m
	}
	return reasoning + "_" + synthesis
}

func (h *Handler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	reasoning, synthesis := h.relay.Models()
	list := ModelList{
		Object: "list",
		Data: []ModelInfo{{
			ID:      reasoning + "_" + synthesis,
			Object:  "model",
			OwnedBy: "reasoning-relay",
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(list); err != nil {
		h.logger.Debug("failed to write response",
			slog.String("request_id", server.GetRequestID(r.Context())),
			slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)
	codec.WriteError(w, err)
}

// record stores the turn's accounting. The request context may already be
// cancelled, so the write is detached from it.
func (h *Handler) record(ctx context.Context, turnID string, streaming bool, res *engine.Result, turnErr error) {
	reasoningModel, synthesisModel := h.relay.Models()
	rec := &usage.Record{
		ID:             turnID,
		RequestID:      server.GetRequestID(ctx),
		Mode:           string(h.relay.Mode()),
		Streaming:      streaming,
		Status:         usage.StatusCompleted,
		ReasoningModel: reasoningModel,
		SynthesisModel: synthesisModel,
	}
	if res != nil {
		rec.ReasoningModel = res.Usage.ReasoningModel
		rec.SynthesisModel = res.Usage.SynthesisModel
		rec.Reasoning = res.Usage.Reasoning
		rec.Synthesis = res.Usage.Synthesis
		rec.UsageEstimated = res.UsageEstimated
		rec.Cost = res.Cost
		rec.Duration = res.Duration

		server.AddLogField(ctx, "cost_usd", formatCost(res.Cost.Total))
	}
	if turnErr != nil {
		rec.Status = usage.StatusFailed
		rec.ErrorType = string(domain.AsAPIError(turnErr).Type)
	}

	if err := h.ledger.Record(context.WithoutCancel(ctx), rec); err != nil {
		h.logger.Warn("failed to record turn usage",
			slog.String("turn_id", turnID),
			slog.String("error", err.Error()))
	}
}
