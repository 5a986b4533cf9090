package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// State is a turn's position in the two-stage pipeline.
type State int

const (
	StateIdle State = iota
	StateDrainingReasoning
	StateComposingHandoff
	StateDrainingSynthesis
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDrainingReasoning:
		return "draining_reasoning"
	case StateComposingHandoff:
		return "composing_handoff"
	case StateDrainingSynthesis:
		return "draining_synthesis"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:              {StateDrainingReasoning, StateFailed},
	StateDrainingReasoning: {StateComposingHandoff, StateFailed},
	StateComposingHandoff:  {StateDrainingSynthesis, StateFailed},
	StateDrainingSynthesis: {StateCompleted, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Observer is notified of every state transition of a turn.
type Observer func(turnID string, from, to State)

// ForwardMode controls what the reasoning stage hands to synthesis.
type ForwardMode string

const (
	// ModeNormal forwards only the reasoning text.
	ModeNormal ForwardMode = "normal"
	// ModeFull also forwards the reasoning model's draft answer.
	ModeFull ForwardMode = "full"
)

// ParseForwardMode parses a configured mode. Empty selects ModeNormal.
func ParseForwardMode(s string) (ForwardMode, error) {
	switch ForwardMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeNormal:
		return ModeNormal, nil
	case ModeFull:
		return ModeFull, nil
	}
	return "", fmt.Errorf("unknown forward mode %q (want %q or %q)", s, ModeNormal, ModeFull)
}

// run tracks one turn through the state machine.
type run struct {
	id       string
	state    State
	started  time.Time
	logger   *slog.Logger
	observer Observer
}

func (r *run) to(next State) {
	if !canTransition(r.state, next) {
		r.logger.Error("invalid turn state transition",
			slog.String("turn_id", r.id),
			slog.String("from", r.state.String()),
			slog.String("to", next.String()),
		)
		return
	}

	prev := r.state
	r.state = next
	r.logger.Debug("turn state",
		slog.String("turn_id", r.id),
		slog.String("from", prev.String()),
		slog.String("to", next.String()),
	)
	if r.observer != nil {
		r.observer(r.id, prev, next)
	}
}
