package site

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Context states. Transitions only move forward.
const (
	StateInitializing = "initializing"
	StateReady        = "ready"
	StateDestroyed    = "destroyed"
)

const (
	eventReady   = "ready"
	eventDestroy = "destroy"
)

func newMachine(logger *zap.SugaredLogger) *fsm.FSM {
	return fsm.NewFSM(
		StateInitializing,
		fsm.Events{
			{Name: eventReady, Src: []string{StateInitializing}, Dst: StateReady},
			{Name: eventDestroy, Src: []string{StateInitializing, StateReady}, Dst: StateDestroyed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debugw("state changed", "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// State returns the current state.
func (c *Context) State() string {
	return c.machine.Current()
}

// transition fires event and reports whether the state changed.
func (c *Context) transition(event string) bool {
	return c.machine.Event(context.Background(), event) == nil
}
