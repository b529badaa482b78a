// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTable_NoDuplicates(t *testing.T) {
	seen := map[State]map[Event]struct{}{}
	for _, tr := range transitionsTable {
		if _, ok := seen[tr.From]; !ok {
			seen[tr.From] = map[Event]struct{}{}
		}
		if _, exists := seen[tr.From][tr.Event]; exists {
			t.Fatalf("duplicate transition: %s + %s", tr.From, tr.Event)
		}
		seen[tr.From][tr.Event] = struct{}{}
	}
}

func TestTransitionTable_TerminalEventsLeaveEveryLoadedState(t *testing.T) {
	loaded := []State{StateContextLoaded, StateAwaitingValidation, StateTokenizing}
	for _, state := range loaded {
		for _, ev := range []Event{EvFailed, EvExpired, EvFieldErrors, EvDetached} {
			tr, ok := TransitionFor(state, ev)
			require.True(t, ok, "missing %s + %s", state, ev)
			require.Equal(t, StateIdle, tr.To)
		}
	}
}

func TestTransitionTable_SuccessOnlyWhileTokenizing(t *testing.T) {
	for _, state := range []State{StateAwaitingSession, StateContextLoaded, StateAwaitingValidation, StateIdle} {
		_, ok := TransitionFor(state, EvSucceeded)
		require.False(t, ok, "auv_ok must not be accepted in %s", state)
	}
	tr, ok := TransitionFor(StateTokenizing, EvSucceeded)
	require.True(t, ok)
	require.Equal(t, StateIdle, tr.To)
}

func TestTransitionTable_NothingLeavesUnloadedStatesButAttach(t *testing.T) {
	for _, tr := range transitionsTable {
		if tr.From.Loaded() {
			continue
		}
		require.Equal(t, EvAttached, tr.Event, "unexpected edge out of %s", tr.From)
	}
}
