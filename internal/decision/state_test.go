package decision

import "testing"

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from    State
		ev      Event
		want    State
		wantErr bool
	}{
		{StateIdle, EventOpen, StateEvaluating, false},
		{StateEvaluating, EventCommit, StateCommitted, false},
		{StateEvaluating, EventDeadline, StateExpired, false},
		{StateCommitted, EventExecuted, StateExecuted, false},
		// Invalid pairs keep the current state.
		{StateIdle, EventCommit, StateIdle, true},
		{StateIdle, EventDeadline, StateIdle, true},
		{StateCommitted, EventDeadline, StateCommitted, true},
		{StateCommitted, EventCommit, StateCommitted, true},
		{StateExpired, EventCommit, StateExpired, true},
		{StateExecuted, EventExecuted, StateExecuted, true},
	}
	for _, tt := range tests {
		got, err := Transition(tt.from, tt.ev)
		if got != tt.want {
			t.Errorf("Transition(%s, %s) = %s, want %s", tt.from, tt.ev, got, tt.want)
		}
		if (err != nil) != tt.wantErr {
			t.Errorf("Transition(%s, %s) err = %v, wantErr %v", tt.from, tt.ev, err, tt.wantErr)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateEvaluating, StateCommitted} {
		if Terminal(s) {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []State{StateExecuted, StateExpired} {
		if !Terminal(s) {
			t.Errorf("%s must be terminal", s)
		}
	}
}
