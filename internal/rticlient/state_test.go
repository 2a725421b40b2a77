package rticlient

import "testing"

func TestApplyEventHappyPath(t *testing.T) {
	state := StateInit
	steps := []struct {
		event Event
		want  State
	}{
		{EventHandshakeComplete, StateRtiConnected},
		{EventTimestampReceived, StateStartAligned},
		{EventOperating, StateRunning},
		{EventStopRequested, StateStopping},
		{EventStopGranted, StateStopped},
	}

	for _, step := range steps {
		next, ok := applyEvent(state, step.event)
		if !ok {
			t.Fatalf("applyEvent(%s, %s) rejected, want %s", state, step.event, step.want)
		}
		if next != step.want {
			t.Fatalf("applyEvent(%s, %s) = %s, want %s", state, step.event, next, step.want)
		}
		state = next
	}
}

func TestApplyEventRejectsOutOfOrder(t *testing.T) {
	if _, ok := applyEvent(StateInit, EventOperating); ok {
		t.Fatal("applyEvent(Init, Operating) should be rejected")
	}
	if _, ok := applyEvent(StateStopped, EventStopRequested); ok {
		t.Fatal("applyEvent(Stopped, StopRequested) should be rejected")
	}
}

func TestApplyEventDirectStopGrantFromRunning(t *testing.T) {
	next, ok := applyEvent(StateRunning, EventStopGranted)
	if !ok || next != StateStopped {
		t.Fatalf("applyEvent(Running, StopGranted) = (%s, %v), want (Stopped, true)", next, ok)
	}
}
