package agentloop

import (
	"testing"
)

func TestEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("s", 4)

	for i := 0; i < 100; i++ {
		e.Emit(EventTextDelta, map[string]interface{}{"text": "x"})
	}
	e.Close()

	count := 0
	for range e.Events() {
		count++
	}
	if count != 4 {
		t.Errorf("expected 4 buffered events, got %d", count)
	}
}

func TestTurnEndSurvivesFullBuffer(t *testing.T) {
	e := NewEventEmitter("s", 4)

	// Flood the buffer without a consumer, then end the turn. A host
	// blocked on the turn boundary must still see it.
	for i := 0; i < 100; i++ {
		e.Emit(EventTextDelta, map[string]interface{}{"text": "x"})
	}
	e.Emit(EventTurnEnd, nil)
	e.Close()

	var got []SessionEvent
	for ev := range e.Events() {
		got = append(got, ev)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 events (4 deltas + turn end), got %d", len(got))
	}
	if got[len(got)-1].Kind != EventTurnEnd {
		t.Errorf("expected final event to be turn end, got %q", got[len(got)-1].Kind)
	}
}

func TestEmitAfterCloseIsNoop(t *testing.T) {
	e := NewEventEmitter("s", 4)
	e.Close()
	e.Emit(EventTextDelta, map[string]interface{}{"text": "x"})
	e.Close()

	count := 0
	for range e.Events() {
		count++
	}
	if count != 0 {
		t.Errorf("expected no events after close, got %d", count)
	}
}
