package events

import "testing"

type stubEvent struct {
	name string
}

func (s stubEvent) EventType() string { return s.name }

type recorder struct {
	seen []string
}

func (r *recorder) Emit(e Event) {
	r.seen = append(r.seen, e.EventType())
}

func TestBufferHoldsEventsUntilFlush(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(stubEvent{name: "first"})
	buf.Emit(stubEvent{name: "second"})

	events := buf.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(events))
	}
	if events[0].EventType() != "first" || events[1].EventType() != "second" {
		t.Fatalf("events out of order: %v", events)
	}

	downstream := &recorder{}
	buf.FlushTo(downstream)
	if len(downstream.seen) != 2 {
		t.Fatalf("expected downstream to see 2 events, got %d", len(downstream.seen))
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("flush must clear the buffer")
	}
}

func TestBufferIgnoresNilEvents(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(nil)
	if len(buf.Events()) != 0 {
		t.Fatalf("nil events must be dropped")
	}
}

func TestFlushToNilEmitterIsNoop(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(stubEvent{name: "first"})
	buf.FlushTo(nil)
	if len(buf.Events()) != 1 {
		t.Fatalf("flush to nil must keep the buffer intact")
	}
}
