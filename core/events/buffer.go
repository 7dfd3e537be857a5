package events

// Buffer collects events emitted during a unit of work so they can be
// published only once the unit's state writes have committed. A discarded
// buffer discards its events with it.
type Buffer struct {
	events []Event
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer { return &Buffer{} }

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if b == nil || e == nil {
		return
	}
	b.events = append(b.events, e)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	return b.events
}

// FlushTo republishes the buffered events to the downstream emitter and
// clears the buffer.
func (b *Buffer) FlushTo(emitter Emitter) {
	if b == nil || emitter == nil {
		return
	}
	for _, evt := range b.events {
		emitter.Emit(evt)
	}
	b.events = nil
}
