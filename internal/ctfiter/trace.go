package ctfiter

import (
	"ssw-trace-core/internal/clockclass"
	"ssw-trace-core/internal/fieldtype"
)

// EventClass is one named event type within a stream class: its wire id,
// optional per-event context layout, and its payload layout.
type EventClass struct {
	ID          uint64
	Name        string
	ContextType *fieldtype.FieldType // nil if the stream class has none
	PayloadType *fieldtype.FieldType
}

// StreamClass is the decode template shared by every instance of one
// kind of stream: event/packet header and context layouts, the set of
// event classes keyed by wire id, and an optional default clock class.
type StreamClass struct {
	ID                uint64
	EventHeaderType   *fieldtype.FieldType // must contain an "id" field
	EventContextType  *fieldtype.FieldType // nil if none
	PacketContextType *fieldtype.FieldType // nil if none
	EventClasses      map[uint64]*EventClass
	DefaultClockClass *clockclass.ClockClass
}

// Trace owns the set of stream classes a decoded trace is built from.
// Once handed to an iterator it is treated as immutable.
type Trace struct {
	UUID          string
	Hostname      string
	Domain        string
	VPID          int64
	ProcName      string
	StreamClasses map[uint64]*StreamClass
}

func NewTrace() *Trace {
	return &Trace{StreamClasses: make(map[uint64]*StreamClass)}
}

func (t *Trace) AddStreamClass(sc *StreamClass) {
	if sc.EventClasses == nil {
		sc.EventClasses = make(map[uint64]*EventClass)
	}
	t.StreamClasses[sc.ID] = sc
}
