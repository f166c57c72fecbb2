package incremental

// EventKind classifies a structured runtime event (§5 "Event hook").
type EventKind int

const (
	// EventWillExecute fires immediately before a query's executor
	// function is called.
	EventWillExecute EventKind = iota
	// EventDidExecute fires immediately after a query's executor
	// function returns, whether it succeeded or failed.
	EventDidExecute
	// EventDidValidate fires when a stale entry is confirmed valid
	// without re-executing (the backdate/validate path of §4.3).
	EventDidValidate
	// EventWillBlockOn fires when a session is about to block
	// waiting for another session to finish computing the same key.
	EventWillBlockOn
	// EventWillBackdate fires when a re-executed query produced the
	// same value as before and its changed_at is left untouched.
	EventWillBackdate
)

func (k EventKind) String() string {
	switch k {
	case EventWillExecute:
		return "WillExecute"
	case EventDidExecute:
		return "DidExecute"
	case EventDidValidate:
		return "DidValidate"
	case EventWillBlockOn:
		return "WillBlockOn"
	case EventWillBackdate:
		return "WillBackdate"
	default:
		return "Unknown"
	}
}

// Event is a structured diagnostic emitted synchronously by the
// runtime. Subscribers (Database.OnEvent) must not block or fetch
// queries from within the callback - it runs on the caller's
// goroutine, inline with the fetch it describes.
type Event struct {
	Kind       EventKind
	Descriptor QueryDescriptor
	Session    sessionID
}

// EventHook is a synchronous subscriber callback.
type EventHook func(Event)

func (db *Database) emit(s *Session, kind EventKind, desc QueryDescriptor) {
	hook := db.onEvent
	if hook == nil {
		return
	}
	if !db.cfg.GetBool("runtime.event_log") {
		return
	}
	var sid sessionID
	if s != nil {
		sid = s.id
	}
	hook(Event{Kind: kind, Descriptor: desc, Session: sid})
}
