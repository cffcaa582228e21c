package relay

import "time"

// EventKind names a step of the relay's forwarding cycle.
type EventKind string

const (
	EventEnqueue EventKind = "enqueue" // originator packet queued and receipt acked
	EventDrop    EventKind = "drop"    // originator packet refused (queue full)
	EventForward EventKind = "forward" // queued packet sent to the responder
	EventReply   EventKind = "reply"   // responder reply relayed to the originator
	EventNoData  EventKind = "no-data" // pull answered with the sentinel
	EventTimeout EventKind = "timeout" // responder did not reply to a forward
)

// Event describes one relay step. Packet is the diagnostic rendering of the
// bytes involved, never used for protocol logic.
type Event struct {
	Relay  string    `json:"relay"`
	Seq    uint64    `json:"seq"`
	Time   time.Time `json:"time"`
	Kind   EventKind `json:"kind"`
	Peer   string    `json:"peer,omitempty"`
	Size   int       `json:"size"`
	Packet string    `json:"packet,omitempty"`
}

// Observer receives relay events. Observe is called from both relay loops,
// possibly concurrently, and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans every event out to each non-nil observer in order. It
// returns nil when none is given.
func Observers(obs ...Observer) Observer {
	var list multiObserver
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	switch len(list) {
	case 0:
		return nil
	case 1:
		return list[0]
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) Observe(ev Event) {
	for _, o := range m {
		o.Observe(ev)
	}
}
