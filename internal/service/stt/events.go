package stt

// EventType is the kind of a recognition event.
type EventType int

const (
	EventStart EventType = iota
	EventResult
	EventEnd
	EventError
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventResult:
		return "result"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a recognition callback turned into a value. Generation identifies
// the recognizer that produced it.
type Event struct {
	Type       EventType
	Generation uint64
	Results    []Result
	Code       string
}

// ChannelCallback forwards callbacks to a channel in the order they are made.
// Sends are abandoned once done is closed.
type ChannelCallback struct {
	generation uint64
	ch         chan<- Event
	done       <-chan struct{}
}

// NewChannelCallback creates a callback that tags events with generation.
func NewChannelCallback(generation uint64, ch chan<- Event, done <-chan struct{}) *ChannelCallback {
	return &ChannelCallback{generation: generation, ch: ch, done: done}
}

func (c *ChannelCallback) OnStart() {
	c.send(Event{Type: EventStart})
}

func (c *ChannelCallback) OnResult(results []Result) {
	cp := make([]Result, len(results))
	copy(cp, results)
	c.send(Event{Type: EventResult, Results: cp})
}

func (c *ChannelCallback) OnEnd() {
	c.send(Event{Type: EventEnd})
}

func (c *ChannelCallback) OnError(code string) {
	c.send(Event{Type: EventError, Code: code})
}

func (c *ChannelCallback) send(ev Event) {
	ev.Generation = c.generation
	select {
	case c.ch <- ev:
	case <-c.done:
	}
}
