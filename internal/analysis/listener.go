package analysis

import (
	"sync"
	"time"
)

// Listener observes one run. SetStatus and SetProgress may be called from the
// run's goroutine at any rate and must not block; Done is called exactly once.
type Listener interface {
	SetStatus(status string)
	SetProgress(percent int)
	Done(result *Result)
}

type EventKind string

const (
	EventStatus   EventKind = "status"
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
)

// Event is the serialisable form of a listener callback
type Event struct {
	Kind     EventKind `json:"kind"`
	RunID    string    `json:"run_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Progress int       `json:"progress"`
	Summary  *Summary  `json:"summary,omitempty"`
	Time     time.Time `json:"time"`
}

// ChannelListener turns callbacks into events on a buffered channel. Status
// and progress events are dropped when the reader falls behind; the done
// event is always delivered and closes the channel.
type ChannelListener struct {
	mu     sync.Mutex
	events chan Event
	closed bool
	runID  string
}

func NewChannelListener(buffer int) *ChannelListener {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelListener{events: make(chan Event, buffer)}
}

// Events is closed after the done event
func (c *ChannelListener) Events() <-chan Event {
	return c.events
}

func (c *ChannelListener) SetStatus(status string) {
	c.offer(Event{Kind: EventStatus, Status: status, Time: time.Now()})
}

func (c *ChannelListener) SetProgress(percent int) {
	c.offer(Event{Kind: EventProgress, Progress: percent, Time: time.Now()})
}

func (c *ChannelListener) Done(result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	ev := Event{Kind: EventDone, Progress: 100, Time: time.Now()}
	if result != nil {
		summary := result.Summary()
		ev.Summary = &summary
		ev.RunID = result.RunID
		c.runID = result.RunID
	}

	for {
		select {
		case c.events <- ev:
			close(c.events)
			c.closed = true
			return
		default:
			// make room by discarding the oldest buffered event
			select {
			case <-c.events:
			default:
			}
		}
	}
}

func (c *ChannelListener) offer(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	ev.RunID = c.runID
	select {
	case c.events <- ev:
	default:
	}
}

// MultiListener fans callbacks out to several listeners in order
type MultiListener []Listener

func (m MultiListener) SetStatus(status string) {
	for _, l := range m {
		l.SetStatus(status)
	}
}

func (m MultiListener) SetProgress(percent int) {
	for _, l := range m {
		l.SetProgress(percent)
	}
}

func (m MultiListener) Done(result *Result) {
	for _, l := range m {
		l.Done(result)
	}
}

type nopListener struct{}

func (nopListener) SetStatus(string) {}
func (nopListener) SetProgress(int)  {}
func (nopListener) Done(*Result)     {}
