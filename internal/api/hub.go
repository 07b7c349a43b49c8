package api

import (
	"sync"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/analysis"
)

// Hub fans run callbacks out to progress subscribers. Subscriptions last for
// one run: the done event closes every subscriber's channel.
type Hub struct {
	buffer int

	mu   sync.Mutex
	subs map[*analysis.ChannelListener]struct{}
}

func NewHub(buffer int) *Hub {
	return &Hub{buffer: buffer, subs: make(map[*analysis.ChannelListener]struct{})}
}

func (h *Hub) Subscribe() (*analysis.ChannelListener, func()) {
	l := analysis.NewChannelListener(h.buffer)

	h.mu.Lock()
	h.subs[l] = struct{}{}
	h.mu.Unlock()

	return l, func() {
		h.mu.Lock()
		delete(h.subs, l)
		h.mu.Unlock()
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) snapshot() []*analysis.ChannelListener {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*analysis.ChannelListener, 0, len(h.subs))
	for l := range h.subs {
		out = append(out, l)
	}
	return out
}

func (h *Hub) SetStatus(status string) {
	for _, l := range h.snapshot() {
		l.SetStatus(status)
	}
}

func (h *Hub) SetProgress(percent int) {
	for _, l := range h.snapshot() {
		l.SetProgress(percent)
	}
}

func (h *Hub) Done(result *analysis.Result) {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*analysis.ChannelListener]struct{})
	h.mu.Unlock()

	for l := range subs {
		l.Done(result)
	}
}
