package engine

import (
	"context"
	"time"

	"razorlink/pkg/protocol"
)

// Sample is one decoded frame flowing from the pipeline to sinks.
type Sample struct {
	ID        uint8
	Kind      protocol.EventKind
	Timestamp time.Time
	Payload   []byte
	Message   protocol.Message
}

// Hub fans samples out to subscribers. A slow subscriber drops samples
// rather than stalling the pipeline.
type Hub struct {
	broadcast  chan Sample
	register   chan chan Sample
	unregister chan chan Sample
	clients    map[chan Sample]struct{}
	clientBuf  int
	done       chan struct{}
}

type HubOption func(*Hub)

func WithBroadcastBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan Sample, size)
		}
	}
}

func WithClientBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		broadcast:  make(chan Sample, 256),
		register:   make(chan chan Sample),
		unregister: make(chan chan Sample),
		clients:    make(map[chan Sample]struct{}),
		clientBuf:  100,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run delivers published samples until ctx is done, then closes every
// subscriber channel. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case sample := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- sample:
				default:
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan Sample {
	return h.SubscribeWithBuffer(h.clientBuf)
}

func (h *Hub) SubscribeWithBuffer(size int) chan Sample {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan Sample, size)
	select {
	case h.register <- ch:
	case <-h.done:
		close(ch)
	}
	return ch
}

func (h *Hub) Unsubscribe(ch chan Sample) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

// Publish queues a sample for delivery. It blocks while the broadcast buffer
// is full and reports false if ctx ends or the hub has stopped first.
func (h *Hub) Publish(ctx context.Context, sample Sample) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- sample:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
