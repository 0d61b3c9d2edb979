package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"razorlink/pkg/protocol"
)

// Pipeline owns a protocol.Decoder, feeds it transport chunks and publishes
// every decoded, unsupported or unknown frame to the hub. Framing faults are
// logged and counted, never published.
type Pipeline struct {
	hub     *Hub
	decoder *protocol.Decoder
	log     zerolog.Logger
	now     func() time.Time
	onStats func(protocol.Stats)
	onEvent []func(protocol.Event, time.Time)

	mu    sync.RWMutex
	stats protocol.Stats
}

type PipelineOption func(*Pipeline)

func WithLogger(log zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = log
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithStatsHandler registers fn to receive a stats snapshot after every
// chunk that produced at least one event.
func WithStatsHandler(fn func(protocol.Stats)) PipelineOption {
	return func(p *Pipeline) {
		p.onStats = fn
	}
}

// WithEventHandler registers fn to see every event, framing faults
// included, in decode order. Handlers may be stacked.
func WithEventHandler(fn func(protocol.Event, time.Time)) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.onEvent = append(p.onEvent, fn)
		}
	}
}

func WithDecoder(d *protocol.Decoder) PipelineOption {
	return func(p *Pipeline) {
		if d != nil {
			p.decoder = d
		}
	}
}

func NewPipeline(hub *Hub, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		hub:     hub,
		decoder: protocol.NewDecoder(),
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes chunks from in until in is closed or ctx ends.
func (p *Pipeline) Run(ctx context.Context, in <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-in:
			if !ok {
				return nil
			}
			p.Process(ctx, chunk)
		}
	}
}

// Process feeds one chunk through the decoder and publishes its samples.
// It returns the events the chunk produced.
func (p *Pipeline) Process(ctx context.Context, chunk []byte) []protocol.Event {
	events := p.decoder.Feed(chunk)
	stats := p.decoder.Stats()

	p.mu.Lock()
	p.stats = stats
	p.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	ts := p.now()
	for _, ev := range events {
		p.logEvent(ev, stats)
		for _, fn := range p.onEvent {
			fn(ev, ts)
		}
		if ev.Message == nil || p.hub == nil {
			continue
		}
		p.hub.Publish(ctx, Sample{
			ID:        ev.ID,
			Kind:      ev.Kind,
			Timestamp: ts,
			Payload:   ev.Payload,
			Message:   ev.Message,
		})
	}
	if p.onStats != nil {
		p.onStats(stats)
	}
	return events
}

// Stats returns the decoder counters as of the last processed chunk. It is
// safe to call from any goroutine.
func (p *Pipeline) Stats() protocol.Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

func (p *Pipeline) logEvent(ev protocol.Event, stats protocol.Stats) {
	switch ev.Kind {
	case protocol.EventMessage:
		p.log.Trace().Uint8("id", ev.ID).Msg("frame decoded")
	case protocol.EventUnsupported:
		p.log.Debug().Uint8("id", ev.ID).Msg("unsupported message kind")
	case protocol.EventUnknown:
		p.log.Warn().Uint8("id", ev.ID).Msg("invalid message number")
	case protocol.EventLengthError:
		p.log.Warn().Err(ev.Err).
			Uint64("payload_length_errors", stats.PayloadLengthErrors).
			Msg("frame discarded")
	case protocol.EventChecksumError:
		p.log.Warn().Err(ev.Err).
			Uint64("checksum_errors", stats.ChecksumErrors).
			Msg("frame discarded")
	case protocol.EventMalformedPayload:
		p.log.Warn().Err(ev.Err).Uint8("id", ev.ID).
			Uint64("malformed_payloads", stats.MalformedPayloads).
			Msg("frame discarded")
	}
}
