package protocol

import "errors"

// Stats counts decoder outcomes since construction. Counters only grow.
type Stats struct {
	PayloadLengthErrors uint64 `json:"payload_length_errors"`
	ChecksumErrors      uint64 `json:"checksum_errors"`
	MessagesReceived    uint64 `json:"messages_received"`
	MalformedPayloads   uint64 `json:"malformed_payloads"`
	BytesConsumed       uint64 `json:"bytes_consumed"`
}

// Decoder turns an arbitrarily chunked byte stream into events. A Decoder is
// not safe for concurrent use; callers serialize Feed.
type Decoder struct {
	machine Machine
	codec   *Codec
	stats   Stats
}

// NewDecoder returns a decoder using the device codec.
func NewDecoder() *Decoder {
	return NewDecoderWithCodec(NewCodec())
}

// NewDecoderWithCodec returns a decoder dispatching verified frames to c.
func NewDecoderWithCodec(c *Codec) *Decoder {
	if c == nil {
		c = NewCodec()
	}
	return &Decoder{codec: c}
}

// Feed consumes chunk and returns the events completed by it, in stream
// order. Frames may span any number of calls.
func (d *Decoder) Feed(chunk []byte) []Event {
	var events []Event
	for _, b := range chunk {
		var sig Signal
		d.machine, sig = Step(d.machine, b)
		d.stats.BytesConsumed++
		if sig.Kind == SignalNone {
			continue
		}
		events = append(events, d.dispatch(sig))
	}
	return events
}

// Stats returns a snapshot of the counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// State reports where the machine is waiting.
func (d *Decoder) State() State {
	return d.machine.State
}

func (d *Decoder) dispatch(sig Signal) Event {
	frame := sig.Frame
	switch sig.Kind {
	case SignalLengthError:
		d.stats.PayloadLengthErrors++
		return Event{
			Kind: EventLengthError,
			Err:  &LengthError{Length: frame.Length},
		}
	case SignalChecksumError:
		d.stats.ChecksumErrors++
		return Event{
			Kind:    EventChecksumError,
			ID:      frame.ID,
			Payload: frame.Payload(),
			Err:     &ChecksumError{ID: frame.ID, Computed: sig.Computed, Received: frame.Received},
		}
	}

	payload := frame.Payload()
	msg, err := d.codec.Decode(frame.ID, payload)
	ev := Event{ID: frame.ID, Payload: payload, Message: msg, Err: err}
	switch {
	case err == nil:
		d.stats.MessagesReceived++
		ev.Kind = EventMessage
	case errors.Is(err, ErrUnsupportedMessage):
		ev.Kind = EventUnsupported
	case errors.Is(err, ErrUnknownMessageID):
		ev.Kind = EventUnknown
	default:
		d.stats.MalformedPayloads++
		ev.Kind = EventMalformedPayload
	}
	return ev
}
