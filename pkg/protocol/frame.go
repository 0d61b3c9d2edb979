package protocol

import "fmt"

const (
	// MaxPayloadLen is the largest payload length the protocol accepts.
	MaxPayloadLen = 28
	// payloadCap is the size of the fixed payload buffer.
	payloadCap = 30
	// overhead is header, length, id and two checksum bytes.
	overhead = len(Magic) + 4
)

// Magic is the four-byte header that starts every frame.
var Magic = [4]byte{0x44, 0x49, 0x59, 0x64}

// State is the position of the frame state machine.
type State uint8

const (
	StateSync1 State = iota
	StateSync2
	StateSync3
	StateSync4
	StateLength
	StateMessageID
	StatePayload
	StateChecksum1
	StateChecksum2
)

var stateNames = [...]string{
	StateSync1:     "sync1",
	StateSync2:     "sync2",
	StateSync3:     "sync3",
	StateSync4:     "sync4",
	StateLength:    "length",
	StateMessageID: "message_id",
	StatePayload:   "payload",
	StateChecksum1: "checksum1",
	StateChecksum2: "checksum2",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Frame is the message currently being assembled.
type Frame struct {
	Length   uint8
	ID       uint8
	Received Checksum
	buf      [payloadCap]byte
	count    uint8
}

// Payload returns a copy of the bytes accumulated so far.
func (f Frame) Payload() []byte {
	out := make([]byte, f.count)
	copy(out, f.buf[:f.count])
	return out
}

// Machine is the complete decoder position: state, frame in progress and
// running checksum. The zero value is waiting for the first header byte.
type Machine struct {
	State State
	Frame Frame
	Sum   Checksum
}

// SignalKind classifies what a single Step produced.
type SignalKind uint8

const (
	SignalNone SignalKind = iota
	SignalFrame
	SignalLengthError
	SignalChecksumError
)

// Signal is the zero-or-one outcome of a Step. Frame and Computed describe
// the frame that just ended.
type Signal struct {
	Kind     SignalKind
	Frame    Frame
	Computed Checksum
}

// Step advances the machine by one byte.
func Step(m Machine, b byte) (Machine, Signal) {
	switch m.State {
	case StateSync1:
		if b == Magic[0] {
			m.State = StateSync2
		}
	case StateSync2, StateSync3, StateSync4:
		// No backtracking: a mismatching byte is dropped, not rescanned as
		// the start of a new header.
		if b == Magic[m.State] {
			m.State++
		} else {
			m.State = StateSync1
		}
	case StateLength:
		m.Frame.Length = b
		m.Sum = m.Sum.Update(b)
		if b > MaxPayloadLen {
			return m.restart(), Signal{Kind: SignalLengthError, Frame: m.Frame, Computed: m.Sum}
		}
		m.State = StateMessageID
	case StateMessageID:
		m.Frame.ID = b
		m.Sum = m.Sum.Update(b)
		if m.Frame.Length == 0 {
			m.State = StateChecksum1
		} else {
			m.State = StatePayload
		}
	case StatePayload:
		m.Frame.buf[m.Frame.count] = b
		m.Frame.count++
		m.Sum = m.Sum.Update(b)
		if m.Frame.count >= m.Frame.Length {
			m.State = StateChecksum1
		}
	case StateChecksum1:
		m.Frame.Received.A = b
		m.State = StateChecksum2
	case StateChecksum2:
		m.Frame.Received.B = b
		kind := SignalChecksumError
		if m.Sum.Matches(m.Frame.Received.A, m.Frame.Received.B) {
			kind = SignalFrame
		}
		return m.restart(), Signal{Kind: kind, Frame: m.Frame, Computed: m.Sum}
	default:
		return m.restart(), Signal{}
	}
	return m, Signal{}
}

// restart discards the frame in progress and resets the checksum.
func (m Machine) restart() Machine {
	return Machine{State: StateSync1, Sum: m.Sum.Reset()}
}

// EncodeFrame builds a complete wire frame for id and payload.
func EncodeFrame(id uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, &LengthError{Length: uint8(min(len(payload), 0xFF))}
	}
	out := make([]byte, 0, overhead+len(payload))
	out = append(out, Magic[:]...)
	out = append(out, byte(len(payload)), id)
	out = append(out, payload...)
	sum := Sum(out[len(Magic):]...)
	return append(out, sum.A, sum.B), nil
}
