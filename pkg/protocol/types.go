package protocol

import "fmt"

// Message ids understood by the device.
const (
	IDOrientation  uint8 = 0x02
	IDGPS          uint8 = 0x03
	IDSecondaryIMU uint8 = 0x04
	IDAnalogs      uint8 = 0x05
)

// Message is a decoded payload. Concrete values are Orientation, Analogs,
// Unsupported and Unknown.
type Message interface {
	MessageID() uint8
}

// Orientation is the fused attitude in degrees.
type Orientation struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

func (Orientation) MessageID() uint8 { return IDOrientation }

// AnalogReadings are the raw gyro ADC channels.
type AnalogReadings struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// AccelReadings are the raw accelerometer channels.
type AccelReadings struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// Analogs pairs the analog and accelerometer readings carried by one frame.
type Analogs struct {
	Analog AnalogReadings `json:"analog"`
	Accel  AccelReadings  `json:"accel"`
}

func (Analogs) MessageID() uint8 { return IDAnalogs }

// Unsupported marks a recognized message kind that has no decoder.
type Unsupported struct {
	ID uint8 `json:"id"`
}

func (u Unsupported) MessageID() uint8 { return u.ID }

// Unknown marks a message id the protocol does not define.
type Unknown struct {
	ID uint8 `json:"id"`
}

func (u Unknown) MessageID() uint8 { return u.ID }

// EventKind classifies an outcome of Decoder.Feed.
type EventKind uint8

const (
	EventMessage EventKind = iota + 1
	EventUnsupported
	EventUnknown
	EventLengthError
	EventChecksumError
	EventMalformedPayload
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventUnsupported:
		return "unsupported"
	case EventUnknown:
		return "unknown"
	case EventLengthError:
		return "length_error"
	case EventChecksumError:
		return "checksum_error"
	case EventMalformedPayload:
		return "malformed_payload"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is one outcome produced while feeding bytes. Message is set for
// EventMessage, EventUnsupported and EventUnknown; Err is set for every kind
// except EventMessage.
type Event struct {
	Kind    EventKind
	ID      uint8
	Payload []byte
	Message Message
	Err     error
}
