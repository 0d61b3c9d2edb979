package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeFunc turns a verified payload into a typed message.
type DecodeFunc func(payload []byte) (Message, error)

// Codec dispatches verified frames to per-id decoders.
type Codec struct {
	decoders    map[uint8]DecodeFunc
	unsupported map[uint8]struct{}
}

// NewCodec returns the codec for the device's message set: orientation and
// analogs decode, GPS and secondary IMU are recognized but unsupported.
func NewCodec() *Codec {
	return &Codec{
		decoders: map[uint8]DecodeFunc{
			IDOrientation: DecodeOrientation,
			IDAnalogs:     DecodeAnalogs,
		},
		unsupported: map[uint8]struct{}{
			IDGPS:          {},
			IDSecondaryIMU: {},
		},
	}
}

// Decode returns the message for id. Unsupported and unknown ids return a
// marker message together with an error wrapping ErrUnsupportedMessage or
// ErrUnknownMessageID.
func (c *Codec) Decode(id uint8, payload []byte) (Message, error) {
	if fn, ok := c.decoders[id]; ok {
		return fn(payload)
	}
	if _, ok := c.unsupported[id]; ok {
		return Unsupported{ID: id}, fmt.Errorf("%w: id 0x%02x", ErrUnsupportedMessage, id)
	}
	return Unknown{ID: id}, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageID, id)
}

// DecodeOrientation reads roll, pitch and yaw as big-endian int16 hundredths
// of a degree.
func DecodeOrientation(payload []byte) (Message, error) {
	if len(payload) < 6 {
		return nil, malformed(IDOrientation, len(payload), 6)
	}
	return Orientation{
		Roll:  float64(int16(binary.BigEndian.Uint16(payload[0:2]))) / 100.0,
		Pitch: float64(int16(binary.BigEndian.Uint16(payload[2:4]))) / 100.0,
		Yaw:   float64(int16(binary.BigEndian.Uint16(payload[4:6]))) / 100.0,
	}, nil
}

// DecodeAnalogs reads six big-endian int16 values: analog x, y, z followed
// by accelerometer x, y, z.
func DecodeAnalogs(payload []byte) (Message, error) {
	if len(payload) < 12 {
		return nil, malformed(IDAnalogs, len(payload), 12)
	}
	v := func(i int) int16 {
		return int16(binary.BigEndian.Uint16(payload[i : i+2]))
	}
	return Analogs{
		Analog: AnalogReadings{X: v(0), Y: v(2), Z: v(4)},
		Accel:  AccelReadings{X: v(6), Y: v(8), Z: v(10)},
	}, nil
}

// EncodeOrientation is the inverse of DecodeOrientation. Angles are rounded
// to the nearest hundredth and clamped to the int16 range.
func EncodeOrientation(o Orientation) []byte {
	buf := make([]byte, 6)
	binary.BigEndian.PutUint16(buf[0:2], uint16(hundredths(o.Roll)))
	binary.BigEndian.PutUint16(buf[2:4], uint16(hundredths(o.Pitch)))
	binary.BigEndian.PutUint16(buf[4:6], uint16(hundredths(o.Yaw)))
	return buf
}

// EncodeAnalogs is the inverse of DecodeAnalogs.
func EncodeAnalogs(a Analogs) []byte {
	buf := make([]byte, 12)
	for i, v := range []int16{a.Analog.X, a.Analog.Y, a.Analog.Z, a.Accel.X, a.Accel.Y, a.Accel.Z} {
		binary.BigEndian.PutUint16(buf[i*2:i*2+2], uint16(v))
	}
	return buf
}

func hundredths(deg float64) int16 {
	v := math.Round(deg * 100.0)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
