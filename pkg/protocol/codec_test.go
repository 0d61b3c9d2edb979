package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOrientation(t *testing.T) {
	msg, err := DecodeOrientation([]byte{0x00, 0x64, 0xFF, 0x38, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, Orientation{Roll: 1.0, Pitch: -2.0, Yaw: 0.0}, msg)
}

func TestDecodeOrientationExtremes(t *testing.T) {
	msg, err := DecodeOrientation([]byte{0x7F, 0xFF, 0x80, 0x00, 0x46, 0x50})
	require.NoError(t, err)
	o := msg.(Orientation)
	assert.InDelta(t, 327.67, o.Roll, 1e-9)
	assert.InDelta(t, -327.68, o.Pitch, 1e-9)
	assert.InDelta(t, 180.0, o.Yaw, 1e-9)
}

func TestDecodeOrientationShortPayload(t *testing.T) {
	msg, err := DecodeOrientation([]byte{0x00, 0x64, 0xFF})
	require.ErrorIs(t, err, ErrMalformedPayload)
	assert.Nil(t, msg)
}

func TestDecodeAnalogs(t *testing.T) {
	payload := []byte{
		0x00, 0x01, 0xFF, 0xFF, 0x01, 0x00,
		0x80, 0x00, 0x7F, 0xFF, 0x00, 0x00,
	}
	msg, err := DecodeAnalogs(payload)
	require.NoError(t, err)
	assert.Equal(t, Analogs{
		Analog: AnalogReadings{X: 1, Y: -1, Z: 256},
		Accel:  AccelReadings{X: -32768, Y: 32767, Z: 0},
	}, msg)
}

func TestDecodeAnalogsShortPayload(t *testing.T) {
	_, err := DecodeAnalogs(make([]byte, 11))
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestCodecDispatch(t *testing.T) {
	c := NewCodec()

	tests := []struct {
		name    string
		id      uint8
		payload []byte
		want    Message
		wantErr error
	}{
		{"orientation", IDOrientation, EncodeOrientation(Orientation{Roll: 12.5}), Orientation{Roll: 12.5}, nil},
		{"analogs", IDAnalogs, make([]byte, 12), Analogs{}, nil},
		{"gps", IDGPS, []byte{1, 2, 3}, Unsupported{ID: IDGPS}, ErrUnsupportedMessage},
		{"secondary imu", IDSecondaryIMU, nil, Unsupported{ID: IDSecondaryIMU}, ErrUnsupportedMessage},
		{"unknown", 0x42, []byte{9}, Unknown{ID: 0x42}, ErrUnknownMessageID},
		{"zero id", 0x00, nil, Unknown{ID: 0x00}, ErrUnknownMessageID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := c.Decode(tt.id, tt.payload)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, msg)
			assert.Equal(t, tt.id, msg.MessageID())
		})
	}
}

func TestEncodeOrientationRoundsAndClamps(t *testing.T) {
	payload := EncodeOrientation(Orientation{Roll: 1.005, Pitch: -400, Yaw: 400})
	msg, err := DecodeOrientation(payload)
	require.NoError(t, err)
	o := msg.(Orientation)
	assert.InDelta(t, 1.0, o.Roll, 0.011)
	assert.InDelta(t, -327.68, o.Pitch, 1e-9)
	assert.InDelta(t, 327.67, o.Yaw, 1e-9)
}

func TestEncodeAnalogsInverse(t *testing.T) {
	in := Analogs{
		Analog: AnalogReadings{X: -5, Y: 512, Z: 7},
		Accel:  AccelReadings{X: 100, Y: -100, Z: 1000},
	}
	msg, err := DecodeAnalogs(EncodeAnalogs(in))
	require.NoError(t, err)
	assert.Equal(t, in, msg)
}
