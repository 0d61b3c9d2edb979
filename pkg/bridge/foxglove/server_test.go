package foxglove

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"razorlink/pkg/protocol"
)

func assertQuat(t *testing.T, want, got Quaternion) {
	t.Helper()
	const eps = 1e-9
	assert.InDelta(t, want.W, got.W, eps, "w")
	assert.InDelta(t, want.X, got.X, eps, "x")
	assert.InDelta(t, want.Y, got.Y, eps, "y")
	assert.InDelta(t, want.Z, got.Z, eps, "z")
}

func TestQuaternionFromEuler(t *testing.T) {
	h := math.Sqrt2 / 2
	tests := []struct {
		name string
		in   protocol.Orientation
		want Quaternion
	}{
		{"identity", protocol.Orientation{}, Quaternion{W: 1}},
		{"roll 90", protocol.Orientation{Roll: 90}, Quaternion{W: h, X: h}},
		{"pitch 90", protocol.Orientation{Pitch: 90}, Quaternion{W: h, Y: h}},
		{"yaw 90", protocol.Orientation{Yaw: 90}, Quaternion{W: h, Z: h}},
		{"yaw 180", protocol.Orientation{Yaw: 180}, Quaternion{Z: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertQuat(t, tt.want, QuaternionFromEuler(tt.in))
		})
	}
}

func TestQuaternionFromEulerIsUnit(t *testing.T) {
	q := QuaternionFromEuler(protocol.Orientation{Roll: 12.34, Pitch: -56.78, Yaw: 179.99})
	norm := q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z
	assert.InDelta(t, 1.0, norm, 1e-12)
}

func TestTransformAndMarkerFor(t *testing.T) {
	srv := NewServer(Config{}, nil)
	ts := time.Unix(42, 99)
	o := protocol.Orientation{Yaw: 90}

	tf := srv.transformFor(o, ts)
	require.Len(t, tf.Transforms, 1)
	assert.Equal(t, "world", tf.Transforms[0].ParentFrameID)
	assert.Equal(t, "razor_imu", tf.Transforms[0].ChildFrameID)
	assert.Equal(t, Time{Sec: 42, Nsec: 99}, tf.Transforms[0].Timestamp)
	assert.Equal(t, Vector3{}, tf.Transforms[0].Translation)

	marker := srv.markerFor(o, ts)
	assert.Equal(t, "razor_imu", marker.Header.FrameID)
	assert.Equal(t, int32(markerTypeCube), marker.Type)
	assert.Equal(t, int32(markerActionAdd), marker.Action)
	assertQuat(t, tf.Transforms[0].Rotation, marker.Pose.Orientation)
}

func TestAccelFor(t *testing.T) {
	srv := NewServer(Config{FrameID: "imu"}, nil)
	v := srv.accelFor(protocol.Analogs{Accel: protocol.AccelReadings{X: -3, Y: 0, Z: 256}}, time.Unix(1, 0))
	assert.Equal(t, "imu", v.FrameID)
	assert.Equal(t, Vector3{X: -3, Y: 0, Z: 256}, v.Vector)
}

func TestLogFor(t *testing.T) {
	srv := NewServer(Config{}, nil)
	ts := time.Unix(5, 0)

	_, ok := srv.logFor(protocol.Event{Kind: protocol.EventMessage}, ts)
	assert.False(t, ok)

	entry, ok := srv.logFor(protocol.Event{
		Kind: protocol.EventChecksumError,
		Err:  errors.New("checksum mismatch"),
	}, ts)
	require.True(t, ok)
	assert.Equal(t, LogLevelWarning, entry.Level)
	assert.Equal(t, "checksum mismatch", entry.Message)
	assert.Equal(t, "razorlink", entry.Name)

	entry, ok = srv.logFor(protocol.Event{Kind: protocol.EventUnsupported, ID: protocol.IDGPS}, ts)
	require.True(t, ok)
	assert.Equal(t, LogLevelInfo, entry.Level)
	assert.Equal(t, "unsupported", entry.Message)
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	cfg := Config{Name: "bench"}.WithDefaults()
	assert.Equal(t, "bench", cfg.Name)
	assert.Equal(t, DefaultConfig().WSAddr, cfg.WSAddr)
	assert.Equal(t, 256, cfg.SendBuf)
	require.NoError(t, cfg.Validate())

	dup := DefaultConfig()
	dup.AccelTopic = dup.PacketTopic
	assert.ErrorContains(t, dup.Validate(), "share topic")

	same := DefaultConfig()
	same.FrameID = same.ParentFrameID
	assert.Error(t, same.Validate())
}

func TestMessageDataRoundTrip(t *testing.T) {
	frame := EncodeMessageData(7, 1234, []byte(`{"a":1}`))
	id, logTime, payload, ok := DecodeMessageData(frame)
	require.True(t, ok)
	assert.Equal(t, uint32(7), id)
	assert.Equal(t, uint64(1234), logTime)
	assert.Equal(t, []byte(`{"a":1}`), payload)

	_, _, _, ok = DecodeMessageData([]byte{0x02, 0, 0})
	assert.False(t, ok)
}
