package foxglove

import (
	"math"
	"time"

	"razorlink/pkg/protocol"
)

const (
	markerTypeCube  = 1
	markerActionAdd = 0
	markerNamespace = "razor.imu"
)

// QuaternionFromEuler converts roll/pitch/yaw in degrees, applied in Z-Y-X
// order, to a unit quaternion.
func QuaternionFromEuler(o protocol.Orientation) Quaternion {
	const toRad = math.Pi / 180
	sr, cr := math.Sincos(o.Roll * toRad / 2)
	sp, cp := math.Sincos(o.Pitch * toRad / 2)
	sy, cy := math.Sincos(o.Yaw * toRad / 2)
	return Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

func (s *Server) transformFor(o protocol.Orientation, ts time.Time) FrameTransforms {
	return FrameTransforms{Transforms: []FrameTransform{{
		Timestamp:     stamp(ts),
		ParentFrameID: s.cfg.ParentFrameID,
		ChildFrameID:  s.cfg.FrameID,
		Rotation:      QuaternionFromEuler(o),
	}}}
}

func (s *Server) markerFor(o protocol.Orientation, ts time.Time) Marker {
	return Marker{
		Header: MarkerHeader{FrameID: s.cfg.FrameID, Stamp: stamp(ts)},
		NS:     markerNamespace,
		ID:     1,
		Type:   markerTypeCube,
		Action: markerActionAdd,
		Pose:   Pose{Orientation: QuaternionFromEuler(o)},
		Scale:  Vector3{X: 0.3, Y: 0.2, Z: 0.05},
		Color:  ColorRGBA{R: 1, G: 1, B: 1, A: 1},
	}
}

func (s *Server) accelFor(a protocol.Analogs, ts time.Time) Vector3Stamped {
	return Vector3Stamped{
		Timestamp: stamp(ts),
		FrameID:   s.cfg.FrameID,
		Vector:    Vector3{X: float64(a.Accel.X), Y: float64(a.Accel.Y), Z: float64(a.Accel.Z)},
	}
}

// logFor maps a decoder event to a log entry. Decoded messages have none.
func (s *Server) logFor(ev protocol.Event, ts time.Time) (Log, bool) {
	var level uint8
	switch ev.Kind {
	case protocol.EventUnsupported:
		level = LogLevelInfo
	case protocol.EventUnknown, protocol.EventLengthError,
		protocol.EventChecksumError, protocol.EventMalformedPayload:
		level = LogLevelWarning
	default:
		return Log{}, false
	}
	msg := ev.Kind.String()
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	return Log{
		Timestamp: stamp(ts),
		Level:     level,
		Message:   msg,
		Name:      s.cfg.Name,
	}, true
}
