package foxglove

import (
	"encoding/binary"
	"time"
)

// Foxglove WebSocket protocol v1 operations.
const (
	Subprotocol = "foxglove.websocket.v1"

	OpServerInfo  = "serverInfo"
	OpAdvertise   = "advertise"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpStatus      = "status"

	BinaryOpMessageData = 0x01
)

// Log levels of foxglove.Log.
const (
	LogLevelDebug   uint8 = 1
	LogLevelInfo    uint8 = 2
	LogLevelWarning uint8 = 3
	LogLevelError   uint8 = 4
)

type ServerInfoMsg struct {
	Op                 string            `json:"op"`
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities"`
	SupportedEncodings []string          `json:"supportedEncodings,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	SessionID          string            `json:"sessionId,omitempty"`
}

type Channel struct {
	ID             uint64 `json:"id"`
	Topic          string `json:"topic"`
	Encoding       string `json:"encoding"`
	SchemaName     string `json:"schemaName"`
	SchemaEncoding string `json:"schemaEncoding,omitempty"`
	Schema         string `json:"schema,omitempty"`
}

type AdvertiseMsg struct {
	Op       string    `json:"op"`
	Channels []Channel `json:"channels"`
}

type Subscription struct {
	ID        uint32 `json:"id"`
	ChannelID uint64 `json:"channelId"`
}

type SubscribeMsg struct {
	Op            string         `json:"op"`
	Subscriptions []Subscription `json:"subscriptions"`
}

type UnsubscribeMsg struct {
	Op              string   `json:"op"`
	SubscriptionIDs []uint32 `json:"subscriptionIds"`
}

// StatusMsg reports a problem with a client request.
type StatusMsg struct {
	Op      string `json:"op"`
	Level   uint8  `json:"level"`
	Message string `json:"message"`
}

// EncodeMessageData builds a binary messageData frame.
func EncodeMessageData(subscriptionID uint32, logTime uint64, payload []byte) []byte {
	out := make([]byte, 1+4+8+len(payload))
	out[0] = BinaryOpMessageData
	binary.LittleEndian.PutUint32(out[1:5], subscriptionID)
	binary.LittleEndian.PutUint64(out[5:13], logTime)
	copy(out[13:], payload)
	return out
}

// DecodeMessageData splits a messageData frame. ok is false for any other
// binary opcode or a short frame.
func DecodeMessageData(frame []byte) (subscriptionID uint32, logTime uint64, payload []byte, ok bool) {
	if len(frame) < 13 || frame[0] != BinaryOpMessageData {
		return 0, 0, nil, false
	}
	return binary.LittleEndian.Uint32(frame[1:5]), binary.LittleEndian.Uint64(frame[5:13]), frame[13:], true
}

// PacketRecord is published on the packet channel for every sample.
type PacketRecord struct {
	ID         string `json:"id"`
	TS         string `json:"ts,omitempty"`
	Kind       string `json:"kind"`
	PayloadHex string `json:"payload_hex"`
	Data       any    `json:"data,omitempty"`
}

type Time struct {
	Sec  uint32 `json:"sec"`
	Nsec uint32 `json:"nsec"`
}

func stamp(ts time.Time) Time {
	return Time{Sec: uint32(ts.Unix()), Nsec: uint32(ts.Nanosecond())}
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type ColorRGBA struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

type FrameTransform struct {
	Timestamp     Time       `json:"timestamp"`
	ParentFrameID string     `json:"parent_frame_id"`
	ChildFrameID  string     `json:"child_frame_id"`
	Translation   Vector3    `json:"translation"`
	Rotation      Quaternion `json:"rotation"`
}

type FrameTransforms struct {
	Transforms []FrameTransform `json:"transforms"`
}

type MarkerHeader struct {
	FrameID string `json:"frame_id"`
	Stamp   Time   `json:"stamp"`
}

type Pose struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

type Marker struct {
	Header MarkerHeader `json:"header"`
	NS     string       `json:"ns"`
	ID     int32        `json:"id"`
	Type   int32        `json:"type"`
	Action int32        `json:"action"`
	Pose   Pose         `json:"pose"`
	Scale  Vector3      `json:"scale"`
	Color  ColorRGBA    `json:"color"`
}

// Vector3Stamped carries the raw accelerometer counts.
type Vector3Stamped struct {
	Timestamp Time    `json:"timestamp"`
	FrameID   string  `json:"frame_id"`
	Vector    Vector3 `json:"vector"`
}

type Log struct {
	Timestamp Time   `json:"timestamp"`
	Level     uint8  `json:"level"`
	Message   string `json:"message"`
	Name      string `json:"name"`
	File      string `json:"file"`
	Line      uint32 `json:"line"`
}
