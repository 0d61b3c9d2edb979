package foxglove

import "fmt"

// Channel ids are fixed; topics and frame ids are configurable.
const (
	PacketChannelID    uint64 = 1
	TransformChannelID uint64 = 2
	MarkerChannelID    uint64 = 3
	AccelChannelID     uint64 = 4
	LogChannelID       uint64 = 5
)

const packetSchema = `{
  "type": "object",
  "properties": {
    "id": { "type": "string" },
    "ts": { "type": "string" },
    "kind": { "type": "string" },
    "payload_hex": { "type": "string" },
    "data": { "type": "object", "additionalProperties": true }
  },
  "required": ["id", "kind", "payload_hex"]
}`

const timeSchema = `{
      "type": "object",
      "properties": { "sec": { "type": "integer" }, "nsec": { "type": "integer" } }
    }`

const vectorSchema = `{
      "type": "object",
      "properties": { "x": { "type": "number" }, "y": { "type": "number" }, "z": { "type": "number" } }
    }`

const quaternionSchema = `{
      "type": "object",
      "properties": {
        "x": { "type": "number" }, "y": { "type": "number" },
        "z": { "type": "number" }, "w": { "type": "number" }
      }
    }`

var transformSchema = `{
  "type": "object",
  "properties": {
    "transforms": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "timestamp": ` + timeSchema + `,
          "parent_frame_id": { "type": "string" },
          "child_frame_id": { "type": "string" },
          "translation": ` + vectorSchema + `,
          "rotation": ` + quaternionSchema + `
        }
      }
    }
  }
}`

var markerSchema = `{
  "type": "object",
  "properties": {
    "header": {
      "type": "object",
      "properties": { "frame_id": { "type": "string" }, "stamp": ` + timeSchema + ` }
    },
    "ns": { "type": "string" },
    "id": { "type": "integer" },
    "type": { "type": "integer" },
    "action": { "type": "integer" },
    "pose": {
      "type": "object",
      "properties": { "position": ` + vectorSchema + `, "orientation": ` + quaternionSchema + ` }
    },
    "scale": ` + vectorSchema + `,
    "color": {
      "type": "object",
      "properties": {
        "r": { "type": "number" }, "g": { "type": "number" },
        "b": { "type": "number" }, "a": { "type": "number" }
      }
    }
  }
}`

var accelSchema = `{
  "type": "object",
  "properties": {
    "timestamp": ` + timeSchema + `,
    "frame_id": { "type": "string" },
    "vector": ` + vectorSchema + `
  }
}`

var logSchema = `{
  "type": "object",
  "properties": {
    "timestamp": ` + timeSchema + `,
    "level": { "type": "integer" },
    "message": { "type": "string" },
    "name": { "type": "string" },
    "file": { "type": "string" },
    "line": { "type": "integer" }
  }
}`

type Config struct {
	WSAddr         string `toml:"ws_addr"`
	Name           string `toml:"name"`
	PacketTopic    string `toml:"packet_topic"`
	TransformTopic string `toml:"transform_topic"`
	MarkerTopic    string `toml:"marker_topic"`
	AccelTopic     string `toml:"accel_topic"`
	LogTopic       string `toml:"log_topic"`
	ParentFrameID  string `toml:"parent_frame_id"`
	FrameID        string `toml:"frame_id"`
	SendBuf        int    `toml:"send_buf"`
}

func DefaultConfig() Config {
	return Config{
		WSAddr:         "127.0.0.1:8765",
		Name:           "razorlink",
		PacketTopic:    "razor/packet",
		TransformTopic: "/tf",
		MarkerTopic:    "razor/imu/marker",
		AccelTopic:     "razor/imu/accel",
		LogTopic:       "razor/decoder/log",
		ParentFrameID:  "world",
		FrameID:        "razor_imu",
		SendBuf:        256,
	}
}

// WithDefaults fills every empty field from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&c.WSAddr, d.WSAddr)
	fill(&c.Name, d.Name)
	fill(&c.PacketTopic, d.PacketTopic)
	fill(&c.TransformTopic, d.TransformTopic)
	fill(&c.MarkerTopic, d.MarkerTopic)
	fill(&c.AccelTopic, d.AccelTopic)
	fill(&c.LogTopic, d.LogTopic)
	fill(&c.ParentFrameID, d.ParentFrameID)
	fill(&c.FrameID, d.FrameID)
	if c.SendBuf <= 0 {
		c.SendBuf = d.SendBuf
	}
	return c
}

// Validate rejects configurations that would advertise ambiguous channels.
func (c Config) Validate() error {
	c = c.WithDefaults()
	seen := make(map[string]string, 5)
	for name, topic := range map[string]string{
		"packet_topic":    c.PacketTopic,
		"transform_topic": c.TransformTopic,
		"marker_topic":    c.MarkerTopic,
		"accel_topic":     c.AccelTopic,
		"log_topic":       c.LogTopic,
	} {
		if other, ok := seen[topic]; ok {
			return fmt.Errorf("foxglove %s and %s share topic %q", other, name, topic)
		}
		seen[topic] = name
	}
	if c.FrameID == c.ParentFrameID {
		return fmt.Errorf("foxglove frame_id must differ from parent_frame_id (%q)", c.FrameID)
	}
	return nil
}

func (c Config) channels() []Channel {
	return []Channel{
		{ID: PacketChannelID, Topic: c.PacketTopic, Encoding: "json",
			SchemaName: "razor.Packet", SchemaEncoding: "jsonschema", Schema: packetSchema},
		{ID: TransformChannelID, Topic: c.TransformTopic, Encoding: "json",
			SchemaName: "foxglove.FrameTransforms", SchemaEncoding: "jsonschema", Schema: transformSchema},
		{ID: MarkerChannelID, Topic: c.MarkerTopic, Encoding: "json",
			SchemaName: "visualization_msgs/Marker", SchemaEncoding: "jsonschema", Schema: markerSchema},
		{ID: AccelChannelID, Topic: c.AccelTopic, Encoding: "json",
			SchemaName: "razor.Vector3Stamped", SchemaEncoding: "jsonschema", Schema: accelSchema},
		{ID: LogChannelID, Topic: c.LogTopic, Encoding: "json",
			SchemaName: "foxglove.Log", SchemaEncoding: "jsonschema", Schema: logSchema},
	}
}
