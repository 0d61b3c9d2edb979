package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"razorlink/pkg/bridge/foxglove"
	"razorlink/pkg/logging"
	"razorlink/pkg/transport"
)

const DefaultConfigPath = "razor.toml"

// Source kinds.
const (
	SourceSerial = "serial"
	SourceTCP    = "tcp"
	SourceMock   = "mock"
)

// StdoutPath selects standard output for the JSONL sink.
const StdoutPath = "-"

type RazorConfig struct {
	Source     SourceConfig   `toml:"source"`
	Mock       MockConfig     `toml:"mock"`
	Output     OutputConfig   `toml:"output"`
	Foxglove   FoxgloveConfig `toml:"foxglove"`
	Log        LogConfig      `toml:"log"`
	configPath string         `toml:"-"`
}

type SourceConfig struct {
	Kind         string                `toml:"kind"`
	Device       string                `toml:"device"`
	Port         transport.PortOptions `toml:"port"`
	Addr         string                `toml:"addr"`
	Reconnect    string                `toml:"reconnect"`
	ReconnectMax string                `toml:"reconnect_max"`
	ReadBuf      int                   `toml:"read_buf"`
	ChunkBuf     int                   `toml:"chunk_buf"`
}

type MockConfig struct {
	Addr         string  `toml:"addr"`
	Hz           int     `toml:"hz"`
	GarbageRatio float64 `toml:"garbage_ratio"`
	CorruptRatio float64 `toml:"corrupt_ratio"`
	Seed         int64   `toml:"seed"`
}

type OutputConfig struct {
	JSONL  string `toml:"jsonl"`
	SQLite string `toml:"sqlite,omitempty"`
	// StatsInterval controls how often decoder counters are recorded.
	StatsInterval string `toml:"stats_interval"`
}

type FoxgloveConfig struct {
	Enabled        bool   `toml:"enabled"`
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

type LogConfig struct {
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	NoColor bool   `toml:"no_color"`
}

func Default() RazorConfig {
	fox := foxglove.DefaultConfig()
	return RazorConfig{
		Source: SourceConfig{
			Kind:         SourceSerial,
			Device:       defaultDevice(),
			Port:         transport.PortOptions{BaudRate: transport.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
			Addr:         "127.0.0.1:19000",
			Reconnect:    "1s",
			ReconnectMax: "10s",
			ReadBuf:      4096,
			ChunkBuf:     64,
		},
		Mock: MockConfig{
			Addr:         "127.0.0.1:19000",
			Hz:           50,
			GarbageRatio: 0.05,
			CorruptRatio: 0.02,
			Seed:         1,
		},
		Output: OutputConfig{
			JSONL:         StdoutPath,
			StatsInterval: "5s",
		},
		Foxglove: FoxgloveConfig{
			Enabled:        false,
			WSAddr:         fox.WSAddr,
			Name:           fox.Name,
			PacketTopic:    fox.PacketTopic,
			TransformTopic: fox.TransformTopic,
			MarkerTopic:    fox.MarkerTopic,
			AccelTopic:     fox.AccelTopic,
			LogTopic:       fox.LogTopic,
			ParentFrameID:  fox.ParentFrameID,
			FrameID:        fox.FrameID,
			SendBuf:        fox.SendBuf,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

func defaultDevice() string {
	if os.PathSeparator == '\\' {
		return "COM3"
	}
	return "/dev/ttyUSB0"
}

func Load(path string) (RazorConfig, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return RazorConfig{}, err
	}
	if !exists {
		return RazorConfig{}, os.ErrNotExist
	}
	return cfg, nil
}

// LoadOrDefault reads path over the defaults. A missing file is not an
// error; exists reports whether it was found.
func LoadOrDefault(path string) (RazorConfig, bool, error) {
	cfg := Default()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.normalize(path)
			return cfg, false, nil
		}
		return RazorConfig{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return RazorConfig{}, true, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize(path)

	if err := cfg.Validate(); err != nil {
		return RazorConfig{}, true, err
	}
	return cfg, true, nil
}

func (cfg *RazorConfig) Save(path string) error {
	cfg.normalize(path)
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (cfg *RazorConfig) ConfigPath() string {
	return cfg.configPath
}

func (cfg *RazorConfig) Validate() error {
	switch cfg.Source.Kind {
	case SourceSerial:
		if cfg.Source.Device == "" {
			return errors.New("source.device is required for serial sources")
		}
		if _, err := cfg.Source.Port.Normalize(); err != nil {
			return fmt.Errorf("source.port: %w", err)
		}
	case SourceTCP:
		if cfg.Source.Addr == "" {
			return errors.New("source.addr is required for tcp sources")
		}
	case SourceMock:
	default:
		return fmt.Errorf("source.kind %q: expected serial, tcp or mock", cfg.Source.Kind)
	}

	for name, raw := range map[string]string{
		"source.reconnect":      cfg.Source.Reconnect,
		"source.reconnect_max":  cfg.Source.ReconnectMax,
		"output.stats_interval": cfg.Output.StatsInterval,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, raw)
		}
	}

	if cfg.Mock.Hz <= 0 || cfg.Mock.Hz > 1000 {
		return fmt.Errorf("mock.hz out of range: %d", cfg.Mock.Hz)
	}
	if cfg.Mock.GarbageRatio < 0 || cfg.Mock.GarbageRatio >= 1 {
		return fmt.Errorf("mock.garbage_ratio out of range: %v", cfg.Mock.GarbageRatio)
	}
	if cfg.Mock.CorruptRatio < 0 || cfg.Mock.CorruptRatio >= 1 {
		return fmt.Errorf("mock.corrupt_ratio out of range: %v", cfg.Mock.CorruptRatio)
	}

	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("log.level %q is not a level", cfg.Log.Level)
	}
	if cfg.Log.Format != logging.FormatConsole && cfg.Log.Format != logging.FormatJSON {
		return fmt.Errorf("log.format %q: expected console or json", cfg.Log.Format)
	}

	if cfg.Foxglove.Enabled {
		if err := cfg.Bridge().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ReconnectInterval returns the parsed reconnect delay and cap.
func (cfg *RazorConfig) ReconnectInterval() (time.Duration, time.Duration) {
	base, _ := time.ParseDuration(cfg.Source.Reconnect)
	limit, _ := time.ParseDuration(cfg.Source.ReconnectMax)
	return base, limit
}

func (cfg *RazorConfig) StatsInterval() time.Duration {
	d, _ := time.ParseDuration(cfg.Output.StatsInterval)
	return d
}

// Bridge converts the [foxglove] section.
func (cfg *RazorConfig) Bridge() foxglove.Config {
	f := cfg.Foxglove
	return foxglove.Config{
		WSAddr:         f.WSAddr,
		Name:           f.Name,
		PacketTopic:    f.PacketTopic,
		TransformTopic: f.TransformTopic,
		MarkerTopic:    f.MarkerTopic,
		AccelTopic:     f.AccelTopic,
		LogTopic:       f.LogTopic,
		ParentFrameID:  f.ParentFrameID,
		FrameID:        f.FrameID,
		SendBuf:        f.SendBuf,
	}.WithDefaults()
}

// Logging converts the [log] section for the given profile.
func (cfg *RazorConfig) Logging(profile logging.Profile) logging.Config {
	out := logging.DefaultConfig(profile)
	out.Level = cfg.Log.Level
	out.Format = cfg.Log.Format
	out.NoColor = out.NoColor || cfg.Log.NoColor
	return out
}

func (cfg *RazorConfig) normalize(path string) {
	def := Default()

	cfg.Source.Kind = strings.ToLower(strings.TrimSpace(cfg.Source.Kind))
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = def.Source.Kind
	}
	if n, err := cfg.Source.Port.Normalize(); err == nil {
		cfg.Source.Port = n
	}
	if cfg.Source.Reconnect == "" {
		cfg.Source.Reconnect = def.Source.Reconnect
	}
	if cfg.Source.ReconnectMax == "" {
		cfg.Source.ReconnectMax = def.Source.ReconnectMax
	}
	if cfg.Source.ReadBuf <= 0 {
		cfg.Source.ReadBuf = def.Source.ReadBuf
	}
	if cfg.Source.ChunkBuf <= 0 {
		cfg.Source.ChunkBuf = def.Source.ChunkBuf
	}

	if cfg.Mock.Addr == "" {
		cfg.Mock.Addr = def.Mock.Addr
	}
	if cfg.Mock.Hz == 0 {
		cfg.Mock.Hz = def.Mock.Hz
	}

	if cfg.Output.StatsInterval == "" {
		cfg.Output.StatsInterval = def.Output.StatsInterval
	}
	if cfg.Output.SQLite != "" && !filepath.IsAbs(cfg.Output.SQLite) {
		resolved := filepath.Join(baseDir(path), cfg.Output.SQLite)
		if abs, err := filepath.Abs(resolved); err == nil {
			resolved = abs
		}
		cfg.Output.SQLite = resolved
	}

	br := cfg.Bridge()
	cfg.Foxglove.WSAddr = br.WSAddr
	cfg.Foxglove.Name = br.Name
	cfg.Foxglove.PacketTopic = br.PacketTopic
	cfg.Foxglove.TransformTopic = br.TransformTopic
	cfg.Foxglove.MarkerTopic = br.MarkerTopic
	cfg.Foxglove.AccelTopic = br.AccelTopic
	cfg.Foxglove.LogTopic = br.LogTopic
	cfg.Foxglove.ParentFrameID = br.ParentFrameID
	cfg.Foxglove.FrameID = br.FrameID
	cfg.Foxglove.SendBuf = br.SendBuf

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}

	if path == "" {
		path = cfg.configPath
	}
	if path == "" {
		path = DefaultConfigPath
	}
	cfg.configPath = path
}

// baseDir resolves relative output paths against the config file.
func baseDir(path string) string {
	if path == "" {
		return "."
	}
	return filepath.Dir(path)
}
