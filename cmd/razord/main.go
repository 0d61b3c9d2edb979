package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"razorlink/pkg/config"
	"razorlink/pkg/engine"
	"razorlink/pkg/logging"
	"razorlink/pkg/tui"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		return runServer(context.Background(), []string{}, stdout, stderr)
	}

	switch args[0] {
	case "server":
		return runServer(context.Background(), args[1:], stdout, stderr)
	case "monitor":
		return runMonitor(context.Background(), args[1:], stdout, stderr)
	case "mock":
		return runMock(context.Background(), args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		if len(args[0]) > 0 && args[0][0] == '-' {
			return runServer(context.Background(), args, stdout, stderr)
		}
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

// pipelineFlags are the overrides shared by server and monitor. Only flags
// given on the command line replace config values.
type pipelineFlags struct {
	fs         *flag.FlagSet
	configPath string
	source     string
	device     string
	baud       int
	addr       string
	reconnect  time.Duration
	jsonl      string
	sqlite     string
	foxglove   bool
	wsAddr     string
	logLevel   string
	logFormat  string
}

func newPipelineFlags(name string, stderr io.Writer) *pipelineFlags {
	f := &pipelineFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.SetOutput(stderr)
	f.fs.StringVar(&f.configPath, "config", config.DefaultConfigPath, "config file")
	f.fs.StringVar(&f.source, "source", "", "byte source: serial, tcp or mock")
	f.fs.StringVar(&f.device, "device", "", "serial device")
	f.fs.IntVar(&f.baud, "baud", 0, "serial baud rate")
	f.fs.StringVar(&f.addr, "addr", "", "TCP address of a serial bridge")
	f.fs.DurationVar(&f.reconnect, "reconnect", 0, "reconnect interval")
	f.fs.StringVar(&f.jsonl, "jsonl", "", "JSONL output path, - for stdout, off to disable")
	f.fs.StringVar(&f.sqlite, "sqlite", "", "SQLite recorder path")
	f.fs.BoolVar(&f.foxglove, "foxglove", false, "serve the Foxglove WebSocket bridge")
	f.fs.StringVar(&f.wsAddr, "ws-addr", "", "Foxglove listen address")
	f.fs.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn or error")
	f.fs.StringVar(&f.logFormat, "log-format", "", "console or json")
	return f
}

// load parses args, reads the config file and applies explicit flags.
func (f *pipelineFlags) load(args []string) (config.RazorConfig, error) {
	if err := f.fs.Parse(args); err != nil {
		return config.RazorConfig{}, err
	}
	cfg, _, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return config.RazorConfig{}, err
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "source":
			cfg.Source.Kind = f.source
		case "device":
			cfg.Source.Device = f.device
		case "baud":
			cfg.Source.Port.BaudRate = f.baud
		case "addr":
			cfg.Source.Addr = f.addr
		case "reconnect":
			cfg.Source.Reconnect = f.reconnect.String()
		case "jsonl":
			cfg.Output.JSONL = f.jsonl
		case "sqlite":
			cfg.Output.SQLite = f.sqlite
		case "foxglove":
			cfg.Foxglove.Enabled = f.foxglove
		case "ws-addr":
			cfg.Foxglove.WSAddr = f.wsAddr
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.RazorConfig{}, err
	}
	return cfg, nil
}

func runServer(parent context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	flags := newPipelineFlags("server", stderr)
	cfg, err := flags.load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "config:", err)
		return 2
	}

	log := logging.New(stderr, cfg.Logging(logging.ProfileRuntime))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, stdout, log); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return 1
	}
	return 0
}

func runMonitor(parent context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	flags := newPipelineFlags("monitor", stderr)
	logFile := flags.fs.String("log-file", "", "write logs here instead of discarding them")
	cfg, err := flags.load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "config:", err)
		return 2
	}
	// stdout belongs to the terminal UI.
	if cfg.Output.JSONL == config.StdoutPath {
		cfg.Output.JSONL = ""
	}

	log := zerolog.Nop()
	if *logFile != "" {
		file, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(stderr, "failed to open log file:", err)
			return 1
		}
		defer file.Close()
		lc := cfg.Logging(logging.ProfileRuntime)
		lc.NoColor = true
		log = logging.New(file, lc)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	p := tea.NewProgram(tui.New(sourceLabel(cfg)),
		tea.WithContext(ctx),
		tea.WithOutput(stdout),
		tea.WithAltScreen(),
	)

	hub := engine.NewHub()
	go hub.Run(ctx)
	go tui.Forward(ctx, p, hub.Subscribe())

	errCh := make(chan error, 1)
	go func() {
		errCh <- servePipeline(ctx, cfg, hub, stdout, log,
			engine.WithStatsHandler(tui.StatsHandler(p)),
			engine.WithEventHandler(tui.FaultHandler(p)),
		)
	}()

	_, runErr := p.Run()
	cancel()
	if err := <-errCh; err != nil {
		fmt.Fprintln(stderr, "pipeline:", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		fmt.Fprintln(stderr, "monitor:", runErr)
		return 1
	}
	return 0
}

func runMock(parent context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("mock", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", config.DefaultConfigPath, "config file")
	addr := fs.String("addr", "", "listen address")
	hz := fs.Int("hz", 0, "frames per second")
	seed := fs.Int64("seed", 0, "random seed")
	garbage := fs.Float64("garbage", -1, "probability of line noise before a frame")
	corrupt := fs.Float64("corrupt", -1, "probability of a corrupted checksum")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, _, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 2
	}
	opts := mockOptions{
		Addr:    cfg.Mock.Addr,
		Hz:      cfg.Mock.Hz,
		Seed:    cfg.Mock.Seed,
		Garbage: cfg.Mock.GarbageRatio,
		Corrupt: cfg.Mock.CorruptRatio,
	}
	if *addr != "" {
		opts.Addr = *addr
	}
	if *hz > 0 {
		opts.Hz = *hz
	}
	if *seed != 0 {
		opts.Seed = *seed
	}
	if *garbage >= 0 {
		opts.Garbage = *garbage
	}
	if *corrupt >= 0 {
		opts.Corrupt = *corrupt
	}

	log := logging.Component(logging.New(stderr, cfg.Logging(logging.ProfileRuntime)), "mock")

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		fmt.Fprintln(stderr, "listen:", err)
		return 1
	}
	fmt.Fprintf(stdout, "mock razor imu on %s (%d Hz)\n", ln.Addr(), opts.Hz)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serveMock(ctx, ln, opts, log); err != nil {
		log.Error().Err(err).Msg("mock stopped")
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  razord [server] [--config razor.toml] [--source serial|tcp|mock] [--device /dev/ttyUSB0] [--baud 57600]")
	fmt.Fprintln(w, "                  [--addr host:port] [--jsonl file|-|off] [--sqlite file.db] [--foxglove] [--ws-addr host:port]")
	fmt.Fprintln(w, "  razord monitor  [same flags as server] [--log-file razord.log]")
	fmt.Fprintln(w, "  razord mock     [--addr 127.0.0.1:19000] [--hz 50] [--seed 1] [--garbage 0.05] [--corrupt 0.02]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  server   decode the IMU stream and fan it out to the configured sinks")
	fmt.Fprintln(w, "  monitor  decode the IMU stream into a live terminal view")
	fmt.Fprintln(w, "  mock     serve a simulated IMU byte stream over TCP")
}
