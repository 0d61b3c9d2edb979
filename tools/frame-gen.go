package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"razorlink/pkg/config"
	"razorlink/pkg/protocol"
)

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "orientation":
		return runOrientation(args[1:], stdout, stderr)
	case "analogs":
		return runAnalogs(args[1:], stdout, stderr)
	case "raw":
		return runRaw(args[1:], stdout, stderr)
	case "decode":
		return runDecode(args[1:], stdout, stderr)
	case "config":
		return runConfig(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	binary := fs.Bool("binary", false, "write raw bytes instead of hex")
	return fs, binary
}

func runOrientation(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, binary := newFlagSet("orientation", stderr)
	roll := fs.Float64("roll", 0, "roll in degrees")
	pitch := fs.Float64("pitch", 0, "pitch in degrees")
	yaw := fs.Float64("yaw", 0, "yaw in degrees")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	payload := protocol.EncodeOrientation(protocol.Orientation{Roll: *roll, Pitch: *pitch, Yaw: *yaw})
	return emit(stdout, stderr, protocol.IDOrientation, payload, *binary)
}

func runAnalogs(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, binary := newFlagSet("analogs", stderr)
	analog := fs.String("analog", "0,0,0", "analog x,y,z")
	accel := fs.String("accel", "0,0,256", "accelerometer x,y,z")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	an, err := parseTriple(*analog)
	if err != nil {
		fmt.Fprintln(stderr, "invalid --analog:", err)
		return 2
	}
	ac, err := parseTriple(*accel)
	if err != nil {
		fmt.Fprintln(stderr, "invalid --accel:", err)
		return 2
	}
	payload := protocol.EncodeAnalogs(protocol.Analogs{
		Analog: protocol.AnalogReadings{X: an[0], Y: an[1], Z: an[2]},
		Accel:  protocol.AccelReadings{X: ac[0], Y: ac[1], Z: ac[2]},
	})
	return emit(stdout, stderr, protocol.IDAnalogs, payload, *binary)
}

func runRaw(args []string, stdout io.Writer, stderr io.Writer) int {
	fs, binary := newFlagSet("raw", stderr)
	idStr := fs.String("id", "0x02", "message id")
	payloadHex := fs.String("payload", "", "payload bytes as hex")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	id, err := parseUint8(*idStr)
	if err != nil {
		fmt.Fprintln(stderr, "invalid --id:", err)
		return 2
	}
	payload, err := hex.DecodeString(strings.ReplaceAll(*payloadHex, " ", ""))
	if err != nil {
		fmt.Fprintln(stderr, "invalid --payload:", err)
		return 2
	}
	return emit(stdout, stderr, id, payload, *binary)
}

// runDecode feeds hex bytes through the decoder and prints every event.
func runDecode(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	raw, err := hex.DecodeString(strings.Join(strings.Fields(strings.Join(fs.Args(), " ")), ""))
	if err != nil {
		fmt.Fprintln(stderr, "invalid hex:", err)
		return 2
	}

	dec := protocol.NewDecoder()
	for _, ev := range dec.Feed(raw) {
		switch {
		case ev.Message != nil && ev.Err == nil:
			fmt.Fprintf(stdout, "%s id=0x%02x %+v\n", ev.Kind, ev.ID, ev.Message)
		default:
			fmt.Fprintf(stdout, "%s id=0x%02x %v\n", ev.Kind, ev.ID, ev.Err)
		}
	}
	st := dec.Stats()
	fmt.Fprintf(stdout, "messages=%d length_errors=%d checksum_errors=%d malformed=%d state=%s\n",
		st.MessagesReceived, st.PayloadLengthErrors, st.ChecksumErrors, st.MalformedPayloads, dec.State())
	return 0
}

// runConfig writes a default razor.toml.
func runConfig(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", config.DefaultConfigPath, "destination path")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(*out); err == nil && !*force {
		fmt.Fprintf(stderr, "%s exists, use --force to overwrite\n", *out)
		return 1
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(stderr, "stat config:", err)
		return 1
	}

	cfg := config.Default()
	if err := cfg.Save(*out); err != nil {
		fmt.Fprintln(stderr, "write config failed:", err)
		return 1
	}
	fmt.Fprintf(stdout, "[Config] Wrote %s\n", *out)
	return 0
}

func emit(stdout io.Writer, stderr io.Writer, id uint8, payload []byte, binary bool) int {
	frame, err := protocol.EncodeFrame(id, payload)
	if err != nil {
		fmt.Fprintln(stderr, "encode frame failed:", err)
		return 1
	}
	if binary {
		_, err = stdout.Write(frame)
	} else {
		_, err = fmt.Fprintln(stdout, hex.EncodeToString(frame))
	}
	if err != nil {
		fmt.Fprintln(stderr, "write frame failed:", err)
		return 1
	}
	return 0
}

func parseUint8(value string) (uint8, error) {
	n, err := strconv.ParseUint(value, 0, 8)
	if err != nil {
		return 0, err
	}
	return uint8(n), nil
}

func parseTriple(value string) ([3]int16, error) {
	var out [3]int16
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("want 3 comma separated values, got %d", len(parts))
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 0, 16)
		if err != nil {
			return out, err
		}
		out[i] = int16(n)
	}
	return out, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  frame-gen orientation [--roll deg] [--pitch deg] [--yaw deg] [--binary]")
	fmt.Fprintln(w, "  frame-gen analogs [--analog x,y,z] [--accel x,y,z] [--binary]")
	fmt.Fprintln(w, "  frame-gen raw --id 0x02 --payload 0064ff380000 [--binary]")
	fmt.Fprintln(w, "  frame-gen decode 44495964060200...")
	fmt.Fprintln(w, "  frame-gen config [--out razor.toml] [--force]")
}
