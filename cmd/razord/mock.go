package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"razorlink/pkg/protocol"
)

const (
	mockRollAmplitudeDeg  = 35.0
	mockPitchAmplitudeDeg = 25.0
	mockYawAmplitudeDeg   = 170.0

	mockRollFreqHz  = 0.23
	mockPitchFreqHz = 0.31
	mockYawFreqHz   = 0.05

	mockPitchPhaseRad = math.Pi / 3.0
	mockYawPhaseRad   = 2.0 * math.Pi / 3.0

	// One GPS frame (unsupported on the host) every this many ticks.
	mockGPSEvery = 50
)

// simulator produces the byte stream of a Razor IMU: orientation and
// analog frames with occasional line noise and corrupted checksums.
type simulator struct {
	rng     *rand.Rand
	garbage float64
	corrupt float64
	tick    uint64
}

func newSimulator(seed int64, garbage, corrupt float64) *simulator {
	return &simulator{
		rng:     rand.New(rand.NewPCG(uint64(seed), 0x52415a4f52)),
		garbage: garbage,
		corrupt: corrupt,
	}
}

func mockOrientation(t float64) protocol.Orientation {
	return protocol.Orientation{
		Roll:  mockRollAmplitudeDeg * math.Sin(2.0*math.Pi*mockRollFreqHz*t),
		Pitch: mockPitchAmplitudeDeg * math.Sin(2.0*math.Pi*mockPitchFreqHz*t+mockPitchPhaseRad),
		Yaw:   mockYawAmplitudeDeg * math.Sin(2.0*math.Pi*mockYawFreqHz*t+mockYawPhaseRad),
	}
}

// mockAnalogs models a board at rest under the given attitude: gravity
// (256 counts per g) projected on the accelerometer axes.
func mockAnalogs(o protocol.Orientation, t float64) protocol.Analogs {
	const g = 256.0
	roll := o.Roll * math.Pi / 180
	pitch := o.Pitch * math.Pi / 180
	ax := -g * math.Sin(pitch)
	ay := g * math.Sin(roll) * math.Cos(pitch)
	az := g * math.Cos(roll) * math.Cos(pitch)
	return protocol.Analogs{
		Analog: protocol.AnalogReadings{
			X: int16(512 + 100*math.Sin(t)),
			Y: int16(512 + 100*math.Cos(t)),
			Z: 512,
		},
		Accel: protocol.AccelReadings{X: int16(ax), Y: int16(ay), Z: int16(az)},
	}
}

// frames returns the bytes the device would emit at time t.
func (s *simulator) frames(t float64) []byte {
	s.tick++
	o := mockOrientation(t)

	var out []byte
	out = s.appendNoise(out)
	out = s.appendFrame(out, protocol.IDOrientation, protocol.EncodeOrientation(o))
	out = s.appendNoise(out)
	out = s.appendFrame(out, protocol.IDAnalogs, protocol.EncodeAnalogs(mockAnalogs(o, t)))
	if s.tick%mockGPSEvery == 0 {
		out = s.appendFrame(out, protocol.IDGPS, make([]byte, 12))
	}
	return out
}

func (s *simulator) appendFrame(out []byte, id uint8, payload []byte) []byte {
	frame, err := protocol.EncodeFrame(id, payload)
	if err != nil {
		return out
	}
	if s.rng.Float64() < s.corrupt {
		frame[len(frame)-1-s.rng.IntN(2)] ^= byte(1 + s.rng.IntN(255))
	}
	return append(out, frame...)
}

func (s *simulator) appendNoise(out []byte) []byte {
	if s.rng.Float64() >= s.garbage {
		return out
	}
	n := 1 + s.rng.IntN(8)
	for i := 0; i < n; i++ {
		out = append(out, byte(s.rng.IntN(256)))
	}
	return out
}

// split cuts b at random boundaries, the way a UART driver hands bytes
// over.
func (s *simulator) split(b []byte) [][]byte {
	var chunks [][]byte
	for len(b) > 0 {
		n := 1 + s.rng.IntN(min(len(b), 16))
		chunks = append(chunks, b[:n:n])
		b = b[n:]
	}
	return chunks
}

// runSimulator emits chunks at hz until ctx ends or emit fails.
func runSimulator(ctx context.Context, sim *simulator, hz int, emit func([]byte) error) error {
	if hz <= 0 {
		hz = 50
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, chunk := range sim.split(sim.frames(time.Since(start).Seconds())) {
				if err := emit(chunk); err != nil {
					return err
				}
			}
		}
	}
}

// startMockSource feeds simulated chunks straight into out.
func startMockSource(ctx context.Context, opts mockOptions, out chan<- []byte) {
	sim := newSimulator(opts.Seed, opts.Garbage, opts.Corrupt)
	go func() {
		_ = runSimulator(ctx, sim, opts.Hz, func(chunk []byte) error {
			select {
			case out <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
}

type mockOptions struct {
	Addr    string
	Hz      int
	Seed    int64
	Garbage float64
	Corrupt float64
}

// serveMock accepts TCP clients on ln and streams a simulated device to
// each one, as a serial-to-TCP bridge would.
func serveMock(ctx context.Context, ln net.Listener, opts mockOptions, log zerolog.Logger) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for n := int64(0); ; n++ {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("mock client connected")

		wg.Add(1)
		go func(conn net.Conn, seed int64) {
			defer wg.Done()
			defer conn.Close()
			connCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			release := context.AfterFunc(connCtx, func() { _ = conn.Close() })
			defer release()

			sim := newSimulator(seed, opts.Garbage, opts.Corrupt)
			err := runSimulator(connCtx, sim, opts.Hz, func(chunk []byte) error {
				_, err := conn.Write(chunk)
				return err
			})
			log.Info().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("mock client gone")
		}(conn, opts.Seed+n)
	}
}
