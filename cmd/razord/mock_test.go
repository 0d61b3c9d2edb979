package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"razorlink/pkg/protocol"
)

func TestSimulatorCleanStreamDecodes(t *testing.T) {
	sim := newSimulator(7, 0, 0)
	dec := protocol.NewDecoder()

	var orientations []protocol.Orientation
	var unsupported int
	for i := 0; i < mockGPSEvery; i++ {
		tt := float64(i) * 0.02
		for _, chunk := range sim.split(sim.frames(tt)) {
			for _, ev := range dec.Feed(chunk) {
				switch msg := ev.Message.(type) {
				case protocol.Orientation:
					orientations = append(orientations, msg)
					want := mockOrientation(tt)
					assert.InDelta(t, want.Roll, msg.Roll, 0.006)
					assert.InDelta(t, want.Pitch, msg.Pitch, 0.006)
					assert.InDelta(t, want.Yaw, msg.Yaw, 0.006)
				case protocol.Unsupported:
					unsupported++
				}
			}
		}
	}

	stats := dec.Stats()
	assert.Len(t, orientations, mockGPSEvery)
	assert.Equal(t, 1, unsupported)
	assert.Equal(t, uint64(2*mockGPSEvery), stats.MessagesReceived)
	assert.Zero(t, stats.ChecksumErrors)
	assert.Zero(t, stats.PayloadLengthErrors)
}

func TestSimulatorCorruptionIsCounted(t *testing.T) {
	sim := newSimulator(3, 0, 0.5)
	dec := protocol.NewDecoder()
	for i := 0; i < 100; i++ {
		dec.Feed(sim.frames(float64(i) * 0.02))
	}
	stats := dec.Stats()
	assert.NotZero(t, stats.ChecksumErrors)
	assert.NotZero(t, stats.MessagesReceived)
}

func TestSimulatorSplitPreservesBytes(t *testing.T) {
	sim := newSimulator(11, 0.5, 0)
	raw := sim.frames(1.5)
	var joined []byte
	for _, chunk := range sim.split(raw) {
		require.NotEmpty(t, chunk)
		require.LessOrEqual(t, len(chunk), 16)
		joined = append(joined, chunk...)
	}
	assert.Equal(t, raw, joined)
}

func TestMockAnalogsAtRest(t *testing.T) {
	a := mockAnalogs(protocol.Orientation{}, 0)
	assert.Equal(t, protocol.AccelReadings{X: 0, Y: 0, Z: 256}, a.Accel)
}

func TestServeMockStreamsFrames(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveMock(ctx, ln, mockOptions{Hz: 200, Seed: 1}, zerolog.Nop())
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	dec := protocol.NewDecoder()
	buf := make([]byte, 256)
	deadline := time.Now().Add(3 * time.Second)
	for dec.Stats().MessagesReceived < 4 && time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(deadline))
		n, err := conn.Read(buf)
		require.NoError(t, err)
		dec.Feed(buf[:n])
	}
	assert.GreaterOrEqual(t, dec.Stats().MessagesReceived, uint64(4))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serveMock did not stop")
	}
}

func TestRunSimulatorStopsOnEmitError(t *testing.T) {
	sim := newSimulator(1, 0, 0)
	var got bytes.Buffer
	calls := 0
	err := runSimulator(context.Background(), sim, 500, func(chunk []byte) error {
		calls++
		got.Write(chunk)
		if calls == 3 {
			return net.ErrClosed
		}
		return nil
	})
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.Equal(t, 3, calls)
}
