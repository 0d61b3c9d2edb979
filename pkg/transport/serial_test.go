package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type pipePort struct {
	*io.PipeReader
	timeout time.Duration
}

func (p *pipePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	fail    int
	opens   int
	devices []string
	modes   []*serial.Mode
	writers chan *io.PipeWriter
	ports   chan *pipePort
}

func newFakeOpener(fail int) *fakeOpener {
	return &fakeOpener{
		fail:    fail,
		writers: make(chan *io.PipeWriter, 4),
		ports:   make(chan *pipePort, 4),
	}
}

func (f *fakeOpener) open(device string, mode *serial.Mode) (Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.devices = append(f.devices, device)
	f.modes = append(f.modes, mode)
	if f.opens <= f.fail {
		return nil, errors.New("no such device")
	}
	r, w := io.Pipe()
	port := &pipePort{PipeReader: r}
	f.writers <- w
	f.ports <- port
	return port, nil
}

func nextWriter(t *testing.T, f *fakeOpener) *io.PipeWriter {
	t.Helper()
	select {
	case w := <-f.writers:
		return w
	case <-time.After(2 * time.Second):
		t.Fatalf("port was never opened")
		return nil
	}
}

func TestSerialReaderRetriesOpenAndStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFakeOpener(2)
	var mu sync.Mutex
	var faults []error
	out := make(chan []byte, 8)
	_, err := StartSerial(ctx, "/dev/ttyUSB0", PortOptions{}, out,
		WithOpener(f.open),
		WithReconnectInterval(5*time.Millisecond),
		WithReadTimeout(100*time.Millisecond),
		WithErrorHandler(func(err error) {
			mu.Lock()
			faults = append(faults, err)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	w := nextWriter(t, f)
	go func() {
		_, _ = w.Write([]byte{0x44, 0x49})
		_, _ = w.Write([]byte{0x59})
	}()

	var got []byte
	for len(got) < 3 {
		select {
		case chunk := <-out:
			got = append(got, chunk...)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout, got %x", got)
		}
	}
	assert.Equal(t, []byte{0x44, 0x49, 0x59}, got)

	port := <-f.ports
	assert.Equal(t, 100*time.Millisecond, port.timeout)

	f.mu.Lock()
	assert.Equal(t, 3, f.opens)
	assert.Equal(t, "/dev/ttyUSB0", f.devices[0])
	assert.Equal(t, DefaultBaudRate, f.modes[0].BaudRate)
	f.mu.Unlock()

	mu.Lock()
	require.Len(t, faults, 2)
	assert.ErrorContains(t, faults[0], "open /dev/ttyUSB0")
	mu.Unlock()
}

func TestSerialReaderReopensAfterReadFault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFakeOpener(0)
	out := make(chan []byte, 8)
	_, err := StartSerial(ctx, "COM3", PortOptions{BaudRate: 38400}, out,
		WithOpener(f.open),
		WithReconnectInterval(5*time.Millisecond),
	)
	require.NoError(t, err)

	first := nextWriter(t, f)
	first.CloseWithError(errors.New("device unplugged"))

	second := nextWriter(t, f)
	go func() { _, _ = second.Write([]byte{0x64}) }()

	select {
	case chunk := <-out:
		assert.Equal(t, []byte{0x64}, chunk)
	case <-time.After(2 * time.Second):
		t.Fatalf("no data after reopen")
	}
}

func TestSerialReaderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFakeOpener(0)
	out := make(chan []byte)
	_, err := StartSerial(ctx, "/dev/ttyS0", PortOptions{}, out, WithOpener(f.open))
	require.NoError(t, err)

	w := nextWriter(t, f)
	cancel()

	// Closing the port on cancel unblocks the pending read, so writes
	// start failing.
	require.Eventually(t, func() bool {
		_, err := w.Write([]byte{0x00})
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartSerialRejectsBadOptions(t *testing.T) {
	_, err := StartSerial(context.Background(), "/dev/null", PortOptions{Parity: "X"}, make(chan []byte))
	require.Error(t, err)
}
