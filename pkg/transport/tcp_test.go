package transport_test

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"razorlink/pkg/transport"
)

func readChunks(t *testing.T, ch <-chan []byte, want int) []byte {
	t.Helper()
	var got []byte
	deadline := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case chunk := <-ch:
			got = append(got, chunk...)
		case <-deadline:
			t.Fatalf("timeout after %d of %d bytes", len(got), want)
		}
	}
	return got
}

func TestListenerForwardsRawChunks(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan []byte, 16)
	transport.StartListener(ctx, ln.Addr().String(), out,
		transport.WithReconnectInterval(10*time.Millisecond),
		transport.WithDialTimeout(200*time.Millisecond),
		transport.WithBufferSize(4),
	)

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	// Zero bytes are payload here, not delimiters.
	_, err = conn.Write([]byte{0x44, 0x00, 0x49})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = conn.Write([]byte{0x59, 0x64, 0x00, 0x02, 0xFF, 0x00})
	require.NoError(t, err)

	got := readChunks(t, out, 9)
	assert.Equal(t, []byte{0x44, 0x00, 0x49, 0x59, 0x64, 0x00, 0x02, 0xFF, 0x00}, got)
}

func TestListenerReconnectsAndReportsErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var faults []error
	out := make(chan []byte, 16)
	transport.StartListener(ctx, ln.Addr().String(), out,
		transport.WithReconnectInterval(10*time.Millisecond),
		transport.WithReadTimeout(50*time.Millisecond),
		transport.WithErrorHandler(func(err error) {
			mu.Lock()
			faults = append(faults, err)
			mu.Unlock()
		}),
	)

	first, err := ln.Accept()
	require.NoError(t, err)
	_, err = first.Write([]byte("one"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), readChunks(t, out, 3))
	require.NoError(t, first.Close())

	second, err := ln.Accept()
	require.NoError(t, err)
	defer second.Close()
	_, err = second.Write([]byte("two"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("two"), readChunks(t, out, 3)))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, faults, "dropped connection should be reported")
}
