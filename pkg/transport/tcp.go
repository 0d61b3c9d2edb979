package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Listener dials a TCP endpoint that relays the device's serial stream
// (ser2net, a socat bridge or the mock device) and forwards raw chunks.
type Listener struct {
	addr string
	out  chan<- []byte
	settings
}

// StartListener connects to addr in the background and keeps reconnecting
// until ctx ends.
func StartListener(ctx context.Context, addr string, out chan<- []byte, opts ...Option) *Listener {
	l := &Listener{
		addr:     addr,
		out:      out,
		settings: defaultSettings(),
	}
	for _, opt := range opts {
		opt(&l.settings)
	}
	go l.run(ctx)
	return l
}

func (l *Listener) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := net.DialTimeout("tcp", l.addr, l.dialTimeout)
		if err != nil {
			l.handleError(fmt.Errorf("dial %s: %w", l.addr, err))
			attempt++
			l.sleepBackoff(ctx, attempt)
			continue
		}

		attempt = 0
		err = l.handleConn(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.handleError(fmt.Errorf("read %s: %w", l.addr, err))
		}
		l.sleepBackoff(ctx, 1)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	return l.pump(ctx, deadlineReader{conn: conn, timeout: l.readTimeout}, l.out)
}

// deadlineReader arms a read deadline before every read.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r deadlineReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
	return r.conn.Read(p)
}
