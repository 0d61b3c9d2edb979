// Package transport delivers raw device bytes, chunked however they arrive,
// to a channel. Sources reconnect on failure; they never interpret frames.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

type settings struct {
	reconnect    time.Duration
	reconnectMax time.Duration
	bufSize      int
	dialTimeout  time.Duration
	readTimeout  time.Duration
	errorHandler func(error)
	opener       Opener
}

func defaultSettings() settings {
	return settings{
		reconnect:    1 * time.Second,
		reconnectMax: 30 * time.Second,
		bufSize:      4 * 1024,
		dialTimeout:  5 * time.Second,
		opener:       openSerial,
	}
}

type Option func(*settings)

func WithReconnectInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.reconnect = d
		}
	}
}

func WithReconnectMax(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.reconnectMax = d
		}
	}
}

// WithBufferSize sets the largest chunk a single read can deliver.
func WithBufferSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithErrorHandler receives every transport fault: failed opens, read
// errors and dropped connections.
func WithErrorHandler(fn func(error)) Option {
	return func(s *settings) {
		if fn != nil {
			s.errorHandler = fn
		}
	}
}

// WithOpener replaces the function used to open serial devices.
func WithOpener(fn Opener) Option {
	return func(s *settings) {
		if fn != nil {
			s.opener = fn
		}
	}
}

func (s *settings) handleError(err error) {
	if s.errorHandler != nil {
		s.errorHandler(err)
	}
}

func (s *settings) sleepBackoff(ctx context.Context, attempt int) {
	wait := min(s.reconnect*time.Duration(attempt), s.reconnectMax)
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
}

// pump copies reads from r to out, one fresh slice per read, until r fails
// or ctx ends. Read timeouts are not failures.
func (s *settings) pump(ctx context.Context, r io.Reader, out chan<- []byte) error {
	buf := make([]byte, s.bufSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
