package transport

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the part of a serial port the reader needs.
type Port interface {
	io.ReadCloser
}

// Opener opens a serial device with the given line settings.
type Opener func(device string, mode *serial.Mode) (Port, error)

// timeoutPort is implemented by ports that support bounded reads.
type timeoutPort interface {
	SetReadTimeout(t time.Duration) error
}

// openSerial opens the device, raises DTR and discards anything buffered
// before the open.
func openSerial(device string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetDTR(true); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set dtr: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("discard input: %w", err)
	}
	return port, nil
}

// SerialReader streams chunks from a serial device, reopening it after
// faults.
type SerialReader struct {
	device string
	mode   *serial.Mode
	out    chan<- []byte
	settings
}

// StartSerial validates opts and starts reading device in the background
// until ctx ends.
func StartSerial(ctx context.Context, device string, opts PortOptions, out chan<- []byte, options ...Option) (*SerialReader, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	r := &SerialReader{
		device:   device,
		mode:     mode,
		out:      out,
		settings: defaultSettings(),
	}
	for _, opt := range options {
		opt(&r.settings)
	}
	go r.run(ctx)
	return r, nil
}

func (r *SerialReader) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		port, err := r.opener(r.device, r.mode)
		if err != nil {
			r.handleError(fmt.Errorf("open %s: %w", r.device, err))
			attempt++
			r.sleepBackoff(ctx, attempt)
			continue
		}

		attempt = 0
		err = r.handlePort(ctx, port)
		_ = port.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.handleError(fmt.Errorf("read %s: %w", r.device, err))
		}
		r.sleepBackoff(ctx, 1)
	}
}

func (r *SerialReader) handlePort(ctx context.Context, port Port) error {
	if tp, ok := port.(timeoutPort); ok && r.readTimeout > 0 {
		if err := tp.SetReadTimeout(r.readTimeout); err != nil {
			return fmt.Errorf("set read timeout: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = port.Close()
	})
	defer stop()

	return r.pump(ctx, port, r.out)
}
