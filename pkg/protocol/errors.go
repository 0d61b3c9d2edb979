package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrPayloadLength      = errors.New("protocol: payload length exceeds 28 bytes")
	ErrChecksumMismatch   = errors.New("protocol: checksum mismatch")
	ErrUnsupportedMessage = errors.New("protocol: unsupported message kind")
	ErrUnknownMessageID   = errors.New("protocol: unknown message id")
	ErrMalformedPayload   = errors.New("protocol: malformed payload")
)

// LengthError reports a frame whose declared payload length is over the cap.
type LengthError struct {
	Length uint8
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("protocol: payload length %d exceeds %d", e.Length, MaxPayloadLen)
}

func (e *LengthError) Unwrap() error { return ErrPayloadLength }

// ChecksumError carries the computed and received checksum bytes of a
// discarded frame.
type ChecksumError struct {
	ID       uint8
	Computed Checksum
	Received Checksum
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("protocol: checksum mismatch for id 0x%02x: computed %02x%02x received %02x%02x",
		e.ID, e.Computed.A, e.Computed.B, e.Received.A, e.Received.B)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

func malformed(id uint8, got, want int) error {
	return fmt.Errorf("%w: id 0x%02x has %d bytes, need %d", ErrMalformedPayload, id, got, want)
}
