package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptionsNormalizeDefaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "N"}, opts)
	assert.Equal(t, "57600 8N1", PortOptions{}.String())
}

func TestPortOptionsNormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits low", PortOptions{DataBits: 4}},
		{"data bits high", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "mark"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Normalize()
			assert.Error(t, err)
			assert.Equal(t, "invalid", tt.opts.String())
		})
	}
}

func TestPortOptionsEqual(t *testing.T) {
	assert.True(t, PortOptions{}.Equal(PortOptions{BaudRate: 57600, Parity: "none"}))
	assert.False(t, PortOptions{}.Equal(PortOptions{BaudRate: 38400}))
	assert.False(t, PortOptions{Parity: "?"}.Equal(PortOptions{Parity: "?"}))
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "even"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: 115200,
		DataBits: 7,
		StopBits: serial.TwoStopBits,
		Parity:   serial.EvenParity,
	}, mode)

	mode, err = PortOptions{Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OddParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
}
