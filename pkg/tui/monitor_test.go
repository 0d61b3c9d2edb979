package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"razorlink/pkg/engine"
	"razorlink/pkg/protocol"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestModelWaitsForData(t *testing.T) {
	view := New("/dev/ttyUSB0").View()
	assert.Contains(t, view, "source: /dev/ttyUSB0")
	assert.Contains(t, view, "orientation waiting")
	assert.Contains(t, view, "analogs     waiting")
}

func TestModelKeepsLatestValues(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	m := New("mock")
	m = update(t, m, SampleMsg(engine.Sample{
		ID:        protocol.IDOrientation,
		Timestamp: ts,
		Message:   protocol.Orientation{Roll: 1, Pitch: -2},
	}))
	m = update(t, m, SampleMsg(engine.Sample{
		ID:        protocol.IDOrientation,
		Timestamp: ts.Add(time.Second),
		Message:   protocol.Orientation{Roll: 10.5, Pitch: 20.25, Yaw: -179.99},
	}))
	m = update(t, m, SampleMsg(engine.Sample{
		ID:        protocol.IDAnalogs,
		Timestamp: ts,
		Message: protocol.Analogs{
			Analog: protocol.AnalogReadings{X: 1, Y: 2, Z: 3},
			Accel:  protocol.AccelReadings{X: -4, Y: 5, Z: 256},
		},
	}))
	m = update(t, m, SampleMsg(engine.Sample{ID: protocol.IDGPS, Message: protocol.Unsupported{ID: protocol.IDGPS}}))
	m = update(t, m, SampleMsg(engine.Sample{ID: 0x42, Message: protocol.Unknown{ID: 0x42}}))

	assert.True(t, m.imuOK)
	assert.True(t, m.analogsOK)
	assert.Equal(t, protocol.Orientation{Roll: 10.5, Pitch: 20.25, Yaw: -179.99}, m.orientation)
	assert.Equal(t, uint64(1), m.unsupported)
	assert.Equal(t, uint64(1), m.unknown)

	view := m.View()
	assert.Contains(t, view, "roll    10.50")
	assert.Contains(t, view, "yaw  -179.99")
	assert.Contains(t, view, "03:04:06.000")
	assert.Contains(t, view, "z    256")
	assert.Contains(t, view, "last id 0x42")
}

func TestModelShowsStatsAndFaults(t *testing.T) {
	m := New("tcp://127.0.0.1:19000")
	m = update(t, m, StatsMsg(protocol.Stats{MessagesReceived: 7, ChecksumErrors: 2, BytesConsumed: 99}))
	m = update(t, m, FaultMsg{Kind: protocol.EventChecksumError, Err: errors.New("checksum mismatch")})

	view := m.View()
	assert.Contains(t, view, "messages 7")
	assert.Contains(t, view, "checksum errors 2")
	assert.Contains(t, view, "bytes 99")
	assert.Contains(t, view, "checksum_error: checksum mismatch")
}

func TestModelQuits(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
	} {
		next, cmd := New("x").Update(key)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.Quit(), cmd())
		assert.Empty(t, next.View())
	}

	_, cmd := New("x").Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	assert.Nil(t, cmd)
}
