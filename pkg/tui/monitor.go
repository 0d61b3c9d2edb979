// Package tui renders a live terminal view of the decoded IMU stream.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"razorlink/pkg/engine"
	"razorlink/pkg/protocol"
)

// SampleMsg carries one hub sample into the program.
type SampleMsg engine.Sample

// StatsMsg carries a decoder counters snapshot.
type StatsMsg protocol.Stats

// FaultMsg carries a discarded-frame diagnostic.
type FaultMsg struct {
	Kind protocol.EventKind
	Err  error
	At   time.Time
}

// Model keeps the latest value of each message kind. The zero-value flags
// mean "not seen yet".
type Model struct {
	source string

	orientation   protocol.Orientation
	orientationAt time.Time
	imuOK         bool

	analogs   protocol.Analogs
	analogsAt time.Time
	analogsOK bool

	unsupported uint64
	unknown     uint64
	lastID      uint8

	stats     protocol.Stats
	lastFault FaultMsg

	quitting bool
}

func New(source string) Model {
	return Model{source: source}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case SampleMsg:
		m.lastID = msg.ID
		switch v := msg.Message.(type) {
		case protocol.Orientation:
			m.orientation, m.orientationAt, m.imuOK = v, msg.Timestamp, true
		case protocol.Analogs:
			m.analogs, m.analogsAt, m.analogsOK = v, msg.Timestamp, true
		case protocol.Unsupported:
			m.unsupported++
		case protocol.Unknown:
			m.unknown++
		}
	case StatsMsg:
		m.stats = protocol.Stats(msg)
	case FaultMsg:
		m.lastFault = msg
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "razor imu monitor  source: %s\n\n", m.source)

	b.WriteString("orientation ")
	if m.imuOK {
		fmt.Fprintf(&b, "roll %8.2f  pitch %8.2f  yaw %8.2f  @ %s\n",
			m.orientation.Roll, m.orientation.Pitch, m.orientation.Yaw, clock(m.orientationAt))
	} else {
		b.WriteString("waiting\n")
	}

	b.WriteString("analogs     ")
	if m.analogsOK {
		a := m.analogs
		fmt.Fprintf(&b, "x %6d  y %6d  z %6d  @ %s\n", a.Analog.X, a.Analog.Y, a.Analog.Z, clock(m.analogsAt))
		fmt.Fprintf(&b, "accel       x %6d  y %6d  z %6d\n", a.Accel.X, a.Accel.Y, a.Accel.Z)
	} else {
		b.WriteString("waiting\n")
	}

	s := m.stats
	fmt.Fprintf(&b, "\nmessages %d  length errors %d  checksum errors %d  malformed %d  bytes %d\n",
		s.MessagesReceived, s.PayloadLengthErrors, s.ChecksumErrors, s.MalformedPayloads, s.BytesConsumed)
	fmt.Fprintf(&b, "unsupported %d  unknown %d  last id 0x%02x\n", m.unsupported, m.unknown, m.lastID)
	if m.lastFault.Err != nil {
		fmt.Fprintf(&b, "last fault  %s: %v @ %s\n", m.lastFault.Kind, m.lastFault.Err, clock(m.lastFault.At))
	}
	b.WriteString("\nq to quit\n")
	return b.String()
}

func clock(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("15:04:05.000")
}

// Forward sends hub samples to p until in closes or ctx ends.
func Forward(ctx context.Context, p *tea.Program, in <-chan engine.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			p.Send(SampleMsg(s))
		}
	}
}

// FaultHandler adapts p to an engine event handler. Only discarded frames
// are forwarded.
func FaultHandler(p *tea.Program) func(protocol.Event, time.Time) {
	return func(ev protocol.Event, ts time.Time) {
		switch ev.Kind {
		case protocol.EventLengthError, protocol.EventChecksumError, protocol.EventMalformedPayload:
			p.Send(FaultMsg{Kind: ev.Kind, Err: ev.Err, At: ts})
		}
	}
}

// StatsHandler adapts p to an engine stats handler.
func StatsHandler(p *tea.Program) func(protocol.Stats) {
	return func(s protocol.Stats) {
		p.Send(StatsMsg(s))
	}
}
