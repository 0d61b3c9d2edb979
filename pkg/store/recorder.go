package store

import (
	"context"
	"fmt"
	"time"

	"razorlink/pkg/engine"
	"razorlink/pkg/protocol"
)

// Recorder writes samples for a single session.
type Recorder struct {
	store   *Store
	session string
}

func (r *Recorder) SessionID() string { return r.session }

// Record stores one sample. Samples without a decoded orientation or
// analogs payload are ignored.
func (r *Recorder) Record(ctx context.Context, s engine.Sample) error {
	ts := s.Timestamp.UnixNano()
	switch msg := s.Message.(type) {
	case protocol.Orientation:
		_, err := r.store.db.ExecContext(ctx,
			`INSERT INTO orientation (session_id, ts_unix_nano, roll, pitch, yaw) VALUES (?, ?, ?, ?, ?)`,
			r.session, ts, msg.Roll, msg.Pitch, msg.Yaw)
		if err != nil {
			return fmt.Errorf("insert orientation: %w", err)
		}
	case protocol.Analogs:
		_, err := r.store.db.ExecContext(ctx, `
			INSERT INTO analogs (session_id, ts_unix_nano, analog_x, analog_y, analog_z, accel_x, accel_y, accel_z)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.session, ts,
			msg.Analog.X, msg.Analog.Y, msg.Analog.Z,
			msg.Accel.X, msg.Accel.Y, msg.Accel.Z)
		if err != nil {
			return fmt.Errorf("insert analogs: %w", err)
		}
	}
	return nil
}

// RecordStats stores a decoder counters snapshot.
func (r *Recorder) RecordStats(ctx context.Context, at time.Time, st protocol.Stats) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO decoder_stats (session_id, ts_unix_nano, payload_length_errors, checksum_errors,
			messages_received, malformed_payloads, bytes_consumed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.session, at.UnixNano(),
		int64(st.PayloadLengthErrors), int64(st.ChecksumErrors), int64(st.MessagesReceived),
		int64(st.MalformedPayloads), int64(st.BytesConsumed))
	if err != nil {
		return fmt.Errorf("insert decoder stats: %w", err)
	}
	return nil
}

// Consume records samples until in closes or ctx ends. Inserts cut short
// by cancellation are not reported.
func (r *Recorder) Consume(ctx context.Context, in <-chan engine.Sample) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-in:
			if !ok {
				return nil
			}
			if err := r.Record(ctx, s); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
