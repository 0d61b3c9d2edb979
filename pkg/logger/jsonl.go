package logger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"razorlink/pkg/engine"
)

// JSONLWriter writes one JSON object per sample.
type JSONLWriter struct {
	enc *json.Encoder
}

type jsonRecord struct {
	TS         string `json:"ts"`
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	PayloadHex string `json:"payload_hex"`
	Data       any    `json:"data,omitempty"`
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Write encodes a single sample.
func (j *JSONLWriter) Write(s engine.Sample) error {
	return j.enc.Encode(jsonRecord{
		TS:         s.Timestamp.UTC().Format(time.RFC3339Nano),
		ID:         FormatID(s.ID),
		Kind:       s.Kind.String(),
		PayloadHex: hex.EncodeToString(s.Payload),
		Data:       s.Message,
	})
}

// Consume writes samples from in until it closes or ctx ends. The first
// write error stops consumption and is returned.
func (j *JSONLWriter) Consume(ctx context.Context, in <-chan engine.Sample) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-in:
			if !ok {
				return nil
			}
			if err := j.Write(s); err != nil {
				return fmt.Errorf("write jsonl: %w", err)
			}
		}
	}
}

// FormatID renders a message id as "0x02".
func FormatID(id uint8) string {
	return "0x" + hex.EncodeToString([]byte{id})
}
