package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"razorlink/pkg/bridge/foxglove"
	"razorlink/pkg/config"
	"razorlink/pkg/engine"
	"razorlink/pkg/logger"
	"razorlink/pkg/logging"
	"razorlink/pkg/store"
	"razorlink/pkg/transport"
)

// jsonlOff disables the JSONL sink.
const jsonlOff = "off"

func serve(ctx context.Context, cfg config.RazorConfig, stdout io.Writer, log zerolog.Logger) error {
	hub := engine.NewHub()
	go hub.Run(ctx)
	return servePipeline(ctx, cfg, hub, stdout, log)
}

// servePipeline starts the configured source and sinks around hub and
// blocks until ctx ends or one of them fails.
func servePipeline(ctx context.Context, cfg config.RazorConfig, hub *engine.Hub, stdout io.Writer, log zerolog.Logger, extra ...engine.PipelineOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	fail := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}
	opts := []engine.PipelineOption{engine.WithLogger(logging.Component(log, "pipeline"))}

	if path := cfg.Output.JSONL; path != "" && path != jsonlOff {
		var out io.Writer = stdout
		if path != config.StdoutPath {
			file, err := os.Create(path)
			if err != nil {
				return fail(fmt.Errorf("open jsonl output: %w", err))
			}
			defer file.Close()
			out = file
		}
		w := logger.NewJSONLWriter(out)
		sub := hub.Subscribe()
		g.Go(func() error { return w.Consume(ctx, sub) })
	}

	var rec *store.Recorder
	if cfg.Output.SQLite != "" {
		db, err := store.Open(ctx, cfg.Output.SQLite)
		if err != nil {
			return fail(err)
		}
		defer db.Close()
		rec, err = db.NewSession(ctx, sourceLabel(cfg))
		if err != nil {
			return fail(err)
		}
		log.Info().Str("path", cfg.Output.SQLite).Str("session", rec.SessionID()).Msg("recording samples")
		sub := hub.Subscribe()
		g.Go(func() error { return rec.Consume(ctx, sub) })
	}

	if cfg.Foxglove.Enabled {
		srv := foxglove.NewServer(cfg.Bridge(), hub, foxglove.WithLogger(logging.Component(log, "foxglove")))
		opts = append(opts, engine.WithEventHandler(srv.ReportEvent))
		g.Go(func() error { return srv.Run(ctx) })
	}

	pipeline := engine.NewPipeline(hub, append(opts, extra...)...)

	chunks := make(chan []byte, cfg.Source.ChunkBuf)
	if err := startSource(ctx, cfg, chunks, logging.Component(log, "transport")); err != nil {
		return fail(err)
	}
	log.Info().Str("source", sourceLabel(cfg)).Msg("decoding")

	g.Go(func() error {
		if err := pipeline.Run(ctx, chunks); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	if rec != nil {
		g.Go(func() error { return recordStats(ctx, rec, pipeline, cfg.StatsInterval()) })
	}

	err := g.Wait()

	final := pipeline.Stats()
	log.Info().
		Uint64("messages_received", final.MessagesReceived).
		Uint64("checksum_errors", final.ChecksumErrors).
		Uint64("payload_length_errors", final.PayloadLengthErrors).
		Uint64("malformed_payloads", final.MalformedPayloads).
		Uint64("bytes_consumed", final.BytesConsumed).
		Msg("decoder stopped")
	if rec != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if ferr := rec.RecordStats(flushCtx, time.Now(), final); ferr != nil {
			log.Warn().Err(ferr).Msg("final stats not recorded")
		}
		flushCancel()
	}
	return err
}

func startSource(ctx context.Context, cfg config.RazorConfig, out chan<- []byte, log zerolog.Logger) error {
	base, limit := cfg.ReconnectInterval()
	opts := []transport.Option{
		transport.WithReconnectInterval(base),
		transport.WithReconnectMax(limit),
		transport.WithBufferSize(cfg.Source.ReadBuf),
		transport.WithErrorHandler(func(err error) {
			log.Warn().Err(err).Msg("transport fault")
		}),
	}

	switch cfg.Source.Kind {
	case config.SourceSerial:
		_, err := transport.StartSerial(ctx, cfg.Source.Device, cfg.Source.Port, out, opts...)
		return err
	case config.SourceTCP:
		transport.StartListener(ctx, cfg.Source.Addr, out, opts...)
		return nil
	case config.SourceMock:
		startMockSource(ctx, mockOptions{
			Hz:      cfg.Mock.Hz,
			Seed:    cfg.Mock.Seed,
			Garbage: cfg.Mock.GarbageRatio,
			Corrupt: cfg.Mock.CorruptRatio,
		}, out)
		return nil
	default:
		return fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

func sourceLabel(cfg config.RazorConfig) string {
	switch cfg.Source.Kind {
	case config.SourceSerial:
		return fmt.Sprintf("serial:%s@%s", cfg.Source.Device, cfg.Source.Port)
	case config.SourceTCP:
		return "tcp://" + cfg.Source.Addr
	default:
		return cfg.Source.Kind
	}
}

// recordStats snapshots the decoder counters into the recorder every
// interval.
func recordStats(ctx context.Context, rec *store.Recorder, p *engine.Pipeline, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := rec.RecordStats(ctx, now, p.Stats()); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}
