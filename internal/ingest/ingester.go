// Package ingest implements the kill-report ingestion loop:
// block-read the stream, decode and validate each entry, hand valid
// reports downstream, and acknowledge every entry it decoded — whether or
// not it was valid — so malformed entries are never redelivered.
package ingest

import (
	"context"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/resilience"
	"github.com/kase1111-hash/medic-agent/internal/stream"
)

// Handler processes one decoded KillReport. Returning an error does not
// block acknowledgement: the ingester has already durably read the entry
// off the stream, so redelivering it on a downstream error would duplicate
// it rather than recover it. Handlers own their own retry/backoff.
type Handler func(ctx context.Context, report models.KillReport) error

// Config configures an Ingester.
type Config struct {
	BlockTimeout time.Duration
	BatchSize int
	Breaker *resilience.CircuitBreaker
	Retry resilience.RetryConfig
	Logger agentlog.Logger
}

// DefaultConfig returns the stream-read defaults.
func DefaultConfig(logger agentlog.Logger) Config {
	return Config{
		BlockTimeout: 5 * time.Second,
		BatchSize: 10,
		Breaker: resilience.New(resilience.StreamConfig(logger)),
		Retry: resilience.StreamRetryConfig(),
		Logger: logger,
	}
}

// Ingester drives the read-decode-dispatch-ack loop against a stream.Reader.
type Ingester struct {
	cfg Config
	reader stream.Reader
	handle Handler
}

// New constructs an Ingester bound to reader, dispatching decoded reports
// to handle.
func New(cfg Config, reader stream.Reader, handle Handler) *Ingester {
	return &Ingester{cfg: cfg, reader: reader, handle: handle}
}

// Run blocks, reading and dispatching until ctx is cancelled. Reconnection
// failures are retried through the circuit breaker with jittered backoff;
// the loop only returns once ctx is done.
func (g *Ingester) Run(ctx context.Context) error {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var msgs []stream.Message
		err := g.cfg.Breaker.Execute(ctx, func(ctx context.Context) error {
			var readErr error
			msgs, readErr = g.reader.ReadGroup(ctx, g.cfg.BlockTimeout, g.cfg.BatchSize)
			return readErr
		})
		if err != nil {
			failures++
			if g.cfg.Logger != nil {
				g.cfg.Logger.Warn("stream read failed", agentlog.Fields{"error": err.Error()})
			}
			if sleepErr := resilience.Sleep(ctx, resilience.Backoff(g.cfg.Retry, failures)); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		failures = 0

		for _, msg := range msgs {
			g.process(ctx, msg)
		}
	}
}

func (g *Ingester) process(ctx context.Context, msg stream.Message) {
	report, err := models.FromWire(msg.Fields)
	if err != nil {
		if g.cfg.Logger != nil {
			g.cfg.Logger.Warn("dropping malformed kill report", agentlog.Fields{
				"message_id": msg.ID, "error": err.Error(),
			})
		}
		g.ack(ctx, msg.ID)
		return
	}

	if err := g.handle(ctx, report); err != nil && g.cfg.Logger != nil {
		g.cfg.Logger.Error("kill report handler failed", agentlog.Fields{
			"kill_id": report.KillID, "error": err.Error(),
		})
	}
	g.ack(ctx, msg.ID)
}

func (g *Ingester) ack(ctx context.Context, id string) {
	if err := g.reader.Ack(ctx, id); err != nil && g.cfg.Logger != nil {
		g.cfg.Logger.Error("failed to ack stream message", agentlog.Fields{
			"message_id": id, "error": err.Error(),
		})
	}
}

// RecoverPending reclaims messages left pending by a prior crashed
// consumer instance, replaying each through the same decode/dispatch/ack
// path as Run.
func (g *Ingester) RecoverPending(ctx context.Context) error {
	ids, err := g.reader.Pending(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		msg, err := g.reader.Claim(ctx, id)
		if err != nil {
			if g.cfg.Logger != nil {
				g.cfg.Logger.Warn("failed to claim pending message", agentlog.Fields{
					"message_id": id, "error": err.Error(),
				})
			}
			continue
		}
		g.process(ctx, msg)
	}
	return nil
}
