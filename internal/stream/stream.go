// Package stream abstracts the kill-report transport: a
// consumer-group stream the Killer publishes to and the agent reads from,
// acknowledging each entry once it has been durably handed downstream.
package stream

import (
	"context"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

// Message is one raw entry read off the stream, carrying its transport ID
// (for acknowledgement) alongside the decoded fields.
type Message struct {
	ID string
	Fields models.WireEntry
}

// Reader is the consumer side of the kill-report stream. Implementations
// must support consumer-group semantics: messages delivered to one group
// member are not redelivered to others in the same group, and remain
// pending (redeliverable on crash) until Ack.
type Reader interface {
	// ReadGroup blocks up to block for new entries, returning as soon as at
	// least one is available or the deadline elapses. An empty result with
	// a nil error means the read timed out with nothing new.
	ReadGroup(ctx context.Context, block time.Duration, count int) ([]Message, error)

	// Ack acknowledges a message, removing it from the group's pending
	// entries list.
	Ack(ctx context.Context, id string) error

	// Pending returns message IDs claimed by this consumer but never
	// acknowledged, for crash-recovery reprocessing.
	Pending(ctx context.Context) ([]string, error)

	// Claim reads a previously-pending message by ID so it can be
	// reprocessed or acknowledged-and-dropped.
	Claim(ctx context.Context, id string) (Message, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// Writer is the producer side, implemented by InProcess and RedisStream. No
// agent component writes to a stream; negotiation replies travel over
// negotiation.Transport instead.
type Writer interface {
	Add(ctx context.Context, fields models.WireEntry) (string, error)
	Close() error
}
