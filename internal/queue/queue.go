// Package queue defines the at-least-once work queue between the expiration
// scanner and the expiration worker.
//
// Items are leased by Claim, removed by Ack and released by Nack. A leased
// item that is neither acked nor nacked before its lease runs out becomes
// visible again, so a worker crash leads to redelivery rather than loss.
// Items that exhaust Policy.MaxAttempts move to the dead-letter set.
package queue

import (
	"context"
	"time"
)

// ServiceName is the service registry name of the active Queue.
const ServiceName = "queue"

// Item is the queue payload: a reference to the mark to process.
type Item struct {
	MarkID int64 `json:"mark_id"`
}

// Delivery is a leased Item. Token identifies the lease; Ack and Nack
// with a stale token fail with ErrLeaseLost.
type Delivery struct {
	ID          string    `json:"id"`
	Item        Item      `json:"item"`
	Attempt     int       `json:"attempt"`
	Token       string    `json:"-"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	LeasedUntil time.Time `json:"leased_until"`
}

// DeadLetter is an item that failed MaxAttempts times.
type DeadLetter struct {
	ID        string    `json:"id"`
	Item      Item      `json:"item"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	DeadAt    time.Time `json:"dead_at"`
}

// Stats summarizes queue contents.
type Stats struct {
	Pending int `json:"pending"`
	Leased  int `json:"leased"`
	Dead    int `json:"dead"`
}

// Queue is the durable work queue.
// Implementations must be safe for concurrent use.
type Queue interface {
	// Enqueue adds item unless an item for the same mark is already queued
	// or dead-lettered, and reports whether it was added.
	Enqueue(ctx context.Context, item Item) (bool, error)

	// Claim leases up to max visible items for lease.
	Claim(ctx context.Context, max int, lease time.Duration) ([]Delivery, error)

	// Ack removes a delivered item after successful processing.
	Ack(ctx context.Context, d Delivery) error

	// Nack releases a delivered item for retry after Policy.RetryDelay, or
	// dead-letters it once Policy.MaxAttempts is reached. cause is recorded.
	Nack(ctx context.Context, d Delivery, cause error) error

	// Stats reports pending, leased and dead-lettered counts.
	Stats(ctx context.Context) (Stats, error)

	// DeadLetters lists dead-lettered items, oldest first.
	DeadLetters(ctx context.Context) ([]DeadLetter, error)

	// Requeue moves a dead-lettered item back to the queue with its
	// attempt count reset.
	Requeue(ctx context.Context, id string) error
}

// Policy bounds redelivery.
type Policy struct {
	// MaxAttempts is the number of deliveries before an item is dead-lettered.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is how long a nacked item stays invisible.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = time.Minute
)

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: defaultMaxAttempts, RetryDelay: defaultRetryDelay}
}

// WithDefaults fills zero fields from DefaultPolicy. A negative RetryDelay
// means "retry immediately".
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = defaultRetryDelay
	}
	if p.RetryDelay < 0 {
		p.RetryDelay = 0
	}
	return p
}

// Exhausted reports whether an item delivered attempt times has used up
// its retries.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Clock supplies the current time. github.com/juju/clock implementations
// satisfy it.
type Clock interface {
	Now() time.Time
}
