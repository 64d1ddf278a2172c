package client

import (
	"github.com/pkg/errors"

	"github.com/loopwire/queued/pkg/wire"
)

// These mirror the original source's distinct protocol-outcome error types
// (server/src/errors.rs): a response that isn't an outright transport
// failure but also isn't the success variant the request implies becomes a
// typed error here rather than forcing every caller to type-switch on
// wire.Response.
var (
	// ErrEmpty is returned by Do for a Read request against a queue with no
	// ready message.
	ErrEmpty = errors.New("client: queue empty")

	// ErrRequeued is returned by Do for a Confirm request whose delivery had
	// already been returned to its queue by a redelivery timeout.
	ErrRequeued = errors.New("client: message already requeued")

	// ErrNoSuchEntity is returned when a request names a queue or message ID
	// the broker doesn't recognize.
	ErrNoSuchEntity = errors.New("client: no such queue or message")
)

// FullError is returned by Do for an Enqueue request rejected because the
// target queue is at capacity. ID and Payload let the caller retry without
// regenerating the payload.
type FullError struct {
	ID      wire.MessageID
	Payload []byte
}

func (e *FullError) Error() string { return "client: queue full" }
