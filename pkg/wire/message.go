// Package wire implements the length-delimited binary encoding shared by the
// broker and its clients. Every value on the wire is a 4-byte little-endian
// frame length followed by a tagged variant and its fields, in declaration
// order: strings and byte slices are themselves length-prefixed, integers
// are fixed-width little-endian, and message identifiers are 16 raw bytes.
package wire

import (
	"github.com/oklog/ulid/v2"
)

// MaxMessageLen bounds the encoded length of a single frame, including the
// 4-byte frame length prefix. It bounds payload size, not queue depth.
const MaxMessageLen = 2048

// MessageID is a 128-bit identifier assigned to a Message when it is
// enqueued. It is generated server-side and is globally unique within a
// process lifetime with overwhelming probability.
type MessageID ulid.ULID

// IsZero reports whether id is the zero-valued MessageID.
func (id MessageID) IsZero() bool { return id == MessageID{} }

func (id MessageID) String() string { return ulid.ULID(id).String() }

// requestTag and responseTag enumerate the wire variants. Values are
// stable across the lifetime of the protocol; they are never renumbered.
type requestTag byte

const (
	tagCreateQueue requestTag = 1 + iota
	tagDeleteQueue
	tagEnqueue
	tagRead
	tagConfirm
)

type responseTag byte

const (
	tagQueueCreated responseTag = 1 + iota
	tagQueueDeleted
	tagObjectQueued
	tagReadResponse
	tagConfirmed
	tagRequeued
	tagFull
	tagEmpty
	tagNoSuchEntity
)

// Request is implemented by every request variant.
type Request interface {
	requestTag() requestTag
}

// CreateQueue requests idempotent creation of a named queue.
type CreateQueue struct{ Name string }

// DeleteQueue requests removal of a named queue.
type DeleteQueue struct{ Name string }

// Enqueue requests that Payload be appended to the named queue.
type Enqueue struct {
	Name    string
	Payload []byte
}

// Read requests the head Message of the named queue. TimeoutMs is the
// redelivery timeout to arm if a Message is dequeued; 0 means "use the
// broker's configured default timeout" rather than arming no timer at all,
// since an unconfirmed delivery with no timer could never be reclaimed from
// a client that vanishes without closing its connection cleanly.
type Read struct {
	Name      string
	TimeoutMs uint64
}

// Confirm acknowledges successful processing of a previously Read Message,
// so that it is not redelivered.
type Confirm struct{ ID MessageID }

func (CreateQueue) requestTag() requestTag { return tagCreateQueue }
func (DeleteQueue) requestTag() requestTag { return tagDeleteQueue }
func (Enqueue) requestTag() requestTag     { return tagEnqueue }
func (Read) requestTag() requestTag        { return tagRead }
func (Confirm) requestTag() requestTag     { return tagConfirm }

// Response is implemented by every response variant.
type Response interface {
	responseTag() responseTag
}

// QueueCreated answers a CreateQueue request.
type QueueCreated struct{}

// QueueDeleted answers a successful DeleteQueue request.
type QueueDeleted struct{}

// ObjectQueued answers a successful Enqueue request with the identifier
// assigned to the enqueued Message.
type ObjectQueued struct{ ID MessageID }

// ReadResponse answers a successful Read request with the dequeued Message.
type ReadResponse struct {
	ID      MessageID
	Payload []byte
}

// Confirmed answers a Confirm request that won the race against redelivery.
type Confirmed struct{}

// Requeued answers a Confirm request that lost the race: the Message was
// already (or is being) returned to its queue.
type Requeued struct{}

// Full answers an Enqueue or a post-timeout Confirm-driven requeue attempt
// that was rejected by a bounded queue at capacity. It carries back the
// (identifier, payload) that could not be admitted.
type Full struct {
	ID      MessageID
	Payload []byte
}

// Empty answers a Read request against a queue with no ready Message.
type Empty struct{}

// NoSuchEntity answers a request against a queue name or Message identifier
// that the broker does not recognize.
type NoSuchEntity struct{}

func (QueueCreated) responseTag() responseTag { return tagQueueCreated }
func (QueueDeleted) responseTag() responseTag { return tagQueueDeleted }
func (ObjectQueued) responseTag() responseTag { return tagObjectQueued }
func (ReadResponse) responseTag() responseTag { return tagReadResponse }
func (Confirmed) responseTag() responseTag    { return tagConfirmed }
func (Requeued) responseTag() responseTag     { return tagRequeued }
func (Full) responseTag() responseTag         { return tagFull }
func (Empty) responseTag() responseTag        { return tagEmpty }
func (NoSuchEntity) responseTag() responseTag { return tagNoSuchEntity }
