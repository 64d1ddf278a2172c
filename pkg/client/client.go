// Package client implements a broker client: a blocking request/response
// Do call and a Pipeline for sending a batch of requests without waiting
// for each response in turn. Grounded on the original source's
// client/src/lib.rs (the blocking client) and client/src/pipeline.rs (the
// pipelined client), rendered as a buffered reader plus sentinel errors for
// malformed or unexpected frames.
package client

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/loopwire/queued/pkg/wire"
)

// ErrClosed is returned by Do and Pipeline.Next once the client's
// connection has been closed, either explicitly or due to a prior I/O
// error.
var ErrClosed = errors.New("client: connection closed")

// Client is a single connection to a broker, supporting both a blocking
// Do call and pipelined batches via Pipeline. It is not safe for concurrent
// use by multiple goroutines: callers needing concurrent access should hold
// one Client per goroutine.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	inbuf  []byte
	closed bool
}

// Dial connects to a broker listening at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	var conn, err = d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	return &Client{conn: conn, r: bufio.NewReaderSize(conn, 4096)}, nil
}

// Do sends req and blocks for its response. A protocol-level outcome that
// isn't the success variant the request implies (Empty, Full, NoSuchEntity,
// Requeued) is translated into one of this package's typed errors rather
// than returned as a Response for the caller to type-switch on.
func (c *Client) Do(req wire.Request) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if err := c.send(req); err != nil {
		return nil, err
	}
	var resp, err = c.recvOne()
	if err != nil {
		return nil, err
	}
	return classify(resp)
}

// classify turns a protocol-outcome Response into (nil, typed error),
// passing every other Response through unchanged.
func classify(resp wire.Response) (wire.Response, error) {
	switch r := resp.(type) {
	case wire.Empty:
		return nil, ErrEmpty
	case wire.Requeued:
		return nil, ErrRequeued
	case wire.NoSuchEntity:
		return nil, ErrNoSuchEntity
	case wire.Full:
		return nil, &FullError{ID: r.ID, Payload: r.Payload}
	default:
		return resp, nil
	}
}

// Pipeline sends every request in reqs back-to-back without waiting for
// responses in between, then returns an iterator yielding each response in
// the same order the requests were sent — the wire protocol and the
// broker's single decode-and-dispatch loop per connection guarantee that
// ordering (see internal/broker's Connection.onReadable).
func (c *Client) Pipeline(reqs []wire.Request) (*Pipeline, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	for _, req := range reqs {
		if err := c.send(req); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	c.mu.Unlock()
	return &Pipeline{c: c, remaining: len(reqs)}, nil
}

func (c *Client) send(req wire.Request) error {
	var buf, err = wire.EncodeRequest(req)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	if _, err := c.conn.Write(buf); err != nil {
		c.failLocked(err)
		return errors.Wrap(err, "write")
	}
	return nil
}

// recvOne reads and decodes exactly one response frame, buffering any
// trailing partial frame for the next call.
func (c *Client) recvOne() (wire.Response, error) {
	for {
		var resp, consumed, err = wire.DecodeResponse(c.inbuf)
		if err == nil {
			c.inbuf = c.inbuf[consumed:]
			return resp, nil
		}
		if err != wire.ErrIncomplete {
			c.failLocked(err)
			return nil, err
		}

		var tmp [4096]byte
		var n, rerr = c.r.Read(tmp[:])
		if rerr != nil {
			c.failLocked(rerr)
			return nil, errors.Wrap(rerr, "read")
		}
		c.inbuf = append(c.inbuf, tmp[:n]...)
	}
}

func (c *Client) failLocked(err error) {
	log.WithField("error", err).Debug("client connection failed, closing")
	c.closed = true
	c.conn.Close()
}

// SetDeadline forwards to the underlying connection, letting callers bound
// how long Do or Pipeline.Next may block.
func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.conn.Close()
}

// Pipeline iterates the responses to a batch of requests sent via
// Client.Pipeline, one at a time, in request order.
type Pipeline struct {
	c         *Client
	remaining int
}

// Next blocks for the next response in the batch, in request order. It
// returns io.EOF once every response in the batch has been consumed.
func (p *Pipeline) Next() (wire.Response, error) {
	if p.remaining == 0 {
		return nil, io.EOF
	}
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if p.c.closed {
		return nil, ErrClosed
	}
	var resp, err = p.c.recvOne()
	p.remaining--
	if err != nil {
		return nil, err
	}
	return classify(resp)
}

// Remaining reports how many responses are still outstanding in the batch.
func (p *Pipeline) Remaining() int { return p.remaining }
