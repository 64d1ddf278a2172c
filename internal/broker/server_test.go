//go:build linux

package broker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loopwire/queued/internal/reactor"
	"github.com/loopwire/queued/pkg/queue"
	"github.com/loopwire/queued/pkg/wire"
)

func startTestServer(t *testing.T, defaultTimeout time.Duration) (*Server, net.Conn) {
	t.Helper()

	var cfg = reactor.DefaultConfig()
	cfg.SlabCapacity = 64
	cfg.PollTimeout = 10 * time.Millisecond

	var srv, err = NewServer(ServerConfig{
		ListenAddr:       "127.0.0.1:0",
		Reactor:          cfg,
		DefaultTimeout:   defaultTimeout,
		RecentHistoryCap: 64,
		Queues:           queue.NewConcurrent(16),
	})
	require.NoError(t, err)

	var ctx, cancel = context.WithCancel(context.Background())
	require.NoError(t, srv.Serve(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
	})

	var addr string
	require.Eventually(t, func() bool {
		var derr error
		addr, derr = srv.Addr()
		return derr == nil && addr != "" && addr[len(addr)-1] != ':'
	}, time.Second, time.Millisecond)

	var conn net.Conn
	require.Eventually(t, func() bool {
		var c, derr = net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if derr != nil {
			return false
		}
		conn = c
		return true
	}, time.Second, 5*time.Millisecond)

	return srv, conn
}

func roundTrip(t *testing.T, conn net.Conn, req wire.Request) wire.Response {
	t.Helper()
	var buf, err = wire.EncodeRequest(req)
	require.NoError(t, err)
	_, err = conn.Write(buf)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp []byte
	var tmp [4096]byte
	for {
		var n, rerr = conn.Read(tmp[:])
		require.NoError(t, rerr)
		resp = append(resp, tmp[:n]...)
		var r, consumed, derr = wire.DecodeResponse(resp)
		if derr == wire.ErrIncomplete {
			continue
		}
		require.NoError(t, derr)
		require.Equal(t, len(resp), consumed)
		return r
	}
}

func TestServerCreateEnqueueReadConfirm(t *testing.T) {
	var _, conn = startTestServer(t, time.Second)
	defer conn.Close()

	require.IsType(t, wire.QueueCreated{}, roundTrip(t, conn, wire.CreateQueue{Name: "orders"}))
	var enq = roundTrip(t, conn, wire.Enqueue{Name: "orders", Payload: []byte("hello")})
	var queued, ok = enq.(wire.ObjectQueued)
	require.True(t, ok)
	require.False(t, queued.ID.IsZero())

	var rd = roundTrip(t, conn, wire.Read{Name: "orders", TimeoutMs: 5000})
	var delivered, ok2 = rd.(wire.ReadResponse)
	require.True(t, ok2)
	require.Equal(t, []byte("hello"), delivered.Payload)
	require.Equal(t, queued.ID, delivered.ID)

	require.IsType(t, wire.Confirmed{}, roundTrip(t, conn, wire.Confirm{ID: delivered.ID}))

	// Now empty: nothing left to read.
	require.IsType(t, wire.Empty{}, roundTrip(t, conn, wire.Read{Name: "orders", TimeoutMs: 100}))
}

func TestServerReadUnknownQueueIsNoSuchEntity(t *testing.T) {
	var _, conn = startTestServer(t, time.Second)
	defer conn.Close()

	require.IsType(t, wire.NoSuchEntity{}, roundTrip(t, conn, wire.Read{Name: "ghost", TimeoutMs: 10}))
}

func TestServerConfirmUnknownIDIsNoSuchEntity(t *testing.T) {
	var _, conn = startTestServer(t, time.Second)
	defer conn.Close()

	var gen = wire.NewIDGenerator()
	require.IsType(t, wire.NoSuchEntity{}, roundTrip(t, conn, wire.Confirm{ID: gen.Next()}))
}

func TestServerRedeliveryTimeoutRequeuesMessage(t *testing.T) {
	var _, conn = startTestServer(t, time.Second)
	defer conn.Close()

	roundTrip(t, conn, wire.CreateQueue{Name: "q"})
	roundTrip(t, conn, wire.Enqueue{Name: "q", Payload: []byte("x")})

	var rd = roundTrip(t, conn, wire.Read{Name: "q", TimeoutMs: 50})
	var delivered = rd.(wire.ReadResponse)

	// Don't confirm; wait out the redelivery timeout.
	time.Sleep(300 * time.Millisecond)

	// A late confirm against the original delivery now reports Requeued,
	// not Confirmed or NoSuchEntity.
	require.IsType(t, wire.Requeued{}, roundTrip(t, conn, wire.Confirm{ID: delivered.ID}))

	// Reading again on the same connection yields the message, which has
	// returned to its queue.
	var rd2 = roundTrip(t, conn, wire.Read{Name: "q", TimeoutMs: 50})
	var redelivered, ok = rd2.(wire.ReadResponse)
	require.True(t, ok)
	require.Equal(t, delivered.ID, redelivered.ID)
	require.Equal(t, delivered.Payload, redelivered.Payload)
}

func TestServerPipelinedRequestsRespondInOrder(t *testing.T) {
	var _, conn = startTestServer(t, time.Second)
	defer conn.Close()

	roundTrip(t, conn, wire.CreateQueue{Name: "pipe"})

	var reqs = []wire.Request{
		wire.Enqueue{Name: "pipe", Payload: []byte("1")},
		wire.Enqueue{Name: "pipe", Payload: []byte("2")},
		wire.Enqueue{Name: "pipe", Payload: []byte("3")},
	}
	var batch []byte
	for _, r := range reqs {
		var b, err = wire.EncodeRequest(r)
		require.NoError(t, err)
		batch = append(batch, b...)
	}
	_, err := conn.Write(batch)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var buf []byte
	var tmp [4096]byte
	var results []wire.Response
	for len(results) < 3 {
		var n, rerr = conn.Read(tmp[:])
		require.NoError(t, rerr)
		buf = append(buf, tmp[:n]...)
		for {
			var r, consumed, derr = wire.DecodeResponse(buf)
			if derr == wire.ErrIncomplete {
				break
			}
			require.NoError(t, derr)
			results = append(results, r)
			buf = buf[consumed:]
		}
	}

	for i, r := range results {
		var oq, ok = r.(wire.ObjectQueued)
		require.True(t, ok, "response %d should be ObjectQueued", i)
		require.False(t, oq.ID.IsZero())
	}
}

func TestServerConnectionCloseRequeuesUnconfirmedDeliveries(t *testing.T) {
	var srv, conn = startTestServer(t, time.Hour) // long timeout: only close should requeue

	roundTrip(t, conn, wire.CreateQueue{Name: "q"})
	roundTrip(t, conn, wire.Enqueue{Name: "q", Payload: []byte("x")})
	roundTrip(t, conn, wire.Read{Name: "q", TimeoutMs: 0})

	conn.Close() // drop the connection without confirming

	var addr, err = srv.Addr()
	require.NoError(t, err)
	var conn2 net.Conn
	require.Eventually(t, func() bool {
		var c, derr = net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if derr != nil {
			return false
		}
		conn2 = c
		return true
	}, time.Second, 5*time.Millisecond)
	defer conn2.Close()

	var resp wire.Response
	require.Eventually(t, func() bool {
		resp = roundTrip(t, conn2, wire.Read{Name: "q", TimeoutMs: 10})
		_, ok := resp.(wire.ReadResponse)
		return ok
	}, time.Second, 10*time.Millisecond, "message should be requeued once the holding connection closes")
}

// startSharingServer is startTestServer's sibling for multi-server tests: it
// takes a pre-built Set rather than constructing its own, so several Servers
// can be pointed at the same one.
func startSharingServer(t *testing.T, queues queue.Set) (*Server, net.Conn) {
	t.Helper()

	var cfg = reactor.DefaultConfig()
	cfg.SlabCapacity = 64
	cfg.PollTimeout = 10 * time.Millisecond

	var srv, err = NewServer(ServerConfig{
		ListenAddr:       "127.0.0.1:0",
		Reactor:          cfg,
		DefaultTimeout:   time.Second,
		RecentHistoryCap: 64,
		Queues:           queues,
	})
	require.NoError(t, err)

	var ctx, cancel = context.WithCancel(context.Background())
	require.NoError(t, srv.Serve(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
	})

	var addr string
	require.Eventually(t, func() bool {
		var derr error
		addr, derr = srv.Addr()
		return derr == nil && addr != "" && addr[len(addr)-1] != ':'
	}, time.Second, time.Millisecond)

	var conn net.Conn
	require.Eventually(t, func() bool {
		var c, derr = net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if derr != nil {
			return false
		}
		conn = c
		return true
	}, time.Second, 5*time.Millisecond)

	return srv, conn
}

// TestMultiServerSharedQueueSet exercises two independent Servers — each
// with its own reactor goroutine and listening socket — sharing one
// concurrent queue.Set, mirroring the original source's
// tests/examples/multiserver.rs scenario: a message enqueued through one
// Server's connection is read and confirmed through another's.
func TestMultiServerSharedQueueSet(t *testing.T) {
	var shared = queue.NewConcurrent(16)

	var _, connA = startSharingServer(t, shared)
	defer connA.Close()
	var _, connB = startSharingServer(t, shared)
	defer connB.Close()

	require.IsType(t, wire.QueueCreated{}, roundTrip(t, connA, wire.CreateQueue{Name: "shared"}))

	var enq = roundTrip(t, connA, wire.Enqueue{Name: "shared", Payload: []byte("cross-server")})
	var queued, ok = enq.(wire.ObjectQueued)
	require.True(t, ok)

	var rd = roundTrip(t, connB, wire.Read{Name: "shared", TimeoutMs: 1000})
	var delivered, ok2 = rd.(wire.ReadResponse)
	require.True(t, ok2)
	require.Equal(t, queued.ID, delivered.ID)
	require.Equal(t, []byte("cross-server"), delivered.Payload)

	require.IsType(t, wire.Confirmed{}, roundTrip(t, connB, wire.Confirm{ID: delivered.ID}))
}
