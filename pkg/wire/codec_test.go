package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	var gen = NewIDGenerator()
	var cases = []Request{
		CreateQueue{Name: "foo"},
		DeleteQueue{Name: "foo"},
		Enqueue{Name: "foo", Payload: []byte("hello world")},
		Enqueue{Name: "foo", Payload: nil},
		Read{Name: "foo", TimeoutMs: 1500},
		Read{Name: "foo", TimeoutMs: 0},
		Confirm{ID: gen.Next()},
	}

	for _, req := range cases {
		var buf, err = EncodeRequest(req)
		require.NoError(t, err)

		var decoded, consumed, derr = DecodeRequest(buf)
		require.NoError(t, derr)
		assert.Equal(t, len(buf), consumed)
		assert.Equal(t, req, decoded)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	var gen = NewIDGenerator()
	var cases = []Response{
		QueueCreated{},
		QueueDeleted{},
		ObjectQueued{ID: gen.Next()},
		ReadResponse{ID: gen.Next(), Payload: []byte{1, 2, 3}},
		Confirmed{},
		Requeued{},
		Full{ID: gen.Next(), Payload: []byte("rejected")},
		Empty{},
		NoSuchEntity{},
	}

	for _, resp := range cases {
		var buf, err = EncodeResponse(resp)
		require.NoError(t, err)

		var decoded, consumed, derr = DecodeResponse(buf)
		require.NoError(t, derr)
		assert.Equal(t, len(buf), consumed)
		assert.Equal(t, resp, decoded)
	}
}

func TestDecodeIncompleteFrame(t *testing.T) {
	var buf, err = EncodeRequest(Enqueue{Name: "foo", Payload: []byte("bar")})
	require.NoError(t, err)

	for n := 0; n < len(buf); n++ {
		var _, _, derr = DecodeRequest(buf[:n])
		assert.ErrorIs(t, derr, ErrIncomplete, "prefix length %d", n)
	}
}

func TestDecodeMultipleFramesFromOneBuffer(t *testing.T) {
	var a, _ = EncodeRequest(CreateQueue{Name: "a"})
	var b, _ = EncodeRequest(CreateQueue{Name: "b"})
	var buf = append(append([]byte{}, a...), b...)

	var msg1, n1, err1 = DecodeRequest(buf)
	require.NoError(t, err1)
	assert.Equal(t, CreateQueue{Name: "a"}, msg1)

	var msg2, n2, err2 = DecodeRequest(buf[n1:])
	require.NoError(t, err2)
	assert.Equal(t, CreateQueue{Name: "b"}, msg2)
	assert.Equal(t, len(buf), n1+n2)
}

func TestEncodeOverLongPayloadFails(t *testing.T) {
	var _, err = EncodeRequest(Enqueue{Name: "foo", Payload: make([]byte, MaxMessageLen)})
	assert.ErrorIs(t, err, ErrOverLong)
}

func TestIDGeneratorProducesUniqueIDs(t *testing.T) {
	var gen = NewIDGenerator()
	var seen = make(map[MessageID]bool)
	for i := 0; i < 1000; i++ {
		var id = gen.Next()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
