package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReg struct{ fd int }

func (f fakeReg) FD() int { return f.fd }

func TestSlabInsertGetRemove(t *testing.T) {
	var s = NewSlab(2)

	var tok1, err = s.Insert(fakeReg{fd: 10})
	require.NoError(t, err)

	var got, ok = s.Get(tok1)
	require.True(t, ok)
	assert.Equal(t, 10, got.(fakeReg).fd)

	var removed, ok2 = s.Remove(tok1)
	require.True(t, ok2)
	assert.Equal(t, 10, removed.(fakeReg).fd)

	var _, ok3 = s.Get(tok1)
	assert.False(t, ok3)
}

func TestSlabFullReturnsError(t *testing.T) {
	var s = NewSlab(1)
	var _, err = s.Insert(fakeReg{fd: 1})
	require.NoError(t, err)

	var _, err2 = s.Insert(fakeReg{fd: 2})
	assert.ErrorIs(t, err2, ErrSlabFull)
}

func TestSlabReusesFreedToken(t *testing.T) {
	var s = NewSlab(1)
	var tok, _ = s.Insert(fakeReg{fd: 1})
	s.Remove(tok)

	var tok2, err = s.Insert(fakeReg{fd: 2})
	require.NoError(t, err)
	assert.Equal(t, tok, tok2)
}

func TestSlabLen(t *testing.T) {
	var s = NewSlab(4)
	assert.Equal(t, 0, s.Len())
	var a, _ = s.Insert(fakeReg{fd: 1})
	s.Insert(fakeReg{fd: 2})
	assert.Equal(t, 2, s.Len())
	s.Remove(a)
	assert.Equal(t, 1, s.Len())
}
