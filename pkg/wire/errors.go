package wire

import "github.com/pkg/errors"

// ErrIncomplete is returned by Decode when buf does not yet hold a complete
// frame. It is not a decode failure: the caller should wait for more bytes
// and retry. It is distinguishable from every other error Decode returns.
var ErrIncomplete = errors.New("wire: incomplete frame")

// ErrOverLong is returned by Decode when the frame length prefix declares a
// length exceeding MaxMessageLen, and by Encode when a constructed frame
// would exceed it. Callers encountering this on a connection must treat it
// as fatal.
var ErrOverLong = errors.New("wire: message exceeds maximum length")

// ErrUnknownTag is returned by Decode when a frame's variant tag is not one
// this package recognizes; it indicates wire-format corruption or a
// protocol version mismatch.
type ErrUnknownTag struct {
	Tag byte
}

func (e ErrUnknownTag) Error() string {
	return errors.Errorf("wire: unknown variant tag %d", e.Tag).Error()
}
