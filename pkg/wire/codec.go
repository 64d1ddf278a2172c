package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const frameLenPrefix = 4

// maxPayloadLen is the largest a frame's tag+fields may be once the 4-byte
// frame length prefix is accounted for.
const maxPayloadLen = MaxMessageLen - frameLenPrefix

// EncodeRequest serializes req as a length-delimited frame.
func EncodeRequest(req Request) ([]byte, error) {
	var body bytes.Buffer
	body.WriteByte(byte(req.requestTag()))

	switch m := req.(type) {
	case CreateQueue:
		if err := writeString(&body, m.Name); err != nil {
			return nil, err
		}
	case DeleteQueue:
		if err := writeString(&body, m.Name); err != nil {
			return nil, err
		}
	case Enqueue:
		if err := writeString(&body, m.Name); err != nil {
			return nil, err
		}
		if err := writeBytes(&body, m.Payload); err != nil {
			return nil, err
		}
	case Read:
		if err := writeString(&body, m.Name); err != nil {
			return nil, err
		}
		writeUint64(&body, m.TimeoutMs)
	case Confirm:
		writeID(&body, m.ID)
	default:
		return nil, errors.Errorf("wire: unhandled request type %T", req)
	}

	return framed(body.Bytes())
}

// EncodeResponse serializes resp as a length-delimited frame.
func EncodeResponse(resp Response) ([]byte, error) {
	var body bytes.Buffer
	body.WriteByte(byte(resp.responseTag()))

	switch m := resp.(type) {
	case QueueCreated, QueueDeleted, Confirmed, Requeued, Empty, NoSuchEntity:
		// No fields.
	case ObjectQueued:
		writeID(&body, m.ID)
	case ReadResponse:
		writeID(&body, m.ID)
		if err := writeBytes(&body, m.Payload); err != nil {
			return nil, err
		}
	case Full:
		writeID(&body, m.ID)
		if err := writeBytes(&body, m.Payload); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("wire: unhandled response type %T", resp)
	}

	return framed(body.Bytes())
}

// framed prepends a 4-byte little-endian length prefix to body, failing if
// the resulting frame would exceed MaxMessageLen.
func framed(body []byte) ([]byte, error) {
	if len(body) > maxPayloadLen {
		return nil, ErrOverLong
	}
	var out = make([]byte, frameLenPrefix+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(body)))
	copy(out[frameLenPrefix:], body)
	return out, nil
}

// DecodeRequest attempts to decode a single Request from the head of buf.
// It returns ErrIncomplete if buf does not yet contain a complete frame, and
// the number of bytes consumed from buf on success.
func DecodeRequest(buf []byte) (Request, int, error) {
	var body, consumed, err = takeFrame(buf)
	if err != nil {
		return nil, 0, err
	}

	var r = bytes.NewReader(body)
	var tagByte byte
	if tagByte, err = r.ReadByte(); err != nil {
		return nil, 0, errors.Wrap(err, "wire: reading request tag")
	}

	switch requestTag(tagByte) {
	case tagCreateQueue:
		var name, err = readString(r)
		return CreateQueue{Name: name}, consumed, err
	case tagDeleteQueue:
		var name, err = readString(r)
		return DeleteQueue{Name: name}, consumed, err
	case tagEnqueue:
		var name, err = readString(r)
		if err != nil {
			return nil, consumed, err
		}
		var payload []byte
		if payload, err = readBytes(r); err != nil {
			return nil, consumed, err
		}
		return Enqueue{Name: name, Payload: payload}, consumed, nil
	case tagRead:
		var name, err = readString(r)
		if err != nil {
			return nil, consumed, err
		}
		var timeout uint64
		if timeout, err = readUint64(r); err != nil {
			return nil, consumed, err
		}
		return Read{Name: name, TimeoutMs: timeout}, consumed, nil
	case tagConfirm:
		var id, err = readID(r)
		return Confirm{ID: id}, consumed, err
	default:
		return nil, consumed, ErrUnknownTag{Tag: tagByte}
	}
}

// DecodeResponse attempts to decode a single Response from the head of buf.
// Semantics mirror DecodeRequest.
func DecodeResponse(buf []byte) (Response, int, error) {
	var body, consumed, err = takeFrame(buf)
	if err != nil {
		return nil, 0, err
	}

	var r = bytes.NewReader(body)
	var tagByte byte
	if tagByte, err = r.ReadByte(); err != nil {
		return nil, 0, errors.Wrap(err, "wire: reading response tag")
	}

	switch responseTag(tagByte) {
	case tagQueueCreated:
		return QueueCreated{}, consumed, nil
	case tagQueueDeleted:
		return QueueDeleted{}, consumed, nil
	case tagObjectQueued:
		var id, err = readID(r)
		return ObjectQueued{ID: id}, consumed, err
	case tagReadResponse:
		var id, err = readID(r)
		if err != nil {
			return nil, consumed, err
		}
		var payload []byte
		if payload, err = readBytes(r); err != nil {
			return nil, consumed, err
		}
		return ReadResponse{ID: id, Payload: payload}, consumed, nil
	case tagConfirmed:
		return Confirmed{}, consumed, nil
	case tagRequeued:
		return Requeued{}, consumed, nil
	case tagFull:
		var id, err = readID(r)
		if err != nil {
			return nil, consumed, err
		}
		var payload []byte
		if payload, err = readBytes(r); err != nil {
			return nil, consumed, err
		}
		return Full{ID: id, Payload: payload}, consumed, nil
	case tagEmpty:
		return Empty{}, consumed, nil
	case tagNoSuchEntity:
		return NoSuchEntity{}, consumed, nil
	default:
		return nil, consumed, ErrUnknownTag{Tag: tagByte}
	}
}

// takeFrame reads the length prefix at the head of buf and returns the frame
// body and total bytes consumed, or ErrIncomplete if buf is truncated.
func takeFrame(buf []byte) (body []byte, consumed int, err error) {
	if len(buf) < frameLenPrefix {
		return nil, 0, ErrIncomplete
	}
	var bodyLen = binary.LittleEndian.Uint32(buf)
	if bodyLen > maxPayloadLen {
		return nil, 0, ErrOverLong
	}
	var total = frameLenPrefix + int(bodyLen)
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}
	return buf[frameLenPrefix:total], total, nil
}

func writeString(w *bytes.Buffer, s string) error {
	return writeBytes(w, []byte(s))
}

func writeBytes(w *bytes.Buffer, b []byte) error {
	if uint64(len(b)) > maxPayloadLen {
		return ErrOverLong
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.Write(lenBuf[:])
	w.Write(b)
	return nil
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}

func writeID(w *bytes.Buffer, id MessageID) {
	w.Write(id[:])
}

func readString(r *bytes.Reader) (string, error) {
	var b, err = readBytes(r)
	return string(b), err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "wire: reading length prefix")
	}
	var n = binary.LittleEndian.Uint32(lenBuf[:])
	if int(n) > r.Len() {
		return nil, errors.New("wire: length prefix exceeds remaining frame")
	}
	if n == 0 {
		return nil, nil
	}
	var out = make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(err, "wire: reading bytes")
	}
	return out, nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.Wrap(err, "wire: reading uint64")
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readID(r *bytes.Reader) (MessageID, error) {
	var id MessageID
	if _, err := io.ReadFull(r, id[:]); err != nil {
		return id, errors.Wrap(err, "wire: reading identifier")
	}
	return id, nil
}
