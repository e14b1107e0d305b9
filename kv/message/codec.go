package message

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

/*
Every message travels in one frame, and every connection carries one request
frame (plus one reply frame for reads):

| PayloadLength | CRC32C  | Payload (JSON) |
|---------------|---------|----------------|
| 4 bytes       | 4 bytes | N bytes        |

Both header fields are big endian. The checksum covers the payload only.
*/
const (
	payloadLenBytes = 4
	checksumBytes   = 4
	frameHeaderSize = payloadLenBytes + checksumBytes

	// DefaultMaxMessageSize bounds the payload of a single frame.
	DefaultMaxMessageSize = 4 * 1024 * 1024
)

var (
	// ErrMalformed is the cause of every decoding failure.
	ErrMalformed = errors.New("malformed message")
	// ErrFrameTooLarge is returned when a payload exceeds the size limit.
	ErrFrameTooLarge = errors.New("frame exceeds max message size")
	// ErrChecksumMismatch is returned when a payload fails its CRC32C check.
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	// ErrUnknownType is returned for a request whose type is not understood.
	ErrUnknownType = errors.New("unknown message type")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// IsMalformed reports whether err was caused by a bad frame or payload.
func IsMalformed(err error) bool {
	switch errors.Cause(err) {
	case ErrMalformed, ErrFrameTooLarge, ErrChecksumMismatch, ErrUnknownType:
		return true
	}
	return false
}

// WriteFrame writes payload as a single frame.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:payloadLenBytes], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[payloadLenBytes:frameHeaderSize], crc32.Checksum(payload, castagnoli))
	copy(frame[frameHeaderSize:], payload)
	_, err := w.Write(frame)
	return errors.WithStack(err)
}

// ReadFrame reads one frame and returns its verified payload. io.EOF is
// returned untouched when the peer closed before sending anything.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrMalformed, "truncated frame header")
		}
		return nil, errors.WithStack(err)
	}
	payloadLen := binary.BigEndian.Uint32(header[:payloadLenBytes])
	if payloadLen > maxSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "payload is %d bytes, limit %d", payloadLen, maxSize)
	}
	expected := binary.BigEndian.Uint32(header[payloadLenBytes:])

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrMalformed, "truncated payload, expected %d bytes", payloadLen)
		}
		return nil, errors.WithStack(err)
	}
	if actual := crc32.Checksum(payload, castagnoli); actual != expected {
		return nil, errors.Wrapf(ErrChecksumMismatch, "expected %x, got %x", expected, actual)
	}
	return payload, nil
}

// Codec moves JSON messages through frames with a fixed size limit.
type Codec struct {
	maxMessageSize uint32
}

// NewCodec creates a codec. A zero limit means DefaultMaxMessageSize.
func NewCodec(maxMessageSize uint64) *Codec {
	if maxMessageSize == 0 || maxMessageSize > uint64(^uint32(0)) {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Codec{maxMessageSize: uint32(maxMessageSize)}
}

// Encode marshals v and writes it as one frame.
func (c *Codec) Encode(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.WithStack(err)
	}
	if uint64(len(payload)) > uint64(c.maxMessageSize) {
		return errors.Wrapf(ErrFrameTooLarge, "payload is %d bytes, limit %d", len(payload), c.maxMessageSize)
	}
	return WriteFrame(w, payload)
}

// DecodeInto reads one frame and unmarshals it into v.
func (c *Codec) DecodeInto(r io.Reader, v interface{}) error {
	payload, err := ReadFrame(r, c.maxMessageSize)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	return nil
}

// Decode reads one frame holding a request and returns the typed message.
func (c *Codec) Decode(r io.Reader) (Message, error) {
	payload, err := ReadFrame(r, c.maxMessageSize)
	if err != nil {
		return nil, err
	}
	return Unmarshal(payload)
}

// Unmarshal decodes a request payload, dispatching on its "type" field.
func Unmarshal(payload []byte) (Message, error) {
	var header struct {
		Type MsgType `json:"type"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	var msg Message
	switch header.Type {
	case MsgTypeRead:
		msg = &ReadRequest{}
	case MsgTypeCommit:
		msg = &CommitRequest{}
	default:
		return nil, errors.Wrapf(ErrUnknownType, "type %q", string(header.Type))
	}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	return msg, nil
}
