package message

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitRequestWireShape(t *testing.T) {
	req := NewCommitRequest("C1",
		[]ReadEntry{{Item: "x", Value: IntValue(0), Version: 0}, {Item: "k", Value: IntValue(123), Version: LocalVersion}},
		[]WriteEntry{{Item: "x", Value: IntValue(10)}})
	req.TxID = 4

	data, err := json.Marshal(req)
	require.Nil(t, err)
	assert.JSONEq(t,
		`{"type":"commit","client_id":"C1","rs":[["x",0,0],["k",123,-1]],"ws":[["x",10]],"tx_id":4}`,
		string(data))
}

func TestUnsequencedCommitOmitsTxID(t *testing.T) {
	data, err := json.Marshal(NewCommitRequest("C2", nil, nil))
	require.Nil(t, err)
	assert.JSONEq(t, `{"type":"commit","client_id":"C2","rs":[],"ws":[]}`, string(data))
}

func TestUnmarshalDispatch(t *testing.T) {
	msg, err := Unmarshal([]byte(`{"type":"read","item":"a"}`))
	require.Nil(t, err)
	read, ok := msg.(*ReadRequest)
	require.True(t, ok)
	assert.Equal(t, "a", read.Item)
	assert.Equal(t, MsgTypeRead, read.MsgType())

	msg, err = Unmarshal([]byte(`{"type":"commit","client_id":"C3","rs":[["m",0,0]],"ws":[["m",{"n":1}]],"tx_id":9}`))
	require.Nil(t, err)
	commit, ok := msg.(*CommitRequest)
	require.True(t, ok)
	assert.Equal(t, uint64(9), commit.TxID)
	assert.True(t, commit.Sequenced())
	assert.Equal(t, []ReadEntry{{Item: "m", Value: Value("0"), Version: 0}}, commit.ReadSet)
	require.Len(t, commit.WriteSet, 1)
	assert.JSONEq(t, `{"n":1}`, string(commit.WriteSet[0].Value))
}

func TestUnmarshalRejects(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"gossip"}`))
	assert.Equal(t, ErrUnknownType, errors.Cause(err))
	assert.True(t, IsMalformed(err))

	_, err = Unmarshal([]byte(`{"type":`))
	assert.Equal(t, ErrMalformed, errors.Cause(err))

	_, err = Unmarshal([]byte(`{"type":"commit","rs":[["x",1]]}`))
	assert.Equal(t, ErrMalformed, errors.Cause(err))

	_, err = Unmarshal([]byte(`{"type":"commit","ws":[["x",1,2]]}`))
	assert.Equal(t, ErrMalformed, errors.Cause(err))
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(0)
	var buf bytes.Buffer
	require.Nil(t, codec.Encode(&buf, NewReadRequest("x")))
	require.Nil(t, codec.Encode(&buf, &ReadResponse{Item: "x", Value: IntValue(10), Version: 1}))

	msg, err := codec.Decode(&buf)
	require.Nil(t, err)
	assert.Equal(t, &ReadRequest{Type: MsgTypeRead, Item: "x"}, msg)

	var resp ReadResponse
	require.Nil(t, codec.DecodeInto(&buf, &resp))
	assert.Equal(t, "x", resp.Item)
	assert.Equal(t, "10", string(resp.Value))
	assert.Equal(t, int64(1), resp.Version)

	_, err = codec.Decode(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestFrameLimits(t *testing.T) {
	codec := NewCodec(16)
	var buf bytes.Buffer
	err := codec.Encode(&buf, NewReadRequest("a-key-that-is-far-too-long"))
	assert.Equal(t, ErrFrameTooLarge, errors.Cause(err))
	assert.Equal(t, 0, buf.Len())

	require.Nil(t, WriteFrame(&buf, bytes.Repeat([]byte("a"), 32)))
	_, err = ReadFrame(&buf, 16)
	assert.Equal(t, ErrFrameTooLarge, errors.Cause(err))
}

func TestFrameCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.Nil(t, WriteFrame(&buf, []byte(`{"type":"read","item":"x"}`)))
	frame := buf.Bytes()
	frame[len(frame)-2] ^= 0xff
	_, err := ReadFrame(bytes.NewReader(frame), DefaultMaxMessageSize)
	assert.Equal(t, ErrChecksumMismatch, errors.Cause(err))

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 10)
	truncated := append(header[:], []byte("abc")...)
	_, err = ReadFrame(bytes.NewReader(truncated), DefaultMaxMessageSize)
	assert.Equal(t, ErrMalformed, errors.Cause(err))

	_, err = ReadFrame(bytes.NewReader(header[:3]), DefaultMaxMessageSize)
	assert.Equal(t, ErrMalformed, errors.Cause(err))
}

func TestLocalEntry(t *testing.T) {
	assert.True(t, ReadEntry{Item: "k", Version: LocalVersion}.IsLocal())
	assert.False(t, ReadEntry{Item: "k", Version: 0}.IsLocal())
}
