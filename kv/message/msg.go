package message

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// MsgType is the value of the "type" field carried by request messages.
type MsgType string

const (
	MsgTypeRead   MsgType = "read"
	MsgTypeCommit MsgType = "commit"
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRead, MsgTypeCommit:
		return string(t)
	}
	return "INVALID(" + string(t) + ")"
}

// Value is an opaque JSON document stored under a key.
type Value = json.RawMessage

// DefaultValue is what a replica answers for a key that was never written.
var DefaultValue = Value("0")

// LocalVersion marks a read-set entry served from the client's own write set.
// Such an entry was never checked against replica state.
const LocalVersion int64 = -1

// IntValue encodes an integer as a Value.
func IntValue(v int64) Value {
	return Value(strconv.FormatInt(v, 10))
}

// NewValue encodes any JSON-marshalable v as a Value.
func NewValue(v interface{}) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Value(data), nil
}

// Message is a request that announces its own type on the wire.
type Message interface {
	MsgType() MsgType
}

// ReadRequest asks a replica for the current value and version of Item.
type ReadRequest struct {
	Type MsgType `json:"type"`
	Item string  `json:"item"`
}

func NewReadRequest(item string) *ReadRequest {
	return &ReadRequest{Type: MsgTypeRead, Item: item}
}

func (r *ReadRequest) MsgType() MsgType { return MsgTypeRead }

// ReadResponse is the only reply in the protocol. It carries no type field.
type ReadResponse struct {
	Item    string `json:"item"`
	Value   Value  `json:"value"`
	Version int64  `json:"version"`
}

// ReadEntry records what a transaction observed for one key. It is encoded
// as the tuple [item, value, version].
type ReadEntry struct {
	Item    string
	Value   Value
	Version int64
}

// IsLocal reports whether the entry was served from the client's write set.
func (e ReadEntry) IsLocal() bool {
	return e.Version == LocalVersion
}

func (e ReadEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Item, e.Value, e.Version})
}

func (e *ReadEntry) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) != 3 {
		return errors.Errorf("read entry has %d fields, want 3", len(fields))
	}
	if err := json.Unmarshal(fields[0], &e.Item); err != nil {
		return err
	}
	e.Value = fields[1]
	return json.Unmarshal(fields[2], &e.Version)
}

// WriteEntry is one buffered write, encoded as the tuple [item, value].
type WriteEntry struct {
	Item  string
	Value Value
}

func (e WriteEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Item, e.Value})
}

func (e *WriteEntry) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) != 2 {
		return errors.Errorf("write entry has %d fields, want 2", len(fields))
	}
	if err := json.Unmarshal(fields[0], &e.Item); err != nil {
		return err
	}
	e.Value = fields[1]
	return nil
}

// CommitRequest carries a transaction. Clients send it with TxID unset; the
// sequencer stamps TxID before broadcasting it unchanged to every replica.
type CommitRequest struct {
	Type     MsgType      `json:"type"`
	ClientID string       `json:"client_id"`
	ReadSet  []ReadEntry  `json:"rs"`
	WriteSet []WriteEntry `json:"ws"`
	TxID     uint64       `json:"tx_id,omitempty"`
}

func NewCommitRequest(clientID string, rs []ReadEntry, ws []WriteEntry) *CommitRequest {
	if rs == nil {
		rs = []ReadEntry{}
	}
	if ws == nil {
		ws = []WriteEntry{}
	}
	return &CommitRequest{
		Type:     MsgTypeCommit,
		ClientID: clientID,
		ReadSet:  rs,
		WriteSet: ws,
	}
}

func (r *CommitRequest) MsgType() MsgType { return MsgTypeCommit }

// Sequenced reports whether the sequencer has stamped the transaction.
func (r *CommitRequest) Sequenced() bool {
	return r.TxID != 0
}
