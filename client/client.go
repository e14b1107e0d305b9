package client

import (
	"context"
	"math/rand"
	"time"

	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pingcap-incubator/tinydur/kv/transport"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNoReplica is returned by a remote read when no replica is configured.
var ErrNoReplica = errors.New("[dur] no replica configured")

// Config tells a Client where the cluster is.
type Config struct {
	// Replicas lists the replica addresses reads may be sent to.
	Replicas []string
	// Sequencer is the address commits are sent to.
	Sequencer string

	DialTimeout    time.Duration
	RequestTimeout time.Duration
	// MaxMessageSize bounds a single message. Zero means the codec default.
	MaxMessageSize uint64
}

// Client runs one transaction. Reads go to a random replica unless the key
// was already written by this transaction; writes stay local until Commit.
// A Client is not safe for concurrent use and cannot be reused after Commit.
type Client struct {
	id        string
	cfg       Config
	transport *transport.Transport
	rnd       *rand.Rand

	readSet  []message.ReadEntry
	writeSet []message.WriteEntry
}

// NewClient creates a client for a transaction identified by id.
func NewClient(id string, cfg Config) *Client {
	codec := message.NewCodec(cfg.MaxMessageSize)
	return &Client{
		id:        id,
		cfg:       cfg,
		transport: transport.NewTransport(codec, cfg.DialTimeout, cfg.RequestTimeout),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Read returns the value of key as seen by this transaction and records the
// observation in the read set.
func (c *Client) Read(ctx context.Context, key string) (message.Value, error) {
	for i := len(c.writeSet) - 1; i >= 0; i-- {
		if w := c.writeSet[i]; w.Item == key {
			c.readSet = append(c.readSet, message.ReadEntry{Item: key, Value: w.Value, Version: message.LocalVersion})
			log.Debug("read from write set", zap.String("client-id", c.id), zap.String("key", key))
			return w.Value, nil
		}
	}

	if len(c.cfg.Replicas) == 0 {
		return nil, ErrNoReplica
	}
	addr := c.cfg.Replicas[c.rnd.Intn(len(c.cfg.Replicas))]
	var resp message.ReadResponse
	if err := c.transport.Call(ctx, addr, message.NewReadRequest(key), &resp); err != nil {
		return nil, errors.WithMessage(err, "read "+key)
	}
	if resp.Item != key {
		return nil, errors.Wrapf(message.ErrMalformed, "asked for %q, replica %s answered %q", key, addr, resp.Item)
	}
	c.readSet = append(c.readSet, message.ReadEntry{Item: resp.Item, Value: resp.Value, Version: resp.Version})
	log.Debug("read from replica",
		zap.String("client-id", c.id),
		zap.String("replica", addr),
		zap.String("key", key),
		zap.Int64("version", resp.Version))
	return resp.Value, nil
}

// Write buffers a write. Nothing is sent until Commit.
func (c *Client) Write(key string, value message.Value) {
	c.writeSet = append(c.writeSet, message.WriteEntry{Item: key, Value: value})
}

// Commit hands the transaction to the sequencer. It does not learn whether
// the transaction committed; an error only means it was never delivered.
func (c *Client) Commit(ctx context.Context) error {
	if c.cfg.Sequencer == "" {
		return errors.New("[dur] no sequencer configured")
	}
	tx := message.NewCommitRequest(c.id, c.readSet, c.writeSet)
	if err := c.transport.Send(ctx, c.cfg.Sequencer, tx); err != nil {
		return errors.WithMessage(err, "commit")
	}
	log.Debug("transaction sent for commit",
		zap.String("client-id", c.id),
		zap.Int("reads", len(c.readSet)),
		zap.Int("writes", len(c.writeSet)))
	return nil
}

// ID returns the client id sent with the commit.
func (c *Client) ID() string {
	return c.id
}

// ReadSet returns the reads recorded so far, oldest first.
func (c *Client) ReadSet() []message.ReadEntry {
	return append([]message.ReadEntry(nil), c.readSet...)
}

// WriteSet returns the buffered writes in issue order.
func (c *Client) WriteSet() []message.WriteEntry {
	return append([]message.WriteEntry(nil), c.writeSet...)
}
