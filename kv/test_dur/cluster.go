package test_dur

import (
	"context"
	"strings"
	"time"

	"github.com/pingcap-incubator/tinydur/client"
	"github.com/pingcap-incubator/tinydur/kv/config"
	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pingcap-incubator/tinydur/kv/replica"
	"github.com/pingcap-incubator/tinydur/pkg/testutil"
	"github.com/pingcap-incubator/tinydur/scheduler/server"
	seqconfig "github.com/pingcap-incubator/tinydur/scheduler/server/config"
	"github.com/pkg/errors"
)

// Cluster runs a sequencer and count replicas inside the test process, all
// on loopback addresses.
type Cluster struct {
	count     int
	replicas  []*replica.Server
	sequencer *server.Server
	cancel    context.CancelFunc
}

func NewCluster(count int) *Cluster {
	return &Cluster{count: count}
}

func (c *Cluster) Start() error {
	for i := 0; i < c.count; i++ {
		cfg := config.NewTestConfig()
		cfg.Name = "replica-" + string(rune('a'+i))
		if err := cfg.Validate(); err != nil {
			return err
		}
		r := replica.NewServer(cfg)
		if err := r.Start(); err != nil {
			c.Shutdown()
			return errors.Wrapf(err, "start %s", cfg.Name)
		}
		c.replicas = append(c.replicas, r)
	}

	cfg := seqconfig.NewConfig()
	cfg.Name = "sequencer"
	cfg.Addr = "127.0.0.1:0"
	cfg.Replicas = strings.Join(c.ReplicaAddrs(), ",")
	cfg.DialTimeout.Duration = time.Second
	cfg.ConnTimeout.Duration = 2 * time.Second
	if err := cfg.Adjust(nil); err != nil {
		c.Shutdown()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.sequencer = server.CreateServer(cfg)
	if err := c.sequencer.Run(ctx); err != nil {
		c.Shutdown()
		return err
	}
	return nil
}

func (c *Cluster) Shutdown() {
	if c.sequencer != nil {
		c.sequencer.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	for _, r := range c.replicas {
		r.Stop()
	}
}

func (c *Cluster) ReplicaAddrs() []string {
	addrs := make([]string, 0, len(c.replicas))
	for _, r := range c.replicas {
		addrs = append(addrs, r.Addr())
	}
	return addrs
}

func (c *Cluster) Replicas() []*replica.Server {
	return c.replicas
}

func (c *Cluster) Sequencer() *server.Server {
	return c.sequencer
}

// NewClient creates a transaction client that knows every node.
func (c *Cluster) NewClient(id string) *client.Client {
	return client.NewClient(id, client.Config{
		Replicas:       c.ReplicaAddrs(),
		Sequencer:      c.sequencer.Addr(),
		DialTimeout:    time.Second,
		RequestTimeout: 2 * time.Second,
	})
}

// MustCommit commits cl and waits until every replica has decided it.
func (c *Cluster) MustCommit(t testutil.Fataler, cl *client.Client) uint64 {
	last := c.sequencer.LastTxID()
	if err := cl.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}
	testutil.WaitUntil(t, func() bool { return c.sequencer.LastTxID() > last })
	txID := c.sequencer.LastTxID()
	c.WaitApplied(t, txID)
	return txID
}

// WaitApplied waits until every replica has applied txID.
func (c *Cluster) WaitApplied(t testutil.Fataler, txID uint64) {
	testutil.WaitUntil(t, func() bool {
		for _, r := range c.replicas {
			if r.AppliedTxID() < txID {
				return false
			}
		}
		return true
	})
}

// Get reads key on every replica and fails unless they all agree.
func (c *Cluster) Get(t testutil.Fataler, key string) (message.Value, int64) {
	value, version := c.replicas[0].Read(key)
	for _, r := range c.replicas[1:] {
		v, ver := r.Read(key)
		if string(v) != string(value) || ver != version {
			t.Fatal("replicas disagree on ", key, ": ", string(value), "@", version, " vs ", string(v), "@", ver)
		}
	}
	return value, version
}

// WaitUntilSequenced waits until the sequencer has handed out txID.
func (c *Cluster) WaitUntilSequenced(t testutil.Fataler, txID uint64) {
	testutil.WaitUntil(t, func() bool { return c.sequencer.LastTxID() >= txID })
}
