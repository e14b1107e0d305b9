// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pingcap-incubator/tinydur/kv/transport"
	"github.com/pingcap-incubator/tinydur/pkg/testutil"
	"github.com/pingcap-incubator/tinydur/scheduler/server/config"
	. "github.com/pingcap/check"
)

func Test(t *testing.T) {
	TestingT(t)
}

var _ = Suite(&testSequencerSuite{})

type testSequencerSuite struct{}

// fakeReplica records every commit it receives.
type fakeReplica struct {
	l   net.Listener
	mu  sync.Mutex
	txs []*message.CommitRequest
}

func newFakeReplica(c *C) *fakeReplica {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, IsNil)
	r := &fakeReplica{l: l}
	codec := message.NewCodec(0)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			msg, err := codec.Decode(conn)
			conn.Close()
			if err != nil {
				continue
			}
			if tx, ok := msg.(*message.CommitRequest); ok {
				r.mu.Lock()
				r.txs = append(r.txs, tx)
				r.mu.Unlock()
			}
		}
	}()
	return r
}

func (r *fakeReplica) addr() string { return r.l.Addr().String() }

func (r *fakeReplica) received() []*message.CommitRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*message.CommitRequest(nil), r.txs...)
}

func newTestServer(c *C, replicas ...string) *Server {
	cfg := config.NewConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Replicas = strings.Join(replicas, ",")
	cfg.DialTimeout.Duration = 200 * time.Millisecond
	cfg.ConnTimeout.Duration = time.Second
	c.Assert(cfg.Adjust(nil), IsNil)
	svr := CreateServer(cfg)
	c.Assert(svr.Run(context.Background()), IsNil)
	return svr
}

func (s *testSequencerSuite) TestSequenceBroadcast(c *C) {
	r1, r2 := newFakeReplica(c), newFakeReplica(c)
	defer r1.l.Close()
	defer r2.l.Close()
	svr := newTestServer(c, r1.addr(), r2.addr())
	defer svr.Close()

	for i := uint64(1); i <= 3; i++ {
		tx := message.NewCommitRequest("c1", nil, []message.WriteEntry{{Item: "x", Value: message.IntValue(int64(i))}})
		c.Assert(svr.Sequence(context.Background(), tx), Equals, i)
	}
	c.Assert(svr.LastTxID(), Equals, uint64(3))

	for _, r := range []*fakeReplica{r1, r2} {
		r := r
		testutil.WaitUntil(c, func() bool { return len(r.received()) == 3 })
		txs := r.received()
		c.Assert(txs, HasLen, 3)
		for i, tx := range txs {
			c.Assert(tx.TxID, Equals, uint64(i+1))
			c.Assert(tx.ClientID, Equals, "c1")
			c.Assert(string(tx.WriteSet[0].Value), Equals, string(message.IntValue(int64(i+1))))
		}
	}
}

func (s *testSequencerSuite) TestCommitOverTCP(c *C) {
	r := newFakeReplica(c)
	defer r.l.Close()
	svr := newTestServer(c, r.addr())
	defer svr.Close()

	tr := transport.NewTransport(message.NewCodec(0), time.Second, time.Second)
	rs := []message.ReadEntry{{Item: "x", Value: message.IntValue(0), Version: 0}}
	ws := []message.WriteEntry{{Item: "x", Value: message.IntValue(10)}}
	c.Assert(tr.Send(context.Background(), svr.Addr(), message.NewCommitRequest("c1", rs, ws)), IsNil)

	testutil.WaitUntil(c, func() bool { return len(r.received()) == 1 })
	tx := r.received()[0]
	c.Assert(tx.TxID, Equals, uint64(1))
	c.Assert(tx.ReadSet, HasLen, 1)
	c.Assert(tx.ReadSet[0].Item, Equals, "x")
	c.Assert(tx.WriteSet, HasLen, 1)
}

func (s *testSequencerSuite) TestIgnoreNonCommit(c *C) {
	r := newFakeReplica(c)
	defer r.l.Close()
	svr := newTestServer(c, r.addr())
	defer svr.Close()

	tr := transport.NewTransport(message.NewCodec(0), time.Second, time.Second)
	c.Assert(tr.Send(context.Background(), svr.Addr(), message.NewReadRequest("x")), IsNil)
	conn, err := net.Dial("tcp", svr.Addr())
	c.Assert(err, IsNil)
	conn.Write([]byte("garbage"))
	conn.Close()

	// A commit sent afterwards still gets the first id.
	c.Assert(tr.Send(context.Background(), svr.Addr(), message.NewCommitRequest("c1", nil, nil)), IsNil)
	testutil.WaitUntil(c, func() bool { return len(r.received()) == 1 })
	c.Assert(r.received()[0].TxID, Equals, uint64(1))
	c.Assert(svr.LastTxID(), Equals, uint64(1))
}

func (s *testSequencerSuite) TestBroadcastFailureDoesNotStop(c *C) {
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, IsNil)
	deadAddr := dead.Addr().String()
	dead.Close()

	r := newFakeReplica(c)
	defer r.l.Close()
	svr := newTestServer(c, deadAddr, r.addr())
	defer svr.Close()

	c.Assert(svr.Sequence(context.Background(), message.NewCommitRequest("c1", nil, nil)), Equals, uint64(1))
	c.Assert(svr.Sequence(context.Background(), message.NewCommitRequest("c2", nil, nil)), Equals, uint64(2))
	testutil.WaitUntil(c, func() bool { return len(r.received()) == 2 })
	txs := r.received()
	c.Assert(txs[1].ClientID, Equals, "c2")
}

func (s *testSequencerSuite) TestConcurrentCommitsGetUniqueIDs(c *C) {
	const clients = 32
	r := newFakeReplica(c)
	defer r.l.Close()
	svr := newTestServer(c, r.addr())
	defer svr.Close()

	tr := transport.NewTransport(message.NewCodec(0), time.Second, time.Second)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Send(context.Background(), svr.Addr(), message.NewCommitRequest("c", nil, nil))
		}()
	}
	wg.Wait()
	testutil.WaitUntil(c, func() bool { return len(r.received()) == clients })

	seen := make(map[uint64]bool)
	for _, tx := range r.received() {
		c.Assert(seen[tx.TxID], IsFalse)
		seen[tx.TxID] = true
		c.Assert(tx.TxID >= 1 && tx.TxID <= clients, IsTrue)
	}
	c.Assert(svr.LastTxID(), Equals, uint64(clients))
}

func (s *testSequencerSuite) TestClose(c *C) {
	r := newFakeReplica(c)
	defer r.l.Close()
	svr := newTestServer(c, r.addr())
	c.Assert(svr.IsClosed(), IsFalse)
	_, err := svr.StartTime()
	c.Assert(err, IsNil)
	svr.Close()
	c.Assert(svr.IsClosed(), IsTrue)
	_, err = svr.StartTime()
	c.Assert(err, Equals, ErrServerNotStarted)
	// Closing twice is fine.
	svr.Close()
}

func (s *testSequencerSuite) TestCanceledRunContextKeepsBroadcasting(c *C) {
	r := newFakeReplica(c)
	defer r.l.Close()
	cfg := config.NewConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Replicas = r.addr()
	cfg.ConnTimeout.Duration = time.Second
	c.Assert(cfg.Adjust(nil), IsNil)
	svr := CreateServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	c.Assert(svr.Run(ctx), IsNil)
	cancel()

	tr := transport.NewTransport(message.NewCodec(0), time.Second, time.Second)
	c.Assert(tr.Send(context.Background(), svr.Addr(), message.NewCommitRequest("c1", nil, nil)), IsNil)
	testutil.WaitUntil(c, func() bool { return svr.LastTxID() == 1 })
	svr.Close()

	// Every id handed out reached the replica.
	testutil.WaitUntil(c, func() bool { return len(r.received()) == 1 })
	c.Assert(r.received()[0].TxID, Equals, svr.LastTxID())
}

func (s *testSequencerSuite) TestRunWithCanceledContext(c *C) {
	cfg := config.NewConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Replicas = "127.0.0.1:1"
	c.Assert(cfg.Adjust(nil), IsNil)
	svr := CreateServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(svr.Run(ctx), NotNil)
	c.Assert(svr.IsClosed(), IsTrue)
}
