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
	"io"
	"net"
	"sync"
	"time"

	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pingcap-incubator/tinydur/kv/transport"
	"github.com/pingcap-incubator/tinydur/scheduler/server/config"
	"github.com/pingcap-incubator/tinydur/scheduler/server/id"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrServerNotStarted is error info for server not started.
var ErrServerNotStarted = errors.New("The server has not been started")

// Server is the sequencer. It stamps every commit it receives with the next
// tx_id and broadcasts it to every replica in configured order.
type Server struct {
	// Server state.
	isServing atomic.Bool

	cfg       *config.Config
	codec     *message.Codec
	transport *transport.Transport
	replicas  []string

	// idAllocator is the only place a tx_id comes from. Its lock is never
	// held across a broadcast.
	idAllocator *id.AllocatorImpl

	listener         net.Listener
	serverLoopCtx    context.Context
	serverLoopCancel func()
	serverLoopWg     sync.WaitGroup
	startTime        time.Time
}

// CreateServer creates the UNINITIALIZED sequencer with given configuration.
func CreateServer(cfg *config.Config) *Server {
	log.Info("sequencer config", zap.Reflect("config", cfg))
	codec := message.NewCodec(uint64(cfg.MaxMessageSize))
	return &Server{
		cfg:         cfg,
		codec:       codec,
		transport:   transport.NewTransport(codec, cfg.DialTimeout.Duration, cfg.ConnTimeout.Duration),
		replicas:    cfg.ReplicaAddrs(),
		idAllocator: id.NewAllocatorImpl("tx"),
	}
}

// Run listens on the configured address and starts serving. It returns once
// the listener is ready. ctx only guards startup: broadcasts keep running
// after it is canceled, until Close has drained them.
func (s *Server) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	l, err := transport.Listen(s.cfg.Addr, s.cfg.MaxConnections)
	if err != nil {
		return err
	}
	s.listener = l
	s.startTime = time.Now()
	// A commit that got a tx_id must reach every replica it can, otherwise
	// replicas wait for the id forever.
	s.serverLoopCtx, s.serverLoopCancel = context.WithCancel(context.Background())
	s.isServing.Store(true)

	s.serverLoopWg.Add(1)
	go s.acceptLoop()
	log.Info("sequencer started",
		zap.String("name", s.cfg.Name),
		zap.String("addr", l.Addr().String()),
		zap.Strings("replicas", s.replicas))
	return nil
}

// Close stops accepting commits and waits for in-flight broadcasts.
func (s *Server) Close() {
	if !s.isServing.CAS(true, false) {
		return
	}
	log.Info("closing sequencer")
	s.listener.Close()
	s.serverLoopWg.Wait()
	s.serverLoopCancel()
	log.Info("sequencer closed", zap.Uint64("last-tx-id", s.idAllocator.Current()))
}

// IsClosed checks whether server is closed or not.
func (s *Server) IsClosed() bool {
	return !s.isServing.Load()
}

func (s *Server) acceptLoop() {
	defer s.serverLoopWg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.IsClosed() || transport.IsClosed(err) {
				return
			}
			log.Warn("accept failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		s.serverLoopWg.Add(1)
		go func() {
			defer s.serverLoopWg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ConnTimeout.Duration)); err != nil {
		log.Warn("set connection deadline failed", zap.Error(err))
		return
	}
	msg, err := s.codec.Decode(conn)
	if err != nil {
		if err == io.EOF {
			return
		}
		if message.IsMalformed(err) {
			malformedCounter.Inc()
			log.Warn("discard malformed message", zap.String("remote", remote), zap.Error(err))
			return
		}
		log.Warn("read commit failed", zap.String("remote", remote), zap.Error(err))
		return
	}
	tx, ok := msg.(*message.CommitRequest)
	if !ok {
		ignoredCounter.WithLabelValues(msg.MsgType().String()).Inc()
		log.Debug("ignore non-commit message", zap.String("remote", remote), zap.Stringer("type", msg.MsgType()))
		return
	}
	// The client does not wait for anything, release it before broadcasting.
	conn.Close()
	s.Sequence(s.serverLoopCtx, tx)
}

// Sequence stamps tx with a fresh tx_id and broadcasts it to every replica.
// A failed leg is logged and counted, never retried.
func (s *Server) Sequence(ctx context.Context, tx *message.CommitRequest) uint64 {
	if tx.Sequenced() {
		log.Warn("overwrite client supplied tx id", zap.String("client-id", tx.ClientID), zap.Uint64("tx-id", tx.TxID))
	}
	tx.TxID = s.idAllocator.Alloc()
	commitCounter.Inc()
	log.Debug("transaction sequenced",
		zap.Uint64("tx-id", tx.TxID),
		zap.String("client-id", tx.ClientID),
		zap.Int("reads", len(tx.ReadSet)),
		zap.Int("writes", len(tx.WriteSet)))

	start := time.Now()
	for _, addr := range s.replicas {
		if err := s.transport.Send(ctx, addr, tx); err != nil {
			broadcastFailureCounter.WithLabelValues(addr).Inc()
			log.Error("broadcast transaction failed",
				zap.Uint64("tx-id", tx.TxID),
				zap.String("replica", addr),
				zap.Error(err))
		}
	}
	broadcastDuration.Observe(time.Since(start).Seconds())
	return tx.TxID
}

// GetConfig gets the config information.
func (s *Server) GetConfig() *config.Config {
	return s.cfg.Clone()
}

// Name returns the name of the sequencer.
func (s *Server) Name() string {
	return s.cfg.Name
}

// Addr returns the address the sequencer accepts commits on.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Replicas returns the replica addresses in broadcast order.
func (s *Server) Replicas() []string {
	return append([]string(nil), s.replicas...)
}

// LastTxID returns the last tx_id handed out.
func (s *Server) LastTxID() uint64 {
	return s.idAllocator.Current()
}

// StartTime returns the time the server started serving.
func (s *Server) StartTime() (time.Time, error) {
	if s.IsClosed() {
		return time.Time{}, ErrServerNotStarted
	}
	return s.startTime, nil
}
