package replica

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pingcap-incubator/tinydur/kv/config"
	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pingcap-incubator/tinydur/kv/storage"
	"github.com/pingcap-incubator/tinydur/kv/transport"
	"github.com/pingcap-incubator/tinydur/kv/util/worker"
	"github.com/pingcap-incubator/tinydur/pkg/logutil"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Server is one replica. It answers point reads directly from its store and
// hands sequenced transactions to a single apply worker that certifies them
// in tx_id order.
type Server struct {
	cfg   *config.Config
	store *storage.Store
	codec *message.Codec

	lg           *zap.Logger
	journal      *zap.Logger
	closeJournal func() error

	applyWorker *worker.Worker
	applyWg     sync.WaitGroup
	applied     atomic.Uint64

	listener  net.Listener
	connWg    sync.WaitGroup
	started   atomic.Bool
	closed    atomic.Bool
	startTime time.Time
}

// NewServer creates a replica from a validated config. Nothing listens until
// Start is called.
func NewServer(cfg *config.Config) *Server {
	s := &Server{
		cfg:   cfg,
		store: storage.NewStore(),
		codec: message.NewCodec(uint64(cfg.MaxMessageSize)),
		lg:    log.L().With(zap.String("replica", cfg.Name)),
	}
	s.applyWorker = worker.NewOrderedWorker("apply-"+cfg.Name, &s.applyWg, 1, cfg.ApplyGapTimeout.Duration)
	return s
}

// Start listens on the configured address and begins serving.
func (s *Server) Start() error {
	l, err := transport.Listen(s.cfg.Addr, s.cfg.MaxConnections)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve serves connections accepted from l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	if !s.started.CAS(false, true) {
		return errors.New("replica already started")
	}
	if s.cfg.DecisionJournal.Filename != "" {
		s.journal, s.closeJournal = logutil.NewJournal(&s.cfg.DecisionJournal)
	}
	s.listener = l
	s.startTime = time.Now()
	s.applyWorker.Start(&applier{s: s})
	s.connWg.Add(1)
	go s.acceptLoop()
	s.lg.Info("replica started", zap.String("addr", l.Addr().String()), zap.Stringer("config", s.cfg))
	return nil
}

// Stop closes the listener, waits for in-flight connections and drains the
// apply worker. Transactions still waiting for a missing tx_id are dropped.
func (s *Server) Stop() {
	if !s.started.Load() || !s.closed.CAS(false, true) {
		return
	}
	s.listener.Close()
	s.connWg.Wait()
	s.applyWorker.Stop()
	s.applyWg.Wait()
	if s.closeJournal != nil {
		if err := s.closeJournal(); err != nil {
			s.lg.Warn("close decision journal failed", zap.Error(err))
		}
	}
	s.lg.Info("replica stopped", zap.Uint64("applied-tx-id", s.AppliedTxID()))
}

func (s *Server) acceptLoop() {
	defer s.connWg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || transport.IsClosed(err) {
				return
			}
			s.lg.Warn("accept failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}
		s.connWg.Add(1)
		go func() {
			defer s.connWg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(s.cfg.ConnTimeout.Duration)); err != nil {
		s.lg.Warn("set connection deadline failed", zap.Error(err))
		return
	}
	msg, err := s.codec.Decode(conn)
	if err != nil {
		if err == io.EOF {
			return
		}
		if message.IsMalformed(err) {
			malformedCounter.WithLabelValues(s.cfg.Name).Inc()
			s.lg.Warn("discard malformed message", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			return
		}
		s.lg.Warn("read request failed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		return
	}
	requestCounter.WithLabelValues(s.cfg.Name, msg.MsgType().String()).Inc()

	switch m := msg.(type) {
	case *message.ReadRequest:
		value, version := s.Read(m.Item)
		resp := &message.ReadResponse{Item: m.Item, Value: value, Version: version}
		if err := s.codec.Encode(conn, resp); err != nil {
			s.lg.Warn("send read response failed", zap.String("key", m.Item), zap.Error(err))
		}
	case *message.CommitRequest:
		if !m.Sequenced() {
			malformedCounter.WithLabelValues(s.cfg.Name).Inc()
			s.lg.Warn("discard commit without tx id", zap.String("client-id", m.ClientID))
			return
		}
		s.Submit(m)
	}
}

// Read returns the current value and version of key. A key that was never
// written reads as (0, 0).
func (s *Server) Read(key string) (message.Value, int64) {
	return s.store.Get(key)
}

// Submit queues a sequenced transaction for ordered certification. It must
// only be called between Serve and Stop.
func (s *Server) Submit(tx *message.CommitRequest) {
	s.applyWorker.Sender() <- applyTask{tx: tx}
}

// AppliedTxID returns the last tx_id whose decision has been fully applied.
func (s *Server) AppliedTxID() uint64 {
	return s.applied.Load()
}

func (s *Server) Name() string {
	return s.cfg.Name
}

// Addr returns the address the replica is listening on.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Store() *storage.Store {
	return s.store
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

type applyTask struct {
	tx *message.CommitRequest
}

func (t applyTask) Seq() uint64 {
	return t.tx.TxID
}

// applier is the only goroutine that certifies transactions.
type applier struct {
	s *Server
}

func (a *applier) Handle(t worker.Task) {
	task, ok := t.(applyTask)
	if !ok {
		a.s.lg.Error("unexpected apply task", zap.Reflect("task", t))
		return
	}
	a.s.CertifyAndApply(task.tx)
	a.s.applied.Store(task.tx.TxID)
	appliedTxIDGauge.WithLabelValues(a.s.cfg.Name).Set(float64(task.tx.TxID))
}

func (a *applier) HandleGap(from, to uint64) {
	skippedTxCounter.WithLabelValues(a.s.cfg.Name).Add(float64(to - from + 1))
	a.s.lg.Error("skip missing transactions",
		zap.Uint64("from-tx-id", from),
		zap.Uint64("to-tx-id", to),
		zap.Duration("apply-gap-timeout", a.s.cfg.ApplyGapTimeout.Duration))
}
