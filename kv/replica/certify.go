package replica

import (
	"time"

	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pingcap-incubator/tinydur/kv/storage"
	"go.uber.org/zap"
)

// Decision is the outcome of certifying one transaction.
type Decision int

const (
	Commit Decision = iota
	Abort
)

func (d Decision) String() string {
	switch d {
	case Commit:
		return "commit"
	case Abort:
		return "abort"
	}
	return "unknown"
}

// conflict describes the read that failed certification.
type conflict struct {
	key         string
	readVersion int64
	version     int64
}

// certify checks every remote read of tx against the current store. Reads
// served from the client's own write set carry LocalVersion and are not
// checked. A key that does not exist yet never conflicts.
func certify(txn *storage.Txn, tx *message.CommitRequest) *conflict {
	for _, e := range tx.ReadSet {
		if e.IsLocal() {
			continue
		}
		if version, ok := txn.Version(e.Item); ok && version != e.Version {
			return &conflict{key: e.Item, readVersion: e.Version, version: version}
		}
	}
	return nil
}

// CertifyAndApply runs the certification test for tx and, when it passes,
// applies the write set in order. The whole operation holds the store's
// exclusive lock, so an aborted transaction leaves the store untouched.
func (s *Server) CertifyAndApply(tx *message.CommitRequest) Decision {
	start := time.Now()
	var c *conflict
	_ = s.store.Update(func(txn *storage.Txn) error {
		if c = certify(txn, tx); c != nil {
			return nil
		}
		for _, w := range tx.WriteSet {
			txn.Put(w.Item, w.Value)
		}
		return nil
	})
	certifyDuration.WithLabelValues(s.cfg.Name).Observe(time.Since(start).Seconds())

	decision := Commit
	if c != nil {
		decision = Abort
	}
	decisionCounter.WithLabelValues(s.cfg.Name, decision.String()).Inc()

	fields := []zap.Field{
		zap.Uint64("tx-id", tx.TxID),
		zap.String("client-id", tx.ClientID),
		zap.Int("reads", len(tx.ReadSet)),
		zap.Int("writes", len(tx.WriteSet)),
	}
	if c != nil {
		fields = append(fields,
			zap.String("conflict-key", c.key),
			zap.Int64("read-version", c.readVersion),
			zap.Int64("current-version", c.version))
	}
	if decision == Commit {
		s.lg.Info("transaction committed", fields...)
	} else {
		s.lg.Info("transaction aborted", fields...)
	}
	if s.journal != nil {
		s.journal.Info(decision.String(), fields...)
	}
	return decision
}
