package api

import (
	"net/http"
	"time"

	"github.com/pingcap-incubator/tinydur/kv/replica"
	"github.com/pingcap-incubator/tinydur/pkg/typeutil"
	"github.com/unrolled/render"
)

// Status is the brief state of a replica.
type Status struct {
	Name           string            `json:"name"`
	Addr           string            `json:"addr"`
	AppliedTxID    uint64            `json:"applied_tx_id"`
	Keys           int               `json:"keys"`
	StartTimestamp int64             `json:"start_timestamp"`
	Uptime         typeutil.Duration `json:"uptime"`
}

type statusHandler struct {
	svr *replica.Server
	rd  *render.Render
}

func newStatusHandler(svr *replica.Server, rd *render.Render) *statusHandler {
	return &statusHandler{
		svr: svr,
		rd:  rd,
	}
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := h.svr.StartTime()
	status := &Status{
		Name:           h.svr.Name(),
		Addr:           h.svr.Addr(),
		AppliedTxID:    h.svr.AppliedTxID(),
		Keys:           h.svr.Store().Len(),
		StartTimestamp: start.Unix(),
		Uptime:         typeutil.NewDuration(time.Since(start).Round(time.Second)),
	}
	h.rd.JSON(w, http.StatusOK, status)
}
