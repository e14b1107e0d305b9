package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinydur/kv/replica"
	"github.com/pingcap-incubator/tinydur/kv/storage"
	"github.com/unrolled/render"
)

// Digest fingerprints the whole store of a replica. Two replicas that
// applied the same transactions report the same digest.
type Digest struct {
	Digest      string `json:"digest"`
	Keys        int    `json:"keys"`
	AppliedTxID uint64 `json:"applied_tx_id"`
}

type storeHandler struct {
	svr *replica.Server
	rd  *render.Render
}

func newStoreHandler(svr *replica.Server, rd *render.Render) *storeHandler {
	return &storeHandler{
		svr: svr,
		rd:  rd,
	}
}

// List dumps every key in key order.
func (h *storeHandler) List(w http.ResponseWriter, r *http.Request) {
	h.rd.JSON(w, http.StatusOK, h.svr.Store().Items())
}

// Get answers like a read request does, so an unknown key reads as (0, 0).
func (h *storeHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	value, version := h.svr.Read(key)
	h.rd.JSON(w, http.StatusOK, &storage.Item{Key: key, Value: value, Version: version})
}

func (h *storeHandler) Digest(w http.ResponseWriter, r *http.Request) {
	applied := h.svr.AppliedTxID()
	store := h.svr.Store()
	h.rd.JSON(w, http.StatusOK, &Digest{
		Digest:      strconv.FormatUint(store.Digest(), 16),
		Keys:        store.Len(),
		AppliedTxID: applied,
	})
}
