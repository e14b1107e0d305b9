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

package api

import (
	"net/http"
	"time"

	"github.com/pingcap-incubator/tinydur/pkg/typeutil"
	"github.com/pingcap-incubator/tinydur/scheduler/server"
	"github.com/unrolled/render"
)

// Status is the brief state of the sequencer.
type Status struct {
	Name           string            `json:"name"`
	Addr           string            `json:"addr"`
	Replicas       []string          `json:"replicas"`
	LastTxID       uint64            `json:"last_tx_id"`
	StartTimestamp int64             `json:"start_timestamp"`
	Uptime         typeutil.Duration `json:"uptime"`
	ReleaseVersion string            `json:"version"`
	GitHash        string            `json:"git_hash"`
}

type statusHandler struct {
	svr *server.Server
	rd  *render.Render
}

func newStatusHandler(svr *server.Server, rd *render.Render) *statusHandler {
	return &statusHandler{
		svr: svr,
		rd:  rd,
	}
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start, err := h.svr.StartTime()
	if err != nil {
		h.rd.JSON(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.rd.JSON(w, http.StatusOK, &Status{
		Name:           h.svr.Name(),
		Addr:           h.svr.Addr(),
		Replicas:       h.svr.Replicas(),
		LastTxID:       h.svr.LastTxID(),
		StartTimestamp: start.Unix(),
		Uptime:         typeutil.NewDuration(time.Since(start).Round(time.Second)),
		ReleaseVersion: server.ReleaseVersion,
		GitHash:        server.GitHash,
	})
}

type confHandler struct {
	svr *server.Server
	rd  *render.Render
}

func newConfHandler(svr *server.Server, rd *render.Render) *confHandler {
	return &confHandler{
		svr: svr,
		rd:  rd,
	}
}

func (h *confHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.rd.JSON(w, http.StatusOK, h.svr.GetConfig())
}
