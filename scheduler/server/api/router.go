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

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinydur/pkg/apiutil"
	"github.com/pingcap-incubator/tinydur/scheduler/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"
)

const pingAPI = "/ping"

// NewHandler creates the status HTTP handler of the sequencer.
func NewHandler(svr *server.Server) http.Handler {
	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(createRouter("", svr))
	return n
}

func createRouter(prefix string, svr *server.Server) *mux.Router {
	rd := render.New(render.Options{
		IndentJSON: true,
	})

	router := mux.NewRouter().PathPrefix(prefix).Subrouter()

	router.Handle("/status", newStatusHandler(svr, rd)).Methods("GET")
	router.HandleFunc("/api/v1/config", newConfHandler(svr, rd).Get).Methods("GET")

	logHandler := apiutil.NewLogHandler(rd)
	router.HandleFunc("/api/v1/admin/log", logHandler.Handle).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc(pingAPI, func(w http.ResponseWriter, r *http.Request) {}).Methods("GET")

	return router
}
