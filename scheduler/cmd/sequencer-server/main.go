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

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap-incubator/tinydur/pkg/logutil"
	"github.com/pingcap-incubator/tinydur/scheduler/server"
	"github.com/pingcap-incubator/tinydur/scheduler/server/api"
	"github.com/pingcap-incubator/tinydur/scheduler/server/config"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.NewConfig()
	err := cfg.Parse(os.Args[1:])

	defer logutil.LogPanic()

	switch errors.Cause(err) {
	case nil:
	case flag.ErrHelp:
		exit(0)
	default:
		log.Fatal("parse cmd flags error", zap.Error(err))
	}

	if cfg.ConfigCheck {
		server.PrintConfigCheckMsg(cfg)
		exit(0)
	}

	// New zap logger
	err = cfg.SetupLogger()
	if err == nil {
		log.ReplaceGlobals(cfg.GetZapLogger(), cfg.GetZapLogProperties())
	} else {
		log.Fatal("initialize logger error", zap.Error(err))
	}
	// Flushing any buffered log entries
	defer log.Sync()

	server.LogSequencerInfo()

	for _, msg := range cfg.WarningMsgs {
		log.Warn(msg)
	}

	svr := server.CreateServer(cfg)

	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	if err := svr.Run(context.Background()); err != nil {
		log.Fatal("run server failed", zap.Error(err))
	}

	var statusServer *http.Server
	if cfg.StatusAddr != "" {
		statusServer = &http.Server{Addr: cfg.StatusAddr, Handler: api.NewHandler(svr)}
		go func() {
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("status server failed", zap.String("status-addr", cfg.StatusAddr), zap.Error(err))
			}
		}()
	}

	sig := <-sc
	log.Info("Got signal to exit", zap.String("signal", sig.String()))

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		statusServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	svr.Close()
	switch sig {
	case syscall.SIGTERM:
		exit(0)
	default:
		exit(1)
	}
}

func exit(code int) {
	log.Sync()
	os.Exit(code)
}
