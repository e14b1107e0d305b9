package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap-incubator/tinydur/kv/api"
	"github.com/pingcap-incubator/tinydur/kv/config"
	"github.com/pingcap-incubator/tinydur/kv/replica"
	"github.com/pingcap-incubator/tinydur/pkg/logutil"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "config file path")
	name       = flag.String("name", "", "human-readable name for this replica")
	addr       = flag.String("addr", "", "replica address")
	statusAddr = flag.String("status-addr", "", "HTTP status address, empty to disable")
	logLevel   = flag.String("L", "", "log level: debug, info, warn, error, fatal (default 'info')")
	logFile    = flag.String("log-file", "", "log file path")
)

func main() {
	flag.Parse()
	conf := config.NewDefaultConfig()
	if *configPath != "" {
		if err := conf.LoadFile(*configPath); err != nil {
			log.Fatal("load config failed", zap.Error(err))
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			conf.Name = *name
		case "addr":
			conf.Addr = *addr
		case "status-addr":
			conf.StatusAddr = *statusAddr
		case "L":
			conf.Log.Level = *logLevel
		case "log-file":
			conf.Log.File.Filename = *logFile
		}
	})
	if err := conf.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	if err := logutil.InitLogger(&conf.Log); err != nil {
		log.Fatal("initialize logger failed", zap.Error(err))
	}
	defer logutil.LogPanic()

	svr := replica.NewServer(conf)
	if err := svr.Start(); err != nil {
		log.Fatal("start replica failed", zap.Error(err))
	}

	var statusServer *http.Server
	if conf.StatusAddr != "" {
		statusServer = &http.Server{Addr: conf.StatusAddr, Handler: api.NewHandler(svr)}
		go func() {
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("status server failed", zap.String("status-addr", conf.StatusAddr), zap.Error(err))
			}
		}()
	}

	sig := waitSignal()
	log.Info("got signal to exit", zap.String("signal", sig.String()))
	if statusServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		statusServer.Shutdown(ctx)
		cancel()
	}
	svr.Stop()
	log.Info("replica stopped")
	log.Sync()
}

func waitSignal() os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	return <-sigCh
}
