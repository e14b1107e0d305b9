package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinydur/kv/replica"
	"github.com/pingcap-incubator/tinydur/pkg/apiutil"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"
	"go.uber.org/zap"
)

const pingAPI = "/ping"

// NewHandler returns the admin HTTP handler of a replica.
func NewHandler(svr *replica.Server) http.Handler {
	n := negroni.New(negroni.NewRecovery(), negroni.HandlerFunc(accessLog))
	n.UseHandler(createRouter("", svr))
	return n
}

func createRouter(prefix string, svr *replica.Server) *mux.Router {
	rd := render.New(render.Options{
		IndentJSON: true,
	})

	router := mux.NewRouter().PathPrefix(prefix).Subrouter()

	router.Handle("/status", newStatusHandler(svr, rd)).Methods("GET")

	storeHandler := newStoreHandler(svr, rd)
	router.HandleFunc("/api/v1/store", storeHandler.List).Methods("GET")
	router.HandleFunc("/api/v1/store/{key}", storeHandler.Get).Methods("GET")
	router.HandleFunc("/api/v1/digest", storeHandler.Digest).Methods("GET")

	logHandler := apiutil.NewLogHandler(rd)
	router.HandleFunc("/api/v1/admin/log", logHandler.Handle).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc(pingAPI, func(w http.ResponseWriter, r *http.Request) {}).Methods("GET")

	return router
}

func accessLog(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	next(w, r)
	res := w.(negroni.ResponseWriter)
	log.Debug("http request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", res.Status()),
		zap.Duration("cost", time.Since(start)))
}
