package api

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/pingcap-incubator/tinydur/kv/config"
	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pingcap-incubator/tinydur/kv/replica"
	"github.com/pingcap-incubator/tinydur/kv/storage"
	"github.com/pingcap-incubator/tinydur/pkg/testutil"
	"github.com/pingcap/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newTestAPI(t *testing.T) (*replica.Server, *httptest.Server) {
	cfg := config.NewTestConfig()
	cfg.Name = "api-test"
	require.NoError(t, cfg.Validate())
	svr := replica.NewServer(cfg)
	require.NoError(t, svr.Start())
	ts := httptest.NewServer(NewHandler(svr))
	t.Cleanup(func() {
		ts.Close()
		svr.Stop()
	})

	tx := message.NewCommitRequest("c", nil, []message.WriteEntry{
		{Item: "b", Value: message.IntValue(2)},
		{Item: "a", Value: message.Value(`{"n":1}`)},
	})
	tx.TxID = 1
	svr.Submit(tx)
	testutil.WaitUntil(t, func() bool { return svr.AppliedTxID() == 1 })
	return svr, ts
}

func getJSON(t *testing.T, url string, v interface{}) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestStatus(t *testing.T) {
	_, ts := newTestAPI(t)
	var status Status
	getJSON(t, ts.URL+"/status", &status)
	assert.Equal(t, "api-test", status.Name)
	assert.Equal(t, uint64(1), status.AppliedTxID)
	assert.Equal(t, 2, status.Keys)
}

func TestStore(t *testing.T) {
	_, ts := newTestAPI(t)
	var items []storage.Item
	getJSON(t, ts.URL+"/api/v1/store", &items)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Key)
	assert.JSONEq(t, `{"n":1}`, string(items[0].Value))
	assert.Equal(t, "b", items[1].Key)
	assert.Equal(t, int64(1), items[1].Version)

	var item storage.Item
	getJSON(t, ts.URL+"/api/v1/store/b", &item)
	assert.Equal(t, "2", string(item.Value))
	assert.Equal(t, int64(1), item.Version)

	getJSON(t, ts.URL+"/api/v1/store/unknown", &item)
	assert.Equal(t, "unknown", item.Key)
	assert.Equal(t, "0", string(item.Value))
	assert.Equal(t, int64(0), item.Version)
}

func TestDigest(t *testing.T) {
	svr, ts := newTestAPI(t)
	var digest Digest
	getJSON(t, ts.URL+"/api/v1/digest", &digest)
	assert.Equal(t, strconv.FormatUint(svr.Store().Digest(), 16), digest.Digest)
	assert.Equal(t, 2, digest.Keys)
	assert.Equal(t, uint64(1), digest.AppliedTxID)
}

func TestMetricsAndPing(t *testing.T) {
	_, ts := newTestAPI(t)
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	data, err := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(data), "tinydur_replica_decision_total")

	resp, err = http.Get(ts.URL + pingAPI)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetLogLevel(t *testing.T) {
	_, ts := newTestAPI(t)
	origin := log.GetLevel()
	defer log.SetLevel(origin)

	resp, err := http.Post(ts.URL+"/api/v1/admin/log", "application/json", strings.NewReader(`"error"`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, zapcore.ErrorLevel, log.GetLevel())

	resp, err = http.Post(ts.URL+"/api/v1/admin/log", "application/json", strings.NewReader(`error`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
