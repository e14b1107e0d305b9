package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pingcap-incubator/tinydur/client"
	"github.com/pingcap-incubator/tinydur/kv/api"
	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pingcap-incubator/tinydur/kv/storage"
	"github.com/pingcap-incubator/tinydur/kv/test_dur"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, "10", string(parseValue("10")))
	assert.Equal(t, `{"a":1}`, string(parseValue(`{"a":1}`)))
	assert.Equal(t, `"hello"`, string(parseValue("hello")))
}

func TestParseOps(t *testing.T) {
	ops, err := parseOps([]string{"read", "x", "write", "x", "10", "r", "x"})
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, op{kind: opRead, key: "x"}, ops[0])
	assert.Equal(t, op{kind: opWrite, key: "x", value: message.Value("10")}, ops[1])
	assert.Equal(t, opRead, ops[2].kind)

	for _, bad := range [][]string{{"read"}, {"write", "x"}, {"delete", "x"}} {
		_, err := parseOps(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestRunOpsReadsOwnWrites(t *testing.T) {
	ops, err := parseOps([]string{"write", "k", "123", "read", "k"})
	require.NoError(t, err)
	c := client.NewClient("t", client.Config{})
	var out bytes.Buffer
	require.NoError(t, runOps(context.Background(), c, ops, &out))
	assert.Equal(t, "read k = 123\n", out.String())

	out.Reset()
	require.NoError(t, printTransaction(&out, c))
	var tx message.CommitRequest
	require.NoError(t, json.Unmarshal(out.Bytes(), &tx))
	assert.Equal(t, "t", tx.ClientID)
	assert.Equal(t, message.LocalVersion, tx.ReadSet[0].Version)
}

func TestRenderStore(t *testing.T) {
	addrs := []string{"r1", "r2"}
	dumps := map[string][]storage.Item{
		"r1": {{Key: "x", Value: message.Value("10"), Version: 1}},
		"r2": {{Key: "x", Value: message.Value("10"), Version: 1}},
	}

	var out bytes.Buffer
	require.NoError(t, renderStore(&out, addrs, dumps, "table"))
	assert.Contains(t, out.String(), "REPLICA")
	assert.Equal(t, 2, strings.Count(out.String(), "| x "))

	out.Reset()
	require.NoError(t, renderStore(&out, addrs, dumps, "json"))
	var decoded map[string][]storage.Item
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, int64(1), decoded["r2"][0].Version)

	out.Reset()
	require.NoError(t, renderStore(&out, addrs, dumps, "yaml"))
	assert.Contains(t, out.String(), "key: x")
	assert.Contains(t, out.String(), "version: 1")

	assert.Error(t, renderStore(&out, addrs, dumps, "xml"))
}

func TestRenderDigests(t *testing.T) {
	same := []api.Digest{{Digest: "ab", Keys: 1, AppliedTxID: 3}, {Digest: "ab", Keys: 1, AppliedTxID: 3}}
	var out bytes.Buffer
	assert.True(t, renderDigests(&out, []string{"r1", "r2"}, same))
	diverged := []api.Digest{{Digest: "ab", Keys: 1, AppliedTxID: 3}, {Digest: "cd", Keys: 1, AppliedTxID: 3}}
	assert.False(t, renderDigests(&out, []string{"r1", "r2"}, diverged))
}

func TestBench(t *testing.T) {
	c := test_dur.NewCluster(2)
	require.NoError(t, c.Start())
	defer c.Shutdown()

	result := runBench(context.Background(), c.NewClient, 40, 4, rate.Limit(0), 4)
	assert.Len(t, result.latencies, 40)
	assert.Equal(t, int64(0), result.failed)

	c.WaitUntilSequenced(t, 40)
	c.WaitApplied(t, 40)
	digest := c.Replicas()[0].Store().Digest()
	assert.Equal(t, digest, c.Replicas()[1].Store().Digest())

	var out bytes.Buffer
	result.render(&out)
	assert.Contains(t, out.String(), "P99(MS)")
}
