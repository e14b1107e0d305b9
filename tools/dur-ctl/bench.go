package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"github.com/pingcap-incubator/tinydur/client"
	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	benchTxns        int
	benchConcurrency int
	benchRate        float64
	benchKeys        int
	benchKeyPrefix   string
)

func newBenchCommand() *cobra.Command {
	m := &cobra.Command{
		Use:   "bench",
		Short: "Run read-increment-commit transactions against the cluster",
		Args:  cobra.NoArgs,
		RunE:  runBenchCommandFunc,
	}
	m.Flags().IntVarP(&benchTxns, "txns", "n", 1000, "number of transactions")
	m.Flags().IntVarP(&benchConcurrency, "concurrency", "c", 8, "number of concurrent clients")
	m.Flags().Float64Var(&benchRate, "rate", 0, "transactions per second, 0 for unlimited")
	m.Flags().IntVar(&benchKeys, "keys", 16, "number of distinct keys, fewer keys means more conflicts")
	m.Flags().StringVar(&benchKeyPrefix, "key-prefix", "bench-", "prefix of the keys")
	return m
}

type benchResult struct {
	latencies []float64 // milliseconds
	failed    int64
	elapsed   time.Duration
}

// runBench runs txns read-increment-commit transactions through newClient.
func runBench(ctx context.Context, newClient func(id string) *client.Client, txns, concurrency int, limit rate.Limit, keys int) *benchResult {
	limiter := rate.NewLimiter(limit, 1)
	if limit <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	var (
		next    atomic.Int64
		failed  atomic.Int64
		mu      sync.Mutex
		samples = make([]float64, 0, txns)
		wg      sync.WaitGroup
	)
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)))
			for {
				i := next.Inc()
				if i > int64(txns) {
					return
				}
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				key := benchKeyPrefix + strconv.Itoa(rnd.Intn(keys))
				begin := time.Now()
				if err := increment(ctx, newClient(fmt.Sprintf("bench-%d-%d", w, i)), key); err != nil {
					failed.Inc()
					log.Warn("bench transaction failed", zap.Int64("txn", i), zap.Error(err))
					continue
				}
				cost := float64(time.Since(begin)) / float64(time.Millisecond)
				mu.Lock()
				samples = append(samples, cost)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return &benchResult{latencies: samples, failed: failed.Load(), elapsed: time.Since(start)}
}

func increment(ctx context.Context, c *client.Client, key string) error {
	v, err := c.Read(ctx, key)
	if err != nil {
		return err
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		n = 0
	}
	c.Write(key, message.IntValue(n+1))
	return c.Commit(ctx)
}

// render prints the summary of a bench run as a table.
func (r *benchResult) render(out io.Writer) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Sent", "Failed", "Elapsed", "TPS", "Avg(ms)", "P50(ms)", "P95(ms)", "P99(ms)", "Max(ms)"})
	row := []string{
		strconv.Itoa(len(r.latencies)),
		strconv.FormatInt(r.failed, 10),
		r.elapsed.Round(time.Millisecond).String(),
		"-", "-", "-", "-", "-", "-",
	}
	if len(r.latencies) > 0 {
		data := stats.Float64Data(r.latencies)
		mean, _ := stats.Mean(data)
		p50, _ := stats.Percentile(data, 50)
		p95, _ := stats.Percentile(data, 95)
		p99, _ := stats.Percentile(data, 99)
		max, _ := stats.Max(data)
		tps := float64(len(r.latencies)) / r.elapsed.Seconds()
		row = append(row[:3],
			strconv.FormatFloat(tps, 'f', 1, 64),
			strconv.FormatFloat(mean, 'f', 2, 64),
			strconv.FormatFloat(p50, 'f', 2, 64),
			strconv.FormatFloat(p95, 'f', 2, 64),
			strconv.FormatFloat(p99, 'f', 2, 64),
			strconv.FormatFloat(max, 'f', 2, 64))
	}
	table.Append(row)
	table.Render()
}

func runBenchCommandFunc(cmd *cobra.Command, args []string) error {
	if benchTxns <= 0 || benchConcurrency <= 0 || benchKeys <= 0 {
		return errors.New("txns, concurrency and keys must be positive")
	}
	cfg := clientConfig()
	newClient := func(id string) *client.Client { return client.NewClient(id, cfg) }
	result := runBench(globalContext, newClient, benchTxns, benchConcurrency, rate.Limit(benchRate), benchKeys)
	result.render(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), "Commits are fire-and-forget; run `dur-ctl digest` to check the replicas.")
	return nil
}
