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

package server

import "github.com/prometheus/client_golang/prometheus"

var (
	commitCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinydur",
			Subsystem: "sequencer",
			Name:      "commit_total",
			Help:      "Counter of sequenced transactions.",
		})

	broadcastFailureCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydur",
			Subsystem: "sequencer",
			Name:      "broadcast_failures_total",
			Help:      "Counter of transactions that could not be delivered to a replica.",
		}, []string{"replica"})

	broadcastDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tinydur",
			Subsystem: "sequencer",
			Name:      "broadcast_duration_seconds",
			Help:      "Bucketed histogram of the time spent broadcasting one transaction to all replicas.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		})

	malformedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tinydur",
			Subsystem: "sequencer",
			Name:      "malformed_message_total",
			Help:      "Counter of discarded messages that could not be decoded.",
		})

	ignoredCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydur",
			Subsystem: "sequencer",
			Name:      "ignored_message_total",
			Help:      "Counter of well-formed messages that are not commits.",
		}, []string{"type"})
)

func init() {
	prometheus.MustRegister(commitCounter)
	prometheus.MustRegister(broadcastFailureCounter)
	prometheus.MustRegister(broadcastDuration)
	prometheus.MustRegister(malformedCounter)
	prometheus.MustRegister(ignoredCounter)
}
