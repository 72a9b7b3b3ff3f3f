// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the daemon's Prometheus counters and gauges,
// exposed on GET /api/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkflowsTotal counts terminal transitions by final state.
	WorkflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argo_workflows_total",
			Help: "Total workflows reaching a terminal state, by state",
		},
		[]string{"state"},
	)

	// ExecutorSpawns counts every executor process started, including
	// retries.
	ExecutorSpawns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argo_executor_spawns_total",
			Help: "Total executor processes spawned",
		},
	)

	// ExitQueueDropped mirrors exitqueue.Queue.Dropped() at each tick.
	ExitQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argo_exitqueue_dropped_total",
			Help: "Total exit-queue entries dropped due to a full ring",
		},
	)

	// RegistrySize tracks the current entry count.
	RegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "argo_registry_size",
			Help: "Current number of entries in the workflow registry",
		},
	)
)

// RecordTerminal increments WorkflowsTotal for state.
func RecordTerminal(state string) {
	WorkflowsTotal.WithLabelValues(state).Inc()
}
