/***
Copyright 2014 Cisco Systems Inc. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ofrender

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Results of a synchronization pass.
const (
	resultSuccess = "success"
	resultNoop    = "noop"
	resultError   = "error"
)

// Metrics counts synchronization passes and the changes they applied. A nil
// *Metrics records nothing.
type Metrics struct {
	passes        *prometheus.CounterVec
	flowsAdded    prometheus.Counter
	flowsRemoved  prometheus.Counter
	groupsChanged prometheus.Counter
	duration      prometheus.Histogram
}

// NewMetrics registers the renderer metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ofrenderer",
			Name:      "sync_passes_total",
			Help:      "Synchronization passes by result.",
		}, []string{"result"}),
		flowsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ofrenderer",
			Name:      "flows_added_total",
			Help:      "Flows added to switches.",
		}),
		flowsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ofrenderer",
			Name:      "flows_removed_total",
			Help:      "Flows removed from switches.",
		}),
		groupsChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ofrenderer",
			Name:      "groups_changed_total",
			Help:      "Groups added, modified or removed on switches.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ofrenderer",
			Name:      "sync_duration_seconds",
			Help:      "Duration of one switch synchronization pass.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.passes, m.flowsAdded, m.flowsRemoved, m.groupsChanged, m.duration)
	return m
}

func (m *Metrics) observePass(result string, delta *Delta, start time.Time) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(result).Inc()
	m.duration.Observe(time.Since(start).Seconds())
	if result != resultSuccess || delta == nil {
		return
	}
	m.flowsAdded.Add(float64(len(delta.FlowsToAdd)))
	m.flowsRemoved.Add(float64(len(delta.FlowsToRemove)))
	m.groupsChanged.Add(float64(len(delta.GroupsToAdd) + len(delta.GroupsToModify) + len(delta.GroupsToRemove)))
}
