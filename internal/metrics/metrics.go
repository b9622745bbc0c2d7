/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package metrics holds the Prometheus collectors of promptdeck. Collectors live
// in a package registry so tests and embedders never touch the global default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeNoImage   = "no_image"
	OutcomeUpstream  = "upstream"
	OutcomeTimeout   = "timeout"
	OutcomeTransport = "transport"
)

var (
	registry = prometheus.NewRegistry()

	generations = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptdeck_generations_total",
			Help: "Image generations settled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	generationDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "promptdeck_generation_duration_seconds",
		Help:    "Time from dispatch to settlement of an image generation.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 9),
	})
	generationRejected = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "promptdeck_generation_rejected_total",
		Help: "Generation requests rejected because one was already in flight.",
	})
	copies = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "promptdeck_prompts_copied_total",
		Help: "Prompts handed to the clipboard.",
	})
	loads = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptdeck_script_loads_total",
			Help: "Script load attempts, partitioned by result.",
		},
		[]string{"result"},
	)
	persistFailures = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptdeck_persist_failures_total",
			Help: "State writes that failed, partitioned by key.",
		},
		[]string{"key"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveGeneration records one settled generation.
func ObserveGeneration(outcome string, took time.Duration) {
	generations.WithLabelValues(outcome).Inc()
	generationDuration.Observe(took.Seconds())
}

func GenerationRejected() { generationRejected.Inc() }

func PromptCopied() { copies.Inc() }

// ScriptLoaded counts a load attempt; ok is false when parsing failed.
func ScriptLoaded(ok bool) {
	result := "ok"
	if !ok {
		result = "invalid"
	}
	loads.WithLabelValues(result).Inc()
}

func PersistFailed(key string) { persistFailures.WithLabelValues(key).Inc() }

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
