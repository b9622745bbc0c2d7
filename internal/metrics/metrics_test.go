/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGenerationCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(generations.WithLabelValues(OutcomeUpstream))
	ObserveGeneration(OutcomeUpstream, 1500*time.Millisecond)
	ObserveGeneration(OutcomeUpstream, 20*time.Millisecond)
	if got := testutil.ToFloat64(generations.WithLabelValues(OutcomeUpstream)) - before; got != 2 {
		t.Fatalf("upstream count grew by %v, want 2", got)
	}
}

func TestCountersAndHandler(t *testing.T) {
	ScriptLoaded(true)
	ScriptLoaded(false)
	PromptCopied()
	GenerationRejected()
	PersistFailed("script")
	if testutil.ToFloat64(loads.WithLabelValues("invalid")) < 1 {
		t.Fatal("invalid load not counted")
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"promptdeck_prompts_copied_total",
		"promptdeck_script_loads_total",
		"promptdeck_generation_rejected_total",
		`promptdeck_persist_failures_total{key="script"}`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output lacks %s", name)
		}
	}
}
