// Copyright 2023 SpotHero
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

package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spothero/kafka-bridge/http/writer"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics(t *testing.T) {
	tests := []struct {
		name         string
		mustRegister bool
		duplicate    bool
	}{
		{
			"when must register is true and we do not duplicate registration no panic occurs",
			true,
			false,
		},
		{
			"when must register is true and we duplicate registration a panic occurs",
			true,
			true,
		},
		{
			"when must register is false and we duplicate registration no panic occurs",
			false,
			true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			registry := prometheus.NewRegistry()
			metrics := NewMetrics(registry, test.mustRegister)
			if test.duplicate {
				if test.mustRegister {
					assert.Panics(t, func() { NewMetrics(registry, test.mustRegister) })
				} else {
					_ = NewMetrics(registry, test.mustRegister)
				}
			}
			assert.NotNil(t, metrics.counter)
			assert.NotNil(t, metrics.duration)
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry, true)

	router := mux.NewRouter()
	router.Use(writer.StatusRecorderMiddleware)
	router.Use(metrics.Middleware)
	router.HandleFunc("/consumers/{group}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/consumers/my-group", nil))
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	labels := prometheus.Labels{
		"path":        "/consumers/{group}",
		"status_code": "204",
	}
	counter, err := metrics.counter.GetMetricWith(labels)
	assert.NoError(t, err)
	pb := &dto.Metric{}
	assert.NoError(t, counter.Write(pb))
	assert.Equal(t, 1, int(pb.Counter.GetValue()))

	histogram, err := metrics.duration.GetMetricWith(labels)
	assert.NoError(t, err)
	pb = &dto.Metric{}
	assert.NoError(t, histogram.(prometheus.Histogram).Write(pb))
	assert.Equal(t, uint64(1), pb.Histogram.GetSampleCount())
}
