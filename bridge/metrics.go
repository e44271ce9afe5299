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

package bridge

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spothero/kafka-bridge/log"
	"go.uber.org/zap"
)

// Metrics is a bundle of prometheus gauges tracking the live session
// population.
type Metrics struct {
	consumerInstances prometheus.Gauge
	producerSessions  prometheus.Gauge
}

// NewMetrics creates and returns a metrics bundle. The user may optionally
// specify an existing Prometheus Registry. If no Registry is provided, the
// global Prometheus Registry is used. Finally, if mustRegister is true, and a
// registration error is encountered, the application will panic.
func NewMetrics(registry prometheus.Registerer, mustRegister bool) Metrics {
	consumerInstances := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_consumer_instances",
		Help: "Number of live consumer instances in the bridge",
	})
	producerSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_producer_sessions",
		Help: "Number of live producer sessions in the bridge",
	})
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if mustRegister {
		registry.MustRegister(consumerInstances)
		registry.MustRegister(producerSessions)
	} else {
		if err := registry.Register(consumerInstances); err != nil {
			log.Get(context.Background()).Error("failed to register consumer instances gauge", zap.Error(err))
		}
		if err := registry.Register(producerSessions); err != nil {
			log.Get(context.Background()).Error("failed to register producer sessions gauge", zap.Error(err))
		}
	}
	return Metrics{
		consumerInstances: consumerInstances,
		producerSessions:  producerSessions,
	}
}
