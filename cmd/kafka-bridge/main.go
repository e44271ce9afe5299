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

package main

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/spothero/kafka-bridge/bridge"
	"github.com/spothero/kafka-bridge/kafka"
	"github.com/spothero/kafka-bridge/service"
)

// set by the linker at build time
var (
	version = "unknown"
	gitSHA  = "unknown"
)

// bridgeService wires the session registry and frontend into the HTTP server.
type bridgeService struct {
	registry *bridge.Registry
	frontend *bridge.Frontend
}

func newBridgeService(hc service.HTTPConfig) service.HTTPService {
	registry := bridge.NewRegistry(hc.Bridge.ConsumerTimeout, func() kafka.Producer {
		return kafka.NewProducer(&hc.Kafka)
	}, bridge.NewMetrics(hc.Registry, true))
	factory := func(ctx context.Context, groupID, clientID string, settings kafka.ConsumerSettings) (kafka.Consumer, error) {
		return hc.Kafka.NewBridgeConsumer(ctx, groupID, clientID, settings)
	}
	return &bridgeService{
		registry: registry,
		frontend: bridge.NewFrontend(hc.Bridge, registry, factory),
	}
}

func (s *bridgeService) RegisterHandlers(router *mux.Router) {
	s.frontend.RegisterHandlers(router)
}

func (s *bridgeService) ConnContext(ctx context.Context, conn net.Conn) context.Context {
	return s.registry.ConnContext(ctx, conn)
}

func (s *bridgeService) ConnState(conn net.Conn, state http.ConnState) {
	s.registry.ConnState(conn, state)
}

func (s *bridgeService) Start(ctx context.Context) {
	s.registry.Start(ctx)
}

func (s *bridgeService) Shutdown(ctx context.Context) {
	s.registry.Shutdown(ctx)
}

func main() {
	hc := service.HTTPConfig{
		Config: service.Config{
			Name:        "kafka-bridge",
			Environment: "development",
			Version:     version,
			GitSHA:      gitSHA,
		},
		Bridge: bridge.NewDefaultConfig(),
	}
	cmd := hc.ServerCmd(
		"HTTP to Kafka protocol bridge",
		"Exposes Kafka produce and consume operations over a RESTful HTTP API",
		newBridgeService,
	)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
