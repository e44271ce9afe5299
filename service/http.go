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

// Package service binds the ambient concerns of a production HTTP service --
// configuration, logging, metrics, CORS -- around the bridge and exposes a
// single cobra entrypoint.
package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spothero/kafka-bridge/bridge"
	"github.com/spothero/kafka-bridge/cli"
	"github.com/spothero/kafka-bridge/cors"
	shHTTP "github.com/spothero/kafka-bridge/http"
	"github.com/spothero/kafka-bridge/kafka"
	"github.com/spothero/kafka-bridge/log"
)

// HTTPConfig contains required configuration for starting the bridge HTTP service
type HTTPConfig struct {
	Config
	Kafka        kafka.Config
	Bridge       bridge.Config
	PreStart     func(ctx context.Context, router *mux.Router, server *http.Server) // A function to be called before starting the web server
	PostShutdown func(ctx context.Context)                                          // A function to be called before stopping the web server
}

// HTTPService implementers register HTTP routes with a mux router.
type HTTPService interface {
	RegisterHandlers(router *mux.Router)
}

// ConnTracker implementers observe the lifecycle of individual client
// connections. Services that key state by connection, like the bridge's
// producer sessions, implement this alongside HTTPService.
type ConnTracker interface {
	ConnContext(ctx context.Context, conn net.Conn) context.Context
	ConnState(conn net.Conn, state http.ConnState)
}

// Lifecycle implementers run background work for the duration of the server:
// Start is called before the listener opens and Shutdown after it closes.
type Lifecycle interface {
	Start(ctx context.Context)
	Shutdown(ctx context.Context)
}

// ServerCmd creates and returns a Cobra and Viper command preconfigured to run the
// bridge HTTP server. This method takes a function that instantiates a HTTPService interface
// that passes through the HTTPConfig object to the constructor after all values are populated from
// the CLI and/or environment variables so that values configured by this package are accessible
// downstream.
//
// Note that Version and GitSHA *must be specified* before calling this function.
func (hc HTTPConfig) ServerCmd(shortDescript, longDescript string, newService func(HTTPConfig) HTTPService) *cobra.Command {
	// HTTP Config
	config := shHTTP.NewDefaultConfig(hc.Name)
	config.Middleware = []mux.MiddlewareFunc{
		shHTTP.NewMetrics(hc.Registry, true).Middleware,
		log.HTTPServerMiddleware,
	}
	if len(hc.CancelSignals) > 0 {
		config.CancelSignals = hc.CancelSignals
	}
	// Logging Config
	gitSHA := hc.GitSHA
	if len(gitSHA) > 6 {
		// Log only the last 6 digits of the Git SHA
		gitSHA = gitSHA[len(gitSHA)-6:]
	}
	lc := &log.Config{
		UseDevelopmentLogger: true,
		Fields: map[string]interface{}{
			"version": hc.Version,
			"git_sha": gitSHA,
		},
	}
	// CORS Config
	cc := cors.Config{}
	cmd := &cobra.Command{
		Use:              hc.Name,
		Short:            shortDescript,
		Long:             longDescript,
		Version:          fmt.Sprintf("%s (%s)", hc.Version, hc.GitSHA),
		PersistentPreRun: cli.CobraBindEnvironmentVariables(strings.Replace(hc.Name, "-", "_", -1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := hc.CheckFlags(); err != nil {
				return err
			}
			if err := lc.InitializeLogger(); err != nil {
				return err
			}
			if cc.EnableMiddleware {
				config.Middleware = append(config.Middleware, cc.GetHTTPServerMiddleware())
			}
			httpService := newService(hc)
			config.RegisterHandlers = httpService.RegisterHandlers
			if tracker, ok := httpService.(ConnTracker); ok {
				config.ConnContext = tracker.ConnContext
				config.ConnState = tracker.ConnState
			}
			lifecycle, _ := httpService.(Lifecycle)
			config.PreStart = func(ctx context.Context, router *mux.Router, server *http.Server) {
				if hc.PreStart != nil {
					hc.PreStart(ctx, router, server)
				}
				if lifecycle != nil {
					lifecycle.Start(ctx)
				}
			}
			config.PostShutdown = func(ctx context.Context) {
				if lifecycle != nil {
					lifecycle.Shutdown(ctx)
				}
				if hc.PostShutdown != nil {
					hc.PostShutdown(ctx)
				}
			}
			config.NewServer().Run()
			return nil
		},
	}
	// Register Cobra/Viper CLI Flags
	flags := cmd.Flags()
	hc.RegisterFlags(flags)
	config.RegisterFlags(flags)
	lc.RegisterFlags(flags)
	cc.RegisterFlags(flags)
	hc.Kafka.RegisterFlags(flags)
	hc.Bridge.RegisterFlags(flags)
	return cmd
}
