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

package log

import (
	"context"
	"fmt"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logKey is the type used to uniquely place the logger within context.Context
const logKey = iota

// logger is the default zap logger
var logger = zap.NewNop()

// atomicLevel backs the dynamic log-level HTTP handler. It is populated when
// the logger is initialized.
var atomicLevel = zap.NewAtomicLevel()

// Config defines the necessary configuration for instantiating a Logger
type Config struct {
	UseDevelopmentLogger bool
	OutputPaths          []string
	ErrorOutputPaths     []string
	Level                string
	SamplingInitial      int
	SamplingThereafter   int
	Fields               map[string]interface{}
	Cores                []zapcore.Core
	counter              *prometheus.CounterVec
}

// metricsHook is a callback hook used to track logging metrics at runtime
func (c *Config) metricsHook(entry zapcore.Entry) error {
	c.counter.With(prometheus.Labels{"level": entry.Level.CapitalString()}).Inc()
	return nil
}

// InitializeLogger sets up the logger. This function should be called as soon
// as possible. Any use of the logger provided by this package will be a nop
// until this function is called
func (c *Config) InitializeLogger() error {
	var err error
	var logConfig zap.Config
	var level zapcore.Level
	if err := level.Set(c.Level); err != nil {
		fmt.Printf("invalid log level %s - using INFO", c.Level)
		_ = level.Set("info")
	}
	atomicLevel = zap.NewAtomicLevelAt(level)
	if c.UseDevelopmentLogger {
		// Initialize logger with default development options
		// which enables debug logging, uses console encoder, writes to
		// stderr, and disables sampling.
		// See https://godoc.org/go.uber.org/zap#NewDevelopmentConfig
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logConfig.Level = atomicLevel
		logConfig.InitialFields = c.Fields
	} else {
		logConfig = zap.Config{
			Level:             atomicLevel,
			Development:       false,
			DisableStacktrace: false,
			Sampling: &zap.SamplingConfig{
				Initial:    c.SamplingInitial,
				Thereafter: c.SamplingThereafter,
			},
			Encoding:         "json",
			EncoderConfig:    zap.NewProductionEncoderConfig(),
			OutputPaths:      append(c.OutputPaths, "stdout"),
			ErrorOutputPaths: append(c.ErrorOutputPaths, "stderr"),
			InitialFields:    c.Fields,
		}
	}

	c.counter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logs_emitted",
			Help: "Total number of logs emitted by this application instance",
		},
		[]string{"level"},
	)

	logger, err = logConfig.Build(zap.Hooks(c.metricsHook))
	if err != nil {
		return fmt.Errorf("error initializing logger - %s", err.Error())
	}
	for _, core := range c.Cores {
		RegisterCore(nil, core)
	}
	return nil
}

// RegisterCore registers additional zapcore cores for additional logging functionality. Cores are
// added as a zapcore Tee.
//
// Note that if you wish for the registered core to be globally available, it should be placed
// before any context loggers are created. If you do not, the core will be inconsistently
// registered in your application.
func RegisterCore(_ context.Context, core zapcore.Core) {
	logger = logger.WithOptions(zap.WrapCore(func(existingCore zapcore.Core) zapcore.Core {
		return zapcore.NewTee(existingCore, core)
	}))
}

// RegisterLogLevelHandler registers an HTTP endpoint on the provided router allowing the log
// level to be inspected and changed at runtime. zap's AtomicLevel serves GET and PUT of
// `{"level": "<level>"}` payloads.
func RegisterLogLevelHandler(router *mux.Router) {
	router.Handle("/loglevel", atomicLevel)
}

// NewContext creates and returns a new context with a wrapped logger. If fields are specified,
// all future invocations of the context logger will include those fields as well. This concept is
// useful if you wish for all downstream logs from the site of a given context to include some
// contextual information.
func NewContext(ctx context.Context, fields ...zapcore.Field) context.Context {
	return context.WithValue(ctx, logKey, Get(ctx).With(fields...))
}

// Get returns the logger wrapped with the given context. This function is intended to be
// used as a mechanism for adding scoped arbitrary logging information to the logger. If a nil
// context is passed, the default global logger is returned.
func Get(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return logger
	}
	if ctxLogger, ok := ctx.Value(logKey).(*zap.Logger); ok {
		return ctxLogger
	}
	return logger
}
