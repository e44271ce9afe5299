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
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spothero/kafka-bridge/kafka"
	"github.com/spothero/kafka-bridge/log"
	"go.uber.org/zap"
)

var (
	errDuplicateInstance = NewError(
		http.StatusConflict,
		"A consumer instance with the specified name already exists in the Kafka Bridge.",
	)
	errInstanceNotFound = NewError(
		http.StatusNotFound,
		"The specified consumer instance was not found.",
	)
)

type connContextKey struct{}

// Registry is the process-wide directory of live sessions: consumer sessions
// keyed by instance name and producer sessions keyed by the originating HTTP
// connection. Neither map ever contains a closed session.
type Registry struct {
	consumers       map[string]*ConsumerSession
	reserved        map[string]struct{}
	producers       map[net.Conn]*ProducerSession
	producerFactory func() kafka.Producer
	metrics         Metrics
	idleTimeout     time.Duration
	done            chan struct{}
	mu              sync.Mutex
	closeOnce       sync.Once
}

// NewRegistry creates a session registry. Consumers idle longer than
// idleTimeout are reaped; producerFactory materializes the producer handle
// behind each new HTTP connection's first produce.
func NewRegistry(idleTimeout time.Duration, producerFactory func() kafka.Producer, metrics Metrics) *Registry {
	return &Registry{
		consumers:       make(map[string]*ConsumerSession),
		reserved:        make(map[string]struct{}),
		producers:       make(map[net.Conn]*ProducerSession),
		producerFactory: producerFactory,
		metrics:         metrics,
		idleTimeout:     idleTimeout,
		done:            make(chan struct{}),
	}
}

// ReserveConsumer claims an instance name before the Kafka handle behind it
// is built, so duplicate creation requests fail without ever dialing the
// cluster. The reservation is fulfilled by AddConsumer or returned by
// ReleaseConsumer.
func (r *Registry) ReserveConsumer(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.consumers[name]; exists {
		return errDuplicateInstance
	}
	if _, exists := r.reserved[name]; exists {
		return errDuplicateInstance
	}
	r.reserved[name] = struct{}{}
	return nil
}

// ReleaseConsumer frees a reservation whose consumer could not be built.
func (r *Registry) ReleaseConsumer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, name)
}

// AddConsumer registers a consumer session, enforcing name uniqueness across
// live instances and fulfilling any reservation held for the name.
func (r *Registry) AddConsumer(session *ConsumerSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.consumers[session.Name()]; exists {
		return errDuplicateInstance
	}
	delete(r.reserved, session.Name())
	r.consumers[session.Name()] = session
	r.metrics.consumerInstances.Inc()
	return nil
}

// GetConsumer looks up a live consumer session by instance name.
func (r *Registry) GetConsumer(name string) (*ConsumerSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.consumers[name]
	if !ok {
		return nil, errInstanceNotFound
	}
	return session, nil
}

// RemoveConsumer removes a consumer session from the directory without
// closing it; the caller owns the close.
func (r *Registry) RemoveConsumer(name string) (*ConsumerSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.consumers[name]
	if !ok {
		return nil, errInstanceNotFound
	}
	delete(r.consumers, name)
	r.metrics.consumerInstances.Dec()
	return session, nil
}

// Producer returns the producer session of the request's HTTP connection,
// creating it on first use. Requests with no connection in their context
// (direct handler invocations in tests) share a fallback session.
func (r *Registry) Producer(ctx context.Context) *ProducerSession {
	conn, _ := ctx.Value(connContextKey{}).(net.Conn)
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.producers[conn]; ok {
		return session
	}
	session := NewProducerSession(r.producerFactory())
	r.producers[conn] = session
	r.metrics.producerSessions.Inc()
	return session
}

// ConnContext stashes the accepted connection in each request context so
// produce requests can be tied back to their connection. Wire into
// http.Server.ConnContext.
func (r *Registry) ConnContext(ctx context.Context, conn net.Conn) context.Context {
	return context.WithValue(ctx, connContextKey{}, conn)
}

// ConnState tears down the connection's producer session when the connection
// closes. Wire into http.Server.ConnState.
func (r *Registry) ConnState(conn net.Conn, state http.ConnState) {
	if state != http.StateClosed && state != http.StateHijacked {
		return
	}
	r.mu.Lock()
	session, ok := r.producers[conn]
	if ok {
		delete(r.producers, conn)
		r.metrics.producerSessions.Dec()
	}
	r.mu.Unlock()
	if ok {
		if err := session.Close(); err != nil {
			log.Get(context.Background()).Error("failed to close producer session", zap.Error(err))
		}
	}
}

// Start launches the idle-expiry reaper. Expired consumers behave exactly
// like explicitly deleted ones thereafter.
func (r *Registry) Start(ctx context.Context) {
	interval := r.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.reapIdleConsumers(ctx)
			case <-r.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Registry) reapIdleConsumers(ctx context.Context) {
	cutoff := time.Now().Add(-r.idleTimeout)
	expired := make([]*ConsumerSession, 0)
	r.mu.Lock()
	for name, session := range r.consumers {
		if session.IdleSince().Before(cutoff) {
			delete(r.consumers, name)
			r.metrics.consumerInstances.Dec()
			expired = append(expired, session)
		}
	}
	r.mu.Unlock()
	logger := log.Get(ctx)
	for _, session := range expired {
		logger.Info(
			"closing idle consumer instance",
			zap.String("instance", session.Name()),
			zap.String("group", session.GroupID()),
		)
		if err := session.Close(); err != nil {
			logger.Error("failed to close idle consumer", zap.String("instance", session.Name()), zap.Error(err))
		}
	}
}

// Shutdown closes every live session and empties both maps. Safe to call more
// than once.
func (r *Registry) Shutdown(ctx context.Context) {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		consumers := make([]*ConsumerSession, 0, len(r.consumers))
		for name, session := range r.consumers {
			consumers = append(consumers, session)
			delete(r.consumers, name)
		}
		producers := make([]*ProducerSession, 0, len(r.producers))
		for conn, session := range r.producers {
			producers = append(producers, session)
			delete(r.producers, conn)
		}
		r.metrics.consumerInstances.Set(0)
		r.metrics.producerSessions.Set(0)
		r.mu.Unlock()
		logger := log.Get(ctx)
		for _, session := range consumers {
			if err := session.Close(); err != nil {
				logger.Error("failed to close consumer on shutdown", zap.String("instance", session.Name()), zap.Error(err))
			}
		}
		for _, session := range producers {
			if err := session.Close(); err != nil {
				logger.Error("failed to close producer on shutdown", zap.Error(err))
			}
		}
	})
}
