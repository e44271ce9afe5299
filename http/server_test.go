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
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig("test-server")
	assert.Equal(t, "test-server", config.Name)
	assert.Equal(t, "127.0.0.1", config.Address)
	assert.Equal(t, uint16(8080), config.Port)
	assert.True(t, config.HealthHandler)
	assert.True(t, config.MetricsHandler)
	assert.Equal(t, []os.Signal{os.Interrupt}, config.CancelSignals)
}

func TestNewServer(t *testing.T) {
	registered := false
	connContextCalled := false
	config := NewDefaultConfig("test-server")
	config.RegisterHandlers = func(router *mux.Router) {
		registered = true
		router.HandleFunc("/hello", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}
	config.ConnContext = func(ctx context.Context, _ net.Conn) context.Context {
		connContextCalled = true
		return ctx
	}
	config.ConnState = func(_ net.Conn, _ http.ConnState) {}

	server := config.NewServer()
	assert.True(t, registered)
	assert.Equal(t, "127.0.0.1:8080", server.httpServer.Addr)
	require.NotNil(t, server.httpServer.ConnContext)
	server.httpServer.ConnContext(context.Background(), nil)
	assert.True(t, connContextCalled)
	assert.NotNil(t, server.httpServer.ConnState)

	tests := []struct {
		name         string
		path         string
		expectedCode int
	}{
		{"health endpoint responds", "/health", http.StatusOK},
		{"metrics endpoint responds", "/metrics", http.StatusOK},
		{"registered handlers respond", "/hello", http.StatusOK},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			server.router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, test.path, nil))
			assert.Equal(t, test.expectedCode, recorder.Code)
		})
	}
}
