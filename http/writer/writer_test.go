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

package writer

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestStatusRecorder(t *testing.T) {
	recorder := httptest.NewRecorder()
	sr := &StatusRecorder{ResponseWriter: recorder, StatusCode: http.StatusOK}
	sr.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, sr.StatusCode)
	assert.Equal(t, http.StatusTeapot, recorder.Code)
}

func TestStatusRecorderMiddleware(t *testing.T) {
	var captured *StatusRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		captured, _ = w.(*StatusRecorder)
		w.WriteHeader(http.StatusNoContent)
	})
	recorder := httptest.NewRecorder()
	StatusRecorderMiddleware(handler).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotNil(t, captured)
	assert.Equal(t, http.StatusNoContent, captured.StatusCode)
}

func TestFetchRoutePathTemplate(t *testing.T) {
	router := mux.NewRouter()
	var template string
	router.HandleFunc("/consumers/{group}", func(_ http.ResponseWriter, r *http.Request) {
		template = FetchRoutePathTemplate(r)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/consumers/my-group", nil))
	assert.Equal(t, "/consumers/{group}", template)

	// requests outside the router have no template
	assert.Equal(t, "", FetchRoutePathTemplate(httptest.NewRequest(http.MethodGet, "/", nil)))
}
