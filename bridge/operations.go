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
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

// Operation identifies what an incoming request asks the bridge to do.
// Classification is purely syntactic; validating the body is the operation
// handler's job.
type Operation int

// The fixed operation set of the HTTP surface. OperationInvalid covers
// unknown paths, OperationUnprocessable covers known paths with the wrong
// method, and OperationEmpty covers body-requiring operations submitted with
// no body.
const (
	OperationInvalid Operation = iota
	OperationUnprocessable
	OperationEmpty
	OperationCreateConsumer
	OperationDeleteConsumer
	OperationSubscribe
	OperationUnsubscribe
	OperationAssign
	OperationPoll
	OperationCommit
	OperationSeek
	OperationSeekToBeginning
	OperationSeekToEnd
	OperationProduce
)

func (o Operation) String() string {
	switch o {
	case OperationCreateConsumer:
		return "create-consumer"
	case OperationDeleteConsumer:
		return "delete-consumer"
	case OperationSubscribe:
		return "subscribe"
	case OperationUnsubscribe:
		return "unsubscribe"
	case OperationAssign:
		return "assign"
	case OperationPoll:
		return "poll"
	case OperationCommit:
		return "commit"
	case OperationSeek:
		return "seek"
	case OperationSeekToBeginning:
		return "seek-to-beginning"
	case OperationSeekToEnd:
		return "seek-to-end"
	case OperationProduce:
		return "produce"
	case OperationEmpty:
		return "empty"
	case OperationUnprocessable:
		return "unprocessable"
	default:
		return "invalid"
	}
}

// routeSpec binds one method and path template to an operation. The same
// table drives both classification and handler registration so the two can
// never drift apart.
type routeSpec struct {
	method string
	path   string
	op     Operation
}

var routes = []routeSpec{
	{http.MethodPost, "/consumers/{group}", OperationCreateConsumer},
	{http.MethodDelete, "/consumers/{group}/instances/{name}", OperationDeleteConsumer},
	{http.MethodPost, "/consumers/{group}/instances/{name}/subscription", OperationSubscribe},
	{http.MethodDelete, "/consumers/{group}/instances/{name}/subscription", OperationUnsubscribe},
	{http.MethodPost, "/consumers/{group}/instances/{name}/assignments", OperationAssign},
	{http.MethodGet, "/consumers/{group}/instances/{name}/records", OperationPoll},
	{http.MethodPost, "/consumers/{group}/instances/{name}/offsets", OperationCommit},
	{http.MethodPost, "/consumers/{group}/instances/{name}/positions", OperationSeek},
	{http.MethodPost, "/consumers/{group}/instances/{name}/positions/beginning", OperationSeekToBeginning},
	{http.MethodPost, "/consumers/{group}/instances/{name}/positions/end", OperationSeekToEnd},
	{http.MethodPost, "/topics/{topic}", OperationProduce},
}

// bodyRequired reports whether an operation's semantics demand a request
// body. Commit is deliberately absent: an empty commit body means commit the
// delivered positions.
func bodyRequired(op Operation) bool {
	switch op {
	case OperationSubscribe, OperationAssign, OperationSeek,
		OperationSeekToBeginning, OperationSeekToEnd, OperationProduce:
		return true
	}
	return false
}

// classifierRouter matches without serving; it exists so classification and
// handler registration share one route table.
var classifierRouter = func() *mux.Router {
	router := mux.NewRouter()
	for _, spec := range routes {
		router.Path(spec.path).Methods(spec.method).Name(spec.op.String())
	}
	return router
}()

var operationsByName = func() map[string]Operation {
	byName := make(map[string]Operation, len(routes))
	for _, spec := range routes {
		byName[spec.op.String()] = spec.op
	}
	return byName
}()

// Classify maps a method and path onto the operation set.
func Classify(method, path string) Operation {
	request := &http.Request{Method: method, URL: &url.URL{Path: path}}
	var match mux.RouteMatch
	if classifierRouter.Match(request, &match) {
		return operationsByName[match.Route.GetName()]
	}
	if match.MatchErr == mux.ErrMethodMismatch {
		return OperationUnprocessable
	}
	return OperationInvalid
}

// ClassifyRequest classifies a live request, additionally reporting
// OperationEmpty when a body-requiring operation arrives without one.
func ClassifyRequest(r *http.Request) Operation {
	op := Classify(r.Method, r.URL.Path)
	if bodyRequired(op) && r.ContentLength == 0 {
		return OperationEmpty
	}
	return op
}
