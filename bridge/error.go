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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spothero/kafka-bridge/kafka"
	"github.com/spothero/kafka-bridge/log"
)

// Error is the envelope every failed request serializes on the wire. Code
// doubles as the HTTP status of the response.
type Error struct {
	Message string `json:"message"`
	Code    int    `json:"error_code"`
}

func (e Error) Error() string {
	return e.Message
}

// NewError builds an error envelope whose error_code equals the HTTP status.
func NewError(code int, message string) Error {
	return Error{Code: code, Message: message}
}

// translateError maps session and Kafka library failures onto the HTTP error
// contract. Errors that are already envelopes pass through unchanged; known
// Kafka conditions get their contractual statuses; everything else surfaces
// the underlying message as a 500.
func translateError(err error) Error {
	var bridgeErr Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr
	}
	var notAssigned kafka.NotAssignedError
	if errors.As(err, &notAssigned) {
		return NewError(http.StatusNotFound, notAssigned.Error())
	}
	return NewError(http.StatusInternalServerError, err.Error())
}

// writeError serializes the error envelope with the bridge metadata content
// type and a status equal to the envelope's code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	bridgeErr := translateError(err)
	w.Header().Set("Content-Type", contentTypeMetadata)
	w.WriteHeader(bridgeErr.Code)
	if encodeErr := json.NewEncoder(w).Encode(bridgeErr); encodeErr != nil {
		log.Get(r.Context()).Error("failed to write error envelope")
	}
}

// writeJSON serializes a success payload with the given content type.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, contentType string, payload interface{}) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Get(r.Context()).Error("failed to write response body")
	}
}
