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

// Package bridge implements the HTTP-to-Kafka protocol bridge: named consumer
// instances with subscribe/assign/poll/commit/seek lifecycles, per-connection
// producer sessions, and the error taxonomy both surface over HTTP.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/spothero/kafka-bridge/kafka"
	"github.com/spothero/kafka-bridge/log"
	"go.uber.org/zap"
)

// ConsumerFactory materializes the Kafka consumer handle behind a new
// instance. The clientID is the instance name.
type ConsumerFactory func(ctx context.Context, groupID, clientID string, settings kafka.ConsumerSettings) (kafka.Consumer, error)

// Frontend binds the session registry to the HTTP server: it dispatches each
// request to the right session and emits error envelopes.
type Frontend struct {
	registry    *Registry
	newConsumer ConsumerFactory
	config      Config
}

// NewFrontend creates the HTTP frontend over a session registry.
func NewFrontend(config Config, registry *Registry, newConsumer ConsumerFactory) *Frontend {
	return &Frontend{
		config:      config,
		registry:    registry,
		newConsumer: newConsumer,
	}
}

// RegisterHandlers attaches every bridge operation to the router. The same
// route table backs Classify, so routing and classification cannot drift.
func (f *Frontend) RegisterHandlers(router *mux.Router) {
	handlers := map[Operation]http.HandlerFunc{
		OperationCreateConsumer:  f.createConsumer,
		OperationDeleteConsumer:  f.deleteConsumer,
		OperationSubscribe:       f.subscribe,
		OperationUnsubscribe:     f.unsubscribe,
		OperationAssign:          f.assign,
		OperationPoll:            f.poll,
		OperationCommit:          f.commit,
		OperationSeek:            f.seek,
		OperationSeekToBeginning: f.seekToBeginning,
		OperationSeekToEnd:       f.seekToEnd,
		OperationProduce:         f.produce,
	}
	for _, spec := range routes {
		router.Path(spec.path).Methods(spec.method).HandlerFunc(handlers[spec.op])
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, NewError(http.StatusBadRequest, "Invalid request"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, NewError(http.StatusUnprocessableEntity, "Unprocessable request."))
	})
}

// decodeBody parses a JSON request body, rejecting unknown properties with
// the validation layer's 400 contract.
func decodeBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return NewError(http.StatusUnprocessableEntity, "The request cannot have empty payload")
		}
		return NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

type createConsumerRequest struct {
	Name             string `json:"name"`
	Format           string `json:"format"`
	AutoOffsetReset  string `json:"auto.offset.reset"`
	EnableAutoCommit *bool  `json:"enable.auto.commit"`
	FetchMinBytes    *int32 `json:"fetch.min.bytes"`
	RequestTimeoutMs *int   `json:"consumer.request.timeout.ms"`
}

type createConsumerResponse struct {
	InstanceID string `json:"instance_id"`
	BaseURI    string `json:"base_uri"`
}

func (f *Frontend) createConsumer(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]
	var req createConsumerRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	format, err := ParseFormat(req.Format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch req.AutoOffsetReset {
	case "", "latest", "earliest", "none":
	default:
		writeError(w, r, NewError(
			http.StatusUnprocessableEntity,
			"Invalid value "+req.AutoOffsetReset+" for configuration auto.offset.reset: String must be one of: latest, earliest, none",
		))
		return
	}

	name := req.Name
	if name == "" {
		name = f.config.ID + "-" + uuid.New().String()
	}
	baseURI, err := buildBaseURI(r, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// claim the name before building the Kafka handle so duplicates fail
	// without dialing the cluster
	if err := f.registry.ReserveConsumer(name); err != nil {
		writeError(w, r, err)
		return
	}

	settings := kafka.ConsumerSettings{
		AutoOffsetReset:  req.AutoOffsetReset,
		EnableAutoCommit: true,
	}
	if req.EnableAutoCommit != nil {
		settings.EnableAutoCommit = *req.EnableAutoCommit
	}
	if req.FetchMinBytes != nil {
		settings.FetchMinBytes = *req.FetchMinBytes
	}
	if req.RequestTimeoutMs != nil {
		settings.RequestTimeout = time.Duration(*req.RequestTimeoutMs) * time.Millisecond
	}
	consumer, err := f.newConsumer(r.Context(), group, name, settings)
	if err != nil {
		f.registry.ReleaseConsumer(name)
		writeError(w, r, err)
		return
	}
	session := NewConsumerSession(name, group, format, consumer, f.config.PollTimeout, f.config.MaxBytes)
	if err := f.registry.AddConsumer(session); err != nil {
		if closeErr := consumer.Close(); closeErr != nil {
			log.Get(r.Context()).Error("failed to close duplicate consumer", zap.Error(closeErr))
		}
		writeError(w, r, err)
		return
	}
	log.Get(r.Context()).Info(
		"created consumer instance",
		zap.String("instance", name),
		zap.String("group", group),
		zap.String("format", string(format)),
	)
	writeJSON(w, r, http.StatusOK, contentTypeMetadata, createConsumerResponse{InstanceID: name, BaseURI: baseURI})
}

func (f *Frontend) deleteConsumer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	session, err := f.registry.RemoveConsumer(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := session.Close(); err != nil {
		log.Get(r.Context()).Error("failed to close consumer", zap.String("instance", name), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *Frontend) session(w http.ResponseWriter, r *http.Request) (*ConsumerSession, bool) {
	session, err := f.registry.GetConsumer(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return session, true
}

type subscribeRequest struct {
	Topics       []string `json:"topics"`
	TopicPattern string   `json:"topic_pattern"`
}

func (f *Frontend) subscribe(w http.ResponseWriter, r *http.Request) {
	session, ok := f.session(w, r)
	if !ok {
		return
	}
	var req subscribeRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := session.Subscribe(req.Topics, req.TopicPattern); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *Frontend) unsubscribe(w http.ResponseWriter, r *http.Request) {
	session, ok := f.session(w, r)
	if !ok {
		return
	}
	if err := session.Unsubscribe(); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	Partitions []struct {
		Topic     string `json:"topic"`
		Offset    *int64 `json:"offset"`
		Partition int32  `json:"partition"`
	} `json:"partitions"`
}

func (f *Frontend) assign(w http.ResponseWriter, r *http.Request) {
	session, ok := f.session(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	partitions := make([]kafka.PartitionOffset, 0, len(req.Partitions))
	for _, p := range req.Partitions {
		partitions = append(partitions, kafka.PartitionOffset{
			Topic:     p.Topic,
			Partition: p.Partition,
			Offset:    p.Offset,
		})
	}
	if err := session.Assign(partitions); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *Frontend) poll(w http.ResponseWriter, r *http.Request) {
	session, ok := f.session(w, r)
	if !ok {
		return
	}
	var timeout *time.Duration
	var maxBytes *int64
	query := r.URL.Query()
	if raw := query.Get("timeout"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, NewError(http.StatusBadRequest, err.Error()))
			return
		}
		t := time.Duration(ms) * time.Millisecond
		timeout = &t
	}
	if raw := query.Get("max_bytes"); raw != "" {
		b, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, NewError(http.StatusBadRequest, err.Error()))
			return
		}
		maxBytes = &b
	}
	body, err := session.Poll(r.Context(), r.Header.Get("Accept"), timeout, maxBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", session.Format().ContentType())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Get(r.Context()).Error("failed to write poll response", zap.Error(err))
	}
}

type offsetsRequest struct {
	Offsets []struct {
		Topic     string `json:"topic"`
		Metadata  string `json:"metadata"`
		Offset    int64  `json:"offset"`
		Partition int32  `json:"partition"`
	} `json:"offsets"`
}

func (f *Frontend) commit(w http.ResponseWriter, r *http.Request) {
	session, ok := f.session(w, r)
	if !ok {
		return
	}
	var offsets []kafka.OffsetCommit
	if r.ContentLength != 0 {
		var req offsetsRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		for _, o := range req.Offsets {
			offsets = append(offsets, kafka.OffsetCommit{
				Topic:     o.Topic,
				Partition: o.Partition,
				Offset:    o.Offset,
				Metadata:  o.Metadata,
			})
		}
	}
	if err := session.Commit(r.Context(), offsets); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *Frontend) seek(w http.ResponseWriter, r *http.Request) {
	session, ok := f.session(w, r)
	if !ok {
		return
	}
	var req offsetsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	offsets := make([]kafka.OffsetCommit, 0, len(req.Offsets))
	for _, o := range req.Offsets {
		offsets = append(offsets, kafka.OffsetCommit{Topic: o.Topic, Partition: o.Partition, Offset: o.Offset})
	}
	if err := session.Seek(offsets); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type partitionsRequest struct {
	Partitions []struct {
		Topic     string `json:"topic"`
		Partition int32  `json:"partition"`
	} `json:"partitions"`
}

func (r partitionsRequest) topicPartitions() []kafka.TopicPartition {
	partitions := make([]kafka.TopicPartition, 0, len(r.Partitions))
	for _, p := range r.Partitions {
		partitions = append(partitions, kafka.TopicPartition{Topic: p.Topic, Partition: p.Partition})
	}
	return partitions
}

func (f *Frontend) seekToBeginning(w http.ResponseWriter, r *http.Request) {
	f.seekToBoundary(w, r, (*ConsumerSession).SeekToBeginning)
}

func (f *Frontend) seekToEnd(w http.ResponseWriter, r *http.Request) {
	f.seekToBoundary(w, r, (*ConsumerSession).SeekToEnd)
}

func (f *Frontend) seekToBoundary(w http.ResponseWriter, r *http.Request, seek func(*ConsumerSession, []kafka.TopicPartition) error) {
	session, ok := f.session(w, r)
	if !ok {
		return
	}
	var req partitionsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := seek(session, req.topicPartitions()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type produceRequest struct {
	Records []produceRecord `json:"records"`
}

func (f *Frontend) produce(w http.ResponseWriter, r *http.Request) {
	format, err := FormatFromContentType(r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req produceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Records) == 0 {
		writeError(w, r, NewError(http.StatusUnprocessableEntity, "The request cannot have empty payload"))
		return
	}
	topic := mux.Vars(r)["topic"]
	records, err := decodeRecords(format, topic, req.Records)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response, err := f.registry.Producer(r.Context()).Produce(r.Context(), records)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, contentTypeMetadata, response)
}
