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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spothero/kafka-bridge/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testBridge struct {
	router   *mux.Router
	registry *Registry
	consumer *kafka.MockConsumer
	producer *kafka.MockProducer
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	tb := &testBridge{
		consumer: &kafka.MockConsumer{},
		producer: &kafka.MockProducer{},
	}
	tb.registry = NewRegistry(
		time.Minute,
		func() kafka.Producer { return tb.producer },
		NewMetrics(prometheus.NewRegistry(), true),
	)
	factory := func(_ context.Context, _, _ string, _ kafka.ConsumerSettings) (kafka.Consumer, error) {
		return tb.consumer, nil
	}
	frontend := NewFrontend(NewDefaultConfig(), tb.registry, factory)
	tb.router = mux.NewRouter()
	frontend.RegisterHandlers(tb.router)
	return tb
}

func (tb *testBridge) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, "http://example.com"+path, reader)
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	tb.router.ServeHTTP(recorder, request)
	return recorder
}

func (tb *testBridge) createConsumer(t *testing.T, body string) createConsumerResponse {
	t.Helper()
	recorder := tb.do(http.MethodPost, "/consumers/my-group", contentTypeMetadata, body)
	require.Equal(t, http.StatusOK, recorder.Code)
	var response createConsumerResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response
}

func errorEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) Error {
	t.Helper()
	var envelope Error
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	assert.Equal(t, recorder.Code, envelope.Code)
	return envelope
}

func TestCreateAndDeleteConsumer(t *testing.T) {
	tb := newTestBridge(t)
	tb.consumer.On("Close").Return(nil)

	response := tb.createConsumer(t, `{"name":"my-kafka-consumer","format":"json"}`)
	assert.Equal(t, "my-kafka-consumer", response.InstanceID)
	assert.Equal(t, "http://example.com/consumers/my-group/instances/my-kafka-consumer", response.BaseURI)

	recorder := tb.do(http.MethodDelete, "/consumers/my-group/instances/my-kafka-consumer", "", "")
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = tb.do(http.MethodDelete, "/consumers/my-group/instances/my-kafka-consumer", "", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "The specified consumer instance was not found.", errorEnvelope(t, recorder).Message)
}

func TestCreateConsumerForwarded(t *testing.T) {
	tb := newTestBridge(t)
	request := httptest.NewRequest(
		http.MethodPost,
		"http://example.com/consumers/my-group",
		strings.NewReader(`{"name":"my-kafka-consumer","format":"json"}`),
	)
	request.Header.Set("Forwarded", "host=my-api-gateway-host:443;proto=https")
	recorder := httptest.NewRecorder()
	tb.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	var response createConsumerResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(
		t,
		"https://my-api-gateway-host:443/consumers/my-group/instances/my-kafka-consumer",
		response.BaseURI,
	)
}

func TestCreateConsumerBadProto(t *testing.T) {
	tb := newTestBridge(t)
	request := httptest.NewRequest(
		http.MethodPost,
		"http://example.com/consumers/my-group",
		strings.NewReader(`{"name":"c1"}`),
	)
	request.Header.Set("Forwarded", "host=h;proto=mqtt")
	recorder := httptest.NewRecorder()
	tb.router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, "mqtt is not a valid schema/proto.", errorEnvelope(t, recorder).Message)
}

func TestCreateConsumerDuplicate(t *testing.T) {
	tb := newTestBridge(t)
	tb.consumer.On("Close").Return(nil)
	tb.createConsumer(t, `{"name":"my-kafka-consumer"}`)

	recorder := tb.do(http.MethodPost, "/consumers/my-group", contentTypeMetadata, `{"name":"my-kafka-consumer"}`)
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(
		t,
		"A consumer instance with the specified name already exists in the Kafka Bridge.",
		errorEnvelope(t, recorder).Message,
	)
}

func TestCreateConsumerDuplicateNeverBuildsConsumer(t *testing.T) {
	consumer := &kafka.MockConsumer{}
	factoryCalls := 0
	factory := func(_ context.Context, _, _ string, _ kafka.ConsumerSettings) (kafka.Consumer, error) {
		factoryCalls++
		return consumer, nil
	}
	registry := NewRegistry(
		time.Minute,
		func() kafka.Producer { return &kafka.MockProducer{} },
		NewMetrics(prometheus.NewRegistry(), true),
	)
	frontend := NewFrontend(NewDefaultConfig(), registry, factory)
	router := mux.NewRouter()
	frontend.RegisterHandlers(router)

	body := `{"name":"my-kafka-consumer"}`
	request := httptest.NewRequest(http.MethodPost, "http://example.com/consumers/my-group", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code)

	request = httptest.NewRequest(http.MethodPost, "http://example.com/consumers/my-group", strings.NewReader(body))
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusConflict, recorder.Code)
	// the duplicate is rejected before the Kafka handle is built
	assert.Equal(t, 1, factoryCalls)
}

func TestCreateConsumerFactoryFailureFreesName(t *testing.T) {
	fail := true
	factory := func(_ context.Context, _, _ string, _ kafka.ConsumerSettings) (kafka.Consumer, error) {
		if fail {
			return nil, fmt.Errorf("no brokers available")
		}
		return &kafka.MockConsumer{}, nil
	}
	registry := NewRegistry(
		time.Minute,
		func() kafka.Producer { return &kafka.MockProducer{} },
		NewMetrics(prometheus.NewRegistry(), true),
	)
	frontend := NewFrontend(NewDefaultConfig(), registry, factory)
	router := mux.NewRouter()
	frontend.RegisterHandlers(router)

	body := `{"name":"my-kafka-consumer"}`
	request := httptest.NewRequest(http.MethodPost, "http://example.com/consumers/my-group", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusInternalServerError, recorder.Code)

	// the failed creation does not leak its reservation
	fail = false
	request = httptest.NewRequest(http.MethodPost, "http://example.com/consumers/my-group", strings.NewReader(body))
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestCreateConsumerValidation(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		expectedCode int
		expectedMsg  string
	}{
		{
			name:         "unknown format",
			body:         `{"format":"avro"}`,
			expectedCode: http.StatusUnprocessableEntity,
			expectedMsg:  "Invalid format type.",
		},
		{
			name:         "unknown body property",
			body:         `{"bogus":true}`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid auto.offset.reset",
			body:         `{"auto.offset.reset":"sometimes"}`,
			expectedCode: http.StatusUnprocessableEntity,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tb := newTestBridge(t)
			recorder := tb.do(http.MethodPost, "/consumers/my-group", contentTypeMetadata, test.body)
			assert.Equal(t, test.expectedCode, recorder.Code)
			if test.expectedMsg != "" {
				assert.Equal(t, test.expectedMsg, errorEnvelope(t, recorder).Message)
			}
		})
	}
}

func TestGeneratedConsumerNamesCarryBridgeID(t *testing.T) {
	tb := newTestBridge(t)
	response := tb.createConsumer(t, `{}`)
	assert.True(t, strings.HasPrefix(response.InstanceID, "kafka-bridge-"))
	assert.True(t, strings.HasSuffix(response.BaseURI, "/instances/"+response.InstanceID))
}

func TestSubscribeConflicts(t *testing.T) {
	tb := newTestBridge(t)
	tb.createConsumer(t, `{"name":"c1"}`)

	recorder := tb.do(
		http.MethodPost,
		"/consumers/my-group/instances/c1/subscription",
		contentTypeMetadata,
		`{"topics":["t"],"topic_pattern":"t.*"}`,
	)
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(
		t,
		"Subscriptions to topics, partitions, and patterns are mutually exclusive.",
		errorEnvelope(t, recorder).Message,
	)

	recorder = tb.do(http.MethodPost, "/consumers/my-group/instances/c1/subscription", contentTypeMetadata, `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.Equal(
		t,
		"A list (of Topics type) or a topic_pattern must be specified.",
		errorEnvelope(t, recorder).Message,
	)
}

func TestPollAcceptMismatch(t *testing.T) {
	tb := newTestBridge(t)
	tb.createConsumer(t, `{"name":"c1","format":"json"}`)

	request := httptest.NewRequest(http.MethodGet, "http://example.com/consumers/my-group/instances/c1/records", nil)
	request.Header.Set("Accept", "application/vnd.kafka.binary.v2+json")
	recorder := httptest.NewRecorder()
	tb.router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotAcceptable, recorder.Code)
	assert.Equal(
		t,
		"Consumer format does not match the embedded format requested by the Accept header.",
		errorEnvelope(t, recorder).Message,
	)
}

func TestPollTooLongResponse(t *testing.T) {
	tb := newTestBridge(t)
	tb.consumer.
		On("Poll", mock.Anything, mock.Anything).
		Return([]kafka.Message{{Topic: "t", Value: []byte("a fifty byte record value padding padding padding")}}, nil)
	tb.createConsumer(t, `{"name":"c1"}`)

	request := httptest.NewRequest(
		http.MethodGet,
		"http://example.com/consumers/my-group/instances/c1/records?max_bytes=1",
		nil,
	)
	request.Header.Set("Accept", "application/vnd.kafka.binary.v2+json")
	recorder := httptest.NewRecorder()
	tb.router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.Equal(
		t,
		"Response exceeds the maximum number of bytes the consumer can receive",
		errorEnvelope(t, recorder).Message,
	)
}

func TestPollAfterUnsubscribe(t *testing.T) {
	tb := newTestBridge(t)
	tb.consumer.On("Unsubscribe").Return(nil)
	tb.consumer.On("Poll", mock.Anything, mock.Anything).Return(nil, kafka.ErrNoSubscription)
	tb.createConsumer(t, `{"name":"c1"}`)

	recorder := tb.do(http.MethodDelete, "/consumers/my-group/instances/c1/subscription", "", "")
	require.Equal(t, http.StatusNoContent, recorder.Code)

	request := httptest.NewRequest(http.MethodGet, "http://example.com/consumers/my-group/instances/c1/records", nil)
	request.Header.Set("Accept", "application/vnd.kafka.binary.v2+json")
	pollRecorder := httptest.NewRecorder()
	tb.router.ServeHTTP(pollRecorder, request)

	assert.Equal(t, http.StatusInternalServerError, pollRecorder.Code)
	assert.Equal(
		t,
		"Consumer is not subscribed to any topics or assigned any partitions",
		errorEnvelope(t, pollRecorder).Message,
	)
}

func TestPollDelivery(t *testing.T) {
	tb := newTestBridge(t)
	tb.consumer.On("Subscribe", []string{"t"}).Return(nil)
	tb.consumer.
		On("Poll", mock.Anything, time.Second).
		Return([]kafka.Message{{Topic: "t", Partition: 0, Offset: 0, Value: []byte("value")}}, nil)
	tb.createConsumer(t, `{"name":"c1"}`)

	recorder := tb.do(http.MethodPost, "/consumers/my-group/instances/c1/subscription", contentTypeMetadata, `{"topics":["t"]}`)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	request := httptest.NewRequest(http.MethodGet, "http://example.com/consumers/my-group/instances/c1/records", nil)
	request.Header.Set("Accept", "application/vnd.kafka.binary.v2+json")
	pollRecorder := httptest.NewRecorder()
	tb.router.ServeHTTP(pollRecorder, request)

	require.Equal(t, http.StatusOK, pollRecorder.Code)
	assert.Equal(t, contentTypeBinary, pollRecorder.Header().Get("Content-Type"))
	assert.JSONEq(
		t,
		`[{"topic":"t","key":null,"value":"dmFsdWU=","partition":0,"offset":0}]`,
		pollRecorder.Body.String(),
	)
}

func TestCommitEndpoints(t *testing.T) {
	tb := newTestBridge(t)
	tb.consumer.On("Commit", mock.Anything).Return(nil)
	tb.consumer.
		On("CommitOffsets", mock.Anything, []kafka.OffsetCommit{{Topic: "t", Partition: 0, Offset: 5}}).
		Return(nil)
	tb.createConsumer(t, `{"name":"c1"}`)

	recorder := tb.do(http.MethodPost, "/consumers/my-group/instances/c1/offsets", contentTypeMetadata, "")
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = tb.do(
		http.MethodPost,
		"/consumers/my-group/instances/c1/offsets",
		contentTypeMetadata,
		`{"offsets":[{"topic":"t","partition":0,"offset":5}]}`,
	)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	tb.consumer.AssertExpectations(t)
}

func TestSeekEndpoints(t *testing.T) {
	tb := newTestBridge(t)
	tb.consumer.On("Seek", kafka.TopicPartition{Topic: "t", Partition: 0}, int64(3)).Return(nil)
	tb.consumer.On("SeekToBeginning", []kafka.TopicPartition{{Topic: "t", Partition: 0}}).Return(nil)
	tb.consumer.
		On("SeekToEnd", []kafka.TopicPartition{{Topic: "t", Partition: 1}}).
		Return(kafka.NotAssignedError{Topic: "t", Partition: 1})
	tb.createConsumer(t, `{"name":"c1"}`)

	recorder := tb.do(
		http.MethodPost,
		"/consumers/my-group/instances/c1/positions",
		contentTypeMetadata,
		`{"offsets":[{"topic":"t","partition":0,"offset":3}]}`,
	)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = tb.do(
		http.MethodPost,
		"/consumers/my-group/instances/c1/positions/beginning",
		contentTypeMetadata,
		`{"partitions":[{"topic":"t","partition":0}]}`,
	)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	// unassigned partitions surface as 404
	recorder = tb.do(
		http.MethodPost,
		"/consumers/my-group/instances/c1/positions/end",
		contentTypeMetadata,
		`{"partitions":[{"topic":"t","partition":1}]}`,
	)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestAssign(t *testing.T) {
	tb := newTestBridge(t)
	offset := int64(12)
	tb.consumer.
		On("Assign", []kafka.PartitionOffset{{Topic: "t", Partition: 0, Offset: &offset}}).
		Return(nil)
	tb.createConsumer(t, `{"name":"c1"}`)

	recorder := tb.do(
		http.MethodPost,
		"/consumers/my-group/instances/c1/assignments",
		contentTypeMetadata,
		`{"partitions":[{"topic":"t","partition":0,"offset":12}]}`,
	)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	tb.consumer.AssertExpectations(t)
}

func TestProduce(t *testing.T) {
	tb := newTestBridge(t)
	partition := int32(1)
	tb.producer.
		On("Send", mock.Anything, []kafka.Record{
			{Topic: "my-topic", Key: []byte("key"), Value: []byte("value"), Partition: &partition},
			{Topic: "my-topic", Value: []byte("value")},
		}).
		Return([]kafka.RecordMetadata{
			{Partition: 1, Offset: 7},
			{Partition: 0, Offset: 3},
		}, nil)

	recorder := tb.do(
		http.MethodPost,
		"/topics/my-topic",
		contentTypeBinary,
		`{"records":[{"key":"a2V5","value":"dmFsdWU=","partition":1},{"value":"dmFsdWU="}]}`,
	)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(
		t,
		`{"offsets":[{"partition":1,"offset":7},{"partition":0,"offset":3}]}`,
		recorder.Body.String(),
	)
}

func TestProduceValidation(t *testing.T) {
	tests := []struct {
		name         string
		contentType  string
		body         string
		expectedCode int
	}{
		{"unknown content type", "application/json", `{"records":[{"value":"eA=="}]}`, http.StatusUnprocessableEntity},
		{"empty records list", contentTypeBinary, `{"records":[]}`, http.StatusUnprocessableEntity},
		{"empty body", contentTypeBinary, "", http.StatusUnprocessableEntity},
		{"undecodable binary value", contentTypeBinary, `{"records":[{"value":"not base64!!!"}]}`, http.StatusNotAcceptable},
		{"unknown property", contentTypeBinary, `{"bogus":[]}`, http.StatusBadRequest},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tb := newTestBridge(t)
			recorder := tb.do(http.MethodPost, "/topics/my-topic", test.contentType, test.body)
			assert.Equal(t, test.expectedCode, recorder.Code)
		})
	}
}

func TestUnknownRoutes(t *testing.T) {
	tb := newTestBridge(t)
	recorder := tb.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = tb.do(http.MethodPut, "/topics/my-topic", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
}

func TestOperationsOnMissingInstance(t *testing.T) {
	tb := newTestBridge(t)
	paths := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/consumers/my-group/instances/ghost/subscription", `{"topics":["t"]}`},
		{http.MethodGet, "/consumers/my-group/instances/ghost/records", ""},
		{http.MethodPost, "/consumers/my-group/instances/ghost/offsets", ""},
		{http.MethodPost, "/consumers/my-group/instances/ghost/positions", `{"offsets":[]}`},
		{http.MethodDelete, "/consumers/my-group/instances/ghost", ""},
	}
	for _, p := range paths {
		t.Run(fmt.Sprintf("%s %s", p.method, p.path), func(t *testing.T) {
			recorder := tb.do(p.method, p.path, contentTypeMetadata, p.body)
			assert.Equal(t, http.StatusNotFound, recorder.Code)
			assert.Equal(t, "The specified consumer instance was not found.", errorEnvelope(t, recorder).Message)
		})
	}
}
