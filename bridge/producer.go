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
	"errors"
	"net/http"

	"github.com/Shopify/sarama"
	"github.com/spothero/kafka-bridge/kafka"
)

// produceResponse is the body of a successful produce: one entry per
// submitted record, in order, each either an offset or an error.
type produceResponse struct {
	Offsets []produceResult `json:"offsets"`
}

type produceResult struct {
	Partition *int32 `json:"partition,omitempty"`
	Offset    *int64 `json:"offset,omitempty"`
	ErrorCode *int   `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProducerSession is the per-HTTP-connection producer state. It wraps the
// acks-all and fire-and-forget producer handles; the wrapped producer
// materializes them lazily on first use.
type ProducerSession struct {
	producer kafka.Producer
}

// NewProducerSession wraps a Kafka producer handle for a single HTTP
// connection.
func NewProducerSession(producer kafka.Producer) *ProducerSession {
	return &ProducerSession{producer: producer}
}

// Produce sends records and returns per-record outcomes preserving input
// order. Broker rejections land in individual entries rather than failing
// the batch.
func (s *ProducerSession) Produce(ctx context.Context, records []kafka.Record) (produceResponse, error) {
	results, err := s.producer.Send(ctx, records)
	if err != nil {
		return produceResponse{}, err
	}
	response := produceResponse{Offsets: make([]produceResult, len(results))}
	for i, result := range results {
		if result.Err != nil {
			code := produceErrorCode(result.Err)
			response.Offsets[i] = produceResult{ErrorCode: &code, Error: result.Err.Error()}
			continue
		}
		partition, offset := result.Partition, result.Offset
		response.Offsets[i] = produceResult{Partition: &partition, Offset: &offset}
	}
	return response, nil
}

// ProduceAsync sends records without awaiting acknowledgement.
func (s *ProducerSession) ProduceAsync(records []kafka.Record) error {
	return s.producer.SendAsync(records)
}

// produceErrorCode maps a per-record broker error onto the envelope code:
// unknown topics and partitions are reported as 404, everything else as 500.
func produceErrorCode(err error) int {
	if errors.Is(err, sarama.ErrUnknownTopicOrPartition) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Close flushes and releases the underlying producers.
func (s *ProducerSession) Close() error {
	return s.producer.Close()
}
