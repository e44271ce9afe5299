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

package kafka

import (
	"context"
	"sync"

	"github.com/Shopify/sarama"
)

// Record is a single record to be produced. Partition is an optional explicit
// destination; when nil the record is hash-partitioned by key, or assigned a
// random partition when the key is also nil.
type Record struct {
	Partition *int32
	Key       []byte
	Value     []byte
	Topic     string
}

// RecordMetadata reports the outcome of producing a single record. Err is set
// when the broker rejected the record.
type RecordMetadata struct {
	Err       error
	Offset    int64
	Partition int32
}

// Producer sends batches of records. Send waits for broker acknowledgement of
// every record; SendAsync fires and forgets with no acks requested.
type Producer interface {
	Send(ctx context.Context, records []Record) ([]RecordMetadata, error)
	SendAsync(records []Record) error
	Close() error
}

// producer lazily materializes two Sarama producers against the same broker
// list: a sync producer with acks from all in-sync replicas, and an async
// producer with no acks. Each needs its own client because RequiredAcks is
// client-level configuration in Sarama.
type producer struct {
	config *Config

	mu          sync.Mutex
	syncClient  sarama.Client
	syncProd    sarama.SyncProducer
	asyncClient sarama.Client
	asyncProd   sarama.AsyncProducer
}

// NewProducer creates a bridge producer from the given configuration. No
// connection is made until the first send.
func NewProducer(config *Config) Producer {
	return &producer{config: config}
}

// hintPartitioner routes records carrying an explicit partition hint in their
// metadata and hash-partitions the rest.
type hintPartitioner struct {
	fallback sarama.Partitioner
}

func newHintPartitioner(topic string) sarama.Partitioner {
	return &hintPartitioner{fallback: sarama.NewHashPartitioner(topic)}
}

func (p *hintPartitioner) Partition(message *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	if hint, ok := message.Metadata.(int32); ok {
		return hint, nil
	}
	return p.fallback.Partition(message, numPartitions)
}

func (p *hintPartitioner) RequiresConsistency() bool {
	return true
}

func (c *Config) newProducerClient(ctx context.Context, acks sarama.RequiredAcks) (sarama.Client, error) {
	cfg := *c
	if err := cfg.populateSaramaConfig(ctx); err != nil {
		return nil, err
	}
	cfg.Producer.RequiredAcks = acks
	cfg.Producer.Partitioner = newHintPartitioner
	if acks == sarama.NoResponse {
		cfg.Producer.Return.Successes = false
	}
	return sarama.NewClient(cfg.BrokerAddrs, &cfg.Config)
}

// ensureSync materializes the acks-all sync producer on first use.
func (p *producer) ensureSync(ctx context.Context) (sarama.SyncProducer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.syncProd != nil {
		return p.syncProd, nil
	}
	client, err := p.config.newProducerClient(ctx, sarama.WaitForAll)
	if err != nil {
		return nil, err
	}
	syncProd, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, err
	}
	p.syncClient = client
	p.syncProd = syncProd
	return syncProd, nil
}

// ensureAsync materializes the no-acks async producer on first use.
func (p *producer) ensureAsync(ctx context.Context) (sarama.AsyncProducer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.asyncProd != nil {
		return p.asyncProd, nil
	}
	client, err := p.config.newProducerClient(ctx, sarama.NoResponse)
	if err != nil {
		return nil, err
	}
	asyncProd, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, err
	}
	go func() {
		// drain errors so the producer never blocks; callers asked for no acks
		for range asyncProd.Errors() {
		}
	}()
	p.asyncClient = client
	p.asyncProd = asyncProd
	return asyncProd, nil
}

func buildMessage(r Record) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{Topic: r.Topic}
	if r.Key != nil {
		msg.Key = sarama.ByteEncoder(r.Key)
	}
	if r.Value != nil {
		msg.Value = sarama.ByteEncoder(r.Value)
	}
	if r.Partition != nil {
		msg.Metadata = *r.Partition
	}
	return msg
}

// Send produces every record and waits for its acknowledgement, returning
// per-record outcomes in request order. The error return covers failures to
// reach the cluster at all; per-record broker errors land in the metadata.
func (p *producer) Send(ctx context.Context, records []Record) ([]RecordMetadata, error) {
	syncProd, err := p.ensureSync(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]RecordMetadata, len(records))
	for i, r := range records {
		msg := buildMessage(r)
		partition, offset, err := syncProd.SendMessage(msg)
		results[i] = RecordMetadata{Partition: partition, Offset: offset, Err: err}
	}
	return results, nil
}

// SendAsync produces every record without waiting for acknowledgement.
func (p *producer) SendAsync(records []Record) error {
	asyncProd, err := p.ensureAsync(context.Background())
	if err != nil {
		return err
	}
	for _, r := range records {
		asyncProd.Input() <- buildMessage(r)
	}
	return nil
}

// Close flushes and tears down whichever producers were materialized.
func (p *producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	if p.syncProd != nil {
		if err := p.syncProd.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := p.syncClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.syncProd, p.syncClient = nil, nil
	}
	if p.asyncProd != nil {
		if err := p.asyncProd.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := p.asyncClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.asyncProd, p.asyncClient = nil, nil
	}
	return firstErr
}
