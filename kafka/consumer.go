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
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/Shopify/sarama"
)

// maxPollRecords caps how many buffered records a single poll drains once the
// first record has been received.
const maxPollRecords = 500

// ErrNoSubscription is returned by Poll when the consumer has neither a
// subscription nor a manual assignment. The text matches the message Kafka
// clients raise in the same situation and is surfaced verbatim to HTTP
// callers.
var ErrNoSubscription = errors.New("Consumer is not subscribed to any topics or assigned any partitions")

// NotAssignedError reports a seek against a partition the consumer does not
// currently own, the illegal-state condition Kafka clients raise for the same
// call.
type NotAssignedError struct {
	Topic     string
	Partition int32
}

func (e NotAssignedError) Error() string {
	return fmt.Sprintf("No current assignment for partition %s-%d", e.Topic, e.Partition)
}

// Message is a single record read from a topic partition.
type Message struct {
	Timestamp time.Time
	Topic     string
	Key       []byte
	Value     []byte
	Partition int32
	Offset    int64
}

// TopicPartition identifies a single partition of a topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// PartitionOffset is a manual assignment entry. A nil Offset means the
// consumer starts from the committed position, falling back to the configured
// offset reset.
type PartitionOffset struct {
	Offset    *int64
	Topic     string
	Partition int32
}

// OffsetCommit is a single entry of an explicit offset commit request.
type OffsetCommit struct {
	Topic     string
	Metadata  string
	Partition int32
	Offset    int64
}

// Consumer is the handle the bridge session layer drives. Implementations are
// not safe for concurrent use; callers serialize access per instance.
type Consumer interface {
	Subscribe(topics []string) error
	SubscribePattern(pattern *regexp.Regexp) error
	Assign(partitions []PartitionOffset) error
	Unsubscribe() error
	Poll(ctx context.Context, timeout time.Duration) ([]Message, error)
	Commit(ctx context.Context) error
	CommitOffsets(ctx context.Context, offsets []OffsetCommit) error
	Seek(tp TopicPartition, offset int64) error
	SeekToBeginning(partitions []TopicPartition) error
	SeekToEnd(partitions []TopicPartition) error
	Close() error
}

// ConsumerSettings carries the per-instance settings clients may choose at
// consumer creation time.
type ConsumerSettings struct {
	AutoOffsetReset  string
	RequestTimeout   time.Duration
	FetchMinBytes    int32
	EnableAutoCommit bool
}

// consumer implements Consumer on the low-level Sarama consumer: one
// PartitionConsumer per owned partition feeding a shared channel, with a
// Sarama offset manager tracking the group's committed positions.
type consumer struct {
	client     sarama.Client
	consumer   sarama.Consumer
	om         sarama.OffsetManager
	groupID    string
	reset      string
	autoCommit bool

	mu         sync.Mutex
	readers    map[TopicPartition]*partitionReader
	poms       map[TopicPartition]sarama.PartitionOffsetManager
	gens       map[TopicPartition]uint64
	delivered  map[TopicPartition]int64
	incoming   chan readerMessage
	genCounter uint64
	subscribed bool
}

// readerMessage tags each record with the generation of the partition reader
// that produced it so records buffered before a seek can be discarded.
type readerMessage struct {
	msg *sarama.ConsumerMessage
	gen uint64
}

type partitionReader struct {
	pc   sarama.PartitionConsumer
	done chan struct{}
}

// NewConsumer creates a bridge consumer on top of the provided Sarama client.
// The client is owned by the returned consumer and closed with it.
func NewConsumer(client sarama.Client, groupID string, settings ConsumerSettings) (Consumer, error) {
	saramaConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return nil, err
	}
	om, err := sarama.NewOffsetManagerFromClient(groupID, client)
	if err != nil {
		if closeErr := saramaConsumer.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, err
	}
	return newConsumer(client, saramaConsumer, om, groupID, settings), nil
}

func newConsumer(
	client sarama.Client,
	saramaConsumer sarama.Consumer,
	om sarama.OffsetManager,
	groupID string,
	settings ConsumerSettings,
) *consumer {
	reset := settings.AutoOffsetReset
	if reset == "" {
		reset = "latest"
	}
	return &consumer{
		client:     client,
		consumer:   saramaConsumer,
		om:         om,
		groupID:    groupID,
		reset:      reset,
		autoCommit: settings.EnableAutoCommit,
		readers:    make(map[TopicPartition]*partitionReader),
		poms:       make(map[TopicPartition]sarama.PartitionOffsetManager),
		gens:       make(map[TopicPartition]uint64),
		delivered:  make(map[TopicPartition]int64),
		incoming:   make(chan readerMessage, maxPollRecords),
	}
}

// Subscribe replaces any existing subscription or assignment with the
// partitions of the named topics, starting each at its committed position.
// A failed subscribe stops any readers it already started.
func (c *consumer) Subscribe(topics []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownReaders()
	c.subscribed = false
	for _, topic := range topics {
		partitions, err := c.client.Partitions(topic)
		if err != nil {
			c.teardownReaders()
			return err
		}
		for _, partition := range partitions {
			tp := TopicPartition{Topic: topic, Partition: partition}
			offset, err := c.resolveStartOffset(tp)
			if err != nil {
				c.teardownReaders()
				return err
			}
			if err := c.startReader(tp, offset); err != nil {
				c.teardownReaders()
				return err
			}
		}
	}
	c.subscribed = true
	return nil
}

// SubscribePattern subscribes to every known topic whose name matches the
// given pattern. A pattern matching no topics still counts as a subscription.
func (c *consumer) SubscribePattern(pattern *regexp.Regexp) error {
	if err := c.client.RefreshMetadata(); err != nil {
		return err
	}
	topics, err := c.client.Topics()
	if err != nil {
		return err
	}
	matched := make([]string, 0, len(topics))
	for _, topic := range topics {
		if pattern.MatchString(topic) {
			matched = append(matched, topic)
		}
	}
	return c.Subscribe(matched)
}

// Assign replaces any existing subscription with a manual assignment,
// honoring per-partition start offsets when provided. A failed assign stops
// any readers it already started.
func (c *consumer) Assign(partitions []PartitionOffset) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownReaders()
	c.subscribed = false
	for _, p := range partitions {
		tp := TopicPartition{Topic: p.Topic, Partition: p.Partition}
		var offset int64
		if p.Offset != nil {
			offset = *p.Offset
		} else {
			resolved, err := c.resolveStartOffset(tp)
			if err != nil {
				c.teardownReaders()
				return err
			}
			offset = resolved
		}
		if err := c.startReader(tp, offset); err != nil {
			c.teardownReaders()
			return err
		}
	}
	c.subscribed = true
	return nil
}

// Unsubscribe stops all partition readers and clears the subscription.
func (c *consumer) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownReaders()
	c.subscribed = false
	return nil
}

// Poll returns the records buffered across all owned partitions, blocking up
// to timeout for the first record to arrive. An empty slice is a valid result.
func (c *consumer) Poll(ctx context.Context, timeout time.Duration) ([]Message, error) {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return nil, ErrNoSubscription
	}
	c.mu.Unlock()

	records := make([]Message, 0)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Block for the first record, then drain whatever is immediately
	// available, mirroring a single Kafka client poll.
	for len(records) == 0 {
		select {
		case rm := <-c.incoming:
			if msg := c.deliver(rm); msg != nil {
				records = append(records, *msg)
			}
		case <-timer.C:
			return records, nil
		case <-ctx.Done():
			return records, ctx.Err()
		}
	}
	for len(records) < maxPollRecords {
		select {
		case rm := <-c.incoming:
			if msg := c.deliver(rm); msg != nil {
				records = append(records, *msg)
			}
		default:
			return records, nil
		}
	}
	return records, nil
}

// deliver filters out records from stale reader generations and tracks the
// delivered position per partition.
func (c *consumer) deliver(rm readerMessage) *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	tp := TopicPartition{Topic: rm.msg.Topic, Partition: rm.msg.Partition}
	if c.gens[tp] != rm.gen {
		return nil
	}
	c.delivered[tp] = rm.msg.Offset
	if c.autoCommit {
		if pom, err := c.pomFor(tp); err == nil {
			pom.MarkOffset(rm.msg.Offset+1, "")
		}
	}
	return &Message{
		Topic:     rm.msg.Topic,
		Partition: rm.msg.Partition,
		Offset:    rm.msg.Offset,
		Key:       rm.msg.Key,
		Value:     rm.msg.Value,
		Timestamp: rm.msg.Timestamp,
	}
}

// Commit commits the most recently delivered position of every owned
// partition.
func (c *consumer) Commit(_ context.Context) error {
	c.mu.Lock()
	for tp, offset := range c.delivered {
		pom, err := c.pomFor(tp)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		pom.MarkOffset(offset+1, "")
	}
	c.mu.Unlock()
	c.om.Commit()
	return c.firstPOMError()
}

// CommitOffsets commits exactly the offsets given, including positions behind
// the current committed offset.
func (c *consumer) CommitOffsets(_ context.Context, offsets []OffsetCommit) error {
	c.mu.Lock()
	for _, o := range offsets {
		tp := TopicPartition{Topic: o.Topic, Partition: o.Partition}
		pom, err := c.pomFor(tp)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		next, _ := pom.NextOffset()
		if o.Offset < next {
			pom.ResetOffset(o.Offset, o.Metadata)
		} else {
			pom.MarkOffset(o.Offset, o.Metadata)
		}
	}
	c.mu.Unlock()
	c.om.Commit()
	return c.firstPOMError()
}

// firstPOMError surfaces any asynchronous commit error reported by the
// partition offset managers.
func (c *consumer) firstPOMError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pom := range c.poms {
		select {
		case err := <-pom.Errors():
			if err != nil {
				return err.Err
			}
		default:
		}
	}
	return nil
}

// Seek repositions a single owned partition to the given offset.
func (c *consumer) Seek(tp TopicPartition, offset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restartReader(tp, offset)
}

// SeekToBeginning repositions the given partitions to their oldest offsets.
func (c *consumer) SeekToBeginning(partitions []TopicPartition) error {
	return c.seekToBoundary(partitions, sarama.OffsetOldest)
}

// SeekToEnd repositions the given partitions to their newest offsets.
func (c *consumer) SeekToEnd(partitions []TopicPartition) error {
	return c.seekToBoundary(partitions, sarama.OffsetNewest)
}

func (c *consumer) seekToBoundary(partitions []TopicPartition, boundary int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tp := range partitions {
		if _, ok := c.readers[tp]; !ok {
			return NotAssignedError{Topic: tp.Topic, Partition: tp.Partition}
		}
		offset, err := c.client.GetOffset(tp.Topic, tp.Partition, boundary)
		if err != nil {
			return err
		}
		if err := c.restartReader(tp, offset); err != nil {
			return err
		}
	}
	return nil
}

// restartReader replaces the partition reader for tp with one starting at
// offset. Callers must hold c.mu.
func (c *consumer) restartReader(tp TopicPartition, offset int64) error {
	reader, ok := c.readers[tp]
	if !ok {
		return NotAssignedError{Topic: tp.Topic, Partition: tp.Partition}
	}
	reader.stop()
	delete(c.readers, tp)
	return c.startReader(tp, offset)
}

// resolveStartOffset picks the start position for a partition: the committed
// offset when one exists, otherwise the configured offset reset. Callers must
// hold c.mu.
func (c *consumer) resolveStartOffset(tp TopicPartition) (int64, error) {
	pom, err := c.pomFor(tp)
	if err != nil {
		return 0, err
	}
	if next, _ := pom.NextOffset(); next >= 0 {
		return next, nil
	}
	switch c.reset {
	case "earliest":
		return sarama.OffsetOldest, nil
	case "latest":
		return sarama.OffsetNewest, nil
	default:
		return 0, fmt.Errorf("no committed offset for partition %s-%d and auto.offset.reset is none", tp.Topic, tp.Partition)
	}
}

// pomFor returns the partition offset manager for tp, creating it on first
// use. Callers must hold c.mu.
func (c *consumer) pomFor(tp TopicPartition) (sarama.PartitionOffsetManager, error) {
	if pom, ok := c.poms[tp]; ok {
		return pom, nil
	}
	pom, err := c.om.ManagePartition(tp.Topic, tp.Partition)
	if err != nil {
		return nil, err
	}
	c.poms[tp] = pom
	return pom, nil
}

// startReader creates a partition consumer at offset and forwards its records
// into the shared incoming channel. Callers must hold c.mu.
func (c *consumer) startReader(tp TopicPartition, offset int64) error {
	pc, err := c.consumer.ConsumePartition(tp.Topic, tp.Partition, offset)
	if err != nil {
		return err
	}
	c.genCounter++
	gen := c.genCounter
	c.gens[tp] = gen
	reader := &partitionReader{pc: pc, done: make(chan struct{})}
	c.readers[tp] = reader
	go func() {
		for {
			select {
			case msg, ok := <-pc.Messages():
				if !ok {
					return
				}
				select {
				case c.incoming <- readerMessage{msg: msg, gen: gen}:
				case <-reader.done:
					return
				}
			case <-reader.done:
				return
			}
		}
	}()
	return nil
}

// teardownReaders stops every partition reader and forgets the delivered
// positions. Callers must hold c.mu.
func (c *consumer) teardownReaders() {
	for tp, reader := range c.readers {
		reader.stop()
		delete(c.readers, tp)
		delete(c.gens, tp)
		delete(c.delivered, tp)
	}
}

func (r *partitionReader) stop() {
	close(r.done)
	r.pc.AsyncClose()
}

// Close stops all readers and releases the offset manager, the Sarama
// consumer, and the owned client.
func (c *consumer) Close() error {
	c.mu.Lock()
	c.teardownReaders()
	var firstErr error
	for tp, pom := range c.poms {
		if err := pom.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.poms, tp)
	}
	c.mu.Unlock()
	if err := c.om.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.consumer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
