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
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/spothero/kafka-bridge/kafka"
)

var (
	errBothTopicsAndPattern = NewError(
		http.StatusConflict,
		"Subscriptions to topics, partitions, and patterns are mutually exclusive.",
	)
	errNoTopicsOrPattern = NewError(
		http.StatusUnprocessableEntity,
		"A list (of Topics type) or a topic_pattern must be specified.",
	)
	errResponseTooLarge = NewError(
		http.StatusUnprocessableEntity,
		"Response exceeds the maximum number of bytes the consumer can receive",
	)
)

// ConsumerSession is the per-instance state behind one consumer URI. The
// underlying Kafka handle is not reentrant, so every operation holds the
// session mutex for the duration of the Kafka call; operations on different
// sessions proceed in parallel.
type ConsumerSession struct {
	lastActivity time.Time
	consumer     kafka.Consumer
	name         string
	groupID      string
	format       Format
	pollTimeout  time.Duration
	maxBytes     int64
	mu           sync.Mutex
}

// NewConsumerSession wraps a Kafka consumer handle with the HTTP-facing
// session state. pollTimeout and maxBytes seed the per-call defaults.
func NewConsumerSession(name, groupID string, format Format, consumer kafka.Consumer, pollTimeout time.Duration, maxBytes int64) *ConsumerSession {
	return &ConsumerSession{
		name:         name,
		groupID:      groupID,
		format:       format,
		consumer:     consumer,
		pollTimeout:  pollTimeout,
		maxBytes:     maxBytes,
		lastActivity: time.Now(),
	}
}

// Name returns the instance name, unique within the bridge process.
func (s *ConsumerSession) Name() string {
	return s.name
}

// GroupID returns the consumer group the instance belongs to.
func (s *ConsumerSession) GroupID() string {
	return s.groupID
}

// Format returns the instance's immutable embedded format.
func (s *ConsumerSession) Format() Format {
	return s.format
}

// IdleSince reports the time of the last successful operation.
func (s *ConsumerSession) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// touch records activity. Callers must hold s.mu.
func (s *ConsumerSession) touch() {
	s.lastActivity = time.Now()
}

// Subscribe transitions the session to a topic-list or topic-pattern
// subscription. Exactly one of topics and pattern must be given.
func (s *ConsumerSession) Subscribe(topics []string, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasTopics := len(topics) > 0
	hasPattern := pattern != ""
	if hasTopics && hasPattern {
		return errBothTopicsAndPattern
	}
	if !hasTopics && !hasPattern {
		return errNoTopicsOrPattern
	}
	if hasPattern {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return NewError(http.StatusUnprocessableEntity, err.Error())
		}
		if err := s.consumer.SubscribePattern(compiled); err != nil {
			return err
		}
		s.touch()
		return nil
	}
	if err := s.consumer.Subscribe(topics); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Assign replaces any subscription with a manual partition assignment.
func (s *ConsumerSession) Assign(partitions []kafka.PartitionOffset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.consumer.Assign(partitions); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Unsubscribe clears the subscription; subsequent polls fail until the
// session subscribes or is assigned again.
func (s *ConsumerSession) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.consumer.Unsubscribe(); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Poll reads a batch of records and returns the encoded response body.
// timeout and maxBytes override the session defaults when non-nil; the
// session remembers the last observed values. An encoded body larger than the
// effective max fails without being sent, accepting whatever position the
// underlying poll already advanced.
func (s *ConsumerSession) Poll(ctx context.Context, accept string, timeout *time.Duration, maxBytes *int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.format.CheckAccept(accept); err != nil {
		return nil, err
	}
	if timeout != nil {
		s.pollTimeout = *timeout
	}
	if maxBytes != nil {
		s.maxBytes = *maxBytes
	}
	messages, err := s.consumer.Poll(ctx, s.pollTimeout)
	if err != nil {
		return nil, err
	}
	body, err := encodeRecords(s.format, messages)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > s.maxBytes {
		return nil, errResponseTooLarge
	}
	s.touch()
	return body, nil
}

// Commit commits the given offsets, or the most recently delivered positions
// when offsets is empty.
func (s *ConsumerSession) Commit(ctx context.Context, offsets []kafka.OffsetCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if len(offsets) == 0 {
		err = s.consumer.Commit(ctx)
	} else {
		err = s.consumer.CommitOffsets(ctx, offsets)
	}
	if err != nil {
		return err
	}
	s.touch()
	return nil
}

// Seek repositions the given partitions, in parallel, joining on the first
// failure. Seeks against unassigned partitions surface as 404 through the
// error translation.
func (s *ConsumerSession) Seek(offsets []kafka.OffsetCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wg sync.WaitGroup
	errs := make([]error, len(offsets))
	for i, o := range offsets {
		wg.Add(1)
		go func(i int, o kafka.OffsetCommit) {
			defer wg.Done()
			tp := kafka.TopicPartition{Topic: o.Topic, Partition: o.Partition}
			errs[i] = s.consumer.Seek(tp, o.Offset)
		}(i, o)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	s.touch()
	return nil
}

// SeekToBeginning repositions the given partitions to their oldest offsets.
func (s *ConsumerSession) SeekToBeginning(partitions []kafka.TopicPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.consumer.SeekToBeginning(partitions); err != nil {
		return err
	}
	s.touch()
	return nil
}

// SeekToEnd repositions the given partitions to their newest offsets.
func (s *ConsumerSession) SeekToEnd(partitions []kafka.TopicPartition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.consumer.SeekToEnd(partitions); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Close releases the underlying Kafka consumer.
func (s *ConsumerSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumer.Close()
}
