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
	"regexp"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockConsumer is a mock implementation of the Consumer interface for testing
type MockConsumer struct {
	mock.Mock
}

// Subscribe mocks the Consumer interface Subscribe method
func (m *MockConsumer) Subscribe(topics []string) error {
	return m.Called(topics).Error(0)
}

// SubscribePattern mocks the Consumer interface SubscribePattern method
func (m *MockConsumer) SubscribePattern(pattern *regexp.Regexp) error {
	return m.Called(pattern).Error(0)
}

// Assign mocks the Consumer interface Assign method
func (m *MockConsumer) Assign(partitions []PartitionOffset) error {
	return m.Called(partitions).Error(0)
}

// Unsubscribe mocks the Consumer interface Unsubscribe method
func (m *MockConsumer) Unsubscribe() error {
	return m.Called().Error(0)
}

// Poll mocks the Consumer interface Poll method
func (m *MockConsumer) Poll(ctx context.Context, timeout time.Duration) ([]Message, error) {
	args := m.Called(ctx, timeout)
	messages, _ := args.Get(0).([]Message)
	return messages, args.Error(1)
}

// Commit mocks the Consumer interface Commit method
func (m *MockConsumer) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// CommitOffsets mocks the Consumer interface CommitOffsets method
func (m *MockConsumer) CommitOffsets(ctx context.Context, offsets []OffsetCommit) error {
	return m.Called(ctx, offsets).Error(0)
}

// Seek mocks the Consumer interface Seek method
func (m *MockConsumer) Seek(tp TopicPartition, offset int64) error {
	return m.Called(tp, offset).Error(0)
}

// SeekToBeginning mocks the Consumer interface SeekToBeginning method
func (m *MockConsumer) SeekToBeginning(partitions []TopicPartition) error {
	return m.Called(partitions).Error(0)
}

// SeekToEnd mocks the Consumer interface SeekToEnd method
func (m *MockConsumer) SeekToEnd(partitions []TopicPartition) error {
	return m.Called(partitions).Error(0)
}

// Close mocks the Consumer interface Close method
func (m *MockConsumer) Close() error {
	return m.Called().Error(0)
}

// MockProducer is a mock implementation of the Producer interface for testing
type MockProducer struct {
	mock.Mock
}

// Send mocks the Producer interface Send method
func (m *MockProducer) Send(ctx context.Context, records []Record) ([]RecordMetadata, error) {
	args := m.Called(ctx, records)
	results, _ := args.Get(0).([]RecordMetadata)
	return results, args.Error(1)
}

// SendAsync mocks the Producer interface SendAsync method
func (m *MockProducer) SendAsync(records []Record) error {
	return m.Called(records).Error(0)
}

// Close mocks the Producer interface Close method
func (m *MockProducer) Close() error {
	return m.Called().Error(0)
}
