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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spothero/kafka-bridge/kafka"
)

// produceRecord is one element of a produce request's records list. Key and
// value are kept raw because their interpretation depends on the embedded
// format.
type produceRecord struct {
	Key       json.RawMessage `json:"key,omitempty"`
	Value     json.RawMessage `json:"value"`
	Partition *int32          `json:"partition,omitempty"`
}

// consumerRecord is one element of a poll response.
type consumerRecord struct {
	Key       interface{} `json:"key"`
	Value     interface{} `json:"value"`
	Topic     string      `json:"topic"`
	Partition int32       `json:"partition"`
	Offset    int64       `json:"offset"`
}

// decodeError wraps a key or value that cannot be interpreted in the declared
// embedded format.
func decodeError(err error) Error {
	return NewError(http.StatusNotAcceptable, fmt.Sprintf("Failed to decode: %v", err))
}

// decodeField converts a raw produce-request key or value into record bytes
// per the embedded format: base64-decoded for binary, verbatim JSON for json.
// A JSON null yields nil bytes.
func decodeField(format Format, raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if format == FormatJSON {
		return raw, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, decodeError(err)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, decodeError(err)
	}
	return decoded, nil
}

// decodeRecords converts the elements of a produce request into Kafka records
// destined for topic, preserving order.
func decodeRecords(format Format, topic string, records []produceRecord) ([]kafka.Record, error) {
	out := make([]kafka.Record, 0, len(records))
	for _, r := range records {
		key, err := decodeField(format, r.Key)
		if err != nil {
			return nil, err
		}
		value, err := decodeField(format, r.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, kafka.Record{
			Topic:     topic,
			Key:       key,
			Value:     value,
			Partition: r.Partition,
		})
	}
	return out, nil
}

// encodeField converts record bytes into their wire representation: a base64
// string for binary, parsed JSON for json. Nil bytes become a JSON null
// either way.
func encodeField(format Format, data []byte) (interface{}, error) {
	if data == nil {
		return nil, nil
	}
	if format == FormatBinary {
		return base64.StdEncoding.EncodeToString(data), nil
	}
	if !json.Valid(data) {
		return nil, decodeError(fmt.Errorf("record is not valid JSON"))
	}
	return json.RawMessage(data), nil
}

// encodeRecords serializes polled messages into the consume response body for
// the given embedded format.
func encodeRecords(format Format, messages []kafka.Message) ([]byte, error) {
	records := make([]consumerRecord, 0, len(messages))
	for _, m := range messages {
		key, err := encodeField(format, m.Key)
		if err != nil {
			return nil, err
		}
		value, err := encodeField(format, m.Value)
		if err != nil {
			return nil, err
		}
		records = append(records, consumerRecord{
			Topic:     m.Topic,
			Key:       key,
			Value:     value,
			Partition: m.Partition,
			Offset:    m.Offset,
		})
	}
	return json.Marshal(records)
}
