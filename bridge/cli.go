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
	"time"

	"github.com/spf13/pflag"
)

// Config carries the bridge-level settings: the id prefixed onto generated
// consumer names, the consumer idle timeout, and the per-poll defaults.
type Config struct {
	ID              string
	ConsumerTimeout time.Duration
	PollTimeout     time.Duration
	MaxBytes        int64
}

// NewDefaultConfig returns the bridge defaults.
func NewDefaultConfig() Config {
	return Config{
		ID:              "kafka-bridge",
		ConsumerTimeout: 5 * time.Minute,
		PollTimeout:     time.Second,
		MaxBytes:        10 * 1024 * 1024,
	}
}

// RegisterFlags registers bridge flags with pflags
func (c *Config) RegisterFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.ID, "bridge-id", c.ID, "Bridge identifier used as the prefix of generated consumer instance names")
	flags.DurationVar(&c.ConsumerTimeout, "bridge-consumer-timeout", c.ConsumerTimeout, "How long a consumer instance may sit idle before it is closed and removed")
	flags.DurationVar(&c.PollTimeout, "bridge-poll-timeout", c.PollTimeout, "Default time a single poll waits for records when the request gives no timeout parameter")
	flags.Int64Var(&c.MaxBytes, "bridge-max-bytes", c.MaxBytes, "Default maximum encoded response size of a single poll when the request gives no max_bytes parameter")
}
