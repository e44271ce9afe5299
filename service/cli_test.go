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
package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckFlags(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		expectErr bool
	}{
		{
			name: "fully populated config passes",
			config: Config{
				Name:        "kafka-bridge",
				Environment: "production",
				Version:     "0.1.0",
				GitSHA:      "abc123",
			},
		},
		{
			name: "missing environment fails",
			config: Config{
				Name:    "kafka-bridge",
				Version: "0.1.0",
				GitSHA:  "abc123",
			},
			expectErr: true,
		},
		{
			name:      "empty config reports every missing field",
			config:    Config{},
			expectErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.config.CheckFlags()
			if test.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
