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

package http

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFlags(t *testing.T) {
	flags := pflag.NewFlagSet("http", pflag.PanicOnError)
	c := NewDefaultConfig("test")
	c.RegisterFlags(flags)
	err := flags.Parse([]string{"--address", "0.0.0.0", "--port", "9090"})
	require.NoError(t, err)
	assert.Equal(t, "test", c.Name)
	assert.Equal(t, "0.0.0.0", c.Address)
	assert.Equal(t, uint16(9090), c.Port)
	assert.Equal(t, 5, c.ReadTimeout)
	assert.Equal(t, 60, c.WriteTimeout)
}
