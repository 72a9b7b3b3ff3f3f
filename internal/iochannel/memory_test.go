// Copyright 2025 Tom Barlow
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

package iochannel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChannelReadLineSplitsOnNewline(t *testing.T) {
	c := NewMemoryChannel("yes\nno\n")

	line, err := c.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "yes", line)

	line, err = c.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "no", line)
}

func TestMemoryChannelWriteAccumulatesOutput(t *testing.T) {
	c := NewMemoryChannel("")
	require.NoError(t, c.Write("step 1 done\n"))
	require.NoError(t, c.Write("step 2 done\n"))
	assert.Equal(t, "step 1 done\nstep 2 done\n", c.Output())
}

func TestMemoryChannelClosedWriteFails(t *testing.T) {
	c := NewMemoryChannel("")
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Write("x"), ErrClosed)
}

func TestNullChannelDiscardsAndClosesEmpty(t *testing.T) {
	var n NullChannel
	assert.NoError(t, n.Write("ignored"))
	_, err := n.ReadLine(context.Background())
	assert.Error(t, err)
	assert.False(t, n.HasData())
}
