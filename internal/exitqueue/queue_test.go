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

package exitqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	q := New(4)

	require.True(t, q.Push(100, 0, 1000))
	require.True(t, q.Push(101, 1, 1001))
	require.True(t, q.Push(102, 124, 1002))

	e1, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 100, e1.PID)

	e2, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 101, e2.PID)

	e3, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 102, e3.PID)
	assert.Equal(t, 124, e3.ExitCode)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestPushDropsWhenFull(t *testing.T) {
	q := New(2)

	require.True(t, q.Push(1, 0, 1))
	require.True(t, q.Push(2, 0, 2))
	require.False(t, q.Push(3, 0, 3))

	assert.EqualValues(t, 1, q.Dropped())

	q.ResetDropped()
	assert.EqualValues(t, 0, q.Dropped())
}

func TestDrainAll(t *testing.T) {
	q := New(8)
	for i := 0; i < 5; i++ {
		require.True(t, q.Push(i, 0, int64(i)))
	}

	entries := q.DrainAll()
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, i, e.PID)
	}

	assert.Equal(t, 0, q.Len())
}

func TestDefaultCapacity(t *testing.T) {
	q := New(0)
	assert.EqualValues(t, defaultCapacity, q.cap)
}
