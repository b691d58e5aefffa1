// Copyright (C) 2014 The Pcapshuttle Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPutGetFIFOOrder(t *testing.T) {
	q := New[int](4)
	done := make(chan struct{})

	for i := 0; i < 3; i++ {
		require.True(t, q.Put(i, done))
	}
	for i := 0; i < 3; i++ {
		v, ok := q.GetTimeout(10*time.Millisecond, done)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestTryPutReturnsErrFullAtCapacity(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.TryPut(1))
	require.ErrorIs(t, q.TryPut(2), ErrFull)
}

func TestPutTimeoutTimesOutWhenFull(t *testing.T) {
	q := New[int](1)
	done := make(chan struct{})
	require.True(t, q.PutTimeout(1, 0, done))
	require.False(t, q.PutTimeout(2, 5*time.Millisecond, done))
}

func TestGetTimeoutTimesOutWhenEmpty(t *testing.T) {
	q := New[int](1)
	done := make(chan struct{})
	_, ok := q.GetTimeout(5*time.Millisecond, done)
	require.False(t, ok)
}

func TestPutUnblocksOnDoneClose(t *testing.T) {
	q := New[int](1)
	done := make(chan struct{})
	require.True(t, q.Put(1, done)) // fills capacity

	resultCh := make(chan bool, 1)
	go func() {
		resultCh <- q.Put(2, done)
	}()

	close(done)
	select {
	case ok := <-resultCh:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock when done was closed")
	}
}

func TestLenAndCap(t *testing.T) {
	q := New[int](3)
	require.Equal(t, 3, q.Cap())
	require.Equal(t, 0, q.Len())
	q.TryPut(1)
	require.Equal(t, 1, q.Len())
}
