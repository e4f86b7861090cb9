/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package nmxutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockerPassThroughWhenIdle(t *testing.T) {
	var b Blocker

	v, err := b.Wait(time.Millisecond, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBlockerUnblock(t *testing.T) {
	var b Blocker
	b.Start()
	assert.True(t, b.Started())

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Unblock(7)
	}()

	v, err := b.Wait(DURATION_FOREVER, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.False(t, b.Started())

	// Subsequent waiters see the last value.
	v, err = b.Wait(time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestBlockerTimeoutAndStop(t *testing.T) {
	var b Blocker
	b.Start()

	_, err := b.Wait(5*time.Millisecond, nil)
	assert.Error(t, err)

	stop := make(chan struct{})
	close(stop)
	_, err = b.Wait(DURATION_FOREVER, stop)
	assert.Error(t, err)
}

func TestBcaster(t *testing.T) {
	var b Bcaster

	l1 := b.Listen()
	l2 := b.Listen()

	assert.Equal(t, 2, b.Send("reset"))
	assert.Equal(t, "reset", <-l1)
	assert.Equal(t, "reset", <-l2)

	// Listeners are one-shot.
	_, ok := <-l1
	assert.False(t, ok)
	assert.Equal(t, 0, b.Send("again"))

	l3 := b.Listen()
	b.Clear()
	_, ok = <-l3
	assert.False(t, ok)
}

func TestSingleResource(t *testing.T) {
	s := NewSingleResource()
	require.NoError(t, s.Acquire(1))
	assert.True(t, s.Acquired())

	done := make(chan error)
	go func() {
		done <- s.Acquire(2)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.True(t, s.Release())
	require.NoError(t, <-done)

	assert.False(t, s.Release())
	assert.False(t, s.Acquired())

	require.NoError(t, s.Acquire(3))
	go func() {
		done <- s.Acquire(4)
	}()
	time.Sleep(10 * time.Millisecond)
	s.Abort(fmt.Errorf("reset"))
	assert.Error(t, <-done)
}

func TestErrorClassification(t *testing.T) {
	herr := FmtBleHostError(0x105, "read failed; status=%d", 0x105)
	wrapped := errors.Wrap(herr, "reading battery level")

	assert.True(t, IsBleHost(wrapped))
	assert.Equal(t, 0x105, HostStatus(wrapped))
	assert.Equal(t, 0, HostStatus(fmt.Errorf("plain")))
	assert.False(t, IsBleHost(nil))

	assert.True(t, IsBleSesnDisconnect(
		errors.Wrap(NewBleSesnDisconnectError(7, "gone"), "write")))
	assert.True(t, IsValidation(FmtValidationError("len %d", 600)))
	assert.True(t, IsFatalInit(NewFatalInitError(3, "count failed")))
	assert.True(t, IsAlready(NewAlreadyError("started")))
	assert.NotNil(t, ToBleSecurity(NewBleSecurityError(5, "pairing")))
}
