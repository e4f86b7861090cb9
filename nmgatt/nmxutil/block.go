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
	"sync"
	"time"
)

// Parks any number of goroutines until an event (connection established,
// link encrypted, host synced) is signalled with Unblock().  Once unblocked,
// waiters pass straight through until the blocker is armed again with
// Start().
type Blocker struct {
	cur  *blockGen
	last interface{}
	mtx  sync.Mutex
}

// One arming of a blocker.  The value is written before ch is closed.
type blockGen struct {
	ch  chan struct{}
	val interface{}
}

func (b *Blocker) Started() bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return b.cur != nil
}

// Waits for the blocker to be released.  The value passed to Unblock() is
// returned.  A timeout of DURATION_FOREVER waits indefinitely.
func (b *Blocker) Wait(timeout time.Duration, stopChan <-chan struct{}) (
	interface{}, error) {

	b.mtx.Lock()
	gen := b.cur
	last := b.last
	b.mtx.Unlock()

	if gen == nil {
		return last, nil
	}

	var tmoChan <-chan time.Time
	if timeout != DURATION_FOREVER {
		timer := time.NewTimer(timeout)
		defer StopAndDrainTimer(timer)
		tmoChan = timer.C
	}

	select {
	case <-gen.ch:
		return gen.val, nil

	case <-tmoChan:
		return nil, fmt.Errorf("timeout after %s", timeout.String())

	case <-stopChan:
		return nil, fmt.Errorf("aborted")
	}
}

func (b *Blocker) Start() {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.cur == nil {
		b.cur = &blockGen{ch: make(chan struct{})}
	}
}

func (b *Blocker) Unblock(val interface{}) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.cur != nil {
		b.cur.val = val
		close(b.cur.ch)
		b.cur = nil
	}
	b.last = val
}
