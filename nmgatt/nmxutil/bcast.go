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
	"sync"
)

// Delivers a single value to every registered listener.  Each listener
// channel receives at most one value and is then closed.  Sending never
// blocks, so it is safe to call from the stack's event context.
type Bcaster struct {
	chs [](chan interface{})
	mtx sync.Mutex
}

func (b *Bcaster) Listen() <-chan interface{} {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	ch := make(chan interface{}, 1)
	b.chs = append(b.chs, ch)

	return ch
}

// Sends the value to all current listeners and forgets them.
func (b *Bcaster) Send(val interface{}) int {
	b.mtx.Lock()
	chs := b.chs
	b.chs = nil
	b.mtx.Unlock()

	for _, ch := range chs {
		ch <- val
		close(ch)
	}

	return len(chs)
}

func (b *Bcaster) Clear() {
	b.mtx.Lock()
	chs := b.chs
	b.chs = nil
	b.mtx.Unlock()

	for _, ch := range chs {
		close(ch)
	}
}
