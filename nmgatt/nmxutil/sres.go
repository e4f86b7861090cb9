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

type srWaiter struct {
	c     chan error
	token interface{}
}

// A resource that can only be held by one party at a time, with FIFO
// hand-off to waiters.  The host only supports one outstanding connection
// attempt, so connection initiation acquires one of these first.
type SingleResource struct {
	acquired  bool
	waitQueue []srWaiter
	mtx       sync.Mutex
}

func NewSingleResource() SingleResource {
	return SingleResource{}
}

func (s *SingleResource) Acquire(token interface{}) error {
	s.mtx.Lock()

	if !s.acquired {
		s.acquired = true
		s.mtx.Unlock()
		return nil
	}

	w := srWaiter{
		c:     make(chan error, 1),
		token: token,
	}
	s.waitQueue = append(s.waitQueue, w)

	s.mtx.Unlock()

	return <-w.c
}

// @return                      true if a pending waiter acquired the resource;
//                              false if the resource is now free.
func (s *SingleResource) Release() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.acquired {
		panic("SingleResource release without acquire")
	}

	if len(s.waitQueue) == 0 {
		s.acquired = false
		return false
	}

	w := s.waitQueue[0]
	s.waitQueue = s.waitQueue[1:]
	w.c <- nil

	return true
}

// Fails every pending waiter with the given error.  The current holder keeps
// the resource.
func (s *SingleResource) Abort(err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, w := range s.waitQueue {
		w.c <- err
	}
	s.waitQueue = nil
}

func (s *SingleResource) Acquired() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.acquired
}
