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

package task

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// A single action that runs in the main loop.
type action struct {
	fn func() error
	ch chan error
}

// Runs jobs one at a time on a dedicated goroutine.  The simulated host uses
// one of these as its event / completion context; each GATT client uses one
// to serialize its blocking transactions.
type TaskQueue struct {
	actCh  chan action
	stopCh chan struct{}
	active bool
	name   string
	mtx    sync.Mutex
	wg     sync.WaitGroup
}

func NewTaskQueue(name string) TaskQueue {
	return TaskQueue{
		name: name,
	}
}

var InactiveError = fmt.Errorf("inactive task queue")

func (q *TaskQueue) Name() string {
	return q.name
}

// Pushes the specified function onto the task queue.  When the job completes,
// the result is sent over the returned channel.
func (q *TaskQueue) Enqueue(fn func() error) chan error {
	act := action{
		fn: fn,
		ch: make(chan error, 1),
	}

	q.mtx.Lock()
	actCh := q.actCh
	stopCh := q.stopCh
	active := q.active
	q.mtx.Unlock()

	if !active {
		act.ch <- InactiveError
		close(act.ch)
		return act.ch
	}

	select {
	case actCh <- act:
	case <-stopCh:
		act.ch <- InactiveError
		close(act.ch)
	}

	return act.ch
}

// Queues a job whose result nobody waits for.  Errors are logged.
func (q *TaskQueue) Post(fn func() error) error {
	ch := q.Enqueue(func() error {
		if err := fn(); err != nil {
			log.Debugf("task queue \"%s\": job failed: %s",
				q.name, err.Error())
		}
		return nil
	})

	// Only an inactive queue completes before the job runs.
	select {
	case err := <-ch:
		return err
	default:
		return nil
	}
}

// Enqueues the specified function and waits for it to complete.  Calling
// this from a job on the same queue deadlocks.
func (q *TaskQueue) Run(fn func() error) error {
	return <-q.Enqueue(fn)
}

// Starts the task queue.  A task queue must be started before jobs can be
// enqueued to it.
func (q *TaskQueue) Start(depth int) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.active {
		return fmt.Errorf("Task queue started twice \"%s\"", q.name)
	}
	q.active = true

	actCh := make(chan action, depth)
	q.actCh = actCh

	stopCh := make(chan struct{})
	q.stopCh = stopCh

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		for {
			select {
			case act := <-actCh:
				err := act.fn()
				act.ch <- err
				close(act.ch)

			case <-stopCh:
				return
			}
		}
	}()

	return nil
}

// Stops the task queue.  If there are any queued jobs, this causes them to
// fail with the specified error.  The task queue must be started again before
// it can be reused.  This function blocks until the task loop returns, so
// calling this from within a job results in deadlock.  If a job needs to stop
// the task queue, it should use StopNoWait instead.
func (q *TaskQueue) Stop(cause error) error {
	if err := q.StopNoWait(cause); err != nil {
		return err
	}

	// Wait for task loop to terminate.
	q.wg.Wait()
	return nil
}

// Stops the task queue.  If there are any queued jobs, this causes them to
// fail with the specified error.  If this function returns success, the stop
// procedure has successfully initiated, but not necessarily completed.
func (q *TaskQueue) StopNoWait(cause error) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if !q.active {
		return fmt.Errorf("Task queue stopped twice \"%s\"", q.name)
	}

	// Stop the task loop.
	close(q.stopCh)
	q.active = false

	// Fail unprocessed actions.  The loop may still pick up one of them
	// before it notices the stop; that job simply runs.
	for {
		select {
		case next := <-q.actCh:
			next.ch <- cause
			close(next.ch)
		default:
			return nil
		}
	}
}

func (q *TaskQueue) Active() bool {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return q.active
}
