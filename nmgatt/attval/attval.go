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

// Package attval implements the byte buffer that backs every local and
// remote attribute.  A value never exceeds its maximum length, and its
// allocated capacity only grows.  All accessors are safe for concurrent use;
// the stack's access callbacks and application code may touch the same value
// at the same time.
package attval

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattmgr/nmgatt/bledefs"
)

type Value struct {
	buf    []byte
	length int
	maxLen int
	ts     time.Time
	mtx    sync.Mutex
}

func clampMax(maxLen int) int {
	if maxLen > bledefs.BLE_ATT_ATTR_MAX_LEN {
		return bledefs.BLE_ATT_ATTR_MAX_LEN
	}
	if maxLen < 0 {
		return 0
	}
	return maxLen
}

// Creates an empty value with room for initLen bytes before its first
// reallocation.  maxLen is clamped to the ATT maximum of 512.
func New(initLen int, maxLen int) *Value {
	maxLen = clampMax(maxLen)
	if initLen > maxLen {
		initLen = maxLen
	}
	if initLen < 0 {
		initLen = 0
	}

	return &Value{
		buf:    make([]byte, initLen),
		maxLen: maxLen,
	}
}

// Creates a value with the default initial capacity.
func NewDflt(maxLen int) *Value {
	return New(bledefs.BLE_ATT_VALUE_INIT_LEN, maxLen)
}

// Creates a value holding a copy of b.  The maximum length is raised to fit
// b if necessary, up to the ATT maximum; anything beyond that is dropped.
func NewFromBytes(b []byte, maxLen int) *Value {
	if len(b) > maxLen {
		maxLen = len(b)
	}

	v := New(len(b), maxLen)
	if len(b) > v.maxLen {
		log.Warnf("attribute value truncated; len=%d max=%d", len(b), v.maxLen)
		b = b[:v.maxLen]
	}
	v.setNoLock(b, time.Time{})

	return v
}

func (v *Value) growNoLock(newLen int) {
	if newLen > len(v.buf) {
		nb := make([]byte, newLen)
		copy(nb, v.buf[:v.length])
		v.buf = nb
	}
}

func (v *Value) setNoLock(data []byte, ts time.Time) {
	v.growNoLock(len(data))
	copy(v.buf, data)
	v.length = len(data)
	v.ts = ts
}

// Replaces the contents.  Fails without modifying the value if data is longer
// than the maximum length.
func (v *Value) Set(data []byte) bool {
	now := time.Now()

	v.mtx.Lock()
	defer v.mtx.Unlock()

	if len(data) > v.maxLen {
		log.Warnf("value exceeds max, len=%d, max=%d", len(data), v.maxLen)
		return false
	}

	v.setNoLock(data, now)
	return true
}

func (v *Value) SetString(s string) bool {
	return v.Set([]byte(s))
}

// Appends data to the end of the value.  Appending nothing is a successful
// no-op; overflowing the maximum length fails without modification.
func (v *Value) Append(data []byte) bool {
	if len(data) == 0 {
		return true
	}

	now := time.Now()

	v.mtx.Lock()
	defer v.mtx.Unlock()

	newLen := v.length + len(data)
	if newLen > v.maxLen {
		log.Warnf("val > max, len=%d, max=%d", len(data), v.maxLen)
		return false
	}

	v.growNoLock(newLen)
	copy(v.buf[v.length:], data)
	v.length = newLen
	v.ts = now

	return true
}

func (v *Value) AppendValue(other *Value) bool {
	return v.Append(other.Bytes())
}

// Returns a copy of the contents and the time of the last modification.
func (v *Value) Get() ([]byte, time.Time) {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	b := make([]byte, v.length)
	copy(b, v.buf[:v.length])
	return b, v.ts
}

func (v *Value) Bytes() []byte {
	b, _ := v.Get()
	return b
}

func (v *Value) String() string {
	return string(v.Bytes())
}

// Copies up to n bytes starting at off.  Used to serve long reads in pieces.
func (v *Value) ReadAt(off int, n int) []byte {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	if off >= v.length || n <= 0 {
		return []byte{}
	}

	end := off + n
	if end > v.length {
		end = v.length
	}

	b := make([]byte, end-off)
	copy(b, v.buf[off:end])
	return b
}

// Runs fn with the current contents while holding the value's lock.  fn must
// not retain the slice or call back into the value.
func (v *Value) WithLock(fn func(b []byte)) {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	fn(v.buf[:v.length])
}

func (v *Value) Len() int {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	return v.length
}

func (v *Value) Cap() int {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	return len(v.buf)
}

func (v *Value) MaxLen() int {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	return v.maxLen
}

func (v *Value) Timestamp() time.Time {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	return v.ts
}

// Empties the value.  Capacity is retained.
func (v *Value) Clear() {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	v.length = 0
	v.ts = time.Time{}
}

// Two values are equal if they hold the same bytes.  Capacity, maximum, and
// timestamp are not compared.
func (v *Value) Equal(other *Value) bool {
	if v == other {
		return true
	}
	if other == nil {
		return false
	}

	return bytes.Equal(v.Bytes(), other.Bytes())
}

// Returns a deep copy, including capacity and timestamp.
func (v *Value) Copy() *Value {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	c := &Value{
		buf:    make([]byte, len(v.buf)),
		length: v.length,
		maxLen: v.maxLen,
		ts:     v.ts,
	}
	copy(c.buf, v.buf[:v.length])

	return c
}

// Replaces this value with a deep copy of src.
func (v *Value) CopyFrom(src *Value) {
	if v == src {
		return
	}

	c := src.Copy()

	v.mtx.Lock()
	defer v.mtx.Unlock()

	if len(c.buf) < len(v.buf) {
		// Capacity never shrinks.
		c.growNoLock(len(v.buf))
	}
	v.buf = c.buf
	v.length = c.length
	v.maxLen = c.maxLen
	v.ts = c.ts
}

// Moves the contents into a new value and leaves this one empty with no
// backing buffer.
func (v *Value) Take() *Value {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	t := &Value{
		buf:    v.buf,
		length: v.length,
		maxLen: v.maxLen,
		ts:     v.ts,
	}

	v.buf = []byte{}
	v.length = 0
	v.ts = time.Time{}

	return t
}

// Typed accessors.  Multi-byte integers are little-endian, as on the air.
// The getters report false if the value is too short.

func (v *Value) SetUint8(val uint8) bool {
	return v.Set([]byte{val})
}

func (v *Value) SetUint16(val uint16) bool {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, val)
	return v.Set(b)
}

func (v *Value) SetUint32(val uint32) bool {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, val)
	return v.Set(b)
}

func (v *Value) Uint8() (uint8, bool) {
	b := v.Bytes()
	if len(b) < 1 {
		return 0, false
	}
	return b[0], true
}

func (v *Value) Uint16() (uint16, bool) {
	b := v.Bytes()
	if len(b) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (v *Value) Uint32() (uint32, bool) {
	b := v.Bytes()
	if len(b) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}
