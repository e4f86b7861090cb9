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

package gatts

import (
	"sync"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
)

func testServerCfg() ServerCfg {
	cfg := NewServerCfg()
	cfg.NoAbortOnFatal = true
	return cfg
}

type chrRecorder struct {
	DefaultCharacteristicCallbacks

	mtx      sync.Mutex
	reads    int
	writes   int
	notifies int
	statuses []int
	subs     []uint16
}

func (r *chrRecorder) OnRead(chr *Characteristic, desc BleConnDesc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.reads++
}

func (r *chrRecorder) OnWrite(chr *Characteristic, desc BleConnDesc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.writes++
}

func (r *chrRecorder) OnNotify(chr *Characteristic) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.notifies++
}

func (r *chrRecorder) OnStatus(chr *Characteristic, status int) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *chrRecorder) OnSubscribe(chr *Characteristic, desc BleConnDesc,
	subValue uint16) {

	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.subs = append(r.subs, subValue)
}

func (r *chrRecorder) Statuses() []int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]int(nil), r.statuses...)
}

func (r *chrRecorder) Subs() []uint16 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]uint16(nil), r.subs...)
}

type dscRecorder struct {
	DefaultDescriptorCallbacks
	reads  int
	writes int
}

func (r *dscRecorder) OnRead(dsc *Descriptor, desc BleConnDesc) {
	r.reads++
}

func (r *dscRecorder) OnWrite(dsc *Descriptor, desc BleConnDesc) {
	r.writes++
}

type srvRecorder struct {
	DefaultServerCallbacks

	mtx         sync.Mutex
	passkey     uint32
	confirm     bool
	connects    []uint16
	disconnects []int
	authDone    int
	mtus        []uint16
}

func (r *srvRecorder) OnConnect(s *Server, desc BleConnDesc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.connects = append(r.connects, desc.ConnHandle)
}

func (r *srvRecorder) OnDisconnect(s *Server, desc BleConnDesc, reason int) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.disconnects = append(r.disconnects, reason)
}

func (r *srvRecorder) OnMTUChange(mtu uint16, desc BleConnDesc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.mtus = append(r.mtus, mtu)
}

func (r *srvRecorder) OnPassKeyRequest() uint32 {
	return r.passkey
}

func (r *srvRecorder) OnConfirmPIN(pin uint32) bool {
	return r.confirm
}

func (r *srvRecorder) OnAuthenticationComplete(desc BleConnDesc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.authDone++
}

func (r *srvRecorder) Connects() []uint16 {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]uint16(nil), r.connects...)
}

func (r *srvRecorder) Disconnects() []int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]int(nil), r.disconnects...)
}
