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

package gattc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gatts"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
	"mynewt.apache.org/gattmgr/nmgatt/simhost"
)

const simWait = 2 * time.Second

var (
	hrSvcUuid   = NewBleUuid16(0x180d)
	hrMeasUuid  = NewBleUuid16(0x2a37)
	hrSecUuid   = NewBleUuid16(0x2a38)
	hrCtrlUuid  = NewBleUuid16(0x2a39)
	userDscUuid = NewBleUuid16(0x2901)
	cccdUuid    = NewBleUuid16(uint16(BLE_DSC_UUID16_CCCD))
)

// Wraps the central's stack to count calls and, optionally, to compare
// service UUIDs by their encoded width the way a real stack does.
type spyStack struct {
	hostif.Stack

	strict bool

	mtx   sync.Mutex
	calls map[string]int
	frags []int
}

func newSpyStack(inner hostif.Stack) *spyStack {
	return &spyStack{
		Stack: inner,
		calls: map[string]int{},
	}
}

func (s *spyStack) record(name string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.calls[name]++
}

func (s *spyStack) count(name string) int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.calls[name]
}

func (s *spyStack) fragments() []int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return append([]int{}, s.frags...)
}

func (s *spyStack) GattcReadLong(conn uint16, handle uint16, offset int,
	cb hostif.AttrFn) int {

	s.record("GattcReadLong")
	return s.Stack.GattcReadLong(conn, handle, offset,
		func(conn uint16, status int, attr *hostif.Attr) int {
			if status == 0 && attr != nil {
				s.mtx.Lock()
				s.frags = append(s.frags, len(attr.Data))
				s.mtx.Unlock()
			}
			return cb(conn, status, attr)
		})
}

func (s *spyStack) GattcWriteFlat(conn uint16, handle uint16, data []byte,
	cb hostif.AttrFn) int {

	s.record("GattcWriteFlat")
	return s.Stack.GattcWriteFlat(conn, handle, data, cb)
}

func (s *spyStack) GattcWriteLong(conn uint16, handle uint16, offset int,
	data []byte, cb hostif.AttrFn) int {

	s.record("GattcWriteLong")
	return s.Stack.GattcWriteLong(conn, handle, offset, data, cb)
}

func (s *spyStack) GattcWriteNoRsp(conn uint16, handle uint16,
	data []byte) int {

	s.record("GattcWriteNoRsp")
	return s.Stack.GattcWriteNoRsp(conn, handle, data)
}

func (s *spyStack) GattcDiscSvcByUuid(conn uint16, uuid BleUuid,
	cb hostif.SvcFn) int {

	s.record("GattcDiscSvcByUuid")
	if !s.strict {
		return s.Stack.GattcDiscSvcByUuid(conn, uuid, cb)
	}

	return s.Stack.GattcDiscSvcByUuid(conn, uuid,
		func(conn uint16, status int, svc *hostif.SvcInfo) int {
			if status == 0 && svc.Uuid.Type != uuid.Type {
				return 0
			}
			return cb(conn, status, svc)
		})
}

func (s *spyStack) GattcDiscAllSvcs(conn uint16, cb hostif.SvcFn) int {
	s.record("GattcDiscAllSvcs")
	return s.Stack.GattcDiscAllSvcs(conn, cb)
}

func (s *spyStack) SecurityInitiate(conn uint16) int {
	s.record("SecurityInitiate")
	return s.Stack.SecurityInitiate(conn)
}

type clientRecorder struct {
	DefaultClientCallbacks

	mtx         sync.Mutex
	connects    int
	disconnects []int
}

func (r *clientRecorder) OnConnect(c *Client) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.connects++
}

func (r *clientRecorder) OnDisconnect(c *Client, reason int) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.disconnects = append(r.disconnects, reason)
}

func (r *clientRecorder) disconnectCount() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	return len(r.disconnects)
}

type rigOpts struct {
	central simhost.HostCfg
	periph  simhost.HostCfg
	client  ClientCfg
	svcUuid BleUuid
	strict  bool
}

// A peripheral running a heart-rate style server and a central with a
// client for it.
type rig struct {
	hub     *simhost.Hub
	periph  *simhost.Host
	central *simhost.Host
	spy     *spyStack

	srv     *gatts.Server
	meas    *gatts.Characteristic
	userDsc *gatts.Descriptor
	sec     *gatts.Characteristic
	ctrl    *gatts.Characteristic

	cli *Client
	cbs *clientRecorder
}

func newRig(t *testing.T, mod func(o *rigOpts)) *rig {
	o := rigOpts{
		central: simhost.NewHostCfg(),
		periph:  simhost.NewHostCfg(),
		client:  NewClientCfg(),
		svcUuid: hrSvcUuid,
	}
	o.periph.Name = "periph"
	o.periph.Addr = BleDev{Addr: BleAddr{Bytes: [6]byte{1, 0, 0, 0, 0, 0xc0}}}
	o.central.Name = "central"
	o.central.Addr = BleDev{Addr: BleAddr{Bytes: [6]byte{2, 0, 0, 0, 0, 0xc0}}}
	o.client.ConnectTimeout = simWait

	if mod != nil {
		mod(&o)
	}

	r := &rig{
		hub: simhost.NewHub(),
		cbs: &clientRecorder{},
	}
	t.Cleanup(r.hub.Stop)

	var err error
	r.periph, err = r.hub.NewHost(o.periph)
	require.NoError(t, err)
	r.central, err = r.hub.NewHost(o.central)
	require.NoError(t, err)

	scfg := gatts.NewServerCfg()
	scfg.NoAbortOnFatal = true
	r.srv = gatts.NewServer(r.periph, scfg)
	r.periph.SetGapEventFn(r.srv.HandleGapEvent)

	svc := r.srv.CreateService(o.svcUuid)
	r.meas = svc.CreateCharacteristic(hrMeasUuid,
		BLE_GATT_F_READ|BLE_GATT_F_WRITE|BLE_GATT_F_NOTIFY|
			BLE_GATT_F_INDICATE, BLE_ATT_ATTR_MAX_LEN)
	r.userDsc = r.meas.CreateDescriptor(userDscUuid,
		BLE_GATT_F_READ|BLE_GATT_F_WRITE, 64)
	r.userDsc.SetValue([]byte("heart rate"))
	r.sec = svc.CreateCharacteristic(hrSecUuid,
		BLE_GATT_F_READ|BLE_GATT_F_READ_ENC, 64)
	r.sec.SetValue([]byte("secret"))
	r.ctrl = svc.CreateCharacteristic(hrCtrlUuid,
		BLE_GATT_F_WRITE|BLE_GATT_F_WRITE_NO_RSP, BLE_ATT_ATTR_MAX_LEN)
	require.NoError(t, r.srv.Start())

	r.spy = newSpyStack(r.central)
	r.spy.strict = o.strict
	r.cli = NewClient(r.spy, r.periph.OwnAddr(), o.client)
	r.cli.SetCallbacks(r.cbs)
	r.central.SetGapEventFn(r.cli.HandleGapEvent)

	return r
}

func (r *rig) connect(t *testing.T) {
	require.NoError(t, r.srv.StartAdvertising())
	require.NoError(t, r.cli.Connect())
	require.True(t, r.cli.IsConnected())
}

func (r *rig) chr(t *testing.T, uuid BleUuid) *RemoteCharacteristic {
	svc, err := r.cli.GetService(hrSvcUuid)
	require.NoError(t, err)
	require.NotNil(t, svc)

	chr, err := svc.GetCharacteristic(uuid)
	require.NoError(t, err)
	require.NotNil(t, chr)

	return chr
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
