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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
	"mynewt.apache.org/gattmgr/nmgatt/simhost"
)

const simWait = 2 * time.Second

// A server on a simulated peripheral, and a bare simulated central.
type simRig struct {
	hub     *simhost.Hub
	periph  *simhost.Host
	central *simhost.Host
	srv     *Server
	cevs    chan hostif.Event
	conn    uint16
}

func newSimRig(t *testing.T, cfg ServerCfg) *simRig {
	r := &simRig{
		hub:  simhost.NewHub(),
		cevs: make(chan hostif.Event, 64),
	}
	t.Cleanup(r.hub.Stop)

	pcfg := simhost.NewHostCfg()
	pcfg.Name = "periph"
	pcfg.Addr = BleDev{Addr: BleAddr{Bytes: [6]byte{1, 0, 0, 0, 0, 0xc0}}}

	ccfg := simhost.NewHostCfg()
	ccfg.Name = "central"
	ccfg.Addr = BleDev{Addr: BleAddr{Bytes: [6]byte{2, 0, 0, 0, 0, 0xc0}}}

	var err error
	r.periph, err = r.hub.NewHost(pcfg)
	require.NoError(t, err)
	r.central, err = r.hub.NewHost(ccfg)
	require.NoError(t, err)

	r.srv = NewServer(r.periph, cfg)
	r.periph.SetGapEventFn(r.srv.HandleGapEvent)
	r.central.SetGapEventFn(func(ev hostif.Event) int {
		r.cevs <- ev
		return 0
	})

	return r
}

func (r *simRig) waitCentral(t *testing.T, typ hostif.EventType) hostif.Event {
	timer := time.NewTimer(simWait)
	defer timer.Stop()

	for {
		select {
		case ev := <-r.cevs:
			if ev.Type() == typ {
				return ev
			}
		case <-timer.C:
			require.FailNow(t, "timeout waiting for central event", typ.String())
			return nil
		}
	}
}

func (r *simRig) connect(t *testing.T) {
	require.NoError(t, r.srv.StartAdvertising())
	require.Equal(t, 0, r.central.GapConnect(r.periph.OwnAddr()))

	ev := r.waitCentral(t, hostif.EVENT_CONNECT).(*hostif.ConnectEvent)
	require.Equal(t, 0, ev.Status)
	r.conn = ev.ConnHandle

	require.Eventually(t, func() bool {
		return r.srv.ConnectedCount() == 1
	}, simWait, time.Millisecond)
}

func (r *simRig) disconnect(t *testing.T) {
	require.Equal(t, 0, r.central.GapTerminate(r.conn,
		hostif.BLE_ERR_REM_USER_CONN_TERM))
	r.waitCentral(t, hostif.EVENT_DISCONNECT)

	// Advertising resumes once the server has handled the disconnect.
	require.Eventually(t, r.periph.AdvActive, simWait, time.Millisecond)
	assert.Equal(t, 0, r.srv.ConnectedCount())
}

// Lists the services the central can discover.
func (r *simRig) discover(t *testing.T) []BleUuid {
	done := make(chan []BleUuid, 1)
	var uuids []BleUuid

	rc := r.central.GattcDiscAllSvcs(r.conn,
		func(conn uint16, status int, svc *hostif.SvcInfo) int {
			if status == 0 {
				uuids = append(uuids, svc.Uuid)
				return 0
			}
			assert.Equal(t, hostif.BLE_HS_EDONE, status)
			done <- uuids
			return 0
		})
	require.Equal(t, 0, rc)

	select {
	case u := <-done:
		return u
	case <-time.After(simWait):
		require.FailNow(t, "discovery timeout")
		return nil
	}
}

func containsUuid(uuids []BleUuid, u BleUuid) bool {
	for _, x := range uuids {
		if x.Equal(u) {
			return true
		}
	}
	return false
}

func TestSimHideThenRebuild(t *testing.T) {
	cfg := testServerCfg()
	cfg.AutoRestart = true
	r := newSimRig(t, cfg)

	batUuid := NewBleUuid16(0x180f)

	hr := r.srv.CreateService(hrSvcUuid)
	hr.CreateCharacteristic(hrChrUuid, BLE_GATT_F_READ|BLE_GATT_F_NOTIFY, 8)
	bat := r.srv.CreateService(batUuid)
	bat.CreateCharacteristic(NewBleUuid16(0x2a19), BLE_GATT_F_READ, 1)
	require.NoError(t, r.srv.Start())

	r.connect(t)
	assert.True(t, containsUuid(r.discover(t), hrSvcUuid))

	// Hidden immediately; still registered until the peer leaves.
	require.NoError(t, r.srv.RemoveService(hr, false))
	assert.False(t, r.periph.SvcVisible(hrSvcUuid))
	assert.True(t, r.srv.Started())

	uuids := r.discover(t)
	assert.False(t, containsUuid(uuids, hrSvcUuid))
	assert.True(t, containsUuid(uuids, batUuid))

	r.disconnect(t)

	// Rebuilt without the hidden service and started again.
	assert.True(t, r.srv.Started())
	_, rc := r.periph.GattsFindSvc(hrSvcUuid)
	assert.Equal(t, hostif.BLE_HS_ENOENT, rc)
	_, rc = r.periph.GattsFindSvc(batUuid)
	assert.Equal(t, 0, rc)
	assert.Equal(t, REMOVE_STATE_HIDDEN, hr.State())
	assert.True(t, r.periph.AdvActive())

	// Restoring it changes the database again.
	r.srv.AddService(hr)
	assert.True(t, r.srv.Started())
	assert.True(t, r.periph.SvcVisible(hrSvcUuid))
	assert.NotEqual(t, BLE_CONN_HANDLE_NONE, hr.Handle())

	r.connect(t)
	assert.True(t, containsUuid(r.discover(t), hrSvcUuid))
}

func TestSimResetDeferredWithConnection(t *testing.T) {
	r := newSimRig(t, testServerCfg())

	svc := r.srv.CreateService(hrSvcUuid)
	svc.CreateCharacteristic(hrChrUuid, BLE_GATT_F_READ, 8)
	require.NoError(t, r.srv.Start())

	r.connect(t)

	r.srv.ResetGATT()
	assert.True(t, r.srv.Started())
	assert.True(t, r.periph.GattsStarted())

	r.disconnect(t)

	r.srv.ResetGATT()
	assert.False(t, r.srv.Started())
	assert.False(t, r.periph.GattsStarted())

	require.NoError(t, r.srv.Start())
	assert.True(t, r.periph.GattsStarted())
}

func TestSimIndicateAck(t *testing.T) {
	r := newSimRig(t, testServerCfg())

	svc := r.srv.CreateService(hrSvcUuid)
	chr := svc.CreateCharacteristic(hrChrUuid,
		BLE_GATT_F_READ|BLE_GATT_F_INDICATE, 32)
	rec := &chrRecorder{}
	chr.SetCallbacks(rec)
	chr.SetValue([]byte("72 bpm"))
	require.NoError(t, r.srv.Start())

	r.connect(t)

	// Peer reads the value through the access callback.
	done := make(chan []byte, 1)
	var buf []byte
	require.Equal(t, 0, r.central.GattcReadLong(r.conn, chr.Handle(), 0,
		func(conn uint16, status int, attr *hostif.Attr) int {
			if status == 0 {
				buf = append(buf, attr.Data...)
			} else {
				done <- buf
			}
			return 0
		}))
	select {
	case b := <-done:
		assert.Equal(t, "72 bpm", string(b))
	case <-time.After(simWait):
		require.FailNow(t, "read timeout")
	}

	// Subscribe to indications via the CCCD.
	require.Equal(t, 0, r.central.GattcWriteFlat(r.conn, chr.Handle()+1,
		[]byte{0x02, 0x00},
		func(conn uint16, status int, attr *hostif.Attr) int {
			return 0
		}))
	require.Eventually(t, func() bool {
		return chr.SubscribedCount() == 1
	}, simWait, time.Millisecond)
	assert.Equal(t, []uint16{BLE_CCCD_INDICATE}, rec.Subs())

	for i := 1; i <= 2; i++ {
		chr.Indicate(nil)

		ev := r.waitCentral(t, hostif.EVENT_NOTIFY_RX).(*hostif.NotifyRxEvent)
		assert.True(t, ev.Indication)
		assert.Equal(t, "72 bpm", string(ev.Data))

		// The acknowledgement clears the wait for the next indication.
		require.Eventually(t, func() bool {
			return len(rec.Statuses()) == i
		}, simWait, time.Millisecond)
		assert.Equal(t, hostif.BLE_HS_EDONE, rec.Statuses()[i-1])
	}

	r.disconnect(t)
	assert.Equal(t, []uint16{BLE_CCCD_INDICATE, 0}, rec.Subs())
}

func TestSimAdvertiseAfterRebuild(t *testing.T) {
	// Library defaults: no auto restart, advertise on disconnect.
	cfg := NewServerCfg()
	cfg.NoAbortOnFatal = true
	r := newSimRig(t, cfg)

	batUuid := NewBleUuid16(0x180f)

	hr := r.srv.CreateService(hrSvcUuid)
	hr.CreateCharacteristic(hrChrUuid, BLE_GATT_F_READ, 8)
	bat := r.srv.CreateService(batUuid)
	bat.CreateCharacteristic(NewBleUuid16(0x2a19), BLE_GATT_F_READ, 1)
	require.NoError(t, r.srv.Start())

	r.connect(t)
	require.NoError(t, r.srv.RemoveService(bat, false))
	r.disconnect(t)

	// Advertising resumed over a started database.
	assert.True(t, r.srv.Started())
	assert.True(t, r.periph.GattsStarted())

	r.connect(t)
	uuids := r.discover(t)
	assert.True(t, containsUuid(uuids, NewBleUuid16(uint16(BLE_SVC_UUID16_GAP))))
	assert.True(t, containsUuid(uuids, NewBleUuid16(uint16(BLE_SVC_UUID16_GATT))))
	assert.True(t, containsUuid(uuids, hrSvcUuid))
	assert.False(t, containsUuid(uuids, batUuid))
}
