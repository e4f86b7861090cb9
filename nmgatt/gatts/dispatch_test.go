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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

func peerDesc(conn uint16, encrypted bool) BleConnDesc {
	return BleConnDesc{
		ConnHandle:     conn,
		PeerIdAddrType: BLE_ADDR_TYPE_RANDOM,
		PeerIdAddr:     BleAddr{Bytes: [6]byte{6, 5, 4, 3, 2, 1}},
		Role:           BLE_ROLE_SLAVE,
		Encrypted:      encrypted,
	}
}

func TestConnectDisconnect(t *testing.T) {
	m := &mockStack{}
	srv, _, _ := startedServer(t, m, testServerCfg())
	rec := &srvRecorder{}
	srv.SetCallbacks(rec)

	m.On("GapConnFind", uint16(4)).Return(peerDesc(4, false), 0)

	srv.HandleGapEvent(&hostif.ConnectEvent{ConnHandle: 4})
	assert.Equal(t, []uint16{4}, srv.PeerDevices())
	assert.Equal(t, []uint16{4}, rec.Connects())

	desc, err := srv.PeerInfo(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), desc.ConnHandle)
	_, err = srv.PeerInfo(1)
	assert.Error(t, err)

	// A failed connection resumes advertising.
	m.calls = nil
	srv.HandleGapEvent(&hostif.ConnectEvent{Status: hostif.BLE_HS_ETIMEOUT})
	assert.Equal(t, []string{"AdvStart"}, m.calls)
	assert.Equal(t, 1, srv.ConnectedCount())

	m.calls = nil
	srv.AdvertiseOnDisconnect(false)
	reason := hostif.HciErr(hostif.BLE_ERR_REM_USER_CONN_TERM)
	srv.HandleGapEvent(&hostif.DisconnectEvent{
		Reason: reason,
		Desc:   peerDesc(4, false),
	})
	assert.Equal(t, 0, srv.ConnectedCount())
	assert.Equal(t, []int{reason}, rec.Disconnects())
	assert.Empty(t, m.calls)
}

func TestDisconnectHostReset(t *testing.T) {
	m := &mockStack{}
	srv, _, _ := startedServer(t, m, testServerCfg())

	var resets []int
	srv.SetHostResetHook(func(reason int) {
		resets = append(resets, reason)
	})

	srv.HandleGapEvent(&hostif.DisconnectEvent{
		Reason: hostif.HciErr(hostif.BLE_ERR_CONN_SPVN_TMO),
	})
	assert.Empty(t, resets)

	srv.HandleGapEvent(&hostif.DisconnectEvent{
		Reason: hostif.BLE_HS_ETIMEOUT_HCI,
	})
	assert.Equal(t, []int{hostif.BLE_HS_ETIMEOUT_HCI}, resets)
}

func TestRepeatPairing(t *testing.T) {
	m := &mockStack{}
	srv := NewServer(m, testServerCfg())

	m.On("GapConnFind", uint16(5)).
		Return(BleConnDesc{}, hostif.BLE_HS_ENOTCONN)
	assert.Equal(t, hostif.BLE_GAP_REPEAT_PAIRING_IGNORE,
		srv.HandleGapEvent(&hostif.RepeatPairingEvent{ConnHandle: 5}))
	m.AssertNotCalled(t, "StoreDeletePeer", mock.Anything)

	desc := peerDesc(6, false)
	m.On("GapConnFind", uint16(6)).Return(desc, 0)
	m.On("StoreDeletePeer", desc.PeerDev()).Return(0)
	assert.Equal(t, hostif.BLE_GAP_REPEAT_PAIRING_RETRY,
		srv.HandleGapEvent(&hostif.RepeatPairingEvent{ConnHandle: 6}))
	m.AssertCalled(t, "StoreDeletePeer", desc.PeerDev())
}

func TestEncChange(t *testing.T) {
	m := &mockStack{}
	srv := NewServer(m, testServerCfg())
	rec := &srvRecorder{}
	srv.SetCallbacks(rec)

	m.On("GapConnFind", uint16(1)).
		Return(BleConnDesc{}, hostif.BLE_HS_ENOTCONN)
	assert.Equal(t, hostif.BLE_ATT_ERR_INVALID_HANDLE,
		srv.HandleGapEvent(&hostif.EncChangeEvent{ConnHandle: 1}))

	m.On("GapConnFind", uint16(2)).Return(peerDesc(2, true), 0)
	assert.Equal(t, 0,
		srv.HandleGapEvent(&hostif.EncChangeEvent{ConnHandle: 2}))
	assert.Equal(t, 1, rec.authDone)
}

func TestPasskeyActions(t *testing.T) {
	tests := []struct {
		name    string
		passkey uint32
		confirm bool
		ev      hostif.PasskeyEvent
		io      *BleSmIo
	}{
		{
			name:    "disp configured",
			passkey: 654321,
			ev:      hostif.PasskeyEvent{Action: BLE_SM_IOACT_DISP},
			io:      &BleSmIo{Action: BLE_SM_IOACT_DISP, Passkey: 654321},
		},
		{
			name:    "disp default asks application",
			passkey: BLE_GAP_PASSKEY_DFLT,
			ev:      hostif.PasskeyEvent{Action: BLE_SM_IOACT_DISP},
			io:      &BleSmIo{Action: BLE_SM_IOACT_DISP, Passkey: 111111},
		},
		{
			name: "numcmp rejected",
			ev: hostif.PasskeyEvent{
				Action: BLE_SM_IOACT_NUMCMP,
				NumCmp: 246810,
			},
			io: &BleSmIo{Action: BLE_SM_IOACT_NUMCMP},
		},
		{
			name:    "numcmp accepted",
			confirm: true,
			ev: hostif.PasskeyEvent{
				Action: BLE_SM_IOACT_NUMCMP,
				NumCmp: 246810,
			},
			io: &BleSmIo{Action: BLE_SM_IOACT_NUMCMP, NumCmpAccept: true},
		},
		{
			name: "input",
			ev:   hostif.PasskeyEvent{Action: BLE_SM_IOACT_INPUT},
			io:   &BleSmIo{Action: BLE_SM_IOACT_INPUT, Passkey: 111111},
		},
		{
			name: "oob",
			ev:   hostif.PasskeyEvent{Action: BLE_SM_IOACT_OOB},
			io:   &BleSmIo{Action: BLE_SM_IOACT_OOB},
		},
		{
			name: "none",
			ev:   hostif.PasskeyEvent{Action: BLE_SM_IOACT_NONE},
		},
	}

	for _, tt := range tests {
		m := &mockStack{}
		m.On("SmInjectIo", uint16(7), mock.Anything).Return(0)

		cfg := testServerCfg()
		if tt.passkey != 0 {
			cfg.Passkey = tt.passkey
		}
		srv := NewServer(m, cfg)
		srv.SetCallbacks(&srvRecorder{passkey: 111111, confirm: tt.confirm})

		ev := tt.ev
		ev.ConnHandle = 7
		assert.Equal(t, 0, srv.HandleGapEvent(&ev), tt.name)

		if tt.io == nil {
			m.AssertNotCalled(t, "SmInjectIo", mock.Anything, mock.Anything)
		} else {
			m.AssertCalled(t, "SmInjectIo", uint16(7), *tt.io)
		}
	}
}

func TestSubscribe(t *testing.T) {
	m := &mockStack{}
	srv, svc, chr := startedServer(t, m, testServerCfg())
	rec := &chrRecorder{}
	chr.SetCallbacks(rec)
	chr.handle = 21

	// A connected peer defers the rebuild.
	srv.addPeer(9)
	secure := svc.CreateCharacteristic(u16(0x2a3b),
		BLE_GATT_F_NOTIFY|BLE_GATT_F_READ_ENC, 8)
	secure.handle = 23
	srv.mtx.Lock()
	srv.notifyChrs = append(srv.notifyChrs, secure)
	srv.mtx.Unlock()

	m.On("GapConnFind", uint16(1)).Return(peerDesc(1, false), 0)
	m.On("SecurityInitiate", uint16(1)).Return(0)

	// Unknown attribute.
	srv.HandleGapEvent(&hostif.SubscribeEvent{ConnHandle: 1, AttrHandle: 99,
		CurNotify: true})
	assert.Empty(t, rec.Subs())

	srv.HandleGapEvent(&hostif.SubscribeEvent{ConnHandle: 1, AttrHandle: 21,
		CurNotify: true, CurIndicate: true})
	assert.Equal(t, []uint16{3}, rec.Subs())
	assert.Equal(t, map[uint16]uint16{1: 3}, chr.Subscribers())
	m.AssertNotCalled(t, "SecurityInitiate", mock.Anything)

	srv.HandleGapEvent(&hostif.SubscribeEvent{ConnHandle: 1, AttrHandle: 21,
		PrevNotify: true, PrevIndicate: true})
	assert.Equal(t, []uint16{3, 0}, rec.Subs())
	assert.Equal(t, 0, chr.SubscribedCount())

	// A characteristic that needs encryption starts security.
	srv.HandleGapEvent(&hostif.SubscribeEvent{ConnHandle: 1, AttrHandle: 23,
		CurNotify: true})
	m.AssertCalled(t, "SecurityInitiate", uint16(1))
	assert.Equal(t, 1, secure.SubscribedCount())
}

func TestIndicateWait(t *testing.T) {
	m := &mockStack{}
	srv, _, chr := startedServer(t, m, testServerCfg())
	rec := &chrRecorder{}
	chr.SetCallbacks(rec)
	chr.handle = 21
	chr.subs[1] = BLE_CCCD_INDICATE

	data := []byte{1, 2, 3}
	m.On("AttMtu", uint16(1)).Return(uint16(23))
	m.On("GattsIndicate", uint16(1), uint16(21), data).Return(0)

	chr.Indicate(data)
	chr.Indicate(data)
	m.AssertNumberOfCalls(t, "GattsIndicate", 1)
	assert.Equal(t, 2, rec.notifies)

	// Sent but not yet acknowledged.
	srv.HandleGapEvent(&hostif.NotifyTxEvent{ConnHandle: 1, AttrHandle: 21,
		Indication: true})
	chr.Indicate(data)
	m.AssertNumberOfCalls(t, "GattsIndicate", 1)
	assert.Empty(t, rec.Statuses())

	// Acknowledged.
	srv.HandleGapEvent(&hostif.NotifyTxEvent{ConnHandle: 1, AttrHandle: 21,
		Indication: true, Status: hostif.BLE_HS_EDONE})
	assert.Equal(t, []int{hostif.BLE_HS_EDONE}, rec.Statuses())

	chr.Indicate(data)
	m.AssertNumberOfCalls(t, "GattsIndicate", 2)
}

func TestIndicateFailureClearsWait(t *testing.T) {
	m := &mockStack{}
	_, _, chr := startedServer(t, m, testServerCfg())
	rec := &chrRecorder{}
	chr.SetCallbacks(rec)
	chr.handle = 21
	chr.subs[1] = BLE_CCCD_INDICATE

	m.On("AttMtu", uint16(1)).Return(uint16(23))
	m.On("GattsIndicate", uint16(1), uint16(21), mock.Anything).
		Return(hostif.BLE_HS_ENOMEM)

	chr.Indicate([]byte{1})
	chr.Indicate([]byte{2})
	m.AssertNumberOfCalls(t, "GattsIndicate", 2)
	assert.Equal(t, []int{hostif.BLE_HS_ENOMEM, hostif.BLE_HS_ENOMEM},
		rec.Statuses())
}

func TestNotifyTargets(t *testing.T) {
	m := &mockStack{}
	_, _, chr := startedServer(t, m, testServerCfg())
	chr.handle = 21
	chr.subs[1] = BLE_CCCD_NOTIFY
	chr.subs[2] = BLE_CCCD_INDICATE
	chr.subs[3] = BLE_CCCD_NOTIFY | BLE_CCCD_INDICATE

	long := make([]byte, 40)
	for i := range long {
		long[i] = byte(i)
	}

	m.On("AttMtu", mock.Anything).Return(uint16(23))
	m.On("GattsNotify", mock.Anything, uint16(21), mock.Anything).Return(0)

	chr.Notify(long, true, BLE_CONN_HANDLE_NONE)
	m.AssertNumberOfCalls(t, "GattsNotify", 2)
	m.AssertCalled(t, "GattsNotify", uint16(1), uint16(21), long[:20])
	m.AssertCalled(t, "GattsNotify", uint16(3), uint16(21), long[:20])

	// A single target.
	chr.Notify(nil, true, 3)
	m.AssertNumberOfCalls(t, "GattsNotify", 3)
	m.AssertCalled(t, "GattsNotify", uint16(3), uint16(21), []byte{})
}

func TestMtuAndUnknownNotifyTx(t *testing.T) {
	m := &mockStack{}
	srv, _, _ := startedServer(t, m, testServerCfg())
	rec := &srvRecorder{}
	srv.SetCallbacks(rec)

	m.On("GapConnFind", uint16(1)).Return(peerDesc(1, false), 0)
	srv.HandleGapEvent(&hostif.MtuEvent{ConnHandle: 1, Value: 185})
	assert.Equal(t, []uint16{185}, rec.mtus)

	assert.Equal(t, 0, srv.HandleGapEvent(&hostif.NotifyTxEvent{
		ConnHandle: 1, AttrHandle: 200, Status: hostif.BLE_HS_EDONE}))
}
