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
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
)

var (
	hrSvcUuid = NewBleUuid16(0x180d)
	hrChrUuid = NewBleUuid16(0x2a37)
)

func u16(v uint16) BleUuid {
	return NewBleUuid16(v)
}

func TestServiceTableActiveAndDeleted(t *testing.T) {
	tests := []struct {
		active  int
		deleted int
		hidden  int
	}{
		{active: 1},
		{active: 5, deleted: 3},
		{active: 2, deleted: 2, hidden: 2},
		{deleted: 4},
	}

	for _, tt := range tests {
		m := &mockStack{}
		var defs hostif.SvcDefs
		m.On("GattsCountCfg", mock.Anything).
			Run(func(args mock.Arguments) {
				defs = args.Get(0).(hostif.SvcDefs)
			}).Return(0)
		m.On("GattsAddSvcs", mock.Anything).Return(0)

		srv := NewServer(m, testServerCfg())
		svc := srv.CreateService(hrSvcUuid)

		var next uint16 = 0xff00
		create := func() *Characteristic {
			next++
			return svc.CreateCharacteristic(u16(next), BLE_GATT_F_READ, 20)
		}

		for i := 0; i < tt.active; i++ {
			create()
		}
		for i := 0; i < tt.deleted; i++ {
			svc.RemoveCharacteristic(create(), true)
		}
		for i := 0; i < tt.hidden; i++ {
			svc.RemoveCharacteristic(create(), false)
		}

		require.NoError(t, svc.Start())
		require.Len(t, defs, 1)

		assert.Len(t, defs[0].Chrs, tt.active, "%+v", tt)
		assert.Len(t, svc.Characteristics(), tt.active+tt.hidden, "%+v", tt)
		for _, chr := range svc.Characteristics() {
			assert.NotEqual(t, REMOVE_STATE_DELETED, chr.State())
		}
		assert.True(t, svc.IsStarted())
	}
}

func TestDescriptorTable(t *testing.T) {
	m := &mockStack{}
	var defs hostif.SvcDefs
	m.On("GattsCountCfg", mock.Anything).
		Run(func(args mock.Arguments) {
			defs = args.Get(0).(hostif.SvcDefs)
		}).Return(0)
	m.On("GattsAddSvcs", mock.Anything).Return(0)

	srv := NewServer(m, testServerCfg())
	svc := srv.CreateService(hrSvcUuid)
	chr := svc.CreateCharacteristic(hrChrUuid,
		BLE_GATT_F_READ|BLE_GATT_F_NOTIFY, 20)

	keep := chr.CreateDescriptor(u16(0x2901), BLE_GATT_F_READ, 32)
	gone := chr.CreateDescriptor(u16(0x2908),
		BLE_GATT_F_READ|BLE_GATT_F_WRITE_NO_RSP, 2)
	assert.Nil(t, chr.CreateDescriptor(u16(0x2902), BLE_GATT_F_READ, 2))

	chr.RemoveDescriptor(gone, true)

	require.NoError(t, svc.Start())
	require.Len(t, defs[0].Chrs, 1)
	require.Len(t, defs[0].Chrs[0].Dscs, 1)

	d := defs[0].Chrs[0].Dscs[0]
	assert.True(t, d.Uuid.Equal(u16(0x2901)))
	assert.Equal(t, BLE_ATT_F_READ, d.AttFlags)
	assert.Equal(t, BLE_ATT_F_READ|BLE_ATT_F_WRITE, gone.AttFlags())
	assert.Equal(t, []*Descriptor{keep}, chr.Descriptors())
	assert.Nil(t, gone.Characteristic())

	// Stack fills in handles through the table.
	*defs[0].Chrs[0].ValHandle = 12
	*d.Handle = 14
	assert.Equal(t, uint16(12), chr.Handle())
	assert.Equal(t, keep, chr.GetDescriptorByHandle(14))
	assert.Equal(t, keep, chr.GetDescriptorByUuid(u16(0x2901)))
	assert.Nil(t, chr.GetDescriptorByUuid(u16(0x2908)))
}

func TestServiceStartCountFailure(t *testing.T) {
	m := &mockStack{}
	m.On("GattsCountCfg", mock.Anything).Return(hostif.BLE_HS_ENOMEM)

	srv := NewServer(m, testServerCfg())
	svc := srv.CreateService(hrSvcUuid)
	svc.CreateCharacteristic(hrChrUuid, BLE_GATT_F_READ, 20)

	err := svc.Start()
	require.Error(t, err)
	assert.Equal(t, hostif.BLE_HS_ENOMEM, nmxutil.HostStatus(err))
	assert.False(t, svc.IsStarted())
	m.AssertNotCalled(t, "GattsAddSvcs", mock.Anything)
}

func TestServiceStartInvalidTable(t *testing.T) {
	m := &mockStack{}
	m.On("GattsCountCfg", mock.Anything).Return(hostif.BLE_HS_EINVAL)

	srv := NewServer(m, testServerCfg())
	svc := srv.CreateService(hrSvcUuid)

	err := svc.Start()
	assert.True(t, nmxutil.IsFatalInit(err))
	assert.False(t, svc.IsStarted())

	// Without the override, a fatal error panics.
	abort := NewServer(m, NewServerCfg())
	svc = abort.CreateService(hrSvcUuid)
	assert.Panics(t, func() { svc.Start() })

	// A detached service has no stack to register with.
	assert.True(t, nmxutil.IsValidation(NewService(hrSvcUuid).Start()))
}

func TestServerStart(t *testing.T) {
	m := &mockStack{}
	m.expectDb()

	srv := NewServer(m, testServerCfg())
	svc := srv.CreateService(hrSvcUuid)
	ntf := svc.CreateCharacteristic(hrChrUuid, BLE_GATT_F_NOTIFY, 20)
	svc.CreateCharacteristic(u16(0x2a38), BLE_GATT_F_READ, 20)
	ind := svc.CreateCharacteristic(u16(0x2a39), BLE_GATT_F_INDICATE, 20)

	// Not started explicitly; the server registers it.
	require.NoError(t, srv.Start())
	assert.True(t, srv.Started())
	assert.True(t, svc.IsStarted())
	assert.Equal(t, uint16(10), svc.Handle())
	assert.Equal(t, uint16(3), srv.ServiceChangedHandle())
	assert.Equal(t, svc, srv.GetServiceByHandle(10))
	assert.Equal(t, svc, srv.GetServiceByUuid(hrSvcUuid.To128(), 0))
	assert.Nil(t, srv.GetServiceByUuid(hrSvcUuid, 1))

	srv.mtx.Lock()
	assert.Equal(t, []*Characteristic{ntf, ind}, srv.notifyChrs)
	srv.mtx.Unlock()

	assert.NotZero(t, srv.Fingerprint())

	// Second start warns only.
	require.NoError(t, srv.Start())
	m.AssertNumberOfCalls(t, "GattsStart", 1)
	m.AssertNumberOfCalls(t, "GattsCountCfg", 1)
}

func TestServerStartFailure(t *testing.T) {
	m := &mockStack{}
	m.On("GattsStart").Return(hostif.BLE_HS_ENOMEM)

	srv := NewServer(m, testServerCfg())

	err := srv.Start()
	assert.True(t, nmxutil.IsFatalInit(err))
	assert.False(t, srv.Started())
}

func startedServer(t *testing.T, m *mockStack, cfg ServerCfg) (*Server,
	*Service, *Characteristic) {

	m.expectDb()

	srv := NewServer(m, cfg)
	svc := srv.CreateService(hrSvcUuid)
	chr := svc.CreateCharacteristic(hrChrUuid,
		BLE_GATT_F_READ|BLE_GATT_F_NOTIFY|BLE_GATT_F_INDICATE, 64)

	require.NoError(t, svc.Start())
	require.NoError(t, srv.Start())
	m.calls = nil

	return srv, svc, chr
}

func TestRemoveServiceVisibilityFailure(t *testing.T) {
	m := &mockStack{}
	m.On("GattsSvcSetVisibility", uint16(10), false).
		Return(hostif.BLE_HS_ENOENT)
	srv, svc, _ := startedServer(t, m, testServerCfg())

	err := srv.RemoveService(svc, false)
	require.Error(t, err)
	assert.Equal(t, hostif.BLE_HS_ENOENT, nmxutil.HostStatus(err))
	assert.Equal(t, REMOVE_STATE_ACTIVE, svc.State())
	assert.True(t, srv.Started())
	m.AssertNotCalled(t, "AdvRemoveSvcUuid", mock.Anything)
	m.AssertNotCalled(t, "GattsSvcChanged", mock.Anything, mock.Anything)
}

func TestResetGATTNoopWithConnections(t *testing.T) {
	m := &mockStack{}
	srv, _, _ := startedServer(t, m, testServerCfg())

	srv.addPeer(1)
	srv.ResetGATT()

	assert.True(t, srv.Started())
	assert.Empty(t, m.calls)
}

func TestResetGATTRebuild(t *testing.T) {
	m := &mockStack{}
	srv, svc, _ := startedServer(t, m, testServerCfg())

	srv.ResetGATT()

	assert.False(t, srv.Started())
	assert.True(t, svc.IsStarted())
	assert.Equal(t, []string{
		"AdvStop",
		"GattsReset",
		"SvcGapInit",
		"SvcGattInit",
		"GattsCountCfg",
		"GattsAddSvcs",
	}, m.calls)
}

func TestHideThenRebuild(t *testing.T) {
	m := &mockStack{}
	m.On("GattsSvcSetVisibility", uint16(10), false).Return(0)

	// Advertising would start the database again; see
	// TestSimAdvertiseAfterRebuild.
	cfg := testServerCfg()
	cfg.AdvertiseOnDisconnect = false
	srv, svc, _ := startedServer(t, m, cfg)

	srv.addPeer(1)

	require.NoError(t, srv.RemoveService(svc, false))
	assert.Equal(t, REMOVE_STATE_HIDDEN, svc.State())
	assert.Equal(t, []string{
		"GattsSvcSetVisibility",
		"GattsSvcChanged",
		"AdvRemoveSvcUuid",
	}, m.calls)

	// Removing again is a no-op.
	require.NoError(t, srv.RemoveService(svc, false))
	m.AssertNumberOfCalls(t, "GattsSvcSetVisibility", 1)

	// The rebuild runs when the last peer leaves.
	m.calls = nil
	srv.HandleGapEvent(&hostif.DisconnectEvent{
		Reason: hostif.HciErr(hostif.BLE_ERR_REM_USER_CONN_TERM),
		Desc:   BleConnDesc{ConnHandle: 1},
	})

	assert.Equal(t, []string{
		"AdvStop",
		"GattsReset",
		"SvcGapInit",
		"SvcGattInit",
	}, m.calls)
	assert.False(t, srv.Started())
	assert.False(t, svc.IsStarted())
	assert.Equal(t, []*Service{svc}, srv.Services())

	// Restore and start again; the service is registered afresh.
	m.calls = nil
	srv.AddService(svc)
	assert.Equal(t, REMOVE_STATE_ACTIVE, svc.State())
	require.NoError(t, srv.Start())
	assert.Equal(t, []string{
		"GattsCountCfg",
		"GattsAddSvcs",
		"GattsStart",
		"GattsFindChr",
		"GattsFindSvc",
	}, m.calls)
	assert.True(t, svc.IsStarted())
}

func TestDeleteServiceWithAutoRestart(t *testing.T) {
	m := &mockStack{}
	m.On("GattsSvcSetVisibility", uint16(10), false).Return(0)

	cfg := testServerCfg()
	cfg.AutoRestart = true
	srv, svc, _ := startedServer(t, m, cfg)
	other := srv.CreateService(u16(0x180f))

	require.NoError(t, srv.RemoveService(svc, true))

	// No peers: the database was rebuilt without the deleted service and
	// started again.
	assert.Equal(t, []*Service{other}, srv.Services())
	assert.Nil(t, svc.Server())
	assert.True(t, srv.Started())
	assert.True(t, other.IsStarted())
}

func TestAddCharacteristicChangesStartedDb(t *testing.T) {
	m := &mockStack{}
	srv, svc, chr := startedServer(t, m, testServerCfg())

	srv.addPeer(3)
	extra := svc.CreateCharacteristic(u16(0x2a3a), BLE_GATT_F_READ, 4)
	assert.Equal(t, []string{"GattsSvcChanged"}, m.calls)
	assert.True(t, srv.Started())

	svc.RemoveCharacteristic(chr, false)
	assert.Equal(t, REMOVE_STATE_HIDDEN, chr.State())
	svc.AddCharacteristic(chr)
	assert.Equal(t, REMOVE_STATE_ACTIVE, chr.State())
	assert.Equal(t, []*Characteristic{chr, extra}, svc.Characteristics())

	srv.removePeer(3)
	srv.ResetGATT()
	assert.False(t, srv.Started())
	assert.True(t, svc.IsStarted())
}
