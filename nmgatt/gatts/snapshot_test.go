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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
)

func buildSnapshotServer(t *testing.T, props BleChrFlags) *Server {
	m := &mockStack{}
	m.expectDb()
	m.On("GattsSvcSetVisibility", mock.Anything, false).Return(0).Maybe()

	srv := NewServer(m, testServerCfg())
	svc := srv.CreateService(hrSvcUuid)
	chr := svc.CreateCharacteristic(hrChrUuid, props, 20)
	chr.CreateDescriptor(NewBleUuid16(0x2901), BLE_GATT_F_READ, 16)
	srv.CreateService(NewBleUuid16(0x180f))

	require.NoError(t, srv.Start())
	return srv
}

func TestSnapshot(t *testing.T) {
	srv := buildSnapshotServer(t, BLE_GATT_F_READ|BLE_GATT_F_NOTIFY)

	snap := srv.Snapshot()
	assert.True(t, snap.Started)
	require.Len(t, snap.Svcs, 2)
	require.Len(t, snap.Svcs[0].Chrs, 1)
	assert.Equal(t, "0x180d", snap.Svcs[0].Uuid)
	assert.Equal(t, "read|notify", snap.Svcs[0].Chrs[0].Flags)
	assert.Equal(t, "active", snap.Svcs[0].Chrs[0].State)
	require.Len(t, snap.Svcs[0].Chrs[0].Dscs, 1)
	assert.Equal(t, 16, snap.Svcs[0].Chrs[0].Dscs[0].MaxLen)

	m := snap.Map()
	assert.Equal(t, true, m["started"])
	assert.Contains(t, m, "svcs")

	js, err := snap.Encode("json")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(js), `"0x180d"`))

	cb, err := snap.Encode("cbor")
	require.NoError(t, err)

	back, err := DecodeSnapshot(cb, "cbor")
	require.NoError(t, err)
	require.Len(t, back.Svcs, 2)
	assert.Equal(t, "0x2a37", back.Svcs[0].Chrs[0].Uuid)
	assert.Equal(t, "0x2901", back.Svcs[0].Chrs[0].Dscs[0].Uuid)

	_, err = snap.Encode("xml")
	assert.Error(t, err)
	_, err = DecodeSnapshot(cb, "xml")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := buildSnapshotServer(t, BLE_GATT_F_READ|BLE_GATT_F_NOTIFY)
	b := buildSnapshotServer(t, BLE_GATT_F_READ|BLE_GATT_F_NOTIFY)
	c := buildSnapshotServer(t, BLE_GATT_F_READ|BLE_GATT_F_INDICATE)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Fingerprint(), a.Snapshot().Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	// Values are not part of the structure.
	chr := a.Services()[0].Characteristics()[0]
	chr.SetValue([]byte{1, 2, 3})
	assert.Equal(t, b.Snapshot().Fingerprint(), a.Snapshot().Fingerprint())

	// Hiding a service is.
	a.addPeer(1)
	require.NoError(t, a.RemoveService(a.Services()[1], false))
	assert.NotEqual(t, b.Snapshot().Fingerprint(), a.Snapshot().Fingerprint())
}
