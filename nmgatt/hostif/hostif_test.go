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

package hostif

import (
	"testing"

	"github.com/stretchr/testify/assert"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
)

func nopAccess(ctxt *AccessCtxt) int {
	return 0
}

func TestSvcDefsValidate(t *testing.T) {
	good := SvcDefs{{
		Type: BLE_SVC_TYPE_PRIMARY,
		Uuid: NewBleUuid16(0x180f),
		Chrs: []ChrDef{{
			Uuid:     NewBleUuid16(0x2a19),
			AccessCb: nopAccess,
			Flags:    BLE_GATT_F_READ | BLE_GATT_F_NOTIFY,
			Dscs: []DscDef{{
				Uuid:     NewBleUuid16(0x2904),
				AttFlags: BLE_ATT_F_READ,
				AccessCb: nopAccess,
			}},
		}},
	}}

	assert.NoError(t, good.Validate())

	// svc + chr decl + chr val + cccd + 2904.
	assert.Equal(t, 5, good.AttrCount())

	noUuid := SvcDefs{{Type: BLE_SVC_TYPE_PRIMARY}}
	assert.Error(t, noUuid.Validate())

	badType := SvcDefs{{Uuid: NewBleUuid16(0x180f)}}
	assert.Error(t, badType.Validate())

	noCb := SvcDefs{{
		Type: BLE_SVC_TYPE_PRIMARY,
		Uuid: NewBleUuid16(0x180f),
		Chrs: []ChrDef{{Uuid: NewBleUuid16(0x2a19)}},
	}}
	assert.Error(t, noCb.Validate())
}

func TestStatus(t *testing.T) {
	assert.Equal(t, 0x10b, AttErr(BLE_ATT_ERR_ATTR_NOT_LONG))
	assert.True(t, IsAttErr(AttErr(BLE_ATT_ERR_UNLIKELY)))
	assert.False(t, IsAttErr(BLE_HS_EDONE))
	assert.True(t, IsHciErr(HciErr(BLE_ERR_REM_USER_CONN_TERM)))

	assert.True(t, IsSecurityStatus(AttErr(BLE_ATT_ERR_INSUFFICIENT_ENC)))
	assert.False(t, IsSecurityStatus(BLE_ATT_ERR_INSUFFICIENT_ENC))

	assert.True(t, IsHostResetReason(BLE_HS_ETIMEOUT_HCI))
	assert.False(t, IsHostResetReason(HciErr(BLE_ERR_REM_USER_CONN_TERM)))

	assert.Equal(t, "edone (14)", StatusString(BLE_HS_EDONE))
	assert.Equal(t, "att: attribute not long (0x0b)",
		StatusString(AttErr(BLE_ATT_ERR_ATTR_NOT_LONG)))
	assert.Equal(t, "hci: 0x13",
		StatusString(HciErr(BLE_ERR_REM_USER_CONN_TERM)))
}

func TestEventConnHandle(t *testing.T) {
	assert.Equal(t, uint16(4), EventConnHandle(&MtuEvent{ConnHandle: 4}))
	assert.Equal(t, BLE_CONN_HANDLE_NONE, EventConnHandle(&SyncEvent{}))
	assert.Equal(t, "sync", EVENT_SYNC.String())
}
