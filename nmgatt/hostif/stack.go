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
	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
)

// The host stack as seen by the object model.  Methods return 0 or a host
// status code.  No method invokes a callback or event handler before it
// returns; everything asynchronous is reported from the stack's own context.
type Stack interface {
	// Installs the event handler.  Replaces any previous one.
	SetGapEventFn(fn GapEventFn)

	// Identity address of this device.
	OwnAddr() BleDev

	// Local database.
	GattsReset() int
	SvcGapInit()
	SvcGattInit()
	GattsCountCfg(defs SvcDefs) int
	GattsAddSvcs(defs SvcDefs) int
	GattsStart() int
	GattsFindSvc(uuid BleUuid) (uint16, int)
	GattsFindChr(svcUuid BleUuid, chrUuid BleUuid) (uint16, uint16, int)
	GattsSvcSetVisibility(handle uint16, visible bool) int
	GattsSvcChanged(startHandle uint16, endHandle uint16)
	GattsNotify(connHandle uint16, valHandle uint16, data []byte) int
	GattsIndicate(connHandle uint16, valHandle uint16, data []byte) int

	// GAP.
	AdvStart() int
	AdvStop() int
	AdvActive() bool
	AdvRemoveSvcUuid(uuid BleUuid)
	GapConnect(peer BleDev) int
	GapTerminate(connHandle uint16, reason int) int
	GapConnFind(connHandle uint16) (BleConnDesc, int)
	AttMtu(connHandle uint16) uint16

	// Security.
	SecurityInitiate(connHandle uint16) int
	SmInjectIo(connHandle uint16, io BleSmIo) int
	StoreDeletePeer(peer BleDev) int

	// Client procedures.
	GattcDiscAllSvcs(connHandle uint16, cb SvcFn) int
	GattcDiscSvcByUuid(connHandle uint16, uuid BleUuid, cb SvcFn) int
	GattcDiscAllChrs(connHandle uint16, startHandle uint16,
		endHandle uint16, cb ChrFn) int
	GattcDiscChrsByUuid(connHandle uint16, startHandle uint16,
		endHandle uint16, uuid BleUuid, cb ChrFn) int
	GattcDiscAllDscs(connHandle uint16, startHandle uint16,
		endHandle uint16, cb DscFn) int
	GattcReadLong(connHandle uint16, attrHandle uint16, offset int,
		cb AttrFn) int
	GattcWriteFlat(connHandle uint16, attrHandle uint16, data []byte,
		cb AttrFn) int
	GattcWriteLong(connHandle uint16, attrHandle uint16, offset int,
		data []byte, cb AttrFn) int
	GattcWriteNoRsp(connHandle uint16, attrHandle uint16, data []byte) int
	GattcExchangeMtu(connHandle uint16, cb MtuFn) int

	// Aborts all client procedures in progress on the connection without
	// calling their callbacks.
	GattcCancel(connHandle uint16)
}

// Implemented by stacks whose pairing parameters can change at run time.
type SecurityConfigurer interface {
	SetSecurityCfg(cfg BleSecurityCfg)
	SecurityCfg() BleSecurityCfg
}
