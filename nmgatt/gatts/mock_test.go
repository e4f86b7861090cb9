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
	"github.com/stretchr/testify/mock"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

// A scripted hostif.Stack.  Each call is recorded by name in calls, in
// order, in addition to the usual mock expectations.
type mockStack struct {
	mock.Mock
	calls []string
}

func (m *mockStack) record(name string) {
	m.calls = append(m.calls, name)
}

func (m *mockStack) SetGapEventFn(fn hostif.GapEventFn) {
	m.record("SetGapEventFn")
	m.Called(fn)
}

func (m *mockStack) OwnAddr() BleDev {
	args := m.Called()
	return args.Get(0).(BleDev)
}

func (m *mockStack) GattsReset() int {
	m.record("GattsReset")
	return m.Called().Int(0)
}

func (m *mockStack) SvcGapInit() {
	m.record("SvcGapInit")
	m.Called()
}

func (m *mockStack) SvcGattInit() {
	m.record("SvcGattInit")
	m.Called()
}

func (m *mockStack) GattsCountCfg(defs hostif.SvcDefs) int {
	m.record("GattsCountCfg")
	return m.Called(defs).Int(0)
}

func (m *mockStack) GattsAddSvcs(defs hostif.SvcDefs) int {
	m.record("GattsAddSvcs")
	return m.Called(defs).Int(0)
}

func (m *mockStack) GattsStart() int {
	m.record("GattsStart")
	return m.Called().Int(0)
}

func (m *mockStack) GattsFindSvc(uuid BleUuid) (uint16, int) {
	m.record("GattsFindSvc")
	args := m.Called(uuid)
	return args.Get(0).(uint16), args.Int(1)
}

func (m *mockStack) GattsFindChr(svcUuid BleUuid,
	chrUuid BleUuid) (uint16, uint16, int) {

	m.record("GattsFindChr")
	args := m.Called(svcUuid, chrUuid)
	return args.Get(0).(uint16), args.Get(1).(uint16), args.Int(2)
}

func (m *mockStack) GattsSvcSetVisibility(handle uint16, visible bool) int {
	m.record("GattsSvcSetVisibility")
	return m.Called(handle, visible).Int(0)
}

func (m *mockStack) GattsSvcChanged(startHandle uint16, endHandle uint16) {
	m.record("GattsSvcChanged")
	m.Called(startHandle, endHandle)
}

func (m *mockStack) GattsNotify(connHandle uint16, valHandle uint16,
	data []byte) int {

	m.record("GattsNotify")
	return m.Called(connHandle, valHandle, data).Int(0)
}

func (m *mockStack) GattsIndicate(connHandle uint16, valHandle uint16,
	data []byte) int {

	m.record("GattsIndicate")
	return m.Called(connHandle, valHandle, data).Int(0)
}

func (m *mockStack) AdvStart() int {
	m.record("AdvStart")
	return m.Called().Int(0)
}

func (m *mockStack) AdvStop() int {
	m.record("AdvStop")
	return m.Called().Int(0)
}

func (m *mockStack) AdvActive() bool {
	return m.Called().Bool(0)
}

func (m *mockStack) AdvRemoveSvcUuid(uuid BleUuid) {
	m.record("AdvRemoveSvcUuid")
	m.Called(uuid)
}

func (m *mockStack) GapConnect(peer BleDev) int {
	return m.Called(peer).Int(0)
}

func (m *mockStack) GapTerminate(connHandle uint16, reason int) int {
	m.record("GapTerminate")
	return m.Called(connHandle, reason).Int(0)
}

func (m *mockStack) GapConnFind(connHandle uint16) (BleConnDesc, int) {
	args := m.Called(connHandle)
	return args.Get(0).(BleConnDesc), args.Int(1)
}

func (m *mockStack) AttMtu(connHandle uint16) uint16 {
	return m.Called(connHandle).Get(0).(uint16)
}

func (m *mockStack) SecurityInitiate(connHandle uint16) int {
	m.record("SecurityInitiate")
	return m.Called(connHandle).Int(0)
}

func (m *mockStack) SmInjectIo(connHandle uint16, io BleSmIo) int {
	m.record("SmInjectIo")
	return m.Called(connHandle, io).Int(0)
}

func (m *mockStack) StoreDeletePeer(peer BleDev) int {
	m.record("StoreDeletePeer")
	return m.Called(peer).Int(0)
}

func (m *mockStack) GattcDiscAllSvcs(connHandle uint16, cb hostif.SvcFn) int {
	return m.Called(connHandle, cb).Int(0)
}

func (m *mockStack) GattcDiscSvcByUuid(connHandle uint16, uuid BleUuid,
	cb hostif.SvcFn) int {

	return m.Called(connHandle, uuid, cb).Int(0)
}

func (m *mockStack) GattcDiscAllChrs(connHandle uint16, startHandle uint16,
	endHandle uint16, cb hostif.ChrFn) int {

	return m.Called(connHandle, startHandle, endHandle, cb).Int(0)
}

func (m *mockStack) GattcDiscChrsByUuid(connHandle uint16,
	startHandle uint16, endHandle uint16, uuid BleUuid,
	cb hostif.ChrFn) int {

	return m.Called(connHandle, startHandle, endHandle, uuid, cb).Int(0)
}

func (m *mockStack) GattcDiscAllDscs(connHandle uint16, startHandle uint16,
	endHandle uint16, cb hostif.DscFn) int {

	return m.Called(connHandle, startHandle, endHandle, cb).Int(0)
}

func (m *mockStack) GattcReadLong(connHandle uint16, attrHandle uint16,
	offset int, cb hostif.AttrFn) int {

	return m.Called(connHandle, attrHandle, offset, cb).Int(0)
}

func (m *mockStack) GattcWriteFlat(connHandle uint16, attrHandle uint16,
	data []byte, cb hostif.AttrFn) int {

	return m.Called(connHandle, attrHandle, data, cb).Int(0)
}

func (m *mockStack) GattcWriteLong(connHandle uint16, attrHandle uint16,
	offset int, data []byte, cb hostif.AttrFn) int {

	return m.Called(connHandle, attrHandle, offset, data, cb).Int(0)
}

func (m *mockStack) GattcWriteNoRsp(connHandle uint16, attrHandle uint16,
	data []byte) int {

	return m.Called(connHandle, attrHandle, data).Int(0)
}

func (m *mockStack) GattcExchangeMtu(connHandle uint16, cb hostif.MtuFn) int {
	return m.Called(connHandle, cb).Int(0)
}

func (m *mockStack) GattcCancel(connHandle uint16) {
	m.Called(connHandle)
}

// Expectations for a database that registers and starts without error.
func (m *mockStack) expectDb() {
	m.On("GattsCountCfg", mock.Anything).Return(0).Maybe()
	m.On("GattsAddSvcs", mock.Anything).Return(0).Maybe()
	m.On("GattsStart").Return(0).Maybe()
	m.On("GattsFindChr", mock.Anything, mock.Anything).
		Return(uint16(2), uint16(3), 0).Maybe()
	m.On("GattsFindSvc", mock.Anything).Return(uint16(10), 0).Maybe()
	m.On("GattsSvcChanged", uint16(1), uint16(0xffff)).Return().Maybe()
	m.On("GattsReset").Return(0).Maybe()
	m.On("SvcGapInit").Return().Maybe()
	m.On("SvcGattInit").Return().Maybe()
	m.On("AdvStop").Return(0).Maybe()
	m.On("AdvStart").Return(0).Maybe()
	m.On("AdvRemoveSvcUuid", mock.Anything).Return().Maybe()
}
