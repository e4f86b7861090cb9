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
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
)

// Application hooks for server-level GAP events.  Embed
// DefaultServerCallbacks to implement only a subset.
type ServerCallbacks interface {
	OnConnect(s *Server, desc BleConnDesc)
	OnDisconnect(s *Server, desc BleConnDesc, reason int)
	OnMTUChange(mtu uint16, desc BleConnDesc)
	OnConnParamsUpdate(desc BleConnDesc)
	OnAdvComplete(reason int)

	// Returns the passkey to display or inject.
	OnPassKeyRequest() uint32

	// Returns true if the numeric comparison value matches.
	OnConfirmPIN(pin uint32) bool

	OnAuthenticationComplete(desc BleConnDesc)
}

type CharacteristicCallbacks interface {
	// Called before the value is returned to a reading peer.
	OnRead(chr *Characteristic, desc BleConnDesc)

	// Called after a peer's write has been stored.
	OnWrite(chr *Characteristic, desc BleConnDesc)

	// Called before a notification or indication is sent.
	OnNotify(chr *Characteristic)

	// Reports the outcome of a notification or indication.
	OnStatus(chr *Characteristic, status int)

	// subValue: bit 0 = notify, bit 1 = indicate.
	OnSubscribe(chr *Characteristic, desc BleConnDesc, subValue uint16)
}

type DescriptorCallbacks interface {
	OnRead(dsc *Descriptor, desc BleConnDesc)
	OnWrite(dsc *Descriptor, desc BleConnDesc)
}

type DefaultServerCallbacks struct{}

func (DefaultServerCallbacks) OnConnect(s *Server, desc BleConnDesc) {
	log.Debugf("server: connect; %s", desc.String())
}

func (DefaultServerCallbacks) OnDisconnect(s *Server, desc BleConnDesc,
	reason int) {

	log.Debugf("server: disconnect; reason=%d conn=%d", reason,
		desc.ConnHandle)
}

func (DefaultServerCallbacks) OnMTUChange(mtu uint16, desc BleConnDesc) {
	log.Debugf("server: mtu change; conn=%d mtu=%d", desc.ConnHandle, mtu)
}

func (DefaultServerCallbacks) OnConnParamsUpdate(desc BleConnDesc) {
	log.Debugf("server: conn params update; %s", desc.String())
}

func (DefaultServerCallbacks) OnAdvComplete(reason int) {
	log.Debugf("server: advertising complete; reason=%d", reason)
}

func (DefaultServerCallbacks) OnPassKeyRequest() uint32 {
	log.Debugf("server: passkey request; using default")
	return BLE_GAP_PASSKEY_DFLT
}

func (DefaultServerCallbacks) OnConfirmPIN(pin uint32) bool {
	log.Debugf("server: confirm pin %06d", pin)
	return true
}

func (DefaultServerCallbacks) OnAuthenticationComplete(desc BleConnDesc) {
	log.Debugf("server: authentication complete; %s", desc.String())
}

type DefaultCharacteristicCallbacks struct{}

func (DefaultCharacteristicCallbacks) OnRead(chr *Characteristic,
	desc BleConnDesc) {

	log.Debugf("characteristic %s: read", chr.Uuid())
}

func (DefaultCharacteristicCallbacks) OnWrite(chr *Characteristic,
	desc BleConnDesc) {

	log.Debugf("characteristic %s: write", chr.Uuid())
}

func (DefaultCharacteristicCallbacks) OnNotify(chr *Characteristic) {
	log.Debugf("characteristic %s: notify", chr.Uuid())
}

func (DefaultCharacteristicCallbacks) OnStatus(chr *Characteristic,
	status int) {

	log.Debugf("characteristic %s: status=%d", chr.Uuid(), status)
}

func (DefaultCharacteristicCallbacks) OnSubscribe(chr *Characteristic,
	desc BleConnDesc, subValue uint16) {

	log.Debugf("characteristic %s: subscribe; conn=%d sub=0x%04x",
		chr.Uuid(), desc.ConnHandle, subValue)
}

type DefaultDescriptorCallbacks struct{}

func (DefaultDescriptorCallbacks) OnRead(dsc *Descriptor, desc BleConnDesc) {
	log.Debugf("descriptor %s: read", dsc.Uuid())
}

func (DefaultDescriptorCallbacks) OnWrite(dsc *Descriptor, desc BleConnDesc) {
	log.Debugf("descriptor %s: write", dsc.Uuid())
}
