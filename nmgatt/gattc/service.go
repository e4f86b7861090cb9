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
	"fmt"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

// A service in the peer's database, as far as it has been discovered.
type RemoteService struct {
	client      *Client
	uuid        BleUuid
	startHandle uint16
	endHandle   uint16

	// Protected by the client's dbMtx.
	chrs []*RemoteCharacteristic
}

func newRemoteService(c *Client, info hostif.SvcInfo) *RemoteService {
	log.Debugf("remote service: %s", info.Uuid.String())

	return &RemoteService{
		client:      c,
		uuid:        info.Uuid,
		startHandle: info.StartHandle,
		endHandle:   info.EndHandle,
	}
}

func (svc *RemoteService) Client() *Client {
	return svc.client
}

func (svc *RemoteService) Uuid() BleUuid {
	return svc.uuid
}

func (svc *RemoteService) StartHandle() uint16 {
	return svc.startHandle
}

func (svc *RemoteService) EndHandle() uint16 {
	return svc.endHandle
}

// Returns the cached characteristics.  With refresh, the cache is
// discarded and all characteristics are discovered again.
func (svc *RemoteService) GetCharacteristics(refresh bool) (
	[]*RemoteCharacteristic, error) {

	c := svc.client

	if refresh {
		svc.DeleteCharacteristics()

		found, err := svc.discoverChrs(nil)
		if err != nil {
			log.Errorf("failed to get characteristics: %s", err.Error())
			return nil, err
		}
		log.Infof("found %d characteristics", len(found))
	}

	c.dbMtx.Lock()
	defer c.dbMtx.Unlock()

	return append([]*RemoteCharacteristic{}, svc.chrs...), nil
}

// Returns the characteristic with the given UUID, discovering it if it is
// not cached.  Returns nil if the service has no such characteristic.
func (svc *RemoteService) GetCharacteristic(uuid BleUuid) (
	*RemoteCharacteristic, error) {

	log.Debugf(">> getCharacteristic: uuid=%s", uuid.String())

	c := svc.client

	c.dbMtx.Lock()
	for _, chr := range svc.chrs {
		if chr.uuid.Equal(uuid) {
			c.dbMtx.Unlock()
			return chr, nil
		}
	}
	c.dbMtx.Unlock()

	var last *RemoteCharacteristic
	_, err := discoverWithFallback(uuid, func(filter BleUuid) (int, error) {
		found, err := svc.discoverChrs(&filter)
		if len(found) > 0 {
			last = found[len(found)-1]
		}
		return len(found), err
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("<< getCharacteristic: found=%t", last != nil)
	return last, nil
}

// Discovers characteristics and adds them to the cache.  After an
// unfiltered discovery each characteristic's end handle is known: it is
// one less than the next characteristic's declaration, or the service's
// end handle for the last one.
func (svc *RemoteService) discoverChrs(filter *BleUuid) (
	[]*RemoteCharacteristic, error) {

	c := svc.client
	var infos []hostif.ChrInfo

	status, err := c.runTxn("disc-chr", svc.startHandle, func(t *txn) int {
		cb := func(conn uint16, status int, chr *hostif.ChrInfo) int {
			if !t.owns(conn) {
				return 0
			}

			if status == 0 {
				infos = append(infos, *chr)
				return 0
			}

			t.complete(status)
			return 0
		}

		if filter == nil {
			return c.stack.GattcDiscAllChrs(t.conn, svc.startHandle,
				svc.endHandle, cb)
		}
		return c.stack.GattcDiscChrsByUuid(t.conn, svc.startHandle,
			svc.endHandle, *filter, cb)
	})
	if err != nil {
		return nil, err
	}
	if !statusDone(status) {
		return nil, c.setLastError(hostError("disc-chr", status))
	}

	c.dbMtx.Lock()
	defer c.dbMtx.Unlock()

	found := make([]*RemoteCharacteristic, 0, len(infos))
	for _, info := range infos {
		chr := svc.chrByDefNoLock(info.DefHandle)
		if chr == nil {
			chr = newRemoteCharacteristic(svc, info)
			svc.chrs = append(svc.chrs, chr)
		}
		found = append(found, chr)
	}

	if filter == nil {
		for i, chr := range found {
			if i+1 < len(found) {
				chr.endHandle = found[i+1].defHandle - 1
			} else {
				chr.endHandle = svc.endHandle
			}
		}
	}

	return found, nil
}

func (svc *RemoteService) chrByDefNoLock(def uint16) *RemoteCharacteristic {
	for _, chr := range svc.chrs {
		if chr.defHandle == def {
			return chr
		}
	}

	return nil
}

// Reads a characteristic of this service, discovering it as needed.
func (svc *RemoteService) GetValue(chrUuid BleUuid) ([]byte, error) {
	chr, err := svc.GetCharacteristic(chrUuid)
	if err != nil {
		return nil, err
	}
	if chr == nil {
		return nil, hostError("find-chr "+chrUuid.String(),
			hostif.AttErr(hostif.BLE_ATT_ERR_ATTR_NOT_FOUND))
	}

	return chr.ReadValue()
}

// Writes a characteristic of this service, discovering it as needed.
func (svc *RemoteService) SetValue(chrUuid BleUuid, data []byte,
	response bool) error {

	chr, err := svc.GetCharacteristic(chrUuid)
	if err != nil {
		return err
	}
	if chr == nil {
		return hostError("find-chr "+chrUuid.String(),
			hostif.AttErr(hostif.BLE_ATT_ERR_ATTR_NOT_FOUND))
	}

	return chr.WriteValue(data, response)
}

func (svc *RemoteService) DeleteCharacteristics() {
	svc.client.dbMtx.Lock()
	defer svc.client.dbMtx.Unlock()

	svc.deleteCharacteristicsNoLock()
}

func (svc *RemoteService) deleteCharacteristicsNoLock() {
	for _, chr := range svc.chrs {
		chr.dscs = nil
	}
	svc.chrs = nil
}

// Discards one cached characteristic.  Returns the number left.
func (svc *RemoteService) DeleteCharacteristic(uuid BleUuid) int {
	svc.client.dbMtx.Lock()
	defer svc.client.dbMtx.Unlock()

	for i, chr := range svc.chrs {
		if chr.uuid.Equal(uuid) {
			chr.dscs = nil
			svc.chrs = append(svc.chrs[:i], svc.chrs[i+1:]...)
			break
		}
	}

	return len(svc.chrs)
}

func (svc *RemoteService) String() string {
	s := fmt.Sprintf("Service: uuid: %s, start_handle: %d 0x%04x, "+
		"end_handle: %d 0x%04x", svc.uuid.String(),
		svc.startHandle, svc.startHandle, svc.endHandle, svc.endHandle)

	svc.client.dbMtx.Lock()
	chrs := append([]*RemoteCharacteristic{}, svc.chrs...)
	svc.client.dbMtx.Unlock()

	for _, chr := range chrs {
		s += "\n" + chr.String()
	}

	return s
}
