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
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

// Returns the same UUID at its other width: the 128-bit form of a 16 or
// 32-bit UUID, or the 16-bit form of a 128-bit UUID built on the Bluetooth
// base.  ok is false if there is no other form.
func altWidth(uuid BleUuid) (BleUuid, bool) {
	switch uuid.Type {
	case BLE_UUID_TYPE_16, BLE_UUID_TYPE_32:
		return uuid.To128(), true

	case BLE_UUID_TYPE_128:
		short := uuid.To16()
		return short, short.Type == BLE_UUID_TYPE_16

	default:
		return uuid, false
	}
}

// Runs a filtered discovery and, if it found nothing, runs it once more with
// the UUID at its other width.  Stacks compare UUIDs by their encoded form,
// so a peer may publish the 128-bit form of a 16-bit UUID or vice versa.
// Returns the number of items the successful pass found.
func discoverWithFallback(uuid BleUuid,
	disc func(filter BleUuid) (int, error)) (int, error) {

	n, err := disc(uuid)
	if err != nil || n > 0 {
		return n, err
	}

	alt, ok := altWidth(uuid)
	if !ok {
		return 0, nil
	}

	log.Debugf("nothing found for %s; retrying with %s", uuid.String(),
		alt.String())
	return disc(alt)
}

/*** Services. */

// Returns the cached services.  With refresh, the cache is discarded and
// all services are discovered again.
func (c *Client) GetServices(refresh bool) ([]*RemoteService, error) {
	if refresh {
		c.DeleteServices()

		if _, err := c.discoverServices(nil); err != nil {
			log.Errorf("failed to get services: %s", err.Error())
			return nil, err
		}
	}

	c.dbMtx.Lock()
	defer c.dbMtx.Unlock()

	return append([]*RemoteService{}, c.svcs...), nil
}

func (c *Client) findServiceNoLock(uuid BleUuid) *RemoteService {
	for _, svc := range c.svcs {
		if svc.uuid.Equal(uuid) {
			return svc
		}
	}

	return nil
}

// Returns the service with the given UUID, discovering it if it is not
// cached.  Returns nil if the peer has no such service.
func (c *Client) GetService(uuid BleUuid) (*RemoteService, error) {
	log.Debugf(">> getService: uuid=%s", uuid.String())

	c.dbMtx.Lock()
	svc := c.findServiceNoLock(uuid)
	c.dbMtx.Unlock()

	if svc != nil {
		return svc, nil
	}

	var last *RemoteService
	n, err := discoverWithFallback(uuid, func(filter BleUuid) (int, error) {
		found, err := c.discoverServices(&filter)
		if len(found) > 0 {
			last = found[len(found)-1]
		}
		return len(found), err
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("<< getService: found=%d", n)
	return last, nil
}

// Discovers services and adds them to the cache.  A service that is
// already cached is not added twice.  Returns the discovered services.
func (c *Client) discoverServices(filter *BleUuid) ([]*RemoteService, error) {
	var infos []hostif.SvcInfo

	status, err := c.runTxn("disc-svc", 0, func(t *txn) int {
		cb := func(conn uint16, status int, svc *hostif.SvcInfo) int {
			if !t.owns(conn) {
				return 0
			}

			if status == 0 {
				infos = append(infos, *svc)
				return 0
			}

			t.complete(status)
			return 0
		}

		if filter == nil {
			return c.stack.GattcDiscAllSvcs(t.conn, cb)
		}
		return c.stack.GattcDiscSvcByUuid(t.conn, *filter, cb)
	})
	if err != nil {
		return nil, err
	}
	if !statusDone(status) {
		return nil, c.setLastError(hostError("disc-svc", status))
	}

	c.dbMtx.Lock()
	defer c.dbMtx.Unlock()

	found := make([]*RemoteService, 0, len(infos))
	for _, info := range infos {
		svc := c.serviceByStartNoLock(info.StartHandle)
		if svc == nil {
			svc = newRemoteService(c, info)
			c.svcs = append(c.svcs, svc)
		}
		found = append(found, svc)
	}

	return found, nil
}

func (c *Client) serviceByStartNoLock(start uint16) *RemoteService {
	for _, svc := range c.svcs {
		if svc.startHandle == start {
			return svc
		}
	}

	return nil
}

// Discovers the peer's entire database: services, characteristics and
// descriptors.  The previous cache is discarded.
func (c *Client) DiscoverAttributes() error {
	log.Debugf(">> discoverAttributes")

	svcs, err := c.GetServices(true)
	if err != nil {
		return err
	}

	for _, svc := range svcs {
		chrs, err := svc.GetCharacteristics(true)
		if err != nil {
			return err
		}

		for _, chr := range chrs {
			if _, err := chr.GetDescriptors(true); err != nil {
				return err
			}
		}
	}

	log.Debugf("<< discoverAttributes")
	return nil
}

// Finds a cached characteristic by its value handle.
func (c *Client) GetCharacteristic(handle uint16) *RemoteCharacteristic {
	c.dbMtx.Lock()
	defer c.dbMtx.Unlock()

	for _, svc := range c.svcs {
		if handle < svc.startHandle || handle > svc.endHandle {
			continue
		}

		for _, chr := range svc.chrs {
			if chr.valHandle == handle {
				return chr
			}
		}
	}

	return nil
}

// Reads a characteristic of a service, discovering both as needed.
func (c *Client) GetValue(svcUuid BleUuid, chrUuid BleUuid) ([]byte, error) {
	chr, err := c.findChr(svcUuid, chrUuid)
	if err != nil {
		return nil, err
	}

	return chr.ReadValue()
}

// Writes a characteristic of a service, discovering both as needed.
func (c *Client) SetValue(svcUuid BleUuid, chrUuid BleUuid, data []byte,
	response bool) error {

	chr, err := c.findChr(svcUuid, chrUuid)
	if err != nil {
		return err
	}

	return chr.WriteValue(data, response)
}

func (c *Client) findChr(svcUuid BleUuid,
	chrUuid BleUuid) (*RemoteCharacteristic, error) {

	svc, err := c.GetService(svcUuid)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, c.setLastError(hostError("find-svc "+svcUuid.String(),
			hostif.AttErr(hostif.BLE_ATT_ERR_ATTR_NOT_FOUND)))
	}

	chr, err := svc.GetCharacteristic(chrUuid)
	if err != nil {
		return nil, err
	}
	if chr == nil {
		return nil, c.setLastError(hostError("find-chr "+chrUuid.String(),
			hostif.AttErr(hostif.BLE_ATT_ERR_ATTR_NOT_FOUND)))
	}

	return chr, nil
}

// Discards the whole cached database.
func (c *Client) DeleteServices() {
	c.dbMtx.Lock()
	defer c.dbMtx.Unlock()

	for _, svc := range c.svcs {
		svc.deleteCharacteristicsNoLock()
	}
	c.svcs = nil
}

// Discards one cached service.  Returns the number of services left.
func (c *Client) DeleteService(uuid BleUuid) int {
	c.dbMtx.Lock()
	defer c.dbMtx.Unlock()

	for i, svc := range c.svcs {
		if svc.uuid.Equal(uuid) {
			svc.deleteCharacteristicsNoLock()
			c.svcs = append(c.svcs[:i], c.svcs[i+1:]...)
			break
		}
	}

	return len(c.svcs)
}
