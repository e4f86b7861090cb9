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
	"time"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattmgr/nmgatt/attval"
	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
)

// A characteristic in the peer's database.  Its value is the last one read
// or received in a notification.
type RemoteCharacteristic struct {
	svc       *RemoteService
	uuid      BleUuid
	defHandle uint16
	valHandle uint16
	props     BleChrFlags
	value     *attval.Value

	// Protected by the client's dbMtx.  An end handle of 0 is not yet
	// known.
	endHandle uint16
	dscs      []*RemoteDescriptor
	notify    NotifyFn
}

func newRemoteCharacteristic(svc *RemoteService,
	info hostif.ChrInfo) *RemoteCharacteristic {

	log.Debugf("remote characteristic: %s", info.Uuid.String())

	return &RemoteCharacteristic{
		svc:       svc,
		uuid:      info.Uuid,
		defHandle: info.DefHandle,
		valHandle: info.ValHandle,
		props:     info.Properties,
		value:     attval.NewDflt(BLE_ATT_ATTR_MAX_LEN),
	}
}

func (chr *RemoteCharacteristic) client() *Client {
	return chr.svc.client
}

func (chr *RemoteCharacteristic) Service() *RemoteService {
	return chr.svc
}

func (chr *RemoteCharacteristic) Uuid() BleUuid {
	return chr.uuid
}

// The value handle.
func (chr *RemoteCharacteristic) Handle() uint16 {
	return chr.valHandle
}

// The declaration handle.
func (chr *RemoteCharacteristic) DefHandle() uint16 {
	return chr.defHandle
}

func (chr *RemoteCharacteristic) EndHandle() uint16 {
	chr.client().dbMtx.Lock()
	defer chr.client().dbMtx.Unlock()

	return chr.endHandle
}

func (chr *RemoteCharacteristic) Properties() BleChrFlags {
	return chr.props
}

func (chr *RemoteCharacteristic) CanBroadcast() bool {
	return chr.props&BLE_GATT_F_BROADCAST != 0
}

func (chr *RemoteCharacteristic) CanRead() bool {
	return chr.props&BLE_GATT_F_READ != 0
}

func (chr *RemoteCharacteristic) CanWriteNoResponse() bool {
	return chr.props&BLE_GATT_F_WRITE_NO_RSP != 0
}

func (chr *RemoteCharacteristic) CanWrite() bool {
	return chr.props&BLE_GATT_F_WRITE != 0
}

func (chr *RemoteCharacteristic) CanNotify() bool {
	return chr.props&BLE_GATT_F_NOTIFY != 0
}

func (chr *RemoteCharacteristic) CanIndicate() bool {
	return chr.props&BLE_GATT_F_INDICATE != 0
}

// Reads the value from the peer and caches it.
func (chr *RemoteCharacteristic) ReadValue() ([]byte, error) {
	log.Debugf(">> readValue: %s", chr.uuid.String())

	b, err := chr.client().readAttr("read-chr", chr.valHandle)
	if err != nil {
		return nil, err
	}

	chr.value.Set(b)

	log.Debugf("<< readValue: length=%d", len(b))
	return b, nil
}

// Returns the cached value and the time it was stored.
func (chr *RemoteCharacteristic) GetValue() ([]byte, time.Time) {
	return chr.value.Get()
}

func (chr *RemoteCharacteristic) Value() *attval.Value {
	return chr.value
}

func (chr *RemoteCharacteristic) WriteValue(data []byte,
	response bool) error {

	log.Debugf(">> writeValue: %s length=%d", chr.uuid.String(), len(data))
	return chr.client().writeAttr("write-chr", chr.valHandle, data, response)
}

/*** Descriptors. */

// Returns the cached descriptors.  With refresh, the cache is discarded and
// all descriptors are discovered again.
func (chr *RemoteCharacteristic) GetDescriptors(refresh bool) (
	[]*RemoteDescriptor, error) {

	c := chr.client()

	if refresh {
		chr.DeleteDescriptors()

		if _, err := chr.discoverDscs(nil); err != nil {
			log.Errorf("failed to get descriptors: %s", err.Error())
			return nil, err
		}
	}

	c.dbMtx.Lock()
	defer c.dbMtx.Unlock()

	return append([]*RemoteDescriptor{}, chr.dscs...), nil
}

// Returns the descriptor with the given UUID, discovering it if it is not
// cached.  Returns nil if the characteristic has no such descriptor.
func (chr *RemoteCharacteristic) GetDescriptor(uuid BleUuid) (
	*RemoteDescriptor, error) {

	log.Debugf(">> getDescriptor: uuid=%s", uuid.String())

	c := chr.client()

	c.dbMtx.Lock()
	for _, dsc := range chr.dscs {
		if dsc.uuid.Equal(uuid) {
			c.dbMtx.Unlock()
			return dsc, nil
		}
	}
	c.dbMtx.Unlock()

	var last *RemoteDescriptor
	_, err := discoverWithFallback(uuid, func(filter BleUuid) (int, error) {
		found, err := chr.discoverDscs(&filter)
		if len(found) > 0 {
			last = found[len(found)-1]
		}
		return len(found), err
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("<< getDescriptor: found=%t", last != nil)
	return last, nil
}

// Determines where the characteristic's attributes end when it was
// discovered on its own: just before the next characteristic's declaration,
// or at the end of the service.
func (chr *RemoteCharacteristic) findEndHandle() (uint16, error) {
	c := chr.client()
	end := chr.svc.endHandle

	if chr.valHandle < end {
		status, err := c.runTxn("disc-next-chr", chr.valHandle,
			func(t *txn) int {
				return c.stack.GattcDiscAllChrs(t.conn, chr.valHandle+1,
					chr.svc.endHandle,
					func(conn uint16, status int, next *hostif.ChrInfo) int {
						if !t.owns(conn) {
							return 0
						}

						if status == 0 {
							end = next.DefHandle - 1
							t.complete(hostif.BLE_HS_EDONE)
							return hostif.BLE_HS_EDONE
						}

						t.complete(status)
						return 0
					})
			})
		if err != nil {
			return 0, err
		}
		if !statusDone(status) {
			return 0, c.setLastError(hostError("disc-next-chr", status))
		}
	}

	c.dbMtx.Lock()
	chr.endHandle = end
	c.dbMtx.Unlock()

	return end, nil
}

// Discovers descriptors and adds them to the cache.  The filter is applied
// here rather than by the stack, which has no filtered descriptor
// discovery.
func (chr *RemoteCharacteristic) discoverDscs(filter *BleUuid) (
	[]*RemoteDescriptor, error) {

	c := chr.client()

	end := chr.EndHandle()
	if end == 0 {
		var err error
		if end, err = chr.findEndHandle(); err != nil {
			return nil, err
		}
	}

	// No room for descriptors.
	if chr.valHandle+1 > end {
		return nil, nil
	}

	var infos []hostif.DscInfo

	status, err := c.runTxn("disc-dsc", chr.valHandle, func(t *txn) int {
		return c.stack.GattcDiscAllDscs(t.conn, chr.valHandle, end,
			func(conn uint16, status int, chrValHandle uint16,
				dsc *hostif.DscInfo) int {

				if !t.owns(conn) {
					return 0
				}

				if status == 0 {
					if filter == nil || dsc.Uuid.Equal(*filter) {
						infos = append(infos, *dsc)
					}
					return 0
				}

				t.complete(status)
				return 0
			})
	})
	if err != nil {
		return nil, err
	}
	if !statusDone(status) {
		return nil, c.setLastError(hostError("disc-dsc", status))
	}

	c.dbMtx.Lock()
	defer c.dbMtx.Unlock()

	found := make([]*RemoteDescriptor, 0, len(infos))
	for _, info := range infos {
		dsc := chr.dscByHandleNoLock(info.Handle)
		if dsc == nil {
			dsc = newRemoteDescriptor(chr, info)
			chr.dscs = append(chr.dscs, dsc)
		}
		found = append(found, dsc)
	}

	return found, nil
}

func (chr *RemoteCharacteristic) dscByHandleNoLock(
	handle uint16) *RemoteDescriptor {

	for _, dsc := range chr.dscs {
		if dsc.handle == handle {
			return dsc
		}
	}

	return nil
}

func (chr *RemoteCharacteristic) DeleteDescriptors() {
	chr.client().dbMtx.Lock()
	defer chr.client().dbMtx.Unlock()

	chr.dscs = nil
}

// Discards one cached descriptor.  Returns the number left.
func (chr *RemoteCharacteristic) DeleteDescriptor(uuid BleUuid) int {
	chr.client().dbMtx.Lock()
	defer chr.client().dbMtx.Unlock()

	for i, dsc := range chr.dscs {
		if dsc.uuid.Equal(uuid) {
			chr.dscs = append(chr.dscs[:i], chr.dscs[i+1:]...)
			break
		}
	}

	return len(chr.dscs)
}

/*** Subscriptions. */

// Enables notifications, or indications if notifications is false, by
// writing the client configuration descriptor.  fn receives each update;
// the cached value is updated either way.
func (chr *RemoteCharacteristic) Subscribe(notifications bool, fn NotifyFn,
	response bool) error {

	val := BLE_CCCD_INDICATE
	supported := chr.CanIndicate()
	if notifications {
		val = BLE_CCCD_NOTIFY
		supported = chr.CanNotify()
	}

	if !supported {
		return nmxutil.FmtValidationError(
			"characteristic %s cannot notify or indicate; props=%s",
			chr.uuid.String(), chr.props.String())
	}

	return chr.setNotify(val, fn, response)
}

func (chr *RemoteCharacteristic) Unsubscribe(response bool) error {
	return chr.setNotify(0, nil, response)
}

func (chr *RemoteCharacteristic) setNotify(val uint16, fn NotifyFn,
	response bool) error {

	log.Debugf(">> setNotify: %s val=0x%04x", chr.uuid.String(), val)

	dsc, err := chr.GetDescriptor(NewBleUuid16(uint16(BLE_DSC_UUID16_CCCD)))
	if err != nil {
		return err
	}
	if dsc == nil {
		return nmxutil.FmtValidationError(
			"characteristic %s has no client configuration descriptor",
			chr.uuid.String())
	}

	chr.client().dbMtx.Lock()
	chr.notify = fn
	chr.client().dbMtx.Unlock()

	return dsc.WriteValue([]byte{byte(val), byte(val >> 8)}, response)
}

func (chr *RemoteCharacteristic) notifyFn() NotifyFn {
	chr.client().dbMtx.Lock()
	defer chr.client().dbMtx.Unlock()

	return chr.notify
}

func (chr *RemoteCharacteristic) String() string {
	s := fmt.Sprintf("Characteristic: uuid: %s, handle: %d 0x%04x, "+
		"props: %s", chr.uuid.String(), chr.valHandle, chr.valHandle,
		chr.props.String())

	chr.client().dbMtx.Lock()
	dscs := append([]*RemoteDescriptor{}, chr.dscs...)
	chr.client().dbMtx.Unlock()

	for _, dsc := range dscs {
		s += "\n" + dsc.String()
	}

	return s
}
