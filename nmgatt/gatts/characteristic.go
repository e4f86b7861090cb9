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
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattmgr/nmgatt/attval"
	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

type Characteristic struct {
	uuid    BleUuid
	handle  uint16
	props   BleChrFlags
	value   *attval.Value
	cbs     CharacteristicCallbacks
	svc     *Service
	dscs    []*Descriptor
	removed RemoveState

	// conn handle -> CCCD value.
	subs   map[uint16]uint16
	subMtx sync.Mutex
}

// Creates a characteristic that is not yet attached to a service.
func NewCharacteristic(uuid BleUuid, props BleChrFlags,
	maxLen int) *Characteristic {

	return &Characteristic{
		uuid:   uuid,
		handle: BLE_CONN_HANDLE_NONE,
		props:  props,
		value:  attval.NewDflt(maxLen),
		cbs:    DefaultCharacteristicCallbacks{},
		subs:   map[uint16]uint16{},
	}
}

func (chr *Characteristic) Uuid() BleUuid {
	return chr.uuid
}

// The value handle; 0xffff until the database is started.
func (chr *Characteristic) Handle() uint16 {
	return chr.handle
}

func (chr *Characteristic) Properties() BleChrFlags {
	return chr.props
}

func (chr *Characteristic) Service() *Service {
	return chr.svc
}

func (chr *Characteristic) State() RemoveState {
	return chr.removed
}

func (chr *Characteristic) Value() *attval.Value {
	return chr.value
}

func (chr *Characteristic) SetValue(data []byte) bool {
	return chr.value.Set(data)
}

func (chr *Characteristic) GetValue() []byte {
	return chr.value.Bytes()
}

func (chr *Characteristic) SetCallbacks(cbs CharacteristicCallbacks) {
	if cbs == nil {
		cbs = DefaultCharacteristicCallbacks{}
	}
	chr.cbs = cbs
}

func (chr *Characteristic) String() string {
	return fmt.Sprintf("Characteristic: uuid: %s, handle: %d 0x%04x, "+
		"props: %s", chr.uuid, chr.handle, chr.handle, chr.props)
}

func (chr *Characteristic) server() *Server {
	if chr.svc == nil {
		return nil
	}
	return chr.svc.server
}

/*** Descriptors. */

// Creates a descriptor and adds it to the characteristic.  The client
// configuration descriptor (0x2902) is managed by the stack and is never
// created this way.
func (chr *Characteristic) CreateDescriptor(uuid BleUuid, props BleChrFlags,
	maxLen int) *Descriptor {

	if uuid.Equal(NewBleUuid16(uint16(BLE_DSC_UUID16_CCCD))) {
		log.Warnf("characteristic %s: cccd is provided by the stack; "+
			"not creating descriptor", chr.uuid)
		return nil
	}

	dsc := NewDescriptor(uuid, props, maxLen)
	chr.AddDescriptor(dsc)
	return dsc
}

// Adds a descriptor, or restores one that was previously removed.  Changes
// the database if it has already been started.
func (chr *Characteristic) AddDescriptor(dsc *Descriptor) {
	srv := chr.server()
	withDb(srv, func() bool {
		found := false
		for _, d := range chr.dscs {
			if d == dsc {
				found = true
				break
			}
		}

		if found {
			dsc.removed = REMOVE_STATE_ACTIVE
		} else {
			dsc.chr = chr
			chr.dscs = append(chr.dscs, dsc)
		}

		return srv.serviceChangedNoLock()
	})
}

// Removes a descriptor from the database.  The descriptor is only dropped
// from the characteristic when deleteDsc is set; otherwise it can be
// restored with AddDescriptor.
func (chr *Characteristic) RemoveDescriptor(dsc *Descriptor, deleteDsc bool) {
	srv := chr.server()
	withDb(srv, func() bool {
		idx := -1
		for i, d := range chr.dscs {
			if d == dsc {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false
		}

		if dsc.removed != REMOVE_STATE_ACTIVE {
			if deleteDsc {
				chr.dscs = append(chr.dscs[:idx], chr.dscs[idx+1:]...)
				dsc.chr = nil
			}
			return false
		}

		dsc.removed = removeStateFor(deleteDsc)
		return srv.serviceChangedNoLock()
	})
}

// Returns the first active descriptor with the given UUID.
func (chr *Characteristic) GetDescriptorByUuid(uuid BleUuid) *Descriptor {
	for _, dsc := range chr.dscs {
		if dsc.removed == REMOVE_STATE_ACTIVE && dsc.uuid.Equal(uuid) {
			return dsc
		}
	}

	log.Debugf("characteristic %s: descriptor %s not found", chr.uuid, uuid)
	return nil
}

func (chr *Characteristic) GetDescriptorByHandle(handle uint16) *Descriptor {
	for _, dsc := range chr.dscs {
		if dsc.handle == handle {
			return dsc
		}
	}

	return nil
}

func (chr *Characteristic) Descriptors() []*Descriptor {
	return append([]*Descriptor(nil), chr.dscs...)
}

// Compiles the characteristic into its stack form.  Deleted descriptors
// are dropped from the characteristic; hidden ones are left out.
func (chr *Characteristic) def() hostif.ChrDef {
	var dscDefs []hostif.DscDef

	kept := chr.dscs[:0]
	for _, dsc := range chr.dscs {
		switch dsc.removed {
		case REMOVE_STATE_DELETED:
			dsc.chr = nil
			continue
		case REMOVE_STATE_ACTIVE:
			dscDefs = append(dscDefs, dsc.def())
		}
		kept = append(kept, dsc)
	}
	for i := len(kept); i < len(chr.dscs); i++ {
		chr.dscs[i] = nil
	}
	chr.dscs = kept

	return hostif.ChrDef{
		Uuid:      chr.uuid,
		AccessCb:  chr.access,
		Dscs:      dscDefs,
		Flags:     chr.props,
		ValHandle: &chr.handle,
	}
}

/*** Subscriptions. */

func (chr *Characteristic) setSubscribe(ev *hostif.SubscribeEvent,
	desc BleConnDesc) {

	var subValue uint16
	if ev.CurNotify {
		subValue |= BLE_CCCD_NOTIFY
	}
	if ev.CurIndicate {
		subValue |= BLE_CCCD_INDICATE
	}

	chr.subMtx.Lock()
	if subValue == 0 {
		delete(chr.subs, ev.ConnHandle)
	} else {
		chr.subs[ev.ConnHandle] = subValue
	}
	chr.subMtx.Unlock()

	chr.cbs.OnSubscribe(chr, desc, subValue)
}

// Number of connections subscribed to notifications or indications.
func (chr *Characteristic) SubscribedCount() int {
	chr.subMtx.Lock()
	defer chr.subMtx.Unlock()

	return len(chr.subs)
}

// Returns the CCCD value of each subscribed connection.
func (chr *Characteristic) Subscribers() map[uint16]uint16 {
	chr.subMtx.Lock()
	defer chr.subMtx.Unlock()

	m := make(map[uint16]uint16, len(chr.subs))
	for conn, sub := range chr.subs {
		m[conn] = sub
	}

	return m
}

type subscriber struct {
	conn     uint16
	subValue uint16
}

func (chr *Characteristic) sortedSubscribers() []subscriber {
	chr.subMtx.Lock()
	subs := make([]subscriber, 0, len(chr.subs))
	for conn, sub := range chr.subs {
		subs = append(subs, subscriber{conn, sub})
	}
	chr.subMtx.Unlock()

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].conn < subs[j].conn
	})

	return subs
}

/*** Notify / indicate. */

// Sends value (the current value if nil) to subscribed peers.  connHandle
// BLE_CONN_HANDLE_NONE targets every subscriber.  A peer receives a
// notification only if it subscribed to notifications, and an indication
// only if it subscribed to indications and has no other indication in
// flight.
func (chr *Characteristic) Notify(value []byte, isNotification bool,
	connHandle uint16) {

	srv := chr.server()
	if srv == nil {
		log.Warnf("characteristic %s: notify on detached characteristic",
			chr.uuid)
		return
	}

	if value == nil {
		value = chr.value.Bytes()
	}

	log.Debugf(">> notify: length: %d", len(value))

	if chr.props&(BLE_GATT_F_NOTIFY|BLE_GATT_F_INDICATE) == 0 {
		log.Errorf("<< notify: notify/indicate not enabled for "+
			"characteristic: %s", chr.uuid)
		return
	}

	chr.cbs.OnNotify(chr)

	reqSec := chr.props&(BLE_GATT_F_READ_AUTHEN|BLE_GATT_F_READ_AUTHOR|
		BLE_GATT_F_READ_ENC) != 0

	for _, sub := range chr.sortedSubscribers() {
		if connHandle <= BLE_HCI_LE_CONN_HANDLE_MAX && sub.conn != connHandle {
			continue
		}

		if isNotification && sub.subValue&BLE_CCCD_NOTIFY == 0 {
			continue
		}
		if !isNotification && sub.subValue&BLE_CCCD_INDICATE == 0 {
			continue
		}

		mtu := int(srv.stack.AttMtu(sub.conn)) - 3
		if mtu <= 0 {
			continue
		}

		data := value
		if len(data) > mtu {
			log.Warnf("sending truncated %s; length=%d mtu=%d",
				notifyKind(isNotification), len(data), mtu)
			data = data[:mtu]
		}

		if reqSec {
			desc, rc := srv.stack.GapConnFind(sub.conn)
			if rc != 0 || !desc.Encrypted {
				continue
			}
		}

		if !isNotification && !srv.setIndicateWait(sub.conn) {
			log.Errorf("prior indication in progress; conn=%d", sub.conn)
			continue
		}

		var rc int
		if isNotification {
			rc = srv.stack.GattsNotify(sub.conn, chr.handle, data)
		} else {
			rc = srv.stack.GattsIndicate(sub.conn, chr.handle, data)
		}

		if rc != 0 {
			if !isNotification {
				srv.clearIndicateWait(sub.conn)
			}
			chr.cbs.OnStatus(chr, rc)
		}
	}

	log.Debugf("<< notify")
}

// Indicates value (the current value if nil) to every subscriber.
func (chr *Characteristic) Indicate(value []byte) {
	chr.Notify(value, false, BLE_CONN_HANDLE_NONE)
}

func notifyKind(isNotification bool) string {
	if isNotification {
		return "notification"
	} else {
		return "indication"
	}
}

/*** Access. */

func (chr *Characteristic) access(ctxt *hostif.AccessCtxt) int {
	log.Debugf(">> characteristic access; uuid=%s handle=%d op=%s",
		chr.uuid, ctxt.AttrHandle, BleGattOpToString(ctxt.Op))

	desc := connDescFor(chr.server(), ctxt.ConnHandle)

	switch ctxt.Op {
	case BLE_GATT_ACCESS_OP_READ_CHR:
		if ctxt.Offset == 0 {
			chr.cbs.OnRead(chr, desc)
		}

		chr.value.WithLock(func(b []byte) {
			ctxt.Out = append(ctxt.Out, b...)
		})
		return 0

	case BLE_GATT_ACCESS_OP_WRITE_CHR:
		data, rc := assembleWrite(ctxt, chr.value.MaxLen())
		if rc != 0 {
			return rc
		}

		chr.value.Set(data)
		chr.cbs.OnWrite(chr, desc)
		return 0

	default:
		return hostif.BLE_ATT_ERR_UNLIKELY
	}
}
