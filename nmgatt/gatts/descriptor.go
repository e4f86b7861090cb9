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

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattmgr/nmgatt/attval"
	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

type Descriptor struct {
	uuid     BleUuid
	handle   uint16
	attFlags BleAttFlags
	value    *attval.Value
	cbs      DescriptorCallbacks
	chr      *Characteristic
	removed  RemoveState
}

// Creates a descriptor that is not yet attached to a characteristic.  The
// properties are given as characteristic flags and converted to ATT
// permissions.
func NewDescriptor(uuid BleUuid, props BleChrFlags, maxLen int) *Descriptor {
	return &Descriptor{
		uuid:     uuid,
		handle:   BLE_CONN_HANDLE_NONE,
		attFlags: ChrFlagsToAttFlags(props),
		value:    attval.NewDflt(maxLen),
		cbs:      DefaultDescriptorCallbacks{},
	}
}

func (dsc *Descriptor) Uuid() BleUuid {
	return dsc.uuid
}

// 0xffff until the database is started.
func (dsc *Descriptor) Handle() uint16 {
	return dsc.handle
}

func (dsc *Descriptor) AttFlags() BleAttFlags {
	return dsc.attFlags
}

func (dsc *Descriptor) Characteristic() *Characteristic {
	return dsc.chr
}

func (dsc *Descriptor) State() RemoveState {
	return dsc.removed
}

func (dsc *Descriptor) Value() *attval.Value {
	return dsc.value
}

func (dsc *Descriptor) SetValue(data []byte) bool {
	return dsc.value.Set(data)
}

func (dsc *Descriptor) GetValue() []byte {
	return dsc.value.Bytes()
}

func (dsc *Descriptor) SetCallbacks(cbs DescriptorCallbacks) {
	if cbs == nil {
		cbs = DefaultDescriptorCallbacks{}
	}
	dsc.cbs = cbs
}

func (dsc *Descriptor) String() string {
	return fmt.Sprintf("Descriptor: uuid: %s, handle: %d", dsc.uuid,
		dsc.handle)
}

func (dsc *Descriptor) server() *Server {
	if dsc.chr == nil {
		return nil
	}
	return dsc.chr.server()
}

func (dsc *Descriptor) def() hostif.DscDef {
	return hostif.DscDef{
		Uuid:     dsc.uuid,
		AttFlags: dsc.attFlags,
		AccessCb: dsc.access,
		Handle:   &dsc.handle,
	}
}

func (dsc *Descriptor) access(ctxt *hostif.AccessCtxt) int {
	log.Debugf(">> descriptor access; uuid=%s handle=%d op=%s",
		dsc.uuid, ctxt.AttrHandle, BleGattOpToString(ctxt.Op))

	desc := connDescFor(dsc.server(), ctxt.ConnHandle)

	switch ctxt.Op {
	case BLE_GATT_ACCESS_OP_READ_DSC:
		// A long read calls back once per fragment; only notify the
		// application on the first one.
		if ctxt.Offset == 0 {
			dsc.cbs.OnRead(dsc, desc)
		}

		dsc.value.WithLock(func(b []byte) {
			ctxt.Out = append(ctxt.Out, b...)
		})
		return 0

	case BLE_GATT_ACCESS_OP_WRITE_DSC:
		data, rc := assembleWrite(ctxt, dsc.value.MaxLen())
		if rc != 0 {
			return rc
		}

		dsc.value.Set(data)
		dsc.cbs.OnWrite(dsc, desc)
		return 0

	default:
		return hostif.BLE_ATT_ERR_UNLIKELY
	}
}

// Concatenates the fragments of an incoming write.  Fails with
// INVALID_ATTR_VALUE_LEN if the result would exceed maxLen.
func assembleWrite(ctxt *hostif.AccessCtxt, maxLen int) ([]byte, int) {
	if ctxt.DataLen() > maxLen {
		return nil, hostif.BLE_ATT_ERR_INVALID_ATTR_VALUE_LEN
	}

	data := make([]byte, 0, ctxt.DataLen())
	for _, frag := range ctxt.Data {
		data = append(data, frag...)
	}

	return data, 0
}

// Looks up the connection descriptor for an access callback.  If the stack
// no longer knows the connection, only the handle is filled in.
func connDescFor(s *Server, connHandle uint16) BleConnDesc {
	if s != nil {
		if desc, rc := s.stack.GapConnFind(connHandle); rc == 0 {
			return desc
		}
	}

	return BleConnDesc{ConnHandle: connHandle}
}
