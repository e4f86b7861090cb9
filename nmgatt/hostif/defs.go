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
	"fmt"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
)

// Context passed to an attribute access callback.
type AccessCtxt struct {
	Op         BleGattOp
	ConnHandle uint16
	AttrHandle uint16

	// Read offset; a long read calls the callback once per fragment.
	Offset int

	// Write: the received value, possibly split across several buffers.
	Data [][]byte

	// Read: the callback appends the full attribute value here.  The stack
	// takes care of applying Offset.
	Out []byte
}

// Returns the total length of the write data.
func (c *AccessCtxt) DataLen() int {
	total := 0
	for _, d := range c.Data {
		total += len(d)
	}

	return total
}

// Invoked by the stack when a peer reads or writes a local attribute.
// Returns 0 or one of the BLE_ATT_ERR codes.
type AccessFn func(ctxt *AccessCtxt) int

type DscDef struct {
	Uuid       BleUuid
	AttFlags   BleAttFlags
	MinKeySize uint8
	AccessCb   AccessFn

	// Filled in by the stack when the database is started.
	Handle *uint16
}

type ChrDef struct {
	Uuid       BleUuid
	AccessCb   AccessFn
	Dscs       []DscDef
	Flags      BleChrFlags
	MinKeySize uint8

	// Filled in by the stack when the database is started.
	ValHandle *uint16
}

// A compiled service definition, the form in which services are registered
// with the stack.
type SvcDef struct {
	Type BleSvcType
	Uuid BleUuid
	Chrs []ChrDef
}

type SvcDefs []SvcDef

func (d *DscDef) Validate() error {
	if !d.Uuid.IsSet() {
		return fmt.Errorf("descriptor missing UUID")
	}
	if d.AccessCb == nil {
		return fmt.Errorf("descriptor %s missing access callback", d.Uuid)
	}

	return nil
}

func (c *ChrDef) Validate() error {
	if !c.Uuid.IsSet() {
		return fmt.Errorf("characteristic missing UUID")
	}
	if c.AccessCb == nil {
		return fmt.Errorf("characteristic %s missing access callback", c.Uuid)
	}

	for i := range c.Dscs {
		if err := c.Dscs[i].Validate(); err != nil {
			return fmt.Errorf("characteristic %s: %s", c.Uuid, err.Error())
		}
	}

	return nil
}

func (s *SvcDef) Validate() error {
	if s.Type != BLE_SVC_TYPE_PRIMARY && s.Type != BLE_SVC_TYPE_SECONDARY {
		return fmt.Errorf("invalid service type: %d", s.Type)
	}
	if !s.Uuid.IsSet() {
		return fmt.Errorf("service missing UUID")
	}

	for i := range s.Chrs {
		if err := s.Chrs[i].Validate(); err != nil {
			return fmt.Errorf("service %s: %s", s.Uuid, err.Error())
		}
	}

	return nil
}

func (defs SvcDefs) Validate() error {
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Number of attributes the definitions occupy once registered.  A
// characteristic that can notify or indicate gets an implicit client
// configuration descriptor.
func (defs SvcDefs) AttrCount() int {
	count := 0
	for _, svc := range defs {
		count++
		for _, chr := range svc.Chrs {
			count += 2
			if chr.Flags&(BLE_GATT_F_NOTIFY|BLE_GATT_F_INDICATE) != 0 {
				count++
			}
			count += len(chr.Dscs)
		}
	}

	return count
}

// Results of client discovery procedures.

type SvcInfo struct {
	StartHandle uint16
	EndHandle   uint16
	Uuid        BleUuid
}

type ChrInfo struct {
	DefHandle  uint16
	ValHandle  uint16
	Properties BleChrFlags
	Uuid       BleUuid
}

type DscInfo struct {
	Handle uint16
	Uuid   BleUuid
}

type Attr struct {
	Handle uint16
	Offset int
	Data   []byte
}

// Client completion callbacks.  Discovery and long reads invoke the callback
// once per item with status 0, then a final time with BLE_HS_EDONE or an
// error.  A nonzero return value aborts the procedure.
type SvcFn func(connHandle uint16, status int, svc *SvcInfo) int
type ChrFn func(connHandle uint16, status int, chr *ChrInfo) int
type DscFn func(connHandle uint16, status int, chrValHandle uint16,
	dsc *DscInfo) int
type AttrFn func(connHandle uint16, status int, attr *Attr) int
type MtuFn func(connHandle uint16, status int, mtu uint16) int
