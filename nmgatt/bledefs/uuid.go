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

package bledefs

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type BleUuidType int

const (
	BLE_UUID_TYPE_NONE BleUuidType = 0
	BLE_UUID_TYPE_16   BleUuidType = 16
	BLE_UUID_TYPE_32   BleUuidType = 32
	BLE_UUID_TYPE_128  BleUuidType = 128
)

type BleUuid16 uint16

func (bu16 BleUuid16) String() string {
	return fmt.Sprintf("0x%04x", uint16(bu16))
}

func ParseUuid16(s string) (BleUuid16, error) {
	val, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return BleUuid16(0), fmt.Errorf("Invalid UUID: %s", s)
	}

	return BleUuid16(val), nil
}

type BleUuid32 uint32

func (bu32 BleUuid32) String() string {
	return fmt.Sprintf("0x%08x", uint32(bu32))
}

// 128-bit UUID; bytes are stored in string order (most significant first).
type BleUuid128 [16]byte

// 00000000-0000-1000-8000-00805f9b34fb.  A 16 or 32-bit UUID occupies the
// first four bytes.
var BleBaseUuid = BleUuid128{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
}

func (bu128 BleUuid128) String() string {
	return uuid.UUID(bu128).String()
}

func ParseUuid128(s string) (BleUuid128, error) {
	if len(s) != 36 {
		return BleUuid128{}, fmt.Errorf("Invalid UUID: %s", s)
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return BleUuid128{}, fmt.Errorf("Invalid UUID: %s", s)
	}

	return BleUuid128(u), nil
}

// Reports whether the UUID is the Bluetooth base UUID with a 32-bit value
// substituted in.
func (bu128 BleUuid128) HasBase() bool {
	return bytes.Equal(bu128[4:], BleBaseUuid[4:])
}

func (bu128 BleUuid128) value32() uint32 {
	return binary.BigEndian.Uint32(bu128[0:4])
}

func baseWith(val uint32) BleUuid128 {
	u := BleBaseUuid
	binary.BigEndian.PutUint32(u[0:4], val)
	return u
}

// A 16, 32, or 128-bit Bluetooth UUID, or nothing at all.  Two UUIDs compare
// equal if their 128-bit expansions match, regardless of width.
type BleUuid struct {
	Type BleUuidType
	U16  BleUuid16
	U32  BleUuid32
	U128 BleUuid128
}

func NewBleUuid16(val uint16) BleUuid {
	return BleUuid{Type: BLE_UUID_TYPE_16, U16: BleUuid16(val)}
}

func NewBleUuid32(val uint32) BleUuid {
	return BleUuid{Type: BLE_UUID_TYPE_32, U32: BleUuid32(val)}
}

func NewBleUuid128(val BleUuid128) BleUuid {
	return BleUuid{Type: BLE_UUID_TYPE_128, U128: val}
}

// Builds a UUID from its little-endian wire representation (2, 4, or 16
// bytes).
func NewBleUuidFromBytes(b []byte) (BleUuid, error) {
	switch len(b) {
	case 2:
		return NewBleUuid16(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return NewBleUuid32(binary.LittleEndian.Uint32(b)), nil
	case 16:
		var u BleUuid128
		for i := 0; i < 16; i++ {
			u[i] = b[15-i]
		}
		return NewBleUuid128(u), nil
	default:
		return BleUuid{}, fmt.Errorf("Invalid UUID length: %d", len(b))
	}
}

// Encodes the UUID in little-endian wire order.
func (bu BleUuid) Bytes() []byte {
	switch bu.Type {
	case BLE_UUID_TYPE_16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(bu.U16))
		return b

	case BLE_UUID_TYPE_32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(bu.U32))
		return b

	case BLE_UUID_TYPE_128:
		b := make([]byte, 16)
		for i := 0; i < 16; i++ {
			b[i] = bu.U128[15-i]
		}
		return b

	default:
		return nil
	}
}

func (bu BleUuid) IsSet() bool {
	return bu.Type != BLE_UUID_TYPE_NONE
}

func (bu BleUuid) BitSize() int {
	return int(bu.Type)
}

// Returns the full 128-bit form of the UUID.  An unset UUID yields the zero
// value.
func (bu BleUuid) Canonical() BleUuid128 {
	switch bu.Type {
	case BLE_UUID_TYPE_16:
		return baseWith(uint32(bu.U16))
	case BLE_UUID_TYPE_32:
		return baseWith(uint32(bu.U32))
	case BLE_UUID_TYPE_128:
		return bu.U128
	default:
		return BleUuid128{}
	}
}

func (bu BleUuid) Equal(other BleUuid) bool {
	if !bu.IsSet() || !other.IsSet() {
		return bu.IsSet() == other.IsSet()
	}

	if bu.Type == other.Type {
		switch bu.Type {
		case BLE_UUID_TYPE_16:
			return bu.U16 == other.U16
		case BLE_UUID_TYPE_32:
			return bu.U32 == other.U32
		default:
			return bu.U128 == other.U128
		}
	}

	return bu.Canonical() == other.Canonical()
}

// Expands a 16 or 32-bit UUID to its 128-bit form.  Other UUIDs are returned
// unchanged.
func (bu BleUuid) To128() BleUuid {
	if bu.Type != BLE_UUID_TYPE_16 && bu.Type != BLE_UUID_TYPE_32 {
		return bu
	}

	return NewBleUuid128(bu.Canonical())
}

// Shortens a 128-bit UUID to 16 bits if it is built on the Bluetooth base
// and its value fits.  Other UUIDs are returned unchanged.
func (bu BleUuid) To16() BleUuid {
	switch bu.Type {
	case BLE_UUID_TYPE_32:
		if bu.U32 <= 0xffff {
			return NewBleUuid16(uint16(bu.U32))
		}
		return bu

	case BLE_UUID_TYPE_128:
		if !bu.U128.HasBase() {
			return bu
		}
		val := bu.U128.value32()
		if val > 0xffff {
			return bu
		}
		return NewBleUuid16(uint16(val))

	default:
		return bu
	}
}

func (bu BleUuid) String() string {
	switch bu.Type {
	case BLE_UUID_TYPE_16:
		return bu.U16.String()
	case BLE_UUID_TYPE_32:
		return bu.U32.String()
	case BLE_UUID_TYPE_128:
		return bu.U128.String()
	default:
		return ""
	}
}

// Accepts "0x180d", "180d", "0x0000180d", "0000180d", or the dashed 128-bit
// form.
func ParseUuid(uuidStr string) (BleUuid, error) {
	s := strings.TrimSpace(uuidStr)
	hex := strings.TrimPrefix(strings.ToLower(s), "0x")

	switch len(hex) {
	case 4:
		val, err := strconv.ParseUint(hex, 16, 16)
		if err == nil {
			return NewBleUuid16(uint16(val)), nil
		}

	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err == nil {
			return NewBleUuid32(uint32(val)), nil
		}

	case 36:
		u128, err := ParseUuid128(hex)
		if err == nil {
			return NewBleUuid128(u128), nil
		}
	}

	// Last resort: a decimal or short hex 16-bit number.
	if u16, err := ParseUuid16(s); err == nil {
		return NewBleUuid16(uint16(u16)), nil
	}

	return BleUuid{}, fmt.Errorf("Invalid UUID: %s", uuidStr)
}

func (bu BleUuid) MarshalJSON() ([]byte, error) {
	return json.Marshal(bu.String())
}

func (bu *BleUuid) UnmarshalJSON(data []byte) error {
	var err error

	// If the value is a string, try to parse a UUID from it.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*bu, err = ParseUuid(s)
		return err
	}

	// Not a string; maybe it's a raw 16-bit number.
	var u16 uint16
	if err = json.Unmarshal(data, &u16); err != nil {
		return err
	}
	*bu = NewBleUuid16(u16)

	return nil
}

// Orders UUIDs by their 128-bit expansion.
func CompareUuids(a BleUuid, b BleUuid) int {
	ac := a.Canonical()
	bc := b.Canonical()
	return bytes.Compare(ac[:], bc[:])
}
