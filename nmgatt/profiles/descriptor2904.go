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

// Package profiles builds standard GATT services and descriptors on top of a
// gatts.Server.
package profiles

import (
	"encoding/binary"
	"fmt"

	"mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gatts"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
)

const BLE_DSC_UUID16_PRES_FMT = 0x2904

// Length of an encoded presentation format.
const PRES_FMT_LEN = 7

// Namespace of the Bluetooth SIG assigned numbers.
const PRES_FMT_NS_BT_SIG uint8 = 1

type PresFormat uint8

const (
	FORMAT_BOOLEAN PresFormat = 0x01
	FORMAT_UINT2   PresFormat = 0x02
	FORMAT_UINT4   PresFormat = 0x03
	FORMAT_UINT8   PresFormat = 0x04
	FORMAT_UINT12  PresFormat = 0x05
	FORMAT_UINT16  PresFormat = 0x06
	FORMAT_UINT24  PresFormat = 0x07
	FORMAT_UINT32  PresFormat = 0x08
	FORMAT_UINT48  PresFormat = 0x09
	FORMAT_UINT64  PresFormat = 0x0a
	FORMAT_UINT128 PresFormat = 0x0b
	FORMAT_SINT8   PresFormat = 0x0c
	FORMAT_SINT12  PresFormat = 0x0d
	FORMAT_SINT16  PresFormat = 0x0e
	FORMAT_SINT24  PresFormat = 0x0f
	FORMAT_SINT32  PresFormat = 0x10
	FORMAT_SINT48  PresFormat = 0x11
	FORMAT_SINT64  PresFormat = 0x12
	FORMAT_SINT128 PresFormat = 0x13
	FORMAT_FLOAT32 PresFormat = 0x14
	FORMAT_FLOAT64 PresFormat = 0x15
	FORMAT_SFLOAT  PresFormat = 0x16
	FORMAT_FLOAT   PresFormat = 0x17
	FORMAT_DUINT16 PresFormat = 0x18
	FORMAT_UTF8    PresFormat = 0x19
	FORMAT_UTF16   PresFormat = 0x1a
	FORMAT_OPAQUE  PresFormat = 0x1b
)

var PresFormatStringMap = map[PresFormat]string{
	FORMAT_BOOLEAN: "boolean",
	FORMAT_UINT2:   "uint2",
	FORMAT_UINT4:   "uint4",
	FORMAT_UINT8:   "uint8",
	FORMAT_UINT12:  "uint12",
	FORMAT_UINT16:  "uint16",
	FORMAT_UINT24:  "uint24",
	FORMAT_UINT32:  "uint32",
	FORMAT_UINT48:  "uint48",
	FORMAT_UINT64:  "uint64",
	FORMAT_UINT128: "uint128",
	FORMAT_SINT8:   "sint8",
	FORMAT_SINT12:  "sint12",
	FORMAT_SINT16:  "sint16",
	FORMAT_SINT24:  "sint24",
	FORMAT_SINT32:  "sint32",
	FORMAT_SINT48:  "sint48",
	FORMAT_SINT64:  "sint64",
	FORMAT_SINT128: "sint128",
	FORMAT_FLOAT32: "float32",
	FORMAT_FLOAT64: "float64",
	FORMAT_SFLOAT:  "sfloat",
	FORMAT_FLOAT:   "float",
	FORMAT_DUINT16: "duint16",
	FORMAT_UTF8:    "utf8s",
	FORMAT_UTF16:   "utf16s",
	FORMAT_OPAQUE:  "struct",
}

func PresFormatToString(f PresFormat) string {
	s := PresFormatStringMap[f]
	if s == "" {
		return "???"
	}

	return s
}

func (f PresFormat) String() string {
	return PresFormatToString(f)
}

// Characteristic Presentation Format.
type PresentationFormat struct {
	Format      PresFormat
	Exponent    int8
	Unit        uint16
	Namespace   uint8
	Description uint16
}

func NewPresentationFormat() PresentationFormat {
	return PresentationFormat{
		Namespace: PRES_FMT_NS_BT_SIG,
	}
}

// Encodes the format as its 7-byte wire representation (little endian).
func (pf PresentationFormat) MarshalBinary() ([]byte, error) {
	b := make([]byte, PRES_FMT_LEN)

	b[0] = byte(pf.Format)
	b[1] = byte(pf.Exponent)
	binary.LittleEndian.PutUint16(b[2:4], pf.Unit)
	b[4] = pf.Namespace
	binary.LittleEndian.PutUint16(b[5:7], pf.Description)

	return b, nil
}

func (pf *PresentationFormat) UnmarshalBinary(data []byte) error {
	if len(data) != PRES_FMT_LEN {
		return nmxutil.FmtValidationError(
			"presentation format must be %d bytes; have %d",
			PRES_FMT_LEN, len(data))
	}

	pf.Format = PresFormat(data[0])
	pf.Exponent = int8(data[1])
	pf.Unit = binary.LittleEndian.Uint16(data[2:4])
	pf.Namespace = data[4]
	pf.Description = binary.LittleEndian.Uint16(data[5:7])

	return nil
}

func (pf PresentationFormat) String() string {
	return fmt.Sprintf("format=%s exponent=%d unit=0x%04x namespace=%d "+
		"description=0x%04x", pf.Format, pf.Exponent, pf.Unit, pf.Namespace,
		pf.Description)
}

// A 0x2904 descriptor.  Every setter rewrites the descriptor's value.
type Descriptor2904 struct {
	*gatts.Descriptor

	pf PresentationFormat
}

// Creates a read-only presentation format descriptor on chr.
func NewDescriptor2904(chr *gatts.Characteristic) *Descriptor2904 {
	dsc := chr.CreateDescriptor(
		bledefs.NewBleUuid16(BLE_DSC_UUID16_PRES_FMT),
		bledefs.BLE_GATT_F_READ, PRES_FMT_LEN)

	d := &Descriptor2904{
		Descriptor: dsc,
		pf:         NewPresentationFormat(),
	}
	d.write()

	return d
}

func (d *Descriptor2904) write() {
	b, _ := d.pf.MarshalBinary()
	d.SetValue(b)
}

func (d *Descriptor2904) Format() PresentationFormat {
	return d.pf
}

func (d *Descriptor2904) SetFormat(format PresFormat) {
	d.pf.Format = format
	d.write()
}

func (d *Descriptor2904) SetExponent(exponent int8) {
	d.pf.Exponent = exponent
	d.write()
}

// unit is a Bluetooth SIG assigned unit UUID (e.g., 0x27ad for percentage).
func (d *Descriptor2904) SetUnit(unit uint16) {
	d.pf.Unit = unit
	d.write()
}

func (d *Descriptor2904) SetNamespace(namespace uint8) {
	d.pf.Namespace = namespace
	d.write()
}

func (d *Descriptor2904) SetDescription(description uint16) {
	d.pf.Description = description
	d.write()
}
