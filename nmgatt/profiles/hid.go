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

package profiles

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gatts"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
)

const (
	BLE_SVC_UUID16_DEVICE_INFO = 0x180a
	BLE_SVC_UUID16_HID         = 0x1812
	BLE_SVC_UUID16_BATTERY     = 0x180f

	BLE_CHR_UUID16_MANUFACTURER  = 0x2a29
	BLE_CHR_UUID16_PNP_ID        = 0x2a50
	BLE_CHR_UUID16_HID_INFO      = 0x2a4a
	BLE_CHR_UUID16_REPORT_MAP    = 0x2a4b
	BLE_CHR_UUID16_HID_CTRL      = 0x2a4c
	BLE_CHR_UUID16_REPORT        = 0x2a4d
	BLE_CHR_UUID16_PROTOCOL_MODE = 0x2a4e
	BLE_CHR_UUID16_BOOT_INPUT    = 0x2a22
	BLE_CHR_UUID16_BOOT_OUTPUT   = 0x2a32
	BLE_CHR_UUID16_BATTERY_LEVEL = 0x2a19

	BLE_DSC_UUID16_REPORT_REF = 0x2908
)

// Percentage, from the Bluetooth SIG units.
const BLE_UNIT_PERCENTAGE uint16 = 0x27ad

const (
	HID_PROTOCOL_MODE_BOOT   uint8 = 0x00
	HID_PROTOCOL_MODE_REPORT uint8 = 0x01
)

const (
	PNP_LEN      = 7
	HID_INFO_LEN = 4
)

type ReportType uint8

const (
	REPORT_TYPE_INPUT   ReportType = 0x01
	REPORT_TYPE_OUTPUT  ReportType = 0x02
	REPORT_TYPE_FEATURE ReportType = 0x03
)

var ReportTypeStringMap = map[ReportType]string{
	REPORT_TYPE_INPUT:   "input",
	REPORT_TYPE_OUTPUT:  "output",
	REPORT_TYPE_FEATURE: "feature",
}

func ReportTypeToString(rt ReportType) string {
	s := ReportTypeStringMap[rt]
	if s == "" {
		return "???"
	}

	return s
}

// Value of a report reference descriptor (0x2908).
type ReportRef struct {
	Id   uint8
	Type ReportType
}

func (rr ReportRef) MarshalBinary() ([]byte, error) {
	return []byte{rr.Id, byte(rr.Type)}, nil
}

func (rr *ReportRef) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return nmxutil.FmtValidationError(
			"report reference must be 2 bytes; have %d", len(data))
	}

	rr.Id = data[0]
	rr.Type = ReportType(data[1])
	return nil
}

func (rr ReportRef) String() string {
	return fmt.Sprintf("id=%d type=%s", rr.Id, ReportTypeToString(rr.Type))
}

// Encodes a PnP ID value.  Multi-byte fields are written most significant
// byte first.
func EncodePnp(sig uint8, vid uint16, pid uint16, version uint16) []byte {
	return []byte{
		sig,
		byte(vid >> 8), byte(vid),
		byte(pid >> 8), byte(pid),
		byte(version >> 8), byte(version),
	}
}

// Encodes a HID Information value for HID class release 1.11.
func EncodeHidInfo(country uint8, flags uint8) []byte {
	return []byte{0x11, 0x01, country, flags}
}

// The device information, HID and battery services of a HID over GATT
// device.  Reports are added with InputReport, OutputReport and
// FeatureReport before StartServices is called.
type HIDDevice struct {
	srv *gatts.Server

	devInfoSvc *gatts.Service
	hidSvc     *gatts.Service
	batterySvc *gatts.Service

	manufacturerChr *gatts.Characteristic
	pnpChr          *gatts.Characteristic
	hidInfoChr      *gatts.Characteristic
	reportMapChr    *gatts.Characteristic
	hidCtrlChr      *gatts.Characteristic
	protoModeChr    *gatts.Characteristic
	batteryLevelChr *gatts.Characteristic
	batteryFmt      *Descriptor2904
}

func uuid16(val uint16) BleUuid {
	return NewBleUuid16(val)
}

// Creates the mandatory services and characteristics on srv.  The protocol
// mode starts in report mode.
func NewHIDDevice(srv *gatts.Server) *HIDDevice {
	hid := &HIDDevice{
		srv:        srv,
		devInfoSvc: srv.CreateService(uuid16(BLE_SVC_UUID16_DEVICE_INFO)),
		hidSvc:     srv.CreateService(uuid16(BLE_SVC_UUID16_HID)),
		batterySvc: srv.CreateService(uuid16(BLE_SVC_UUID16_BATTERY)),
	}

	hid.pnpChr = hid.devInfoSvc.CreateCharacteristic(
		uuid16(BLE_CHR_UUID16_PNP_ID), BLE_GATT_F_READ, PNP_LEN)

	hid.hidInfoChr = hid.hidSvc.CreateCharacteristic(
		uuid16(BLE_CHR_UUID16_HID_INFO), BLE_GATT_F_READ, HID_INFO_LEN)
	hid.reportMapChr = hid.hidSvc.CreateCharacteristic(
		uuid16(BLE_CHR_UUID16_REPORT_MAP), BLE_GATT_F_READ,
		BLE_ATT_ATTR_MAX_LEN)
	hid.hidCtrlChr = hid.hidSvc.CreateCharacteristic(
		uuid16(BLE_CHR_UUID16_HID_CTRL), BLE_GATT_F_WRITE_NO_RSP, 1)
	hid.protoModeChr = hid.hidSvc.CreateCharacteristic(
		uuid16(BLE_CHR_UUID16_PROTOCOL_MODE),
		BLE_GATT_F_READ|BLE_GATT_F_WRITE_NO_RSP, 1)

	hid.batteryLevelChr = hid.batterySvc.CreateCharacteristic(
		uuid16(BLE_CHR_UUID16_BATTERY_LEVEL),
		BLE_GATT_F_READ|BLE_GATT_F_NOTIFY, 1)
	hid.batteryFmt = NewDescriptor2904(hid.batteryLevelChr)
	hid.batteryFmt.SetFormat(FORMAT_UINT8)
	hid.batteryFmt.SetNamespace(PRES_FMT_NS_BT_SIG)
	hid.batteryFmt.SetUnit(BLE_UNIT_PERCENTAGE)

	hid.protoModeChr.SetValue([]byte{HID_PROTOCOL_MODE_REPORT})

	return hid
}

func (hid *HIDDevice) DeviceInfo() *gatts.Service {
	return hid.devInfoSvc
}

func (hid *HIDDevice) HidService() *gatts.Service {
	return hid.hidSvc
}

func (hid *HIDDevice) BatteryService() *gatts.Service {
	return hid.batterySvc
}

// Returns the optional manufacturer name characteristic, creating it on
// first use.
func (hid *HIDDevice) Manufacturer() *gatts.Characteristic {
	if hid.manufacturerChr == nil {
		hid.manufacturerChr = hid.devInfoSvc.CreateCharacteristic(
			uuid16(BLE_CHR_UUID16_MANUFACTURER), BLE_GATT_F_READ, 64)
	}

	return hid.manufacturerChr
}

func (hid *HIDDevice) SetManufacturer(name string) bool {
	return hid.Manufacturer().Value().SetString(name)
}

func (hid *HIDDevice) Pnp(sig uint8, vid uint16, pid uint16, version uint16) {
	hid.pnpChr.SetValue(EncodePnp(sig, vid, pid, version))
}

func (hid *HIDDevice) HidInfo(country uint8, flags uint8) {
	hid.hidInfoChr.SetValue(EncodeHidInfo(country, flags))
}

func (hid *HIDDevice) SetReportMap(reportMap []byte) bool {
	return hid.reportMapChr.SetValue(reportMap)
}

func (hid *HIDDevice) ReportMap() *gatts.Characteristic {
	return hid.reportMapChr
}

func (hid *HIDDevice) PnpCharacteristic() *gatts.Characteristic {
	return hid.pnpChr
}

func (hid *HIDDevice) HidControl() *gatts.Characteristic {
	return hid.hidCtrlChr
}

func (hid *HIDDevice) ProtocolMode() *gatts.Characteristic {
	return hid.protoModeChr
}

func (hid *HIDDevice) BatteryLevel() *gatts.Characteristic {
	return hid.batteryLevelChr
}

func (hid *HIDDevice) BatteryFormat() *Descriptor2904 {
	return hid.batteryFmt
}

// Sets the battery level and notifies subscribers.
func (hid *HIDDevice) SetBatteryLevel(level uint8) {
	hid.batteryLevelChr.Value().SetUint8(level)
	hid.batteryLevelChr.Notify(nil, true, BLE_CONN_HANDLE_NONE)
}

func (hid *HIDDevice) addReport(id uint8, rt ReportType,
	chrFlags BleChrFlags, dscFlags BleChrFlags) *gatts.Characteristic {

	chr := hid.hidSvc.CreateCharacteristic(uuid16(BLE_CHR_UUID16_REPORT),
		chrFlags, BLE_ATT_ATTR_MAX_LEN)
	dsc := chr.CreateDescriptor(uuid16(BLE_DSC_UUID16_REPORT_REF),
		dscFlags, 2)

	ref, _ := ReportRef{Id: id, Type: rt}.MarshalBinary()
	dsc.SetValue(ref)

	log.Debugf("hid: added %s report %d", ReportTypeToString(rt), id)
	return chr
}

// Creates an input report characteristic.  id matches the report's ID in
// the report map.
func (hid *HIDDevice) InputReport(id uint8) *gatts.Characteristic {
	return hid.addReport(id, REPORT_TYPE_INPUT,
		BLE_GATT_F_READ|BLE_GATT_F_NOTIFY|BLE_GATT_F_READ_ENC,
		BLE_GATT_F_READ|BLE_GATT_F_READ_ENC)
}

func (hid *HIDDevice) OutputReport(id uint8) *gatts.Characteristic {
	return hid.addReport(id, REPORT_TYPE_OUTPUT,
		BLE_GATT_F_READ|BLE_GATT_F_WRITE|BLE_GATT_F_WRITE_NO_RSP|
			BLE_GATT_F_READ_ENC|BLE_GATT_F_WRITE_ENC,
		BLE_GATT_F_READ|BLE_GATT_F_WRITE|
			BLE_GATT_F_READ_ENC|BLE_GATT_F_WRITE_ENC)
}

func (hid *HIDDevice) FeatureReport(id uint8) *gatts.Characteristic {
	return hid.addReport(id, REPORT_TYPE_FEATURE,
		BLE_GATT_F_READ|BLE_GATT_F_WRITE|
			BLE_GATT_F_READ_ENC|BLE_GATT_F_WRITE_ENC,
		BLE_GATT_F_READ|BLE_GATT_F_WRITE|
			BLE_GATT_F_READ_ENC|BLE_GATT_F_WRITE_ENC)
}

// Keyboard boot protocol input report.
func (hid *HIDDevice) BootInput() *gatts.Characteristic {
	return hid.hidSvc.CreateCharacteristic(uuid16(BLE_CHR_UUID16_BOOT_INPUT),
		BLE_GATT_F_NOTIFY, 8)
}

// Keyboard boot protocol output report.
func (hid *HIDDevice) BootOutput() *gatts.Characteristic {
	return hid.hidSvc.CreateCharacteristic(uuid16(BLE_CHR_UUID16_BOOT_OUTPUT),
		BLE_GATT_F_READ|BLE_GATT_F_WRITE|BLE_GATT_F_WRITE_NO_RSP, 1)
}

// Registers the three services with the stack.  Server.Start is still
// required to bring up the database.
func (hid *HIDDevice) StartServices() error {
	for _, svc := range []*gatts.Service{
		hid.devInfoSvc, hid.hidSvc, hid.batterySvc,
	} {
		if err := svc.Start(); err != nil {
			return err
		}
	}

	return nil
}
