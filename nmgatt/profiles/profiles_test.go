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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gattc"
	"mynewt.apache.org/gattmgr/nmgatt/gatts"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
	"mynewt.apache.org/gattmgr/nmgatt/simhost"
)

func TestPresentationFormatEncoding(t *testing.T) {
	pf := PresentationFormat{
		Format:      FORMAT_SINT16,
		Exponent:    -2,
		Unit:        0x272f,
		Namespace:   PRES_FMT_NS_BT_SIG,
		Description: 0x0106,
	}

	b, err := pf.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0e, 0xfe, 0x2f, 0x27, 0x01, 0x06, 0x01}, b)

	var back PresentationFormat
	require.NoError(t, back.UnmarshalBinary(b))
	assert.Equal(t, pf, back)

	err = back.UnmarshalBinary(b[:6])
	assert.True(t, nmxutil.IsValidation(err))

	assert.Equal(t, "uint8", FORMAT_UINT8.String())
	assert.Equal(t, "???", PresFormat(0x7f).String())
}

func TestDescriptor2904Setters(t *testing.T) {
	svc := gatts.NewService(NewBleUuid16(0x181a))
	chr := gatts.NewCharacteristic(NewBleUuid16(0x2a6e), BLE_GATT_F_READ, 2)
	svc.AddCharacteristic(chr)

	d := NewDescriptor2904(chr)
	assert.Same(t, d.Descriptor, chr.GetDescriptorByUuid(
		NewBleUuid16(BLE_DSC_UUID16_PRES_FMT)))

	// Defaults to the SIG namespace.
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 0, 0}, d.GetValue())

	d.SetFormat(FORMAT_SINT16)
	d.SetExponent(-2)
	d.SetUnit(0x272f)
	d.SetDescription(0x0106)
	d.SetNamespace(2)

	assert.Equal(t, []byte{0x0e, 0xfe, 0x2f, 0x27, 0x02, 0x06, 0x01},
		d.GetValue())
	assert.Equal(t, FORMAT_SINT16, d.Format().Format)
}

func TestHidEncodings(t *testing.T) {
	assert.Equal(t, []byte{0x02, 0x12, 0x34, 0x56, 0x78, 0x01, 0x00},
		EncodePnp(0x02, 0x1234, 0x5678, 0x0100))
	assert.Equal(t, []byte{0x11, 0x01, 0x00, 0x02}, EncodeHidInfo(0x00, 0x02))

	b, err := ReportRef{Id: 3, Type: REPORT_TYPE_FEATURE}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 3}, b)

	var rr ReportRef
	require.NoError(t, rr.UnmarshalBinary([]byte{1, 2}))
	assert.Equal(t, ReportRef{Id: 1, Type: REPORT_TYPE_OUTPUT}, rr)
	assert.Error(t, rr.UnmarshalBinary([]byte{1}))
}

func TestHidDeviceTree(t *testing.T) {
	hub := simhost.NewHub()
	defer hub.Stop()

	host, err := hub.NewHost(simhost.NewHostCfg())
	require.NoError(t, err)

	srv := gatts.NewServer(host, gatts.NewServerCfg())
	hid := NewHIDDevice(srv)

	hid.SetManufacturer("acme")
	hid.Pnp(0x02, 0x1234, 0x5678, 0x0100)
	hid.HidInfo(0x00, 0x02)
	require.True(t, hid.SetReportMap([]byte{0x05, 0x01, 0x09, 0x06}))

	in := hid.InputReport(1)
	out := hid.OutputReport(2)
	hid.FeatureReport(3)
	hid.BootInput()
	hid.BootOutput()

	require.NoError(t, hid.StartServices())
	require.NoError(t, srv.Start())

	svcs := srv.Services()
	require.Len(t, svcs, 3)
	assert.True(t, svcs[0].Uuid().Equal(NewBleUuid16(BLE_SVC_UUID16_DEVICE_INFO)))
	assert.True(t, svcs[1].Uuid().Equal(NewBleUuid16(BLE_SVC_UUID16_HID)))
	assert.True(t, svcs[2].Uuid().Equal(NewBleUuid16(BLE_SVC_UUID16_BATTERY)))

	assert.Equal(t, "acme", string(hid.Manufacturer().GetValue()))
	assert.Len(t, hid.DeviceInfo().Characteristics(), 2)

	// Mandatory four plus three reports and the two boot reports.
	assert.Len(t, hid.HidService().Characteristics(), 9)
	assert.Len(t, hid.HidService().GetCharacteristics(
		NewBleUuid16(BLE_CHR_UUID16_REPORT)), 3)

	assert.Equal(t, []byte{HID_PROTOCOL_MODE_REPORT},
		hid.ProtocolMode().GetValue())
	assert.Equal(t, BLE_GATT_F_WRITE_NO_RSP, hid.HidControl().Properties())

	ref := in.GetDescriptorByUuid(NewBleUuid16(BLE_DSC_UUID16_REPORT_REF))
	require.NotNil(t, ref)
	assert.Equal(t, []byte{1, byte(REPORT_TYPE_INPUT)}, ref.GetValue())

	ref = out.GetDescriptorByUuid(NewBleUuid16(BLE_DSC_UUID16_REPORT_REF))
	require.NotNil(t, ref)
	assert.Equal(t, []byte{2, byte(REPORT_TYPE_OUTPUT)}, ref.GetValue())

	assert.Equal(t, []byte{byte(FORMAT_UINT8), 0, 0xad, 0x27, 1, 0, 0},
		hid.BatteryFormat().GetValue())

	for _, chr := range hid.HidService().Characteristics() {
		assert.NotEqual(t, BLE_CONN_HANDLE_NONE, chr.Handle(), chr.String())
	}
}

func TestHidBatteryNotify(t *testing.T) {
	hub := simhost.NewHub()
	defer hub.Stop()

	pcfg := simhost.NewHostCfg()
	pcfg.Name = "keyboard"
	pcfg.Addr = BleDev{Addr: BleAddr{Bytes: [6]byte{1, 0, 0, 0, 0, 0xc0}}}
	periph, err := hub.NewHost(pcfg)
	require.NoError(t, err)

	ccfg := simhost.NewHostCfg()
	ccfg.Name = "host"
	ccfg.Addr = BleDev{Addr: BleAddr{Bytes: [6]byte{2, 0, 0, 0, 0, 0xc0}}}
	central, err := hub.NewHost(ccfg)
	require.NoError(t, err)

	srv := gatts.NewServer(periph, gatts.NewServerCfg())
	periph.SetGapEventFn(srv.HandleGapEvent)

	hid := NewHIDDevice(srv)
	hid.SetBatteryLevel(100)
	require.NoError(t, hid.StartServices())
	require.NoError(t, srv.Start())
	require.NoError(t, srv.StartAdvertising())

	cfg := gattc.NewClientCfg()
	cfg.ConnectTimeout = 2 * time.Second
	cli := gattc.NewClient(central, periph.OwnAddr(), cfg)
	defer cli.Close()
	central.SetGapEventFn(cli.HandleGapEvent)
	require.NoError(t, cli.Connect())

	svc, err := cli.GetService(NewBleUuid16(BLE_SVC_UUID16_BATTERY))
	require.NoError(t, err)
	require.NotNil(t, svc)

	chr, err := svc.GetCharacteristic(NewBleUuid16(BLE_CHR_UUID16_BATTERY_LEVEL))
	require.NoError(t, err)
	require.NotNil(t, chr)

	b, err := chr.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, []byte{100}, b)

	dsc, err := chr.GetDescriptor(NewBleUuid16(BLE_DSC_UUID16_PRES_FMT))
	require.NoError(t, err)
	require.NotNil(t, dsc)

	b, err = dsc.ReadValue()
	require.NoError(t, err)
	var pf PresentationFormat
	require.NoError(t, pf.UnmarshalBinary(b))
	assert.Equal(t, FORMAT_UINT8, pf.Format)
	assert.Equal(t, BLE_UNIT_PERCENTAGE, pf.Unit)

	levels := make(chan []byte, 1)
	require.NoError(t, chr.Subscribe(true,
		func(c *gattc.RemoteCharacteristic, data []byte, isNotify bool) {
			levels <- data
		}, true))

	hid.SetBatteryLevel(42)

	select {
	case data := <-levels:
		assert.Equal(t, []byte{42}, data)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no battery notification")
	}
}
