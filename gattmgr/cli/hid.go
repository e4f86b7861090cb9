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

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/nmutil"
	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gattc"
	"mynewt.apache.org/gattmgr/nmgatt/profiles"
)

// Boot-compatible keyboard with one input and one output report.
var keyboardReportMap = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x06, // Usage (Keyboard)
	0xa1, 0x01, // Collection (Application)
	0x85, 0x01, //   Report ID (1)
	0x05, 0x07, //   Usage Page (Key Codes)
	0x19, 0xe0, //   Usage Minimum (224)
	0x29, 0xe7, //   Usage Maximum (231)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data, Variable, Absolute)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x08, //   Report Size (8)
	0x81, 0x01, //   Input (Constant)
	0x95, 0x06, //   Report Count (6)
	0x75, 0x08, //   Report Size (8)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x65, //   Logical Maximum (101)
	0x05, 0x07, //   Usage Page (Key Codes)
	0x19, 0x00, //   Usage Minimum (0)
	0x29, 0x65, //   Usage Maximum (101)
	0x81, 0x00, //   Input (Data, Array)
	0x85, 0x02, //   Report ID (2)
	0x95, 0x05, //   Report Count (5)
	0x75, 0x01, //   Report Size (1)
	0x05, 0x08, //   Usage Page (LEDs)
	0x19, 0x01, //   Usage Minimum (1)
	0x29, 0x05, //   Usage Maximum (5)
	0x91, 0x02, //   Output (Data, Variable, Absolute)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x03, //   Report Size (3)
	0x91, 0x01, //   Output (Constant)
	0xc0,       // End Collection
}

func hidRunCmd(cmd *cobra.Command, args []string) {
	level, _ := cmd.Flags().GetUint8("battery")

	env, err := newSimEnv(nil)
	if err != nil {
		nmUsage(nil, err)
	}
	defer env.Close()

	hid := profiles.NewHIDDevice(env.server())
	hid.SetManufacturer("Apache Mynewt")
	hid.Pnp(0x02, 0x0a12, 0x0001, 0x0100)
	hid.HidInfo(0x00, 0x01)
	hid.SetReportMap(keyboardReportMap)
	hid.InputReport(1)
	hid.OutputReport(2)
	hid.BootInput()
	hid.BootOutput()
	hid.BatteryLevel().Value().SetUint8(100)

	if err := hid.StartServices(); err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}
	if err := env.server().Start(); err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}

	printServer(env.server())
	fmt.Printf("battery format: %s\n", hid.BatteryFormat().Format())

	c, err := env.connect()
	if err != nil {
		nmUsage(nil, err)
	}

	svc, err := c.GetService(NewBleUuid16(profiles.BLE_SVC_UUID16_BATTERY))
	if err != nil || svc == nil {
		nmUsage(nil, util.NewNewtError("battery service not found"))
	}
	bl, err := svc.GetCharacteristic(
		NewBleUuid16(profiles.BLE_CHR_UUID16_BATTERY_LEVEL))
	if err != nil || bl == nil {
		nmUsage(nil, util.NewNewtError("battery level not found"))
	}

	notified := make(chan []byte, 1)
	err = bl.Subscribe(true, func(chr *gattc.RemoteCharacteristic,
		data []byte, isNotify bool) {

		select {
		case notified <- data:
		default:
		}
	}, true)
	if err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}

	hid.SetBatteryLevel(level)

	select {
	case data := <-notified:
		fmt.Printf("battery level notification: %s\n", hexStr(data))
	case <-time.After(nmutil.TimeoutDuration()):
		nmUsage(nil, util.NewNewtError("no battery level notification"))
	}
}

func hidCmd() *cobra.Command {
	hidCmd := &cobra.Command{
		Use:   "hid",
		Short: "Run a HID keyboard on the simulated peripheral",
		Run:   hidRunCmd,
	}
	hidCmd.Flags().Uint8("battery", 87, "Battery level to notify")

	return hidCmd
}
