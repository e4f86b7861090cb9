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

	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/nmutil"
)

func peerDiscoverCmd(cmd *cobra.Command, args []string) {
	env := openProfileEnv(cmd, profileName(args))
	defer env.Close()

	c, err := env.connect()
	if err != nil {
		nmUsage(nil, err)
	}

	if err := c.DiscoverAttributes(); err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}

	if err := printMirror(c); err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}
}

func peerReadCmd(cmd *cobra.Command, args []string) {
	if len(args) < 3 {
		nmUsage(cmd, util.NewNewtError(
			"Need profile name, service UUID, and characteristic UUID"))
	}

	svcUuid := parseUuidArg(cmd, args[1])
	chrUuid := parseUuidArg(cmd, args[2])

	env := openProfileEnv(cmd, args[0])
	defer env.Close()

	c, err := env.connect()
	if err != nil {
		nmUsage(nil, err)
	}

	val, err := c.GetValue(svcUuid, chrUuid)
	if err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}

	fmt.Printf("%s: %s (%d bytes)\n", chrUuid, hexStr(val), len(val))
}

func peerWriteCmd(cmd *cobra.Command, args []string) {
	if len(args) < 4 {
		nmUsage(cmd, util.NewNewtError(
			"Need profile name, service UUID, characteristic UUID, "+
				"and hex value"))
	}

	svcUuid := parseUuidArg(cmd, args[1])
	chrUuid := parseUuidArg(cmd, args[2])
	val, err := parseHexArg(args[3])
	if err != nil {
		nmUsage(cmd, util.ChildNewtError(err))
	}

	env := openProfileEnv(cmd, args[0])
	defer env.Close()

	c, err := env.connect()
	if err != nil {
		nmUsage(nil, err)
	}

	if err := c.SetValue(svcUuid, chrUuid, val,
		nmutil.BleWriteRsp); err != nil {

		nmUsage(nil, util.ChildNewtError(err))
	}

	fmt.Printf("%s: wrote %d bytes\n", chrUuid, len(val))

	// An acked write has reached the server by now.
	if svc := env.server().GetServiceByUuid(svcUuid, 0); svc != nil &&
		nmutil.BleWriteRsp {

		if chr := svc.GetCharacteristic(chrUuid, 0); chr != nil {
			fmt.Printf("%s: server value now %s\n", chrUuid,
				hexStr(chr.GetValue()))
		}
	}
}

func peerInfoCmd(cmd *cobra.Command, args []string) {
	env := openProfileEnv(cmd, profileName(args))
	defer env.Close()

	c, err := env.connect()
	if err != nil {
		nmUsage(nil, err)
	}

	if err := c.SecureConnection(); err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}

	desc, err := c.ConnInfo()
	if err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}

	fmt.Printf("connection %d (mtu=%d):\n", c.ConnHandle(), c.MTU())
	printConnDesc(desc)
}

func peerCmd() *cobra.Command {
	peerCmd := &cobra.Command{
		Use:   "peer",
		Short: "Exercise a simulated peripheral from a GATT client",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	discCmd := &cobra.Command{
		Use:   "discover [db_profile]",
		Short: "Discover and print the peer's attribute database",
		Run:   peerDiscoverCmd,
	}
	peerCmd.AddCommand(discCmd)

	readCmd := &cobra.Command{
		Use:   "read <db_profile> <svc_uuid> <chr_uuid>",
		Short: "Read a characteristic value",
		Run:   peerReadCmd,
	}
	peerCmd.AddCommand(readCmd)

	writeCmd := &cobra.Command{
		Use:   "write <db_profile> <svc_uuid> <chr_uuid> <hex>",
		Short: "Write a characteristic value",
		Example: "  " + nmutil.ToolInfo.ExeName +
			" peer write env 0x181a 0x2a6f 0102 --write-rsp",
		Run: peerWriteCmd,
	}
	peerCmd.AddCommand(writeCmd)

	infoCmd := &cobra.Command{
		Use:   "info [db_profile]",
		Short: "Pair with the peer and print the connection descriptor",
		Run:   peerInfoCmd,
	}
	peerCmd.AddCommand(infoCmd)

	return peerCmd
}
