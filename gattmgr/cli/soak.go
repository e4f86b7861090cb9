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
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/cheggaaa/pb.v1"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
)

func soakPayload(iter int, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(iter + i)
	}
	return b
}

func soakRunCmd(cmd *cobra.Command, args []string) {
	if len(args) < 3 {
		nmUsage(cmd, util.NewNewtError(
			"Need profile name, service UUID, and characteristic UUID"))
	}

	count, _ := cmd.Flags().GetInt("count")
	size, _ := cmd.Flags().GetInt("size")
	if count <= 0 || size <= 0 {
		nmUsage(cmd, util.NewNewtError("count and size must be positive"))
	}

	svcUuid := parseUuidArg(cmd, args[1])
	chrUuid := parseUuidArg(cmd, args[2])

	env := openProfileEnv(cmd, args[0])
	defer env.Close()

	srvSvc := env.server().GetServiceByUuid(svcUuid, 0)
	if srvSvc == nil {
		nmUsage(nil, util.FmtNewtError("no service with uuid %s", svcUuid))
	}
	srvChr := srvSvc.GetCharacteristic(chrUuid, 0)
	if srvChr == nil {
		nmUsage(nil, util.FmtNewtError("no characteristic with uuid %s",
			chrUuid))
	}

	c, err := env.connect()
	if err != nil {
		nmUsage(nil, err)
	}

	fmt.Printf("Writing %d x %d bytes (mtu=%d)\n", count, size, c.MTU())

	bar := pb.StartNew(count)
	start := time.Now()

	failures := 0
	for i := 0; i < count; i++ {
		payload := soakPayload(i, size)
		if err := c.SetValue(svcUuid, chrUuid, payload, true); err != nil {
			failures++
			fmt.Printf("\nwrite %d failed: %s (status=%d)\n",
				i, err.Error(), nmxutil.HostStatus(err))
		} else if !bytes.Equal(srvChr.GetValue(), payload) {
			failures++
			fmt.Printf("\nwrite %d: server value mismatch\n", i)
		}
		bar.Increment()
	}

	elapsed := time.Since(start)
	bar.FinishPrint(fmt.Sprintf("Done: %d writes, %d failures, %s",
		count, failures, elapsed))

	if failures > 0 {
		NmExit(1)
	}
}

func soakCmd() *cobra.Command {
	soakCmd := &cobra.Command{
		Use:   "soak <db_profile> <svc_uuid> <chr_uuid>",
		Short: "Repeatedly write and verify a characteristic",
		Run:   soakRunCmd,
	}
	soakCmd.Flags().Int("count", 100, "Number of writes")
	soakCmd.Flags().Int("size", 256, "Bytes per write")

	return soakCmd
}
