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
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/structs"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gattc"
	"mynewt.apache.org/gattmgr/nmgatt/gatts"
)

func indent(level int) string {
	return strings.Repeat("    ", level)
}

func printSnapshot(snap gatts.DbSnapshot) {
	fmt.Printf("started=%t\n", snap.Started)
	for _, s := range snap.Svcs {
		fmt.Printf("%ssvc %-36s handle=%-5d %s\n",
			indent(1), s.Uuid, s.Handle, s.State)
		for _, c := range s.Chrs {
			fmt.Printf("%schr %-36s handle=%-5d %s flags=%s max_len=%d\n",
				indent(2), c.Uuid, c.Handle, c.State, c.Flags, c.MaxLen)
			for _, d := range c.Dscs {
				fmt.Printf("%sdsc %-36s handle=%-5d %s max_len=%d\n",
					indent(3), d.Uuid, d.Handle, d.State, d.MaxLen)
			}
		}
	}
}

func printServer(srv *gatts.Server) {
	printSnapshot(srv.Snapshot())
	fmt.Printf("fingerprint=0x%04x\n", srv.Fingerprint())
}

func printMirror(c *gattc.Client) error {
	svcs, err := c.GetServices(false)
	if err != nil {
		return err
	}

	fmt.Printf("peer %s (%d services)\n", c.Peer().String(), len(svcs))
	for _, svc := range svcs {
		fmt.Printf("%ssvc %-36s handles=%d-%d\n",
			indent(1), svc.Uuid(), svc.StartHandle(), svc.EndHandle())

		chrs, err := svc.GetCharacteristics(false)
		if err != nil {
			return err
		}

		for _, chr := range chrs {
			fmt.Printf("%schr %-36s handle=%-5d props=%s\n",
				indent(2), chr.Uuid(), chr.Handle(), chr.Properties())

			dscs, err := chr.GetDescriptors(false)
			if err != nil {
				return err
			}
			for _, dsc := range dscs {
				fmt.Printf("%sdsc %-36s handle=%d\n",
					indent(3), dsc.Uuid(), dsc.Handle())
			}
		}
	}

	return nil
}

// Prints each connection descriptor field on its own line.
func printConnDesc(desc BleConnDesc) {
	m := structs.Map(desc)

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("%s%-16s %v\n", indent(1), k, m[k])
	}
}

func hexStr(b []byte) string {
	if len(b) == 0 {
		return "(empty)"
	}
	return hex.EncodeToString(b)
}

func parseHexArg(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ReplaceAll(s, ":", ""), "0x")
	return hex.DecodeString(s)
}
