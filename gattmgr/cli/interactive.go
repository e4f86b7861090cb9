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
	"gopkg.in/abiosoft/ishell.v2"

	"mynewt.apache.org/gattmgr/gattmgr/nmutil"
	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gattc"
)

type shellState struct {
	env *SimEnv
	c   *gattc.Client
}

func (ss *shellState) uuidArgs(c *ishell.Context, n int) ([]BleUuid, bool) {
	if len(c.Args) < n {
		c.Println(c.HelpText())
		return nil, false
	}

	uuids := make([]BleUuid, n)
	for i := 0; i < n; i++ {
		u, err := ParseUuid(c.Args[i])
		if err != nil {
			c.Println("Error:", err)
			return nil, false
		}
		uuids[i] = u
	}

	return uuids, true
}

func (ss *shellState) remoteChr(c *ishell.Context) *gattc.RemoteCharacteristic {
	uuids, ok := ss.uuidArgs(c, 2)
	if !ok {
		return nil
	}

	svc, err := ss.c.GetService(uuids[0])
	if err != nil {
		c.Println("Error:", err)
		return nil
	}
	if svc == nil {
		c.Println("No service", uuids[0])
		return nil
	}

	chr, err := svc.GetCharacteristic(uuids[1])
	if err != nil {
		c.Println("Error:", err)
		return nil
	}
	if chr == nil {
		c.Println("No characteristic", uuids[1])
		return nil
	}

	return chr
}

func (ss *shellState) discoverCmd(c *ishell.Context) {
	if err := ss.c.DiscoverAttributes(); err != nil {
		c.Println("Error:", err)
		return
	}

	if err := printMirror(ss.c); err != nil {
		c.Println("Error:", err)
	}
}

func (ss *shellState) readCmd(c *ishell.Context) {
	chr := ss.remoteChr(c)
	if chr == nil {
		return
	}

	val, err := chr.ReadValue()
	if err != nil {
		c.Println("Error:", err)
		return
	}

	c.Printf("%s: %s\n", chr.Uuid(), hexStr(val))
}

func (ss *shellState) writeCmd(c *ishell.Context) {
	if len(c.Args) < 3 {
		c.Println(c.HelpText())
		return
	}

	chr := ss.remoteChr(c)
	if chr == nil {
		return
	}

	val, err := parseHexArg(c.Args[2])
	if err != nil {
		c.Println("Error:", err)
		return
	}

	if err := chr.WriteValue(val, nmutil.BleWriteRsp); err != nil {
		c.Println("Error:", err)
		return
	}

	c.Printf("%s: wrote %d bytes\n", chr.Uuid(), len(val))
}

func (ss *shellState) subscribeCmd(c *ishell.Context) {
	chr := ss.remoteChr(c)
	if chr == nil {
		return
	}

	notify := chr.CanNotify()
	err := chr.Subscribe(notify, func(chr *gattc.RemoteCharacteristic,
		data []byte, isNotify bool) {

		kind := "indication"
		if isNotify {
			kind = "notification"
		}
		c.Printf("\n%s %s: %s\n", kind, chr.Uuid(), hexStr(data))
	}, true)
	if err != nil {
		c.Println("Error:", err)
		return
	}

	c.Println("Subscribed to", chr.Uuid())
}

func (ss *shellState) unsubscribeCmd(c *ishell.Context) {
	chr := ss.remoteChr(c)
	if chr == nil {
		return
	}

	if err := chr.Unsubscribe(true); err != nil {
		c.Println("Error:", err)
		return
	}

	c.Println("Unsubscribed from", chr.Uuid())
}

// Changes a local characteristic and notifies its subscribers.
func (ss *shellState) setCmd(c *ishell.Context) {
	if len(c.Args) < 3 {
		c.Println(c.HelpText())
		return
	}

	uuids, ok := ss.uuidArgs(c, 2)
	if !ok {
		return
	}

	val, err := parseHexArg(c.Args[2])
	if err != nil {
		c.Println("Error:", err)
		return
	}

	svc := ss.env.server().GetServiceByUuid(uuids[0], 0)
	if svc == nil {
		c.Println("No local service", uuids[0])
		return
	}
	chr := svc.GetCharacteristic(uuids[1], 0)
	if chr == nil {
		c.Println("No local characteristic", uuids[1])
		return
	}

	if !chr.SetValue(val) {
		c.Println("Value too long for", chr.Uuid())
		return
	}
	chr.Notify(nil, chr.Properties()&BLE_GATT_F_NOTIFY != 0,
		BLE_CONN_HANDLE_NONE)
}

func (ss *shellState) dbCmd(c *ishell.Context) {
	printServer(ss.env.server())
}

func (ss *shellState) infoCmd(c *ishell.Context) {
	desc, err := ss.c.ConnInfo()
	if err != nil {
		c.Println("Error:", err)
		return
	}

	printConnDesc(desc)
}

func startInteractive(cmd *cobra.Command, args []string) {
	env := openProfileEnv(cmd, profileName(args))
	defer env.Close()

	client, err := env.connect()
	if err != nil {
		nmUsage(nil, err)
	}

	ss := &shellState{
		env: env,
		c:   client,
	}

	// By default, new shell includes 'exit', 'help' and 'clear' commands.
	shell := ishell.New()
	shell.SetPrompt("> ")

	shell.Println()
	shell.Println(" " + nmutil.ToolInfo.LongName + " shell")
	shell.Println(fmt.Sprintf("	Connected to %s (mtu=%d)",
		client.Peer().String(), client.MTU()))
	shell.Println()

	shell.AddCmd(&ishell.Cmd{
		Name: "discover",
		Help: "Discover the peer's database: discover",
		Func: ss.discoverCmd,
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "read",
		Help: "Read a characteristic: read <svc> <chr>",
		Func: ss.readCmd,
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "write",
		Help: "Write a characteristic: write <svc> <chr> <hex>",
		Func: ss.writeCmd,
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "sub",
		Help: "Subscribe to a characteristic: sub <svc> <chr>",
		Func: ss.subscribeCmd,
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "unsub",
		Help: "Unsubscribe from a characteristic: unsub <svc> <chr>",
		Func: ss.unsubscribeCmd,
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "set",
		Help: "Set a local value and notify: set <svc> <chr> <hex>",
		Func: ss.setCmd,
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "db",
		Help: "Print the local database: db",
		Func: ss.dbCmd,
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "Print the connection descriptor: info",
		Func: ss.infoCmd,
	})

	shell.Run()
	shell.Close()
}

func interactiveCmd() *cobra.Command {
	shellCmd := &cobra.Command{
		Use:   "interactive [db_profile]",
		Short: "Run " + nmutil.ToolInfo.ShortName + " interactive mode",
		Run:   startInteractive,
	}

	return shellCmd
}
