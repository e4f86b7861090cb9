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
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/config"
	"mynewt.apache.org/gattmgr/gattmgr/nmutil"
	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/bledev"
	"mynewt.apache.org/gattmgr/nmgatt/gattc"
	"mynewt.apache.org/gattmgr/nmgatt/gatts"
	"mynewt.apache.org/gattmgr/nmgatt/simhost"
)

var onExit func()

func NmSetOnExit(fn func()) {
	onExit = fn
}

func NmExit(code int) {
	if onExit != nil {
		onExit()
	}
	os.Exit(code)
}

func nmUsage(cmd *cobra.Command, err error) {
	if err != nil {
		if nerr, ok := err.(*util.NewtError); ok {
			log.Debugf("%s", nerr.StackTrace)
			fmt.Fprintf(os.Stderr, "Error: %s\n", nerr.Text)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		}
	}

	if cmd != nil {
		fmt.Printf("\n")
		fmt.Printf("%s - ", cmd.Name())
		cmd.Help()
	}

	NmExit(1)
}

var (
	dfltPeriphAddr  = BleAddr{Bytes: [6]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0xc0}}
	dfltCentralAddr = BleAddr{Bytes: [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0xc0}}
)

// A simulated peripheral running the local database and a central that
// talks to it.
type SimEnv struct {
	hub         *simhost.Hub
	periphHost  *simhost.Host
	centralHost *simhost.Host
	periph      *bledev.Device
	central     *bledev.Device
	client      *gattc.Client
}

var globalEnv *SimEnv

func GetEnvIfOpen() (*SimEnv, error) {
	if globalEnv == nil {
		return nil, fmt.Errorf("simulated environment not initialized")
	}

	return globalEnv, nil
}

func periphHostCfg() (simhost.HostCfg, error) {
	hc, err := config.ParseSimString(nmutil.SimString)
	if err != nil {
		return hc, err
	}

	if hc.Name == simhost.NewHostCfg().Name {
		hc.Name = "periph"
	}
	if hc.Addr.Addr == (BleAddr{}) {
		hc.Addr.Addr = dfltPeriphAddr
	}

	return hc, nil
}

func centralHostCfg() simhost.HostCfg {
	hc := simhost.NewHostCfg()
	hc.Name = "central"
	hc.Addr.Addr = dfltCentralAddr
	if nmutil.Mtu != 0 {
		hc.Mtu = uint16(nmutil.Mtu)
	}

	return hc
}

func deviceCfg() bledev.DeviceCfg {
	dc := bledev.NewDeviceCfg()
	dc.SyncTimeout = nmutil.TimeoutDuration()
	dc.Client.ConnectTimeout = nmutil.TimeoutDuration()
	dc.Client.TruncateLongWrites = nmutil.TruncateLong
	dc.Server.AutoRestart = true
	dc.Server.NoAbortOnFatal = true

	return dc
}

// Brings up both simulated hosts.  If p is not nil, the peripheral's
// database is built from it and started.
func newSimEnv(p *config.DbProfile) (*SimEnv, error) {
	if globalEnv != nil {
		return nil, util.NewNewtError("simulated environment opened twice")
	}

	pcfg, err := periphHostCfg()
	if err != nil {
		return nil, err
	}

	env := &SimEnv{
		hub: simhost.NewHub(),
	}
	globalEnv = env

	if err := env.init(pcfg, p); err != nil {
		env.Close()
		return nil, err
	}

	return env, nil
}

func (env *SimEnv) init(pcfg simhost.HostCfg, p *config.DbProfile) error {
	var err error

	env.periphHost, err = env.hub.NewHost(pcfg)
	if err != nil {
		return util.ChildNewtError(err)
	}
	env.centralHost, err = env.hub.NewHost(centralHostCfg())
	if err != nil {
		return util.ChildNewtError(err)
	}

	env.periph, err = bledev.NewDevice(env.periphHost, deviceCfg())
	if err != nil {
		return util.ChildNewtError(err)
	}
	env.central, err = bledev.NewDevice(env.centralHost, deviceCfg())
	if err != nil {
		return util.ChildNewtError(err)
	}

	srv := env.periph.CreateServer()
	if p == nil {
		return nil
	}

	if _, err := p.BuildServer(srv); err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return util.ChildNewtError(err)
	}

	return nil
}

func (env *SimEnv) server() *gatts.Server {
	return env.periph.Server()
}

// Starts advertising and connects the central's client to the peripheral.
func (env *SimEnv) connect() (*gattc.Client, error) {
	if env.client != nil && env.client.IsConnected() {
		return env.client, nil
	}

	if err := env.periph.StartAdvertising(); err != nil {
		return nil, util.ChildNewtError(err)
	}

	if env.client == nil {
		env.client = env.central.CreateClient(env.periphHost.OwnAddr())
	}

	if err := env.central.Connect(env.client); err != nil {
		return nil, util.ChildNewtError(err)
	}

	return env.client, nil
}

func (env *SimEnv) Close() {
	if env.central != nil {
		env.central.Close()
	}
	if env.periph != nil {
		env.periph.Close()
	}
	env.hub.Stop()

	if globalEnv == env {
		globalEnv = nil
	}
}

// Opens the environment for the named profile; the --profile flag is used
// if no name is given.
func openProfileEnv(cmd *cobra.Command, name string) *SimEnv {
	if name == "" {
		name = nmutil.DbProfile
	}
	if name == "" {
		nmUsage(cmd, util.NewNewtError("Need database profile name"))
	}

	p, err := config.GlobalDbProfileMgr().GetDbProfile(name)
	if err != nil {
		nmUsage(cmd, err)
	}

	env, err := newSimEnv(p)
	if err != nil {
		nmUsage(nil, err)
	}

	return env
}

func parseUuidArg(cmd *cobra.Command, s string) BleUuid {
	u, err := ParseUuid(s)
	if err != nil {
		nmUsage(cmd, util.ChildNewtError(err))
	}

	return u
}
