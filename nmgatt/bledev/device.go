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

// Package bledev ties a host stack to the GATT server and the GATT clients
// that use it.  A Device is the stack's single GAP event handler; it routes
// each event to the server or to the client that owns the connection.
package bledev

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gattc"
	"mynewt.apache.org/gattmgr/nmgatt/gatts"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
)

type DeviceCfg struct {
	// Passkey displayed during pairing; BLE_GAP_PASSKEY_DFLT lets the
	// callbacks choose.
	Passkey uint32

	// Resume advertising once the host resyncs after a reset.
	AutoRestart bool

	// How long NewDevice waits for the initial sync.  0 means don't wait.
	SyncTimeout time.Duration

	Security BleSecurityCfg

	Server gatts.ServerCfg
	Client gattc.ClientCfg
}

func NewDeviceCfg() DeviceCfg {
	return DeviceCfg{
		Passkey:     BLE_GAP_PASSKEY_DFLT,
		AutoRestart: true,
		SyncTimeout: 10 * time.Second,
		Security: BleSecurityCfg{
			Bonding: true,
		},
		Server: gatts.NewServerCfg(),
		Client: gattc.NewClientCfg(),
	}
}

type Device struct {
	stack hostif.Stack

	// Protects:
	// * cfg
	// * server
	// * clients
	// * synced
	mtx     sync.Mutex
	cfg     DeviceCfg
	server  *gatts.Server
	clients []*gattc.Client
	synced  bool

	syncBlocker  nmxutil.Blocker
	resetBcaster nmxutil.Bcaster

	// Held for the duration of a connection attempt.
	connRes nmxutil.SingleResource
}

// Creates a device on stack and installs itself as the stack's event
// handler.  If cfg.SyncTimeout is nonzero, waits for the host to sync.
func NewDevice(stack hostif.Stack, cfg DeviceCfg) (*Device, error) {
	d := &Device{
		stack:   stack,
		cfg:     cfg,
		connRes: nmxutil.NewSingleResource(),
	}
	d.syncBlocker.Start()

	if sc, ok := stack.(hostif.SecurityConfigurer); ok {
		sc.SetSecurityCfg(cfg.Security)
	}

	stack.SetGapEventFn(d.HandleGapEvent)

	if cfg.SyncTimeout != 0 {
		if err := d.WaitSynced(cfg.SyncTimeout); err != nil {
			return nil, errors.Wrapf(err, "host %s did not sync",
				stack.OwnAddr().String())
		}
	}

	return d, nil
}

func (d *Device) Stack() hostif.Stack {
	return d.stack
}

func (d *Device) cfgCopy() DeviceCfg {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.cfg
}

func (d *Device) String() string {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return fmt.Sprintf("device %s: synced=%t clients=%d server=%t",
		d.stack.OwnAddr().String(), d.synced, len(d.clients), d.server != nil)
}

/*** Sync and reset. */

func (d *Device) Synced() bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.synced
}

func (d *Device) setSynced(synced bool) bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if synced == d.synced {
		return false
	}

	d.synced = synced
	if synced {
		d.syncBlocker.Unblock(nil)
	} else {
		d.syncBlocker.Start()
	}
	return true
}

// Blocks until the host is synced with the controller.
func (d *Device) WaitSynced(timeout time.Duration) error {
	_, err := d.syncBlocker.Wait(timeout, nil)
	return err
}

// Returns a channel that receives the reason code of every host reset.
func (d *Device) ListenReset() <-chan interface{} {
	return d.resetBcaster.Listen()
}

func (d *Device) StopListeningReset() {
	d.resetBcaster.Clear()
}

// Handles a host reset.  Clients whose link is still considered up are
// disconnected so that any procedure in flight completes.
func (d *Device) onReset(reason int) {
	if !d.setSynced(false) {
		return
	}

	log.Warnf("host reset; reason=%s (%d)", hostif.StatusString(reason),
		reason)

	d.resetBcaster.Send(reason)
	d.connRes.Abort(nmxutil.NewBleSesnDisconnectError(reason,
		"host reset while waiting to connect"))

	for _, c := range d.Clients() {
		conn := c.ConnHandle()
		if conn == BLE_CONN_HANDLE_NONE {
			continue
		}

		c.HandleGapEvent(&hostif.DisconnectEvent{
			Reason: reason,
			Desc: BleConnDesc{
				ConnHandle: conn,
				Role:       BLE_ROLE_MASTER,
			},
		})
	}
}

func (d *Device) onSync() {
	if !d.setSynced(true) {
		return
	}

	log.Debugf("host synced")

	cfg := d.cfgCopy()
	srv := d.Server()
	if cfg.AutoRestart && srv != nil && srv.Started() &&
		!d.stack.AdvActive() && srv.ConnectedCount() == 0 {

		if err := srv.StartAdvertising(); err != nil {
			log.Debugf("failed to restart advertising: %s", err.Error())
		}
	}
}

/*** Server. */

// Creates the device's GATT server, or returns the existing one.
func (d *Device) CreateServer() *gatts.Server {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.server == nil {
		d.server = gatts.NewServer(d.stack, d.cfg.Server)
		d.server.SetPasskey(d.cfg.Passkey)
		d.server.SetHostResetHook(d.onReset)
	}

	return d.server
}

// The GATT server; nil if CreateServer has not been called.
func (d *Device) Server() *gatts.Server {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return d.server
}

func (d *Device) StartAdvertising() error {
	if srv := d.Server(); srv != nil {
		return srv.StartAdvertising()
	}

	if rc := d.stack.AdvStart(); rc != 0 && rc != hostif.BLE_HS_EALREADY {
		return nmxutil.FmtBleHostError(rc, "failed to start advertising; "+
			"rc=%s", hostif.StatusString(rc))
	}
	return nil
}

func (d *Device) StopAdvertising() error {
	if srv := d.Server(); srv != nil {
		return srv.StopAdvertising()
	}

	if rc := d.stack.AdvStop(); rc != 0 && rc != hostif.BLE_HS_EALREADY {
		return nmxutil.FmtBleHostError(rc, "failed to stop advertising; "+
			"rc=%s", hostif.StatusString(rc))
	}
	return nil
}

/*** Clients. */

// Supplies the device's passkey to a client's pairing procedures.
type clientCallbacks struct {
	gattc.DefaultClientCallbacks
	d *Device
}

func (cc clientCallbacks) OnPassKeyRequest() uint32 {
	return cc.d.cfgCopy().Passkey
}

// Creates a client for peer.  The client is not connected.
func (d *Device) CreateClient(peer BleDev) *gattc.Client {
	cfg := d.cfgCopy()

	c := gattc.NewClient(d.stack, peer, cfg.Client)
	c.SetCallbacks(clientCallbacks{d: d})

	d.mtx.Lock()
	d.clients = append(d.clients, c)
	d.mtx.Unlock()

	log.Debugf("created client for %s", peer.String())
	return c
}

// Connects one of the device's clients.  The host supports a single
// outstanding connection attempt, so concurrent calls are run one at a
// time in the order they arrive.
func (d *Device) Connect(c *gattc.Client) error {
	if err := d.connRes.Acquire(c); err != nil {
		return err
	}
	defer d.connRes.Release()

	return c.Connect()
}

// Disconnects and closes a client, and forgets it.
func (d *Device) DeleteClient(c *gattc.Client) error {
	d.mtx.Lock()
	found := false
	for i, cl := range d.clients {
		if cl == c {
			d.clients = append(d.clients[:i], d.clients[i+1:]...)
			found = true
			break
		}
	}
	d.mtx.Unlock()

	if !found {
		return nmxutil.FmtValidationError("client for %s not owned by device",
			c.Peer().String())
	}

	if c.IsConnected() {
		if err := c.Disconnect(hostif.BLE_ERR_REM_USER_CONN_TERM); err != nil {
			log.Debugf("%s", err.Error())
		}
	}

	return c.Close()
}

func (d *Device) Clients() []*gattc.Client {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return append([]*gattc.Client(nil), d.clients...)
}

// Returns the client connected on conn, or nil.
func (d *Device) GetClientByHandle(conn uint16) *gattc.Client {
	if conn == BLE_CONN_HANDLE_NONE {
		return nil
	}

	for _, c := range d.Clients() {
		if c.ConnHandle() == conn {
			return c
		}
	}

	return nil
}

func (d *Device) GetClientByPeer(peer BleDev) *gattc.Client {
	for _, c := range d.Clients() {
		if c.Peer().Addr == peer.Addr {
			return c
		}
	}

	return nil
}

func (d *Device) connectingClient() *gattc.Client {
	for _, c := range d.Clients() {
		if c.Connecting() {
			return c
		}
	}

	return nil
}

/*** Security. */

func (d *Device) SetSecurityPasskey(passkey uint32) {
	d.mtx.Lock()
	d.cfg.Passkey = passkey
	srv := d.server
	d.mtx.Unlock()

	if srv != nil {
		srv.SetPasskey(passkey)
	}
}

func (d *Device) updateSecurity(fn func(sec *BleSecurityCfg)) {
	d.mtx.Lock()
	fn(&d.cfg.Security)
	sec := d.cfg.Security
	d.mtx.Unlock()

	if sc, ok := d.stack.(hostif.SecurityConfigurer); ok {
		sc.SetSecurityCfg(sec)
	} else {
		log.Warnf("stack does not support changing security parameters")
	}
}

func (d *Device) SecurityBond(enable bool) {
	d.updateSecurity(func(sec *BleSecurityCfg) { sec.Bonding = enable })
}

func (d *Device) SecurityMITM(enable bool) {
	d.updateSecurity(func(sec *BleSecurityCfg) { sec.Mitm = enable })
}

func (d *Device) SecuritySC(enable bool) {
	d.updateSecurity(func(sec *BleSecurityCfg) { sec.Sc = enable })
}

func (d *Device) SecurityCfg() BleSecurityCfg {
	return d.cfgCopy().Security
}

// Closes every client.  The server and the stack are left as they are.
func (d *Device) Close() error {
	d.mtx.Lock()
	clients := d.clients
	d.clients = nil
	d.mtx.Unlock()

	var first error
	for _, c := range clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}

	d.resetBcaster.Clear()
	return first
}
