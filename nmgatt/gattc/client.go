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

// Package gattc is the GATT client: it connects to a peer, mirrors the
// peer's attribute database on demand and runs read, write and subscribe
// procedures against it.  Every blocking call is one transaction on the
// client's own queue; the stack's completion callbacks finish it from the
// stack's context.
package gattc

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
	"mynewt.apache.org/gattmgr/nmgatt/task"
)

const clientQueueDepth = 10

type ClientCfg struct {
	// Truncate a long write to one PDU and retry when the peer does not
	// support prepared writes.  When false, such a write fails.
	TruncateLongWrites bool

	// How long Connect() waits for the link.  Zero waits forever.
	ConnectTimeout time.Duration

	// Discard the mirrored database whenever a connection is established.
	DeleteAttrsOnConnect bool

	// How long SecureConnection() waits for the link to be encrypted.
	SecurityTimeout time.Duration
}

func NewClientCfg() ClientCfg {
	return ClientCfg{
		ConnectTimeout:       30 * time.Second,
		DeleteAttrsOnConnect: true,
		SecurityTimeout:      15 * time.Second,
	}
}

type Client struct {
	stack hostif.Stack
	peer  BleDev
	cfg   ClientCfg
	cbs   ClientCallbacks

	tq task.TaskQueue

	connBlocker nmxutil.Blocker
	encBlocker  nmxutil.Blocker

	// Closed when the current connection drops, or when the client is
	// closed.
	dropChan chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once

	// Protects:
	// * connHandle
	// * connecting
	// * cur
	// * lastErr
	// * dropChan
	// * cfg, cbs
	mtx        sync.Mutex
	connHandle uint16
	connecting bool
	cur        *txn
	lastErr    error

	// Protects the mirrored database: svcs and everything below it.
	dbMtx sync.Mutex
	svcs  []*RemoteService
}

func NewClient(stack hostif.Stack, peer BleDev, cfg ClientCfg) *Client {
	c := &Client{
		stack:      stack,
		peer:       peer,
		cfg:        cfg,
		cbs:        DefaultClientCallbacks{},
		tq:         task.NewTaskQueue("client"),
		dropChan:   make(chan struct{}),
		stopChan:   make(chan struct{}),
		connHandle: BLE_CONN_HANDLE_NONE,
	}
	close(c.dropChan)

	if err := c.tq.Start(clientQueueDepth); err != nil {
		nmxutil.Assert(false)
		log.Errorf("client %s: %s", peer.String(), err.Error())
	}

	return c
}

func (c *Client) SetCallbacks(cbs ClientCallbacks) {
	if cbs == nil {
		cbs = DefaultClientCallbacks{}
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.cbs = cbs
}

func (c *Client) callbacks() ClientCallbacks {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.cbs
}

func (c *Client) cfgCopy() ClientCfg {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.cfg
}

func (c *Client) SetConnectTimeout(tmo time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.cfg.ConnectTimeout = tmo
}

func (c *Client) Peer() BleDev {
	return c.peer
}

func (c *Client) Stack() hostif.Stack {
	return c.stack
}

func (c *Client) ConnHandle() uint16 {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.connHandle
}

func (c *Client) IsConnected() bool {
	return c.ConnHandle() != BLE_CONN_HANDLE_NONE
}

// Reports whether a Connect() call is waiting for its connect event.
func (c *Client) Connecting() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.connecting
}

// Current ATT MTU of the connection, or the default if not connected.
func (c *Client) MTU() uint16 {
	conn := c.ConnHandle()
	if conn == BLE_CONN_HANDLE_NONE {
		return BLE_ATT_MTU_DFLT
	}

	mtu := c.stack.AttMtu(conn)
	if mtu == 0 {
		return BLE_ATT_MTU_DFLT
	}
	return mtu
}

func (c *Client) ConnInfo() (BleConnDesc, error) {
	conn := c.ConnHandle()
	if conn == BLE_CONN_HANDLE_NONE {
		return BleConnDesc{}, c.notConnectedError("conn-info")
	}

	desc, rc := c.stack.GapConnFind(conn)
	if rc != 0 {
		return BleConnDesc{}, hostError("conn-info", rc)
	}

	return desc, nil
}

// The error of the most recent failed operation.
func (c *Client) LastError() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.lastErr
}

func (c *Client) setLastError(err error) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.lastErr = err
	return err
}

func (c *Client) notConnectedError(op string) error {
	return nmxutil.NewBleSesnDisconnectError(hostif.BLE_HS_ENOTCONN,
		fmt.Sprintf("%s: not connected to %s", op, c.peer.String()))
}

func (c *Client) String() string {
	return fmt.Sprintf("client peer=%s conn=%d", c.peer.String(),
		c.ConnHandle())
}

/*** Connection. */

// Connects to the peer and waits for the link to come up.  The ATT MTU is
// exchanged before returning; a failed exchange is logged and ignored.
func (c *Client) Connect() error {
	c.mtx.Lock()
	if c.connHandle != BLE_CONN_HANDLE_NONE {
		c.mtx.Unlock()
		return nmxutil.NewAlreadyError(
			fmt.Sprintf("already connected to %s", c.peer.String()))
	}
	if c.connecting {
		c.mtx.Unlock()
		return nmxutil.NewAlreadyError(
			fmt.Sprintf("connection to %s in progress", c.peer.String()))
	}
	c.connecting = true
	tmo := c.cfg.ConnectTimeout
	c.connBlocker.Start()
	c.mtx.Unlock()

	log.Debugf(">> connect: peer=%s", c.peer.String())

	if rc := c.stack.GapConnect(c.peer); rc != 0 {
		c.mtx.Lock()
		c.connecting = false
		c.mtx.Unlock()
		c.connBlocker.Unblock(rc)

		return c.setLastError(nmxutil.FmtBleHostError(rc,
			"failed to connect to %s; rc=%s", c.peer.String(),
			hostif.StatusString(rc)))
	}

	if tmo == 0 {
		tmo = nmxutil.DURATION_FOREVER
	}

	val, err := c.connBlocker.Wait(tmo, c.stopChan)
	if err != nil {
		c.mtx.Lock()
		c.connecting = false
		c.mtx.Unlock()

		return c.setLastError(nmxutil.FmtBleHostError(hostif.BLE_HS_ETIMEOUT,
			"failed to connect to %s: %s", c.peer.String(), err.Error()))
	}

	if status, _ := val.(int); status != 0 {
		return c.setLastError(nmxutil.FmtBleHostError(status,
			"failed to connect to %s; status=%s", c.peer.String(),
			hostif.StatusString(status)))
	}

	if err := c.exchangeMtu(); err != nil {
		log.Debugf("mtu exchange failed: %s", err.Error())
	}

	if c.cfgCopy().DeleteAttrsOnConnect {
		c.DeleteServices()
	}

	log.Debugf("<< connect: conn=%d mtu=%d", c.ConnHandle(), c.MTU())

	c.callbacks().OnConnect(c)
	return nil
}

func (c *Client) exchangeMtu() error {
	var mtu uint16

	status, err := c.runTxn("exchange-mtu", 0, func(t *txn) int {
		return c.stack.GattcExchangeMtu(t.conn,
			func(conn uint16, status int, val uint16) int {
				if t.owns(conn) {
					mtu = val
					t.complete(status)
				}
				return 0
			})
	})
	if err != nil {
		return err
	}
	if status != 0 {
		return hostError("exchange-mtu", status)
	}

	log.Debugf("mtu exchanged; mtu=%d", mtu)
	return nil
}

// Terminates the connection.  The disconnect is reported to the client's
// callbacks when the stack confirms it.
func (c *Client) Disconnect(reason int) error {
	conn := c.ConnHandle()
	if conn == BLE_CONN_HANDLE_NONE {
		return c.notConnectedError("disconnect")
	}

	if rc := c.stack.GapTerminate(conn, reason); rc != 0 {
		return c.setLastError(hostError("disconnect", rc))
	}

	return nil
}

// Returns a channel that is closed when the current connection drops.
func (c *Client) DropChan() <-chan struct{} {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.dropChan
}

// Encrypts the link, pairing if necessary, and waits for the result.
// Returns immediately if the link is already encrypted.
func (c *Client) SecureConnection() error {
	desc, err := c.ConnInfo()
	if err != nil {
		return err
	}
	if desc.Encrypted {
		return nil
	}

	log.Debugf(">> secureConnection: conn=%d", desc.ConnHandle)

	c.encBlocker.Start()
	rc := c.stack.SecurityInitiate(desc.ConnHandle)
	if rc != 0 && rc != hostif.BLE_HS_EALREADY {
		c.encBlocker.Unblock(rc)
		return c.setLastError(nmxutil.NewBleSecurityError(rc,
			fmt.Sprintf("failed to initiate security; rc=%s",
				hostif.StatusString(rc))))
	}

	tmo := c.cfgCopy().SecurityTimeout
	if tmo == 0 {
		tmo = nmxutil.DURATION_FOREVER
	}

	val, werr := c.encBlocker.Wait(tmo, c.DropChan())
	if werr != nil {
		return c.setLastError(nmxutil.NewBleSecurityError(
			hostif.BLE_HS_ETIMEOUT,
			"security not established: "+werr.Error()))
	}

	if status, _ := val.(int); status != 0 {
		return c.setLastError(nmxutil.NewBleSecurityError(status,
			fmt.Sprintf("security not established; status=%s",
				hostif.StatusString(status))))
	}

	log.Debugf("<< secureConnection: encrypted")
	return nil
}

// Aborts the procedure in flight, stops the client's queue and discards
// the mirrored database.  The client cannot be used afterwards.
func (c *Client) Close() error {
	if conn := c.ConnHandle(); conn != BLE_CONN_HANDLE_NONE {
		c.stack.GattcCancel(conn)
	}
	c.abortTxn(hostif.BLE_HS_EAPP)

	c.stopOnce.Do(func() { close(c.stopChan) })

	err := c.tq.Stop(nmxutil.NewBleSesnDisconnectError(hostif.BLE_HS_EAPP,
		"client closed"))

	c.DeleteServices()
	return err
}

/*** Events. */

// Handles a GAP event concerning this client's connection.  The return
// value is passed back to the stack.
func (c *Client) HandleGapEvent(ev hostif.Event) int {
	log.Debugf(">> client handleGapEvent: %s", hostif.EventString(ev))

	switch ev := ev.(type) {
	case *hostif.ConnectEvent:
		c.onConnect(ev)

	case *hostif.DisconnectEvent:
		c.onDisconnect(ev)

	case *hostif.ConnUpdateEvent:
		log.Debugf("connection parameters updated; status=%d", ev.Status)

	case *hostif.ConnUpdateReqEvent:
		if !c.ownsConn(ev.ConnHandle) {
			return 0
		}
		self := ev.Peer
		if ev.Self != nil {
			self = *ev.Self
		}
		if !c.callbacks().OnConnParamsUpdateRequest(c, ev.Peer, &self) {
			return hostif.BLE_ERR_CONN_PARMS
		}
		if ev.Self != nil {
			*ev.Self = self
		}

	case *hostif.MtuEvent:
		log.Infof("mtu update event; conn_handle=%d mtu=%d", ev.ConnHandle,
			ev.Value)

	case *hostif.EncChangeEvent:
		if !c.ownsConn(ev.ConnHandle) {
			return 0
		}
		c.encBlocker.Unblock(ev.Status)
		if ev.Status == 0 {
			if desc, rc := c.stack.GapConnFind(ev.ConnHandle); rc == 0 {
				c.callbacks().OnAuthenticationComplete(desc)
			}
		}

	case *hostif.NotifyRxEvent:
		if c.ownsConn(ev.ConnHandle) {
			c.onNotifyRx(ev)
		}

	case *hostif.PasskeyEvent:
		if c.ownsConn(ev.ConnHandle) {
			c.onPasskey(ev)
		}

	case *hostif.RepeatPairingEvent:
		desc, rc := c.stack.GapConnFind(ev.ConnHandle)
		if rc != 0 {
			return hostif.BLE_GAP_REPEAT_PAIRING_IGNORE
		}
		if rc := c.stack.StoreDeletePeer(desc.PeerDev()); rc != 0 {
			log.Debugf("failed to delete bond; rc=%d", rc)
		}
		return hostif.BLE_GAP_REPEAT_PAIRING_RETRY
	}

	log.Debugf("<< client handleGapEvent")
	return 0
}

func (c *Client) ownsConn(conn uint16) bool {
	return conn != BLE_CONN_HANDLE_NONE && conn == c.ConnHandle()
}

func (c *Client) onConnect(ev *hostif.ConnectEvent) {
	c.mtx.Lock()
	if !c.connecting {
		c.mtx.Unlock()

		// Connect() gave up; drop the late link.
		if ev.Status == 0 {
			log.Debugf("unexpected connection; conn=%d", ev.ConnHandle)
			c.stack.GapTerminate(ev.ConnHandle,
				hostif.BLE_ERR_REM_USER_CONN_TERM)
		}
		return
	}

	c.connecting = false
	if ev.Status == 0 {
		c.connHandle = ev.ConnHandle
		c.dropChan = make(chan struct{})
	}
	c.mtx.Unlock()

	c.connBlocker.Unblock(ev.Status)
}

func (c *Client) onDisconnect(ev *hostif.DisconnectEvent) {
	c.mtx.Lock()
	if ev.Desc.ConnHandle == BLE_CONN_HANDLE_NONE ||
		ev.Desc.ConnHandle != c.connHandle {

		c.mtx.Unlock()
		return
	}
	c.connHandle = BLE_CONN_HANDLE_NONE
	close(c.dropChan)
	t := c.cur
	c.mtx.Unlock()

	log.Debugf("client disconnected; reason=%s", hostif.StatusString(ev.Reason))

	// The stack may never complete a procedure on a dead link.
	if t != nil {
		t.complete(hostif.BLE_HS_ENOTCONN)
	}
	c.encBlocker.Unblock(hostif.BLE_HS_ENOTCONN)

	c.callbacks().OnDisconnect(c, ev.Reason)
}

func (c *Client) onNotifyRx(ev *hostif.NotifyRxEvent) {
	chr := c.GetCharacteristic(ev.AttrHandle)
	if chr == nil {
		log.Debugf("notification for unknown handle %d", ev.AttrHandle)
		return
	}

	chr.value.Set(ev.Data)

	if fn := chr.notifyFn(); fn != nil {
		fn(chr, ev.Data, !ev.Indication)
	}
}

func (c *Client) onPasskey(ev *hostif.PasskeyEvent) {
	io := BleSmIo{Action: ev.Action}
	cbs := c.callbacks()

	switch ev.Action {
	case BLE_SM_IOACT_DISP, BLE_SM_IOACT_INPUT:
		io.Passkey = cbs.OnPassKeyRequest()

	case BLE_SM_IOACT_NUMCMP:
		io.NumCmpAccept = cbs.OnConfirmPIN(ev.NumCmp)

	case BLE_SM_IOACT_OOB:
		io.Oob = [16]byte{}

	default:
		return
	}

	rc := c.stack.SmInjectIo(ev.ConnHandle, io)
	log.Debugf("ble_sm_inject_io result: %d", rc)
}
