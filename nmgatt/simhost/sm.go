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

package simhost

import (
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

// Number shown to both sides during numeric comparison.
const simNumCmp uint32 = 246810

type pairing struct {
	pending map[*Host]BleSmAction
	ios     map[*Host]BleSmIo
}

// Starts pairing, or encryption with existing keys if both ends are bonded.
// Completion is reported with an encryption change event to both ends.
func (h *Host) SecurityInitiate(connHandle uint16) int {
	h.lock()
	defer h.unlock()

	c := h.hub.conns[connHandle]
	if c == nil || !c.has(h) {
		return hostif.BLE_HS_ENOTCONN
	}

	if c.pairing != nil || c.encrypted {
		return hostif.BLE_HS_EALREADY
	}

	c.pairing = &pairing{
		pending: map[*Host]BleSmAction{},
		ios:     map[*Host]BleSmIo{},
	}

	h.hub.post(func() { h.startPairing(c) })

	return 0
}

func (h *Host) repeatPairing(c *simConn, bonded *Host, other *Host) bool {
	rc := bonded.dispatch(&hostif.RepeatPairingEvent{
		ConnHandle: c.handle,
		PeerIdAddr: other.cfg.Addr.Addr,
	})

	return rc == hostif.BLE_GAP_REPEAT_PAIRING_RETRY
}

func (h *Host) startPairing(c *simConn) {
	peer := c.peer(h)

	h.lock()
	if h.hub.conns[c.handle] != c {
		c.pairing = nil
		h.unlock()
		return
	}

	ownBond := h.bonds[peer.cfg.Addr.Addr]
	peerBond := peer.bonds[h.cfg.Addr.Addr]
	h.unlock()

	if ownBond && peerBond {
		h.finishPairing(c, true, 0)
		return
	}

	// One side kept keys the other side lost.
	if ownBond && !h.repeatPairing(c, h, peer) {
		h.finishPairing(c, false, hostif.BLE_HS_EALREADY)
		return
	}
	if peerBond && !h.repeatPairing(c, peer, h) {
		h.finishPairing(c, false, hostif.BLE_HS_EALREADY)
		return
	}

	h.lock()
	evs := map[*Host]*hostif.PasskeyEvent{}
	for _, side := range []*Host{c.central, c.periph} {
		if side.cfg.IoAction == BLE_SM_IOACT_NONE {
			continue
		}

		c.pairing.pending[side] = side.cfg.IoAction
		ev := &hostif.PasskeyEvent{
			ConnHandle: c.handle,
			Action:     side.cfg.IoAction,
		}
		if ev.Action == BLE_SM_IOACT_NUMCMP {
			ev.NumCmp = simNumCmp
		}
		evs[side] = ev
	}
	h.unlock()

	if len(evs) == 0 {
		h.finishPairing(c, false, 0)
		return
	}

	for side, ev := range evs {
		side.dispatch(ev)
	}
}

func (h *Host) SmInjectIo(connHandle uint16, io BleSmIo) int {
	h.lock()
	defer h.unlock()

	c := h.hub.conns[connHandle]
	if c == nil || !c.has(h) {
		return hostif.BLE_HS_ENOTCONN
	}

	if c.pairing == nil {
		return hostif.BLE_HS_ENOENT
	}

	action, ok := c.pairing.pending[h]
	if !ok {
		return hostif.BLE_HS_ENOENT
	}
	if action != io.Action {
		return hostif.BLE_HS_EINVAL
	}

	c.pairing.ios[h] = io
	delete(c.pairing.pending, h)

	if len(c.pairing.pending) == 0 {
		h.hub.post(func() { h.finishPairing(c, false, 0) })
	}

	return 0
}

// Evaluates the injected I/O and reports the outcome.  reuseKeys indicates
// encryption with stored keys rather than pairing; a nonzero status fails the
// procedure outright.
func (h *Host) finishPairing(c *simConn, reuseKeys bool, status int) {
	h.lock()

	p := c.pairing
	c.pairing = nil

	if h.hub.conns[c.handle] != c {
		h.unlock()
		return
	}

	if status == 0 && !reuseKeys {
		passkeys := []uint32{}
		for _, io := range p.ios {
			switch io.Action {
			case BLE_SM_IOACT_NUMCMP:
				if !io.NumCmpAccept {
					status = hostif.BLE_HS_EAUTHEN
				}
			case BLE_SM_IOACT_DISP, BLE_SM_IOACT_INPUT:
				passkeys = append(passkeys, io.Passkey)
			}
		}

		if len(passkeys) == 2 && passkeys[0] != passkeys[1] {
			status = hostif.BLE_HS_EAUTHEN
		}
	}

	if status == 0 {
		c.encrypted = true
		c.keySize = 16
		if !reuseKeys {
			c.authenticated = len(p.ios) > 0
		}

		if c.central.cfg.Security.Bonding && c.periph.cfg.Security.Bonding {
			c.bonded = true
			c.central.bonds[c.periph.cfg.Addr.Addr] = true
			c.periph.bonds[c.central.cfg.Addr.Addr] = true
		}
	}

	central := c.central
	periph := c.periph
	h.unlock()

	log.Debugf("simhost: encryption change conn=%d status=%s", c.handle,
		hostif.StatusString(status))

	ev := &hostif.EncChangeEvent{ConnHandle: c.handle, Status: status}
	central.dispatch(ev)
	periph.dispatch(ev)
}

func (h *Host) StoreDeletePeer(peer BleDev) int {
	h.lock()
	defer h.unlock()

	if !h.bonds[peer.Addr] {
		return hostif.BLE_HS_ENOENT
	}

	delete(h.bonds, peer.Addr)
	return 0
}

// Reports whether this host holds keys for the peer.
func (h *Host) Bonded(peer BleDev) bool {
	h.lock()
	defer h.unlock()

	return h.bonds[peer.Addr]
}
