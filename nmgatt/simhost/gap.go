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

func (h *Host) AdvStart() int {
	h.lock()
	defer h.unlock()

	if h.advertising {
		return hostif.BLE_HS_EALREADY
	}

	h.advertising = true
	return 0
}

func (h *Host) AdvStop() int {
	h.lock()
	defer h.unlock()

	if !h.advertising {
		return hostif.BLE_HS_EALREADY
	}

	h.advertising = false
	return 0
}

func (h *Host) AdvActive() bool {
	h.lock()
	defer h.unlock()

	return h.advertising
}

func (h *Host) AdvRemoveSvcUuid(uuid BleUuid) {
	h.lock()
	defer h.unlock()

	for i, u := range h.advUuids {
		if u.Equal(uuid) {
			h.advUuids = append(h.advUuids[:i], h.advUuids[i+1:]...)
			return
		}
	}
}

func (h *Host) AdvUuids() []BleUuid {
	h.lock()
	defer h.unlock()

	return append([]BleUuid{}, h.advUuids...)
}

// Connects to an advertising host on the same hub.  The outcome is reported
// with a connect event to both ends.
func (h *Host) GapConnect(peer BleDev) int {
	h.lock()
	defer h.unlock()

	if h.connecting {
		return hostif.BLE_HS_EALREADY
	}

	target := h.hub.findHostNoLock(peer)
	if target == h {
		return hostif.BLE_HS_EINVAL
	}

	if target == nil || !target.advertising {
		log.Debugf("simhost %s: no advertiser at %s", h.cfg.Name,
			peer.String())

		h.connecting = true
		h.hub.postAfter(h.cfg.ProcDelay, func() {
			h.lock()
			h.connecting = false
			h.unlock()

			h.dispatch(&hostif.ConnectEvent{
				Status:     hostif.BLE_HS_ETIMEOUT,
				ConnHandle: BLE_CONN_HANDLE_NONE,
				Role:       BLE_ROLE_MASTER,
			})
		})
		return 0
	}

	// A connectable advertiser stops once a central connects.
	target.advertising = false

	c := h.hub.allocConnNoLock(h, target)
	h.connecting = true

	h.hub.post(func() {
		h.lock()
		h.connecting = false
		h.unlock()

		h.dispatch(&hostif.ConnectEvent{
			ConnHandle: c.handle,
			Role:       BLE_ROLE_MASTER,
		})
		target.dispatch(&hostif.ConnectEvent{
			ConnHandle: c.handle,
			Role:       BLE_ROLE_SLAVE,
		})
	})

	return 0
}

// Tears down the link and reports disconnect events to both ends.  Peripheral
// side subscriptions are reported as terminated first.
func (h *Host) breakConn(c *simConn, ownReason int, peerReason int) {
	peer := c.peer(h)
	ownDesc := c.desc(h)
	peerDesc := c.desc(peer)

	subs := []*hostif.SubscribeEvent{}
	for valHandle, cccd := range c.cccds {
		if cccd == 0 {
			continue
		}
		subs = append(subs, &hostif.SubscribeEvent{
			ConnHandle:   c.handle,
			AttrHandle:   valHandle,
			Reason:       hostif.BLE_GAP_SUBSCRIBE_REASON_TERM,
			PrevNotify:   cccd&BLE_CCCD_NOTIFY != 0,
			PrevIndicate: cccd&BLE_CCCD_INDICATE != 0,
		})
	}

	delete(h.hub.conns, c.handle)

	h.hub.post(func() {
		for _, sub := range subs {
			c.periph.dispatch(sub)
		}

		h.dispatch(&hostif.DisconnectEvent{
			Reason: ownReason,
			Desc:   ownDesc,
		})
		peer.dispatch(&hostif.DisconnectEvent{
			Reason: peerReason,
			Desc:   peerDesc,
		})
	})
}

func (h *Host) GapTerminate(connHandle uint16, reason int) int {
	h.lock()
	defer h.unlock()

	c := h.hub.conns[connHandle]
	if c == nil || !c.has(h) {
		return hostif.BLE_HS_ENOTCONN
	}

	h.breakConn(c,
		hostif.HciErr(hostif.BLE_ERR_CONN_TERM_LOCAL),
		hostif.HciErr(reason))

	return 0
}

func (h *Host) GapConnFind(connHandle uint16) (BleConnDesc, int) {
	h.lock()
	defer h.unlock()

	c := h.hub.conns[connHandle]
	if c == nil || !c.has(h) {
		return BleConnDesc{}, hostif.BLE_HS_ENOTCONN
	}

	return c.desc(h), 0
}

func (h *Host) AttMtu(connHandle uint16) uint16 {
	h.lock()
	defer h.unlock()

	c := h.hub.conns[connHandle]
	if c == nil || !c.has(h) {
		return 0
	}

	return c.mtu
}

// Number of connections this host is part of.
func (h *Host) NumConns() int {
	h.lock()
	defer h.unlock()

	return len(h.hub.connsOfNoLock(h))
}

// Simulates a host reset: every connection drops with the given reason, then
// the host reports the reset and resyncs.  The attribute database survives.
func (h *Host) Reset(reason int) {
	h.lock()
	defer h.unlock()

	log.Debugf("simhost %s: host reset; reason=%s", h.cfg.Name,
		hostif.StatusString(reason))

	for _, c := range h.hub.connsOfNoLock(h) {
		h.breakConn(c, reason, hostif.HciErr(hostif.BLE_ERR_CONN_SPVN_TMO))
	}

	h.advertising = false
	h.connecting = false

	h.hub.post(func() {
		h.dispatch(&hostif.ResetEvent{Reason: reason})
		h.dispatch(&hostif.SyncEvent{})
	})
}
