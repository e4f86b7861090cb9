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

package gattc

import (
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

// Application hooks for a client's connection.  Embed
// DefaultClientCallbacks to implement only a subset.
type ClientCallbacks interface {
	OnConnect(c *Client)
	OnDisconnect(c *Client, reason int)

	// Returns true to accept the peer's requested parameters.  Fields of
	// self may be adjusted before accepting.
	OnConnParamsUpdateRequest(c *Client, peer hostif.ConnParams,
		self *hostif.ConnParams) bool

	OnPassKeyRequest() uint32
	OnConfirmPIN(pin uint32) bool
	OnAuthenticationComplete(desc BleConnDesc)
}

// Receives notifications and indications for a subscribed characteristic.
// Runs in the stack's event context; it must not block on client
// operations.
type NotifyFn func(chr *RemoteCharacteristic, data []byte, isNotify bool)

type DefaultClientCallbacks struct{}

func (DefaultClientCallbacks) OnConnect(c *Client) {
	log.Debugf("client: connected to %s", c.Peer().String())
}

func (DefaultClientCallbacks) OnDisconnect(c *Client, reason int) {
	log.Debugf("client: disconnected from %s; reason=%s",
		c.Peer().String(), hostif.StatusString(reason))
}

func (DefaultClientCallbacks) OnConnParamsUpdateRequest(c *Client,
	peer hostif.ConnParams, self *hostif.ConnParams) bool {

	log.Debugf("client: conn params request; itvl=%d..%d latency=%d tmo=%d",
		peer.ItvlMin, peer.ItvlMax, peer.Latency, peer.SupervisionTmo)

	// Reject a supervision timeout that cannot cover the interval.
	if peer.ItvlMin > peer.ItvlMax ||
		uint32(peer.SupervisionTmo)*4 <= uint32(peer.ItvlMax) {

		return false
	}

	return true
}

func (DefaultClientCallbacks) OnPassKeyRequest() uint32 {
	log.Debugf("client: passkey request; using default")
	return BLE_GAP_PASSKEY_DFLT
}

func (DefaultClientCallbacks) OnConfirmPIN(pin uint32) bool {
	log.Debugf("client: confirm pin %06d", pin)
	return true
}

func (DefaultClientCallbacks) OnAuthenticationComplete(desc BleConnDesc) {
	log.Debugf("client: authentication complete; %s", desc.String())
}
