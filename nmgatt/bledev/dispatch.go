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

package bledev

import (
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gattc"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

// Event handler installed in the stack.  Central-role events go to the
// client owning the connection (or the one connecting); everything else
// goes to the server.
func (d *Device) HandleGapEvent(ev hostif.Event) int {
	switch ev := ev.(type) {
	case *hostif.SyncEvent:
		d.onSync()
		return 0

	case *hostif.ResetEvent:
		d.onReset(ev.Reason)
		return 0

	case *hostif.ConnectEvent:
		if c := d.connectClient(ev); c != nil {
			return c.HandleGapEvent(ev)
		}

	case *hostif.DisconnectEvent:
		if c := d.GetClientByHandle(ev.Desc.ConnHandle); c != nil {
			return c.HandleGapEvent(ev)
		}
		if ev.Desc.Role == BLE_ROLE_MASTER {
			log.Debugf("disconnect for unknown client; conn=%d",
				ev.Desc.ConnHandle)
			return 0
		}

	case *hostif.AdvCompleteEvent:
		// Server only.

	default:
		conn := hostif.EventConnHandle(ev)
		if c := d.GetClientByHandle(conn); c != nil {
			return c.HandleGapEvent(ev)
		}
	}

	srv := d.Server()
	if srv == nil {
		log.Debugf("no server for event: %s", hostif.EventString(ev))
		return 0
	}

	return srv.HandleGapEvent(ev)
}

// Picks the client a connect event belongs to.  An event in the master
// role belongs to the client that is connecting; slave role events go to
// the server.
func (d *Device) connectClient(ev *hostif.ConnectEvent) *gattc.Client {
	if ev.Role != BLE_ROLE_MASTER {
		return nil
	}

	c := d.connectingClient()
	if c == nil {
		return nil
	}

	if ev.Status != 0 {
		return c
	}

	desc, rc := d.stack.GapConnFind(ev.ConnHandle)
	if rc != 0 || desc.Role != BLE_ROLE_MASTER {
		return nil
	}

	return c
}
