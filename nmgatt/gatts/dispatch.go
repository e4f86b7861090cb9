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

package gatts

import (
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

// Handles a GAP event concerning the server's peripheral-role connections.
// The return value is passed back to the stack; it only matters for
// repeat-pairing and encryption events.
func (s *Server) HandleGapEvent(ev hostif.Event) int {
	log.Debugf(">> handleGapEvent: %s", hostif.EventString(ev))

	switch ev := ev.(type) {
	case *hostif.ConnectEvent:
		return s.onConnect(ev)

	case *hostif.DisconnectEvent:
		return s.onDisconnect(ev)

	case *hostif.ConnUpdateEvent:
		desc, rc := s.stack.GapConnFind(ev.ConnHandle)
		if rc != 0 {
			return 0
		}
		log.Debugf("connection parameters updated; status=%d", ev.Status)
		s.cbs.OnConnParamsUpdate(desc)

	case *hostif.SubscribeEvent:
		return s.onSubscribe(ev)

	case *hostif.MtuEvent:
		log.Infof("mtu update event; conn_handle=%d mtu=%d", ev.ConnHandle,
			ev.Value)
		desc, rc := s.stack.GapConnFind(ev.ConnHandle)
		if rc != 0 {
			return 0
		}
		s.cbs.OnMTUChange(ev.Value, desc)

	case *hostif.NotifyTxEvent:
		chr := s.notifyChr(ev.AttrHandle)
		if chr == nil {
			return 0
		}

		// An indication is reported once when sent and again when the peer
		// acknowledges it; only the second report is of interest.
		if ev.Indication && ev.Status == 0 {
			return 0
		}
		if ev.Indication {
			s.clearIndicateWait(ev.ConnHandle)
		}

		chr.cbs.OnStatus(chr, ev.Status)

	case *hostif.AdvCompleteEvent:
		log.Debugf("advertising complete; reason=%d", ev.Reason)
		s.cbs.OnAdvComplete(ev.Reason)

	case *hostif.RepeatPairingEvent:
		// Delete the old bond and let the peer pair again.
		desc, rc := s.stack.GapConnFind(ev.ConnHandle)
		if rc != 0 {
			return hostif.BLE_GAP_REPEAT_PAIRING_IGNORE
		}
		if rc := s.stack.StoreDeletePeer(desc.PeerDev()); rc != 0 {
			log.Debugf("failed to delete bond; rc=%d", rc)
		}
		return hostif.BLE_GAP_REPEAT_PAIRING_RETRY

	case *hostif.EncChangeEvent:
		desc, rc := s.stack.GapConnFind(ev.ConnHandle)
		if rc != 0 {
			return hostif.BLE_ATT_ERR_INVALID_HANDLE
		}
		s.cbs.OnAuthenticationComplete(desc)

	case *hostif.PasskeyEvent:
		s.onPasskey(ev)
	}

	log.Debugf("<< handleGapEvent")
	return 0
}

func (s *Server) onConnect(ev *hostif.ConnectEvent) int {
	if ev.Status != 0 {
		// Connection failed; resume advertising.
		log.Debugf("connection failed; status=%d", ev.Status)
		if err := s.StartAdvertising(); err != nil {
			log.Debugf("%s", err.Error())
		}
		return 0
	}

	s.addPeer(ev.ConnHandle)

	desc, rc := s.stack.GapConnFind(ev.ConnHandle)
	if rc != 0 {
		return 0
	}

	s.cbs.OnConnect(s, desc)
	return 0
}

func (s *Server) onDisconnect(ev *hostif.DisconnectEvent) int {
	if hostif.IsHostResetReason(ev.Reason) {
		s.mtx.Lock()
		hook := s.resetHook
		s.mtx.Unlock()

		if hook != nil {
			hook(ev.Reason)
		}
	}

	s.removePeer(ev.Desc.ConnHandle)

	withDb(s, func() bool {
		if s.svcChanged {
			return s.resetGATTNoLock()
		}
		return false
	})

	s.cbs.OnDisconnect(s, ev.Desc, ev.Reason)

	if s.cfgCopy().AdvertiseOnDisconnect {
		if err := s.StartAdvertising(); err != nil {
			log.Debugf("%s", err.Error())
		}
	}

	return 0
}

func (s *Server) onSubscribe(ev *hostif.SubscribeEvent) int {
	log.Debugf("subscribe event; attr_handle=%d, subscribed: %t",
		ev.AttrHandle, ev.CurNotify || ev.CurIndicate)

	chr := s.notifyChr(ev.AttrHandle)
	if chr == nil {
		return 0
	}

	desc := BleConnDesc{ConnHandle: ev.ConnHandle}
	if chr.props&(BLE_GATT_F_READ_AUTHEN|BLE_GATT_F_READ_AUTHOR|
		BLE_GATT_F_READ_ENC) != 0 {

		d, rc := s.stack.GapConnFind(ev.ConnHandle)
		if rc != 0 {
			return 0
		}
		if !d.Encrypted {
			s.stack.SecurityInitiate(ev.ConnHandle)
		}
		desc = d
	} else if d, rc := s.stack.GapConnFind(ev.ConnHandle); rc == 0 {
		desc = d
	}

	chr.setSubscribe(ev, desc)
	return 0
}

func (s *Server) onPasskey(ev *hostif.PasskeyEvent) {
	io := BleSmIo{Action: ev.Action}

	switch ev.Action {
	case BLE_SM_IOACT_DISP:
		io.Passkey = s.cfgCopy().Passkey
		// The default passkey means the application chooses one.
		if io.Passkey == BLE_GAP_PASSKEY_DFLT {
			io.Passkey = s.cbs.OnPassKeyRequest()
		}

	case BLE_SM_IOACT_NUMCMP:
		log.Debugf("passkey on device's display: %d", ev.NumCmp)
		io.NumCmpAccept = s.cbs.OnConfirmPIN(ev.NumCmp)

	case BLE_SM_IOACT_OOB:
		// Zero key until out-of-band data is supported.
		io.Oob = [16]byte{}

	case BLE_SM_IOACT_INPUT:
		log.Debugf("enter the passkey")
		io.Passkey = s.cbs.OnPassKeyRequest()

	default:
		log.Debugf("no passkey action required")
		return
	}

	rc := s.stack.SmInjectIo(ev.ConnHandle, io)
	log.Debugf("ble_sm_inject_io result: %d", rc)
}
