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

package hostif

import (
	"fmt"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
)

type EventType int

const (
	EVENT_CONNECT EventType = iota
	EVENT_DISCONNECT
	EVENT_CONN_UPDATE
	EVENT_CONN_UPDATE_REQ
	EVENT_SUBSCRIBE
	EVENT_MTU
	EVENT_NOTIFY_TX
	EVENT_NOTIFY_RX
	EVENT_ADV_COMPLETE
	EVENT_PASSKEY
	EVENT_REPEAT_PAIRING
	EVENT_ENC_CHANGE
	EVENT_SYNC
	EVENT_RESET
)

var EventTypeStringMap = map[EventType]string{
	EVENT_CONNECT:         "connect",
	EVENT_DISCONNECT:      "disconnect",
	EVENT_CONN_UPDATE:     "conn_update",
	EVENT_CONN_UPDATE_REQ: "conn_update_req",
	EVENT_SUBSCRIBE:       "subscribe",
	EVENT_MTU:             "mtu",
	EVENT_NOTIFY_TX:       "notify_tx",
	EVENT_NOTIFY_RX:       "notify_rx",
	EVENT_ADV_COMPLETE:    "adv_complete",
	EVENT_PASSKEY:         "passkey",
	EVENT_REPEAT_PAIRING:  "repeat_pairing",
	EVENT_ENC_CHANGE:      "enc_change",
	EVENT_SYNC:            "sync",
	EVENT_RESET:           "reset",
}

func EventTypeToString(t EventType) string {
	s := EventTypeStringMap[t]
	if s == "" {
		return "???"
	}

	return s
}

func (t EventType) String() string {
	return EventTypeToString(t)
}

// A GAP or GATT event reported by the stack.
type Event interface {
	Type() EventType
}

// Returns the connection an event refers to, or BLE_CONN_HANDLE_NONE.
func EventConnHandle(ev Event) uint16 {
	switch e := ev.(type) {
	case *ConnectEvent:
		return e.ConnHandle
	case *DisconnectEvent:
		return e.Desc.ConnHandle
	case *ConnUpdateEvent:
		return e.ConnHandle
	case *ConnUpdateReqEvent:
		return e.ConnHandle
	case *SubscribeEvent:
		return e.ConnHandle
	case *MtuEvent:
		return e.ConnHandle
	case *NotifyTxEvent:
		return e.ConnHandle
	case *NotifyRxEvent:
		return e.ConnHandle
	case *PasskeyEvent:
		return e.ConnHandle
	case *RepeatPairingEvent:
		return e.ConnHandle
	case *EncChangeEvent:
		return e.ConnHandle
	default:
		return BLE_CONN_HANDLE_NONE
	}
}

func EventString(ev Event) string {
	conn := EventConnHandle(ev)
	if conn == BLE_CONN_HANDLE_NONE {
		return fmt.Sprintf("%s %+v", ev.Type(), ev)
	}

	return fmt.Sprintf("%s conn=%d %+v", ev.Type(), conn, ev)
}

// A connection attempt completed.  Status 0 means the link is up.  Role is
// the local role of the link, or of the attempt that failed.
type ConnectEvent struct {
	Status     int
	ConnHandle uint16
	Role       BleRole
}

type DisconnectEvent struct {
	Reason int
	Desc   BleConnDesc
}

type ConnUpdateEvent struct {
	Status     int
	ConnHandle uint16
}

type ConnParams struct {
	ItvlMin        uint16
	ItvlMax        uint16
	Latency        uint16
	SupervisionTmo uint16
}

// The peer requests new connection parameters.  The handler may adjust Self
// and returns 0 to accept.
type ConnUpdateReqEvent struct {
	ConnHandle uint16
	Peer       ConnParams
	Self       *ConnParams
}

type SubscribeEvent struct {
	ConnHandle   uint16
	AttrHandle   uint16
	Reason       int
	PrevNotify   bool
	CurNotify    bool
	PrevIndicate bool
	CurIndicate  bool
}

type MtuEvent struct {
	ConnHandle uint16
	ChannelId  uint16
	Value      uint16
}

// Reports the progress of an outgoing notification or indication.  An
// indication produces a status 0 event when sent and a BLE_HS_EDONE event
// when the peer acknowledges it.
type NotifyTxEvent struct {
	ConnHandle uint16
	AttrHandle uint16
	Status     int
	Indication bool
}

type NotifyRxEvent struct {
	ConnHandle uint16
	AttrHandle uint16
	Data       []byte
	Indication bool
}

type AdvCompleteEvent struct {
	Reason int
}

type PasskeyEvent struct {
	ConnHandle uint16
	Action     BleSmAction
	NumCmp     uint32
}

type RepeatPairingEvent struct {
	ConnHandle uint16
	PeerIdAddr BleAddr
}

type EncChangeEvent struct {
	ConnHandle uint16
	Status     int
}

// The host and controller are synced; the stack is usable.
type SyncEvent struct{}

// The host reset itself.
type ResetEvent struct {
	Reason int
}

func (e *ConnectEvent) Type() EventType       { return EVENT_CONNECT }
func (e *DisconnectEvent) Type() EventType    { return EVENT_DISCONNECT }
func (e *ConnUpdateEvent) Type() EventType    { return EVENT_CONN_UPDATE }
func (e *ConnUpdateReqEvent) Type() EventType { return EVENT_CONN_UPDATE_REQ }
func (e *SubscribeEvent) Type() EventType     { return EVENT_SUBSCRIBE }
func (e *MtuEvent) Type() EventType           { return EVENT_MTU }
func (e *NotifyTxEvent) Type() EventType      { return EVENT_NOTIFY_TX }
func (e *NotifyRxEvent) Type() EventType      { return EVENT_NOTIFY_RX }
func (e *AdvCompleteEvent) Type() EventType   { return EVENT_ADV_COMPLETE }
func (e *PasskeyEvent) Type() EventType       { return EVENT_PASSKEY }
func (e *RepeatPairingEvent) Type() EventType { return EVENT_REPEAT_PAIRING }
func (e *EncChangeEvent) Type() EventType     { return EVENT_ENC_CHANGE }
func (e *SyncEvent) Type() EventType          { return EVENT_SYNC }
func (e *ResetEvent) Type() EventType         { return EVENT_RESET }

// The single dispatch entry for stack events.  The return value is
// meaningful for a few event types (repeat pairing, conn update request);
// others ignore it.
type GapEventFn func(ev Event) int
