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

// Package simhost is an in-process host stack that implements hostif.Stack.
// Hosts attached to the same hub can advertise, connect to each other and
// run GATT procedures over a virtual link.  All events and completion
// callbacks of all hosts on a hub run on one worker goroutine, the way a
// real host runs everything from its event task.
package simhost

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
	"mynewt.apache.org/gattmgr/nmgatt/task"
)

const hubQueueDepth = 1024

// A link between two hosts.  The connection handle is the same at both ends.
type simConn struct {
	handle        uint16
	central       *Host
	periph        *Host
	mtu           uint16
	encrypted     bool
	authenticated bool
	bonded        bool
	keySize       uint8

	// Peripheral-side client configuration, keyed by value handle.
	cccds map[uint16]uint16

	// Incremented by GattcCancel; procedures started under an older
	// generation are dropped silently.
	cancelGen map[*Host]int

	pairing *pairing
}

func (c *simConn) has(h *Host) bool {
	return c.central == h || c.periph == h
}

func (c *simConn) peer(h *Host) *Host {
	if c.central == h {
		return c.periph
	} else {
		return c.central
	}
}

// Builds the connection descriptor as seen from host h.
func (c *simConn) desc(h *Host) BleConnDesc {
	own := h.cfg.Addr
	peer := c.peer(h).cfg.Addr

	role := BLE_ROLE_SLAVE
	if h == c.central {
		role = BLE_ROLE_MASTER
	}

	return BleConnDesc{
		ConnHandle:      c.handle,
		OwnIdAddrType:   own.AddrType,
		OwnIdAddr:       own.Addr,
		OwnOtaAddrType:  own.AddrType,
		OwnOtaAddr:      own.Addr,
		PeerIdAddrType:  peer.AddrType,
		PeerIdAddr:      peer.Addr,
		PeerOtaAddrType: peer.AddrType,
		PeerOtaAddr:     peer.Addr,
		Role:            role,
		ConnItvl:        BLE_GAP_INITIAL_CONN_ITVL,
		ConnLatency:     0,
		SupervisionTmo:  BLE_GAP_SUPERVISION_TMO_DFL,
		Mtu:             c.mtu,
		Encrypted:       c.encrypted,
		Authenticated:   c.authenticated,
		Bonded:          c.bonded,
		KeySize:         c.keySize,
	}
}

type Hub struct {
	hosts    []*Host
	conns    map[uint16]*simConn
	nextConn uint16
	q        task.TaskQueue
	mtx      sync.Mutex
}

func NewHub() *Hub {
	h := &Hub{
		conns:    map[uint16]*simConn{},
		nextConn: 1,
		q:        task.NewTaskQueue("simhost"),
	}

	if err := h.q.Start(hubQueueDepth); err != nil {
		// A fresh queue cannot already be started.
		panic(err.Error())
	}

	return h
}

// Stops the worker.  Pending events are discarded.
func (hub *Hub) Stop() {
	hub.q.Stop(nil)
}

// Waits until every job queued so far has run.  Must not be called from an
// event handler or completion callback.
func (hub *Hub) Flush() {
	hub.q.Run(func() error { return nil })
}

// Attaches a new host to the hub.
func (hub *Hub) NewHost(cfg HostCfg) (*Host, error) {
	hub.mtx.Lock()
	defer hub.mtx.Unlock()

	for _, other := range hub.hosts {
		if other.cfg.Addr.Addr == cfg.Addr.Addr {
			return nil, nmxutil.FmtBleHostError(hostif.BLE_HS_EALREADY,
				"duplicate host address %s", cfg.Addr.String())
		}
	}

	h := newHost(hub, cfg)
	hub.hosts = append(hub.hosts, h)

	log.Debugf("simhost: attached host %s (%s)", cfg.Name, cfg.Addr.String())

	return h, nil
}

func (hub *Hub) findHostNoLock(dev BleDev) *Host {
	for _, h := range hub.hosts {
		if h.cfg.Addr.Addr == dev.Addr {
			return h
		}
	}

	return nil
}

func (hub *Hub) connsOfNoLock(h *Host) []*simConn {
	conns := []*simConn{}
	for _, c := range hub.conns {
		if c.has(h) {
			conns = append(conns, c)
		}
	}

	return conns
}

func (hub *Hub) allocConnNoLock(central *Host, periph *Host) *simConn {
	for {
		handle := hub.nextConn
		hub.nextConn++
		if hub.nextConn > BLE_HCI_LE_CONN_HANDLE_MAX {
			hub.nextConn = 1
		}

		if hub.conns[handle] == nil {
			c := &simConn{
				handle:    handle,
				central:   central,
				periph:    periph,
				mtu:       BLE_ATT_MTU_DFLT,
				cccds:     map[uint16]uint16{},
				cancelGen: map[*Host]int{},
			}
			hub.conns[handle] = c
			return c
		}
	}
}

// Queues a job on the worker.
func (hub *Hub) post(fn func()) {
	hub.q.Post(func() error {
		fn()
		return nil
	})
}

func (hub *Hub) postAfter(delay time.Duration, fn func()) {
	if delay <= 0 {
		hub.post(fn)
	} else {
		time.AfterFunc(delay, func() { hub.post(fn) })
	}
}
