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
	"encoding/binary"
	"time"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

const BLE_ATT_MTU_PREFERRED_DFLT = 256

type HostCfg struct {
	Name string
	Addr BleDev

	// Preferred ATT MTU; the link MTU is the smaller of both ends after an
	// exchange.
	Mtu uint16

	// Pairing I/O capability.  NONE pairs without user interaction.
	IoAction BleSmAction
	Security BleSecurityCfg

	// Delay applied before each client procedure starts running.
	ProcDelay time.Duration

	// Services listed in the advertising data.
	AdvUuids []BleUuid
}

func NewHostCfg() HostCfg {
	return HostCfg{
		Name:     "nimble",
		Mtu:      BLE_ATT_MTU_PREFERRED_DFLT,
		IoAction: BLE_SM_IOACT_NONE,
		Security: BleSecurityCfg{
			Bonding: true,
		},
	}
}

type attrKind int

const (
	attrKindSvc attrKind = iota
	attrKindChr
	attrKindChrVal
	attrKindCccd
	attrKindDsc
)

type simAttr struct {
	handle    uint16
	kind      attrKind
	uuid      BleUuid
	svc       *simSvc
	chrFlags  BleChrFlags
	attFlags  BleAttFlags
	valHandle uint16
	accessCb  hostif.AccessFn
}

type simSvc struct {
	typ         BleSvcType
	uuid        BleUuid
	startHandle uint16
	endHandle   uint16
	visible     bool
}

// One simulated host stack.  Implements hostif.Stack.
type Host struct {
	hub     *Hub
	cfg     HostCfg
	eventFn hostif.GapEventFn
	synced  bool

	// Registered but not necessarily started.
	regDefs  hostif.SvcDefs
	cfgAttrs int

	started bool
	attrs   []*simAttr
	svcs    []*simSvc

	advertising bool
	connecting  bool
	advUuids    []BleUuid
	bonds       map[BleAddr]bool
	faults      []fault
}

func newHost(hub *Hub, cfg HostCfg) *Host {
	if cfg.Mtu < BLE_ATT_MTU_DFLT {
		cfg.Mtu = BLE_ATT_MTU_DFLT
	}

	h := &Host{
		hub:      hub,
		cfg:      cfg,
		advUuids: append([]BleUuid{}, cfg.AdvUuids...),
		bonds:    map[BleAddr]bool{},
	}

	// Registered at startup, as the GAP and GATT service packages do.
	h.svcGapInitNoLock()
	h.svcGattInitNoLock()

	return h
}

func (h *Host) Cfg() HostCfg {
	return h.cfg
}

func (h *Host) Hub() *Hub {
	return h.hub
}

func (h *Host) lock() {
	h.hub.mtx.Lock()
}

func (h *Host) unlock() {
	h.hub.mtx.Unlock()
}

// Delivers an event to the installed handler.  Runs on the worker.
func (h *Host) dispatch(ev hostif.Event) int {
	h.lock()
	fn := h.eventFn
	h.unlock()

	if fn == nil {
		log.Debugf("simhost %s: dropping event: %s", h.cfg.Name,
			hostif.EventString(ev))
		return 0
	}

	return fn(ev)
}

func (h *Host) postEvent(ev hostif.Event) {
	h.hub.post(func() { h.dispatch(ev) })
}

func (h *Host) SetGapEventFn(fn hostif.GapEventFn) {
	h.lock()
	h.eventFn = fn
	needSync := !h.synced && fn != nil
	h.synced = true
	h.unlock()

	if needSync {
		h.postEvent(&hostif.SyncEvent{})
	}
}

func (h *Host) OwnAddr() BleDev {
	return h.cfg.Addr
}

// Changes the pairing parameters used by procedures that start later.
func (h *Host) SetSecurityCfg(cfg BleSecurityCfg) {
	h.lock()
	defer h.unlock()

	h.cfg.Security = cfg
}

func (h *Host) SecurityCfg() BleSecurityCfg {
	h.lock()
	defer h.unlock()

	return h.cfg.Security
}

/*** Local database. */

func (h *Host) attrNoLock(handle uint16) *simAttr {
	if handle == 0 || int(handle) > len(h.attrs) {
		return nil
	}

	return h.attrs[handle-1]
}

func (h *Host) GattsReset() int {
	h.lock()
	defer h.unlock()

	if len(h.hub.connsOfNoLock(h)) > 0 {
		return hostif.BLE_HS_EBUSY
	}

	h.regDefs = nil
	h.cfgAttrs = 0
	h.attrs = nil
	h.svcs = nil
	h.started = false

	return 0
}

func (h *Host) registerNoLock(defs hostif.SvcDefs) {
	h.cfgAttrs += defs.AttrCount()
	h.regDefs = append(h.regDefs, defs...)
}

func (h *Host) svcGapInitNoLock() {
	name := h.cfg.Name
	h.registerNoLock(hostif.SvcDefs{{
		Type: BLE_SVC_TYPE_PRIMARY,
		Uuid: NewBleUuid16(uint16(BLE_SVC_UUID16_GAP)),
		Chrs: []hostif.ChrDef{
			{
				Uuid:  NewBleUuid16(uint16(BLE_CHR_UUID16_DEVICE_NAME)),
				Flags: BLE_GATT_F_READ,
				AccessCb: func(ctxt *hostif.AccessCtxt) int {
					ctxt.Out = append(ctxt.Out, name...)
					return 0
				},
			},
			{
				Uuid:  NewBleUuid16(uint16(BLE_CHR_UUID16_APPEARANCE)),
				Flags: BLE_GATT_F_READ,
				AccessCb: func(ctxt *hostif.AccessCtxt) int {
					ctxt.Out = append(ctxt.Out, 0, 0)
					return 0
				},
			},
		},
	}})
}

func (h *Host) svcGattInitNoLock() {
	h.registerNoLock(hostif.SvcDefs{{
		Type: BLE_SVC_TYPE_PRIMARY,
		Uuid: NewBleUuid16(uint16(BLE_SVC_UUID16_GATT)),
		Chrs: []hostif.ChrDef{{
			Uuid:  NewBleUuid16(uint16(BLE_CHR_UUID16_SVC_CHANGED)),
			Flags: BLE_GATT_F_INDICATE,
			AccessCb: func(ctxt *hostif.AccessCtxt) int {
				return hostif.BLE_ATT_ERR_UNLIKELY
			},
		}},
	}})
}

func (h *Host) SvcGapInit() {
	h.lock()
	defer h.unlock()

	h.svcGapInitNoLock()
}

func (h *Host) SvcGattInit() {
	h.lock()
	defer h.unlock()

	h.svcGattInitNoLock()
}

func (h *Host) GattsCountCfg(defs hostif.SvcDefs) int {
	if err := defs.Validate(); err != nil {
		log.Debugf("simhost %s: invalid service table: %s", h.cfg.Name,
			err.Error())
		return hostif.BLE_HS_EINVAL
	}

	h.lock()
	defer h.unlock()

	h.cfgAttrs += defs.AttrCount()
	return 0
}

func (h *Host) GattsAddSvcs(defs hostif.SvcDefs) int {
	if err := defs.Validate(); err != nil {
		return hostif.BLE_HS_EINVAL
	}

	h.lock()
	defer h.unlock()

	if h.started {
		return hostif.BLE_HS_EBUSY
	}

	if h.regDefs.AttrCount()+defs.AttrCount() > h.cfgAttrs {
		return hostif.BLE_HS_ENOMEM
	}

	h.regDefs = append(h.regDefs, defs...)
	return 0
}

// Assigns handles to every registered service and makes the database
// visible to peers.
func (h *Host) GattsStart() int {
	h.lock()
	defer h.unlock()

	if h.started {
		return hostif.BLE_HS_EALREADY
	}

	h.attrs = nil
	h.svcs = nil

	add := func(a *simAttr) uint16 {
		a.handle = uint16(len(h.attrs) + 1)
		h.attrs = append(h.attrs, a)
		return a.handle
	}

	for i := range h.regDefs {
		def := &h.regDefs[i]

		svc := &simSvc{
			typ:     def.Type,
			uuid:    def.Uuid,
			visible: true,
		}
		svc.startHandle = add(&simAttr{
			kind: attrKindSvc,
			uuid: def.Uuid,
			svc:  svc,
		})

		for j := range def.Chrs {
			chr := &def.Chrs[j]

			decl := &simAttr{
				kind:     attrKindChr,
				uuid:     chr.Uuid,
				svc:      svc,
				chrFlags: chr.Flags,
			}
			add(decl)

			valHandle := add(&simAttr{
				kind:     attrKindChrVal,
				uuid:     chr.Uuid,
				svc:      svc,
				chrFlags: chr.Flags,
				accessCb: chr.AccessCb,
			})
			decl.valHandle = valHandle
			if chr.ValHandle != nil {
				*chr.ValHandle = valHandle
			}

			if chr.Flags&(BLE_GATT_F_NOTIFY|BLE_GATT_F_INDICATE) != 0 {
				add(&simAttr{
					kind:      attrKindCccd,
					uuid:      NewBleUuid16(uint16(BLE_DSC_UUID16_CCCD)),
					svc:       svc,
					attFlags:  BLE_ATT_F_READ | BLE_ATT_F_WRITE,
					valHandle: valHandle,
				})
			}

			for k := range chr.Dscs {
				dsc := &chr.Dscs[k]
				handle := add(&simAttr{
					kind:      attrKindDsc,
					uuid:      dsc.Uuid,
					svc:       svc,
					attFlags:  dsc.AttFlags,
					valHandle: valHandle,
					accessCb:  dsc.AccessCb,
				})
				if dsc.Handle != nil {
					*dsc.Handle = handle
				}
			}
		}

		svc.endHandle = uint16(len(h.attrs))
		h.svcs = append(h.svcs, svc)
	}

	h.started = true

	log.Debugf("simhost %s: gatts started; %d services, %d attributes",
		h.cfg.Name, len(h.svcs), len(h.attrs))

	return 0
}

func (h *Host) GattsFindSvc(uuid BleUuid) (uint16, int) {
	h.lock()
	defer h.unlock()

	for _, svc := range h.svcs {
		if svc.uuid.Equal(uuid) {
			return svc.startHandle, 0
		}
	}

	return 0, hostif.BLE_HS_ENOENT
}

func (h *Host) GattsFindChr(svcUuid BleUuid,
	chrUuid BleUuid) (uint16, uint16, int) {

	h.lock()
	defer h.unlock()

	for _, svc := range h.svcs {
		if !svc.uuid.Equal(svcUuid) {
			continue
		}

		for hd := svc.startHandle; hd <= svc.endHandle; hd++ {
			a := h.attrNoLock(hd)
			if a.kind == attrKindChr && a.uuid.Equal(chrUuid) {
				return a.handle, a.valHandle, 0
			}
		}
	}

	return 0, 0, hostif.BLE_HS_ENOENT
}

func (h *Host) GattsSvcSetVisibility(handle uint16, visible bool) int {
	h.lock()
	defer h.unlock()

	for _, svc := range h.svcs {
		if svc.startHandle == handle {
			svc.visible = visible
			return 0
		}
	}

	return hostif.BLE_HS_ENOENT
}

// Indicates a service changed range to every peer that subscribed to
// indications of the Service Changed characteristic.
func (h *Host) GattsSvcChanged(startHandle uint16, endHandle uint16) {
	h.lock()
	defer h.unlock()

	var valHandle uint16
	for _, a := range h.attrs {
		if a.kind == attrKindChrVal &&
			a.uuid.Equal(NewBleUuid16(uint16(BLE_CHR_UUID16_SVC_CHANGED))) {

			valHandle = a.handle
			break
		}
	}
	if valHandle == 0 {
		return
	}

	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:2], startHandle)
	binary.LittleEndian.PutUint16(data[2:4], endHandle)

	for _, c := range h.hub.connsOfNoLock(h) {
		if c.periph != h || c.cccds[valHandle]&BLE_CCCD_INDICATE == 0 {
			continue
		}

		peer := c.central
		ev := &hostif.NotifyRxEvent{
			ConnHandle: c.handle,
			AttrHandle: valHandle,
			Data:       data,
			Indication: true,
		}
		h.hub.post(func() { peer.dispatch(ev) })
	}
}

func (h *Host) localNotify(connHandle uint16, valHandle uint16, data []byte,
	indication bool) int {

	h.lock()
	c := h.hub.conns[connHandle]
	if c == nil || !c.has(h) {
		h.unlock()
		return hostif.BLE_HS_ENOTCONN
	}
	a := h.attrNoLock(valHandle)
	if a == nil || a.kind != attrKindChrVal {
		h.unlock()
		return hostif.BLE_HS_ENOENT
	}
	peer := c.peer(h)
	h.unlock()

	buf := append([]byte{}, data...)

	h.hub.post(func() {
		h.lock()
		alive := h.hub.conns[connHandle] == c
		h.unlock()

		tx := &hostif.NotifyTxEvent{
			ConnHandle: connHandle,
			AttrHandle: valHandle,
			Indication: indication,
		}

		if !alive {
			tx.Status = hostif.BLE_HS_ENOTCONN
			h.dispatch(tx)
			return
		}

		peer.dispatch(&hostif.NotifyRxEvent{
			ConnHandle: connHandle,
			AttrHandle: valHandle,
			Data:       buf,
			Indication: indication,
		})

		h.dispatch(tx)

		if indication {
			// The peer's confirmation.
			h.dispatch(&hostif.NotifyTxEvent{
				ConnHandle: connHandle,
				AttrHandle: valHandle,
				Status:     hostif.BLE_HS_EDONE,
				Indication: true,
			})
		}
	})

	return 0
}

func (h *Host) GattsNotify(connHandle uint16, valHandle uint16,
	data []byte) int {

	return h.localNotify(connHandle, valHandle, data, false)
}

func (h *Host) GattsIndicate(connHandle uint16, valHandle uint16,
	data []byte) int {

	return h.localNotify(connHandle, valHandle, data, true)
}

// Subscription state for a local characteristic, as written by the peer.
func (h *Host) Cccd(connHandle uint16, valHandle uint16) uint16 {
	h.lock()
	defer h.unlock()

	c := h.hub.conns[connHandle]
	if c == nil || c.periph != h {
		return 0
	}

	return c.cccds[valHandle]
}

// Reports whether the local database has been started and the service with
// the given UUID is visible to peers.
func (h *Host) SvcVisible(uuid BleUuid) bool {
	h.lock()
	defer h.unlock()

	for _, svc := range h.svcs {
		if svc.uuid.Equal(uuid) {
			return svc.visible
		}
	}

	return false
}

func (h *Host) GattsStarted() bool {
	h.lock()
	defer h.unlock()

	return h.started
}
