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

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

type ProcOp int

const (
	PROC_DISC_SVC ProcOp = iota
	PROC_DISC_CHR
	PROC_DISC_DSC
	PROC_READ
	PROC_WRITE
	PROC_WRITE_LONG
	PROC_WRITE_NO_RSP
	PROC_MTU
)

var ProcOpStringMap = map[ProcOp]string{
	PROC_DISC_SVC:     "disc_svc",
	PROC_DISC_CHR:     "disc_chr",
	PROC_DISC_DSC:     "disc_dsc",
	PROC_READ:         "read",
	PROC_WRITE:        "write",
	PROC_WRITE_LONG:   "write_long",
	PROC_WRITE_NO_RSP: "write_no_rsp",
	PROC_MTU:          "mtu",
}

func ProcOpToString(op ProcOp) string {
	s := ProcOpStringMap[op]
	if s == "" {
		return "???"
	}

	return s
}

type fault struct {
	op     ProcOp
	status int
	count  int
}

// Makes the next count procedures of the given type fail with status instead
// of running.
func (h *Host) InjectStatus(op ProcOp, status int, count int) {
	h.lock()
	defer h.unlock()

	h.faults = append(h.faults, fault{
		op:     op,
		status: status,
		count:  count,
	})
}

func (h *Host) takeFaultNoLock(op ProcOp) int {
	for i, f := range h.faults {
		if f.op != op {
			continue
		}

		if f.count <= 1 {
			h.faults = append(h.faults[:i], h.faults[i+1:]...)
		} else {
			h.faults[i].count--
		}
		return f.status
	}

	return 0
}

// Validates the connection and queues a client procedure.  run executes on
// the worker; fail reports a status that prevents it from running.
func (h *Host) startProc(connHandle uint16, op ProcOp, fail func(status int),
	run func(c *simConn, peer *Host)) int {

	h.lock()
	c := h.hub.conns[connHandle]
	if c == nil || !c.has(h) {
		h.unlock()
		return hostif.BLE_HS_ENOTCONN
	}
	gen := c.cancelGen[h]
	injected := h.takeFaultNoLock(op)
	peer := c.peer(h)
	h.unlock()

	log.Debugf("simhost %s: >> %s conn=%d", h.cfg.Name, ProcOpToString(op),
		connHandle)

	h.hub.postAfter(h.cfg.ProcDelay, func() {
		h.lock()
		alive := h.hub.conns[connHandle] == c
		canceled := c.cancelGen[h] != gen
		h.unlock()

		switch {
		case canceled:
			return
		case !alive:
			fail(hostif.BLE_HS_ENOTCONN)
		case injected != 0:
			fail(injected)
		default:
			run(c, peer)
		}
	})

	return 0
}

// Reports whether the procedure may keep going.
func (h *Host) procAlive(c *simConn) bool {
	h.lock()
	defer h.unlock()

	return h.hub.conns[c.handle] == c
}

func (h *Host) peerSvcs(peer *Host) []simSvc {
	h.lock()
	defer h.unlock()

	svcs := []simSvc{}
	if !peer.started {
		return svcs
	}

	for _, svc := range peer.svcs {
		if svc.visible {
			svcs = append(svcs, *svc)
		}
	}

	return svcs
}

func (h *Host) discSvcs(connHandle uint16, filter *BleUuid,
	cb hostif.SvcFn) int {

	fail := func(status int) { cb(connHandle, status, nil) }

	return h.startProc(connHandle, PROC_DISC_SVC, fail,
		func(c *simConn, peer *Host) {
			for _, svc := range h.peerSvcs(peer) {
				if filter != nil && !svc.uuid.Equal(*filter) {
					continue
				}

				if !h.procAlive(c) {
					fail(hostif.BLE_HS_ENOTCONN)
					return
				}

				info := &hostif.SvcInfo{
					StartHandle: svc.startHandle,
					EndHandle:   svc.endHandle,
					Uuid:        svc.uuid,
				}
				if cb(connHandle, 0, info) != 0 {
					return
				}
			}

			cb(connHandle, hostif.BLE_HS_EDONE, nil)
		})
}

func (h *Host) GattcDiscAllSvcs(connHandle uint16, cb hostif.SvcFn) int {
	return h.discSvcs(connHandle, nil, cb)
}

func (h *Host) GattcDiscSvcByUuid(connHandle uint16, uuid BleUuid,
	cb hostif.SvcFn) int {

	return h.discSvcs(connHandle, &uuid, cb)
}

// Collects copies of the peer's attributes in [start, end] that belong to
// visible services and satisfy pred.
func (h *Host) peerAttrs(peer *Host, start uint16, end uint16,
	pred func(a *simAttr) bool) []simAttr {

	h.lock()
	defer h.unlock()

	attrs := []simAttr{}
	if !peer.started {
		return attrs
	}

	for hd := int(start); hd <= int(end) && hd <= len(peer.attrs); hd++ {
		a := peer.attrNoLock(uint16(hd))
		if a == nil || !a.svc.visible {
			continue
		}
		if pred(a) {
			attrs = append(attrs, *a)
		}
	}

	return attrs
}

func (h *Host) discChrs(connHandle uint16, start uint16, end uint16,
	filter *BleUuid, cb hostif.ChrFn) int {

	fail := func(status int) { cb(connHandle, status, nil) }

	return h.startProc(connHandle, PROC_DISC_CHR, fail,
		func(c *simConn, peer *Host) {
			attrs := h.peerAttrs(peer, start, end, func(a *simAttr) bool {
				return a.kind == attrKindChr &&
					(filter == nil || a.uuid.Equal(*filter))
			})

			for _, a := range attrs {
				if !h.procAlive(c) {
					fail(hostif.BLE_HS_ENOTCONN)
					return
				}

				info := &hostif.ChrInfo{
					DefHandle:  a.handle,
					ValHandle:  a.valHandle,
					Properties: a.chrFlags & 0xff,
					Uuid:       a.uuid,
				}
				if cb(connHandle, 0, info) != 0 {
					return
				}
			}

			cb(connHandle, hostif.BLE_HS_EDONE, nil)
		})
}

func (h *Host) GattcDiscAllChrs(connHandle uint16, startHandle uint16,
	endHandle uint16, cb hostif.ChrFn) int {

	return h.discChrs(connHandle, startHandle, endHandle, nil, cb)
}

func (h *Host) GattcDiscChrsByUuid(connHandle uint16, startHandle uint16,
	endHandle uint16, uuid BleUuid, cb hostif.ChrFn) int {

	return h.discChrs(connHandle, startHandle, endHandle, &uuid, cb)
}

// Discovers the descriptors following a characteristic value.  startHandle
// is the value handle.
func (h *Host) GattcDiscAllDscs(connHandle uint16, startHandle uint16,
	endHandle uint16, cb hostif.DscFn) int {

	fail := func(status int) { cb(connHandle, status, startHandle, nil) }

	return h.startProc(connHandle, PROC_DISC_DSC, fail,
		func(c *simConn, peer *Host) {
			attrs := h.peerAttrs(peer, startHandle+1, endHandle,
				func(a *simAttr) bool {
					return a.kind == attrKindCccd || a.kind == attrKindDsc
				})

			for _, a := range attrs {
				if !h.procAlive(c) {
					fail(hostif.BLE_HS_ENOTCONN)
					return
				}

				info := &hostif.DscInfo{
					Handle: a.handle,
					Uuid:   a.uuid,
				}
				if cb(connHandle, 0, startHandle, info) != 0 {
					return
				}
			}

			cb(connHandle, hostif.BLE_HS_EDONE, startHandle, nil)
		})
}

func (h *Host) peerAttr(peer *Host, handle uint16) (simAttr, bool) {
	h.lock()
	defer h.unlock()

	if !peer.started {
		return simAttr{}, false
	}

	a := peer.attrNoLock(handle)
	if a == nil || !a.svc.visible {
		return simAttr{}, false
	}

	return *a, true
}

// Checks the link's security against an attribute's requirements.  Returns 0
// or an ATT error code.
func (h *Host) checkAccess(c *simConn, a *simAttr, write bool) int {
	h.lock()
	encrypted := c.encrypted
	authenticated := c.authenticated
	h.unlock()

	var flags BleAttFlags
	switch a.kind {
	case attrKindChrVal:
		flags = ChrFlagsToAttFlags(a.chrFlags)
	case attrKindSvc, attrKindChr:
		flags = BLE_ATT_F_READ
	default:
		flags = a.attFlags
	}

	if write {
		if flags&BLE_ATT_F_WRITE == 0 {
			return hostif.BLE_ATT_ERR_WRITE_NOT_PERMITTED
		}
		if flags&BLE_ATT_F_WRITE_AUTHEN != 0 && !authenticated {
			return hostif.BLE_ATT_ERR_INSUFFICIENT_AUTHEN
		}
		if flags&BLE_ATT_F_WRITE_ENC != 0 && !encrypted {
			return hostif.BLE_ATT_ERR_INSUFFICIENT_ENC
		}
	} else {
		if flags&BLE_ATT_F_READ == 0 {
			return hostif.BLE_ATT_ERR_READ_NOT_PERMITTED
		}
		if flags&BLE_ATT_F_READ_AUTHEN != 0 && !authenticated {
			return hostif.BLE_ATT_ERR_INSUFFICIENT_AUTHEN
		}
		if flags&BLE_ATT_F_READ_ENC != 0 && !encrypted {
			return hostif.BLE_ATT_ERR_INSUFFICIENT_ENC
		}
	}

	return 0
}

// Produces the full value of a peer attribute.  Returns the value and 0, or
// an ATT error code.
func (h *Host) readAttr(c *simConn, a *simAttr, offset int) ([]byte, int) {
	switch a.kind {
	case attrKindSvc:
		return a.uuid.Bytes(), 0

	case attrKindChr:
		b := []byte{byte(a.chrFlags)}
		b = append(b, byte(a.valHandle), byte(a.valHandle>>8))
		return append(b, a.uuid.Bytes()...), 0

	case attrKindCccd:
		h.lock()
		cccd := c.cccds[a.valHandle]
		h.unlock()

		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, cccd)
		return b, 0

	default:
		op := BLE_GATT_ACCESS_OP_READ_CHR
		if a.kind == attrKindDsc {
			op = BLE_GATT_ACCESS_OP_READ_DSC
		}

		ctxt := &hostif.AccessCtxt{
			Op:         op,
			ConnHandle: c.handle,
			AttrHandle: a.handle,
			Offset:     offset,
		}
		if rc := a.accessCb(ctxt); rc != 0 {
			return nil, rc
		}
		return ctxt.Out, 0
	}
}

// Reads a value in ATT-MTU sized pieces, calling cb once per piece.
func (h *Host) GattcReadLong(connHandle uint16, attrHandle uint16,
	offset int, cb hostif.AttrFn) int {

	fail := func(status int) {
		cb(connHandle, status, &hostif.Attr{Handle: attrHandle})
	}

	return h.startProc(connHandle, PROC_READ, fail,
		func(c *simConn, peer *Host) {
			a, ok := h.peerAttr(peer, attrHandle)
			if !ok {
				fail(hostif.AttErr(hostif.BLE_ATT_ERR_INVALID_HANDLE))
				return
			}

			if rc := h.checkAccess(c, &a, false); rc != 0 {
				fail(hostif.AttErr(rc))
				return
			}

			h.lock()
			max := int(c.mtu) - 1
			h.unlock()

			off := offset
			for {
				full, rc := h.readAttr(c, &a, off)
				if rc != 0 {
					fail(hostif.AttErr(rc))
					return
				}
				if off > len(full) {
					fail(hostif.AttErr(hostif.BLE_ATT_ERR_INVALID_OFFSET))
					return
				}

				chunk := full[off:]
				if len(chunk) > max {
					chunk = chunk[:max]
				}

				attr := &hostif.Attr{
					Handle: attrHandle,
					Offset: off,
					Data:   append([]byte{}, chunk...),
				}
				if cb(connHandle, 0, attr) != 0 {
					return
				}

				off += len(chunk)
				if len(chunk) < max {
					break
				}

				if !h.procAlive(c) {
					fail(hostif.BLE_HS_ENOTCONN)
					return
				}
			}

			cb(connHandle, hostif.BLE_HS_EDONE,
				&hostif.Attr{Handle: attrHandle, Offset: off})
		})
}

// Applies a write from this host to a peer attribute.  Returns 0 or an ATT
// error code.
func (h *Host) writeAttr(c *simConn, peer *Host, a *simAttr, offset int,
	data [][]byte) int {

	if rc := h.checkAccess(c, a, true); rc != 0 {
		return rc
	}

	switch a.kind {
	case attrKindCccd:
		total := []byte{}
		for _, d := range data {
			total = append(total, d...)
		}
		if len(total) != 2 {
			return hostif.BLE_ATT_ERR_INVALID_ATTR_VALUE_LEN
		}
		cur := binary.LittleEndian.Uint16(total)

		h.lock()
		prev := c.cccds[a.valHandle]
		c.cccds[a.valHandle] = cur
		h.unlock()

		peer.dispatch(&hostif.SubscribeEvent{
			ConnHandle:   c.handle,
			AttrHandle:   a.valHandle,
			Reason:       hostif.BLE_GAP_SUBSCRIBE_REASON_WRITE,
			PrevNotify:   prev&BLE_CCCD_NOTIFY != 0,
			CurNotify:    cur&BLE_CCCD_NOTIFY != 0,
			PrevIndicate: prev&BLE_CCCD_INDICATE != 0,
			CurIndicate:  cur&BLE_CCCD_INDICATE != 0,
		})
		return 0

	case attrKindChrVal, attrKindDsc:
		op := BLE_GATT_ACCESS_OP_WRITE_CHR
		if a.kind == attrKindDsc {
			op = BLE_GATT_ACCESS_OP_WRITE_DSC
		}

		return a.accessCb(&hostif.AccessCtxt{
			Op:         op,
			ConnHandle: c.handle,
			AttrHandle: a.handle,
			Offset:     offset,
			Data:       data,
		})

	default:
		return hostif.BLE_ATT_ERR_WRITE_NOT_PERMITTED
	}
}

func (h *Host) GattcWriteFlat(connHandle uint16, attrHandle uint16,
	data []byte, cb hostif.AttrFn) int {

	buf := append([]byte{}, data...)
	fail := func(status int) {
		cb(connHandle, status, &hostif.Attr{Handle: attrHandle})
	}

	return h.startProc(connHandle, PROC_WRITE, fail,
		func(c *simConn, peer *Host) {
			h.lock()
			max := int(c.mtu) - 3
			h.unlock()

			if len(buf) > max {
				fail(hostif.AttErr(hostif.BLE_ATT_ERR_INVALID_ATTR_VALUE_LEN))
				return
			}

			a, ok := h.peerAttr(peer, attrHandle)
			if !ok {
				fail(hostif.AttErr(hostif.BLE_ATT_ERR_INVALID_HANDLE))
				return
			}

			if rc := h.writeAttr(c, peer, &a, 0, [][]byte{buf}); rc != 0 {
				fail(hostif.AttErr(rc))
				return
			}

			cb(connHandle, 0, &hostif.Attr{Handle: attrHandle})
		})
}

// Writes a value with a queue of prepared writes.  The peer's access
// callback sees the whole value as a chain of prepare-sized buffers.
func (h *Host) GattcWriteLong(connHandle uint16, attrHandle uint16,
	offset int, data []byte, cb hostif.AttrFn) int {

	buf := append([]byte{}, data...)
	fail := func(status int) {
		cb(connHandle, status, &hostif.Attr{Handle: attrHandle})
	}

	return h.startProc(connHandle, PROC_WRITE_LONG, fail,
		func(c *simConn, peer *Host) {
			if offset+len(buf) > BLE_ATT_ATTR_MAX_LEN {
				fail(hostif.AttErr(hostif.BLE_ATT_ERR_INVALID_ATTR_VALUE_LEN))
				return
			}

			a, ok := h.peerAttr(peer, attrHandle)
			if !ok {
				fail(hostif.AttErr(hostif.BLE_ATT_ERR_INVALID_HANDLE))
				return
			}

			h.lock()
			prep := int(c.mtu) - 5
			h.unlock()

			chain := [][]byte{}
			for off := 0; off < len(buf); off += prep {
				end := off + prep
				if end > len(buf) {
					end = len(buf)
				}
				chain = append(chain, buf[off:end])
			}

			if rc := h.writeAttr(c, peer, &a, offset, chain); rc != 0 {
				fail(hostif.AttErr(rc))
				return
			}

			cb(connHandle, 0, &hostif.Attr{Handle: attrHandle})
		})
}

func (h *Host) GattcWriteNoRsp(connHandle uint16, attrHandle uint16,
	data []byte) int {

	mtu := h.AttMtu(connHandle)
	if mtu == 0 {
		return hostif.BLE_HS_ENOTCONN
	}
	if len(data) > int(mtu)-3 {
		return hostif.BLE_HS_EMSGSIZE
	}

	buf := append([]byte{}, data...)
	fail := func(status int) {
		log.Debugf("simhost %s: write without response failed: %s",
			h.cfg.Name, hostif.StatusString(status))
	}

	return h.startProc(connHandle, PROC_WRITE_NO_RSP, fail,
		func(c *simConn, peer *Host) {
			a, ok := h.peerAttr(peer, attrHandle)
			if !ok {
				return
			}

			// No response; errors are dropped.
			h.writeAttr(c, peer, &a, 0, [][]byte{buf})
		})
}

func (h *Host) GattcExchangeMtu(connHandle uint16, cb hostif.MtuFn) int {
	fail := func(status int) { cb(connHandle, status, 0) }

	return h.startProc(connHandle, PROC_MTU, fail,
		func(c *simConn, peer *Host) {
			mtu := h.cfg.Mtu
			if peer.cfg.Mtu < mtu {
				mtu = peer.cfg.Mtu
			}

			h.lock()
			c.mtu = mtu
			h.unlock()

			cb(connHandle, 0, mtu)

			ev := &hostif.MtuEvent{
				ConnHandle: connHandle,
				ChannelId:  BLE_L2CAP_CID_ATT,
				Value:      mtu,
			}
			h.dispatch(ev)
			peer.dispatch(ev)
		})
}

func (h *Host) GattcCancel(connHandle uint16) {
	h.lock()
	defer h.unlock()

	if c := h.hub.conns[connHandle]; c != nil && c.has(h) {
		c.cancelGen[h]++
	}
}
