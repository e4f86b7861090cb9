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
	"sync"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
	"mynewt.apache.org/gattmgr/nmgatt/task"
)

// One client procedure in flight.  The stack's completion callbacks hold a
// pointer to it; the caller blocks on done.  done is written at most once,
// either by the final callback, by a disconnect, or by Close().
type txn struct {
	op   string
	conn uint16
	done chan int
	once sync.Once
}

func newTxn(op string, conn uint16) *txn {
	return &txn{
		op:   op,
		conn: conn,
		done: make(chan int, 1),
	}
}

// Reports whether a callback for the given connection belongs to this txn.
// Callbacks for a stale connection handle are ignored.
func (t *txn) owns(conn uint16) bool {
	if conn != t.conn {
		log.Debugf("%s: ignoring callback for conn=%d; expected conn=%d",
			t.op, conn, t.conn)
		return false
	}

	return true
}

func (t *txn) complete(status int) {
	t.once.Do(func() {
		t.done <- status
	})
}

// Returns a completion callback for procedures that report only a final
// status.
func (t *txn) attrCb() hostif.AttrFn {
	return func(conn uint16, status int, attr *hostif.Attr) int {
		if t.owns(conn) {
			t.complete(status)
		}
		return 0
	}
}

func statusDone(status int) bool {
	return status == 0 || status == hostif.BLE_HS_EDONE
}

func hostError(op string, status int) error {
	return nmxutil.FmtBleHostError(status, "%s failed; status=%s (%d)",
		op, hostif.StatusString(status), status)
}

func (c *Client) runTask(fn func() error) error {
	err := c.tq.Run(fn)
	if err == task.InactiveError {
		return nmxutil.NewBleSesnDisconnectError(hostif.BLE_HS_ENOTCONN,
			"attempt to use closed client")
	}
	return err
}

// Runs one procedure on the client's queue and waits for its final status.
// dispatch starts the procedure and returns the stack's rc.  A nonzero
// rc, or a missing connection, is reported as an error; a completion
// status is returned for the caller to interpret.
func (c *Client) runTxn(op string, attrHandle uint16,
	dispatch func(t *txn) int) (int, error) {

	var status int

	err := c.runTask(func() error {
		select {
		case <-c.stopChan:
			return nmxutil.NewBleSesnDisconnectError(hostif.BLE_HS_EAPP,
				"attempt to use closed client")
		default:
		}

		c.mtx.Lock()
		conn := c.connHandle
		if conn == BLE_CONN_HANDLE_NONE {
			c.mtx.Unlock()
			return c.notConnectedError(op)
		}
		t := newTxn(op, conn)
		c.cur = t
		c.mtx.Unlock()

		defer func() {
			c.mtx.Lock()
			if c.cur == t {
				c.cur = nil
			}
			c.mtx.Unlock()
		}()

		nmxutil.LogTxnStart(1, op, conn, attrHandle)

		if rc := dispatch(t); rc != 0 {
			nmxutil.LogTxnDone(1, op, conn, rc)
			return nmxutil.FmtBleHostError(rc,
				"%s: stack rejected request; rc=%s (%d)",
				op, hostif.StatusString(rc), rc)
		}

		status = <-t.done
		nmxutil.LogTxnDone(1, op, conn, status)
		return nil
	})

	if err != nil {
		c.setLastError(err)
	}
	return status, err
}

// Completes the outstanding procedure, if any, with the given status.
func (c *Client) abortTxn(status int) {
	c.mtx.Lock()
	t := c.cur
	c.mtx.Unlock()

	if t != nil {
		log.Debugf("%s: aborting; status=%s", t.op,
			hostif.StatusString(status))
		t.complete(status)
	}
}

/*** Attribute procedures shared by characteristics and descriptors. */

// Reads a full attribute value with read-long.  A peer that does not
// support read-blob gets what fit in the first response.  An
// insufficient-security status triggers one attempt at securing the link.
func (c *Client) readAttr(op string, handle uint16) ([]byte, error) {
	retry := 1

	for {
		var buf []byte

		status, err := c.runTxn(op, handle, func(t *txn) int {
			return c.stack.GattcReadLong(t.conn, handle, 0,
				func(conn uint16, status int, attr *hostif.Attr) int {
					if !t.owns(conn) {
						return 0
					}

					if status == 0 && attr != nil {
						if len(buf)+len(attr.Data) > BLE_ATT_ATTR_MAX_LEN {
							status = hostif.AttErr(
								hostif.BLE_ATT_ERR_INVALID_ATTR_VALUE_LEN)
						} else {
							log.Debugf("%s: got %d bytes", op, len(attr.Data))
							buf = append(buf, attr.Data...)
							return 0
						}
					}

					t.complete(status)
					return status
				})
		})
		if err != nil {
			return nil, err
		}

		switch {
		case statusDone(status):
			return buf, nil

		case status == hostif.AttErr(hostif.BLE_ATT_ERR_ATTR_NOT_LONG):
			log.Infof("%s: attribute not long", op)
			return buf, nil

		case hostif.IsSecurityStatus(status) && retry > 0:
			retry--
			if serr := c.SecureConnection(); serr != nil {
				log.Debugf("%s: %s", op, serr.Error())
				return nil, c.setLastError(hostError(op, status))
			}

		default:
			return nil, c.setLastError(hostError(op, status))
		}
	}
}

// Writes an attribute value.  Without a response, a value that fits in one
// PDU is sent as a write command and the call does not wait.  Otherwise
// the write is acknowledged, using prepared writes for values longer than
// one PDU.  At most one retry is made, either after securing the link or
// after truncating a long write the peer rejected.
func (c *Client) writeAttr(op string, handle uint16, data []byte,
	response bool) error {

	if !c.IsConnected() {
		return c.setLastError(c.notConnectedError(op))
	}

	mtu := int(c.MTU()) - 3

	if !response && len(data) <= mtu {
		conn := c.ConnHandle()
		nmxutil.LogTxnStart(1, op+"-no-rsp", conn, handle)
		rc := c.stack.GattcWriteNoRsp(conn, handle, data)
		nmxutil.LogTxnDone(1, op+"-no-rsp", conn, rc)
		if rc != 0 {
			return c.setLastError(hostError(op, rc))
		}
		return nil
	}

	retry := 1

	for {
		long := len(data) > mtu
		if long {
			log.Infof("%s: long write %d bytes", op, len(data))
		}

		payload := data
		status, err := c.runTxn(op, handle, func(t *txn) int {
			if long {
				return c.stack.GattcWriteLong(t.conn, handle, 0, payload,
					t.attrCb())
			}
			return c.stack.GattcWriteFlat(t.conn, handle, payload, t.attrCb())
		})
		if err != nil {
			return err
		}

		switch {
		case statusDone(status):
			return nil

		case status == hostif.AttErr(hostif.BLE_ATT_ERR_ATTR_NOT_LONG) &&
			long && c.cfgCopy().TruncateLongWrites && retry > 0:

			retry--
			log.Warnf("%s: long write not supported by peer; "+
				"truncating length to %d", op, mtu)
			data = data[:mtu]

		case hostif.IsSecurityStatus(status) && retry > 0:
			retry--
			if serr := c.SecureConnection(); serr != nil {
				log.Debugf("%s: %s", op, serr.Error())
				return c.setLastError(hostError(op, status))
			}

		default:
			return c.setLastError(hostError(op, status))
		}
	}
}
