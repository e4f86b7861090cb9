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
)

// Host status codes.  Zero is success.  ATT and HCI errors are offset by
// their respective bases so that every status fits in one int space.
const (
	BLE_HS_EAGAIN          int = 1
	BLE_HS_EALREADY        int = 2
	BLE_HS_EINVAL          int = 3
	BLE_HS_EMSGSIZE        int = 4
	BLE_HS_ENOENT          int = 5
	BLE_HS_ENOMEM          int = 6
	BLE_HS_ENOTCONN        int = 7
	BLE_HS_ENOTSUP         int = 8
	BLE_HS_EAPP            int = 9
	BLE_HS_EBADDATA        int = 10
	BLE_HS_EOS             int = 11
	BLE_HS_ECONTROLLER     int = 12
	BLE_HS_ETIMEOUT        int = 13
	BLE_HS_EDONE           int = 14
	BLE_HS_EBUSY           int = 15
	BLE_HS_EREJECT         int = 16
	BLE_HS_EUNKNOWN        int = 17
	BLE_HS_EROLE           int = 18
	BLE_HS_ETIMEOUT_HCI    int = 19
	BLE_HS_ENOMEM_EVT      int = 20
	BLE_HS_ENOADDR         int = 21
	BLE_HS_ENOTSYNCED      int = 22
	BLE_HS_EAUTHEN         int = 23
	BLE_HS_EAUTHOR         int = 24
	BLE_HS_EENCRYPT        int = 25
	BLE_HS_EENCRYPT_KEY_SZ int = 26
	BLE_HS_ESTORE_CAP      int = 27
	BLE_HS_ESTORE_FAIL     int = 28
)

const (
	BLE_HS_ERR_ATT_BASE int = 0x100
	BLE_HS_ERR_HCI_BASE int = 0x200
)

// ATT error codes as returned by access callbacks.  Completion callbacks see
// them offset by BLE_HS_ERR_ATT_BASE; see AttErr().
const (
	BLE_ATT_ERR_INVALID_HANDLE         int = 0x01
	BLE_ATT_ERR_READ_NOT_PERMITTED     int = 0x02
	BLE_ATT_ERR_WRITE_NOT_PERMITTED    int = 0x03
	BLE_ATT_ERR_INVALID_PDU            int = 0x04
	BLE_ATT_ERR_INSUFFICIENT_AUTHEN    int = 0x05
	BLE_ATT_ERR_REQ_NOT_SUPPORTED      int = 0x06
	BLE_ATT_ERR_INVALID_OFFSET         int = 0x07
	BLE_ATT_ERR_INSUFFICIENT_AUTHOR    int = 0x08
	BLE_ATT_ERR_PREPARE_QUEUE_FULL     int = 0x09
	BLE_ATT_ERR_ATTR_NOT_FOUND         int = 0x0a
	BLE_ATT_ERR_ATTR_NOT_LONG          int = 0x0b
	BLE_ATT_ERR_INSUFFICIENT_KEY_SZ    int = 0x0c
	BLE_ATT_ERR_INVALID_ATTR_VALUE_LEN int = 0x0d
	BLE_ATT_ERR_UNLIKELY               int = 0x0e
	BLE_ATT_ERR_INSUFFICIENT_ENC       int = 0x0f
	BLE_ATT_ERR_UNSUPPORTED_GROUP      int = 0x10
	BLE_ATT_ERR_INSUFFICIENT_RES       int = 0x11
)

// HCI error codes that show up as disconnect reasons.
const (
	BLE_ERR_UNK_CONN_ID         int = 0x02
	BLE_ERR_AUTH_FAIL           int = 0x05
	BLE_ERR_CONN_SPVN_TMO       int = 0x08
	BLE_ERR_REM_USER_CONN_TERM  int = 0x13
	BLE_ERR_CONN_TERM_LOCAL     int = 0x16
	BLE_ERR_CONN_ESTABLISHMENT  int = 0x3e
	BLE_ERR_UNSUPP_REM_FEATURE  int = 0x1a
	BLE_ERR_CONN_ACCEPT_TMO     int = 0x10
	BLE_ERR_INSUFFICIENT_SEC    int = 0x2f
	BLE_ERR_PAIRING_NOT_ALLOWED int = 0x18
	BLE_ERR_CONN_PARMS          int = 0x3b
)

// Return codes for a repeat pairing event.
const (
	BLE_GAP_REPEAT_PAIRING_RETRY  int = 1
	BLE_GAP_REPEAT_PAIRING_IGNORE int = 2
)

// Subscribe event reasons.
const (
	BLE_GAP_SUBSCRIBE_REASON_WRITE int = 1
	BLE_GAP_SUBSCRIBE_REASON_TERM  int = 2
)

func AttErr(code int) int {
	return BLE_HS_ERR_ATT_BASE + code
}

func HciErr(code int) int {
	return BLE_HS_ERR_HCI_BASE + code
}

func IsAttErr(status int) bool {
	return status >= BLE_HS_ERR_ATT_BASE && status < BLE_HS_ERR_HCI_BASE
}

func IsHciErr(status int) bool {
	return status >= BLE_HS_ERR_HCI_BASE && status < BLE_HS_ERR_HCI_BASE+0x100
}

// Reports whether the status is one of the ATT errors that can be fixed by
// pairing.
func IsSecurityStatus(status int) bool {
	switch status {
	case AttErr(BLE_ATT_ERR_INSUFFICIENT_AUTHEN),
		AttErr(BLE_ATT_ERR_INSUFFICIENT_AUTHOR),
		AttErr(BLE_ATT_ERR_INSUFFICIENT_ENC):

		return true

	default:
		return false
	}
}

// Reports whether a disconnect reason indicates that the host itself was
// reset.
func IsHostResetReason(reason int) bool {
	switch reason {
	case BLE_HS_ETIMEOUT_HCI, BLE_HS_EOS, BLE_HS_ECONTROLLER,
		BLE_HS_ENOTSYNCED:

		return true

	default:
		return false
	}
}

var hsStatusStringMap = map[int]string{
	0:                      "success",
	BLE_HS_EAGAIN:          "eagain",
	BLE_HS_EALREADY:        "ealready",
	BLE_HS_EINVAL:          "einval",
	BLE_HS_EMSGSIZE:        "emsgsize",
	BLE_HS_ENOENT:          "enoent",
	BLE_HS_ENOMEM:          "enomem",
	BLE_HS_ENOTCONN:        "enotconn",
	BLE_HS_ENOTSUP:         "enotsup",
	BLE_HS_EAPP:            "eapp",
	BLE_HS_EBADDATA:        "ebaddata",
	BLE_HS_EOS:             "eos",
	BLE_HS_ECONTROLLER:     "econtroller",
	BLE_HS_ETIMEOUT:        "etimeout",
	BLE_HS_EDONE:           "edone",
	BLE_HS_EBUSY:           "ebusy",
	BLE_HS_EREJECT:         "ereject",
	BLE_HS_EUNKNOWN:        "eunknown",
	BLE_HS_EROLE:           "erole",
	BLE_HS_ETIMEOUT_HCI:    "etimeout_hci",
	BLE_HS_ENOMEM_EVT:      "enomem_evt",
	BLE_HS_ENOADDR:         "enoaddr",
	BLE_HS_ENOTSYNCED:      "enotsynced",
	BLE_HS_EAUTHEN:         "eauthen",
	BLE_HS_EAUTHOR:         "eauthor",
	BLE_HS_EENCRYPT:        "eencrypt",
	BLE_HS_EENCRYPT_KEY_SZ: "eencrypt_key_sz",
	BLE_HS_ESTORE_CAP:      "estore_cap",
	BLE_HS_ESTORE_FAIL:     "estore_fail",
}

var attErrStringMap = map[int]string{
	BLE_ATT_ERR_INVALID_HANDLE:         "invalid handle",
	BLE_ATT_ERR_READ_NOT_PERMITTED:     "read not permitted",
	BLE_ATT_ERR_WRITE_NOT_PERMITTED:    "write not permitted",
	BLE_ATT_ERR_INVALID_PDU:            "invalid pdu",
	BLE_ATT_ERR_INSUFFICIENT_AUTHEN:    "insufficient authentication",
	BLE_ATT_ERR_REQ_NOT_SUPPORTED:      "request not supported",
	BLE_ATT_ERR_INVALID_OFFSET:         "invalid offset",
	BLE_ATT_ERR_INSUFFICIENT_AUTHOR:    "insufficient authorization",
	BLE_ATT_ERR_PREPARE_QUEUE_FULL:     "prepare queue full",
	BLE_ATT_ERR_ATTR_NOT_FOUND:         "attribute not found",
	BLE_ATT_ERR_ATTR_NOT_LONG:          "attribute not long",
	BLE_ATT_ERR_INSUFFICIENT_KEY_SZ:    "insufficient key size",
	BLE_ATT_ERR_INVALID_ATTR_VALUE_LEN: "invalid attribute value length",
	BLE_ATT_ERR_UNLIKELY:               "unlikely error",
	BLE_ATT_ERR_INSUFFICIENT_ENC:       "insufficient encryption",
	BLE_ATT_ERR_UNSUPPORTED_GROUP:      "unsupported group type",
	BLE_ATT_ERR_INSUFFICIENT_RES:       "insufficient resources",
}

// Produces a human readable name for a host status code.
func StatusString(status int) string {
	switch {
	case IsAttErr(status):
		s := attErrStringMap[status-BLE_HS_ERR_ATT_BASE]
		if s == "" {
			s = "???"
		}
		return fmt.Sprintf("att: %s (0x%02x)", s, status-BLE_HS_ERR_ATT_BASE)

	case IsHciErr(status):
		return fmt.Sprintf("hci: 0x%02x", status-BLE_HS_ERR_HCI_BASE)

	default:
		s := hsStatusStringMap[status]
		if s == "" {
			s = "???"
		}
		return fmt.Sprintf("%s (%d)", s, status)
	}
}
