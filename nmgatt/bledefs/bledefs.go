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

package bledefs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const BLE_ATT_ATTR_MAX_LEN = 512

const BLE_ATT_MTU_DFLT = 23

const BLE_L2CAP_CID_ATT uint16 = 4

// Initial buffer size of a freshly constructed attribute value.
const BLE_ATT_VALUE_INIT_LEN = 20

const (
	BLE_SVC_UUID16_GAP          BleUuid16 = 0x1800
	BLE_SVC_UUID16_GATT         BleUuid16 = 0x1801
	BLE_CHR_UUID16_SVC_CHANGED  BleUuid16 = 0x2a05
	BLE_DSC_UUID16_CCCD         BleUuid16 = 0x2902
	BLE_CHR_UUID16_DEVICE_NAME  BleUuid16 = 0x2a00
	BLE_CHR_UUID16_APPEARANCE   BleUuid16 = 0x2a01
	BLE_CCCD_NOTIFY             uint16    = 0x0001
	BLE_CCCD_INDICATE           uint16    = 0x0002
	BLE_CONN_HANDLE_NONE        uint16    = 0xffff
	BLE_ATT_HANDLE_NONE         uint16    = 0xffff
	BLE_ATT_HANDLE_MAX          uint16    = 0xffff
	BLE_HCI_LE_CONN_HANDLE_MAX  uint16    = 0x0eff
	BLE_GAP_PASSKEY_DFLT        uint32    = 123456
	BLE_GAP_INITIAL_CONN_ITVL   uint16    = 0x30
	BLE_GAP_SUPERVISION_TMO_DFL uint16    = 400
)

type BleAddrType int

const (
	BLE_ADDR_TYPE_PUBLIC  BleAddrType = 0
	BLE_ADDR_TYPE_RANDOM  BleAddrType = 1
	BLE_ADDR_TYPE_RPA_PUB BleAddrType = 2
	BLE_ADDR_TYPE_RPA_RND BleAddrType = 3
)

var BleAddrTypeStringMap = map[BleAddrType]string{
	BLE_ADDR_TYPE_PUBLIC:  "public",
	BLE_ADDR_TYPE_RANDOM:  "random",
	BLE_ADDR_TYPE_RPA_PUB: "rpa_pub",
	BLE_ADDR_TYPE_RPA_RND: "rpa_rnd",
}

func BleAddrTypeToString(addrType BleAddrType) string {
	s := BleAddrTypeStringMap[addrType]
	if s == "" {
		return "???"
	}

	return s
}

func BleAddrTypeFromString(s string) (BleAddrType, error) {
	for addrType, name := range BleAddrTypeStringMap {
		if s == name {
			return addrType, nil
		}
	}

	return BleAddrType(0), fmt.Errorf("Invalid BleAddrType string: %s", s)
}

func (a BleAddrType) MarshalJSON() ([]byte, error) {
	return json.Marshal(BleAddrTypeToString(a))
}

func (a *BleAddrType) UnmarshalJSON(data []byte) error {
	var err error

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*a, err = BleAddrTypeFromString(s)
	return err
}

type BleAddr struct {
	Bytes [6]byte
}

func ParseBleAddr(s string) (BleAddr, error) {
	ba := BleAddr{}

	toks := strings.Split(strings.ToLower(s), ":")
	if len(toks) != 6 {
		return ba, fmt.Errorf("invalid BLE addr string: %s", s)
	}

	for i, t := range toks {
		u64, err := strconv.ParseUint(t, 16, 8)
		if err != nil {
			return ba, err
		}
		ba.Bytes[i] = byte(u64)
	}

	return ba, nil
}

func (ba BleAddr) String() string {
	var buf bytes.Buffer
	buf.Grow(len(ba.Bytes) * 3)

	for i, b := range ba.Bytes {
		if i != 0 {
			buf.WriteString(":")
		}
		fmt.Fprintf(&buf, "%02x", b)
	}

	return buf.String()
}

func (ba BleAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal(ba.String())
}

func (ba *BleAddr) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	var err error
	*ba, err = ParseBleAddr(s)
	if err != nil {
		return err
	}

	return nil
}

type BleDev struct {
	AddrType BleAddrType
	Addr     BleAddr
}

func (bd BleDev) String() string {
	return fmt.Sprintf("%s,%s",
		BleAddrTypeToString(bd.AddrType),
		bd.Addr.String())
}

type BleRole int

const (
	BLE_ROLE_MASTER BleRole = iota
	BLE_ROLE_SLAVE
)

var BleRoleStringMap = map[BleRole]string{
	BLE_ROLE_MASTER: "master",
	BLE_ROLE_SLAVE:  "slave",
}

func BleRoleToString(role BleRole) string {
	s := BleRoleStringMap[role]
	if s == "" {
		return "???"
	}

	return s
}

// Describes an established connection.  Intervals are in 1.25ms units, the
// supervision timeout in 10ms units.
type BleConnDesc struct {
	ConnHandle      uint16
	OwnIdAddrType   BleAddrType
	OwnIdAddr       BleAddr
	OwnOtaAddrType  BleAddrType
	OwnOtaAddr      BleAddr
	PeerIdAddrType  BleAddrType
	PeerIdAddr      BleAddr
	PeerOtaAddrType BleAddrType
	PeerOtaAddr     BleAddr
	Role            BleRole
	ConnItvl        uint16
	ConnLatency     uint16
	SupervisionTmo  uint16
	Mtu             uint16
	Encrypted       bool
	Authenticated   bool
	Bonded          bool
	KeySize         uint8
}

func (d *BleConnDesc) IsEncrypted() bool {
	return d.Encrypted
}

func (d *BleConnDesc) IsMaster() bool {
	return d.Role == BLE_ROLE_MASTER
}

func (d *BleConnDesc) PeerDev() BleDev {
	return BleDev{
		AddrType: d.PeerIdAddrType,
		Addr:     d.PeerIdAddr,
	}
}

func (d *BleConnDesc) String() string {
	return fmt.Sprintf("conn_handle=%d role=%s "+
		"own_id_addr=%s,%s own_ota_addr=%s,%s "+
		"peer_id_addr=%s,%s peer_ota_addr=%s,%s "+
		"itvl=%d latency=%d tmo=%d mtu=%d "+
		"encrypted=%t authenticated=%t bonded=%t key_size=%d",
		d.ConnHandle,
		BleRoleToString(d.Role),
		BleAddrTypeToString(d.OwnIdAddrType),
		d.OwnIdAddr.String(),
		BleAddrTypeToString(d.OwnOtaAddrType),
		d.OwnOtaAddr.String(),
		BleAddrTypeToString(d.PeerIdAddrType),
		d.PeerIdAddr.String(),
		BleAddrTypeToString(d.PeerOtaAddrType),
		d.PeerOtaAddr.String(),
		d.ConnItvl, d.ConnLatency, d.SupervisionTmo, d.Mtu,
		d.Encrypted, d.Authenticated, d.Bonded, d.KeySize)
}

type BleGattOp int

const (
	BLE_GATT_ACCESS_OP_READ_CHR  BleGattOp = 0
	BLE_GATT_ACCESS_OP_WRITE_CHR BleGattOp = 1
	BLE_GATT_ACCESS_OP_READ_DSC  BleGattOp = 2
	BLE_GATT_ACCESS_OP_WRITE_DSC BleGattOp = 3
)

var BleGattOpStringMap = map[BleGattOp]string{
	BLE_GATT_ACCESS_OP_READ_CHR:  "read_chr",
	BLE_GATT_ACCESS_OP_WRITE_CHR: "write_chr",
	BLE_GATT_ACCESS_OP_READ_DSC:  "read_dsc",
	BLE_GATT_ACCESS_OP_WRITE_DSC: "write_dsc",
}

func BleGattOpToString(op BleGattOp) string {
	s := BleGattOpStringMap[op]
	if s == "" {
		return "???"
	}

	return s
}

func BleGattOpFromString(s string) (BleGattOp, error) {
	for op, name := range BleGattOpStringMap {
		if s == name {
			return op, nil
		}
	}

	return BleGattOp(0),
		fmt.Errorf("Invalid BleGattOp string: %s", s)
}

type BleSvcType int

const (
	BLE_SVC_TYPE_END BleSvcType = iota
	BLE_SVC_TYPE_PRIMARY
	BLE_SVC_TYPE_SECONDARY
)

var BleSvcTypeStringMap = map[BleSvcType]string{
	BLE_SVC_TYPE_PRIMARY:   "primary",
	BLE_SVC_TYPE_SECONDARY: "secondary",
}

func BleSvcTypeToString(svcType BleSvcType) string {
	s := BleSvcTypeStringMap[svcType]
	if s == "" {
		return "???"
	}

	return s
}

func BleSvcTypeFromString(s string) (BleSvcType, error) {
	for svcType, name := range BleSvcTypeStringMap {
		if s == name {
			return svcType, nil
		}
	}

	return BleSvcType(0),
		fmt.Errorf("Invalid BleSvcType string: %s", s)
}

func (a BleSvcType) MarshalJSON() ([]byte, error) {
	return json.Marshal(BleSvcTypeToString(a))
}

func (a *BleSvcType) UnmarshalJSON(data []byte) error {
	var err error

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*a, err = BleSvcTypeFromString(s)
	return err
}

// Characteristic properties.  Descriptors are created with the same flags;
// they get converted to ATT permissions with ChrFlagsToAttFlags.
type BleChrFlags uint16

const (
	BLE_GATT_F_BROADCAST       BleChrFlags = 0x0001
	BLE_GATT_F_READ            BleChrFlags = 0x0002
	BLE_GATT_F_WRITE_NO_RSP    BleChrFlags = 0x0004
	BLE_GATT_F_WRITE           BleChrFlags = 0x0008
	BLE_GATT_F_NOTIFY          BleChrFlags = 0x0010
	BLE_GATT_F_INDICATE        BleChrFlags = 0x0020
	BLE_GATT_F_AUTH_SIGN_WRITE BleChrFlags = 0x0040
	BLE_GATT_F_RELIABLE_WRITE  BleChrFlags = 0x0080
	BLE_GATT_F_AUX_WRITE       BleChrFlags = 0x0100
	BLE_GATT_F_READ_ENC        BleChrFlags = 0x0200
	BLE_GATT_F_READ_AUTHEN     BleChrFlags = 0x0400
	BLE_GATT_F_READ_AUTHOR     BleChrFlags = 0x0800
	BLE_GATT_F_WRITE_ENC       BleChrFlags = 0x1000
	BLE_GATT_F_WRITE_AUTHEN    BleChrFlags = 0x2000
	BLE_GATT_F_WRITE_AUTHOR    BleChrFlags = 0x4000
)

var bleChrFlagsStringMap = []struct {
	flag BleChrFlags
	name string
}{
	{BLE_GATT_F_BROADCAST, "broadcast"},
	{BLE_GATT_F_READ, "read"},
	{BLE_GATT_F_WRITE_NO_RSP, "write_no_rsp"},
	{BLE_GATT_F_WRITE, "write"},
	{BLE_GATT_F_NOTIFY, "notify"},
	{BLE_GATT_F_INDICATE, "indicate"},
	{BLE_GATT_F_AUTH_SIGN_WRITE, "auth_sign_write"},
	{BLE_GATT_F_RELIABLE_WRITE, "reliable_write"},
	{BLE_GATT_F_AUX_WRITE, "aux_write"},
	{BLE_GATT_F_READ_ENC, "read_enc"},
	{BLE_GATT_F_READ_AUTHEN, "read_authen"},
	{BLE_GATT_F_READ_AUTHOR, "read_author"},
	{BLE_GATT_F_WRITE_ENC, "write_enc"},
	{BLE_GATT_F_WRITE_AUTHEN, "write_authen"},
	{BLE_GATT_F_WRITE_AUTHOR, "write_author"},
}

func (f BleChrFlags) String() string {
	names := []string{}
	for _, e := range bleChrFlagsStringMap {
		if f&e.flag != 0 {
			names = append(names, e.name)
		}
	}

	return strings.Join(names, "|")
}

// Parses a '|' or ',' separated list of flag names.
func ParseBleChrFlags(s string) (BleChrFlags, error) {
	var flags BleChrFlags

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == ' '
	})

	for _, field := range fields {
		found := false
		for _, e := range bleChrFlagsStringMap {
			if strings.EqualFold(field, e.name) {
				flags |= e.flag
				found = true
				break
			}
		}

		if !found {
			return 0, fmt.Errorf("Invalid BleChrFlags string: %s", field)
		}
	}

	return flags, nil
}

func (f BleChrFlags) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *BleChrFlags) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Accept a raw number too.
		var n uint16
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = BleChrFlags(n)
		return nil
	}

	var err error
	*f, err = ParseBleChrFlags(s)
	return err
}

type BleAttFlags uint8

const (
	BLE_ATT_F_READ         BleAttFlags = 0x01
	BLE_ATT_F_WRITE        BleAttFlags = 0x02
	BLE_ATT_F_READ_ENC     BleAttFlags = 0x04
	BLE_ATT_F_READ_AUTHEN  BleAttFlags = 0x08
	BLE_ATT_F_READ_AUTHOR  BleAttFlags = 0x10
	BLE_ATT_F_WRITE_ENC    BleAttFlags = 0x20
	BLE_ATT_F_WRITE_AUTHEN BleAttFlags = 0x40
	BLE_ATT_F_WRITE_AUTHOR BleAttFlags = 0x80
)

// Converts characteristic-style properties to the ATT permission flags used
// for descriptors.
func ChrFlagsToAttFlags(props BleChrFlags) BleAttFlags {
	var f BleAttFlags

	if props&BLE_GATT_F_READ != 0 {
		f |= BLE_ATT_F_READ
	}
	if props&(BLE_GATT_F_WRITE_NO_RSP|BLE_GATT_F_WRITE) != 0 {
		f |= BLE_ATT_F_WRITE
	}
	if props&BLE_GATT_F_READ_ENC != 0 {
		f |= BLE_ATT_F_READ_ENC
	}
	if props&BLE_GATT_F_READ_AUTHEN != 0 {
		f |= BLE_ATT_F_READ_AUTHEN
	}
	if props&BLE_GATT_F_READ_AUTHOR != 0 {
		f |= BLE_ATT_F_READ_AUTHOR
	}
	if props&BLE_GATT_F_WRITE_ENC != 0 {
		f |= BLE_ATT_F_WRITE_ENC
	}
	if props&BLE_GATT_F_WRITE_AUTHEN != 0 {
		f |= BLE_ATT_F_WRITE_AUTHEN
	}
	if props&BLE_GATT_F_WRITE_AUTHOR != 0 {
		f |= BLE_ATT_F_WRITE_AUTHOR
	}

	return f
}

// Security requirements for reading an attribute with the given ATT flags.
func (f BleAttFlags) ReadNeedsSecurity() bool {
	return f&(BLE_ATT_F_READ_ENC|BLE_ATT_F_READ_AUTHEN|BLE_ATT_F_READ_AUTHOR) != 0
}

func (f BleAttFlags) WriteNeedsSecurity() bool {
	return f&(BLE_ATT_F_WRITE_ENC|BLE_ATT_F_WRITE_AUTHEN|BLE_ATT_F_WRITE_AUTHOR) != 0
}

// Pairing I/O actions reported by the security manager.
type BleSmAction int

const (
	BLE_SM_IOACT_NONE BleSmAction = iota
	BLE_SM_IOACT_OOB
	BLE_SM_IOACT_INPUT
	BLE_SM_IOACT_DISP
	BLE_SM_IOACT_NUMCMP
)

var BleSmActionStringMap = map[BleSmAction]string{
	BLE_SM_IOACT_NONE:   "none",
	BLE_SM_IOACT_OOB:    "oob",
	BLE_SM_IOACT_INPUT:  "input",
	BLE_SM_IOACT_DISP:   "disp",
	BLE_SM_IOACT_NUMCMP: "numcmp",
}

func BleSmActionToString(a BleSmAction) string {
	s := BleSmActionStringMap[a]
	if s == "" {
		return "???"
	}

	return s
}

func BleSmActionFromString(s string) (BleSmAction, error) {
	for a, name := range BleSmActionStringMap {
		if s == name {
			return a, nil
		}
	}

	return BleSmAction(0),
		fmt.Errorf("Invalid BleSmAction string: %s", s)
}

// The response injected back into the security manager for a passkey
// action.
type BleSmIo struct {
	Action       BleSmAction
	Passkey      uint32
	NumCmpAccept bool
	Oob          [16]byte
}

type BleSecurityCfg struct {
	Bonding bool
	Mitm    bool
	Sc      bool
}
