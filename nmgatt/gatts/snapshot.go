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
	"fmt"

	"github.com/fatih/structs"
	"github.com/joaojeronimo/go-crc16"
	"github.com/ugorji/go/codec"
)

// A point-in-time description of the server's database, suitable for
// export.  Only the structure is captured, not attribute values, so the
// fingerprint changes exactly when peers would need to rediscover.
type DbSnapshot struct {
	Started bool          `codec:"started"`
	Svcs    []SvcSnapshot `codec:"svcs"`
}

type SvcSnapshot struct {
	Uuid   string        `codec:"uuid"`
	Handle uint16        `codec:"handle"`
	State  string        `codec:"state"`
	Chrs   []ChrSnapshot `codec:"chrs"`
}

type ChrSnapshot struct {
	Uuid   string        `codec:"uuid"`
	Handle uint16        `codec:"handle"`
	Flags  string        `codec:"flags"`
	State  string        `codec:"state"`
	MaxLen int           `codec:"max_len"`
	Dscs   []DscSnapshot `codec:"dscs"`
}

type DscSnapshot struct {
	Uuid     string `codec:"uuid"`
	Handle   uint16 `codec:"handle"`
	AttFlags uint8  `codec:"att_flags"`
	State    string `codec:"state"`
	MaxLen   int    `codec:"max_len"`
}

func (s *Server) Snapshot() DbSnapshot {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	return s.snapshotNoLock()
}

func (s *Server) snapshotNoLock() DbSnapshot {
	snap := DbSnapshot{
		Started: s.gattsStarted,
		Svcs:    []SvcSnapshot{},
	}

	for _, svc := range s.svcs {
		ss := SvcSnapshot{
			Uuid:   svc.uuid.String(),
			Handle: svc.handle,
			State:  svc.removed.String(),
			Chrs:   []ChrSnapshot{},
		}

		for _, chr := range svc.chrs {
			cs := ChrSnapshot{
				Uuid:   chr.uuid.String(),
				Handle: chr.handle,
				Flags:  chr.props.String(),
				State:  chr.removed.String(),
				MaxLen: chr.value.MaxLen(),
				Dscs:   []DscSnapshot{},
			}

			for _, dsc := range chr.dscs {
				cs.Dscs = append(cs.Dscs, DscSnapshot{
					Uuid:     dsc.uuid.String(),
					Handle:   dsc.handle,
					AttFlags: uint8(dsc.attFlags),
					State:    dsc.removed.String(),
					MaxLen:   dsc.value.MaxLen(),
				})
			}

			ss.Chrs = append(ss.Chrs, cs)
		}

		snap.Svcs = append(snap.Svcs, ss)
	}

	return snap
}

// Converts the snapshot to a generic map keyed by the codec tags.
func (snap DbSnapshot) Map() map[string]interface{} {
	st := structs.New(snap)
	st.TagName = "codec"
	return st.Map()
}

func (snap DbSnapshot) EncodeCbor() ([]byte, error) {
	h := new(codec.CborHandle)
	h.Canonical = true

	b := []byte{}
	enc := codec.NewEncoderBytes(&b, h)
	if err := enc.Encode(snap.Map()); err != nil {
		return nil, err
	}

	return b, nil
}

func (snap DbSnapshot) EncodeJson() ([]byte, error) {
	h := new(codec.JsonHandle)
	h.Canonical = true
	h.Indent = 2

	b := []byte{}
	enc := codec.NewEncoderBytes(&b, h)
	if err := enc.Encode(snap.Map()); err != nil {
		return nil, err
	}

	return b, nil
}

// Encodes the snapshot in the named format: "cbor" or "json".
func (snap DbSnapshot) Encode(format string) ([]byte, error) {
	switch format {
	case "cbor":
		return snap.EncodeCbor()
	case "json":
		return snap.EncodeJson()
	default:
		return nil, fmt.Errorf("invalid snapshot format: %s", format)
	}
}

func DecodeSnapshot(b []byte, format string) (DbSnapshot, error) {
	var h codec.Handle
	switch format {
	case "cbor":
		h = new(codec.CborHandle)
	case "json":
		h = new(codec.JsonHandle)
	default:
		return DbSnapshot{}, fmt.Errorf("invalid snapshot format: %s", format)
	}

	var snap DbSnapshot
	if err := codec.NewDecoderBytes(b, h).Decode(&snap); err != nil {
		return DbSnapshot{}, err
	}

	return snap, nil
}

// CRC16 of the canonical CBOR encoding; 0 if the snapshot cannot be
// encoded.
func (snap DbSnapshot) Fingerprint() uint16 {
	b, err := snap.EncodeCbor()
	if err != nil {
		return 0
	}

	return crc16.Crc16(b)
}

// Fingerprint of the database as of the last start.
func (s *Server) Fingerprint() uint16 {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	return s.fingerprint
}
