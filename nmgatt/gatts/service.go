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

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
)

type Service struct {
	uuid    BleUuid
	handle  uint16
	chrs    []*Characteristic
	removed RemoveState
	server  *Server

	// Compiled table; nil until the next start after a change.
	svcDef hostif.SvcDefs

	// Whether the table is registered with the stack.
	registered bool
}

// Creates a service that is not yet attached to a server.
func NewService(uuid BleUuid) *Service {
	return &Service{
		uuid:   uuid,
		handle: BLE_CONN_HANDLE_NONE,
	}
}

func (svc *Service) Uuid() BleUuid {
	return svc.uuid
}

func (svc *Service) Server() *Server {
	return svc.server
}

func (svc *Service) State() RemoveState {
	return svc.removed
}

// Returns the service's start handle.  If it has not been resolved yet, it
// is looked up in the stack's database.
func (svc *Service) Handle() uint16 {
	if svc.handle == BLE_CONN_HANDLE_NONE && svc.server != nil {
		if h, rc := svc.server.stack.GattsFindSvc(svc.uuid); rc == 0 {
			svc.handle = h
		}
	}

	return svc.handle
}

func (svc *Service) String() string {
	return fmt.Sprintf("Service: uuid: %s, handle: 0x%04x", svc.uuid,
		svc.handle)
}

// Reports whether the service is registered with the stack.
func (svc *Service) IsStarted() bool {
	return svc.registered
}

/*** Characteristics. */

// Creates a characteristic and adds it to the service.
func (svc *Service) CreateCharacteristic(uuid BleUuid, props BleChrFlags,
	maxLen int) *Characteristic {

	chr := NewCharacteristic(uuid, props, maxLen)
	svc.AddCharacteristic(chr)
	return chr
}

// Adds a characteristic, or restores one that was previously removed.
// Changes the database if it has already been started.
func (svc *Service) AddCharacteristic(chr *Characteristic) {
	withDb(svc.server, func() bool {
		found := false
		for _, c := range svc.chrs {
			if c == chr {
				found = true
				break
			}
		}

		if found {
			chr.removed = REMOVE_STATE_ACTIVE
		} else {
			if svc.getCharacteristicNoLog(chr.uuid) != nil {
				log.Warnf("service %s: adding a duplicate characteristic "+
					"with uuid %s", svc.uuid, chr.uuid)
			}
			chr.svc = svc
			svc.chrs = append(svc.chrs, chr)
		}

		return svc.server.serviceChangedNoLock()
	})
}

// Removes a characteristic from the database.  The characteristic is only
// dropped from the service when deleteChr is set; otherwise it can be
// restored with AddCharacteristic.
func (svc *Service) RemoveCharacteristic(chr *Characteristic,
	deleteChr bool) {

	withDb(svc.server, func() bool {
		idx := -1
		for i, c := range svc.chrs {
			if c == chr {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false
		}

		if chr.removed != REMOVE_STATE_ACTIVE {
			if deleteChr {
				svc.chrs = append(svc.chrs[:idx], svc.chrs[idx+1:]...)
				chr.svc = nil
			}
			return false
		}

		chr.removed = removeStateFor(deleteChr)
		return svc.server.serviceChangedNoLock()
	})
}

func (svc *Service) getCharacteristicNoLog(uuid BleUuid) *Characteristic {
	for _, chr := range svc.chrs {
		if chr.removed == REMOVE_STATE_ACTIVE && chr.uuid.Equal(uuid) {
			return chr
		}
	}

	return nil
}

// Returns the instance'th active characteristic with the given UUID.
func (svc *Service) GetCharacteristic(uuid BleUuid,
	instance int) *Characteristic {

	idx := 0
	for _, chr := range svc.chrs {
		if chr.removed == REMOVE_STATE_ACTIVE && chr.uuid.Equal(uuid) {
			if idx == instance {
				return chr
			}
			idx++
		}
	}

	log.Debugf("service %s: characteristic %s not found", svc.uuid, uuid)
	return nil
}

func (svc *Service) GetCharacteristicByHandle(handle uint16) *Characteristic {
	for _, chr := range svc.chrs {
		if chr.handle == handle {
			return chr
		}
	}

	return nil
}

// Returns every characteristic with the given UUID, including removed
// ones.
func (svc *Service) GetCharacteristics(uuid BleUuid) []*Characteristic {
	var chrs []*Characteristic
	for _, chr := range svc.chrs {
		if chr.uuid.Equal(uuid) {
			chrs = append(chrs, chr)
		}
	}

	return chrs
}

func (svc *Service) Characteristics() []*Characteristic {
	return append([]*Characteristic(nil), svc.chrs...)
}

/*** Registration. */

// Builds the service's table and registers it with the stack.  The service
// must belong to a server.
func (svc *Service) Start() error {
	if svc.server == nil {
		return nmxutil.FmtValidationError(
			"service %s does not belong to a server", svc.uuid)
	}

	svc.server.dbMtx.Lock()
	defer svc.server.dbMtx.Unlock()

	return svc.startNoLock()
}

// Compiles the service.  Deleted characteristics are dropped from the
// service; hidden ones are left out.
func (svc *Service) compile() hostif.SvcDefs {
	var chrDefs []hostif.ChrDef

	kept := svc.chrs[:0]
	for _, chr := range svc.chrs {
		switch chr.removed {
		case REMOVE_STATE_DELETED:
			chr.svc = nil
			continue
		case REMOVE_STATE_ACTIVE:
			chrDefs = append(chrDefs, chr.def())
		}
		kept = append(kept, chr)
	}
	for i := len(kept); i < len(svc.chrs); i++ {
		svc.chrs[i] = nil
	}
	svc.chrs = kept

	return hostif.SvcDefs{{
		Type: BLE_SVC_TYPE_PRIMARY,
		Uuid: svc.uuid,
		Chrs: chrDefs,
	}}
}

func (svc *Service) startNoLock() error {
	log.Debugf(">> start(): Starting service: %s", svc)

	srv := svc.server

	if svc.registered {
		log.Warnf("service %s already started", svc.uuid)
		return nil
	}

	// A changed database invalidates any previously compiled table.
	if srv.svcChanged && svc.svcDef != nil {
		svc.svcDef = nil
	}

	defs := svc.svcDef
	if defs == nil {
		defs = svc.compile()
	}

	log.Debugf("adding %d characteristics for service %s",
		len(defs[0].Chrs), svc.uuid)

	rc := srv.stack.GattsCountCfg(defs)
	if rc != 0 {
		if rc == hostif.BLE_HS_EINVAL {
			return srv.fatal(nmxutil.NewFatalInitError(rc,
				fmt.Sprintf("invalid service table for %s", svc.uuid)))
		}

		log.Errorf("ble_gatts_count_cfg failed, rc= %d, %s", rc,
			hostif.StatusString(rc))
		return errors.Wrapf(nmxutil.NewBleHostError(rc,
			hostif.StatusString(rc)), "service %s: count cfg", svc.uuid)
	}

	rc = srv.stack.GattsAddSvcs(defs)
	if rc != 0 {
		log.Errorf("ble_gatts_add_svcs, rc= %d, %s", rc,
			hostif.StatusString(rc))
		return errors.Wrapf(nmxutil.NewBleHostError(rc,
			hostif.StatusString(rc)), "service %s: add svcs", svc.uuid)
	}

	svc.svcDef = defs
	svc.registered = true

	log.Debugf("<< start()")
	return nil
}
