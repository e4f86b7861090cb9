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
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
)

type ServerCfg struct {
	// Restart advertising whenever a peer disconnects.
	AdvertiseOnDisconnect bool

	// Start the database again after a deferred rebuild.
	AutoRestart bool

	// Return fatal registration errors instead of panicking.
	NoAbortOnFatal bool

	// Displayed during passkey pairing.  The default value causes the
	// application to be asked via OnPassKeyRequest.
	Passkey uint32
}

func NewServerCfg() ServerCfg {
	return ServerCfg{
		AdvertiseOnDisconnect: true,
		Passkey:               BLE_GAP_PASSKEY_DFLT,
	}
}

type Server struct {
	stack hostif.Stack
	cfg   ServerCfg
	cbs   ServerCallbacks

	// Protected by dbMtx.
	svcs         []*Service
	gattsStarted bool
	svcChanged   bool
	svcChgHandle uint16
	fingerprint  uint16
	dbMtx        sync.Mutex

	// Protected by mtx.
	peers      []uint16
	notifyChrs []*Characteristic
	indWait    map[uint16]struct{}
	resetHook  func(reason int)
	mtx        sync.Mutex
}

// Creates a server on top of the given stack.  The caller is responsible
// for routing peripheral-role GAP events to HandleGapEvent.
func NewServer(stack hostif.Stack, cfg ServerCfg) *Server {
	return &Server{
		stack:   stack,
		cfg:     cfg,
		cbs:     DefaultServerCallbacks{},
		indWait: map[uint16]struct{}{},
	}
}

func (s *Server) Stack() hostif.Stack {
	return s.stack
}

func (s *Server) SetCallbacks(cbs ServerCallbacks) {
	if cbs == nil {
		cbs = DefaultServerCallbacks{}
	}
	s.cbs = cbs
}

// Installs the function called when a disconnect reports that the host
// reset itself.
func (s *Server) SetHostResetHook(fn func(reason int)) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.resetHook = fn
}

func (s *Server) SetPasskey(passkey uint32) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.cfg.Passkey = passkey
}

func (s *Server) AdvertiseOnDisconnect(enable bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.cfg.AdvertiseOnDisconnect = enable
}

func (s *Server) cfgCopy() ServerCfg {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.cfg
}

// Reports a fatal registration error.  Unless the server is configured not
// to, this panics; the stack's database is in an undefined state.
func (s *Server) fatal(err *nmxutil.FatalInitError) error {
	if !s.cfgCopy().NoAbortOnFatal {
		log.Panicf("fatal gatt registration error: %s", err.Error())
	}

	log.Errorf("fatal gatt registration error: %s", err.Error())
	return err
}

// Runs fn with the database lock held.  fn reports whether it rebuilt the
// database.  A nil server means the attribute is detached; fn runs
// unlocked.
func withDb(s *Server, fn func() bool) {
	if s == nil {
		fn()
		return
	}

	s.dbMtx.Lock()
	rebuilt := fn()
	s.dbMtx.Unlock()

	s.afterRebuild(rebuilt)
}

func (s *Server) afterRebuild(rebuilt bool) {
	if !rebuilt || !s.cfgCopy().AutoRestart {
		return
	}

	if err := s.Start(); err != nil {
		log.Errorf("failed to restart gatt server after rebuild: %s",
			err.Error())
	}
}

/*** Services. */

// Creates a service and adds it to the server.
func (s *Server) CreateService(uuid BleUuid) *Service {
	log.Debugf(">> CreateService - %s", uuid)

	svc := NewService(uuid)
	withDb(s, func() bool {
		if s.getServiceNoLock(uuid, 0) != nil {
			log.Warnf("warning creating a duplicate service UUID: %s", uuid)
		}

		svc.server = s
		s.svcs = append(s.svcs, svc)
		return s.serviceChangedNoLock()
	})

	log.Debugf("<< CreateService")
	return svc
}

// Adds a service to the server.  A service that was previously removed is
// restored and the database is changed; a new service is only appended and
// needs to be started.
func (s *Server) AddService(svc *Service) {
	withDb(s, func() bool {
		known := false
		for _, sv := range s.svcs {
			if sv == svc {
				known = true
				break
			}
		}

		if !known && s.getServiceNoLock(svc.uuid, 0) != nil {
			log.Warnf("warning adding a duplicate service UUID: %s", svc.uuid)
		}

		if svc.removed == REMOVE_STATE_ACTIVE {
			if !known {
				svc.server = s
				s.svcs = append(s.svcs, svc)
			}
			return false
		}

		svc.removed = REMOVE_STATE_ACTIVE
		if !known {
			svc.server = s
			s.svcs = append(s.svcs, svc)
		}
		return s.serviceChangedNoLock()
	})
}

// Hides the service from peers and removes it from the database at the
// next rebuild.  If deleteSvc is set, the service is dropped from the
// server; otherwise it can be restored with AddService.
func (s *Server) RemoveService(svc *Service, deleteSvc bool) error {
	var err error

	withDb(s, func() bool {
		if svc.removed != REMOVE_STATE_ACTIVE {
			if deleteSvc {
				s.detachNoLock(svc)
			}
			return false
		}

		rc := s.stack.GattsSvcSetVisibility(svc.Handle(), false)
		if rc != 0 {
			err = errors.Wrapf(
				nmxutil.NewBleHostError(rc, hostif.StatusString(rc)),
				"service %s: set visibility", svc.uuid)
			return false
		}

		svc.removed = removeStateFor(deleteSvc)
		rebuilt := s.serviceChangedNoLock()
		s.stack.AdvRemoveSvcUuid(svc.uuid)

		return rebuilt
	})

	return err
}

func (s *Server) detachNoLock(svc *Service) {
	for i, sv := range s.svcs {
		if sv == svc {
			s.svcs = append(s.svcs[:i], s.svcs[i+1:]...)
			svc.server = nil
			return
		}
	}
}

func (s *Server) getServiceNoLock(uuid BleUuid, instance int) *Service {
	idx := 0
	for _, svc := range s.svcs {
		if svc.removed == REMOVE_STATE_ACTIVE && svc.uuid.Equal(uuid) {
			if idx == instance {
				return svc
			}
			idx++
		}
	}

	return nil
}

// Returns the instance'th active service with the given UUID.
func (s *Server) GetServiceByUuid(uuid BleUuid, instance int) *Service {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	return s.getServiceNoLock(uuid, instance)
}

func (s *Server) GetServiceByHandle(handle uint16) *Service {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	for _, svc := range s.svcs {
		if svc.handle == handle {
			return svc
		}
	}

	return nil
}

func (s *Server) Services() []*Service {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	return append([]*Service(nil), s.svcs...)
}

// Finds a local characteristic by its value handle.
func (s *Server) GetCharacteristicByHandle(handle uint16) *Characteristic {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	for _, svc := range s.svcs {
		if chr := svc.GetCharacteristicByHandle(handle); chr != nil {
			return chr
		}
	}

	return nil
}

/*** Database life cycle. */

// Starts the stack's database and resolves the handles of the registered
// services.  Active services that are not registered yet are started
// first.
func (s *Server) Start() error {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	if s.gattsStarted {
		log.Warnf("gatt server already started")
		return nil
	}

	return s.startNoLock()
}

func (s *Server) startNoLock() error {
	for _, svc := range s.svcs {
		if svc.removed == REMOVE_STATE_ACTIVE && !svc.registered {
			svc.svcDef = nil
			if err := svc.startNoLock(); err != nil {
				return err
			}
		}
	}

	rc := s.stack.GattsStart()
	if rc != 0 {
		log.Errorf("ble_gatts_start; rc=%d, %s", rc, hostif.StatusString(rc))
		return s.fatal(nmxutil.NewFatalInitError(rc,
			"failed to start gatt database"))
	}

	_, valHandle, rc := s.stack.GattsFindChr(
		NewBleUuid16(uint16(BLE_SVC_UUID16_GATT)),
		NewBleUuid16(uint16(BLE_CHR_UUID16_SVC_CHANGED)))
	if rc != 0 {
		log.Warnf("service changed characteristic not found; rc=%d", rc)
		valHandle = 0
	}
	s.svcChgHandle = valHandle

	var notifyChrs []*Characteristic
	for _, svc := range s.svcs {
		if svc.removed != REMOVE_STATE_ACTIVE {
			continue
		}

		handle, rc := s.stack.GattsFindSvc(svc.uuid)
		if rc != 0 {
			return s.fatal(nmxutil.NewFatalInitError(rc,
				fmt.Sprintf("gatt server failed to find service %s",
					svc.uuid)))
		}
		svc.handle = handle

		for _, chr := range svc.chrs {
			if chr.removed == REMOVE_STATE_ACTIVE &&
				chr.props&(BLE_GATT_F_NOTIFY|BLE_GATT_F_INDICATE) != 0 {

				notifyChrs = append(notifyChrs, chr)
			}
		}
	}

	s.mtx.Lock()
	s.notifyChrs = notifyChrs
	s.mtx.Unlock()

	s.gattsStarted = true
	s.fingerprint = s.snapshotNoLock().Fingerprint()

	log.Infof("gatt server started; services=%d fingerprint=0x%04x",
		len(s.svcs), s.fingerprint)

	return nil
}

func (s *Server) startIfStopped() error {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	if s.gattsStarted {
		return nil
	}

	log.Debugf("starting gatt server before advertising")
	return s.startNoLock()
}

func (s *Server) Started() bool {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	return s.gattsStarted
}

// Value handle of the Service Changed characteristic; 0 if unknown.
func (s *Server) ServiceChangedHandle() uint16 {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	return s.svcChgHandle
}

// Reports that the database changed.  If it has been started, peers are
// told and a rebuild is attempted.  Returns true if the database was
// rebuilt.
func (s *Server) serviceChangedNoLock() bool {
	if s == nil || !s.gattsStarted {
		return false
	}

	s.svcChanged = true
	s.stack.GattsSvcChanged(0x0001, 0xffff)
	return s.resetGATTNoLock()
}

// Rebuilds the stack's database from the server's services.  This does
// nothing while peers are connected; the rebuild happens after the last
// one disconnects.  Server.Start must be called afterwards.
func (s *Server) ResetGATT() {
	withDb(s, s.resetGATTNoLock)
}

func (s *Server) resetGATTNoLock() bool {
	if s.ConnectedCount() > 0 {
		log.Debugf("gatt reset deferred; %d peers connected",
			s.ConnectedCount())
		return false
	}

	if rc := s.stack.AdvStop(); rc != 0 && rc != hostif.BLE_HS_EALREADY {
		log.Debugf("failed to stop advertising; rc=%d", rc)
	}

	if rc := s.stack.GattsReset(); rc != 0 {
		log.Warnf("ble_gatts_reset failed; rc=%d, %s", rc,
			hostif.StatusString(rc))
		return false
	}

	s.stack.SvcGapInit()
	s.stack.SvcGattInit()

	kept := s.svcs[:0]
	for _, svc := range s.svcs {
		svc.registered = false

		switch svc.removed {
		case REMOVE_STATE_DELETED:
			svc.server = nil
			continue

		case REMOVE_STATE_HIDDEN:
			svc.handle = BLE_CONN_HANDLE_NONE

		default:
			if err := svc.startNoLock(); err != nil {
				log.Errorf("failed to restart service %s: %s", svc.uuid,
					err.Error())
			}
		}
		kept = append(kept, svc)
	}
	for i := len(kept); i < len(s.svcs); i++ {
		s.svcs[i] = nil
	}
	s.svcs = kept

	s.svcChanged = false
	s.gattsStarted = false

	s.mtx.Lock()
	s.notifyChrs = nil
	s.mtx.Unlock()

	return true
}

/*** Peers. */

func (s *Server) ConnectedCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return len(s.peers)
}

// Connection handles of the connected peers, in connection order.
func (s *Server) PeerDevices() []uint16 {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return append([]uint16(nil), s.peers...)
}

func (s *Server) addPeer(connHandle uint16) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.peers = append(s.peers, connHandle)
}

func (s *Server) removePeer(connHandle uint16) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for i, p := range s.peers {
		if p == connHandle {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			break
		}
	}

	delete(s.indWait, connHandle)
}

// Connection info of the idx'th connected peer.
func (s *Server) PeerInfo(idx int) (BleConnDesc, error) {
	peers := s.PeerDevices()
	if idx < 0 || idx >= len(peers) {
		return BleConnDesc{}, nmxutil.FmtValidationError(
			"peer index %d out of range", idx)
	}

	return s.PeerIdInfo(peers[idx])
}

func (s *Server) PeerIdInfo(connHandle uint16) (BleConnDesc, error) {
	desc, rc := s.stack.GapConnFind(connHandle)
	if rc != 0 {
		return BleConnDesc{}, nmxutil.NewBleSesnDisconnectError(rc,
			fmt.Sprintf("no connection with handle %d", connHandle))
	}

	return desc, nil
}

func (s *Server) PeerMTU(connHandle uint16) uint16 {
	return s.stack.AttMtu(connHandle)
}

func (s *Server) Disconnect(connHandle uint16, reason int) error {
	rc := s.stack.GapTerminate(connHandle, reason)
	if rc != 0 && rc != hostif.BLE_HS_ENOTCONN {
		return nmxutil.FmtBleHostError(rc,
			"failed to disconnect peer; conn=%d rc=%d", connHandle, rc)
	}

	return nil
}

/*** Advertising. */

// Starts advertising.  A database that is not started, as after a
// deferred rebuild, is started first.
func (s *Server) StartAdvertising() error {
	if err := s.startIfStopped(); err != nil {
		return err
	}

	rc := s.stack.AdvStart()
	if rc != 0 && rc != hostif.BLE_HS_EALREADY {
		return nmxutil.FmtBleHostError(rc, "failed to start advertising; %s",
			hostif.StatusString(rc))
	}

	return nil
}

func (s *Server) StopAdvertising() error {
	rc := s.stack.AdvStop()
	if rc != 0 && rc != hostif.BLE_HS_EALREADY {
		return nmxutil.FmtBleHostError(rc, "failed to stop advertising; %s",
			hostif.StatusString(rc))
	}

	return nil
}

/*** Indications. */

// Records an indication in flight to the peer.  Returns false if one is
// already outstanding.
func (s *Server) setIndicateWait(connHandle uint16) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.indWait[connHandle]; ok {
		return false
	}

	s.indWait[connHandle] = struct{}{}
	return true
}

func (s *Server) clearIndicateWait(connHandle uint16) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	delete(s.indWait, connHandle)
}

func (s *Server) notifyChr(valHandle uint16) *Characteristic {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, chr := range s.notifyChrs {
		if chr.handle == valHandle {
			return chr
		}
	}

	return nil
}
