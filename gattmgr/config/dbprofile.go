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

package config

import (
	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"

	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/nmutil"
	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/gatts"
)

// A named description of a local attribute database.  Values are hex
// strings.
type DbProfile struct {
	Name     string       `json:"MyName"`
	Services []SvcProfile `json:"MyServices"`
}

type SvcProfile struct {
	Uuid BleUuid      `json:"uuid"`
	Chrs []ChrProfile `json:"chrs"`
}

type ChrProfile struct {
	Uuid   BleUuid      `json:"uuid"`
	Flags  BleChrFlags  `json:"flags"`
	MaxLen int          `json:"max_len,omitempty"`
	Value  string       `json:"value,omitempty"`
	Dscs   []DscProfile `json:"dscs,omitempty"`
}

type DscProfile struct {
	Uuid   BleUuid     `json:"uuid"`
	Flags  BleChrFlags `json:"flags"`
	MaxLen int         `json:"max_len,omitempty"`
	Value  string      `json:"value,omitempty"`
}

func (p *DbProfile) String() string {
	numChrs := 0
	for _, s := range p.Services {
		numChrs += len(s.Chrs)
	}

	return fmt.Sprintf("name=%s services=%d characteristics=%d",
		p.Name, len(p.Services), numChrs)
}

func maxLenOrDflt(maxLen int) int {
	if maxLen <= 0 {
		return BLE_ATT_ATTR_MAX_LEN
	}
	return maxLen
}

func decodeValue(s string, what string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, util.FmtNewtError("invalid %s value \"%s\": %s",
			what, s, err.Error())
	}
	return b, nil
}

// Checks that every value decodes and fits in its attribute.
func (p *DbProfile) Validate() error {
	if p.Name == "" {
		return util.NewNewtError("database profile has no name")
	}

	for _, s := range p.Services {
		if !s.Uuid.IsSet() {
			return util.FmtNewtError("profile %s: service without uuid",
				p.Name)
		}

		for _, c := range s.Chrs {
			if !c.Uuid.IsSet() {
				return util.FmtNewtError("profile %s: service %s: "+
					"characteristic without uuid", p.Name, s.Uuid)
			}

			b, err := decodeValue(c.Value, c.Uuid.String())
			if err != nil {
				return err
			}
			if len(b) > maxLenOrDflt(c.MaxLen) {
				return util.FmtNewtError("characteristic %s: value "+
					"length %d exceeds max %d",
					c.Uuid, len(b), maxLenOrDflt(c.MaxLen))
			}

			for _, d := range c.Dscs {
				b, err := decodeValue(d.Value, d.Uuid.String())
				if err != nil {
					return err
				}
				if len(b) > maxLenOrDflt(d.MaxLen) {
					return util.FmtNewtError("descriptor %s: value "+
						"length %d exceeds max %d",
						d.Uuid, len(b), maxLenOrDflt(d.MaxLen))
				}
			}
		}
	}

	return nil
}

// Creates the profile's services on the server.  The server is not
// started.
func (p *DbProfile) BuildServer(srv *gatts.Server) ([]*gatts.Service, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	svcs := make([]*gatts.Service, 0, len(p.Services))
	for _, s := range p.Services {
		svc := srv.CreateService(s.Uuid)
		for _, c := range s.Chrs {
			chr := svc.CreateCharacteristic(c.Uuid, c.Flags,
				maxLenOrDflt(c.MaxLen))

			b, _ := decodeValue(c.Value, "")
			if b != nil {
				chr.SetValue(b)
			}

			for _, d := range c.Dscs {
				dsc := chr.CreateDescriptor(d.Uuid, d.Flags,
					maxLenOrDflt(d.MaxLen))
				if dsc == nil {
					continue
				}

				b, _ := decodeValue(d.Value, "")
				if b != nil {
					dsc.SetValue(b)
				}
			}
		}
		svcs = append(svcs, svc)
	}

	log.Debugf("built %d services from profile %s", len(svcs), p.Name)
	return svcs, nil
}

func ReadDbProfile(filename string) (*DbProfile, error) {
	blob, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, util.ChildNewtError(err)
	}

	p := &DbProfile{}
	if err := json.Unmarshal(blob, p); err != nil {
		return nil, util.FmtNewtError("error reading database profile "+
			"(%s): %s", filename, err.Error())
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

type DbProfileMgr struct {
	filename string
	profiles map[string]*DbProfile
}

func dbProfileCfgFilename() (string, error) {
	dir, err := homedir.Dir()
	if err != nil {
		return "", util.NewNewtError(err.Error())
	}

	return filepath.Join(dir, nmutil.ToolInfo.CfgFilename), nil
}

func NewDbProfileMgr() (*DbProfileMgr, error) {
	filename, err := dbProfileCfgFilename()
	if err != nil {
		return nil, err
	}

	return NewDbProfileMgrFile(filename)
}

// Creates a profile manager backed by the specified file.
func NewDbProfileMgrFile(filename string) (*DbProfileMgr, error) {
	dpm := &DbProfileMgr{
		filename: filename,
		profiles: map[string]*DbProfile{},
	}

	if err := dpm.Init(); err != nil {
		return nil, err
	}

	return dpm, nil
}

func (dpm *DbProfileMgr) Init() error {
	log.Debugf("Reading database profiles from %s", dpm.filename)
	blob, err := ioutil.ReadFile(dpm.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		} else {
			return util.ChildNewtError(err)
		}
	}

	var profiles []*DbProfile
	if err := json.Unmarshal(blob, &profiles); err != nil {
		return util.FmtNewtError("error reading database profile "+
			"config (%s): %s", dpm.filename, err.Error())
	}

	for _, p := range profiles {
		dpm.profiles[p.Name] = p
	}

	return nil
}

type dbProfSorter struct {
	dps []*DbProfile
}

func (s dbProfSorter) Len() int {
	return len(s.dps)
}
func (s dbProfSorter) Swap(i, j int) {
	s.dps[i], s.dps[j] = s.dps[j], s.dps[i]
}
func (s dbProfSorter) Less(i, j int) bool {
	return s.dps[i].Name < s.dps[j].Name
}

func SortDbProfs(dps []*DbProfile) []*DbProfile {
	sorter := dbProfSorter{
		dps: make([]*DbProfile, 0, len(dps)),
	}

	for _, p := range dps {
		sorter.dps = append(sorter.dps, p)
	}

	sort.Sort(sorter)
	return sorter.dps
}

func (dpm *DbProfileMgr) GetDbProfileList() ([]*DbProfile, error) {
	log.Debugf("Getting list of database profiles")

	dpList := make([]*DbProfile, 0, len(dpm.profiles))
	for _, p := range dpm.profiles {
		dpList = append(dpList, p)
	}

	return SortDbProfs(dpList), nil
}

func (dpm *DbProfileMgr) save() error {
	list, _ := dpm.GetDbProfileList()
	b, err := json.MarshalIndent(list, "", "    ")
	if err != nil {
		return util.NewNewtError(err.Error())
	}

	err = ioutil.WriteFile(dpm.filename, b, 0644)
	if err != nil {
		return util.ChildNewtError(err)
	}

	return nil
}

func (dpm *DbProfileMgr) DeleteDbProfile(name string) error {
	if dpm.profiles[name] == nil {
		return util.FmtNewtError("database profile \"%s\" doesn't exist",
			name)
	}

	delete(dpm.profiles, name)

	return dpm.save()
}

func (dpm *DbProfileMgr) AddDbProfile(dp *DbProfile) error {
	if err := dp.Validate(); err != nil {
		return err
	}

	dpm.profiles[dp.Name] = dp

	return dpm.save()
}

func (dpm *DbProfileMgr) GetDbProfile(pName string) (*DbProfile, error) {
	p := dpm.profiles[pName]
	if p == nil {
		return nil, util.FmtNewtError("database profile \"%s\" doesn't "+
			"exist", pName)
	}

	return p, nil
}

var globalDbProfileMgr *DbProfileMgr

func GlobalDbProfileMgr() *DbProfileMgr {
	if globalDbProfileMgr == nil {
		panic("database profile manager not initialized")
	}
	return globalDbProfileMgr
}

func InitGlobalDbProfileMgr() error {
	if globalDbProfileMgr != nil {
		return util.NewNewtError("database profile manager initialized twice")
	}

	var err error
	globalDbProfileMgr, err = NewDbProfileMgr()
	if err != nil {
		return err
	}

	return nil
}
