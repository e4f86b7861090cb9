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
	"strings"

	"github.com/spf13/cast"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/simhost"
)

func einvalSimString(f string, args ...interface{}) error {
	suffix := util.FmtNewtError(f, args...)
	return util.FmtNewtError("Invalid simstring: %s", suffix.Error())
}

// Parses a simulated host configuration from comma-separated key=value
// pairs, e.g., "name=periph,addr=01:00:00:00:00:c0,mtu=185,io=disp".
// Unspecified keys keep their defaults.
func ParseSimString(cs string) (simhost.HostCfg, error) {
	hc := simhost.NewHostCfg()

	if strings.TrimSpace(cs) == "" {
		return hc, nil
	}

	parts := strings.Split(cs, ",")
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return hc, einvalSimString("expected comma-separated "+
				"key=value pairs; no '=' in: %s", p)
		}

		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])

		var err error
		switch k {
		case "name":
			hc.Name = v

		case "addr":
			hc.Addr.Addr, err = bledefs.ParseBleAddr(v)
			if err != nil {
				return hc, einvalSimString("Invalid addr: %s", v)
			}

		case "addr_type":
			hc.Addr.AddrType, err = bledefs.BleAddrTypeFromString(v)
			if err != nil {
				return hc, einvalSimString("Invalid addr_type: %s", v)
			}

		case "mtu":
			hc.Mtu, err = cast.ToUint16E(v)
			if err != nil || hc.Mtu < bledefs.BLE_ATT_MTU_DFLT {
				return hc, einvalSimString("Invalid mtu: %s", v)
			}

		case "io":
			hc.IoAction, err = bledefs.BleSmActionFromString(v)
			if err != nil {
				return hc, einvalSimString("Invalid io: %s", v)
			}

		case "bond":
			hc.Security.Bonding, err = cast.ToBoolE(v)
			if err != nil {
				return hc, einvalSimString("Invalid bond: %s", v)
			}

		case "mitm":
			hc.Security.Mitm, err = cast.ToBoolE(v)
			if err != nil {
				return hc, einvalSimString("Invalid mitm: %s", v)
			}

		case "sc":
			hc.Security.Sc, err = cast.ToBoolE(v)
			if err != nil {
				return hc, einvalSimString("Invalid sc: %s", v)
			}

		case "delay":
			hc.ProcDelay, err = cast.ToDurationE(v)
			if err != nil {
				return hc, einvalSimString("Invalid delay: %s", v)
			}

		case "adv_uuid":
			u, err := bledefs.ParseUuid(v)
			if err != nil {
				return hc, einvalSimString("Invalid adv_uuid: %s", v)
			}
			hc.AdvUuids = append(hc.AdvUuids, u)

		default:
			return hc, einvalSimString("Unrecognized key: %s", k)
		}
	}

	return hc, nil
}
