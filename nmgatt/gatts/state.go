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

// Package gatts maintains the local GATT database: services,
// characteristics and descriptors, their registration with the host stack,
// and the deferred removal and rebuild of the table while peers are
// connected.
package gatts

import (
	"fmt"
	"strings"
)

// Removal state of a service, characteristic or descriptor.  A hidden
// attribute is kept in memory but left out of the next rebuild; a deleted
// one is dropped from its parent during the next rebuild.
type RemoveState int

const (
	REMOVE_STATE_ACTIVE RemoveState = iota
	REMOVE_STATE_HIDDEN
	REMOVE_STATE_DELETED
)

var RemoveStateStringMap = map[RemoveState]string{
	REMOVE_STATE_ACTIVE:  "active",
	REMOVE_STATE_HIDDEN:  "hidden",
	REMOVE_STATE_DELETED: "deleted",
}

func RemoveStateToString(rs RemoveState) string {
	s := RemoveStateStringMap[rs]
	if s == "" {
		return "???"
	}

	return s
}

func RemoveStateFromString(s string) (RemoveState, error) {
	for rs, name := range RemoveStateStringMap {
		if strings.ToLower(s) == name {
			return rs, nil
		}
	}

	return RemoveState(0), fmt.Errorf("Invalid RemoveState string: %s", s)
}

func (rs RemoveState) String() string {
	return RemoveStateToString(rs)
}

func removeStateFor(deleteAttr bool) RemoveState {
	if deleteAttr {
		return REMOVE_STATE_DELETED
	} else {
		return REMOVE_STATE_HIDDEN
	}
}
