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
	"fmt"

	log "github.com/sirupsen/logrus"

	. "mynewt.apache.org/gattmgr/nmgatt/bledefs"
	"mynewt.apache.org/gattmgr/nmgatt/hostif"
)

type RemoteDescriptor struct {
	chr    *RemoteCharacteristic
	uuid   BleUuid
	handle uint16
}

func newRemoteDescriptor(chr *RemoteCharacteristic,
	info hostif.DscInfo) *RemoteDescriptor {

	log.Debugf("remote descriptor: %s", info.Uuid.String())

	return &RemoteDescriptor{
		chr:    chr,
		uuid:   info.Uuid,
		handle: info.Handle,
	}
}

func (dsc *RemoteDescriptor) Characteristic() *RemoteCharacteristic {
	return dsc.chr
}

func (dsc *RemoteDescriptor) Uuid() BleUuid {
	return dsc.uuid
}

func (dsc *RemoteDescriptor) Handle() uint16 {
	return dsc.handle
}

func (dsc *RemoteDescriptor) ReadValue() ([]byte, error) {
	log.Debugf(">> descriptor readValue: %s", dsc.String())
	return dsc.chr.client().readAttr("read-dsc", dsc.handle)
}

func (dsc *RemoteDescriptor) WriteValue(data []byte, response bool) error {
	log.Debugf(">> descriptor writeValue: %s", dsc.String())
	return dsc.chr.client().writeAttr("write-dsc", dsc.handle, data, response)
}

func (dsc *RemoteDescriptor) String() string {
	return fmt.Sprintf("Descriptor: uuid: %s, handle: %d", dsc.uuid.String(),
		dsc.handle)
}
