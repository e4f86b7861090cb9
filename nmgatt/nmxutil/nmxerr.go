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

package nmxutil

import (
	"fmt"

	"github.com/pkg/errors"
)

// Indicates a nonzero status reported by the host stack, either when a
// request was dispatched or in its completion.
type BleHostError struct {
	Text   string
	Status int
}

func NewBleHostError(status int, text string) *BleHostError {
	return &BleHostError{
		Status: status,
		Text:   text,
	}
}

func FmtBleHostError(status int, format string,
	args ...interface{}) *BleHostError {

	return NewBleHostError(status, fmt.Sprintf(format, args...))
}

func (e *BleHostError) Error() string {
	return e.Text
}

func IsBleHost(err error) bool {
	return ToBleHost(err) != nil
}

func ToBleHost(err error) *BleHostError {
	if err == nil {
		return nil
	}

	if berr, ok := errors.Cause(err).(*BleHostError); ok {
		return berr
	} else {
		return nil
	}
}

// Returns the host status carried by the error, 0 if there is none.
func HostStatus(err error) int {
	if berr := ToBleHost(err); berr != nil {
		return berr.Status
	}

	return 0
}

// Indicates that an operation could not be issued or completed because the
// peer is not (or no longer) connected.
type BleSesnDisconnectError struct {
	Text   string
	Reason int
}

func NewBleSesnDisconnectError(reason int,
	text string) *BleSesnDisconnectError {

	return &BleSesnDisconnectError{
		Reason: reason,
		Text:   text,
	}
}

func (e *BleSesnDisconnectError) Error() string {
	return e.Text
}

func IsBleSesnDisconnect(err error) bool {
	if err == nil {
		return false
	}

	_, ok := errors.Cause(err).(*BleSesnDisconnectError)
	return ok
}

// Indicates a malformed or out-of-range value supplied by the caller; e.g.,
// a value longer than its attribute's maximum or an unparsable UUID.
type ValidationError struct {
	Text string
}

func NewValidationError(text string) *ValidationError {
	return &ValidationError{text}
}

func FmtValidationError(format string, args ...interface{}) *ValidationError {
	return NewValidationError(fmt.Sprintf(format, args...))
}

func (e *ValidationError) Error() string {
	return e.Text
}

func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

// Indicates that the stack rejected the attribute database in a way that
// leaves its single global registration in an undefined state.
type FatalInitError struct {
	Text   string
	Status int
}

func NewFatalInitError(status int, text string) *FatalInitError {
	return &FatalInitError{
		Status: status,
		Text:   text,
	}
}

func (e *FatalInitError) Error() string {
	return e.Text
}

func IsFatalInit(err error) bool {
	if err == nil {
		return false
	}

	_, ok := errors.Cause(err).(*FatalInitError)
	return ok
}

// Indicates an attempt to transition to the already-current state.
type AlreadyError struct {
	Text string
}

func NewAlreadyError(text string) *AlreadyError {
	return &AlreadyError{text}
}

func (err *AlreadyError) Error() string {
	return err.Text
}

func IsAlready(err error) bool {
	if err == nil {
		return false
	}

	_, ok := errors.Cause(err).(*AlreadyError)
	return ok
}

// Represents a failure to encrypt a link.
type BleSecurityError struct {
	Text   string
	Status int
}

func NewBleSecurityError(status int, text string) *BleSecurityError {
	return &BleSecurityError{Text: text, Status: status}
}

func (err *BleSecurityError) Error() string {
	return err.Text
}

func IsBleSecurity(err error) bool {
	return ToBleSecurity(err) != nil
}

func ToBleSecurity(err error) *BleSecurityError {
	if err == nil {
		return nil
	}

	if berr, ok := errors.Cause(err).(*BleSecurityError); ok {
		return berr
	} else {
		return nil
	}
}
