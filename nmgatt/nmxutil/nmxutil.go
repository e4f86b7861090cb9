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
	"math"
	"os"
	"path"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
)

const DURATION_FOREVER time.Duration = math.MaxInt64

// When set, failed assertions panic.  Off by default so that a release build
// keeps running with whatever state it has.
var Debug bool

var logFormatter = log.TextFormatter{
	FullTimestamp:   true,
	TimestampFormat: "2006-01-02 15:04:05.999",
	ForceColors:     true,
}

// Transaction trace log; quieter than the main logger unless debugging.
var TxnLog = &log.Logger{
	Out:       os.Stderr,
	Formatter: &logFormatter,
	Hooks:     make(log.LevelHooks),
	Level:     log.InfoLevel,
}

func SetLogLevel(level log.Level) {
	log.SetLevel(level)
	log.SetFormatter(&logFormatter)
	TxnLog.SetLevel(level)
}

func Assert(cond bool) {
	if Debug && !cond {
		panic("Failed assertion")
	}
}

func StopAndDrainTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

func LogTxn(parentLevel int, title string, extra string) {
	_, file, line, _ := runtime.Caller(parentLevel)
	file = path.Base(file)
	TxnLog.Debugf("{%s} [%s:%d] %s", title, file, line, extra)
}

func LogTxnStart(parentLevel int, op string, connHandle uint16,
	attrHandle uint16) {

	LogTxn(parentLevel+1, "txn-start",
		fmt.Sprintf("op=%s conn=%d attr=%d", op, connHandle, attrHandle))
}

func LogTxnDone(parentLevel int, op string, connHandle uint16, status int) {
	LogTxn(parentLevel+1, "txn-done",
		fmt.Sprintf("op=%s conn=%d status=%d", op, connHandle, status))
}
