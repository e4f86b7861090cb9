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

package cli

import (
	"net"
	"net/http"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fatih/structs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ugorji/go/codec"

	"mynewt.apache.org/newt/util"
)

func writeJson(w http.ResponseWriter, status int, v interface{}) {
	h := new(codec.JsonHandle)
	h.Canonical = true
	h.Indent = 2

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := codec.NewEncoder(w, h).Encode(v); err != nil {
		log.Debugf("failed to encode response: %s", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJson(w, status, map[string]string{"error": err.Error()})
}

func (env *SimEnv) handleDb(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	b, err := env.server().Snapshot().Encode(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if format == "cbor" {
		w.Header().Set("Content-Type", "application/cbor")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Write(b)
}

func (env *SimEnv) handleConns(w http.ResponseWriter, r *http.Request) {
	srv := env.server()

	conns := []map[string]interface{}{}
	for _, h := range srv.PeerDevices() {
		desc, err := srv.PeerIdInfo(h)
		if err != nil {
			continue
		}
		conns = append(conns, structs.Map(desc))
	}

	writeJson(w, http.StatusOK, map[string]interface{}{
		"count": len(conns),
		"conns": conns,
	})
}

func (env *SimEnv) handleFingerprint(w http.ResponseWriter,
	r *http.Request) {

	srv := env.server()
	writeJson(w, http.StatusOK, map[string]interface{}{
		"started":     srv.Started(),
		"fingerprint": srv.Fingerprint(),
	})
}

func newStatusRouter(env *SimEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/db", env.handleDb)
	r.Get("/conns", env.handleConns)
	r.Get("/fingerprint", env.handleFingerprint)

	return r
}

func serveRunCmd(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")

	env := openProfileEnv(cmd, profileName(args))
	defer env.Close()

	if err := env.periph.StartAdvertising(); err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnf("sd_notify failed: %s", err.Error())
	} else if ok {
		log.Debugf("notified systemd")
	}

	log.Infof("serving status of %s on %s", env.periphHost.OwnAddr(),
		ln.Addr())

	srv := &http.Server{Handler: newStatusRouter(env)}
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		nmUsage(nil, util.ChildNewtError(err))
	}
}

func serveCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve [db_profile]",
		Short: "Advertise a database and serve its status over HTTP",
		Run:   serveRunCmd,
	}
	serveCmd.Flags().String("addr", ":8080", "Listen address")

	return serveCmd
}
