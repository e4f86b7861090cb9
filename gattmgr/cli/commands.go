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
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/nmutil"
	"mynewt.apache.org/gattmgr/nmgatt/nmxutil"
)

var GattmgrLogLevel log.Level

func Commands() *cobra.Command {
	logLevelStr := ""
	gmCmd := &cobra.Command{
		Use:   nmutil.ToolInfo.ExeName,
		Short: nmutil.ToolInfo.ShortName + " builds and exercises GATT databases",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			GattmgrLogLevel, err = log.ParseLevel(logLevelStr)
			if err != nil {
				nmUsage(nil, util.ChildNewtError(err))
			}

			err = util.Init(GattmgrLogLevel, "", util.VERBOSITY_DEFAULT)
			if err != nil {
				nmUsage(nil, err)
			}
			nmxutil.SetLogLevel(GattmgrLogLevel)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	gmCmd.PersistentFlags().StringVarP(&logLevelStr, "loglevel", "l", "info",
		"log level to use")

	gmCmd.PersistentFlags().StringVarP(&nmutil.DbProfile, "profile", "p", "",
		"database profile to use when none is named")

	gmCmd.PersistentFlags().Float64VarP(&nmutil.Timeout, "timeout", "t", 10.0,
		"timeout in seconds (partial seconds allowed)")

	gmCmd.PersistentFlags().IntVar(&nmutil.Mtu, "mtu", 0,
		"preferred ATT MTU of the central; 0 uses the default")

	gmCmd.PersistentFlags().BoolVar(&nmutil.BleWriteRsp, "write-rsp", false,
		"Send acked write requests instead of unacked write commands")

	gmCmd.PersistentFlags().BoolVar(&nmutil.TruncateLong, "truncate-long",
		false, "Truncate long writes the peer cannot queue instead of failing")

	gmCmd.PersistentFlags().StringVar(&nmutil.SimString, "simstring", "",
		"Key-value pairs configuring the simulated peripheral")

	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the " + nmutil.ToolInfo.ShortName + " version number",
		Example: "  " + nmutil.ToolInfo.ExeName + " version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n",
				nmutil.ToolInfo.LongName,
				nmutil.ToolInfo.VersionString)
		},
	}
	gmCmd.AddCommand(versCmd)

	gmCmd.AddCommand(dbProfileCmd())
	gmCmd.AddCommand(dbCmd())
	gmCmd.AddCommand(peerCmd())
	gmCmd.AddCommand(hidCmd())
	gmCmd.AddCommand(soakCmd())
	gmCmd.AddCommand(interactiveCmd())
	gmCmd.AddCommand(serveCmd())

	return gmCmd
}
