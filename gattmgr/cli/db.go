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
	"io/ioutil"
	"os"

	"github.com/spf13/cobra"

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/nmutil"
)

func profileName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func dbBuildCmd(cmd *cobra.Command, args []string) {
	env := openProfileEnv(cmd, profileName(args))
	defer env.Close()

	printServer(env.server())
}

func dbDumpCmd(cmd *cobra.Command, args []string) {
	format, _ := cmd.Flags().GetString("format")
	outFile, _ := cmd.Flags().GetString("output")

	env := openProfileEnv(cmd, profileName(args))
	defer env.Close()

	b, err := env.server().Snapshot().Encode(format)
	if err != nil {
		nmUsage(cmd, util.ChildNewtError(err))
	}

	if outFile == "" {
		if format == "json" {
			fmt.Printf("%s\n", string(b))
		} else {
			os.Stdout.Write(b)
		}
		return
	}

	if err := ioutil.WriteFile(outFile, b, 0644); err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(b), outFile)
}

func dbRemoveCmd(cmd *cobra.Command, args []string, deleteSvc bool) {
	if len(args) < 2 {
		nmUsage(cmd, util.NewNewtError("Need profile name and service UUID"))
	}

	uuid := parseUuidArg(cmd, args[1])

	env := openProfileEnv(cmd, args[0])
	defer env.Close()

	srv := env.server()
	svc := srv.GetServiceByUuid(uuid, 0)
	if svc == nil {
		nmUsage(nil, util.FmtNewtError("no service with uuid %s", uuid))
	}

	fmt.Printf("Before:\n")
	printServer(srv)

	if err := srv.RemoveService(svc, deleteSvc); err != nil {
		nmUsage(nil, util.ChildNewtError(err))
	}

	fmt.Printf("\nAfter:\n")
	printServer(srv)
}

func dbCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Build and inspect a local attribute database",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	buildCmd := &cobra.Command{
		Use:   "build [db_profile]",
		Short: "Build and start a database; print its handle table",
		Run:   dbBuildCmd,
	}
	dbCmd.AddCommand(buildCmd)

	dumpCmd := &cobra.Command{
		Use:     "dump [db_profile]",
		Short:   "Export the compiled database",
		Example: "  " + nmutil.ToolInfo.ExeName + " db dump hrm --format json",
		Run:     dbDumpCmd,
	}
	dumpCmd.Flags().String("format", "cbor", "Output format (cbor|json)")
	dumpCmd.Flags().StringP("output", "o", "", "Write to a file")
	dbCmd.AddCommand(dumpCmd)

	hideCmd := &cobra.Command{
		Use:   "hide <db_profile> <svc_uuid>",
		Short: "Hide a service and rebuild the database",
		Run: func(cmd *cobra.Command, args []string) {
			dbRemoveCmd(cmd, args, false)
		},
	}
	dbCmd.AddCommand(hideCmd)

	delCmd := &cobra.Command{
		Use:   "delete <db_profile> <svc_uuid>",
		Short: "Delete a service and rebuild the database",
		Run: func(cmd *cobra.Command, args []string) {
			dbRemoveCmd(cmd, args, true)
		},
	}
	dbCmd.AddCommand(delCmd)

	return dbCmd
}
