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

	"mynewt.apache.org/newt/util"

	"mynewt.apache.org/gattmgr/gattmgr/config"
	"mynewt.apache.org/gattmgr/gattmgr/nmutil"

	"github.com/spf13/cobra"
)

func dbProfileAddCmd(cmd *cobra.Command, args []string) {
	dpm := config.GlobalDbProfileMgr()

	if len(args) < 2 {
		nmUsage(cmd, util.NewNewtError("Need profile name and file"))
	}

	name := args[0]
	dp, err := config.ReadDbProfile(args[1])
	if err != nil {
		nmUsage(cmd, err)
	}
	dp.Name = name

	if err := dpm.AddDbProfile(dp); err != nil {
		nmUsage(cmd, err)
	}

	fmt.Printf("Database profile %s successfully added\n", name)
}

func dbProfileShowCmd(cmd *cobra.Command, args []string) {
	dpm := config.GlobalDbProfileMgr()

	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	dpList, err := dpm.GetDbProfileList()
	if err != nil {
		nmUsage(cmd, err)
	}

	found := false
	for _, dp := range dpList {
		if name != "" && dp.Name != name {
			continue
		}

		if !found {
			found = true
			fmt.Printf("Database profiles: \n")
		}
		fmt.Printf("  %s\n", dp.String())

		if name != "" {
			for _, s := range dp.Services {
				fmt.Printf("    service %s\n", s.Uuid)
				for _, c := range s.Chrs {
					fmt.Printf("      chr %s flags=%s value='%s'\n",
						c.Uuid, c.Flags, c.Value)
					for _, d := range c.Dscs {
						fmt.Printf("        dsc %s flags=%s value='%s'\n",
							d.Uuid, d.Flags, d.Value)
					}
				}
			}
		}
	}

	if !found {
		if name == "" {
			fmt.Printf("No database profiles found!\n")
		} else {
			fmt.Printf("No database profiles found matching %s\n", name)
		}
	}
}

func dbProfileDelCmd(cmd *cobra.Command, args []string) {
	dpm := config.GlobalDbProfileMgr()

	if len(args) == 0 {
		nmUsage(cmd, util.NewNewtError("Need database profile name"))
	}

	name := args[0]
	if err := dpm.DeleteDbProfile(name); err != nil {
		nmUsage(cmd, err)
	}

	fmt.Printf("Database profile %s successfully deleted.\n", name)
}

func dbProfileCmd() *cobra.Command {
	dpCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage " + nmutil.ToolInfo.ShortName + " database profiles",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <db_profile> <file.json>",
		Short: "Add a " + nmutil.ToolInfo.ShortName + " database profile",
		Run:   dbProfileAddCmd,
	}
	dpCmd.AddCommand(addCmd)

	deleCmd := &cobra.Command{
		Use:   "delete <db_profile>",
		Short: "Delete a " + nmutil.ToolInfo.ShortName + " database profile",
		Run:   dbProfileDelCmd,
	}
	dpCmd.AddCommand(deleCmd)

	showHelpText := "Show the service tree of the db_profile database "
	showHelpText += "profile or a summary of all\nprofiles "
	showHelpText += "if db_profile is not specified.\n"

	showCmd := &cobra.Command{
		Use:   "show [db_profile]",
		Short: "Show " + nmutil.ToolInfo.ShortName + " database profiles",
		Long:  showHelpText,
		Run:   dbProfileShowCmd,
	}
	dpCmd.AddCommand(showCmd)

	return dpCmd
}
