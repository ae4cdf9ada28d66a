/*
Copyright Fastqueue Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"github.com/spf13/cobra"

	"github.com/fastqueue/fastqueue/cmd/fastqueue/startcmd"
	"github.com/fastqueue/fastqueue/internal/pkg/log"
)

var logger = log.New("fastqueue")

func main() {
	rootCmd := &cobra.Command{
		Use: "fastqueue",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.AddCommand(startcmd.GetStartCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("Failed to run fastqueue server: %s", err)
	}
}
