// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/confighub/hero-scout/internal/actions"
	"github.com/confighub/hero-scout/internal/clierr"
)

var dynoCommand string

var dynoCmd = &cobra.Command{
	Use:   "dyno",
	Short: "Run, restart, stop and scale dynos",
	Long: `Run, restart, stop and scale dynos.

Every change refreshes the app it touched and prints the app's subtree.

Examples:
  hero-scout dyno create my-api --command "rake db:migrate"
  hero-scout dyno restart my-api            # all dynos
  hero-scout dyno restart my-api web.1
  hero-scout dyno stop my-api run.4
  hero-scout dyno scale my-api worker 3
  hero-scout dyno formation my-api
`,
}

var dynoCreateCmd = &cobra.Command{
	Use:   "create APP",
	Short: "Start a one-off dyno",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, &actions.Request{Type: actions.CreateDyno, App: args[0], Command: dynoCommand}, args[0])
	},
}

var dynoRestartCmd = &cobra.Command{
	Use:   "restart APP [DYNO]",
	Short: "Restart one dyno, or every dyno of an app",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &actions.Request{Type: actions.RestartDyno, App: args[0]}
		if len(args) == 2 {
			req.Dyno = args[1]
		}
		return runAction(cmd, req, args[0])
	},
}

var dynoStopCmd = &cobra.Command{
	Use:   "stop APP DYNO",
	Short: "Stop a dyno",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, &actions.Request{Type: actions.StopDyno, App: args[0], Dyno: args[1]}, args[0])
	},
}

var dynoScaleCmd = &cobra.Command{
	Use:   "scale APP TYPE QUANTITY",
	Short: "Set the number of dynos of a process type",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("quantity must be a number, got %q", args[2])
		}
		return runAction(cmd, &actions.Request{
			Type:          actions.ScaleFormation,
			App:           args[0],
			FormationType: args[1],
			Quantity:      qty,
		}, args[0])
	},
}

var dynoFormationCmd = &cobra.Command{
	Use:   "formation APP",
	Short: "List the process types of an app and their quantities",
	Args:  cobra.ExactArgs(1),
	RunE:  runDynoFormation,
}

func init() {
	rootCmd.AddCommand(dynoCmd)
	dynoCmd.AddCommand(dynoCreateCmd, dynoRestartCmd, dynoStopCmd, dynoScaleCmd, dynoFormationCmd)

	dynoCreateCmd.Flags().StringVar(&dynoCommand, "command", "", "Command to run (required)")
	_ = dynoCreateCmd.MarkFlagRequired("command")

	for _, c := range []*cobra.Command{dynoCreateCmd, dynoRestartCmd, dynoStopCmd, dynoScaleCmd} {
		c.Flags().BoolVar(&actionDryRun, "dry-run", false, "Describe the change without making it")
	}
}

func runDynoFormation(cmd *cobra.Command, args []string) error {
	s, err := openSession("formation", cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer s.close()

	formation, err := s.api.ListFormation(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(formation) == 0 {
		fmt.Fprintln(out, clierr.NothingFound("process types"))
		return nil
	}

	fmt.Fprintf(out, "%s\n", titleStyle.Render("Formation of "+args[0]))
	fmt.Fprintf(out, "%-12s %-8s %-14s %s\n", "TYPE", "QTY", "SIZE", "COMMAND")
	for _, f := range formation {
		fmt.Fprintf(out, "%-12s %-8d %-14s %s\n", f.Type, f.Quantity, f.Size, dimStyle.Render(f.Command))
	}
	return nil
}
