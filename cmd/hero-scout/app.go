// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"net/url"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/confighub/hero-scout/internal/actions"
	"github.com/confighub/hero-scout/internal/clierr"
)

const dashboardURL = "https://dashboard.heroku.com/apps/"

var (
	actionDryRun  bool
	deleteConfirm string
	openDashboard bool
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Create, delete, refresh and open applications",
}

var appCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an application",
	Long: `Create an application and show it in the tree.

Names are lowercase letters, digits and dashes, start with a letter and are
at most 30 characters long.

Examples:
  hero-scout app create my-api
  hero-scout app create my-api --dry-run
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, &actions.Request{Type: actions.CreateApp, Name: args[0]}, args[0])
	},
}

var appDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete an application",
	Long: `Delete an application with its dynos and add-ons, and drop it from the tree.

This cannot be undone, so the app name has to be repeated with --confirm.

Examples:
  hero-scout app delete my-api --dry-run
  hero-scout app delete my-api --confirm my-api
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !actionDryRun && deleteConfirm != args[0] {
			return clierr.WrapWithHint(fmt.Errorf("refusing to delete %s without confirmation", args[0]),
				"re-run with --confirm "+args[0])
		}
		return runAction(cmd, &actions.Request{Type: actions.DeleteApp, App: args[0]}, args[0])
	},
}

var appOpenCmd = &cobra.Command{
	Use:   "open NAME",
	Short: "Print the web URL or dashboard URL of an application",
	Long: `Print the web URL of an application, or its dashboard page with --dashboard.

Examples:
  hero-scout app open my-api
  hero-scout app open my-api --dashboard
`,
	Args: cobra.ExactArgs(1),
	RunE: runAppOpen,
}

var appRefreshCmd = &cobra.Command{
	Use:   "refresh NAME",
	Short: "Re-fetch one application and print its subtree",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppRefresh,
}

func init() {
	rootCmd.AddCommand(appCmd)
	appCmd.AddCommand(appCreateCmd, appDeleteCmd, appOpenCmd, appRefreshCmd)
	appCreateCmd.Flags().BoolVar(&actionDryRun, "dry-run", false, "Describe the change without making it")
	appDeleteCmd.Flags().BoolVar(&actionDryRun, "dry-run", false, "Describe the change without making it")
	appDeleteCmd.Flags().StringVar(&deleteConfirm, "confirm", "", "Name of the app, to confirm the deletion")
	appOpenCmd.Flags().BoolVar(&openDashboard, "dashboard", false, "Print the dashboard page instead of the web URL")
}

func runAppOpen(cmd *cobra.Command, args []string) error {
	s, err := openSession("app-open", cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer s.close()

	if _, err := s.cache.Children(cmd.Context(), nil); err != nil {
		return err
	}
	app, ok := s.cache.App(args[0])
	if !ok {
		return fmt.Errorf("app %s not found", args[0])
	}
	rec := app.Record()

	target := dashboardURL + url.PathEscape(rec.Name)
	if !openDashboard {
		if rec.WebURL == "" {
			return clierr.WrapWithHint(fmt.Errorf("app %s has no web URL", rec.Name), "use --dashboard")
		}
		target = rec.WebURL
	}
	fmt.Fprintln(cmd.OutOrStdout(), target)
	return nil
}

func runAppRefresh(cmd *cobra.Command, args []string) error {
	s, err := openSession("app-refresh", cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	if _, err := s.cache.Children(ctx, nil); err != nil {
		return err
	}
	app, ok := s.cache.App(args[0])
	if !ok {
		return fmt.Errorf("app %s not found", args[0])
	}
	if err := s.cache.Refresh(ctx, app); err != nil {
		return err
	}
	n, err := walkNode(ctx, s.cache, app)
	if err != nil {
		s.log.Warn("subtree is incomplete", "app", args[0], "error", err)
	}
	return writeTree(cmd.OutOrStdout(), []*treeNode{n}, "text")
}

// runAction executes req, then prints the subtree of the app it touched.
func runAction(cmd *cobra.Command, req *actions.Request, appName string) error {
	s, err := openSession(string(req.Type), cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// Roots are listed first so the runner can find and refresh the touched app.
	if !actionDryRun {
		if _, err := s.cache.Children(ctx, nil); err != nil {
			return err
		}
	}

	runner := actions.NewRunner(actions.DefaultRegistry(s.api), s.cache, s.log.Logger)
	opts := actions.DefaultExecuteOptions()
	opts.DryRun = actionDryRun
	res, err := runner.Run(ctx, req, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, passStyle.Render("✓ ")+res.Message)
	if actionDryRun {
		return nil
	}
	if res.RefreshErr != nil {
		fmt.Fprintln(out, warnStyle.Render("! could not refresh "+appName+": "+res.RefreshErr.Error()))
	}

	app, ok := s.cache.App(appName)
	if !ok {
		return nil
	}
	n, err := walkNode(ctx, s.cache, app)
	if err != nil {
		s.log.Warn("subtree is incomplete", "app", appName, "error", err)
	}
	fmt.Fprintln(out)
	return writeTree(out, []*treeNode{n}, "text")
}
