// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Command hero-scout mirrors a Heroku account as a live resource tree.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/confighub/hero-scout/internal/clierr"
	"github.com/confighub/hero-scout/internal/config"
	"github.com/confighub/hero-scout/internal/logging"
	"github.com/confighub/hero-scout/internal/metrics"
	"github.com/confighub/hero-scout/internal/tree"
	"github.com/confighub/hero-scout/pkg/heroku"
)

var (
	// BuildTag is set during build
	BuildTag = "dev"
	// BuildDate is set during build
	BuildDate = "unknown"
)

var (
	configPath string
	demoMode   bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "hero-scout",
	Short: "Explore the apps, dynos, add-ons and pipelines of a Heroku account",
	Long: `hero-scout - explore a Heroku account as a live tree

hero-scout mirrors apps, their dynos and add-ons, and deployment pipelines
into a local cache and keeps it fresh within a fixed API call budget.
It provides commands for:

  - Printing the resource tree with rolled-up health (tree)
  - Watching the tree update live in a terminal UI (watch)
  - Creating apps and one-off dynos, restarting, stopping and scaling dynos

Environment Variables:
  HEROKU_API_KEY          API token (overrides api.key)
  HEROKU_API_URL          API base URL (overrides api.url)
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, clierr.Pretty(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the config file")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "Use a seeded in-memory account instead of the API")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hero-scout version %s (built %s)\n", BuildTag, BuildDate)
		},
	})

	// Add completion command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for hero-scout.

Bash:
  $ source <(hero-scout completion bash)

Zsh:
  $ hero-scout completion zsh > "${fpath[1]}/_hero-scout"

Fish:
  $ hero-scout completion fish | source

PowerShell:
  PS> hero-scout completion powershell | Out-String | Invoke-Expression
`,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	})
}

// session bundles what every command needs: config, logger, API client and tree.
// client is nil in demo mode.
type session struct {
	cfg    *config.Config
	log    *logging.Logger
	api    heroku.API
	client *heroku.Client
	cache  *tree.Cache
	close  func()
}

// setBudget applies a new calls-per-minute budget to the HTTP client.
func (s *session) setBudget(callsPerMinute int) {
	if s.client != nil {
		s.client.SetRateBudget(callsPerMinute)
	}
}

// openSession loads the config and wires the client and cache for command. Log records go
// to logOut, and to a file as well when log.dir is set. m may be nil.
func openSession(command string, logOut io.Writer, m *metrics.Metrics) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, clierr.WrapWithHint(err, "fix "+configPath)
	}

	log, err := logging.Open(cfg.Log, command, logOut)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log}
	var closeClient func()
	if demoMode {
		s.api = demoAccount()
		closeClient = func() {}
	} else {
		if cfg.API.Key == "" {
			log.Close()
			return nil, clierr.WrapWithHint(fmt.Errorf("no API key configured"),
				fmt.Sprintf("export %s=<token>, or run with --demo", config.EnvAPIKey))
		}
		client := heroku.NewClient(cfg.API.URL, cfg.API.Key,
			heroku.WithTimeout(cfg.API.GetTimeout()),
			heroku.WithRateBudget(cfg.API.CallsPerMinute),
			heroku.WithUserAgent("hero-scout/"+BuildTag),
		)
		s.api, s.client = client, client
		closeClient = client.Close
	}

	s.cache = tree.New(s.api,
		tree.WithLogger(log.Logger),
		tree.WithMetrics(m),
		tree.WithAuthoritativeStage(tree.StageName(cfg.Pipeline.AuthoritativeStage)),
	)
	s.close = func() {
		closeClient()
		if path := log.Close(); path != "" {
			fmt.Fprintf(os.Stderr, "Log written to %s\n", path)
		}
	}
	return s, nil
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
