// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/confighub/hero-scout/internal/tree"
	"github.com/confighub/hero-scout/pkg/heroku"
)

func labels(nodes []*treeNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Label)
	}
	return out
}

func find(nodes []*treeNode, label string) *treeNode {
	for _, n := range nodes {
		if n.Label == label {
			return n
		}
		if found := find(n.Children, label); found != nil {
			return found
		}
	}
	return nil
}

func TestWalkTreeDemo(t *testing.T) {
	c := tree.New(demoAccount())
	roots, err := walkTree(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, []string{"api", "jobs-runner", "marketing-site", "Create application"}, labels(roots))

	api := roots[0]
	assert.Equal(t, "pipeline", api.Kind)
	assert.Equal(t, []string{"Review", "Staging", "Production"}, labels(api.Children))
	// idle in review is the least healthy app of the pipeline
	assert.Equal(t, "idle", api.State)

	prod := find(roots, "api-production")
	require.NotNil(t, prod)
	assert.Equal(t, "starting", prod.State)
	assert.Equal(t, []string{"Dynos", "Add-ons"}, labels(prod.Children))
	assert.Equal(t, []string{"web.1", "web.2", "worker.1"}, labels(prod.Children[0].Children))

	assert.Equal(t, "crashed", roots[1].State)
	assert.False(t, roots[1].Dirty)
}

func TestWalkTreeKeepsGoingOnFailure(t *testing.T) {
	m := demoAccount()
	boom := errors.New("boom")
	m.FailNext(heroku.Dynos, boom)

	roots, err := walkTree(context.Background(), tree.New(m))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, roots, 4)
	assert.NotNil(t, find(roots, "marketing-site"))
}

func TestWriteTreeFormats(t *testing.T) {
	roots, err := walkTree(context.Background(), tree.New(demoAccount()))
	require.NoError(t, err)

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeTree(&buf, roots, "json"))
		var decoded []map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 4)
		assert.Equal(t, "api", decoded[0]["label"])
		assert.Equal(t, "createApp", decoded[3]["kind"])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeTree(&buf, roots, "yaml"))
		var decoded []map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 4)
		assert.Equal(t, "marketing-site", decoded[2]["label"])
		assert.Equal(t, "app/app-site", decoded[2]["id"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeTree(&buf, roots, "text"))
		out := buf.String()
		assert.Contains(t, out, "(3 roots)")
		assert.Contains(t, out, "api-production")
		assert.Contains(t, out, "Command: bundle exec sidekiq")
		assert.Contains(t, out, "└── ")
	})
}

// execute runs the root command against the demo account with a config file that does
// not exist, so every setting is a default.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	actionDryRun = false
	treeOutput = "text"
	logLevel = ""
	dynoCommand = ""
	deleteConfirm = ""
	openDashboard = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--demo", "--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTreeCommand(t *testing.T) {
	out, err := execute(t, "tree", "--output", "json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "["))
	assert.Contains(t, out, `"label": "jobs-runner"`)

	_, err = execute(t, "tree", "--output", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestDynoCommands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr string
	}{
		{
			name: "stop refreshes and prints the app",
			args: []string{"dyno", "stop", "api-production", "web.2"},
			want: []string{"Stopped web.2 on api-production", "web.2", "down"},
		},
		{
			name: "restart all",
			args: []string{"dyno", "restart", "jobs-runner"},
			want: []string{"Restarted all dynos of jobs-runner", "starting"},
		},
		{
			name: "one-off dyno",
			args: []string{"dyno", "create", "marketing-site", "--command", "npm run migrate"},
			want: []string{"Started run.1 on marketing-site", "run.1"},
		},
		{
			name: "scale",
			args: []string{"dyno", "scale", "api-production", "worker", "3"},
			want: []string{"Scaled worker on api-production to 3"},
		},
		{
			name: "dry run",
			args: []string{"dyno", "restart", "api-staging", "web.1", "--dry-run"},
			want: []string{"[dry-run] Restart web.1 on api-staging"},
		},
		{
			name:    "unknown process type",
			args:    []string{"dyno", "scale", "api-production", "clock", "1"},
			wantErr: "not found",
		},
		{
			name:    "quantity not a number",
			args:    []string{"dyno", "scale", "api-production", "web", "lots"},
			wantErr: "quantity must be a number",
		},
		{
			name:    "stop needs a dyno",
			args:    []string{"dyno", "stop", "api-production"},
			wantErr: "accepts 2 arg(s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestAppCommands(t *testing.T) {
	out, err := execute(t, "app", "create", "new-service")
	require.NoError(t, err)
	assert.Contains(t, out, "Created app new-service")
	assert.Contains(t, out, "Dynos")

	_, err = execute(t, "app", "create", "Not_Valid")
	assert.ErrorContains(t, err, "invalid request")

	out, err = execute(t, "app", "refresh", "api-staging")
	require.NoError(t, err)
	assert.Contains(t, out, "postgresql-shallow-24680")

	_, err = execute(t, "app", "refresh", "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestAppDeleteCommand(t *testing.T) {
	_, err := execute(t, "app", "delete", "jobs-runner")
	assert.ErrorContains(t, err, "without confirmation")

	out, err := execute(t, "app", "delete", "jobs-runner", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "[dry-run] Delete app jobs-runner")

	out, err = execute(t, "app", "delete", "jobs-runner", "--confirm", "jobs-runner")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted app jobs-runner")
	assert.NotContains(t, out, "clock.1")

	_, err = execute(t, "app", "delete", "nope", "--confirm", "nope")
	assert.Error(t, err)
}

func TestAppOpenCommand(t *testing.T) {
	out, err := execute(t, "app", "open", "marketing-site")
	require.NoError(t, err)
	assert.Equal(t, "https://marketing-site.herokuapp.com/\n", out)

	out, err = execute(t, "app", "open", "jobs-runner", "--dashboard")
	require.NoError(t, err)
	assert.Equal(t, "https://dashboard.heroku.com/apps/jobs-runner\n", out)

	_, err = execute(t, "app", "open", "jobs-runner")
	assert.ErrorContains(t, err, "no web URL")

	_, err = execute(t, "app", "open", "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestFormationCommand(t *testing.T) {
	out, err := execute(t, "dyno", "formation", "api-production")
	require.NoError(t, err)
	assert.Contains(t, out, "worker")
	assert.Contains(t, out, "standard-2x")

	out, err = execute(t, "dyno", "formation", "api-pr-142")
	require.NoError(t, err)
	assert.Contains(t, out, "No process types found")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hero-scout version dev")
}
