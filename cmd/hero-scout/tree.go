// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"sigs.k8s.io/yaml"

	"github.com/confighub/hero-scout/internal/state"
	"github.com/confighub/hero-scout/internal/tree"
)

var treeOutput string

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	boldStyle  = lipgloss.NewStyle().Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// stateStyle colors a state by severity.
func stateStyle(s state.State) lipgloss.Style {
	switch s {
	case state.Up, state.Provisioned:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	case state.Starting, state.Provisioning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	case state.Idle:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	case state.Crashed, state.Down, state.Deprovisioned:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	default:
		return dimStyle
	}
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the resource tree",
	Long: `Print every app, dyno, add-on and pipeline with its rolled-up state.

Apps claimed by a pipeline appear under the stage they are coupled to; the
rest are listed at the top level next to the pipelines.

Examples:
  hero-scout tree
  hero-scout tree --output json
  hero-scout tree --demo --output yaml
`,
	Args: cobra.NoArgs,
	RunE: runTree,
}

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.Flags().StringVarP(&treeOutput, "output", "o", "text", "Output format: text, json or yaml")
}

func runTree(cmd *cobra.Command, args []string) error {
	switch treeOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format: %s (valid: text, json, yaml)", treeOutput)
	}

	s, err := openSession("tree", cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer s.close()

	roots, err := walkTree(cmd.Context(), s.cache)
	if err != nil && len(roots) == 0 {
		return err
	}
	if err != nil {
		s.log.Warn("tree is incomplete", "error", err)
	}
	return writeTree(cmd.OutOrStdout(), roots, treeOutput)
}

// treeNode is one rendered node. The node itself is kept for callers that act on it.
type treeNode struct {
	ID       string      `json:"id"`
	Kind     string      `json:"kind"`
	Label    string      `json:"label"`
	State    string      `json:"state,omitempty"`
	Detail   string      `json:"detail,omitempty"`
	Dirty    bool        `json:"dirty,omitempty"`
	Children []*treeNode `json:"children,omitempty"`

	node tree.Node
}

// walkTree expands every collapsible node, fetching whatever is stale. Failed fetches do
// not stop the walk: the cached data is rendered and the errors are aggregated.
func walkTree(ctx context.Context, c *tree.Cache) ([]*treeNode, error) {
	w := &walker{ctx: ctx, cache: c}
	roots := w.children(nil)
	return roots, utilerrors.NewAggregate(w.errs)
}

// walkNode renders n and everything below it.
func walkNode(ctx context.Context, c *tree.Cache, n tree.Node) (*treeNode, error) {
	w := &walker{ctx: ctx, cache: c}
	tn := w.node(n)
	return tn, utilerrors.NewAggregate(w.errs)
}

type walker struct {
	ctx   context.Context
	cache *tree.Cache
	errs  []error
}

func (w *walker) children(parent tree.Node) []*treeNode {
	children, err := w.cache.Children(w.ctx, parent)
	if err != nil {
		w.errs = append(w.errs, err)
	}
	out := make([]*treeNode, 0, len(children))
	for _, n := range children {
		out = append(out, w.node(n))
	}
	return out
}

func (w *walker) node(n tree.Node) *treeNode {
	item, err := w.cache.Item(w.ctx, n)
	if err != nil {
		w.errs = append(w.errs, err)
	}
	tn := &treeNode{
		ID:     string(item.ID),
		Kind:   item.Kind.String(),
		Label:  item.Label,
		State:  string(item.State),
		Detail: item.Tooltip,
		Dirty:  item.Dirty,
		node:   n,
	}
	if item.Collapsible {
		tn.Children = w.children(n)
	}
	return tn
}

func writeTree(w io.Writer, roots []*treeNode, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(roots)
	case "yaml":
		out, err := yaml.Marshal(roots)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		fmt.Fprintf(w, "%s (%d roots)\n", titleStyle.Render("Resource Tree"), countRoots(roots))
		fmt.Fprintln(w, dimStyle.Render(strings.Repeat("─", 60)))
		for i, n := range roots {
			writeTextNode(w, n, "", i == len(roots)-1)
		}
		return nil
	}
}

func writeTextNode(w io.Writer, n *treeNode, prefix string, last bool) {
	connector, childPrefix := "├── ", prefix+"│   "
	if last {
		connector, childPrefix = "└── ", prefix+"    "
	}
	fmt.Fprintf(w, "%s%s%s\n", prefix, connector, textLine(n))
	for i, child := range n.Children {
		writeTextNode(w, child, childPrefix, i == len(n.Children)-1)
	}
}

// textLine renders label, state and the first detail line of a node.
func textLine(n *treeNode) string {
	var b strings.Builder
	switch n.Kind {
	case "app", "pipeline":
		b.WriteString(boldStyle.Render(n.Label))
	case "createApp":
		b.WriteString(dimStyle.Render("+ " + n.Label))
	default:
		b.WriteString(n.Label)
	}
	if n.State != "" {
		st := state.State(n.State)
		b.WriteString(" [" + stateStyle(st).Render(n.State) + "]")
	}
	if n.Detail != "" && n.Kind != "createApp" {
		first, _, _ := strings.Cut(n.Detail, "\n")
		b.WriteString(" " + dimStyle.Render(first))
	}
	if n.Dirty {
		b.WriteString(" " + dimStyle.Render("(stale)"))
	}
	return b.String()
}

func countRoots(roots []*treeNode) int {
	n := 0
	for _, r := range roots {
		if r.Kind != "createApp" {
			n++
		}
	}
	return n
}
