// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package tree

import (
	"context"
	"fmt"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/confighub/hero-scout/internal/state"
)

// Item is the display projection of a node.
type Item struct {
	ID          ID
	Kind        Kind
	Label       string
	Tooltip     string
	State       state.State
	Icon        string
	Context     string
	Collapsible bool
	Dirty       bool
}

type itemMemo struct {
	rev  uint64
	item Item
}

// Item projects n for display, fetching the data its state depends on when stale.
// Projections are memoized until n or its subtree changes. On a failed fetch the
// projection of the cached data is returned along with the error.
func (c *Cache) Item(ctx context.Context, n Node) (Item, error) {
	c.mu.Lock()
	defer c.unlock()

	if err := c.known(n); err != nil {
		return Item{}, err
	}
	err := c.ensureItem(ctx, n)

	rev := c.revision(n)
	m, ok := c.items[n.ID()]
	if !ok || m.rev != rev {
		m = itemMemo{rev: rev, item: c.project(n)}
		c.items[n.ID()] = m
	}
	item := m.item
	item.Dirty = c.dirty(n)
	return item, err
}

func (c *Cache) ensureItem(ctx context.Context, n Node) error {
	switch v := n.(type) {
	case *App:
		return c.ensureApp(ctx, v)
	case *Branch:
		if a, ok := c.index[v.owner].(*App); ok {
			return c.ensureApp(ctx, a)
		}
	case *Pipeline:
		return c.ensurePipelineApps(ctx, v)
	case *Stage:
		if p, ok := c.index[v.pipeline].(*Pipeline); ok {
			if err := c.ensurePipeline(ctx, p); err != nil {
				return err
			}
			var errs []error
			for _, a := range v.apps {
				if err := c.ensureApp(ctx, a); err != nil {
					errs = append(errs, err)
				}
			}
			return utilerrors.NewAggregate(errs)
		}
	}
	return nil
}

// revision changes whenever anything the projection of n depends on changes.
// Revisions come from one monotonic clock, so the max over a subtree moves on any edit.
func (c *Cache) revision(n Node) uint64 {
	switch v := n.(type) {
	case *App:
		return v.rev
	case *Dyno:
		return v.rev
	case *Addon:
		return v.rev
	case *Branch:
		if a, ok := c.index[v.owner].(*App); ok {
			return a.rev
		}
	case *Pipeline:
		return pipelineRevision(v)
	case *Stage:
		if p, ok := c.index[v.pipeline].(*Pipeline); ok {
			return pipelineRevision(p)
		}
	}
	return 0
}

func pipelineRevision(p *Pipeline) uint64 {
	rev := p.rev
	for _, a := range p.Apps() {
		rev = max(rev, a.rev)
	}
	return rev
}

func (c *Cache) project(n Node) Item {
	item := Item{ID: n.ID(), Kind: n.Kind(), Label: n.Name()}

	switch v := n.(type) {
	case *App:
		item.State = v.State()
		item.Tooltip = "State: " + string(item.State)
		item.Icon = stateIcon(item.State)
		item.Context = "app"
		item.Collapsible = true
	case *Branch:
		a, _ := c.index[v.owner].(*App)
		item.Context = v.kind.String()
		item.Collapsible = true
		if a == nil {
			break
		}
		if v.kind == KindDynoBranch {
			item.State = a.State()
			item.Tooltip = plural(len(a.dynos), "dyno")
			item.Icon = "server-process"
		} else {
			item.State = a.AddonState()
			item.Tooltip = plural(len(a.addons), "add-on")
			item.Icon = "extensions"
		}
	case *Dyno:
		item.State = v.State()
		item.Tooltip = "Command: " + v.rec.Command
		item.Icon = stateIcon(item.State)
		item.Context = "dynoDown"
		if item.State == state.Up {
			item.Context = "dynoUp"
		}
	case *Addon:
		item.State = state.AddonAsDyno(v.State())
		item.Tooltip = addonTooltip(v)
		item.Icon = stateIcon(item.State)
		item.Context = "addon"
	case *Pipeline:
		item.State = c.pipelineState(v)
		item.Tooltip = "State: " + string(item.State)
		item.Icon = "pipeline"
		item.Context = "pipeline"
		item.Collapsible = true
	case *Stage:
		states := make([]state.State, 0, len(v.apps))
		for _, a := range v.apps {
			states = append(states, a.State())
		}
		item.Label = c.caser.String(string(v.stage))
		item.State = state.BestState(states, state.DynoRanking)
		item.Tooltip = plural(len(v.apps), "app")
		item.Icon = stateIcon(item.State)
		item.Context = "pipelineStage"
		item.Collapsible = true
	case *Command:
		item.Tooltip = "Create a new application"
		item.Icon = "add"
		item.Context = "createApp"
	}
	return item
}

func (c *Cache) pipelineState(p *Pipeline) state.State {
	var stages []state.StageStates
	for _, s := range p.Stages() {
		ss := state.StageStates{Stage: string(s.stage)}
		for _, a := range s.apps {
			ss.States = append(ss.States, a.State())
		}
		stages = append(stages, ss)
	}
	return state.PipelineState(stages, string(c.authoritative))
}

func stateIcon(s state.State) string {
	return "dyno-state-" + string(s)
}

func addonTooltip(a *Addon) string {
	var parts []string
	if a.rec.Service.Name != "" {
		parts = append(parts, "Service: "+a.rec.Service.Name)
	}
	if a.rec.Plan.Name != "" {
		parts = append(parts, "Plan: "+a.rec.Plan.Name)
	}
	parts = append(parts, "State: "+a.rec.State)
	return strings.Join(parts, "\n")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
