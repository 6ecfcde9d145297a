// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package tree mirrors the remote resource model (apps, dynos, add-ons, pipelines) as a
// cached tree and keeps it consistent with minimal re-fetching.
//
// Ownership is one-directional: a parent holds its children, a child only knows its
// parent's ID. The Cache resolves IDs through its index, so nothing below the cache can
// edit a collection it does not own.
package tree

import (
	"slices"

	"github.com/confighub/hero-scout/internal/state"
	"github.com/confighub/hero-scout/pkg/heroku"
)

// Kind identifies the variant of a Node.
type Kind int

const (
	KindApp Kind = iota
	KindDynoBranch
	KindDyno
	KindAddonBranch
	KindAddon
	KindPipeline
	KindStage
	KindCreateApp
)

func (k Kind) String() string {
	switch k {
	case KindApp:
		return "app"
	case KindDynoBranch:
		return "dynoBranch"
	case KindDyno:
		return "dyno"
	case KindAddonBranch:
		return "addonBranch"
	case KindAddon:
		return "addon"
	case KindPipeline:
		return "pipeline"
	case KindStage:
		return "pipelineStage"
	case KindCreateApp:
		return "createApp"
	default:
		return "unknown"
	}
}

// ID is a node identity, unique within one Cache.
type ID string

func appID(remote string) ID      { return ID("app/" + remote) }
func dynoID(remote string) ID     { return ID("dyno/" + remote) }
func addonID(remote string) ID    { return ID("addon/" + remote) }
func pipelineID(remote string) ID { return ID("pipeline/" + remote) }
func dynoBranchID(app string) ID  { return ID("dynos/" + app) }
func addonBranchID(app string) ID { return ID("addons/" + app) }

func stageID(pipelineName string, s StageName) ID {
	return ID("stage/" + pipelineName + "/" + string(s))
}

const createAppID ID = "command/create-app"

// Node is an entry in the resource tree.
type Node interface {
	ID() ID
	Kind() Kind
	Name() string
	// ParentID is empty for roots.
	ParentID() ID
}

// StageName is one of the fixed pipeline stage names.
type StageName string

const (
	StageTest        StageName = "test"
	StageReview      StageName = "review"
	StageDevelopment StageName = "development"
	StageStaging     StageName = "staging"
	StageProduction  StageName = "production"
)

// StageOrder is the display order of pipeline stages.
var StageOrder = []StageName{StageTest, StageReview, StageDevelopment, StageStaging, StageProduction}

// ParseStage validates a stage name.
func ParseStage(s string) (StageName, bool) {
	name := StageName(s)
	if slices.Contains(StageOrder, name) {
		return name, true
	}
	return "", false
}

// flags carries the dirty protocol for nodes that own fetchable state.
// stale: the node's own remote data must be re-fetched.
// dirty: stale, or some descendant is dirty.
type flags struct {
	stale bool
	dirty bool
}

// App is an application node. Its dynos and add-ons hang off two grouping branches.
type App struct {
	id     ID
	parent ID
	flags
	rev uint64
	rec heroku.App

	dynos       []*Dyno
	addons      []*Addon
	dynoBranch  *Branch
	addonBranch *Branch

	memo stateMemo
}

type stateMemo struct {
	valid bool
	rev   uint64
	state state.State
}

func (a *App) ID() ID       { return a.id }
func (a *App) Kind() Kind   { return KindApp }
func (a *App) Name() string { return a.rec.Name }
func (a *App) ParentID() ID { return a.parent }

// RemoteID is the platform id of the app.
func (a *App) RemoteID() string { return a.rec.ID }

// Record returns the last fetched app record.
func (a *App) Record() heroku.App { return a.rec }

// Dynos returns the cached dynos in display order.
func (a *App) Dynos() []*Dyno { return slices.Clone(a.dynos) }

// Addons returns the cached add-ons in display order.
func (a *App) Addons() []*Addon { return slices.Clone(a.addons) }

// DynoBranch returns the grouping node for dynos.
func (a *App) DynoBranch() *Branch { return a.dynoBranch }

// AddonBranch returns the grouping node for add-ons.
func (a *App) AddonBranch() *Branch { return a.addonBranch }

// State is the aggregate of the app's dyno states, memoized until the dynos change.
func (a *App) State() state.State {
	if a.memo.valid && a.memo.rev == a.rev {
		return a.memo.state
	}
	states := make([]state.State, 0, len(a.dynos))
	for _, d := range a.dynos {
		states = append(states, d.State())
	}
	a.memo = stateMemo{valid: true, rev: a.rev, state: state.BestState(states, state.DynoRanking)}
	return a.memo.state
}

// AddonState is the aggregate add-on state translated into the dyno ranking.
func (a *App) AddonState() state.State {
	states := make([]state.State, 0, len(a.addons))
	for _, ad := range a.addons {
		states = append(states, state.State(ad.rec.State))
	}
	return state.AddonAsDyno(state.BestState(states, state.AddonRanking))
}

// Branch is a grouping node (Dynos or Add-ons) with no remote identity.
// It delegates dirtiness and data to its owning App.
type Branch struct {
	id    ID
	owner ID
	kind  Kind
	label string
}

func (b *Branch) ID() ID       { return b.id }
func (b *Branch) Kind() Kind   { return b.kind }
func (b *Branch) Name() string { return b.label }
func (b *Branch) ParentID() ID { return b.owner }

// Owner returns the ID of the owning App.
func (b *Branch) Owner() ID { return b.owner }

// Dyno is a process node.
type Dyno struct {
	id     ID
	parent ID
	flags
	rev uint64
	rec heroku.Dyno
}

func (d *Dyno) ID() ID       { return d.id }
func (d *Dyno) Kind() Kind   { return KindDyno }
func (d *Dyno) Name() string { return d.rec.Name }
func (d *Dyno) ParentID() ID { return d.parent }

// RemoteID is the platform id of the dyno.
func (d *Dyno) RemoteID() string { return d.rec.ID }

// Record returns the last fetched dyno record.
func (d *Dyno) Record() heroku.Dyno { return d.rec }

// State returns the dyno's state.
func (d *Dyno) State() state.State { return state.State(d.rec.State) }

// Addon is an add-on node.
type Addon struct {
	id     ID
	parent ID
	flags
	rev uint64
	rec heroku.Addon
}

func (a *Addon) ID() ID       { return a.id }
func (a *Addon) Kind() Kind   { return KindAddon }
func (a *Addon) Name() string { return a.rec.Name }
func (a *Addon) ParentID() ID { return a.parent }

// RemoteID is the platform id of the add-on.
func (a *Addon) RemoteID() string { return a.rec.ID }

// Record returns the last fetched add-on record.
func (a *Addon) Record() heroku.Addon { return a.rec }

// State returns the add-on's own state (add-on ranking).
func (a *Addon) State() state.State { return state.State(a.rec.State) }

// Pipeline is a pipeline node. It owns one Stage per non-empty stage and claims the
// apps coupled to it.
type Pipeline struct {
	id ID
	flags
	rev    uint64
	rec    heroku.Pipeline
	stages map[StageName]*Stage
}

func (p *Pipeline) ID() ID       { return p.id }
func (p *Pipeline) Kind() Kind   { return KindPipeline }
func (p *Pipeline) Name() string { return p.rec.Name }
func (p *Pipeline) ParentID() ID { return "" }

// RemoteID is the platform id of the pipeline.
func (p *Pipeline) RemoteID() string { return p.rec.ID }

// Record returns the last fetched pipeline record.
func (p *Pipeline) Record() heroku.Pipeline { return p.rec }

// Stages returns the non-empty stages in display order.
func (p *Pipeline) Stages() []*Stage {
	var out []*Stage
	for _, name := range StageOrder {
		if s, ok := p.stages[name]; ok && len(s.apps) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Apps returns every claimed app, in stage order.
func (p *Pipeline) Apps() []*App {
	var out []*App
	for _, s := range p.Stages() {
		out = append(out, s.apps...)
	}
	return out
}

// Stage is a grouping node for the apps of one pipeline stage.
// The app slice is owned by the Pipeline; the Stage is a view onto it.
type Stage struct {
	id       ID
	pipeline ID
	stage    StageName
	apps     []*App
}

func (s *Stage) ID() ID       { return s.id }
func (s *Stage) Kind() Kind   { return KindStage }
func (s *Stage) Name() string { return string(s.stage) }
func (s *Stage) ParentID() ID { return s.pipeline }

// Stage returns the stage name.
func (s *Stage) Stage() StageName { return s.stage }

// Apps returns the apps coupled to this stage.
func (s *Stage) Apps() []*App { return slices.Clone(s.apps) }

// Command is the synthetic "create application" entry listed after the roots.
type Command struct {
	id    ID
	label string
}

func (c *Command) ID() ID       { return c.id }
func (c *Command) Kind() Kind   { return KindCreateApp }
func (c *Command) Name() string { return c.label }
func (c *Command) ParentID() ID { return "" }
