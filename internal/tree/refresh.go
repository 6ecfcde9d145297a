// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package tree

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/confighub/hero-scout/internal/metrics"
	"github.com/confighub/hero-scout/pkg/heroku"
)

const refreshAllKey = "*"

// Refresh re-fetches the subtree containing n: the root ancestor of n and everything
// below it are marked dirty and fetched again. A nil n refreshes the whole tree,
// starting with the root list. Concurrent refreshes of the same root share one fetch.
func (c *Cache) Refresh(ctx context.Context, n Node) error {
	key := refreshAllKey
	var root Node
	if n != nil {
		c.mu.Lock()
		root = c.rootOf(n)
		c.mu.Unlock()
		if root == nil {
			return fmt.Errorf("%w: %s", ErrUnknownNode, n.ID())
		}
		if root.Kind() == KindCreateApp {
			return nil
		}
		key = string(root.ID())
	}

	_, err, _ := c.flight.Do(key, func() (any, error) {
		c.mu.Lock()
		defer c.unlock()
		if root == nil {
			return nil, c.refreshAll(ctx)
		}
		return nil, c.refreshRoot(ctx, root)
	})
	return err
}

// RefreshDirty refreshes every dirty root, re-listing the roots first when the root
// list is stale. It is what the poller calls on each tick.
func (c *Cache) RefreshDirty(ctx context.Context) error {
	_, err, _ := c.flight.Do("*dirty", func() (any, error) {
		c.mu.Lock()
		defer c.unlock()

		if !c.rootsBuilt || c.rootsStale {
			if err := c.rebuildRoots(ctx); err != nil {
				return nil, err
			}
		}
		var errs []error
		for _, r := range slices.Clone(c.roots) {
			if !c.dirty(r) {
				continue
			}
			if err := c.refreshRoot(ctx, r); err != nil {
				errs = append(errs, err)
			}
		}
		return nil, utilerrors.NewAggregate(errs)
	})
	return err
}

func (c *Cache) refreshAll(ctx context.Context) error {
	c.markAllDirty()
	if err := c.rebuildRoots(ctx); err != nil {
		return err
	}
	var errs []error
	for _, r := range slices.Clone(c.roots) {
		if err := c.refreshSubtree(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

func (c *Cache) refreshRoot(ctx context.Context, root Node) error {
	if err := c.known(root); err != nil {
		return err
	}
	c.markDirty(root)
	return c.refreshSubtree(ctx, root)
}

// refreshSubtree fetches whatever is dirty below a root. One failing app does not stop
// its siblings.
func (c *Cache) refreshSubtree(ctx context.Context, root Node) error {
	switch v := root.(type) {
	case *App:
		return c.ensureApp(ctx, v)
	case *Pipeline:
		return c.ensurePipelineApps(ctx, v)
	}
	return nil
}

func (c *Cache) ensureApp(ctx context.Context, a *App) error {
	if !a.dirty {
		return nil
	}
	return c.refreshApp(ctx, a)
}

func (c *Cache) ensurePipeline(ctx context.Context, p *Pipeline) error {
	if !p.stale {
		return nil
	}
	return c.refreshPipeline(ctx, p)
}

func (c *Cache) ensurePipelineApps(ctx context.Context, p *Pipeline) error {
	if err := c.ensurePipeline(ctx, p); err != nil {
		return err
	}
	var errs []error
	for _, a := range p.Apps() {
		if err := c.ensureApp(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// refreshApp fetches dynos and add-ons concurrently. Each collection that arrives is
// committed on its own; the app is only cleaned when both arrived.
func (c *Cache) refreshApp(ctx context.Context, a *App) error {
	defer c.metrics.ObserveRefresh("app", time.Now())

	var (
		dynos             []heroku.Dyno
		addons            []heroku.Addon
		dynoErr, addonErr error
		g                 errgroup.Group
	)
	g.Go(func() error {
		dynos, dynoErr = c.client.ListDynos(ctx, a.RemoteID())
		return dynoErr
	})
	g.Go(func() error {
		addons, addonErr = c.client.ListAddons(ctx, a.RemoteID())
		return addonErr
	})
	_ = g.Wait()
	c.metrics.RecordFetch(string(heroku.Dynos), dynoErr)
	c.metrics.RecordFetch(string(heroku.Addons), addonErr)

	if dynoErr == nil {
		c.reconcileDynos(a, dynos)
	}
	if addonErr == nil {
		c.reconcileAddons(a, addons)
	}

	var err error
	if agg := utilerrors.NewAggregate([]error{dynoErr, addonErr}); agg != nil {
		err = fmt.Errorf("refresh app %s: %w", a.Name(), agg)
		c.log.Warn("app refresh failed", "app", a.Name(), "error", agg)
	} else {
		c.clean(a)
	}
	c.notify(a, err)
	return err
}

func (c *Cache) reconcileDynos(a *App, records []heroku.Dyno) {
	plan := Diff(a.dynos, records, (*Dyno).RemoteID, func(r heroku.Dyno) string { return r.ID })
	next, changed := apply(plan, applyOps[*Dyno, heroku.Dyno]{
		remove: func(d *Dyno) { c.forget(d.id) },
		update: func(d *Dyno, r heroku.Dyno) bool {
			d.flags = flags{}
			if d.rec == r {
				return false
			}
			d.rec = r
			c.touch(d)
			return true
		},
		create: func(r heroku.Dyno) *Dyno {
			d := &Dyno{id: dynoID(r.ID), parent: a.dynoBranch.id, rec: r}
			c.index[d.id] = d
			c.touch(d)
			return d
		},
	})
	a.dynos = next
	if changed {
		c.touch(a)
	}
	c.recordPlan(heroku.Dynos, len(plan.Add), len(plan.Update), len(plan.Remove))
}

func (c *Cache) reconcileAddons(a *App, records []heroku.Addon) {
	plan := Diff(a.addons, records, (*Addon).RemoteID, func(r heroku.Addon) string { return r.ID })
	next, changed := apply(plan, applyOps[*Addon, heroku.Addon]{
		remove: func(ad *Addon) { c.forget(ad.id) },
		update: func(ad *Addon, r heroku.Addon) bool {
			ad.flags = flags{}
			if addonEqual(ad.rec, r) {
				return false
			}
			ad.rec = r
			c.touch(ad)
			return true
		},
		create: func(r heroku.Addon) *Addon {
			ad := &Addon{id: addonID(r.ID), parent: a.addonBranch.id, rec: r}
			c.index[ad.id] = ad
			c.touch(ad)
			return ad
		},
	})
	a.addons = next
	if changed {
		c.touch(a)
	}
	c.recordPlan(heroku.Addons, len(plan.Add), len(plan.Update), len(plan.Remove))
}

func addonEqual(a, b heroku.Addon) bool {
	return a.ID == b.ID && a.Name == b.Name && a.State == b.State &&
		a.Service == b.Service && a.Plan == b.Plan &&
		slices.Equal(a.ConfigVars, b.ConfigVars)
}

func appEqual(a, b heroku.App) bool {
	return a.ID == b.ID && a.Name == b.Name && a.WebURL == b.WebURL &&
		a.GitURL == b.GitURL && a.CreatedAt.Equal(b.CreatedAt)
}

func (c *Cache) recordPlan(coll heroku.Collection, added, updated, removed int) {
	c.metrics.RecordReconcile(string(coll), metrics.OpAdd, added)
	c.metrics.RecordReconcile(string(coll), metrics.OpUpdate, updated)
	c.metrics.RecordReconcile(string(coll), metrics.OpRemove, removed)
}

// rebuildRoots re-lists apps and pipelines and re-derives which apps are standalone.
// Apps are claimed by pipelines in pipeline listing order, then coupling order; the
// first claim wins. Nothing is committed unless every listing arrived.
func (c *Cache) rebuildRoots(ctx context.Context) error {
	defer c.metrics.ObserveRefresh("roots", time.Now())

	var (
		apps      []heroku.App
		pipelines []heroku.Pipeline
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		apps, err = c.client.ListApps(gctx)
		c.metrics.RecordFetch(string(heroku.Apps), err)
		return err
	})
	g.Go(func() (err error) {
		pipelines, err = c.client.ListPipelines(gctx)
		c.metrics.RecordFetch(string(heroku.Pipelines), err)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.rootsFailed(err)
	}

	couplings := make([][]heroku.Coupling, len(pipelines))
	g, gctx = errgroup.WithContext(ctx)
	for i, p := range pipelines {
		g.Go(func() (err error) {
			couplings[i], err = c.client.ListCouplings(gctx, p.ID)
			c.metrics.RecordFetch(string(heroku.Couplings), err)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return c.rootsFailed(err)
	}

	pool := newAppPool(c.reconcileApps(apps))
	var roots []Node
	for i, p := range c.reconcilePipelines(pipelines) {
		c.claim(p, couplings[i], pool)
		c.clean(p)
		roots = append(roots, p)
	}
	for _, a := range pool.remaining() {
		a.parent = ""
		roots = append(roots, a)
	}
	c.setRoots(roots)
	c.rootsBuilt, c.rootsStale = true, false
	c.notify(nil, nil)
	return nil
}

func (c *Cache) rootsFailed(err error) error {
	c.log.Warn("root listing failed", "error", err)
	err = fmt.Errorf("list roots: %w", err)
	c.notify(nil, err)
	return err
}

// reconcileApps aligns every cached app with the listing and returns the app nodes in
// listing order.
func (c *Cache) reconcileApps(records []heroku.App) []*App {
	plan := Diff(c.apps(), records, (*App).RemoteID, func(r heroku.App) string { return r.ID })
	apply(plan, applyOps[*App, heroku.App]{
		remove: c.forgetApp,
		update: c.updateApp,
		create: c.newApp,
	})
	c.recordPlan(heroku.Apps, len(plan.Add), len(plan.Update), len(plan.Remove))

	out := make([]*App, 0, len(records))
	for _, r := range records {
		out = append(out, c.index[appID(r.ID)].(*App))
	}
	return out
}

func (c *Cache) newApp(rec heroku.App) *App {
	a := &App{id: appID(rec.ID), rec: rec, flags: flags{stale: true, dirty: true}}
	a.dynoBranch = &Branch{id: dynoBranchID(rec.ID), owner: a.id, kind: KindDynoBranch, label: "Dynos"}
	a.addonBranch = &Branch{id: addonBranchID(rec.ID), owner: a.id, kind: KindAddonBranch, label: "Add-ons"}
	c.index[a.id] = a
	c.index[a.dynoBranch.id] = a.dynoBranch
	c.index[a.addonBranch.id] = a.addonBranch
	c.touch(a)
	return a
}

func (c *Cache) updateApp(a *App, rec heroku.App) bool {
	if appEqual(a.rec, rec) {
		return false
	}
	a.rec = rec
	c.touch(a)
	return true
}

func (c *Cache) forgetApp(a *App) {
	for _, d := range a.dynos {
		c.forget(d.id)
	}
	for _, ad := range a.addons {
		c.forget(ad.id)
	}
	c.forget(a.dynoBranch.id)
	c.forget(a.addonBranch.id)
	c.forget(a.id)
}

// reconcilePipelines aligns every cached pipeline with the listing and returns the
// pipeline nodes in listing order.
func (c *Cache) reconcilePipelines(records []heroku.Pipeline) []*Pipeline {
	plan := Diff(c.pipelines(), records, (*Pipeline).RemoteID, func(r heroku.Pipeline) string { return r.ID })
	apply(plan, applyOps[*Pipeline, heroku.Pipeline]{
		remove: c.forgetPipeline,
		update: c.updatePipeline,
		create: c.newPipeline,
	})
	c.recordPlan(heroku.Pipelines, len(plan.Add), len(plan.Update), len(plan.Remove))

	out := make([]*Pipeline, 0, len(records))
	for _, r := range records {
		out = append(out, c.index[pipelineID(r.ID)].(*Pipeline))
	}
	return out
}

func (c *Cache) newPipeline(rec heroku.Pipeline) *Pipeline {
	p := &Pipeline{
		id:     pipelineID(rec.ID),
		rec:    rec,
		flags:  flags{stale: true, dirty: true},
		stages: make(map[StageName]*Stage),
	}
	c.index[p.id] = p
	c.touch(p)
	return p
}

// updatePipeline re-keys the stages when the pipeline is renamed.
func (c *Cache) updatePipeline(p *Pipeline, rec heroku.Pipeline) bool {
	if p.rec == rec {
		return false
	}
	renamed := p.rec.Name != rec.Name
	p.rec = rec
	if renamed {
		for name, s := range p.stages {
			c.forget(s.id)
			s.id = stageID(rec.Name, name)
			c.index[s.id] = s
			for _, a := range s.apps {
				a.parent = s.id
			}
		}
	}
	c.touch(p)
	return true
}

func (c *Cache) forgetPipeline(p *Pipeline) {
	for name, s := range p.stages {
		c.forget(s.id)
		s.apps = nil
		delete(p.stages, name)
	}
	c.forget(p.id)
}

// refreshPipeline re-fetches the couplings of one pipeline. The pipeline may claim its
// own apps and standalone roots; apps it no longer claims become standalone roots.
func (c *Cache) refreshPipeline(ctx context.Context, p *Pipeline) error {
	defer c.metrics.ObserveRefresh("pipeline", time.Now())

	couplings, err := c.client.ListCouplings(ctx, p.RemoteID())
	c.metrics.RecordFetch(string(heroku.Couplings), err)
	if err != nil {
		c.log.Warn("pipeline refresh failed", "pipeline", p.Name(), "error", err)
		err = fmt.Errorf("refresh pipeline %s: %w", p.Name(), err)
		c.notify(p, err)
		return err
	}

	pool := newAppPool(append(p.Apps(), c.rootApps()...))
	c.claim(p, couplings, pool)

	var roots []Node
	for _, n := range c.roots {
		if _, ok := n.(*Pipeline); ok {
			roots = append(roots, n)
		}
	}
	for _, a := range pool.remaining() {
		a.parent = ""
		roots = append(roots, a)
	}
	rootsChanged := c.setRoots(roots)

	c.clean(p)
	c.notify(p, nil)
	if rootsChanged {
		c.notify(nil, nil)
	}
	return nil
}

// claim assigns pooled apps to p's stages following the couplings.
func (c *Cache) claim(p *Pipeline, couplings []heroku.Coupling, pool *appPool) {
	next := make(map[StageName][]*App)
	for _, cp := range couplings {
		stage, ok := ParseStage(cp.Stage)
		if !ok {
			c.dropCoupling(p, cp, "unknown stage")
			continue
		}
		a := pool.take(cp.App.ID)
		if a == nil {
			c.dropCoupling(p, cp, "app not available")
			continue
		}
		next[stage] = append(next[stage], a)
	}
	c.setStages(p, next)
}

func (c *Cache) dropCoupling(p *Pipeline, cp heroku.Coupling, reason string) {
	c.log.Debug("dropping pipeline coupling",
		"pipeline", p.Name(), "coupling", cp.ID, "app", cp.App.ID, "stage", cp.Stage, "reason", reason)
	c.metrics.RecordReconcile(string(heroku.Couplings), metrics.OpDrop, 1)
}

// setStages replaces the stage membership of p. Empty stages are not kept.
func (c *Cache) setStages(p *Pipeline, next map[StageName][]*App) {
	changed := false
	for _, name := range StageOrder {
		apps := next[name]
		s, ok := p.stages[name]
		if len(apps) == 0 {
			if ok {
				c.forget(s.id)
				s.apps = nil
				delete(p.stages, name)
				changed = true
			}
			continue
		}
		if !ok {
			s = &Stage{id: stageID(p.Name(), name), pipeline: p.id, stage: name}
			p.stages[name] = s
			c.index[s.id] = s
		}
		if !slices.Equal(s.apps, apps) {
			changed = true
		}
		s.apps = apps
		for _, a := range apps {
			a.parent = s.id
		}
	}
	if changed {
		c.touch(p)
	}
}

// appPool holds the apps still available for claiming, in offer order.
type appPool struct {
	order []*App
	free  map[string]*App
}

func newAppPool(apps []*App) *appPool {
	p := &appPool{order: apps, free: make(map[string]*App, len(apps))}
	for _, a := range apps {
		p.free[a.RemoteID()] = a
	}
	return p
}

func (p *appPool) take(remoteID string) *App {
	a, ok := p.free[remoteID]
	if !ok {
		return nil
	}
	delete(p.free, remoteID)
	return a
}

func (p *appPool) remaining() []*App {
	var out []*App
	for _, a := range p.order {
		if p.free[a.RemoteID()] == a {
			out = append(out, a)
		}
	}
	return out
}
