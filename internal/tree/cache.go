// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package tree

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/confighub/hero-scout/internal/metrics"
	"github.com/confighub/hero-scout/pkg/heroku"
)

// ErrUnknownNode is returned for nodes that are no longer part of the cache.
var ErrUnknownNode = errors.New("node is not in the tree")

// Event reports that a subtree was refreshed. A nil Node stands for the root list.
// Err is set when the refresh failed; the subtree then keeps its previous data.
type Event struct {
	Node Node
	Err  error
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for refresh failures and dropped couplings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics records fetches and reconcile operations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithAuthoritativeStage makes one stage alone decide a pipeline's state when it has apps.
func WithAuthoritativeStage(s StageName) Option {
	return func(c *Cache) { c.authoritative = s }
}

// Cache is the in-memory resource tree. All reads and refreshes are serialized by one
// mutex; listeners are called after it is released.
type Cache struct {
	client        heroku.Reader
	log           *slog.Logger
	metrics       *metrics.Metrics
	authoritative StageName

	flight singleflight.Group

	mu         sync.Mutex
	index      map[ID]Node
	roots      []Node
	rootsBuilt bool
	rootsStale bool
	createApp  *Command
	clock      uint64
	items      map[ID]itemMemo
	caser      cases.Caser
	pending    []Event

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// New creates an empty cache. Nothing is fetched until the first Children or Refresh.
func New(client heroku.Reader, opts ...Option) *Cache {
	c := &Cache{
		client:    client,
		log:       slog.New(slog.DiscardHandler),
		index:     make(map[ID]Node),
		createApp: &Command{id: createAppID, label: "Create application"},
		items:     make(map[ID]itemMemo),
		caser:     cases.Title(language.English),
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.index[createAppID] = c.createApp
	return c
}

// Subscribe registers fn for change events. The returned func unregisters it.
func (c *Cache) Subscribe(fn func(Event)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// unlock releases c.mu and then delivers the events queued while it was held.
func (c *Cache) unlock() {
	events := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(events) == 0 {
		return
	}
	c.subMu.Lock()
	keys := make([]int, 0, len(c.subs))
	for k := range c.subs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fns := make([]func(Event), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, c.subs[k])
	}
	c.subMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (c *Cache) notify(n Node, err error) {
	c.pending = append(c.pending, Event{Node: n, Err: err})
}

// Children returns the children of n, fetching whatever is stale first. A nil n asks
// for the roots, which end with the create-application entry. When a refresh fails the
// previously cached children are returned along with the error.
func (c *Cache) Children(ctx context.Context, n Node) ([]Node, error) {
	c.mu.Lock()
	defer c.unlock()

	if n == nil {
		var err error
		if !c.rootsBuilt || c.rootsStale {
			err = c.rebuildRoots(ctx)
		}
		return append(slices.Clone(c.roots), Node(c.createApp)), err
	}
	if err := c.known(n); err != nil {
		return nil, err
	}

	switch v := n.(type) {
	case *App:
		return []Node{v.dynoBranch, v.addonBranch}, nil
	case *Branch:
		a, ok := c.index[v.owner].(*App)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, v.owner)
		}
		err := c.ensureApp(ctx, a)
		if v.kind == KindDynoBranch {
			return nodes(a.dynos), err
		}
		return nodes(a.addons), err
	case *Pipeline:
		err := c.ensurePipeline(ctx, v)
		return nodes(v.Stages()), err
	case *Stage:
		p, ok := c.index[v.pipeline].(*Pipeline)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, v.pipeline)
		}
		err := c.ensurePipeline(ctx, p)
		return nodes(v.apps), err
	}
	return nil, nil
}

// Parent returns the parent of n, or nil for roots and unknown nodes.
func (c *Cache) Parent(n Node) Node {
	c.mu.Lock()
	defer c.unlock()
	if n == nil || n.ParentID() == "" {
		return nil
	}
	return c.index[n.ParentID()]
}

// Lookup finds a cached node by ID.
func (c *Cache) Lookup(id ID) (Node, bool) {
	c.mu.Lock()
	defer c.unlock()
	n, ok := c.index[id]
	return n, ok
}

// App finds a cached app by platform id or name.
func (c *Cache) App(idOrName string) (*App, bool) {
	c.mu.Lock()
	defer c.unlock()
	a := c.findApp(idOrName)
	return a, a != nil
}

func (c *Cache) findApp(idOrName string) *App {
	if a, ok := c.index[appID(idOrName)].(*App); ok {
		return a
	}
	for _, a := range c.apps() {
		if a.Name() == idOrName {
			return a
		}
	}
	return nil
}

// AddApplication inserts a freshly created app as a dirty standalone root without
// re-fetching the root list. A record for a known app updates that node in place.
func (c *Cache) AddApplication(rec heroku.App) *App {
	c.mu.Lock()
	defer c.unlock()

	if a, ok := c.index[appID(rec.ID)].(*App); ok {
		if c.updateApp(a, rec) && a.parent == "" {
			c.setRoots(slices.Clone(c.roots))
		}
		return a
	}
	a := c.newApp(rec)
	c.setRoots(append(slices.Clone(c.roots), Node(a)))
	c.notify(nil, nil)
	return a
}

// RemoveApplication drops a deleted app and its subtree without re-fetching the root
// list. A pipeline that claimed the app loses it from its stage. It reports whether the
// app was cached.
func (c *Cache) RemoveApplication(idOrName string) bool {
	c.mu.Lock()
	defer c.unlock()

	a := c.findApp(idOrName)
	if a == nil {
		return false
	}
	p, claimed := c.parentOf(a).(*Pipeline)
	if claimed {
		next := make(map[StageName][]*App, len(p.stages))
		for name, s := range p.stages {
			next[name] = slices.DeleteFunc(slices.Clone(s.apps), func(x *App) bool { return x == a })
		}
		c.setStages(p, next)
	} else {
		c.setRoots(slices.DeleteFunc(slices.Clone(c.roots), func(n Node) bool { return n == Node(a) }))
	}
	c.forgetApp(a)
	if claimed {
		c.settle(p)
		c.notify(p, nil)
	} else {
		c.notify(nil, nil)
	}
	return true
}

// MarkDirty flags n for re-fetch along with its whole subtree and its ancestors.
func (c *Cache) MarkDirty(n Node) {
	c.mu.Lock()
	defer c.unlock()
	c.markDirty(n)
}

// MarkAllDirty flags the root list and every root for re-fetch.
func (c *Cache) MarkAllDirty() {
	c.mu.Lock()
	defer c.unlock()
	c.markAllDirty()
}

// Dirty reports whether n or anything below it awaits a re-fetch.
// A nil n reports on the root list.
func (c *Cache) Dirty(n Node) bool {
	c.mu.Lock()
	defer c.unlock()
	if n == nil {
		return !c.rootsBuilt || c.rootsStale
	}
	return c.dirty(n)
}

func (c *Cache) known(n Node) error {
	if c.index[n.ID()] != n {
		return fmt.Errorf("%w: %s", ErrUnknownNode, n.ID())
	}
	return nil
}

// owner resolves grouping nodes to the node that carries their data.
func (c *Cache) owner(n Node) Node {
	switch v := n.(type) {
	case *Branch:
		return c.index[v.owner]
	case *Stage:
		return c.index[v.pipeline]
	}
	return n
}

func flagsOf(n Node) *flags {
	switch v := n.(type) {
	case *App:
		return &v.flags
	case *Dyno:
		return &v.flags
	case *Addon:
		return &v.flags
	case *Pipeline:
		return &v.flags
	}
	return nil
}

// parentOf returns the nearest ancestor carrying flags.
func (c *Cache) parentOf(n Node) Node {
	id := n.ParentID()
	if id == "" {
		return nil
	}
	p, ok := c.index[id]
	if !ok {
		return nil
	}
	return c.owner(p)
}

// dependents are the flag-carrying nodes directly below n.
func (c *Cache) dependents(n Node) []Node {
	switch v := n.(type) {
	case *App:
		return append(nodes(v.dynos), nodes(v.addons)...)
	case *Pipeline:
		return nodes(v.Apps())
	}
	return nil
}

func (c *Cache) dirty(n Node) bool {
	n = c.owner(n)
	if n == nil {
		return false
	}
	f := flagsOf(n)
	return f != nil && f.dirty
}

func (c *Cache) markDirty(n Node) {
	if n == nil {
		return
	}
	n = c.owner(n)
	if n == nil {
		return
	}
	f := flagsOf(n)
	if f == nil {
		return
	}
	// A node left stale by a partial refresh can still have clean children.
	if !f.stale {
		f.stale, f.dirty = true, true
		for p := c.parentOf(n); p != nil; p = c.parentOf(p) {
			pf := flagsOf(p)
			if pf.dirty {
				break
			}
			pf.dirty = true
		}
	}
	for _, child := range c.dependents(n) {
		c.markDirty(child)
	}
}

func (c *Cache) markAllDirty() {
	c.rootsStale = true
	for _, r := range c.roots {
		c.markDirty(r)
	}
}

// clean marks n's own data fresh and clears dirty on every ancestor that no longer
// has anything dirty below it.
func (c *Cache) clean(n Node) {
	if f := flagsOf(n); f != nil {
		f.stale = false
	}
	c.settle(n)
}

// settle recomputes dirty from n upwards, stopping at the first node that stays dirty.
func (c *Cache) settle(n Node) {
	for ; n != nil; n = c.parentOf(n) {
		f := flagsOf(n)
		f.dirty = f.stale || c.anyDirty(c.dependents(n))
		if f.dirty {
			return
		}
	}
}

func (c *Cache) anyDirty(ns []Node) bool {
	for _, n := range ns {
		if f := flagsOf(n); f != nil && f.dirty {
			return true
		}
	}
	return false
}

// touch stamps n with a new revision so memoized projections are recomputed.
func (c *Cache) touch(n Node) {
	c.clock++
	switch v := n.(type) {
	case *App:
		v.rev = c.clock
	case *Dyno:
		v.rev = c.clock
	case *Addon:
		v.rev = c.clock
	case *Pipeline:
		v.rev = c.clock
	}
}

func (c *Cache) forget(id ID) {
	delete(c.index, id)
	delete(c.items, id)
}

// apps returns every cached app, ordered by ID.
func (c *Cache) apps() []*App {
	var out []*App
	for _, n := range c.index {
		if a, ok := n.(*App); ok {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b *App) int { return cmp.Compare(a.id, b.id) })
	return out
}

func (c *Cache) pipelines() []*Pipeline {
	var out []*Pipeline
	for _, n := range c.index {
		if p, ok := n.(*Pipeline); ok {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *Pipeline) int { return cmp.Compare(a.id, b.id) })
	return out
}

func (c *Cache) rootApps() []*App {
	var out []*App
	for _, n := range c.roots {
		if a, ok := n.(*App); ok {
			out = append(out, a)
		}
	}
	return out
}

// setRoots sorts roots by display name and reports whether membership or order changed.
func (c *Cache) setRoots(roots []Node) bool {
	slices.SortStableFunc(roots, func(a, b Node) int {
		return cmp.Or(cmp.Compare(a.Name(), b.Name()), cmp.Compare(a.ID(), b.ID()))
	})
	changed := !slices.EqualFunc(c.roots, roots, func(a, b Node) bool { return a.ID() == b.ID() })
	c.roots = roots
	return changed
}

// rootOf walks up to the root ancestor of n.
func (c *Cache) rootOf(n Node) Node {
	cur, ok := c.index[n.ID()]
	if !ok {
		return nil
	}
	for cur.ParentID() != "" {
		p, ok := c.index[cur.ParentID()]
		if !ok {
			return nil
		}
		cur = p
	}
	return cur
}

func nodes[T Node](xs []T) []Node {
	out := make([]Node, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
