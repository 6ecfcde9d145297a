// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package tree

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Match pairs a cached node with the remote record that has its identity.
type Match[N, R any] struct {
	Node   N
	Record R
}

// Plan is the outcome of diffing cached children against a remote collection.
// Update preserves the cached order; Add preserves the remote order.
type Plan[N, R any] struct {
	Remove []N
	Update []Match[N, R]
	Add    []R
}

// Diff aligns cached nodes with remote records by identity.
// Every remote record is matched to at most one cached node. Duplicate identities
// within either side are a bug upstream and panic.
func Diff[N, R any](cached []N, remote []R, nodeKey func(N) string, recordKey func(R) string) Plan[N, R] {
	byKey := make(map[string]int, len(remote))
	for i, r := range remote {
		k := recordKey(r)
		if _, dup := byKey[k]; dup {
			panic(fmt.Sprintf("tree: duplicate remote identity %q", k))
		}
		byKey[k] = i
	}

	var plan Plan[N, R]
	seen := sets.New[string]()
	consumed := sets.New[string]()
	for _, n := range cached {
		k := nodeKey(n)
		if seen.Has(k) {
			panic(fmt.Sprintf("tree: duplicate cached identity %q", k))
		}
		seen.Insert(k)

		if i, ok := byKey[k]; ok {
			consumed.Insert(k)
			plan.Update = append(plan.Update, Match[N, R]{Node: n, Record: remote[i]})
			continue
		}
		plan.Remove = append(plan.Remove, n)
	}

	for _, r := range remote {
		if !consumed.Has(recordKey(r)) {
			plan.Add = append(plan.Add, r)
		}
	}
	return plan
}

// applyOps are the per-collection callbacks used by apply.
type applyOps[N, R any] struct {
	remove func(N)
	// update refreshes a node in place and reports whether anything changed.
	update func(N, R) bool
	create func(R) N
}

// apply commits a plan: removals, then in-place updates, then additions.
// It returns the new child slice and whether anything changed.
func apply[N, R any](plan Plan[N, R], ops applyOps[N, R]) ([]N, bool) {
	changed := len(plan.Remove) > 0 || len(plan.Add) > 0
	for _, n := range plan.Remove {
		ops.remove(n)
	}

	next := make([]N, 0, len(plan.Update)+len(plan.Add))
	for _, m := range plan.Update {
		if ops.update(m.Node, m.Record) {
			changed = true
		}
		next = append(next, m.Node)
	}

	for _, r := range plan.Add {
		next = append(next, ops.create(r))
	}
	return next, changed
}
