// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeNode struct {
	key   string
	value string
}

type fakeRecord struct {
	key   string
	value string
}

func nodeKey(n *fakeNode) string    { return n.key }
func recordKey(r fakeRecord) string { return r.key }

func recs(keys ...string) []fakeRecord {
	out := make([]fakeRecord, len(keys))
	for i, k := range keys {
		out[i] = fakeRecord{key: k, value: "v-" + k}
	}
	return out
}

func TestDiff(t *testing.T) {
	a, b, c := &fakeNode{key: "a"}, &fakeNode{key: "b"}, &fakeNode{key: "c"}

	tests := []struct {
		name       string
		cached     []*fakeNode
		remote     []fakeRecord
		wantRemove []*fakeNode
		wantUpdate []string
		wantAdd    []string
	}{
		{
			name:   "empty both",
			cached: nil,
			remote: nil,
		},
		{
			name:    "all new",
			remote:  recs("x", "y"),
			wantAdd: []string{"x", "y"},
		},
		{
			name:       "all gone",
			cached:     []*fakeNode{a, b},
			wantRemove: []*fakeNode{a, b},
		},
		{
			name:       "mixed keeps cached order for updates",
			cached:     []*fakeNode{a, b, c},
			remote:     recs("d", "c", "a"),
			wantRemove: []*fakeNode{b},
			wantUpdate: []string{"a", "c"},
			wantAdd:    []string{"d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Diff(tt.cached, tt.remote, nodeKey, recordKey)

			assert.Equal(t, tt.wantRemove, plan.Remove)

			var updated []string
			for _, m := range plan.Update {
				assert.Equal(t, m.Node.key, m.Record.key)
				updated = append(updated, m.Node.key)
			}
			assert.Equal(t, tt.wantUpdate, updated)

			var added []string
			for _, r := range plan.Add {
				added = append(added, r.key)
			}
			assert.Equal(t, tt.wantAdd, added)
		})
	}
}

func TestDiffPanicsOnDuplicates(t *testing.T) {
	assert.Panics(t, func() {
		Diff(nil, recs("a", "a"), nodeKey, recordKey)
	})
	assert.Panics(t, func() {
		Diff([]*fakeNode{{key: "a"}, {key: "a"}}, nil, nodeKey, recordKey)
	})
}

func TestApplyOrderAndChange(t *testing.T) {
	a, b := &fakeNode{key: "a", value: "v-a"}, &fakeNode{key: "b", value: "old"}
	plan := Diff([]*fakeNode{a, b}, recs("b", "c"), nodeKey, recordKey)

	var log []string
	next, changed := apply(plan, applyOps[*fakeNode, fakeRecord]{
		remove: func(n *fakeNode) { log = append(log, "remove "+n.key) },
		update: func(n *fakeNode, r fakeRecord) bool {
			log = append(log, "update "+n.key)
			if n.value == r.value {
				return false
			}
			n.value = r.value
			return true
		},
		create: func(r fakeRecord) *fakeNode {
			log = append(log, "add "+r.key)
			return &fakeNode{key: r.key, value: r.value}
		},
	})

	assert.True(t, changed)
	assert.Equal(t, []string{"remove a", "update b", "add c"}, log)
	assert.Len(t, next, 2)
	assert.Same(t, b, next[0], "matched nodes keep their identity")
	assert.Equal(t, "v-b", b.value)
	assert.Equal(t, "c", next[1].key)
}

func TestApplyNoChange(t *testing.T) {
	a := &fakeNode{key: "a", value: "v-a"}
	plan := Diff([]*fakeNode{a}, recs("a"), nodeKey, recordKey)
	_, changed := apply(plan, applyOps[*fakeNode, fakeRecord]{
		remove: func(*fakeNode) {},
		update: func(n *fakeNode, r fakeRecord) bool { return n.value != r.value },
		create: func(r fakeRecord) *fakeNode { return nil },
	})
	assert.False(t, changed)
}
