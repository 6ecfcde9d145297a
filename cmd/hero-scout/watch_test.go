// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confighub/hero-scout/internal/tree"
	"github.com/confighub/hero-scout/pkg/heroku"
)

func testWatchModel(t *testing.T) *watchModel {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m := newWatchModel(ctx, tree.New(demoAccount()), 2*time.Second)
	t.Cleanup(m.close)
	return m
}

func loaded(t *testing.T, m *watchModel) {
	t.Helper()
	msg := m.load()()
	_, _ = m.Update(msg)
	require.True(t, m.initialized)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWatchModelNavigation(t *testing.T) {
	m := testWatchModel(t)
	loaded(t, m)
	require.NotEmpty(t, m.rows)
	assert.Equal(t, "api", m.rows[0].node.Label)

	m.Update(runes("k"))
	assert.Equal(t, 0, m.cursor, "cursor stops at the top")

	m.Update(runes("j"))
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m.cursor)
	assert.Equal(t, 1, m.rows[1].depth)

	for range len(m.rows) + 5 {
		m.Update(runes("j"))
	}
	assert.Equal(t, len(m.rows)-1, m.cursor, "cursor stops at the bottom")
	assert.Equal(t, "Create application", m.rows[m.cursor].node.Label)
}

func TestWatchModelKeepsSelectionAcrossReloads(t *testing.T) {
	m := testWatchModel(t)
	loaded(t, m)

	for i, r := range m.rows {
		if r.node.Label == "marketing-site" {
			m.cursor = i
		}
	}
	selected := m.rows[m.cursor].node.ID

	// A new app sorts ahead of the selection and shifts every row below it.
	m.cache.AddApplication(heroku.App{ID: "app-aaa", Name: "aaa-first"})
	loaded(t, m)
	assert.Equal(t, selected, m.rows[m.cursor].node.ID)
}

func TestWatchModelRefreshSelected(t *testing.T) {
	m := testWatchModel(t)
	loaded(t, m)

	_, cmd := m.Update(runes("r"))
	require.NotNil(t, cmd)
	assert.True(t, m.loading)
	assert.Contains(t, m.status, "Refreshing api")

	msg := cmd()
	done, ok := msg.(refreshDoneMsg)
	require.True(t, ok)
	assert.NoError(t, done.err)

	_, cmd = m.Update(done)
	assert.Equal(t, "Refreshed api", m.status)
	assert.NotNil(t, cmd, "a reload follows the refresh")
}

func TestWatchModelReloadsAfterCommitDuringWalk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	account := demoAccount()
	m := newWatchModel(ctx, tree.New(account), 2*time.Second)
	t.Cleanup(m.close)
	loaded(t, m)
	require.False(t, m.missed.Load())

	// A failed poll while walking is dropped.
	m.walking.Store(true)
	account.FailNext(heroku.Dynos, errors.New("boom"))
	app, ok := m.cache.App("marketing-site")
	require.True(t, ok)
	require.Error(t, m.cache.Refresh(ctx, app))
	m.walking.Store(false)
	_, cmd := m.Update(rowsMsg{rows: m.rows})
	assert.Nil(t, cmd)

	// A successful one schedules exactly one more walk.
	m.walking.Store(true)
	account.SetDynos("app-site", heroku.Dyno{ID: "dyno-site-web1", Name: "web.1", Type: "web", State: "crashed"})
	require.NoError(t, m.cache.Refresh(ctx, app))
	m.walking.Store(false)
	_, cmd = m.Update(rowsMsg{rows: m.rows})
	require.NotNil(t, cmd)
	assert.True(t, m.loading)

	msg, ok := cmd().(rowsMsg)
	require.True(t, ok)
	_, cmd = m.Update(msg)
	assert.Nil(t, cmd)
	for _, r := range m.rows {
		if r.node.Label == "marketing-site" {
			assert.Equal(t, "crashed", r.node.State)
		}
	}
}

func TestWatchModelIntervalChange(t *testing.T) {
	m := testWatchModel(t)
	loaded(t, m)

	m.Update(intervalMsg(30 * time.Second))
	view := m.View()
	assert.Contains(t, view, "polling every 30s")
	assert.Contains(t, view, "Polling every 30s")
}

func TestWatchModelView(t *testing.T) {
	m := testWatchModel(t)
	assert.Contains(t, m.View(), "Loading resources...")

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 60})
	loaded(t, m)
	view := m.View()
	assert.Contains(t, view, "polling every 2s")
	assert.Contains(t, view, "marketing-site")
	assert.Contains(t, view, "q quit")
}

func TestWatchTUI(t *testing.T) {
	m := testWatchModel(t)
	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(120, 40))

	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("marketing-site"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(runes("j"))
	tm.Send(runes("R"))
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return bytes.Contains(bts, []byte("Refreshed everything"))
	}, teatest.WithDuration(3*time.Second))

	tm.Send(runes("q"))
	final, ok := tm.FinalModel(t, teatest.WithFinalTimeout(3*time.Second)).(*watchModel)
	require.True(t, ok)
	assert.True(t, final.quitting)
	assert.Equal(t, 1, final.cursor)
}
