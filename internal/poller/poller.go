// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package poller drives periodic refreshes of dirty subtrees within an API call budget.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// DefaultResyncEvery is how many ticks pass between full resyncs.
const DefaultResyncEvery = 5

// Refresher is the part of the tree cache the poller drives.
type Refresher interface {
	RefreshDirty(ctx context.Context) error
	MarkAllDirty()
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger for failed ticks.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// WithResyncEvery marks the whole tree dirty every n ticks. Zero disables resyncs.
func WithResyncEvery(n int) Option {
	return func(p *Poller) { p.resyncEvery = n }
}

// Poller calls RefreshDirty once per interval, where the interval spreads the
// configured calls per minute evenly.
type Poller struct {
	target      Refresher
	log         *slog.Logger
	resyncEvery int
	ticks       atomic.Int64

	mu       sync.Mutex
	interval time.Duration
	parent   context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// IntervalFor converts a calls-per-minute budget into a tick interval.
func IntervalFor(callsPerMinute int) (time.Duration, error) {
	if callsPerMinute <= 0 {
		return 0, fmt.Errorf("calls per minute must be positive, got %d", callsPerMinute)
	}
	return time.Minute / time.Duration(callsPerMinute), nil
}

// New creates a stopped poller.
func New(target Refresher, callsPerMinute int, opts ...Option) (*Poller, error) {
	interval, err := IntervalFor(callsPerMinute)
	if err != nil {
		return nil, err
	}
	p := &Poller{
		target:      target,
		log:         slog.New(slog.DiscardHandler),
		resyncEvery: DefaultResyncEvery,
		interval:    interval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Interval returns the current tick interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Start runs the loop until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.parent = ctx
	p.startLocked()
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// SetBudget changes the calls-per-minute budget, restarting a running loop.
func (p *Poller) SetBudget(callsPerMinute int) error {
	interval, err := IntervalFor(callsPerMinute)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if interval == p.interval {
		return nil
	}
	p.interval = interval
	if p.cancel != nil {
		p.stopLocked()
		p.startLocked()
	}
	p.log.Info("poll interval changed", "interval", interval)
	return nil
}

func (p *Poller) startLocked() {
	ctx, cancel := context.WithCancel(p.parent)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	interval := p.interval

	go func() {
		defer close(done)
		_ = wait.PollUntilContextCancel(ctx, interval, false, func(ctx context.Context) (bool, error) {
			p.tick(ctx)
			return false, nil
		})
	}()
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel, p.done = nil, nil
}

// tick runs one refresh. Failures are logged and the loop carries on.
func (p *Poller) tick(ctx context.Context) {
	n := p.ticks.Add(1)
	if p.resyncEvery > 0 && n%int64(p.resyncEvery) == 0 {
		p.target.MarkAllDirty()
	}
	if err := p.target.RefreshDirty(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn("poll refresh failed", "error", err)
	}
}
