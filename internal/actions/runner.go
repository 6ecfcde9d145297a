package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/confighub/hero-scout/internal/tree"
	"github.com/confighub/hero-scout/pkg/heroku"
)

// Tree is the part of the resource cache an action touches after it ran.
type Tree interface {
	AddApplication(rec heroku.App) *tree.App
	RemoveApplication(idOrName string) bool
	App(idOrName string) (*tree.App, bool)
	Refresh(ctx context.Context, n tree.Node) error
}

// Runner validates, executes and follows up on actions.
type Runner struct {
	registry *Registry
	tree     Tree
	log      *slog.Logger
}

// NewRunner creates a runner. t may be nil when no tree is loaded.
func NewRunner(registry *Registry, t Tree, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Runner{registry: registry, tree: t, log: log}
}

// Plan validates req and describes it without running it.
func (r *Runner) Plan(req *Request) (*Plan, error) {
	e, err := r.registry.ExecutorFor(req)
	if err != nil {
		return nil, err
	}
	return e.Plan(req), nil
}

// Run executes req. A created app is inserted into the tree and a deleted one removed
// from it; any other action refreshes the subtree of the app it touched.
func (r *Runner) Run(ctx context.Context, req *Request, opts *ExecuteOptions) (*Result, error) {
	if opts == nil {
		opts = DefaultExecuteOptions()
	}
	e, err := r.registry.ExecutorFor(req)
	if err != nil {
		return nil, err
	}

	if opts.DryRun {
		return &Result{Success: true, Message: "[dry-run] " + e.Plan(req).Description}, nil
	}

	execCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	res, err := e.Execute(execCtx, req)
	if err != nil {
		r.log.Warn("action failed", "action", req.Type, "app", req.App, "error", err)
		return nil, fmt.Errorf("%s: %w", req.Type, err)
	}
	r.log.Info("action done", "action", req.Type, "app", req.App, "message", res.Message)

	r.followUp(ctx, req, res)
	return res, nil
}

func (r *Runner) followUp(ctx context.Context, req *Request, res *Result) {
	if r.tree == nil {
		return
	}
	if req.Type == CreateApp && res.App != nil {
		r.tree.AddApplication(*res.App)
		return
	}
	if req.Type == DeleteApp {
		r.tree.RemoveApplication(req.App)
		return
	}

	app, ok := r.tree.App(req.App)
	if !ok {
		return
	}
	if err := r.tree.Refresh(ctx, app); err != nil {
		r.log.Warn("refresh after action failed", "action", req.Type, "app", req.App, "error", err)
		res.RefreshErr = err
	}
}
