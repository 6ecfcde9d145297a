// Package actions runs operator actions against the platform and refreshes the
// affected part of the tree afterwards.
package actions

import (
	"context"
	"errors"
	"time"

	"github.com/confighub/hero-scout/pkg/heroku"
)

// ActionType names an operator action.
type ActionType string

const (
	CreateApp      ActionType = "create-app"
	CreateDyno     ActionType = "create-dyno"
	DeleteApp      ActionType = "delete-app"
	RestartDyno    ActionType = "restart-dyno"
	StopDyno       ActionType = "stop-dyno"
	ScaleFormation ActionType = "scale-formation"
)

// ErrInvalidRequest marks requests rejected before any API call.
var ErrInvalidRequest = errors.New("invalid request")

// Executor executes one type of action
type Executor interface {
	// Type returns the action type this executor handles
	Type() ActionType

	// Validate checks the request before anything is sent
	Validate(req *Request) error

	// Plan describes what Execute would do
	Plan(req *Request) *Plan

	// Execute applies the action
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Request carries the arguments of an action. Which fields matter depends on Type.
type Request struct {
	Type          ActionType
	App           string // app id or name
	Name          string // new app name
	Dyno          string // dyno id or name; empty restarts every dyno
	Command       string
	FormationType string
	Quantity      int
}

// Plan describes an action before it runs
type Plan struct {
	Request     *Request
	Description string
	Reversible  bool
	RiskLevel   RiskLevel
}

// RiskLevel indicates how disruptive an action is
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ExecuteOptions controls execution behavior
type ExecuteOptions struct {
	DryRun  bool          // Show what would be done without doing it
	Timeout time.Duration // Max time for the API call
}

// DefaultExecuteOptions returns sensible defaults
func DefaultExecuteOptions() *ExecuteOptions {
	return &ExecuteOptions{
		Timeout: 30 * time.Second,
	}
}

// Result is the outcome of an action
type Result struct {
	Success   bool
	Message   string
	App       *heroku.App
	Dyno      *heroku.Dyno
	Formation *heroku.Formation

	// RefreshErr is set when the action succeeded but the follow-up refresh did not.
	RefreshErr error
}
