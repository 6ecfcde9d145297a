package actions

import (
	"context"
	"fmt"
	"regexp"

	"github.com/confighub/hero-scout/pkg/heroku"
)

// appNamePattern follows the platform's naming rule: lowercase letters, digits and
// dashes, starting with a letter and ending with a letter or digit.
var appNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$`)

const maxAppNameLen = 30

// CreateAppExecutor creates a new application
type CreateAppExecutor struct {
	api heroku.API
}

// NewCreateAppExecutor creates a new create-app executor
func NewCreateAppExecutor(api heroku.API) *CreateAppExecutor {
	return &CreateAppExecutor{api: api}
}

// Type returns CreateApp
func (e *CreateAppExecutor) Type() ActionType {
	return CreateApp
}

// Validate checks the app name
func (e *CreateAppExecutor) Validate(req *Request) error {
	if req.Name == "" {
		return fmt.Errorf("%w: app name is required", ErrInvalidRequest)
	}
	if len(req.Name) > maxAppNameLen || !appNamePattern.MatchString(req.Name) {
		return fmt.Errorf("%w: %q is not a valid app name (lowercase letters, digits and dashes, at most %d characters)",
			ErrInvalidRequest, req.Name, maxAppNameLen)
	}
	return nil
}

// Plan describes the app that would be created
func (e *CreateAppExecutor) Plan(req *Request) *Plan {
	return &Plan{
		Request:     req,
		Description: fmt.Sprintf("Create app %s", req.Name),
		Reversible:  true,
		RiskLevel:   RiskLow,
	}
}

// Execute creates the app
func (e *CreateAppExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	app, err := e.api.CreateApp(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Created app %s", app.Name),
		App:     &app,
	}, nil
}

// DeleteAppExecutor destroys an application
type DeleteAppExecutor struct {
	api heroku.API
}

// NewDeleteAppExecutor creates a new delete-app executor
func NewDeleteAppExecutor(api heroku.API) *DeleteAppExecutor {
	return &DeleteAppExecutor{api: api}
}

// Type returns DeleteApp
func (e *DeleteAppExecutor) Type() ActionType {
	return DeleteApp
}

// Validate requires the app
func (e *DeleteAppExecutor) Validate(req *Request) error {
	return requireApp(req)
}

// Plan describes the deletion
func (e *DeleteAppExecutor) Plan(req *Request) *Plan {
	return &Plan{
		Request:     req,
		Description: fmt.Sprintf("Delete app %s with its dynos and add-ons", req.App),
		Reversible:  false,
		RiskLevel:   RiskHigh,
	}
}

// Execute deletes the app
func (e *DeleteAppExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	if err := e.api.DeleteApp(ctx, req.App); err != nil {
		return nil, err
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Deleted app %s", req.App),
	}, nil
}
