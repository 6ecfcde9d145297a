package actions

import (
	"context"
	"fmt"
	"net/http"

	"github.com/confighub/hero-scout/pkg/heroku"
)

// ScaleExecutor changes the quantity of one process type
type ScaleExecutor struct {
	api heroku.API
}

// NewScaleExecutor creates a new scale executor
func NewScaleExecutor(api heroku.API) *ScaleExecutor {
	return &ScaleExecutor{api: api}
}

// Type returns ScaleFormation
func (e *ScaleExecutor) Type() ActionType {
	return ScaleFormation
}

// Validate requires an app, a process type and a non-negative quantity
func (e *ScaleExecutor) Validate(req *Request) error {
	if err := requireApp(req); err != nil {
		return err
	}
	if req.FormationType == "" {
		return fmt.Errorf("%w: process type is required", ErrInvalidRequest)
	}
	if req.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative, got %d", ErrInvalidRequest, req.Quantity)
	}
	return nil
}

// Plan describes the scaling
func (e *ScaleExecutor) Plan(req *Request) *Plan {
	risk := RiskMedium
	if req.Quantity == 0 {
		risk = RiskHigh
	}
	return &Plan{
		Request:     req,
		Description: fmt.Sprintf("Scale %s on %s to %d", req.FormationType, req.App, req.Quantity),
		Reversible:  true,
		RiskLevel:   risk,
	}
}

// Execute checks the process type exists, then scales it
func (e *ScaleExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	formation, err := e.api.ListFormation(ctx, req.App)
	if err != nil {
		return nil, err
	}
	found := false
	for _, f := range formation {
		if f.Type == req.FormationType {
			found = true
			break
		}
	}
	if !found {
		return nil, &heroku.APIError{
			StatusCode: http.StatusNotFound,
			ID:         "not_found",
			Message:    fmt.Sprintf("process type %s not found on %s", req.FormationType, req.App),
		}
	}

	f, err := e.api.ScaleFormation(ctx, req.App, req.FormationType, req.Quantity)
	if err != nil {
		return nil, err
	}
	return &Result{
		Success:   true,
		Message:   fmt.Sprintf("Scaled %s on %s to %d", f.Type, req.App, f.Quantity),
		Formation: &f,
	}, nil
}
