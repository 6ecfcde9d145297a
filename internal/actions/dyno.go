package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/confighub/hero-scout/pkg/heroku"
)

func requireApp(req *Request) error {
	if req.App == "" {
		return fmt.Errorf("%w: app is required", ErrInvalidRequest)
	}
	return nil
}

// CreateDynoExecutor starts a one-off dyno running a command
type CreateDynoExecutor struct {
	api heroku.API
}

// NewCreateDynoExecutor creates a new create-dyno executor
func NewCreateDynoExecutor(api heroku.API) *CreateDynoExecutor {
	return &CreateDynoExecutor{api: api}
}

// Type returns CreateDyno
func (e *CreateDynoExecutor) Type() ActionType {
	return CreateDyno
}

// Validate requires an app and a non-blank command
func (e *CreateDynoExecutor) Validate(req *Request) error {
	if err := requireApp(req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Command) == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidRequest)
	}
	return nil
}

// Plan describes the one-off dyno
func (e *CreateDynoExecutor) Plan(req *Request) *Plan {
	return &Plan{
		Request:     req,
		Description: fmt.Sprintf("Run %q on %s", req.Command, req.App),
		Reversible:  true,
		RiskLevel:   RiskLow,
	}
}

// Execute starts the dyno
func (e *CreateDynoExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	dyno, err := e.api.CreateDyno(ctx, req.App, req.Command)
	if err != nil {
		return nil, err
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Started %s on %s", dyno.Name, req.App),
		Dyno:    &dyno,
	}, nil
}

// RestartExecutor restarts one dyno, or all dynos of an app
type RestartExecutor struct {
	api heroku.API
}

// NewRestartExecutor creates a new restart executor
func NewRestartExecutor(api heroku.API) *RestartExecutor {
	return &RestartExecutor{api: api}
}

// Type returns RestartDyno
func (e *RestartExecutor) Type() ActionType {
	return RestartDyno
}

// Validate requires an app
func (e *RestartExecutor) Validate(req *Request) error {
	return requireApp(req)
}

// Plan describes the restart
func (e *RestartExecutor) Plan(req *Request) *Plan {
	if req.Dyno == "" {
		return &Plan{
			Request:     req,
			Description: fmt.Sprintf("Restart all dynos of %s", req.App),
			Reversible:  false,
			RiskLevel:   RiskHigh,
		}
	}
	return &Plan{
		Request:     req,
		Description: fmt.Sprintf("Restart %s on %s", req.Dyno, req.App),
		Reversible:  false,
		RiskLevel:   RiskMedium,
	}
}

// Execute restarts the dyno(s)
func (e *RestartExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	if req.Dyno == "" {
		if err := e.api.RestartAllDynos(ctx, req.App); err != nil {
			return nil, err
		}
		return &Result{Success: true, Message: fmt.Sprintf("Restarted all dynos of %s", req.App)}, nil
	}
	if err := e.api.RestartDyno(ctx, req.App, req.Dyno); err != nil {
		return nil, err
	}
	return &Result{Success: true, Message: fmt.Sprintf("Restarted %s on %s", req.Dyno, req.App)}, nil
}

// StopExecutor stops a single dyno
type StopExecutor struct {
	api heroku.API
}

// NewStopExecutor creates a new stop executor
func NewStopExecutor(api heroku.API) *StopExecutor {
	return &StopExecutor{api: api}
}

// Type returns StopDyno
func (e *StopExecutor) Type() ActionType {
	return StopDyno
}

// Validate requires an app and a dyno
func (e *StopExecutor) Validate(req *Request) error {
	if err := requireApp(req); err != nil {
		return err
	}
	if req.Dyno == "" {
		return fmt.Errorf("%w: dyno is required", ErrInvalidRequest)
	}
	return nil
}

// Plan describes the stop
func (e *StopExecutor) Plan(req *Request) *Plan {
	return &Plan{
		Request:     req,
		Description: fmt.Sprintf("Stop %s on %s", req.Dyno, req.App),
		Reversible:  false,
		RiskLevel:   RiskMedium,
	}
}

// Execute stops the dyno
func (e *StopExecutor) Execute(ctx context.Context, req *Request) (*Result, error) {
	if err := e.api.StopDyno(ctx, req.App, req.Dyno); err != nil {
		return nil, err
	}
	return &Result{Success: true, Message: fmt.Sprintf("Stopped %s on %s", req.Dyno, req.App)}, nil
}
