package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confighub/hero-scout/internal/state"
	"github.com/confighub/hero-scout/internal/tree"
	"github.com/confighub/hero-scout/pkg/heroku"
)

func fixture(t *testing.T) (*heroku.Memory, *tree.Cache, *Runner) {
	t.Helper()
	m := heroku.NewMemory()
	m.SetApps(heroku.App{ID: "a1", Name: "shop"})
	m.SetDynos("a1",
		heroku.Dyno{ID: "d1", Name: "web.1", Type: "web", State: "up"},
		heroku.Dyno{ID: "d2", Name: "web.2", Type: "web", State: "up"},
	)
	m.SetFormation("a1", heroku.Formation{ID: "f1", Type: "web", Quantity: 2, Size: "basic"})

	c := tree.New(m)
	ctx := context.Background()
	_, err := c.Children(ctx, nil)
	require.NoError(t, err)
	app, ok := c.App("shop")
	require.True(t, ok)
	require.NoError(t, c.Refresh(ctx, app))
	return m, c, NewRunner(DefaultRegistry(m), c, nil)
}

func dynoStates(t *testing.T, c *tree.Cache, appName string) map[string]state.State {
	t.Helper()
	app, ok := c.App(appName)
	require.True(t, ok)
	out := make(map[string]state.State)
	for _, d := range app.Dynos() {
		out[d.Name()] = d.State()
	}
	return out
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry(heroku.NewMemory())
	assert.Equal(t, []ActionType{CreateApp, CreateDyno, DeleteApp, RestartDyno, ScaleFormation, StopDyno}, reg.Types())

	e, ok := reg.Get(StopDyno)
	require.True(t, ok)
	assert.Equal(t, StopDyno, e.Type())
}

func TestValidation(t *testing.T) {
	reg := DefaultRegistry(heroku.NewMemory())

	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"create app", Request{Type: CreateApp, Name: "my-app-1"}, true},
		{"create app without name", Request{Type: CreateApp}, false},
		{"create app bad name", Request{Type: CreateApp, Name: "My_App"}, false},
		{"create app trailing dash", Request{Type: CreateApp, Name: "app-"}, false},
		{"create app too long", Request{Type: CreateApp, Name: "a234567890123456789012345678901"}, false},
		{"delete app", Request{Type: DeleteApp, App: "shop"}, true},
		{"delete without app", Request{Type: DeleteApp}, false},
		{"create dyno", Request{Type: CreateDyno, App: "shop", Command: "rake db:migrate"}, true},
		{"create dyno blank command", Request{Type: CreateDyno, App: "shop", Command: "  "}, false},
		{"restart all", Request{Type: RestartDyno, App: "shop"}, true},
		{"restart without app", Request{Type: RestartDyno}, false},
		{"stop without dyno", Request{Type: StopDyno, App: "shop"}, false},
		{"scale to zero", Request{Type: ScaleFormation, App: "shop", FormationType: "web", Quantity: 0}, true},
		{"scale negative", Request{Type: ScaleFormation, App: "shop", FormationType: "web", Quantity: -1}, false},
		{"scale without type", Request{Type: ScaleFormation, App: "shop", Quantity: 1}, false},
		{"unknown action", Request{Type: "destroy-everything"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := reg.ExecutorFor(&req)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestStopRefreshesTree(t *testing.T) {
	_, c, r := fixture(t)
	ctx := context.Background()
	assert.Equal(t, state.Up, dynoStates(t, c, "shop")["web.1"])

	res, err := r.Run(ctx, &Request{Type: StopDyno, App: "shop", Dyno: "web.1"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NoError(t, res.RefreshErr)
	assert.Equal(t, state.Down, dynoStates(t, c, "shop")["web.1"])
	assert.Equal(t, state.Up, dynoStates(t, c, "shop")["web.2"])
}

func TestRestartAll(t *testing.T) {
	m, c, r := fixture(t)
	ctx := context.Background()

	_, err := r.Run(ctx, &Request{Type: RestartDyno, App: "shop"}, nil)
	require.NoError(t, err)
	for _, d := range m.Dynos("a1") {
		assert.Equal(t, "starting", d.State)
	}
	assert.Equal(t, state.Starting, dynoStates(t, c, "shop")["web.2"])
}

func TestCreateDynoAppearsInTree(t *testing.T) {
	_, c, r := fixture(t)

	res, err := r.Run(context.Background(), &Request{Type: CreateDyno, App: "shop", Command: "bash"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Dyno)
	assert.Contains(t, dynoStates(t, c, "shop"), res.Dyno.Name)
}

func TestScaleChecksProcessType(t *testing.T) {
	m, _, r := fixture(t)
	ctx := context.Background()

	res, err := r.Run(ctx, &Request{Type: ScaleFormation, App: "shop", FormationType: "web", Quantity: 5}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Formation)
	assert.Equal(t, 5, res.Formation.Quantity)

	calls := m.Calls(heroku.Formations)
	_, err = r.Run(ctx, &Request{Type: ScaleFormation, App: "shop", FormationType: "worker", Quantity: 1}, nil)
	require.Error(t, err)
	assert.Equal(t, 404, heroku.StatusCode(err))
	assert.Equal(t, calls+1, m.Calls(heroku.Formations), "only the listing was called")
}

func TestCreateAppInsertsRoot(t *testing.T) {
	m, c, r := fixture(t)
	ctx := context.Background()
	lists := m.Calls(heroku.Apps)

	res, err := r.Run(ctx, &Request{Type: CreateApp, Name: "blog"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.App)

	app, ok := c.App("blog")
	require.True(t, ok)
	assert.True(t, c.Dirty(app))
	assert.Equal(t, lists+1, m.Calls(heroku.Apps), "create call only, no re-listing")
}

func TestDeleteAppRemovesFromTree(t *testing.T) {
	m, c, r := fixture(t)
	ctx := context.Background()
	lists := m.Calls(heroku.Apps)

	res, err := r.Run(ctx, &Request{Type: DeleteApp, App: "shop"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Deleted app shop", res.Message)

	_, ok := c.App("shop")
	assert.False(t, ok)
	assert.Equal(t, lists+1, m.Calls(heroku.Apps), "delete call only, no re-listing")

	roots, err := c.Children(ctx, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, tree.KindCreateApp, roots[0].Kind())

	_, err = r.Run(ctx, &Request{Type: DeleteApp, App: "shop"}, nil)
	assert.Equal(t, 404, heroku.StatusCode(err))
}

func TestDryRunTouchesNothing(t *testing.T) {
	m, _, r := fixture(t)
	before := m.Calls(heroku.Dynos)

	res, err := r.Run(context.Background(), &Request{Type: RestartDyno, App: "shop"}, &ExecuteOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "[dry-run] Restart all dynos of shop", res.Message)
	assert.Equal(t, before, m.Calls(heroku.Dynos))
}

func TestRunFailure(t *testing.T) {
	m, _, r := fixture(t)
	boom := errors.New("boom")
	m.FailNext(heroku.Dynos, boom)

	_, err := r.Run(context.Background(), &Request{Type: StopDyno, App: "shop", Dyno: "web.1"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stop-dyno")
}

func TestRunWithoutTree(t *testing.T) {
	m := heroku.NewMemory()
	m.SetApps(heroku.App{ID: "a1", Name: "shop"})
	m.SetDynos("a1", heroku.Dyno{ID: "d1", Name: "web.1", State: "up"})
	r := NewRunner(DefaultRegistry(m), nil, nil)

	_, err := r.Run(context.Background(), &Request{Type: StopDyno, App: "shop", Dyno: "web.1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "down", m.Dynos("a1")[0].State)
}

func TestPlanRisk(t *testing.T) {
	_, _, r := fixture(t)

	plan, err := r.Plan(&Request{Type: ScaleFormation, App: "shop", FormationType: "web", Quantity: 0})
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, plan.RiskLevel)

	plan, err = r.Plan(&Request{Type: RestartDyno, App: "shop", Dyno: "web.1"})
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, plan.RiskLevel)

	plan, err = r.Plan(&Request{Type: DeleteApp, App: "shop"})
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, plan.RiskLevel)
	assert.False(t, plan.Reversible)
}
