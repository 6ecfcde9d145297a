package heroku

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFailNextAndCalls(t *testing.T) {
	m := NewMemory()
	m.SetApps(App{ID: "1", Name: "a"})
	boom := errors.New("boom")
	m.FailNext(Dynos, boom)

	ctx := context.Background()
	_, err := m.ListDynos(ctx, "1")
	assert.ErrorIs(t, err, boom)

	_, err = m.ListDynos(ctx, "1")
	assert.NoError(t, err)
	assert.Equal(t, 2, m.Calls(Dynos))
	assert.Equal(t, 0, m.Calls(Addons))
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	m.SetApps(App{ID: "1", Name: "a"})
	m.SetDynos("1", Dyno{ID: "d1", State: "up"})

	dynos, err := m.ListDynos(context.Background(), "1")
	require.NoError(t, err)
	dynos[0].State = "crashed"

	assert.Equal(t, "up", m.Dynos("1")[0].State)
}

func TestMemoryActions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	app, err := m.CreateApp(ctx, "demo")
	require.NoError(t, err)
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, "https://demo.herokuapp.com/", app.WebURL)

	_, err = m.CreateApp(ctx, "demo")
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(err))

	d, err := m.CreateDyno(ctx, "demo", "bash")
	require.NoError(t, err)
	assert.Equal(t, "starting", d.State)

	require.NoError(t, m.StopDyno(ctx, app.ID, d.Name))
	assert.Equal(t, "down", m.Dynos(app.ID)[0].State)

	require.NoError(t, m.RestartAllDynos(ctx, app.ID))
	assert.Equal(t, "starting", m.Dynos(app.ID)[0].State)

	err = m.RestartDyno(ctx, app.ID, "web.9")
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	m.SetFormation(app.ID, Formation{ID: "f1", Type: "web", Quantity: 1})
	f, err := m.ScaleFormation(ctx, app.ID, "web", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Quantity)

	require.NoError(t, m.DeleteApp(ctx, "demo"))
	apps, err := m.ListApps(ctx)
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestMemoryCancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.ListApps(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
