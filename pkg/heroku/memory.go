package heroku

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var (
	_ API = (*Client)(nil)
	_ API = (*Memory)(nil)
)

// Memory is an in-process API backed by plain slices.
// It is used by tests and by the --demo mode of the CLI.
type Memory struct {
	mu        sync.Mutex
	apps      []App
	dynos     map[string][]Dyno
	addons    map[string][]Addon
	pipelines []Pipeline
	couplings map[string][]Coupling
	formation map[string][]Formation
	failures  map[Collection][]error
	calls     map[Collection]int
	seq       int
}

// NewMemory creates an empty in-memory API.
func NewMemory() *Memory {
	return &Memory{
		dynos:     make(map[string][]Dyno),
		addons:    make(map[string][]Addon),
		couplings: make(map[string][]Coupling),
		formation: make(map[string][]Formation),
		failures:  make(map[Collection][]error),
		calls:     make(map[Collection]int),
	}
}

// SetApps replaces the app listing, in listing order.
func (m *Memory) SetApps(apps ...App) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apps = slices.Clone(apps)
}

// SetDynos replaces the dynos of an app.
func (m *Memory) SetDynos(appID string, dynos ...Dyno) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dynos[appID] = slices.Clone(dynos)
}

// SetAddons replaces the add-ons of an app.
func (m *Memory) SetAddons(appID string, addons ...Addon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addons[appID] = slices.Clone(addons)
}

// SetPipelines replaces the pipeline listing, in listing order.
func (m *Memory) SetPipelines(pipelines ...Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines = slices.Clone(pipelines)
}

// SetCouplings replaces the couplings of a pipeline.
func (m *Memory) SetCouplings(pipelineID string, couplings ...Coupling) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.couplings[pipelineID] = slices.Clone(couplings)
}

// SetFormation replaces the formation of an app.
func (m *Memory) SetFormation(appID string, formation ...Formation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formation[appID] = slices.Clone(formation)
}

// FailNext makes the next call touching coll return err. Calls queue up in order.
func (m *Memory) FailNext(coll Collection, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[coll] = append(m.failures[coll], err)
}

// Calls reports how many calls touched coll.
func (m *Memory) Calls(coll Collection) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[coll]
}

// Dynos returns the current dynos of an app.
func (m *Memory) Dynos(appID string) []Dyno {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.dynos[appID])
}

// begin records a call and pops a queued failure. Callers must hold m.mu.
func (m *Memory) begin(ctx context.Context, coll Collection) error {
	m.calls[coll]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if q := m.failures[coll]; len(q) > 0 {
		m.failures[coll] = q[1:]
		return q[0]
	}
	return nil
}

// appKey resolves an app id or name to its id.
func (m *Memory) appKey(idOrName string) (string, bool) {
	for _, a := range m.apps {
		if a.ID == idOrName || a.Name == idOrName {
			return a.ID, true
		}
	}
	return "", false
}

func (m *Memory) ListApps(ctx context.Context) ([]App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Apps); err != nil {
		return nil, err
	}
	return slices.Clone(m.apps), nil
}

func (m *Memory) ListDynos(ctx context.Context, appID string) ([]Dyno, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Dynos); err != nil {
		return nil, err
	}
	id, ok := m.appKey(appID)
	if !ok {
		return nil, notFound("app", appID)
	}
	return slices.Clone(m.dynos[id]), nil
}

func (m *Memory) ListAddons(ctx context.Context, appID string) ([]Addon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Addons); err != nil {
		return nil, err
	}
	id, ok := m.appKey(appID)
	if !ok {
		return nil, notFound("app", appID)
	}
	out := make([]Addon, 0, len(m.addons[id]))
	for _, a := range m.addons[id] {
		a.ConfigVars = slices.Clone(a.ConfigVars)
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Pipelines); err != nil {
		return nil, err
	}
	return slices.Clone(m.pipelines), nil
}

func (m *Memory) ListCouplings(ctx context.Context, pipelineID string) ([]Coupling, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Couplings); err != nil {
		return nil, err
	}
	return slices.Clone(m.couplings[pipelineID]), nil
}

func (m *Memory) CreateApp(ctx context.Context, name string) (App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Apps); err != nil {
		return App{}, err
	}
	if _, taken := m.appKey(name); taken {
		return App{}, &APIError{StatusCode: http.StatusUnprocessableEntity, ID: "invalid_params", Message: "Name " + name + " is already taken"}
	}
	app := App{
		ID:     uuid.NewString(),
		Name:   name,
		WebURL: fmt.Sprintf("https://%s.herokuapp.com/", name),
		GitURL: fmt.Sprintf("https://git.heroku.com/%s.git", name),
	}
	m.apps = append(m.apps, app)
	return app, nil
}

func (m *Memory) DeleteApp(ctx context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Apps); err != nil {
		return err
	}
	id, ok := m.appKey(appID)
	if !ok {
		return notFound("app", appID)
	}
	m.apps = slices.DeleteFunc(m.apps, func(a App) bool { return a.ID == id })
	delete(m.dynos, id)
	delete(m.addons, id)
	delete(m.formation, id)
	for p, cs := range m.couplings {
		m.couplings[p] = slices.DeleteFunc(cs, func(c Coupling) bool { return c.App.ID == id })
	}
	return nil
}

func (m *Memory) CreateDyno(ctx context.Context, appID, command string) (Dyno, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Dynos); err != nil {
		return Dyno{}, err
	}
	id, ok := m.appKey(appID)
	if !ok {
		return Dyno{}, notFound("app", appID)
	}
	m.seq++
	d := Dyno{
		ID:      uuid.NewString(),
		Name:    fmt.Sprintf("run.%d", m.seq),
		Type:    "run",
		State:   "starting",
		Command: command,
	}
	m.dynos[id] = append(m.dynos[id], d)
	return d, nil
}

func (m *Memory) RestartDyno(ctx context.Context, appID, dyno string) error {
	return m.setDynoState(ctx, appID, dyno, "starting")
}

func (m *Memory) StopDyno(ctx context.Context, appID, dyno string) error {
	return m.setDynoState(ctx, appID, dyno, "down")
}

func (m *Memory) RestartAllDynos(ctx context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Dynos); err != nil {
		return err
	}
	id, ok := m.appKey(appID)
	if !ok {
		return notFound("app", appID)
	}
	for i := range m.dynos[id] {
		m.dynos[id][i].State = "starting"
	}
	return nil
}

func (m *Memory) setDynoState(ctx context.Context, appID, dyno, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Dynos); err != nil {
		return err
	}
	id, ok := m.appKey(appID)
	if !ok {
		return notFound("app", appID)
	}
	for i, d := range m.dynos[id] {
		if d.ID == dyno || d.Name == dyno {
			m.dynos[id][i].State = state
			return nil
		}
	}
	return notFound("dyno", dyno)
}

func (m *Memory) ListFormation(ctx context.Context, appID string) ([]Formation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Formations); err != nil {
		return nil, err
	}
	id, ok := m.appKey(appID)
	if !ok {
		return nil, notFound("app", appID)
	}
	return slices.Clone(m.formation[id]), nil
}

func (m *Memory) ScaleFormation(ctx context.Context, appID, formationType string, quantity int) (Formation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, Formations); err != nil {
		return Formation{}, err
	}
	id, ok := m.appKey(appID)
	if !ok {
		return Formation{}, notFound("app", appID)
	}
	for i, f := range m.formation[id] {
		if f.Type == formationType || f.ID == formationType {
			m.formation[id][i].Quantity = quantity
			return m.formation[id][i], nil
		}
	}
	return Formation{}, notFound("formation", formationType)
}
