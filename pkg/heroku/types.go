// Package heroku provides the remote resource client for the Heroku Platform API.
// It is the only package that talks to the network; everything above it works on
// the plain records defined here.
package heroku

import (
	"context"
	"time"
)

// Collection names a remote resource collection.
type Collection string

const (
	Apps       Collection = "apps"
	Dynos      Collection = "dynos"
	Addons     Collection = "addons"
	Pipelines  Collection = "pipelines"
	Couplings  Collection = "pipeline-couplings"
	Formations Collection = "formation"
)

// App is an application record.
type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	WebURL    string    `json:"web_url,omitempty"`
	GitURL    string    `json:"git_url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Dyno is a process record. State is one of up, starting, idle, crashed, down.
type Dyno struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	State     string `json:"state"`
	Command   string `json:"command,omitempty"`
	AttachURL string `json:"attach_url,omitempty"`
	Size      string `json:"size,omitempty"`
}

// Ref is the {id, name} pair the API embeds in other records.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Addon is an add-on record. State is one of provisioning, provisioned, deprovisioned.
type Addon struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	State      string   `json:"state"`
	Service    Ref      `json:"addon_service"`
	Plan       Ref      `json:"plan"`
	ConfigVars []string `json:"config_vars,omitempty"`
}

// Pipeline is a pipeline record.
type Pipeline struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Coupling associates one app with one stage of a pipeline.
type Coupling struct {
	ID       string `json:"id"`
	Stage    string `json:"stage"`
	App      Ref    `json:"app"`
	Pipeline Ref    `json:"pipeline"`
}

// Formation describes the desired quantity of one process type.
type Formation struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Command  string `json:"command,omitempty"`
	Quantity int    `json:"quantity"`
	Size     string `json:"size,omitempty"`
}

// Reader is the read surface the resource tree depends on.
type Reader interface {
	ListApps(ctx context.Context) ([]App, error)
	ListDynos(ctx context.Context, appID string) ([]Dyno, error)
	ListAddons(ctx context.Context, appID string) ([]Addon, error)
	ListPipelines(ctx context.Context) ([]Pipeline, error)
	ListCouplings(ctx context.Context, pipelineID string) ([]Coupling, error)
}

// API is the full client surface, including the writes used by resource actions.
type API interface {
	Reader

	CreateApp(ctx context.Context, name string) (App, error)
	DeleteApp(ctx context.Context, appID string) error

	CreateDyno(ctx context.Context, appID, command string) (Dyno, error)
	RestartDyno(ctx context.Context, appID, dyno string) error
	RestartAllDynos(ctx context.Context, appID string) error
	StopDyno(ctx context.Context, appID, dyno string) error

	ListFormation(ctx context.Context, appID string) ([]Formation, error)
	ScaleFormation(ctx context.Context, appID, formationType string, quantity int) (Formation, error)
}
