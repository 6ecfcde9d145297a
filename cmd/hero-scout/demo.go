// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"time"

	"github.com/confighub/hero-scout/pkg/heroku"
)

// demoAccount returns an in-memory account with a pipeline, standalone apps and a mix of
// healthy and failing dynos, so every command can be tried without credentials.
func demoAccount() *heroku.Memory {
	m := heroku.NewMemory()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	m.SetApps(
		heroku.App{ID: "app-api-stg", Name: "api-staging", WebURL: "https://api-staging.herokuapp.com/", CreatedAt: created},
		heroku.App{ID: "app-api-prd", Name: "api-production", WebURL: "https://api-production.herokuapp.com/", CreatedAt: created},
		heroku.App{ID: "app-api-rev", Name: "api-pr-142", CreatedAt: created.Add(72 * time.Hour)},
		heroku.App{ID: "app-site", Name: "marketing-site", WebURL: "https://marketing-site.herokuapp.com/", CreatedAt: created},
		heroku.App{ID: "app-jobs", Name: "jobs-runner", CreatedAt: created},
	)

	m.SetDynos("app-api-stg",
		heroku.Dyno{ID: "dyno-stg-web1", Name: "web.1", Type: "web", State: "up", Command: "bin/puma -C config/puma.rb", Size: "basic"},
	)
	m.SetDynos("app-api-prd",
		heroku.Dyno{ID: "dyno-prd-web1", Name: "web.1", Type: "web", State: "up", Command: "bin/puma -C config/puma.rb", Size: "standard-2x"},
		heroku.Dyno{ID: "dyno-prd-web2", Name: "web.2", Type: "web", State: "up", Command: "bin/puma -C config/puma.rb", Size: "standard-2x"},
		heroku.Dyno{ID: "dyno-prd-wrk1", Name: "worker.1", Type: "worker", State: "starting", Command: "bundle exec sidekiq", Size: "standard-1x"},
	)
	m.SetDynos("app-api-rev",
		heroku.Dyno{ID: "dyno-rev-web1", Name: "web.1", Type: "web", State: "idle", Command: "bin/puma -C config/puma.rb", Size: "eco"},
	)
	m.SetDynos("app-site",
		heroku.Dyno{ID: "dyno-site-web1", Name: "web.1", Type: "web", State: "up", Command: "npm start", Size: "basic"},
	)
	m.SetDynos("app-jobs",
		heroku.Dyno{ID: "dyno-jobs-clk1", Name: "clock.1", Type: "clock", State: "crashed", Command: "bin/clock", Size: "basic"},
	)

	m.SetAddons("app-api-prd",
		heroku.Addon{
			ID: "addon-pg", Name: "postgresql-curved-12345", State: "provisioned",
			Service: heroku.Ref{ID: "svc-pg", Name: "heroku-postgresql"}, Plan: heroku.Ref{ID: "plan-pg", Name: "heroku-postgresql:standard-0"},
			ConfigVars: []string{"DATABASE_URL"},
		},
		heroku.Addon{
			ID: "addon-redis", Name: "redis-round-67890", State: "provisioned",
			Service: heroku.Ref{ID: "svc-redis", Name: "heroku-redis"}, Plan: heroku.Ref{ID: "plan-redis", Name: "heroku-redis:premium-0"},
			ConfigVars: []string{"REDIS_URL"},
		},
	)
	m.SetAddons("app-api-stg",
		heroku.Addon{
			ID: "addon-pg-stg", Name: "postgresql-shallow-24680", State: "provisioning",
			Service: heroku.Ref{ID: "svc-pg", Name: "heroku-postgresql"}, Plan: heroku.Ref{ID: "plan-pg-mini", Name: "heroku-postgresql:essential-0"},
			ConfigVars: []string{"DATABASE_URL"},
		},
	)

	m.SetFormation("app-api-prd",
		heroku.Formation{ID: "form-prd-web", Type: "web", Command: "bin/puma -C config/puma.rb", Quantity: 2, Size: "standard-2x"},
		heroku.Formation{ID: "form-prd-wrk", Type: "worker", Command: "bundle exec sidekiq", Quantity: 1, Size: "standard-1x"},
	)
	m.SetFormation("app-api-stg",
		heroku.Formation{ID: "form-stg-web", Type: "web", Command: "bin/puma -C config/puma.rb", Quantity: 1, Size: "basic"},
	)
	m.SetFormation("app-site",
		heroku.Formation{ID: "form-site-web", Type: "web", Command: "npm start", Quantity: 1, Size: "basic"},
	)
	m.SetFormation("app-jobs",
		heroku.Formation{ID: "form-jobs-clk", Type: "clock", Command: "bin/clock", Quantity: 1, Size: "basic"},
	)

	m.SetPipelines(heroku.Pipeline{ID: "pipe-api", Name: "api"})
	m.SetCouplings("pipe-api",
		heroku.Coupling{ID: "cpl-rev", Stage: "review", App: heroku.Ref{ID: "app-api-rev"}, Pipeline: heroku.Ref{ID: "pipe-api"}},
		heroku.Coupling{ID: "cpl-stg", Stage: "staging", App: heroku.Ref{ID: "app-api-stg"}, Pipeline: heroku.Ref{ID: "pipe-api"}},
		heroku.Coupling{ID: "cpl-prd", Stage: "production", App: heroku.Ref{ID: "app-api-prd"}, Pipeline: heroku.Ref{ID: "pipe-api"}},
	)
	return m
}
