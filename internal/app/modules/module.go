// Package modules contains the domain-oriented dependency modules wired by the
// composition root. Dependency injection is manual.
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"tenantcast.dev/tenantcast/internal/api/handlers"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// ContributeServerDeps injects module-owned dependencies into the HTTP server deps.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers registers module workers into a shared River worker registry.
	RegisterWorkers(*river.Workers)

	// PeriodicJobs returns the jobs to schedule once River is up.
	PeriodicJobs() []*river.PeriodicJob

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

// HubProvider is implemented by modules that serve a realtime hub.
type HubProvider interface {
	Hub() *realtime.Hub
}
