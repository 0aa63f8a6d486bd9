// Package backend defines the contract both site environments implement.
// The orchestrator selects the implementation by the site's environment
// field; it never calls the non-owning backend for a site.
package backend

import (
	"context"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

// CreateConfig carries everything a backend needs to provision a site.
// Credentials are passed through for the install config only; the registry
// persists just the bcrypt hash.
type CreateConfig struct {
	Site *model.Site

	AdminUser     string
	AdminPassword string
	AdminEmail    string

	// Database connection for the site. For sqlite sites these are empty
	// and the backend provisions the embedded database file instead.
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
}

// Backend is the capability set each environment provides.
type Backend interface {
	// Create provisions the filesystem layout and site-local configuration
	// without starting anything. Fails with a provision error if the target
	// path exists and is non-empty, or a required runtime is unavailable.
	Create(ctx context.Context, cfg CreateConfig) error

	// Configure (re)renders runtime configuration for an existing site
	// directory. Used on migration between environments.
	Configure(ctx context.Context, site *model.Site) error

	// Start launches the site's process/container set. Idempotent when
	// already running. Returns once launched; liveness is the
	// orchestrator's job so the probe policy stays uniform.
	Start(ctx context.Context, site *model.Site) error

	// Stop terminates the site. Idempotent when already stopped; graceful
	// first, hard kill after the grace period.
	Stop(ctx context.Context, site *model.Site) error

	// Teardown removes runtime state (processes, containers, pid files)
	// but keeps the site's files. Used on migration.
	Teardown(ctx context.Context, site *model.Site) error

	// Delete removes all runtime state and then the site directory.
	// Filesystem deletion is the last step.
	Delete(ctx context.Context, site *model.Site) error

	// Logs returns the tail of the site's process/container output.
	Logs(ctx context.Context, site *model.Site, tailLines int) (string, error)
}
