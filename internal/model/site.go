package model

import (
	"fmt"
	"time"
)

// Environment selects which backend owns a site.
type Environment string

const (
	EnvNative    Environment = "native"
	EnvContainer Environment = "container"
)

// Valid reports whether the environment is a known backend.
func (e Environment) Valid() bool {
	return e == EnvNative || e == EnvContainer
}

// Engine is the database engine a site runs against.
type Engine string

const (
	EngineSQLite Engine = "sqlite"
	EngineMySQL  Engine = "mysql"
)

// Valid reports whether the engine is supported.
func (e Engine) Valid() bool {
	return e == EngineSQLite || e == EngineMySQL
}

// Site lifecycle status constants.
const (
	StatusStopped  = "stopped"
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusStopping = "stopping"
	StatusError    = "error"
)

// Site is one managed WordPress instance.
type Site struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	Port   int    `json:"port"`

	PHPVersion       string      `json:"php_version"`
	WordPressVersion string      `json:"wordpress_version"`
	WebServer        string      `json:"web_server"`
	Engine           Engine      `json:"database_engine"`
	SSL              bool        `json:"ssl"`
	Multisite        bool        `json:"multisite"`
	Environment      Environment `json:"environment"`

	Status string `json:"status"`
	Path   string `json:"path"`

	// BusyOp names the in-flight lifecycle operation, if any. Transient;
	// never persisted.
	BusyOp string `json:"busy_op,omitempty"`

	AdminUser         string `json:"admin_user,omitempty"`
	AdminEmail        string `json:"admin_email,omitempty"`
	AdminPasswordHash string `json:"-"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// URL returns the address the site is reachable at. Sites with a custom
// domain resolve via the hosts file; everything else is localhost:port.
func (s *Site) URL() string {
	scheme := "http"
	if s.SSL {
		scheme = "https"
	}
	if s.Domain != "" {
		return fmt.Sprintf("%s://%s:%d", scheme, s.Domain, s.Port)
	}
	return fmt.Sprintf("%s://localhost:%d", scheme, s.Port)
}

// PortLease is the ephemeral binding of a port to a site while the site is
// expected to be listening. Leases are not persisted; the reconciliation
// pass rebuilds them from the registry after a daemon restart.
type PortLease struct {
	Port   int    `json:"port"`
	SiteID string `json:"site_id"`
}

// HostsEntry is one managed mapping in the system hosts file.
type HostsEntry struct {
	Domain  string `json:"domain"`
	IP      string `json:"ip"`
	SiteID  string `json:"site_id"`
	Enabled bool   `json:"enabled"`
}
