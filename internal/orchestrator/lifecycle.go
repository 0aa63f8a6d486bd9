package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/shamimkhan539/PressBox-sub006/internal/backend"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
	"github.com/shamimkhan539/PressBox-sub006/internal/platform"
)

// CreateRequest carries everything needed to provision a new site.
// Omitted fields fall back to the configured site defaults.
type CreateRequest struct {
	Name             string
	Domain           string
	// Port, when non-zero, pins the site to that exact port. Start fails
	// with NoPortsAvailable if it is held or bound elsewhere; there is no
	// silent reassignment.
	Port             int
	PHPVersion       string
	WordPressVersion string
	WebServer        string
	Environment      model.Environment
	Engine           model.Engine
	SSL              bool
	Multisite        bool

	AdminUser     string
	AdminPassword string
	AdminEmail    string
}

// Create provisions a new site in the stopped state. Nothing is started
// and no port is held yet; ports are leased on start.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*model.Site, error) {
	start := time.Now()
	site, err := o.create(ctx, req)
	o.observe("create", start, err)
	return site, err
}

func (o *Orchestrator) create(ctx context.Context, req CreateRequest) (*model.Site, error) {
	o.applyDefaults(&req)

	if req.Name == "" {
		return nil, model.E(model.KindInvalid, "site name is required")
	}
	if !req.Environment.Valid() {
		return nil, model.E(model.KindInvalid, "unknown environment %q", req.Environment)
	}
	if !req.Engine.Valid() {
		return nil, model.E(model.KindInvalid, "unknown database engine %q", req.Engine)
	}
	if req.SSL && req.Environment == model.EnvNative {
		return nil, model.E(model.KindProvision,
			"native environment does not support ssl; use the container environment")
	}
	if req.Domain != "" {
		if err := o.checkDomainFree(ctx, req.Domain); err != nil {
			return nil, err
		}
	}

	b, err := o.backendFor(req.Environment)
	if err != nil {
		return nil, err
	}

	adminPassword := req.AdminPassword
	if adminPassword == "" {
		adminPassword = platform.NewPassword()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, model.Wrap(model.KindProvision, err, "hash admin password")
	}

	now := time.Now().UTC()
	site := &model.Site{
		ID:                platform.NewID(),
		Name:              req.Name,
		Domain:            req.Domain,
		Port:              req.Port,
		PHPVersion:        req.PHPVersion,
		WordPressVersion:  req.WordPressVersion,
		WebServer:         req.WebServer,
		Engine:            req.Engine,
		SSL:               req.SSL,
		Multisite:         req.Multisite,
		Environment:       req.Environment,
		Status:            model.StatusStopped,
		Path:              o.sitePath(req.Name),
		AdminUser:         req.AdminUser,
		AdminEmail:        req.AdminEmail,
		AdminPasswordHash: string(hash),
		CreatedAt:         now,
		LastAccessedAt:    now,
	}

	if err := o.reg.Create(ctx, site); err != nil {
		return nil, err
	}

	cfg := backend.CreateConfig{
		Site:          site,
		AdminUser:     req.AdminUser,
		AdminPassword: adminPassword,
		AdminEmail:    req.AdminEmail,
	}
	if site.Engine == model.EngineMySQL {
		cfg.DBHost = "127.0.0.1"
		cfg.DBPort = o.cfg.MySQL.Port
		cfg.DBName = dbIdentifier(site.Name)
		cfg.DBUser = dbIdentifier(site.Name)
		cfg.DBPassword = platform.NewPassword()
	}

	if err := b.Create(ctx, cfg); err != nil {
		// The record must not outlive a failed provision.
		if derr := o.reg.Delete(ctx, site.ID); derr != nil {
			o.logger.Error().Err(derr).Str("site", site.ID).Msg("rollback registry record")
		}
		return nil, err
	}

	o.logger.Info().
		Str("site", site.ID).
		Str("name", site.Name).
		Str("environment", string(site.Environment)).
		Msg("site created")
	return site, nil
}

// Start brings a site up. Effects are applied in a fixed order: port,
// database server, hosts entry, backend start, liveness confirm, status
// update. Any failure rolls back this attempt's effects before returning.
func (o *Orchestrator) Start(ctx context.Context, id string) error {
	start := time.Now()
	err := o.startSite(ctx, id)
	o.observe("start", start, err)
	return err
}

func (o *Orchestrator) startSite(ctx context.Context, id string) error {
	site, err := o.reg.Get(ctx, id)
	if err != nil {
		return err
	}
	if site.Status == model.StatusRunning {
		return nil
	}
	// The error state is left through an explicit stop only; starting on
	// top of half-torn-down runtime state is never safe.
	if site.Status == model.StatusError {
		return model.E(model.KindConflict,
			"site is in the error state; stop it to recover before starting")
	}
	if err := o.begin(site.ID, "start"); err != nil {
		return err
	}
	defer o.end(site.ID)

	b, err := o.backendFor(site.Environment)
	if err != nil {
		return err
	}
	if err := o.setStatus(ctx, site, model.StatusStarting); err != nil {
		return err
	}

	err = o.runStart(ctx, site, b)
	if err != nil {
		if serr := o.setStatus(ctx, site, model.StatusError); serr != nil {
			o.logger.Error().Err(serr).Str("site", site.ID).Msg("persist error status")
		}
		return err
	}

	site.LastAccessedAt = time.Now().UTC()
	site.Status = model.StatusRunning
	if err := o.reg.Update(ctx, site); err != nil {
		return err
	}
	sitesRunning.Inc()
	o.logger.Info().Str("site", site.ID).Int("port", site.Port).Msg("site running")
	return nil
}

// runStart applies the ordered start effects and rolls them back on
// failure, so a failed start never leaves a half-allocated port or a
// stray hosts entry from this attempt.
func (o *Orchestrator) runStart(ctx context.Context, site *model.Site, b backend.Backend) (err error) {
	var (
		portLeased bool
		hostsAdded bool
		launched   bool
	)
	defer func() {
		if err == nil {
			return
		}
		if launched {
			if serr := b.Stop(context.WithoutCancel(ctx), site); serr != nil {
				o.logger.Warn().Err(serr).Str("site", site.ID).Msg("rollback backend start")
			}
		}
		if hostsAdded {
			if herr := o.hosts.Remove(site.Domain); herr != nil {
				o.logger.Warn().Err(herr).Str("site", site.ID).Msg("rollback hosts entry")
			}
		}
		if portLeased {
			o.allocator.Release(site.Port)
		}
	}()

	// Port: reuse the previously assigned port when possible, otherwise
	// take the lowest free one.
	if site.Port != 0 {
		err = o.allocator.Reserve(site.Port, site.ID)
	} else {
		site.Port, err = o.allocator.Allocate(site.ID)
	}
	if err != nil {
		return err
	}
	portLeased = true
	if err = o.reg.UpdatePort(ctx, site.ID, site.Port); err != nil {
		return err
	}

	// Shared database server, native sites only: container sites carry
	// their own database container.
	if site.Environment == model.EnvNative && site.Engine == model.EngineMySQL {
		if err = o.db.EnsureRunning(ctx, site.Engine); err != nil {
			return err
		}
		if err = o.ensureSiteDatabase(ctx, site); err != nil {
			return err
		}
	}

	// Hosts entry. Missing privileges degrade the site to localhost
	// addressing instead of failing the start. An entry left behind by an
	// earlier start is refreshed, not re-created, so rollback must not
	// remove it.
	if site.Domain != "" {
		created, herr := o.hosts.Add(site.Domain, "127.0.0.1", site.ID)
		switch {
		case herr == nil:
			hostsAdded = created
		case model.IsKind(herr, model.KindPermission):
			o.logger.Warn().Err(herr).Str("site", site.ID).
				Msgf("hosts file not writable, site reachable at localhost:%d only", site.Port)
		default:
			err = herr
			return err
		}
	}

	if err = b.Start(ctx, site); err != nil {
		return err
	}
	launched = true

	return o.waitLive(ctx, site)
}

// Stop takes a site down. Idempotent on already-stopped sites, and the
// only way out of the error state. The hosts entry stays so the domain
// keeps resolving while the site is off; the shared database server is
// never touched.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	start := time.Now()
	err := o.stopSite(ctx, id)
	o.observe("stop", start, err)
	return err
}

func (o *Orchestrator) stopSite(ctx context.Context, id string) error {
	site, err := o.reg.Get(ctx, id)
	if err != nil {
		return err
	}
	if site.Status == model.StatusStopped {
		return nil
	}
	if err := o.begin(site.ID, "stop"); err != nil {
		return err
	}
	defer o.end(site.ID)

	b, err := o.backendFor(site.Environment)
	if err != nil {
		return err
	}

	wasRunning := site.Status == model.StatusRunning
	if err := o.setStatus(ctx, site, model.StatusStopping); err != nil {
		return err
	}
	if err := b.Stop(ctx, site); err != nil {
		if serr := o.setStatus(ctx, site, model.StatusError); serr != nil {
			o.logger.Error().Err(serr).Str("site", site.ID).Msg("persist error status")
		}
		return err
	}

	o.allocator.Release(site.Port)
	if err := o.setStatus(ctx, site, model.StatusStopped); err != nil {
		return err
	}
	if wasRunning {
		sitesRunning.Dec()
	}
	o.logger.Info().Str("site", site.ID).Msg("site stopped")
	return nil
}

// Delete removes a site entirely: runtime state, hosts entry, port lease
// and finally the registry record. Waits for an in-flight transition to
// settle, then forces cleanup.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := o.deleteSite(ctx, id)
	o.observe("delete", start, err)
	return err
}

func (o *Orchestrator) deleteSite(ctx context.Context, id string) error {
	site, err := o.reg.Get(ctx, id)
	if err != nil {
		return err
	}
	o.beginSettled(site.ID, "delete")
	defer o.end(site.ID)

	b, err := o.backendFor(site.Environment)
	if err != nil {
		return err
	}

	wasRunning := site.Status == model.StatusRunning

	if err := o.hosts.RemoveForSite(site.ID); err != nil {
		if !model.IsKind(err, model.KindPermission) {
			return err
		}
		o.logger.Warn().Err(err).Str("site", site.ID).Msg("hosts entry left behind, no privileges")
	}
	o.allocator.ReleaseFor(site.ID)

	if err := b.Delete(ctx, site); err != nil {
		return err
	}
	if err := o.reg.Delete(ctx, site.ID); err != nil {
		return err
	}
	if wasRunning {
		sitesRunning.Dec()
	}
	o.logger.Info().Str("site", site.ID).Str("name", site.Name).Msg("site deleted")
	return nil
}

// Migrate moves a stopped site between environments. The target backend
// re-renders runtime configuration, then the source backend's runtime
// state is torn down; files stay in place throughout.
func (o *Orchestrator) Migrate(ctx context.Context, id string, to model.Environment) error {
	start := time.Now()
	err := o.migrateSite(ctx, id, to)
	o.observe("migrate", start, err)
	return err
}

func (o *Orchestrator) migrateSite(ctx context.Context, id string, to model.Environment) error {
	site, err := o.reg.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := o.begin(site.ID, "migrate"); err != nil {
		return err
	}
	defer o.end(site.ID)

	if !to.Valid() {
		return model.E(model.KindInvalid, "unknown environment %q", to)
	}
	if to == site.Environment {
		return nil
	}
	if site.Status != model.StatusStopped {
		return model.E(model.KindConflict, "site must be stopped before migrating")
	}
	if site.SSL && to == model.EnvNative {
		return model.E(model.KindProvision,
			"native environment does not support ssl; disable ssl before migrating")
	}

	source, err := o.backendFor(site.Environment)
	if err != nil {
		return err
	}
	target, err := o.backendFor(to)
	if err != nil {
		return err
	}

	from := site.Environment
	site.Environment = to
	if err := target.Configure(ctx, site); err != nil {
		site.Environment = from
		return err
	}
	if err := source.Teardown(ctx, site); err != nil {
		// Point the configuration back at the still-standing source.
		site.Environment = from
		if cerr := source.Configure(ctx, site); cerr != nil {
			o.logger.Error().Err(cerr).Str("site", site.ID).Msg("rollback source configuration")
		}
		return err
	}

	if err := o.reg.Update(ctx, site); err != nil {
		return err
	}
	o.logger.Info().
		Str("site", site.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("site migrated")
	return nil
}

func (o *Orchestrator) applyDefaults(req *CreateRequest) {
	defaults := o.cfg.Sites
	if req.PHPVersion == "" {
		req.PHPVersion = defaults.PHPVersion
	}
	if req.WordPressVersion == "" {
		req.WordPressVersion = defaults.WordPressVersion
	}
	if req.WebServer == "" {
		req.WebServer = defaults.WebServer
	}
	if req.Engine == "" {
		req.Engine = model.Engine(defaults.DatabaseEngine)
	}
	if req.Environment == "" {
		req.Environment = model.Environment(defaults.Environment)
	}
	if req.AdminUser == "" {
		req.AdminUser = "admin"
	}
}

func (o *Orchestrator) checkDomainFree(ctx context.Context, domain string) error {
	sites, err := o.reg.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range sites {
		if s.Domain == domain {
			return model.E(model.KindConflict, "domain %s already used by site %s", domain, s.Name)
		}
	}
	return nil
}

func (o *Orchestrator) ensureSiteDatabase(ctx context.Context, site *model.Site) error {
	creds, err := backend.LoadDBCredentials(site)
	if err != nil {
		return model.Wrap(model.KindProvision, err, "load db credentials for %s", site.ID)
	}
	return o.db.EnsureDatabase(ctx, site.Engine, creds.Name, creds.User, creds.Password)
}

func (o *Orchestrator) sitePath(name string) string {
	return filepath.Join(o.cfg.SitesDir(), name)
}

// dbIdentifier derives a safe database/user name from the site name.
func dbIdentifier(name string) string {
	var sb strings.Builder
	sb.WriteString("wp_")
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r + ('a' - 'A'))
		default:
			sb.WriteRune('_')
		}
	}
	id := sb.String()
	if len(id) > 32 {
		id = id[:32]
	}
	return id
}
