package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamimkhan539/PressBox-sub006/internal/backend"
	"github.com/shamimkhan539/PressBox-sub006/internal/config"
	"github.com/shamimkhan539/PressBox-sub006/internal/hosts"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
	"github.com/shamimkhan539/PressBox-sub006/internal/ports"
	"github.com/shamimkhan539/PressBox-sub006/internal/registry"
)

// fakeBackend records lifecycle calls and provisions the real filesystem
// layout so credential loading works the same way it does in production.
type fakeBackend struct {
	mu         sync.Mutex
	created    []string
	configured []string
	started    []string
	stopped    []string
	torndown   []string
	deleted    []string

	createErr error
	startErr  error
	stopErr   error

	// When startBlock is set, Start signals startedCh and then waits for
	// startBlock to close before returning.
	startBlock chan struct{}
	startedCh  chan struct{}
}

func (f *fakeBackend) record(list *[]string, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*list = append(*list, id)
}

func (f *fakeBackend) calls(list *[]string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), (*list)...)
}

func (f *fakeBackend) Create(ctx context.Context, cfg backend.CreateConfig) error {
	if f.createErr != nil {
		return f.createErr
	}
	if err := backend.EnsureLayout(cfg.Site); err != nil {
		return err
	}
	creds := backend.DBCredentials{Name: cfg.DBName, User: cfg.DBUser, Password: cfg.DBPassword}
	if err := backend.SaveDBCredentials(cfg.Site, creds); err != nil {
		return err
	}
	f.record(&f.created, cfg.Site.ID)
	return nil
}

func (f *fakeBackend) Configure(ctx context.Context, site *model.Site) error {
	f.record(&f.configured, site.ID)
	return nil
}

func (f *fakeBackend) Start(ctx context.Context, site *model.Site) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.record(&f.started, site.ID)
	if f.startBlock != nil {
		f.startedCh <- struct{}{}
		<-f.startBlock
	}
	return nil
}

func (f *fakeBackend) Stop(ctx context.Context, site *model.Site) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.record(&f.stopped, site.ID)
	return nil
}

func (f *fakeBackend) Teardown(ctx context.Context, site *model.Site) error {
	f.record(&f.torndown, site.ID)
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, site *model.Site) error {
	f.record(&f.deleted, site.ID)
	return os.RemoveAll(site.Path)
}

func (f *fakeBackend) Logs(ctx context.Context, site *model.Site, tailLines int) (string, error) {
	return "", nil
}

type fakeDBManager struct {
	mu              sync.Mutex
	ensureRunning   int
	ensureDatabases []string
	stopAll         int
}

func (f *fakeDBManager) EnsureRunning(ctx context.Context, engine model.Engine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureRunning++
	return nil
}

func (f *fakeDBManager) EnsureDatabase(ctx context.Context, engine model.Engine, name, user, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureDatabases = append(f.ensureDatabases, name)
	return nil
}

func (f *fakeDBManager) Statuses(ctx context.Context) []model.DBServer {
	return nil
}

func (f *fakeDBManager) StopAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAll++
	return nil
}

type testEnv struct {
	orch   *Orchestrator
	reg    *registry.Store
	alloc  *ports.Allocator
	hosts  *hosts.Synchronizer
	native *fakeBackend
	docker *fakeBackend
	db     *fakeDBManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	hostsFile := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(hostsFile, []byte("127.0.0.1\tlocalhost\n"), 0o644))

	cfg := &config.Config{
		DataDir:   dir,
		HostsFile: hostsFile,
		Ports: config.PortsConfig{
			RangeStart: 43100,
			RangeEnd:   43119,
		},
		Sites: config.SiteDefaults{
			PHPVersion:       "8.3",
			WordPressVersion: "latest",
			WebServer:        "nginx",
			DatabaseEngine:   "sqlite",
			Environment:      "native",
		},
		MySQL: config.MySQLConfig{Port: 43001},
	}

	reg, err := registry.Open(cfg.RegistryPath())
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	logger := zerolog.Nop()
	alloc := ports.NewAllocator(logger, cfg.Ports)
	hostsSync := hosts.NewSynchronizer(logger, hostsFile, cfg.HostsBackupPath())

	native := &fakeBackend{}
	docker := &fakeBackend{}
	db := &fakeDBManager{}

	probe := func(ctx context.Context, url string) error { return nil }
	orch := New(logger, cfg, reg, alloc, hostsSync, db, map[model.Environment]backend.Backend{
		model.EnvNative:    native,
		model.EnvContainer: docker,
	}, probe)
	orch.liveBudget = 200 * time.Millisecond
	orch.livePoll = 10 * time.Millisecond

	return &testEnv{orch: orch, reg: reg, alloc: alloc, hosts: hostsSync, native: native, docker: docker, db: db}
}

func (e *testEnv) create(t *testing.T, req CreateRequest) *model.Site {
	t.Helper()
	site, err := e.orch.Create(context.Background(), req)
	require.NoError(t, err)
	return site
}

func TestCreate_AppliesDefaults(t *testing.T) {
	env := newTestEnv(t)

	site := env.create(t, CreateRequest{Name: "alpha"})

	assert.Equal(t, "8.3", site.PHPVersion)
	assert.Equal(t, model.EngineSQLite, site.Engine)
	assert.Equal(t, model.EnvNative, site.Environment)
	assert.Equal(t, model.StatusStopped, site.Status)
	assert.Zero(t, site.Port)
	assert.NotEmpty(t, site.AdminPasswordHash)

	stored, err := env.reg.GetByName(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, site.ID, stored.ID)
	assert.Equal(t, []string{site.ID}, env.native.calls(&env.native.created))
}

func TestCreate_DoesNotLeasePort(t *testing.T) {
	env := newTestEnv(t)

	site := env.create(t, CreateRequest{Name: "alpha"})

	// Ports are leased on start, not create: a stopped fleet holds no
	// ports and a fresh site has none assigned yet.
	assert.Zero(t, site.Port)
	assert.Empty(t, env.alloc.Leases())
}

func TestCreate_DuplicateNameConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, CreateRequest{Name: "alpha"})

	_, err := env.orch.Create(context.Background(), CreateRequest{Name: "alpha"})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConflict))
}

func TestCreate_UnknownEnvironment(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.Create(context.Background(), CreateRequest{Name: "alpha", Environment: "vm"})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInvalid))
}

func TestCreate_SSLRequiresContainer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.Create(context.Background(), CreateRequest{Name: "alpha", SSL: true})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindProvision))
}

func TestCreate_DomainAlreadyTaken(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, CreateRequest{Name: "alpha", Domain: "alpha.local"})

	_, err := env.orch.Create(context.Background(), CreateRequest{Name: "beta", Domain: "alpha.local"})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConflict))
}

func TestCreate_BackendFailureRemovesRecord(t *testing.T) {
	env := newTestEnv(t)
	env.native.createErr = model.E(model.KindProvision, "php runtime not found")

	_, err := env.orch.Create(context.Background(), CreateRequest{Name: "alpha"})
	require.Error(t, err)

	_, err = env.reg.GetByName(context.Background(), "alpha")
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestStart_BringsSiteUp(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})

	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	stored, err := env.reg.Get(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, stored.Status)
	assert.Equal(t, 43100, stored.Port)

	holder, ok := env.alloc.Holder(43100)
	require.True(t, ok)
	assert.Equal(t, site.ID, holder)
	assert.Equal(t, []string{site.ID}, env.native.calls(&env.native.started))
}

func TestStart_AlreadyRunningIsNoop(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})
	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	assert.Len(t, env.native.calls(&env.native.started), 1)
}

func TestStart_PinnedPortIsKept(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha", Port: 43110})

	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	stored, err := env.reg.Get(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, 43110, stored.Port)
}

func TestStart_PortsUniqueAcrossSites(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.create(t, CreateRequest{Name: "alpha"})
	beta := env.create(t, CreateRequest{Name: "beta"})

	require.NoError(t, env.orch.Start(context.Background(), alpha.ID))
	require.NoError(t, env.orch.Start(context.Background(), beta.ID))

	a, err := env.reg.Get(context.Background(), alpha.ID)
	require.NoError(t, err)
	b, err := env.reg.Get(context.Background(), beta.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.Port, b.Port)
}

func TestStart_LivenessFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})
	env.orch.probe = func(ctx context.Context, url string) error {
		return errors.New("connection refused")
	}

	err := env.orch.Start(context.Background(), site.ID)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindLivenessTimeout))

	stored, gerr := env.reg.Get(context.Background(), site.ID)
	require.NoError(t, gerr)
	assert.Equal(t, model.StatusError, stored.Status)

	// The launch attempt was rolled back and the lease returned.
	assert.Equal(t, []string{site.ID}, env.native.calls(&env.native.stopped))
	_, held := env.alloc.Holder(43100)
	assert.False(t, held)

	// Recovery is an explicit stop; the next start then gets the exact
	// same port back.
	env.orch.probe = func(ctx context.Context, url string) error { return nil }
	require.NoError(t, env.orch.Stop(context.Background(), site.ID))
	require.NoError(t, env.orch.Start(context.Background(), site.ID))
	stored, gerr = env.reg.Get(context.Background(), site.ID)
	require.NoError(t, gerr)
	assert.Equal(t, 43100, stored.Port)
	assert.Equal(t, model.StatusRunning, stored.Status)
}

func TestStart_ProbesLocalhostNotDomain(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha", Domain: "shop.local"})

	var mu sync.Mutex
	var probed []string
	env.orch.probe = func(ctx context.Context, url string) error {
		mu.Lock()
		defer mu.Unlock()
		probed = append(probed, url)
		return nil
	}

	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	// The domain only resolves when the hosts write succeeded, so the
	// probe must dial loopback or degraded starts could never confirm.
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, probed)
	for _, url := range probed {
		assert.Equal(t, "http://localhost:43100", url)
	}
}

func TestStart_FailedRetryKeepsEarlierHostsEntry(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha", Domain: "alpha.local"})
	require.NoError(t, env.orch.Start(context.Background(), site.ID))
	require.NoError(t, env.orch.Stop(context.Background(), site.ID))

	// The entry survived the stop; a failed restart must not tear down
	// what this attempt did not create.
	env.native.startErr = model.E(model.KindProvision, "php runtime not found")
	require.Error(t, env.orch.Start(context.Background(), site.ID))

	entries, err := env.hosts.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alpha.local", entries[0].Domain)
}

func TestStart_ErrorStateRequiresStopFirst(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})

	env.native.startErr = model.E(model.KindProvision, "php runtime not found")
	require.Error(t, env.orch.Start(context.Background(), site.ID))

	stored, err := env.reg.Get(context.Background(), site.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusError, stored.Status)

	err = env.orch.Start(context.Background(), site.ID)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConflict))

	require.NoError(t, env.orch.Stop(context.Background(), site.ID))
	env.native.startErr = nil
	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	stored, err = env.reg.Get(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, stored.Status)
}

func TestStart_BusySiteRejectsSecondOperation(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})

	env.native.startBlock = make(chan struct{})
	env.native.startedCh = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- env.orch.Start(context.Background(), site.ID)
	}()
	<-env.native.startedCh

	err := env.orch.Stop(context.Background(), site.ID)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConflict))

	busy, gerr := env.orch.Get(context.Background(), site.ID)
	require.NoError(t, gerr)
	assert.Equal(t, "start", busy.BusyOp)

	close(env.native.startBlock)
	require.NoError(t, <-done)

	idle, gerr := env.orch.Get(context.Background(), site.ID)
	require.NoError(t, gerr)
	assert.Empty(t, idle.BusyOp)
}

func TestStart_NativeMySQLUsesSharedServer(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha", Engine: model.EngineMySQL})

	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	assert.Equal(t, 1, env.db.ensureRunning)
	assert.Equal(t, []string{"wp_alpha"}, env.db.ensureDatabases)
}

func TestStop_AlreadyStoppedIsNoop(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})

	require.NoError(t, env.orch.Stop(context.Background(), site.ID))

	assert.Empty(t, env.native.calls(&env.native.stopped))
}

func TestStop_ReleasesPortKeepsSharedServer(t *testing.T) {
	env := newTestEnv(t)
	alpha := env.create(t, CreateRequest{Name: "alpha", Engine: model.EngineMySQL})
	beta := env.create(t, CreateRequest{Name: "beta", Engine: model.EngineMySQL})
	require.NoError(t, env.orch.Start(context.Background(), alpha.ID))
	require.NoError(t, env.orch.Start(context.Background(), beta.ID))

	require.NoError(t, env.orch.Stop(context.Background(), alpha.ID))

	stored, err := env.reg.Get(context.Background(), alpha.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, stored.Status)
	_, held := env.alloc.Holder(stored.Port)
	assert.False(t, held)

	// The other site still depends on the shared server.
	assert.Zero(t, env.db.stopAll)
}

func TestStop_KeepsHostsEntry(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha", Domain: "alpha.local"})
	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	require.NoError(t, env.orch.Stop(context.Background(), site.ID))

	entries, err := env.hosts.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alpha.local", entries[0].Domain)
}

func TestDelete_RemovesEverything(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha", Domain: "alpha.local"})
	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	require.NoError(t, env.orch.Delete(context.Background(), site.ID))

	_, err := env.reg.Get(context.Background(), site.ID)
	assert.True(t, model.IsKind(err, model.KindNotFound))

	entries, err := env.hosts.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, env.alloc.Leases())
	assert.Equal(t, []string{site.ID}, env.native.calls(&env.native.deleted))
	assert.NoDirExists(t, site.Path)
}

func TestMigrate_RequiresStoppedSite(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})
	require.NoError(t, env.orch.Start(context.Background(), site.ID))

	err := env.orch.Migrate(context.Background(), site.ID, model.EnvContainer)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConflict))
}

func TestMigrate_SameEnvironmentIsNoop(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})

	require.NoError(t, env.orch.Migrate(context.Background(), site.ID, model.EnvNative))

	assert.Empty(t, env.docker.calls(&env.docker.configured))
	assert.Empty(t, env.native.calls(&env.native.torndown))
}

func TestMigrate_SwitchesBackends(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})

	require.NoError(t, env.orch.Migrate(context.Background(), site.ID, model.EnvContainer))

	assert.Equal(t, []string{site.ID}, env.docker.calls(&env.docker.configured))
	assert.Equal(t, []string{site.ID}, env.native.calls(&env.native.torndown))

	stored, err := env.reg.Get(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnvContainer, stored.Environment)
}

func TestReconcile_AdoptsReachableSite(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})
	require.NoError(t, env.reg.UpdatePort(context.Background(), site.ID, 43105))
	require.NoError(t, env.reg.UpdateStatus(context.Background(), site.ID, model.StatusRunning))

	require.NoError(t, env.orch.Reconcile(context.Background()))

	holder, ok := env.alloc.Holder(43105)
	require.True(t, ok)
	assert.Equal(t, site.ID, holder)

	stored, err := env.reg.Get(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, stored.Status)
}

func TestReconcile_UnreachableSiteForcedToError(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})
	require.NoError(t, env.reg.UpdatePort(context.Background(), site.ID, 43105))
	require.NoError(t, env.reg.UpdateStatus(context.Background(), site.ID, model.StatusRunning))
	env.orch.probe = func(ctx context.Context, url string) error {
		return errors.New("connection refused")
	}

	require.NoError(t, env.orch.Reconcile(context.Background()))

	_, held := env.alloc.Holder(43105)
	assert.False(t, held)

	stored, err := env.reg.Get(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, stored.Status)
}

func TestReconcile_FinishesInterruptedStop(t *testing.T) {
	env := newTestEnv(t)
	site := env.create(t, CreateRequest{Name: "alpha"})
	require.NoError(t, env.reg.UpdatePort(context.Background(), site.ID, 43105))
	require.NoError(t, env.reg.UpdateStatus(context.Background(), site.ID, model.StatusStopping))

	require.NoError(t, env.orch.Reconcile(context.Background()))

	assert.Equal(t, []string{site.ID}, env.native.calls(&env.native.stopped))
	stored, err := env.reg.Get(context.Background(), site.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStopped, stored.Status)
}
