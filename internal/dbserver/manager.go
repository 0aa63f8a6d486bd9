// Package dbserver manages the long-lived shared database engine
// processes. One process per engine type, shared by every site that
// requests that engine; its lifecycle is independent of any single site.
package dbserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shamimkhan539/PressBox-sub006/internal/config"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

const (
	startupTimeout  = 30 * time.Second
	startupPoll     = 500 * time.Millisecond
	shutdownTimeout = 15 * time.Second
	probeTimeout    = 2 * time.Second
)

// Manager owns the shared database server records. All mutation of server
// state goes through it; backends and the orchestrator never touch the
// processes directly.
type Manager struct {
	logger  zerolog.Logger
	cfg     config.MySQLConfig
	baseDir string
}

// NewManager creates the shared database server manager. baseDir holds one
// data directory per engine.
func NewManager(logger zerolog.Logger, cfg config.MySQLConfig, baseDir string) *Manager {
	return &Manager{
		logger:  logger.With().Str("component", "dbserver-manager").Logger(),
		cfg:     cfg,
		baseDir: baseDir,
	}
}

func (m *Manager) dataDir(engine model.Engine) string {
	return filepath.Join(m.baseDir, string(engine), "data")
}

func (m *Manager) pidFile(engine model.Engine) string {
	return filepath.Join(m.baseDir, string(engine), "server.pid")
}

func (m *Manager) socketPath(engine model.Engine) string {
	return filepath.Join(m.baseDir, string(engine), "server.sock")
}

func (m *Manager) logFile(engine model.Engine) string {
	return filepath.Join(m.baseDir, string(engine), "server.log")
}

// Initialize performs first-run setup for the engine: data directory
// creation and root credentials. Separate from Start so repeated starts
// never re-run setup. Idempotent.
func (m *Manager) Initialize(ctx context.Context, engine model.Engine) error {
	if engine != model.EngineMySQL {
		return nil
	}

	dataDir := m.dataDir(engine)
	marker := filepath.Join(dataDir, "mysql") // created by the init tool
	if _, err := os.Stat(marker); err == nil {
		return nil
	}

	m.logger.Info().Str("engine", string(engine)).Str("data_dir", dataDir).Msg("initializing database server")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, m.cfg.InitBin,
		"--datadir="+dataDir,
		"--auth-root-authentication-method=normal",
		"--skip-test-db",
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return model.Wrap(model.KindBackendUnavailable, err,
			"database init failed: %s", string(output))
	}
	return nil
}

// Start launches the shared server for the engine. Idempotent: if the
// server is already running it returns immediately without restarting, so
// one site's start never disturbs another site's database.
func (m *Manager) Start(ctx context.Context, engine model.Engine) error {
	if engine != model.EngineMySQL {
		return nil
	}
	if m.isRunning(engine) {
		return nil
	}

	if _, err := exec.LookPath(m.cfg.ServerBin); err != nil {
		return model.Wrap(model.KindBackendUnavailable, err,
			"database server binary %q not found", m.cfg.ServerBin)
	}

	logPath := m.logFile(engine)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open server log: %w", err)
	}
	defer logFile.Close()

	m.logger.Info().
		Str("engine", string(engine)).
		Int("port", m.cfg.Port).
		Msg("starting shared database server")

	cmd := exec.Command(m.cfg.ServerBin,
		"--datadir="+m.dataDir(engine),
		"--port="+strconv.Itoa(m.cfg.Port),
		"--bind-address=127.0.0.1",
		"--socket="+m.socketPath(engine),
		"--pid-file="+m.pidFile(engine),
		"--skip-grant-tables=0",
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// Detach: the server outlives the daemon and individual site tasks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return model.Wrap(model.KindBackendUnavailable, err, "spawn database server")
	}
	if err := cmd.Process.Release(); err != nil {
		m.logger.Warn().Err(err).Msg("release database server process handle")
	}

	if err := m.waitReachable(ctx, engine); err != nil {
		return err
	}

	m.logger.Info().Str("engine", string(engine)).Msg("shared database server is up")
	return nil
}

// EnsureRunning initializes and starts the engine if needed. This is the
// path site starts take; it never restarts a live server.
func (m *Manager) EnsureRunning(ctx context.Context, engine model.Engine) error {
	if engine != model.EngineMySQL {
		return nil
	}
	if m.isRunning(engine) {
		return nil
	}
	if err := m.Initialize(ctx, engine); err != nil {
		return err
	}
	return m.Start(ctx, engine)
}

// EnsureDatabase creates the site's database and user on the shared
// server if they do not exist yet. Idempotent; requires the server to be
// running.
func (m *Manager) EnsureDatabase(ctx context.Context, engine model.Engine, name, user, password string) error {
	if engine != model.EngineMySQL {
		return nil
	}

	stmt := fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS `%s`; "+
			"CREATE USER IF NOT EXISTS '%s'@'localhost' IDENTIFIED BY '%s'; "+
			"CREATE USER IF NOT EXISTS '%s'@'127.0.0.1' IDENTIFIED BY '%s'; "+
			"GRANT ALL PRIVILEGES ON `%s`.* TO '%s'@'localhost', '%s'@'127.0.0.1'; "+
			"FLUSH PRIVILEGES;",
		name, user, password, user, password, name, user, user)

	cmd := exec.CommandContext(ctx, m.cfg.ClientBin,
		"--socket="+m.socketPath(engine),
		"-u", m.cfg.RootUser,
		"-e", stmt,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return model.Wrap(model.KindProvision, err,
			"provision database %s: %s", name, string(output))
	}
	m.logger.Debug().Str("database", name).Msg("database ensured")
	return nil
}

// Stop shuts the shared server down. Explicit-only: never called from a
// single site's stop or delete, because other sites may still depend on
// the engine.
func (m *Manager) Stop(ctx context.Context, engine model.Engine) error {
	if engine != model.EngineMySQL {
		return nil
	}

	pid, err := m.readPID(engine)
	if err != nil || pid == 0 {
		if !m.isRunning(engine) {
			return nil
		}
		return fmt.Errorf("database server is running but no pid file found")
	}

	m.logger.Info().Str("engine", string(engine)).Int("pid", pid).Msg("stopping shared database server")

	// Graceful shutdown through the admin tool first, signal as fallback.
	cmd := exec.CommandContext(ctx, m.cfg.AdminBin,
		"--socket="+m.socketPath(engine),
		"-u", m.cfg.RootUser,
		"shutdown",
	)
	if err := cmd.Run(); err != nil {
		m.logger.Warn().Err(err).Msg("admin shutdown failed, sending SIGTERM")
		if proc, perr := os.FindProcess(pid); perr == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}

	deadline := time.Now().Add(shutdownTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			os.Remove(m.pidFile(engine))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startupPoll):
		}
	}
	return fmt.Errorf("database server did not stop within %s", shutdownTimeout)
}

// StopAll stops every running engine. Used by the application-level
// "shut down shared infra" action only.
func (m *Manager) StopAll(ctx context.Context) error {
	return m.Stop(ctx, model.EngineMySQL)
}

// Statuses performs a live connectivity probe per engine so out-of-band
// kills (OS, user) surface as a warning instead of a mystery failure.
func (m *Manager) Statuses(ctx context.Context) []model.DBServer {
	mysql := model.DBServer{
		Engine:        model.EngineMySQL,
		Port:          m.cfg.Port,
		DataDirectory: m.dataDir(model.EngineMySQL),
	}
	mysql.Running = m.probe(ctx, model.EngineMySQL)
	if pid, err := m.readPID(model.EngineMySQL); err == nil {
		mysql.PID = pid
	}

	// SQLite is embedded: no server process, always nominally available.
	sqlite := model.DBServer{
		Engine:  model.EngineSQLite,
		Running: true,
	}

	return []model.DBServer{mysql, sqlite}
}

// probe checks real connectivity: TCP accept plus a ping if the admin tool
// is available. "We started it once" is not trusted.
func (m *Manager) probe(ctx context.Context, engine model.Engine) bool {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(m.cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()

	if _, err := exec.LookPath(m.cfg.AdminBin); err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		cmd := exec.CommandContext(pingCtx, m.cfg.AdminBin,
			"--host=127.0.0.1",
			"--port="+strconv.Itoa(m.cfg.Port),
			"-u", m.cfg.RootUser,
			"ping", "--silent",
		)
		return cmd.Run() == nil
	}
	return true
}

func (m *Manager) isRunning(engine model.Engine) bool {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(m.cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (m *Manager) waitReachable(ctx context.Context, engine model.Engine) error {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if m.isRunning(engine) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startupPoll):
		}
	}
	return model.E(model.KindBackendUnavailable,
		"database server did not accept connections within %s", startupTimeout)
}

func (m *Manager) readPID(engine model.Engine) (int, error) {
	data, err := os.ReadFile(m.pidFile(engine))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

