// Package native runs sites as host processes using PHP's built-in web
// server. No container runtime involved; the trade-off is no SSL support
// and a dependency on a locally installed PHP.
package native

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

	"github.com/shamimkhan539/PressBox-sub006/internal/backend"
	"github.com/shamimkhan539/PressBox-sub006/internal/config"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

const (
	stopGrace = 8 * time.Second
	stopPoll  = 250 * time.Millisecond

	logFileName = "php.log"
	pidFileName = "php.pid"
)

// Backend implements the site backend on top of host PHP processes.
type Backend struct {
	logger    zerolog.Logger
	mysqlPort int
}

// New creates the native backend. The shared MySQL port is baked in so
// Configure can re-render database settings without extra lookups.
func New(logger zerolog.Logger, cfg *config.Config) *Backend {
	return &Backend{
		logger:    logger.With().Str("component", "native-backend").Logger(),
		mysqlPort: cfg.MySQL.Port,
	}
}

func pidPath(site *model.Site) string {
	return filepath.Join(site.Path, pidFileName)
}

func logPath(site *model.Site) string {
	return filepath.Join(backend.LogsDir(site), logFileName)
}

// phpBinary resolves the PHP executable for the requested version,
// preferring a versioned binary (php8.3) over the unversioned default.
func phpBinary(version string) (string, error) {
	candidates := []string{"php"}
	if version != "" {
		candidates = []string{"php" + version, "php"}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", model.E(model.KindBackendUnavailable,
		"no usable PHP binary found (tried %s)", strings.Join(candidates, ", "))
}

// Create provisions the site directory, WordPress configuration and the
// database credentials file. Nothing is started.
func (b *Backend) Create(ctx context.Context, cfg backend.CreateConfig) error {
	site := cfg.Site
	if site.SSL {
		return model.E(model.KindProvision,
			"native environment does not support ssl; use the container environment")
	}
	if _, err := phpBinary(site.PHPVersion); err != nil {
		return err
	}

	if err := backend.EnsureLayout(site); err != nil {
		return err
	}
	if err := backend.WriteWPConfig(cfg); err != nil {
		return err
	}
	if site.Engine != model.EngineSQLite {
		creds := backend.DBCredentials{Name: cfg.DBName, User: cfg.DBUser, Password: cfg.DBPassword}
		if err := backend.SaveDBCredentials(site, creds); err != nil {
			return err
		}
	}
	if err := writePlaceholderIndex(site); err != nil {
		return err
	}

	b.logger.Info().Str("site", site.ID).Str("path", site.Path).Msg("provisioned native site")
	return nil
}

// Configure re-renders wp-config.php for this environment. Used after a
// migration so database host settings point back at the host.
func (b *Backend) Configure(ctx context.Context, site *model.Site) error {
	cfg := backend.CreateConfig{Site: site}
	if site.Engine != model.EngineSQLite {
		creds, err := backend.LoadDBCredentials(site)
		if err != nil {
			return model.Wrap(model.KindProvision, err, "reconfigure site %s", site.ID)
		}
		cfg.DBHost = "127.0.0.1"
		cfg.DBPort = b.mysqlPort
		cfg.DBName = creds.Name
		cfg.DBUser = creds.User
		cfg.DBPassword = creds.Password
	}
	return backend.WriteWPConfig(cfg)
}

// Start spawns the PHP built-in server bound to the site's port.
// Idempotent: a live pid means nothing to do.
func (b *Backend) Start(ctx context.Context, site *model.Site) error {
	if pid, _ := readPID(pidPath(site)); pid != 0 && processAlive(pid) {
		return nil
	}

	phpBin, err := phpBinary(site.PHPVersion)
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(logPath(site), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open site log: %w", err)
	}
	defer logFile.Close()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(site.Port))
	cmd := exec.Command(phpBin, "-S", addr, "-t", backend.PublicDir(site))
	cmd.Dir = site.Path
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// Detach: site processes survive daemon restarts and get re-adopted.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return model.Wrap(model.KindBackendUnavailable, err, "spawn php server")
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		b.logger.Warn().Err(err).Msg("release php process handle")
	}

	if err := os.WriteFile(pidPath(site), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	b.logger.Info().Str("site", site.ID).Int("pid", pid).Str("addr", addr).Msg("started php server")
	return nil
}

// Stop terminates the site's PHP process. SIGTERM first, SIGKILL after
// the grace period. Idempotent when nothing is running.
func (b *Backend) Stop(ctx context.Context, site *model.Site) error {
	pidFile := pidPath(site)
	pid, err := readPID(pidFile)
	if err != nil || pid == 0 || !processAlive(pid) {
		os.Remove(pidFile)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidFile)
		return nil
	}
	_ = proc.Signal(syscall.SIGTERM)

	deadline := time.Now().Add(stopGrace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			os.Remove(pidFile)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stopPoll):
		}
	}

	b.logger.Warn().Str("site", site.ID).Int("pid", pid).Msg("php server ignored SIGTERM, killing")
	_ = proc.Kill()
	os.Remove(pidFile)
	return nil
}

// Teardown stops the process and clears runtime files, keeping the site
// content in place.
func (b *Backend) Teardown(ctx context.Context, site *model.Site) error {
	if err := b.Stop(ctx, site); err != nil {
		return err
	}
	os.Remove(pidPath(site))
	return nil
}

// Delete removes runtime state and finally the site directory.
func (b *Backend) Delete(ctx context.Context, site *model.Site) error {
	if err := b.Teardown(ctx, site); err != nil {
		return err
	}
	if err := os.RemoveAll(site.Path); err != nil {
		return fmt.Errorf("remove site directory: %w", err)
	}
	b.logger.Info().Str("site", site.ID).Str("path", site.Path).Msg("deleted native site")
	return nil
}

// Logs returns the tail of the PHP server output.
func (b *Backend) Logs(ctx context.Context, site *model.Site, tailLines int) (string, error) {
	return backend.TailFile(logPath(site), tailLines)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// writePlaceholderIndex drops a minimal landing page so a freshly
// provisioned site responds before WordPress core files are installed.
func writePlaceholderIndex(site *model.Site) error {
	index := filepath.Join(backend.PublicDir(site), "index.php")
	if _, err := os.Stat(index); err == nil {
		return nil
	}
	content := fmt.Sprintf("<?php http_response_code(200); echo 'pressbox site %s';\n", site.Name)
	if err := os.WriteFile(index, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write placeholder index: %w", err)
	}
	return nil
}
