// Package hosts manages the loopback entries this daemon writes into the
// system hosts file. Managed lines carry a trailing tag comment so bulk
// removal never touches user-authored lines.
package hosts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

// tagPrefix marks a line as owned by this daemon. The site id follows so
// RemoveForSite can match without parsing the address fields.
const tagPrefix = "# pressbox:site="

// Synchronizer adds and removes managed hosts entries and keeps a single
// backup of the original file, taken before the first mutation ever made.
type Synchronizer struct {
	mu     sync.Mutex
	logger zerolog.Logger

	path       string
	backupPath string
}

// NewSynchronizer manages the hosts file at path, backing it up to
// backupPath before the first write.
func NewSynchronizer(logger zerolog.Logger, path, backupPath string) *Synchronizer {
	return &Synchronizer{
		logger:     logger.With().Str("component", "hosts-sync").Logger(),
		path:       path,
		backupPath: backupPath,
	}
}

// EnsureBackup copies the hosts file to the backup path exactly once. A
// later call is a no-op even if the live file has since changed, so the
// backup always reflects the pre-modification state.
func (s *Synchronizer) EnsureBackup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureBackupLocked()
}

func (s *Synchronizer) ensureBackupLocked() error {
	if _, err := os.Stat(s.backupPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat hosts backup: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read hosts file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.backupPath), 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if err := writeFileAtomic(s.backupPath, data, 0o644); err != nil {
		return fmt.Errorf("write hosts backup: %w", err)
	}

	s.logger.Info().Str("path", s.backupPath).Msg("hosts file backup taken")
	return nil
}

// Add appends or replaces the managed entry for domain and reports
// whether the entry is new. A false return means an entry for the domain
// already existed and was refreshed in place; callers rolling back a
// failed operation must not remove those. Mutations require write access
// to the hosts file; without it the call fails closed with a permission
// error so the orchestrator can degrade to localhost-only mode.
func (s *Synchronizer) Add(domain, ip, siteID string) (created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if domain == "" {
		return false, fmt.Errorf("domain is empty")
	}
	if ip == "" {
		ip = "127.0.0.1"
	}

	if err := s.ensureBackupLocked(); err != nil {
		return false, mapPermission(err)
	}

	lines, err := s.readLines()
	if err != nil {
		return false, mapPermission(err)
	}

	entry := fmt.Sprintf("%s\t%s %s%s", ip, domain, tagPrefix, siteID)
	replaced := false
	for i, line := range lines {
		e, ok := parseManaged(line)
		if ok && e.Domain == domain {
			lines[i] = entry
			replaced = true
		}
	}
	if !replaced {
		lines = append(lines, entry)
	}

	if err := s.writeLines(lines); err != nil {
		return false, mapPermission(err)
	}

	s.logger.Info().Str("domain", domain).Str("site_id", siteID).Msg("hosts entry written")
	return !replaced, nil
}

// Remove deletes the managed entry for domain. User-authored lines for the
// same domain are left untouched.
func (s *Synchronizer) Remove(domain string) error {
	return s.removeMatching(func(e model.HostsEntry) bool { return e.Domain == domain })
}

// RemoveForSite deletes every managed entry tagged with the site id.
func (s *Synchronizer) RemoveForSite(siteID string) error {
	return s.removeMatching(func(e model.HostsEntry) bool { return e.SiteID == siteID })
}

func (s *Synchronizer) removeMatching(match func(model.HostsEntry) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return mapPermission(err)
	}

	kept := lines[:0]
	removed := 0
	for _, line := range lines {
		if e, ok := parseManaged(line); ok && match(e) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return nil
	}

	if err := s.writeLines(kept); err != nil {
		return mapPermission(err)
	}

	s.logger.Info().Int("removed", removed).Msg("hosts entries removed")
	return nil
}

// Entries returns all managed entries currently in the hosts file.
func (s *Synchronizer) Entries() ([]model.HostsEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}

	var out []model.HostsEntry
	for _, line := range lines {
		if e, ok := parseManaged(line); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// RestoreFromBackup replaces the live hosts file with the stored backup
// verbatim. Destructive: every change since the backup is lost.
func (s *Synchronizer) RestoreFromBackup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.backupPath)
	if err != nil {
		return fmt.Errorf("read hosts backup: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		return mapPermission(err)
	}

	s.logger.Warn().Str("path", s.path).Msg("hosts file restored from backup")
	return nil
}

func (s *Synchronizer) readLines() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read hosts file: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return nil, nil
	}
	return strings.Split(content, "\n"), nil
}

func (s *Synchronizer) writeLines(lines []string) error {
	content := strings.Join(lines, "\n") + "\n"
	if err := writeFileAtomic(s.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write hosts file: %w", err)
	}
	return nil
}

// parseManaged decodes a line written by this daemon. A leading "#" before
// the address marks a disabled entry.
func parseManaged(line string) (model.HostsEntry, bool) {
	idx := strings.Index(line, tagPrefix)
	if idx < 0 {
		return model.HostsEntry{}, false
	}

	entry := model.HostsEntry{
		SiteID:  strings.TrimSpace(line[idx+len(tagPrefix):]),
		Enabled: true,
	}

	head := strings.TrimSpace(line[:idx])
	if strings.HasPrefix(head, "#") {
		entry.Enabled = false
		head = strings.TrimSpace(strings.TrimPrefix(head, "#"))
	}

	fields := strings.Fields(head)
	if len(fields) < 2 {
		return model.HostsEntry{}, false
	}
	entry.IP = fields[0]
	entry.Domain = fields[1]
	return entry, true
}

// mapPermission converts OS permission failures into the typed error the
// orchestrator uses to fall back to no-custom-domain mode.
func mapPermission(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return model.Wrap(model.KindPermission, err,
			"hosts file mutation requires elevated privileges")
	}
	return err
}

// writeFileAtomic writes via a temp file in the same directory plus rename,
// so a crash mid-write never truncates the hosts file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pressbox-hosts-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	ok := false
	defer func() {
		tmp.Close()
		if !ok {
			os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	ok = true
	return nil
}
