package hosts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedContent = "127.0.0.1\tlocalhost\n::1\tlocalhost\n"

func newTestSync(t *testing.T) (*Synchronizer, string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	backup := filepath.Join(dir, "hosts.backup")
	require.NoError(t, os.WriteFile(path, []byte(seedContent), 0o644))
	return NewSynchronizer(zerolog.Nop(), path, backup), path, backup
}

func requireAdd(t *testing.T, s *Synchronizer, domain, ip, siteID string) {
	t.Helper()
	_, err := s.Add(domain, ip, siteID)
	require.NoError(t, err)
}

func TestEnsureBackup_TakenExactlyOnce(t *testing.T) {
	s, path, backup := newTestSync(t)

	require.NoError(t, s.EnsureBackup())
	first, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, seedContent, string(first))

	// Mutate the live file, then call again: the backup must not change.
	require.NoError(t, os.WriteFile(path, []byte("changed\n"), 0o644))
	require.NoError(t, s.EnsureBackup())
	require.NoError(t, s.EnsureBackup())

	after, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(after))
}

func TestAdd_BackupTakenBeforeFirstMutation(t *testing.T) {
	s, _, backup := newTestSync(t)

	requireAdd(t, s, "mysite.local", "127.0.0.1", "site-a")

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, seedContent, string(data), "backup must hold the pre-modification content")
}

func TestAdd_TaggedEntryAppended(t *testing.T) {
	s, path, _ := newTestSync(t)

	requireAdd(t, s, "mysite.local", "127.0.0.1", "site-a")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "127.0.0.1\tmysite.local # pressbox:site=site-a")
	assert.Contains(t, string(data), "localhost", "user-authored lines must survive")
}

func TestAdd_ReplacesExistingDomainEntry(t *testing.T) {
	s, _, _ := newTestSync(t)

	requireAdd(t, s, "mysite.local", "127.0.0.1", "site-a")
	requireAdd(t, s, "mysite.local", "127.0.0.1", "site-b")

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "site-b", entries[0].SiteID)
}

func TestAdd_ReportsWhetherEntryIsNew(t *testing.T) {
	s, _, _ := newTestSync(t)

	created, err := s.Add("mysite.local", "127.0.0.1", "site-a")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Add("mysite.local", "127.0.0.1", "site-a")
	require.NoError(t, err)
	assert.False(t, created, "refreshing an existing entry is not a create")
}

func TestRemove_OnlyTaggedEntries(t *testing.T) {
	s, path, _ := newTestSync(t)

	// A user-authored line for the same domain must survive removal.
	require.NoError(t, os.WriteFile(path, []byte(seedContent+"127.0.0.1\tmysite.local\n"), 0o644))
	requireAdd(t, s, "mysite.local", "127.0.0.1", "site-a")

	require.NoError(t, s.Remove("mysite.local"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "127.0.0.1\tmysite.local\n")
	assert.NotContains(t, string(data), tagPrefix)
}

func TestRemoveForSite_MatchesBySiteID(t *testing.T) {
	s, _, _ := newTestSync(t)

	requireAdd(t, s, "a.local", "127.0.0.1", "site-a")
	requireAdd(t, s, "b.local", "127.0.0.1", "site-b")

	require.NoError(t, s.RemoveForSite("site-a"))

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.local", entries[0].Domain)
}

func TestEntries_ParsesDisabledLines(t *testing.T) {
	s, path, _ := newTestSync(t)

	content := seedContent + "# 127.0.0.1\toff.local " + tagPrefix + "site-x\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "off.local", entries[0].Domain)
	assert.False(t, entries[0].Enabled)
}

func TestRestoreFromBackup_Verbatim(t *testing.T) {
	s, path, _ := newTestSync(t)

	requireAdd(t, s, "a.local", "127.0.0.1", "site-a")
	requireAdd(t, s, "b.local", "127.0.0.1", "site-b")

	require.NoError(t, s.RestoreFromBackup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, seedContent, string(data))
}

func TestAdd_UnreadableFileFailsClosed(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	s, path, _ := newTestSync(t)
	require.NoError(t, os.Chmod(path, 0o000))

	_, err := s.Add("mysite.local", "127.0.0.1", "site-a")
	require.Error(t, err)
}
