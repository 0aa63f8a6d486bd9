// Package registry is the durable source of truth for sites. It persists
// one record per site in an embedded SQLite database; the orchestrator is
// the only writer.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps the SQLite registry database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the registry database and runs any
// pending schema migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("registry path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	// Single connection: the registry is a single-writer file database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run registry migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const siteColumns = `id, name, domain, port, php_version, wordpress_version,
	web_server, database_engine, ssl, multisite, environment, status, path,
	admin_user, admin_email, admin_password_hash, created_at, last_accessed_at`

// Create inserts a new site record. The name must be unique.
func (s *Store) Create(ctx context.Context, site *model.Site) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sites (`+siteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		site.ID, site.Name, site.Domain, site.Port,
		site.PHPVersion, site.WordPressVersion, site.WebServer,
		string(site.Engine), boolInt(site.SSL), boolInt(site.Multisite),
		string(site.Environment), site.Status, site.Path,
		site.AdminUser, site.AdminEmail, site.AdminPasswordHash,
		site.CreatedAt.UTC().Format(time.RFC3339Nano),
		site.LastAccessedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.E(model.KindConflict, "site name %q already exists", site.Name)
		}
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

// Get returns the site with the given id.
func (s *Store) Get(ctx context.Context, id string) (*model.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.E(model.KindNotFound, "site %s not found", id)
	}
	return site, err
}

// GetByName returns the site with the given user-facing name.
func (s *Store) GetByName(ctx context.Context, name string) (*model.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE name = ?`, name)
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.E(model.KindNotFound, "site %q not found", name)
	}
	return site, err
}

// List returns all sites ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*model.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []*model.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// Update rewrites every mutable column of the site record.
func (s *Store) Update(ctx context.Context, site *model.Site) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sites SET
			domain = ?, port = ?, php_version = ?, wordpress_version = ?,
			web_server = ?, database_engine = ?, ssl = ?, multisite = ?,
			environment = ?, status = ?, path = ?, last_accessed_at = ?
		WHERE id = ?
	`,
		site.Domain, site.Port, site.PHPVersion, site.WordPressVersion,
		site.WebServer, string(site.Engine), boolInt(site.SSL), boolInt(site.Multisite),
		string(site.Environment), site.Status, site.Path,
		site.LastAccessedAt.UTC().Format(time.RFC3339Nano),
		site.ID,
	)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	return requireRow(res, site.ID)
}

// UpdateStatus persists only the lifecycle status.
func (s *Store) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sites SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update site status: %w", err)
	}
	return requireRow(res, id)
}

// UpdatePort persists the port assignment.
func (s *Store) UpdatePort(ctx context.Context, id string, port int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sites SET port = ? WHERE id = ?`, port, id)
	if err != nil {
		return fmt.Errorf("update site port: %w", err)
	}
	return requireRow(res, id)
}

// Delete removes the site record permanently. Ids are never reused.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.E(model.KindNotFound, "site %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*model.Site, error) {
	var (
		site              model.Site
		engine, env       string
		ssl, multisite    int
		created, accessed string
	)
	err := row.Scan(
		&site.ID, &site.Name, &site.Domain, &site.Port,
		&site.PHPVersion, &site.WordPressVersion, &site.WebServer,
		&engine, &ssl, &multisite, &env, &site.Status, &site.Path,
		&site.AdminUser, &site.AdminEmail, &site.AdminPasswordHash,
		&created, &accessed,
	)
	if err != nil {
		return nil, err
	}

	site.Engine = model.Engine(engine)
	site.Environment = model.Environment(env)
	site.SSL = ssl != 0
	site.Multisite = multisite != 0
	site.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	site.LastAccessedAt, _ = time.Parse(time.RFC3339Nano, accessed)
	return &site, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
