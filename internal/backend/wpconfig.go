package backend

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

const wpConfigTemplate = `<?php
/* Generated by pressbox for site {{ .SiteName }} */

{{ if .UseSQLite -}}
define( 'DB_DIR', __DIR__ . '/../database/' );
define( 'DB_FILE', 'wordpress.sqlite' );
define( 'USE_MYSQL', false );
{{ else -}}
define( 'DB_NAME', '{{ .DBName }}' );
define( 'DB_USER', '{{ .DBUser }}' );
define( 'DB_PASSWORD', '{{ .DBPassword }}' );
define( 'DB_HOST', '{{ .DBHost }}:{{ .DBPort }}' );
{{ end -}}
define( 'DB_CHARSET', 'utf8mb4' );
define( 'DB_COLLATE', '' );

define( 'WP_HOME', '{{ .SiteURL }}' );
define( 'WP_SITEURL', '{{ .SiteURL }}' );
{{ if .Multisite }}
define( 'WP_ALLOW_MULTISITE', true );
{{ end }}
define( 'WP_DEBUG', true );
define( 'WP_DEBUG_LOG', true );
define( 'WP_DEBUG_DISPLAY', false );
define( 'WP_ENVIRONMENT_TYPE', 'local' );

$table_prefix = 'wp_';

if ( ! defined( 'ABSPATH' ) ) {
	define( 'ABSPATH', __DIR__ . '/' );
}
require_once ABSPATH . 'wp-settings.php';
`

var wpConfigTmpl = template.Must(template.New("wpconfig").Parse(wpConfigTemplate))

type wpConfigData struct {
	SiteName  string
	SiteURL   string
	UseSQLite bool
	Multisite bool

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
}

// WriteWPConfig renders wp-config.php into the site's public directory.
func WriteWPConfig(cfg CreateConfig) error {
	site := cfg.Site
	data := wpConfigData{
		SiteName:   site.Name,
		SiteURL:    site.URL(),
		UseSQLite:  site.Engine == model.EngineSQLite,
		Multisite:  site.Multisite,
		DBHost:     cfg.DBHost,
		DBPort:     cfg.DBPort,
		DBName:     cfg.DBName,
		DBUser:     cfg.DBUser,
		DBPassword: cfg.DBPassword,
	}

	var buf bytes.Buffer
	if err := wpConfigTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render wp-config template: %w", err)
	}

	path := filepath.Join(PublicDir(site), "wp-config.php")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write wp-config: %w", err)
	}
	return nil
}

// PublicDir is the web document root inside a site directory.
func PublicDir(site *model.Site) string {
	return filepath.Join(site.Path, "public")
}

// LogsDir holds per-site process output.
func LogsDir(site *model.Site) string {
	return filepath.Join(site.Path, "logs")
}

// DatabaseDir holds the embedded database file for sqlite sites.
func DatabaseDir(site *model.Site) string {
	return filepath.Join(site.Path, "database")
}

// EnsureLayout creates the standard site directory tree. Fails with a
// provision error when the path already exists and is non-empty.
func EnsureLayout(site *model.Site) error {
	if entries, err := os.ReadDir(site.Path); err == nil && len(entries) > 0 {
		return model.E(model.KindProvision, "site path %s already exists and is not empty", site.Path)
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("inspect site path: %w", err)
	}

	for _, dir := range []string{PublicDir(site), LogsDir(site), DatabaseDir(site)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return model.Wrap(model.KindProvision, err, "create site directory %s", dir)
		}
	}
	return nil
}

// TailFile returns the last n lines of the file at path. Missing files
// yield an empty string: a site that never started has no logs yet.
func TailFile(path string, n int) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read log file: %w", err)
	}
	return LastLines(string(data), n), nil
}

// LastLines returns the trailing n lines of s.
func LastLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	end := len(s)
	for end > 0 && s[end-1] == '\n' {
		end--
	}
	if end == 0 {
		return ""
	}

	count := 0
	i := end
	for i > 0 {
		if s[i-1] == '\n' {
			count++
			if count == n {
				break
			}
		}
		i--
	}
	return s[i:end]
}
