package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon settings. Everything has a workable default so a
// bare `pressboxd` starts on a developer machine without any setup.
type Config struct {
	// DataDir is the root for the registry, site directories, database
	// server data directories, and the hosts-file backup.
	DataDir string `yaml:"data_dir"`

	HTTPListenAddr string `yaml:"http_listen_addr"`
	LogLevel       string `yaml:"log_level"`

	// HostsFile is the system hosts file to manage. Overridable for tests.
	HostsFile string `yaml:"hosts_file"`

	// Ports is the allocation pool for site web servers.
	Ports PortsConfig `yaml:"ports"`

	// Sites holds defaults applied when a create request omits a field.
	Sites SiteDefaults `yaml:"sites"`

	// MySQL configures the shared MySQL-compatible server.
	MySQL MySQLConfig `yaml:"mysql"`

	// Docker configures the container backend.
	Docker DockerConfig `yaml:"docker"`
}

// PortsConfig defines the allocation pool: a contiguous range plus a small
// set of well-known defaults tried first.
type PortsConfig struct {
	RangeStart int   `yaml:"range_start"`
	RangeEnd   int   `yaml:"range_end"`
	WellKnown  []int `yaml:"well_known"`
}

// SiteDefaults are filled in for create requests that omit the field.
type SiteDefaults struct {
	PHPVersion       string `yaml:"php_version"`
	WordPressVersion string `yaml:"wordpress_version"`
	WebServer        string `yaml:"web_server"`
	DatabaseEngine   string `yaml:"database_engine"`
	Environment      string `yaml:"environment"`
}

// MySQLConfig locates the shared server binaries and its listen port.
type MySQLConfig struct {
	Port       int    `yaml:"port"`
	ServerBin  string `yaml:"server_bin"`
	InitBin    string `yaml:"init_bin"`
	AdminBin   string `yaml:"admin_bin"`
	ClientBin  string `yaml:"client_bin"`
	RootUser   string `yaml:"root_user"`
}

// DockerConfig selects the images for container-backed sites. The "{php}"
// placeholder in WebImage is replaced with the site's PHP version.
type DockerConfig struct {
	WebImage   string `yaml:"web_image"`
	DBImage    string `yaml:"db_image"`
	ProxyImage string `yaml:"proxy_image"`
	Network    string `yaml:"network"`
}

// Load builds the config from environment variables, then overlays the YAML
// config file at $PRESSBOX_CONFIG (or <data_dir>/config.yaml) if present.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	cfg := &Config{
		DataDir:        getEnv("PRESSBOX_DATA_DIR", filepath.Join(home, ".pressbox")),
		HTTPListenAddr: getEnv("PRESSBOX_LISTEN_ADDR", "127.0.0.1:45119"),
		LogLevel:       getEnv("PRESSBOX_LOG_LEVEL", "info"),
		HostsFile:      getEnv("PRESSBOX_HOSTS_FILE", defaultHostsFile()),
		Ports: PortsConfig{
			RangeStart: getEnvInt("PRESSBOX_PORT_RANGE_START", 10010),
			RangeEnd:   getEnvInt("PRESSBOX_PORT_RANGE_END", 10999),
			WellKnown:  []int{8080, 8888},
		},
		Sites: SiteDefaults{
			PHPVersion:       "8.3",
			WordPressVersion: "latest",
			WebServer:        "nginx",
			DatabaseEngine:   "mysql",
			Environment:      "native",
		},
		MySQL: MySQLConfig{
			Port:      getEnvInt("PRESSBOX_MYSQL_PORT", 10005),
			ServerBin: getEnv("PRESSBOX_MYSQL_SERVER_BIN", "mariadbd-safe"),
			InitBin:   getEnv("PRESSBOX_MYSQL_INIT_BIN", "mariadb-install-db"),
			AdminBin:  getEnv("PRESSBOX_MYSQL_ADMIN_BIN", "mariadb-admin"),
			ClientBin: getEnv("PRESSBOX_MYSQL_CLIENT_BIN", "mariadb"),
			RootUser:  "root",
		},
		Docker: DockerConfig{
			WebImage:   "wordpress:php{php}-apache",
			DBImage:    "mariadb:11.4",
			ProxyImage: "nginx:1.27-alpine",
			Network:    "pressbox",
		},
	}

	path := getEnv("PRESSBOX_CONFIG", filepath.Join(cfg.DataDir, "config.yaml"))
	if err := overlayFile(cfg, path); err != nil {
		return nil, err
	}

	if cfg.Ports.RangeStart <= 0 || cfg.Ports.RangeEnd < cfg.Ports.RangeStart {
		return nil, fmt.Errorf("invalid port range %d-%d", cfg.Ports.RangeStart, cfg.Ports.RangeEnd)
	}

	return cfg, nil
}

// SitesDir is where per-site directories live.
func (c *Config) SitesDir() string {
	return filepath.Join(c.DataDir, "sites")
}

// RegistryPath is the SQLite registry file.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "registry.db")
}

// HostsBackupPath is where the one-time hosts file backup is stored.
func (c *Config) HostsBackupPath() string {
	return filepath.Join(c.DataDir, "hosts.backup")
}

// DBServersDir holds one data directory per shared database engine.
func (c *Config) DBServersDir() string {
	return filepath.Join(c.DataDir, "dbservers")
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func defaultHostsFile() string {
	return "/etc/hosts"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
