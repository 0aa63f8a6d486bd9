// Package docker runs sites as container pairs (web, and a database for
// mysql sites) on the local Docker daemon. Containers are created lazily
// on first start so create stays a pure filesystem operation.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"github.com/shamimkhan539/PressBox-sub006/internal/backend"
	"github.com/shamimkhan539/PressBox-sub006/internal/config"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

const (
	labelSite = "pressbox.site"
	labelRole = "pressbox.role"

	roleWeb   = "web"
	roleDB    = "db"
	roleProxy = "proxy"

	webContainerPort = 80
	tlsContainerPort = 443
	dbContainerPort  = 3306

	// Seconds a container gets to exit cleanly before Docker kills it.
	// Matches the native backend's process stop grace.
	stopGraceSeconds = 8
)

// Backend implements the site backend on the local Docker daemon.
type Backend struct {
	logger zerolog.Logger
	cfg    config.DockerConfig
	cli    *client.Client
}

// New connects to the local Docker daemon using the standard environment
// settings (DOCKER_HOST etc).
func New(logger zerolog.Logger, cfg config.DockerConfig) (*Backend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Backend{
		logger: logger.With().Str("component", "docker-backend").Logger(),
		cfg:    cfg,
		cli:    cli,
	}, nil
}

// Close releases the Docker client connection.
func (b *Backend) Close() error {
	return b.cli.Close()
}

func webContainerName(site *model.Site) string {
	return "pressbox-" + site.Name + "-web"
}

func dbContainerName(site *model.Site) string {
	return "pressbox-" + site.Name + "-db"
}

func proxyContainerName(site *model.Site) string {
	return "pressbox-" + site.Name + "-proxy"
}

// siteContainerNames lists every container a site may own, web last so
// teardown loops hit the proxy before its upstream.
func siteContainerNames(site *model.Site) []string {
	return []string{proxyContainerName(site), webContainerName(site), dbContainerName(site)}
}

func (b *Backend) webImage(site *model.Site) string {
	return strings.ReplaceAll(b.cfg.WebImage, "{php}", site.PHPVersion)
}

// ping maps an unreachable daemon to a backend-unavailable error so the
// orchestrator can report it distinctly from provisioning failures.
func (b *Backend) ping(ctx context.Context) error {
	if _, err := b.cli.Ping(ctx); err != nil {
		return model.Wrap(model.KindBackendUnavailable, err, "docker daemon unreachable")
	}
	return nil
}

// Create provisions the site directory and configuration. Containers are
// not created yet; they come into existence on first start, once a port
// is leased.
func (b *Backend) Create(ctx context.Context, cfg backend.CreateConfig) error {
	site := cfg.Site
	if err := b.ping(ctx); err != nil {
		return err
	}

	if err := backend.EnsureLayout(site); err != nil {
		return err
	}

	// Inside the site network the database is reachable by container name.
	if site.Engine != model.EngineSQLite {
		cfg.DBHost = dbContainerName(site)
		cfg.DBPort = dbContainerPort
		creds := backend.DBCredentials{Name: cfg.DBName, User: cfg.DBUser, Password: cfg.DBPassword}
		if err := backend.SaveDBCredentials(site, creds); err != nil {
			return err
		}
	}
	if err := backend.WriteWPConfig(cfg); err != nil {
		return err
	}

	b.logger.Info().Str("site", site.ID).Str("path", site.Path).Msg("provisioned container site")
	return nil
}

// Configure re-renders wp-config.php with container-network database
// settings. Used after a migration into this environment.
func (b *Backend) Configure(ctx context.Context, site *model.Site) error {
	cfg := backend.CreateConfig{Site: site}
	if site.Engine != model.EngineSQLite {
		creds, err := backend.LoadDBCredentials(site)
		if err != nil {
			return model.Wrap(model.KindProvision, err, "reconfigure site %s", site.ID)
		}
		cfg.DBHost = dbContainerName(site)
		cfg.DBPort = dbContainerPort
		cfg.DBName = creds.Name
		cfg.DBUser = creds.User
		cfg.DBPassword = creds.Password
	}
	return backend.WriteWPConfig(cfg)
}

// Start brings up the site's containers, creating them on first use.
// Idempotent: running containers are left alone.
func (b *Backend) Start(ctx context.Context, site *model.Site) error {
	if err := b.ping(ctx); err != nil {
		return err
	}
	if err := b.ensureNetwork(ctx); err != nil {
		return err
	}

	if site.Engine != model.EngineSQLite {
		if err := b.ensureDBContainer(ctx, site); err != nil {
			return err
		}
	}
	if err := b.ensureWebContainer(ctx, site); err != nil {
		return err
	}
	if site.SSL {
		return b.ensureProxyContainer(ctx, site)
	}
	return nil
}

// Stop stops the site's containers without removing them. Idempotent.
func (b *Backend) Stop(ctx context.Context, site *model.Site) error {
	if err := b.ping(ctx); err != nil {
		return err
	}
	grace := stopGraceSeconds
	for _, name := range siteContainerNames(site) {
		id, running, err := b.findContainer(ctx, name)
		if err != nil {
			return err
		}
		if id == "" || !running {
			continue
		}
		if err := b.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &grace}); err != nil {
			return fmt.Errorf("stop container %s: %w", name, err)
		}
		b.logger.Info().Str("site", site.ID).Str("container", name).Msg("stopped container")
	}
	return nil
}

// Teardown stops and removes the site's containers, keeping the files.
func (b *Backend) Teardown(ctx context.Context, site *model.Site) error {
	if err := b.ping(ctx); err != nil {
		return err
	}
	for _, name := range siteContainerNames(site) {
		id, _, err := b.findContainer(ctx, name)
		if err != nil {
			return err
		}
		if id == "" {
			continue
		}
		if err := b.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("remove container %s: %w", name, err)
		}
		b.logger.Info().Str("site", site.ID).Str("container", name).Msg("removed container")
	}
	return nil
}

// Delete removes containers and then the site directory.
func (b *Backend) Delete(ctx context.Context, site *model.Site) error {
	if err := b.Teardown(ctx, site); err != nil {
		return err
	}
	if err := os.RemoveAll(site.Path); err != nil {
		return fmt.Errorf("remove site directory: %w", err)
	}
	b.logger.Info().Str("site", site.ID).Str("path", site.Path).Msg("deleted container site")
	return nil
}

// Logs returns the tail of the web container's output.
func (b *Backend) Logs(ctx context.Context, site *model.Site, tailLines int) (string, error) {
	if err := b.ping(ctx); err != nil {
		return "", err
	}
	id, _, err := b.findContainer(ctx, webContainerName(site))
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", nil
	}

	reader, err := b.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tailLines),
	})
	if err != nil {
		return "", fmt.Errorf("read container logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", fmt.Errorf("decode container logs: %w", err)
	}
	if stderr.Len() > 0 {
		stdout.WriteString(stderr.String())
	}
	return backend.LastLines(stdout.String(), tailLines), nil
}

// findContainer looks up a container by exact name. Empty ID means no
// such container.
func (b *Backend) findContainer(ctx context.Context, name string) (id string, running bool, err error) {
	args := filters.NewArgs(filters.Arg("name", "^/"+name+"$"))
	list, err := b.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return "", false, fmt.Errorf("list containers: %w", err)
	}
	if len(list) == 0 {
		return "", false, nil
	}
	return list[0].ID, list[0].State == "running", nil
}

func (b *Backend) ensureNetwork(ctx context.Context) error {
	if _, err := b.cli.NetworkInspect(ctx, b.cfg.Network, network.InspectOptions{}); err == nil {
		return nil
	}
	if _, err := b.cli.NetworkCreate(ctx, b.cfg.Network, network.CreateOptions{Driver: "bridge"}); err != nil {
		return fmt.Errorf("create network %s: %w", b.cfg.Network, err)
	}
	return nil
}

func (b *Backend) ensureImage(ctx context.Context, img string) error {
	if _, _, err := b.cli.ImageInspectWithRaw(ctx, img); err == nil {
		return nil
	}
	b.logger.Info().Str("image", img).Msg("pulling image")
	reader, err := b.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return model.Wrap(model.KindBackendUnavailable, err, "pull image %s", img)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// ensureDBContainer creates or starts the site's private database
// container. Each container site gets its own database; the shared host
// server is only for native sites.
func (b *Backend) ensureDBContainer(ctx context.Context, site *model.Site) error {
	name := dbContainerName(site)
	id, running, err := b.findContainer(ctx, name)
	if err != nil {
		return err
	}
	if id != "" {
		if running {
			return nil
		}
		return b.cli.ContainerStart(ctx, id, container.StartOptions{})
	}

	creds, err := backend.LoadDBCredentials(site)
	if err != nil {
		return model.Wrap(model.KindProvision, err, "start database container for %s", site.ID)
	}
	if err := b.ensureImage(ctx, b.cfg.DBImage); err != nil {
		return err
	}

	conf := &container.Config{
		Image: b.cfg.DBImage,
		Env: []string{
			"MARIADB_DATABASE=" + creds.Name,
			"MARIADB_USER=" + creds.User,
			"MARIADB_PASSWORD=" + creds.Password,
			"MARIADB_ROOT_PASSWORD=" + creds.Password,
		},
		Labels: map[string]string{labelSite: site.ID, labelRole: roleDB},
	}
	hostConf := &container.HostConfig{
		Binds: []string{backend.DatabaseDir(site) + ":/var/lib/mysql"},
	}
	netConf := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{b.cfg.Network: {}},
	}

	resp, err := b.cli.ContainerCreate(ctx, conf, hostConf, netConf, nil, name)
	if err != nil {
		return model.Wrap(model.KindProvision, err, "create database container %s", name)
	}
	if err := b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	b.logger.Info().Str("site", site.ID).Str("container", name).Msg("started database container")
	return nil
}

// ensureWebContainer creates or starts the web container, binding the
// site's leased host port to the container web port.
func (b *Backend) ensureWebContainer(ctx context.Context, site *model.Site) error {
	name := webContainerName(site)
	id, running, err := b.findContainer(ctx, name)
	if err != nil {
		return err
	}
	if id != "" {
		if running {
			return nil
		}
		return b.cli.ContainerStart(ctx, id, container.StartOptions{})
	}

	img := b.webImage(site)
	if err := b.ensureImage(ctx, img); err != nil {
		return err
	}

	// The web container always serves plain HTTP. For ssl sites the
	// leased host port belongs to the TLS proxy, so the web container
	// stays network-internal.
	cp := nat.Port(strconv.Itoa(webContainerPort) + "/tcp")

	conf := &container.Config{
		Image:        img,
		ExposedPorts: nat.PortSet{cp: struct{}{}},
		Labels:       map[string]string{labelSite: site.ID, labelRole: roleWeb},
	}
	hostConf := &container.HostConfig{
		Binds: []string{backend.PublicDir(site) + ":/var/www/html"},
	}
	if !site.SSL {
		hostConf.PortBindings = nat.PortMap{
			cp: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(site.Port)}},
		}
	}
	netConf := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{b.cfg.Network: {}},
	}

	resp, err := b.cli.ContainerCreate(ctx, conf, hostConf, netConf, nil, name)
	if err != nil {
		return model.Wrap(model.KindProvision, err, "create web container %s", name)
	}
	if err := b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	b.logger.Info().Str("site", site.ID).Str("container", name).Int("port", site.Port).Msg("started web container")
	return nil
}

// ensureProxyContainer creates or starts the TLS terminator for ssl
// sites: an nginx container holding the site's self-signed certificate,
// bound to the leased host port and proxying to the web container.
func (b *Backend) ensureProxyContainer(ctx context.Context, site *model.Site) error {
	name := proxyContainerName(site)
	id, running, err := b.findContainer(ctx, name)
	if err != nil {
		return err
	}
	if id != "" {
		if running {
			return nil
		}
		return b.cli.ContainerStart(ctx, id, container.StartOptions{})
	}

	if err := backend.EnsureSelfSignedCert(site); err != nil {
		return err
	}
	confPath := filepath.Join(backend.CertsDir(site), "proxy.conf")
	if err := os.WriteFile(confPath, []byte(renderProxyConf(site)), 0o644); err != nil {
		return fmt.Errorf("write proxy config: %w", err)
	}
	if err := b.ensureImage(ctx, b.cfg.ProxyImage); err != nil {
		return err
	}

	cp := nat.Port(strconv.Itoa(tlsContainerPort) + "/tcp")
	conf := &container.Config{
		Image:        b.cfg.ProxyImage,
		ExposedPorts: nat.PortSet{cp: struct{}{}},
		Labels:       map[string]string{labelSite: site.ID, labelRole: roleProxy},
	}
	hostConf := &container.HostConfig{
		Binds: []string{
			confPath + ":/etc/nginx/conf.d/default.conf:ro",
			backend.CertPath(site) + ":/etc/nginx/tls/server.crt:ro",
			backend.KeyPath(site) + ":/etc/nginx/tls/server.key:ro",
		},
		PortBindings: nat.PortMap{
			cp: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(site.Port)}},
		},
	}
	netConf := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{b.cfg.Network: {}},
	}

	resp, err := b.cli.ContainerCreate(ctx, conf, hostConf, netConf, nil, name)
	if err != nil {
		return model.Wrap(model.KindProvision, err, "create proxy container %s", name)
	}
	if err := b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", name, err)
	}
	b.logger.Info().Str("site", site.ID).Str("container", name).Int("port", site.Port).Msg("started tls proxy container")
	return nil
}

// renderProxyConf builds the nginx server block terminating TLS for the
// site and forwarding to the web container over the site network.
func renderProxyConf(site *model.Site) string {
	serverName := "localhost"
	if site.Domain != "" {
		serverName = site.Domain + " localhost"
	}
	return fmt.Sprintf(`server {
    listen %d ssl;
    server_name %s;

    ssl_certificate     /etc/nginx/tls/server.crt;
    ssl_certificate_key /etc/nginx/tls/server.key;

    location / {
        proxy_pass http://%s:%d;
        proxy_set_header Host $host;
        proxy_set_header X-Forwarded-Proto https;
        proxy_set_header X-Real-IP $remote_addr;
    }
}
`, tlsContainerPort, serverName, webContainerName(site), webContainerPort)
}
