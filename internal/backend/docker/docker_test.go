package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shamimkhan539/PressBox-sub006/internal/config"
	"github.com/shamimkhan539/PressBox-sub006/internal/model"
)

func TestWebImage_PHPVersionSubstituted(t *testing.T) {
	b := &Backend{cfg: config.DockerConfig{WebImage: "wordpress:php{php}-apache"}}
	site := &model.Site{PHPVersion: "8.2"}

	assert.Equal(t, "wordpress:php8.2-apache", b.webImage(site))
}

func TestWebImage_NoPlaceholderPassesThrough(t *testing.T) {
	b := &Backend{cfg: config.DockerConfig{WebImage: "custom/wp:latest"}}
	site := &model.Site{PHPVersion: "8.3"}

	assert.Equal(t, "custom/wp:latest", b.webImage(site))
}

func TestContainerNames(t *testing.T) {
	site := &model.Site{Name: "alpha"}

	assert.Equal(t, "pressbox-alpha-web", webContainerName(site))
	assert.Equal(t, "pressbox-alpha-db", dbContainerName(site))
	assert.Equal(t, "pressbox-alpha-proxy", proxyContainerName(site))
}

func TestRenderProxyConf_ForwardsToWebContainer(t *testing.T) {
	site := &model.Site{Name: "alpha", Domain: "alpha.local", SSL: true}

	conf := renderProxyConf(site)

	assert.Contains(t, conf, "listen 443 ssl;")
	assert.Contains(t, conf, "server_name alpha.local localhost;")
	assert.Contains(t, conf, "proxy_pass http://pressbox-alpha-web:80;")
	assert.Contains(t, conf, "ssl_certificate     /etc/nginx/tls/server.crt;")
	assert.Contains(t, conf, "X-Forwarded-Proto https")
}

func TestRenderProxyConf_NoDomainServesLocalhost(t *testing.T) {
	site := &model.Site{Name: "beta", SSL: true}

	conf := renderProxyConf(site)

	assert.Contains(t, conf, "server_name localhost;")
}
