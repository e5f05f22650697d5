// Package proxyconf renders reverse-proxy route files for deployed
// workloads. Routes are regenerated fresh on every run rather than diffed
// against a prior version; deterministic regeneration is cheaper than
// diffing. This package has no I/O dependencies.
package proxyconf

import (
	"fmt"
	"path"
	"strings"
	"text/template"
)

// =============================================================================
// Route
// =============================================================================

// Route is a generated reverse-proxy configuration artifact mapping the
// public hostname to the workload's internal port.
type Route struct {
	// Identity is the workload identity the route file is named after.
	Identity string

	// PublicHost is the hostname the proxy serves on port 80.
	PublicHost string

	// Port is the internal port on the loopback interface traffic is
	// proxied to.
	Port int
}

// routeTemplate is the nginx server block: listen on 80 for the public host,
// proxy / to the workload, forward the standard client-identity headers.
var routeTemplate = template.Must(template.New("route").Parse(`server {
    listen 80;
    server_name {{.PublicHost}};

    location / {
        proxy_pass http://127.0.0.1:{{.Port}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
}
`))

// Render produces the route file content.
func (r Route) Render() (string, error) {
	if r.PublicHost == "" {
		return "", fmt.Errorf("route for %q has no public host", r.Identity)
	}
	if r.Port <= 0 {
		return "", fmt.Errorf("route for %q has invalid port %d", r.Identity, r.Port)
	}
	var b strings.Builder
	if err := routeTemplate.Execute(&b, r); err != nil {
		return "", fmt.Errorf("render route: %w", err)
	}
	return b.String(), nil
}

// =============================================================================
// Paths
// =============================================================================

// Paths locates the proxy's configuration directories on the remote host.
type Paths struct {
	// AvailableDir holds every generated route file (canonical path).
	AvailableDir string

	// EnabledDir is the active-routes directory; only routes linked here
	// are served.
	EnabledDir string
}

// DefaultPaths returns the Debian-style nginx layout.
func DefaultPaths() Paths {
	return Paths{
		AvailableDir: "/etc/nginx/sites-available",
		EnabledDir:   "/etc/nginx/sites-enabled",
	}
}

// FileName returns the route file name for a workload identity.
func FileName(identity string) string {
	return identity + ".conf"
}

// Available returns the canonical route file path for a workload identity.
func (p Paths) Available(identity string) string {
	return path.Join(p.AvailableDir, FileName(identity))
}

// Enabled returns the active-route link path for a workload identity.
func (p Paths) Enabled(identity string) string {
	return path.Join(p.EnabledDir, FileName(identity))
}
