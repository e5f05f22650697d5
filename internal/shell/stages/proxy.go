package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/core/proxyconf"
	"github.com/artpar/dockhand/internal/core/remote"
	"github.com/artpar/dockhand/internal/shell/sshexec"
)

// =============================================================================
// Proxy Configurer
// =============================================================================

// ProxyConfigurer generates the workload's reverse-proxy route, activates it
// and reloads the proxy. The route is regenerated fresh every run and
// overwrites the prior version; exactly one route file and one active link
// exist per workload identity.
type ProxyConfigurer struct {
	exec   sshexec.Executor
	paths  proxyconf.Paths
	logger *slog.Logger
}

// NewProxyConfigurer creates the proxy configuration stage.
func NewProxyConfigurer(exec sshexec.Executor, paths proxyconf.Paths, logger *slog.Logger) *ProxyConfigurer {
	if logger == nil {
		logger = slog.Default()
	}
	if paths.AvailableDir == "" {
		paths = proxyconf.DefaultPaths()
	}
	return &ProxyConfigurer{
		exec:   exec,
		paths:  paths,
		logger: logger.With("component", "configure-proxy"),
	}
}

// Configure implements the stage contract.
func (p *ProxyConfigurer) Configure(ctx context.Context, dctx domain.DeploymentContext) domain.StageResult {
	publicHost := dctx.PublicHost
	if publicHost == "" {
		publicHost = dctx.Target.Host
	}

	route := proxyconf.Route{
		Identity:   dctx.Identity,
		PublicHost: publicHost,
		Port:       dctx.InternalPort,
	}
	content, err := route.Render()
	if err != nil {
		return domain.Failed(domain.NewStageError(domain.StageProxy, domain.ErrProxyConfigInvalid, err.Error(), "", err))
	}

	available := p.paths.Available(dctx.Identity)
	enabled := p.paths.Enabled(dctx.Identity)

	p.logger.Info("writing proxy route", "path", available, "public_host", publicHost, "port", dctx.InternalPort)
	if _, err := p.exec.RunInput(ctx, remote.WriteStdin(available), strings.NewReader(content)); err != nil {
		return domain.Failed(classify(domain.StageProxy, domain.ErrRemoteCommand, "write route file failed", err))
	}

	link := remote.And(
		"mkdir -p "+remote.Quote(p.paths.EnabledDir),
		"ln -sf "+remote.Quote(available)+" "+remote.Quote(enabled),
	)
	if _, err := p.exec.Run(ctx, link); err != nil {
		return domain.Failed(classify(domain.StageProxy, domain.ErrRemoteCommand, "activate route failed", err))
	}

	// Syntax gate: an invalid configuration must never be reloaded. The
	// previously active configuration keeps serving.
	if _, err := p.exec.Run(ctx, "nginx -t"); err != nil {
		return domain.Failed(classify(domain.StageProxy, domain.ErrProxyConfigInvalid,
			"proxy configuration failed validation", err))
	}

	// Reload failure is non-fatal: the config is valid and on disk, so the
	// deployment proceeds and the reload is retried on the next run.
	if out, err := p.exec.Run(ctx, "systemctl reload nginx"); err != nil {
		p.logger.Warn("proxy reload failed", "error", err, "output", strings.TrimSpace(out))
		return domain.Success("route active, reload pending")
	}

	return domain.Success("route active for " + publicHost)
}
