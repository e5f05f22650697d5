package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/core/proxyconf"
	"github.com/artpar/dockhand/internal/core/remote"
	"github.com/artpar/dockhand/internal/core/workload"
	"github.com/artpar/dockhand/internal/shell/sshexec"
)

// =============================================================================
// Cleaner
// =============================================================================

// Cleaner reverses the deploy and proxy stages for a workload identity.
// Every removal tolerates "target absent": cleaning an already-clean host
// succeeds. The remote application directory is kept; removing it is
// deferred to a future explicit operation.
type Cleaner struct {
	exec   sshexec.Executor
	paths  proxyconf.Paths
	logger *slog.Logger
}

// NewCleaner creates the cleanup stage.
func NewCleaner(exec sshexec.Executor, paths proxyconf.Paths, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	if paths.AvailableDir == "" {
		paths = proxyconf.DefaultPaths()
	}
	return &Cleaner{
		exec:   exec,
		paths:  paths,
		logger: logger.With("component", "cleanup"),
	}
}

// Cleanup implements the stage contract.
func (c *Cleaner) Cleanup(ctx context.Context, dctx domain.DeploymentContext) domain.StageResult {
	// Compose stacks tear down through their manifest when one is still
	// present in the application directory.
	for _, name := range workload.ComposeManifests {
		_, err := c.exec.Run(ctx, remote.FileExists(dctx.AppDir+"/"+name))
		if err == nil {
			down := "cd " + remote.Quote(dctx.AppDir) +
				" && docker compose -f " + remote.Quote(name) + " down --remove-orphans --rmi local"
			if _, err := c.exec.Run(ctx, remote.Tolerant(down)); err != nil {
				return domain.Failed(classify(domain.StageCleanup, domain.ErrRemoteCommand, "compose teardown failed", err))
			}
			c.logger.Info("compose stack torn down", "manifest", name)
			break
		}
		if !isRemoteExit(err) {
			return domain.Failed(classify(domain.StageCleanup, domain.ErrRemoteCommand, "manifest probe failed", err))
		}
	}

	// Single-container artifacts: container, then its image.
	steps := []struct {
		desc string
		cmd  string
	}{
		{"remove container", remote.Tolerant("docker rm -f " + remote.Quote(dctx.Identity))},
		{"remove image", remote.Tolerant("docker rmi " + remote.Quote(dctx.ImageTag()))},
		{"remove route file", "rm -f " + remote.Quote(c.paths.Available(dctx.Identity))},
		{"remove route link", "rm -f " + remote.Quote(c.paths.Enabled(dctx.Identity))},
	}
	for _, step := range steps {
		if _, err := c.exec.Run(ctx, step.cmd); err != nil {
			return domain.Failed(classify(domain.StageCleanup, domain.ErrRemoteCommand, step.desc+" failed", err))
		}
		c.logger.Debug("cleanup step done", "step", step.desc)
	}

	// Remaining proxy configuration must still be valid; reload best-effort.
	if out, err := c.exec.Run(ctx, "nginx -t"); err != nil {
		c.logger.Warn("remaining proxy configuration invalid, reload skipped", "output", strings.TrimSpace(out))
		return domain.Success("workload removed, proxy reload skipped")
	}
	if out, err := c.exec.Run(ctx, "systemctl reload nginx"); err != nil {
		c.logger.Warn("proxy reload failed", "error", err, "output", strings.TrimSpace(out))
	}

	// TODO: add an explicit flag for removing the remote application
	// directory instead of doing it implicitly here.

	return domain.Success("workload " + dctx.Identity + " cleaned up")
}
