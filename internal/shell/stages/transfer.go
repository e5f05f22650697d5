package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/core/remote"
	"github.com/artpar/dockhand/internal/shell/sshexec"
)

// =============================================================================
// Transferer
// =============================================================================

// rsyncRunner invokes rsync locally. Tests substitute a fake.
type rsyncRunner func(ctx context.Context, args []string) (string, error)

func runRsync(ctx context.Context, args []string) (string, error) {
	out, err := exec.CommandContext(ctx, "rsync", args...).CombinedOutput()
	return string(out), err
}

// Transferer mirrors the local source tree into the remote application
// directory. Files absent locally are deleted remotely; version-control
// metadata is excluded. Re-running with unchanged sources produces no
// remote diff.
type Transferer struct {
	exec   sshexec.Executor
	rsync  rsyncRunner
	logger *slog.Logger

	// Excludes are rsync exclude patterns beyond the VCS metadata default.
	Excludes []string
}

// NewTransferer creates the transfer stage.
func NewTransferer(exec sshexec.Executor, logger *slog.Logger) *Transferer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transferer{
		exec:   exec,
		rsync:  runRsync,
		logger: logger.With("component", "transfer"),
	}
}

// Transfer implements the stage contract.
func (t *Transferer) Transfer(ctx context.Context, dctx domain.DeploymentContext) domain.StageResult {
	// The remote directory must exist and belong to the deploying user
	// before rsync writes into it.
	prepare := remote.And(
		"mkdir -p "+remote.Quote(dctx.AppDir),
		"chown "+remote.Quote(dctx.Target.User)+": "+remote.Quote(dctx.AppDir),
	)
	if _, err := t.exec.Run(ctx, prepare); err != nil {
		return domain.Failed(classify(domain.StageTransfer, domain.ErrTransfer, "prepare remote directory failed", err))
	}

	args := t.rsyncArgs(dctx)
	t.logger.Info("mirroring source tree", "local", dctx.LocalSourceDir, "remote", dctx.AppDir)

	out, err := t.rsync(ctx, args)
	if err != nil {
		return domain.Failed(domain.NewStageError(
			domain.StageTransfer, domain.ErrTransfer,
			"rsync failed", strings.TrimSpace(out), err))
	}

	// Itemized output is empty when the trees already match.
	if strings.TrimSpace(out) == "" {
		return domain.Skipped("remote tree already matches source")
	}

	changes := len(strings.Split(strings.TrimSpace(out), "\n"))
	return domain.Success(fmt.Sprintf("synced %d change(s)", changes))
}

// rsyncArgs builds the rsync invocation: archive mode, compression,
// mirror-with-delete, itemized so a no-op run is detectable.
func (t *Transferer) rsyncArgs(dctx domain.DeploymentContext) []string {
	sshCmd := fmt.Sprintf("ssh -i %s -p %d -o StrictHostKeyChecking=no -o BatchMode=yes",
		dctx.Target.KeyPath, sshPort(dctx.Target))

	args := []string{"-az", "--delete", "-i", "--exclude=.git", "--exclude=.gitignore", "--exclude=.hg", "--exclude=.svn"}
	for _, pattern := range t.Excludes {
		args = append(args, "--exclude="+pattern)
	}
	args = append(args,
		"-e", sshCmd,
		strings.TrimRight(dctx.LocalSourceDir, "/")+"/",
		fmt.Sprintf("%s@%s:%s/", dctx.Target.User, dctx.Target.Host, strings.TrimRight(dctx.AppDir, "/")),
	)
	return args
}

func sshPort(target domain.RemoteTarget) int {
	if target.Port == 0 {
		return 22
	}
	return target.Port
}
