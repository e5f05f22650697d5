// Package stages implements the ordered, idempotent stages of the
// deployment pipeline. Every stage works exclusively through the remote
// executor, returns a classified StageResult, and is safe to re-run against
// whatever state a previous run left behind.
package stages

import (
	"errors"
	"strings"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/shell/sshexec"
)

// classify wraps an executor error into a stage error. Transport failures
// always classify as connection errors regardless of the stage's own kind;
// remote non-zero exits take the stage's kind and carry the captured output.
func classify(stage string, kind domain.ErrorKind, message string, err error) *domain.StageError {
	var connErr *sshexec.ConnectError
	if errors.As(err, &connErr) {
		return domain.NewStageError(stage, domain.ErrConnection, "remote host unreachable", "", err)
	}

	var cmdErr *sshexec.CommandError
	if errors.As(err, &cmdErr) {
		return domain.NewStageError(stage, kind, message, strings.TrimSpace(cmdErr.Output), err)
	}

	return domain.NewStageError(stage, kind, message, "", err)
}

// isRemoteExit reports whether err is a remote non-zero exit (as opposed to
// a transport failure). Presence probes use this to tell "absent" from
// "unreachable".
func isRemoteExit(err error) bool {
	var cmdErr *sshexec.CommandError
	return errors.As(err, &cmdErr)
}
