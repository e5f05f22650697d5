package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Provision Tests
// =============================================================================

func TestProvision_AlreadyProvisioned_SkipsInstalls(t *testing.T) {
	// Every probe succeeds: apt present, docker, compose and nginx present,
	// services active.
	exec := newFakeExec()
	result := NewProvisioner(exec, nil).Provision(context.Background(), testContext())

	require.True(t, result.OK())
	assert.Equal(t, "skipped", string(result.Status))
	assert.False(t, exec.sawCommand("install"))
}

func TestProvision_SecondRunMatchesFirstOnProvisionedHost(t *testing.T) {
	exec := newFakeExec()
	p := NewProvisioner(exec, nil)

	first := p.Provision(context.Background(), testContext())
	countAfterFirst := len(exec.commands)
	second := p.Provision(context.Background(), testContext())

	assert.True(t, first.OK())
	assert.True(t, second.OK())
	// Identical command sequence both runs: probes only, no net change.
	assert.Equal(t, countAfterFirst*2, len(exec.commands))
	assert.False(t, exec.sawCommand("install"))
}

func TestProvision_NoPackageManager_UnsupportedPlatform(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "command -v 'apt-get'", err: remoteExit("")},
		execRule{match: "command -v 'yum'", err: remoteExit("")},
		execRule{match: "command -v 'dnf'", err: remoteExit("")},
	)
	result := NewProvisioner(exec, nil).Provision(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "unsupported_platform", string(result.Err.Kind))
}

func TestProvision_InstallsMissingNginxOnly(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "command -v 'nginx'", err: remoteExit("")},
	)
	result := NewProvisioner(exec, nil).Provision(context.Background(), testContext())

	require.True(t, result.OK())
	assert.Equal(t, "success", string(result.Status))
	assert.True(t, exec.sawCommand("apt-get install -y nginx"))
	assert.False(t, exec.sawCommand("docker-ce"))
}

func TestProvision_InstallsDockerWithVendorRepoOnApt(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "command -v 'docker'", err: remoteExit("")},
	)
	result := NewProvisioner(exec, nil).Provision(context.Background(), testContext())

	require.True(t, result.OK())
	assert.True(t, exec.sawCommand("download.docker.com"))
	assert.True(t, exec.sawCommand("docker-ce"))
}

func TestProvision_SkipsVendorRepoWhenDockerPresent(t *testing.T) {
	exec := newFakeExec()
	result := NewProvisioner(exec, nil).Provision(context.Background(), testContext())

	require.True(t, result.OK())
	assert.False(t, exec.sawCommand("download.docker.com"))
}

func TestProvision_YumInstallsDockerDirectly(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "command -v 'apt-get'", err: remoteExit("")},
		execRule{match: "command -v 'yum'"},
		execRule{match: "command -v 'docker'", err: remoteExit("")},
	)
	result := NewProvisioner(exec, nil).Provision(context.Background(), testContext())

	require.True(t, result.OK())
	assert.True(t, exec.sawCommand("yum install -y docker"))
	assert.False(t, exec.sawCommand("download.docker.com"))
}

func TestProvision_EnablesServices(t *testing.T) {
	exec := newFakeExec()
	result := NewProvisioner(exec, nil).Provision(context.Background(), testContext())

	require.True(t, result.OK())
	assert.True(t, exec.sawCommand("systemctl is-active --quiet docker || systemctl enable --now docker"))
	assert.True(t, exec.sawCommand("systemctl is-active --quiet nginx || systemctl enable --now nginx"))
}

func TestProvision_VersionProbeFailureIsNonFatal(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "nginx -v", err: remoteExit("weird packaging")},
	)
	result := NewProvisioner(exec, nil).Provision(context.Background(), testContext())

	assert.True(t, result.OK())
}

func TestProvision_ConnectionFailureClassified(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "command -v", err: connRefused()},
	)
	result := NewProvisioner(exec, nil).Provision(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "connection_error", string(result.Err.Kind))
}
