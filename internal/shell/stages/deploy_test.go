package stages

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/dockhand/internal/core/health"
)

// =============================================================================
// Deploy Test Helpers
// =============================================================================

// fastPoller polls without sleeping.
func fastPoller() *health.Poller {
	noSleep := func(context.Context, time.Duration) error { return nil }
	return health.NewPoller(health.DefaultConfig(), nil).WithSleep(noSleep)
}

// manifestsAbsent makes every remote manifest probe fail.
func manifestsAbsent() execRule {
	return execRule{match: "test -f", err: remoteExit("")}
}

// noHealthCheck answers the health presence probe with "no".
func noHealthCheck() execRule {
	return execRule{match: "{{if .State.Health}}yes{{else}}no{{end}}", output: "no"}
}

// =============================================================================
// Workload Detection Tests
// =============================================================================

func TestDeploy_NoManifest_FailsWithoutSideEffects(t *testing.T) {
	exec := newFakeExec(manifestsAbsent())
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "no_workload_manifest", string(result.Err.Kind))
	assert.False(t, exec.sawCommand("docker build"))
	assert.False(t, exec.sawCommand("docker run"))
	assert.False(t, exec.sawCommand("docker compose"))
}

func TestDeploy_ComposeTakesPrecedenceOverBuildManifest(t *testing.T) {
	// Both manifests present: every test -f probe succeeds.
	exec := newFakeExec(noHealthCheck())
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.True(t, result.OK())
	assert.True(t, exec.sawCommand("docker compose -f 'docker-compose.yml' up -d --build"))
	assert.False(t, exec.sawCommand("docker build"))
	assert.False(t, exec.sawCommand("docker run"))
}

func TestDeploy_DetectionConnectionFailureIsFatal(t *testing.T) {
	exec := newFakeExec(execRule{match: "test -f", err: connRefused()})
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "connection_error", string(result.Err.Kind))
}

// =============================================================================
// Compose Deploy Tests
// =============================================================================

func TestDeploy_ComposeTearsDownBeforeUp(t *testing.T) {
	exec := newFakeExec(noHealthCheck())
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.True(t, result.OK())
	downIdx, upIdx := -1, -1
	for i, cmd := range exec.commands {
		if downIdx == -1 && contains(cmd, "down --remove-orphans") {
			downIdx = i
		}
		if upIdx == -1 && contains(cmd, "up -d --build") {
			upIdx = i
		}
	}
	require.NotEqual(t, -1, downIdx)
	require.NotEqual(t, -1, upIdx)
	assert.Less(t, downIdx, upIdx)
}

func TestDeploy_ComposeTeardownIsTolerant(t *testing.T) {
	exec := newFakeExec(noHealthCheck())
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.True(t, result.OK())
	assert.True(t, exec.sawCommand("down --remove-orphans || true"))
}

func TestDeploy_ComposeUpFailure(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "up -d --build", err: remoteExit("service web failed to build")},
	)
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "deploy_error", string(result.Err.Kind))
	assert.Contains(t, result.Err.Output, "service web failed to build")
}

// =============================================================================
// Single Container Deploy Tests
// =============================================================================

func singleContainerRules(extra ...execRule) []execRule {
	rules := []execRule{
		// Compose manifests absent, Dockerfile present.
		{match: "test -f '/srv/apps/widget-api/docker-compose.yml'", err: remoteExit("")},
		{match: "test -f '/srv/apps/widget-api/docker-compose.yaml'", err: remoteExit("")},
		{match: "test -f '/srv/apps/widget-api/compose.yaml'", err: remoteExit("")},
		{match: "test -f '/srv/apps/widget-api/compose.yml'", err: remoteExit("")},
	}
	return append(rules, extra...)
}

func TestDeploy_SingleContainer_BuildReplaceRun(t *testing.T) {
	exec := newFakeExec(singleContainerRules(noHealthCheck())...)
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.True(t, result.OK())
	assert.True(t, exec.sawCommand("docker build -t 'widget-api:latest' ."))
	assert.True(t, exec.sawCommand("docker rm -f 'widget-api' || true"))
	assert.True(t, exec.sawCommand("docker run -d --name 'widget-api' --restart unless-stopped -p '3000:3000' 'widget-api:latest'"))
}

func TestDeploy_SingleContainer_BuildFailure(t *testing.T) {
	exec := newFakeExec(singleContainerRules(
		execRule{match: "docker build", err: remoteExit("COPY failed")},
	)...)
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "deploy_error", string(result.Err.Kind))
	assert.False(t, exec.sawCommand("docker run"))
}

func TestDeploy_SingleContainer_PortAlreadyBoundSurfacesAsDeployError(t *testing.T) {
	exec := newFakeExec(singleContainerRules(
		execRule{match: "docker run", err: remoteExit("bind: address already in use")},
	)...)
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "deploy_error", string(result.Err.Kind))
	assert.Contains(t, result.Err.Output, "address already in use")
}

// =============================================================================
// Health Polling Tests
// =============================================================================

func TestDeploy_NoHealthCheckSucceedsImmediately(t *testing.T) {
	exec := newFakeExec(singleContainerRules(noHealthCheck())...)
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.True(t, result.OK())
	assert.Contains(t, result.Detail, "no health check")
	// Presence probe only; never a status sample.
	assert.False(t, exec.sawCommand("{{.State.Health.Status}}"))
}

func TestDeploy_HealthyAfterStarting(t *testing.T) {
	exec := newFakeExec(singleContainerRules(
		execRule{match: "{{if .State.Health}}yes{{else}}no{{end}}", output: "yes"},
		execRule{match: "{{.State.Health.Status}}", output: "healthy"},
	)...)
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.True(t, result.OK())
	assert.Contains(t, result.Detail, "healthy")
}

func TestDeploy_NeverHealthy_TimesOutAndLeavesWorkloadRunning(t *testing.T) {
	exec := newFakeExec(singleContainerRules(
		execRule{match: "{{if .State.Health}}yes{{else}}no{{end}}", output: "yes"},
		execRule{match: "{{.State.Health.Status}}", output: "unhealthy"},
	)...)
	result := NewDeployer(exec, fastPoller(), nil).Deploy(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "health_check_timeout", string(result.Err.Kind))
	assert.Contains(t, result.Err.Message, "15 sample(s)")

	// No rollback: the container stays up for the operator to investigate.
	lastRm := -1
	lastRun := -1
	for i, cmd := range exec.commands {
		if contains(cmd, "docker rm") {
			lastRm = i
		}
		if contains(cmd, "docker run") {
			lastRun = i
		}
	}
	assert.Less(t, lastRm, lastRun)
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
