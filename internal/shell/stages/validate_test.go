package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Validation Tests
// =============================================================================

func TestValidate_EngineInactive_Fatal(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "systemctl is-active --quiet docker", err: remoteExit("")},
	)
	result := NewValidator(exec, nil).WithHTTPClient(failingHTTPClient()).
		Validate(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "service_not_running", string(result.Err.Kind))
}

func TestValidate_WorkloadMissing_Fatal(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "docker ps --format", output: "other-app\nunrelated\n"},
	)
	result := NewValidator(exec, nil).WithHTTPClient(failingHTTPClient()).
		Validate(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "workload_not_running", string(result.Err.Kind))
}

func TestValidate_SingleContainerListedByIdentity(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "docker ps --format", output: "widget-api\n"},
	)
	result := NewValidator(exec, nil).WithHTTPClient(failingHTTPClient()).
		Validate(context.Background(), testContext())

	assert.True(t, result.OK())
}

func TestValidate_ComposeContainerListedByProjectPrefix(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "docker ps --format", output: "widget-api-web-1\nwidget-api-worker-1\n"},
	)
	result := NewValidator(exec, nil).WithHTTPClient(failingHTTPClient()).
		Validate(context.Background(), testContext())

	assert.True(t, result.OK())
}

func TestValidate_ProbeFailuresAreWarningsOnly(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "docker ps --format", output: "widget-api\n"},
		execRule{match: "curl -fsS", err: remoteExit("connection refused")},
	)
	result := NewValidator(exec, nil).WithHTTPClient(failingHTTPClient()).
		Validate(context.Background(), testContext())

	// Internal and external probes both failed; the run still validates.
	assert.True(t, result.OK())
}

func TestValidate_InternalProbeUsesInternalPort(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "docker ps --format", output: "widget-api\n"},
	)
	NewValidator(exec, nil).WithHTTPClient(failingHTTPClient()).
		Validate(context.Background(), testContext())

	assert.True(t, exec.sawCommand("curl -fsS -m 5 -o /dev/null http://127.0.0.1:3000/"))
}

// =============================================================================
// Container Listing Tests
// =============================================================================

func TestContainerListed_ExactMatch(t *testing.T) {
	assert.True(t, containerListed("widget-api\n", "widget-api"))
}

func TestContainerListed_NoPartialNameMatch(t *testing.T) {
	// "widget-api2" is a different workload, not ours.
	assert.False(t, containerListed("widget-api2\n", "widget-api"))
}

func TestContainerListed_ComposeUnderscoreNaming(t *testing.T) {
	assert.True(t, containerListed("widget-api_web_1\n", "widget-api"))
}

func TestContainerListed_EmptyList(t *testing.T) {
	assert.False(t, containerListed("", "widget-api"))
}
