package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/core/health"
	"github.com/artpar/dockhand/internal/core/remote"
	"github.com/artpar/dockhand/internal/core/workload"
	"github.com/artpar/dockhand/internal/shell/sshexec"
)

// =============================================================================
// Deployer
// =============================================================================

// Deployer converges the remote host on exactly one running workload
// matching the current build, then polls workload health. The workload
// variant is selected once per deploy by inspecting the remote application
// directory; the compose manifest takes precedence.
type Deployer struct {
	exec   sshexec.Executor
	poller *health.Poller
	logger *slog.Logger
}

// NewDeployer creates the deploy stage.
func NewDeployer(exec sshexec.Executor, poller *health.Poller, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	if poller == nil {
		poller = health.NewPoller(health.DefaultConfig(), logger)
	}
	return &Deployer{
		exec:   exec,
		poller: poller,
		logger: logger.With("component", "deploy"),
	}
}

// Deploy implements the stage contract.
func (d *Deployer) Deploy(ctx context.Context, dctx domain.DeploymentContext) domain.StageResult {
	spec, err := d.detectWorkload(ctx, dctx)
	if err != nil {
		return domain.Failed(classify(domain.StageDeploy, domain.ErrRemoteCommand, "workload detection failed", err))
	}

	var source health.Source
	switch spec.Kind {
	case workload.KindCompose:
		d.logger.Info("deploying compose stack", "manifest", spec.ComposeFile)
		if result := d.deployCompose(ctx, dctx, spec); !result.OK() {
			return result
		}
		source = &composeHealthSource{exec: d.exec, dctx: dctx, manifest: spec.ComposeFile}

	case workload.KindSingleContainer:
		d.logger.Info("deploying single container", "image", dctx.ImageTag())
		if result := d.deploySingleContainer(ctx, dctx); !result.OK() {
			return result
		}
		source = &containerHealthSource{exec: d.exec, name: dctx.Identity}

	default:
		return domain.Failed(domain.NewStageError(
			domain.StageDeploy, domain.ErrNoWorkloadManifest,
			"no compose or build manifest in "+dctx.AppDir, "", nil))
	}

	result, err := d.poller.Poll(ctx, source)
	if err != nil {
		return domain.Failed(domain.NewStageError(
			domain.StageDeploy, domain.ErrDeploy, "health polling aborted", "", err))
	}

	switch result.Outcome {
	case health.OutcomeNoHealthCheck:
		return domain.Success("workload started (no health check defined)")
	case health.OutcomeHealthy:
		return domain.Success(fmt.Sprintf("workload healthy after %d sample(s)", result.Samples()))
	default:
		// The workload is left running for the operator to investigate.
		return domain.Failed(domain.NewStageError(
			domain.StageDeploy, domain.ErrHealthCheckTimeout,
			fmt.Sprintf("workload not healthy after %d sample(s)", result.Samples()), "", nil))
	}
}

// detectWorkload inspects the remote application directory for manifests.
// A probe's non-zero exit means "absent"; transport failures propagate.
func (d *Deployer) detectWorkload(ctx context.Context, dctx domain.DeploymentContext) (workload.Spec, error) {
	composeFile := ""
	for _, name := range workload.ComposeManifests {
		_, err := d.exec.Run(ctx, remote.FileExists(dctx.AppDir+"/"+name))
		if err == nil {
			composeFile = name
			break
		}
		if !isRemoteExit(err) {
			return workload.Spec{}, err
		}
	}

	hasBuild := false
	_, err := d.exec.Run(ctx, remote.FileExists(dctx.AppDir+"/"+workload.BuildManifest))
	if err == nil {
		hasBuild = true
	} else if !isRemoteExit(err) {
		return workload.Spec{}, err
	}

	return workload.Select(composeFile, hasBuild), nil
}

// deployCompose tears down any previous stack under the same manifest and
// brings it up again with rebuilt images. The teardown tolerates "nothing
// to tear down".
func (d *Deployer) deployCompose(ctx context.Context, dctx domain.DeploymentContext, spec workload.Spec) domain.StageResult {
	compose := "cd " + remote.Quote(dctx.AppDir) + " && docker compose -f " + remote.Quote(spec.ComposeFile)

	if _, err := d.exec.Run(ctx, remote.Tolerant(compose+" down --remove-orphans")); err != nil {
		return domain.Failed(classify(domain.StageDeploy, domain.ErrDeploy, "compose teardown failed", err))
	}

	if _, err := d.exec.Run(ctx, compose+" up -d --build"); err != nil {
		return domain.Failed(classify(domain.StageDeploy, domain.ErrDeploy, "compose up failed", err))
	}

	return domain.Success("compose stack up")
}

// deploySingleContainer builds the image, replaces any container holding
// the workload identity and starts the new one bound to the internal port.
func (d *Deployer) deploySingleContainer(ctx context.Context, dctx domain.DeploymentContext) domain.StageResult {
	publish, err := workload.PublishSpec(dctx.InternalPort)
	if err != nil {
		return domain.Failed(domain.NewStageError(domain.StageDeploy, domain.ErrDeploy, err.Error(), "", err))
	}

	build := "cd " + remote.Quote(dctx.AppDir) + " && docker build -t " + remote.Quote(dctx.ImageTag()) + " ."
	if _, err := d.exec.Run(ctx, build); err != nil {
		return domain.Failed(classify(domain.StageDeploy, domain.ErrDeploy, "image build failed", err))
	}

	// Replace, not duplicate: a container with this identity from a prior
	// run is stopped and removed first.
	if _, err := d.exec.Run(ctx, remote.Tolerant("docker rm -f "+remote.Quote(dctx.Identity))); err != nil {
		return domain.Failed(classify(domain.StageDeploy, domain.ErrDeploy, "remove previous container failed", err))
	}

	run := strings.Join([]string{
		"docker run -d",
		"--name " + remote.Quote(dctx.Identity),
		"--restart unless-stopped",
		"-p " + remote.Quote(publish),
		remote.Quote(dctx.ImageTag()),
	}, " ")
	if _, err := d.exec.Run(ctx, run); err != nil {
		// A port already bound by another process surfaces here as the
		// container start failure, same as any other engine refusal.
		return domain.Failed(classify(domain.StageDeploy, domain.ErrDeploy, "container start failed", err))
	}

	return domain.Success("container started")
}

// =============================================================================
// Health Sources
// =============================================================================

// containerHealthSource samples a single container's engine-reported health.
type containerHealthSource struct {
	exec sshexec.Executor
	name string
}

func (s *containerHealthSource) HasHealthCheck(ctx context.Context) (bool, error) {
	out, err := s.exec.Run(ctx,
		"docker inspect --format '{{if .State.Health}}yes{{else}}no{{end}}' "+remote.Quote(s.name))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "yes", nil
}

func (s *containerHealthSource) Sample(ctx context.Context) (health.Status, error) {
	out, err := s.exec.Run(ctx,
		"docker inspect --format '{{.State.Health.Status}}' "+remote.Quote(s.name))
	if err != nil {
		return health.StatusUnknown, err
	}
	return health.ParseStatus(strings.TrimSpace(out)), nil
}

// composeHealthSource samples every container of the compose stack and
// aggregates the readings.
type composeHealthSource struct {
	exec     sshexec.Executor
	dctx     domain.DeploymentContext
	manifest string
}

func (s *composeHealthSource) inspect(ctx context.Context, format string) ([]string, error) {
	cmd := "cd " + remote.Quote(s.dctx.AppDir) +
		" && docker compose -f " + remote.Quote(s.manifest) + " ps -q" +
		" | xargs -r docker inspect --format " + remote.Quote(format)
	out, err := s.exec.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (s *composeHealthSource) HasHealthCheck(ctx context.Context) (bool, error) {
	lines, err := s.inspect(ctx, "{{if .State.Health}}yes{{else}}no{{end}}")
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if line == "yes" {
			return true, nil
		}
	}
	return false, nil
}

func (s *composeHealthSource) Sample(ctx context.Context) (health.Status, error) {
	lines, err := s.inspect(ctx, "{{if .State.Health}}{{.State.Health.Status}}{{else}}none{{end}}")
	if err != nil {
		return health.StatusUnknown, err
	}
	statuses := make([]health.Status, 0, len(lines))
	for _, line := range lines {
		statuses = append(statuses, health.ParseStatus(line))
	}
	return health.Aggregate(statuses), nil
}
