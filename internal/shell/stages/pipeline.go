package stages

import (
	"context"
	"log/slog"

	"github.com/artpar/dockhand/internal/core/domain"
)

// =============================================================================
// Pipeline
// =============================================================================

// StageFunc is the uniform shape every stage exposes to the pipeline.
type StageFunc func(ctx context.Context, dctx domain.DeploymentContext) domain.StageResult

type namedStage struct {
	name string
	run  StageFunc
}

// Pipeline sequences stages under a single context, halting at the first
// failed result and surfacing its stage-tagged classification.
type Pipeline struct {
	stages []namedStage
	logger *slog.Logger
}

// NewDeployPipeline wires the normal run:
// provision -> transfer -> deploy -> configure-proxy -> validate.
func NewDeployPipeline(
	provisioner *Provisioner,
	transferer *Transferer,
	deployer *Deployer,
	proxy *ProxyConfigurer,
	validator *Validator,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
		stages: []namedStage{
			{domain.StageProvision, provisioner.Provision},
			{domain.StageTransfer, transferer.Transfer},
			{domain.StageDeploy, deployer.Deploy},
			{domain.StageProxy, proxy.Configure},
			{domain.StageValidate, validator.Validate},
		},
	}
}

// NewCleanupPipeline wires the teardown run: just cleanup.
func NewCleanupPipeline(cleaner *Cleaner, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
		stages: []namedStage{
			{domain.StageCleanup, cleaner.Cleanup},
		},
	}
}

// Run executes the stages in order. It returns nil when every stage
// succeeded or converged, and the first failure's stage error otherwise.
// No cross-stage recovery is attempted.
func (p *Pipeline) Run(ctx context.Context, dctx domain.DeploymentContext) *domain.StageError {
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return domain.NewStageError(stage.name, domain.ErrRemoteCommand, "run interrupted", "", err)
		}

		p.logger.Info("stage starting", "stage", stage.name)
		result := stage.run(ctx, dctx)

		switch result.Status {
		case domain.StageSkipped:
			p.logger.Info("stage already satisfied", "stage", stage.name, "detail", result.Detail)
		case domain.StageSuccess:
			p.logger.Info("stage complete", "stage", stage.name, "detail", result.Detail)
		default:
			p.logger.Error("stage failed",
				"stage", stage.name,
				"kind", string(result.Err.Kind),
				"detail", result.Detail,
				"remote_output", result.Err.Output,
			)
			return result.Err
		}
	}
	return nil
}
