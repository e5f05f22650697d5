package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/core/health"
	"github.com/artpar/dockhand/internal/core/proxyconf"
	"github.com/artpar/dockhand/internal/shell/source"
	"github.com/artpar/dockhand/internal/shell/sshexec"
	"github.com/artpar/dockhand/internal/shell/stages"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file")
	cleanup := flag.Bool("cleanup", false, "Tear down the workload instead of deploying")
	logFile := flag.String("logfile", "", "Log file path (default: timestamped file in the working directory)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dockhand %s (built %s)\n", Version, BuildTime)
		return domain.ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return domain.ExitParamError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return domain.ExitParamError
	}

	logPath := *logFile
	if logPath == "" {
		logPath = DefaultLogFile(time.Now())
	}
	logger, logCloser, err := SetupLogger(cfg, logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		return domain.ExitParamError
	}
	defer logCloser.Close()

	logger = logger.With("run_id", uuid.NewString())
	logger.Info("starting dockhand",
		"version", Version,
		"cleanup", *cleanup,
		"host", cfg.Remote.Host,
	)

	// Operator interrupt cancels the run; no partial-stage rollback is
	// attempted.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := execute(ctx, cfg, *cleanup, logger)
	if errors.Is(ctx.Err(), context.Canceled) && code != domain.ExitSuccess {
		logger.Warn("run interrupted by operator")
		return domain.ExitInterrupted
	}
	return code
}

// execute resolves the source, builds the deployment context and runs the
// selected pipeline.
func execute(ctx context.Context, cfg *Config, cleanup bool, logger *slog.Logger) int {
	repoName := cfg.Source.Repo
	if repoName == "" {
		repoName = cfg.Source.LocalDir
	}
	identity := domain.Identity(source.RepoName(repoName))
	if identity == "" {
		logger.Error("repository name yields an empty workload identity", "repo", repoName)
		return domain.ExitParamError
	}

	dctx := domain.DeploymentContext{
		Target: domain.RemoteTarget{
			Host:           cfg.Remote.Host,
			User:           cfg.Remote.User,
			KeyPath:        cfg.Remote.KeyPath,
			Port:           cfg.Remote.Port,
			ConnectTimeout: cfg.Remote.ConnectTimeout,
		},
		AppDir:       path.Join(cfg.Deploy.AppDirBase, identity),
		InternalPort: cfg.Deploy.InternalPort,
		Identity:     identity,
		PublicHost:   cfg.Deploy.PublicHost,
	}

	// Cleanup needs no source tree; deploy does.
	if !cleanup {
		dir, err := retrieveSource(ctx, cfg, logger)
		if err != nil {
			logger.Error("source retrieval failed", "error", err)
			return domain.ExitSourceError
		}
		if _, err := source.Validate(dir); err != nil {
			logger.Error("source validation failed", "error", err)
			return domain.ExitSourceError
		}
		dctx.LocalSourceDir = dir

		params, err := LoadRepoParams(dir)
		if err != nil {
			logger.Error("repository parameters invalid", "error", err)
			return domain.ExitSourceError
		}
		if params.PublicHost != "" {
			dctx.PublicHost = params.PublicHost
		}
		if params.InternalPort != 0 {
			dctx.InternalPort = params.InternalPort
		}
	}

	key, err := os.ReadFile(cfg.Remote.KeyPath)
	if err != nil {
		logger.Error("cannot read SSH key", "path", cfg.Remote.KeyPath, "error", err)
		return domain.ExitParamError
	}

	executor, err := sshexec.NewSSHExecutor(dctx.Target, key, sshexec.Config{
		CommandTimeout: cfg.Remote.CommandTimeout,
		ConnectTimeout: cfg.Remote.ConnectTimeout,
	}, logger)
	if err != nil {
		logger.Error("SSH setup failed", "error", err)
		return domain.ExitParamError
	}
	defer executor.Close()

	paths := proxyconf.Paths{
		AvailableDir: cfg.Proxy.AvailableDir,
		EnabledDir:   cfg.Proxy.EnabledDir,
	}

	var pipeline *stages.Pipeline
	if cleanup {
		pipeline = stages.NewCleanupPipeline(stages.NewCleaner(executor, paths, logger), logger)
	} else {
		poller := health.NewPoller(health.Config{
			SettleDelay: cfg.Health.SettleDelay,
			Interval:    cfg.Health.Interval,
			MaxSamples:  cfg.Health.MaxSamples,
		}, logger)

		transferer := stages.NewTransferer(executor, logger)
		transferer.Excludes = cfg.Transfer.Excludes

		pipeline = stages.NewDeployPipeline(
			stages.NewProvisioner(executor, logger),
			transferer,
			stages.NewDeployer(executor, poller, logger),
			stages.NewProxyConfigurer(executor, paths, logger),
			stages.NewValidator(executor, logger),
			logger,
		)
	}

	if stageErr := pipeline.Run(ctx, dctx); stageErr != nil {
		logger.Error("run failed",
			"stage", stageErr.Stage,
			"kind", string(stageErr.Kind),
			"error", stageErr.Error(),
		)
		return stageErr.ExitCode()
	}

	logger.Info("run complete", "identity", identity)
	return domain.ExitSuccess
}

// retrieveSource picks the retriever for the configured source.
func retrieveSource(ctx context.Context, cfg *Config, logger *slog.Logger) (string, error) {
	var retriever source.Retriever
	if cfg.Source.LocalDir != "" {
		retriever = source.LocalDir(cfg.Source.LocalDir)
	} else {
		retriever = &source.GitRetriever{
			RepoURL: cfg.Source.Repo,
			Branch:  cfg.Source.Branch,
			WorkDir: cfg.Source.WorkDir,
			Logger:  logger,
		}
	}
	return retriever.Retrieve(ctx)
}
