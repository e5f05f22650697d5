package stages

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/shell/sshexec"
)

// =============================================================================
// Validator
// =============================================================================

// Validator confirms service health through independent observation points:
// the engine service, the running-container list, a probe from inside the
// host and a probe from outside through the proxy. Only the first two are
// fatal; reachability probes can't reliably tell transient from broken, so
// they only warn.
type Validator struct {
	exec   sshexec.Executor
	http   *http.Client
	logger *slog.Logger
}

// NewValidator creates the validation stage.
func NewValidator(exec sshexec.Executor, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		exec:   exec,
		http:   &http.Client{Timeout: 5 * time.Second},
		logger: logger.With("component", "validate"),
	}
}

// WithHTTPClient overrides the external probe client. Used by tests.
func (v *Validator) WithHTTPClient(client *http.Client) *Validator {
	v.http = client
	return v
}

// Validate implements the stage contract.
func (v *Validator) Validate(ctx context.Context, dctx domain.DeploymentContext) domain.StageResult {
	// 1. Engine service must be active; nothing downstream can be trusted
	// otherwise.
	if _, err := v.exec.Run(ctx, "systemctl is-active --quiet docker"); err != nil {
		if isRemoteExit(err) {
			return domain.Failed(domain.NewStageError(
				domain.StageValidate, domain.ErrServiceNotRunning,
				"container engine service is not active", "", err))
		}
		return domain.Failed(classify(domain.StageValidate, domain.ErrRemoteCommand, "engine service check failed", err))
	}

	// 2. The workload must appear in the running-container list.
	out, err := v.exec.Run(ctx, "docker ps --format '{{.Names}}'")
	if err != nil {
		return domain.Failed(classify(domain.StageValidate, domain.ErrRemoteCommand, "container listing failed", err))
	}
	if !containerListed(out, dctx.Identity) {
		return domain.Failed(domain.NewStageError(
			domain.StageValidate, domain.ErrWorkloadNotRunning,
			fmt.Sprintf("no running container for %q", dctx.Identity), strings.TrimSpace(out), nil))
	}

	// 3. Best-effort reachability, warnings only.
	v.probeInternal(ctx, dctx)
	v.probeExternal(ctx, dctx)

	return domain.Success("workload validated")
}

// containerListed reports whether any running container belongs to the
// workload. Single containers are named exactly by identity; compose
// containers carry the identity as their project prefix.
func containerListed(psOutput, identity string) bool {
	for _, line := range strings.Split(strings.TrimSpace(psOutput), "\n") {
		name := strings.TrimSpace(line)
		if name == identity || strings.HasPrefix(name, identity+"-") || strings.HasPrefix(name, identity+"_") {
			return true
		}
	}
	return false
}

// probeInternal hits the workload on its internal port from inside the host.
func (v *Validator) probeInternal(ctx context.Context, dctx domain.DeploymentContext) {
	cmd := fmt.Sprintf("curl -fsS -m 5 -o /dev/null http://%s/", dctx.InternalAddress())
	if _, err := v.exec.Run(ctx, cmd); err != nil {
		v.logger.Warn("internal reachability probe failed", "address", dctx.InternalAddress(), "error", err)
		return
	}
	v.logger.Info("internal probe ok", "address", dctx.InternalAddress())
}

// probeExternal hits the workload through the reverse proxy, falling back
// to the published port directly when the proxied probe fails.
func (v *Validator) probeExternal(ctx context.Context, dctx domain.DeploymentContext) {
	host := dctx.PublicHost
	if host == "" {
		host = dctx.Target.Host
	}

	proxied := fmt.Sprintf("http://%s/", dctx.Target.Host)
	err := v.probeURL(ctx, proxied, host)
	if err == nil {
		v.logger.Info("external probe ok", "url", proxied)
		return
	}
	v.logger.Warn("proxied external probe failed, trying direct port", "url", proxied, "error", err)

	direct := fmt.Sprintf("http://%s:%d/", dctx.Target.Host, dctx.InternalPort)
	if err := v.probeURL(ctx, direct, ""); err != nil {
		v.logger.Warn("external reachability probe failed", "url", direct, "error", err)
		return
	}
	v.logger.Info("external probe ok", "url", direct)
}

func (v *Validator) probeURL(ctx context.Context, url, hostHeader string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if hostHeader != "" {
		req.Host = hostHeader
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
