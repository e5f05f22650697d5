package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/core/remote"
	"github.com/artpar/dockhand/internal/shell/sshexec"
)

// =============================================================================
// Package Managers
// =============================================================================

type packageManager string

const (
	pmApt packageManager = "apt"
	pmYum packageManager = "yum"
	pmDnf packageManager = "dnf"
)

// probe order is fixed: apt first, then yum, then dnf.
var packageManagerProbes = []struct {
	manager packageManager
	binary  string
}{
	{pmApt, "apt-get"},
	{pmYum, "yum"},
	{pmDnf, "dnf"},
}

func (pm packageManager) installCommand(packages ...string) string {
	pkgs := strings.Join(packages, " ")
	switch pm {
	case pmApt:
		return "DEBIAN_FRONTEND=noninteractive apt-get install -y " + pkgs
	case pmYum:
		return "yum install -y " + pkgs
	default:
		return "dnf install -y " + pkgs
	}
}

// =============================================================================
// Provisioner
// =============================================================================

// Provisioner ensures the container engine, the compose CLI and the reverse
// proxy exist and run on the remote host. Safe against already-provisioned
// hosts: present tools are left alone.
type Provisioner struct {
	exec   sshexec.Executor
	logger *slog.Logger
}

// NewProvisioner creates the provisioning stage.
func NewProvisioner(exec sshexec.Executor, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		exec:   exec,
		logger: logger.With("component", "provision"),
	}
}

// Provision implements the stage contract.
func (p *Provisioner) Provision(ctx context.Context, dctx domain.DeploymentContext) domain.StageResult {
	pm, err := p.detectPackageManager(ctx)
	if err != nil {
		if isRemoteExit(err) {
			return domain.Failed(domain.NewStageError(
				domain.StageProvision, domain.ErrUnsupportedPlatform,
				"no supported package manager found (tried apt, yum, dnf)", "", err))
		}
		return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "package manager detection failed", err))
	}
	p.logger.Info("detected package manager", "manager", string(pm))

	installed := 0

	// Container engine. On Debian-family hosts the vendor repository must
	// be registered before the engine package exists; skip all of that when
	// the engine is already present.
	present, err := p.binaryPresent(ctx, "docker")
	if err != nil {
		return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "probe for docker failed", err))
	}
	if !present {
		if result := p.installDocker(ctx, pm); !result.OK() {
			return result
		}
		installed++
	}

	// Compose CLI ships as a docker plugin; probe the subcommand, not a
	// binary.
	if _, err := p.exec.Run(ctx, "docker compose version >/dev/null 2>&1"); err != nil {
		if !isRemoteExit(err) {
			return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "probe for docker compose failed", err))
		}
		p.logger.Info("installing docker compose plugin")
		if _, err := p.exec.Run(ctx, pm.installCommand("docker-compose-plugin")); err != nil {
			return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "install docker compose plugin failed", err))
		}
		installed++
	}

	// Reverse proxy.
	present, err = p.binaryPresent(ctx, "nginx")
	if err != nil {
		return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "probe for nginx failed", err))
	}
	if !present {
		p.logger.Info("installing nginx")
		if pm == pmApt {
			if _, err := p.exec.Run(ctx, "apt-get update -y"); err != nil {
				return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "apt-get update failed", err))
			}
		}
		if _, err := p.exec.Run(ctx, pm.installCommand("nginx")); err != nil {
			return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "install nginx failed", err))
		}
		installed++
	}

	// Enable and start services. "already enabled/started" is success.
	for _, service := range []string{"docker", "nginx"} {
		cmd := fmt.Sprintf("systemctl is-active --quiet %s || systemctl enable --now %s", service, service)
		if _, err := p.exec.Run(ctx, cmd); err != nil {
			return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand,
				fmt.Sprintf("enable service %s failed", service), err))
		}
	}

	p.logVersions(ctx)

	if installed == 0 {
		return domain.Skipped("host already provisioned")
	}
	return domain.Success(fmt.Sprintf("installed %d tool(s) via %s", installed, pm))
}

func (p *Provisioner) detectPackageManager(ctx context.Context) (packageManager, error) {
	var lastErr error
	for _, probe := range packageManagerProbes {
		_, err := p.exec.Run(ctx, remote.CommandExists(probe.binary))
		if err == nil {
			return probe.manager, nil
		}
		if !isRemoteExit(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (p *Provisioner) binaryPresent(ctx context.Context, binary string) (bool, error) {
	_, err := p.exec.Run(ctx, remote.CommandExists(binary))
	if err == nil {
		return true, nil
	}
	if isRemoteExit(err) {
		return false, nil
	}
	return false, err
}

// installDocker installs the container engine, registering the vendor
// repository first on Debian-family hosts.
func (p *Provisioner) installDocker(ctx context.Context, pm packageManager) domain.StageResult {
	p.logger.Info("installing container engine", "manager", string(pm))

	if pm == pmApt {
		setup := remote.And(
			"apt-get update -y",
			pm.installCommand("ca-certificates", "curl"),
			"install -m 0755 -d /etc/apt/keyrings",
			"curl -fsSL https://download.docker.com/linux/$(. /etc/os-release && echo \"$ID\")/gpg -o /etc/apt/keyrings/docker.asc",
			"chmod a+r /etc/apt/keyrings/docker.asc",
			`echo "deb [arch=$(dpkg --print-architecture) signed-by=/etc/apt/keyrings/docker.asc] https://download.docker.com/linux/$(. /etc/os-release && echo "$ID") $(. /etc/os-release && echo "$VERSION_CODENAME") stable" > /etc/apt/sources.list.d/docker.list`,
			"apt-get update -y",
		)
		if _, err := p.exec.Run(ctx, setup); err != nil {
			return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "register docker repository failed", err))
		}
		if _, err := p.exec.Run(ctx, pm.installCommand("docker-ce", "docker-ce-cli", "containerd.io", "docker-compose-plugin")); err != nil {
			return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "install docker failed", err))
		}
		return domain.Success("docker installed")
	}

	if _, err := p.exec.Run(ctx, pm.installCommand("docker")); err != nil {
		return domain.Failed(classify(domain.StageProvision, domain.ErrRemoteCommand, "install docker failed", err))
	}
	return domain.Success("docker installed")
}

// logVersions logs the detected tool versions. Best effort: a version probe
// failure never fails provisioning once the tool itself verified present.
func (p *Provisioner) logVersions(ctx context.Context) {
	probes := map[string]string{
		"docker":  "docker --version",
		"compose": "docker compose version",
		"nginx":   "nginx -v 2>&1",
	}
	for tool, cmd := range probes {
		out, err := p.exec.Run(ctx, cmd)
		if err != nil {
			p.logger.Warn("version probe failed", "tool", tool, "error", err)
			continue
		}
		p.logger.Info("tool version", "tool", tool, "version", strings.TrimSpace(out))
	}
}
