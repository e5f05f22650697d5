// Package domain contains the pure value types shared by every pipeline
// stage. This package has no I/O dependencies and is tested with values
// in/out.
package domain

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// =============================================================================
// Remote Target
// =============================================================================

// RemoteTarget holds the connection parameters for the deployment host.
// It is owned by a DeploymentContext and never mutated after construction.
type RemoteTarget struct {
	// Host is the address of the remote machine (IP or DNS name).
	Host string

	// User is the login user on the remote machine.
	User string

	// KeyPath is the path to the SSH private key on the local machine.
	KeyPath string

	// Port is the SSH port. Default: 22.
	Port int

	// ConnectTimeout bounds the SSH dial. Default: 10 seconds.
	ConnectTimeout time.Duration
}

// Address returns the target in host:port form for dialing.
func (t RemoteTarget) Address() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// =============================================================================
// Deployment Context
// =============================================================================

// DeploymentContext is the immutable per-run configuration threaded through
// every stage. It is fully constructed and validated before the pipeline
// starts; stages read it, never write it.
type DeploymentContext struct {
	// Target is the remote host the pipeline operates on.
	Target RemoteTarget

	// AppDir is the application directory on the remote host that mirrors
	// the local source tree.
	AppDir string

	// InternalPort is the port the workload listens on inside the container.
	// It is also the host port the container publishes and the port the
	// proxy route targets.
	InternalPort int

	// Identity is the workload identity derived from the repository name.
	// See Identity for the derivation rules.
	Identity string

	// PublicHost is the hostname the reverse proxy serves the workload on.
	PublicHost string

	// LocalSourceDir is the validated local source tree to transfer.
	LocalSourceDir string
}

// ImageTag returns the image tag for the single-container variant.
func (c DeploymentContext) ImageTag() string {
	return c.Identity + ":latest"
}

// InternalAddress returns the loopback address the proxy route targets.
func (c DeploymentContext) InternalAddress() string {
	return fmt.Sprintf("127.0.0.1:%d", c.InternalPort)
}
