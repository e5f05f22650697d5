// Package sshexec executes shell commands on the remote deployment host
// over SSH. Every pipeline stage runs through the Executor interface;
// tests substitute fakes.
package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/core/remote"
)

// =============================================================================
// Executor Interface
// =============================================================================

// Executor runs a command on the remote host and returns its combined
// output. A nil error means the command exited zero.
type Executor interface {
	// Run executes command in a login, non-interactive shell.
	Run(ctx context.Context, command string) (string, error)

	// RunInput executes command with input streamed to its stdin.
	RunInput(ctx context.Context, command string, input io.Reader) (string, error)
}

// =============================================================================
// Errors
// =============================================================================

// ConnectError means the transport could not be established.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// CommandError means the remote command exited non-zero. Output is captured
// for diagnostics.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command failed: %v", e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SSH Executor
// =============================================================================

// Config configures the SSH executor.
type Config struct {
	// CommandTimeout bounds a single remote command. Image builds are the
	// slowest commands this runs. Default: 10 minutes.
	CommandTimeout time.Duration

	// ConnectTimeout bounds the SSH dial. Default: 10 seconds.
	ConnectTimeout time.Duration
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{
		CommandTimeout: 10 * time.Minute,
		ConnectTimeout: 10 * time.Second,
	}
}

// SSHExecutor implements Executor over an SSH connection established lazily
// on first use and reused across commands.
type SSHExecutor struct {
	target domain.RemoteTarget
	signer ssh.Signer
	config Config
	logger *slog.Logger

	mu     sync.Mutex // protects client
	client *ssh.Client
}

// NewSSHExecutor creates an executor bound to the target. The privateKey is
// the raw PEM key material.
func NewSSHExecutor(target domain.RemoteTarget, privateKey []byte, config Config, logger *slog.Logger) (*SSHExecutor, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parse SSH private key: %w", err)
	}

	if config.CommandTimeout == 0 {
		config.CommandTimeout = 10 * time.Minute
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SSHExecutor{
		target: target,
		signer: signer,
		config: config,
		logger: logger.With("component", "sshexec", "host", target.Host),
	}, nil
}

// connect establishes the SSH connection if not already connected.
func (e *SSHExecutor) connect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		// Check if connection is still alive
		_, _, err := e.client.SendRequest("keepalive@dockhand", true, nil)
		if err == nil {
			return nil
		}
		// Connection dead, reconnect
		e.client.Close()
		e.client = nil
	}

	timeout := e.target.ConnectTimeout
	if timeout == 0 {
		timeout = e.config.ConnectTimeout
	}

	config := &ssh.ClientConfig{
		User:            e.target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(e.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: known_hosts verification
		Timeout:         timeout,
	}

	addr := e.target.Address()
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return &ConnectError{Addr: addr, Err: err}
	}

	e.client = client
	return nil
}

// Close closes the SSH connection.
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}

// Run implements Executor.
func (e *SSHExecutor) Run(ctx context.Context, command string) (string, error) {
	return e.RunInput(ctx, command, nil)
}

// RunInput implements Executor. The command body is quoted once here and
// evaluated once by the remote login shell, so embedded quotes, variable
// expansions meant for remote evaluation and newlines survive intact.
func (e *SSHExecutor) RunInput(ctx context.Context, command string, input io.Reader) (string, error) {
	if err := e.connect(); err != nil {
		return "", err
	}

	e.mu.Lock()
	session, err := e.client.NewSession()
	e.mu.Unlock()
	if err != nil {
		return "", &ConnectError{Addr: e.target.Address(), Err: err}
	}
	defer session.Close()

	if input != nil {
		session.Stdin = input
	}

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	wrapped := "bash -lc " + remote.Quote(command)
	e.logger.Debug("running remote command", "command", command)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(wrapped)
	}()

	select {
	case <-ctx.Done():
		return output.String(), ctx.Err()
	case <-time.After(e.config.CommandTimeout):
		return output.String(), &CommandError{
			Command: command,
			Output:  output.String(),
			Err:     fmt.Errorf("timeout after %v", e.config.CommandTimeout),
		}
	case err := <-done:
		if err != nil {
			return output.String(), &CommandError{
				Command: command,
				Output:  output.String(),
				Err:     err,
			}
		}
		return output.String(), nil
	}
}
