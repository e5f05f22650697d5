package stages

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/artpar/dockhand/internal/core/domain"
	"github.com/artpar/dockhand/internal/shell/sshexec"
)

// =============================================================================
// Test Helpers
// =============================================================================

// execRule scripts one response: the first rule whose match substring
// appears in the command wins.
type execRule struct {
	match  string
	output string
	err    error
}

// fakeExec records every command and serves scripted responses. Commands
// with no matching rule succeed with empty output.
type fakeExec struct {
	rules    []execRule
	commands []string
	inputs   map[string]string
}

func newFakeExec(rules ...execRule) *fakeExec {
	return &fakeExec{rules: rules, inputs: map[string]string{}}
}

func (f *fakeExec) Run(ctx context.Context, command string) (string, error) {
	return f.RunInput(ctx, command, nil)
}

func (f *fakeExec) RunInput(_ context.Context, command string, input io.Reader) (string, error) {
	f.commands = append(f.commands, command)
	if input != nil {
		data, _ := io.ReadAll(input)
		f.inputs[command] = string(data)
	}
	for _, rule := range f.rules {
		if strings.Contains(command, rule.match) {
			return rule.output, rule.err
		}
	}
	return "", nil
}

func (f *fakeExec) sawCommand(substr string) bool {
	for _, cmd := range f.commands {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

// remoteExit fakes a remote non-zero exit with captured output.
func remoteExit(output string) error {
	return &sshexec.CommandError{Output: output, Err: errors.New("Process exited with status 1")}
}

// connRefused fakes an unreachable transport.
func connRefused() error {
	return &sshexec.ConnectError{Addr: "10.0.0.5:22", Err: errors.New("connection refused")}
}

func testContext() domain.DeploymentContext {
	return domain.DeploymentContext{
		Target:         domain.RemoteTarget{Host: "10.0.0.5", User: "deploy", KeyPath: "/home/op/.ssh/id_ed25519"},
		AppDir:         "/srv/apps/widget-api",
		InternalPort:   3000,
		Identity:       "widget-api",
		PublicHost:     "widget.example.com",
		LocalSourceDir: "/tmp/src/widget-api",
	}
}

// failingHTTPClient never reaches the network.
func failingHTTPClient() *http.Client {
	return &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("no route to host")
	})}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
