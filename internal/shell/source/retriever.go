// Package source retrieves and validates the local source tree the pipeline
// deploys from. Retrieval is a thin collaborator at the pipeline boundary:
// the pipeline only requires a local directory that contains a compose
// manifest, a build manifest, or neither.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/artpar/dockhand/internal/core/workload"
)

// =============================================================================
// Retriever Interface
// =============================================================================

// Retriever yields a local source directory ready for transfer.
type Retriever interface {
	Retrieve(ctx context.Context) (string, error)
}

// =============================================================================
// Repository Naming
// =============================================================================

// RepoName extracts the repository name from a git URL or filesystem path.
// The workload identity is derived from this name.
//
// Example:
//
//	RepoName("git@github.com:acme/widget-api.git") // returns "widget-api"
//	RepoName("https://github.com/acme/widget-api") // returns "widget-api"
func RepoName(repo string) string {
	name := strings.TrimRight(repo, "/")
	if idx := strings.LastIndexAny(name, "/:"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, ".git")
}

// =============================================================================
// Git Retriever
// =============================================================================

// GitRetriever clones the repository into a working directory, or fetches
// and resets if a previous clone is already there, so repeated runs reuse
// the same checkout.
type GitRetriever struct {
	RepoURL string
	Branch  string // empty means the remote default branch
	WorkDir string // parent directory for checkouts
	Logger  *slog.Logger
}

// Retrieve implements Retriever.
func (g *GitRetriever) Retrieve(ctx context.Context) (string, error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Join(g.WorkDir, RepoName(g.RepoURL))

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		logger.Info("updating existing checkout", "dir", dir)
		if out, err := g.git(ctx, dir, "fetch", "--all", "--prune"); err != nil {
			return "", fmt.Errorf("git fetch: %w: %s", err, out)
		}
		ref := "origin/HEAD"
		if g.Branch != "" {
			ref = "origin/" + g.Branch
		}
		if out, err := g.git(ctx, dir, "reset", "--hard", ref); err != nil {
			return "", fmt.Errorf("git reset: %w: %s", err, out)
		}
		return dir, nil
	}

	logger.Info("cloning repository", "repo", g.RepoURL, "dir", dir)
	args := []string{"clone", "--depth", "1"}
	if g.Branch != "" {
		args = append(args, "--branch", g.Branch)
	}
	args = append(args, g.RepoURL, dir)
	if out, err := g.git(ctx, "", args...); err != nil {
		return "", fmt.Errorf("git clone: %w: %s", err, out)
	}
	return dir, nil
}

func (g *GitRetriever) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// =============================================================================
// Local Directory Retriever
// =============================================================================

// LocalDir treats an existing directory as the retrieved source.
type LocalDir string

// Retrieve implements Retriever.
func (d LocalDir) Retrieve(_ context.Context) (string, error) {
	info, err := os.Stat(string(d))
	if err != nil {
		return "", fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source path %s is not a directory", string(d))
	}
	return string(d), nil
}

// =============================================================================
// Validation
// =============================================================================

// Validate inspects the retrieved tree. When a compose manifest is present
// it must parse; a broken manifest fails here rather than mid-deploy on the
// remote host. Returns the compose manifest filename found, or "".
func Validate(dir string) (string, error) {
	for _, name := range workload.ComposeManifests {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := workload.ParseComposeServices(string(content)); err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		return name, nil
	}
	return "", nil
}
