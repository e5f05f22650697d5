// Package workload selects the workload variant for a deployment and
// inspects compose manifests. Variant selection is made once per deploy and
// threaded through subsequent steps rather than re-derived ad hoc.
package workload

import (
	"context"
	"fmt"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Manifests
// =============================================================================

// ComposeManifests are the compose manifest filenames probed at the
// application root, in precedence order.
var ComposeManifests = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yaml",
	"compose.yml",
}

// BuildManifest is the single-image build descriptor filename.
const BuildManifest = "Dockerfile"

// =============================================================================
// Variant Selection
// =============================================================================

// Kind is the workload variant tag.
type Kind string

const (
	// KindCompose is a multi-service stack driven by a compose manifest.
	KindCompose Kind = "compose"

	// KindSingleContainer is one image built from a build manifest.
	KindSingleContainer Kind = "single_container"

	// KindNone means no manifest was found; the pipeline must not guess.
	KindNone Kind = "none"
)

// Spec is the workload variant selected for one deploy.
type Spec struct {
	Kind Kind

	// ComposeFile is the matched compose manifest filename when Kind is
	// KindCompose.
	ComposeFile string
}

// Select picks the workload variant from manifest presence. The compose
// manifest takes precedence when both manifests exist.
func Select(composeFile string, hasBuildManifest bool) Spec {
	if composeFile != "" {
		return Spec{Kind: KindCompose, ComposeFile: composeFile}
	}
	if hasBuildManifest {
		return Spec{Kind: KindSingleContainer}
	}
	return Spec{Kind: KindNone}
}

// =============================================================================
// Compose Inspection
// =============================================================================

// Service is one service declared in a compose manifest.
type Service struct {
	Name string

	// HasHealthCheck reports whether the service declares a healthcheck.
	HasHealthCheck bool
}

// ParseComposeServices loads a compose manifest and returns its services.
// The load doubles as syntax validation of the manifest.
func ParseComposeServices(yamlContent string) ([]Service, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, fmt.Errorf("compose manifest is empty")
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{Filename: "docker-compose.yml", Content: []byte(yamlContent)},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("workload", true)
		opts.SkipValidation = false
	})
	if err != nil {
		return nil, fmt.Errorf("load compose manifest: %w", err)
	}

	if len(project.Services) == 0 {
		return nil, fmt.Errorf("compose manifest declares no services")
	}

	services := make([]Service, 0, len(project.Services))
	for _, svc := range project.Services {
		services = append(services, Service{
			Name:           svc.Name,
			HasHealthCheck: svc.HealthCheck != nil && !svc.HealthCheck.Disable,
		})
	}
	return services, nil
}

// =============================================================================
// Port Binding
// =============================================================================

// PublishSpec returns the validated host:container publish binding for the
// single-container variant. The internal port is published on the same host
// port.
func PublishSpec(internalPort int) (string, error) {
	spec := fmt.Sprintf("%d:%d", internalPort, internalPort)
	if _, err := nat.ParsePortSpec(spec); err != nil {
		return "", fmt.Errorf("invalid port binding %s: %w", spec, err)
	}
	return spec, nil
}
