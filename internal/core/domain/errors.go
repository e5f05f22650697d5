package domain

import "fmt"

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind classifies a stage failure. Every failure surfaced by the
// pipeline carries exactly one kind; kinds are stage-scoped and never
// recovered from within a run.
type ErrorKind string

const (
	// ErrConnection means the remote transport could not be reached.
	ErrConnection ErrorKind = "connection_error"

	// ErrRemoteCommand means a remote command exited non-zero.
	ErrRemoteCommand ErrorKind = "remote_command_error"

	// ErrUnsupportedPlatform means no known package manager was found.
	ErrUnsupportedPlatform ErrorKind = "unsupported_platform"

	// ErrTransfer means the source tree could not be mirrored remotely.
	ErrTransfer ErrorKind = "transfer_error"

	// ErrNoWorkloadManifest means neither a compose manifest nor a build
	// manifest was found in the remote application directory.
	ErrNoWorkloadManifest ErrorKind = "no_workload_manifest"

	// ErrDeploy means a build/run step of the deploy stage failed.
	ErrDeploy ErrorKind = "deploy_error"

	// ErrHealthCheckTimeout means the workload never reported healthy
	// within the sample budget. The workload is left running.
	ErrHealthCheckTimeout ErrorKind = "health_check_timeout"

	// ErrProxyConfigInvalid means the generated proxy configuration failed
	// syntax validation; the previously active configuration keeps serving.
	ErrProxyConfigInvalid ErrorKind = "proxy_config_invalid"

	// ErrServiceNotRunning means the container engine service is not active.
	ErrServiceNotRunning ErrorKind = "service_not_running"

	// ErrWorkloadNotRunning means the workload container is absent from the
	// running-container list.
	ErrWorkloadNotRunning ErrorKind = "workload_not_running"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess     = 0
	ExitParamError  = 10
	ExitSourceError = 20
	ExitConnection  = 30
	ExitProvision   = 40
	ExitTransfer    = 50
	ExitDeploy      = 60
	ExitValidation  = 70
	ExitCleanup     = 80
	ExitInterrupted = 130
)

// exitByKind maps error kinds with a dedicated exit code. Kinds not listed
// here (the generic remote command failure) take the exit code of the stage
// they occurred in.
var exitByKind = map[ErrorKind]int{
	ErrConnection:          ExitConnection,
	ErrUnsupportedPlatform: ExitProvision,
	ErrProxyConfigInvalid:  ExitProvision,
	ErrTransfer:            ExitTransfer,
	ErrNoWorkloadManifest:  ExitDeploy,
	ErrDeploy:              ExitDeploy,
	ErrHealthCheckTimeout:  ExitValidation,
	ErrServiceNotRunning:   ExitValidation,
	ErrWorkloadNotRunning:  ExitValidation,
}

// exitByStage is the fallback exit code for failures that only carry the
// stage they occurred in.
var exitByStage = map[string]int{
	StageProvision: ExitProvision,
	StageTransfer:  ExitTransfer,
	StageDeploy:    ExitDeploy,
	StageProxy:     ExitProvision,
	StageValidate:  ExitValidation,
	StageCleanup:   ExitCleanup,
}

// Stage names as they appear in results, logs and exit-code mapping.
const (
	StageProvision = "provision"
	StageTransfer  = "transfer"
	StageDeploy    = "deploy"
	StageProxy     = "configure-proxy"
	StageValidate  = "validate"
	StageCleanup   = "cleanup"
)

// =============================================================================
// Stage Errors
// =============================================================================

// StageError is a classified stage failure with the remote diagnostic text
// captured at the point of failure.
type StageError struct {
	Stage   string    // Stage the failure occurred in
	Kind    ErrorKind // Failure classification
	Message string    // Human-readable description
	Output  string    // Captured remote output, if any
	Err     error     // Underlying cause, if any
}

func (e *StageError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Message, e.Output)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit code for this failure, preferring the
// kind's dedicated code and falling back to the stage's code.
func (e *StageError) ExitCode() int {
	if code, ok := exitByKind[e.Kind]; ok {
		return code
	}
	if code, ok := exitByStage[e.Stage]; ok {
		return code
	}
	return ExitConnection
}

// NewStageError creates a classified stage error.
func NewStageError(stage string, kind ErrorKind, message, output string, err error) *StageError {
	return &StageError{
		Stage:   stage,
		Kind:    kind,
		Message: message,
		Output:  output,
		Err:     err,
	}
}
