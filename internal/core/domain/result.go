package domain

// =============================================================================
// Stage Results
// =============================================================================

// StageStatus is the outcome class of a single stage invocation.
type StageStatus string

const (
	// StageSuccess means the stage completed and its postcondition holds.
	StageSuccess StageStatus = "success"

	// StageFailed means the stage could not establish its postcondition.
	StageFailed StageStatus = "failed"

	// StageSkipped means the postcondition already held and the stage made
	// no change (idempotent convergence, not an error).
	StageSkipped StageStatus = "skipped"
)

// StageResult is the outcome of one stage invocation. Results are produced
// fresh per invocation and never persisted.
type StageResult struct {
	// Status is the outcome class.
	Status StageStatus

	// Detail is a human-readable description of what happened.
	Detail string

	// Err carries the failure when Status is StageFailed; nil otherwise.
	// It is always a *StageError so the pipeline can surface the stage
	// name, error kind and captured remote output.
	Err *StageError
}

// Success returns a successful result with the given detail.
func Success(detail string) StageResult {
	return StageResult{Status: StageSuccess, Detail: detail}
}

// Skipped returns an already-satisfied result with the given detail.
func Skipped(detail string) StageResult {
	return StageResult{Status: StageSkipped, Detail: detail}
}

// Failed wraps a stage error into a failed result.
func Failed(err *StageError) StageResult {
	return StageResult{Status: StageFailed, Detail: err.Message, Err: err}
}

// OK reports whether the result allows the pipeline to continue.
func (r StageResult) OK() bool {
	return r.Status != StageFailed
}
