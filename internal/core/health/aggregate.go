package health

// =============================================================================
// Status Aggregation
// =============================================================================

// Aggregate folds per-container readings into one workload status. Compose
// stacks report one reading per service container; the polling loop treats
// the aggregate exactly like a single container's status.
//
// Rules:
//   - no readings at all: unknown
//   - any unhealthy reading: unhealthy
//   - any starting or unknown reading: starting
//   - otherwise (every reading healthy or none): healthy
//
// Containers without a health check read as none and never hold the
// aggregate back: absence of a health check is not a failure.
func Aggregate(statuses []Status) Status {
	if len(statuses) == 0 {
		return StatusUnknown
	}

	starting := false
	for _, s := range statuses {
		switch s {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusStarting, StatusUnknown:
			starting = true
		}
	}

	if starting {
		return StatusStarting
	}
	return StatusHealthy
}
