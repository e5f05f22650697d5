package domain

// =============================================================================
// Workload Identity
// =============================================================================

// Identity derives the workload identity from a repository name.
//
// The identity names the image tag, the container, and the proxy route file,
// so it must be safe as both a filesystem name and a container identifier.
// The transformation rules are:
//   - Lowercase letters (a-z), digits (0-9), hyphens and underscores are kept
//   - Uppercase letters (A-Z) are converted to lowercase
//   - All other characters are removed
//
// This is a pure function: the same repository name always yields the same
// identity, which is what makes repeated pipeline runs converge on the same
// remote resources.
//
// Example:
//
//	Identity("widget-api")      // returns "widget-api"
//	Identity("Widget API 2.0")  // returns "widgetapi20"
func Identity(repoName string) string {
	id := ""
	for _, r := range repoName {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			id += string(r)
		} else if r >= 'A' && r <= 'Z' {
			id += string(r + 32) // convert to lowercase
		}
		// All other characters are dropped
	}
	return id
}
