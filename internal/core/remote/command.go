// Package remote provides pure helpers for building remote shell commands.
// Every value interpolated into a remote command goes through Quote, so
// identities and paths can never break out of their argument position.
// This package has no I/O dependencies.
package remote

import "strings"

// =============================================================================
// Quoting
// =============================================================================

// Quote wraps s in POSIX single quotes so the remote shell receives it as a
// single literal argument. Embedded single quotes are rendered with the
// standard '\'' close-escape-reopen sequence; everything else, including
// newlines, dollar signs and backticks, passes through untouched.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// QuoteAll quotes every argument and joins them with spaces.
func QuoteAll(args ...string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, Quote(a))
	}
	return strings.Join(quoted, " ")
}

// =============================================================================
// Command Builders
// =============================================================================

// And joins commands so the sequence stops at the first failure.
func And(commands ...string) string {
	return strings.Join(commands, " && ")
}

// Tolerant appends "|| true" so an expected failure (target already absent,
// nothing to tear down) reads as success. Idempotent steps opt in here at the
// command level; the executor itself never swallows failures.
func Tolerant(command string) string {
	return command + " || true"
}

// CommandExists probes for a binary on the remote PATH. Exit status is the
// only output.
func CommandExists(binary string) string {
	return "command -v " + Quote(binary) + " >/dev/null 2>&1"
}

// FileExists probes for a regular file on the remote host.
func FileExists(path string) string {
	return "test -f " + Quote(path)
}

// WriteStdin builds a command that writes the executor's stdin stream to
// path, creating parent directories first.
func WriteStdin(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "cat > " + Quote(path)
	}
	dir := path[:idx]
	return And("mkdir -p "+Quote(dir), "cat > "+Quote(path))
}
