package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Transfer Tests
// =============================================================================

// fakeRsync records its invocations and plays scripted outputs.
type fakeRsync struct {
	outputs []string
	err     error
	calls   [][]string
}

func (f *fakeRsync) run(_ context.Context, args []string) (string, error) {
	f.calls = append(f.calls, args)
	out := ""
	if len(f.outputs) > 0 {
		out = f.outputs[0]
		f.outputs = f.outputs[1:]
	}
	return out, f.err
}

func newTransferer(exec *fakeExec, rsync *fakeRsync) *Transferer {
	t := NewTransferer(exec, nil)
	t.rsync = rsync.run
	return t
}

func TestTransfer_PreparesRemoteDirectory(t *testing.T) {
	exec := newFakeExec()
	rsync := &fakeRsync{outputs: []string{">f+++++++++ main.go\n"}}

	result := newTransferer(exec, rsync).Transfer(context.Background(), testContext())
	require.True(t, result.OK())

	assert.True(t, exec.sawCommand("mkdir -p '/srv/apps/widget-api' && chown 'deploy': '/srv/apps/widget-api'"))
}

func TestTransfer_MirrorsWithDeleteAndExcludesVCS(t *testing.T) {
	exec := newFakeExec()
	rsync := &fakeRsync{outputs: []string{">f+++++++++ main.go\n"}}

	result := newTransferer(exec, rsync).Transfer(context.Background(), testContext())
	require.True(t, result.OK())

	require.Len(t, rsync.calls, 1)
	args := strings.Join(rsync.calls[0], " ")
	assert.Contains(t, args, "--delete")
	assert.Contains(t, args, "--exclude=.git")
	assert.Contains(t, args, "/tmp/src/widget-api/")
	assert.Contains(t, args, "deploy@10.0.0.5:/srv/apps/widget-api/")
}

func TestTransfer_UnchangedSource_Skipped(t *testing.T) {
	exec := newFakeExec()
	rsync := &fakeRsync{outputs: []string{""}} // itemized output empty: no deltas

	result := newTransferer(exec, rsync).Transfer(context.Background(), testContext())

	require.True(t, result.OK())
	assert.Equal(t, "skipped", string(result.Status))
}

func TestTransfer_SecondRunProducesNoDeltas(t *testing.T) {
	exec := newFakeExec()
	rsync := &fakeRsync{outputs: []string{">f+++++++++ main.go\n", ""}}
	tr := newTransferer(exec, rsync)

	first := tr.Transfer(context.Background(), testContext())
	second := tr.Transfer(context.Background(), testContext())

	assert.Equal(t, "success", string(first.Status))
	assert.Equal(t, "skipped", string(second.Status))
}

func TestTransfer_RsyncFailureIsFatal(t *testing.T) {
	exec := newFakeExec()
	rsync := &fakeRsync{err: errors.New("exit status 12"), outputs: []string{"rsync: connection unexpectedly closed"}}

	result := newTransferer(exec, rsync).Transfer(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "transfer_error", string(result.Err.Kind))
	assert.Contains(t, result.Err.Output, "connection unexpectedly closed")
}

func TestTransfer_RemoteDirFailureIsFatal(t *testing.T) {
	exec := newFakeExec(
		execRule{match: "mkdir -p", err: remoteExit("permission denied")},
	)
	rsync := &fakeRsync{}

	result := newTransferer(exec, rsync).Transfer(context.Background(), testContext())

	require.False(t, result.OK())
	assert.Equal(t, "transfer_error", string(result.Err.Kind))
	assert.Empty(t, rsync.calls)
}

func TestTransfer_CustomExcludes(t *testing.T) {
	exec := newFakeExec()
	rsync := &fakeRsync{outputs: []string{""}}
	tr := newTransferer(exec, rsync)
	tr.Excludes = []string{"node_modules", ".env"}

	tr.Transfer(context.Background(), testContext())

	require.Len(t, rsync.calls, 1)
	args := strings.Join(rsync.calls[0], " ")
	assert.Contains(t, args, "--exclude=node_modules")
	assert.Contains(t, args, "--exclude=.env")
}
