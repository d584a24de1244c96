package command

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestCommandOneLine(t *testing.T) {
	requireGit(t)
	cmd := New(context.Background(), NoDir, "git", "version")
	line, err := cmd.OneLine()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "git version"), line)
}

func TestCommandStdoutWriter(t *testing.T) {
	requireGit(t)
	var stdout strings.Builder
	cmd := NewFromOptions(context.Background(), &RunOpts{Stdout: &stdout}, "git", "version")
	require.NoError(t, cmd.Start())
	require.NoError(t, cmd.Wait())
	require.True(t, strings.HasPrefix(stdout.String(), "git version"), stdout.String())
}

func TestCommandCapturesStderr(t *testing.T) {
	requireGit(t)
	stderr := NewStderr()
	cmd := NewFromOptions(context.Background(), &RunOpts{Stderr: stderr}, "git", "no-such-subcommand-xyz")
	require.Error(t, cmd.Run())
	require.NotEmpty(t, stderr.String())
}

func TestLimitStderrTruncatesButReportsFullWrite(t *testing.T) {
	w := NewStderr()
	n, err := w.Write([]byte(strings.Repeat("x", STDERR_BUFFER_LIMIT)))
	require.NoError(t, err)
	require.Equal(t, STDERR_BUFFER_LIMIT, n)

	n, err = w.Write([]byte("overflow"))
	require.NoError(t, err)
	require.Equal(t, len("overflow"), n)
	require.Len(t, w.String(), STDERR_BUFFER_LIMIT)
}

func TestFromErrorMissingBinary(t *testing.T) {
	cmd := New(context.Background(), NoDir, "gitreform-no-such-binary-xyz")
	err := cmd.Run()
	require.Error(t, err)
	require.NotEmpty(t, FromError(err))
}
