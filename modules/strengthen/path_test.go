package strengthen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandPathAbsoluteUnchanged(t *testing.T) {
	abs := filepath.Join(string(filepath.Separator), "tmp", "gitreform")
	require.Equal(t, abs, ExpandPath(abs))
}

func TestExpandPathHomeRelative(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	require.Equal(t, filepath.Join(home, ".gitconfig"), ExpandPath("~/.gitconfig"))
}

func TestExpandPathRelativeBecomesAbsolute(t *testing.T) {
	out := ExpandPath("some/relative/path")
	require.True(t, filepath.IsAbs(out))
	require.Equal(t, "path", filepath.Base(out))
}

func TestSplitPathSkipsDotAndResolvesDotDot(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, SplitPath("a/./c/../b"))
	require.Empty(t, SplitPath(""))
}
