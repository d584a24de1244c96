package env

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizerEnvRemovesRequestedKeys(t *testing.T) {
	t.Setenv("GITREFORM_TEST_KEEP", "1")
	t.Setenv("GITREFORM_TEST_DROP", "1")

	env := SanitizerEnv("GITREFORM_TEST_DROP")
	require.Contains(t, env, "GITREFORM_TEST_KEEP=1")
	for _, e := range env {
		require.False(t, strings.HasPrefix(e, "GITREFORM_TEST_DROP="), e)
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("GITREFORM_TEST_BOOL", "true")
	v, err := GetBool("GITREFORM_TEST_BOOL", false)
	require.NoError(t, err)
	require.True(t, v)

	v, err = GetBool("GITREFORM_TEST_BOOL_UNSET", true)
	require.NoError(t, err)
	require.True(t, v)
}

func TestKeyHelpers(t *testing.T) {
	require.Equal(t, "ZETA_TERMINAL_PROMPT=true", ZETA_TERMINAL_PROMPT.WithBool(true))
	require.Equal(t, "ZETA_TERMINAL_PROMPT=off", ZETA_TERMINAL_PROMPT.With("off"))
}
