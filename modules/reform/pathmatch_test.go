package reform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathMatcherPrefixGlobRegex(t *testing.T) {
	pm, err := NewPathMatcher(
		[]string{"docs/"},
		[]string{"*.png"},
		[]string{`^secrets/.*\.key$`},
		false,
		CompatSanitize,
	)
	require.NoError(t, err)

	require.True(t, pm.Matches("docs/readme.md"))
	require.True(t, pm.Matches("logo.png"))
	require.True(t, pm.Matches("secrets/prod.key"))
	require.False(t, pm.Matches("src/main.go"))
}

func TestPathMatcherInvert(t *testing.T) {
	pm, err := NewPathMatcher([]string{"vendor/"}, nil, nil, true, CompatSanitize)
	require.NoError(t, err)
	require.False(t, pm.Matches("vendor/lib.go"))
	require.True(t, pm.Matches("src/main.go"))
}

func TestPathMatcherNoPredicatesMatchesEverything(t *testing.T) {
	pm, err := NewPathMatcher(nil, nil, nil, false, CompatSanitize)
	require.NoError(t, err)
	require.True(t, pm.Matches("anything/at/all"))
}

func TestSubdirectoryFilterExtractsAndStripsPrefix(t *testing.T) {
	rs, err := NewRuleSet()
	require.NoError(t, err)
	require.NoError(t, rs.SubdirectoryFilter("lib"))

	require.True(t, rs.Paths.Matches("lib/a.go"))
	require.False(t, rs.Paths.Matches("cmd/main.go"))

	out, err := rs.Paths.ApplyRename([]byte("lib/a.go"))
	require.NoError(t, err)
	require.Equal(t, "a.go", string(out))
}

func TestToSubdirectoryFilterMovesEveryPathUnderPrefix(t *testing.T) {
	rs, err := NewRuleSet()
	require.NoError(t, err)
	rs.ToSubdirectoryFilter("vendored")

	out, err := rs.Paths.ApplyRename([]byte("a.go"))
	require.NoError(t, err)
	require.Equal(t, "vendored/a.go", string(out))
}

func TestRenameFirstMatchingPrefixWins(t *testing.T) {
	pm, err := NewPathMatcher(nil, nil, nil, false, CompatSanitize)
	require.NoError(t, err)
	pm.AddRename("old/", "new/")
	pm.AddRename("", "fallback/")

	out, renamed := pm.Rename([]byte("old/file.go"))
	require.True(t, renamed)
	require.Equal(t, "new/file.go", string(out))
}

func TestApplyRenameDropsEmptyResult(t *testing.T) {
	pm, err := NewPathMatcher(nil, nil, nil, false, CompatSanitize)
	require.NoError(t, err)
	pm.AddRename("all/", "")

	out, err := pm.ApplyRename([]byte("all/"))
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestSanitizeReservedCharacters(t *testing.T) {
	pm, err := NewPathMatcher(nil, nil, nil, false, CompatSanitize)
	require.NoError(t, err)
	out, err := pm.Sanitize([]byte(`weird<name>.txt`))
	require.NoError(t, err)
	require.Equal(t, "weird_name_.txt", string(out))
}

func TestSanitizeErrorPolicy(t *testing.T) {
	pm, err := NewPathMatcher(nil, nil, nil, false, CompatError)
	require.NoError(t, err)
	_, err = pm.Sanitize([]byte(`bad:name`))
	require.Error(t, err)
	require.True(t, IsKind(err, KindPathCompat))
}

func TestSanitizeSkipPolicyDrops(t *testing.T) {
	pm, err := NewPathMatcher(nil, nil, nil, false, CompatSkip)
	require.NoError(t, err)
	out, err := pm.Sanitize([]byte(`bad:name`))
	require.NoError(t, err)
	require.Nil(t, out)
}
