package reform

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func dataBlock(s string) string {
	return fmt.Sprintf("data %d\n%s\n", len(s), s)
}

func newTestOrchestrator(t *testing.T, rs *RuleSet) *Orchestrator {
	t.Helper()
	cfg := &Config{Rules: rs, DryRun: true}
	o, err := NewOrchestrator(cfg)
	require.NoError(t, err)
	return o
}

func TestOrchestratorProcessRoundTrip(t *testing.T) {
	rs := baseRuleSet(t)
	o := newTestOrchestrator(t, rs)

	var in strings.Builder
	in.WriteString("feature done\n")
	in.WriteString("blob\nmark :1\n")
	in.WriteString(dataBlock("hello"))
	in.WriteString("commit refs/heads/main\nmark :2\n")
	in.WriteString("author A <a@e.com> 1700000000 +0000\n")
	in.WriteString("committer A <a@e.com> 1700000000 +0000\n")
	in.WriteString(dataBlock("initial commit"))
	in.WriteString("M 100644 :1 lib/a.txt\n\n")
	in.WriteString("commit refs/heads/main\nmark :3\nfrom :2\n")
	in.WriteString("author A <a@e.com> 1700000100 +0000\n")
	in.WriteString("committer A <a@e.com> 1700000100 +0000\n")
	in.WriteString(dataBlock("second commit"))
	in.WriteString("M 100644 :1 b.txt\n\n")
	in.WriteString("tag v1.0\nmark :4\nfrom :3\n")
	in.WriteString("tagger A <a@e.com> 1700000200 +0000\n")
	in.WriteString(dataBlock("release"))
	in.WriteString("reset refs/heads/main\nfrom :3\n")
	in.WriteString("done\n")

	var out bytes.Buffer
	result, err := o.Process(strings.NewReader(in.String()), &out)
	require.NoError(t, err)

	output := out.String()
	require.Contains(t, output, "feature done\n")
	require.Contains(t, output, "blob\nmark :1\n")
	require.Contains(t, output, "commit refs/heads/main\nmark :2\n")
	require.Contains(t, output, "commit refs/heads/main\nmark :3\n")
	require.Contains(t, output, "from :2\n")
	require.Contains(t, output, "tag v1.0\n")
	require.Contains(t, output, "reset refs/heads/main\n")
	require.Contains(t, output, "done\n")

	require.Contains(t, result.CommitOriginalOID, int64(2))
	require.Contains(t, result.CommitOriginalOID, int64(3))
	require.Empty(t, result.RefRenames)
}

func TestOrchestratorProcessPrunesFilteredEmptyCommitAndEmitsAlias(t *testing.T) {
	rs := baseRuleSet(t)
	require.NoError(t, rs.SubdirectoryFilter("lib"))
	o := newTestOrchestrator(t, rs)

	var in strings.Builder
	in.WriteString("blob\nmark :1\n")
	in.WriteString(dataBlock("hello"))
	in.WriteString("commit refs/heads/main\nmark :2\n")
	in.WriteString("author A <a@e.com> 1700000000 +0000\n")
	in.WriteString("committer A <a@e.com> 1700000000 +0000\n")
	in.WriteString(dataBlock("initial commit"))
	in.WriteString("M 100644 :1 lib/a.txt\n\n")
	in.WriteString("commit refs/heads/main\nmark :3\nfrom :2\n")
	in.WriteString("author A <a@e.com> 1700000100 +0000\n")
	in.WriteString("committer A <a@e.com> 1700000100 +0000\n")
	in.WriteString(dataBlock("outside filter"))
	in.WriteString("M 100644 :1 cmd/main.go\n\n")
	in.WriteString("tag v1.0\nmark :4\nfrom :3\n")
	in.WriteString("tagger A <a@e.com> 1700000200 +0000\n")
	in.WriteString(dataBlock("release"))
	in.WriteString("reset refs/heads/main\nfrom :3\n")
	in.WriteString("done\n")

	var out bytes.Buffer
	result, err := o.Process(strings.NewReader(in.String()), &out)
	require.NoError(t, err)
	require.True(t, result.PrunedMarks[3])
	require.False(t, result.PrunedMarks[2])
	require.Equal(t, []int64{2, 3}, result.CommitMarkOrder)

	output := out.String()
	require.Contains(t, output, "commit refs/heads/main\nmark :2\n")
	require.Contains(t, output, "M 100644 :1 a.txt\n")
	require.NotContains(t, output, "commit refs/heads/main\nmark :3\n")
	require.Contains(t, output, "alias\nmark :3\nto :2\n")
	require.Contains(t, output, "tag v1.0\nfrom :2\n")
	require.Contains(t, output, "reset refs/heads/main\nfrom :2\n")
}

func TestOrchestratorProcessKeepsRootCommitEmptiedByFiltering(t *testing.T) {
	rs := baseRuleSet(t)
	require.NoError(t, rs.SubdirectoryFilter("lib"))
	o := newTestOrchestrator(t, rs)

	var in strings.Builder
	in.WriteString("blob\nmark :1\n")
	in.WriteString(dataBlock("hello"))
	in.WriteString("commit refs/heads/main\nmark :2\n")
	in.WriteString("author A <a@e.com> 1700000000 +0000\n")
	in.WriteString("committer A <a@e.com> 1700000000 +0000\n")
	in.WriteString(dataBlock("outside filter"))
	in.WriteString("M 100644 :1 cmd/main.go\n\n")
	in.WriteString("done\n")

	var out bytes.Buffer
	result, err := o.Process(strings.NewReader(in.String()), &out)
	require.NoError(t, err)

	// A root with no kept predecessor cannot be aliased anywhere; it must
	// survive as an (empty) commit rather than emit an invalid `to :0`.
	require.False(t, result.PrunedMarks[2])
	output := out.String()
	require.Contains(t, output, "commit refs/heads/main\nmark :2\n")
	require.NotContains(t, output, "to :0")
}

func TestOrchestratorProcessStripsOversizeBlobAndDeletesPath(t *testing.T) {
	rs := baseRuleSet(t)
	rs.MaxBlobSize = 10
	o := newTestOrchestrator(t, rs)

	var in strings.Builder
	in.WriteString("blob\nmark :1\n")
	in.WriteString(dataBlock("twenty bytes of data"))
	in.WriteString("commit refs/heads/main\nmark :2\n")
	in.WriteString("author A <a@e.com> 1700000000 +0000\n")
	in.WriteString("committer A <a@e.com> 1700000000 +0000\n")
	in.WriteString(dataBlock("add big file"))
	in.WriteString("M 100644 :1 big.bin\n\n")
	in.WriteString("done\n")

	var out bytes.Buffer
	_, err := o.Process(strings.NewReader(in.String()), &out)
	require.NoError(t, err)

	output := out.String()
	require.NotContains(t, output, "blob\nmark :1\n")
	require.NotContains(t, output, "M 100644 :1 big.bin\n")
	require.Contains(t, output, "D big.bin\n")
}

func TestOrchestratorProcessRewritesTagMessage(t *testing.T) {
	rs := baseRuleSet(t)
	rs.MessageRules = []ReplaceRule{
		{Kind: RuleLiteral, Pattern: "internal", Replacement: "public"},
	}
	o := newTestOrchestrator(t, rs)

	var in strings.Builder
	in.WriteString("commit refs/heads/main\nmark :1\n")
	in.WriteString("author A <a@e.com> 1700000000 +0000\n")
	in.WriteString("committer A <a@e.com> 1700000000 +0000\n")
	in.WriteString(dataBlock("initial commit"))
	in.WriteString("\n")
	in.WriteString("tag v1.0\nmark :2\nfrom :1\n")
	in.WriteString("tagger A <a@e.com> 1700000200 +0000\n")
	in.WriteString(dataBlock("internal release"))
	in.WriteString("done\n")

	var out bytes.Buffer
	_, err := o.Process(strings.NewReader(in.String()), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "public release")
	require.NotContains(t, out.String(), "internal release")
}

func TestOrchestratorProcessTracksBranchRenameInRefMap(t *testing.T) {
	rs := baseRuleSet(t)
	rs.BranchRenames = []pathRenameRule{{OldPrefix: "main", NewPrefix: "trunk"}}
	o := newTestOrchestrator(t, rs)

	var in strings.Builder
	in.WriteString("commit refs/heads/main\nmark :1\n")
	in.WriteString("author A <a@e.com> 1700000000 +0000\n")
	in.WriteString("committer A <a@e.com> 1700000000 +0000\n")
	in.WriteString(dataBlock("initial commit"))
	in.WriteString("\n")
	in.WriteString("done\n")

	var out bytes.Buffer
	result, err := o.Process(strings.NewReader(in.String()), &out)
	require.NoError(t, err)

	require.Contains(t, out.String(), "commit refs/heads/trunk\n")
	require.Contains(t, result.RefRenames, RefRename{Old: "refs/heads/main", New: "refs/heads/trunk"})
}
