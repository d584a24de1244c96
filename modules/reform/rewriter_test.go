package reform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRewriter(t *testing.T, rs *RuleSet) (*CommitRewriter, *AliasMap) {
	t.Helper()
	blobs, err := NewBlobTransformer(rs)
	require.NoError(t, err)
	message, err := NewMessageTransformer(rs, nil)
	require.NoError(t, err)
	identity := NewIdentityTransformer(rs)
	aliases := NewAliasMap()
	return NewCommitRewriter(rs, blobs, message, identity, aliases), aliases
}

func TestCommitRewriterAppliesBranchRename(t *testing.T) {
	rs := baseRuleSet(t)
	rs.BranchRenames = []pathRenameRule{{OldPrefix: "main", NewPrefix: "trunk"}}
	cr, _ := newTestRewriter(t, rs)

	c := &Commit{Mark: 1, Ref: "refs/heads/main", FileChanges: []FileChange{{Op: OpModify, Path: "a.txt", Mark: 10, Mode: "100644"}}}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)

	require.False(t, rr.Pruned)
	require.Equal(t, "refs/heads/main", rr.OrigRef)
	require.Equal(t, "refs/heads/trunk", rr.Commit.Ref)
}

func TestCommitRewriterDropsPathOutsideFilter(t *testing.T) {
	rs := baseRuleSet(t)
	require.NoError(t, rs.SubdirectoryFilter("lib"))
	cr, _ := newTestRewriter(t, rs)

	c := &Commit{
		Mark: 1,
		Ref:  "refs/heads/main",
		FileChanges: []FileChange{
			{Op: OpModify, Path: "lib/a.go", Mark: 10, Mode: "100644"},
			{Op: OpModify, Path: "cmd/main.go", Mark: 11, Mode: "100644"},
		},
	}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.False(t, rr.Pruned)
	require.Len(t, rr.Commit.FileChanges, 1)
	require.Equal(t, "a.go", rr.Commit.FileChanges[0].Path)
}

func TestCommitRewriterConvertsDroppedBlobModifyToDelete(t *testing.T) {
	rs := baseRuleSet(t)
	rs.StripBlobs = map[string]bool{"deadbeef": true}
	blobs, err := NewBlobTransformer(rs)
	require.NoError(t, err)
	_, keep := blobs.Transform(&Blob{Mark: 99, OriginalOID: "deadbeef", Data: []byte("secret")})
	require.False(t, keep)

	message, err := NewMessageTransformer(rs, nil)
	require.NoError(t, err)
	cr := NewCommitRewriter(rs, blobs, message, NewIdentityTransformer(rs), NewAliasMap())

	c := &Commit{
		Mark: 1,
		Ref:  "refs/heads/main",
		FileChanges: []FileChange{
			{Op: OpModify, Path: "secret.txt", Mark: 99, Mode: "100644"},
		},
	}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.False(t, rr.Pruned)
	require.Len(t, rr.Commit.FileChanges, 1)
	require.Equal(t, OpDelete, rr.Commit.FileChanges[0].Op)
	require.Equal(t, "secret.txt", rr.Commit.FileChanges[0].Path)
}

func TestCommitRewriterPrunesCommitEmptiedByFiltering(t *testing.T) {
	rs := baseRuleSet(t)
	require.NoError(t, rs.SubdirectoryFilter("lib"))
	cr, aliases := newTestRewriter(t, rs)

	// Root commit kept, so the second (to-be-pruned) commit has a real
	// parent mark to alias onto.
	root := &Commit{Mark: 1, Ref: "refs/heads/main", FileChanges: []FileChange{
		{Op: OpModify, Path: "lib/a.go", Mark: 10, Mode: "100644"},
	}}
	rr0, err := cr.Rewrite(root)
	require.NoError(t, err)
	require.False(t, rr0.Pruned)

	c := &Commit{
		Mark:            2,
		Ref:             "refs/heads/main",
		Parents:         []int64{1},
		ParentOIDs:      []string{""},
		originallyEmpty: false,
		FileChanges: []FileChange{
			{Op: OpModify, Path: "cmd/main.go", Mark: 11, Mode: "100644"},
		},
	}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.True(t, rr.Pruned)
	require.Equal(t, int64(1), rr.AliasTarget)
	require.Equal(t, int64(1), aliases.Resolve(2))
}

func TestCommitRewriterPreservesOriginallyEmptyCommitUnderAutoPolicy(t *testing.T) {
	rs := baseRuleSet(t)
	cr, _ := newTestRewriter(t, rs)

	c := &Commit{Mark: 1, Ref: "refs/heads/main", originallyEmpty: true}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.False(t, rr.Pruned, "a deliberately empty commit must survive PruneAuto")
}

func TestCommitRewriterAlwaysPolicyPrunesEmptyCommitWithKeptParent(t *testing.T) {
	rs := baseRuleSet(t)
	rs.CommitPrune = PruneAlways
	cr, _ := newTestRewriter(t, rs)

	root := &Commit{Mark: 1, Ref: "refs/heads/main", FileChanges: []FileChange{
		{Op: OpModify, Path: "a.txt", Mark: 10, Mode: "100644"},
	}}
	rr0, err := cr.Rewrite(root)
	require.NoError(t, err)
	require.False(t, rr0.Pruned)

	c := &Commit{Mark: 2, Ref: "refs/heads/main", Parents: []int64{1}, ParentOIDs: []string{""}, originallyEmpty: true}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.True(t, rr.Pruned)
	require.Equal(t, int64(1), rr.AliasTarget)
}

func TestCommitRewriterKeepsParentlessCommitRegardlessOfPolicy(t *testing.T) {
	rs := baseRuleSet(t)
	rs.CommitPrune = PruneAlways
	cr, _ := newTestRewriter(t, rs)

	// No parents and no kept predecessor on the ref: there is no mark an
	// alias could point at, so even PruneAlways must keep it.
	c := &Commit{Mark: 1, Ref: "refs/heads/main", originallyEmpty: true}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.False(t, rr.Pruned)
}

func TestCommitRewriterNeverPolicyKeepsEmptiedCommit(t *testing.T) {
	rs := baseRuleSet(t)
	rs.CommitPrune = PruneNever
	require.NoError(t, rs.SubdirectoryFilter("lib"))
	cr, _ := newTestRewriter(t, rs)

	c := &Commit{
		Mark: 1,
		Ref:  "refs/heads/main",
		FileChanges: []FileChange{
			{Op: OpModify, Path: "cmd/main.go", Mark: 11, Mode: "100644"},
		},
	}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.False(t, rr.Pruned)
	require.Empty(t, rr.Commit.FileChanges)
}

func TestCommitRewriterResolvesParentThroughAliasChain(t *testing.T) {
	rs := baseRuleSet(t)
	cr, aliases := newTestRewriter(t, rs)
	aliases.Alias(1, 2)
	aliases.Alias(2, 3)

	c := &Commit{
		Mark:       4,
		Ref:        "refs/heads/main",
		Parents:    []int64{1},
		ParentOIDs: []string{""},
		FileChanges: []FileChange{
			{Op: OpModify, Path: "a.txt", Mark: 10, Mode: "100644"},
		},
	}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.False(t, rr.Pruned)
	require.Equal(t, []int64{3}, rr.Commit.Parents)
}

func TestCommitRewriterDegenerateMergeCollapsesToNonMerge(t *testing.T) {
	rs := baseRuleSet(t)
	cr, aliases := newTestRewriter(t, rs)
	// Both parents of the merge resolve to the same surviving commit.
	aliases.Alias(2, 1)

	c := &Commit{
		Mark:       3,
		Ref:        "refs/heads/main",
		Parents:    []int64{1, 2},
		ParentOIDs: []string{"", ""},
		FileChanges: []FileChange{
			{Op: OpModify, Path: "a.txt", Mark: 10, Mode: "100644"},
		},
	}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.False(t, rr.Pruned)
	require.Equal(t, []int64{1}, rr.Commit.Parents)
}

func TestCommitRewriterDedupesFileChangesLastWriteWins(t *testing.T) {
	rs := baseRuleSet(t)
	cr, _ := newTestRewriter(t, rs)

	c := &Commit{
		Mark: 1,
		Ref:  "refs/heads/main",
		FileChanges: []FileChange{
			{Op: OpModify, Path: "a.txt", Mark: 10, Mode: "100644"},
			{Op: OpModify, Path: "a.txt", Mark: 11, Mode: "100755"},
		},
	}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.Len(t, rr.Commit.FileChanges, 1)
	require.Equal(t, int64(11), rr.Commit.FileChanges[0].Mark)
	require.Equal(t, "100755", rr.Commit.FileChanges[0].Mode)
}

func TestCommitRewriterPathCompatErrorAborts(t *testing.T) {
	rs := baseRuleSet(t)
	pm, err := NewPathMatcher(nil, nil, nil, false, CompatError)
	require.NoError(t, err)
	rs.Paths = pm
	cr, _ := newTestRewriter(t, rs)

	c := &Commit{
		Mark: 1,
		Ref:  "refs/heads/main",
		FileChanges: []FileChange{
			{Op: OpModify, Path: "bad<name>.txt", Mark: 10, Mode: "100644"},
		},
	}
	_, err = cr.Rewrite(c)
	require.Error(t, err)
	require.True(t, IsKind(err, KindPathCompat))
}

func TestCommitRewriterNoFFKeepsEmptyMerge(t *testing.T) {
	rs := baseRuleSet(t)
	rs.NoFF = true
	cr, _ := newTestRewriter(t, rs)

	c := &Commit{
		Mark:       3,
		Ref:        "refs/heads/main",
		Parents:    []int64{1, 2},
		ParentOIDs: []string{"", ""},
	}
	rr, err := cr.Rewrite(c)
	require.NoError(t, err)
	require.False(t, rr.Pruned)
	require.Len(t, rr.Commit.Parents, 2)
}
