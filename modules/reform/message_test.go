package reform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageTransformerLiteralAndRegexPasses(t *testing.T) {
	rs := baseRuleSet(t)
	rs.MessageRules = []ReplaceRule{
		{Kind: RuleLiteral, Pattern: "JIRA-1", Replacement: "ISSUE-1"},
		{Kind: RuleRegex, Pattern: `(?i)password=\S+`, Replacement: "password=REDACTED"},
	}
	mt, err := NewMessageTransformer(rs, nil)
	require.NoError(t, err)

	out := mt.Transform([]byte("Fixes JIRA-1; was using password=hunter2"))
	require.Equal(t, "Fixes ISSUE-1; was using password=REDACTED", string(out))
}

func TestMessageTransformerLongHashRemap(t *testing.T) {
	cm := NewCommitMap()
	oldOID := "1111111111111111111111111111111111111111"
	newOID := "2222222222222222222222222222222222222222"
	cm.Set(oldOID, newOID)

	mt, err := NewMessageTransformer(baseRuleSet(t), cm)
	require.NoError(t, err)

	out := mt.Transform([]byte("see commit " + oldOID))
	require.Equal(t, "see commit "+newOID, string(out))
}

func TestMessageTransformerShortHashRemapTruncatesReplacement(t *testing.T) {
	cm := NewCommitMap()
	oldOID := "abcdef0123456789abcdef0123456789abcdef01"
	newOID := "fedcba9876543210fedcba9876543210fedcba98"
	cm.Set(oldOID, newOID)

	mt, err := NewMessageTransformer(baseRuleSet(t), cm)
	require.NoError(t, err)

	out := mt.Transform([]byte("see abcdef0 for details"))
	require.Equal(t, "see fedcba9 for details", string(out))
}

func TestMessageTransformerShortHashToPrunedCommitBecomesZeroOID(t *testing.T) {
	cm := NewCommitMap()
	oldOID := "abcdef0123456789abcdef0123456789abcdef01"
	cm.Set(oldOID, ZeroOID)

	mt, err := NewMessageTransformer(baseRuleSet(t), cm)
	require.NoError(t, err)

	out := mt.Transform([]byte("see abcdef0 for details"))
	require.Equal(t, "see 0000000 for details", string(out))
}

func TestMessageTransformerLeavesUnknownHashAlone(t *testing.T) {
	mt, err := NewMessageTransformer(baseRuleSet(t), nil)
	require.NoError(t, err)

	out := mt.Transform([]byte("see cafebabe0123456789cafebabe0123456789ca for details"))
	require.Equal(t, "see cafebabe0123456789cafebabe0123456789ca for details", string(out))
}

func TestMessageTransformerAmbiguousShortHashLeftAlone(t *testing.T) {
	cm := NewCommitMap()
	cm.Set("aaaaaaa1111111111111111111111111111111111", "1111111111111111111111111111111111111111")
	cm.Set("aaaaaaa2222222222222222222222222222222222", "2222222222222222222222222222222222222222")

	mt, err := NewMessageTransformer(baseRuleSet(t), cm)
	require.NoError(t, err)

	out := mt.Transform([]byte("see aaaaaaa for details"))
	require.Equal(t, "see aaaaaaa for details", string(out))
}
