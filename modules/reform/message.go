package reform

import (
	"regexp"
	"strings"
)

// MessageTransformer applies literal/regex replacement and short/long
// hash remapping to commit and tag messages (4.4).
type MessageTransformer struct {
	literals   []ReplaceRule
	regexRules []compiledReplaceRule
	globRules  []compiledReplaceRule
	commitMap  *CommitMap
}

var hashRunRegex = regexp.MustCompile(`\b[0-9a-fA-F]{7,40}\b`)

func NewMessageTransformer(rs *RuleSet, commitMap *CommitMap) (*MessageTransformer, error) {
	regexRules, err := compileRules(rs.MessageRules, RuleRegex)
	if err != nil {
		return nil, err
	}
	globRules, err := compileRules(rs.MessageRules, RuleGlob)
	if err != nil {
		return nil, err
	}
	var literals []ReplaceRule
	for _, r := range rs.MessageRules {
		if r.Kind == RuleLiteral {
			literals = append(literals, r)
		}
	}
	if commitMap == nil {
		commitMap = NewCommitMap()
	}
	return &MessageTransformer{
		literals:   literals,
		regexRules: regexRules,
		globRules:  globRules,
		commitMap:  commitMap,
	}, nil
}

// Transform rewrites message in the order literal pass, regex passes,
// hash remap.
func (mt *MessageTransformer) Transform(message []byte) []byte {
	out := applyLiteralPass(message, mt.literals)
	out = applySequentialPass(out, mt.regexRules)
	out = applySequentialPass(out, mt.globRules)
	out = mt.remapHashes(out)
	return out
}

// remapHashes scans for word-boundary isolated 7-40 hex byte runs and
// substitutes any that resolve (by prefix for short runs, exactly for
// 40-char runs) against the commit map. An unmatched hash is left alone.
// A short hash resolving to a pruned commit is substituted with the
// zero-oid of the same length.
func (mt *MessageTransformer) remapHashes(message []byte) []byte {
	return hashRunRegex.ReplaceAllFunc(message, func(run []byte) []byte {
		hex := strings.ToLower(string(run))
		var newOID string
		var ok bool
		if len(hex) == 40 {
			newOID, ok = mt.commitMap.Lookup(hex)
		} else {
			newOID, ok = mt.commitMap.LookupPrefix(hex)
		}
		if !ok {
			return run
		}
		if len(newOID) < len(hex) {
			return run
		}
		truncated := newOID[:len(hex)]
		if preserveCase(string(run)) {
			return []byte(strings.ToUpper(truncated))
		}
		return []byte(truncated)
	})
}

func preserveCase(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'F' {
			return true
		}
	}
	return false
}
