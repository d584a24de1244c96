package reform

import (
	"bytes"
	"regexp"
	"strings"
)

// BlobTransformer streams blob payloads through the size/strip/replace
// precedence chain described in 4.3.
type BlobTransformer struct {
	maxSize    int64
	strip      map[string]bool
	literals   []ReplaceRule
	regexRules []compiledReplaceRule
	globRules  []compiledReplaceRule

	// dropped records marks whose blob was dropped, so the commit
	// rewriter can convert `M :mark path` filechanges into `D path`.
	dropped map[int64]bool
}

type compiledReplaceRule struct {
	re          *regexp.Regexp
	replacement []byte
}

func compileRules(rules []ReplaceRule, kind RuleKind) ([]compiledReplaceRule, error) {
	var out []compiledReplaceRule
	for _, r := range rules {
		if r.Kind != kind {
			continue
		}
		pattern := r.Pattern
		if kind == RuleGlob {
			pattern = globToRegex(pattern)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, NewTransformError(err, "compile %v rule %q", kind, r.Pattern)
		}
		out = append(out, compiledReplaceRule{re: re, replacement: []byte(r.Replacement)})
	}
	return out, nil
}

// globToRegex compiles a blob-text glob rule ('*' and '?', no '/'
// anchoring semantics needed since blob content isn't a path) to an
// equivalent regex.
func globToRegex(g string) string {
	var b strings.Builder
	b.WriteString("(?s)")
	for i := 0; i < len(g); i++ {
		c := g[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

func NewBlobTransformer(rs *RuleSet) (*BlobTransformer, error) {
	regexRules, err := compileRules(rs.BlobTextRules, RuleRegex)
	if err != nil {
		return nil, err
	}
	globRules, err := compileRules(rs.BlobTextRules, RuleGlob)
	if err != nil {
		return nil, err
	}
	var literals []ReplaceRule
	for _, r := range rs.BlobTextRules {
		if r.Kind == RuleLiteral {
			literals = append(literals, r)
		}
	}
	return &BlobTransformer{
		maxSize:    rs.MaxBlobSize,
		strip:      rs.StripBlobs,
		literals:   literals,
		regexRules: regexRules,
		globRules:  globRules,
		dropped:    map[int64]bool{},
	}, nil
}

// Transform applies the size/strip/replace precedence chain to one blob.
// A nil payload with keep=false means the blob was dropped.
func (bt *BlobTransformer) Transform(b *Blob) (payload []byte, keep bool) {
	if bt.maxSize > 0 && int64(len(b.Data)) > bt.maxSize {
		bt.dropped[b.Mark] = true
		return nil, false
	}
	if len(b.OriginalOID) != 0 && bt.strip[b.OriginalOID] {
		bt.dropped[b.Mark] = true
		return nil, false
	}
	out := applyLiteralPass(b.Data, bt.literals)
	out = applySequentialPass(out, bt.regexRules)
	out = applySequentialPass(out, bt.globRules)
	return out, true
}

// IsDropped reports whether the blob for mark was dropped by a prior
// Transform call.
func (bt *BlobTransformer) IsDropped(mark int64) bool {
	return bt.dropped[mark]
}

// applyLiteralPass scans all literal patterns in a single left-to-right
// pass, taking the leftmost match among all patterns at each position
// (deterministic leftmost-match policy, 4.3). Later rules never rescan
// text produced by earlier matches within this pass.
func applyLiteralPass(data []byte, rules []ReplaceRule) []byte {
	if len(rules) == 0 {
		return data
	}
	var out bytes.Buffer
	i := 0
	for i < len(data) {
		bestLen := -1
		bestRule := -1
		for ri, r := range rules {
			pat := r.Pattern
			if len(pat) == 0 {
				continue
			}
			if bytes.HasPrefix(data[i:], []byte(pat)) {
				if bestLen < 0 || len(pat) > bestLen {
					bestLen = len(pat)
					bestRule = ri
				}
			}
		}
		if bestRule < 0 {
			out.WriteByte(data[i])
			i++
			continue
		}
		out.WriteString(rules[bestRule].Replacement)
		i += bestLen
	}
	return out.Bytes()
}

// applySequentialPass applies each compiled rule once, in declaration
// order, over the result of the previous rule — a single pass per rule,
// never rescanning a rule's own output.
func applySequentialPass(data []byte, rules []compiledReplaceRule) []byte {
	for _, r := range rules {
		data = r.re.ReplaceAll(data, r.replacement)
	}
	return data
}
