package reform

import (
	"bytes"
	"regexp"

	"github.com/emirpasic/gods/lists/arraylist"

	"github.com/antgroup/gitreform/modules/wildmatch"
)

// CompatPolicy governs what happens when a rewritten path is illegal on
// the host filesystem.
type CompatPolicy int

const (
	CompatSanitize CompatPolicy = iota
	CompatSkip
	CompatError
)

// pathRename is one old-prefix -> new-prefix pair, tried in declaration
// order; the first whose old-prefix is a byte-prefix of the path wins.
type pathRename struct {
	oldPrefix []byte
	newPrefix []byte
}

// PathMatcher evaluates include/exclude decisions against prefix, glob and
// regex predicates, and applies renames in declaration order. Renames
// are stored in an arraylist to keep them in the insertion order the rule
// file declared them, matching the "first matching prefix wins" semantics
// of 4.2.
type PathMatcher struct {
	prefixes []string
	globs    []*wildmatch.Wildmatch
	regexes  []*regexp.Regexp
	invert   bool

	renames *arraylist.List

	compat CompatPolicy
}

// NewPathMatcher builds a matcher from prefix/glob/regex predicate lists.
// A path matches when it matches any predicate; invert flips the final
// verdict. An empty predicate set matches everything (the no-op rule set
// used for idempotence testing).
func NewPathMatcher(prefixes []string, globs []string, regexes []string, invert bool, compat CompatPolicy) (*PathMatcher, error) {
	pm := &PathMatcher{
		prefixes: prefixes,
		invert:   invert,
		renames:  arraylist.New(),
		compat:   compat,
	}
	for _, g := range globs {
		pm.globs = append(pm.globs, wildmatch.NewWildmatch(g))
	}
	for _, r := range regexes {
		re, err := regexp.Compile(r)
		if err != nil {
			return nil, NewConfigError("compile path regex %q: %v", r, err)
		}
		pm.regexes = append(pm.regexes, re)
	}
	return pm, nil
}

// AddRename appends an old-prefix -> new-prefix pair. An empty oldPrefix
// prepends newPrefix to every path (subdirectory-filter's inverse, "move
// under subdirectory"); an empty newPrefix with non-empty oldPrefix
// extracts a subdirectory.
func (pm *PathMatcher) AddRename(oldPrefix, newPrefix string) {
	pm.renames.Add(pathRename{oldPrefix: []byte(oldPrefix), newPrefix: []byte(newPrefix)})
}

func hasNoPredicates(pm *PathMatcher) bool {
	return len(pm.prefixes) == 0 && len(pm.globs) == 0 && len(pm.regexes) == 0
}

// Matches reports whether path is included by this matcher.
func (pm *PathMatcher) Matches(path string) bool {
	if hasNoPredicates(pm) {
		return !pm.invert
	}
	matched := false
	for _, p := range pm.prefixes {
		if len(path) >= len(p) && path[:len(p)] == p {
			matched = true
			break
		}
	}
	if !matched {
		for _, g := range pm.globs {
			if g.Match(path) {
				matched = true
				break
			}
		}
	}
	if !matched {
		pb := []byte(path)
		for _, re := range pm.regexes {
			if re.Match(pb) {
				matched = true
				break
			}
		}
	}
	if pm.invert {
		return !matched
	}
	return matched
}

// Rename applies the first matching old-prefix->new-prefix pair to path
// and returns the rewritten path (empty if the rename consumed the whole
// path; ApplyRename drops such paths) along with whether any rename fired.
func (pm *PathMatcher) Rename(path []byte) (rewritten []byte, renamed bool) {
	for _, v := range pm.renames.Values() {
		r := v.(pathRename)
		if bytes.HasPrefix(path, r.oldPrefix) {
			rest := path[len(r.oldPrefix):]
			out := append(append([]byte{}, r.newPrefix...), rest...)
			return out, true
		}
	}
	return path, false
}

// Sanitize re-normalizes a path after rename: backslashes become forward
// slashes, and under CompatSanitize, reserved characters and trailing
// dots/spaces are replaced so the path is legal on case-preserving,
// reserved-character-sensitive filesystems (Windows being the practical
// motivating case).
var reservedChars = []byte(`<>:"|?*`)

func isReserved(b byte) bool {
	if b < 0x20 {
		return true
	}
	for _, r := range reservedChars {
		if b == r {
			return true
		}
	}
	return false
}

func (pm *PathMatcher) Sanitize(path []byte) ([]byte, error) {
	out := bytes.ReplaceAll(path, []byte(`\`), []byte(`/`))
	switch pm.compat {
	case CompatSkip:
		for _, b := range out {
			if isReserved(b) {
				return nil, nil
			}
		}
	case CompatError:
		for _, b := range out {
			if isReserved(b) {
				return nil, NewPathCompatError(string(path), "reserved character in path")
			}
		}
	default: // CompatSanitize
		for i, b := range out {
			if isReserved(b) {
				out[i] = '_'
			}
		}
		// Trim trailing dots/spaces from each path component.
		parts := bytes.Split(out, []byte("/"))
		for i, p := range parts {
			parts[i] = bytes.TrimRight(p, ". ")
			if len(parts[i]) == 0 && len(p) != 0 {
				parts[i] = []byte("_")
			}
		}
		out = bytes.Join(parts, []byte("/"))
	}
	return out, nil
}

// ApplyRename renames then sanitizes a path, applying the compat policy.
// A nil result with a nil error means the filechange should be dropped
// (empty path, or CompatSkip dropped a reserved character).
func (pm *PathMatcher) ApplyRename(path []byte) ([]byte, error) {
	renamed, _ := pm.Rename(path)
	if len(renamed) == 0 {
		return nil, nil
	}
	return pm.Sanitize(renamed)
}
