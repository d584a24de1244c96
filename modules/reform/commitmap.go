package reform

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/antgroup/gitreform/modules/git"
	"github.com/antgroup/gitreform/modules/strengthen"
)

// CommitMap is the old-oid -> new-oid table emitted at finalize (4.10) and
// consulted by the message transformer's hash remap (4.4). It is backed
// by an insertion-ordered map so that writing it back out reproduces
// stream order deterministically, matching the way the commit rewriter
// discovers commits.
type CommitMap struct {
	m *linkedhashmap.Map
}

func NewCommitMap() *CommitMap {
	return &CommitMap{m: linkedhashmap.New()}
}

// Set records old -> new. new may be the all-zeros oid for a pruned
// commit.
func (cm *CommitMap) Set(old, new string) {
	cm.m.Put(old, new)
}

// Lookup returns the new oid for old, if known.
func (cm *CommitMap) Lookup(old string) (string, bool) {
	v, ok := cm.m.Get(old)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// LookupPrefix resolves a short (abbreviated) hex prefix against every
// known old oid, for the message transformer's short-hash remap. It
// returns ok=false on no match or on ambiguity (matching git's own
// refusal to guess among colliding abbreviations).
func (cm *CommitMap) LookupPrefix(prefix string) (newOID string, ok bool) {
	found := ""
	count := 0
	it := cm.m.Iterator()
	for it.Next() {
		old := it.Key().(string)
		if len(old) >= len(prefix) && old[:len(prefix)] == prefix {
			found = it.Value().(string)
			count++
			if count > 1 {
				return "", false
			}
		}
	}
	if count != 1 {
		return "", false
	}
	return found, true
}

// Each iterates old->new pairs in insertion order.
func (cm *CommitMap) Each(fn func(old, new string)) {
	it := cm.m.Iterator()
	for it.Next() {
		fn(it.Key().(string), it.Value().(string))
	}
}

// WriteTo serializes the commit map in the `<old-oid> <new-oid>` line
// format documented in section 6.
func (cm *CommitMap) WriteTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var werr error
	cm.Each(func(old, new string) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(bw, "%s %s\n", old, new)
	})
	if werr != nil {
		return werr
	}
	return bw.Flush()
}

// LoadCommitMap reads a previous run's commit-map file back in as the
// seed table for the round-trip short-hash remap property (section 8,
// scenario 6).
func LoadCommitMap(path string) (*CommitMap, error) {
	f, err := os.Open(strengthen.ExpandPath(path))
	if err != nil {
		return nil, NewConfigError("load commit map %s: %v", path, err)
	}
	defer f.Close()
	return LoadCommitMapFrom(f)
}

func LoadCommitMapFrom(r io.Reader) (*CommitMap, error) {
	cm := NewCommitMap()
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		var old, new string
		if _, err := fmt.Sscanf(line, "%s %s", &old, &new); err != nil {
			return nil, NewConfigError("commit map line %d: %v", lineno, err)
		}
		cm.Set(old, new)
	}
	if err := scanner.Err(); err != nil {
		return nil, NewConfigError("read commit map: %v", err)
	}
	return cm, nil
}

// AliasMap is the mark->mark union-find table used to resolve parent
// references through chains of pruned commits (9. Alias chains for
// pruning). Union-find with path compression closes transitively: if
// A->B and B->C, a later lookup of A returns C directly.
type AliasMap struct {
	parent map[int64]int64
}

func NewAliasMap() *AliasMap {
	return &AliasMap{parent: map[int64]int64{}}
}

// Alias records that mark now resolves to target (target is usually the
// effective first-parent mark of a pruned commit).
func (am *AliasMap) Alias(mark, target int64) {
	am.parent[mark] = target
}

// Resolve follows the alias chain from mark to its root, compressing the
// path as it goes. A mark with no entry resolves to itself.
func (am *AliasMap) Resolve(mark int64) int64 {
	seen := map[int64]bool{mark: true}
	cur := mark
	for {
		next, ok := am.parent[cur]
		if !ok {
			break
		}
		if seen[next] {
			// Cycle guard (9.): break rather than loop forever; this
			// should not occur for a well-formed fast-export stream.
			break
		}
		seen[next] = true
		cur = next
	}
	if cur != mark {
		am.parent[mark] = cur // path compression
	}
	return cur
}

// ZeroOID is the all-zeros oid used for pruned commits in commit-map and
// for deleted references.
const ZeroOID = git.GIT_SHA1_ZERO_HEX
