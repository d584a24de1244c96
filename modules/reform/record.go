package reform

import "time"

// Identity is a parsed `<name> <email> <timestamp> <timezone>` header line.
type Identity struct {
	Name      string
	Email     string
	When      time.Time
	TZ        string
	RawOffset string
}

// Blob is a fast-export `blob` record.
type Blob struct {
	Mark        int64
	OriginalOID string
	Data        []byte
}

// FileChangeOp identifies the kind of filechange line.
type FileChangeOp int

const (
	OpModify FileChangeOp = iota
	OpDelete
	OpCopy
	OpRename
	OpDeleteAll
)

// FileChange is one filechange line within a commit.
type FileChange struct {
	Op   FileChangeOp
	Mode string
	// Mark is > 0 when the content reference is `:N`; OID is set when
	// the reference is a literal 40-hex oid (rare in fast-export output
	// but legal in the grammar).
	Mark int64
	OID  string
	Path string
	// Src/Dst are used by OpCopy/OpRename.
	Src string
	Dst string
}

// Commit is a fast-export `commit` record.
type Commit struct {
	Mark        int64
	Ref         string
	Author      *Identity
	Committer   *Identity
	OriginalOID string
	Message     []byte
	// Parents are marks referenced by `from`/`merge` lines. A 0 entry
	// means the parent was given as a literal oid rather than a mark;
	// ParentOIDs carries that oid at the same index (empty otherwise).
	Parents     []int64
	ParentOIDs  []string
	FileChanges []FileChange

	// originallyEmpty records whether the source commit (before any
	// filtering) had no filechanges, so `auto` pruning can tell a
	// deliberately empty commit from one emptied by filtering.
	originallyEmpty bool
}

// Tag is a fast-export annotated `tag` record.
type Tag struct {
	Mark        int64
	Name        string // bare tag name, e.g. v1.0 (no refs/tags/ prefix)
	FromMark    int64
	FromOID     string
	Tagger      *Identity
	OriginalOID string
	Message     []byte
}

// Reset is a fast-export `reset` record: a lightweight tag or branch tip.
type Reset struct {
	Ref      string
	FromMark int64
	FromOID  string
	HasFrom  bool
}
