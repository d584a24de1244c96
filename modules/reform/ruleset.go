package reform

import (
	"io"

	"github.com/antgroup/gitreform/modules/strengthen"
)

// PrunePolicy governs how empty commits and degenerate merges are pruned.
type PrunePolicy int

const (
	PruneAuto PrunePolicy = iota
	PruneAlways
	PruneNever
)

func ParsePrunePolicy(s string) (PrunePolicy, error) {
	switch s {
	case "", "auto":
		return PruneAuto, nil
	case "always":
		return PruneAlways, nil
	case "never":
		return PruneNever, nil
	}
	return PruneAuto, NewConfigError("unknown prune policy %q", s)
}

// RuleKind identifies how a replacement rule's pattern is interpreted.
type RuleKind int

const (
	RuleLiteral RuleKind = iota
	RuleRegex
	RuleGlob
)

// ReplaceRule is one `pattern==>replacement` line from a rule file.
type ReplaceRule struct {
	Kind        RuleKind
	Pattern     string
	Replacement string
}

// IdentityRewriteRule is one `old==>new` line from an explicit-mode
// identity rewrite file.
type IdentityRewriteRule struct {
	Old string
	New string
}

// MailmapEntry is one parsed entry from a standard git mailmap file:
// `Canonical Name <canonical@email> <old@email>` (name optional).
type MailmapEntry struct {
	CanonicalName  string
	CanonicalEmail string
	OldEmail       string
}

// RuleSet is the immutable, read-only-after-construction bundle of
// transformation rules for one run. It is built once at startup by the
// external config/CLI collaborator (out of scope per section 1) and
// handed to the orchestrator as a *reform.Config field.
type RuleSet struct {
	Paths *PathMatcher

	TagRenames    []pathRenameRule
	BranchRenames []pathRenameRule

	MessageRules  []ReplaceRule
	BlobTextRules []ReplaceRule

	// Identity rewriting: mailmap takes precedence over explicit mode
	// when both are configured.
	Mailmap            []MailmapEntry
	AuthorNameRules    []IdentityRewriteRule
	CommitterNameRules []IdentityRewriteRule
	EmailRules         []IdentityRewriteRule

	MaxBlobSize int64 // 0 means unlimited
	StripBlobs  map[string]bool

	CommitPrune PrunePolicy
	MergePrune  PrunePolicy
	NoFF        bool // force-keep all merges regardless of prune policy

	PathCompat CompatPolicy
}

type pathRenameRule struct {
	OldPrefix string
	NewPrefix string
}

// NewRuleSet returns an empty rule set equivalent to running with no
// filters configured — the identity transform used by the idempotence
// property in section 8.
func NewRuleSet() (*RuleSet, error) {
	pm, err := NewPathMatcher(nil, nil, nil, false, CompatSanitize)
	if err != nil {
		return nil, err
	}
	return &RuleSet{
		Paths:       pm,
		StripBlobs:  map[string]bool{},
		CommitPrune: PruneAuto,
		MergePrune:  PruneAuto,
		PathCompat:  CompatSanitize,
	}, nil
}

// SubdirectoryFilter configures the rule set as `--subdirectory-filter
// <dir>`: only paths under dir survive, and dir's prefix is stripped so
// files move to the top level.
func (rs *RuleSet) SubdirectoryFilter(dir string) error {
	pm, err := NewPathMatcher([]string{dir + "/"}, nil, nil, false, rs.PathCompat)
	if err != nil {
		return err
	}
	pm.AddRename(dir+"/", "")
	rs.Paths = pm
	return nil
}

// SetMaxBlobSize parses a human-readable size threshold ("10M", "512k",
// or plain bytes) into MaxBlobSize, matching the way size limits are
// given on the command line.
func (rs *RuleSet) SetMaxBlobSize(text string) error {
	n, err := strengthen.ParseSize(text)
	if err != nil {
		return NewConfigError("max blob size %q: %v", text, err)
	}
	rs.MaxBlobSize = n
	return nil
}

// ToSubdirectoryFilter configures the rule set as
// `--to-subdirectory-filter <dir>`: every surviving path is moved under
// dir (the inverse of SubdirectoryFilter).
func (rs *RuleSet) ToSubdirectoryFilter(dir string) {
	rs.Paths.AddRename("", dir+"/")
}

// Config is the resolved, validated value the core accepts as its entry
// point. It is never a config file path; producing it from TOML/CLI
// flags is an external collaborator's job (out of scope per section 1).
type Config struct {
	Rules *RuleSet

	// RepoPath is the git directory the export/import children run
	// against.
	RepoPath string

	// Debug/report knobs, mirrored from the teacher's verbose-mode
	// plumbing (modules/trace).
	Verbose bool

	// DryRun replaces the fast-import child with a byte-count sink so
	// the filtered stream can be inspected without mutating the
	// repository.
	DryRun bool

	// CommitMapSeed, if non-nil, is read once at startup to seed the
	// message transformer's short/long hash remap table from a
	// previous run's commit-map file (round-trip property, section 8).
	CommitMapSeed io.Reader

	// DebugDir is the run-scoped directory where marks/commit-map/
	// ref-map/debug mirror files are written. Left empty, Run resolves
	// it to <gitdir>/filter-repo/ unless DryRun is set.
	DebugDir string

	RefUpdateNoDeref bool
}
