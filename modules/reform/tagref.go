package reform

import "strings"

// TagRefReconciler buffers annotated tags and lightweight resets so that
// renames which collide on their final ref name resolve last-wins, and
// flushes everything at `done` (4.8). Branch resets are never buffered:
// they are rewritten and re-emitted inline as they are seen, since a
// branch's history is itself the ordering authority fast-import needs.
type TagRefReconciler struct {
	rules   *RuleSet
	aliases *AliasMap

	// annotatedTags is keyed by final bare tag name; last write wins.
	annotatedTags map[string]*Tag
	tagOrder      []string

	// lightweightResets is keyed by final ref name; dropped if an
	// annotated tag exists for the same name at flush time.
	lightweightResets map[string]*Reset
	resetOrder        []string

	// refRenames records every old-ref -> new-ref pair produced by a
	// branch or tag rename, in first-seen order, for the finalizer's
	// ref-map output (section 6).
	refRenames     map[string]string
	refRenameOrder []string
}

func NewTagRefReconciler(rs *RuleSet, aliases *AliasMap) *TagRefReconciler {
	return &TagRefReconciler{
		rules:             rs,
		aliases:           aliases,
		annotatedTags:     map[string]*Tag{},
		lightweightResets: map[string]*Reset{},
		refRenames:        map[string]string{},
	}
}

const (
	headsPrefix = "refs/heads/"
	tagsPrefix  = "refs/tags/"
)

// applyPrefixRename scans renames in declaration order and applies the
// first whose old-prefix is a byte-prefix of name (4.2's rename
// semantics, reused here for branch/tag short names).
func applyPrefixRename(name string, renames []pathRenameRule) string {
	for _, r := range renames {
		if strings.HasPrefix(name, r.OldPrefix) {
			return r.NewPrefix + name[len(r.OldPrefix):]
		}
	}
	return name
}

// renameBranchRef applies BranchRenames to a full ref, stripping and
// restoring the refs/heads/ prefix so rename prefixes are declared
// against the short branch name (e.g. "release-" -> "rel-"), matching
// git-filter-repo's --branch-rename semantics. Refs outside refs/heads/
// (rare, but legal in the grammar) are renamed as full paths.
func renameBranchRef(ref string, renames []pathRenameRule) string {
	if short, ok := strings.CutPrefix(ref, headsPrefix); ok {
		return headsPrefix + applyPrefixRename(short, renames)
	}
	return applyPrefixRename(ref, renames)
}

// renameTagRef is renameBranchRef's counterpart for refs/tags/.
func renameTagRef(ref string, renames []pathRenameRule) string {
	if short, ok := strings.CutPrefix(ref, tagsPrefix); ok {
		return tagsPrefix + applyPrefixRename(short, renames)
	}
	return applyPrefixRename(ref, renames)
}

func (tr *TagRefReconciler) recordRename(old, new string) {
	if old == new {
		return
	}
	if _, exists := tr.refRenames[old]; !exists {
		tr.refRenameOrder = append(tr.refRenameOrder, old)
	}
	tr.refRenames[old] = new
}

// RecordBranchRename lets the commit rewriter (which owns the `commit
// <ref>` branch name, not a Reset or Tag) feed its own rename decisions
// into the same ref-map ledger.
func (tr *TagRefReconciler) RecordBranchRename(oldRef, newRef string) {
	tr.recordRename(oldRef, newRef)
}

// BufferTag renames and records an annotated tag, keyed by its final bare
// name. If another tag was already buffered under the same final name,
// it is replaced (last wins, 4.8 / spec scenario 4).
func (tr *TagRefReconciler) BufferTag(t *Tag) {
	orig := t.Name
	final := applyPrefixRename(orig, tr.rules.TagRenames)
	t.Name = final
	tr.recordRename(tagsPrefix+orig, tagsPrefix+final)
	if t.FromMark != 0 {
		t.FromMark = tr.aliases.Resolve(t.FromMark)
	}
	if _, exists := tr.annotatedTags[final]; !exists {
		tr.tagOrder = append(tr.tagOrder, final)
	}
	tr.annotatedTags[final] = t
}

// HandleReset classifies a `reset` record: a branch reset is returned
// immediately for inline re-emission (ok=true); a refs/tags/* (lightweight
// tag) reset is buffered and ok=false is returned.
func (tr *TagRefReconciler) HandleReset(r *Reset) (rewritten *Reset, ok bool) {
	orig := r.Ref
	if isTagRef(orig) {
		final := renameTagRef(orig, tr.rules.TagRenames)
		r.Ref = final
		tr.recordRename(orig, final)
		if r.HasFrom && r.FromMark != 0 {
			r.FromMark = tr.aliases.Resolve(r.FromMark)
		}
		if _, exists := tr.lightweightResets[final]; !exists {
			tr.resetOrder = append(tr.resetOrder, final)
		}
		tr.lightweightResets[final] = r
		return nil, false
	}
	final := renameBranchRef(orig, tr.rules.BranchRenames)
	r.Ref = final
	tr.recordRename(orig, final)
	if r.HasFrom && r.FromMark != 0 {
		r.FromMark = tr.aliases.Resolve(r.FromMark)
	}
	return r, true
}

func isTagRef(ref string) bool {
	return strings.HasPrefix(ref, tagsPrefix)
}

// Flush returns the buffered annotated tags (in first-seen order by final
// name) followed by any lightweight reset whose name has no surviving
// annotated tag, as fast-import records ready for serialization. Both
// kinds carry alias-resolved `from` marks, since pruning decisions are
// only final once the whole commit stream has been seen.
func (tr *TagRefReconciler) Flush() (tags []*Tag, resets []*Reset) {
	for _, name := range tr.tagOrder {
		t := tr.annotatedTags[name]
		if t.FromMark != 0 {
			t.FromMark = tr.aliases.Resolve(t.FromMark)
		}
		tags = append(tags, t)
	}
	for _, name := range tr.resetOrder {
		// resetOrder holds full refs/tags/* names; annotatedTags is keyed
		// by bare tag name.
		if _, hasTag := tr.annotatedTags[strings.TrimPrefix(name, tagsPrefix)]; hasTag {
			continue
		}
		r := tr.lightweightResets[name]
		if r.HasFrom && r.FromMark != 0 {
			r.FromMark = tr.aliases.Resolve(r.FromMark)
		}
		resets = append(resets, r)
	}
	return tags, resets
}

// RefRenames returns every old-ref -> new-ref pair recorded during the
// run, in first-seen order, for the finalizer's ref-map file (section 6).
func (tr *TagRefReconciler) RefRenames() []RefRename {
	out := make([]RefRename, 0, len(tr.refRenameOrder))
	for _, old := range tr.refRenameOrder {
		out = append(out, RefRename{Old: old, New: tr.refRenames[old]})
	}
	return out
}

// RefRename is one old-ref -> new-ref pair for the ref-map file.
type RefRename struct {
	Old string
	New string
}
