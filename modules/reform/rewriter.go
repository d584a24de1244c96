package reform

// CommitRewriter ties the path/blob/message/identity transformers and the
// alias map together into the single per-commit decision described in 4.7:
// rewrite file changes and identities, resolve parents through any chain
// of pruned ancestors, then decide whether the result itself should be
// pruned.
type CommitRewriter struct {
	rules   *RuleSet
	blobs   *BlobTransformer
	message *MessageTransformer
	ident   *IdentityTransformer
	aliases *AliasMap

	// refTip tracks, per ref, the mark of the last commit actually kept on
	// that ref. It is the alias target for a pruned commit left with no
	// resolved parent; a parentless commit on a ref with no entry here
	// is never pruned.
	refTip map[string]int64
}

func NewCommitRewriter(rs *RuleSet, blobs *BlobTransformer, msg *MessageTransformer, ident *IdentityTransformer, aliases *AliasMap) *CommitRewriter {
	return &CommitRewriter{
		rules:   rs,
		blobs:   blobs,
		message: msg,
		ident:   ident,
		aliases: aliases,
		refTip:  map[string]int64{},
	}
}

// RewriteResult is what Rewrite returns for one input commit.
type RewriteResult struct {
	Commit *Commit // nil when Pruned
	Pruned bool

	// OrigRef is the commit's branch ref before branch-rename was
	// applied, so the caller can feed the rename into the ref-map.
	OrigRef string

	// AliasTarget is the mark this commit's mark now resolves to, valid
	// only when Pruned: the orchestrator emits a fast-import `alias`
	// directive so any stream-internal reference by the original mark
	// still resolves (9. Alias chains for pruning).
	AliasTarget int64
}

// Rewrite applies the branch rename, path filter/rename, blob-drop-to-
// delete conversion, identity rewrite, message rewrite, parent alias
// resolution, and the empty-commit / degenerate-merge prune decision, in
// that order (4.7). A non-nil error (a path violating the compat policy
// when the policy is error) aborts the run.
func (cr *CommitRewriter) Rewrite(c *Commit) (RewriteResult, error) {
	origRef := c.Ref
	c.Ref = renameBranchRef(c.Ref, cr.rules.BranchRenames)
	changes, err := cr.rewriteFileChanges(c.FileChanges)
	if err != nil {
		return RewriteResult{}, err
	}
	c.FileChanges = changes

	if c.Author != nil {
		cr.ident.TransformAuthor(c.Author)
	}
	if c.Committer != nil {
		cr.ident.TransformCommitter(c.Committer)
	}
	c.Message = cr.message.Transform(c.Message)

	wasMerge := len(c.Parents) > 1
	resolvedParents, resolvedOIDs := cr.resolveParents(c)

	prune := cr.shouldPrune(c, wasMerge, resolvedParents)
	if prune {
		target := int64(0)
		if len(resolvedParents) > 0 {
			target = resolvedParents[0]
		} else if tip, ok := cr.refTip[c.Ref]; ok {
			target = tip
		}
		cr.aliases.Alias(c.Mark, target)
		return RewriteResult{Pruned: true, OrigRef: origRef, AliasTarget: target}, nil
	}

	c.Parents = resolvedParents
	c.ParentOIDs = resolvedOIDs
	cr.refTip[c.Ref] = c.Mark
	return RewriteResult{Commit: c, OrigRef: origRef}, nil
}

// rewriteFileChanges applies the path matcher's include/rename decision to
// every filechange, converts `M` references to dropped blobs into `D`, and
// deduplicates by final path keeping the last write (4.2, 4.7).
func (cr *CommitRewriter) rewriteFileChanges(in []FileChange) ([]FileChange, error) {
	out := make([]FileChange, 0, len(in))
	lastIndexForPath := map[string]int{}

	appendChange := func(fc FileChange, key string) {
		if idx, ok := lastIndexForPath[key]; ok {
			out[idx] = fc
			return
		}
		lastIndexForPath[key] = len(out)
		out = append(out, fc)
	}

	for _, fc := range in {
		switch fc.Op {
		case OpDeleteAll:
			out = append(out, fc)
			lastIndexForPath = map[string]int{}
			continue
		case OpCopy, OpRename:
			srcOK := cr.rules.Paths.Matches(fc.Src)
			dstOK := cr.rules.Paths.Matches(fc.Dst)
			if !srcOK && !dstOK {
				continue
			}
			newSrc, err := cr.rules.Paths.ApplyRename([]byte(fc.Src))
			if err != nil {
				return nil, err
			}
			if newSrc == nil {
				continue
			}
			newDst, err := cr.rules.Paths.ApplyRename([]byte(fc.Dst))
			if err != nil {
				return nil, err
			}
			if newDst == nil {
				continue
			}
			fc.Src, fc.Dst = string(newSrc), string(newDst)
			appendChange(fc, fc.Dst)
			continue
		}

		if !cr.rules.Paths.Matches(fc.Path) {
			continue
		}
		newPath, err := cr.rules.Paths.ApplyRename([]byte(fc.Path))
		if err != nil {
			return nil, err
		}
		if newPath == nil {
			continue
		}
		fc.Path = string(newPath)

		if fc.Op == OpModify && fc.Mark != 0 && cr.blobs.IsDropped(fc.Mark) {
			fc.Op = OpDelete
			fc.Mark = 0
			fc.Mode = ""
		}
		appendChange(fc, fc.Path)
	}
	return out, nil
}

// resolveParents follows each parent mark through the alias map, dropping
// duplicate resolutions (a merge collapsing onto its own first parent
// after pruning) so the degenerate-merge check downstream sees the true
// parent count.
func (cr *CommitRewriter) resolveParents(c *Commit) ([]int64, []string) {
	var marks []int64
	var oids []string
	seen := map[int64]bool{}
	for i, m := range c.Parents {
		oid := ""
		if len(c.ParentOIDs) > i {
			oid = c.ParentOIDs[i]
		}
		if m == 0 {
			// Literal-oid parent: pass through untouched, never aliased.
			marks = append(marks, 0)
			oids = append(oids, oid)
			continue
		}
		resolved := cr.aliases.Resolve(m)
		if resolved == 0 && oid == "" {
			// Resolved to the synthetic root alias (no surviving commit
			// on this branch at all); drop the parent edge entirely.
			continue
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		marks = append(marks, resolved)
		oids = append(oids, "")
	}
	return marks, oids
}

// shouldPrune implements the empty-commit and degenerate-merge policy
// (4.7): PruneAlways always drops an empty result, PruneNever never does,
// PruneAuto drops it unless the commit was already empty before any
// filtering (a deliberate empty commit the author made on purpose).
func (cr *CommitRewriter) shouldPrune(c *Commit, wasMerge bool, parents []int64) bool {
	// A commit with no surviving parent and no kept predecessor on its
	// ref has nothing to alias onto: pruning it would serialize an
	// `alias ... to :0` directive, which fast-import rejects. Such a
	// commit is kept regardless of policy.
	if len(parents) == 0 {
		if _, ok := cr.refTip[c.Ref]; !ok {
			return false
		}
	}
	if wasMerge {
		if cr.rules.NoFF {
			return false
		}
		if len(parents) > 1 {
			// Still a real merge after alias resolution; merges are
			// never pruned for emptiness alone.
			return false
		}
		return cr.isDegenerateMerge(c) && cr.policyWantsPrune(cr.rules.MergePrune, c)
	}
	if len(c.FileChanges) != 0 {
		return false
	}
	return cr.policyWantsPrune(cr.rules.CommitPrune, c)
}

func (cr *CommitRewriter) policyWantsPrune(policy PrunePolicy, c *Commit) bool {
	switch policy {
	case PruneAlways:
		return true
	case PruneNever:
		return false
	default: // PruneAuto
		return !c.originallyEmpty
	}
}

// isDegenerateMerge reports whether a merge carries no file changes of its
// own. shouldPrune calls it only after alias resolution has left the merge
// with at most one parent, so a true result means it conveys no
// information beyond that parent.
func (cr *CommitRewriter) isDegenerateMerge(c *Commit) bool {
	return len(c.FileChanges) == 0
}
