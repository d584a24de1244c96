package reform

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antgroup/gitreform/modules/command"
	"github.com/antgroup/gitreform/modules/git"
)

// FinalizeResult is what Finalize returns on success.
type FinalizeResult struct {
	CommitMap    *CommitMap
	RefsDeleted  int
	HEADRetarget string // non-empty if HEAD was retargeted
}

// Finalizer implements 4.10: after both pipeline children exit
// successfully, it joins the marks-export file against the mark->
// original-oid table to build the commit map, writes commit-map and
// ref-map, and atomically deletes renamed-away refs once their
// successors exist. New refs under their renamed names already exist by
// this point, since fast-import wrote them directly while consuming the
// stream; the finalizer's job is cleanup and HEAD repair, not creation.
type Finalizer struct {
	cfg *Config
}

func NewFinalizer(cfg *Config) *Finalizer {
	return &Finalizer{cfg: cfg}
}

// Finalize performs the work described above. It must only be called
// after a successful (non-dry-run) Orchestrator.Run.
func (f *Finalizer) Finalize(ctx context.Context, pr *PipelineResult) (*FinalizeResult, error) {
	if len(pr.MarksFile) == 0 {
		return nil, NewFinalizeError(nil, "finalize: pipeline result has no marks file (dry run?)")
	}

	marks, err := parseMarksFile(pr.MarksFile)
	if err != nil {
		return nil, NewFinalizeError(err, "read marks file %s", pr.MarksFile)
	}

	cm := NewCommitMap()
	for _, mark := range pr.CommitMarkOrder {
		origOID := pr.CommitOriginalOID[mark]
		if len(origOID) == 0 {
			continue
		}
		newOID, ok := marks[mark]
		// A pruned mark still appears in the marks file (its alias resolves
		// to the target commit's oid); commit-map must show it as pruned.
		if !ok || pr.PrunedMarks[mark] {
			newOID = ZeroOID
		}
		cm.Set(origOID, newOID)
	}

	if err := f.writeCommitMap(cm); err != nil {
		return nil, err
	}
	if err := f.writeRefMap(pr.RefRenames); err != nil {
		return nil, err
	}

	deleted, err := f.applyRefUpdates(ctx, pr.RefRenames)
	if err != nil {
		return nil, err
	}

	retarget, err := f.updateHEAD(ctx, pr.RefRenames)
	if err != nil {
		return nil, err
	}

	return &FinalizeResult{CommitMap: cm, RefsDeleted: deleted, HEADRetarget: retarget}, nil
}

// parseMarksFile reads the `:<mark> <oid>` line format fast-import wrote
// via --export-marks (section 6).
func parseMarksFile(path string) (map[int64]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	out := map[int64]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		var mark int64
		var oid string
		if _, err := fmt.Sscanf(line, ":%d %s", &mark, &oid); err != nil {
			return nil, fmt.Errorf("marks line %q: %w", line, err)
		}
		out[mark] = oid
	}
	return out, scanner.Err()
}

func (f *Finalizer) writeCommitMap(cm *CommitMap) error {
	path := filepath.Join(f.cfg.DebugDir, "commit-map")
	file, err := os.Create(path)
	if err != nil {
		return NewFinalizeError(err, "create commit-map")
	}
	defer file.Close()
	if err := cm.WriteTo(file); err != nil {
		return NewFinalizeError(err, "write commit-map")
	}
	return nil
}

func (f *Finalizer) writeRefMap(renames []RefRename) error {
	path := filepath.Join(f.cfg.DebugDir, "ref-map")
	file, err := os.Create(path)
	if err != nil {
		return NewFinalizeError(err, "create ref-map")
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	for _, rn := range renames {
		if _, err := fmt.Fprintf(w, "%s %s\n", rn.Old, rn.New); err != nil {
			return NewFinalizeError(err, "write ref-map")
		}
	}
	return w.Flush()
}

// applyRefUpdates deletes every renamed-away ref in a single atomic
// transaction, skipping case-only renames (9.) and any rename whose
// successor does not yet exist (ref safety, section 8).
func (f *Finalizer) applyRefUpdates(ctx context.Context, renames []RefRename) (int, error) {
	var toDelete []RefRename
	for _, rn := range renames {
		if rn.Old == rn.New || strings.EqualFold(rn.Old, rn.New) {
			continue
		}
		if _, err := git.ReferenceTarget(ctx, f.cfg.RepoPath, rn.New); err != nil {
			continue
		}
		toDelete = append(toDelete, rn)
	}
	if len(toDelete) == 0 {
		return 0, nil
	}

	u, err := git.NewRefUpdater(ctx, f.cfg.RepoPath, childEnviron(), f.cfg.RefUpdateNoDeref)
	if err != nil {
		return 0, NewFinalizeError(err, "open ref updater")
	}
	defer u.Close()

	if err := u.Start(); err != nil {
		return 0, NewFinalizeError(err, "start ref transaction")
	}
	for _, rn := range toDelete {
		if err := u.Delete(git.ReferenceName(rn.Old)); err != nil {
			return 0, NewFinalizeError(err, "delete old ref %s", rn.Old)
		}
	}
	if err := u.Commit(); err != nil {
		return 0, NewFinalizeError(err, "commit ref transaction")
	}
	return len(toDelete), nil
}

// updateHEAD retargets a symbolic HEAD that pointed at a renamed branch to
// that branch's new name, or, if HEAD's branch was not renamed and no
// longer exists, to the first renamed-to refs/heads/ branch (4.10, 9.).
// It is a no-op for a detached HEAD, for one that still resolves cleanly,
// and when no branch was renamed.
func (f *Finalizer) updateHEAD(ctx context.Context, renames []RefRename) (string, error) {
	environ := childEnviron()
	cur, err := git.RevParseCurrentName(ctx, environ, f.cfg.RepoPath)
	if err != nil {
		return "", nil // detached HEAD: nothing to retarget
	}

	newTarget := cur
	for _, rn := range renames {
		if rn.Old == cur {
			newTarget = rn.New
			break
		}
	}
	if newTarget == cur {
		if _, err := git.ReferenceTarget(ctx, f.cfg.RepoPath, cur); err == nil {
			return "", nil // HEAD's target still resolves; nothing to do
		}
		newTarget = ""
		for _, rn := range renames {
			if strings.HasPrefix(rn.New, "refs/heads/") {
				newTarget = rn.New
				break
			}
		}
		if len(newTarget) == 0 {
			return "", nil
		}
	}

	u, err := git.NewRefUpdater(ctx, f.cfg.RepoPath, environ, f.cfg.RefUpdateNoDeref)
	if err != nil {
		return "", NewFinalizeError(err, "open ref updater for HEAD retarget")
	}
	defer u.Close()
	if err := u.Start(); err != nil {
		return "", NewFinalizeError(err, "start HEAD transaction")
	}
	if err := u.UpdateSymbolicReference(git.HEAD, git.ReferenceName(newTarget)); err != nil {
		return "", NewFinalizeError(err, "retarget HEAD to %s", newTarget)
	}
	if err := u.Commit(); err != nil {
		return "", NewFinalizeError(err, "commit HEAD retarget")
	}
	return newTarget, nil
}

// Repack is the optional post-rewrite maintenance step (4.10): with the
// new history written and refs finalized, the old objects are only
// unreachable garbage, and a full repack reclaims their space.
func (f *Finalizer) Repack(ctx context.Context) error {
	stderr := command.NewStderr()
	cmd := command.NewFromOptions(ctx, &command.RunOpts{
		RepoPath: f.cfg.RepoPath,
		Environ:  childEnviron(),
		Stderr:   stderr,
	}, "git", "repack", "-Ad")
	if err := cmd.Run(); err != nil {
		return wrapChildError("git repack", err, stderr)
	}
	return nil
}
