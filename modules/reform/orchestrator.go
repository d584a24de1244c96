package reform

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/antgroup/gitreform/modules/command"
	"github.com/antgroup/gitreform/modules/env"
	"github.com/antgroup/gitreform/modules/git"
	"github.com/antgroup/gitreform/modules/strengthen"
	"github.com/antgroup/gitreform/modules/trace"
)

// minGitVersion is the oldest git whose fast-export understands every
// flag the pipeline passes (--mark-tags and --reencode landed in 2.24).
var minGitVersion = git.NewVersion(2, 24, 0)

// PipelineResult is everything the finalizer needs once both children have
// exited successfully: the mark->original-oid table for every commit seen
// (kept or pruned), the ref renames observed during the run, and the path
// to the marks-export file fast-import wrote (empty in dry-run mode).
type PipelineResult struct {
	CommitOriginalOID map[int64]string
	// CommitMarkOrder holds commit marks in stream order, so commit-map
	// output reproduces the order commits were discovered.
	CommitMarkOrder []int64
	// PrunedMarks records commit marks that were aliased away instead of
	// emitted. fast-import still reports them in the marks file (an alias
	// resolves to its target's oid), so the finalizer needs this set to
	// map pruned commits to the zero oid in commit-map.
	PrunedMarks   map[int64]bool
	RefRenames    []RefRename
	MarksFile     string
	BytesFiltered int64
}

// Orchestrator drives the pipeline described in 4.9: it owns the
// transformation engine (blob/message/identity transformers, the commit
// rewriter, the tag/ref reconciler and the shared alias/commit maps) and,
// in Run, the two child processes either side of it. Process itself is
// pure stream-in/stream-out and takes no child processes, so it is
// exercised directly in tests without spawning git.
type Orchestrator struct {
	cfg *Config

	blobs    *BlobTransformer
	message  *MessageTransformer
	identity *IdentityTransformer
	rewriter *CommitRewriter
	tagref   *TagRefReconciler
	aliases  *AliasMap

	log trace.Debuger
}

// NewOrchestrator builds the transformation engine from cfg.Rules. It is
// the core's entry point per section 1: a resolved *Config, never a
// config file path.
func NewOrchestrator(cfg *Config) (*Orchestrator, error) {
	if cfg == nil || cfg.Rules == nil {
		return nil, NewConfigError("orchestrator: nil config or rule set")
	}

	aliases := NewAliasMap()

	blobs, err := NewBlobTransformer(cfg.Rules)
	if err != nil {
		return nil, err
	}

	commitMap := NewCommitMap()
	if cfg.CommitMapSeed != nil {
		commitMap, err = LoadCommitMapFrom(cfg.CommitMapSeed)
		if err != nil {
			return nil, err
		}
	}

	message, err := NewMessageTransformer(cfg.Rules, commitMap)
	if err != nil {
		return nil, err
	}
	identity := NewIdentityTransformer(cfg.Rules)
	rewriter := NewCommitRewriter(cfg.Rules, blobs, message, identity, aliases)
	tagref := NewTagRefReconciler(cfg.Rules, aliases)

	return &Orchestrator{
		cfg:      cfg,
		blobs:    blobs,
		message:  message,
		identity: identity,
		rewriter: rewriter,
		tagref:   tagref,
		aliases:  aliases,
		log:      trace.NewDebuger(cfg.Verbose),
	}, nil
}

// Process pumps one fast-export stream (r) through the transformation
// engine and writes the rewritten fast-import stream to w, in the exact
// order records arrive (5.: marks are strictly monotonically increasing
// and this order is preserved). It returns once the stream's `done`
// record has been flushed, or on the first parser/transform/write error.
func (o *Orchestrator) Process(r io.Reader, w io.Writer) (*PipelineResult, error) {
	parser := NewParser(r)
	ser := NewSerializer(w)
	result := &PipelineResult{
		CommitOriginalOID: map[int64]string{},
		PrunedMarks:       map[int64]bool{},
	}

	finish := func() (*PipelineResult, error) {
		if err := ser.Flush(); err != nil {
			return nil, NewChildProcessError("fast-import", err)
		}
		result.RefRenames = o.tagref.RefRenames()
		return result, nil
	}

	for {
		rec, err := parser.Next()
		if err != nil {
			if err == io.EOF {
				return finish()
			}
			return nil, err
		}
		switch v := rec.(type) {
		case *PassThrough:
			if err := ser.WritePassThrough(v.Line); err != nil {
				return nil, NewChildProcessError("fast-import", err)
			}
		case *Blob:
			payload, keep := o.blobs.Transform(v)
			if !keep {
				o.log.DbgPrint("drop blob :%d (size/strip rule)", v.Mark)
				continue
			}
			if err := ser.WriteBlob(v.Mark, payload); err != nil {
				return nil, NewChildProcessError("fast-import", err)
			}
		case *Commit:
			result.CommitOriginalOID[v.Mark] = v.OriginalOID
			result.CommitMarkOrder = append(result.CommitMarkOrder, v.Mark)
			rr, err := o.rewriter.Rewrite(v)
			if err != nil {
				return nil, err
			}
			if len(rr.OrigRef) != 0 {
				o.tagref.RecordBranchRename(rr.OrigRef, v.Ref)
			}
			if rr.Pruned {
				result.PrunedMarks[v.Mark] = true
				o.log.DbgPrint("prune commit :%d -> :%d", v.Mark, rr.AliasTarget)
				if err := ser.WriteAlias(v.Mark, rr.AliasTarget); err != nil {
					return nil, NewChildProcessError("fast-import", err)
				}
				continue
			}
			if err := ser.WriteCommit(rr.Commit, formatParentRefs(rr.Commit)); err != nil {
				return nil, NewChildProcessError("fast-import", err)
			}
		case *Tag:
			v.Message = o.message.Transform(v.Message)
			o.identity.TransformTagger(v.Tagger)
			o.tagref.BufferTag(v)
		case *Reset:
			rewritten, ok := o.tagref.HandleReset(v)
			if !ok {
				continue
			}
			from := formatMarkOrOID(rewritten.FromMark, rewritten.FromOID)
			if err := ser.WriteReset(rewritten.Ref, from, rewritten.HasFrom); err != nil {
				return nil, NewChildProcessError("fast-import", err)
			}
		case *Done:
			tags, resets := o.tagref.Flush()
			for _, t := range tags {
				from := formatMarkOrOID(t.FromMark, t.FromOID)
				if err := ser.WriteTag(t, from); err != nil {
					return nil, NewChildProcessError("fast-import", err)
				}
			}
			for _, rst := range resets {
				from := formatMarkOrOID(rst.FromMark, rst.FromOID)
				if err := ser.WriteReset(rst.Ref, from, rst.HasFrom); err != nil {
					return nil, NewChildProcessError("fast-import", err)
				}
			}
			if err := ser.WriteDone(); err != nil {
				return nil, NewChildProcessError("fast-import", err)
			}
			return finish()
		}
	}
}

func formatMarkOrOID(mark int64, oid string) string {
	if mark != 0 {
		return fmt.Sprintf(":%d", mark)
	}
	return oid
}

func formatParentRefs(c *Commit) []string {
	out := make([]string, 0, len(c.Parents))
	for i, m := range c.Parents {
		if m != 0 {
			out = append(out, fmt.Sprintf(":%d", m))
			continue
		}
		if i < len(c.ParentOIDs) && len(c.ParentOIDs[i]) != 0 {
			out = append(out, c.ParentOIDs[i])
		}
	}
	return out
}

// byteCountSink discards bytes while counting them, standing in for the
// fast-import child in --dry-run mode (4.9, SPEC_FULL 4.).
type byteCountSink struct{ n int64 }

func (s *byteCountSink) Write(p []byte) (int, error) {
	s.n += int64(len(p))
	return len(p), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// ResolveDebugDir resolves the run-scoped artifact directory,
// <gitdir>/filter-repo/, creating it if needed (section 6).
func ResolveDebugDir(ctx context.Context, repoPath string) (string, error) {
	gitDir := git.RevParseRepoPath(ctx, repoPath)
	dir := filepath.Join(gitDir, "filter-repo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", NewConfigError("create debug dir %s: %v", dir, err)
	}
	return dir, nil
}

// childEnviron builds the sanitized environment fast-export/fast-import
// run under: UTF-8 locale pinned regardless of the caller's own locale,
// matching section 6's external-interface contract.
func childEnviron() []string {
	e := env.SanitizerEnv()
	return append(e, "LC_ALL=C.UTF-8", "LANG=C.UTF-8")
}

// Run spawns `git fast-export` and `git fast-import` (or, in dry-run
// mode, a byte-count sink in place of fast-import) as described in 4.9,
// pumps the stream through Process, and mirrors the filtered stream (and,
// in verbose mode, the original stream) to the debug directory. On any
// error it aborts both children without committing any persistent state
// (5.: Cancellation).
func (o *Orchestrator) Run(ctx context.Context) (*PipelineResult, error) {
	if !git.IsGitVersionAtLeast(minGitVersion) {
		return nil, NewSanityError("git %s or newer is required", minGitVersion.String())
	}
	if len(o.cfg.DebugDir) == 0 && !o.cfg.DryRun {
		dir, err := ResolveDebugDir(ctx, o.cfg.RepoPath)
		if err != nil {
			return nil, err
		}
		o.cfg.DebugDir = dir
	}
	environ := childEnviron()
	tk := trace.NewTracker(o.cfg.Verbose)

	exportArgs := []string{
		"-c", "core.quotepath=false",
		"fast-export",
		"--all",
		"--show-original-ids",
		"--signed-tags=strip",
		"--tag-of-filtered-object=rewrite",
		"--fake-missing-tagger",
		"--reference-excluded-parents",
		"--use-done-feature",
		"--mark-tags",
		"--reencode=yes",
	}
	exportStderr := command.NewStderr()
	exportCmd := command.NewFromOptions(ctx, &command.RunOpts{
		RepoPath: o.cfg.RepoPath,
		Environ:  environ,
		Stderr:   exportStderr,
	}, "git", exportArgs...)
	exportOut, err := exportCmd.StdoutPipe()
	if err != nil {
		return nil, NewChildProcessError("fast-export", err)
	}
	if err := exportCmd.Start(); err != nil {
		return nil, NewChildProcessError("fast-export", err)
	}

	var marksPath string
	var importCmd *command.Command
	var importStderr *command.LimitStderr
	var importIn io.WriteCloser
	sink := &byteCountSink{}

	if o.cfg.DryRun {
		importIn = nopWriteCloser{sink}
	} else {
		marksPath = filepath.Join(o.cfg.DebugDir, "target-marks")
		importArgs := []string{
			"-c", "core.ignorecase=false",
			"fast-import",
			"--force",
			"--export-marks=" + marksPath,
		}
		importStderr = command.NewStderr()
		importCmd = command.NewFromOptions(ctx, &command.RunOpts{
			RepoPath: o.cfg.RepoPath,
			Environ:  environ,
			Stderr:   importStderr,
		}, "git", importArgs...)
		if importIn, err = importCmd.StdinPipe(); err != nil {
			_ = exportCmd.Exit()
			return nil, NewChildProcessError("fast-import", err)
		}
		if err := importCmd.Start(); err != nil {
			_ = exportCmd.Exit()
			return nil, NewChildProcessError("fast-import", err)
		}
	}

	abort := func() {
		_ = importIn.Close()
		_ = exportCmd.Exit()
		if importCmd != nil {
			_ = importCmd.Exit()
		}
	}

	writers := []io.Writer{importIn, sink}
	var filteredMirror, originalMirror *os.File
	if len(o.cfg.DebugDir) != 0 {
		if filteredMirror, err = os.Create(filepath.Join(o.cfg.DebugDir, "fast-export.filtered")); err == nil {
			writers = append(writers, filteredMirror)
			defer filteredMirror.Close()
		}
		if o.cfg.Verbose {
			if originalMirror, err = os.Create(filepath.Join(o.cfg.DebugDir, "fast-export.original")); err != nil {
				originalMirror = nil
			} else {
				defer originalMirror.Close()
			}
		}
	}

	var source io.Reader = exportOut
	if originalMirror != nil {
		source = io.TeeReader(exportOut, originalMirror)
	}

	tk.StepNext("spawn children")

	result, procErr := o.Process(source, io.MultiWriter(writers...))
	if procErr != nil {
		abort()
		return nil, procErr
	}
	tk.StepNext("filter stream")

	if err := importIn.Close(); err != nil {
		abort()
		return nil, wrapChildError("fast-import", err, importStderr)
	}

	if err := exportCmd.Wait(); err != nil {
		if importCmd != nil {
			_ = importCmd.Exit()
		}
		return nil, wrapChildError("fast-export", err, exportStderr)
	}

	if importCmd != nil {
		if err := importCmd.Wait(); err != nil {
			return nil, wrapChildError("fast-import", err, importStderr)
		}
		result.MarksFile = marksPath
	}
	tk.StepNext("wait children")
	result.BytesFiltered = sink.n
	o.log.DbgPrint("filtered stream: %s", strengthen.FormatSize(result.BytesFiltered))
	return result, nil
}

func wrapChildError(name string, err error, stderr *command.LimitStderr) error {
	if stderr != nil && stderr.String() != "" {
		return NewChildProcessError(name, fmt.Errorf("%w: %s", err, stderr.String()))
	}
	return NewChildProcessError(name, err)
}
