package reform

import (
	"bufio"
	"fmt"
	"io"
)

// Serializer re-encodes records into the fast-import grammar (4.6, write
// side). It owns no transformation logic: callers hand it already-rewritten
// records and it is responsible only for wire framing (quoted paths,
// length-prefixed data blocks, alias directives).
type Serializer struct {
	w *bufio.Writer
}

func NewSerializer(w io.Writer) *Serializer {
	return &Serializer{w: bufio.NewWriterSize(w, 64*1024)}
}

func (s *Serializer) Flush() error {
	return s.w.Flush()
}

func (s *Serializer) writeData(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data %d\n", len(data)); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	_, err := s.w.Write([]byte{'\n'})
	return err
}

// WriteBlob emits a blob record. payload is the (possibly transformed)
// content; mark is the original mark, preserved so subsequent `M :mark`
// filechange lines keep resolving correctly.
func (s *Serializer) WriteBlob(mark int64, payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "blob\nmark :%d\n", mark); err != nil {
		return err
	}
	return s.writeData(payload)
}

// WriteCommit emits a commit record. parents are already-resolved oids or
// marks formatted by the caller (the rewriter decides alias resolution and
// whether to emit `from`/`merge` as `:mark` or a literal oid).
func (s *Serializer) WriteCommit(c *Commit, parentRefs []string) error {
	if _, err := fmt.Fprintf(s.w, "commit %s\n", c.Ref); err != nil {
		return err
	}
	if c.Mark != 0 {
		if _, err := fmt.Fprintf(s.w, "mark :%d\n", c.Mark); err != nil {
			return err
		}
	}
	if c.Author != nil {
		if err := s.writeIdentity("author", c.Author); err != nil {
			return err
		}
	}
	if c.Committer != nil {
		if err := s.writeIdentity("committer", c.Committer); err != nil {
			return err
		}
	}
	if err := s.writeData(c.Message); err != nil {
		return err
	}
	for i, p := range parentRefs {
		kw := "merge"
		if i == 0 {
			kw = "from"
		}
		if _, err := fmt.Fprintf(s.w, "%s %s\n", kw, p); err != nil {
			return err
		}
	}
	for _, fc := range c.FileChanges {
		if err := s.writeFileChange(fc); err != nil {
			return err
		}
	}
	_, err := s.w.Write([]byte{'\n'})
	return err
}

func (s *Serializer) writeIdentity(keyword string, id *Identity) error {
	offset := id.RawOffset
	if len(offset) == 0 {
		offset = "+0000"
	}
	_, err := fmt.Fprintf(s.w, "%s %s <%s> %d %s\n", keyword, id.Name, id.Email, id.When.Unix(), offset)
	return err
}

func (s *Serializer) writeFileChange(fc FileChange) error {
	switch fc.Op {
	case OpModify:
		ref := fc.OID
		if fc.Mark != 0 {
			ref = fmt.Sprintf(":%d", fc.Mark)
		}
		_, err := fmt.Fprintf(s.w, "M %s %s %s\n", fc.Mode, ref, EncodeQuotedPath([]byte(fc.Path)))
		return err
	case OpDelete:
		_, err := fmt.Fprintf(s.w, "D %s\n", EncodeQuotedPath([]byte(fc.Path)))
		return err
	case OpCopy:
		_, err := fmt.Fprintf(s.w, "C %s %s\n", EncodeQuotedPath([]byte(fc.Src)), EncodeQuotedPath([]byte(fc.Dst)))
		return err
	case OpRename:
		_, err := fmt.Fprintf(s.w, "R %s %s\n", EncodeQuotedPath([]byte(fc.Src)), EncodeQuotedPath([]byte(fc.Dst)))
		return err
	case OpDeleteAll:
		_, err := s.w.Write([]byte("deleteall\n"))
		return err
	}
	return fmt.Errorf("unknown filechange op %d", fc.Op)
}

// WriteTag emits an annotated tag record.
func (s *Serializer) WriteTag(t *Tag, fromRef string) error {
	if _, err := fmt.Fprintf(s.w, "tag %s\n", t.Name); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "from %s\n", fromRef); err != nil {
		return err
	}
	if t.Tagger != nil {
		if err := s.writeIdentity("tagger", t.Tagger); err != nil {
			return err
		}
	}
	return s.writeData(t.Message)
}

// WriteReset emits a `reset <ref>` record, with an optional `from` line.
func (s *Serializer) WriteReset(ref string, fromRef string, hasFrom bool) error {
	if _, err := fmt.Fprintf(s.w, "reset %s\n", ref); err != nil {
		return err
	}
	if !hasFrom {
		return nil
	}
	_, err := fmt.Fprintf(s.w, "from %s\n", fromRef)
	return err
}

// WriteAlias emits an `alias` directive mapping a pruned commit's mark to
// its surviving replacement mark, so that any later `from`/`merge`
// reference by the original mark still resolves inside fast-import itself.
// The orchestrator emits one for every pruned commit; the rewriter also
// resolves parent marks through its alias map before WriteCommit.
func (s *Serializer) WriteAlias(mark int64, toMark int64) error {
	_, err := fmt.Fprintf(s.w, "alias\nmark :%d\nto :%d\n\n", mark, toMark)
	return err
}

// WritePassThrough forwards a feature/option line unmodified.
func (s *Serializer) WritePassThrough(line string) error {
	_, err := fmt.Fprintf(s.w, "%s\n", line)
	return err
}

// WriteDone emits the terminal `done` command.
func (s *Serializer) WriteDone() error {
	_, err := s.w.Write([]byte("done\n"))
	return err
}
