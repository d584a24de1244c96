package reform

// IdentityTransformer applies mailmap-style or explicit rewrite rules to
// author/committer identity lines (4.5). Mailmap and explicit mode are
// mutually exclusive; mailmap takes precedence when both are configured.
type IdentityTransformer struct {
	mailmapByEmail map[string]MailmapEntry

	authorNames    map[string]string
	committerNames map[string]string
	emails         map[string]string

	useMailmap bool
}

func NewIdentityTransformer(rs *RuleSet) *IdentityTransformer {
	it := &IdentityTransformer{
		mailmapByEmail: map[string]MailmapEntry{},
		authorNames:    map[string]string{},
		committerNames: map[string]string{},
		emails:         map[string]string{},
	}
	if len(rs.Mailmap) != 0 {
		it.useMailmap = true
		for _, e := range rs.Mailmap {
			key := e.OldEmail
			if len(key) == 0 {
				key = e.CanonicalEmail
			}
			it.mailmapByEmail[key] = e
		}
		return it
	}
	for _, r := range rs.AuthorNameRules {
		it.authorNames[r.Old] = r.New
	}
	for _, r := range rs.CommitterNameRules {
		it.committerNames[r.Old] = r.New
	}
	for _, r := range rs.EmailRules {
		it.emails[r.Old] = r.New
	}
	return it
}

// TransformAuthor rewrites an author identity in place.
func (it *IdentityTransformer) TransformAuthor(id *Identity) {
	it.transform(id, it.authorNames)
}

// TransformCommitter rewrites a committer identity in place.
func (it *IdentityTransformer) TransformCommitter(id *Identity) {
	it.transform(id, it.committerNames)
}

// TransformTagger rewrites a tagger identity in place. Taggers follow the
// committer rules in explicit mode, and mailmap applies to them the same
// way git's own mailmap does.
func (it *IdentityTransformer) TransformTagger(id *Identity) {
	it.transform(id, it.committerNames)
}

func (it *IdentityTransformer) transform(id *Identity, nameRules map[string]string) {
	if id == nil {
		return
	}
	if it.useMailmap {
		if e, ok := it.mailmapByEmail[id.Email]; ok {
			if len(e.CanonicalName) != 0 {
				id.Name = e.CanonicalName
			}
			id.Email = e.CanonicalEmail
		}
		return
	}
	if n, ok := nameRules[id.Name]; ok {
		id.Name = n
	}
	if e, ok := it.emails[id.Email]; ok {
		id.Email = e
	}
}
