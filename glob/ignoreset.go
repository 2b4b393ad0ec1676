package glob

// DirOnly reports whether p only matches directories (trailing '/' in
// the source pattern).
func (p *Pattern) DirOnly() bool { return p.dirOnly }

// Negate reports whether p re-includes a path excluded by an earlier
// rule (leading '!' in the source pattern).
func (p *Pattern) Negate() bool { return p.negate }

// Source returns the original pattern text, used for logging which rule
// matched.
func (p *Pattern) Source() string { return p.source }

// IgnoreSet is an ordered list of compiled patterns, evaluated the way
// gitignore files are: later rules override earlier ones, and a '!'
// rule re-includes a path an earlier rule excluded.
type IgnoreSet struct {
	patterns []*Pattern
}

// NewIgnoreSet compiles every non-empty, non-comment line in lines.
// Malformed lines are skipped (not fatal to the set): only the
// offending rule is dropped, and skipped lines are returned alongside
// their compile error for the caller to log. Ignore rules always
// include dotfiles -- a rule like "*.log" is expected to cover
// ".debug.log" the way gitignore itself behaves -- unlike glob queries
// run through a GlobNode tree, which default to excluding them.
func NewIgnoreSet(lines []string, caseFold bool) (*IgnoreSet, []error) {
	set := &IgnoreSet{}
	var errs []error
	for _, line := range lines {
		trimmed := trimCommentAndSpace(line)
		if trimmed == "" {
			continue
		}
		p, err := Compile(trimmed, caseFold, true)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set.patterns = append(set.patterns, p)
	}
	return set, errs
}

func trimCommentAndSpace(line string) string {
	// A leading '#' is a comment unless escaped with '\#'; gitignore's
	// trailing-whitespace trimming is intentionally not replicated here
	// since this module receives already-split, already-trimmed lines
	// from its TOML-adjacent config loader rather than raw file bytes.
	if len(line) > 0 && line[0] == '#' {
		return ""
	}
	return line
}

// IsIgnored evaluates every pattern in order and returns whether path is
// ignored after applying negation rules, i.e. the gitignore semantics:
// the last matching rule wins.
func (s *IgnoreSet) IsIgnored(path string, isDir bool) bool {
	ignored := false
	for _, p := range s.patterns {
		if p.DirOnly() && !isDir {
			continue
		}
		if p.Match(path) {
			ignored = !p.Negate()
		}
	}
	return ignored
}
