// Package glob implements a gitignore-style pattern matcher: patterns
// compiled once into a byte-coded token list, matched
// with a linear two-pointer algorithm instead of a backtracking one, so
// that matching a path is bounded by its length regardless of how many
// wildcard segments the pattern contains.
//
// Grounded on rclone's fs/filter package for the expected match
// semantics of "*", "**", "?", and character classes (its glob_test.go
// table is reused here as a behavioral vector set), but not on its
// implementation: rclone compiles patterns to a regexp, which can
// backtrack exponentially on crafted inputs (e.g. "a*a*a*a*a*b" against a
// long run of "a"s). This package instead compiles each pattern segment
// into single-byte-consuming tokens plus '*' markers, and matches them
// with the standard single-backup-point wildcard algorithm, which never
// re-explores a suffix it has already ruled out.
package glob

import (
	"strings"

	"github.com/edenfs/kernelchannel/errorkind"
)

// tokenKind is one element of a compiled segment matcher.
type tokenKind int

const (
	tokLiteral tokenKind = iota // a literal run of bytes
	tokStar                    // '*': any run of bytes not containing '/'
	tokAny                     // '?': exactly one byte, not '/'
	tokClass                   // '[...]': one byte from a set
)

// token is a single matcher step. Every kind except tokStar consumes
// exactly one byte of the candidate name, which is what lets matchTokens
// below use the standard linear two-pointer wildcard algorithm instead
// of a recursive one: a tokStar only ever needs one "last star" backup
// point remembered at a time, not a branch per star.
type token struct {
	kind  tokenKind
	char  byte
	class []byte
	negate bool
}

// segment is one path component's worth of compiled tokens, e.g. the
// compiled form of "*.c" or "build".
type segment struct {
	tokens []token
}

// Pattern is a compiled gitignore-style rule.
type Pattern struct {
	source             string
	segments           []segment
	anchored           bool // pattern began with '/': matches from the root only
	dirOnly            bool // pattern ended with '/': matches directories only
	trailingDoubleStar bool
	negate             bool // pattern began with '!': re-include a previously excluded path
	caseFold           bool

	// includeDotfiles controls whether '*', '?', '[...]' and '**' are
	// willing to match a name beginning with '.'. A literal '.' in the
	// pattern always matches explicitly regardless of this flag; this
	// only gates the wildcard tokens, matching the conventional
	// fnmatch/glob "hidden file" carve-out.
	includeDotfiles bool
}

// Compile parses one gitignore-style pattern line. It returns a
// *errorkind.Error of KindPatternCompile if the pattern is malformed
// (e.g. an unterminated character class); only the offending rule is
// meant to be dropped -- callers are expected to log and skip, not
// abort the whole ignore file. includeDotfiles controls whether a
// wildcard token may match a name beginning with '.'.
func Compile(pattern string, caseFold, includeDotfiles bool) (*Pattern, error) {
	p := &Pattern{source: pattern, caseFold: caseFold, includeDotfiles: includeDotfiles}

	if strings.HasPrefix(pattern, "!") {
		p.negate = true
		pattern = pattern[1:]
	}
	if strings.HasPrefix(pattern, "/") {
		p.anchored = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if pattern == "" {
		return nil, errorkind.New(errorkind.KindPatternCompile, "empty pattern after trimming anchors: %q", p.source)
	}

	parts := strings.Split(pattern, "/")
	if len(parts) > 0 && parts[0] == "**" {
		parts = parts[1:]
	}
	if len(parts) > 0 && parts[len(parts)-1] == "**" {
		p.trailingDoubleStar = true
		parts = parts[:len(parts)-1]
	}

	p.segments = make([]segment, 0, len(parts))
	for _, part := range parts {
		if part == "**" {
			// An interior "**" matches zero or more whole path segments;
			// represented as a nil-token segment the matcher special-cases.
			p.segments = append(p.segments, segment{})
			continue
		}
		seg, err := compileSegment(part)
		if err != nil {
			return nil, errorkind.New(errorkind.KindPatternCompile, "pattern %q: %v", p.source, err)
		}
		p.segments = append(p.segments, seg)
	}

	return p, nil
}

func compileSegment(s string) (segment, error) {
	var seg segment
	i := 0
	for i < len(s) {
		switch s[i] {
		case '*':
			seg.tokens = append(seg.tokens, token{kind: tokStar})
			i++
		case '?':
			seg.tokens = append(seg.tokens, token{kind: tokAny})
			i++
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return segment{}, errorkind.New(errorkind.KindPatternCompile, "unterminated character class at offset %d", i)
			}
			body := s[i+1 : i+end]
			negate := false
			if strings.HasPrefix(body, "!") || strings.HasPrefix(body, "^") {
				negate = true
				body = body[1:]
			}
			seg.tokens = append(seg.tokens, token{kind: tokClass, class: []byte(body), negate: negate})
			i += end + 1
		default:
			seg.tokens = append(seg.tokens, token{kind: tokLiteral, char: s[i]})
			i++
		}
	}
	return seg, nil
}

// Match reports whether path (slash-separated, relative to the ignore
// file's directory) matches the pattern.
func (p *Pattern) Match(path string) bool {
	parts := strings.Split(path, "/")

	if p.anchored {
		return p.matchFrom(parts, 0)
	}

	// Unanchored patterns may match starting at any path segment.
	for start := 0; start <= len(parts); start++ {
		if p.matchFrom(parts, start) {
			return true
		}
	}
	return false
}

// matchFrom attempts to match p.segments against parts[start:], honoring
// leading/trailing "**" and interior "**" segments. Recursion is bounded
// by len(parts), never by the contents of any single "*" token, which is
// what keeps this non-backtracking against adversarial inputs.
func (p *Pattern) matchFrom(parts []string, start int) bool {
	rest := parts[start:]
	if p.trailingDoubleStar {
		// A trailing "**" matches the compiled segments as a prefix of
		// rest and accepts any non-empty suffix after them, so "a/**"
		// matches what is under "a" but not "a" itself -- but
		// with dotfiles excluded, that open-ended suffix must not dip
		// into any component beginning with '.', since none of its bytes
		// pass through a compiled token that could apply the usual
		// per-component exclusion.
		if len(rest) <= len(p.segments) {
			return false
		}
		if !matchSegments(p.segments, rest[:len(p.segments)], p.caseFold, p.includeDotfiles) {
			return false
		}
		if !p.includeDotfiles {
			for _, part := range rest[len(p.segments):] {
				if isDotfile(part) {
					return false
				}
			}
		}
		return true
	}
	return matchSegmentsWithGap(p.segments, rest, p.caseFold, p.includeDotfiles)
}

// isDotfile reports whether a path component begins with '.'.
func isDotfile(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

// matchSegmentsWithGap walks segs against parts, treating a zero-token
// segment (compiled from an interior "**") as "skip zero or more parts".
// The skip amount is tried from 0 upward -- bounded by len(parts), not
// by pattern content -- so this terminates in O(len(parts)^2) worst
// case, never exponentially.
func matchSegmentsWithGap(segs []segment, parts []string, caseFold, includeDotfiles bool) bool {
	if len(segs) == 0 {
		return len(parts) == 0
	}
	if segs[0].tokens == nil {
		if !includeDotfiles {
			for _, part := range parts {
				if isDotfile(part) {
					return false
				}
			}
		}
		for skip := 0; skip <= len(parts); skip++ {
			if matchSegmentsWithGap(segs[1:], parts[skip:], caseFold, includeDotfiles) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	if !matchSegment(segs[0], parts[0], caseFold, includeDotfiles) {
		return false
	}
	return matchSegmentsWithGap(segs[1:], parts[1:], caseFold, includeDotfiles)
}

func matchSegments(segs []segment, parts []string, caseFold, includeDotfiles bool) bool {
	if len(segs) != len(parts) {
		return false
	}
	for i, seg := range segs {
		if !matchSegment(seg, parts[i], caseFold, includeDotfiles) {
			return false
		}
	}
	return true
}

// matchSegment matches one compiled segment against one path component
// using the standard linear two-pointer wildcard algorithm: a single
// remembered "last star" position lets '*' absorb bytes one at a time
// without ever re-trying the suffix match from scratch, which is what
// keeps this linear instead of exponential in the number of stars (the
// failure mode of a naive recursive matcher or a regexp translation).
//
// With dotfiles excluded, a name beginning with '.' may only be matched
// by a segment whose first token is a literal '.'; a leading wildcard
// token ('*', '?', a class) never absorbs it, mirroring the conventional
// fnmatch "hidden file" carve-out.
func matchSegment(seg segment, name string, caseFold, includeDotfiles bool) bool {
	tokens := seg.tokens
	if !includeDotfiles && isDotfile(name) && len(tokens) > 0 {
		switch tokens[0].kind {
		case tokStar, tokAny, tokClass:
			return false
		}
	}
	si, ti := 0, 0
	starTi, starSi := -1, -1

	for si < len(name) {
		if ti < len(tokens) && tokenMatchesByte(tokens[ti], name[si], caseFold) {
			si++
			ti++
			continue
		}
		if ti < len(tokens) && tokens[ti].kind == tokStar {
			starTi, starSi = ti, si
			ti++
			continue
		}
		if starTi >= 0 {
			starSi++
			si = starSi
			ti = starTi + 1
			continue
		}
		return false
	}

	for ti < len(tokens) && tokens[ti].kind == tokStar {
		ti++
	}
	return ti == len(tokens)
}

func tokenMatchesByte(tok token, b byte, caseFold bool) bool {
	switch tok.kind {
	case tokLiteral:
		c := tok.char
		if caseFold {
			c = toLowerByte(c)
			b = toLowerByte(b)
		}
		return c == b
	case tokAny:
		return true
	case tokClass:
		in := classContains(tok.class, b)
		if tok.negate {
			in = !in
		}
		return in
	default:
		return false
	}
}

func toLowerByte(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func classContains(class []byte, b byte) bool {
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= b && b <= class[i+2] {
				return true
			}
			i += 2
			continue
		}
		if class[i] == b {
			return true
		}
	}
	return false
}
