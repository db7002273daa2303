// Package folderglob matches server-side folder paths against a small glob
// grammar used to exclude subtrees from sync. Patterns are case-insensitive
// and compiled once at construction time.
package folderglob

import (
	"regexp"
	"strings"
)

// Matcher is the compiled form of a set of exclude patterns. The zero value
// (via New with no patterns) excludes nothing.
type Matcher struct {
	compiled []*regexp.Regexp
	sources  []string
}

// New compiles patterns into a Matcher. Empty and whitespace-only patterns
// are ignored; a pattern that fails to compile (should not happen for any
// input accepted by the grammar) is skipped rather than panicking — the
// matcher degrades to "does not exclude this pattern" rather than failing
// the whole sync run over one malformed exclude rule.
func New(patterns []string) *Matcher {
	m := &Matcher{}

	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}

		re, err := compile(p)
		if err != nil {
			continue
		}

		m.compiled = append(m.compiled, re)
		m.sources = append(m.sources, p)
	}

	return m
}

// Patterns returns the source patterns that compiled successfully, in
// configuration order. Used by status reporting to echo back what is
// actually in effect.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}

	return m.sources
}

// IsExcluded reports whether path matches any configured pattern. A nil or
// empty path never matches.
func (m *Matcher) IsExcluded(path string) bool {
	if m == nil || path == "" {
		return false
	}

	normalized := normalizePath(path)
	if normalized == "" {
		return false
	}

	for _, re := range m.compiled {
		if re.MatchString(normalized) {
			return true
		}
	}

	return false
}

// Match is a package-level convenience for one-off pattern checks; it
// compiles the pattern on every call so Matcher should be preferred for
// repeated use against many paths.
func Match(pattern, path string) bool {
	if strings.TrimSpace(pattern) == "" || path == "" {
		return false
	}

	re, err := compile(pattern)
	if err != nil {
		return false
	}

	return re.MatchString(normalizePath(path))
}

// normalizePath lowercases and strips leading/trailing slashes so pattern
// and path share one canonical representation.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")

	return strings.ToLower(p)
}

// compile translates one glob pattern into an anchored, case-normalized
// regular expression.
//
// Grammar (operates on "/"-separated segments):
//   - "*" matches any run of characters within a single segment (never "/").
//   - "**" as a whole segment matches zero or more full segments; it may
//     lead ("**/rest"), trail ("rest/**"), sit in the middle, or stand alone.
//   - a pattern with no wildcards at all is a bare literal: it matches the
//     named path exactly, or any descendant of it.
func compile(pattern string) (*regexp.Regexp, error) {
	pattern = normalizePath(pattern)
	segments := strings.Split(pattern, "/")

	body := buildSegments(segments)

	if !hasWildcard(segments) {
		// Bare literal: match itself or any descendant.
		return regexp.Compile("^" + body + "(?:/.*)?$")
	}

	return regexp.Compile("^" + body + "$")
}

// hasWildcard reports whether any segment contains "*" (including "**").
func hasWildcard(segments []string) bool {
	for _, seg := range segments {
		if strings.Contains(seg, "*") {
			return true
		}
	}

	return false
}

// buildSegments joins translated segments into one regex body, handling
// the special zero-or-more-segments behaviour of a "**" segment depending
// on its position (leading, trailing, middle, or sole segment).
func buildSegments(segments []string) string {
	if len(segments) == 1 && segments[0] == "**" {
		return ".*"
	}

	var parts []string

	for i, seg := range segments {
		switch {
		case seg == "**" && i == 0:
			// Leading "**/rest": zero or more segments before rest.
			parts = append(parts, `(?:[^/]+/)*`)
		case seg == "**" && i == len(segments)-1:
			// Trailing "rest/**": one or more segments after rest (the
			// pattern without the "**" already matches rest itself via
			// the bare-literal rule, so here we require real descendants).
			parts = append(parts, `/(?:[^/]+/)*[^/]+`)
		case seg == "**":
			// Middle "a/**/b": zero or more segments between neighbours.
			parts = append(parts, `/(?:[^/]+/)*`)
		default:
			translated := translateSegment(seg)
			if i == 0 {
				parts = append(parts, translated)
			} else if isZeroOrMoreMarker(segments[i-1]) {
				// Previous "**" already emitted its own trailing/leading
				// slash handling; join directly.
				parts = append(parts, translated)
			} else {
				parts = append(parts, "/"+translated)
			}
		}
	}

	return strings.Join(parts, "")
}

// isZeroOrMoreMarker reports whether seg is the "**" token.
func isZeroOrMoreMarker(seg string) bool {
	return seg == "**"
}

// translateSegment escapes regex metacharacters in a literal segment and
// converts "*" into a single-segment wildcard.
func translateSegment(seg string) string {
	var b strings.Builder

	for _, r := range seg {
		if r == '*' {
			b.WriteString(`[^/]*`)
			continue
		}

		b.WriteString(regexp.QuoteMeta(string(r)))
	}

	return b.String()
}
