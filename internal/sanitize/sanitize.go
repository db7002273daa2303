// Package sanitize produces deterministic, filesystem-safe names for
// archived messages and folders. Filenames are generated so that a plain
// directory listing sorts by folder then by receive time; nothing here
// ever fails — callers always get back a usable, non-empty string.
package sanitize

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Separator convention: macroFieldSep joins the three top-level fields of a
// generated filename; segmentSep joins sanitized characters within a field.
const (
	macroFieldSep = "_"
	segmentSep    = "-"
)

// illegalFilenameChars are forbidden on at least one of the major desktop
// filesystems; whitespace runs are handled separately.
const illegalFilenameChars = `/\:*?"<>|`

// Subject slug length bounds (§4.1 "Maximum subject length is dynamic").
const (
	minSubjectLen = 10
	maxSubjectLen = 50
)

// platformPathBudget is a conservative total-path-length budget shared
// across target platforms (Windows MAX_PATH, the tightest of the three).
const platformPathBudget = 260

// folderPrefixBudget bounds how much of the computed length budget the
// folder prefix itself may consume before subject-slug truncation kicks in.
const folderPrefixBudget = 60

// dateSubPathLen is the fixed-width "YYYY/MM/" inserted between the
// archive root and the filename itself.
const dateSubPathLen = len("YYYY/MM/")

// timestampLen is the fixed width of the "YYYY-MM-DD-HH-MM-SS" field.
const timestampLen = len("2006-01-02-15-04-05")

const extSuffix = ".eml"

// noSubjectPlaceholder is used when the subject sanitizes to empty.
const noSubjectPlaceholder = "no-subject"

// unknownFolderPlaceholder is used when the folder path sanitizes to empty.
const unknownFolderPlaceholder = "Unknown"

// timestampLayout formats the receive time field of a generated filename.
const timestampLayout = "2006-01-02-15-04-05"

// Filename generates the canonical archive filename for a message.
// collision, when non-zero, appends a "_N" disambiguation suffix — callers
// drive the counter by probing the filesystem (see EnsureUnique).
func Filename(archiveRoot, folderPath, subject string, received time.Time, collision int) string {
	prefix := FolderPrefix(folderPath)
	maxSubj := dynamicSubjectMax(archiveRoot, prefix)
	slug := subjectSlug(subject, maxSubj)

	name := prefix + macroFieldSep + received.UTC().Format(timestampLayout) + macroFieldSep + slug
	if collision > 0 {
		name = fmt.Sprintf("%s%s%d", name, macroFieldSep, collision)
	}

	return name + extSuffix
}

// dynamicSubjectMax computes how long the subject slug may be so that the
// full relative path (archiveRoot/eml/YYYY/MM/filename) stays within
// platformPathBudget, floored at minSubjectLen and ceilinged at maxSubjectLen.
func dynamicSubjectMax(archiveRoot, prefix string) int {
	fixed := len(archiveRoot) + len("/eml/") + dateSubPathLen +
		len(prefix) + len(macroFieldSep) + timestampLen + len(macroFieldSep) + len(extSuffix)

	remaining := platformPathBudget - fixed
	if remaining < minSubjectLen {
		return minSubjectLen
	}

	if remaining > maxSubjectLen {
		return maxSubjectLen
	}

	return remaining
}

// FolderPrefix converts a server-side folder path into a lowercase,
// hyphen-joined filename prefix. When the joined prefix would exceed
// folderPrefixBudget, only the root and deepest segments are kept, with
// the middle elided.
func FolderPrefix(folderPath string) string {
	segments := splitPath(folderPath)
	if len(segments) == 0 {
		return strings.ToLower(unknownFolderPlaceholder)
	}

	sanitized := make([]string, 0, len(segments))
	for _, seg := range segments {
		s := sanitizeSegment(seg)
		if s != "" {
			sanitized = append(sanitized, s)
		}
	}

	if len(sanitized) == 0 {
		return strings.ToLower(unknownFolderPlaceholder)
	}

	joined := strings.Join(sanitized, segmentSep)
	if len(joined) <= folderPrefixBudget || len(sanitized) <= 2 {
		return joined
	}

	// Elide the middle: keep root and deepest segment only.
	elided := sanitized[0] + segmentSep + sanitized[len(sanitized)-1]
	if len(elided) <= folderPrefixBudget {
		return elided
	}

	return elided[:folderPrefixBudget]
}

// SanitizeFolderPath converts a display path into a cross-platform safe
// relative path, one sanitized segment per input segment. Empty input
// produces "Unknown".
func SanitizeFolderPath(displayPath string) string {
	segments := splitPath(displayPath)
	if len(segments) == 0 {
		return unknownFolderPlaceholder
	}

	sanitized := make([]string, 0, len(segments))
	for _, seg := range segments {
		s := sanitizeSegmentPreserveCase(seg)
		if s != "" {
			sanitized = append(sanitized, s)
		}
	}

	if len(sanitized) == 0 {
		return unknownFolderPlaceholder
	}

	return strings.Join(sanitized, "/")
}

// splitPath normalizes separators and drops empty segments.
func splitPath(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")

	var out []string

	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}

	return out
}

// sanitizeSegment lowercases and sanitizes a single path segment for use
// inside the hyphen-joined folder prefix, normalised to NFC first so two
// composition-variants of the same folder name never produce different
// prefixes.
func sanitizeSegment(seg string) string {
	return collapseAndTrim(strings.ToLower(norm.NFC.String(seg)), segmentSep)
}

// sanitizeSegmentPreserveCase sanitizes a segment without lowercasing it,
// used for the human-facing folder-path sanitizer and for Component.
// Normalised to NFC first for the same reason as sanitizeSegment.
func sanitizeSegmentPreserveCase(seg string) string {
	return collapseAndTrim(norm.NFC.String(seg), "-")
}

// Component sanitizes a single filesystem path component (a file or
// directory name, not a full path) without lowercasing it. Shared by
// callers outside this package that need to turn an arbitrary, possibly
// hostile name (e.g. a ZIP entry name) into something safe to create on
// disk, one segment at a time.
func Component(name string) string {
	return sanitizeSegmentPreserveCase(name)
}

// subjectSlug sanitizes a message subject into a filename-safe slug no
// longer than maxLen, normalised to NFC first so composition differences
// cannot produce two slugs for what a user sees as the same subject.
func subjectSlug(subject string, maxLen int) string {
	subject = norm.NFC.String(subject)
	slug := collapseAndTrim(strings.ToLower(subject), segmentSep)

	if slug == "" {
		return noSubjectPlaceholder
	}

	if len(slug) > maxLen {
		slug = strings.Trim(slug[:maxLen], segmentSep+".")
	}

	if slug == "" {
		return noSubjectPlaceholder
	}

	return slug
}

// collapseAndTrim replaces illegal filename characters, C0 control
// characters, and whitespace runs with a single instance of fill, then
// trims leading/trailing fill and dots.
func collapseAndTrim(s, fill string) string {
	var b strings.Builder

	lastWasFill := false

	for _, r := range s {
		if isIllegalRune(r) || unicode.IsSpace(r) {
			if !lastWasFill && b.Len() > 0 {
				b.WriteString(fill)
				lastWasFill = true
			}

			continue
		}

		b.WriteRune(r)
		lastWasFill = false
	}

	out := strings.TrimRight(b.String(), fill)
	out = strings.Trim(out, fill+".")

	return out
}

// isIllegalRune reports whether r must never appear in a generated name.
func isIllegalRune(r rune) bool {
	if r < 0x20 {
		return true
	}

	return strings.ContainsRune(illegalFilenameChars, r)
}

// EnsureUnique probes exists(candidate) and appends "_1", "_2", ... until
// a candidate that does not yet exist is found. generate is called with
// the collision counter (0 for the first attempt).
func EnsureUnique(generate func(collision int) string, exists func(name string) bool) string {
	for n := 0; ; n++ {
		candidate := generate(n)
		if !exists(candidate) {
			return candidate
		}
	}
}
