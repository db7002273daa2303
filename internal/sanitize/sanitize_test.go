package sanitize

import (
	"strings"
	"testing"
	"time"
)

func TestFilenameDeterministic(t *testing.T) {
	received := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	a := Filename("/archive", "Inbox", "Hello", received, 0)
	b := Filename("/archive", "Inbox", "Hello", received, 0)

	if a != b {
		t.Fatalf("Filename is not deterministic: %q vs %q", a, b)
	}

	want := "inbox_2024-01-15-10-30-00_hello.eml"
	if a != want {
		t.Fatalf("Filename() = %q, want %q", a, want)
	}
}

func TestFilenameCollisionSuffix(t *testing.T) {
	received := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	first := Filename("/archive", "Inbox", "Hello", received, 0)
	if strings.Contains(first, "_1.eml") {
		t.Fatalf("first-fit name should not carry a collision suffix: %q", first)
	}

	one := Filename("/archive", "Inbox", "Hello", received, 1)
	if !strings.HasSuffix(one, "_1.eml") {
		t.Fatalf("collision 1 should produce _1.eml suffix, got %q", one)
	}

	big := Filename("/archive", "Inbox", "Hello", received, 42)
	if !strings.HasSuffix(big, "_42.eml") {
		t.Fatalf("large collision counters must be preserved, got %q", big)
	}
}

func TestFilenameEmptySubject(t *testing.T) {
	received := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	name := Filename("/archive", "Inbox", "", received, 0)
	if !strings.Contains(name, "no-subject") {
		t.Fatalf("empty subject should fall back to no-subject, got %q", name)
	}
}

func TestFilenameIllegalCharacters(t *testing.T) {
	received := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	name := Filename("/archive", "Inbox", `a/b\c:d*e?f"g<h>i|j`, received, 0)
	for _, ch := range illegalFilenameChars {
		if strings.ContainsRune(name, ch) {
			t.Fatalf("generated name %q contains illegal character %q", name, ch)
		}
	}
}

func TestFilenameWhitespaceCollapses(t *testing.T) {
	received := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	name := Filename("/archive", "Inbox", "hello   world\t\tagain", received, 0)
	if strings.Contains(name, "--") {
		t.Fatalf("whitespace runs should collapse to a single separator, got %q", name)
	}
}

func TestFilenameSortOrder(t *testing.T) {
	t1 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)

	early := Filename("/archive", "Inbox", "x", t1, 0)
	later := Filename("/archive", "Inbox", "x", t2, 0)

	if !(early < later) {
		t.Fatalf("filenames must sort lexicographically by timestamp: %q vs %q", early, later)
	}

	inbox := Filename("/archive", "Inbox", "x", t1, 0)
	zbox := Filename("/archive", "Zzz", "x", t1, 0)

	if !(inbox < zbox) {
		t.Fatalf("filenames must sort lexicographically by folder prefix: %q vs %q", inbox, zbox)
	}
}

func TestFolderPrefixElision(t *testing.T) {
	long := "Root/" + strings.Repeat("middle-segment-name/", 10) + "Deepest"

	prefix := FolderPrefix(long)
	if !strings.HasPrefix(prefix, "root") {
		t.Fatalf("elided prefix should keep root segment, got %q", prefix)
	}

	if !strings.HasSuffix(prefix, "deepest") {
		t.Fatalf("elided prefix should keep deepest segment, got %q", prefix)
	}

	if len(prefix) > folderPrefixBudget {
		t.Fatalf("elided prefix exceeds budget: len=%d", len(prefix))
	}
}

func TestSanitizeFolderPathEmpty(t *testing.T) {
	if got := SanitizeFolderPath(""); got != "Unknown" {
		t.Fatalf("SanitizeFolderPath(\"\") = %q, want Unknown", got)
	}
}

func TestSanitizeFolderPathPreservesSegments(t *testing.T) {
	got := SanitizeFolderPath("Inbox/Projects/2024")
	want := "Inbox/Projects/2024"

	if got != want {
		t.Fatalf("SanitizeFolderPath() = %q, want %q", got, want)
	}
}

func TestEnsureUnique(t *testing.T) {
	existing := map[string]bool{
		"hello.eml":   true,
		"hello_1.eml": true,
	}

	generate := func(n int) string {
		if n == 0 {
			return "hello.eml"
		}

		return strings.TrimSuffix("hello.eml", ".eml") + "_" + itoa(n) + ".eml"
	}

	got := EnsureUnique(generate, func(name string) bool { return existing[name] })
	if got != "hello_2.eml" {
		t.Fatalf("EnsureUnique() = %q, want hello_2.eml", got)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}

	return string(b)
}

func TestNFCNormalizationCollision(t *testing.T) {
	// composed: LATIN SMALL LETTER E WITH ACUTE (U+00E9).
	// decomposed: LATIN SMALL LETTER E (U+0065) + COMBINING ACUTE ACCENT (U+0301).
	// Both render as "e" with an accent but differ byte-for-byte until NFC-normalized.
	composed := "Caf\u00e9"
	decomposed := "Cafe\u0301"

	received := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := Filename("/archive", "Inbox", composed, received, 0)
	b := Filename("/archive", "Inbox", decomposed, received, 0)

	if a != b {
		t.Fatalf("NFC-equivalent subjects produced different filenames: %q vs %q", a, b)
	}
}

func TestDynamicSubjectMaxBounds(t *testing.T) {
	shortRoot := ""
	longRoot := strings.Repeat("a", 500)

	if n := dynamicSubjectMax(shortRoot, "inbox"); n > maxSubjectLen {
		t.Fatalf("dynamicSubjectMax with short root = %d, want <= %d", n, maxSubjectLen)
	}

	if n := dynamicSubjectMax(longRoot, "inbox"); n < minSubjectLen {
		t.Fatalf("dynamicSubjectMax with long root = %d, want >= %d", n, minSubjectLen)
	}
}
