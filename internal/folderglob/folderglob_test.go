package folderglob

import "testing"

func TestBareLiteralMatchesSelfAndDescendants(t *testing.T) {
	m := New([]string{"Archive"})

	cases := map[string]bool{
		"Archive":            true,
		"Archive/2024":       true,
		"Archive/2024/Taxes": true,
		"Inbox":               false,
		"ArchiveOld":          false,
	}

	for path, want := range cases {
		if got := m.IsExcluded(path); got != want {
			t.Errorf("IsExcluded(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestBareLiteralMultiSegment(t *testing.T) {
	m := New([]string{"Inbox/Work"})

	cases := map[string]bool{
		"Inbox":                false,
		"Inbox/Work":           true,
		"Inbox/Work/Projects":  true,
		"Inbox/Personal":       false,
	}

	for path, want := range cases {
		if got := m.IsExcluded(path); got != want {
			t.Errorf("IsExcluded(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestLeadingDoubleStarMatchesAtAnyDepth(t *testing.T) {
	m := New([]string{"**/Spam"})

	cases := map[string]bool{
		"Spam":              true,
		"Inbox/Spam":        true,
		"Inbox/Sub/Spam":    true,
		"SpamArchive":       false,
		"Inbox/NotSpam":     false,
	}

	for path, want := range cases {
		if got := m.IsExcluded(path); got != want {
			t.Errorf("IsExcluded(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestTrailingSingleStarMatchesImmediateChildrenOnly(t *testing.T) {
	m := New([]string{"Inbox/*"})

	cases := map[string]bool{
		"Inbox":             false,
		"Inbox/Work":        true,
		"Inbox/Personal":    true,
		"Inbox/Work/Deep":   false,
	}

	for path, want := range cases {
		if got := m.IsExcluded(path); got != want {
			t.Errorf("IsExcluded(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestTrailingDoubleStarMatchesAllDescendantsNotSelf(t *testing.T) {
	m := New([]string{"Inbox/**"})

	cases := map[string]bool{
		"Inbox":              false,
		"Inbox/Work":         true,
		"Inbox/Work/Deep":    true,
		"Personal":           false,
	}

	for path, want := range cases {
		if got := m.IsExcluded(path); got != want {
			t.Errorf("IsExcluded(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestMiddleDoubleStar(t *testing.T) {
	m := New([]string{"A/**/B"})

	cases := map[string]bool{
		"A/B":       true,
		"A/x/B":     true,
		"A/x/y/B":   true,
		"A":         false,
		"A/x":       false,
		"A/B/C":     false,
	}

	for path, want := range cases {
		if got := m.IsExcluded(path); got != want {
			t.Errorf("IsExcluded(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestCaseInsensitive(t *testing.T) {
	m := New([]string{"InBox"})

	if !m.IsExcluded("inbox") {
		t.Fatal("expected case-insensitive match")
	}

	if !m.IsExcluded("INBOX/sub") {
		t.Fatal("expected case-insensitive descendant match")
	}
}

func TestRegexSpecialCharactersEscaped(t *testing.T) {
	m := New([]string{"Inbox (Old)"})

	if !m.IsExcluded("Inbox (Old)") {
		t.Fatal("literal parentheses should match literally")
	}

	if m.IsExcluded("Inbox Old") {
		t.Fatal("parentheses must not be treated as regex groups")
	}
}

func TestEmptyAndWhitespacePatternsIgnored(t *testing.T) {
	m := New([]string{"", "   ", "\t"})

	if m.IsExcluded("Inbox") {
		t.Fatal("blank patterns must never match")
	}
}

func TestEmptyPathNeverMatches(t *testing.T) {
	m := New([]string{"**"})

	if m.IsExcluded("") {
		t.Fatal("empty path must never match, even against a catch-all pattern")
	}
}

func TestAggregateIsExcludedDisjunction(t *testing.T) {
	m := New([]string{"Spam", "Trash/**"})

	if !m.IsExcluded("Spam") {
		t.Fatal("expected Spam to match first pattern")
	}

	if !m.IsExcluded("Trash/Old") {
		t.Fatal("expected Trash/Old to match second pattern")
	}

	if m.IsExcluded("Inbox") {
		t.Fatal("Inbox should not match either pattern")
	}
}

func TestSingleStarWithinSegment(t *testing.T) {
	m := New([]string{"Project-*"})

	cases := map[string]bool{
		"Project-Alpha":        true,
		"Project-":             true,
		"Project-Alpha/Nested": false,
		"OtherProject-Alpha":   false,
	}

	for path, want := range cases {
		if got := m.IsExcluded(path); got != want {
			t.Errorf("IsExcluded(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestNilMatcherExcludesNothing(t *testing.T) {
	var m *Matcher

	if m.IsExcluded("Inbox") {
		t.Fatal("nil matcher must never exclude")
	}
}

func TestPackageLevelMatchHelper(t *testing.T) {
	if !Match("Archive/**", "Archive/2024") {
		t.Fatal("expected package-level Match to behave like Matcher")
	}

	if Match("", "Inbox") {
		t.Fatal("blank pattern must never match via Match")
	}
}
