package rule

import "testing"

// TestParseRule tests that rule lines parse to the expected attribute,
// operator, and action.
func TestParseRule(t *testing.T) {
	tests := []struct {
		line        string
		expectValid bool
		attribute   Attribute
		operator    Operator
		action      Action
	}{
		{"ignore: name match *.tmp", true, AttributeName, OperatorMatch, ActionIgnore},
		{"exclude: path eq some/path", true, AttributePath, OperatorEqual, ActionExclude},
		{"include: size gt 10m", true, AttributeSize, OperatorGreater, ActionInclude},
		{"ignore: mtime lt 2020-01-01 00:00:00", true, AttributeModTime, OperatorLess, ActionIgnore},
		{"ignore: name regexp ^foo.*bar$", true, AttributeName, OperatorRegexp, ActionIgnore},
		{"bogus rule", false, 0, 0, 0},
		{"ignore name match x", false, 0, 0, 0},
		{"frobnicate: name match x", false, 0, 0, 0},
		{"ignore: bogus match x", false, 0, 0, 0},
		{"ignore: name bogus x", false, 0, 0, 0},
	}

	for i, test := range tests {
		r, err := Parse(test.line)
		if test.expectValid && err != nil {
			t.Errorf("test index %d: unexpected parse error: %v", i, err)
			continue
		}
		if !test.expectValid {
			if err == nil {
				t.Errorf("test index %d: expected parse error for %q", i, test.line)
			}
			continue
		}
		if r.Attribute != test.attribute {
			t.Errorf("test index %d: attribute mismatch: %v != %v", i, r.Attribute, test.attribute)
		}
		if r.Operator != test.operator {
			t.Errorf("test index %d: operator mismatch: %v != %v", i, r.Operator, test.operator)
		}
		if r.Action != test.action {
			t.Errorf("test index %d: action mismatch: %v != %v", i, r.Action, test.action)
		}
	}
}

// TestSizeSuffixes tests that size suffix parsing applies the correct bit
// shift.
func TestSizeSuffixes(t *testing.T) {
	tests := []struct {
		value    string
		expected int64
	}{
		{"100", 100},
		{"1k", 1 << 10},
		{"1m", 1 << 20},
		{"1g", 1 << 30},
		{"2K", 2 << 10},
	}
	for i, test := range tests {
		n, err := parseSize(test.value)
		if err != nil {
			t.Errorf("test index %d: unexpected error: %v", i, err)
			continue
		}
		if n != test.expected {
			t.Errorf("test index %d: %d != %d", i, n, test.expected)
		}
	}
}

// TestSetTestFirstMatchWins tests that the first matching rule determines
// the action, and that an unmatched subject falls back to include.
func TestSetTestFirstMatchWins(t *testing.T) {
	r1, err := Parse("ignore: name match *.tmp")
	if err != nil {
		t.Fatalf("unable to parse rule: %v", err)
	}
	r2, err := Parse("include: name match important.tmp")
	if err != nil {
		t.Fatalf("unable to parse rule: %v", err)
	}
	set := NewSet([]*Rule{r2, r1})

	if action := set.Test(Subject{Name: "important.tmp"}); action != ActionInclude {
		t.Errorf("expected include, got %v", action)
	}
	if action := set.Test(Subject{Name: "scratch.tmp"}); action != ActionIgnore {
		t.Errorf("expected ignore, got %v", action)
	}
	if action := set.Test(Subject{Name: "keep.go"}); action != ActionInclude {
		t.Errorf("expected default include, got %v", action)
	}
}

// TestDefaultRules tests that the default rule set ignores common litter
// files and leaves everything else included.
func TestDefaultRules(t *testing.T) {
	set := DefaultRules()
	ignored := []string{".DS_Store", "Thumbs.db", "foo.swp", ".git"}
	for _, name := range ignored {
		if action := set.Test(Subject{Name: name}); action != ActionIgnore {
			t.Errorf("expected %q to be ignored, got %v", name, action)
		}
	}
	if action := set.Test(Subject{Name: "main.go"}); action != ActionInclude {
		t.Errorf("expected main.go to be included, got %v", action)
	}
}

// TestRegexpAnchoring tests that regexp rule values are matched against
// the whole string rather than any substring.
func TestRegexpAnchoring(t *testing.T) {
	r, err := Parse("ignore: name regexp foo")
	if err != nil {
		t.Fatalf("unable to parse rule: %v", err)
	}
	set := NewSet([]*Rule{r})

	if action := set.Test(Subject{Name: "foo"}); action != ActionIgnore {
		t.Errorf("expected exact match to be ignored, got %v", action)
	}
	if action := set.Test(Subject{Name: "foobar"}); action != ActionInclude {
		t.Errorf("expected partial match not to be ignored, got %v", action)
	}
}
