package rule

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Subject is the minimal view of a filesystem entry that rule evaluation
// needs. It is independent of any particular tree or entry representation
// so that this package has no dependency on its caller.
type Subject struct {
	Pathname   string
	Name       string
	IsDir      bool
	Size       uint64
	ModTime    int64
	ChangeTime int64
}

// Set is an ordered list of rules evaluated first-match-wins, falling back
// to ActionInclude if no rule matches.
type Set struct {
	rules []*Rule
}

// NewSet constructs a rule set from already-parsed rules, in evaluation
// order.
func NewSet(rules []*Rule) *Set {
	return &Set{rules: rules}
}

// ParseSet parses one rule per non-blank, non-comment line.
func ParseSet(r io.Reader) (*Set, error) {
	var rules []*Rule
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := Parse(line)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read rule set")
	}
	return NewSet(rules), nil
}

// AppendStrings parses and appends rules supplied as literal strings (for
// example from repeated --rule flags), returning a new Set.
func (s *Set) AppendStrings(lines []string) (*Set, error) {
	rules := append([]*Rule(nil), s.rules...)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rule, err := Parse(line)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return NewSet(rules), nil
}

// Rules returns the rules in the set, in evaluation order.
func (s *Set) Rules() []*Rule {
	return s.rules
}

// Test evaluates the rule set against a subject and returns the resulting
// action: the action of the first matching rule, or ActionInclude if none
// match.
func (s *Set) Test(subject Subject) Action {
	if s == nil {
		return ActionInclude
	}
	for _, r := range s.rules {
		if r.matches(subject) {
			return r.Action
		}
	}
	return ActionInclude
}

func (r *Rule) matches(subject Subject) bool {
	switch r.Attribute {
	case AttributePath:
		return compareString(r.Operator, subject.Pathname, r.stringValue, r.compiled)
	case AttributeName:
		return compareString(r.Operator, subject.Name, r.stringValue, r.compiled)
	case AttributeSize:
		return compareNumeric(r.Operator, int64(subject.Size), r.numericValue)
	case AttributeModTime:
		return compareNumeric(r.Operator, subject.ModTime, r.numericValue)
	case AttributeChangeTime:
		return compareNumeric(r.Operator, subject.ChangeTime, r.numericValue)
	default:
		return false
	}
}

func compareString(op Operator, actual, value string, compiled *regexp.Regexp) bool {
	switch op {
	case OperatorEqual:
		return actual == value
	case OperatorNotEqual:
		return actual != value
	case OperatorMatch:
		ok, _ := doublestar.Match(value, actual)
		return ok
	case OperatorRegexp:
		return compiled != nil && compiled.MatchString(actual)
	default:
		return false
	}
}

func compareNumeric(op Operator, actual, value int64) bool {
	switch op {
	case OperatorEqual:
		return actual == value
	case OperatorNotEqual:
		return actual != value
	case OperatorLess:
		return actual < value
	case OperatorLessEqual:
		return actual <= value
	case OperatorGreater:
		return actual > value
	case OperatorGreaterEqual:
		return actual >= value
	default:
		return false
	}
}
