// Package rule implements an ordered rule list used to decide, for each
// filesystem entry encountered during a scan, whether it should be
// included, excluded, or ignored entirely.
package rule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Action is the disposition a rule (or the default) assigns to an entry.
type Action uint8

const (
	// ActionInclude includes the entry in the tree. This is the default
	// action when no rule matches.
	ActionInclude Action = iota
	// ActionExclude omits the entry from the tree. The engine treats
	// Exclude and Ignore identically during a scan: an excluded directory
	// is not descended into either. The distinction exists for rule-file
	// readability.
	ActionExclude
	// ActionIgnore omits the entry from the tree and, for directories,
	// prevents descending into it.
	ActionIgnore
)

// String renders the action using the same token used in rule source text.
func (a Action) String() string {
	switch a {
	case ActionInclude:
		return "include"
	case ActionExclude:
		return "exclude"
	case ActionIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

func parseAction(token string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "include":
		return ActionInclude, true
	case "exclude":
		return ActionExclude, true
	case "ignore":
		return ActionIgnore, true
	default:
		return 0, false
	}
}

// Attribute identifies which property of an entry a rule inspects.
type Attribute uint8

const (
	AttributePath Attribute = iota
	AttributeName
	AttributeSize
	AttributeModTime
	AttributeChangeTime
)

func parseAttribute(token string) (Attribute, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "path":
		return AttributePath, true
	case "name":
		return AttributeName, true
	case "size":
		return AttributeSize, true
	case "mtime":
		return AttributeModTime, true
	case "ctime":
		return AttributeChangeTime, true
	default:
		return 0, false
	}
}

// Operator identifies the comparison a rule performs between an attribute
// and its rule value.
type Operator uint8

const (
	OperatorEqual Operator = iota
	OperatorNotEqual
	OperatorLess
	OperatorLessEqual
	OperatorGreater
	OperatorGreaterEqual
	OperatorMatch
	OperatorRegexp
)

var operatorAliases = map[string]Operator{
	"eq":  OperatorEqual,
	"=":   OperatorEqual,
	"==":  OperatorEqual,
	"ne":  OperatorNotEqual,
	"!=":  OperatorNotEqual,
	"<>":  OperatorNotEqual,
	"lt":  OperatorLess,
	"<":   OperatorLess,
	"lte": OperatorLessEqual,
	"<=":  OperatorLessEqual,
	"gt":  OperatorGreater,
	">":   OperatorGreater,
	"gte": OperatorGreaterEqual,
	">=":  OperatorGreaterEqual,
	"match":  OperatorMatch,
	"regexp": OperatorRegexp,
}

func parseOperator(token string) (Operator, bool) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(token))]
	return op, ok
}

// InvalidRuleStringError indicates that a rule's source text could not be
// parsed.
type InvalidRuleStringError struct {
	Source string
	Reason string
}

func (e *InvalidRuleStringError) Error() string {
	return fmt.Sprintf("invalid rule %q: %s", e.Source, e.Reason)
}

// InvalidRegularExpressionError indicates that a regexp-operator rule's
// value failed to compile.
type InvalidRegularExpressionError struct {
	Pattern string
	Cause   error
}

func (e *InvalidRegularExpressionError) Error() string {
	return fmt.Sprintf("invalid regular expression %q: %v", e.Pattern, e.Cause)
}

func (e *InvalidRegularExpressionError) Unwrap() error {
	return e.Cause
}

// Rule is a single parsed filter rule: if an entry's attribute satisfies
// operator against value, action is returned for that entry.
type Rule struct {
	Attribute Attribute
	Operator  Operator
	Raw       string
	Action    Action

	numericValue int64
	stringValue  string
	compiled     *regexp.Regexp
}

// Source renders the rule back into its canonical textual form.
func (r *Rule) Source() string {
	return fmt.Sprintf("%s: %s", r.Action, r.Raw)
}

// stripQuotes removes a single matched pair of surrounding single or double
// quotes from value, if present, so a rule may write its value bare or
// quoted (e.g. ".DS_Store" or '.DS_Store').
func stripQuotes(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// Parse parses a single rule line in the form "action: attribute operator
// value" (for example "ignore: name match *.tmp" or "exclude: size gt 10m").
// Blank lines and lines beginning with '#' are rejected by the caller before
// reaching Parse; Parse itself only understands well-formed rule text.
func Parse(line string) (*Rule, error) {
	actionPart, rest, ok := strings.Cut(line, ":")
	if !ok {
		return nil, &InvalidRuleStringError{Source: line, Reason: "missing ':' separating action from condition"}
	}
	action, ok := parseAction(actionPart)
	if !ok {
		return nil, &InvalidRuleStringError{Source: line, Reason: "unrecognized action " + strconv.Quote(strings.TrimSpace(actionPart))}
	}

	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return nil, &InvalidRuleStringError{Source: line, Reason: "expected 'attribute operator value'"}
	}
	attr, ok := parseAttribute(fields[0])
	if !ok {
		return nil, &InvalidRuleStringError{Source: line, Reason: "unrecognized attribute " + strconv.Quote(fields[0])}
	}
	op, ok := parseOperator(fields[1])
	if !ok {
		return nil, &InvalidRuleStringError{Source: line, Reason: "unrecognized operator " + strconv.Quote(fields[1])}
	}
	value := stripQuotes(strings.Join(fields[2:], " "))

	rule := &Rule{
		Attribute: attr,
		Operator:  op,
		Raw:       strings.TrimSpace(rest),
		Action:    action,
	}

	switch attr {
	case AttributeSize:
		n, err := parseSize(value)
		if err != nil {
			return nil, &InvalidRuleStringError{Source: line, Reason: err.Error()}
		}
		rule.numericValue = n
	case AttributeModTime, AttributeChangeTime:
		n, err := parseTime(value)
		if err != nil {
			return nil, &InvalidRuleStringError{Source: line, Reason: err.Error()}
		}
		rule.numericValue = n
	default:
		rule.stringValue = value
	}

	if op == OperatorRegexp {
		pattern := anchorRegexp(value)
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &InvalidRegularExpressionError{Pattern: value, Cause: err}
		}
		rule.compiled = compiled
	} else if op == OperatorMatch {
		if _, err := doublestar.Match(value, "a"); err != nil {
			return nil, &InvalidRuleStringError{Source: line, Reason: "invalid glob pattern: " + err.Error()}
		}
	}

	return rule, nil
}

// anchorRegexp ensures a regexp value is matched against the whole string,
// per the full-match semantics of the regexp operator.
func anchorRegexp(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") {
		pattern = pattern + "$"
	}
	return pattern
}

// sizeSuffixShifts maps a size suffix letter to the bit shift applied to
// the numeric prefix.
var sizeSuffixShifts = map[byte]uint{
	'k': 10,
	'K': 10,
	'm': 20,
	'M': 20,
	'g': 30,
	'G': 30,
}

func parseSize(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("empty size value")
	}
	last := value[len(value)-1]
	if shift, ok := sizeSuffixShifts[last]; ok {
		n, err := strconv.ParseInt(value[:len(value)-1], 10, 64)
		if err != nil {
			return 0, errors.Wrap(err, "invalid size value")
		}
		return n << shift, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "invalid size value")
	}
	return n, nil
}

// timeLayout is the local-time format used for mtime/ctime rule values.
const timeLayout = "2006-01-02 15:04:05"

func parseTime(value string) (int64, error) {
	t, err := time.ParseInLocation(timeLayout, strings.TrimSpace(value), time.Local)
	if err != nil {
		return 0, errors.Wrap(err, "invalid time value, expected YYYY-MM-DD HH:MM:SS")
	}
	return t.Unix(), nil
}
