package main

import (
	"github.com/liqing/syncrypto/pkg/filetree/rule"
)

// buildRuleSet constructs the rule set contributed by repeated --rule
// flags. The rule file (if any) is merged in separately by
// sync.NewEngine, which appends the file's rules after these.
func buildRuleSet(rules []string) (*rule.Set, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	return rule.NewSet(nil).AppendStrings(rules)
}
