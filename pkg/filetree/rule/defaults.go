package rule

// defaultRuleSource lists the starter ignore rules written to a new
// folder's rule file on first run, covering common editor/OS/VCS litter
// that nobody wants synchronized.
var defaultRuleSource = []string{
	"ignore: name match .DS_Store",
	"ignore: name match Thumbs.db",
	"ignore: name match *.swp",
	"ignore: name match .Trashes",
	"ignore: name match .fseventsd",
	"ignore: name match *TemporaryItems",
	"ignore: name match .git",
	"ignore: name match .svn",
	"ignore: name match .hg",
	"ignore: name match .idea",
}

// DefaultRules returns the built-in starter rule set. Parsing is expected
// to always succeed since the source above is fixed and tested; a failure
// here indicates a bug in this package, not bad user input.
func DefaultRules() *Set {
	rules := make([]*Rule, 0, len(defaultRuleSource))
	for _, line := range defaultRuleSource {
		r, err := Parse(line)
		if err != nil {
			panic("invalid built-in default rule: " + err.Error())
		}
		rules = append(rules, r)
	}
	return NewSet(rules)
}

// DefaultRuleFileContents returns the text written to a new rule file,
// including comment lines explaining the format.
func DefaultRuleFileContents() string {
	header := "# syncrypto rule file\n" +
		"# one rule per line: ACTION: ATTRIBUTE OPERATOR VALUE\n" +
		"# ACTION is include, exclude, or ignore\n" +
		"# ATTRIBUTE is path, name, size, mtime, or ctime\n" +
		"# OPERATOR is eq, ne, lt, lte, gt, gte, match, or regexp\n" +
		"# lines beginning with '#' are comments\n\n"
	for _, line := range defaultRuleSource {
		header += line + "\n"
	}
	return header
}
