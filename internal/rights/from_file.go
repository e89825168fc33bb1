package rights

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// rule is one [section] of the from_file rules file: a user regex, a
// collection regex (which may reference {user} and the user regex's
// captured groups, e.g. "{0}"), and the permission set to grant when both
// match.
type rule struct {
	name       string
	userRe     *regexp.Regexp
	collRaw    string
	perms      string
}

// fromFileP loads rules once at startup; first match wins (spec.md §4.3).
type fromFileP struct {
	rules []rule
}

func (p *fromFileP) Authorize(r Request) bool {
	for _, rl := range p.rules {
		m := rl.userRe.FindStringSubmatch(r.User)
		if m == nil {
			continue
		}
		collPattern := expandCaptures(rl.collRaw, r.User, m)
		collRe, err := regexp.Compile("^" + collPattern + "$")
		if err != nil || !collRe.MatchString(r.Path) {
			continue
		}
		return strings.ContainsRune(rl.perms, rune(r.Permission))
	}
	return false
}

// expandCaptures substitutes "{user}" with the full matched user string and
// "{0}", "{1}", ... with userRe's captured groups, the way spec.md §4.3
// describes ("captured-group substitutions from the user regex").
func expandCaptures(pattern, user string, groups []string) string {
	out := strings.ReplaceAll(pattern, "{user}", regexp.QuoteMeta(user))
	for i, g := range groups[1:] {
		out = strings.ReplaceAll(out, fmt.Sprintf("{%d}", i), regexp.QuoteMeta(g))
	}
	return out
}

// parseFromFile reads an INI-like rules file:
//
//	[ruleName]
//	user: ^alice$
//	collection: ^{user}/.*$
//	permissions: RrWw
//
// Sections are evaluated in file order. No ecosystem INI library appears
// anywhere in the retrieved corpus, so this one format (a flat list of
// "key: value" lines under "[section]" headers, exactly mirroring
// Python Radicale's rights file grammar that spec.md §4.3 describes) is
// read with stdlib bufio+regexp rather than reaching for a library with
// no grounding in the pack.
func parseFromFile(path string) ([]rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sectionRe := regexp.MustCompile(`^\[(.+)\]$`)
	kvRe := regexp.MustCompile(`^([A-Za-z]+)\s*[:=]\s*(.*)$`)

	var rules []rule
	var cur *rule
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			if cur != nil {
				rules = append(rules, *cur)
			}
			cur = &rule{name: m[1]}
			continue
		}
		m := kvRe.FindStringSubmatch(line)
		if m == nil || cur == nil {
			continue
		}
		key, val := strings.ToLower(m[1]), m[2]
		switch key {
		case "user":
			re, err := regexp.Compile("^" + val + "$")
			if err != nil {
				return nil, fmt.Errorf("rights: invalid user regex in [%s]: %w", cur.name, err)
			}
			cur.userRe = re
		case "collection":
			cur.collRaw = val
		case "permissions":
			cur.perms = val
		}
	}
	if cur != nil {
		rules = append(rules, *cur)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for _, r := range rules {
		if r.userRe == nil {
			return nil, fmt.Errorf("rights: [%s] missing user pattern", r.name)
		}
	}
	return rules, nil
}

func init() {
	Register("from_file", func(opts map[string]string) (Policy, error) {
		path := opts["file"]
		if path == "" {
			return nil, fmt.Errorf("rights: from_file requires a file path")
		}
		rules, err := parseFromFile(path)
		if err != nil {
			return nil, err
		}
		return &fromFileP{rules: rules}, nil
	})
}
