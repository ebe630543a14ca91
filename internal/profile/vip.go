package profile

import (
	"regexp"
	"strings"
)

// VIPMatcher compiles the important_players config string — a
// comma/newline-separated list of raw regex fragments — into the same
// shape the original applies against each raw log line: a leading
// `<timestamp>` capture followed by the fragment as the `vip` group.
// Entries that fail to compile are silently dropped, per the Open
// Question resolution in SPEC_FULL.md §11; InvalidCount reports how many.
type VIPMatcher struct {
	patterns []*regexp.Regexp
	invalid  int
}

// CompileVIPPatterns builds a VIPMatcher from the raw important_players
// config value.
func CompileVIPPatterns(raw string) *VIPMatcher {
	v := &VIPMatcher{}
	for _, entry := range splitConfigList(raw) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		re, err := regexp.Compile(`<(?P<timestamp>.*?)>.*?(?P<vip>` + entry + `?).*?`)
		if err != nil {
			v.invalid++
			continue
		}
		v.patterns = append(v.patterns, re)
	}
	return v
}

func splitConfigList(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\n", ",")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// Match implements patterns.VIPMatcher.
func (v *VIPMatcher) Match(line string) bool {
	for _, re := range v.patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// InvalidCount returns how many configured VIP entries failed to compile.
func (v *VIPMatcher) InvalidCount() int { return v.invalid }
