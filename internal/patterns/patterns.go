// Package patterns implements the configuration-driven regex pattern
// engine: ordered matching (sheet-bound patterns first), named-group
// extraction, trailing entity-suffix stripping, and player/action
// synthesis, per SPEC_FULL.md §5.3.
package patterns

import (
	"regexp"
	"strings"

	"github.com/ijol/sclog-core/internal/patternconfig"
)

var trailingEntitySuffix = regexp.MustCompile(`_\d{4,}$`)

// StateFields are the tailer state values merged into pattern data when not
// already present as a named capture group.
type StateFields struct {
	Mode          string
	Shard         string
	Username      string
	Version       string
	ScriptVersion string
	Datetime      string
}

func (s StateFields) asMap() map[string]string {
	return map[string]string{
		"mode":           s.Mode,
		"shard":          s.Shard,
		"username":       s.Username,
		"version":        s.Version,
		"script_version": s.ScriptVersion,
		"datetime":       s.Datetime,
	}
}

// Match is the synthesized result of a successful pattern match.
type Match struct {
	PatternName    string
	Data           map[string]string
	Content        string
	DiscordContent string
	Discord        bool
	GoogleSheets   bool
	Realtime       bool
	Scraping       bool
}

// VIPMatcher reports whether a raw line matches any configured VIP pattern.
// Implemented by internal/profile; kept as a narrow interface here to avoid
// an import cycle between the pattern engine and the profile subsystem.
type VIPMatcher interface {
	Match(line string) bool
}

// Engine evaluates lines against a precompiled, ordered pattern set.
type Engine struct {
	patterns *patternconfig.Compiled
}

// New constructs an Engine over a precompiled pattern set.
func New(patterns *patternconfig.Compiled) *Engine {
	return &Engine{patterns: patterns}
}

// Process tests line against every pattern in priority order (sheet-bound
// first) and returns the first match, synthesized per SPEC_FULL.md §5.3.
func (e *Engine) Process(line string, state StateFields) (*Match, bool) {
	for _, cp := range e.patterns.Ordered {
		groups := cp.Regex.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		names := cp.Regex.SubexpNames()
		data := make(map[string]string, len(names))
		for i, name := range names {
			if i == 0 || name == "" {
				continue
			}
			data[name] = stripTrailingEntitySuffix(groups[i])
		}

		data["player"] = firstNonEmpty(data["player"], data["owner"], data["entity"], "Unknown")
		data["action"] = titleCase(cp.Name)

		for k, v := range state.asMap() {
			if _, ok := data[k]; !ok && v != "" {
				data[k] = v
			}
		}

		m := &Match{
			PatternName:  cp.Name,
			Data:         data,
			Content:      renderTemplate(cp.MessageTemplate, data),
			Discord:      cp.DiscordTemplate != "",
			GoogleSheets: cp.SheetBound,
			Realtime:     cp.Realtime,
			Scraping:     cp.Scraping,
		}
		if m.Discord {
			m.DiscordContent = renderTemplate(cp.DiscordTemplate, data)
		}
		return m, true
	}
	return nil, false
}

// CheckVIP reports whether line matches any configured VIP pattern,
// independent of (and in addition to) the main Process dispatch.
func (e *Engine) CheckVIP(line string, vip VIPMatcher) bool {
	if vip == nil {
		return false
	}
	return vip.Match(line)
}

func stripTrailingEntitySuffix(s string) string {
	return trailingEntitySuffix.ReplaceAllString(s, "")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// renderTemplate performs Python str.format(**data)-style {key} substitution.
func renderTemplate(tmpl string, data map[string]string) string {
	if tmpl == "" {
		return ""
	}
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] == '{' {
			end := strings.IndexByte(tmpl[i:], '}')
			if end >= 0 {
				key := tmpl[i+1 : i+end]
				if v, ok := data[key]; ok {
					b.WriteString(v)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String()
}

func titleCase(patternName string) string {
	parts := strings.FieldsFunc(patternName, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
