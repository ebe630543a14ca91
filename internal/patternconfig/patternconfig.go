// Package patternconfig loads the regex pattern set, message templates, and
// dispatch routing tables from a YAML file and precompiles every pattern at
// load time, preserving the source ordering rule that sheet-bound patterns
// are tested before the rest (implemented as two ordered lists rather than
// flag-based skipping, per the Design Note in SPEC_FULL.md §11).
package patternconfig

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config is the raw, unmarshalled pattern configuration document.
type Config struct {
	RegexPatterns       map[string]string   `yaml:"regex_patterns"`
	Messages            map[string]string   `yaml:"messages"`
	Discord             map[string]string   `yaml:"discord"`
	GoogleSheetsMapping []string            `yaml:"google_sheets_mapping"`
	Realtime            []string            `yaml:"realtime"`
	Scraping            []string            `yaml:"scraping"`
	NotificationsEvents []string            `yaml:"notifications_events"`
	Colors              map[string][]string `yaml:"colors"`
	ImportantPlayers    string              `yaml:"important_players"`
	Tabs                map[string]string   `yaml:"tabs"`
}

// CompiledPattern is one precompiled, routed regex rule.
type CompiledPattern struct {
	Name            string
	Regex           *regexp.Regexp
	MessageTemplate string
	DiscordTemplate string
	SheetBound      bool
	Realtime        bool
	Scraping        bool
}

// Compiled is the ready-to-use, precompiled pattern set.
type Compiled struct {
	// Ordered lists sheet-bound patterns first, then the rest; within each
	// group patterns are ordered by name for deterministic matching.
	Ordered          []*CompiledPattern
	ByName           map[string]*CompiledPattern
	Colors           map[string][]string
	ImportantPlayers string
	Tabs             map[string]string
}

// Load reads and compiles a pattern configuration file.
func Load(path string) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pattern config: %w", err)
	}
	return Compile(cfg)
}

// Compile precompiles cfg into a Compiled pattern set.
func Compile(cfg Config) (*Compiled, error) {
	sheetSet := toSet(cfg.GoogleSheetsMapping)
	realtimeSet := toSet(cfg.Realtime)
	scrapingSet := toSet(cfg.Scraping)

	byName := make(map[string]*CompiledPattern, len(cfg.RegexPatterns))
	var sheetBound, rest []*CompiledPattern

	for name, pattern := range cfg.RegexPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", name, err)
		}
		cp := &CompiledPattern{
			Name:            name,
			Regex:           re,
			MessageTemplate: cfg.Messages[name],
			DiscordTemplate: cfg.Discord[name],
			SheetBound:      sheetSet[name],
			Realtime:        realtimeSet[name],
			Scraping:        scrapingSet[name],
		}
		byName[name] = cp
		if cp.SheetBound {
			sheetBound = append(sheetBound, cp)
		} else {
			rest = append(rest, cp)
		}
	}

	byNamePattern := func(s []*CompiledPattern) {
		sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
	}
	byNamePattern(sheetBound)
	byNamePattern(rest)

	ordered := make([]*CompiledPattern, 0, len(sheetBound)+len(rest))
	ordered = append(ordered, sheetBound...)
	ordered = append(ordered, rest...)

	return &Compiled{
		Ordered:          ordered,
		ByName:           byName,
		Colors:           cfg.Colors,
		ImportantPlayers: cfg.ImportantPlayers,
		Tabs:             cfg.Tabs,
	}, nil
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}
