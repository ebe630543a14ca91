package patterns

import (
	"testing"

	"github.com/ijol/sclog-core/internal/patternconfig"
)

func TestProcessSynthesizesPlayerAndAction(t *testing.T) {
	cfg := patternconfig.Config{
		RegexPatterns: map[string]string{
			"player_death": `Player '(?P<player>\w+)_\d{5}' killed by '(?P<killer>\w+)'`,
		},
		Messages: map[string]string{
			"player_death": "{player} was killed by {killer} [{action}]",
		},
	}
	compiled, err := patternconfig.Compile(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	e := New(compiled)

	m, ok := e.Process("Player 'Alice_12345' killed by 'Bob'", StateFields{Mode: "SC_Default"})
	if !ok {
		t.Fatal("expected match")
	}
	if m.Data["player"] != "Alice" {
		t.Fatalf("expected trailing suffix stripped, got %q", m.Data["player"])
	}
	if m.Data["action"] != "Player Death" {
		t.Fatalf("expected title-cased action, got %q", m.Data["action"])
	}
	if m.Data["mode"] != "SC_Default" {
		t.Fatalf("expected state field merged, got %q", m.Data["mode"])
	}
	if m.Content != "Alice was killed by Bob [Player Death]" {
		t.Fatalf("unexpected content: %q", m.Content)
	}
}

func TestProcessDefaultsPlayerToUnknown(t *testing.T) {
	cfg := patternconfig.Config{
		RegexPatterns: map[string]string{"generic": `hello (?P<thing>\w+)`},
		Messages:      map[string]string{"generic": "{player} saw {thing}"},
	}
	compiled, _ := patternconfig.Compile(cfg)
	e := New(compiled)

	m, ok := e.Process("hello world", StateFields{})
	if !ok {
		t.Fatal("expected match")
	}
	if m.Data["player"] != "Unknown" {
		t.Fatalf("expected Unknown player, got %q", m.Data["player"])
	}
}

func TestOrderingPrefersSheetBound(t *testing.T) {
	cfg := patternconfig.Config{
		RegexPatterns: map[string]string{
			"generic": `line`,
			"special": `line`,
		},
		GoogleSheetsMapping: []string{"special"},
		Messages:            map[string]string{"generic": "g", "special": "s"},
	}
	compiled, _ := patternconfig.Compile(cfg)
	e := New(compiled)

	m, ok := e.Process("line", StateFields{})
	if !ok {
		t.Fatal("expected match")
	}
	if m.PatternName != "special" {
		t.Fatalf("expected sheet-bound pattern to win, got %q", m.PatternName)
	}
}

type fakeVIP struct{ matched bool }

func (f fakeVIP) Match(string) bool { return f.matched }

func TestCheckVIP(t *testing.T) {
	compiled, _ := patternconfig.Compile(patternconfig.Config{})
	e := New(compiled)
	if !e.CheckVIP("anything", fakeVIP{matched: true}) {
		t.Fatal("expected VIP match to pass through")
	}
	if e.CheckVIP("anything", fakeVIP{matched: false}) {
		t.Fatal("expected no VIP match")
	}
	if e.CheckVIP("anything", nil) {
		t.Fatal("expected nil matcher to report false")
	}
}
