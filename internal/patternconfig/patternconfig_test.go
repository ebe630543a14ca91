package patternconfig

import "testing"

func TestCompileOrdersSheetBoundFirst(t *testing.T) {
	cfg := Config{
		RegexPatterns: map[string]string{
			"zeta":  `zeta`,
			"alpha": `alpha`,
			"mid":   `mid`,
		},
		GoogleSheetsMapping: []string{"zeta"},
	}
	c, err := Compile(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(c.Ordered) != 3 {
		t.Fatalf("expected 3 patterns, got %d", len(c.Ordered))
	}
	if c.Ordered[0].Name != "zeta" {
		t.Fatalf("expected sheet-bound pattern first, got %q", c.Ordered[0].Name)
	}
	if !c.Ordered[0].SheetBound {
		t.Fatal("expected zeta marked sheet-bound")
	}
	if c.Ordered[1].Name != "alpha" || c.Ordered[2].Name != "mid" {
		t.Fatalf("expected remaining patterns sorted by name, got %q, %q", c.Ordered[1].Name, c.Ordered[2].Name)
	}
}

func TestCompileInvalidRegexErrors(t *testing.T) {
	_, err := Compile(Config{RegexPatterns: map[string]string{"bad": "("}})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestCompileRoutingFlags(t *testing.T) {
	cfg := Config{
		RegexPatterns:       map[string]string{"p": "p"},
		Realtime:            []string{"p"},
		Scraping:            []string{"p"},
		Messages:            map[string]string{"p": "hit: {player}"},
		Discord:             map[string]string{"p": "**{player}**"},
	}
	c, err := Compile(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cp := c.ByName["p"]
	if !cp.Realtime || !cp.Scraping {
		t.Fatalf("expected realtime and scraping flags set: %+v", cp)
	}
	if cp.MessageTemplate != "hit: {player}" || cp.DiscordTemplate != "**{player}**" {
		t.Fatalf("unexpected templates: %+v", cp)
	}
}
