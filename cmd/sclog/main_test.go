package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseFlagsShortAndLongAreEquivalent(t *testing.T) {
	long, err := parseFlags([]string{"--process-all", "--no-discord", "--datasource", "supabase"})
	if err != nil {
		t.Fatalf("parse long flags: %v", err)
	}
	short, err := parseFlags([]string{"-p", "-nd", "--datasource", "supabase"})
	if err != nil {
		t.Fatalf("parse short flags: %v", err)
	}
	if long != short {
		t.Fatalf("expected long and short flag forms to agree, got %+v vs %+v", long, short)
	}
	if !long.processAll || !long.noDiscord {
		t.Fatalf("expected processAll and noDiscord set, got %+v", long)
	}
}

func TestParseFlagsRejectsUnknown(t *testing.T) {
	if _, err := parseFlags([]string{"--not-a-real-flag"}); err == nil {
		t.Fatal("expected an error for an unrecognized flag")
	}
}

func TestSelectDatasourcePrefersFlagOverEnv(t *testing.T) {
	t.Setenv("DATASOURCE", "kafka")
	if got := selectDatasource("Supabase"); got != "supabase" {
		t.Fatalf("expected flag value to win and be lowercased, got %q", got)
	}
}

func TestSelectDatasourceFallsBackToEnv(t *testing.T) {
	t.Setenv("DATASOURCE", "Kafka")
	if got := selectDatasource(""); got != "kafka" {
		t.Fatalf("expected env value to be used and lowercased, got %q", got)
	}
}

func TestSelectDatasourceDefaultsToGoogleSheets(t *testing.T) {
	t.Setenv("DATASOURCE", "")
	if got := selectDatasource(""); got != "googlesheets" {
		t.Fatalf("expected default googlesheets, got %q", got)
	}
}

func TestNewerOfPicksMostRecentlyModified(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "older.log")
	newer := filepath.Join(dir, "newer.log")
	if err := os.WriteFile(older, []byte("a"), 0o644); err != nil {
		t.Fatalf("write older: %v", err)
	}
	if err := os.WriteFile(newer, []byte("b"), 0o644); err != nil {
		t.Fatalf("write newer: %v", err)
	}
	now := time.Now()
	if err := os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatalf("chtimes older: %v", err)
	}
	if err := os.Chtimes(newer, now, now); err != nil {
		t.Fatalf("chtimes newer: %v", err)
	}
	if got := newerOf(older, newer); got != newer {
		t.Fatalf("expected %q to be newer, got %q", newer, got)
	}
	if got := newerOf(newer, older); got != newer {
		t.Fatalf("expected %q regardless of argument order, got %q", newer, got)
	}
}

func TestNewerOfFallsBackWhenOneMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.log")
	if err := os.WriteFile(present, []byte("a"), 0o644); err != nil {
		t.Fatalf("write present: %v", err)
	}
	missing := filepath.Join(dir, "missing.log")
	if got := newerOf(present, missing); got != present {
		t.Fatalf("expected present file when the other is missing, got %q", got)
	}
	if got := newerOf(missing, present); got != present {
		t.Fatalf("expected present file when the other is missing, got %q", got)
	}
}

func TestResolveLogPathDefaultsWithoutAutoDetection(t *testing.T) {
	t.Setenv("AUTO_ENVIRONMENT_DETECTION", "false")
	t.Setenv("LOG_FILE_PATH", "Game.log")
	if got := resolveLogPath(); got != "Game.log" {
		t.Fatalf("expected configured LOG_FILE_PATH, got %q", got)
	}
}

func TestResolveLogPathFallsBackWhenPairIncomplete(t *testing.T) {
	t.Setenv("AUTO_ENVIRONMENT_DETECTION", "true")
	t.Setenv("LOG_FILE_PATH", "Game.log")
	t.Setenv("LIVE_LOG_PATH", "")
	t.Setenv("PTU_LOG_PATH", "")
	if got := resolveLogPath(); got != "Game.log" {
		t.Fatalf("expected fallback to LOG_FILE_PATH when live/ptu paths are unset, got %q", got)
	}
}
