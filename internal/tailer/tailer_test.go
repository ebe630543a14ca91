package tailer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ijol/sclog-core/internal/bus"
	"github.com/ijol/sclog-core/internal/patternconfig"
	"github.com/ijol/sclog-core/internal/patterns"
	"github.com/ijol/sclog-core/internal/ratelimit"
	"github.com/ijol/sclog-core/internal/state"
	"github.com/ijol/sclog-core/pkg/logging"
)

func newTestTailer(t *testing.T, logPath string) (*Tailer, *bus.Bus, *state.Machine) {
	t.Helper()
	b := bus.New(logging.NewLogger(), 1000)
	b.Start()
	t.Cleanup(b.Stop)

	m := state.New(b, "Guest")
	compiled, err := patternconfig.Compile(patternconfig.Config{
		RegexPatterns: map[string]string{
			"player_death": `Player '(?P<player>\w+)' killed by '(?P<killer>\w+)'`,
		},
		Messages:            map[string]string{"player_death": "{player} killed by {killer}"},
		GoogleSheetsMapping: []string{"player_death"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	engine := patterns.New(compiled)
	limiter := ratelimit.New(ratelimit.Config{Timeout: time.Second, MaxDuplicates: 100})

	tl := New(Config{LogPath: logPath, PollInterval: 20 * time.Millisecond}, b, m, engine, nil, limiter, logging.NewLogger())
	return tl, b, m
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeDispatcher) Enqueue(data map[string]string, eventType string) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func TestTailerProcessesNewEntries(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "game.log")
	writeFile(t, logPath, "Player 'Bob' killed by 'Alice'\n")

	tl, b, _ := newTestTailer(t, logPath)
	disp := &fakeDispatcher{}
	tl.SetDispatcher(disp)

	var mu sync.Mutex
	var contents []string
	done := make(chan struct{}, 1)
	b.Subscribe("s", func(m bus.Message) {
		mu.Lock()
		contents = append(contents, m.Content)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}, nil, bus.SubscribeOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tl.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(contents) == 0 || contents[0] != "Bob killed by Alice" {
		t.Fatalf("unexpected contents: %v", contents)
	}
	disp.mu.Lock()
	defer disp.mu.Unlock()
	if disp.calls != 1 {
		t.Fatalf("expected 1 dispatch enqueue, got %d", disp.calls)
	}
}

func TestTailerTruncationResetsState(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "game.log")
	writeFile(t, logPath, "Player 'Bob' killed by 'Alice'\nPlayer 'Bob' killed by 'Alice'\n")

	tl, _, m := newTestTailer(t, logPath)
	tl.processNewEntries()
	posBefore := m.Snapshot().LastPosition
	if posBefore == 0 {
		t.Fatal("expected nonzero position after first read")
	}

	// Simulate external truncation.
	writeFile(t, logPath, "x\n")
	tl.processNewEntries()

	if m.Snapshot().LastPosition == posBefore {
		t.Fatal("expected position to change after truncation handling")
	}
}

func TestOneShotReadsEntireFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "game.log")
	writeFile(t, logPath, "Player 'Bob' killed by 'Alice'\n")

	tl, b, _ := newTestTailer(t, logPath)
	tl.cfg.OneShot = true

	done := make(chan struct{}, 1)
	b.Subscribe("s", func(m bus.Message) {
		select {
		case done <- struct{}{}:
		default:
		}
	}, nil, bus.SubscribeOptions{})

	if err := tl.Run(context.Background()); err != nil {
		t.Fatalf("one-shot run: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message in one-shot mode")
	}
}
