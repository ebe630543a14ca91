// Package tailer watches an append-only game log, detects truncation and
// file-not-found conditions, and converts newly appended lines into state
// transitions and pattern-engine dispatches, per SPEC_FULL.md §5.3.
package tailer

import (
	"bufio"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ijol/sclog-core/internal/bus"
	"github.com/ijol/sclog-core/internal/patterns"
	"github.com/ijol/sclog-core/internal/qr"
	"github.com/ijol/sclog-core/internal/ratelimit"
	"github.com/ijol/sclog-core/internal/state"
	"github.com/ijol/sclog-core/pkg/logging"
)

var (
	reContextEstablisherDone = regexp.MustCompile(`Context Establisher Done.*clientGameRules=(?P<mode>[A-Za-z0-9_]+).*nickname=(?P<username>[^\s]+)`)
	reChannelDisconnected    = regexp.MustCompile(`Channel Disconnected.*gamerules=(?P<mode>[A-Za-z0-9_]+)`)
	reReuseChannel           = regexp.MustCompile(`ReuseChannel.*serverVersion=(?P<version>[^\s\]]+)`)
	reEALobbyResponse        = regexp.MustCompile(`EALobby NotifyServiceRequestResponse.*Network\[(?P<network>\w+)\]`)
)

// Dispatcher enqueues a dispatch-eligible match for the durable sink pipeline.
type Dispatcher interface {
	Enqueue(data map[string]string, eventType string)
}

// Broadcaster sends a dispatch-eligible match to the realtime bridge.
type Broadcaster interface {
	Broadcast(patternName string, data map[string]string)
}

// Scraper triggers asynchronous profile enrichment for a non-local player.
type Scraper interface {
	RequestProfile(player, origin string)
}

// Discord ships a formatted message to the configured webhook.
type Discord interface {
	Send(content string) error
}

// Config parameterizes a Tailer instance.
type Config struct {
	LogPath        string
	ScreenshotsDir string // empty disables QR shard/version recovery
	PollInterval   time.Duration
	OneShot        bool
	UseDiscord     bool
}

// Tailer is the single-writer owner of the log read position; all mutation
// happens on the goroutine running Run.
type Tailer struct {
	cfg     Config
	bus     *bus.Bus
	state   *state.Machine
	engine  *patterns.Engine
	vip     patterns.VIPMatcher
	limiter *ratelimit.Limiter
	logger  logging.Logger

	dispatcher  Dispatcher
	broadcaster Broadcaster
	scraper     Scraper
	discord     Discord

	lastScreenshot string
	consecutiveErr int
}

// New constructs a Tailer. limiter gates both Discord and realtime sends.
func New(cfg Config, b *bus.Bus, m *state.Machine, engine *patterns.Engine, vip patterns.VIPMatcher, limiter *ratelimit.Limiter, logger logging.Logger) *Tailer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Tailer{cfg: cfg, bus: b, state: m, engine: engine, vip: vip, limiter: limiter, logger: logger}
}

// SetDispatcher wires the durable-sink dispatch pipeline.
func (t *Tailer) SetDispatcher(d Dispatcher) { t.dispatcher = d }

// SetBroadcaster wires the realtime bridge.
func (t *Tailer) SetBroadcaster(b Broadcaster) { t.broadcaster = b }

// SetScraper wires the profile enrichment subsystem.
func (t *Tailer) SetScraper(s Scraper) { t.scraper = s }

// SetDiscord wires the Discord sink.
func (t *Tailer) SetDiscord(d Discord) { t.discord = d }

// CatchUp reads the entire log file from the start once without exiting,
// used by the --process-all CLI flag to process historical entries before
// incremental tailing begins.
func (t *Tailer) CatchUp() error {
	return t.processEntireLog()
}

// Run drives the tailer until ctx is cancelled. In one-shot mode it reads
// the entire file once and returns.
func (t *Tailer) Run(ctx context.Context) error {
	if t.cfg.OneShot {
		return t.processEntireLog()
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.processNewEntries()
			if t.cfg.ScreenshotsDir != "" {
				t.pollScreenshots()
			}
		}
	}
}

func (t *Tailer) processEntireLog() error {
	f, err := os.Open(t.cfg.LogPath)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var pos int64
	for scanner.Scan() {
		pos += int64(len(scanner.Bytes())) + 1
		t.processLine(scanner.Text())
	}
	t.state.SetLastPosition(pos)
	return scanner.Err()
}

// processNewEntries implements the on-modification read path: reopen,
// detect truncation, seek to the last position, and read newly appended
// lines. File-not-found and permission errors are logged and retried on
// the next poll tick, at the fixed poll interval rather than in a busy
// loop; the interval does not grow with repeated failures.
func (t *Tailer) processNewEntries() {
	info, err := os.Stat(t.cfg.LogPath)
	if err != nil {
		t.consecutiveErr++
		t.logger.WithFields(logging.Fields{"component": "tailer", "error": err}).Warn("log file unavailable, will retry")
		return
	}
	t.consecutiveErr = 0

	pos := t.state.Snapshot().LastPosition
	size := info.Size()

	if size < pos {
		t.logger.WithFields(logging.Fields{"component": "tailer"}).Warn("log truncated, resetting state")
		t.state.Reset()
		pos = 0
	}
	if size == pos {
		return
	}

	f, err := os.Open(t.cfg.LogPath)
	if err != nil {
		t.logger.WithFields(logging.Fields{"component": "tailer", "error": err}).Warn("failed to open log for read")
		return
	}
	defer f.Close()

	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		t.logger.WithFields(logging.Fields{"component": "tailer", "error": err}).Warn("failed to seek log")
		return
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	newPos := pos
	for scanner.Scan() {
		newPos += int64(len(scanner.Bytes())) + 1
		t.processLine(scanner.Text())
	}
	t.state.SetLastPosition(newPos)
}

func (t *Tailer) processLine(line string) {
	switch {
	case reContextEstablisherDone.MatchString(line):
		g := namedGroups(reContextEstablisherDone, line)
		t.state.ContextEstablisherDone(g["mode"], g["username"])
		return
	case reChannelDisconnected.MatchString(line):
		g := namedGroups(reChannelDisconnected, line)
		t.state.ChannelDisconnected(g["mode"])
		return
	case reReuseChannel.MatchString(line):
		g := namedGroups(reReuseChannel, line)
		t.state.ReuseChannelVersion(g["version"])
		return
	case reEALobbyResponse.MatchString(line):
		g := namedGroups(reEALobbyResponse, line)
		t.state.EALobbyNetworkResponse(g["network"])
		return
	}

	if t.engine.CheckVIP(line, t.vip) {
		t.bus.Publish(bus.Message{Content: line, Level: bus.Info, PatternName: "vip"})
	}

	snap := t.state.Snapshot()
	m, ok := t.engine.Process(line, patterns.StateFields{
		Mode:     snap.CurrentMode,
		Shard:    snap.CurrentShard,
		Username: snap.Username,
		Version:  snap.CurrentVersion,
	})
	if !ok {
		return
	}
	t.dispatch(m, snap)
}

func (t *Tailer) dispatch(m *patterns.Match, snap state.TailerState) {
	t.bus.Publish(bus.Message{Content: m.Content, PatternName: m.PatternName, Level: bus.Info})

	if m.Discord && t.cfg.UseDiscord && t.discord != nil {
		if t.limiter.ShouldSend(m.DiscordContent, "discord") {
			if err := t.discord.Send(m.DiscordContent); err != nil {
				t.logger.WithFields(logging.Fields{"component": "tailer", "error": err}).Warn("discord send failed")
			}
		} else {
			t.logger.Debug("rate limited discord message")
		}
	}

	ptuGated := strings.HasPrefix(strings.ToLower(snap.CurrentVersion), "ptu")
	blocked := snap.BlockPrivateLobbyRecording

	if m.GoogleSheets && !ptuGated && !blocked && t.dispatcher != nil {
		t.dispatcher.Enqueue(m.Data, m.PatternName)
	}

	if m.Realtime && !ptuGated && !blocked && t.broadcaster != nil {
		if t.bus.IsDebugMode() || snap.CurrentMode == "SC_Default" {
			if t.limiter.ShouldSend(m.Content, "realtime") {
				t.broadcaster.Broadcast(m.PatternName, m.Data)
			} else {
				t.logger.Debug("rate limited realtime event")
			}
		}
	}

	if m.Scraping && !ptuGated && t.scraper != nil {
		for _, candidate := range []string{m.Data["player"], m.Data["owner"], m.Data["entity"]} {
			if candidate != "" && candidate != "Unknown" && candidate != snap.Username {
				t.scraper.RequestProfile(candidate, "automatic")
				break
			}
		}
	}
}

func namedGroups(re *regexp.Regexp, s string) map[string]string {
	match := re.FindStringSubmatch(s)
	names := re.SubexpNames()
	out := make(map[string]string, len(names))
	for i, n := range names {
		if i == 0 || n == "" {
			continue
		}
		out[n] = match[i]
	}
	return out
}

// pollScreenshots looks for the most recently modified non-"cropped_"
// screenshot and attempts QR shard/version recovery on it, retrying up to
// 3 times on transient I/O.
func (t *Tailer) pollScreenshots() {
	entries, err := os.ReadDir(t.cfg.ScreenshotsDir)
	if err != nil {
		return
	}

	var latestName string
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "cropped_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latestName = e.Name()
		}
	}
	if latestName == "" || latestName == t.lastScreenshot {
		return
	}
	t.lastScreenshot = latestName

	path := filepath.Join(t.cfg.ScreenshotsDir, latestName)
	var img image.Image
	for attempt := 0; attempt < 3; attempt++ {
		img, err = decodeImageFile(path)
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		t.logger.WithFields(logging.Fields{"component": "tailer", "error": err}).Warn("failed to read screenshot for QR recovery")
		return
	}

	recovery, ok, err := qr.Decode(img)
	if err != nil {
		t.logger.WithFields(logging.Fields{"component": "tailer", "error": err}).Debug("qr decode failed")
		return
	}
	if !ok {
		return
	}
	t.state.SetShardVersion(recovery.Shard, recovery.Version)
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
