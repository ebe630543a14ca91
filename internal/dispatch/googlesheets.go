package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// GoogleSheetsDataProvider ships batches to a Google Apps Script webhook,
// the same endpoint configuration (google_sheets_webhook) the original
// implementation posts to. Reading/purging a spreadsheet requires the full
// Sheets API (OAuth service account, per-sheet range addressing), which is
// out of scope here — those methods report "not supported" rather than
// fabricating an API client.
type GoogleSheetsDataProvider struct {
	webhookURL string
	client     *http.Client
}

// NewGoogleSheetsDataProvider constructs a provider posting to webhookURL.
func NewGoogleSheetsDataProvider(webhookURL string) *GoogleSheetsDataProvider {
	return &GoogleSheetsDataProvider{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *GoogleSheetsDataProvider) IsConnected() bool {
	return p.webhookURL != ""
}

func (p *GoogleSheetsDataProvider) ProcessData(ctx context.Context, batch []Item) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

var errGoogleSheetsReadNotSupported = errors.New("google sheets webhook provider does not support read operations")

func (p *GoogleSheetsDataProvider) FetchData(ctx context.Context, sheet, username string) ([]map[string]string, error) {
	return nil, errGoogleSheetsReadNotSupported
}

func (p *GoogleSheetsDataProvider) Purge(ctx context.Context, sheet string) error {
	return errGoogleSheetsReadNotSupported
}

func (p *GoogleSheetsDataProvider) FetchRecordHashes(ctx context.Context, sheet string) (map[string]string, error) {
	return nil, errGoogleSheetsReadNotSupported
}

func (p *GoogleSheetsDataProvider) EnsureDynamicViews(ctx context.Context, views map[string]string) error {
	return errGoogleSheetsReadNotSupported
}

func (p *GoogleSheetsDataProvider) ViewExists(ctx context.Context, name string) (bool, error) {
	return false, errGoogleSheetsReadNotSupported
}
