package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ijol/sclog-core/pkg/logging"
)

type fakeProvider struct {
	mu      sync.Mutex
	batches [][]Item
}

func (f *fakeProvider) IsConnected() bool { return true }

func (f *fakeProvider) ProcessData(ctx context.Context, batch []Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]Item, len(batch))
	copy(cp, batch)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeProvider) FetchData(ctx context.Context, sheet, username string) ([]map[string]string, error) {
	return nil, nil
}
func (f *fakeProvider) Purge(ctx context.Context, sheet string) error { return nil }
func (f *fakeProvider) FetchRecordHashes(ctx context.Context, sheet string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeProvider) EnsureDynamicViews(ctx context.Context, views map[string]string) error {
	return nil
}
func (f *fakeProvider) ViewExists(ctx context.Context, name string) (bool, error) { return false, nil }

func (f *fakeProvider) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeProvider) totalItems() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestPipelineFlushesOnMaxWait(t *testing.T) {
	provider := &fakeProvider{}
	p := New(provider, logging.NewLogger(), 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Enqueue(map[string]string{"a": "1"}, "player_death")

	deadline := time.After(2 * time.Second)
	for provider.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for batch submission")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if provider.totalItems() != 1 {
		t.Fatalf("expected 1 item submitted, got %d", provider.totalItems())
	}

	cancel()
	p.Wait()
}

func TestPipelineFillsBatchUpToCap(t *testing.T) {
	provider := &fakeProvider{}
	p := New(provider, logging.NewLogger(), 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	for i := 0; i < maxBatchSize; i++ {
		p.Enqueue(map[string]string{"i": "x"}, "player_death")
	}

	deadline := time.After(2 * time.Second)
	for provider.totalItems() < maxBatchSize {
		select {
		case <-deadline:
			t.Fatalf("timed out, got %d items", provider.totalItems())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	p.Wait()
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	provider := &fakeProvider{}
	p := New(provider, logging.NewLogger(), 1)

	// Fill the buffered channel without a running worker to drain it.
	p.Enqueue(map[string]string{"a": "1"}, "x")
	p.Enqueue(map[string]string{"b": "2"}, "x") // dropped, queue cap is 1

	if len(p.queue) != 1 {
		t.Fatalf("expected queue length 1, got %d", len(p.queue))
	}
}
