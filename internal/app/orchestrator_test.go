package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offers-harvester/internal/config"
	"offers-harvester/internal/fetcher"
	"offers-harvester/internal/harvest"
	"offers-harvester/internal/observability"
	"offers-harvester/internal/offer"
	"offers-harvester/internal/token"
)

type stubTokens struct {
	mu    sync.Mutex
	calls int
	fail  map[int]error
}

func (s *stubTokens) Acquire(ctx context.Context) (token.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.fail[s.calls]; err != nil {
		return "", err
	}
	return token.Credential("token-for-call"), nil
}

// categoryFetcher serves one short page per category.
type categoryFetcher struct {
	mu    sync.Mutex
	pages map[string]*fetcher.PageResult
	seen  []string
}

func (f *categoryFetcher) FetchPage(ctx context.Context, cred token.Credential, req fetcher.PageRequest) (*fetcher.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, req.Category)
	return f.pages[req.Category], nil
}

type memoryWriter struct {
	mu        sync.Mutex
	snapshots map[string][]offer.Derived
	stamps    int
}

func (w *memoryWriter) Write(ctx context.Context, dataset string, offers []offer.Derived) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snapshots == nil {
		w.snapshots = map[string][]offer.Derived{}
	}
	w.snapshots[dataset] = append([]offer.Derived{}, offers...)
	return nil
}

func (w *memoryWriter) WriteTimestamp(ctx context.Context, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamps++
	return nil
}

func rawOffer(offerType string) offer.RawProduct {
	return offer.RawProduct{
		OfferType: offerType,
		OfferText: "Now € 5.00 off",
		ProductDetails: &offer.ProductDetails{
			Description: "Sample",
			PartNumber:  "P1",
			NormalPrice: 10,
		},
	}
}

func testConfig(t *testing.T, parallel bool) *config.Config {
	return &config.Config{
		Site: config.SiteConfig{
			Currency:         "€",
			ProductURLBase:   "http://shop.example/productdetails?pid=",
			MediaBaseURL:     "https://shop.example/media/products",
			PlaceholderImage: "https://shop.example/media/products/noimages.jpg",
		},
		Normalize:     config.NormalizeConfig{TrimNBSP: true, CollapseSpaces: true, StripMarkup: true},
		Observability: config.ObservabilityConfig{MetricsPath: filepath.Join(t.TempDir(), "harvest.prom")},
		ParallelRuns:  parallel,
		Runs: []config.RunConfig{
			{Name: "drinks", Category: "winecellar", Dataset: "data_drinks", ProductListType: "products",
				MaxPages: 50, PageSize: 100, Threshold: 35, OfferType: "Super Price"},
			{Name: "general", Category: "", Dataset: "data_general", ProductListType: "offers",
				MaxPages: 150, PageSize: 100, Threshold: 15, OfferType: "Super Saver"},
		},
	}
}

func newTestOrchestrator(cfg *config.Config, tokens *stubTokens, w *memoryWriter) (*Orchestrator, *categoryFetcher) {
	f := &categoryFetcher{pages: map[string]*fetcher.PageResult{
		"winecellar": {Records: []offer.RawProduct{rawOffer("Super Price"), rawOffer("Super Saver")}, HasMore: true},
		"":           {Records: []offer.RawProduct{rawOffer("Super Saver"), rawOffer("Super Saver"), rawOffer("Other")}, HasMore: true},
	}}
	return NewOrchestrator(cfg, observability.NewNopLogger(), observability.NewMetrics(), tokens, f, w), f
}

func TestOrchestratorRunsEachProfile(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		cfg := testConfig(t, parallel)
		tokens := &stubTokens{}
		w := &memoryWriter{}
		o, f := newTestOrchestrator(cfg, tokens, w)

		results, err := o.Run(context.Background(), cfg.Runs)
		require.NoError(t, err)
		require.Len(t, results, 2)

		require.Equal(t, 2, tokens.calls, "one credential per run")
		require.ElementsMatch(t, []string{"winecellar", ""}, f.seen)
		require.Len(t, w.snapshots["data_drinks"], 1)
		require.Len(t, w.snapshots["data_general"], 2)
		require.Equal(t, 2, w.stamps)

		for _, res := range results {
			require.Equal(t, harvest.StateDone, res.State)
			require.Equal(t, harvest.StopShortPage, res.StoppedReason)
		}

		prom, err := os.ReadFile(cfg.Observability.MetricsPath)
		require.NoError(t, err)
		require.Contains(t, string(prom), `harvest_pages_total{dataset="data_general"} 1`)
	}
}

func TestOrchestratorAcquisitionFailureIsIsolated(t *testing.T) {
	cfg := testConfig(t, false)
	acqErr := &token.AcquisitionError{Reason: token.ReasonNoAuthObserved}
	tokens := &stubTokens{fail: map[int]error{1: acqErr}}
	w := &memoryWriter{}
	o, f := newTestOrchestrator(cfg, tokens, w)

	results, err := o.Run(context.Background(), cfg.Runs)
	require.Error(t, err)
	require.ErrorIs(t, err, acqErr)
	require.ErrorContains(t, err, "run drinks")

	require.Equal(t, harvest.StateFailed, results[0].State)
	require.Equal(t, harvest.StateDone, results[1].State)
	require.Equal(t, []string{""}, f.seen, "no fetch without a credential")
	require.NotContains(t, w.snapshots, "data_drinks")
}

func TestOrchestratorSelect(t *testing.T) {
	cfg := testConfig(t, false)
	o, _ := newTestOrchestrator(cfg, &stubTokens{}, &memoryWriter{})

	all, err := o.Select(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	one, err := o.Select([]string{"general"})
	require.NoError(t, err)
	require.Equal(t, "data_general", one[0].Dataset)

	_, err = o.Select([]string{"unknown"})
	require.ErrorContains(t, err, "unknown run")
}

func TestGracefulShutdownTimeout(t *testing.T) {
	ctx, cancel := GracefulShutdown(context.Background(), observability.NewNopLogger(), 20*time.Millisecond)
	defer cancel()

	select {
	case <-ctx.Done():
		require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("context not canceled after timeout")
	}
}

func TestGracefulShutdownCancel(t *testing.T) {
	ctx, cancel := GracefulShutdown(context.Background(), observability.NewNopLogger(), 0)
	cancel()
	<-ctx.Done()
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}
