package cascade

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"folio/internal/library"
	"folio/internal/services"
	"folio/internal/services/citelink"
	"folio/internal/services/contentfetch"
	"folio/internal/services/extract"
)

type fakeLinker struct {
	mu      sync.Mutex
	calls   int
	resolve func(call int, req citelink.Request) (*citelink.Result, error)
}

func (f *fakeLinker) Resolve(ctx context.Context, req citelink.Request) (*citelink.Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.resolve == nil {
		return nil, errors.New("citelink error: no fake configured")
	}
	return f.resolve(call, req)
}

func (f *fakeLinker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFetcher struct {
	mu      sync.Mutex
	fetches int
	fetch   func(req contentfetch.Request) (*contentfetch.Result, error)
	content map[string]string
}

func (f *fakeFetcher) Fetch(ctx context.Context, req contentfetch.Request) (*contentfetch.Result, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.fetch == nil {
		return nil, errors.New("contentfetch error: no fake configured")
	}
	return f.fetch(req)
}

func (f *fakeFetcher) Content(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.content[key]
	if !ok {
		return "", fmt.Errorf("contentfetch error: status 404: unknown key %s", key)
	}
	return content, nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeExtractor struct {
	extractFn func(content string) (*extract.Extraction, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, content string) (*extract.Extraction, error) {
	if f.extractFn == nil {
		return nil, errors.New("extractor error: no fake configured")
	}
	return f.extractFn(content)
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestStore(t *testing.T) *library.Store {
	t.Helper()
	store, err := library.OpenPath(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func addItem(t *testing.T, store *library.Store, url string, mutate func(*library.Item)) *library.Item {
	t.Helper()
	item, err := store.Add(context.Background(), url, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mutate != nil {
		mutate(item)
		if err := store.UpdateFields(context.Background(), item); err != nil {
			t.Fatalf("UpdateFields: %v", err)
		}
	}
	return item
}

func completeFields() map[string]string {
	return map[string]string{
		"title":  "The Left Hand of Darkness",
		"author": "Le Guin",
		"date":   "1969",
		"url":    "https://example.org/lhod",
	}
}

func TestStage1CompleteCitationStores(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/lhod", func(i *library.Item) {
		i.HasIdentifier = true
		i.Identifier = "isbn:9780441478125"
	})

	linker := &fakeLinker{resolve: func(_ int, req citelink.Request) (*citelink.Result, error) {
		if req.Identifier != "isbn:9780441478125" {
			return nil, fmt.Errorf("validation failed: unexpected identifier %q", req.Identifier)
		}
		return &citelink.Result{CitationKey: "ref-lhod", Fields: completeFields()}, nil
	}}
	fetcher := &fakeFetcher{}
	o := NewOrchestrator(store, linker, fetcher, &fakeExtractor{}, nil, WithSleeper(noSleep))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Skipped || result.FinalStatus != library.StatusStored {
		t.Fatalf("result = %+v, want stored", result)
	}
	if fetcher.fetchCount() != 0 {
		t.Fatal("content fetch ran for an item stored by citation linking")
	}

	updated, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != library.StatusStored || updated.CitationKey != "ref-lhod" {
		t.Fatalf("item not stored: %+v", updated)
	}
	if updated.Citation != "Le Guin (1969). The Left Hand of Darkness." {
		t.Fatalf("citation = %q", updated.Citation)
	}

	attempts, err := store.Attempts(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(attempts) != 1 || !attempts[0].Success || attempts[0].Stage != library.StageCiteLink {
		t.Fatalf("attempt history wrong: %+v", attempts)
	}
}

func TestStage1PermanentFailureStopsCascade(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/gone", func(i *library.Item) {
		i.HasIdentifier = true
		i.Identifier = "doi:10.0/gone"
	})

	linker := &fakeLinker{resolve: func(int, citelink.Request) (*citelink.Result, error) {
		return nil, errors.New("citelink error: status 404: not found")
	}}
	fetcher := &fakeFetcher{}
	o := NewOrchestrator(store, linker, fetcher, &fakeExtractor{}, nil, WithSleeper(noSleep))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Failed() {
		t.Fatalf("result = %+v, want exhausted", result)
	}
	if fetcher.fetchCount() != 0 {
		t.Fatal("permanent failure must not fall back to content fetch")
	}

	updated, _ := store.GetByID(context.Background(), item.ID)
	if updated.Status != library.StatusExhausted || updated.ErrorMessage == "" {
		t.Fatalf("item = %+v", updated)
	}
	if updated.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", updated.AttemptCount)
	}
}

func TestStage2AlternateIdentifiersAwaitSelection(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/blog", nil)

	fetcher := &fakeFetcher{fetch: func(req contentfetch.Request) (*contentfetch.Result, error) {
		return &contentfetch.Result{
			ContentKey:     "content-1",
			AltIdentifiers: []string{"doi:10.0/a", "doi:10.0/b"},
		}, nil
	}}
	o := NewOrchestrator(store, &fakeLinker{}, fetcher, &fakeExtractor{}, nil, WithSleeper(noSleep))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FinalStatus != library.StatusAwaitingSelection {
		t.Fatalf("result = %+v, want awaiting_selection", result)
	}

	updated, _ := store.GetByID(context.Background(), item.ID)
	if updated.Status != library.StatusAwaitingSelection {
		t.Fatalf("status = %s", updated.Status)
	}
	if updated.ContentKey != "content-1" || !updated.HasCachedContent {
		t.Fatalf("fetch results not persisted: %+v", updated)
	}
	if updated.AltIdentifiersJSON == "" {
		t.Fatal("alternate identifiers not persisted")
	}
}

func TestStage3HighScoreAwaitsReview(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/essay", nil)

	fetcher := &fakeFetcher{
		fetch: func(contentfetch.Request) (*contentfetch.Result, error) {
			return &contentfetch.Result{ContentKey: "content-2"}, nil
		},
		content: map[string]string{"content-2": "full text"},
	}
	extractor := &fakeExtractor{extractFn: func(content string) (*extract.Extraction, error) {
		if content != "full text" {
			return nil, fmt.Errorf("validation failed: wrong content %q", content)
		}
		return &extract.Extraction{Fields: completeFields(), QualityScore: 88}, nil
	}}
	o := NewOrchestrator(store, &fakeLinker{}, fetcher, extractor, nil, WithSleeper(noSleep))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FinalStatus != library.StatusAwaitingReview {
		t.Fatalf("result = %+v, want awaiting_review", result)
	}

	updated, _ := store.GetByID(context.Background(), item.ID)
	if updated.Status != library.StatusAwaitingReview || !updated.NeedsReview {
		t.Fatalf("item = %+v", updated)
	}
	if updated.QualityScore != 88 || updated.MetadataJSON == "" {
		t.Fatalf("extraction not persisted: %+v", updated)
	}
}

func TestStage3LowScoreExhausts(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/thin", nil)

	fetcher := &fakeFetcher{
		fetch: func(contentfetch.Request) (*contentfetch.Result, error) {
			return &contentfetch.Result{ContentKey: "content-3"}, nil
		},
		content: map[string]string{"content-3": "sparse page"},
	}
	extractor := &fakeExtractor{extractFn: func(string) (*extract.Extraction, error) {
		return &extract.Extraction{Fields: map[string]string{"title": "Thin"}, QualityScore: 45}, nil
	}}
	o := NewOrchestrator(store, &fakeLinker{}, fetcher, extractor, nil, WithSleeper(noSleep))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Failed() {
		t.Fatalf("result = %+v, want exhausted", result)
	}

	updated, _ := store.GetByID(context.Background(), item.ID)
	if updated.Status != library.StatusExhausted || updated.QualityScore != 45 {
		t.Fatalf("item = %+v", updated)
	}
}

func TestQualityThresholdIsExclusive(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/border", nil)

	fetcher := &fakeFetcher{
		fetch: func(contentfetch.Request) (*contentfetch.Result, error) {
			return &contentfetch.Result{ContentKey: "content-4"}, nil
		},
		content: map[string]string{"content-4": "text"},
	}
	extractor := &fakeExtractor{extractFn: func(string) (*extract.Extraction, error) {
		return &extract.Extraction{Fields: completeFields(), QualityScore: 70}, nil
	}}
	o := NewOrchestrator(store, &fakeLinker{}, fetcher, extractor, nil, WithSleeper(noSleep))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FinalStatus != library.StatusExhausted {
		t.Fatalf("score 70 must exhaust, got %s", result.FinalStatus)
	}
}

func TestRecoverableStage1FailureCascades(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/flaky", func(i *library.Item) {
		i.HasIdentifier = true
		i.Identifier = "doi:10.0/flaky"
	})

	linker := &fakeLinker{resolve: func(int, citelink.Request) (*citelink.Result, error) {
		return nil, errors.New("citelink error: status 503: service unavailable")
	}}
	fetcher := &fakeFetcher{fetch: func(contentfetch.Request) (*contentfetch.Result, error) {
		return &contentfetch.Result{ContentKey: "content-5", AltIdentifiers: []string{"doi:10.0/alt"}}, nil
	}}
	o := NewOrchestrator(store, linker, fetcher, &fakeExtractor{}, nil,
		WithSleeper(noSleep), WithMaxStageAttempts(1))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FinalStatus != library.StatusAwaitingSelection {
		t.Fatalf("result = %+v, want awaiting_selection after fallback", result)
	}

	attempts, _ := store.Attempts(context.Background(), item.ID)
	if len(attempts) != 2 {
		t.Fatalf("attempt history = %+v, want citelink failure plus contentfetch success", attempts)
	}
	if attempts[0].Stage != library.StageCiteLink || attempts[0].Success {
		t.Fatalf("first attempt wrong: %+v", attempts[0])
	}
	if attempts[1].Stage != library.StageContentFetch || !attempts[1].Success {
		t.Fatalf("second attempt wrong: %+v", attempts[1])
	}
}

func TestRetryWithinStageSharesOneAttempt(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/overloaded", func(i *library.Item) {
		i.HasIdentifier = true
		i.Identifier = "doi:10.0/overloaded"
	})

	linker := &fakeLinker{resolve: func(call int, _ citelink.Request) (*citelink.Result, error) {
		if call < 3 {
			return nil, errors.New("citelink error: model overloaded")
		}
		return &citelink.Result{CitationKey: "ref-ok", Fields: completeFields()}, nil
	}}

	var delays []time.Duration
	recordSleep := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	o := NewOrchestrator(store, linker, &fakeFetcher{}, &fakeExtractor{}, nil, WithSleeper(recordSleep))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FinalStatus != library.StatusStored {
		t.Fatalf("result = %+v, want stored after retries", result)
	}
	if linker.callCount() != 3 {
		t.Fatalf("linker calls = %d, want 3", linker.callCount())
	}
	// strategy_api backs off from 5s and doubles.
	if len(delays) != 2 || delays[0] != 5*time.Second || delays[1] != 10*time.Second {
		t.Fatalf("backoff delays = %v", delays)
	}

	attempts, _ := store.Attempts(context.Background(), item.ID)
	if len(attempts) != 1 || !attempts[0].Success {
		t.Fatalf("retries must share one attempt record: %+v", attempts)
	}
}

func TestUserIntentBlocksProcessing(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/manual", func(i *library.Item) {
		i.UserIntent = library.IntentManualOnly
	})

	o := NewOrchestrator(store, &fakeLinker{}, &fakeFetcher{}, &fakeExtractor{}, nil, WithSleeper(noSleep))
	_, err := o.Process(context.Background(), item.ID)
	if !errors.Is(err, services.ErrPolicy) {
		t.Fatalf("expected policy error, got %v", err)
	}

	updated, _ := store.GetByID(context.Background(), item.ID)
	if updated.Status != library.StatusNotStarted {
		t.Fatalf("blocked item moved to %s", updated.Status)
	}
	attempts, _ := store.Attempts(context.Background(), item.ID)
	if len(attempts) != 0 {
		t.Fatalf("blocked item recorded attempts: %+v", attempts)
	}
}

func TestConcurrentRunsHaveOneWinner(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/race", func(i *library.Item) {
		i.HasIdentifier = true
		i.Identifier = "doi:10.0/race"
	})

	release := make(chan struct{})
	linker := &fakeLinker{resolve: func(int, citelink.Request) (*citelink.Result, error) {
		<-release
		return &citelink.Result{CitationKey: "ref-race", Fields: completeFields()}, nil
	}}
	o := NewOrchestrator(store, linker, &fakeFetcher{}, &fakeExtractor{}, nil, WithSleeper(noSleep))

	results := make(chan *Result, 2)
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := o.Process(context.Background(), item.ID)
			results <- result
			errs <- err
		}()
	}
	// Let both runners reach the transition before the collaborator returns.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	var skipped, won int
	for result := range results {
		if result.Skipped {
			skipped++
		} else {
			won++
		}
	}
	if skipped != 1 || won != 1 {
		t.Fatalf("skipped=%d won=%d, want exactly one of each", skipped, won)
	}

	attempts, _ := store.Attempts(context.Background(), item.ID)
	if len(attempts) != 1 {
		t.Fatalf("attempt history = %+v, want only the winner's attempt", attempts)
	}
	updated, _ := store.GetByID(context.Background(), item.ID)
	if updated.Status != library.StatusStored {
		t.Fatalf("final status = %s", updated.Status)
	}
}

func TestIncompleteCitationEnrichesInBackground(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/partial", func(i *library.Item) {
		i.HasIdentifier = true
		i.Identifier = "doi:10.0/partial"
	})

	linker := &fakeLinker{resolve: func(int, citelink.Request) (*citelink.Result, error) {
		return &citelink.Result{CitationKey: "ref-partial", Fields: map[string]string{
			"title": "Field Notes",
			"date":  "2019",
			"url":   "https://example.org/partial",
		}}, nil
	}}
	fetcher := &fakeFetcher{
		fetch: func(contentfetch.Request) (*contentfetch.Result, error) {
			return &contentfetch.Result{ContentKey: "content-6"}, nil
		},
		content: map[string]string{"content-6": "page text"},
	}
	extractor := &fakeExtractor{extractFn: func(string) (*extract.Extraction, error) {
		return &extract.Extraction{Fields: map[string]string{"author": "Lab Collective"}, QualityScore: 80}, nil
	}}
	o := NewOrchestrator(store, linker, fetcher, extractor, nil, WithSleeper(noSleep))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FinalStatus != library.StatusStoredIncomplete {
		t.Fatalf("result = %+v, want stored_incomplete", result)
	}

	o.WaitEnrichment()

	updated, _ := store.GetByID(context.Background(), item.ID)
	if updated.Status != library.StatusStored {
		t.Fatalf("enrichment did not upgrade item: %s", updated.Status)
	}
	if updated.Citation == "" || updated.ReviewReason != "" {
		t.Fatalf("enrichment left item inconsistent: %+v", updated)
	}
}

func TestFailedEnrichmentNeverReverts(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/stubborn", func(i *library.Item) {
		i.HasIdentifier = true
		i.Identifier = "doi:10.0/stubborn"
	})

	linker := &fakeLinker{resolve: func(int, citelink.Request) (*citelink.Result, error) {
		return &citelink.Result{CitationKey: "ref-stubborn", Fields: map[string]string{
			"title": "Stubborn Page",
			"date":  "2020",
		}}, nil
	}}
	fetcher := &fakeFetcher{fetch: func(contentfetch.Request) (*contentfetch.Result, error) {
		return nil, errors.New("contentfetch error: status 500")
	}}
	o := NewOrchestrator(store, linker, fetcher, &fakeExtractor{}, nil, WithSleeper(noSleep))

	result, err := o.Process(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.FinalStatus != library.StatusStoredIncomplete {
		t.Fatalf("result = %+v", result)
	}

	o.WaitEnrichment()

	updated, _ := store.GetByID(context.Background(), item.ID)
	if updated.Status != library.StatusStoredIncomplete {
		t.Fatalf("failed enrichment changed status to %s", updated.Status)
	}
}

func TestResolveSelectionReentersCitationLinking(t *testing.T) {
	store := newTestStore(t)
	item := addItem(t, store, "https://example.org/choices", nil)
	ctx := context.Background()
	if err := store.Transition(ctx, item.ID, library.StatusNotStarted, library.StatusStage2Active, nil); err != nil {
		t.Fatalf("seed stage2: %v", err)
	}
	altJSON := `["doi:10.0/x","doi:10.0/y"]`
	if err := store.Transition(ctx, item.ID, library.StatusStage2Active, library.StatusAwaitingSelection, &library.Patch{
		AltIdentifiersJSON: &altJSON,
	}); err != nil {
		t.Fatalf("seed awaiting_selection: %v", err)
	}

	linker := &fakeLinker{resolve: func(_ int, req citelink.Request) (*citelink.Result, error) {
		if req.Identifier != "doi:10.0/y" {
			return nil, fmt.Errorf("validation failed: wrong identifier %q", req.Identifier)
		}
		return &citelink.Result{CitationKey: "ref-choice", Fields: completeFields()}, nil
	}}
	o := NewOrchestrator(store, linker, &fakeFetcher{}, &fakeExtractor{}, nil, WithSleeper(noSleep))

	result, err := o.ResolveSelection(ctx, item.ID, "doi:10.0/y")
	if err != nil {
		t.Fatalf("ResolveSelection: %v", err)
	}
	if result.FinalStatus != library.StatusStored {
		t.Fatalf("result = %+v, want stored", result)
	}

	updated, _ := store.GetByID(ctx, item.ID)
	if updated.Identifier != "doi:10.0/y" || !updated.HasIdentifier {
		t.Fatalf("selection not recorded: %+v", updated)
	}

	if _, err := o.ResolveSelection(ctx, item.ID, "doi:10.0/x"); !errors.Is(err, library.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition after selection, got %v", err)
	}
	if _, err := o.ResolveSelection(ctx, item.ID, "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank identifier, got %v", err)
	}
}

func TestReviewDecisions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedAwaitingReview := func(url string) *library.Item {
		item := addItem(t, store, url, nil)
		if err := store.Transition(ctx, item.ID, library.StatusNotStarted, library.StatusStage3Active, nil); err != nil {
			t.Fatalf("seed stage3: %v", err)
		}
		needsReview := true
		if err := store.Transition(ctx, item.ID, library.StatusStage3Active, library.StatusAwaitingReview, &library.Patch{
			NeedsReview: &needsReview,
		}); err != nil {
			t.Fatalf("seed awaiting_review: %v", err)
		}
		return item
	}

	o := NewOrchestrator(store, &fakeLinker{}, &fakeFetcher{}, &fakeExtractor{}, nil, WithSleeper(noSleep))

	approved := seedAwaitingReview("https://example.org/approve")
	if err := o.ApproveReview(ctx, approved.ID); err != nil {
		t.Fatalf("ApproveReview: %v", err)
	}
	updated, _ := store.GetByID(ctx, approved.ID)
	if updated.Status != library.StatusStored || updated.NeedsReview {
		t.Fatalf("approved item = %+v", updated)
	}

	rejected := seedAwaitingReview("https://example.org/reject")
	if err := o.RejectReview(ctx, rejected.ID); err != nil {
		t.Fatalf("RejectReview: %v", err)
	}
	updated, _ = store.GetByID(ctx, rejected.ID)
	if updated.Status != library.StatusExhausted || updated.ErrorMessage == "" {
		t.Fatalf("rejected item = %+v", updated)
	}

	if err := o.ApproveReview(ctx, approved.ID); !errors.Is(err, library.ErrStateConflict) {
		t.Fatalf("expected state conflict on double approve, got %v", err)
	}
}
