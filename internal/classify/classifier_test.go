package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storylinehq/storyline/internal/cache"
	"github.com/storylinehq/storyline/internal/model"
)

func TestNew_DisabledProvider(t *testing.T) {
	c, err := New(model.ClassifierConfig{Provider: ""}, nil)
	if err != nil {
		t.Fatalf("Expected no error for disabled provider, got %v", err)
	}
	if c != nil {
		t.Error("Expected nil classifier when disabled")
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(model.ClassifierConfig{Provider: "mystery"}, nil); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestNew_OpenAIWrappedInCache(t *testing.T) {
	verdicts := cache.NewMemoryCache(time.Hour, time.Hour)

	c, err := New(model.ClassifierConfig{
		Provider: "openai",
		APIKey:   "test-key",
	}, verdicts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, ok := c.(*CachedClassifier); !ok {
		t.Errorf("Expected cached wrapper, got %T", c)
	}
	if c.Name() != "openai" {
		t.Errorf("Expected inner provider name, got %q", c.Name())
	}
}

func TestNew_OpenAIWithoutCache(t *testing.T) {
	c, err := New(model.ClassifierConfig{
		Provider: "OpenAI", // Provider matching is case-insensitive
		APIKey:   "test-key",
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*OpenAIClassifier); !ok {
		t.Errorf("Expected bare provider without cache, got %T", c)
	}
}

// countingClassifier is a deterministic inner classifier for cache tests.
type countingClassifier struct {
	verdict bool
	err     error
	calls   int
}

func (c *countingClassifier) Name() string { return "counting" }

func (c *countingClassifier) Ask(context.Context, string, string) (bool, error) {
	c.calls++
	return c.verdict, c.err
}

func TestCachedClassifier_Ask_CachesVerdict(t *testing.T) {
	inner := &countingClassifier{verdict: true}
	cached := &CachedClassifier{
		inner:    inner,
		verdicts: cache.NewMemoryCache(time.Hour, time.Hour),
		ttl:      time.Hour,
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		yes, err := cached.Ask(ctx, "anchor", "candidate")
		if err != nil {
			t.Fatalf("Ask failed: %v", err)
		}
		if !yes {
			t.Error("Expected YES verdict")
		}
	}

	if inner.calls != 1 {
		t.Errorf("Expected a single provider call, got %d", inner.calls)
	}
}

func TestCachedClassifier_Ask_DistinctQuestionsDistinctEntries(t *testing.T) {
	inner := &countingClassifier{verdict: false}
	cached := &CachedClassifier{
		inner:    inner,
		verdicts: cache.NewMemoryCache(time.Hour, time.Hour),
		ttl:      time.Hour,
	}

	ctx := context.Background()
	if _, err := cached.Ask(ctx, "anchor-a", "candidate"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if _, err := cached.Ask(ctx, "anchor-b", "candidate"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if inner.calls != 2 {
		t.Errorf("Expected two provider calls, got %d", inner.calls)
	}
}

func TestCachedClassifier_Ask_ErrorsNotCached(t *testing.T) {
	inner := &countingClassifier{err: errors.New("upstream down")}
	cached := &CachedClassifier{
		inner:    inner,
		verdicts: cache.NewMemoryCache(time.Hour, time.Hour),
		ttl:      time.Hour,
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := cached.Ask(ctx, "anchor", "candidate"); err == nil {
			t.Fatal("Expected error to propagate")
		}
	}

	// Both attempts must reach the provider: failures are retryable
	if inner.calls != 2 {
		t.Errorf("Expected two provider calls, got %d", inner.calls)
	}

	// Recovery: the provider comes back and the verdict gets cached
	inner.err = nil
	inner.verdict = true
	if yes, err := cached.Ask(ctx, "anchor", "candidate"); err != nil || !yes {
		t.Fatalf("Expected recovered YES, got %v / %v", yes, err)
	}
	if _, err := cached.Ask(ctx, "anchor", "candidate"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("Expected cached verdict after recovery, got %d calls", inner.calls)
	}
}
