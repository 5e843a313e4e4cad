package classify

import (
	"context"
	"time"

	"github.com/storylinehq/storyline/internal/cache"
)

// CachedClassifier memoizes verdicts. Only successful answers are
// cached; errors always propagate so the caller's fail-closed
// handling sees them.
type CachedClassifier struct {
	inner    Classifier
	verdicts cache.Cache
	ttl      time.Duration
}

// Name returns the underlying provider name.
func (c *CachedClassifier) Name() string {
	return c.inner.Name()
}

// Ask consults the verdict cache before the provider.
func (c *CachedClassifier) Ask(ctx context.Context, anchorText, candidateText string) (bool, error) {
	key := cache.VerdictKey(anchorText, candidateText)

	if val, found := c.verdicts.Get(key); found && len(val) == 1 {
		return val[0] == 'y', nil
	}

	verdict, err := c.inner.Ask(ctx, anchorText, candidateText)
	if err != nil {
		return false, err
	}

	b := byte('n')
	if verdict {
		b = 'y'
	}
	_ = c.verdicts.Set(key, []byte{b}, c.ttl)

	return verdict, nil
}
