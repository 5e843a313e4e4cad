// Package classify wraps the external yes/no classifier used for
// thematic validation: deciding whether a headline belongs to a
// candidate event family's strategic purpose.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/storylinehq/storyline/internal/cache"
	"github.com/storylinehq/storyline/internal/model"
)

// Classifier answers whether candidateText semantically fits
// anchorText. Synchronous; may fail. Callers treat failure as NO.
type Classifier interface {
	// Name returns the provider name
	Name() string

	// Ask returns true for YES, false for NO.
	Ask(ctx context.Context, anchorText, candidateText string) (bool, error)
}

// New creates a classifier from configuration. An empty provider
// returns (nil, nil): classification disabled. A non-nil verdict
// cache wraps the provider so repeat questions are free.
func New(cfg model.ClassifierConfig, verdicts cache.Cache) (Classifier, error) {
	var c Classifier

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		oc, err := NewOpenAIClassifier(cfg)
		if err != nil {
			return nil, err
		}
		c = oc

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown classifier provider: %s (supported: openai)", cfg.Provider)
	}

	if verdicts != nil {
		c = &CachedClassifier{inner: c, verdicts: verdicts, ttl: cfg.CacheTTL}
	}

	return c, nil
}
