package classify

import (
	"context"

	"golang.org/x/time/rate"
)

// Gate bounds external classifier traffic: a counting semaphore caps
// in-flight calls and a token bucket paces the request rate.
type Gate struct {
	slots   chan struct{}
	limiter *rate.Limiter
}

// NewGate creates a gate allowing maxInFlight concurrent calls at
// requestsPerSecond sustained rate.
func NewGate(maxInFlight int, requestsPerSecond float64) *Gate {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	burst := maxInFlight
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}

	return &Gate{
		slots:   make(chan struct{}, maxInFlight),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Acquire blocks until a slot and a rate token are available.
// The caller must Release the slot when the call finishes.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case g.slots <- struct{}{}:
	}

	if err := g.limiter.Wait(ctx); err != nil {
		<-g.slots
		return err
	}

	return nil
}

// Release frees a slot acquired with Acquire.
func (g *Gate) Release() {
	<-g.slots
}

// Ask runs one gated classifier call.
func (g *Gate) Ask(ctx context.Context, c Classifier, anchorText, candidateText string) (bool, error) {
	if err := g.Acquire(ctx); err != nil {
		return false, err
	}
	defer g.Release()

	return c.Ask(ctx, anchorText, candidateText)
}
