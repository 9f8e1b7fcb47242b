package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBoundsExceeded is returned when a graph walk hits one of its limits.
var ErrBoundsExceeded = errors.New("graph walk bounds exceeded")

// WalkBounds limits a breadth-first walk over the parent/child graph.
type WalkBounds struct {
	MaxDepth int
	MaxNodes int
	Timeout  time.Duration
}

// boundsChecker tracks and enforces walk bounds so a pathological tree
// cannot turn one validation into an unbounded scan.
//
// It monitors:
//   - Number of members visited
//   - Walk depth (generations from the start)
//   - Time elapsed since the walk started
type boundsChecker struct {
	bounds       WalkBounds
	nodesVisited int
	startTime    time.Time
}

func newBoundsChecker(bounds WalkBounds) *boundsChecker {
	return &boundsChecker{
		bounds:    bounds,
		startTime: time.Now(),
	}
}

// canContinue checks every bound before expanding the next generation.
//
// Returns:
//   - nil if the walk can continue
//   - ErrBoundsExceeded if any bound is exceeded
//   - a wrapped context error if ctx is done
func (b *boundsChecker) canContinue(ctx context.Context, depth int) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled during ancestry walk: %w", ctx.Err())
	default:
	}

	if b.nodesVisited >= b.bounds.MaxNodes {
		return fmt.Errorf("%w: max members (%d) exceeded", ErrBoundsExceeded, b.bounds.MaxNodes)
	}

	if depth >= b.bounds.MaxDepth {
		return fmt.Errorf("%w: max depth (%d) exceeded", ErrBoundsExceeded, b.bounds.MaxDepth)
	}

	elapsed := time.Since(b.startTime)
	if elapsed >= b.bounds.Timeout {
		return fmt.Errorf("%w: timeout (%v) exceeded after %v", ErrBoundsExceeded, b.bounds.Timeout, elapsed)
	}

	return nil
}

// recordNodes adds n visited members.
func (b *boundsChecker) recordNodes(n int) {
	b.nodesVisited += n
}
