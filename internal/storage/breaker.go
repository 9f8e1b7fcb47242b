package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/familytree/pkg/types"
)

// ErrCircuitOpen is returned when the store circuit breaker is open and
// rejects calls to prevent piling requests onto an unavailable backend.
var ErrCircuitOpen = errors.New("storage circuit breaker is open")

// BreakerConfig holds the configuration for the store circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive backend failures required to
	// trip the circuit. Default: 5
	MaxFailures uint32

	// Timeout is how long the circuit stays open before going half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of requests allowed through while
	// half-open. Default: 1
	HalfOpenMaxSuccesses uint32
}

// DefaultBreakerConfig returns a BreakerConfig with sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:          5,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 1,
	}
}

// BreakerStore wraps a Store so that every call passes through a gobreaker
// circuit breaker. Domain outcomes (not found, duplicate pair, missing
// metadata column, invalid input, caller cancellation) count as successes:
// only genuine backend failures trip the circuit.
type BreakerStore struct {
	next    Store
	breaker *gobreaker.CircuitBreaker
}

// WithCircuitBreaker decorates next with a circuit breaker.
func WithCircuitBreaker(next Store, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultBreakerConfig()
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaults.MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = defaults.HalfOpenMaxSuccesses
	}

	settings := gobreaker.Settings{
		Name:        "StoreCircuitBreaker",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Interval:    0, // Don't clear counts periodically
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("storage: circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrMetadataUnsupported) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, context.Canceled)
}

// State returns the current breaker state: "closed", "open" or "half-open".
func (b *BreakerStore) State() string {
	return b.breaker.State().String()
}

// Unwrap returns the decorated store.
func (b *BreakerStore) Unwrap() Store {
	return b.next
}

func execute[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}

func executeErr(b *BreakerStore, fn func() error) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// GetMembers implements MemberDirectory.
func (b *BreakerStore) GetMembers(ctx context.Context, ids []string) (map[string]*types.Member, error) {
	return execute(b, func() (map[string]*types.Member, error) {
		return b.next.GetMembers(ctx, ids)
	})
}

// ListMembers implements MemberDirectory.
func (b *BreakerStore) ListMembers(ctx context.Context) ([]*types.Member, error) {
	return execute(b, func() ([]*types.Member, error) {
		return b.next.ListMembers(ctx)
	})
}

// CreateRelationPair implements RelationStore.
func (b *BreakerStore) CreateRelationPair(ctx context.Context, primary, reciprocal *types.Relation, withMetadata bool) error {
	return executeErr(b, func() error {
		return b.next.CreateRelationPair(ctx, primary, reciprocal, withMetadata)
	})
}

// CreateRelation implements RelationStore.
func (b *BreakerStore) CreateRelation(ctx context.Context, rel *types.Relation, withMetadata bool) error {
	return executeErr(b, func() error {
		return b.next.CreateRelation(ctx, rel, withMetadata)
	})
}

// GetRelation implements RelationStore.
func (b *BreakerStore) GetRelation(ctx context.Context, id string) (*types.Relation, error) {
	return execute(b, func() (*types.Relation, error) {
		return b.next.GetRelation(ctx, id)
	})
}

// FindRelation implements RelationStore.
func (b *BreakerStore) FindRelation(ctx context.Context, fromID, toID string) (*types.Relation, error) {
	return execute(b, func() (*types.Relation, error) {
		return b.next.FindRelation(ctx, fromID, toID)
	})
}

// ListRelations implements RelationStore.
func (b *BreakerStore) ListRelations(ctx context.Context, filter RelationFilter) ([]*types.Relation, error) {
	return execute(b, func() ([]*types.Relation, error) {
		return b.next.ListRelations(ctx, filter)
	})
}

// UpdateSiblingType implements RelationStore.
func (b *BreakerStore) UpdateSiblingType(ctx context.Context, id string, siblingType types.SiblingType) error {
	return executeErr(b, func() error {
		return b.next.UpdateSiblingType(ctx, id, siblingType)
	})
}

// UpdateSiblingTypeByPair implements RelationStore.
func (b *BreakerStore) UpdateSiblingTypeByPair(ctx context.Context, fromID, toID string, siblingType types.SiblingType) error {
	return executeErr(b, func() error {
		return b.next.UpdateSiblingTypeByPair(ctx, fromID, toID, siblingType)
	})
}

// DeleteRelation implements RelationStore.
func (b *BreakerStore) DeleteRelation(ctx context.Context, id string) error {
	return executeErr(b, func() error {
		return b.next.DeleteRelation(ctx, id)
	})
}

// DeleteRelationByPair implements RelationStore.
func (b *BreakerStore) DeleteRelationByPair(ctx context.Context, fromID, toID string, relType types.RelationType) error {
	return executeErr(b, func() error {
		return b.next.DeleteRelationByPair(ctx, fromID, toID, relType)
	})
}

// SupportsMetadata implements RelationStore.
func (b *BreakerStore) SupportsMetadata(ctx context.Context) (bool, error) {
	return execute(b, func() (bool, error) {
		return b.next.SupportsMetadata(ctx)
	})
}

// Close closes the decorated store.
func (b *BreakerStore) Close() error {
	return b.next.Close()
}
