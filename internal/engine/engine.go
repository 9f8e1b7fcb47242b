package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/familytree/internal/storage"
)

// Metadata capability states.
const (
	metadataUnknown int32 = iota
	metadataSupported
	metadataUnsupported
)

// Engine is the relationship-graph integrity engine. It is safe for
// concurrent use; the only mutable state is the metadata capability flag,
// which is owned by the instance.
type Engine struct {
	store  storage.Store
	config Config
	logger *slog.Logger

	// metadata caches whether the store accepts the relations.metadata column.
	// Concurrent first calls may each probe; the answer is the same.
	metadata atomic.Int32

	mu       sync.RWMutex
	onChange func(Event)

	newID func() string
	now   func() time.Time
}

// New creates a relationship engine over store.
// Use DefaultConfig() for sensible defaults.
func New(store storage.Store, config Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:  store,
		config: config,
		logger: logger,
		newID:  newRelationID,
		now:    time.Now,
	}

	switch config.MetadataMode {
	case MetadataOn:
		e.metadata.Store(metadataSupported)
	case MetadataOff:
		e.metadata.Store(metadataUnsupported)
	}

	return e, nil
}

// newRelationID returns an id in the rel:<uuid> format.
func newRelationID() string {
	return "rel:" + uuid.New().String()
}

// SetOnChange sets a callback fired after every successful create, update and delete.
func (e *Engine) SetOnChange(callback func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onChange = callback
}

func (e *Engine) emit(evt Event) {
	e.mu.RLock()
	callback := e.onChange
	e.mu.RUnlock()

	if callback == nil {
		return
	}
	evt.Timestamp = e.now().UTC()
	callback(evt)
}

// MetadataSupported reports the cached capability, probing the store on first use.
func (e *Engine) MetadataSupported(ctx context.Context) bool {
	switch e.metadata.Load() {
	case metadataSupported:
		return true
	case metadataUnsupported:
		return false
	}

	ok, err := e.store.SupportsMetadata(ctx)
	if err != nil {
		// Leave the flag unset and attempt the write; a rejection flips it.
		e.logger.Warn("engine: metadata capability probe failed", "error", err)
		return true
	}
	e.setMetadataSupport(ok)
	return ok
}

func (e *Engine) setMetadataSupport(ok bool) {
	if ok {
		e.metadata.Store(metadataSupported)
		return
	}
	if e.metadata.Swap(metadataUnsupported) != metadataUnsupported {
		e.logger.Info("engine: relation metadata not supported by store, writing without it")
	}
}

func (e *Engine) walkBounds() WalkBounds {
	return WalkBounds{
		MaxDepth: e.config.MaxAncestorDepth,
		MaxNodes: e.config.MaxAncestorNodes,
		Timeout:  e.config.AncestorTimeout,
	}
}
