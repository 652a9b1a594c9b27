// Package ledger is the truth store's orchestration layer. It accepts
// observations, keeps the snapshot cache consistent with the observation
// ledger, answers reads and performs entity merges.
//
// All work on a key happens under that key's lock: observation create and
// recompute for one key are serialized, while different keys proceed in
// parallel. A merge holds both of its keys.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/papercomputeco/truthstore/pkg/eventstream"
	"github.com/papercomputeco/truthstore/pkg/eventstream/nop"
	"github.com/papercomputeco/truthstore/pkg/ledger/recompute"
	"github.com/papercomputeco/truthstore/pkg/logger"
	"github.com/papercomputeco/truthstore/pkg/metrics"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/storage"
)

// maxRedirects bounds how many merge hops key resolution follows. Merges are
// flattened to depth 1, so more than two hops only happens while merges race.
const maxRedirects = 4

// Recompute triggers reported on events and metrics.
const (
	TriggerObservation = "observation"
	TriggerCorrection  = "correction"
	TriggerDeletion    = "deletion"
	TriggerRestoration = "restoration"
	TriggerMerge       = "merge"
	TriggerRead        = "read"
	TriggerManual      = "manual"
)

// Config is the configuration of a Ledger.
type Config struct {
	// Driver is the storage backend. Required.
	Driver storage.Driver

	// Registry resolves active schemas. Defaults to a registry over Driver.
	Registry *schema.Registry

	// Publisher receives snapshot and merge events. Defaults to a no-op.
	Publisher eventstream.Publisher

	Logger *slog.Logger

	// Clock overrides time.Now.
	Clock func() time.Time

	// Async defers recomputes of ordinary submissions to a worker pool.
	Async      bool
	NumWorkers uint
	QueueSize  uint
}

// Ledger implements the observation store, snapshot store and merge.
type Ledger struct {
	driver    storage.Driver
	registry  *schema.Registry
	publisher eventstream.Publisher
	logger    *slog.Logger
	now       func() time.Time

	locks *keyLocks
	reads singleflight.Group
	pool  *recompute.Pool
}

// New creates a Ledger. Close it to drain background recomputes.
func New(c *Config) (*Ledger, error) {
	if c.Driver == nil {
		return nil, errors.New("storage driver is required")
	}

	l := &Ledger{
		driver:    c.Driver,
		registry:  c.Registry,
		publisher: c.Publisher,
		logger:    c.Logger,
		now:       c.Clock,
		locks:     newKeyLocks(),
	}

	if l.logger == nil {
		l.logger = logger.Nop()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.publisher == nil {
		l.publisher = nop.NewPublisher()
	}
	if l.registry == nil {
		l.registry = schema.NewRegistry(c.Driver, l.logger, schema.WithClock(l.now))
	}

	if c.Async {
		pool, err := recompute.NewPool(&recompute.Config{
			Recompute: func(ctx context.Context, ownerScope, key string) error {
				_, err := l.recompute(ctx, ownerScope, key, TriggerObservation)
				return err
			},
			NumWorkers: c.NumWorkers,
			QueueSize:  c.QueueSize,
			Logger:     l.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating recompute pool: %w", err)
		}
		l.pool = pool
	}

	return l, nil
}

// Registry returns the schema registry the ledger validates against.
func (l *Ledger) Registry() *schema.Registry {
	return l.registry
}

// Close waits for queued background recomputes. It does not close the
// driver or the publisher.
func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (l *Ledger) timestamp() time.Time {
	return l.now().UTC()
}

// activeSchema returns the schema in force for (typ, ownerScope), or nil
// when none is active. It must not be called inside a storage transaction.
func (l *Ledger) activeSchema(ctx context.Context, typ, ownerScope string) (*schema.Definition, error) {
	def, err := l.registry.LoadActive(ctx, typ, ownerScope)
	if errors.Is(err, schema.ErrSchemaNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading active schema for %s: %w", typ, err)
	}
	return def, nil
}

// lookupEntity returns the registry entry of key, or nil if it is unknown.
func lookupEntity(ctx context.Context, s storage.Store, key string) (*storage.Entity, error) {
	e, err := s.GetEntity(ctx, key)
	if storage.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading entity %s: %w", key, err)
	}
	return e, nil
}

// readable returns the entity behind a read of key by ownerScope. Keys of
// other owners are indistinguishable from unknown keys.
func (l *Ledger) readable(ctx context.Context, ownerScope, key string) (*storage.Entity, error) {
	e, err := lookupEntity(ctx, l.driver, key)
	if err != nil {
		return nil, err
	}
	if e == nil || e.OwnerScope != ownerScope {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, key)
	}
	if e.MergedInto != "" {
		return nil, &MergedError{Key: key, Target: e.MergedInto}
	}
	return e, nil
}

// acquire follows merge redirects from key and locks the key it lands on.
// The returned entity is nil when the key is not registered yet.
func (l *Ledger) acquire(ctx context.Context, ownerScope, key string) (*storage.Entity, string, func(), error) {
	for range maxRedirects {
		e, err := lookupEntity(ctx, l.driver, key)
		if err != nil {
			return nil, "", nil, err
		}
		if e != nil && e.OwnerScope == ownerScope && e.MergedInto != "" {
			key = e.MergedInto
			continue
		}

		unlock := l.locks.lock(ownerScope, key)

		e, err = lookupEntity(ctx, l.driver, key)
		if err != nil {
			unlock()
			return nil, "", nil, err
		}
		if e != nil && e.OwnerScope == ownerScope && e.MergedInto != "" {
			unlock()
			key = e.MergedInto
			continue
		}
		return e, key, unlock, nil
	}

	return nil, "", nil, fmt.Errorf("resolving %s: too many merge redirects", key)
}

func (l *Ledger) publish(ctx context.Context, event *eventstream.Event) {
	if err := l.publisher.Publish(ctx, event); err != nil {
		metrics.EventsPublishErrors.WithLabelValues(event.EventType).Inc()
		l.logger.Warn("failed to publish event",
			"event_type", event.EventType,
			"owner_scope", event.OwnerScope,
			"key", event.Key,
			"error", err,
		)
	}
}
