// Package catalog tracks checkpoint files across a run campaign.
//
// Each finalized checkpoint is registered with its path, backend,
// particle count and checksum in an embedded Badger store, so restart
// tooling can pick the newest usable file and retention can prune old
// ones together with their data files.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/statemesh/statemesh-go/internal/telemetry/logger"
)

var (
	ErrNotFound = errors.New("catalog: checkpoint not found")
	ErrClosed   = errors.New("catalog: store closed")
)

const keyPrefix = "cp:"

// Info is one catalog record.
type Info struct {
	ID             string    `json:"id"` // ULID, assigned at Put when empty
	Path           string    `json:"path"`
	Backend        string    `json:"backend"`
	CreatedAt      time.Time `json:"created_at"`
	TotalParticles int64     `json:"total_particles"`
	Datasets       int       `json:"datasets"`
	Checksum       string    `json:"checksum,omitempty"`
}

// Config holds catalog store configuration.
type Config struct {
	// Dir is the Badger database directory.
	Dir string

	// SyncWrites forces fsync on every update.
	SyncWrites bool

	Logger   logger.Logger
	Registry *prometheus.Registry
}

// Store is an open catalog.
type Store struct {
	db     *badger.DB
	log    logger.Logger
	closed bool

	entriesGauge prometheus.Gauge
	prunedTotal  prometheus.Counter
}

// Open opens (or creates) the catalog database in cfg.Dir.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("catalog: dir is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{log: log}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}

	s := &Store{db: db, log: log}
	if cfg.Registry != nil {
		s.registerMetrics(cfg.Registry)
	}
	log.Info("catalog opened", "dir", cfg.Dir)
	return s, nil
}

func (s *Store) registerMetrics(registry *prometheus.Registry) {
	s.entriesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "statemesh",
		Subsystem: "catalog",
		Name:      "entries",
		Help:      "Checkpoint files currently registered",
	})
	s.prunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "statemesh",
		Subsystem: "catalog",
		Name:      "pruned_total",
		Help:      "Checkpoint files removed by retention pruning",
	})
	registry.MustRegister(s.entriesGauge, s.prunedTotal)
}

func (s *Store) refreshGauge(ctx context.Context) {
	if s.entriesGauge == nil {
		return
	}
	infos, err := s.List(ctx)
	if err != nil {
		return
	}
	s.entriesGauge.Set(float64(len(infos)))
}

// Put registers a checkpoint. A missing ID is assigned and a zero
// CreatedAt is stamped with the current time. Returns the stored record.
func (s *Store) Put(ctx context.Context, info Info) (Info, error) {
	if s.closed {
		return Info{}, ErrClosed
	}
	if info.ID == "" {
		info.ID = ulid.Make().String()
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(info)
	if err != nil {
		return Info{}, fmt.Errorf("catalog: encode %s: %w", info.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+info.ID), raw)
	})
	if err != nil {
		return Info{}, fmt.Errorf("catalog: put %s: %w", info.ID, err)
	}

	s.log.Info("checkpoint registered",
		"id", info.ID, "path", info.Path, "backend", info.Backend)
	s.refreshGauge(ctx)
	return info, nil
}

// Get returns the record with the given ID.
func (s *Store) Get(ctx context.Context, id string) (Info, error) {
	if s.closed {
		return Info{}, ErrClosed
	}
	var info Info
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	})
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// List returns all records ordered oldest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	if s.closed {
		return nil, ErrClosed
	}
	var infos []Info
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var info Info
				if err := json.Unmarshal(val, &info); err != nil {
					return err
				}
				infos = append(infos, info)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos, nil
}

// Latest returns the most recently created record.
func (s *Store) Latest(ctx context.Context) (Info, error) {
	infos, err := s.List(ctx)
	if err != nil {
		return Info{}, err
	}
	if len(infos) == 0 {
		return Info{}, ErrNotFound
	}
	return infos[len(infos)-1], nil
}

// Prune keeps the newest keep records and removes the rest, deleting
// their checkpoint files from disk. Returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if keep < 0 {
		keep = 0
	}
	infos, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(infos) <= keep {
		return 0, nil
	}

	victims := infos[:len(infos)-keep]
	removed := 0
	for _, info := range victims {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(keyPrefix + info.ID))
		})
		if err != nil {
			return removed, fmt.Errorf("catalog: prune %s: %w", info.ID, err)
		}
		if rmErr := os.Remove(info.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Warn("failed to remove checkpoint file",
				"id", info.ID, "path", info.Path, "error", rmErr)
		}
		removed++
		if s.prunedTotal != nil {
			s.prunedTotal.Inc()
		}
	}

	s.log.Info("pruned checkpoints", "removed", removed, "kept", keep)
	s.refreshGauge(ctx)
	return removed, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("catalog: close db: %w", err)
	}
	return nil
}

// badgerLogger adapts the application logger to Badger's interface.
type badgerLogger struct {
	log logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
