// Package modelstore persists selected models in a badger database, keyed
// by strategy and category, so later runs and the show command can read
// them back.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.ntppool.org/common/logger"

	"github.com/signrec/hmmselect/hmm"
	"github.com/signrec/hmmselect/selector"
)

var ErrNotFound = errors.New("modelstore: not found")

const keyPrefix = "sel/"

// Record is one stored selection.
type Record struct {
	RunID    string `msgpack:"run_id"`
	Category string `msgpack:"category"`
	Strategy string `msgpack:"strategy"`
	States   int    `msgpack:"states"`
	// Score is NaN for constant and fallback selections.
	Score    float64 `msgpack:"score"`
	Fallback bool    `msgpack:"fallback"`
	Reason   string  `msgpack:"reason,omitempty"`

	// Params is nil when no model could be fit.
	Params *hmm.Params `msgpack:"params,omitempty"`

	CreatedAt time.Time `msgpack:"created_at"`
}

// FromResult converts a selection result. Models that are not Gaussian
// HMMs are stored without parameters.
func FromResult(runID string, r selector.Result, now time.Time) Record {
	rec := Record{
		RunID:     runID,
		Category:  r.Category,
		Strategy:  r.Strategy.String(),
		States:    r.States,
		Score:     r.Score,
		Fallback:  r.Fallback,
		CreatedAt: now.UTC(),
	}
	if r.Reason != nil {
		rec.Reason = r.Reason.Error()
	}
	if m, ok := r.Model.(*hmm.Model); ok && m != nil {
		p := m.Params()
		rec.Params = &p
	}
	return rec
}

// Model rebuilds the stored model.
func (r Record) Model() (*hmm.Model, error) {
	if r.Params == nil {
		return nil, fmt.Errorf("%w: %s/%s has no model parameters", ErrNotFound, r.Strategy, r.Category)
	}
	return hmm.NewModel(*r.Params)
}

// Options configures Open.
type Options struct {
	// Dir is the database directory, required unless InMemory is set.
	Dir      string
	InMemory bool

	// OpenTimeout bounds how long Open waits for another process to
	// release the database lock. Zero means 30 seconds.
	OpenTimeout time.Duration
}

// Store is a badger backed model store.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens (or creates) the store.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("modelstore: Dir is required for on-disk mode")
	}
	log := logger.FromContext(ctx).With("component", "modelstore")

	dbOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{log})

	timeout := opts.OpenTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	expback := backoff.NewExponentialBackOff()
	expback.InitialInterval = 250 * time.Millisecond
	expback.MaxInterval = 5 * time.Second

	db, err := backoff.Retry(ctx, func() (*badger.DB, error) {
		db, err := badger.Open(dbOpts)
		if err == nil {
			return db, nil
		}
		if strings.Contains(err.Error(), "lock") {
			log.InfoContext(ctx, "database locked, retrying", "dir", opts.Dir, "err", err)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(expback),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("modelstore: open %q: %w", opts.Dir, err)
	}

	return &Store{db: db, log: log}, nil
}

func key(strategy, category string) []byte {
	return []byte(keyPrefix + strategy + "/" + category)
}

// Put stores rec, replacing any earlier record for the same strategy and
// category.
func (s *Store) Put(ctx context.Context, rec Record) error {
	b, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("modelstore: encode %s/%s: %w", rec.Strategy, rec.Category, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(rec.Strategy, rec.Category), b)
	})
	if err != nil {
		return err
	}
	s.log.DebugContext(ctx, "stored model", "strategy", rec.Strategy, "category", rec.Category, "states", rec.States)
	return nil
}

// PutAll stores every record in a single write batch.
func (s *Store) PutAll(ctx context.Context, recs []Record) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := range recs {
		b, err := msgpack.Marshal(&recs[i])
		if err != nil {
			return fmt.Errorf("modelstore: encode %s/%s: %w", recs[i].Strategy, recs[i].Category, err)
		}
		if err := wb.Set(key(recs[i].Strategy, recs[i].Category), b); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}
	s.log.DebugContext(ctx, "stored models", "count", len(recs))
	return nil
}

// Get returns the record for strategy and category.
func (s *Store) Get(_ context.Context, strategy, category string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(strategy, category))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, strategy, category)
	}
	return rec, err
}

// List returns the stored records, all of them when strategy is empty,
// ordered by strategy then category.
func (s *Store) List(_ context.Context, strategy string) ([]Record, error) {
	prefix := []byte(keyPrefix)
	if strategy != "" {
		prefix = key(strategy, "")
	}

	var recs []Record
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("modelstore: decode %s: %w", it.Item().Key(), err)
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Strategy != recs[j].Strategy {
			return recs[i].Strategy < recs[j].Strategy
		}
		return recs[i].Category < recs[j].Category
	})
	return recs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger sends badger's warnings and errors to slog and drops the
// rest.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
