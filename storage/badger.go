package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"

	"ringelect/pkg/ring"
)

const (
	outcomePrefix = "outcome/"
	lastPrefix    = "last/"
)

// BadgerStorage implements Storage interface using BadgerDB
type BadgerStorage struct {
	db    *badger.DB
	cache *ristretto.Cache

	stop     chan struct{}
	stopOnce sync.Once
}

// NewBadgerStorage creates a new BadgerDB storage instance. An empty dataDir
// keeps everything in memory.
func NewBadgerStorage(dataDir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dataDir).
		WithLogger(nil).
		WithLoggingLevel(badger.ERROR)
	if dataDir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open badger db")
	}

	// Small cache in front of LastOutcome, keyed by participant
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		// If cache fails to init, continue without cache
		rc = nil
	}

	s := &BadgerStorage{db: db, cache: rc, stop: make(chan struct{})}
	if !opts.InMemory {
		go s.runGC()
	}
	return s, nil
}

// runGC runs the value log garbage collector periodically
func (s *BadgerStorage) runGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.db.RunValueLogGC(0.7)
		}
	}
}

// SaveOutcome stores the outcome under a time-ordered key and updates the
// participant's last-outcome pointer in the same transaction
func (s *BadgerStorage) SaveOutcome(ctx context.Context, o Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encode outcome")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(outcomeKey(o), data); err != nil {
			return err
		}
		return txn.Set(lastKey(o.ParticipantID), data)
	})
	if err != nil {
		return errors.Wrapf(err, "save outcome %s", o.RunID)
	}

	if s.cache != nil {
		s.cache.Set(uint64(o.ParticipantID), o, 1)
		s.cache.Wait()
	}
	return nil
}

// LastOutcome returns the most recent outcome for participant
func (s *BadgerStorage) LastOutcome(ctx context.Context, participant ring.ID) (Outcome, bool, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, false, err
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(uint64(participant)); ok {
			if o, ok := v.(Outcome); ok {
				return o, true, nil
			}
		}
	}

	var (
		out   Outcome
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastKey(participant))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		return Outcome{}, false, errors.Wrapf(err, "load last outcome of %d", uint64(participant))
	}
	if found && s.cache != nil {
		s.cache.Set(uint64(participant), out, 1)
	}
	return out, found, nil
}

// ListOutcomes walks the outcome keys newest first
func (s *BadgerStorage) ListOutcomes(ctx context.Context, limit int) ([]Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res []Outcome
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(outcomePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the last key sharing the prefix
		for it.Seek([]byte(outcomePrefix + "\xff")); it.ValidForPrefix(opts.Prefix); it.Next() {
			var o Outcome
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &o)
			}); err != nil {
				return err
			}
			res = append(res, o)
			if limit > 0 && len(res) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list outcomes")
	}
	return res, nil
}

// Close stops background work and closes the database
func (s *BadgerStorage) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.cache != nil {
		s.cache.Close()
	}
	return s.db.Close()
}

// outcomeKey sorts by finish time so reverse iteration yields newest first
func outcomeKey(o Outcome) []byte {
	return []byte(fmt.Sprintf("%s%020d/%010d/%s", outcomePrefix, o.FinishedAt.UnixNano(), uint64(o.ParticipantID), o.RunID))
}

func lastKey(participant ring.ID) []byte {
	return []byte(fmt.Sprintf("%s%010d", lastPrefix, uint64(participant)))
}
