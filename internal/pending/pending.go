// SPDX-License-Identifier: MIT

// Package pending persists the scheduler's continuation state in a Badger
// store. Two key families:
//
//	pend:<parent_task_id>  continuation tasks released when the parent
//	                       returns successfully
//	flight:<cname>         one record per emitted restore…remove chain,
//	                       deleted when the remove acknowledges
//
// Entries carry a TTL: a continuation whose parent never returns expires,
// and the ledgers rediscover the dropped work at the next enumeration.
// Flight records drive orphan reclaim after a crash.
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/jdswan/sonicat/internal/log"
	"github.com/jdswan/sonicat/internal/task"
)

const (
	pendPrefix   = "pend:"
	flightPrefix = "flight:"
)

// DefaultTTL bounds how long an unreleased continuation survives. Long
// enough for any legitimate task (large-archive analysis runs take tens of
// minutes), short enough that dropped chains recycle within a day.
const DefaultTTL = 24 * time.Hour

// Flight records one in-flight restore chain for a cname.
type Flight struct {
	Cname    string    `json:"cname"`
	Catalog  string    `json:"catalog"`
	DataPath string    `json:"data_path"`
	TaskIDs  []string  `json:"task_ids"`
	Started  time.Time `json:"started"`
}

// Cache is the durable PendingCache. One instance, owned by the scheduler.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger zerolog.Logger
}

// Open opens (creating when absent) the pending store at dir.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("pending: open %s: %w", dir, err)
	}
	return &Cache{
		db:     db,
		ttl:    DefaultTTL,
		logger: log.WithComponent("pending"),
	}, nil
}

// Close releases the store.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put registers continuations for a parent task. An existing entry for the
// same parent is replaced.
func (c *Cache) Put(parentID string, successors []task.Task) error {
	buf, err := json.Marshal(successors)
	if err != nil {
		return fmt.Errorf("pending: encode continuations: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(pendPrefix+parentID), buf).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("pending: put %s: %w", parentID, err)
	}
	return nil
}

// CheckIn removes and returns the continuations of a parent task. A parent
// with no registered continuations yields an empty slice, mirroring the
// cache miss the scheduler treats as "chain complete".
func (c *Cache) CheckIn(parentID string) ([]task.Task, error) {
	var successors []task.Task
	key := []byte(pendPrefix + parentID)
	err := c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &successors)
		}); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return nil, fmt.Errorf("pending: check in %s: %w", parentID, err)
	}
	return successors, nil
}

// Len counts live continuations.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(pendPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pending: len: %w", err)
	}
	return n, nil
}

// PutFlight records an emitted restore chain.
func (c *Cache) PutFlight(f Flight) error {
	buf, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("pending: encode flight: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(flightPrefix+f.Cname), buf).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("pending: put flight %q: %w", f.Cname, err)
	}
	return nil
}

// DeleteFlight clears a completed chain's record.
func (c *Cache) DeleteFlight(cname string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(flightPrefix + cname))
	})
	if err != nil {
		return fmt.Errorf("pending: delete flight %q: %w", cname, err)
	}
	return nil
}

// Flight returns the live record for a cname, or false.
func (c *Cache) Flight(cname string) (Flight, bool, error) {
	var f Flight
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(flightPrefix + cname))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &f)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return f, false, nil
	}
	if err != nil {
		return f, false, fmt.Errorf("pending: flight %q: %w", cname, err)
	}
	return f, true, nil
}

// Flights scans all live flight records.
func (c *Cache) Flights(ctx context.Context) ([]Flight, error) {
	var out []Flight
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(flightPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var f Flight
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			}); err != nil {
				c.logger.Warn().Err(err).
					Str(log.FieldEvent, "pending.flight_corrupt").
					Msg("skipping unreadable flight record")
				continue
			}
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pending: flights: %w", err)
	}
	return out, nil
}
