// Package cache keeps bootstrap results in badger so reruns over the same
// presence vectors skip the resampling.
package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"lta/internal/jaccard"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

const keyPrefix = "jaccard:"

// Bootstrap is a jaccard.Estimator backed by a badger store.
type Bootstrap struct {
	db   *badger.DB
	next jaccard.Estimator

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// Open opens the store in dir, or an in-memory store when dir is empty.
// Misses are computed by next, jaccard.Default if nil.
func Open(dir string, next jaccard.Estimator) (*Bootstrap, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open %q: %w", dir, err)
	}
	if next == nil {
		next = jaccard.Default
	}
	return &Bootstrap{db: db, next: next}, nil
}

// Close closes the store.
func (c *Bootstrap) Close() error {
	return c.db.Close()
}

// Stats returns the hit, miss and error counts so far.
func (c *Bootstrap) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
}

// Bootstrap returns the stored result for the inputs or computes and stores
// it. Store failures are logged and never fail the call.
func (c *Bootstrap) Bootstrap(x, y []bool, opts ...jaccard.Option) (jaccard.Result, error) {
	key := Key(x, y, jaccard.Resolve(opts...))
	if res, ok := c.get(key); ok {
		return res, nil
	}
	res, err := c.next.Bootstrap(x, y, opts...)
	if err != nil {
		return res, err
	}
	c.set(key, res)
	return res, nil
}

func (c *Bootstrap) get(key []byte) (jaccard.Result, bool) {
	var res jaccard.Result
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&res)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.errs.Add(1)
			log.WithFields(log.Fields{"error": err}).Warn("bootstrap cache read failed")
		}
		c.misses.Add(1)
		return jaccard.Result{}, false
	}
	c.hits.Add(1)
	return res, true
}

func (c *Bootstrap) set(key []byte, res jaccard.Result) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(res); err != nil {
		c.errs.Add(1)
		log.WithFields(log.Fields{"error": err}).Warn("bootstrap cache encode failed")
		return
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf.Bytes())
	})
	if err != nil {
		c.errs.Add(1)
		log.WithFields(log.Fields{"error": err}).Warn("bootstrap cache write failed")
	}
}

// Key hashes everything a bootstrap result depends on.
func Key(x, y []bool, p jaccard.Params) []byte {
	h, _ := blake2b.New256(nil)
	var word [8]byte
	putInt := func(v uint64) {
		binary.LittleEndian.PutUint64(word[:], v)
		h.Write(word[:])
	}
	putBool := func(b bool) {
		if b {
			putInt(1)
		} else {
			putInt(0)
		}
	}
	putInt(uint64(len(x)))
	h.Write(pack(x))
	putInt(uint64(len(y)))
	h.Write(pack(y))
	putBool(p.Center)
	putBool(p.HasPX)
	putInt(math.Float64bits(p.PX))
	putBool(p.HasPY)
	putInt(math.Float64bits(p.PY))
	putInt(uint64(p.Reps))
	putInt(uint64(p.Seed))
	return h.Sum([]byte(keyPrefix))
}

// pack stores eight presence calls per byte.
func pack(v []bool) []byte {
	out := make([]byte, (len(v)+7)/8)
	for i, b := range v {
		if b {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}
