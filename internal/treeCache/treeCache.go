// Package treeCache keeps recently used merkle trees in memory so proofs for
// hot files do not rebuild the tree from the stored leaf hashes.
package treeCache

import (
	"github.com/dgraph-io/ristretto"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-fileproof/pkg/merkle"
	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

// Cache is bounded by the byte size of the cached node hashes.
// A nil *Cache or one created with maxBytes <= 0 caches nothing.
type Cache struct {
	cache *ristretto.Cache
	log   *logrus.Entry
}

func New(maxBytes int64, logger *logrus.Logger) (*Cache, error) {
	if logger == nil {
		logger = logrus.New()
	}
	log := logger.WithField("component", "treeCache")

	if maxBytes <= 0 {
		log.Debug("tree cache disabled")
		return &Cache{log: log}, nil
	}

	// roughly ten counters per expected entry, entries are at least one node pair
	counters := maxBytes / (2 * types.HashSize) * 10
	if counters < 1000 {
		counters = 1000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	log.WithField("size", humanize.Bytes(uint64(maxBytes))).Debug("tree cache ready")
	return &Cache{cache: cache, log: log}, nil
}

func key(root types.Hash) string {
	return string(root[:])
}

func (c *Cache) Get(root types.Hash) (*merkle.Tree, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key(root))
	if !ok {
		return nil, false
	}
	tree, ok := v.(*merkle.Tree)
	return tree, ok
}

// Add may drop the tree, ristretto admits entries by frequency.
func (c *Cache) Add(tree *merkle.Tree) {
	if c == nil || c.cache == nil || tree == nil {
		return
	}
	c.cache.Set(key(tree.Root()), tree, tree.Size())
}

// Wait blocks until pending Adds are visible to Get.
func (c *Cache) Wait() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Wait()
}

func (c *Cache) Stats() (hits, misses uint64) {
	if c == nil || c.cache == nil || c.cache.Metrics == nil {
		return 0, 0
	}
	return c.cache.Metrics.Hits(), c.cache.Metrics.Misses()
}

func (c *Cache) Close() {
	if c == nil || c.cache == nil {
		return
	}
	hits, misses := c.Stats()
	c.log.WithFields(logrus.Fields{"hits": hits, "misses": misses}).Debug("closing tree cache")
	c.cache.Close()
}
