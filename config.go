package fileproof

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

type Config struct {
	Paths                     []string      // only Paths[0] is used at the moment
	MinimumFreeGB             int
	Backend                   string        // BackendBadger (default) or BackendMemory
	Logger                    *logrus.Logger
	Workers                   int           // hashing workers, defaults to 3 per CPU
	TreeCacheBytes            int64         // 0 disables the tree cache
	GarbageCollectionInterval time.Duration // 0 disables periodic value log GC
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Backend == "" {
		c.Backend = BackendBadger
	}
}
