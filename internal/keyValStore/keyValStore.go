package keyValStore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// ErrKeyNotFound is returned by Read for missing keys.
var ErrKeyNotFound = badger.ErrKeyNotFound

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	InMemory         bool     // no files at all, used for tests and throwaway instances
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config       StoreConfig
	log          *logrus.Entry
	badgerDB     *badger.DB
	readCounter  uint64
	writeCounter uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger.WithField("component", "keyValStore")

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Paths[0])
		opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	}
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger: %w", err)
	}

	if !config.InMemory {
		if err := displayDiskUsage(log, config.Paths); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &KeyValStore{
		config:   config,
		log:      log,
		badgerDB: db,
	}, nil
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	atomic.AddUint64(&k.writeCounter, 1)

	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("error writing key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

func (k *KeyValStore) WriteBatch(batch [][2][]byte) error {
	wb := k.badgerDB.NewWriteBatch()
	defer wb.Cancel()

	for _, kv := range batch {
		atomic.AddUint64(&k.writeCounter, 1)
		if err := wb.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("error writing batch: %w", err)
		}
	}

	return wb.Flush()
}

// WriteNonExisting writes only the pairs whose key is not stored yet.
// Content addressed values never change, so existing keys are skipped.
func (k *KeyValStore) WriteNonExisting(batch [][2][]byte) error {
	keys := make([][]byte, 0, len(batch))
	for _, kv := range batch {
		keys = append(keys, kv[0])
	}

	existsMap, err := k.BatchCheckKeyExistence(keys)
	if err != nil {
		return fmt.Errorf("error checking key existence: %w", err)
	}

	missing := make([][2][]byte, 0, len(batch))
	for _, kv := range batch {
		if !existsMap[string(kv[0])] {
			missing = append(missing, kv)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return k.WriteBatch(missing)
}

func (k *KeyValStore) BatchCheckKeyExistence(keys [][]byte) (map[string]bool, error) {
	existsMap := make(map[string]bool)

	err := k.badgerDB.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			atomic.AddUint64(&k.readCounter, 1)
			_, err := txn.Get(key)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					existsMap[string(key)] = false
				} else {
					return err // return an error for issues other than "key not found"
				}
			} else {
				existsMap[string(key)] = true
			}
		}
		return nil
	})

	return existsMap, err
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&k.readCounter, 1)
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Error reading key %s: %w", hex.EncodeToString(key), err)
	}
	return value, nil
}

// Update runs fn in a read-write transaction. Everything fn writes becomes
// visible at once or not at all.
func (k *KeyValStore) Update(fn func(txn *badger.Txn) error) error {
	atomic.AddUint64(&k.writeCounter, 1)
	return k.badgerDB.Update(fn)
}

func (k *KeyValStore) View(fn func(txn *badger.Txn) error) error {
	atomic.AddUint64(&k.readCounter, 1)
	return k.badgerDB.View(fn)
}

// will return all keys and values with the given prefix, ordered by key
func (k *KeyValStore) GetItemsWithPrefix(prefix []byte) ([][][]byte, error) {
	var keysAndValues [][][]byte
	atomic.AddUint64(&k.readCounter, 1)
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keysAndValues = append(keysAndValues, [][]byte{k, v})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating prefix %q: %w", prefix, err)
	}
	return keysAndValues, nil
}

// Counters returns the number of read and write operations since start.
func (k *KeyValStore) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&k.readCounter), atomic.LoadUint64(&k.writeCounter)
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		k.log.WithError(err).Warn("cleaning before close failed")
	}

	reads, writes := k.Counters()
	k.log.WithFields(logrus.Fields{
		"reads":  reads,
		"writes": writes,
	}).Debug("closing key value store")

	return k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}

	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = k.badgerDB.Flatten(runtime.NumCPU()) // The parameter is the number of concurrent compactions
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Debug("DB Flattened")

	// clean badgerDB
	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}
