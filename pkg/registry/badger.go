package registry

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz/lzma"

	"github.com/i5heu/ouroboros-fileproof/internal/binaryCoder"
	"github.com/i5heu/ouroboros-fileproof/internal/keyValStore"
	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

var (
	prefixRecord = []byte("file:root:")
	prefixOrder  = []byte("file:order:")
	keySequence  = []byte("file:seq")
	prefixChunk  = []byte("chunk:")
)

// BadgerStore persists records and chunks in a KeyValStore.
//
// A record, its position in the insertion order and the sequence counter are
// written in one transaction, so readers never see half of an upload.
type BadgerStore struct {
	kv  *keyValStore.KeyValStore
	log *logrus.Entry
	mu  sync.Mutex // serializes Put
}

func NewBadgerStore(kv *keyValStore.KeyValStore, logger *logrus.Logger) *BadgerStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &BadgerStore{
		kv:  kv,
		log: logger.WithField("component", "registry"),
	}
}

func recordKey(root types.Hash) []byte {
	return append(append([]byte{}, prefixRecord...), root[:]...)
}

func orderKey(seq uint64) []byte {
	key := append([]byte{}, prefixOrder...)
	return binary.BigEndian.AppendUint64(key, seq)
}

func chunkKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixChunk...), hash[:]...)
}

func (s *BadgerStore) Put(record types.FileRecord) (bool, error) {
	if err := validateRecord(record); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := false
	err := s.kv.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(record.MerkleRoot))
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			existing, err := binaryCoder.BytesToRecord(raw)
			if err != nil {
				return errors.Wrapf(err, "decode stored record %s", record.MerkleRoot)
			}
			if existing.SameContent(record) {
				return nil
			}
			return errors.Wrapf(types.ErrRootConflict, "root %s", record.MerkleRoot)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		seq, err := nextSequence(txn)
		if err != nil {
			return err
		}

		if err := txn.Set(recordKey(record.MerkleRoot), binaryCoder.RecordToBytes(record)); err != nil {
			return err
		}
		if err := txn.Set(orderKey(seq), record.MerkleRoot.Bytes()); err != nil {
			return err
		}

		stored = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if stored {
		s.log.WithFields(logrus.Fields{
			"root":   record.MerkleRoot.String(),
			"pieces": record.ChunkCount,
		}).Debug("record stored")
	}
	return stored, nil
}

func nextSequence(txn *badger.Txn) (uint64, error) {
	var seq uint64
	item, err := txn.Get(keySequence)
	switch {
	case err == nil:
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		if len(raw) != 8 {
			return 0, errors.Wrapf(types.ErrInvariantViolation, "sequence counter has %d bytes", len(raw))
		}
		seq = binary.BigEndian.Uint64(raw)
	case !errors.Is(err, badger.ErrKeyNotFound):
		return 0, err
	}

	seq++
	if err := txn.Set(keySequence, binary.BigEndian.AppendUint64(nil, seq)); err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *BadgerStore) Get(root types.Hash) (types.FileRecord, error) {
	raw, err := s.kv.Read(recordKey(root))
	if err != nil {
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			return types.FileRecord{}, errors.Wrapf(types.ErrRootNotFound, "root %s", root)
		}
		return types.FileRecord{}, err
	}

	record, err := binaryCoder.BytesToRecord(raw)
	if err != nil {
		return types.FileRecord{}, errors.Wrapf(err, "decode stored record %s", root)
	}
	return record, nil
}

func (s *BadgerStore) List() ([]types.FileSummary, error) {
	var summaries []types.FileSummary

	err := s.kv.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixOrder
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefixOrder); it.ValidForPrefix(prefixOrder); it.Next() {
			rootBytes, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var root types.Hash
			if err := root.HashFromBytes(rootBytes); err != nil {
				return errors.Wrap(types.ErrInvariantViolation, err.Error())
			}

			item, err := txn.Get(recordKey(root))
			if err != nil {
				return errors.Wrapf(err, "order index points to root %s", root)
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			record, err := binaryCoder.BytesToRecord(raw)
			if err != nil {
				return errors.Wrapf(err, "decode stored record %s", root)
			}

			summaries = append(summaries, types.FileSummary{
				MerkleRoot: root,
				ChunkCount: record.ChunkCount,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if summaries == nil {
		summaries = []types.FileSummary{}
	}
	return summaries, nil
}

// PutChunks stores lzma compressed piece bytes, skipping known hashes.
func (s *BadgerStore) PutChunks(chunks []types.Chunk) error {
	batch := make([][2][]byte, 0, len(chunks))
	for _, chunk := range chunks {
		compressed, err := compressWithLzma(chunk.Data)
		if err != nil {
			return errors.Wrapf(err, "compress chunk %s", chunk.Hash)
		}
		batch = append(batch, [2][]byte{chunkKey(chunk.Hash), compressed})
	}

	return s.kv.WriteNonExisting(batch)
}

func (s *BadgerStore) GetChunk(hash types.Hash) ([]byte, error) {
	compressed, err := s.kv.Read(chunkKey(hash))
	if err != nil {
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			return nil, errors.Wrapf(ErrChunkNotFound, "chunk %s", hash)
		}
		return nil, err
	}

	data, err := decompressWithLzma(compressed)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress chunk %s", hash)
	}
	return data, nil
}

// GarbageCollection flattens the LSM tree and rewrites value log files.
func (s *BadgerStore) GarbageCollection() error {
	return s.kv.Clean()
}

func (s *BadgerStore) Close() error {
	return s.kv.Close()
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.WriterConfig{DictCap: lzma.MinDictCap}.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(data)
	if err != nil {
		return nil, err
	}

	err = w.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
