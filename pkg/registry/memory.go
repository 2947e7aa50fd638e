package registry

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

// MemoryStore keeps everything in maps. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[types.Hash]types.FileRecord
	order   []types.Hash
	chunks  map[types.Hash][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[types.Hash]types.FileRecord),
		chunks:  make(map[types.Hash][]byte),
	}
}

func (m *MemoryStore) Put(record types.FileRecord) (bool, error) {
	if err := validateRecord(record); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[record.MerkleRoot]; ok {
		if existing.SameContent(record) {
			return false, nil
		}
		return false, errors.Wrapf(types.ErrRootConflict, "root %s", record.MerkleRoot)
	}

	m.records[record.MerkleRoot] = record.Clone()
	m.order = append(m.order, record.MerkleRoot)
	return true, nil
}

func (m *MemoryStore) Get(root types.Hash) (types.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[root]
	if !ok {
		return types.FileRecord{}, errors.Wrapf(types.ErrRootNotFound, "root %s", root)
	}
	return record.Clone(), nil
}

func (m *MemoryStore) List() ([]types.FileSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]types.FileSummary, 0, len(m.order))
	for _, root := range m.order {
		summaries = append(summaries, types.FileSummary{
			MerkleRoot: root,
			ChunkCount: m.records[root].ChunkCount,
		})
	}
	return summaries, nil
}

func (m *MemoryStore) PutChunks(chunks []types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, chunk := range chunks {
		if _, ok := m.chunks[chunk.Hash]; ok {
			continue
		}
		data := make([]byte, len(chunk.Data))
		copy(data, chunk.Data)
		m.chunks[chunk.Hash] = data
	}
	return nil
}

func (m *MemoryStore) GetChunk(hash types.Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.chunks[hash]
	if !ok {
		return nil, errors.Wrapf(ErrChunkNotFound, "chunk %s", hash)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
