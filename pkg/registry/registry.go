// Package registry maps merkle roots to file records and keeps the raw piece
// bytes next to them.
package registry

import (
	"github.com/pkg/errors"

	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

// Registry stores one immutable FileRecord per merkle root.
type Registry interface {
	// Put stores the record. stored is false if an identical record was
	// already present. A record with the same root but other chunks fails
	// with types.ErrRootConflict.
	Put(record types.FileRecord) (stored bool, err error)
	// Get fails with types.ErrRootNotFound for unknown roots.
	Get(root types.Hash) (types.FileRecord, error)
	// List returns all records in insertion order.
	List() ([]types.FileSummary, error)
}

// ChunkStore holds piece bytes addressed by their content hash.
type ChunkStore interface {
	PutChunks(chunks []types.Chunk) error
	GetChunk(hash types.Hash) ([]byte, error)
}

type Store interface {
	Registry
	ChunkStore
	Close() error
}

// ErrChunkNotFound is returned by GetChunk for unknown hashes.
var ErrChunkNotFound = errors.New("registry: chunk not found")

func validateRecord(record types.FileRecord) error {
	if record.ChunkCount == 0 {
		return errors.Wrap(types.ErrInvariantViolation, "record without chunks")
	}
	if int(record.ChunkCount) != len(record.ChunkHashes) {
		return errors.Wrapf(types.ErrInvariantViolation,
			"record claims %d chunks but lists %d hashes", record.ChunkCount, len(record.ChunkHashes))
	}
	return nil
}
