package types

import (
	"encoding/hex"
	"fmt"
	"time"
)

// HashSize is the length of a SHA-256 digest in bytes.
const HashSize = 32

// ChunkSize is the fixed size of every chunk except possibly the last one.
const ChunkSize = 1024

// Hash is a raw SHA-256 digest. It is used for chunk hashes, interior nodes
// of the merkle tree and merkle roots alike.
type Hash [HashSize]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h *Hash) HashFromBytes(b []byte) error {
	if len(b) != HashSize {
		return fmt.Errorf("invalid byte length for Hash: %d", len(b))
	}
	copy(h[:], b)
	return nil
}

// HashHexadecimal parses a 64 character hex string into a Hash.
func HashHexadecimal(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hex for Hash: %w", err)
	}
	return h, h.HashFromBytes(b)
}

// Side tells on which side of the path node a proof sibling sits.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "unknown"
}

// ProofEntry is one step of a merkle proof.
type ProofEntry struct {
	Sibling  Hash
	Position Side
}

// Proof is ordered from the leaf level upwards and never contains the root.
type Proof []ProofEntry

// Siblings drops the side markers, which is what goes over the wire.
func (p Proof) Siblings() []Hash {
	siblings := make([]Hash, len(p))
	for i, entry := range p {
		siblings[i] = entry.Sibling
	}
	return siblings
}

// Chunk is a piece of a file together with its content hash.
type Chunk struct {
	Hash Hash
	Data []byte
}

// FileRecord is what the registry keeps per uploaded file.
// Only MerkleRoot, ChunkCount and ChunkHashes take part in conflict detection;
// the remaining fields describe the first upload.
type FileRecord struct {
	MerkleRoot  Hash
	ChunkCount  uint32
	ChunkHashes []Hash
	FileSize    uint64
	Owner       string
	CreatedAt   time.Time
}

// SameContent reports whether both records describe the same chunk sequence.
func (r FileRecord) SameContent(other FileRecord) bool {
	if r.MerkleRoot != other.MerkleRoot || r.ChunkCount != other.ChunkCount {
		return false
	}
	if len(r.ChunkHashes) != len(other.ChunkHashes) {
		return false
	}
	for i := range r.ChunkHashes {
		if r.ChunkHashes[i] != other.ChunkHashes[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers can not mutate a stored record.
func (r FileRecord) Clone() FileRecord {
	c := r
	c.ChunkHashes = make([]Hash, len(r.ChunkHashes))
	copy(c.ChunkHashes, r.ChunkHashes)
	return c
}

// FileSummary is the enumeration view of a FileRecord.
type FileSummary struct {
	MerkleRoot Hash
	ChunkCount uint32
}
