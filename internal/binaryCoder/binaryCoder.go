// Package binaryCoder encodes file records in protobuf wire format without
// generated code, so stored records stay readable by any protobuf decoder.
//
//	message FileRecord {
//	  bytes  merkle_root  = 1;
//	  uint32 chunk_count  = 2;
//	  bytes  chunk_hashes = 3; // concatenated 32 byte digests
//	  uint64 file_size    = 4;
//	  string owner        = 5;
//	  int64  created_at   = 6; // unix nanoseconds
//	}
package binaryCoder

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

const (
	fieldMerkleRoot  protowire.Number = 1
	fieldChunkCount  protowire.Number = 2
	fieldChunkHashes protowire.Number = 3
	fieldFileSize    protowire.Number = 4
	fieldOwner       protowire.Number = 5
	fieldCreatedAt   protowire.Number = 6
)

func RecordToBytes(record types.FileRecord) []byte {
	size := 2*types.HashSize + len(record.ChunkHashes)*types.HashSize + len(record.Owner) + 32
	b := make([]byte, 0, size)

	b = protowire.AppendTag(b, fieldMerkleRoot, protowire.BytesType)
	b = protowire.AppendBytes(b, record.MerkleRoot[:])

	b = protowire.AppendTag(b, fieldChunkCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(record.ChunkCount))

	hashes := make([]byte, 0, len(record.ChunkHashes)*types.HashSize)
	for _, h := range record.ChunkHashes {
		hashes = append(hashes, h[:]...)
	}
	b = protowire.AppendTag(b, fieldChunkHashes, protowire.BytesType)
	b = protowire.AppendBytes(b, hashes)

	b = protowire.AppendTag(b, fieldFileSize, protowire.VarintType)
	b = protowire.AppendVarint(b, record.FileSize)

	if record.Owner != "" {
		b = protowire.AppendTag(b, fieldOwner, protowire.BytesType)
		b = protowire.AppendString(b, record.Owner)
	}

	if !record.CreatedAt.IsZero() {
		b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(record.CreatedAt.UnixNano()))
	}

	return b
}

func BytesToRecord(b []byte) (types.FileRecord, error) {
	var record types.FileRecord
	var haveRoot bool

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return types.FileRecord{}, fmt.Errorf("Error decoding FileRecord tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldMerkleRoot && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return types.FileRecord{}, fmt.Errorf("Error decoding merkle root: %w", protowire.ParseError(n))
			}
			if err := record.MerkleRoot.HashFromBytes(v); err != nil {
				return types.FileRecord{}, fmt.Errorf("Error decoding merkle root: %w", err)
			}
			haveRoot = true
			b = b[n:]

		case num == fieldChunkCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return types.FileRecord{}, fmt.Errorf("Error decoding chunk count: %w", protowire.ParseError(n))
			}
			record.ChunkCount = uint32(v)
			b = b[n:]

		case num == fieldChunkHashes && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return types.FileRecord{}, fmt.Errorf("Error decoding chunk hashes: %w", protowire.ParseError(n))
			}
			if len(v)%types.HashSize != 0 {
				return types.FileRecord{}, fmt.Errorf("Error decoding chunk hashes: %d bytes is not a multiple of %d", len(v), types.HashSize)
			}
			record.ChunkHashes = make([]types.Hash, len(v)/types.HashSize)
			for i := range record.ChunkHashes {
				copy(record.ChunkHashes[i][:], v[i*types.HashSize:])
			}
			b = b[n:]

		case num == fieldFileSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return types.FileRecord{}, fmt.Errorf("Error decoding file size: %w", protowire.ParseError(n))
			}
			record.FileSize = v
			b = b[n:]

		case num == fieldOwner && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return types.FileRecord{}, fmt.Errorf("Error decoding owner: %w", protowire.ParseError(n))
			}
			record.Owner = v
			b = b[n:]

		case num == fieldCreatedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return types.FileRecord{}, fmt.Errorf("Error decoding creation time: %w", protowire.ParseError(n))
			}
			record.CreatedAt = time.Unix(0, int64(v))
			b = b[n:]

		default:
			// unknown fields from newer writers are skipped
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return types.FileRecord{}, fmt.Errorf("Error skipping field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !haveRoot {
		return types.FileRecord{}, fmt.Errorf("Error decoding FileRecord: merkle root missing")
	}
	if int(record.ChunkCount) != len(record.ChunkHashes) {
		return types.FileRecord{}, fmt.Errorf("Error decoding FileRecord: chunk count %d but %d hashes", record.ChunkCount, len(record.ChunkHashes))
	}

	return record, nil
}
