package chunker

import (
	"bytes"
	"fmt"
	"io"

	chunker "github.com/ipfs/boxo/chunker"

	"github.com/i5heu/ouroboros-fileproof/pkg/types"
)

// ChunkBytes splits data into types.ChunkSize pieces. The last piece keeps its
// true length, nothing is padded. Empty input yields no chunks and no error,
// rejecting empty files is up to the caller.
func ChunkBytes(data []byte) ([][]byte, error) {
	return ChunkReader(bytes.NewReader(data))
}

// ChunkReader reads the reader until EOF and splits it the same way as
// ChunkBytes.
func ChunkReader(reader io.Reader) ([][]byte, error) {
	splitter := chunker.NewSizeSplitter(reader, types.ChunkSize)

	chunks := [][]byte{}
	for chunkIndex := 0; ; chunkIndex++ {
		chunk, err := splitter.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading chunk %d: %w", chunkIndex, err)
		}

		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// Count returns how many chunks a file of the given size is split into.
func Count(size uint64) uint64 {
	return (size + types.ChunkSize - 1) / types.ChunkSize
}
