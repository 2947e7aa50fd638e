// Package fileproof stores files as fixed size pieces under a merkle root and
// hands out inclusion proofs, so a client holding only the root can check any
// single piece it downloads.
package fileproof

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-fileproof/internal/keyValStore"
	"github.com/i5heu/ouroboros-fileproof/internal/treeCache"
	"github.com/i5heu/ouroboros-fileproof/pkg/chunker"
	"github.com/i5heu/ouroboros-fileproof/pkg/contentAddress"
	"github.com/i5heu/ouroboros-fileproof/pkg/merkle"
	"github.com/i5heu/ouroboros-fileproof/pkg/registry"
	"github.com/i5heu/ouroboros-fileproof/pkg/types"
	"github.com/i5heu/ouroboros-fileproof/pkg/workerPool"
)

type FileServer struct {
	config Config
	log    *logrus.Entry
	store  registry.Store
	pool   *workerPool.WorkerPool
	trees  *treeCache.Cache

	// held shared by every operation, exclusively by Close
	lifecycle sync.RWMutex
	closed    bool
	stopGC    chan struct{}
	gcDone    chan struct{}
}

type UploadResult struct {
	MerkleRoot    string `json:"hash"`
	Pieces        uint32 `json:"pieces"`
	Size          uint64 `json:"size"`
	AlreadyStored bool   `json:"alreadyStored"`
}

type FileListing struct {
	MerkleRoot string `json:"hash"`
	Pieces     uint32 `json:"pieces"`
}

// ProofResponse carries the leaf hash of the requested piece and the sibling
// hashes from the leaf level upwards. Levels where the node was carried up
// without a sibling contribute no entry, so Pieces is needed to replay it.
type ProofResponse struct {
	ContentHash string   `json:"content"`
	Proof       []string `json:"proof"`
	Pieces      uint32   `json:"pieces"`
}

type garbageCollector interface {
	GarbageCollection() error
}

// New opens the store selected by conf.Backend.
func New(conf Config) (*FileServer, error) {
	conf.applyDefaults()

	var store registry.Store
	switch conf.Backend {
	case BackendMemory:
		store = registry.NewMemoryStore()
	case BackendBadger:
		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:            conf.Paths,
			MinimumFreeSpace: conf.MinimumFreeGB,
			Logger:           conf.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating KeyValStore: %w", err)
		}
		store = registry.NewBadgerStore(kv, conf.Logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", conf.Backend)
	}

	fs, err := NewWithStore(conf, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return fs, nil
}

// NewWithStore uses an already opened store. The FileServer owns it from here
// on and closes it on Close.
func NewWithStore(conf Config, store registry.Store) (*FileServer, error) {
	conf.applyDefaults()

	trees, err := treeCache.New(conf.TreeCacheBytes, conf.Logger)
	if err != nil {
		return nil, fmt.Errorf("error creating tree cache: %w", err)
	}

	fs := &FileServer{
		config: conf,
		log:    conf.Logger.WithField("component", "fileServer"),
		store:  store,
		pool:   workerPool.NewWorkerPool(workerPool.Config{WorkerCount: conf.Workers}),
		trees:  trees,
		stopGC: make(chan struct{}),
		gcDone: make(chan struct{}),
	}

	go fs.createGarbageCollection()

	return fs, nil
}

// Close waits for running operations, stops the garbage collection and closes
// the store. Later calls return nil.
func (fs *FileServer) Close() error {
	fs.lifecycle.Lock()
	defer fs.lifecycle.Unlock()

	if fs.closed {
		return nil
	}
	fs.closed = true

	close(fs.stopGC)
	<-fs.gcDone

	fs.pool.Close()
	fs.trees.Close()
	return fs.store.Close()
}

func (fs *FileServer) createGarbageCollection() {
	defer close(fs.gcDone)

	gc, ok := fs.store.(garbageCollector)
	if !ok || fs.config.GarbageCollectionInterval <= 0 {
		return
	}

	ticker := time.NewTicker(fs.config.GarbageCollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.stopGC:
			return
		case <-ticker.C:
			start := time.Now()
			if err := gc.GarbageCollection(); err != nil {
				fs.log.WithError(err).Error("garbage collection failed")
				continue
			}
			fs.log.WithField("took", time.Since(start)).Debug("garbage collection done")
		}
	}
}

// enter marks an operation as running. The returned func must be called when
// it is done.
func (fs *FileServer) enter(ctx context.Context) (func(), error) {
	fs.lifecycle.RLock()
	if fs.closed {
		fs.lifecycle.RUnlock()
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		fs.lifecycle.RUnlock()
		return nil, err
	}
	return fs.lifecycle.RUnlock, nil
}

// UploadFile splits data into pieces, builds the merkle tree and registers the
// file under its root. Uploading the same bytes again is not an error, the
// first upload's owner and timestamp are kept.
func (fs *FileServer) UploadFile(ctx context.Context, data []byte, owner string) (UploadResult, error) {
	leave, err := fs.enter(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	defer leave()

	if len(data) == 0 {
		return UploadResult{}, errors.Wrap(ErrEmptyInput, "upload")
	}

	pieces, err := chunker.ChunkBytes(data)
	if err != nil {
		return UploadResult{}, fs.fail(err)
	}

	leaves := fs.hashPieces(pieces)
	if err := ctx.Err(); err != nil {
		return UploadResult{}, err
	}

	tree, err := merkle.BuildWithPool(leaves, fs.pool)
	if err != nil {
		return UploadResult{}, fs.fail(err)
	}

	chunks := make([]types.Chunk, len(pieces))
	for i := range pieces {
		chunks[i] = types.Chunk{Hash: leaves[i], Data: pieces[i]}
	}
	// pieces are content addressed, storing them before the record is harmless
	// even if the record is rejected afterwards
	if err := fs.store.PutChunks(chunks); err != nil {
		return UploadResult{}, fs.fail(errors.Wrap(err, "store pieces"))
	}

	record := types.FileRecord{
		MerkleRoot:  tree.Root(),
		ChunkCount:  uint32(tree.LeafCount()),
		ChunkHashes: leaves,
		FileSize:    uint64(len(data)),
		Owner:       owner,
		CreatedAt:   time.Now().UTC(),
	}

	stored, err := fs.store.Put(record)
	if err != nil {
		if errors.Is(err, ErrRootConflict) {
			fs.log.WithFields(logrus.Fields{
				"root":   contentAddress.Identifier(record.MerkleRoot),
				"pieces": record.ChunkCount,
				"owner":  owner,
			}).Warn("upload rejected, root already registered with other pieces")
		}
		return UploadResult{}, fs.fail(err)
	}
	fs.trees.Add(tree)

	result := UploadResult{
		MerkleRoot:    contentAddress.Identifier(record.MerkleRoot),
		Pieces:        record.ChunkCount,
		Size:          record.FileSize,
		AlreadyStored: !stored,
	}

	if stored {
		fs.log.WithFields(logrus.Fields{
			"root":   result.MerkleRoot,
			"pieces": result.Pieces,
			"size":   humanize.Bytes(result.Size),
			"owner":  owner,
		}).Info("file uploaded")
	}

	return result, nil
}

func (fs *FileServer) hashPieces(pieces [][]byte) []types.Hash {
	room := fs.pool.CreateRoom(len(pieces))
	for i, piece := range pieces {
		room.NewTaskWaitForFreeSlot(i, func() interface{} {
			return contentAddress.Sum(piece)
		})
	}

	results := room.Collect()
	leaves := make([]types.Hash, len(results))
	for i, r := range results {
		leaves[i] = r.(types.Hash)
	}
	return leaves
}

// GetFiles lists every registered file in upload order.
func (fs *FileServer) GetFiles(ctx context.Context) ([]FileListing, error) {
	leave, err := fs.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	summaries, err := fs.store.List()
	if err != nil {
		return nil, fs.fail(err)
	}

	files := make([]FileListing, len(summaries))
	for i, s := range summaries {
		files[i] = FileListing{
			MerkleRoot: contentAddress.Identifier(s.MerkleRoot),
			Pieces:     s.ChunkCount,
		}
	}
	return files, nil
}

func (fs *FileServer) GetProof(ctx context.Context, merkleRoot string, pieceIndex int64) (ProofResponse, error) {
	leave, err := fs.enter(ctx)
	if err != nil {
		return ProofResponse{}, err
	}
	defer leave()

	root, err := parseRoot(merkleRoot)
	if err != nil {
		return ProofResponse{}, err
	}

	tree, err := fs.tree(root)
	if err != nil {
		return ProofResponse{}, fs.fail(err)
	}

	if pieceIndex < 0 || pieceIndex >= int64(tree.LeafCount()) {
		return ProofResponse{}, errors.Wrapf(ErrPieceIndexOutOfRange,
			"piece %d of %d", pieceIndex, tree.LeafCount())
	}

	leaf, err := tree.Leaf(int(pieceIndex))
	if err != nil {
		return ProofResponse{}, fs.fail(err)
	}
	proof, err := tree.Prove(int(pieceIndex))
	if err != nil {
		return ProofResponse{}, fs.fail(err)
	}

	siblings := proof.Siblings()
	identifiers := make([]string, len(siblings))
	for i, s := range siblings {
		identifiers[i] = contentAddress.Identifier(s)
	}

	return ProofResponse{
		ContentHash: contentAddress.Identifier(leaf),
		Proof:       identifiers,
		Pieces:      uint32(tree.LeafCount()),
	}, nil
}

// GetPiece returns the stored bytes of one piece after checking them against
// the recorded leaf hash.
func (fs *FileServer) GetPiece(ctx context.Context, merkleRoot string, pieceIndex int64) ([]byte, error) {
	leave, err := fs.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	root, err := parseRoot(merkleRoot)
	if err != nil {
		return nil, err
	}

	record, err := fs.store.Get(root)
	if err != nil {
		return nil, fs.fail(err)
	}

	if pieceIndex < 0 || pieceIndex >= int64(record.ChunkCount) {
		return nil, errors.Wrapf(ErrPieceIndexOutOfRange,
			"piece %d of %d", pieceIndex, record.ChunkCount)
	}

	expected := record.ChunkHashes[pieceIndex]
	data, err := fs.store.GetChunk(expected)
	if err != nil {
		return nil, fs.fail(errors.Wrapf(err, "piece %d of %s", pieceIndex, merkleRoot))
	}

	if contentAddress.Sum(data) != expected {
		return nil, fs.fail(errors.Wrapf(ErrInvariantViolation,
			"stored piece %d of %s does not match its hash", pieceIndex, merkleRoot))
	}
	return data, nil
}

// tree returns the merkle tree of root, rebuilding it from the stored leaf
// hashes on a cache miss.
func (fs *FileServer) tree(root types.Hash) (*merkle.Tree, error) {
	if tree, ok := fs.trees.Get(root); ok {
		return tree, nil
	}

	record, err := fs.store.Get(root)
	if err != nil {
		return nil, err
	}

	tree, err := merkle.BuildWithPool(record.ChunkHashes, fs.pool)
	if err != nil {
		return nil, err
	}
	if tree.Root() != root {
		return nil, errors.Wrapf(ErrInvariantViolation,
			"stored leaves of %s rebuild to %s", root, tree.Root())
	}

	fs.trees.Add(tree)
	return tree, nil
}

func parseRoot(s string) (types.Hash, error) {
	root, err := contentAddress.ParseIdentifier(s)
	if err != nil {
		return types.Hash{}, errors.Wrapf(ErrInvalidIdentifier, "%q: %v", s, err)
	}
	return root, nil
}

// fail logs invariant violations, they point to a bug or a corrupted store.
func (fs *FileServer) fail(err error) error {
	if errors.Is(err, ErrInvariantViolation) {
		fs.log.WithError(err).Error("invariant violated")
	}
	return err
}
