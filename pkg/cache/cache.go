package cache

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

var ErrInvalidSize = errors.New("cache needs at least one block of at least one byte")

type key struct {
	blockSize int64
	index     int64
}

// Blocks keeps the most recently used fixed-size blocks of a remote object.
// Blocks are keyed by their size as well as their index, so a block loaded
// while the geometry changes can never be served under the new geometry.
type Blocks struct {
	mu        sync.RWMutex
	blockSize int64
	blocks    *lru.Cache
}

func NewBlocks(chunkCount int, blockSize int64) (*Blocks, error) {
	if chunkCount < 1 || blockSize < 1 {
		return nil, ErrInvalidSize
	}

	blocks, err := lru.New(chunkCount)
	if err != nil {
		return nil, err
	}

	return &Blocks{
		blockSize: blockSize,
		blocks:    blocks,
	}, nil
}

// Resize changes the number of blocks kept and their size. Changing the
// block size drops every cached block.
func (b *Blocks) Resize(chunkCount int, blockSize int64) error {
	if chunkCount < 1 || blockSize < 1 {
		return ErrInvalidSize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if blockSize != b.blockSize {
		b.blocks.Purge()
		b.blockSize = blockSize
	}

	b.blocks.Resize(chunkCount)

	return nil
}

func (b *Blocks) BlockSize() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.blockSize
}

func (b *Blocks) Get(blockSize int64, index int64) ([]byte, bool) {
	value, ok := b.blocks.Get(key{blockSize, index})
	if !ok {
		return nil, false
	}

	return value.([]byte), true
}

func (b *Blocks) Add(blockSize int64, index int64, block []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if blockSize != b.blockSize {
		return
	}

	b.blocks.Add(key{blockSize, index}, block)
}

func (b *Blocks) Len() int {
	return b.blocks.Len()
}
