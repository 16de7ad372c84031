package remote

import (
	"context"
	"io"
	"net/url"
	"path"
	"syscall"
	"time"

	"github.com/JakWai01/http-mount/pkg/cache"
)

const (
	DefaultBlockSize  = 1024 * 1024
	DefaultChunkCount = 256
)

// Object is a remote resource that can be read by byte range. ReadRange may
// return fewer bytes than len(p); it returns 0 only when nothing is left.
type Object interface {
	Name() string
	Size() int64
	ReadRange(ctx context.Context, p []byte, off int64) (int, error)
}

type opener func(ctx context.Context, u *url.URL) (Object, error)

var openers = map[string]opener{
	"http":    openHTTP,
	"https":   openHTTP,
	"s3":      openS3,
	"s3+http": openS3,
	"file":    openFile,
}

// File serves range reads of an Object through a block cache.
type File struct {
	object Object
	blocks *cache.Blocks
}

// Open resolves uri to a backend and fetches its size. The timeout bounds the
// whole open.
func Open(uri string, timeout time.Duration) (*File, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, newError(KindProtocol, err, "invalid URI %q", uri)
	}

	open, ok := openers[u.Scheme]
	if !ok {
		return nil, newError(KindUnsupported, nil, "unsupported URI scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	object, err := open(ctx, u)
	if err != nil {
		return nil, transportError(ctx, err, "could not open %v", uri)
	}

	return NewFile(object), nil
}

func NewFile(object Object) *File {
	blocks, _ := cache.NewBlocks(DefaultChunkCount, DefaultBlockSize)

	return &File{
		object: object,
		blocks: blocks,
	}
}

func (f *File) Size() uint64 {
	return uint64(f.object.Size())
}

func (f *File) Name() string {
	return f.object.Name()
}

// AdjustCacheSize keeps up to chunkCount blocks of blockSize bytes.
func (f *File) AdjustCacheSize(chunkCount int, blockSize int) error {
	return f.blocks.Resize(chunkCount, int64(blockSize))
}

// ReadAt reads up to len(p) bytes at off. Reads are clamped to the end of the
// object; reading at or past the end returns 0 and no error.
func (f *File) ReadAt(p []byte, off int64, timeout time.Duration) (int, error) {
	if off < 0 {
		return 0, newError(KindGeneric, syscall.EINVAL, "negative offset %v", off)
	}

	size := f.object.Size()
	if off >= size {
		return 0, nil
	}

	if remaining := size - off; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	blockSize := f.blocks.BlockSize()

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		index := pos / blockSize

		block, err := f.block(ctx, blockSize, index)
		if err != nil {
			return 0, err
		}

		n += copy(p[n:], block[pos-index*blockSize:])
	}

	return n, nil
}

func (f *File) block(ctx context.Context, blockSize int64, index int64) ([]byte, error) {
	if block, ok := f.blocks.Get(blockSize, index); ok {
		return block, nil
	}

	start := index * blockSize
	length := blockSize
	if remaining := f.object.Size() - start; remaining < length {
		length = remaining
	}

	// Objects may return less than asked for; keep reading until the block is
	// complete so a cached block is never short.
	block := make([]byte, length)
	for n := 0; n < len(block); {
		m, err := f.object.ReadRange(ctx, block[n:], start+int64(n))
		if err != nil {
			return nil, transportError(ctx, err, "could not read %v bytes at offset %v", length-int64(n), start+int64(n))
		}

		if m == 0 {
			return nil, newError(KindReadWrite, io.ErrUnexpectedEOF, "no data at offset %v of %v bytes", start+int64(n), f.object.Size())
		}

		n += m
	}

	f.blocks.Add(blockSize, index, block)

	return block, nil
}

// displayName picks the last path segment, falling back to the host.
func displayName(u *url.URL, p string) string {
	name := path.Base(p)
	if name == "." || name == ".." || name == "/" || name == "" {
		return u.Host
	}

	return name
}
