package filesystem

import (
	"context"
	"fmt"
	"time"

	"github.com/JakWai01/http-mount/internal/logging"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

const attributesTTL = time.Second

// RemoteFile is the reader a mount is backed by. Its size and name are read
// once, when the filesystem is created.
type RemoteFile interface {
	Size() uint64
	Name() string
	ReadAt(p []byte, off int64, timeout time.Duration) (int, error)
}

// fileSystem exposes one remote file as the only entry of the root directory.
//
// jacobsa/fuse dispatches every op on its own goroutine; all ops take mu, so
// the read buffer is only ever touched by one op at a time.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	root *inode
	file *inode

	remote  RemoteFile
	timeout time.Duration

	mu syncutil.InvariantMutex

	// Grown to the largest read seen so far, never shrunk.
	//
	// GUARDED_BY(mu)
	buffer []byte

	clock timeutil.Clock
	log   logging.StructuredLogger
}

func NewFileSystem(uid uint32, gid uint32, remote RemoteFile, timeout time.Duration, logger logging.StructuredLogger, clock timeutil.Clock) fuse.Server {
	return fuseutil.NewFileSystemServer(newFileSystem(uid, gid, remote, timeout, logger, clock))
}

func newFileSystem(uid uint32, gid uint32, remote RemoteFile, timeout time.Duration, logger logging.StructuredLogger, clock timeutil.Clock) *fileSystem {
	fs := &fileSystem{
		root:    newRootInode(uid, gid),
		file:    newFileInode(remote.Name(), remote.Size(), uid, gid),
		remote:  remote,
		timeout: timeout,
		clock:   clock,
		log:     logger,
	}

	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	return fs
}

func (fs *fileSystem) checkInvariants() {
	if !fs.root.isDir() || fs.root.id != fuseops.RootInodeID {
		panic(fmt.Sprintf("root inode is malformed: %+v", fs.root))
	}

	if fs.file.isDir() || fs.file.id != FileInodeID {
		panic(fmt.Sprintf("file inode is malformed: %+v", fs.file))
	}
}

func (fs *fileSystem) expiration() time.Time {
	return fs.clock.Now().Add(attributesTTL)
}

func (fs *fileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	fs.log.Trace("FUSE.StatFS", nil)

	return nil
}

func (fs *fileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	fs.log.Debug("FUSE.LookUpInode", map[string]interface{}{
		"parent": op.Parent,
		"name":   op.Name,
	})

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if op.Parent != fs.root.id || op.Name != fs.file.name {
		return fuse.ENOENT
	}

	op.Entry.Child = fs.file.id
	op.Entry.Attributes = fs.file.attrs
	op.Entry.AttributesExpiration = fs.expiration()
	op.Entry.EntryExpiration = op.Entry.AttributesExpiration

	return nil
}

func (fs *fileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	fs.log.Debug("FUSE.GetInodeAttributes", map[string]interface{}{
		"inode": op.Inode,
	})

	fs.mu.Lock()
	defer fs.mu.Unlock()

	switch op.Inode {
	case fs.root.id:
		op.Attributes = fs.root.attrs
	case fs.file.id:
		op.Attributes = fs.file.attrs
	default:
		return fuse.ENOENT
	}

	op.AttributesExpiration = fs.expiration()

	return nil
}

func (fs *fileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	fs.log.Debug("FUSE.OpenDir", map[string]interface{}{
		"inode":  op.Inode,
		"handle": op.Handle,
	})

	if op.Inode != fs.root.id {
		return fuse.ENOENT
	}

	return nil
}

func (fs *fileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.log.Debug("FUSE.ReadDir", map[string]interface{}{
		"inode":  op.Inode,
		"handle": op.Handle,
		"offset": op.Offset,
	})

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if op.Inode != fs.root.id {
		return fuse.ENOENT
	}

	// The whole listing fits into the first call; any later offset means the
	// kernel has already consumed it.
	if op.Offset != 0 {
		return nil
	}

	entries := []fuseutil.Dirent{
		fs.root.dirent(1, "."),
		fs.root.dirent(2, ".."),
		fs.file.dirent(3, fs.file.name),
	}

	var n int
	for _, entry := range entries {
		tmp := fuseutil.WriteDirent(op.Dst[n:], entry)
		if tmp == 0 {
			break
		}

		n += tmp
	}

	op.BytesRead = n

	return nil
}

func (fs *fileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

func (fs *fileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	fs.log.Debug("FUSE.OpenFile", map[string]interface{}{
		"inode":  op.Inode,
		"handle": op.Handle,
	})

	if op.Inode != fs.file.id {
		return fuse.ENOENT
	}

	// The resource is assumed not to change while mounted.
	op.KeepPageCache = true

	return nil
}

func (fs *fileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	fs.log.Trace("FUSE.ReadFile", map[string]interface{}{
		"inode":  op.Inode,
		"handle": op.Handle,
		"offset": op.Offset,
		"size":   len(op.Dst),
	})

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if op.Inode != fs.file.id {
		return fuse.ENOENT
	}

	size := len(op.Dst)
	if len(fs.buffer) < size {
		fs.buffer = make([]byte, size)
	}

	n, err := fs.remote.ReadAt(fs.buffer[:size], op.Offset, fs.timeout)
	if err != nil {
		code := errno(err)

		fs.log.Error("FUSE.ReadFile", map[string]interface{}{
			"offset": op.Offset,
			"size":   size,
			"errno":  code.Error(),
			"error":  err.Error(),
		})

		return code
	}

	op.BytesRead = copy(op.Dst, fs.buffer[:n])

	return nil
}

func (fs *fileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return nil
}
