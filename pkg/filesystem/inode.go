package filesystem

import (
	"os"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

const FileInodeID fuseops.InodeID = fuseops.RootInodeID + 1

// epoch is reported for every timestamp; the remote resource has none we trust.
var epoch = time.Unix(0, 0)

type inode struct {
	id    fuseops.InodeID
	name  string
	typ   fuseutil.DirentType
	attrs fuseops.InodeAttributes
}

func newRootInode(uid uint32, gid uint32) *inode {
	return &inode{
		id:  fuseops.RootInodeID,
		typ: fuseutil.DT_Directory,
		attrs: fuseops.InodeAttributes{
			Nlink:  2,
			Mode:   0755 | os.ModeDir,
			Atime:  epoch,
			Mtime:  epoch,
			Ctime:  epoch,
			Crtime: epoch,
			Uid:    uid,
			Gid:    gid,
		},
	}
}

func newFileInode(name string, size uint64, uid uint32, gid uint32) *inode {
	return &inode{
		id:   FileInodeID,
		name: name,
		typ:  fuseutil.DT_File,
		attrs: fuseops.InodeAttributes{
			Size:   size,
			Nlink:  1,
			Mode:   0644,
			Atime:  epoch,
			Mtime:  epoch,
			Ctime:  epoch,
			Crtime: epoch,
			Uid:    uid,
			Gid:    gid,
		},
	}
}

func (in *inode) isDir() bool {
	return in.attrs.Mode&os.ModeDir != 0
}

func (in *inode) dirent(offset fuseops.DirOffset, name string) fuseutil.Dirent {
	return fuseutil.Dirent{
		Offset: offset,
		Inode:  in.id,
		Name:   name,
		Type:   in.typ,
	}
}
