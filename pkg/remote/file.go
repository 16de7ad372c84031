package remote

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"

	"github.com/spf13/afero"
)

type fsObject struct {
	file afero.File
	name string
	size int64
}

func openFile(ctx context.Context, u *url.URL) (Object, error) {
	return OpenFs(afero.NewReadOnlyFs(afero.NewOsFs()), u.Path)
}

// OpenFs exposes a regular file of fs as an Object.
func OpenFs(fs afero.Fs, name string) (Object, error) {
	info, err := fs.Stat(name)
	if err != nil {
		return nil, fsError(err, "could not stat %v", name)
	}

	if !info.Mode().IsRegular() {
		return nil, newError(KindUnsupported, nil, "%v is not a regular file", name)
	}

	file, err := fs.Open(name)
	if err != nil {
		return nil, fsError(err, "could not open %v", name)
	}

	return &fsObject{
		file: file,
		name: info.Name(),
		size: info.Size(),
	}, nil
}

func (o *fsObject) Name() string {
	return o.name
}

func (o *fsObject) Size() int64 {
	return o.size
}

func (o *fsObject) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := o.file.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fsError(err, "could not read %v bytes at offset %v", len(p), off)
	}

	return n, nil
}

func fsError(err error, format string, args ...interface{}) *Error {
	switch {
	case errors.Is(err, os.ErrPermission):
		return newError(KindAccess, err, format, args...)
	case errors.Is(err, os.ErrNotExist):
		return newError(KindNotFound, err, format, args...)
	default:
		return newError(KindGeneric, err, format, args...)
	}
}
