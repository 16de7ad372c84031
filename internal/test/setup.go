package internal

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/JakWai01/http-mount/internal/logging"
	"github.com/JakWai01/http-mount/pkg/filesystem"
	"github.com/JakWai01/http-mount/pkg/remote"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/spf13/afero"
)

// TestSetup mounts a filesystem serving one in-memory file in a temporary
// directory.
type TestSetup struct {
	Server      fuse.Server
	MountConfig fuse.MountConfig
	Ctx         context.Context
	Dir         string
	mfs         *fuse.MountedFileSystem
}

func (t *TestSetup) Setup(l logging.StructuredLogger, name string, data []byte) error {
	cfg := t.MountConfig
	cfg.ReadOnly = true

	return t.initialize(context.Background(), &cfg, l, name, data)
}

func (t *TestSetup) initialize(ctx context.Context, config *fuse.MountConfig, l logging.StructuredLogger, name string, data []byte) error {
	t.Ctx = ctx

	if config.OpContext == nil {
		config.OpContext = ctx
	}

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, path.Join("/", name), data, 0644); err != nil {
		return fmt.Errorf("WriteFile: %v", err)
	}

	object, err := remote.OpenFs(fs, path.Join("/", name))
	if err != nil {
		return fmt.Errorf("OpenFs: %v", err)
	}

	t.Server = filesystem.NewFileSystem(uint32(os.Getuid()), uint32(os.Getgid()), remote.NewFile(object), time.Minute, l, timeutil.RealClock())

	t.Dir, err = os.MkdirTemp("", "fuse_test")
	if err != nil {
		return fmt.Errorf("TempDir: %v", err)
	}

	t.mfs, err = fuse.Mount(t.Dir, t.Server, config)
	if err != nil {
		_ = os.Remove(t.Dir)

		return fmt.Errorf("Mount: %v", err)
	}

	return nil
}

func (t *TestSetup) Teardown() error {
	if err := fuse.Unmount(t.Dir); err != nil {
		return fmt.Errorf("Unmount: %v", err)
	}

	if err := t.mfs.Join(t.Ctx); err != nil {
		return fmt.Errorf("Join: %v", err)
	}

	return os.Remove(t.Dir)
}
