package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JakWai01/http-mount/internal/logging"
	"github.com/JakWai01/http-mount/pkg/filesystem"
	"github.com/JakWai01/http-mount/pkg/remote"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
)

const subtype = "http-mount"

var (
	ErrOpenRemote  = errors.New("could not open remote resource")
	ErrInitSession = errors.New("could not initialize FUSE session")
)

type Config struct {
	URI        string
	Mountpoint string

	BlockSize int
	CacheSize int
	Timeout   time.Duration

	Uid        uint32
	Gid        uint32
	AllowOther bool

	Verbosity int
	Logger    logging.StructuredLogger

	// FUSE error and debug messages go here.
	LogWriter io.Writer

	// Called once the kernel has accepted the mount.
	OnReady func() error
}

// ChunkCount is the number of cache blocks that fit into cacheSize, at least one.
func ChunkCount(cacheSize int, blockSize int) int {
	if blockSize <= 0 {
		return 1
	}

	if n := cacheSize / blockSize; n > 1 {
		return n
	}

	return 1
}

// Run mounts cfg.URI at cfg.Mountpoint and serves it until the filesystem is
// unmounted or the process receives SIGINT or SIGTERM.
func Run(ctx context.Context, cfg Config) error {
	file, err := remote.Open(cfg.URI, cfg.Timeout)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenRemote, err)
	}

	cfg.Logger.Debug("Remote.Open", map[string]interface{}{
		"uri":  cfg.URI,
		"name": file.Name(),
		"size": file.Size(),
	})

	chunkCount := ChunkCount(cfg.CacheSize, cfg.BlockSize)
	if err := file.AdjustCacheSize(chunkCount, cfg.BlockSize); err != nil {
		return fmt.Errorf("%w: %w", ErrOpenRemote, err)
	}

	cfg.Logger.Debug("Remote.AdjustCacheSize", map[string]interface{}{
		"chunkCount": chunkCount,
		"blockSize":  cfg.BlockSize,
	})

	server := filesystem.NewFileSystem(cfg.Uid, cfg.Gid, file, cfg.Timeout, cfg.Logger, timeutil.RealClock())

	mfs, err := fuse.Mount(cfg.Mountpoint, server, mountConfig(cfg))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitSession, err)
	}

	if cfg.OnReady != nil {
		if err := cfg.OnReady(); err != nil {
			if err := fuse.Unmount(cfg.Mountpoint); err != nil {
				cfg.Logger.Error("Mount.Unmount", map[string]interface{}{
					"mountpoint": cfg.Mountpoint,
					"err":        err.Error(),
				})
			}

			return fmt.Errorf("%w: %w", ErrInitSession, err)
		}
	}

	cfg.Logger.Info("Mount.Ready", map[string]interface{}{
		"uri":        cfg.URI,
		"mountpoint": cfg.Mountpoint,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			cfg.Logger.Info("Mount.Unmount", map[string]interface{}{
				"mountpoint": cfg.Mountpoint,
			})

			if err := fuse.Unmount(cfg.Mountpoint); err != nil {
				cfg.Logger.Error("Mount.Unmount", map[string]interface{}{
					"mountpoint": cfg.Mountpoint,
					"err":        err.Error(),
				})
			}
		case <-done:
		}
	}()

	// Join waits for the unmount itself, not for ctx.
	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("could not serve %v: %w", cfg.Mountpoint, err)
	}

	return nil
}

func mountConfig(cfg Config) *fuse.MountConfig {
	out := cfg.LogWriter
	if out == nil {
		out = io.Discard
	}

	mc := &fuse.MountConfig{
		FSName:      cfg.URI,
		Subtype:     subtype,
		ReadOnly:    true,
		ErrorLogger: log.New(out, "fuse: ", log.LstdFlags),
		Options:     map[string]string{},
	}

	if cfg.Verbosity >= logging.LevelTrace {
		mc.DebugLogger = log.New(out, "fuse_debug: ", log.LstdFlags|log.Lmicroseconds)
	}

	if cfg.AllowOther {
		mc.Options["allow_other"] = ""
	}

	return mc
}
