package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/JakWai01/http-mount/internal/logging"
	"github.com/JakWai01/http-mount/pkg/mount"
	"github.com/JakWai01/http-mount/pkg/remote"
	"github.com/JakWai01/http-mount/pkg/supervisor"
	"github.com/spf13/viper"
)

// foreground mounts in this process. Diagnostics are held back by a gate until
// the mount either succeeds or fails, so the token stays the first bytes on
// stderr.
func foreground(v *viper.Viper, stderr io.Writer) error {
	// Once the supervisor has exited, writes to stderr hit a closed pipe.
	signal.Ignore(syscall.SIGPIPE)

	gate := supervisor.NewGate(stderr)

	var sink io.Writer = gate
	if path := v.GetString(logFileFlag); path != "" {
		w := logging.NewFileWriter(path)
		defer w.Close()

		sink = w
	}

	l := logging.NewJSONLogger(v.GetInt(verboseFlag), sink)

	err := mount.Run(context.Background(), mount.Config{
		URI:        v.GetString(uriFlag),
		Mountpoint: v.GetString(mountpointFlag),
		BlockSize:  v.GetInt(blockSizeFlag),
		CacheSize:  v.GetInt(cacheSizeFlag),
		Timeout:    time.Duration(v.GetInt(timeoutFlag)) * time.Second,
		Uid:        uint32(os.Getuid()),
		Gid:        uint32(os.Getgid()),
		AllowOther: v.GetBool(allowOtherFlag),
		Verbosity:  v.GetInt(verboseFlag),
		Logger:     l,
		LogWriter:  sink,
		OnReady:    gate.Ready,
	})
	if err == nil {
		return nil
	}

	_ = gate.Fail(failureMessage(err))

	return &exitError{code: exitCode(err), err: err}
}

func failureMessage(err error) string {
	var e *remote.Error

	switch {
	case errors.Is(err, mount.ErrOpenRemote) && errors.As(err, &e):
		return fmt.Sprintf("Error %v\n", e)
	case errors.Is(err, mount.ErrInitSession):
		return fmt.Sprintf("Failed to initialize FUSE-filesystem: %v\n", cause(err))
	default:
		return fmt.Sprintf("Error: %v\n", err)
	}
}

// cause drops the sentinel from an error built as fmt.Errorf("%w: %w", sentinel, cause).
func cause(err error) error {
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := u.Unwrap(); len(errs) == 2 {
			return errs[1]
		}
	}

	return err
}

// supervise starts a foreground copy of this program with the resolved
// configuration and exits as soon as it is mounted.
func supervise(v *viper.Viper, stderr io.Writer) error {
	if _, err := supervisor.Fork(childArgs(v)); err != nil {
		var childErr *supervisor.ChildError
		if errors.As(err, &childErr) {
			_, _ = stderr.Write(childErr.Message)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}

		return &exitError{code: exitFailure, err: err}
	}

	return nil
}

// childArgs spells out the resolved configuration as flags, so values taken
// from the environment reach the child too.
func childArgs(v *viper.Viper) []string {
	args := []string{
		"--" + uriFlag + "=" + v.GetString(uriFlag),
		"--" + mountpointFlag + "=" + v.GetString(mountpointFlag),
		"--" + blockSizeFlag + "=" + strconv.Itoa(v.GetInt(blockSizeFlag)),
		"--" + cacheSizeFlag + "=" + strconv.Itoa(v.GetInt(cacheSizeFlag)),
		"--" + timeoutFlag + "=" + strconv.Itoa(v.GetInt(timeoutFlag)),
		"--" + verboseFlag + "=" + strconv.Itoa(v.GetInt(verboseFlag)),
		"--" + noForkFlag,
	}

	if path := v.GetString(logFileFlag); path != "" {
		args = append(args, "--"+logFileFlag+"="+path)
	}

	if v.GetBool(allowOtherFlag) {
		args = append(args, "--"+allowOtherFlag)
	}

	return args
}
