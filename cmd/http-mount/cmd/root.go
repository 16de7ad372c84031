package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakWai01/http-mount/pkg/mount"
	"github.com/JakWai01/http-mount/pkg/remote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	uriFlag        = "uri"
	mountpointFlag = "mountpoint"
	blockSizeFlag  = "block-size"
	cacheSizeFlag  = "cache-size"
	timeoutFlag    = "timeout"
	noForkFlag     = "no-fork"
	licensesFlag   = "licenses"
	verboseFlag    = "verbose"
	logFileFlag    = "log-file"
	allowOtherFlag = "allow-other"

	envPrefix = "http_mount"
)

const (
	exitFailure     = 1
	exitOpenRemote  = 2
	exitInitSession = 3
)

// exitError is returned once the failure has already been reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func newRootCmd(name string, v *viper.Viper, stdout io.Writer, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: "Mount a remote file as a read-only local file",
		Long: fmt.Sprintf(`%v mounts a single remote resource as a read-only file inside a FUSE filesystem.

Supported URIs are http://, https://, s3://host/bucket/key, s3+http://host/bucket/key
and file:///path. Every flag can also be set as an environment variable, e.g.
HTTP_MOUNT_CACHE_SIZE=536870912.

For more information, please visit https://github.com/JakWai01/http-mount`, name),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v.GetBool(licensesFlag) {
				_, err := io.WriteString(stdout, licenses)

				return err
			}

			if err := validate(v); err != nil {
				return err
			}

			if v.GetBool(noForkFlag) {
				return foreground(v, stderr)
			}

			return supervise(v, stderr)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().String(uriFlag, "", "Remote resource to mount (required)")
	cmd.PersistentFlags().String(mountpointFlag, "", "Directory to mount the filesystem at (required)")
	cmd.PersistentFlags().Int(blockSizeFlag, remote.DefaultBlockSize, "Size of a cached block in bytes")
	cmd.PersistentFlags().Int(cacheSizeFlag, remote.DefaultBlockSize*remote.DefaultChunkCount, "Size of the block cache in bytes")
	cmd.PersistentFlags().Int(timeoutFlag, 60, "Timeout for opening the resource and for each read, in seconds")
	cmd.PersistentFlags().Bool(noForkFlag, false, "Stay in the foreground instead of detaching once mounted")
	cmd.PersistentFlags().Bool(licensesFlag, false, "Print the licenses of the bundled libraries")
	cmd.PersistentFlags().IntP(verboseFlag, "v", 2, fmt.Sprintf("Verbosity level (default %v)", 2))
	cmd.PersistentFlags().String(logFileFlag, "", "Write logs to this file instead of stderr")
	cmd.PersistentFlags().Bool(allowOtherFlag, false, "Allow other users to access the filesystem")

	// Flags are registered above, so binding cannot fail.
	_ = v.BindPFlags(cmd.PersistentFlags())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func validate(v *viper.Viper) error {
	switch {
	case v.GetString(uriFlag) == "":
		return errors.New("you need to specify a URI")
	case v.GetString(mountpointFlag) == "":
		return errors.New("you need to specify a mountpoint")
	case v.GetInt(blockSizeFlag) <= 0:
		return fmt.Errorf("invalid block-size %q", v.GetString(blockSizeFlag))
	case v.GetInt(cacheSizeFlag) < 0:
		return fmt.Errorf("invalid cache-size %q", v.GetString(cacheSizeFlag))
	case v.GetInt(timeoutFlag) <= 0:
		return fmt.Errorf("invalid timeout %q", v.GetString(timeoutFlag))
	}

	return nil
}

// Execute runs the command line of the current process and returns its exit
// code.
func Execute() int {
	return run(filepath.Base(os.Args[0]), os.Args[1:], os.Stdout, os.Stderr)
}

func run(name string, args []string, stdout io.Writer, stderr io.Writer) int {
	cmd := newRootCmd(name, viper.New(), stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	fmt.Fprintf(stderr, "Error: %v\n\n%v", err, cmd.UsageString())

	return exitFailure
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, mount.ErrOpenRemote):
		return exitOpenRemote
	case errors.Is(err, mount.ErrInitSession):
		return exitInitSession
	default:
		return exitFailure
	}
}
