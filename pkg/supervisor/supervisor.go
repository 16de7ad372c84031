package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

var ErrSpawn = errors.New("could not start mount process")

// ChildError is returned when the mount process exits or closes stderr
// without sending the token. Message holds everything it wrote.
type ChildError struct {
	Message []byte
}

func (e *ChildError) Error() string {
	if msg := bytes.TrimSpace(e.Message); len(msg) > 0 {
		return fmt.Sprintf("mount process failed: %s", msg)
	}

	return "mount process exited without becoming ready"
}

// Wait blocks until r yields len(ReadinessToken) bytes. If they are the token it
// returns true and leaves the rest of r unread. Otherwise it reads r to EOF and
// returns all bytes seen.
func Wait(r io.Reader) (bool, []byte, error) {
	head := make([]byte, len(ReadinessToken))

	n, err := io.ReadFull(r, head)
	if err == nil && string(head) == ReadinessToken {
		return true, nil, nil
	}

	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, head[:n], err
	}

	rest, err := io.ReadAll(r)

	return false, append(head[:n], rest...), err
}

// Fork re-executes the running binary with args and waits for it to become
// ready. See Spawn.
func Fork(args []string) (int, error) {
	bin, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	return Spawn(exec.Command(bin, args...))
}

// Spawn starts cmd in a new session with stdin and stdout bound to the null
// device and reads the handshake from its stderr. On success the child is
// released and keeps running after the caller exits; its pid is returned.
func Spawn(cmd *exec.Cmd) (int, error) {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	defer devNull.Close()

	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	ready, message, err := Wait(stderr)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()

		return 0, fmt.Errorf("%w: could not read child output: %w", ErrSpawn, err)
	}

	if ready {
		pid := cmd.Process.Pid

		if err := cmd.Process.Release(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrSpawn, err)
		}

		return pid, nil
	}

	// Stderr is at EOF, so the child is exiting.
	_ = cmd.Wait()

	return 0, &ChildError{Message: message}
}
