package supervisor

import (
	"bytes"
	"io"
	"sync"
)

// ReadinessToken is written to stderr once the filesystem is mounted. It must
// be the first bytes on the stream.
const ReadinessToken = "✓"

// Gate holds back diagnostic output until the mount process has either become
// ready or failed, so the supervisor never mistakes a log line for the token.
type Gate struct {
	mu   sync.Mutex
	out  io.Writer
	buf  bytes.Buffer
	open bool
}

func NewGate(out io.Writer) *Gate {
	return &Gate{out: out}
}

func (g *Gate) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return g.out.Write(p)
	}

	return g.buf.Write(p)
}

// Ready writes the token, then everything buffered so far. Later calls are
// no-ops.
func (g *Gate) Ready() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return nil
	}
	g.open = true

	if _, err := io.WriteString(g.out, ReadinessToken); err != nil {
		return err
	}

	_, err := g.buf.WriteTo(g.out)

	return err
}

// Fail writes everything buffered so far, then message.
func (g *Gate) Fail(message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.open = true

	if _, err := g.buf.WriteTo(g.out); err != nil {
		return err
	}

	_, err := io.WriteString(g.out, message)

	return err
}
