package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pysugar/homeauth/internal/session"
)

// TerminalConfirmer asks the confirmation question on a terminal. Anything
// other than y or yes declines.
//
// A prompt cancelled through ctx leaves its read outstanding; the next
// Confirm picks that read up instead of starting another, so at most one
// reader goroutine is ever in flight.
type TerminalConfirmer struct {
	out    io.Writer
	reader *bufio.Reader

	mu      sync.Mutex
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{out: out, reader: bufio.NewReader(in)}
}

func (c *TerminalConfirmer) Confirm(ctx context.Context, p session.PendingConfirmation) (bool, error) {
	fmt.Fprintf(c.out, "%s [y/N]: ", p.Message)

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-c.readLine():
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()

		if res.err != nil && res.line == "" {
			if res.err == io.EOF {
				return false, nil
			}
			return false, fmt.Errorf("read confirmation: %w", res.err)
		}
		switch strings.ToLower(strings.TrimSpace(res.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// readLine returns the outstanding read, starting one if there is none.
func (c *TerminalConfirmer) readLine() <-chan readResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			line, err := c.reader.ReadString('\n')
			ch <- readResult{line: line, err: err}
		}()
		c.pending = ch
	}
	return c.pending
}
