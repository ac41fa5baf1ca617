package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// toolProcess is a running media tool with lifecycle management.
type toolProcess struct {
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// Wait blocks until the process completes and returns any error.
func (p *toolProcess) Wait() error {
	<-p.done
	return p.err
}

// Stderr returns the captured stderr output (available after Wait).
func (p *toolProcess) Stderr() string {
	return p.stderr.String()
}

// startTool starts a media tool and returns a handle. The caller is
// responsible for calling Wait to clean up.
func startTool(ctx context.Context, bin string, args []string) (*toolProcess, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	p := &toolProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: failed to start: %w", bin, err)
	}

	go func() {
		defer close(p.done)
		p.err = cmd.Wait()
		if p.err != nil {
			p.err = &toolError{
				Bin:    bin,
				Args:   args,
				Stderr: p.stderr.String(),
				Err:    p.err,
			}
		}
	}()

	return p, nil
}

// runTool executes a tool, waits for completion, and returns its stdout.
func runTool(ctx context.Context, bin string, args []string) ([]byte, error) {
	proc, err := startTool(ctx, bin, args)
	if err != nil {
		return nil, err
	}
	if err := proc.Wait(); err != nil {
		return nil, err
	}
	return proc.stdout.Bytes(), nil
}

// toolError is a tool execution error with the invocation context attached.
type toolError struct {
	Bin    string
	Args   []string
	Stderr string
	Err    error
}

// Error keeps just the last few stderr lines; the full output is in Stderr.
func (e *toolError) Error() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	tail := strings.Join(lines, "\n")

	if tail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Bin, e.Err, tail)
	}
	return fmt.Sprintf("%s: %v", e.Bin, e.Err)
}

func (e *toolError) Unwrap() error {
	return e.Err
}
