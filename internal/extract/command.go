package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"media-catalog/internal/logging"
)

// CommandExtractor shells out to an external probe tool, passing the
// file path as the final argument and capturing stdout as the metadata
// blob. ffprobe and exiftool both fit this shape:
//
//	ffprobe -v quiet -print_format json -show_format -show_streams <path>
//	exiftool -json <path>
type CommandExtractor struct {
	name    string
	args    []string
	timeout time.Duration
}

// NewCommandExtractor builds an extractor from a command line such as
// "ffprobe -v quiet -print_format json -show_format -show_streams".
// The per-file timeout bounds a single invocation.
func NewCommandExtractor(commandLine string, timeout time.Duration) (*CommandExtractor, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty extract command")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("extract command %q not found: %w", fields[0], err)
	}
	return &CommandExtractor{
		name:    fields[0],
		args:    fields[1:],
		timeout: timeout,
	}, nil
}

// Extract runs the external tool against path. The invocation is killed
// when the timeout elapses or ctx is cancelled.
func (e *CommandExtractor) Extract(ctx context.Context, path string) ([]byte, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), e.args...), path)
	cmd := exec.CommandContext(ctx, e.name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s timed out after %s on %s", e.name, e.timeout, path)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s failed on %s: %s", e.name, path, msg)
	}

	logging.Debug("%s probed %s in %v", e.name, path, time.Since(start))
	return stdout.Bytes(), nil
}
