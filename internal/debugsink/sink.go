// File: internal/debugsink/sink.go
package debugsink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Sink receives diagnostic screenshots from the checkout flow. Captures are
// best effort: a sink failure is the caller's to log, never a reason to stop
// a checkout.
type Sink interface {
	// Capture stores one PNG under the given tag and returns a reference
	// (for the file sink, the path) usable in status output.
	Capture(ctx context.Context, tag, processID string, png []byte) (string, error)
}

// FileSink writes captures into a flat directory.
type FileSink struct {
	dir string
	log *zap.Logger
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates the capture directory if needed.
func NewFileSink(dir string, logger *zap.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create debug directory %s: %w", dir, err)
	}
	return &FileSink{
		dir: dir,
		log: logger.Named("debug_sink"),
	}, nil
}

func (s *FileSink) Capture(ctx context.Context, tag, processID string, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(png) == 0 {
		return "", fmt.Errorf("empty capture for tag %q", tag)
	}

	short := processID
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("%s_%s_%s.png", short, tag, time.Now().Format("20060102_150405.000"))
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write capture %s: %w", path, err)
	}
	s.log.Debug("Capture written.", zap.String("tag", tag), zap.String("path", path))
	return path, nil
}

// NopSink discards every capture. Used in tests and when the sink is
// disabled by configuration.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) Capture(context.Context, string, string, []byte) (string, error) {
	return "", nil
}
