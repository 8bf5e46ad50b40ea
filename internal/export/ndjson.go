// Package export provides optional span sinks behind the store: a
// line-delimited JSON file appender and a structured-log exporter.
//
// Exporters absorb their own failures. A span that cannot be written is
// dropped with a debug log; nothing propagates back into the tracer or the
// instrumented application.
package export

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fnscope/fnscope/internal/trace"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// Appender writes spans as line-delimited JSON to a file, rotating once the
// file exceeds rotateBytes. Rotated files are optionally gzip-compressed in
// the background.
type Appender struct {
	path        string
	rotateBytes int64
	compress    bool
	logger      *zap.Logger

	mu   sync.Mutex
	f    *os.File
	size int64
}

// NewAppender opens (or creates) the span log at path. rotateBytes <= 0
// disables rotation.
func NewAppender(path string, rotateBytes int64, compress bool, logger *zap.Logger) (*Appender, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening span log %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stating span log %s: %w", path, err)
	}

	return &Appender{
		path:        path,
		rotateBytes: rotateBytes,
		compress:    compress,
		logger:      logger,
		f:           f,
		size:        info.Size(),
	}, nil
}

// Append writes one span. It never returns an error: write failures are
// logged at debug level and the span is dropped from the file (the store
// still holds it).
func (a *Appender) Append(span *trace.Span) {
	line, err := sonic.Marshal(span)
	if err != nil {
		a.logger.Debug("span marshal failed", zap.Error(err))
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.f == nil {
		return
	}
	n, err := a.f.Write(line)
	a.size += int64(n)
	if err != nil {
		a.logger.Debug("span log write failed", zap.Error(err))
		return
	}

	if a.rotateBytes > 0 && a.size >= a.rotateBytes {
		a.rotateLocked()
	}
}

// rotateLocked renames the current file aside and reopens a fresh one.
// Caller holds the lock.
func (a *Appender) rotateLocked() {
	rotated := fmt.Sprintf("%s.%s", a.path, time.Now().UTC().Format("20060102T150405"))

	a.f.Close()
	if err := os.Rename(a.path, rotated); err != nil {
		a.logger.Warn("span log rotation failed", zap.Error(err))
	} else if a.compress {
		go a.compressFile(rotated)
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		a.logger.Warn("span log reopen failed", zap.Error(err))
		a.f = nil
		a.size = 0
		return
	}
	a.f = f
	a.size = 0
}

func (a *Appender) compressFile(path string) {
	src, err := os.Open(path)
	if err != nil {
		a.logger.Debug("compress open failed", zap.Error(err))
		return
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		a.logger.Debug("compress create failed", zap.Error(err))
		return
	}
	defer dst.Close()

	gw := gzip.NewWriter(dst)
	if _, err := io.Copy(gw, src); err != nil {
		a.logger.Debug("compress copy failed", zap.Error(err))
		gw.Close()
		return
	}
	if err := gw.Close(); err != nil {
		a.logger.Debug("compress flush failed", zap.Error(err))
		return
	}
	os.Remove(path)
}

// Close flushes and closes the underlying file.
func (a *Appender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}
