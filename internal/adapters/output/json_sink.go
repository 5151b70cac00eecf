// Package output provides log and metrics output adapters for the gateway.
//
// This package implements output destinations:
//   - JSONLogSink: Buffered JSON lines to file or stdout
//   - PrometheusMetrics: Evaluation observer exported on /metrics
//   - HealthChecker: JSON health report on /healthz
//
// Thread Safety: All implementations are safe for concurrent use.
package output

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

// JSONLogSink writes evaluation log entries as JSON lines.
//
// Features:
//   - Buffered writes for high throughput
//   - Periodic flush every second
//   - Optional filter that keeps blocked entries only
type JSONLogSink struct {
	bufWriter   *bufio.Writer
	file        *os.File
	blockedOnly bool
	mu          sync.Mutex
	encoder     *json.Encoder
	stopFlush   chan struct{}
	closeOnce   sync.Once
	written     atomic.Int64
	failed      atomic.Int64
}

type JSONLogSinkConfig struct {
	FilePath    string // Output file path (empty for discard)
	Stdout      bool
	Pretty      bool
	BlockedOnly bool
}

// NewJSONLogSink opens the destination. Stdout wins over FilePath; with
// neither set entries are discarded. Files are created with mode 0600.
func NewJSONLogSink(config JSONLogSinkConfig) (*JSONLogSink, error) {
	return newJSONLogSink(config, nil)
}

func newJSONLogSink(config JSONLogSinkConfig, w io.Writer) (*JSONLogSink, error) {
	var file *os.File

	switch {
	case w != nil:
	case config.Stdout:
		w = os.Stdout
	case config.FilePath != "":
		var err error
		file, err = os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		w = file
	default:
		w = io.Discard
	}

	const bufferSize = 64 * 1024
	bufWriter := bufio.NewWriterSize(w, bufferSize)

	sink := &JSONLogSink{
		bufWriter:   bufWriter,
		file:        file,
		blockedOnly: config.BlockedOnly,
		stopFlush:   make(chan struct{}),
	}
	sink.encoder = json.NewEncoder(bufWriter)
	if config.Pretty {
		sink.encoder.SetIndent("", "  ")
	}

	go sink.periodicFlush()

	return sink, nil
}

func (s *JSONLogSink) periodicFlush() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				log.Warn().Err(err).Msg("Failed to flush JSON log sink")
			}
		case <-s.stopFlush:
			return
		}
	}
}

func (s *JSONLogSink) Send(ctx context.Context, entry *domain.LogEntry) error {
	if s.blockedOnly && !entry.Blocked() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.Encode(entry); err != nil {
		s.failed.Add(1)
		return err
	}
	s.written.Add(1)
	return nil
}

// OnLogEntry lets the sink subscribe to the evaluator directly.
func (s *JSONLogSink) OnLogEntry(entry *domain.LogEntry) {
	if err := s.Send(context.Background(), entry); err != nil {
		log.Warn().Err(err).Str("entry", entry.ID).Msg("Failed to write log entry")
	}
}

func (s *JSONLogSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bufWriter.Flush(); err != nil {
		return err
	}
	if s.file != nil {
		return s.file.Sync()
	}
	return nil
}

// Close stops periodic flushing, flushes what is buffered and closes the
// file. Calling it twice is safe.
func (s *JSONLogSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopFlush)

		s.mu.Lock()
		defer s.mu.Unlock()

		if err = s.bufWriter.Flush(); err != nil {
			return
		}
		if s.file != nil {
			if err = s.file.Sync(); err != nil {
				return
			}
			err = s.file.Close()
		}
	})
	return err
}

func (s *JSONLogSink) Written() int64 { return s.written.Load() }

func (s *JSONLogSink) Failed() int64 { return s.failed.Load() }

var (
	_ ports.LogSink       = (*JSONLogSink)(nil)
	_ ports.LogSubscriber = (*JSONLogSink)(nil)
)
