package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// SpillWriter appends payloads the pool could not queue to a JSON-lines
// file. The format is the replay format, so a spill file can be fed back
// with `sentinel replay`.
type SpillWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
	count  atomic.Int64
	path   string
}

func NewSpillWriter(path string) (*SpillWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open spill file: %w", err)
	}

	log.Info().Str("path", path).Msg("Spill writer initialized")

	return &SpillWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

func (w *SpillWriter) WritePayload(req *domain.RequestPayload) error {
	line, err := json.Marshal(req)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(line); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}

	if w.count.Add(1)%100 == 0 {
		if err := w.writer.Flush(); err != nil {
			return err
		}
		return w.file.Sync()
	}
	return nil
}

func (w *SpillWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *SpillWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	if count := w.count.Load(); count > 0 {
		log.Warn().
			Int64("spill_count", count).
			Str("path", w.path).
			Msg("Spill file contains unevaluated payloads")
	}
	return w.file.Close()
}

func (w *SpillWriter) Count() int64 {
	return w.count.Load()
}

// QuarantineWriter records payloads whose evaluation panicked.
type QuarantineWriter struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
	count  atomic.Int64
	path   string
}

type QuarantineEntry struct {
	Timestamp  time.Time              `json:"timestamp"`
	WorkerID   int                    `json:"worker_id"`
	PanicError string                 `json:"panic_error"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Payload    *domain.RequestPayload `json:"payload"`
}

func NewQuarantineWriter(path string) (*QuarantineWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open quarantine file: %w", err)
	}

	log.Info().Str("path", path).Msg("Quarantine writer initialized")

	return &QuarantineWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 16*1024),
		path:   path,
	}, nil
}

// WriteToxicPayload writes and syncs one record immediately; a panicking
// process may not get another chance.
func (w *QuarantineWriter) WriteToxicPayload(workerID int, panicErr any, req *domain.RequestPayload) error {
	panicStr := "unknown panic"
	switch v := panicErr.(type) {
	case nil:
	case error:
		panicStr = v.Error()
	case string:
		panicStr = v
	default:
		panicStr = fmt.Sprintf("%v", v)
	}

	line, err := json.Marshal(QuarantineEntry{
		Timestamp:  time.Now(),
		WorkerID:   workerID,
		PanicError: panicStr,
		StackTrace: string(debug.Stack()),
		Payload:    req,
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(line); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}

	log.Warn().
		Int("worker_id", workerID).
		Str("panic", panicStr).
		Int64("quarantine_count", w.count.Add(1)).
		Msg("Payload quarantined")
	return nil
}

func (w *QuarantineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	if count := w.count.Load(); count > 0 {
		log.Warn().
			Int64("quarantine_count", count).
			Str("path", w.path).
			Msg("Quarantine file contains payloads requiring analysis")
	}
	return w.file.Close()
}

func (w *QuarantineWriter) Count() int64 {
	return w.count.Load()
}
