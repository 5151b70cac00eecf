package input

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

// ReplayConfig controls how a request file is read.
type ReplayConfig struct {
	BufferSize int
	// Follow keeps the file open and waits for appended lines. Without it
	// the payload channel closes at end of file.
	Follow bool
	// FromBeginning starts at offset zero when following; a one-shot replay
	// always starts there.
	FromBeginning bool
}

// ReplayTailer reads request payloads from a file, one per line, in any
// format the configured parser accepts.
type ReplayTailer struct {
	filepath string
	parser   ports.RequestParser
	config   ReplayConfig
	tail     *tail.Tail
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}

	lines     atomic.Int64
	rejected  atomic.Int64
	truncated atomic.Int64
}

func NewReplayTailer(filepath string, parser ports.RequestParser, config ReplayConfig) *ReplayTailer {
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if !config.Follow {
		config.FromBeginning = true
	}
	return &ReplayTailer{
		filepath: filepath,
		parser:   parser,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

func (t *ReplayTailer) Start(ctx context.Context) (<-chan *domain.RequestPayload, <-chan error) {
	out := make(chan *domain.RequestPayload, t.config.BufferSize)
	errChan := make(chan error, 10)

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		close(out)
		close(errChan)
		return out, errChan
	}
	t.running = true
	t.stopChan = make(chan struct{})
	stop := t.stopChan
	t.mu.Unlock()

	go func() {
		defer close(out)
		defer close(errChan)
		defer t.markStopped()

		whence := io.SeekEnd
		if t.config.FromBeginning {
			whence = io.SeekStart
		}

		tl, err := tail.TailFile(t.filepath, tail.Config{
			Follow:    t.config.Follow,
			ReOpen:    t.config.Follow,
			MustExist: !t.config.Follow,
			Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
			Logger:    tail.DiscardingLogger,
		})
		if err != nil {
			log.Error().Err(err).Str("file", t.filepath).Msg("Failed to open replay file")
			errChan <- err
			return
		}
		t.mu.Lock()
		t.tail = tl
		t.mu.Unlock()
		defer tl.Cleanup()

		log.Info().
			Str("file", t.filepath).
			Bool("follow", t.config.Follow).
			Str("format", t.parser.Format()).
			Msg("Started request replay")

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case line, ok := <-tl.Lines:
				if !ok {
					log.Info().Int64("lines", t.lines.Load()).Int64("rejected", t.rejected.Load()).Msg("Replay file exhausted")
					return
				}
				if line.Err != nil {
					log.Warn().Err(line.Err).Msg("Error reading replay line")
					select {
					case errChan <- line.Err:
					default:
					}
					continue
				}
				if line.Text == "" {
					continue
				}
				t.lines.Add(1)

				text := line.Text
				if len(text) > MaxLineLength {
					text = text[:MaxLineLength]
					t.truncated.Add(1)
					log.Warn().
						Int("original_size", len(line.Text)).
						Int("truncated_to", MaxLineLength).
						Msg("Truncated oversized replay line")
				}

				req, err := t.parser.Parse(text)
				if err != nil {
					t.rejected.Add(1)
					log.Debug().Err(err).Int("line", int(line.Num)).Msg("Skipping unparseable replay line")
					continue
				}

				select {
				case out <- req:
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
			}
		}
	}()

	return out, errChan
}

func (t *ReplayTailer) markStopped() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

func (t *ReplayTailer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	close(t.stopChan)
	t.running = false

	if t.tail != nil {
		return t.tail.Stop()
	}
	return nil
}

func (t *ReplayTailer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Lines returns the number of non-empty lines read so far.
func (t *ReplayTailer) Lines() int64 { return t.lines.Load() }

func (t *ReplayTailer) Rejected() int64 { return t.rejected.Load() }

func (t *ReplayTailer) Truncated() int64 { return t.truncated.Load() }
