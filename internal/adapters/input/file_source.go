package input

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"

	"github.com/authtail/authtail/internal/domain"
)

// FileSource tails a local log file. It exists for agent deployments and
// development, where the monitor runs on the host that owns the log.
type FileSource struct {
	filepath      string
	bufferSize    int
	fromBeginning bool
	mu            sync.Mutex
	tail          *tail.Tail
	running       bool
	stopChan      chan struct{}
}

func NewFileSource(filepath string, bufferSize int) *FileSource {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &FileSource{
		filepath:   filepath,
		bufferSize: bufferSize,
		stopChan:   make(chan struct{}),
	}
}

func (f *FileSource) SetFromBeginning(fromBeginning bool) {
	f.fromBeginning = fromBeginning
}

func (f *FileSource) Start(ctx context.Context) (<-chan domain.RawLine, <-chan error) {
	lineChan := make(chan domain.RawLine, f.bufferSize)
	errChan := make(chan error, 10)

	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		close(lineChan)
		return lineChan, errChan
	}
	f.running = true
	f.stopChan = make(chan struct{})
	f.mu.Unlock()

	go func() {
		defer close(lineChan)
		defer close(errChan)

		whence := 2
		if f.fromBeginning {
			whence = 0
		}

		config := tail.Config{
			Follow:    true,
			ReOpen:    true,
			MustExist: false,
			Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		}

		var err error
		f.mu.Lock()
		f.tail, err = tail.TailFile(f.filepath, config)
		f.mu.Unlock()
		if err != nil {
			log.Error().Err(err).Str("file", f.filepath).Msg("Failed to tail file")
			errChan <- err
			return
		}

		log.Info().Str("file", f.filepath).Msg("Started tailing log file")

		for {
			select {
			case <-ctx.Done():
				return
			case <-f.stopChan:
				return
			case line, ok := <-f.tail.Lines:
				if !ok {
					log.Info().Msg("Tail channel closed")
					return
				}
				if line.Err != nil {
					log.Warn().Err(line.Err).Msg("Error reading line")
					errChan <- line.Err
					continue
				}
				text := line.Text
				if strings.TrimSpace(text) == "" {
					continue
				}
				if len(text) > domain.MaxLineLength {
					text = text[:domain.MaxLineLength]
				}

				select {
				case lineChan <- domain.RawLine{Text: text, ReceivedAt: time.Now().UTC()}:
				case <-ctx.Done():
					return
				case <-f.stopChan:
					return
				}
			}
		}
	}()

	return lineChan, errChan
}

func (f *FileSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return nil
	}
	close(f.stopChan)
	f.running = false

	if f.tail != nil {
		return f.tail.Stop()
	}
	return nil
}
