package output

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/authtail/authtail/internal/domain"
)

// JSONSink writes classified events as JSON lines to a file or stdout.
// Writes are buffered and flushed once a second, plus on Close.
type JSONSink struct {
	bufWriter *bufio.Writer
	file      *os.File
	encoder   *json.Encoder
	mu        sync.Mutex
	stopFlush chan struct{}
	stopOnce  sync.Once
}

type JSONSinkConfig struct {
	FilePath string
	Stdout   bool
	Pretty   bool
}

func NewJSONSink(config JSONSinkConfig) (*JSONSink, error) {
	var writer io.Writer
	var file *os.File

	if config.Stdout {
		writer = os.Stdout
	} else if config.FilePath != "" {
		var err error
		file, err = os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		writer = file
	} else {
		writer = io.Discard
	}

	const bufferSize = 64 * 1024
	s := &JSONSink{
		bufWriter: bufio.NewWriterSize(writer, bufferSize),
		file:      file,
		stopFlush: make(chan struct{}),
	}
	s.encoder = json.NewEncoder(s.bufWriter)
	if config.Pretty {
		s.encoder.SetIndent("", "  ")
	}

	go s.periodicFlush()
	return s, nil
}

func (s *JSONSink) periodicFlush() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-s.stopFlush:
			return
		}
	}
}

func (s *JSONSink) Publish(event *domain.Event) {
	if event == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(event); err != nil {
		log.Debug().Err(err).Msg("JSON sink encode failed")
	}
}

func (s *JSONSink) Flush() error {
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

func (s *JSONSink) Close() error {
	s.stopOnce.Do(func() { close(s.stopFlush) })
	if err := s.Flush(); err != nil {
		return err
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
