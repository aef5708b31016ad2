package input

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/authtail/authtail/internal/domain"
)

// ConnState is the remote session lifecycle: DISCONNECTED -> CONNECTING ->
// STREAMING, back to DISCONNECTED on any transport error.
type ConnState string

const (
	StateDisconnected ConnState = "DISCONNECTED"
	StateConnecting   ConnState = "CONNECTING"
	StateStreaming    ConnState = "STREAMING"
)

type SSHConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	KeyFile        string
	LogPath        string
	ConnectTimeout time.Duration
	Backoff        time.Duration
	BufferSize     int
}

// Validate reports configuration faults. These are fatal at startup: a
// source with no usable credentials must never begin its retry loop.
func (c *SSHConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("ssh host required")
	}
	if c.User == "" {
		return fmt.Errorf("ssh user required")
	}
	if c.Password == "" && c.KeyFile == "" {
		return fmt.Errorf("ssh password or key file required")
	}
	return nil
}

func (c *SSHConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 22
	}
	if c.LogPath == "" {
		c.LogPath = "/var/log/auth.log"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = 5 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
}

// SSHSource follows a remote log file over an SSH session running
// `tail -n 0 -F`. Transport failures are recoverable: the source logs,
// closes cleanly, waits out the backoff and reconnects, indefinitely.
type SSHSource struct {
	cfg SSHConfig

	mu          sync.Mutex
	state       ConnState
	connectedAt time.Time
	client      *ssh.Client
	running     bool
	stopChan    chan struct{}
}

func NewSSHSource(cfg SSHConfig) (*SSHSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &SSHSource{
		cfg:      cfg,
		state:    StateDisconnected,
		stopChan: make(chan struct{}),
	}, nil
}

func (s *SSHSource) Start(ctx context.Context) (<-chan domain.RawLine, <-chan error) {
	lineChan := make(chan domain.RawLine, s.cfg.BufferSize)
	errChan := make(chan error, 10)

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		close(lineChan)
		return lineChan, errChan
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx, lineChan, errChan)

	return lineChan, errChan
}

func (s *SSHSource) run(ctx context.Context, lineChan chan<- domain.RawLine, errChan chan<- error) {
	defer close(lineChan)
	defer close(errChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		s.setState(StateConnecting)
		client, stdout, err := s.connect()
		if err != nil {
			s.setState(StateDisconnected)
			log.Warn().Err(err).
				Str("host", s.cfg.Host).
				Dur("backoff", s.cfg.Backoff).
				Msg("SSH connect failed, retrying")
			s.reportErr(errChan, err)
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.client = client
		s.connectedAt = time.Now()
		s.state = StateStreaming
		s.mu.Unlock()

		log.Info().
			Str("host", s.cfg.Host).
			Int("port", s.cfg.Port).
			Str("file", s.cfg.LogPath).
			Msg("SSH session streaming")

		streamErr := s.stream(ctx, stdout, lineChan)

		client.Close()
		s.mu.Lock()
		s.client = nil
		s.state = StateDisconnected
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		log.Warn().Err(streamErr).
			Str("host", s.cfg.Host).
			Dur("backoff", s.cfg.Backoff).
			Msg("SSH stream ended, reconnecting")
		s.reportErr(errChan, streamErr)
		if !s.sleep(ctx) {
			return
		}
	}
}

// connect dials, authenticates and starts the follow command within the
// configured timeout. Any failure here counts as a transport fault.
func (s *SSHSource) connect() (*ssh.Client, io.Reader, error) {
	auth, err := s.authMethods()
	if err != nil {
		return nil, nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.cfg.ConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("new session: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}

	// -n 0: start at end of file, only new content. -F survives rotation.
	cmd := fmt.Sprintf("tail -n 0 -F %s", s.cfg.LogPath)
	if err := session.Start(cmd); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("start %q: %w", cmd, err)
	}

	return client, stdout, nil
}

func (s *SSHSource) authMethods() ([]ssh.AuthMethod, error) {
	if s.cfg.KeyFile != "" {
		key, err := os.ReadFile(s.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(s.cfg.Password)}, nil
}

// stream reads raw chunks and hands completed, non-blank lines downstream.
// Returns when the transport fails or the source is stopped; stopping
// closes the client, which unblocks the pending Read.
func (s *SSHSource) stream(ctx context.Context, stdout io.Reader, lineChan chan<- domain.RawLine) error {
	var lb lineBuffer
	buf := make([]byte, 4096)

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			var dropped bool
			lb.Feed(buf[:n], func(line string) {
				if len(line) > domain.MaxLineLength {
					line = line[:domain.MaxLineLength]
				}
				raw := domain.RawLine{Text: line, ReceivedAt: time.Now().UTC()}
				select {
				case lineChan <- raw:
				case <-ctx.Done():
					dropped = true
				case <-s.stopChan:
					dropped = true
				}
			})
			if dropped {
				return fmt.Errorf("source stopped")
			}
		}
		if err != nil {
			return fmt.Errorf("read remote stream: %w", err)
		}
	}
}

func (s *SSHSource) sleep(ctx context.Context) bool {
	select {
	case <-time.After(s.cfg.Backoff):
		return true
	case <-ctx.Done():
		return false
	case <-s.stopChan:
		return false
	}
}

func (s *SSHSource) reportErr(errChan chan<- error, err error) {
	select {
	case errChan <- err:
	default:
	}
}

func (s *SSHSource) setState(state ConnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *SSHSource) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectedSince returns when the current session was established, zero if
// not streaming.
func (s *SSHSource) ConnectedSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return time.Time{}
	}
	return s.connectedAt
}

func (s *SSHSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopChan)

	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
