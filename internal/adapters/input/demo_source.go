package input

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/authtail/authtail/internal/domain"
)

// DemoSource generates synthetic sshd auth lines at a fixed rate so the
// pipeline can be exercised without a remote host.
type DemoSource struct {
	rate          int
	bufferSize    int
	attackPercent int

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

type DemoConfig struct {
	Rate          int
	BufferSize    int
	AttackPercent int
}

func NewDemoSource(config DemoConfig) *DemoSource {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.AttackPercent <= 0 {
		config.AttackPercent = 30
	}
	return &DemoSource{
		rate:          config.Rate,
		bufferSize:    config.BufferSize,
		attackPercent: config.AttackPercent,
		stopChan:      make(chan struct{}),
	}
}

var demoUsers = []string{"root", "admin", "deploy", "alice", "bob", "git", "postgres"}

var demoAttackLines = []func(user, ip string, port int) string{
	func(u, ip string, p int) string {
		return fmt.Sprintf("Failed password for %s from %s port %d ssh2", u, ip, p)
	},
	func(u, ip string, p int) string {
		return fmt.Sprintf("Failed password for invalid user %s from %s port %d ssh2", u, ip, p)
	},
	func(u, ip string, p int) string {
		return fmt.Sprintf("Invalid user %s from %s port %d", u, ip, p)
	},
	func(u, ip string, _ int) string {
		return fmt.Sprintf("pam_unix(sshd:auth): authentication failure; logname= uid=0 euid=0 tty=ssh ruser= rhost=%s user=%s", ip, u)
	},
	func(_, ip string, p int) string {
		return fmt.Sprintf("Accepted password for root from %s port %d ssh2", ip, p)
	},
}

var demoNormalLines = []func(user, ip string, port int) string{
	func(u, ip string, p int) string {
		return fmt.Sprintf("Accepted publickey for %s from %s port %d ssh2: RSA SHA256:k2hjas", u, ip, p)
	},
	func(u, _ string, _ int) string {
		return fmt.Sprintf("pam_unix(sshd:session): session opened for user %s by (uid=0)", u)
	},
	func(u, _ string, _ int) string {
		return fmt.Sprintf("pam_unix(sshd:session): session closed for user %s", u)
	},
	func(_, ip string, p int) string {
		return fmt.Sprintf("Connection closed by %s port %d [preauth]", ip, p)
	},
	func(u, ip string, p int) string {
		return fmt.Sprintf("Disconnected from user %s %s port %d", u, ip, p)
	},
	func(u, _ string, _ int) string {
		return fmt.Sprintf("sudo: %s : TTY=pts/0 ; PWD=/home/%s ; USER=root ; COMMAND=/usr/bin/apt update", u, u)
	},
}

func (d *DemoSource) Start(ctx context.Context) (<-chan domain.RawLine, <-chan error) {
	lineChan := make(chan domain.RawLine, d.bufferSize)
	errChan := make(chan error, 1)

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		close(lineChan)
		return lineChan, errChan
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.mu.Unlock()

	interval := time.Second / time.Duration(d.rate)

	go func() {
		defer close(lineChan)
		defer close(errChan)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Int("rate", d.rate).Msg("Demo source started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopChan:
				return
			case <-ticker.C:
				line := d.generateLine()
				select {
				case lineChan <- domain.RawLine{Text: line, ReceivedAt: time.Now().UTC()}:
				case <-ctx.Done():
					return
				case <-d.stopChan:
					return
				}
			}
		}
	}()

	return lineChan, errChan
}

func (d *DemoSource) generateLine() string {
	user := demoUsers[rand.Intn(len(demoUsers))]
	ip := fmt.Sprintf("%d.%d.%d.%d", 10+rand.Intn(200), rand.Intn(255), rand.Intn(255), 1+rand.Intn(254))
	port := 1024 + rand.Intn(60000)

	var body string
	if rand.Intn(100) < d.attackPercent {
		body = demoAttackLines[rand.Intn(len(demoAttackLines))](user, ip, port)
	} else {
		body = demoNormalLines[rand.Intn(len(demoNormalLines))](user, ip, port)
	}

	now := time.Now().Format("Jan _2 15:04:05")
	return fmt.Sprintf("%s demo-host sshd[%d]: %s", now, 1000+rand.Intn(9000), body)
}

func (d *DemoSource) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	close(d.stopChan)
	d.running = false
	return nil
}
