// Package heartbeat – poller.go watches the task file by hash-compare
// polling and requests a wake when it changes. Polling avoids an OS watcher
// dependency and behaves the same across platforms and network mounts.
package heartbeat

import (
	"crypto/sha256"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultPollInterval is how often the task file is re-hashed.
const DefaultPollInterval = 15 * time.Second

// FilePoller requests a wake when the watched file's content hash changes.
type FilePoller struct {
	path     string
	interval time.Duration
	wake     *Wake
	logger   *slog.Logger

	once sync.Once
	stop chan struct{}
}

// NewFilePoller builds a poller over path. A non-positive interval falls
// back to DefaultPollInterval.
func NewFilePoller(wake *Wake, path string, interval time.Duration, logger *slog.Logger) *FilePoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FilePoller{
		path:     path,
		interval: interval,
		wake:     wake,
		logger:   logger.With("component", "heartbeat-poller"),
		stop:     make(chan struct{}),
	}
}

// Start launches the polling goroutine. The first poll establishes the
// baseline hash; only subsequent changes wake the runner.
func (p *FilePoller) Start() {
	go p.loop()
	p.logger.Info("task file poller started", "path", p.path, "interval", p.interval.String())
}

// Stop terminates the polling goroutine. Safe to call more than once.
func (p *FilePoller) Stop() {
	p.once.Do(func() { close(p.stop) })
}

func (p *FilePoller) loop() {
	last := p.hash()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if sum := p.hash(); sum != last {
				last = sum
				p.logger.Debug("task file changed", "path", p.path)
				p.wake.Request(ReasonRequested, "task-file")
			}
		}
	}
}

// hash returns the content hash. A missing or unreadable file hashes to the
// zero value, so creation and deletion both register as changes.
func (p *FilePoller) hash() [32]byte {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return [32]byte{}
	}
	return sha256.Sum256(data)
}
