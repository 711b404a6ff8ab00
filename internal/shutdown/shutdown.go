// Package shutdown turns SIGINT/SIGTERM into context cancellation and runs
// registered cleanup functions in reverse order.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/pyship/internal/logging"
)

// Manager handles graceful shutdown
type Manager struct {
	funcs   []namedFunc
	mu      sync.Mutex
	timeout time.Duration
	logger  *logging.Logger
	once    sync.Once

	signal os.Signal
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{timeout: timeout, logger: logger}
}

// Register adds a cleanup function. Functions are called in reverse order (LIFO).
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, namedFunc{name: name, fn: fn})
}

// Context returns a context cancelled on the first SIGINT or SIGTERM.
// The tool's process group is then terminated by the runner.
func (m *Manager) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			m.mu.Lock()
			m.signal = sig
			m.mu.Unlock()
			m.logger.Warn("received signal, stopping build", logging.Fields{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// Signal returns the signal that cancelled the context, if any
func (m *Manager) Signal() os.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signal
}

// Shutdown runs every registered function once, newest first
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		funcs := m.funcs
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		for i := len(funcs) - 1; i >= 0; i-- {
			if err := funcs[i].fn(ctx); err != nil {
				m.logger.Warn("cleanup failed", logging.Fields{"name": funcs[i].name, "error": err.Error()})
			}
		}
	})
}

// CloseResource creates a cleanup function for io.Closer
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
