package simengine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nexuscore/internal/domain"
)

// Manager owns one Engine per security, starting its goroutine lazily on
// first use and tearing all of them down together. Grounded on the
// teacher's Engine.slots map + slotsMu pattern in internal/engine/engine.go.
type Manager struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	engines  map[domain.Security]*Engine
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager constructs a Manager bound to parent's lifetime.
func NewManager(parent context.Context, logger *slog.Logger, now func() time.Time) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		logger:  logger.With("component", "simengine-manager"),
		now:     now,
		engines: make(map[domain.Security]*Engine),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// EngineFor returns the Engine for security, starting one (and its
// goroutine) if this is the first reference.
func (m *Manager) EngineFor(security domain.Security) *Engine {
	m.mu.RLock()
	e, ok := m.engines[security]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[security]; ok {
		return e
	}

	e = New(security, m.logger, m.now)
	m.engines[security] = e
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		e.Run(m.ctx)
	}()
	m.logger.Info("simulated engine started", "security", security.String())
	return e
}

// Stop cancels every engine's goroutine and waits for them to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}
