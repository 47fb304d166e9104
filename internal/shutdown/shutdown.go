package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type handler struct {
	name string
	fn   func(context.Context) error
}

// Manager runs shutdown handlers in stages. Handlers within a stage run
// concurrently; a stage starts only after the previous one returned.
type Manager struct {
	mu     sync.Mutex
	stages [][]handler
	done   bool
	logger *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// Register adds fn to stage. Lower stages run first.
func (m *Manager) Register(stage int, name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.stages) <= stage {
		m.stages = append(m.stages, nil)
	}
	m.stages[stage] = append(m.stages[stage], handler{name: name, fn: fn})
}

// Shutdown runs every stage once. It returns ctx.Err() if the deadline passes,
// otherwise the joined handler errors.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	stages := m.stages
	m.mu.Unlock()

	var errs []error
	for _, stage := range stages {
		if len(stage) == 0 {
			continue
		}
		stageErrs, err := m.runStage(ctx, stage)
		errs = append(errs, stageErrs...)
		if err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) runStage(ctx context.Context, stage []handler) ([]error, error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, h := range stage {
		wg.Add(1)
		go func(h handler) {
			defer wg.Done()
			if err := h.fn(ctx); err != nil {
				m.logger.Error("Error during shutdown", zap.String("component", h.name), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s shutdown: %w", h.name, err))
				mu.Unlock()
				return
			}
			m.logger.Debug("Component stopped", zap.String("component", h.name))
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		return errs, nil
	}
}
