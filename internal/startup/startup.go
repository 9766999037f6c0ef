// Package startup brings up external dependencies in declared order with
// retry and reverse-order shutdown.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is one external resource the service needs before serving
// traffic. Start must be safe to call again after a failed attempt.
type Dependency interface {
	Name() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type status int

const (
	statusPending status = iota
	statusStarted
	statusStopped
	statusFailed
)

// Manager starts registered dependencies respecting DependsOn ordering and
// retries the whole set with fibonacci backoff until maxAttempts is reached.
type Manager struct {
	deps        map[string]Dependency
	order       []string
	statuses    map[string]status
	logger      ectologger.Logger
	maxAttempts int
}

func NewManager(logger ectologger.Logger, maxAttempts int) *Manager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Manager{
		deps:        make(map[string]Dependency),
		statuses:    make(map[string]status),
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

func (m *Manager) Add(dep Dependency) {
	if _, ok := m.deps[dep.Name()]; !ok {
		m.order = append(m.order, dep.Name())
	}
	m.deps[dep.Name()] = dep
}

// Start attempts to bring up every dependency. On any failure the attempt is
// abandoned and retried from the first unstarted dependency.
func (m *Manager) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		m.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, name := range m.order {
			if err := m.startOne(ctx, m.deps[name]); err != nil {
				m.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, attempt)
				lastErr = err
				break
			}
		}

		if lastErr == nil {
			return nil
		}

		if attempt >= m.maxAttempts {
			break
		}

		m.logger.Infof("Retrying in %d seconds (attempt %d/%d)", a, attempt, m.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(a) * time.Second):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", m.maxAttempts, lastErr)
}

func (m *Manager) startOne(ctx context.Context, dep Dependency) error {
	if m.statuses[dep.Name()] == statusStarted {
		return nil
	}

	for _, name := range dep.DependsOn() {
		parent, ok := m.deps[name]
		if !ok {
			return fmt.Errorf("dependency '%s' requires unknown dependency '%s'", dep.Name(), name)
		}
		if m.statuses[name] != statusStarted {
			if err := m.startOne(ctx, parent); err != nil {
				return err
			}
		}
	}

	m.logger.Infof("Starting dependency '%s'", dep.Name())
	if err := dep.Start(ctx); err != nil {
		m.statuses[dep.Name()] = statusFailed
		return err
	}
	m.statuses[dep.Name()] = statusStarted
	return nil
}

// Stop shuts started dependencies down in reverse registration order. Errors
// are logged and do not block the remaining dependencies.
func (m *Manager) Stop(ctx context.Context) {
	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		if m.statuses[name] != statusStarted {
			continue
		}
		m.logger.Infof("Stopping dependency '%s'", name)
		if err := m.deps[name].Stop(ctx); err != nil {
			m.logger.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			continue
		}
		m.statuses[name] = statusStopped
	}
}

// Func adapts start/stop closures into a Dependency.
type Func struct {
	DependencyName string
	Requires       []string
	StartFunc      func(ctx context.Context) error
	StopFunc       func(ctx context.Context) error
}

func (f Func) Name() string        { return f.DependencyName }
func (f Func) DependsOn() []string { return f.Requires }

func (f Func) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}
