package modulemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// Manager manages module registration, initialization and shutdown.
// Modules are initialized in registration order and shut down in reverse.
type Manager struct {
	mu          sync.RWMutex
	modules     []Module
	ids         map[string]bool
	initialized []Module
	logger      hclog.Logger
}

// NewManager creates an empty manager
func NewManager(logger hclog.Logger) *Manager {
	return &Manager{
		ids:    make(map[string]bool),
		logger: logger.Named("modules"),
	}
}

// Register adds a module. Registering an id twice is an error.
func (m *Manager) Register(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ids[mod.ID()] {
		return fmt.Errorf("module %s already registered", mod.ID())
	}
	if len(m.initialized) > 0 {
		m.logger.Warn("module registered after initialization", "module", mod.ID())
	}

	m.ids[mod.ID()] = true
	m.modules = append(m.modules, mod)
	m.logger.Info("module registered", "module", mod.ID(), "name", mod.Name())
	return nil
}

// LoadAll initializes every registered module. When one fails, the modules
// already initialized are shut down again before the error is returned.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	pending := make([]Module, 0, len(m.modules))
	done := make(map[Module]bool, len(m.initialized))
	for _, mod := range m.initialized {
		done[mod] = true
	}
	for _, mod := range m.modules {
		if !done[mod] {
			pending = append(pending, mod)
		}
	}
	m.mu.Unlock()

	m.logger.Info("loading modules", "count", len(pending))
	for i, mod := range pending {
		m.logger.Debug("initializing module", "module", mod.ID(), "step", fmt.Sprintf("%d/%d", i+1, len(pending)))
		if err := mod.Init(ctx); err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			m.ShutdownAll(shutdownCtx)
			cancel()
			return fmt.Errorf("failed to initialize %s: %w", mod.Name(), err)
		}

		m.mu.Lock()
		m.initialized = append(m.initialized, mod)
		m.mu.Unlock()
		m.logger.Info("module loaded", "module", mod.ID())
	}
	return nil
}

// ListModules returns all registered modules
func (m *Manager) ListModules() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Module(nil), m.modules...)
}

// GetModule returns a module by ID
func (m *Manager) GetModule(id string) (Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mod := range m.modules {
		if mod.ID() == id {
			return mod, true
		}
	}
	return nil, false
}

// RegisterRoutes registers routes for all modules that implement RouteRegistrar
func (m *Manager) RegisterRoutes(router *gin.Engine) {
	for _, mod := range m.ListModules() {
		if registrar, ok := mod.(RouteRegistrar); ok {
			m.logger.Debug("registering routes", "module", mod.ID())
			registrar.RegisterRoutes(router)
		}
	}
}

// Health collects the status of every module implementing HealthChecker.
func (m *Manager) Health(ctx context.Context) map[string]HealthStatus {
	out := make(map[string]HealthStatus)
	for _, mod := range m.ListModules() {
		if checker, ok := mod.(HealthChecker); ok {
			out[mod.ID()] = checker.HealthCheck(ctx)
		}
	}
	return out
}

// ShutdownAll shuts down initialized modules in reverse order. Every
// module is asked to stop even when an earlier one fails.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	mods := m.initialized
	m.initialized = nil
	m.mu.Unlock()

	var errs []error
	for i := len(mods) - 1; i >= 0; i-- {
		s, ok := mods[i].(Shutdowner)
		if !ok {
			continue
		}
		m.logger.Info("shutting down module", "module", mods[i].ID())
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mods[i].ID(), err))
		}
	}
	return errors.Join(errs...)
}
