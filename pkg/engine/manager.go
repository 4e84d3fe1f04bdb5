package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/smilemakc/dagengine/internal/logging"
)

// manager is the default ObserverManager: observers are notified
// concurrently and non-blockingly, with panics and errors recovered
// and logged rather than propagated to the caller.
type manager struct {
	mu        sync.RWMutex
	observers []Observer
	log       *logging.Logger
}

// NewManager builds an ObserverManager that logs observer failures
// through log.
func NewManager(log *logging.Logger) ObserverManager {
	return &manager{log: log}
}

func (m *manager) Register(observer Observer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.observers {
		if o.Name() == observer.Name() {
			return fmt.Errorf("observer %q already registered", observer.Name())
		}
	}
	m.observers = append(m.observers, observer)
	return nil
}

func (m *manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.observers {
		if o.Name() == name {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("observer %q not found", name)
}

func (m *manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers)
}

// Notify fans out event to every registered observer on its own
// goroutine, decoupled from ctx's cancelation so an observer can still
// record a request's terminal event after the request's own context is
// canceled.
func (m *manager) Notify(ctx context.Context, event *Event) {
	m.mu.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()

	notifyCtx := context.WithoutCancel(ctx)
	for _, o := range observers {
		go m.notifyOne(notifyCtx, o, event)
	}
}

func (m *manager) notifyOne(ctx context.Context, o Observer, event *Event) {
	defer func() {
		if r := recover(); r != nil && m.log != nil {
			m.log.ErrorContext(ctx, "observer panic recovered", "observer", o.Name(), "event_type", event.Type, "panic", r)
		}
	}()
	if err := o.OnEvent(ctx, event); err != nil && m.log != nil {
		m.log.ErrorContext(ctx, "observer notification failed", "observer", o.Name(), "event_type", event.Type, "error", err)
	}
}
