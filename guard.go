package awardwizard

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Lifecycle exposes the two browser lifecycle signals the wizard reacts to.
// Registration returns a function that removes the handler.
type Lifecycle interface {
	// OnBeforeUnload registers fn for close/navigate-away attempts.
	// fn returns true when the user should be asked to confirm.
	OnBeforeUnload(fn func() bool) (cancel func())
	// OnPageHide registers fn for page-hide. persisted is true when the
	// page is kept in the back/forward cache.
	OnPageHide(fn func(persisted bool)) (cancel func())
}

// Guard warns about unsaved changes and purges persisted state when the
// page is discarded.
type Guard struct {
	store  FormStore
	logger *zap.Logger

	mu              sync.Mutex
	lc              Lifecycle
	cancelPageHide  func()
	cancelBeforeUnl func()
}

// NewGuard creates a guard that purges store on discard.
func NewGuard(store FormStore, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, logger: logger.Named("guard")}
}

// Attach registers the page-hide purge on lc for the guard's lifetime.
// Attaching again moves the registration to the new lifecycle.
func (g *Guard) Attach(lc Lifecycle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detachLocked()
	g.lc = lc
	g.cancelPageHide = lc.OnPageHide(g.pageHide)
}

// Detach removes every handler the guard registered.
func (g *Guard) Detach() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detachLocked()
	g.lc = nil
}

func (g *Guard) detachLocked() {
	if g.cancelPageHide != nil {
		g.cancelPageHide()
		g.cancelPageHide = nil
	}
	if g.cancelBeforeUnl != nil {
		g.cancelBeforeUnl()
		g.cancelBeforeUnl = nil
	}
}

// Sync arms the before-unload warning when s has populated keys and
// disarms it when s is empty.
func (g *Guard) Sync(s FormState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lc == nil {
		return
	}
	armed := g.cancelBeforeUnl != nil
	switch want := !s.IsEmpty(); {
	case want && !armed:
		g.cancelBeforeUnl = g.lc.OnBeforeUnload(func() bool { return true })
		g.logger.Debug("before-unload warning armed")
	case !want && armed:
		g.cancelBeforeUnl()
		g.cancelBeforeUnl = nil
		g.logger.Debug("before-unload warning disarmed")
	}
}

// Armed reports whether the before-unload warning is registered.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelBeforeUnl != nil
}

func (g *Guard) pageHide(persisted bool) {
	if persisted {
		return
	}
	if err := g.store.Clear(context.Background()); err != nil {
		g.logger.Warn("purge on page-hide failed", zap.Error(err))
		return
	}
	g.logger.Debug("persisted state purged on page-hide")
}

// EventLifecycle is an in-process Lifecycle. Signals arrive through
// BeforeUnload and PageHide; OnArmChange observes whether any
// before-unload handler is registered.
type EventLifecycle struct {
	mu           sync.Mutex
	nextID       int
	beforeUnload map[int]func() bool
	pageHide     map[int]func(bool)
	onArm        func(armed bool)
}

// NewEventLifecycle creates an EventLifecycle. onArm may be nil.
func NewEventLifecycle(onArm func(armed bool)) *EventLifecycle {
	return &EventLifecycle{
		beforeUnload: make(map[int]func() bool),
		pageHide:     make(map[int]func(bool)),
		onArm:        onArm,
	}
}

func (l *EventLifecycle) OnBeforeUnload(fn func() bool) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.beforeUnload[id] = fn
	notify := len(l.beforeUnload) == 1
	l.mu.Unlock()
	if notify {
		l.notifyArm(true)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.beforeUnload, id)
			notify := len(l.beforeUnload) == 0
			l.mu.Unlock()
			if notify {
				l.notifyArm(false)
			}
		})
	}
}

func (l *EventLifecycle) OnPageHide(fn func(persisted bool)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.pageHide[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.pageHide, id)
		l.mu.Unlock()
	}
}

// SetOnArmChange replaces the arm observer.
func (l *EventLifecycle) SetOnArmChange(fn func(armed bool)) {
	l.mu.Lock()
	l.onArm = fn
	l.mu.Unlock()
}

// Armed reports whether any before-unload handler is registered.
func (l *EventLifecycle) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.beforeUnload) > 0
}

// BeforeUnload fires the before-unload signal and reports whether the
// native confirmation should be shown.
func (l *EventLifecycle) BeforeUnload() bool {
	l.mu.Lock()
	fns := make([]func() bool, 0, len(l.beforeUnload))
	for _, fn := range l.beforeUnload {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	prompt := false
	for _, fn := range fns {
		if fn() {
			prompt = true
		}
	}
	return prompt
}

// PageHide fires the page-hide signal.
func (l *EventLifecycle) PageHide(persisted bool) {
	l.mu.Lock()
	fns := make([]func(bool), 0, len(l.pageHide))
	for _, fn := range l.pageHide {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(persisted)
	}
}

func (l *EventLifecycle) notifyArm(armed bool) {
	l.mu.Lock()
	fn := l.onArm
	l.mu.Unlock()
	if fn != nil {
		fn(armed)
	}
}
