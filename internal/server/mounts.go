package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livetemplate/awardwizard"
	"github.com/livetemplate/awardwizard/internal/cache"
)

const writeWait = 10 * time.Second

// wsConn serializes writes to one WebSocket.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// mount is one wizard opened by one page load. A browser session can have
// several mounts. Each browser tab has its own tab id, and the persisted
// state of a mount is scoped to its session and tab.
type mount struct {
	id        string
	sessionID string
	tab       string
	wizard    *awardwizard.Wizard
	lifecycle *awardwizard.EventLifecycle

	mu     sync.Mutex
	notice string
	conns  map[*wsConn]struct{}
	closed bool
}

func newMount(id, sessionID, tab string) *mount {
	return &mount{
		id:        id,
		sessionID: sessionID,
		tab:       tab,
		lifecycle: awardwizard.NewEventLifecycle(nil),
		conns:     make(map[*wsConn]struct{}),
	}
}

func (m *mount) setNotice(s string) {
	m.mu.Lock()
	m.notice = s
	m.mu.Unlock()
}

func (m *mount) getNotice() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notice
}

func (m *mount) attach(c *wsConn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.conns[c] = struct{}{}
	return true
}

func (m *mount) detach(c *wsConn) {
	m.mu.Lock()
	delete(m.conns, c)
	m.mu.Unlock()
}

func (m *mount) connections() []*wsConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*wsConn, 0, len(m.conns))
	for c := range m.conns {
		out = append(out, c)
	}
	return out
}

// broadcast writes v to every connection. It only takes the mount's own
// lock so it may run inside lifecycle callbacks.
func (m *mount) broadcast(v any, logger *zap.Logger) {
	for _, c := range m.connections() {
		if err := c.send(v); err != nil {
			logger.Debug("websocket write failed", zap.String("mount", m.id), zap.Error(err))
		}
	}
}

func (m *mount) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := m.conns
	m.conns = map[*wsConn]struct{}{}
	m.mu.Unlock()

	if m.wizard != nil {
		m.wizard.Close()
	}
	for c := range conns {
		_ = c.conn.Close()
	}
}

// mountRegistry holds live mounts. Mounts not used for ttl are closed.
type mountRegistry struct {
	ttl    time.Duration
	items  *cache.Cache[*mount]
	logger *zap.Logger
}

func newMountRegistry(ttl time.Duration, logger *zap.Logger) *mountRegistry {
	reg := &mountRegistry{ttl: ttl, logger: logger}
	reg.items = cache.New(cache.WithOnEvict(func(id string, m *mount) {
		logger.Debug("mount expired", zap.String("mount", id))
		m.close()
	}))
	return reg
}

func (r *mountRegistry) add(m *mount) {
	r.items.Set(m.id, m, r.ttl)
}

// get returns the mount and extends its lifetime.
func (r *mountRegistry) get(id string) (*mount, bool) {
	m, ok := r.items.Get(id)
	if !ok {
		return nil, false
	}
	r.touch(id)
	return m, true
}

// touch extends the lifetime of a mount in use. It reports false once the
// mount has expired.
func (r *mountRegistry) touch(id string) bool {
	return r.items.Touch(id, r.ttl)
}

func (r *mountRegistry) remove(id string) {
	if m, ok := r.items.Take(id); ok {
		m.close()
	}
}

// Each calls fn for every live mount.
func (r *mountRegistry) Each(fn func(*mount)) {
	r.items.Range(func(_ string, m *mount) bool {
		fn(m)
		return true
	})
}

func (r *mountRegistry) Len() int { return r.items.Len() }

// Close closes every mount and stops expiry.
func (r *mountRegistry) Close() {
	r.items.Stop()
	r.Each(func(m *mount) { r.remove(m.id) })
	r.items.InvalidateAll()
}
