package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

const (
	DefaultTTLMinutes = 30

	// purgeInterval bounds how late an expiry notification can fire.
	purgeInterval = 1 * time.Minute
)

// Manager owns session lifecycle: creation, TTL expiry, and closure. The
// workflow controller registers an expiry hook and otherwise only reads
// session ids.
type Manager struct {
	cache  *cache.Cache
	logger logger.Logger

	mu        sync.Mutex
	closed    map[string]struct{}
	onExpired func(sessionID string)
}

func NewManager(log logger.Logger) *Manager {
	m := &Manager{
		cache:  cache.New(time.Duration(DefaultTTLMinutes)*time.Minute, purgeInterval),
		logger: log,
		closed: make(map[string]struct{}),
	}

	m.cache.OnEvicted(func(id string, _ interface{}) {
		m.mu.Lock()
		_, wasClosed := m.closed[id]
		delete(m.closed, id)
		hook := m.onExpired
		m.mu.Unlock()

		if wasClosed {
			return
		}
		m.logger.Info("Session expired", logger.String("sessionId", id))
		if hook != nil {
			hook(id)
		}
	})

	return m
}

// OnExpired registers the hook invoked when a session's TTL elapses.
// Explicitly closed sessions do not fire it.
func (m *Manager) OnExpired(fn func(sessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpired = fn
}

// Create starts a new session with the given TTL.
func (m *Manager) Create(ttlMinutes int, language string) *models.Session {
	if ttlMinutes <= 0 {
		ttlMinutes = DefaultTTLMinutes
	}

	s := &models.Session{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now(),
		TTLMinutes: ttlMinutes,
		Language:   language,
	}
	m.cache.Set(s.ID, s, time.Duration(ttlMinutes)*time.Minute)

	m.logger.Info("Session created",
		logger.String("sessionId", s.ID),
		logger.Int("ttlMinutes", ttlMinutes),
	)
	return s
}

// Get returns the live session, if any.
func (m *Manager) Get(id string) (*models.Session, bool) {
	v, found := m.cache.Get(id)
	if !found {
		return nil, false
	}
	return v.(*models.Session), true
}

// Touch extends the session's TTL back to its full window.
func (m *Manager) Touch(id string) {
	if s, found := m.Get(id); found {
		m.cache.Set(id, s, time.Duration(s.TTLMinutes)*time.Minute)
	}
}

// Close ends a session without firing the expiry hook.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	m.closed[id] = struct{}{}
	m.mu.Unlock()
	m.cache.Delete(id)
}
