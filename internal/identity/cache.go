package identity

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// userCacheEntry pairs a cached user with its expiry.
type userCacheEntry struct {
	user    types.User
	expires time.Time
}

// UserCache is a keyed map with a short TTL, explicit value owned by the
// composition root per §9's "singletons with hidden caches" redesign note.
// Entries may be invalidated on admin mutation.
type UserCache struct {
	mu        sync.RWMutex
	ttl       time.Duration
	byEmail   map[string]userCacheEntry // key: tenant_id|email
	bySubject map[string]userCacheEntry // key: tenant_id|external_subject_id
}

func NewUserCache(ttl time.Duration) *UserCache {
	return &UserCache{
		ttl:       ttl,
		byEmail:   make(map[string]userCacheEntry),
		bySubject: make(map[string]userCacheEntry),
	}
}

func emailKey(tenantID uuid.UUID, email string) string {
	return tenantID.String() + "|" + email
}

func subjectKey(tenantID uuid.UUID, subject string) string {
	return tenantID.String() + "|" + subject
}

func (c *UserCache) GetByEmail(tenantID uuid.UUID, email string) (types.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byEmail[emailKey(tenantID, email)]
	if !ok || time.Now().After(e.expires) {
		return types.User{}, false
	}
	return e.user, true
}

func (c *UserCache) GetBySubject(tenantID uuid.UUID, subject string) (types.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.bySubject[subjectKey(tenantID, subject)]
	if !ok || time.Now().After(e.expires) {
		return types.User{}, false
	}
	return e.user, true
}

func (c *UserCache) Put(u types.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := userCacheEntry{user: u, expires: time.Now().Add(c.ttl)}
	c.byEmail[emailKey(u.TenantID, u.Email)] = entry
	if u.ExternalSubjectID != "" {
		c.bySubject[subjectKey(u.TenantID, u.ExternalSubjectID)] = entry
	}
}

// Invalidate removes every cache entry for u, called after an admin
// mutation (grant/revoke, deactivate, update).
func (c *UserCache) Invalidate(u types.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byEmail, emailKey(u.TenantID, u.Email))
	if u.ExternalSubjectID != "" {
		delete(c.bySubject, subjectKey(u.TenantID, u.ExternalSubjectID))
	}
}
