// Package workflow implements the assignment/approval state machine that
// routes cases between risk officers, departmental users and supervisors.
package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// RoleCache is a read-through cache over the user directory. Entries expire
// after domain.RoleCacheTTL; staleness inside the window is tolerated and
// never treated as a correctness bug.
type RoleCache struct {
	repo   domain.Repository
	l2     domain.Cache
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]roleEntry
}

type roleEntry struct {
	user    *domain.UserAccount
	expires time.Time
}

// NewRoleCache creates the cache. The second-level cache is optional and
// shared across processes when configured.
func NewRoleCache(repo domain.Repository, l2 domain.Cache, logger *slog.Logger) *RoleCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleCache{
		repo:    repo,
		l2:      l2,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]roleEntry),
	}
}

// WithClock overrides the cache clock. Tests only.
func (rc *RoleCache) WithClock(now func() time.Time) *RoleCache {
	rc.now = now
	return rc
}

// Lookup resolves a username to its directory entry, serving from cache
// inside the TTL window.
func (rc *RoleCache) Lookup(ctx context.Context, username string) (*domain.UserAccount, error) {
	rc.mu.RLock()
	entry, ok := rc.entries[username]
	rc.mu.RUnlock()
	if ok && rc.now().Before(entry.expires) {
		return entry.user, nil
	}

	if rc.l2 != nil {
		if raw, err := rc.l2.Get(ctx, roleKey(username)); err == nil && len(raw) > 0 {
			var u domain.UserAccount
			if jerr := json.Unmarshal(raw, &u); jerr == nil {
				rc.store(username, &u)
				return &u, nil
			}
		}
	}

	user, err := rc.repo.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	rc.store(username, user)

	if rc.l2 != nil {
		if raw, jerr := json.Marshal(user); jerr == nil {
			if cerr := rc.l2.Set(ctx, roleKey(username), raw, domain.RoleCacheTTL); cerr != nil {
				rc.logger.Warn("role cache l2 set failed", "username", username, "error", cerr)
			}
		}
	}
	return user, nil
}

// Invalidate drops a username from both cache levels.
func (rc *RoleCache) Invalidate(ctx context.Context, username string) {
	rc.mu.Lock()
	delete(rc.entries, username)
	rc.mu.Unlock()
	if rc.l2 != nil {
		if err := rc.l2.Delete(ctx, roleKey(username)); err != nil {
			rc.logger.Warn("role cache l2 delete failed", "username", username, "error", err)
		}
	}
}

func (rc *RoleCache) store(username string, u *domain.UserAccount) {
	rc.mu.Lock()
	rc.entries[username] = roleEntry{user: u, expires: rc.now().Add(domain.RoleCacheTTL)}
	rc.mu.Unlock()
}

func roleKey(username string) string {
	return "role:" + username
}
