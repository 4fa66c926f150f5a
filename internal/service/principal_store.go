package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/noah-isme/storefront-api/internal/models"
)

type principalRepository interface {
	FindActiveByID(ctx context.Context, id string) (*models.User, error)
	FindActiveByEmail(ctx context.Context, email string) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool) (bool, error)
}

// PrincipalDirectory fronts the principal store with the Redis cache for the
// request gate's per-request lookup. Only active principals are cached and
// SetActive drops the entry, so a deactivation is visible to the next request.
type PrincipalDirectory struct {
	repo   principalRepository
	cache  *CacheService
	logger *zap.Logger

	// epoch advances on every SetActive; a lookup that straddles one does
	// not write back what it read.
	epoch atomic.Uint64
}

// NewPrincipalDirectory constructs the cached principal lookup. cache may be nil.
func NewPrincipalDirectory(repo principalRepository, cache *CacheService, logger *zap.Logger) *PrincipalDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrincipalDirectory{repo: repo, cache: cache, logger: logger}
}

func principalCacheKey(id string) string {
	return fmt.Sprintf("principal:%s", id)
}

// FindActiveByID returns the active principal, sql.ErrNoRows otherwise.
func (d *PrincipalDirectory) FindActiveByID(ctx context.Context, id string) (*models.User, error) {
	key := principalCacheKey(id)
	var cached models.User
	if hit, err := d.cache.Get(ctx, key, &cached); err == nil && hit && cached.Active {
		return &cached, nil
	}

	epoch := d.epoch.Load()
	user, err := d.repo.FindActiveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.epoch.Load() == epoch {
		_ = d.cache.Set(ctx, key, user, 0)
	}
	return user, nil
}

// FindActiveByEmail is never cached; it backs login-adjacent flows only.
func (d *PrincipalDirectory) FindActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.repo.FindActiveByEmail(ctx, email)
}

// SetActive flips the flag in the store and evicts the cached principal.
func (d *PrincipalDirectory) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	d.epoch.Add(1)
	ok, err := d.repo.SetActive(ctx, id, active)
	d.epoch.Add(1)
	if err != nil {
		return false, err
	}
	if err := d.cache.Invalidate(ctx, principalCacheKey(id)); err != nil {
		d.logger.Warn("evict cached principal", zap.String("principal_id", id), zap.Error(err))
	}
	return ok, nil
}
