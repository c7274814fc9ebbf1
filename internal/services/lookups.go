// internal/services/lookups.go
package services

import (
	"context"
	"time"

	"github.com/javajoker/substance-compliance/internal/cache"
	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
)

// LookupProvider builds the engine's lookups over a set of repositories,
// putting the licence and substance lookups behind the cache when one is
// configured.
type LookupProvider struct {
	store  cache.Store
	prefix string
	ttl    time.Duration
}

// NewLookupProvider returns a provider; a nil store disables caching.
func NewLookupProvider(store cache.Store, prefix string, ttl time.Duration) *LookupProvider {
	return &LookupProvider{store: store, prefix: prefix, ttl: ttl}
}

func (p *LookupProvider) For(repos *repository.Repositories) compliance.Lookups {
	lookups := compliance.Lookups{
		Customers:  repos.Customers,
		Licences:   repos.Licences,
		Thresholds: repos.Thresholds,
		Substances: repos.Substances,
		History:    repos.Transactions,
	}
	if p == nil || p.store == nil {
		return lookups
	}
	lookups.Licences = cache.NewLicenceLookup(repos.Licences, p.store, p.prefix, p.ttl)
	lookups.Substances = cache.NewSubstanceLookup(repos.Substances, p.store, p.prefix, p.ttl)
	return lookups
}

func (p *LookupProvider) InvalidateLicence(ctx context.Context, l *models.Licence) {
	if p == nil || p.store == nil {
		return
	}
	cache.NewLicenceLookup(nil, p.store, p.prefix, p.ttl).Invalidate(ctx, l)
}

func (p *LookupProvider) InvalidateSubstance(ctx context.Context, code string) {
	if p == nil || p.store == nil {
		return
	}
	cache.NewSubstanceLookup(nil, p.store, p.prefix, p.ttl).Invalidate(ctx, code)
}
