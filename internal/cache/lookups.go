// internal/cache/lookups.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/models"
)

// Cache failures never fail a lookup: a broken Redis degrades to reading
// through to the database.

type keyspace struct {
	prefix string
	ttl    time.Duration
}

func (k keyspace) licence(id uuid.UUID) string {
	return k.prefix + "licence:" + id.String()
}

func (k keyspace) holder(holderType models.HolderType, holderID uuid.UUID) string {
	return k.prefix + "holder:" + string(holderType) + ":" + holderID.String()
}

func (k keyspace) substance(code string) string {
	return k.prefix + "substance:" + code
}

func load(ctx context.Context, store Store, key string, dst interface{}) bool {
	b, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			logrus.WithError(err).WithField("key", key).Warn("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return false
	}
	return true
}

func save(ctx context.Context, store Store, key string, ttl time.Duration, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := store.Set(ctx, key, b, ttl); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

// LicenceLookup caches licences by id and by holder.
type LicenceLookup struct {
	next  compliance.LicenceLookup
	store Store
	keys  keyspace
}

func NewLicenceLookup(next compliance.LicenceLookup, store Store, prefix string, ttl time.Duration) *LicenceLookup {
	return &LicenceLookup{next: next, store: store, keys: keyspace{prefix: prefix, ttl: ttl}}
}

func (c *LicenceLookup) GetLicence(ctx context.Context, id uuid.UUID) (*models.Licence, error) {
	key := c.keys.licence(id)
	var licence models.Licence
	if load(ctx, c.store, key, &licence) {
		return &licence, nil
	}
	l, err := c.next.GetLicence(ctx, id)
	if err != nil {
		return nil, err
	}
	save(ctx, c.store, key, c.keys.ttl, l)
	return l, nil
}

func (c *LicenceLookup) ListByHolder(ctx context.Context, holderType models.HolderType, holderID uuid.UUID) ([]models.Licence, error) {
	key := c.keys.holder(holderType, holderID)
	var licences []models.Licence
	if load(ctx, c.store, key, &licences) {
		return licences, nil
	}
	licences, err := c.next.ListByHolder(ctx, holderType, holderID)
	if err != nil {
		return nil, err
	}
	save(ctx, c.store, key, c.keys.ttl, licences)
	return licences, nil
}

// Invalidate drops every entry the licence can appear in.
func (c *LicenceLookup) Invalidate(ctx context.Context, l *models.Licence) {
	if err := c.store.Delete(ctx, c.keys.licence(l.ID), c.keys.holder(l.HolderType, l.HolderID)); err != nil {
		logrus.WithError(err).WithField("licence", l.LicenceNumber).Warn("Cache invalidation failed")
	}
}

// SubstanceLookup caches substances by code. Unknown codes are not cached.
type SubstanceLookup struct {
	next  compliance.SubstanceLookup
	store Store
	keys  keyspace
}

func NewSubstanceLookup(next compliance.SubstanceLookup, store Store, prefix string, ttl time.Duration) *SubstanceLookup {
	return &SubstanceLookup{next: next, store: store, keys: keyspace{prefix: prefix, ttl: ttl}}
}

func (c *SubstanceLookup) GetByCode(ctx context.Context, code string) (*models.Substance, error) {
	key := c.keys.substance(code)
	var substance models.Substance
	if load(ctx, c.store, key, &substance) {
		return &substance, nil
	}
	s, err := c.next.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	save(ctx, c.store, key, c.keys.ttl, s)
	return s, nil
}

func (c *SubstanceLookup) Invalidate(ctx context.Context, code string) {
	if err := c.store.Delete(ctx, c.keys.substance(code)); err != nil {
		logrus.WithError(err).WithField("substance", code).Warn("Cache invalidation failed")
	}
}
