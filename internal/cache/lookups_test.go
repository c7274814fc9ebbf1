// internal/cache/lookups_test.go
package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/models"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: map[string][]byte{}}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	return b, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

type mockLicences struct {
	mock.Mock
}

func (m *mockLicences) GetLicence(ctx context.Context, id uuid.UUID) (*models.Licence, error) {
	args := m.Called(ctx, id)
	if l := args.Get(0); l != nil {
		return l.(*models.Licence), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLicences) ListByHolder(ctx context.Context, holderType models.HolderType, holderID uuid.UUID) ([]models.Licence, error) {
	args := m.Called(ctx, holderType, holderID)
	if l := args.Get(0); l != nil {
		return l.([]models.Licence), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSubstances struct {
	mock.Mock
}

func (m *mockSubstances) GetByCode(ctx context.Context, code string) (*models.Substance, error) {
	args := m.Called(ctx, code)
	if s := args.Get(0); s != nil {
		return s.(*models.Substance), args.Error(1)
	}
	return nil, args.Error(1)
}

func sampleLicence() models.Licence {
	l := models.Licence{
		LicenceNumber:       "OW-1",
		HolderType:          models.HolderTypeCustomer,
		HolderID:            uuid.New(),
		IssueDate:           time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:              models.LicenceStatusValid,
		PermittedActivities: models.NewActivitySet(models.ActivityPossess),
		SubstanceMappings:   []models.LicenceSubstanceMapping{{SubstanceCode: "MORPH"}},
	}
	l.ID = uuid.New()
	return l
}

func TestLicenceLookup_ReadsThroughOnce(t *testing.T) {
	ctx := context.Background()
	licence := sampleLicence()
	next := new(mockLicences)
	next.On("ListByHolder", ctx, licence.HolderType, licence.HolderID).Return([]models.Licence{licence}, nil).Once()

	lookup := NewLicenceLookup(next, newMemoryStore(), "test:", time.Minute)

	first, err := lookup.ListByHolder(ctx, licence.HolderType, licence.HolderID)
	require.NoError(t, err)
	second, err := lookup.ListByHolder(ctx, licence.HolderType, licence.HolderID)
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, second[0].CoversSubstance("MORPH"))
	assert.True(t, second[0].PermittedActivities.Contains(models.ActivityPossess))
	next.AssertExpectations(t)
}

func TestLicenceLookup_InvalidateForcesReload(t *testing.T) {
	ctx := context.Background()
	licence := sampleLicence()
	next := new(mockLicences)
	next.On("GetLicence", ctx, licence.ID).Return(&licence, nil).Twice()

	lookup := NewLicenceLookup(next, newMemoryStore(), "test:", time.Minute)

	_, err := lookup.GetLicence(ctx, licence.ID)
	require.NoError(t, err)
	lookup.Invalidate(ctx, &licence)
	_, err = lookup.GetLicence(ctx, licence.ID)
	require.NoError(t, err)

	next.AssertExpectations(t)
}

func TestSubstanceLookup_DoesNotCacheUnknownCodes(t *testing.T) {
	ctx := context.Background()
	next := new(mockSubstances)
	next.On("GetByCode", ctx, "NOPE").Return(nil, compliance.NewNotFound("substance", "NOPE")).Twice()

	lookup := NewSubstanceLookup(next, newMemoryStore(), "test:", time.Minute)

	for i := 0; i < 2; i++ {
		_, err := lookup.GetByCode(ctx, "NOPE")
		assert.ErrorIs(t, err, compliance.ErrNotFound)
	}
	next.AssertExpectations(t)
}

func TestSubstanceLookup_UnreachableRedisFallsThrough(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	substance := &models.Substance{Code: "MORPH", Name: "Morphine", IsActive: true}
	next := new(mockSubstances)
	next.On("GetByCode", ctx, "MORPH").Return(substance, nil)

	lookup := NewSubstanceLookup(next, NewRedisStoreWithClient(client), "test:", time.Minute)

	got, err := lookup.GetByCode(ctx, "MORPH")
	require.NoError(t, err)
	assert.Equal(t, "Morphine", got.Name)
	lookup.Invalidate(ctx, "MORPH")
}
