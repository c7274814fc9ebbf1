// internal/repository/repository.go
package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/substance-compliance/internal/compliance"
	"github.com/javajoker/substance-compliance/internal/utils"
)

// Repositories groups the gorm repositories over one connection or one
// database transaction.
type Repositories struct {
	db           *gorm.DB
	Customers    *CustomerRepository
	Licences     *LicenceRepository
	Thresholds   *ThresholdRepository
	Substances   *SubstanceRepository
	Transactions *TransactionRepository
	Audit        *AuditRepository
	Users        *UserRepository
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		Customers:    NewCustomerRepository(db),
		Licences:     NewLicenceRepository(db),
		Thresholds:   NewThresholdRepository(db),
		Substances:   NewSubstanceRepository(db),
		Transactions: NewTransactionRepository(db),
		Audit:        NewAuditRepository(db),
		Users:        NewUserRepository(db),
	}
}

// WithTx returns repositories bound to tx.
func (r *Repositories) WithTx(tx *gorm.DB) *Repositories {
	return New(tx)
}

func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// translate maps gorm's not-found error onto the domain error and wraps
// everything else with the failed operation.
func translate(err error, resource string, key interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return compliance.NewNotFound(resource, key)
	}
	return fmt.Errorf("failed to load %s %v: %w", resource, key, err)
}

// sortColumns maps the sort keys a listing accepts onto its columns. The
// "created_at" key is the fallback for unknown or empty keys.
type sortColumns map[string]string

func (s sortColumns) column(key string) string {
	if col, ok := s[key]; ok {
		return col
	}
	return s["created_at"]
}

// paginate orders db by the requested key, with the primary key as the tie
// breaker, and cuts out the requested page.
func paginate(db *gorm.DB, req utils.PageRequest, sortable sortColumns) *gorm.DB {
	req = req.Normalized()
	return db.
		Order(clause.OrderByColumn{Column: clause.Column{Name: sortable.column(req.Sort)}, Desc: req.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: req.Desc}).
		Offset(req.Offset()).
		Limit(req.Limit)
}

// dayAfter returns the exclusive upper bound of an inclusive date range.
func dayAfter(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
