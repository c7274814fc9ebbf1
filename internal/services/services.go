// internal/services/services.go
package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/cache"
	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/metrics"
	"github.com/javajoker/substance-compliance/internal/repository"
)

// Services holds every application service built on one database handle.
type Services struct {
	Auth          *AuthService
	Admin         *AdminService
	Customers     *CustomerService
	Substances    *SubstanceService
	Thresholds    *ThresholdService
	Licences      *LicenceService
	Transactions  *TransactionService
	Documents     *DocumentService
	Reports       *ReportService
	Notifications *NotificationService
}

// New wires the services. store may be nil to disable lookup caching.
func New(db *gorm.DB, cfg *config.Config, store cache.Store, blobs BlobStore, m *metrics.Metrics) *Services {
	repos := repository.New(db)
	lookups := NewLookupProvider(store, cfg.Cache.KeyPrefix, cfg.Cache.TTL())

	licences := NewLicenceService(db, lookups, cfg.Validation.ImpactWorkers, m)
	transactions := NewTransactionService(db, lookups, cfg.Validation, m)
	notifications := NewNotificationService(db, cfg.Email)
	licences.SetNotifier(notifications)

	return &Services{
		Auth:          NewAuthService(db, cfg),
		Admin:         NewAdminService(db),
		Customers:     NewCustomerService(db),
		Substances:    NewSubstanceService(repos, lookups),
		Thresholds:    NewThresholdService(repos),
		Licences:      licences,
		Transactions:  transactions,
		Documents:     NewDocumentService(repos, blobs, lookups, time.Duration(cfg.AWS.PresignTTL)*time.Minute),
		Reports:       NewReportService(licences, transactions),
		Notifications: notifications,
	}
}
