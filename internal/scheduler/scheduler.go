// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/models"
)

// LicenceExpirer moves lapsed licences to expired.
type LicenceExpirer interface {
	ExpireLapsed(ctx context.Context, asOf time.Time) (int, error)
}

// OverrideBacklog lists pending overrides older than the given age.
type OverrideBacklog interface {
	ListStaleOverrides(ctx context.Context, age time.Duration) ([]models.Transaction, error)
}

// OverrideNotifier receives the stale override digest.
type OverrideNotifier interface {
	NotifyStaleOverrides(ctx context.Context, txs []models.Transaction) error
}

// Scheduler runs the periodic housekeeping jobs.
type Scheduler struct {
	cron       *cron.Cron
	cfg        config.SchedulerConfig
	licences   LicenceExpirer
	overrides  OverrideBacklog
	notifier   OverrideNotifier
	logger     *logrus.Entry
	now        func() time.Time
	jobTimeout time.Duration

	mu      sync.Mutex
	running map[string]bool
}

func New(cfg config.SchedulerConfig, licences LicenceExpirer, overrides OverrideBacklog) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		cfg:        cfg,
		licences:   licences,
		overrides:  overrides,
		logger:     logrus.WithField("component", "scheduler"),
		now:        time.Now,
		jobTimeout: 10 * time.Minute,
		running:    make(map[string]bool),
	}
}

// WithNotifier sends the stale override report to n as well as the log.
func (s *Scheduler) WithNotifier(n OverrideNotifier) *Scheduler {
	s.notifier = n
	return s
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"licence_expiry_sweep", s.cfg.ExpirySweepSpec, s.SweepExpiredLicences},
		{"stale_override_report", s.cfg.StaleOverrideSpec, s.ReportStaleOverrides},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.execute(job.name, job.run) }); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
		s.logger.WithFields(logrus.Fields{"job": job.name, "spec": job.spec}).Info("Job scheduled")
	}
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// execute skips a run while the previous run of the same job is still busy.
func (s *Scheduler) execute(name string, run func(context.Context) error) {
	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		s.logger.WithField("job", name).Warn("Previous run still in progress, skipping")
		return
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := run(ctx); err != nil {
		s.logger.WithError(err).WithField("job", name).Error("Job failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"duration": time.Since(start).String(),
	}).Debug("Job finished")
}

func (s *Scheduler) SweepExpiredLicences(ctx context.Context) error {
	changed, err := s.licences.ExpireLapsed(ctx, s.now())
	if err != nil {
		return err
	}
	if changed > 0 {
		s.logger.WithField("expired", changed).Info("Licence expiry sweep completed")
	}
	return nil
}

// ReportStaleOverrides logs every override that has waited longer than the
// configured number of hours for a decision.
func (s *Scheduler) ReportStaleOverrides(ctx context.Context) error {
	age := time.Duration(s.cfg.StaleOverrideHours) * time.Hour
	txs, err := s.overrides.ListStaleOverrides(ctx, age)
	if err != nil {
		return err
	}
	now := s.now()
	for _, tx := range txs {
		fields := logrus.Fields{
			"transaction_id": tx.ID,
			"reference":      tx.ExternalReference,
			"customer_id":    tx.CustomerID,
		}
		if tx.ValidatedAt != nil {
			fields["waiting"] = now.Sub(*tx.ValidatedAt).Round(time.Minute).String()
		}
		s.logger.WithFields(fields).Warn("Override awaiting decision")
	}
	if len(txs) == 0 {
		return nil
	}
	s.logger.WithField("count", len(txs)).Warn("Stale overrides pending")
	if s.notifier != nil {
		return s.notifier.NotifyStaleOverrides(ctx, txs)
	}
	return nil
}
