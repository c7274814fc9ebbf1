// cmd/compliancectl/main.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/javajoker/substance-compliance/internal/config"
	"github.com/javajoker/substance-compliance/internal/database"
	"github.com/javajoker/substance-compliance/internal/services"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "compliancectl",
		Short:        "Maintenance commands for the substance compliance service",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCommand(), newSeedCommand(), newImpactCommand(), newExpireCommand())
	return root
}

// openDatabase loads the configuration and connects using it.
func openDatabase() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close(db)
			return database.RunMigrations(db)
		},
	}
}

func newSeedCommand() *cobra.Command {
	var adminPassword string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default administrator and licence types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close(db)

			if adminPassword == "" {
				adminPassword = cfg.AdminPassword
			}
			if adminPassword == "" {
				return fmt.Errorf("an admin password is required (--admin-password or ADMIN_INITIAL_PASSWORD)")
			}
			return database.SeedInitialData(db, adminPassword)
		},
	}
	cmd.Flags().StringVar(&adminPassword, "admin-password", "", "password for the default administrator")
	return cmd
}

func newImpactCommand() *cobra.Command {
	var issue, expiry, reason string
	cmd := &cobra.Command{
		Use:   "impact <licence-id>",
		Short: "Preview the retroactive impact of a licence date correction",
		Long:  "Runs the impact analysis for a proposed correction without storing it and prints the report as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			licenceID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid licence id: %w", err)
			}
			req := &services.CorrectLicenceDatesRequest{Reason: reason}
			if req.IssueDate, err = parseDateFlag("issue", issue); err != nil {
				return err
			}
			if req.ExpiryDate, err = parseDateFlag("expiry", expiry); err != nil {
				return err
			}

			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close(db)

			svc := services.New(db, cfg, nil, nil, nil)
			report, err := svc.Licences.PreviewCorrection(cmd.Context(), licenceID, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&issue, "issue", "", "corrected issue date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&expiry, "expiry", "", "corrected expiry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&reason, "reason", "dry-run impact preview", "reason recorded on the correction")
	return cmd
}

func newExpireCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Mark valid licences past their expiry date as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close(db)

			svc := services.New(db, cfg, nil, nil, nil)
			changed, err := svc.Licences.ExpireLapsed(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			logrus.WithField("expired", changed).Info("Licence expiry sweep finished")
			return nil
		},
	}
}

func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s date: %w", name, err)
	}
	return &t, nil
}
