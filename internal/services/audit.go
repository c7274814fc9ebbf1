// internal/services/audit.go
package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/substance-compliance/internal/models"
	"github.com/javajoker/substance-compliance/internal/repository"
)

// recordAudit writes an explicit audit entry inside the caller's unit of
// work, so the entry commits or rolls back with the change it describes.
func recordAudit(ctx context.Context, repos *repository.Repositories, action, resourceType string, resourceID uuid.UUID, userID *uuid.UUID, oldValues, newValues models.JSONB) error {
	id := resourceID
	entry := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &id,
		OldValues:    oldValues,
		NewValues:    newValues,
	}
	if err := repos.Audit.Record(ctx, entry); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"action":      action,
		"resource":    resourceType,
		"resource_id": resourceID,
		"user_id":     userID,
	}).Info("Audit entry recorded")
	return nil
}

func userRef(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
