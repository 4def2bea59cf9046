package services

import (
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/sirupsen/logrus"
)

// AuditEntry represents a single audit log entry
type AuditEntry struct {
	Timestamp   time.Time              `json:"timestamp"`
	ServiceName string                 `json:"service_name"`
	Operation   string                 `json:"operation"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	UserID      string                 `json:"user_id,omitempty"`
	Success     bool                   `json:"success"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ApplicationAuditLogger writes money-moving application events as structured audit logs.
type ApplicationAuditLogger struct {
	serviceName string
	logger      *logrus.Logger
}

func NewApplicationAuditLogger() *ApplicationAuditLogger {
	return &ApplicationAuditLogger{
		serviceName: "application-service",
		logger:      logrus.StandardLogger(),
	}
}

func (a *ApplicationAuditLogger) LogApplication(app *models.Application) {
	a.logAuditEntry(AuditEntry{
		Timestamp:   time.Now(),
		ServiceName: a.serviceName,
		Operation:   "APPLY",
		EntityType:  "APPLICATION",
		EntityID:    app.ID.String(),
		UserID:      app.UserID.String(),
		Success:     true,
		Metadata: map[string]interface{}{
			"symbol":         app.IPOSymbol,
			"shares_applied": app.SharesApplied,
			"amount_applied": app.AmountApplied,
			"refund_mode":    app.RefundMode,
		},
	})
}

func (a *ApplicationAuditLogger) LogWithdrawal(app *models.Application, amount float64) {
	a.logAuditEntry(AuditEntry{
		Timestamp:   time.Now(),
		ServiceName: a.serviceName,
		Operation:   "WITHDRAW",
		EntityType:  "APPLICATION",
		EntityID:    app.ID.String(),
		UserID:      app.UserID.String(),
		Success:     true,
		Metadata: map[string]interface{}{
			"symbol":            app.IPOSymbol,
			"status":            app.Status,
			"withdrawal_amount": amount,
		},
	})
}

// LogRejected records a rejected apply or withdraw attempt.
func (a *ApplicationAuditLogger) LogRejected(operation, entityID, userID string, err error) {
	a.logAuditEntry(AuditEntry{
		Timestamp:   time.Now(),
		ServiceName: a.serviceName,
		Operation:   operation,
		EntityType:  "APPLICATION",
		EntityID:    entityID,
		UserID:      userID,
		Success:     false,
		ErrorMsg:    err.Error(),
	})
}

func (a *ApplicationAuditLogger) logAuditEntry(entry AuditEntry) {
	logFields := logrus.Fields{
		"audit_timestamp": entry.Timestamp,
		"service_name":    entry.ServiceName,
		"operation":       entry.Operation,
		"entity_type":     entry.EntityType,
		"entity_id":       entry.EntityID,
		"success":         entry.Success,
	}
	if entry.UserID != "" {
		logFields["user_id"] = entry.UserID
	}
	if entry.ErrorMsg != "" {
		logFields["error_msg"] = entry.ErrorMsg
	}
	for key, value := range entry.Metadata {
		logFields["meta_"+key] = value
	}

	if entry.Success {
		a.logger.WithFields(logFields).Info("Audit log entry")
	} else {
		a.logger.WithFields(logFields).Warn("Audit log entry - operation failed")
	}
}
