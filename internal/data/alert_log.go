package data

import (
	"context"
	"encoding/json"
	"time"

	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AlertEvent is the GORM model for the alert_events table.
type AlertEvent struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null;index"`
	AlertID   string    `gorm:"column:alert_id;type:varchar(100);index"`
	RuleID    string    `gorm:"column:rule_id;type:varchar(100)"`
	Severity  string    `gorm:"column:severity;type:varchar(20)"`
	Details   string    `gorm:"column:details;type:json"` // JSON string
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (AlertEvent) TableName() string {
	return "alert_events"
}

// AlertEventLoggerImpl implements biz.AlertEventLogger. Events are queued to
// a buffered channel and written by a background goroutine; the in-memory
// alert store stays authoritative, this table is an audit trail only.
type AlertEventLoggerImpl struct {
	db      *gorm.DB
	logChan chan *AlertEvent
	logger  *log.Helper
}

// NewAlertEventLogger creates the async alert event journal.
func NewAlertEventLogger(d *Data, logger log.Logger) *AlertEventLoggerImpl {
	al := &AlertEventLoggerImpl{
		db:      d.db,
		logChan: make(chan *AlertEvent, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	go al.start()

	return al
}

// start processes alert events from the channel.
func (a *AlertEventLoggerImpl) start() {
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("failed to write alert event",
				"event_type", event.EventType,
				"alert_id", event.AlertID,
				"error", err)
		} else {
			a.logger.Debugw("alert event written",
				"event_type", event.EventType,
				"alert_id", event.AlertID)
		}
	}
}

// LogAlertRaised journals an ALERT_RAISED event.
func (a *AlertEventLoggerImpl) LogAlertRaised(ctx context.Context, alert *model.Alert) {
	details := map[string]interface{}{
		"message": alert.Message,
		"value":   alert.Value,
	}
	a.enqueue(model.AlertEventRaised, alert, details)
}

// LogAlertResolved journals an ALERT_RESOLVED event.
func (a *AlertEventLoggerImpl) LogAlertResolved(ctx context.Context, alert *model.Alert) {
	details := map[string]interface{}{
		"message": alert.Message,
	}
	if alert.ResolvedAt != nil {
		details["resolved_at"] = alert.ResolvedAt.Format(time.RFC3339)
		details["open_for_seconds"] = alert.ResolvedAt.Sub(alert.CreatedAt).Seconds()
	}
	a.enqueue(model.AlertEventResolved, alert, details)
}

// LogRecoveryRun journals an AUTO_RECOVERY_RUN event.
func (a *AlertEventLoggerImpl) LogRecoveryRun(ctx context.Context, metricName, action string, runErr error) {
	details := map[string]interface{}{
		"metric": metricName,
		"action": action,
	}
	if runErr != nil {
		details["error"] = runErr.Error()
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal alert event details", "error", err)
		return
	}

	a.send(&AlertEvent{
		EventType: model.AlertEventRecovery,
		Details:   string(detailsJSON),
	})
}

// enqueue serializes and queues one alert lifecycle event.
func (a *AlertEventLoggerImpl) enqueue(eventType string, alert *model.Alert, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal alert event details", "error", err)
		return
	}

	a.send(&AlertEvent{
		EventType: eventType,
		AlertID:   alert.ID,
		RuleID:    alert.RuleID,
		Severity:  string(alert.Severity),
		Details:   string(detailsJSON),
	})
}

// send queues an event without blocking; a full channel drops the event.
func (a *AlertEventLoggerImpl) send(event *AlertEvent) {
	select {
	case a.logChan <- event:
	default:
		a.logger.Warnw("alert event channel full, dropping event",
			"event_type", event.EventType,
			"alert_id", event.AlertID)
	}
}
