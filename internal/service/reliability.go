package service

import (
	"context"
	"time"

	"ReelGuard/internal/biz"
	"ReelGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// GetRecommendationsRequest is the HTTP request body/query for the
// recommendations endpoint.
type GetRecommendationsRequest struct {
	UserID int64    `json:"user_id"`
	Genres []string `json:"genres,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// GetRecommendationsResponse wraps the reliable result.
type GetRecommendationsResponse struct {
	Result *model.ReliableResult `json:"result"`
}

// SystemHealthResponse is the health endpoint payload.
type SystemHealthResponse struct {
	Status        *model.HealthStatus           `json:"status"`
	CircuitStates map[string]model.CircuitState `json:"circuit_states"`
	ActiveAlerts  []*model.Alert                `json:"active_alerts"`
	UptimeSeconds float64                       `json:"uptime_seconds"`
}

// AlertRulesResponse lists the registered alert rules.
type AlertRulesResponse struct {
	Rules []*model.AlertRule `json:"rules"`
}

// ActiveAlertsResponse lists the unresolved alerts.
type ActiveAlertsResponse struct {
	Alerts []*model.Alert `json:"alerts"`
}

// MutationResponse reports the outcome of a state-changing call.
type MutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ReliabilityService exposes the reliability core over HTTP.
type ReliabilityService struct {
	uc        *biz.ReliabilityUsecase
	health    *biz.HealthAggregator
	registry  *biz.CircuitRegistry
	alerts    *biz.AlertManager
	startedAt time.Time
	logger    *log.Helper
}

// NewReliabilityService creates a new ReliabilityService instance.
func NewReliabilityService(
	uc *biz.ReliabilityUsecase,
	health *biz.HealthAggregator,
	registry *biz.CircuitRegistry,
	alerts *biz.AlertManager,
	logger log.Logger,
) *ReliabilityService {
	return &ReliabilityService{
		uc:        uc,
		health:    health,
		registry:  registry,
		alerts:    alerts,
		startedAt: time.Now(),
		logger:    log.NewHelper(logger),
	}
}

// GetRecommendations serves one recommendation request through the
// reliability pipeline. Only input validation can fail; the pipeline itself
// always answers.
func (s *ReliabilityService) GetRecommendations(ctx context.Context, req *GetRecommendationsRequest) (*GetRecommendationsResponse, error) {
	if req.UserID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "user_id must be positive")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	s.logger.Debugw("GetRecommendations called",
		"user_id", req.UserID,
		"genres", req.Genres,
		"limit", limit)

	result := s.uc.GetReliableResult(ctx, &model.RecommendationRequest{
		UserID: req.UserID,
		Genres: req.Genres,
		Limit:  limit,
	})

	return &GetRecommendationsResponse{Result: result}, nil
}

// GetSystemHealth returns the latest health snapshot plus circuit states,
// unresolved alerts and process uptime.
func (s *ReliabilityService) GetSystemHealth(ctx context.Context) (*SystemHealthResponse, error) {
	return &SystemHealthResponse{
		Status:        s.health.Latest(),
		CircuitStates: s.registry.States(),
		ActiveAlerts:  s.alerts.ActiveAlerts(),
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}, nil
}

// ListAlertRules returns all registered alert rules.
func (s *ReliabilityService) ListAlertRules(ctx context.Context) (*AlertRulesResponse, error) {
	return &AlertRulesResponse{Rules: s.alerts.Rules()}, nil
}

// AddAlertRule registers or replaces a rule.
func (s *ReliabilityService) AddAlertRule(ctx context.Context, rule *model.AlertRule) (*MutationResponse, error) {
	if err := s.alerts.AddRule(rule); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &MutationResponse{Success: true, Message: "rule registered"}, nil
}

// RemoveAlertRule deletes a rule by ID.
func (s *ReliabilityService) RemoveAlertRule(ctx context.Context, ruleID string) (*MutationResponse, error) {
	if ruleID == "" {
		return nil, status.Error(codes.InvalidArgument, "rule id is required")
	}
	if !s.alerts.RemoveRule(ruleID) {
		return nil, status.Error(codes.NotFound, "rule not found")
	}
	return &MutationResponse{Success: true, Message: "rule removed"}, nil
}

// ListActiveAlerts returns the unresolved alerts.
func (s *ReliabilityService) ListActiveAlerts(ctx context.Context) (*ActiveAlertsResponse, error) {
	return &ActiveAlertsResponse{Alerts: s.alerts.ActiveAlerts()}, nil
}

// ResolveAlert marks one alert resolved. Resolving an already-resolved
// alert succeeds without changing anything.
func (s *ReliabilityService) ResolveAlert(ctx context.Context, alertID string) (*MutationResponse, error) {
	if alertID == "" {
		return nil, status.Error(codes.InvalidArgument, "alert id is required")
	}

	changed := s.alerts.ResolveAlert(ctx, alertID)
	msg := "alert resolved"
	if !changed {
		msg = "alert already resolved or unknown"
	}
	return &MutationResponse{Success: true, Message: msg}, nil
}

// TriggerRecovery runs one named recovery action on demand.
func (s *ReliabilityService) TriggerRecovery(ctx context.Context, action string) (*MutationResponse, error) {
	switch action {
	case model.RecoveryClearCache, model.RecoveryResetCircuits, model.RecoveryWarmCache:
	default:
		return nil, status.Error(codes.InvalidArgument, "unknown recovery action")
	}

	s.logger.Infow("TriggerRecovery called", "action", action)
	if err := s.uc.TriggerRecovery(ctx, action); err != nil {
		s.logger.Errorw("recovery action failed", "action", action, "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &MutationResponse{Success: true, Message: "recovery action completed"}, nil
}
