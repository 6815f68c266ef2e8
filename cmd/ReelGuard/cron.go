package main

import (
	"context"
	"fmt"
	"time"

	"ReelGuard/internal/biz"
	"ReelGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// reliabilityJobs holds the components driven by the periodic jobs.
type reliabilityJobs struct {
	health *biz.HealthAggregator
	alerts *biz.AlertManager
}

// newReliabilityJobs bundles the cron job dependencies for injection.
func newReliabilityJobs(health *biz.HealthAggregator, alerts *biz.AlertManager) *reliabilityJobs {
	return &reliabilityJobs{
		health: health,
		alerts: alerts,
	}
}

// StartReliabilityCron starts the background reliability jobs:
//   - the health check tick refreshes the snapshot and evaluates alert rules
//   - the metrics reset drops samples outside the alerting window
func StartReliabilityCron(jobs *reliabilityJobs, cfg *conf.Health, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	checkEvery := cfg.CheckInterval
	if checkEvery <= 0 {
		checkEvery = 30 * time.Second
	}
	_, err := c.AddFunc(fmt.Sprintf("@every %s", checkEvery), func() {
		ctx, cancel := context.WithTimeout(context.Background(), checkEvery)
		defer cancel()

		snapshot := jobs.health.Refresh()
		jobs.alerts.Evaluate(ctx, snapshot)
	})
	if err != nil {
		helper.Errorw("failed to register health check cron job", "error", err)
		return nil
	}

	resetEvery := cfg.MetricsResetInterval
	if resetEvery <= 0 {
		resetEvery = time.Hour
	}
	_, err = c.AddFunc(fmt.Sprintf("@every %s", resetEvery), func() {
		jobs.health.SoftReset()
	})
	if err != nil {
		helper.Errorw("failed to register metrics reset cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Infow("reliability cron jobs started",
		"health_check_interval", checkEvery,
		"metrics_reset_interval", resetEvery)

	return c
}
