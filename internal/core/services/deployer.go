package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"botfleet/internal/core/domain"
	"botfleet/internal/core/logger"
	"botfleet/internal/core/metrics"
	"botfleet/internal/core/ports"
	"botfleet/internal/core/retry"
)

// DeployerConfig bounds one launch cycle.
type DeployerConfig struct {
	MaxRetries         int           // extra attempts after the first, device-not-active only
	RetryDelay         time.Duration // fixed delay between those attempts
	InputTemplateLoops int           // value for the bot input template
	Blackout           BlackoutWindow
}

// Deployer launches every eligible robot once per cycle. A rejection that
// names an inactive device is retried a bounded number of times with a fixed
// delay; everything else fails that candidate immediately. Failures are
// collected and returned, never raised, so one bad robot cannot stop the
// rest of the fleet.
type Deployer struct {
	platform  ports.PlatformClient
	gateway   ports.Gateway
	orphans   ports.OrphanStore
	cfg       DeployerConfig
	retryable func(error) bool
	log       *slog.Logger
	now       func() time.Time
}

func NewDeployer(platform ports.PlatformClient, gateway ports.Gateway, orphans ports.OrphanStore, cfg DeployerConfig, retryable func(error) bool) *Deployer {
	return &Deployer{
		platform:  platform,
		gateway:   gateway,
		orphans:   orphans,
		cfg:       cfg,
		retryable: retryable,
		log:       logger.With("component", "deployer"),
		now:       time.Now,
	}
}

// Run executes one launch cycle and returns the per-robot failures for the
// caller's notification path.
func (d *Deployer) Run(ctx context.Context) ([]domain.DeployFailure, error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues("deploy").Observe(time.Since(start).Seconds())
	}()

	if d.cfg.Blackout.Contains(d.now()) {
		d.log.Debug("inside launch blackout window, skipping cycle")
		metrics.CyclesTotal.WithLabelValues("deploy", "blackout").Inc()
		return nil, nil
	}

	candidates, err := d.gateway.EligibleRobots(ctx)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("deploy", "error").Inc()
		return nil, fmt.Errorf("eligible robots: %w", err)
	}
	if len(candidates) == 0 {
		metrics.CyclesTotal.WithLabelValues("deploy", "ok").Inc()
		return nil, nil
	}

	input := map[string]any{
		"in_NumRepeticion": map[string]any{"type": "NUMBER", "number": d.cfg.InputTemplateLoops},
	}

	// A robot assigned to several idle devices appears once per device; its
	// capacity snapshot must hold across the whole cycle, not per candidate.
	launched := make(map[int64]int)

	var failures []domain.DeployFailure
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if launched[c.RobotID] >= c.Slots {
			d.log.Debug("robot at capacity for this cycle", "robot_id", c.RobotID, "device_id", c.DeviceID)
			continue
		}
		accepted, failure := d.launch(ctx, c, input)
		if accepted {
			launched[c.RobotID]++
		}
		if failure != nil {
			failures = append(failures, *failure)
		}
	}

	metrics.CyclesTotal.WithLabelValues("deploy", "ok").Inc()
	d.log.Info("launch cycle complete",
		"candidates", len(candidates),
		"failures", len(failures),
		"elapsed", time.Since(start).String())
	return failures, nil
}

// launch deploys one candidate and persists its execution. Reports whether
// the platform accepted the deployment, which holds even when persisting the
// row failed, plus the failure detail if any.
func (d *Deployer) launch(ctx context.Context, c domain.LaunchCandidate, input map[string]any) (bool, *domain.DeployFailure) {
	policy := retry.Policy{
		MaxAttempts: d.cfg.MaxRetries + 1,
		BaseDelay:   d.cfg.RetryDelay,
		Multiplier:  1,
	}
	classify := func(err error) retry.Class {
		if d.retryable(err) {
			return retry.ClassRetryable
		}
		return retry.ClassPermanent
	}
	notify := func(err error, attempt int, delay time.Duration) {
		d.log.Warn("deploy rejected, device not ready, will retry",
			"robot_id", c.RobotID, "device_id", c.DeviceID,
			"attempt", attempt, "delay", delay.String(), "error", err)
	}

	var deploymentID string
	err := policy.Do(ctx, classify, notify, func() error {
		var err error
		deploymentID, err = d.platform.Deploy(ctx, c.RobotID, []int64{c.UserID}, input)
		return err
	})
	if err != nil {
		d.log.Error("deploy failed",
			"robot_id", c.RobotID, "device_id", c.DeviceID, "user_id", c.UserID, "error", err)
		metrics.DeploymentsTotal.WithLabelValues("rejected").Inc()
		return false, &domain.DeployFailure{
			RobotID:  c.RobotID,
			DeviceID: c.DeviceID,
			UserID:   c.UserID,
			Reason:   err.Error(),
		}
	}

	exec := &domain.Execution{
		DeploymentID:  deploymentID,
		RobotID:       c.RobotID,
		DeviceID:      c.DeviceID,
		UserID:        c.UserID,
		ScheduledTime: c.ScheduledTime,
		Status:        domain.ExecutionStatusLaunched,
		StartedAt:     d.now(),
		UpdatedAt:     d.now(),
	}
	if err := d.gateway.InsertExecution(ctx, exec); err != nil {
		// The platform already holds the work; losing the row must not lose
		// the deployment. Park it for reconciliation to adopt.
		d.log.Error("deployment accepted but execution row not persisted",
			"deployment_id", deploymentID, "robot_id", c.RobotID, "error", err)
		metrics.DeploymentsTotal.WithLabelValues("orphaned").Inc()
		orphan := domain.OrphanDeployment{
			DeploymentID: deploymentID,
			RobotID:      c.RobotID,
			DeviceID:     c.DeviceID,
			UserID:       c.UserID,
			AcceptedAt:   d.now(),
			Reason:       err.Error(),
		}
		if addErr := d.orphans.Add(ctx, orphan); addErr != nil {
			d.log.Error("failed to park orphaned deployment", "deployment_id", deploymentID, "error", addErr)
		}
		return true, &domain.DeployFailure{
			RobotID:  c.RobotID,
			DeviceID: c.DeviceID,
			UserID:   c.UserID,
			Reason:   fmt.Sprintf("accepted as %s but not persisted: %v", deploymentID, err),
		}
	}

	metrics.DeploymentsTotal.WithLabelValues("launched").Inc()
	d.log.Info("robot launched",
		"robot_id", c.RobotID, "device_id", c.DeviceID, "deployment_id", deploymentID)
	return true, nil
}
