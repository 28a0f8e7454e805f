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
)

// ReconcilerConfig bounds one reconciliation cycle.
type ReconcilerConfig struct {
	MinAge            time.Duration // executions younger than this are left alone
	MaxFailedAttempts int           // polls without an answer before escalating to UNKNOWN
	OrphanMaxAttempts int           // adoption tries before an orphan is dropped
}

// Reconciler closes the loop between local execution rows and the platform's
// activity log. Rows the platform still knows get their reported status;
// rows it no longer answers for accumulate failed attempts until they are
// escalated to UNKNOWN. It also tries to adopt orphaned deployments back
// into the execution table.
type Reconciler struct {
	platform ports.PlatformClient
	gateway  ports.Gateway
	orphans  ports.OrphanStore
	cfg      ReconcilerConfig
	log      *slog.Logger
	now      func() time.Time
}

func NewReconciler(platform ports.PlatformClient, gateway ports.Gateway, orphans ports.OrphanStore, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		platform: platform,
		gateway:  gateway,
		orphans:  orphans,
		cfg:      cfg,
		log:      logger.With("component", "reconciler"),
		now:      time.Now,
	}
}

// ReconcileResult carries the per-cycle counts.
type ReconcileResult struct {
	Checked        int
	Applied        int64
	Missing        int
	Escalated      int64
	OrphansAdopted int
	OrphansDropped int
}

// Run executes one reconciliation cycle.
func (r *Reconciler) Run(ctx context.Context) (ReconcileResult, error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues("reconcile").Observe(time.Since(start).Seconds())
	}()

	var res ReconcileResult

	inflight, err := r.gateway.InFlightExecutions(ctx, r.cfg.MinAge)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("reconcile", "error").Inc()
		return res, fmt.Errorf("in-flight executions: %w", err)
	}
	metrics.ExecutionsInFlight.Set(float64(len(inflight)))
	res.Checked = len(inflight)

	if len(inflight) > 0 {
		if err := r.reconcileInFlight(ctx, inflight, &res); err != nil {
			metrics.CyclesTotal.WithLabelValues("reconcile", "error").Inc()
			return res, err
		}
	}

	r.drainOrphans(ctx, &res)

	metrics.CyclesTotal.WithLabelValues("reconcile", "ok").Inc()
	if res.Checked > 0 || res.OrphansAdopted > 0 || res.OrphansDropped > 0 {
		r.log.Info("reconciliation complete",
			"checked", res.Checked,
			"applied", res.Applied,
			"missing", res.Missing,
			"escalated", res.Escalated,
			"orphans_adopted", res.OrphansAdopted,
			"orphans_dropped", res.OrphansDropped,
			"elapsed", time.Since(start).String())
	}
	return res, nil
}

func (r *Reconciler) reconcileInFlight(ctx context.Context, inflight []domain.Execution, res *ReconcileResult) error {
	ids := make([]string, 0, len(inflight))
	for _, e := range inflight {
		ids = append(ids, e.DeploymentID)
	}

	statuses, err := r.platform.FetchStatusByDeploymentIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("status lookup: %w", err)
	}

	// Apply what the platform reported before touching the missing ones, so
	// a row found in this pass never has its failure counter bumped.
	found := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		found[s.DeploymentID] = true
	}

	applied, err := r.gateway.ApplyDeploymentStatuses(ctx, statuses)
	if err != nil {
		return fmt.Errorf("apply statuses: %w", err)
	}
	res.Applied = applied
	metrics.ReconciledTotal.WithLabelValues("poll").Add(float64(applied))

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	res.Missing = len(missing)
	if len(missing) > 0 {
		if _, err := r.gateway.IncrementFailedAttempts(ctx, missing); err != nil {
			return fmt.Errorf("increment failed attempts: %w", err)
		}
	}

	escalated, err := r.gateway.EscalateToUnknown(ctx, r.cfg.MaxFailedAttempts)
	if err != nil {
		return fmt.Errorf("escalate: %w", err)
	}
	res.Escalated = escalated
	if escalated > 0 {
		metrics.EscalatedUnknownTotal.Add(float64(escalated))
		r.log.Warn("executions abandoned as UNKNOWN", "count", escalated)
	}
	return nil
}

// drainOrphans tries to adopt parked deployments back into the execution
// table. Failures here are logged, never fatal: the orphans survive in the
// store for the next cycle.
func (r *Reconciler) drainOrphans(ctx context.Context, res *ReconcileResult) {
	orphans, err := r.orphans.List(ctx)
	if err != nil {
		r.log.Error("failed to list orphaned deployments", "error", err)
		return
	}
	if len(orphans) == 0 {
		return
	}

	ids := make([]string, 0, len(orphans))
	for _, o := range orphans {
		ids = append(ids, o.DeploymentID)
	}
	statuses, err := r.platform.FetchStatusByDeploymentIDs(ctx, ids)
	if err != nil {
		r.log.Error("orphan status lookup failed", "error", err)
		return
	}
	byID := make(map[string]domain.DeploymentStatus, len(statuses))
	for _, s := range statuses {
		byID[s.DeploymentID] = s
	}

	for _, o := range orphans {
		status, ok := byID[o.DeploymentID]
		if !ok {
			attempts, err := r.orphans.IncrementAttempts(ctx, o.DeploymentID)
			if err != nil {
				r.log.Error("failed to bump orphan attempts", "deployment_id", o.DeploymentID, "error", err)
				continue
			}
			if attempts >= r.cfg.OrphanMaxAttempts {
				r.log.Warn("dropping orphaned deployment, platform never answered",
					"deployment_id", o.DeploymentID, "attempts", attempts)
				if err := r.orphans.Remove(ctx, o.DeploymentID); err != nil {
					r.log.Error("failed to drop orphan", "deployment_id", o.DeploymentID, "error", err)
				}
				res.OrphansDropped++
			}
			continue
		}

		exec := &domain.Execution{
			DeploymentID: o.DeploymentID,
			RobotID:      o.RobotID,
			DeviceID:     o.DeviceID,
			UserID:       o.UserID,
			Status:       status.Status,
			StartedAt:    o.AcceptedAt,
			EndedAt:      status.EndTime,
			UpdatedAt:    r.now(),
		}
		if err := r.gateway.InsertExecution(ctx, exec); err != nil {
			r.log.Error("failed to adopt orphaned deployment", "deployment_id", o.DeploymentID, "error", err)
			continue
		}
		if err := r.orphans.Remove(ctx, o.DeploymentID); err != nil {
			r.log.Error("adopted orphan but failed to remove it from the store",
				"deployment_id", o.DeploymentID, "error", err)
		}
		res.OrphansAdopted++
		r.log.Info("orphaned deployment adopted",
			"deployment_id", o.DeploymentID, "status", status.Status)
	}
}
