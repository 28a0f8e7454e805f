package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"botfleet/internal/core/domain"
	"botfleet/internal/core/logger"
	"botfleet/internal/core/ports"
)

// OrchestratorState is the service lifecycle.
type OrchestratorState int32

const (
	StateStopped OrchestratorState = iota
	StateRunning
	StateStopping
)

func (s OrchestratorState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	}
	return "INVALID"
}

// OrchestratorConfig holds the sub-task intervals.
type OrchestratorConfig struct {
	SyncInterval      time.Duration
	DeployInterval    time.Duration
	ReconcileInterval time.Duration
	SyncEnabled       bool
}

// Orchestrator drives the three sub-tasks on their configured intervals
// inside one select loop. A stop request lets the in-flight sub-task cycle
// finish before the loop exits; sub-task failures are alerted, never fatal.
type Orchestrator struct {
	sync     *Synchronizer
	deploy   *Deployer
	recon    *Reconciler
	gateway  ports.Gateway
	notifier ports.Notifier
	cfg      OrchestratorConfig
	log      *slog.Logger

	mu    sync.Mutex
	state OrchestratorState
	stop  context.CancelFunc
	done  chan struct{}
}

func NewOrchestrator(sync *Synchronizer, deploy *Deployer, recon *Reconciler, gateway ports.Gateway, notifier ports.Notifier, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		sync:     sync,
		deploy:   deploy,
		recon:    recon,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.With("component", "orchestrator"),
		state:    StateStopped,
	}
}

func (o *Orchestrator) State() OrchestratorState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start transitions STOPPED to RUNNING and launches the loop. Starting a
// non-stopped orchestrator is an error.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateStopped {
		o.mu.Unlock()
		return fmt.Errorf("cannot start orchestrator in state %s", o.state)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.state = StateRunning
	o.stop = cancel
	o.done = make(chan struct{})
	o.mu.Unlock()

	o.log.Info("orchestrator starting",
		"sync_enabled", o.cfg.SyncEnabled,
		"sync_interval", o.cfg.SyncInterval.String(),
		"deploy_interval", o.cfg.DeployInterval.String(),
		"reconcile_interval", o.cfg.ReconcileInterval.String())

	go o.loop(loopCtx)
	return nil
}

// Stop transitions to STOPPING and blocks until the in-flight sub-task cycle
// finishes and the loop exits.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	o.state = StateStopping
	stop := o.stop
	done := o.done
	o.mu.Unlock()

	o.log.Info("orchestrator stopping, waiting for in-flight cycle")
	stop()
	<-done

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
	o.log.Info("orchestrator stopped")
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.done)

	deployTicker := time.NewTicker(o.cfg.DeployInterval)
	defer deployTicker.Stop()
	reconTicker := time.NewTicker(o.cfg.ReconcileInterval)
	defer reconTicker.Stop()

	var syncC <-chan time.Time
	if o.cfg.SyncEnabled {
		syncTicker := time.NewTicker(o.cfg.SyncInterval)
		defer syncTicker.Stop()
		syncC = syncTicker.C

		// Fresh inventory before the first launch cycle.
		o.runSync(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-syncC:
			o.runSync(ctx)
		case <-deployTicker.C:
			o.runDeploy(ctx)
		case <-reconTicker.C:
			o.runReconcile(ctx)
		}
	}
}

func (o *Orchestrator) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	log := o.log.With("cycle_id", uuid.NewString())
	res, err := o.sync.Run(ctx)
	if err != nil {
		log.Error("synchronization cycle failed", "error", err)
		o.notifier.SendAlert("Inventory synchronization failed", err.Error(), true)
		return
	}
	log.Info("synchronization cycle finished", "robots", res.Robots, "devices", res.Devices)
}

func (o *Orchestrator) runDeploy(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	log := o.log.With("cycle_id", uuid.NewString())
	failures, err := o.deploy.Run(ctx)
	if err != nil {
		log.Error("launch cycle failed", "error", err)
		o.notifier.SendAlert("Robot launch cycle failed", err.Error(), true)
		return
	}
	if len(failures) > 0 {
		log.Warn("launch cycle finished with failures", "failures", len(failures))
		// Constant subject: the notifier's cooldown keys on it, so the
		// failure count belongs in the body only.
		o.notifier.SendAlert("Robot launch failures", o.renderFailures(ctx, failures), true)
	}
}

func (o *Orchestrator) runReconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	log := o.log.With("cycle_id", uuid.NewString())
	res, err := o.recon.Run(ctx)
	if err != nil {
		log.Error("reconciliation cycle failed", "error", err)
		o.notifier.SendAlert("Execution reconciliation failed", err.Error(), true)
		return
	}
	if res.Checked > 0 || res.OrphansAdopted > 0 || res.OrphansDropped > 0 {
		log.Info("reconciliation cycle finished",
			"checked", res.Checked,
			"applied", res.Applied,
			"missing", res.Missing,
			"escalated", res.Escalated,
			"orphans_adopted", res.OrphansAdopted,
			"orphans_dropped", res.OrphansDropped)
	}
}

// renderFailures builds the one aggregated notification body for a cycle's
// launch failures. Name lookups are best effort; a failed lookup degrades to
// the raw id.
func (o *Orchestrator) renderFailures(ctx context.Context, failures []domain.DeployFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following %d launches failed this cycle:\n\n", len(failures))
	for _, f := range failures {
		robot := fmt.Sprintf("robot %d", f.RobotID)
		if name, err := o.gateway.RobotName(ctx, f.RobotID); err == nil && name != "" {
			robot = fmt.Sprintf("%s (%d)", name, f.RobotID)
		}
		device := fmt.Sprintf("device %d", f.DeviceID)
		if info, err := o.gateway.DeviceInfo(ctx, f.DeviceID); err == nil && info.Hostname != "" {
			device = fmt.Sprintf("%s (%d)", info.Hostname, f.DeviceID)
		}
		fmt.Fprintf(&b, "- %s on %s, user %d: %s\n", robot, device, f.UserID, f.Reason)
	}
	return b.String()
}
