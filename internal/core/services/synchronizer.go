package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"botfleet/internal/core/domain"
	"botfleet/internal/core/logger"
	"botfleet/internal/core/metrics"
	"botfleet/internal/core/ports"
)

// Synchronizer refreshes the local robot and device inventory from the
// remote platform. One cycle fetches all three inventories concurrently,
// enriches devices with their owning user's license, and merges robots then
// devices. Any fetch failure abandons the cycle with no partial writes.
type Synchronizer struct {
	platform ports.PlatformClient
	gateway  ports.Gateway
	log      *slog.Logger
}

func NewSynchronizer(platform ports.PlatformClient, gateway ports.Gateway) *Synchronizer {
	return &Synchronizer{
		platform: platform,
		gateway:  gateway,
		log:      logger.With("component", "synchronizer"),
	}
}

// SyncResult carries the per-cycle counts for logging and notification.
type SyncResult struct {
	Robots  int
	Devices int
}

// Run executes one synchronization cycle.
func (s *Synchronizer) Run(ctx context.Context) (SyncResult, error) {
	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues("sync").Observe(time.Since(start).Seconds())
	}()

	var (
		wg        sync.WaitGroup
		robots    []domain.PlatformRobot
		devices   []domain.PlatformDevice
		users     []domain.PlatformUser
		robotsErr error
		devErr    error
		usersErr  error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		robots, robotsErr = s.platform.FetchRobots(ctx)
	}()
	go func() {
		defer wg.Done()
		devices, devErr = s.platform.FetchDevices(ctx)
	}()
	go func() {
		defer wg.Done()
		users, usersErr = s.platform.FetchUsers(ctx)
	}()
	wg.Wait()

	for _, err := range []error{robotsErr, devErr, usersErr} {
		if err != nil {
			metrics.CyclesTotal.WithLabelValues("sync", "error").Inc()
			return SyncResult{}, fmt.Errorf("inventory fetch: %w", err)
		}
	}

	enriched := enrichDevices(devices, users, s.log)

	robotCount, err := s.gateway.MergeRobots(ctx, robots)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("sync", "error").Inc()
		return SyncResult{}, fmt.Errorf("merge robots: %w", err)
	}
	deviceCount, err := s.gateway.MergeDevices(ctx, enriched)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("sync", "error").Inc()
		return SyncResult{}, fmt.Errorf("merge devices: %w", err)
	}

	metrics.CyclesTotal.WithLabelValues("sync", "ok").Inc()
	s.log.Info("synchronization complete",
		"robots", robotCount,
		"devices", deviceCount,
		"elapsed", time.Since(start).String())
	return SyncResult{Robots: robotCount, Devices: deviceCount}, nil
}

// Fallback license values when the owning user cannot supply one.
const (
	licenseUserNotFound = "USER_NOT_FOUND"
)

// enrichDevices resolves each device's owning user (first default user) and
// attaches username and comma-joined license features. Devices are
// deduplicated by id, first occurrence wins; ownerless devices pass through
// with a zero user id for the merge to reject.
func enrichDevices(devices []domain.PlatformDevice, users []domain.PlatformUser, log *slog.Logger) []domain.Device {
	usersByID := make(map[int64]domain.PlatformUser, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	seen := make(map[int64]bool, len(devices))
	out := make([]domain.Device, 0, len(devices))
	for _, dev := range devices {
		if seen[dev.ID] {
			log.Warn("dropping duplicate device from inventory", "device_id", dev.ID, "hostname", dev.Hostname)
			continue
		}
		seen[dev.ID] = true

		row := domain.Device{
			DeviceID: dev.ID,
			Hostname: dev.Hostname,
			Active:   dev.Status == "CONNECTED",
			License:  domain.DeviceLicenseUnassigned,
		}
		if owner := dev.DefaultUser(); owner != nil {
			row.UserID = owner.ID
			row.Username = owner.Username
			if user, ok := usersByID[owner.ID]; ok {
				row.Username = user.Username
				if len(user.LicenseFeatures) > 0 {
					row.License = strings.Join(user.LicenseFeatures, ",")
				}
			} else {
				row.License = licenseUserNotFound
			}
		}
		out = append(out, row)
	}
	return out
}
