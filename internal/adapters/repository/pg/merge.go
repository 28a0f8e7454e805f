package pg

import (
	"context"

	"botfleet/internal/core/domain"
)

// MergeRobots upserts the platform's robot catalog. Inserts take operator
// defaults (offline, active); existing rows only get name and description
// refreshed, one update per row in a single batch. Returns the number of
// valid rows submitted.
func (g *Gateway) MergeRobots(ctx context.Context, robots []domain.PlatformRobot) (int, error) {
	var existing []domain.Robot
	if err := g.withRetry(ctx, func() error {
		existing = existing[:0]
		return g.db.WithContext(ctx).Find(&existing).Error
	}); err != nil {
		return 0, err
	}

	plan := planRobotMerge(robots, existing)
	for _, s := range plan.Skipped {
		g.log.Warn("skipping robot without id", "name", s.Name)
	}

	if len(plan.Inserts) > 0 {
		if err := g.withRetry(ctx, func() error {
			return g.db.WithContext(ctx).Create(&plan.Inserts).Error
		}); err != nil {
			return 0, err
		}
	}
	if len(plan.Updates) > 0 {
		const stmt = `UPDATE "Robots" SET "Robot" = ?, "Descripcion" = ? WHERE "RobotId" = ?`
		sets := make([][]any, 0, len(plan.Updates))
		for _, u := range plan.Updates {
			sets = append(sets, []any{u.Name, u.Description, u.RobotID})
		}
		if _, err := g.ExecuteMany(ctx, stmt, sets); err != nil {
			return 0, err
		}
	}
	return plan.Submitted(len(robots)), nil
}

// MergeDevices upserts the enriched device list. Rows are fully owned by
// synchronization except the operator's dynamic-balancing flag. Ownerless
// devices are rejected and duplicates keep their first occurrence. Returns
// the number of valid rows submitted.
func (g *Gateway) MergeDevices(ctx context.Context, devices []domain.Device) (int, error) {
	var existing []domain.Device
	if err := g.withRetry(ctx, func() error {
		existing = existing[:0]
		return g.db.WithContext(ctx).Find(&existing).Error
	}); err != nil {
		return 0, err
	}

	plan := planDeviceMerge(devices, existing)
	for _, d := range plan.Ownerless {
		g.log.Warn("rejecting device without owning user", "device_id", d.DeviceID, "hostname", d.Hostname)
	}
	for _, id := range plan.Duplicates {
		g.log.Warn("duplicate device in batch, keeping first occurrence", "device_id", id)
	}

	if len(plan.Inserts) > 0 {
		if err := g.withRetry(ctx, func() error {
			return g.db.WithContext(ctx).Create(&plan.Inserts).Error
		}); err != nil {
			return 0, err
		}
	}
	if len(plan.Updates) > 0 {
		const stmt = `
UPDATE "Equipos" SET "Equipo" = ?, "UserId" = ?, "UserName" = ?, "Licencia" = ?, "Activo" = ?
WHERE "EquipoId" = ?`
		sets := make([][]any, 0, len(plan.Updates))
		for _, u := range plan.Updates {
			sets = append(sets, []any{u.Hostname, u.UserID, u.Username, u.License, u.Active, u.DeviceID})
		}
		if _, err := g.ExecuteMany(ctx, stmt, sets); err != nil {
			return 0, err
		}
	}
	return plan.Submitted(len(devices)), nil
}
