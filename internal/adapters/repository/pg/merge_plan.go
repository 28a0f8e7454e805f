package pg

import (
	"botfleet/internal/core/domain"
)

// Merge planning is pure: given the incoming platform records and the rows
// already in the table, produce the exact inserts and column updates to apply.
// Keeping the diff out of the transaction makes both merge policies testable
// without a database.

type robotUpdate struct {
	RobotID     int64
	Name        string
	Description string
}

type robotMergePlan struct {
	Inserts []domain.Robot
	Updates []robotUpdate
	Skipped []domain.PlatformRobot // zero-id records the platform should not have sent
}

// planRobotMerge applies the robot merge policy: new robots are inserted with
// operator defaults, existing robots only ever get name and description
// refreshed. Operational state stays untouched no matter what the platform
// reports.
func planRobotMerge(incoming []domain.PlatformRobot, existing []domain.Robot) robotMergePlan {
	current := make(map[int64]domain.Robot, len(existing))
	for _, r := range existing {
		current[r.RobotID] = r
	}

	var plan robotMergePlan
	for _, in := range incoming {
		if in.ID == 0 {
			plan.Skipped = append(plan.Skipped, in)
			continue
		}
		row, ok := current[in.ID]
		if !ok {
			plan.Inserts = append(plan.Inserts, domain.Robot{
				RobotID:          in.ID,
				Name:             in.Name,
				Description:      in.Description,
				IsOnline:         domain.NewRobotDefaultOnline,
				Active:           domain.NewRobotDefaultActive,
				MinDevices:       1,
				MaxDevices:       1,
				BalancePriority:  100,
				TicketsPerDevice: 1,
			})
			continue
		}
		if row.Name != in.Name || row.Description != in.Description {
			plan.Updates = append(plan.Updates, robotUpdate{
				RobotID:     in.ID,
				Name:        in.Name,
				Description: in.Description,
			})
		}
	}
	return plan
}

type deviceMergePlan struct {
	Inserts    []domain.Device
	Updates    []domain.Device
	Ownerless  []domain.Device // rejected: no bound user
	Duplicates []int64         // device ids seen more than once in the batch
}

// planDeviceMerge applies the device merge policy: rows are fully owned by
// synchronization, so every sync-managed column is refreshed. A device with
// no owning user is rejected, and a duplicated id keeps its first occurrence.
// The dynamic-balancing flag is operator-owned and excluded from comparison.
func planDeviceMerge(incoming []domain.Device, existing []domain.Device) deviceMergePlan {
	current := make(map[int64]domain.Device, len(existing))
	for _, d := range existing {
		current[d.DeviceID] = d
	}

	var plan deviceMergePlan
	seen := make(map[int64]bool, len(incoming))
	for _, in := range incoming {
		if in.UserID == 0 {
			plan.Ownerless = append(plan.Ownerless, in)
			continue
		}
		if seen[in.DeviceID] {
			plan.Duplicates = append(plan.Duplicates, in.DeviceID)
			continue
		}
		seen[in.DeviceID] = true

		row, ok := current[in.DeviceID]
		if !ok {
			plan.Inserts = append(plan.Inserts, in)
			continue
		}
		if row.Hostname != in.Hostname ||
			row.UserID != in.UserID ||
			row.Username != in.Username ||
			row.License != in.License ||
			row.Active != in.Active {
			plan.Updates = append(plan.Updates, in)
		}
	}
	return plan
}

// Submitted is the number of valid rows the plan will write or confirm
// unchanged, the count reported back to the synchronizer.
func (p robotMergePlan) Submitted(incoming int) int {
	return incoming - len(p.Skipped)
}

func (p deviceMergePlan) Submitted(incoming int) int {
	return incoming - len(p.Ownerless) - len(p.Duplicates)
}
