package pg

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"botfleet/internal/core/domain"
)

// Administrative surface backing the dashboard API. These run on the same
// gateway; they share its pool but not its retry policy, an interactive
// request is better off failing fast.

func (g *Gateway) ListRobots(ctx context.Context, filter string, offset, limit int) ([]domain.Robot, int64, error) {
	q := g.db.WithContext(ctx).Model(&domain.Robot{})
	if filter != "" {
		q = q.Where(`"Robot" ILIKE ?`, "%"+filter+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var robots []domain.Robot
	err := q.Order(`"RobotId" ASC`).Offset(offset).Limit(limit).Find(&robots).Error
	if err != nil {
		return nil, 0, err
	}
	return robots, total, nil
}

func (g *Gateway) GetRobot(ctx context.Context, id int64) (*domain.Robot, error) {
	var robot domain.Robot
	if err := g.db.WithContext(ctx).First(&robot, `"RobotId" = ?`, id).Error; err != nil {
		return nil, err
	}
	return &robot, nil
}

// UpdateRobotOperational changes only the operator-owned fields. Nil means
// leave the field alone.
func (g *Gateway) UpdateRobotOperational(ctx context.Context, id int64, online, active *bool, priority, tickets *int) error {
	updates := map[string]any{}
	if online != nil {
		updates["EsOnline"] = *online
	}
	if active != nil {
		updates["Activo"] = *active
	}
	if priority != nil {
		updates["PrioridadBalanceo"] = *priority
	}
	if tickets != nil {
		updates["TicketsPorEquipo"] = *tickets
	}
	if len(updates) == 0 {
		return nil
	}

	tx := g.db.WithContext(ctx).Model(&domain.Robot{}).
		Where(`"RobotId" = ?`, id).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (g *Gateway) ListAssignmentsByRobot(ctx context.Context, robotID int64) ([]domain.Assignment, error) {
	var out []domain.Assignment
	err := g.db.WithContext(ctx).
		Where(`"RobotId" = ?`, robotID).
		Order(`"EquipoId" ASC`).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceManualAssignments applies a dashboard edit of a robot's manual
// assignments in one transaction. Manual assignments are always reserved;
// scheduled assignments are owned by their schedule and never touched here.
func (g *Gateway) ReplaceManualAssignments(ctx context.Context, robotID int64, assign, unassign []int64, assignedBy string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(unassign) > 0 {
			err := tx.Where(`"RobotId" = ? AND "EquipoId" IN ? AND "EsProgramado" = false`, robotID, unassign).
				Delete(&domain.Assignment{}).Error
			if err != nil {
				return err
			}
		}
		for _, deviceID := range assign {
			row := domain.Assignment{
				RobotID:     robotID,
				DeviceID:    deviceID,
				IsScheduled: false,
				Reserved:    true,
				AssignedBy:  assignedBy,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "RobotId"}, {Name: "EquipoId"}},
				DoNothing: true,
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *Gateway) ListSchedulesByRobot(ctx context.Context, robotID int64) ([]domain.Schedule, error) {
	var out []domain.Schedule
	err := g.db.WithContext(ctx).
		Where(`"RobotId" = ?`, robotID).
		Order(`"ProgramacionId" ASC`).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSchedule stores the recurrence rule and generates one scheduled
// assignment per device, all in one transaction. Device names are
// denormalized into the schedule row at creation time.
func (g *Gateway) CreateSchedule(ctx context.Context, sched *domain.Schedule, deviceIDs []int64) error {
	if !sched.Kind.Valid() {
		return fmt.Errorf("invalid schedule kind %q", sched.Kind)
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		names, err := deviceNames(tx, deviceIDs)
		if err != nil {
			return err
		}
		sched.DeviceNames = names

		if err := tx.Create(sched).Error; err != nil {
			return err
		}
		return createScheduledAssignments(tx, sched, deviceIDs)
	})
}

// UpdateSchedule rewrites the rule and regenerates its assignments.
func (g *Gateway) UpdateSchedule(ctx context.Context, sched *domain.Schedule, deviceIDs []int64) error {
	if !sched.Kind.Valid() {
		return fmt.Errorf("invalid schedule kind %q", sched.Kind)
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Schedule
		err := tx.First(&existing, `"ProgramacionId" = ? AND "RobotId" = ?`, sched.ScheduleID, sched.RobotID).Error
		if err != nil {
			return err
		}

		names, err := deviceNames(tx, deviceIDs)
		if err != nil {
			return err
		}
		sched.DeviceNames = names

		if err := tx.Save(sched).Error; err != nil {
			return err
		}
		err = tx.Where(`"ProgramacionId" = ?`, sched.ScheduleID).
			Delete(&domain.Assignment{}).Error
		if err != nil {
			return err
		}
		return createScheduledAssignments(tx, sched, deviceIDs)
	})
}

// DeleteSchedule removes the rule and cascades to its generated assignments.
func (g *Gateway) DeleteSchedule(ctx context.Context, scheduleID, robotID int64) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where(`"ProgramacionId" = ? AND "RobotId" = ?`, scheduleID, robotID).
			Delete(&domain.Schedule{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where(`"ProgramacionId" = ?`, scheduleID).
			Delete(&domain.Assignment{}).Error
	})
}

func (g *Gateway) ListExecutions(ctx context.Context, offset, limit int) ([]domain.Execution, int64, error) {
	var total int64
	if err := g.db.WithContext(ctx).Model(&domain.Execution{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []domain.Execution
	err := g.db.WithContext(ctx).
		Order(`"FechaInicio" DESC`).
		Offset(offset).Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func deviceNames(tx *gorm.DB, deviceIDs []int64) (string, error) {
	if len(deviceIDs) == 0 {
		return "", nil
	}
	var names []string
	err := tx.Model(&domain.Device{}).
		Where(`"EquipoId" IN ?`, deviceIDs).
		Order(`"EquipoId" ASC`).
		Pluck("Equipo", &names).Error
	if err != nil {
		return "", err
	}
	return strings.Join(names, ", "), nil
}

func createScheduledAssignments(tx *gorm.DB, sched *domain.Schedule, deviceIDs []int64) error {
	for _, deviceID := range deviceIDs {
		row := domain.Assignment{
			RobotID:     sched.RobotID,
			DeviceID:    deviceID,
			ScheduleID:  &sched.ScheduleID,
			IsScheduled: true,
			Reserved:    false,
			AssignedBy:  "scheduler",
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "RobotId"}, {Name: "EquipoId"}},
			DoNothing: true,
		}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}
