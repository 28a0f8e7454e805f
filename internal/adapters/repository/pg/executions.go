package pg

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"botfleet/internal/core/domain"
)

// terminalStatuses as stored in the Estado column, for NOT IN guards. Every
// status mutation in this file excludes terminal rows so replayed callbacks
// and overlapping reconciliation passes cannot regress a finished execution.
var terminalStatuses = []string{
	string(domain.ExecutionStatusRunCompleted),
	string(domain.ExecutionStatusRunFailed),
	string(domain.ExecutionStatusRunAborted),
	string(domain.ExecutionStatusRunTimedOut),
	string(domain.ExecutionStatusDeployFailed),
	string(domain.ExecutionStatusUnknown),
}

// eligibleRow is one raw eligibility result before recurrence filtering.
type eligibleRow struct {
	RobotID      int64      `gorm:"column:RobotId"`
	DeviceID     int64      `gorm:"column:EquipoId"`
	UserID       int64      `gorm:"column:UserId"`
	Hora         *string    `gorm:"column:Hora"`
	Slots        int        `gorm:"column:Slots"`
	Kind         *string    `gorm:"column:TipoProgramacion"`
	WeekDays     *string    `gorm:"column:DiasSemana"`
	DayOfMonth   *int       `gorm:"column:DiaDelMes"`
	SpecificDate *time.Time `gorm:"column:FechaEspecifica"`
	Tolerance    *int       `gorm:"column:Tolerancia"`
}

// EligibleRobots selects the (robot, device, user) triples to launch this
// cycle: active robot on an active assigned device whose device is idle and
// whose robot still has capacity, ordered by balancing priority. A scheduled
// assignment is only returned while its recurrence rule is firing, and each
// candidate carries the robot's remaining capacity so the caller can bound
// launches within the cycle.
func (g *Gateway) EligibleRobots(ctx context.Context) ([]domain.LaunchCandidate, error) {
	const q = `
SELECT r."RobotId", a."EquipoId", e."UserId", p."HoraInicio" AS "Hora",
  p."TipoProgramacion", p."DiasSemana", p."DiaDelMes", p."FechaEspecifica", p."Tolerancia",
  r."MaxEquipos" - (
    SELECT COUNT(*) FROM "Ejecuciones" y
    WHERE y."RobotId" = r."RobotId" AND y."Estado" NOT IN ?
  ) AS "Slots"
FROM "Robots" r
JOIN "Asignaciones" a ON a."RobotId" = r."RobotId"
JOIN "Equipos" e ON e."EquipoId" = a."EquipoId"
LEFT JOIN "Programaciones" p ON p."ProgramacionId" = a."ProgramacionId"
WHERE r."Activo" AND r."EsOnline" AND e."Activo"
  AND NOT EXISTS (
    SELECT 1 FROM "Ejecuciones" x
    WHERE x."EquipoId" = a."EquipoId" AND x."Estado" NOT IN ?
  )
  AND (
    SELECT COUNT(*) FROM "Ejecuciones" y
    WHERE y."RobotId" = r."RobotId" AND y."Estado" NOT IN ?
  ) < r."MaxEquipos"
ORDER BY r."PrioridadBalanceo" ASC, a."EquipoId" ASC`

	var rows []eligibleRow
	err := g.withRetry(ctx, func() error {
		rows = rows[:0]
		return g.db.WithContext(ctx).Raw(q, terminalStatuses, terminalStatuses, terminalStatuses).Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]domain.LaunchCandidate, 0, len(rows))
	for _, row := range rows {
		rule := scheduleRule{
			Kind:         row.Kind,
			StartTime:    row.Hora,
			Tolerance:    row.Tolerance,
			WeekDays:     row.WeekDays,
			DayOfMonth:   row.DayOfMonth,
			SpecificDate: row.SpecificDate,
		}
		if !rule.due(now) {
			continue
		}
		out = append(out, domain.LaunchCandidate{
			RobotID:       row.RobotID,
			DeviceID:      row.DeviceID,
			UserID:        row.UserID,
			ScheduledTime: row.Hora,
			Slots:         row.Slots,
		})
	}
	return out, nil
}

// InsertExecution records an accepted deployment. The platform already holds
// the work at this point; a failure here is what produces an orphan.
func (g *Gateway) InsertExecution(ctx context.Context, exec *domain.Execution) error {
	return g.withRetry(ctx, func() error {
		return g.db.WithContext(ctx).Create(exec).Error
	})
}

// InFlightExecutions returns non-terminal executions started at least minAge
// ago. The age floor keeps reconciliation from racing deployments the
// platform has not registered yet.
func (g *Gateway) InFlightExecutions(ctx context.Context, minAge time.Duration) ([]domain.Execution, error) {
	cutoff := time.Now().Add(-minAge)
	var out []domain.Execution
	err := g.withRetry(ctx, func() error {
		out = out[:0]
		return g.db.WithContext(ctx).
			Where(`"Estado" NOT IN ?`, terminalStatuses).
			Where(`"FechaInicio" < ?`, cutoff).
			Find(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyDeploymentStatuses writes a batch of platform-reported statuses in one
// multi-row statement. Rows that reached a terminal state in the meantime are
// left alone; matched rows get their failure counter reset because the
// platform clearly still knows them.
func (g *Gateway) ApplyDeploymentStatuses(ctx context.Context, statuses []domain.DeploymentStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	values := make([]string, 0, len(statuses))
	params := make([]any, 0, len(statuses)*3)
	for _, s := range statuses {
		values = append(values, "(?::text, ?::text, ?::timestamptz)")
		params = append(params, s.DeploymentID, string(s.Status), s.EndTime)
	}

	stmt := `
UPDATE "Ejecuciones" AS t SET
  "Estado" = v.status,
  "FechaFin" = COALESCE(v.end_time, t."FechaFin"),
  "IntentosFallidos" = 0,
  "FechaActualizacion" = NOW()
FROM (VALUES ` + strings.Join(values, ", ") + `) AS v(deployment_id, status, end_time)
WHERE t."DeploymentId" = v.deployment_id
  AND t."Estado" NOT IN ?`
	params = append(params, terminalStatuses)

	res, err := g.Execute(ctx, stmt, params, false)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// IncrementFailedAttempts bumps the reconciliation failure counter of the
// given non-terminal executions.
func (g *Gateway) IncrementFailedAttempts(ctx context.Context, deploymentIDs []string) (int64, error) {
	if len(deploymentIDs) == 0 {
		return 0, nil
	}
	const stmt = `
UPDATE "Ejecuciones" SET
  "IntentosFallidos" = "IntentosFallidos" + 1,
  "FechaActualizacion" = NOW()
WHERE "DeploymentId" IN ? AND "Estado" NOT IN ?`

	res, err := g.Execute(ctx, stmt, []any{deploymentIDs, terminalStatuses}, false)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// EscalateToUnknown abandons executions whose failure counter reached the
// limit, closing them as UNKNOWN with the current time as end time.
func (g *Gateway) EscalateToUnknown(ctx context.Context, maxFailedAttempts int) (int64, error) {
	const stmt = `
UPDATE "Ejecuciones" SET
  "Estado" = ?,
  "FechaFin" = NOW(),
  "FechaActualizacion" = NOW()
WHERE "IntentosFallidos" >= ? AND "Estado" NOT IN ?`

	res, err := g.Execute(ctx, stmt, []any{string(domain.ExecutionStatusUnknown), maxFailedAttempts, terminalStatuses}, false)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// statusTransition decides how an externally reported status applies to a
// stored execution: terminal rows are never touched again, and the end time
// is stamped only when the incoming status closes the execution.
func statusTransition(current, incoming domain.ExecutionStatus) (domain.UpdateOutcome, bool) {
	if current.IsTerminal() {
		return domain.UpdateOutcomeAlreadyProcessed, false
	}
	return domain.UpdateOutcomeUpdated, incoming.IsTerminal()
}

// UpdateExecutionFromExternalStatus applies one externally reported status
// (callback or poll) idempotently. The row is locked for the duration of the
// check-then-write so concurrent reports of the same deployment serialize.
func (g *Gateway) UpdateExecutionFromExternalStatus(ctx context.Context, deploymentID string, status domain.ExecutionStatus, rawPayload string) (domain.UpdateOutcome, error) {
	outcome := domain.UpdateOutcomeNotFound
	err := g.withRetry(ctx, func() error {
		return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var exec domain.Execution
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where(`"DeploymentId" = ?`, deploymentID).
				First(&exec).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				outcome = domain.UpdateOutcomeNotFound
				return nil
			}
			if err != nil {
				return err
			}
			var setEndTime bool
			outcome, setEndTime = statusTransition(exec.Status, status)
			if outcome == domain.UpdateOutcomeAlreadyProcessed {
				return nil
			}

			updates := map[string]any{
				"Estado":             string(status),
				"CallbackInfo":       rawPayload,
				"FechaActualizacion": gorm.Expr("NOW()"),
			}
			if setEndTime {
				updates["FechaFin"] = gorm.Expr("NOW()")
			}
			return tx.Model(&domain.Execution{}).
				Where(`"DeploymentId" = ?`, deploymentID).
				Updates(updates).Error
		})
	})
	if err != nil {
		return domain.UpdateOutcomeNotFound, err
	}
	return outcome, nil
}

// RobotName is a best-effort lookup for notification rendering.
func (g *Gateway) RobotName(ctx context.Context, robotID int64) (string, error) {
	var robot domain.Robot
	if err := g.db.WithContext(ctx).First(&robot, `"RobotId" = ?`, robotID).Error; err != nil {
		return "", err
	}
	return robot.Name, nil
}

// DeviceInfo is a best-effort lookup for notification rendering.
func (g *Gateway) DeviceInfo(ctx context.Context, deviceID int64) (*domain.Device, error) {
	var device domain.Device
	if err := g.db.WithContext(ctx).First(&device, `"EquipoId" = ?`, deviceID).Error; err != nil {
		return nil, err
	}
	return &device, nil
}
