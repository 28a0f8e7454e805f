package domain

import (
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusLaunched     ExecutionStatus = "LAUNCHED"
	ExecutionStatusRunCompleted ExecutionStatus = "RUN_COMPLETED"
	ExecutionStatusRunFailed    ExecutionStatus = "RUN_FAILED"
	ExecutionStatusRunAborted   ExecutionStatus = "RUN_ABORTED"
	ExecutionStatusRunTimedOut  ExecutionStatus = "RUN_TIMED_OUT"
	ExecutionStatusDeployFailed ExecutionStatus = "DEPLOY_FAILED"
	ExecutionStatusUnknown      ExecutionStatus = "UNKNOWN"
)

// IsTerminal reports whether the status is final. A terminal execution is
// never transitioned again; both the reconciler and the callback receiver
// rely on this to stay idempotent.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusRunCompleted, ExecutionStatusRunFailed, ExecutionStatusRunAborted,
		ExecutionStatusRunTimedOut, ExecutionStatusDeployFailed, ExecutionStatusUnknown:
		return true
	}
	return false
}

// Execution is one bot run on a device, identified by the platform-issued
// deployment id. Launch attempts that never got a deployment id are not
// persisted.
type Execution struct {
	DeploymentID   string          `json:"deployment_id" gorm:"column:DeploymentId;primaryKey"`
	RobotID        int64           `json:"robot_id" gorm:"column:RobotId"`
	DeviceID       int64           `json:"device_id" gorm:"column:EquipoId"`
	UserID         int64           `json:"user_id" gorm:"column:UserId"`
	ScheduledTime  *string         `json:"scheduled_time,omitempty" gorm:"column:Hora"` // HH:MM:SS, nil for unscheduled launches
	Status         ExecutionStatus `json:"status" gorm:"column:Estado"`
	FailedAttempts int             `json:"failed_attempts" gorm:"column:IntentosFallidos;default:0"`
	StartedAt      time.Time       `json:"started_at" gorm:"column:FechaInicio"`
	EndedAt        *time.Time      `json:"ended_at,omitempty" gorm:"column:FechaFin"`
	CallbackInfo   *string         `json:"-" gorm:"column:CallbackInfo"` // raw last callback payload
	UpdatedAt      time.Time       `json:"updated_at" gorm:"column:FechaActualizacion"`
}

func (Execution) TableName() string {
	return "Ejecuciones"
}

// UpdateOutcome is the result of applying an externally reported status.
type UpdateOutcome int

const (
	UpdateOutcomeUpdated UpdateOutcome = iota
	UpdateOutcomeAlreadyProcessed
	UpdateOutcomeNotFound
)

func (o UpdateOutcome) String() string {
	switch o {
	case UpdateOutcomeUpdated:
		return "UPDATED"
	case UpdateOutcomeAlreadyProcessed:
		return "ALREADY_PROCESSED"
	case UpdateOutcomeNotFound:
		return "NOT_FOUND"
	}
	return "UNKNOWN"
}
