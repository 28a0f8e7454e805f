package ports

import (
	"context"
	"time"

	"botfleet/internal/core/domain"
)

// PlatformClient is the remote robot-execution platform. All methods may fail
// with a network or HTTP error; only the deploy "device not active" condition
// is retryable, everything else is terminal for that item.
type PlatformClient interface {
	FetchRobots(ctx context.Context) ([]domain.PlatformRobot, error)
	FetchDevices(ctx context.Context) ([]domain.PlatformDevice, error)
	FetchUsers(ctx context.Context) ([]domain.PlatformUser, error)
	Deploy(ctx context.Context, botID int64, runAsUserIDs []int64, input map[string]any) (string, error)
	FetchStatusByDeploymentIDs(ctx context.Context, ids []string) ([]domain.DeploymentStatus, error)
	Close() error
}

// Gateway is the orchestration core's persistence surface. Implementations
// own connection lifecycle and classified retry; callers never reconnect.
type Gateway interface {
	Ping(ctx context.Context) error
	Close() error

	MergeRobots(ctx context.Context, robots []domain.PlatformRobot) (int, error)
	MergeDevices(ctx context.Context, devices []domain.Device) (int, error)

	EligibleRobots(ctx context.Context) ([]domain.LaunchCandidate, error)
	InsertExecution(ctx context.Context, exec *domain.Execution) error
	InFlightExecutions(ctx context.Context, minAge time.Duration) ([]domain.Execution, error)
	ApplyDeploymentStatuses(ctx context.Context, statuses []domain.DeploymentStatus) (int64, error)
	IncrementFailedAttempts(ctx context.Context, deploymentIDs []string) (int64, error)
	EscalateToUnknown(ctx context.Context, maxFailedAttempts int) (int64, error)
	UpdateExecutionFromExternalStatus(ctx context.Context, deploymentID string, status domain.ExecutionStatus, rawPayload string) (domain.UpdateOutcome, error)

	RobotName(ctx context.Context, robotID int64) (string, error)
	DeviceInfo(ctx context.Context, deviceID int64) (*domain.Device, error)
}

// RobotRepository serves the administrative surface.
type RobotRepository interface {
	ListRobots(ctx context.Context, filter string, offset, limit int) ([]domain.Robot, int64, error)
	GetRobot(ctx context.Context, id int64) (*domain.Robot, error)
	UpdateRobotOperational(ctx context.Context, id int64, online, active *bool, priority, tickets *int) error
}

type AssignmentRepository interface {
	ListAssignmentsByRobot(ctx context.Context, robotID int64) ([]domain.Assignment, error)
	ReplaceManualAssignments(ctx context.Context, robotID int64, assign, unassign []int64, assignedBy string) error
}

type ScheduleRepository interface {
	ListSchedulesByRobot(ctx context.Context, robotID int64) ([]domain.Schedule, error)
	CreateSchedule(ctx context.Context, sched *domain.Schedule, deviceIDs []int64) error
	UpdateSchedule(ctx context.Context, sched *domain.Schedule, deviceIDs []int64) error
	DeleteSchedule(ctx context.Context, scheduleID, robotID int64) error
}

type ExecutionRepository interface {
	ListExecutions(ctx context.Context, offset, limit int) ([]domain.Execution, int64, error)
}

// Notifier delivers operator alerts. Implementations must tolerate being
// called from the orchestration loop: a send failure is reported, never fatal.
type Notifier interface {
	SendAlert(subject, body string, critical bool) bool
}

// OrphanStore tracks deployments the platform accepted but the local insert
// lost, until reconciliation resolves or abandons them.
type OrphanStore interface {
	Add(ctx context.Context, orphan domain.OrphanDeployment) error
	List(ctx context.Context) ([]domain.OrphanDeployment, error)
	Remove(ctx context.Context, deploymentID string) error
	IncrementAttempts(ctx context.Context, deploymentID string) (int, error)
}
