package domain

import "time"

// LaunchCandidate is one (robot, device, user) triple the eligibility query
// selected for launch in the current cycle.
type LaunchCandidate struct {
	RobotID       int64   `gorm:"column:RobotId"`
	DeviceID      int64   `gorm:"column:EquipoId"`
	UserID        int64   `gorm:"column:UserId"`
	ScheduledTime *string `gorm:"column:Hora"` // HH:MM:SS when a schedule triggered the launch
	Slots         int     `gorm:"column:Slots"` // robot capacity left when the cycle started
}

// OrphanDeployment is a deployment the platform accepted but whose execution
// row could not be persisted. Reconciliation periodically tries to adopt it
// back into the Ejecuciones table.
type OrphanDeployment struct {
	DeploymentID string    `json:"deployment_id"`
	RobotID      int64     `json:"robot_id"`
	DeviceID     int64     `json:"device_id"`
	UserID       int64     `json:"user_id"`
	AcceptedAt   time.Time `json:"accepted_at"`
	Attempts     int       `json:"attempts"`
	Reason       string    `json:"reason"`
}
