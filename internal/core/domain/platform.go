package domain

import "time"

// Typed views of the records the remote platform API returns. Every record is
// validated at the boundary; nothing dict-shaped crosses into the core.

type PlatformRobot struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

type PlatformUserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type PlatformDevice struct {
	ID           int64             `json:"id"`
	Hostname     string            `json:"hostName"`
	Status       string            `json:"status"`
	DefaultUsers []PlatformUserRef `json:"defaultUsers"`
}

// DefaultUser returns the device's owning user, taken as the first entry of
// the default-users list, or nil when the device has no bound user.
func (d PlatformDevice) DefaultUser() *PlatformUserRef {
	if len(d.DefaultUsers) == 0 {
		return nil
	}
	return &d.DefaultUsers[0]
}

type PlatformUser struct {
	ID              int64    `json:"id"`
	Username        string   `json:"username"`
	Description     string   `json:"description"`
	Email           string   `json:"email"`
	LicenseFeatures []string `json:"licenseFeatures"`
	Disabled        bool     `json:"disabled"`
}

// DeploymentStatus is one entry of a batched status lookup.
type DeploymentStatus struct {
	DeploymentID string          `json:"deploymentId"`
	Status       ExecutionStatus `json:"status"`
	EndTime      *time.Time      `json:"endDateTime,omitempty"`
}

// DeployFailure describes one robot launch that did not produce a tracked
// execution, collected per cycle for the notification path.
type DeployFailure struct {
	RobotID  int64  `json:"robot_id"`
	DeviceID int64  `json:"device_id"`
	UserID   int64  `json:"user_id"`
	Reason   string `json:"reason"`
}
