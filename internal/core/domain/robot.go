package domain

// Robot is a unit of automation logic identified by the platform-issued id.
// Name and description are platform-sourced and refreshed by synchronization;
// the remaining fields are operator-owned and never touched by a merge once
// the row exists.
type Robot struct {
	RobotID          int64  `json:"robot_id" gorm:"column:RobotId;primaryKey"`
	Name             string `json:"name" gorm:"column:Robot"`
	Description      string `json:"description" gorm:"column:Descripcion"`
	IsOnline         bool   `json:"is_online" gorm:"column:EsOnline"`
	Active           bool   `json:"active" gorm:"column:Activo"`
	MinDevices       int    `json:"min_devices" gorm:"column:MinEquipos;default:1"`
	MaxDevices       int    `json:"max_devices" gorm:"column:MaxEquipos;default:1"`
	BalancePriority  int    `json:"balance_priority" gorm:"column:PrioridadBalanceo;default:100"`
	TicketsPerDevice int    `json:"tickets_per_device" gorm:"column:TicketsPorEquipo;default:1"`
}

func (Robot) TableName() string {
	return "Robots"
}

// Defaults applied when synchronization inserts a robot it has never seen.
const (
	NewRobotDefaultOnline = false
	NewRobotDefaultActive = true
)
