package domain

// Assignment pairs a robot with a device. Manual assignments are always
// reserved; scheduled assignments live and die with their owning schedule.
// One row per (robot, device).
type Assignment struct {
	AssignmentID int64  `json:"assignment_id" gorm:"column:AsignacionId;primaryKey;autoIncrement"`
	RobotID      int64  `json:"robot_id" gorm:"column:RobotId;uniqueIndex:idx_robot_equipo"`
	DeviceID     int64  `json:"device_id" gorm:"column:EquipoId;uniqueIndex:idx_robot_equipo"`
	ScheduleID   *int64 `json:"schedule_id,omitempty" gorm:"column:ProgramacionId"`
	IsScheduled  bool   `json:"is_scheduled" gorm:"column:EsProgramado"`
	Reserved     bool   `json:"reserved" gorm:"column:Reservado"`
	AssignedBy   string `json:"assigned_by" gorm:"column:AsignadoPor"`
}

func (Assignment) TableName() string {
	return "Asignaciones"
}
