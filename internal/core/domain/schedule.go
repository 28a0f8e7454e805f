package domain

import "time"

type ScheduleKind string

const (
	ScheduleKindDaily   ScheduleKind = "Diaria"
	ScheduleKindWeekly  ScheduleKind = "Semanal"
	ScheduleKindMonthly ScheduleKind = "Mensual"
	ScheduleKindOneTime ScheduleKind = "Especifica"
)

func (k ScheduleKind) Valid() bool {
	switch k {
	case ScheduleKindDaily, ScheduleKindWeekly, ScheduleKindMonthly, ScheduleKindOneTime:
		return true
	}
	return false
}

// Schedule is a recurrence rule bound to one robot and a set of devices.
// Created and updated as a whole unit (rule plus device set); deleting it
// cascades to its generated assignments. DeviceNames is denormalized from the
// device set at creation time.
type Schedule struct {
	ScheduleID       int64        `json:"schedule_id" gorm:"column:ProgramacionId;primaryKey;autoIncrement"`
	RobotID          int64        `json:"robot_id" gorm:"column:RobotId"`
	Kind             ScheduleKind `json:"kind" gorm:"column:TipoProgramacion"`
	StartTime        string       `json:"start_time" gorm:"column:HoraInicio"` // HH:MM:SS
	ToleranceMinutes int          `json:"tolerance_minutes" gorm:"column:Tolerancia"`
	WeekDays         *string      `json:"week_days,omitempty" gorm:"column:DiasSemana"` // comma-separated, weekly only
	DayOfMonth       *int         `json:"day_of_month,omitempty" gorm:"column:DiaDelMes"`
	SpecificDate     *time.Time   `json:"specific_date,omitempty" gorm:"column:FechaEspecifica"`
	DeviceNames      string       `json:"device_names" gorm:"column:Equipos"`
}

func (Schedule) TableName() string {
	return "Programaciones"
}
