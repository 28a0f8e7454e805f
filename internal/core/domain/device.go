package domain

// Device is a remote execution host bound to a platform user account.
// Rows are fully owned by synchronization; a device without an owning user
// is rejected before it ever reaches the table.
type Device struct {
	DeviceID        int64  `json:"device_id" gorm:"column:EquipoId;primaryKey"`
	Hostname        string `json:"hostname" gorm:"column:Equipo"`
	UserID          int64  `json:"user_id" gorm:"column:UserId;not null"`
	Username        string `json:"username" gorm:"column:UserName"`
	License         string `json:"license" gorm:"column:Licencia"`
	Active          bool   `json:"active" gorm:"column:Activo"`
	AllowsBalancing bool   `json:"allows_balancing" gorm:"column:PermiteBalanceoDinamico"`
}

func (Device) TableName() string {
	return "Equipos"
}

const DeviceLicenseUnassigned = "UNASSIGNED"
