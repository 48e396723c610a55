package models

// ParameterFile erweitert eine File-Zeile um Simulationsparameter (z.B. .mdp).
// file_id ist PK und zugleich FK auf files — eine strikte 1:1-Beziehung.
type ParameterFile struct {
	FileID      uint     `json:"file_id" gorm:"primaryKey"`
	Dt          *float64 `json:"dt,omitempty"`
	Nsteps      *int64   `json:"nsteps,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	ThermostatID *uint `json:"thermostat_id,omitempty"`
	BarostatID   *uint `json:"barostat_id,omitempty"`
	IntegratorID uint  `json:"integrator_id"`

	File       File        `json:"-" gorm:"foreignKey:FileID"`
	Thermostat *Thermostat `json:"-" gorm:"foreignKey:ThermostatID"`
	Barostat   *Barostat   `json:"-" gorm:"foreignKey:BarostatID"`
	Integrator Integrator  `json:"-" gorm:"foreignKey:IntegratorID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (ParameterFile) TableName() string {
	return "parameter_files"
}
