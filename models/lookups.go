package models

// Thermostat ist eine Nachschlagetabelle für Thermostat-Algorithmen
// (z.B. "v-rescale", "nose-hoover").
type Thermostat struct {
	ID   uint   `json:"id" gorm:"primaryKey;column:thermostat_id"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Thermostat) TableName() string {
	return "thermostats"
}

// Barostat ist eine Nachschlagetabelle für Barostat-Algorithmen
// (z.B. "parrinello-rahman", "berendsen").
type Barostat struct {
	ID   uint   `json:"id" gorm:"primaryKey;column:barostat_id"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Barostat) TableName() string {
	return "barostats"
}

// Integrator ist eine Nachschlagetabelle für Integrations-Algorithmen
// (z.B. "md", "sd"). Fehlende Werte im Snapshot werden als "undefined" geführt.
type Integrator struct {
	ID   uint   `json:"id" gorm:"primaryKey;column:integrator_id"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Integrator) TableName() string {
	return "integrators"
}
