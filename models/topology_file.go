package models

// TopologyFile erweitert eine File-Zeile um Topologie-Metadaten (z.B. .gro).
// file_id ist PK und zugleich FK auf files — eine strikte 1:1-Beziehung.
type TopologyFile struct {
	FileID      uint `json:"file_id" gorm:"primaryKey"`
	AtomNumber  int  `json:"atom_number"`
	HasProtein  bool `json:"has_protein"`
	HasNucleic  bool `json:"has_nucleic"`
	HasLipid    bool `json:"has_lipid"`
	HasGlucid   bool `json:"has_glucid"`
	HasWaterIon bool `json:"has_water_ion"`

	File File `json:"-" gorm:"foreignKey:FileID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (TopologyFile) TableName() string {
	return "topology_files"
}
