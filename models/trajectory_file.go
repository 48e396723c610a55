package models

// TrajectoryFile erweitert eine File-Zeile um Trajektorien-Metadaten (z.B. .xtc).
// file_id ist PK und zugleich FK auf files — eine strikte 1:1-Beziehung.
type TrajectoryFile struct {
	FileID      uint `json:"file_id" gorm:"primaryKey"`
	AtomNumber  int  `json:"atom_number"`
	FrameNumber int  `json:"frame_number"`

	File File `json:"-" gorm:"foreignKey:FileID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (TrajectoryFile) TableName() string {
	return "trajectory_files"
}
