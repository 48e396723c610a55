package models

// FileType repräsentiert einen Dateityp (z.B. "mdp", "gro", "xtc", "zip").
type FileType struct {
	ID   uint   `json:"id" gorm:"primaryKey;column:file_type_id"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`

	Files []File `json:"-" gorm:"foreignKey:FileTypeID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (FileType) TableName() string {
	return "file_types"
}
