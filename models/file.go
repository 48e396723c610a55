package models

// File repräsentiert eine Datei eines Datensatzes. Dateien aus Zip-Archiven
// referenzieren ihre Elterndatei über ParentZipFileID (selbstreferenzierend,
// bildet einen Wald — keine Zyklen). Die fachliche Identität für das Matching
// ist (dataset_id, name); Dateinamen sind nicht global eindeutig.
type File struct {
	ID        uint   `json:"id" gorm:"primaryKey;column:file_id"`
	DatasetID uint   `json:"dataset_id" gorm:"index;not null"`
	Name      string `json:"name" gorm:"index;not null"`

	FileTypeID  uint     `json:"file_type_id" gorm:"not null"`
	SizeInBytes *float64 `json:"size_in_bytes,omitempty"`
	// Dateien aus Zip-Archiven haben weder md5 noch eigene URL
	MD5 string `json:"md5,omitempty"`
	URL string `json:"url,omitempty"`

	IsFromZipFile   bool  `json:"is_from_zip_file" gorm:"index"`
	ParentZipFileID *uint `json:"parent_zip_file_id,omitempty"`

	Dataset  Dataset  `json:"-" gorm:"foreignKey:DatasetID"`
	FileType FileType `json:"-" gorm:"foreignKey:FileTypeID"`
	Parent   *File    `json:"-" gorm:"foreignKey:ParentZipFileID"`
	Children []File   `json:"-" gorm:"foreignKey:ParentZipFileID"`

	TopologyFile   *TopologyFile   `json:"-" gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE"`
	ParameterFile  *ParameterFile  `json:"-" gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE"`
	TrajectoryFile *TrajectoryFile `json:"-" gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (File) TableName() string {
	return "files"
}
