package models

// DataSource repräsentiert ein Quell-Repository (z.B. zenodo, figshare, osf),
// aus dem Datensätze gecrawlt wurden. Wird beim ersten Auftreten lazy angelegt.
type DataSource struct {
	ID   uint   `json:"id" gorm:"primaryKey;column:data_source_id"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
	URL  string `json:"url,omitempty"`

	Datasets []Dataset `json:"-" gorm:"foreignKey:DataSourceID"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (DataSource) TableName() string {
	return "data_sources"
}
