package models

import "time"

// Dataset repräsentiert einen Simulations-Datensatz und dessen Metadaten.
// Die fachliche Identität ist das Paar (data_source_id, id_in_data_source),
// NICHT der Surrogat-Primärschlüssel: ein erneuter Ingest desselben Paars
// aktualisiert den bestehenden Datensatz.
type Dataset struct {
	ID        uint      `json:"id" gorm:"primaryKey;column:dataset_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DataSourceID   uint   `json:"data_source_id" gorm:"index:idx_datasets_source_key,unique;not null"`
	IDInDataSource string `json:"id_in_data_source" gorm:"index:idx_datasets_source_key,unique;not null"`

	DOI string `json:"doi,omitempty"`
	// Datumsfelder sind Freitext aus den Snapshots und werden nicht validiert
	DateCreated      string `json:"date_created,omitempty"`       // YYYY-MM-DD
	DateLastModified string `json:"date_last_modified,omitempty"` // YYYY-MM-DD
	DateLastCrawled  string `json:"date_last_crawled,omitempty"`  // YYYY-MM-DDTHH:MM:SS

	FileNumber     int `json:"file_number" gorm:"default:0"`
	DownloadNumber int `json:"download_number" gorm:"default:0"`
	ViewNumber     int `json:"view_number" gorm:"default:0"`

	License     string `json:"license,omitempty"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	DataSource DataSource `json:"-" gorm:"foreignKey:DataSourceID"`
	Authors    []Author   `json:"authors,omitempty" gorm:"many2many:datasets_authors_link"`
	Keywords   []Keyword  `json:"keywords,omitempty" gorm:"many2many:datasets_keywords_link"`
	Files      []File     `json:"-" gorm:"foreignKey:DatasetID;constraint:OnDelete:CASCADE"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Dataset) TableName() string {
	return "datasets"
}
