package models

// Author repräsentiert eine Autorin oder einen Autor eines Datensatzes.
// Identität ist das Paar (name, orcid); fehlende ORCID wird als leerer
// String gespeichert, damit der Unique-Index greift. Namensvarianten
// ("J. Smith" vs "John Smith") werden bewusst NICHT zusammengeführt.
type Author struct {
	ID    uint   `json:"id" gorm:"primaryKey;column:author_id"`
	Name  string `json:"name" gorm:"index:idx_authors_name_orcid,unique;not null"`
	Orcid string `json:"orcid,omitempty" gorm:"index:idx_authors_name_orcid,unique;default:''"`

	Datasets []Dataset `json:"-" gorm:"many2many:datasets_authors_link"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Author) TableName() string {
	return "authors"
}
